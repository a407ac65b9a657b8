// Package feed decodes upstream lobby feed frames.
//
// Two wire shapes are supported, one per Variant:
//
//   - tagged: {"message": "ping"|"lobbies", "data": ...}. Lobbies is always a
//     full replacement list; ping must be echoed back to the upstream.
//   - untagged: {"allcurrentlobbies": {id: lobby}} for a full reset, or
//     {"updatedlobbies": {id: lobby}, "deletedlobbies": [id]} for a delta.
//     A frame is tried as a reset first and only then as a delta.
//
// Decode never fails: a frame that matches no shape becomes an Unrecognized
// frame carrying the parse errors, and the connection stays up.
package feed
