// Package auth provides HTTP middleware for API key authentication.
//
// APIKey(mode, header, key) returns middleware that:
//   - Passes all requests through when mode != "apikey" or key is empty.
//   - Otherwise compares the named request header (or the api_key query
//     parameter, for websocket clients that cannot set headers) to key.
//   - Rejects missing or incorrect keys with 401 and a JSON error body.
package auth
