// Package ws streams one lobby's live state to a websocket client.
//
// Stream.Serve admits the client through the cache's watch admission table,
// upgrades the connection and runs a watch.Session whose renderer writes JSON
// envelopes:
//
//	{"event": "lobby",    "data": { /* lobby.Summary */ }}
//	{"event": "inactive", "data": {"id": "...", "message": "Lobby no longer active"}}
//	{"event": "ended",    "data": {"id": "...", "message": "Lobby is no longer being watched"}}
//
// A normal close frame follows the terminal event. A rejected admission is
// answered with 429 before the upgrade. The upgrader accepts all origins;
// apply CORS restrictions at the reverse proxy level.
package ws
