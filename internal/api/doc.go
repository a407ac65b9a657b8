// Package api implements the HTTP surface of lobbyisup.
//
// New(cache, opts...) returns a chi router that serves:
//
//	GET /api/v1/health        freshness, upstream state, cache and admission counts
//	GET /api/v1/lobbies       summaries of every cached lobby, ordered by id
//	GET /api/v1/lobbies/{id}  one lobby; id is "123" or "aoe2de://0/123"
//	GET /ws/lobbies/{id}      live websocket stream of one lobby (see package ws)
//	GET /metrics              Prometheus exposition, when a handler is given
//
// Lobby endpoints answer 400 for an invalid id, 503 while the feed is stale
// and 404 for an unknown lobby. Health and metrics are never behind auth.
// JSON types are defined in types.go.
package api
