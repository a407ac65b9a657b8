package api

import "github.com/lobbyisup/lobbyisup/pkg/lobby"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "fresh" or "stale".
	State          string `json:"state"`
	Upstream       string `json:"upstream"`
	LastUpdate     string `json:"last_update,omitempty"` // RFC3339
	LastDisconnect string `json:"last_disconnect,omitempty"`
	LobbyCount     int    `json:"lobby_count"`
	TrackedLobbies int    `json:"tracked_lobbies"`
	Watchers       int    `json:"watchers"`
	Generation     uint64 `json:"generation"`
}

// LobbyResponse is the payload for GET /api/v1/lobbies/{id}.
type LobbyResponse struct {
	lobby.Summary
	LastSeen string      `json:"last_seen"` // RFC3339
	Record   lobby.Lobby `json:"record"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
