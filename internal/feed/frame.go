package feed

import (
	"encoding/json"

	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// Frame is the decoded form of one upstream message. The concrete type is
// one of Snapshot, Incremental, Ping or Unrecognized.
type Frame interface {
	frame()
}

// Snapshot replaces the whole cache with Lobbies.
type Snapshot struct {
	Lobbies map[string]lobby.Lobby
}

// Incremental deletes Deleted, then upserts Updated.
type Incremental struct {
	Updated map[string]lobby.Lobby
	Deleted []string
}

// Ping asks for Data to be echoed back to the upstream.
type Ping struct {
	Data json.RawMessage
}

// Unrecognized is a frame no supported shape could decode.
type Unrecognized struct {
	Err *ParseError
}

func (Snapshot) frame()     {}
func (Incremental) frame()  {}
func (Ping) frame()         {}
func (Unrecognized) frame() {}

// Empty reports whether the delta changes nothing.
func (f Incremental) Empty() bool {
	return len(f.Updated) == 0 && len(f.Deleted) == 0
}

// Kind returns a short label for f, used in logs and metrics.
func Kind(f Frame) string {
	switch f.(type) {
	case Snapshot:
		return "snapshot"
	case Incremental:
		return "incremental"
	case Ping:
		return "ping"
	case Unrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}
