package upstream

// State is the supervisor's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason says why a session ended.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonIdleTimeout       Reason = "idle_timeout"
	ReasonReadError         Reason = "read_error"
	ReasonWriteError        Reason = "write_error"
	ReasonShutdownRequested Reason = "shutdown_requested"
)
