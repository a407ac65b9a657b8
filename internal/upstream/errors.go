package upstream

import (
	"errors"
	"fmt"
)

// ErrIdleTimeout ends a session that received nothing within the idle timeout.
var ErrIdleTimeout = errors.New("upstream: no frame received within idle timeout")

// ConnectionError is a transport failure on the upstream socket.
type ConnectionError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
