package feed

import (
	"errors"
	"fmt"
)

// ErrUnknownVariant is returned by NewDecoder and ParseVariant for an
// unsupported wire shape.
var ErrUnknownVariant = errors.New("feed: unknown variant")

// maxRawInError bounds how much of a bad frame is kept for logging.
const maxRawInError = 256

// ParseError describes a frame that could not be decoded. First is the error
// from the first decode attempt; Second is set only when the variant makes a
// second attempt (untagged: snapshot first, then delta).
type ParseError struct {
	Raw    string
	First  error
	Second error
}

func newParseError(raw []byte, first, second error) *ParseError {
	s := string(raw)
	if len(s) > maxRawInError {
		s = s[:maxRawInError] + "..."
	}
	return &ParseError{Raw: s, First: first, Second: second}
}

func (e *ParseError) Error() string {
	if e.Second == nil {
		return fmt.Sprintf("feed: failed to parse incoming message: %v", e.First)
	}
	return fmt.Sprintf(
		"feed: failed to parse incoming message. error_parsing_all_messages: %q, error_parsing_followup_message: %q",
		e.First, e.Second)
}

// Unwrap exposes both underlying failures to errors.Is and errors.As.
func (e *ParseError) Unwrap() []error {
	if e.Second == nil {
		return []error{e.First}
	}
	return []error{e.First, e.Second}
}
