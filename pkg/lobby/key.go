package lobby

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidID is returned by ParseID for input that is neither a numeric
// lobby id nor an aoe2de:// lobby link.
var ErrInvalidID = errors.New("lobby: invalid lobby id")

var (
	linkPattern = regexp.MustCompile(`^aoe2de://0/(\d+)$`)
	idPattern   = regexp.MustCompile(`^\d+$`)
)

// ParseID accepts "123456789" or "aoe2de://0/123456789" and returns the bare id.
func ParseID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := linkPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if idPattern.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
}

// Link returns the game-client link for a lobby id.
func Link(id string) string { return "aoe2de://0/" + id }

// JoinURL returns the web join page for a lobby id.
func JoinURL(id string) string { return "https://aoe2.net/j/" + id }

// Key is a lobby identifier as it appears on the wire. Feeds publish ids
// either as JSON strings or as integers; both normalize to the same string.
type Key string

// UnmarshalJSON implements json.Unmarshaler.
func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("lobby: key is null")
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = Key(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("lobby: key %s: %w", data, err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("lobby: key %s is not an integer", data)
	}
	*k = Key(n.String())
	return nil
}
