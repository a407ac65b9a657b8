package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// Variant selects the upstream wire shape.
type Variant string

const (
	Tagged   Variant = "tagged"
	Untagged Variant = "untagged"
)

// ParseVariant maps a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case Tagged, Untagged:
		return v, nil
	default:
		return "", fmt.Errorf("%w %q: want tagged|untagged", ErrUnknownVariant, s)
	}
}

// Decoder turns raw frames into Frames for one wire variant.
type Decoder interface {
	// Decode never returns nil.
	Decode(raw []byte) Frame
	// Outbound reports whether the variant sends application frames upstream.
	Outbound() bool
	// Handshake returns the control frames to send right after connecting.
	Handshake() []Control
}

// Option configures a Decoder.
type Option func(*options)

type options struct {
	appIDs   []int64
	location string
}

// WithSubscriptions sets the app ids subscribed to after connecting (tagged only).
func WithSubscriptions(appIDs ...int64) Option {
	return func(o *options) { o.appIDs = append([]int64(nil), appIDs...) }
}

// WithLocation sets the location announced after connecting (tagged only).
func WithLocation(location string) Option {
	return func(o *options) { o.location = location }
}

// NewDecoder returns the Decoder for v.
func NewDecoder(v Variant, opts ...Option) (Decoder, error) {
	o := options{
		appIDs:   []int64{lobby.AOE2DEAppID},
		location: lobby.AOE2DELocation,
	}
	for _, opt := range opts {
		opt(&o)
	}
	switch v {
	case Tagged:
		return &taggedDecoder{opts: o}, nil
	case Untagged:
		return untaggedDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownVariant, v)
	}
}

// --- tagged -----------------------------------------------------------------

type taggedDecoder struct {
	opts options
}

type taggedEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (d *taggedDecoder) Outbound() bool { return true }

func (d *taggedDecoder) Handshake() []Control {
	out := []Control{Subscribe(0)}
	if d.opts.location != "" {
		out = append(out, Location(d.opts.location))
	}
	if len(d.opts.appIDs) > 0 {
		out = append(out, Subscribe(d.opts.appIDs...))
	}
	return out
}

func (d *taggedDecoder) Decode(raw []byte) Frame {
	var env taggedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unrecognized{Err: newParseError(raw, err, nil)}
	}

	switch env.Message {
	case "ping":
		if len(env.Data) == 0 {
			return Unrecognized{Err: newParseError(raw, errors.New(`ping without "data"`), nil)}
		}
		return Ping{Data: env.Data}

	case "lobbies":
		var list []lobby.Lobby
		if err := json.Unmarshal(env.Data, &list); err != nil {
			return Unrecognized{Err: newParseError(raw, fmt.Errorf("lobbies data: %w", err), nil)}
		}
		snap := Snapshot{Lobbies: make(map[string]lobby.Lobby, len(list))}
		for _, l := range list {
			if l.ID == "" {
				continue
			}
			snap.Lobbies[string(l.ID)] = l
		}
		return snap

	default:
		return Unrecognized{Err: newParseError(raw, fmt.Errorf("unknown message type %q", env.Message), nil)}
	}
}

// --- untagged ---------------------------------------------------------------

type untaggedDecoder struct{}

type allCurrentLobbies struct {
	All map[string]lobby.Lobby `json:"allcurrentlobbies"`
}

type followupLobbies struct {
	Updated map[string]lobby.Lobby `json:"updatedlobbies"`
	Deleted *[]lobby.Key           `json:"deletedlobbies"`
}

func (untaggedDecoder) Outbound() bool { return false }

func (untaggedDecoder) Handshake() []Control { return nil }

func (untaggedDecoder) Decode(raw []byte) Frame {
	var all allCurrentLobbies
	firstErr := json.Unmarshal(raw, &all)
	if firstErr == nil && all.All == nil {
		firstErr = errors.New(`missing field "allcurrentlobbies"`)
	}
	if firstErr == nil {
		return Snapshot{Lobbies: all.All}
	}

	var followup followupLobbies
	secondErr := json.Unmarshal(raw, &followup)
	if secondErr == nil && followup.Updated == nil && followup.Deleted == nil {
		secondErr = errors.New(`missing fields "updatedlobbies" and "deletedlobbies"`)
	}
	if secondErr != nil {
		return Unrecognized{Err: newParseError(raw, firstErr, secondErr)}
	}

	inc := Incremental{Updated: followup.Updated}
	if inc.Updated == nil {
		inc.Updated = map[string]lobby.Lobby{}
	}
	if followup.Deleted != nil {
		inc.Deleted = make([]string, 0, len(*followup.Deleted))
		for _, k := range *followup.Deleted {
			inc.Deleted = append(inc.Deleted, string(k))
		}
	}
	return inc
}
