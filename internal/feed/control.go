package feed

import (
	"encoding/json"
	"strconv"
)

// Control is an outbound application frame of the tagged variant.
type Control struct {
	Message   string          `json:"message"`
	Subscribe []int64         `json:"subscribe,omitempty"`
	Location  string          `json:"location,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Subscribe asks the upstream to publish lobbies for the given channel ids.
func Subscribe(ids ...int64) Control {
	return Control{Message: "subscribe", Subscribe: ids}
}

// Location announces which lobby listing the client is looking at.
func Location(location string) Control {
	return Control{Message: "location", Location: location}
}

// Echo answers an upstream ping with its own payload.
func Echo(p Ping) Control {
	return Control{Message: "ping", Data: p.Data}
}

// KeepAlive is a client-initiated ping carrying a unix timestamp.
func KeepAlive(unix int64) Control {
	return Control{Message: "ping", Data: json.RawMessage(strconv.FormatInt(unix, 10))}
}

// Encode returns the JSON text of c.
func (c Control) Encode() ([]byte, error) {
	return json.Marshal(c)
}
