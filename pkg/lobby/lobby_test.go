package lobby

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func name(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestPlayerNames_SortedWithUnknown(t *testing.T) {
	l := Lobby{Players: []Player{
		{Slot: 1, Name: name("Bob")},
		{Slot: 2},
		{Slot: 3, Name: name("Alice")},
	}}

	require.Equal(t, []string{"Alice", "Bob", UnknownPlayer}, l.PlayerNames())
}

func TestPlayerNames_DoesNotReorderRecord(t *testing.T) {
	l := Lobby{Players: []Player{{Name: name("B")}, {Name: name("A")}}}
	l.PlayerNames()
	require.Equal(t, "B", *l.Players[0].Name)
}

func TestSummarize(t *testing.T) {
	req := require.New(t)
	l := Lobby{
		ID:         "42",
		Name:       "1v1 Arabia",
		NumPlayers: 2,
		NumSlots:   2,
		Status:     "open",
		Players:    []Player{{Name: name("B")}, {Name: name("A")}},
	}
	s := Summarize("42", l)

	req.Equal([]string{"A", "B"}, s.Players)
	req.Equal("aoe2de://0/42", s.Link)
	req.Equal("https://aoe2.net/j/42", s.JoinURL)
}

func TestSummaryEqual(t *testing.T) {
	a := Summarize("1", Lobby{Players: []Player{{Name: name("Alice")}, {Name: name("Bob")}}})
	b := Summarize("1", Lobby{Players: []Player{{Name: name("Bob")}, {Name: name("Alice")}}})
	require.True(t, a.Equal(b), "same players in a different order")

	c := Summarize("1", Lobby{Players: []Player{{Name: name("Alice")}}})
	require.False(t, a.Equal(c))
}

func TestLobbyEqual(t *testing.T) {
	a := Lobby{ID: "1", Ranked: boolPtr(true)}
	b := Lobby{ID: "1", Ranked: boolPtr(true)}
	require.True(t, a.Equal(b), "equal pointed-to values")

	b.Ranked = boolPtr(false)
	require.False(t, a.Equal(b))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"123456789", "123456789", false},
		{"aoe2de://0/123456789", "123456789", false},
		{"  aoe2de://0/42  ", "42", false},
		{"aoe2de://1/42", "", true},
		{"aoe2de://0/abc", "", true},
		{"", "", true},
		{"12a", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseID(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestKey_UnmarshalJSON(t *testing.T) {
	var keys []Key
	require.NoError(t, json.Unmarshal([]byte(`["7", 8, "abc"]`), &keys))
	require.Equal(t, []Key{"7", "8", "abc"}, keys)

	for _, bad := range []string{`[1.5]`, `[true]`, `[{}]`, `[null]`} {
		require.Error(t, json.Unmarshal([]byte(bad), &keys), bad)
	}
}

func TestLobby_IDAcceptsStringOrInteger(t *testing.T) {
	req := require.New(t)
	var fromInt, fromString Lobby
	req.NoError(json.Unmarshal([]byte(`{"id":42,"name":"a"}`), &fromInt))
	req.NoError(json.Unmarshal([]byte(`{"id":"42","name":"a"}`), &fromString))

	req.Equal(Key("42"), fromInt.ID)
	req.True(fromInt.Equal(fromString))

	out, err := json.Marshal(fromInt)
	req.NoError(err)
	req.Contains(string(out), `"id":"42"`)
}
