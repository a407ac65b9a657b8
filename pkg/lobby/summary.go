package lobby

import "slices"

// Summary is the presentation-neutral view of a lobby that watchers render
// and compare. Two sightings with equal summaries produce no visible change.
type Summary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	NumPlayers int64    `json:"num_players"`
	NumSlots   int64    `json:"num_slots"`
	Status     string   `json:"status"`
	Players    []string `json:"players"`
	Link       string   `json:"link"`
	JoinURL    string   `json:"join_url"`
}

// Summarize projects key's record into a Summary. Player names are sorted.
func Summarize(key string, l Lobby) Summary {
	return Summary{
		ID:         key,
		Name:       l.Name,
		NumPlayers: l.NumPlayers,
		NumSlots:   l.NumSlots,
		Status:     l.Status,
		Players:    l.PlayerNames(),
		Link:       Link(key),
		JoinURL:    JoinURL(key),
	}
}

// Equal reports value equality, including player order.
func (s Summary) Equal(other Summary) bool {
	return s.ID == other.ID &&
		s.Name == other.Name &&
		s.NumPlayers == other.NumPlayers &&
		s.NumSlots == other.NumSlots &&
		s.Status == other.Status &&
		s.Link == other.Link &&
		s.JoinURL == other.JoinURL &&
		slices.Equal(s.Players, other.Players)
}
