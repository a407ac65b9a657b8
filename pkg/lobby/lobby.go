package lobby

import (
	"reflect"
	"slices"

	"github.com/samber/lo"
)

// Upstream identifiers for the Age of Empires II: Definitive Edition lobby feed.
const (
	AOE2DEAppID    int64 = 813780
	AOE2DELocation       = "#aoe2de-lobbies"
)

// UnknownPlayer is rendered in place of a player that has no published name.
const UnknownPlayer = "Unknown"

// Lobby is one game session as last published by the feed.
// Optional settings are pointers so an absent field stays distinguishable
// from its zero value.
type Lobby struct {
	ID                Key      `json:"id"`
	MatchID           int64    `json:"matchId"`
	AppID             int64    `json:"appId"`
	Name              string   `json:"name"`
	NumPlayers        int64    `json:"numPlayers"`
	NumSlots          int64    `json:"numSlots"`
	Status            string   `json:"status"`
	Full              bool     `json:"full"`
	IsLobby           bool     `json:"isLobby"`
	Location          string   `json:"location"`
	Cheats            *bool    `json:"cheats,omitempty"`
	FullTechTree      *bool    `json:"fullTechTree,omitempty"`
	GameType          *string  `json:"gameType,omitempty"`
	GameTypeID        *int64   `json:"gameTypeId,omitempty"`
	Leaderboard       *string  `json:"leaderboard,omitempty"`
	Resources         *string  `json:"resources,omitempty"`
	AverageRating     *int64   `json:"averageRating,omitempty"`
	LockSpeed         *bool    `json:"lockSpeed,omitempty"`
	LockTeams         *bool    `json:"lockTeams,omitempty"`
	MapSize           *string  `json:"mapSize,omitempty"`
	Pop               *int64   `json:"pop,omitempty"`
	Ranked            *bool    `json:"ranked,omitempty"`
	RatingTypeID      *int64   `json:"ratingTypeId,omitempty"`
	Server            *string  `json:"server,omitempty"`
	SharedExploration *bool    `json:"sharedExploration,omitempty"`
	Speed             *string  `json:"speed,omitempty"`
	StartingAge       *string  `json:"startingAge,omitempty"`
	Turbo             *bool    `json:"turbo,omitempty"`
	Victory           *string  `json:"victory,omitempty"`
	Visibility        *string  `json:"visibility,omitempty"`
	NumSpectators     *int64   `json:"numSpectators,omitempty"`
	Started           *int64   `json:"started,omitempty"`
	Opened            *int64   `json:"opened,omitempty"`
	Players           []Player `json:"players"`
}

// Player is one occupied or open slot in a lobby.
type Player struct {
	Slot         int64   `json:"slot"`
	SlotType     int64   `json:"slotType"`
	SteamID      *string `json:"steamId,omitempty"`
	ProfileID    *int64  `json:"profileId,omitempty"`
	Name         *string `json:"name,omitempty"`
	Avatar       *string `json:"avatar,omitempty"`
	AvatarFull   *string `json:"avatarfull,omitempty"`
	AvatarMedium *string `json:"avatarmedium,omitempty"`
	Color        *int64  `json:"color,omitempty"`
	Team         *int64  `json:"team,omitempty"`
	Civ          *int64  `json:"civ,omitempty"`
	CivName      *string `json:"civName,omitempty"`
	Clan         *string `json:"clan,omitempty"`
	CountryCode  *string `json:"countryCode,omitempty"`
	Rating       *int64  `json:"rating,omitempty"`
}

// DisplayName returns the player's name, or UnknownPlayer when none was published.
func (p Player) DisplayName() string {
	if p.Name == nil {
		return UnknownPlayer
	}
	return *p.Name
}

// PlayerNames returns the display names of every player, sorted ascending.
func (l Lobby) PlayerNames() []string {
	names := lo.Map(l.Players, func(p Player, _ int) string { return p.DisplayName() })
	slices.Sort(names)
	return names
}

// Equal reports whether two records are identical in every field.
func (l Lobby) Equal(other Lobby) bool {
	return reflect.DeepEqual(l, other)
}
