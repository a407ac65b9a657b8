// Package lobby defines the lobby record shared by the feed decoder, the
// cache and every consumer. Records are opaque, wholesale-replaceable values:
// the cache never merges fields of two sightings of the same lobby.
package lobby
