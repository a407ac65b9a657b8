// Package cache owns the shared lobby state of a lobbyisup process: the TTL
// store, the change bus, the watch admission table and the time of the last
// applied batch.
//
// One Cache is built by the caller and passed by handle to the upstream
// supervisor (which feeds it through Apply) and to every consumer (which
// reads it through Lookup and SubscribeChanges).
package cache
