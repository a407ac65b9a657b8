// Package watch bounds how many consumers may follow live lobbies at once and
// drives the per-watcher render loop.
//
// Admission is keyed by lobby id. At most MaxKeys distinct ids are tracked and
// each id holds at most MaxPerKey watchers, newest first. When a key is full
// the oldest watcher is cancelled to make room for the new one. This is the
// one deliberate drop policy of lobbyisup; RejectNewest keeps existing
// watchers instead.
//
// A Session owns one Handle. It waits on the first of handle cancellation,
// its absolute deadline, a cache change notification, the refresh tick and
// context cancellation, and re-reads the cache on every wakeup.
package watch
