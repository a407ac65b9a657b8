// Package store holds the current lobby records in memory, keyed by lobby id.
// Every entry carries the time it was last seen; Sweep drops entries that
// have not been seen within the TTL.
//
// Mutations (Upsert, Replace, Patch, Remove, Clear, Retain, Sweep) are made by the single
// goroutine that decodes the upstream feed. Get and List may be called from
// any number of goroutines concurrently.
package store
