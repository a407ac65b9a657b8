// Package bus implements the change notification bus of the lobby cache.
//
// A notification carries no payload. It only tells a subscriber that the
// cache changed and should be re-read. Each subscription buffers at most one
// pending notification, so bursts coalesce and a slow subscriber never blocks
// the publisher. Subscribers that need to tell "changed since I last looked"
// apart from "woken" compare Generation values instead of counting wakeups.
package bus
