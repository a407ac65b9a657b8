// Package upstream keeps a websocket session to the lobby feed alive.
//
// A Supervisor dials the feed, runs one reader and one writer goroutine per
// session and reconnects after a fixed delay plus jitter whenever the session
// ends for any reason other than shutdown. The reader decodes every frame with
// a feed.Decoder and applies it to the Sink in arrival order; ping echoes and
// keepalives go through a bounded outbound queue that blocks when full.
//
// Transport failures never leave this package: they are logged, counted and
// answered with a reconnect. Run returns only after Shutdown or context
// cancellation.
package upstream
