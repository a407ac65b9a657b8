// Package metrics defines the Prometheus collectors of lobbyisup.
//
// A *Metrics is created once by the binary and handed to the cache, the
// upstream supervisor and the watch admission table. Every method is safe to
// call on a nil *Metrics, which is how tests run the core without a registry.
package metrics
