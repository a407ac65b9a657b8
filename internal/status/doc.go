// Package status inspects a running lobbyisup instance through its /metrics
// endpoint.
//
// Fetch downloads the Prometheus text exposition, parses it with expfmt into
// client_model metric families and condenses the lobbyisup series into a
// Report: connection state, cached lobbies, admission usage, frames by kind,
// parse errors, disconnects by reason and watch rejections. Report.Write
// renders it for the `lobbyisup status` command.
package status
