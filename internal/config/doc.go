// Package config loads and watches the lobbyisup configuration file.
//
// Top-level types:
//   - Config{Feed, Cache, Watch, HTTP, Log}: full tree parsed from YAML
//   - FeedConfig: upstream url, wire variant, subscriptions, upgrade headers,
//     keepalive, retry delay and jitter, idle and write timeouts, queue depth
//   - CacheConfig: entry ttl and the staleness threshold
//   - WatchConfig: admission limits, eviction policy, session length, refresh
//   - HTTPConfig: listen port and API-key auth; Key() resolves from the environment
//   - LogConfig: level and format
//
// Load(path) applies defaults, overlays the YAML file when path is set, then
// the LOBBYISUP_* environment overrides, and validates the result.
//
// Watch(ctx, path, onChange) uses fsnotify and calls onChange with each
// successfully reloaded Config. The watch is re-added after every event so
// atomic-save editors keep working.
package config
