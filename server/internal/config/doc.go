// Package config loads the datastream server configuration from config.yaml.
//
// Config sections:
//   - Server.HTTPPort       - port for /ws, /api/v1 and /metrics (default 8080)
//   - Server.WSPath         - WebSocket endpoint path (default /ws)
//   - Server.WriteTimeout   - deadline for one client write (default 10s)
//   - Server.PongWait       - keepalive timeout; pings at 9/10 of it (default 60s)
//   - Server.ReadLimit      - max inbound message bytes (default 64 KiB)
//   - Server.AllowedOrigins - upgrade Origin allow-list; empty allows all
//   - Stream.InitialDelay   - delay before a session's first sample (default 1s)
//   - Stream.Period         - interval between samples (default 2s)
//   - Generator.Countries   - ISO codes samples are drawn from
//   - Generator.Seed        - fixed random seed; 0 seeds from the clock
//   - Broadcast.Concurrency - parallel writes per broadcast (default 32)
//   - Log.Level             - debug | info | warn | error (default info)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file through fsnotify whenever it is
// written and hands the new Config to onChange.
package config
