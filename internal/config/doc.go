// Package config loads the bridge's TOML configuration.
//
// # Overview
//
// Both sides read the same file. The Responder uses host, port and the log
// shipping cadence; the Initiator uses the candidate ports, the poll,
// broadcast and status cadences, and auto_connect.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/eaglebridge/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - host: 127.0.0.1
//   - port: 8080
//   - candidate_ports: 8080 through 8089
//   - service_name: Eagle2Ae
//   - poll_interval_ms: 500
//   - broadcast_interval_ms: 5000
//   - status_interval_ms: 5000
//   - log_ship_interval_ms: 2000
//   - log_dir: ~/.local/share/eaglebridge/logs
//   - log_level: info
//   - auto_connect: true
//
// # TOML Format
//
//	host = "127.0.0.1"
//	port = 8080
//	candidate_ports = [8080, 8081, 8082]
//	poll_interval_ms = 500
//	log_dir = "~/.local/share/eaglebridge/logs"
//	log_level = "debug"
//
// # Validation
//
// Ports outside 1024-65535 are rejected with settings.ErrPortOutOfRange;
// they are never clamped. An unparseable log_level is an error. A missing
// file is not.
package config
