// Package config handles configuration loading for adt-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ADT_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/adt-gateway/gateway.yaml
//  3. ~/.config/adt-gateway/gateway.yaml
//
// A missing file is not an error: the gateway runs with Default(). Files
// ending in .toml are decoded as TOML; anything else is YAML. Fields absent
// from the file keep their default values.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${ADT_GATEWAY_JWT_SECRET}"
//
// Backend credentials are never read from this file. They come from
// SAP_URL, SAP_USER, SAP_PASSWORD and friends, or from the login tool.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "5s"
//	  keepalive_interval: "15s"
//	probe:
//	  attempt_timeout: "3s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:3000"
//	logging:
//	  level: "info"        # debug, info, warn, error
//	  format: "text"       # text or json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//	database:
//	  path: "~/.local/share/adt-gateway/calls.db"   # empty disables the ledger
//	  retention: "720h"
//	auth:
//	  jwt_secret: ""       # empty disables the token guard
//	probe:
//	  enabled: true
//	backend:
//	  request_timeout: "60s"
//	sessions:
//	  queue_size: 32
//	  event_buffer: 64
package config
