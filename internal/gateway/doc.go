// Package gateway orchestrates the adt-gateway server components.
//
// # Overview
//
// The Gateway owns the session manager, the request router, the MCP stream
// transport, the optional call ledger and metrics registry, and the HTTP
// server they share. New wires them from a config.Config; Run listens and
// blocks until its context is canceled.
//
// Backend credential defaults come from the SAP_* environment variables and
// are merged under each login's overrides.
//
// # HTTP Endpoints
//
//	GET  /sse               MCP event stream (one session per stream)
//	POST /messages          JSON-RPC requests for a session
//	GET  /health            liveness
//	GET  /health/ready      readiness: 503 while draining or when the ledger fails
//	GET  /metrics           Prometheus exposition (metrics.path)
//	GET  /api/sessions      active sessions
//	GET  /api/calls         recent ledger entries
//	GET  /api/calls/stats   aggregated ledger statistics
//
// With auth.jwt_secret set, the stream endpoints need a valid token and the
// /api routes additionally need the admin role.
//
// # Shutdown
//
// Shutdown marks the gateway as draining, closes every session (which ends
// the open streams) and refuses new ones, shuts the HTTP server down within
// server.shutdown_timeout, and closes the ledger.
package gateway
