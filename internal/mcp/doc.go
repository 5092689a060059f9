// Package mcp serves the gateway's tools to MCP clients over the SSE transport.
//
// # Transport
//
//	GET  /sse                       opens a session and streams responses
//	POST /messages?sessionId=<id>   submits one JSON-RPC request
//
// The first event on a stream is "endpoint", whose data is the message URL
// for the new session. Responses follow as "message" events in the order the
// requests were accepted. Idle streams receive ": keepalive" comments.
//
// A POST is acknowledged with 202 before the request runs. Other outcomes:
//
//   - 400: missing sessionId or malformed JSON-RPC
//   - 404: the session does not exist or has closed
//   - 415: the body is not application/json
//   - 503: the session's queue is full
//
// # Methods
//
// initialize, ping, tools/list, and tools/call are answered. Notifications
// are accepted without a response.
//
// # Routing
//
// Router resolves a call against the calling session. healthcheck is
// answered directly. login first runs the connectivity probe against the
// effective address, then rebuilds the session's backend client. Everything
// else is dispatched through the session's current registry.
//
// Failures are classified into a Kind and returned as JSON-RPC errors with
// data.kind set:
//
//	SessionNotFound       -32001
//	UnknownOperation      -32601
//	InvalidArguments      -32602
//	AuthenticationFailed  -32603
//	BackendError          -32603
//	SerializationError    -32603
//
// Every routed call produces an Observation for the metrics and ledger
// observers. Observer failures are logged and never reach the client.
package mcp
