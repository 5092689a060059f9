// Package auth guards the gateway's HTTP endpoints with HS256 JWT tokens.
//
// The guard is optional. When auth.jwt_secret is configured, the stream
// endpoint, the message endpoint, and the operator API require a token; the
// health and metrics endpoints never do.
//
// # Tokens
//
// Tokens carry:
//   - sub: the client name, logged with each session
//   - exp/iat: expiry and issue time
//   - roles: optional, "admin" unlocks the operator API
//
// Mint one with the CLI:
//
//	adt-gateway token --subject my-editor --ttl 720h
//
// # Transport
//
// Clients send "Authorization: Bearer <token>". EventSource clients that
// cannot set headers may append ?token=<token> to the stream URL instead.
//
// # Context
//
// HTTPAuthMiddleware attaches an AuthContext to the request context;
// handlers read it back with FromContext.
package auth
