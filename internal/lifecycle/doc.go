// Package lifecycle owns the backend client of one gateway session.
//
// A Manager starts Unauthenticated. Login merges the caller's overrides over
// the process defaults, builds a new client (using the probe's discovered
// login path when one is cached), binds a fresh operation registry around it,
// and performs the handshake. The client, its credentials, and the registry
// are published together, so a registry obtained before a login never reaches
// the client created by it, and vice versa.
package lifecycle
