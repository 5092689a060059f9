// Package store provides the call ledger for the gateway using SQLite.
//
// Every routed tool request is recorded as a CallRecord: the session it
// arrived on, the operation name, when it started, how long it took, and
// the error kind when it failed. The ledger backs the call statistics API
// and is pruned by a retention loop in the gateway.
//
// # Interfaces
//
//   - CallStore: save, fetch, list, aggregate, and prune call records
//
// SQLiteStore is the production implementation. MockStore is an in-memory
// implementation for tests and can inject write failures through SaveErr.
//
// # SQLite Configuration
//
// File databases run in WAL mode with a busy timeout. The pool is limited to
// a single connection, which also keeps an in-memory database alive:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Default: ~/.local/share/adt-gateway/calls.db
//   - Testing: :memory: (in-memory database)
//
// Timestamps are stored as fixed-width UTC strings so range filters compare
// lexicographically.
//
// # Migrations
//
// The schema is created on open. Column additions are applied by
// runMigrations, which checks pragma_table_info first and is safe to run on
// every start.
package store
