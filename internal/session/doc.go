// Package session tracks the gateway's live streaming sessions.
//
// Each Session owns a bounded job queue drained by one worker goroutine, an
// output event channel consumed by the stream writer, and a lifecycle.Manager
// for its backend client. Requests for one session are processed strictly in
// the order they were accepted; different sessions run concurrently.
//
// Closing a session removes it from the Manager first, so no new request can
// be routed to it, then cancels its context, waits for the worker to stop, and
// drops the backend client.
package session
