// Package session holds the per-connection state for the data stream and the
// registry that indexes every live connection.
//
// A Session moves through three states:
//
//	CONNECTING -> OPEN -> CLOSED
//
// CONNECTING sessions may also go straight to CLOSED when the connection dies
// before the handler registers them. Every path to CLOSED closes the
// underlying connection and runs the session's stop function exactly once,
// which is how the per-session streamer is cancelled.
//
// Session.SendText and Session.SendJSON serialise writes on the connection;
// gorilla/websocket supports a single concurrent writer. Close frames go
// through WriteControl, which may run alongside a blocked writer.
//
// Registry is a mutex-guarded map keyed by session ID. Snapshot returns a copy
// of the current sessions so callers can iterate without holding the lock.
package session
