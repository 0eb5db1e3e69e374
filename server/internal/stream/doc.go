// Package stream pushes generated samples to one session on a fixed cadence.
//
// Streamer.Start launches one goroutine per session: it waits InitialDelay,
// sends a sample, then sends one every Period. A tick that fails to generate
// or send is logged and skipped; the next tick runs as scheduled. The
// goroutine ends when the returned stop function is called, when the parent
// context is cancelled, or when a tick finds the session no longer open.
//
// The stop function blocks until the goroutine has exited, so once it returns
// no further sample can reach the session.
package stream
