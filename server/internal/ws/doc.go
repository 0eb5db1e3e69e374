// Package ws implements the WebSocket data stream endpoint.
//
// Hub is both the connection handler and the broadcaster:
//
//   - New(registry, generator, streamer, opts) creates a Hub.
//   - Hub.ServeHTTP upgrades the connection, opens and registers a session,
//     sends the welcome message, starts the session's streamer, then echoes
//     every inbound text frame until the connection ends. The close path
//     removes the session from the registry and stops its streamer before
//     ServeHTTP returns.
//   - Hub.Broadcast serialises a value once and writes it to every session
//     open at call time, with bounded parallelism.
//   - Hub.Run(ctx) blocks until ctx is cancelled, then closes every session
//     with 1001 (going away).
//
// Only text frames are accepted; a binary frame closes the session with 1003.
// A read error other than a close frame is a transport error: it is logged
// and the session is closed. Send failures are logged and the message is
// dropped; the connection stays open.
//
// Message formats are owned by the generator package. Broadcast payloads are
// sent exactly as json.Marshal renders them.
package ws
