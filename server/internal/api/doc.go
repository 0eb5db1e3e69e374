// Package api implements the HTTP admin API for the datastream server.
//
// New(hub) returns an http.Handler that serves:
//
//	GET    /api/v1/health          - status, session count, generated_at
//	GET    /api/v1/sessions        - registered sessions, oldest first
//	DELETE /api/v1/sessions/{id}   - close one session; 404 if unknown
//	POST   /api/v1/broadcast       - send the JSON body to every open session
//
// All endpoints respond with Content-Type: application/json (DELETE returns
// 204 with no body) and 405 for unsupported methods. Broadcast bodies must be
// valid JSON no larger than 1 MiB; they are forwarded byte-for-byte after
// compaction.
package api
