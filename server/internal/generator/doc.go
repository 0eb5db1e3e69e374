// Package generator produces the payloads pushed to data stream clients.
//
// Generator is the contract the connection handler and the streamer depend on:
// a welcome message per session, an echo response per inbound message and a
// periodic sample. Mock is the built-in implementation; it emits randomised
// country records keyed by ISO country code so a client can merge updates by
// countryCode.
//
// Every timestamp is the injected clock's time in UTC, formatted as RFC 3339
// with nanoseconds.
package generator
