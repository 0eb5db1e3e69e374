// Package feed consumes the datastream WebSocket endpoint.
//
// Client dials the server, hands every text frame to a callback and sends
// text frames on request. Book keeps the latest country record per
// countryCode: a JSON array replaces the whole book, a data message or a bare
// record with a countryCode is merged into the existing entry, and anything
// else (welcome, echo, broadcasts) leaves it untouched.
//
// There is no reconnect loop; Run returns when the connection ends.
package feed
