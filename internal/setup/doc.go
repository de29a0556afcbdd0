// Package setup brings configured receivers online.
//
// A Manager turns each stored config entry into a live receiver
// connection: it resolves the model (stored name first, then a probe of
// the host), connects, and relays state and commands between the
// receiver and the rest of the system:
//
//   - lyngdorf/entry/{id}/state carries a retained StateMessage
//   - lyngdorf/entry/{id}/command accepts CommandMessage payloads
//   - numeric state such as volume is written to InfluxDB
//
// Ignored entries are never set up.
package setup
