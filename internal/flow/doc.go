// Package flow runs the onboarding flows that turn a discovered or
// manually entered receiver into a configuration entry.
//
// A flow starts from one of four sources:
//
//	user      pick a discovered receiver, or fall through to manual entry
//	ssdp      a receiver announced itself; resolve its MAC, then confirm
//	ignore    store a placeholder that suppresses rediscovery
//	unignore  drop a placeholder and confirm the receiver again
//
// and moves between steps until it aborts or creates an entry:
//
//	user ──► manual ──► create_entry
//	  └──────────────► create_entry
//	ssdp ─────► confirm ──► create_entry
//	unignore ─► confirm ──► create_entry
//
// The identity gathered so far is an Identity value carried by the flow
// and built up by small pure helpers. The MAC address is the entry's
// unique ID: no entry is created without one, and the same check for an
// existing entry is shared by every path.
//
// The manual path probes the receiver before resolving its MAC. The probe
// connection is what puts the receiver into the neighbour table, so the
// two run in that order with a short settle delay in between.
package flow
