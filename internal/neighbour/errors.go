package neighbour

import "errors"

var (
	// ErrNotFound is returned when the neighbour table has no usable entry
	// for the host.
	ErrNotFound = errors.New("neighbour: mac address not found")

	// ErrInvalidMAC is returned when a table entry is not a 48-bit MAC.
	ErrInvalidMAC = errors.New("neighbour: invalid mac address")
)
