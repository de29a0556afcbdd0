package discovery

import "errors"

var (
	// ErrInvalidResponse is returned for an SSDP reply that is not an HTTP
	// response with ST and LOCATION headers.
	ErrInvalidResponse = errors.New("discovery: invalid ssdp response")

	// ErrDescription is returned when a device description cannot be
	// fetched or parsed.
	ErrDescription = errors.New("discovery: device description unavailable")

	// ErrNotFound is returned by Cache lookups that miss.
	ErrNotFound = errors.New("discovery: record not found")
)
