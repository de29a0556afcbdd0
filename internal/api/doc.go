// Package api provides the HTTP REST API and WebSocket server for Lyngdorf Core.
//
// It exposes the discovery candidates, the configuration flows and the
// stored config entries to user interfaces, and streams flow results and
// receiver state over a WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
