// Package discovery finds supported receivers on the local network with
// SSDP and keeps the results for the onboarding flows.
//
// The pieces are:
//   - Searcher: sends M-SEARCH requests and fetches device descriptions
//   - Record: an immutable description of one discovered device
//   - Filter: drops configured and unsupported records
//   - Cache: the latest record per UDN, indexed by search target
//   - Scanner: runs periodic searches, announces new supported devices on
//     MQTT and hands them to a discovery handler
//
// Example:
//
//	searcher := discovery.NewSearcher(cfg.Discovery)
//	scanner := discovery.NewScanner(discovery.ScannerConfig{
//	    Finder:     searcher,
//	    Cache:      discovery.NewCache(),
//	    Publisher:  mqttClient,
//	    Configured: func(ctx context.Context) (map[string]struct{}, error) {
//	        return registry.ConfiguredIDs(ctx, true)
//	    },
//	})
//	scanner.SetHandler(flows.HandleDiscovery)
//	scanner.Start(ctx)
//	defer scanner.Stop()
package discovery
