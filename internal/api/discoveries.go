package api

import (
	"net/http"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
)

// handleListDiscoveries returns the supported receivers seen over SSDP
// that are not configured yet.
func (s *Server) handleListDiscoveries(w http.ResponseWriter, r *http.Request) {
	records := []discovery.Record{}
	if s.discoveries != nil {
		configured, err := s.entries.ConfiguredIDs(r.Context(), false)
		if err != nil {
			s.logger.Error("listing configured entries failed", "error", err)
			writeInternalError(w, "failed to list discoveries")
			return
		}
		records = discovery.Filter(s.discoveries.ByServiceTypes(s.serviceTypes), configured)
	}
	writeJSON(w, http.StatusOK, map[string]any{"discoveries": records, "count": len(records)})
}
