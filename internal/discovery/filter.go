package discovery

import (
	"strings"

	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

// IsSupportedManufacturer reports whether name matches a manufacturer in
// the model registry, ignoring case.
func IsSupportedManufacturer(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, m := range receiver.SupportedManufacturers() {
		if strings.EqualFold(name, m) {
			return true
		}
	}
	return false
}

// Filter returns the records whose UDN is not in configured and whose
// manufacturer is supported, in their original order. Filtering its own
// output returns the same sequence.
func Filter(records []Record, configured map[string]struct{}) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := configured[r.UDN]; ok {
			continue
		}
		if !IsSupportedManufacturer(r.Manufacturer()) {
			continue
		}
		out = append(out, r)
	}
	return out
}
