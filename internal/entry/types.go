package entry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source records how an entry was created.
type Source string

const (
	SourceUser     Source = "user"
	SourceSSDP     Source = "ssdp"
	SourceIgnore   Source = "ignore"
	SourceUnignore Source = "unignore"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceUser, SourceSSDP, SourceIgnore, SourceUnignore:
		return true
	}
	return false
}

// Data holds the identity of the configured receiver.
type Data struct {
	DeviceID     string `json:"device_id"`
	MAC          string `json:"mac"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Host         string `json:"host,omitempty"`
	UDN          string `json:"udn,omitempty"`
}

// ConfigEntry is a persisted configuration record. It is written once by
// the flow that creates it.
type ConfigEntry struct {
	ID        string         `json:"id"`
	UniqueID  string         `json:"unique_id"`
	Source    Source         `json:"source"`
	Title     string         `json:"title"`
	Data      Data           `json:"data"`
	Options   map[string]any `json:"options"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsIgnored reports whether the entry is an ignore placeholder.
func (e *ConfigEntry) IsIgnored() bool {
	return e.Source == SourceIgnore
}

// DeepCopy returns an independent copy of the entry.
func (e *ConfigEntry) DeepCopy() *ConfigEntry {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Options = deepCopyMap(e.Options)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// GenerateID returns a new entry ID.
func GenerateID() string {
	return uuid.New().String()
}

// Validate checks the fields every stored entry needs.
// NormaliseUniqueID returns the stored form of a unique ID. MAC addresses
// in any notation become lower-case colon-separated; anything else is
// trimmed and lower-cased.
func NormaliseUniqueID(id string) string {
	id = strings.TrimSpace(id)
	if hw, err := net.ParseMAC(id); err == nil && len(hw) == 6 {
		return hw.String()
	}
	return strings.ToLower(id)
}

func Validate(e *ConfigEntry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if e.UniqueID == "" {
		return fmt.Errorf("%w: unique id is required", ErrInvalidEntry)
	}
	if !e.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, e.Source)
	}
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	return nil
}
