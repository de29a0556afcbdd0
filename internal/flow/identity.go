package flow

import (
	"fmt"
	"strings"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

// Identity is what a flow knows about the receiver it is setting up.
type Identity struct {
	Host         string `json:"host,omitempty"`
	MAC          string `json:"mac,omitempty"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Name         string `json:"name,omitempty"`
	Location     string `json:"location,omitempty"`
	UDN          string `json:"udn,omitempty"`
}

// identityFromRecord reads an identity from an SSDP record. The serial
// number is lower-cased; the manufacturer keeps its case. The MAC is left
// for the caller to resolve.
func identityFromRecord(r discovery.Record) Identity {
	name := strings.TrimSpace(r.FriendlyName())
	if name == "" {
		name = r.LocationHostname()
	}
	if name == "" {
		name = receiver.DefaultDeviceName
	}
	return Identity{
		Host:         r.Host(),
		Model:        r.ModelName(),
		Manufacturer: r.Manufacturer(),
		SerialNumber: strings.ToLower(r.SerialNumber()),
		Name:         name,
		Location:     r.Location,
		UDN:          r.UDN,
	}
}

// withModel fills model and manufacturer from a resolved model.
func (id Identity) withModel(m receiver.Model) Identity {
	id.Model = m.Name
	id.Manufacturer = m.Manufacturer
	return id
}

// withEntryData fills the fields a stored entry knows, keeping any already set.
func (id Identity) withEntryData(d entry.Data) Identity {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&id.Host, d.Host)
	fill(&id.Model, d.Model)
	fill(&id.Manufacturer, d.Manufacturer)
	fill(&id.SerialNumber, d.SerialNumber)
	fill(&id.UDN, d.UDN)
	return id
}

// Title is the explicit name if set, else the hostname of the source
// location, else the default device name.
func Title(id Identity) string {
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	if h := discovery.Hostname(id.Location); h != "" {
		return h
	}
	return receiver.DefaultDeviceName
}

// buildEntry turns a complete identity into an entry keyed by its MAC.
func buildEntry(id Identity, source entry.Source, options map[string]any) (*entry.ConfigEntry, error) {
	if id.MAC == "" {
		return nil, fmt.Errorf("%w: no mac address for %q", ErrIdentityIncomplete, id.Host)
	}
	if options == nil {
		options = map[string]any{}
	}
	return &entry.ConfigEntry{
		UniqueID: id.MAC,
		Source:   source,
		Title:    Title(id),
		Data: entry.Data{
			DeviceID:     id.MAC,
			MAC:          id.MAC,
			Model:        id.Model,
			Manufacturer: id.Manufacturer,
			SerialNumber: id.SerialNumber,
			Host:         id.Host,
			UDN:          id.UDN,
		},
		Options: options,
	}, nil
}
