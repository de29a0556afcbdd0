package receiver

import (
	"slices"
	"sort"
	"strings"
)

// ManufacturerLyngdorf is the manufacturer string Lyngdorf receivers
// report over SSDP and the control port.
const ManufacturerLyngdorf = "Lyngdorf"

// ControlPort is the TCP port of the Lyngdorf control protocol.
const ControlPort = 84

// DefaultDeviceName names a receiver when nothing better is known.
const DefaultDeviceName = "Lyngdorf MP-60"

// Zone names.
const (
	ZoneMain = "Main Zone"
	ZoneB    = "Zone B"
)

// Volume range accepted by the receiver, in dB.
const (
	VolumeMin = -99.9
	VolumeMax = 20.0
)

// Feature is a capability a zone of a model supports.
type Feature string

// Zone features.
const (
	FeatureVolume    Feature = "volume"
	FeatureMute      Feature = "mute"
	FeaturePower     Feature = "power"
	FeatureSource    Feature = "source"
	FeatureSoundMode Feature = "sound_mode"
)

// ZoneSpec describes one controllable zone of a model.
type ZoneSpec struct {
	Name     string    `json:"name"`
	Prefix   string    `json:"prefix"` // command prefix, "" for the main zone
	Features []Feature `json:"features"`
}

// Model is a supported receiver model.
type Model struct {
	Name         string     `json:"model"`
	Manufacturer string     `json:"manufacturer"`
	Port         int        `json:"port"`
	Zones        []ZoneSpec `json:"zones"`
	VolumeMin    float64    `json:"volume_min"`
	VolumeMax    float64    `json:"volume_max"`
}

// IsZero reports whether m is the empty Model.
func (m Model) IsZero() bool {
	return m.Name == ""
}

// Zone returns the zone with the given name.
func (m Model) Zone(name string) (ZoneSpec, bool) {
	for _, z := range m.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return ZoneSpec{}, false
}

func (m Model) clone() Model {
	out := m
	out.Zones = make([]ZoneSpec, len(m.Zones))
	for i, z := range m.Zones {
		z.Features = slices.Clone(z.Features)
		out.Zones[i] = z
	}
	return out
}

// registry is keyed by lower-case model name.
var registry = map[string]Model{
	"mp-60": {
		Name:         "MP-60",
		Manufacturer: ManufacturerLyngdorf,
		Port:         ControlPort,
		Zones: []ZoneSpec{
			{Name: ZoneMain, Features: []Feature{FeatureVolume, FeatureMute, FeaturePower, FeatureSource, FeatureSoundMode}},
			{Name: ZoneB, Prefix: "Z", Features: []Feature{FeatureVolume, FeatureMute, FeaturePower, FeatureSource}},
		},
		VolumeMin: VolumeMin,
		VolumeMax: VolumeMax,
	},
}

// LookupModel returns the registry entry for name, ignoring case and
// surrounding whitespace. It never touches the network.
func LookupModel(name string) (Model, bool) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Model{}, false
	}
	return m.clone(), true
}

// Models returns every supported model sorted by name.
func Models() []Model {
	out := make([]Model, 0, len(registry))
	for _, m := range registry {
		out = append(out, m.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SupportedManufacturers returns the distinct manufacturers of supported
// models.
func SupportedManufacturers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range registry {
		if _, ok := seen[m.Manufacturer]; ok {
			continue
		}
		seen[m.Manufacturer] = struct{}{}
		out = append(out, m.Manufacturer)
	}
	sort.Strings(out)
	return out
}
