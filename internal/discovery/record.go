package discovery

import (
	"maps"
	"net/url"
	"strings"
	"time"
)

// Keys of Record.UPnP, as named in the device description.
const (
	AttrFriendlyName = "friendlyName"
	AttrManufacturer = "manufacturer"
	AttrModelName    = "modelName"
	AttrSerialNumber = "serialNumber"
	AttrUDN          = "UDN"
)

// Keys of Record.Headers. SSDP header names are stored lower-case; HeaderHost
// is the address the reply came from.
const (
	HeaderHost     = "_host"
	HeaderLocation = "location"
	HeaderST       = "st"
	HeaderUSN      = "usn"
	HeaderServer   = "server"
)

// Record describes one device found by SSDP. Records are treated as
// immutable: the cache and searcher hand out copies.
type Record struct {
	UDN      string            `json:"udn"`
	Location string            `json:"location"`
	ST       string            `json:"st"`
	UPnP     map[string]string `json:"upnp"`
	Headers  map[string]string `json:"headers"`
	SeenAt   time.Time         `json:"seen_at"`
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.UPnP = maps.Clone(r.UPnP)
	r.Headers = maps.Clone(r.Headers)
	return r
}

// FriendlyName returns the friendlyName attribute.
func (r Record) FriendlyName() string { return r.UPnP[AttrFriendlyName] }

// Manufacturer returns the manufacturer attribute with its original case.
func (r Record) Manufacturer() string { return r.UPnP[AttrManufacturer] }

// ModelName returns the modelName attribute.
func (r Record) ModelName() string { return r.UPnP[AttrModelName] }

// SerialNumber returns the serialNumber attribute as received.
func (r Record) SerialNumber() string { return r.UPnP[AttrSerialNumber] }

// LocationHostname returns the hostname of Location, or "".
func (r Record) LocationHostname() string {
	return Hostname(r.Location)
}

// Host is the address to connect to: the reply's source address when
// known, else the Location hostname.
func (r Record) Host() string {
	if h := r.Headers[HeaderHost]; h != "" {
		return h
	}
	return r.LocationHostname()
}

// DisplayName is the friendly name, falling back to the Location hostname.
func (r Record) DisplayName() string {
	if n := strings.TrimSpace(r.FriendlyName()); n != "" {
		return n
	}
	return r.LocationHostname()
}

// Hostname returns the host part of a URL without port or brackets, or ""
// if rawURL does not parse.
func Hostname(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
