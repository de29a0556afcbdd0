package neighbour

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Path is the lookup path chosen for a host.
type Path int

const (
	PathIPv4 Path = iota
	PathIPv6
	PathHostname
)

func (p Path) String() string {
	switch p {
	case PathIPv4:
		return "ipv4"
	case PathIPv6:
		return "ipv6"
	case PathHostname:
		return "hostname"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// Classify picks the lookup path for host. IPv4 literals are checked
// first, then IPv6 literals (with or without a zone), then everything else
// is a hostname.
func Classify(host string) Path {
	host = strings.TrimSpace(host)
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Is4() {
			return PathIPv4
		}
		return PathIPv6
	}
	return PathHostname
}

// NormaliseIPv6 drops the zone from an IPv6 literal and returns its
// canonical form. Input that does not parse is returned without anything
// after the first '%'.
func NormaliseIPv6(addr string) string {
	addr = strings.TrimSpace(addr)
	if a, err := netip.ParseAddr(addr); err == nil {
		return a.WithZone("").String()
	}
	host, _, _ := strings.Cut(addr, "%")
	return host
}

// FormatMAC parses a 48-bit MAC in any notation net.ParseMAC accepts and
// returns it lower-case and colon separated.
func FormatMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	return hw.String(), nil
}

// isZeroMAC reports an incomplete ARP entry.
func isZeroMAC(mac string) bool {
	return strings.Trim(mac, "0:") == ""
}
