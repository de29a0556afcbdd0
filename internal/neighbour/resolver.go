package neighbour

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// LookupFunc returns the MAC for a literal address.
type LookupFunc func(ctx context.Context, ip string) (string, error)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Resolver maps hosts to MAC addresses.
type Resolver struct {
	// IPv4 and IPv6 look up literal addresses; HostLookup resolves names.
	IPv4       LookupFunc
	IPv6       LookupFunc
	HostLookup func(ctx context.Context, host string) ([]string, error)

	logger Logger
}

// NewResolver returns a Resolver reading the Linux neighbour tables.
func NewResolver() *Resolver {
	return &Resolver{
		IPv4:       ARPTable{}.Lookup,
		IPv6:       IPNeigh{}.Lookup,
		HostLookup: net.DefaultResolver.LookupHost,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve returns host's MAC, lower-case and colon separated. It returns
// ErrNotFound, never an empty string with a nil error, when the tables have
// no entry.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	path := Classify(host)
	r.debug("resolving mac", "host", host, "path", path.String())

	var (
		mac string
		err error
	)
	switch path {
	case PathIPv4:
		mac, err = r.IPv4(ctx, host)
	case PathIPv6:
		mac, err = r.IPv6(ctx, NormaliseIPv6(host))
	default:
		mac, err = r.resolveHostname(ctx, host)
	}
	if err != nil {
		return "", err
	}
	if mac == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, host)
	}
	return FormatMAC(mac)
}

func (r *Resolver) resolveHostname(ctx context.Context, host string) (string, error) {
	addrs, err := r.HostLookup(ctx, host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", fmt.Errorf("%w: %s: %w", ErrNotFound, host, err)
		}
		return "", fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && addr.Is4() {
			return r.IPv4(ctx, addr.String())
		}
	}
	return "", fmt.Errorf("%w: %s has no ipv4 address", ErrNotFound, host)
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg, args...)
}
