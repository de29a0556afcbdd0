package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
)

const (
	// MulticastAddr is the SSDP IPv4 group and port.
	MulticastAddr = "239.255.255.250:1900"

	defaultSearchTimeout      = 3 * time.Second
	defaultDescriptionTimeout = 5 * time.Second
	multicastTTL              = 2
	maxDatagram               = 8192
	maxMX                     = 5
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Searcher performs SSDP searches.
type Searcher struct {
	serviceTypes []string
	timeout      time.Duration
	iface        string

	// Addr is where M-SEARCH requests are sent. Defaults to MulticastAddr.
	Addr string

	client *http.Client
	logger Logger
}

// NewSearcher creates a Searcher from the discovery configuration.
func NewSearcher(cfg config.DiscoveryConfig) *Searcher {
	timeout := cfg.SearchTimeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	descTimeout := cfg.DescriptionTimeout
	if descTimeout <= 0 {
		descTimeout = defaultDescriptionTimeout
	}
	sts := append([]string(nil), cfg.ServiceTypes...)
	if len(sts) == 0 {
		sts = append(sts, config.DefaultServiceTypes...)
	}
	return &Searcher{
		serviceTypes: sts,
		timeout:      timeout,
		iface:        cfg.Interface,
		Addr:         MulticastAddr,
		client:       &http.Client{Timeout: descTimeout},
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Searcher) SetLogger(logger Logger) {
	s.logger = logger
}

// ServiceTypes returns the configured search targets.
func (s *Searcher) ServiceTypes() []string {
	return append([]string(nil), s.serviceTypes...)
}

// Search sends one M-SEARCH per service type, collects replies until the
// search timeout and returns one record per UDN with its device
// description attributes filled in. Replies whose description cannot be
// fetched are skipped.
func (s *Searcher) Search(ctx context.Context) ([]Record, error) {
	replies, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	descriptions := make(map[string]map[string]string)
	seen := make(map[string]bool)
	var records []Record
	for _, r := range replies {
		attrs, ok := descriptions[r.Location]
		if !ok {
			attrs, err = s.fetchDescription(ctx, r.Location)
			if err != nil {
				s.logger.Debug("skipping ssdp reply", "location", r.Location, "error", err)
				descriptions[r.Location] = nil
				continue
			}
			descriptions[r.Location] = attrs
		}
		if attrs == nil {
			continue
		}

		r.UPnP = attrs
		if udn := attrs[AttrUDN]; udn != "" {
			r.UDN = udn
		}
		if r.UDN == "" || seen[r.UDN] {
			continue
		}
		seen[r.UDN] = true
		records = append(records, r)
	}
	return records, nil
}

func (s *Searcher) collect(ctx context.Context) ([]Record, error) {
	dst, err := net.ResolveUDPAddr("udp4", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolving ssdp address: %w", err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening ssdp socket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := s.configureMulticast(conn); err != nil {
		return nil, err
	}

	for _, st := range s.serviceTypes {
		if _, err := conn.WriteTo(s.searchRequest(st), dst); err != nil {
			return nil, fmt.Errorf("sending m-search: %w", err)
		}
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline) //nolint:errcheck // a failed deadline ends the read loop early

	var replies []Record
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return replies, nil
			}
			return nil, fmt.Errorf("reading ssdp replies: %w", err)
		}
		r, err := parseResponse(buf[:n], src)
		if err != nil {
			s.logger.Debug("ignoring ssdp datagram", "from", src.String(), "error", err)
			continue
		}
		replies = append(replies, r)
	}
}

func (s *Searcher) configureMulticast(conn net.PacketConn) error {
	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(multicastTTL); err != nil {
		return fmt.Errorf("setting multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		return fmt.Errorf("setting multicast loopback: %w", err)
	}
	if s.iface == "" {
		return nil
	}
	ifi, err := net.InterfaceByName(s.iface)
	if err != nil {
		return fmt.Errorf("discovery interface %q: %w", s.iface, err)
	}
	if err := p.SetMulticastInterface(ifi); err != nil {
		return fmt.Errorf("setting multicast interface: %w", err)
	}
	return nil
}

func (s *Searcher) searchRequest(st string) []byte {
	mx := int(s.timeout / time.Second)
	mx = max(1, min(mx, maxMX))

	var b bytes.Buffer
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	b.WriteString("HOST: " + MulticastAddr + "\r\n")
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	b.WriteString("MX: " + strconv.Itoa(mx) + "\r\n")
	b.WriteString("ST: " + st + "\r\n")
	b.WriteString("\r\n")
	return b.Bytes()
}

// parseResponse turns an SSDP reply into a Record without UPnP attributes.
func parseResponse(data []byte, src net.Addr) (Record, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	resp.Body.Close()

	headers := make(map[string]string, len(resp.Header)+1)
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = strings.TrimSpace(v[0])
		}
	}
	if udp, ok := src.(*net.UDPAddr); ok {
		headers[HeaderHost] = udp.IP.String()
	}

	r := Record{
		Location: headers[HeaderLocation],
		ST:       headers[HeaderST],
		Headers:  headers,
		SeenAt:   time.Now(),
	}
	if r.Location == "" || r.ST == "" {
		return Record{}, fmt.Errorf("%w: missing st or location", ErrInvalidResponse)
	}
	r.UDN, _, _ = strings.Cut(headers[HeaderUSN], "::")
	return r, nil
}
