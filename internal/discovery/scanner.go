package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/mqtt"
)

const defaultScanInterval = 60 * time.Second

// Finder is satisfied by *Searcher.
type Finder interface {
	Search(ctx context.Context) ([]Record, error)
}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
	IsConnected() bool
}

// ConfiguredFunc returns the UDNs and unique IDs of configured devices.
// Whether ignored devices count is up to the caller; they never leave the
// cache, only the set of devices handed to the Handler.
type ConfiguredFunc func(ctx context.Context) (map[string]struct{}, error)

// Handler is called for each supported, unconfigured record not yet
// handled. Returning true asks the scanner to offer the record again on
// the next scan.
type Handler func(ctx context.Context, r Record) (retry bool)

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Finder     Finder
	Cache      *Cache
	Publisher  Publisher // optional
	Configured ConfiguredFunc
	Interval   time.Duration
}

// Scanner runs periodic SSDP searches.
type Scanner struct {
	finder     Finder
	cache      *Cache
	publisher  Publisher
	configured ConfiguredFunc
	interval   time.Duration

	mu        sync.Mutex
	handler   Handler
	handled   map[string]bool
	announced map[string]bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   Logger
}

// NewScanner creates a Scanner. Call Start to begin scanning.
func NewScanner(cfg ScannerConfig) *Scanner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	return &Scanner{
		finder:     cfg.Finder,
		cache:      cache,
		publisher:  cfg.Publisher,
		configured: cfg.Configured,
		interval:   interval,
		handled:    make(map[string]bool),
		announced:  make(map[string]bool),
		done:       make(chan struct{}),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// SetHandler sets the function called for new discoveries.
func (s *Scanner) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Cache returns the scanner's record cache.
func (s *Scanner) Cache() *Cache { return s.cache }

// Start runs a scan immediately and then every interval until ctx is
// cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop waits for the scan loop to finish. Safe to call more than once.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Scanner) loop(ctx context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scanLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanLogged(ctx)
		}
	}
}

func (s *Scanner) scanLogged(ctx context.Context) {
	if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("ssdp scan failed", "error", err)
	}
}

// Scan runs one search round. Every supported record is cached. Records
// that are not configured and not yet handled are announced on MQTT and
// passed to the handler. Announcements of devices that have since been
// configured are cleared.
func (s *Scanner) Scan(ctx context.Context) error {
	records, err := s.finder.Search(ctx)
	if err != nil {
		return err
	}

	configured := map[string]struct{}{}
	if s.configured != nil {
		if configured, err = s.configured(ctx); err != nil {
			return err
		}
	}

	s.clearConfigured(configured)

	for _, r := range Filter(records, nil) {
		if s.cache.Put(r) {
			s.logger.Info("receiver discovered",
				"udn", r.UDN, "model", r.ModelName(), "host", r.Host())
		}
	}

	for _, r := range Filter(records, configured) {
		s.mu.Lock()
		seen := s.handled[r.UDN]
		s.handled[r.UDN] = true
		h := s.handler
		s.mu.Unlock()
		if seen {
			continue
		}

		s.announce(r)
		if h == nil || !h(ctx, r.Clone()) {
			continue
		}
		s.logger.Debug("discovery will be retried", "udn", r.UDN)
		s.Forget(r.UDN)
	}
	return nil
}

// Forget makes the next scan hand udn to the handler again.
func (s *Scanner) Forget(udn string) {
	s.mu.Lock()
	delete(s.handled, udn)
	s.mu.Unlock()
}

func (s *Scanner) announce(r Record) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		return
	}
	if err := s.publisher.PublishJSON(mqtt.Topics{}.Discovery(r.UDN), r, true); err != nil {
		s.logger.Warn("failed to publish discovery", "udn", r.UDN, "error", err)
		return
	}
	s.mu.Lock()
	s.announced[r.UDN] = true
	s.mu.Unlock()
}

// clearConfigured forgets configured devices, so they are handled again
// once their entry is gone, and clears their retained announcements.
func (s *Scanner) clearConfigured(configured map[string]struct{}) {
	for udn := range configured {
		s.mu.Lock()
		was := s.announced[udn]
		delete(s.announced, udn)
		delete(s.handled, udn)
		s.mu.Unlock()

		if was && s.publisher != nil && s.publisher.IsConnected() {
			if err := s.publisher.ClearRetained(mqtt.Topics{}.Discovery(udn)); err != nil {
				s.logger.Warn("failed to clear discovery", "udn", udn, "error", err)
			}
		}
	}
}
