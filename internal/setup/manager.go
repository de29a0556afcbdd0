package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/flow"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

const (
	defaultCommandTimeout = 5 * time.Second
	defaultSetupTimeout   = 30 * time.Second
	commandQoS            = 1
)

// ModelResolver is satisfied by *receiver.Resolver.
type ModelResolver interface {
	Resolve(ctx context.Context, configuredModel, host string) (receiver.Model, error)
}

// Factory creates an unconnected receiver for host.
type Factory func(host string, model receiver.Model) receiver.Receiver

// Bus is satisfied by *mqtt.Client.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteReceiverMetric(entryID, model, field string, value float64)
}

// StateListener receives every state snapshot.
type StateListener interface {
	ReceiverState(msg StateMessage)
}

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

// Config wires a Manager to its collaborators. Bus, Metrics and Listener
// are optional.
type Config struct {
	Models         ModelResolver
	Factory        Factory
	Bus            Bus
	Metrics        MetricsWriter
	Listener       StateListener
	CommandTimeout time.Duration

	// SetupTimeout bounds a setup started by Notify. Default 30s.
	SetupTimeout time.Duration
}

type loaded struct {
	entry    *entry.ConfigEntry
	model    receiver.Model
	rx       receiver.Receiver
	callback int

	mu         sync.Mutex // guards subscribed and last
	subscribed bool
	last       StateMessage
}

// Manager holds the receivers of the set-up entries.
type Manager struct {
	cfg    Config
	logger Logger

	mu      sync.Mutex
	entries map[string]*loaded
	wg      sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = defaultSetupTimeout
	}
	return &Manager{
		cfg:     cfg,
		logger:  noopLogger{},
		entries: make(map[string]*loaded),
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Setup brings the receiver of e online. The model is taken from the
// stored model name when it is known, otherwise the host is probed; if
// neither works the error wraps ErrUnsupportedModel and no receiver is
// created.
func (m *Manager) Setup(ctx context.Context, e *entry.ConfigEntry) error {
	if e.IsIgnored() {
		return fmt.Errorf("%w: %s", ErrIgnoredEntry, e.ID)
	}

	m.mu.Lock()
	_, exists := m.entries[e.ID]
	m.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, e.ID)
	}

	model, err := m.cfg.Models.Resolve(ctx, e.Data.Model, e.Data.Host)
	if err != nil {
		return fmt.Errorf("setting up %s (%s): %w", e.Title, e.Data.Host, err)
	}

	rx := m.cfg.Factory(e.Data.Host, model)
	if err := rx.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s (%s): %w", e.Title, e.Data.Host, err)
	}

	l := &loaded{entry: e.DeepCopy(), model: model, rx: rx}
	l.callback = rx.Register(func(s receiver.State) { m.publishState(l, s) })

	m.mu.Lock()
	if _, exists := m.entries[e.ID]; exists {
		m.mu.Unlock()
		rx.Unregister(l.callback)
		_ = rx.Disconnect() //nolint:errcheck // lost a concurrent setup
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, e.ID)
	}
	m.entries[e.ID] = l
	m.mu.Unlock()

	subscribed := m.subscribeCommands(e.ID)
	l.mu.Lock()
	l.subscribed = subscribed
	l.mu.Unlock()

	m.publishState(l, rx.State())

	m.logger.Info("receiver set up", "entry_id", e.ID, "model", model.Name, "host", e.Data.Host)
	return nil
}

// SetupAll sets up every entry that is not ignored and returns how many
// came online. Failures are logged and skipped.
func (m *Manager) SetupAll(ctx context.Context, entries []entry.ConfigEntry) int {
	n := 0
	for i := range entries {
		e := &entries[i]
		if e.IsIgnored() {
			continue
		}
		if err := m.Setup(ctx, e); err != nil {
			if ctx.Err() != nil {
				return n
			}
			m.logger.Warn("receiver setup failed", "entry_id", e.ID, "host", e.Data.Host, "error", err)
			continue
		}
		n++
	}
	return n
}

// Unload takes the receiver of an entry offline and clears its retained
// state.
func (m *Manager) Unload(entryID string) error {
	m.mu.Lock()
	l, ok := m.entries[entryID]
	delete(m.entries, entryID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}

	l.rx.Unregister(l.callback)
	var errs []error
	if bus := m.cfg.Bus; bus != nil && bus.IsConnected() {
		l.mu.Lock()
		subscribed := l.subscribed
		l.mu.Unlock()
		if subscribed {
			if err := bus.Unsubscribe(mqtt.Topics{}.EntryCommand(entryID)); err != nil {
				errs = append(errs, err)
			}
		}
		if err := bus.ClearRetained(mqtt.Topics{}.EntryState(entryID)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.rx.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	m.logger.Info("receiver unloaded", "entry_id", entryID)
	return errors.Join(errs...)
}

// Notify implements flow.Notifier. A flow that created an entry that is
// not ignored gets its receiver set up in the background.
func (m *Manager) Notify(ctx context.Context, r flow.Result) {
	if r.Type != flow.ResultCreateEntry || r.Entry == nil || r.Entry.IsIgnored() {
		return
	}
	e := r.Entry.DeepCopy()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SetupTimeout)
		defer cancel()
		if err := m.Setup(ctx, e); err != nil {
			m.logger.Warn("receiver setup after flow failed", "entry_id", e.ID, "flow_id", r.FlowID, "error", err)
		}
	}()
}

// Close waits for background setups and unloads every entry.
func (m *Manager) Close() error {
	m.wg.Wait()
	var errs []error
	for _, id := range m.Loaded() {
		if err := m.Unload(id); err != nil && !errors.Is(err, ErrNotLoaded) {
			errs = append(errs, fmt.Errorf("unloading %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Loaded returns the IDs of the set-up entries, sorted.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// State returns the last snapshot of a set-up entry.
func (m *Manager) State(entryID string) (StateMessage, error) {
	l, err := m.get(entryID)
	if err != nil {
		return StateMessage{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, nil
}

// Command sends cmd to the receiver of a set-up entry.
func (m *Manager) Command(ctx context.Context, entryID string, cmd CommandMessage) error {
	l, err := m.get(entryID)
	if err != nil {
		return err
	}
	frame, err := cmd.frame(l.model)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	if err := l.rx.Send(ctx, frame); err != nil {
		return fmt.Errorf("sending %s to %s: %w", cmd.Command, entryID, err)
	}
	m.logger.Debug("receiver command sent", "entry_id", entryID, "command_id", cmd.ID, "frame", frame)
	return nil
}

func (m *Manager) get(entryID string) (*loaded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	return l, nil
}

func (m *Manager) subscribeCommands(id string) bool {
	bus := m.cfg.Bus
	if bus == nil || !bus.IsConnected() {
		return false
	}
	err := bus.Subscribe(mqtt.Topics{}.EntryCommand(id), commandQoS, func(_ string, payload []byte) error {
		var cmd CommandMessage
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return m.Command(context.Background(), id, cmd)
	})
	if err != nil {
		m.logger.Warn("command subscription failed", "entry_id", id, "error", err)
		return false
	}
	return true
}

// publishState runs on the receiver's read goroutine.
func (m *Manager) publishState(l *loaded, s receiver.State) {
	msg := newStateMessage(l.entry, l.model, s)
	l.mu.Lock()
	l.last = msg
	l.mu.Unlock()

	if bus := m.cfg.Bus; bus != nil && bus.IsConnected() {
		if err := bus.PublishJSON(mqtt.Topics{}.EntryState(l.entry.ID), msg, true); err != nil {
			m.logger.Warn("failed to publish receiver state", "entry_id", l.entry.ID, "error", err)
		}
	}
	if m.cfg.Metrics != nil {
		for _, z := range l.model.Zones {
			if db, ok := s.Volume(z); ok {
				m.cfg.Metrics.WriteReceiverMetric(l.entry.ID, l.model.Name, metricField(z), db)
			}
		}
	}
	if m.cfg.Listener != nil {
		m.cfg.Listener.ReceiverState(msg)
	}
}
