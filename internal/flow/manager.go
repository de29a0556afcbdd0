package flow

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

const defaultName = receiver.DefaultDeviceName

// ModelResolver is satisfied by *receiver.Resolver.
type ModelResolver interface {
	Resolve(ctx context.Context, configuredModel, host string) (receiver.Model, error)
}

// MACResolver is satisfied by *neighbour.Resolver.
type MACResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// Store is satisfied by *entry.Registry.
type Store interface {
	List(ctx context.Context, includeIgnored bool) ([]entry.ConfigEntry, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*entry.ConfigEntry, error)
	Create(ctx context.Context, e *entry.ConfigEntry, replaceIgnored bool) error
	ConfiguredIDs(ctx context.Context, includeIgnored bool) (map[string]struct{}, error)
}

// DiscoverySource is satisfied by *discovery.Cache.
type DiscoverySource interface {
	ByServiceTypes(sts []string) []discovery.Record
}

// Notifier receives every flow result.
type Notifier interface {
	Notify(ctx context.Context, r Result)
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

// Config wires a Manager to its collaborators.
type Config struct {
	Models      ModelResolver
	MACs        MACResolver
	Store       Store
	Discoveries DiscoverySource // optional
	Notifier    Notifier        // optional

	// ServiceTypes selects the discoveries offered by the user step.
	ServiceTypes []string

	// NeighbourSettle is the pause between the model probe and the MAC
	// lookup on the manual path.
	NeighbourSettle time.Duration
}

// flow is one in-progress flow. mu serialises its steps.
type flow struct {
	mu sync.Mutex

	id          string
	source      entry.Source
	step        StepID
	identity    Identity
	discoveries map[string]discovery.Record
	last        Result
	done        bool
}

// Manager owns the in-progress flows.
type Manager struct {
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
	logger Logger

	mu       sync.Mutex
	flows    map[string]*flow
	claimed  map[string]string // unique ID -> flow ID
	notifier Notifier
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sleep:    sleepContext,
		logger:   noopLogger{},
		flows:    make(map[string]*flow),
		claimed:  make(map[string]string),
		notifier: cfg.Notifier,
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetNotifier replaces the notifier.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// Start begins a flow from the user, ignore or unignore source. data holds
// the source's start fields: unique_id and title for ignore (or flow_id to
// ignore an in-progress flow), unique_id for unignore, nothing for user.
func (m *Manager) Start(ctx context.Context, source entry.Source, data map[string]string) (Result, error) {
	switch source {
	case entry.SourceUser, entry.SourceIgnore, entry.SourceUnignore:
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	f := m.newFlow(source)
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		res Result
		err error
	)
	switch source {
	case entry.SourceUser:
		res, err = m.stepUser(ctx, f, nil)
	case entry.SourceIgnore:
		res, err = m.stepIgnore(ctx, f, data)
	case entry.SourceUnignore:
		res, err = m.stepUnignore(ctx, f, data)
	}
	return m.record(ctx, f, res, err)
}

// StartDiscovery begins an ssdp flow for a discovered record.
func (m *Manager) StartDiscovery(ctx context.Context, r discovery.Record) (Result, error) {
	f := m.newFlow(entry.SourceSSDP)
	f.mu.Lock()
	defer f.mu.Unlock()

	res, err := m.stepSSDP(ctx, f, r)
	return m.record(ctx, f, res, err)
}

// HandleDiscovery adapts StartDiscovery to discovery.Handler. It asks for
// a retry when the flow failed or the receiver's MAC was not yet in the
// neighbour table.
func (m *Manager) HandleDiscovery(ctx context.Context, r discovery.Record) bool {
	res, err := m.StartDiscovery(ctx, r)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("discovery flow failed", "udn", r.UDN, "error", err)
		}
		return true
	}
	return res.Type == ResultAbort && res.Reason == ReasonMACNotFound
}

// Step submits input to the flow's current step.
func (m *Manager) Step(ctx context.Context, flowID string, input map[string]string) (Result, error) {
	f, err := m.lookup(flowID)
	if err != nil {
		return Result{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return Result{}, ErrFlowNotFound
	}
	if input == nil {
		input = map[string]string{}
	}

	var res Result
	switch f.step {
	case StepUser:
		res, err = m.stepUser(ctx, f, input)
	case StepManual:
		res, err = m.stepManual(ctx, f, input)
	case StepConfirm:
		res, err = m.stepConfirm(ctx, f, input)
	default:
		return Result{}, fmt.Errorf("%w: flow %s is at step %q", ErrFlowNotFound, flowID, f.step)
	}
	return m.record(ctx, f, res, err)
}

// Get returns the last result of an in-progress flow.
func (m *Manager) Get(flowID string) (Result, error) {
	f, err := m.lookup(flowID)
	if err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, nil
}

// List returns the last result of every in-progress flow that has one.
func (m *Manager) List() []Result {
	m.mu.Lock()
	flows := make([]*flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	m.mu.Unlock()

	out := make([]Result, 0, len(flows))
	for _, f := range flows {
		// a flow whose first step is still running has no result yet
		if !f.mu.TryLock() {
			continue
		}
		if f.last.FlowID != "" {
			out = append(out, f.last)
		}
		f.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Result) int { return cmp.Compare(a.FlowID, b.FlowID) })
	return out
}

// Abort abandons an in-progress flow. Nothing is persisted before a flow
// finishes, so there is nothing to roll back.
func (m *Manager) Abort(ctx context.Context, flowID string) error {
	f, err := m.lookup(flowID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return ErrFlowNotFound
	}
	_, err = m.record(ctx, f, abort(ReasonAbandoned), nil)
	return err
}

func (m *Manager) newFlow(source entry.Source) *flow {
	f := &flow{id: uuid.New().String(), source: source, step: StepID(source)}
	m.mu.Lock()
	m.flows[f.id] = f
	m.mu.Unlock()
	return f
}

func (m *Manager) lookup(flowID string) (*flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	return f, nil
}

// claim reserves uniqueID for f. It reports false when another
// in-progress flow holds it.
func (m *Manager) claim(f *flow, uniqueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.claimed[uniqueID]; ok && owner != f.id {
		return false
	}
	m.claimed[uniqueID] = f.id
	return true
}

// record stores the step result on the flow, finishes the flow when the
// result is terminal and notifies. A step error finishes the flow too.
func (m *Manager) record(ctx context.Context, f *flow, res Result, err error) (Result, error) {
	if err != nil {
		m.finish(f)
		m.logger.Warn("flow step failed", "flow_id", f.id, "source", f.source, "step", f.step, "error", err)
		return Result{}, err
	}

	res.FlowID = f.id
	res.Source = f.source
	if res.Type == ResultForm {
		f.step = res.StepID
	}
	f.last = res
	if res.Done() {
		m.finish(f)
	}

	m.logger.Debug("flow result", "flow_id", f.id, "source", f.source, "type", res.Type,
		"step", res.StepID, "reason", res.Reason)

	m.mu.Lock()
	n := m.notifier
	m.mu.Unlock()
	if n != nil {
		n.Notify(ctx, res)
	}
	return res, nil
}

func (m *Manager) finish(f *flow) {
	f.done = true
	m.mu.Lock()
	delete(m.flows, f.id)
	for uid, owner := range m.claimed {
		if owner == f.id {
			delete(m.claimed, uid)
		}
	}
	m.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
