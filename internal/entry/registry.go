package entry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Registry wraps a Repository with an in-memory cache. The cache is
// loaded by RefreshCache and kept in sync by Create and Delete.
//
// All public methods are thread-safe and return deep copies.
type Registry struct {
	repo    Repository
	cache   map[string]*ConfigEntry // by ID
	loaded  bool
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*ConfigEntry),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every entry from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entries, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*ConfigEntry, len(entries))
	for i := range entries {
		r.cache[entries[i].ID] = entries[i].DeepCopy()
	}
	r.loaded = true

	r.logger.Info("entry cache refreshed", "count", len(entries))
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.cacheMu.RLock()
	loaded := r.loaded
	r.cacheMu.RUnlock()
	if loaded {
		return nil
	}
	return r.RefreshCache(ctx)
}

// List returns entries oldest first. Ignored entries are included only
// when includeIgnored is set.
func (r *Registry) List(ctx context.Context, includeIgnored bool) ([]ConfigEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	entries := make([]ConfigEntry, 0, len(r.cache))
	for _, e := range r.cache {
		if e.IsIgnored() && !includeIgnored {
			continue
		}
		entries = append(entries, *e.DeepCopy())
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(entries, func(a, b ConfigEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries, nil
}

// Get returns the entry with ID id.
func (r *Registry) Get(ctx context.Context, id string) (*ConfigEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheMu.Lock()
	r.cache[id] = e.DeepCopy()
	r.cacheMu.Unlock()
	return e, nil
}

// GetByUniqueID returns the entry, ignored or not, with the unique ID.
// Matching uses NormaliseUniqueID, so MAC case and notation do not matter.
func (r *Registry) GetByUniqueID(ctx context.Context, uniqueID string) (*ConfigEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	uniqueID = NormaliseUniqueID(uniqueID)
	r.cacheMu.RLock()
	for _, e := range r.cache {
		if NormaliseUniqueID(e.UniqueID) == uniqueID {
			cpy := e.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()
	return nil, ErrEntryNotFound
}

// Create stores e, generating its ID when empty and normalising its
// unique ID. If the unique ID belongs to an ignored entry and
// replaceIgnored is set, that entry is replaced in the same transaction.
// Any other conflict returns ErrEntryExists, which is also what a
// concurrent create of the same unique ID gets, whether from the database
// index or from a placeholder another create already replaced.
func (r *Registry) Create(ctx context.Context, e *ConfigEntry, replaceIgnored bool) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}
	e.UniqueID = NormaliseUniqueID(e.UniqueID)
	if err := Validate(e); err != nil {
		return err
	}

	existing, err := r.GetByUniqueID(ctx, e.UniqueID)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		err = r.repo.Create(ctx, e)
	case err != nil:
		return err
	case existing.IsIgnored() && replaceIgnored:
		err = r.repo.Replace(ctx, existing.ID, e)
		if errors.Is(err, ErrEntryNotFound) {
			r.cacheMu.Lock()
			delete(r.cache, existing.ID)
			r.cacheMu.Unlock()
			err = ErrEntryExists
		}
	default:
		return ErrEntryExists
	}
	if err != nil {
		return err
	}

	r.cacheMu.Lock()
	if existing != nil {
		delete(r.cache, existing.ID)
	}
	r.cache[e.ID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("entry created", "id", e.ID, "unique_id", e.UniqueID, "source", e.Source)
	return nil
}

// Delete removes an entry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("entry deleted", "id", id)
	return nil
}

// ConfiguredIDs returns the unique IDs and stored UDNs of the entries, so
// a discovery record can be matched by either.
func (r *Registry) ConfiguredIDs(ctx context.Context, includeIgnored bool) (map[string]struct{}, error) {
	entries, err := r.List(ctx, includeIgnored)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries)*2)
	for _, e := range entries {
		ids[e.UniqueID] = struct{}{}
		if e.Data.UDN != "" {
			ids[e.Data.UDN] = struct{}{}
		}
	}
	return ids, nil
}

// Count returns the number of cached entries, ignored ones included.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
