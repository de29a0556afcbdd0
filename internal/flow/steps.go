package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
)

// stepUser offers the unconfigured discoveries. A nil input shows the
// form; an empty selection moves to manual entry; a selection finalizes
// directly, since picking from the live list is the confirmation.
func (m *Manager) stepUser(ctx context.Context, f *flow, input map[string]string) (Result, error) {
	if input == nil {
		records, err := m.unconfiguredDiscoveries(ctx)
		if err != nil {
			return Result{}, err
		}
		if len(records) == 0 {
			return manualForm(nil, "", ""), nil
		}
		f.discoveries = byDisplayName(records)
		return m.userForm(f, nil), nil
	}

	name := strings.TrimSpace(input[FieldName])
	if name == "" {
		return manualForm(nil, "", ""), nil
	}
	rec, ok := f.discoveries[name]
	if !ok {
		return m.userForm(f, map[string]string{FieldName: ErrorInvalidSelection}), nil
	}

	id := identityFromRecord(rec)
	mac, err := m.resolveMAC(ctx, id.Host)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return abort(ReasonMACNotFound), nil
	}
	id.MAC = mac
	f.identity = id

	if res, stop, err := m.checkUnique(ctx, f, mac, false); stop {
		return res, err
	}
	return m.finalize(ctx, f, true)
}

func (m *Manager) userForm(f *flow, errs map[string]string) Result {
	names := make([]string, 0, len(f.discoveries))
	for name := range f.discoveries {
		names = append(names, name)
	}
	slices.Sort(names)
	return form(StepUser, []Field{{Name: FieldName, Options: names}}, errs)
}

// byDisplayName keys records by display name, adding the host when two
// receivers share a name.
func byDisplayName(records []discovery.Record) map[string]discovery.Record {
	out := make(map[string]discovery.Record, len(records))
	for _, r := range records {
		name := r.DisplayName()
		if _, taken := out[name]; taken || name == "" {
			name = fmt.Sprintf("%s (%s)", name, r.Host())
		}
		out[name] = r
	}
	return out
}

func (m *Manager) unconfiguredDiscoveries(ctx context.Context) ([]discovery.Record, error) {
	if m.cfg.Discoveries == nil {
		return nil, nil
	}
	records := m.cfg.Discoveries.ByServiceTypes(m.cfg.ServiceTypes)
	configured, err := m.cfg.Store.ConfiguredIDs(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing configured entries: %w", err)
	}
	return discovery.Filter(records, configured), nil
}

// stepManual probes the host, waits for the neighbour table to settle,
// resolves the MAC and finalizes. Failures re-show the form.
func (m *Manager) stepManual(ctx context.Context, f *flow, input map[string]string) (Result, error) {
	host := strings.TrimSpace(input[FieldHost])
	name := strings.TrimSpace(input[FieldName])
	if name == "" {
		name = defaultName
	}
	if host == "" {
		return manualForm(map[string]string{FieldHost: ErrorRequired}, host, name), nil
	}

	model, err := m.cfg.Models.Resolve(ctx, "", host)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		code := ErrorUnsupportedModel
		if errors.Is(err, ErrConnect) {
			code = ErrorCannotConnect
		}
		m.logger.Info("manual entry rejected", "host", host, "error", err)
		return manualForm(map[string]string{"base": code}, host, name), nil
	}

	// the probe connection refreshed the neighbour entry
	if err := m.sleep(ctx, m.cfg.NeighbourSettle); err != nil {
		return Result{}, err
	}

	mac, err := m.resolveMAC(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		m.logger.Info("manual entry without mac", "host", host, "error", err)
		return manualForm(map[string]string{"base": ErrorMACNotFound}, host, name), nil
	}

	id := Identity{Host: host, Name: name, MAC: mac}.withModel(model)
	f.identity = id
	m.logger.Debug("manual entry resolved", "host", host, "model", id.Model, "mac", mac)

	if res, stop, err := m.checkUnique(ctx, f, mac, false); stop {
		return res, err
	}
	return m.finalize(ctx, f, true)
}

// stepSSDP builds the identity from the record, resolves the MAC and asks
// for confirmation. Ignored entries count as configured here.
func (m *Manager) stepSSDP(ctx context.Context, f *flow, r discovery.Record) (Result, error) {
	id := identityFromRecord(r)
	mac, err := m.resolveMAC(ctx, id.Host)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		m.logger.Info("discovered receiver without mac", "host", id.Host, "udn", r.UDN, "error", err)
		return abort(ReasonMACNotFound), nil
	}
	id.MAC = mac
	f.identity = id

	if res, stop, err := m.checkUnique(ctx, f, mac, true); stop {
		return res, err
	}
	return m.confirmForm(f), nil
}

// stepUnignore re-asserts a previously ignored unique ID and asks for
// confirmation.
func (m *Manager) stepUnignore(ctx context.Context, f *flow, data map[string]string) (Result, error) {
	uid := entry.NormaliseUniqueID(data[FieldUniqueID])
	if uid == "" {
		return Result{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldUniqueID)
	}

	id := Identity{MAC: uid}
	stored, err := m.cfg.Store.GetByUniqueID(ctx, uid)
	switch {
	case err == nil:
		id = id.withEntryData(stored.Data)
		id.Name = stored.Title
	case !errors.Is(err, entry.ErrEntryNotFound):
		return Result{}, err
	}
	f.identity = id

	if res, stop, err := m.checkUnique(ctx, f, uid, false); stop {
		return res, err
	}
	return m.confirmForm(f), nil
}

func (m *Manager) confirmForm(f *flow) Result {
	res := form(StepConfirm, nil, nil)
	res.Placeholders = map[string]string{FieldName: Title(f.identity)}
	return res
}

// stepConfirm finalizes on any submission.
func (m *Manager) stepConfirm(ctx context.Context, f *flow, _ map[string]string) (Result, error) {
	return m.finalize(ctx, f, f.source == entry.SourceUnignore)
}

// stepIgnore stores an ignore placeholder. With flow_id it ignores that
// in-progress flow's receiver and ends the flow.
func (m *Manager) stepIgnore(ctx context.Context, f *flow, data map[string]string) (Result, error) {
	var (
		id     Identity
		target string
	)
	if target = strings.TrimSpace(data[FieldFlowID]); target != "" {
		other, err := m.lookup(target)
		if err != nil {
			return Result{}, err
		}
		other.mu.Lock()
		id = other.identity
		other.mu.Unlock()
	}

	uid := entry.NormaliseUniqueID(data[FieldUniqueID])
	if uid == "" {
		uid = entry.NormaliseUniqueID(id.MAC)
	}
	if uid == "" {
		return Result{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, FieldUniqueID)
	}

	title := strings.TrimSpace(data[FieldTitle])
	if title == "" {
		title = Title(id)
	}
	host := id.Host
	if host == "" {
		host = discovery.Hostname(id.Location)
	}

	e := &entry.ConfigEntry{
		UniqueID: uid,
		Source:   entry.SourceIgnore,
		Title:    title,
		Data: entry.Data{
			DeviceID:     uid,
			MAC:          uid,
			Model:        id.Model,
			Manufacturer: id.Manufacturer,
			SerialNumber: id.SerialNumber,
			Host:         host,
			UDN:          id.UDN,
		},
		Options: map[string]any{},
	}
	if err := m.cfg.Store.Create(ctx, e, false); err != nil {
		if errors.Is(err, entry.ErrEntryExists) {
			return abort(ReasonAlreadyConfigured), nil
		}
		return Result{}, err
	}

	if target != "" {
		if err := m.Abort(ctx, target); err != nil && !errors.Is(err, ErrFlowNotFound) {
			m.logger.Warn("failed to end ignored flow", "flow_id", target, "error", err)
		}
	}
	return Result{Type: ResultCreateEntry, Title: e.Title, Entry: e}, nil
}

// finalize creates the entry. The store's unique index turns a lost race
// with another flow into already_configured.
func (m *Manager) finalize(ctx context.Context, f *flow, replaceIgnored bool) (Result, error) {
	e, err := buildEntry(f.identity, f.source, nil)
	if err != nil {
		m.logger.Warn("flow finished without mac", "flow_id", f.id, "host", f.identity.Host)
		return abort(ReasonMACNotFound), nil
	}
	if err := m.cfg.Store.Create(ctx, e, replaceIgnored); err != nil {
		if errors.Is(err, entry.ErrEntryExists) {
			return abort(ReasonAlreadyConfigured), nil
		}
		return Result{}, fmt.Errorf("creating entry: %w", err)
	}
	m.logger.Info("receiver configured", "entry_id", e.ID, "mac", e.UniqueID, "model", e.Data.Model, "host", e.Data.Host)
	return Result{Type: ResultCreateEntry, Title: e.Title, Entry: e}, nil
}

// resolveMAC never returns an empty MAC with a nil error. The MAC is in
// the registry's unique ID form.
func (m *Manager) resolveMAC(ctx context.Context, host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: no host", ErrIdentityIncomplete)
	}
	mac, err := m.cfg.MACs.Resolve(ctx, host)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentityIncomplete, err)
	}
	if mac == "" {
		return "", fmt.Errorf("%w: no mac for %s", ErrIdentityIncomplete, host)
	}
	return entry.NormaliseUniqueID(mac), nil
}

// checkUnique claims uniqueID for the flow and reports stop when the flow
// must end: another flow holds the ID, or an entry already uses it.
func (m *Manager) checkUnique(ctx context.Context, f *flow, uniqueID string, includeIgnored bool) (Result, bool, error) {
	if !m.claim(f, uniqueID) {
		return abort(ReasonAlreadyInProgress), true, nil
	}
	dup, err := alreadyConfigured(ctx, m.cfg.Store, uniqueID, includeIgnored)
	if err != nil {
		return Result{}, true, err
	}
	if dup {
		return abort(ReasonAlreadyConfigured), true, nil
	}
	return Result{}, false, nil
}

// alreadyConfigured reports whether an entry uses mac as its unique ID or
// stored MAC, compared in normalised form. Ignored entries count only when
// includeIgnored is set.
func alreadyConfigured(ctx context.Context, store Store, mac string, includeIgnored bool) (bool, error) {
	entries, err := store.List(ctx, includeIgnored)
	if err != nil {
		return false, fmt.Errorf("listing entries: %w", err)
	}
	mac = entry.NormaliseUniqueID(mac)
	for _, e := range entries {
		if entry.NormaliseUniqueID(e.UniqueID) == mac || entry.NormaliseUniqueID(e.Data.MAC) == mac {
			return true, nil
		}
	}
	return false, nil
}
