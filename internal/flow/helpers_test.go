package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/database"
	"github.com/nerrad567/lyngdorf-core/internal/neighbour"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
	_ "github.com/nerrad567/lyngdorf-core/migrations"
)

const (
	testHost = "192.168.1.50"
	testMAC  = "aa:bb:cc:dd:ee:ff"
	renderer = "urn:schemas-upnp-org:device:MediaRenderer:1"
)

// events records the order collaborators were called in.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeModels struct {
	ev    *events
	model receiver.Model
	err   error
}

func (f *fakeModels) Resolve(_ context.Context, _, host string) (receiver.Model, error) {
	f.ev.add("probe:" + host)
	return f.model, f.err
}

type fakeMACs struct {
	ev   *events
	macs map[string]string
}

func (f *fakeMACs) Resolve(_ context.Context, host string) (string, error) {
	f.ev.add("mac:" + host)
	mac, ok := f.macs[host]
	if !ok {
		return "", neighbour.ErrNotFound
	}
	return mac, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []Result
}

func (n *recordingNotifier) Notify(_ context.Context, r Result) {
	n.mu.Lock()
	n.results = append(n.results, r)
	n.mu.Unlock()
}

type testEnv struct {
	manager  *Manager
	registry *entry.Registry
	cache    *discovery.Cache
	models   *fakeModels
	macs     *fakeMACs
	notifier *recordingNotifier
	ev       *events
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ev := &events{}
	mp60, _ := receiver.LookupModel("MP-60")
	env := &testEnv{
		registry: entry.NewRegistry(entry.NewSQLiteRepository(db.DB)),
		cache:    discovery.NewCache(),
		models:   &fakeModels{ev: ev, model: mp60},
		macs:     &fakeMACs{ev: ev, macs: map[string]string{testHost: testMAC}},
		notifier: &recordingNotifier{},
		ev:       ev,
	}
	env.manager = NewManager(Config{
		Models:          env.models,
		MACs:            env.macs,
		Store:           env.registry,
		Discoveries:     env.cache,
		Notifier:        env.notifier,
		ServiceTypes:    []string{renderer},
		NeighbourSettle: 250 * time.Millisecond,
	})
	env.manager.sleep = func(_ context.Context, d time.Duration) error {
		ev.add("settle:" + d.String())
		return nil
	}
	return env
}

func (env *testEnv) entries(t *testing.T) []entry.ConfigEntry {
	t.Helper()
	all, err := env.registry.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return all
}

func (env *testEnv) seed(t *testing.T, mac string, source entry.Source) *entry.ConfigEntry {
	t.Helper()
	e := &entry.ConfigEntry{
		UniqueID: mac,
		Source:   source,
		Title:    "Existing",
		Data:     entry.Data{DeviceID: mac, MAC: mac, Model: "MP-60", Host: "192.168.1.99"},
	}
	if err := env.registry.Create(context.Background(), e, false); err != nil {
		t.Fatalf("seeding entry: %v", err)
	}
	return e
}

func mp60Record(udn, host string) discovery.Record {
	return discovery.Record{
		UDN:      udn,
		Location: "http://receiver.local:49152/description.xml",
		ST:       renderer,
		UPnP: map[string]string{
			discovery.AttrFriendlyName: "Living Room",
			discovery.AttrManufacturer: "Lyngdorf",
			discovery.AttrModelName:    "MP-60",
			discovery.AttrSerialNumber: "AB12CD",
		},
		Headers: map[string]string{discovery.HeaderHost: host},
	}
}

func mustType(t *testing.T, r Result, want ResultType) {
	t.Helper()
	if r.Type != want {
		t.Fatalf("result type = %q (step %q, reason %q, errors %v), want %q",
			r.Type, r.StepID, r.Reason, r.Errors, want)
	}
}
