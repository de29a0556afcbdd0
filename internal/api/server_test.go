package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/flow"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/database"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/logging"
	"github.com/nerrad567/lyngdorf-core/internal/neighbour"
	"github.com/nerrad567/lyngdorf-core/internal/receiver"
	"github.com/nerrad567/lyngdorf-core/internal/setup"
	_ "github.com/nerrad567/lyngdorf-core/migrations"
)

const (
	testSecret = "test-secret-key-at-least-32-characters-long"
	testHost   = "192.168.1.50"
	testMAC    = "aa:bb:cc:dd:ee:ff"
	renderer   = "urn:schemas-upnp-org:device:MediaRenderer:1"
)

type staticModels struct{}

func (staticModels) Resolve(context.Context, string, string) (receiver.Model, error) {
	m, _ := receiver.LookupModel("MP-60")
	return m, nil
}

type staticMACs map[string]string

func (s staticMACs) Resolve(_ context.Context, host string) (string, error) {
	if mac, ok := s[host]; ok {
		return mac, nil
	}
	return "", neighbour.ErrNotFound
}

type mockReceivers struct {
	states   map[string]setup.StateMessage
	commands []setup.CommandMessage
	unloaded []string
}

func (m *mockReceivers) State(id string) (setup.StateMessage, error) {
	st, ok := m.states[id]
	if !ok {
		return setup.StateMessage{}, setup.ErrNotLoaded
	}
	return st, nil
}

func (m *mockReceivers) Command(_ context.Context, id string, cmd setup.CommandMessage) error {
	if _, ok := m.states[id]; !ok {
		return setup.ErrNotLoaded
	}
	if cmd.Command == "" {
		return setup.ErrInvalidCommand
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *mockReceivers) Unload(id string) error {
	m.unloaded = append(m.unloaded, id)
	return nil
}

type testDeps struct {
	registry  *entry.Registry
	cache     *discovery.Cache
	receivers *mockReceivers
}

// testServer creates a Server with a real entry registry backed by in-memory
// SQLite and a real flow manager.
func testServer(t *testing.T, secret string) (*Server, *testDeps) {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	deps := &testDeps{
		registry:  entry.NewRegistry(entry.NewSQLiteRepository(db.DB)),
		cache:     discovery.NewCache(),
		receivers: &mockReceivers{states: map[string]setup.StateMessage{}},
	}
	flows := flow.NewManager(flow.Config{
		Models:       staticModels{},
		MACs:         staticMACs{testHost: testMAC},
		Store:        deps.registry,
		Discoveries:  deps.cache,
		ServiceTypes: []string{renderer},
	})

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security:     config.SecurityConfig{JWT: config.JWTConfig{Secret: secret}},
		Logger:       log,
		Flows:        flows,
		Entries:      deps.registry,
		Receivers:    deps.receivers,
		Discoveries:  deps.cache,
		ServiceTypes: []string{renderer},
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(ctx)
	flows.SetNotifier(srv.hub)

	return srv, deps
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "installer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, "")
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, "")
	if w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	srv.secCfg.JWT.Issuer = "lyngdorf-tests"
	router := srv.buildRouter()

	withIssuer := validClaims()
	withIssuer.Issuer = "lyngdorf-tests"
	expired := withIssuer
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := withIssuer
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"valid header", "Bearer " + signToken(t, testSecret, withIssuer), "", http.StatusOK},
		{"valid query", "", signToken(t, testSecret, withIssuer), http.StatusOK},
		{"wrong scheme", "Basic " + signToken(t, testSecret, withIssuer), "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "another-secret-that-is-long-enough!!", withIssuer), "", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, expired), "", http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, testSecret, noExpiry), "", http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, testSecret, validClaims()), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/flows"
			if tt.query != "" {
				path += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	// health stays public
	if w := do(t, router, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

// ─── Flow Tests ────────────────────────────────────────────────────

func TestFlows_ManualEntry(t *testing.T) {
	srv, deps := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/flows", `{"source":"user"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	started := decode[flow.Result](t, w)
	if started.Type != flow.ResultForm || started.StepID != flow.StepManual {
		t.Fatalf("started = %+v", started)
	}

	w = do(t, router, http.MethodGet, "/api/v1/flows/"+started.FlowID, "")
	if w.Code != http.StatusOK || decode[flow.Result](t, w).StepID != flow.StepManual {
		t.Errorf("get flow = %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/api/v1/flows", "")
	if got := decode[map[string]any](t, w); got["count"] != float64(1) {
		t.Errorf("list flows = %v", got)
	}

	w = do(t, router, http.MethodPost, "/api/v1/flows/"+started.FlowID, `{"host":"192.168.1.50","name":"Living Room"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("step status = %d: %s", w.Code, w.Body.String())
	}
	done := decode[flow.Result](t, w)
	if done.Type != flow.ResultCreateEntry || done.Entry == nil || done.Entry.UniqueID != testMAC {
		t.Fatalf("done = %+v", done)
	}

	all, err := deps.registry.List(context.Background(), true)
	if err != nil || len(all) != 1 || all[0].Title != "Living Room" {
		t.Errorf("entries = %+v, %v", all, err)
	}

	w = do(t, router, http.MethodGet, "/api/v1/flows/"+started.FlowID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("finished flow status = %d, want 404", w.Code)
	}
}

func TestFlows_Errors(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid json", http.MethodPost, "/api/v1/flows", `{`, http.StatusBadRequest},
		{"ssdp source", http.MethodPost, "/api/v1/flows", `{"source":"ssdp"}`, http.StatusBadRequest},
		{"ignore without unique id", http.MethodPost, "/api/v1/flows", `{"source":"ignore"}`, http.StatusBadRequest},
		{"unknown flow", http.MethodGet, "/api/v1/flows/missing", "", http.StatusNotFound},
		{"step unknown flow", http.MethodPost, "/api/v1/flows/missing", `{}`, http.StatusNotFound},
		{"abort unknown flow", http.MethodDelete, "/api/v1/flows/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if e := decode[Error](t, w); e.Status != tt.want || e.Code == "" {
				t.Errorf("error body = %+v", e)
			}
		})
	}
}

func TestFlows_Abort(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	started := decode[flow.Result](t, do(t, router, http.MethodPost, "/api/v1/flows", `{}`))
	if w := do(t, router, http.MethodDelete, "/api/v1/flows/"+started.FlowID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("abort status = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/v1/flows/"+started.FlowID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second abort status = %d, want 404", w.Code)
	}
}

func TestFlows_IgnoreThenListIgnored(t *testing.T) {
	srv, _ := testServer(t, "")
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/flows",
		`{"source":"ignore","data":{"unique_id":"11:22:33:44:55:66","title":"Bedroom"}}`)
	if res := decode[flow.Result](t, w); res.Type != flow.ResultCreateEntry {
		t.Fatalf("ignore = %+v", res)
	}

	visible := decode[map[string]any](t, do(t, router, http.MethodGet, "/api/v1/entries", ""))
	all := decode[map[string]any](t, do(t, router, http.MethodGet, "/api/v1/entries?include_ignored=true", ""))
	if visible["count"] != float64(0) || all["count"] != float64(1) {
		t.Errorf("visible = %v, all = %v", visible["count"], all["count"])
	}
	if w := do(t, router, http.MethodGet, "/api/v1/entries?include_ignored=maybe", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad include_ignored status = %d", w.Code)
	}
}

// ─── Discovery Tests ───────────────────────────────────────────────

func TestListDiscoveries(t *testing.T) {
	srv, deps := testServer(t, "")
	ctx := context.Background()

	rec := func(udn, manufacturer string) discovery.Record {
		return discovery.Record{
			UDN: udn,
			ST:  renderer,
			UPnP: map[string]string{
				discovery.AttrManufacturer: manufacturer,
				discovery.AttrModelName:    "MP-60",
			},
		}
	}
	deps.cache.Put(rec("uuid:new", "Lyngdorf"))
	deps.cache.Put(rec("uuid:denon", "Denon"))
	deps.cache.Put(rec("uuid:configured", "Lyngdorf"))

	configured := &entry.ConfigEntry{
		UniqueID: testMAC,
		Source:   entry.SourceSSDP,
		Title:    "Configured",
		Data:     entry.Data{MAC: testMAC, UDN: "uuid:configured"},
	}
	if err := deps.registry.Create(ctx, configured, false); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/discoveries", "")
	got := decode[struct {
		Discoveries []discovery.Record `json:"discoveries"`
		Count       int                `json:"count"`
	}](t, w)
	if got.Count != 1 || got.Discoveries[0].UDN != "uuid:new" {
		t.Errorf("discoveries = %+v", got)
	}
}

// ─── Entry Tests ───────────────────────────────────────────────────

func seedEntry(t *testing.T, deps *testDeps) *entry.ConfigEntry {
	t.Helper()
	e := &entry.ConfigEntry{
		UniqueID: testMAC,
		Source:   entry.SourceUser,
		Title:    "Living Room",
		Data:     entry.Data{DeviceID: testMAC, MAC: testMAC, Model: "MP-60", Host: testHost},
	}
	if err := deps.registry.Create(context.Background(), e, false); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return e
}

func TestEntries_GetAndDelete(t *testing.T) {
	srv, deps := testServer(t, "")
	router := srv.buildRouter()
	e := seedEntry(t, deps)

	w := do(t, router, http.MethodGet, "/api/v1/entries/"+e.ID, "")
	if w.Code != http.StatusOK || decode[entry.ConfigEntry](t, w).UniqueID != testMAC {
		t.Fatalf("get = %d %s", w.Code, w.Body.String())
	}

	if w := do(t, router, http.MethodDelete, "/api/v1/entries/"+e.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if len(deps.receivers.unloaded) != 1 || deps.receivers.unloaded[0] != e.ID {
		t.Errorf("unloaded = %v", deps.receivers.unloaded)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/entries/"+e.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/v1/entries/"+e.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestEntries_StateAndCommand(t *testing.T) {
	srv, deps := testServer(t, "")
	router := srv.buildRouter()
	e := seedEntry(t, deps)

	if w := do(t, router, http.MethodGet, "/api/v1/entries/"+e.ID+"/state", ""); w.Code != http.StatusConflict {
		t.Errorf("state of unloaded entry status = %d, want 409", w.Code)
	}

	deps.receivers.states[e.ID] = setup.StateMessage{EntryID: e.ID, Model: "MP-60"}
	w := do(t, router, http.MethodGet, "/api/v1/entries/"+e.ID+"/state", "")
	if w.Code != http.StatusOK || decode[setup.StateMessage](t, w).Model != "MP-60" {
		t.Errorf("state = %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/api/v1/entries/"+e.ID+"/command", `{"command":"power","on":true}`)
	if w.Code != http.StatusAccepted || len(deps.receivers.commands) != 1 {
		t.Errorf("command = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/api/v1/entries/"+e.ID+"/command", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid command status = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/entries/"+e.ID+"/command", `nope`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", w.Code)
	}
}

func TestEntries_WithoutReceivers(t *testing.T) {
	srv, deps := testServer(t, "")
	srv.receivers = nil
	e := seedEntry(t, deps)

	if w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/entries/"+e.ID+"/state", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return wsMsg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
	return WSMessage{}
}

func TestHub_BroadcastsFlowResultsAndState(t *testing.T) {
	hub := newTestHub(t)
	client := newWSClient(hub, nil, "")
	client.subscribe(WSSubscribePayload{Channels: []string{ChannelFlowResult, ChannelReceiverState}})
	hub.Register(client)

	hub.Notify(context.Background(), flow.Result{FlowID: "f1", Type: flow.ResultAbort, Reason: flow.ReasonAlreadyConfigured})
	if msg := receive(t, client); msg.EventType != ChannelFlowResult || msg.Key != "f1" {
		t.Errorf("event = %q/%q, want %q/f1", msg.EventType, msg.Key, ChannelFlowResult)
	}

	hub.ReceiverState(setup.StateMessage{EntryID: "e1"})
	if msg := receive(t, client); msg.EventType != ChannelReceiverState || msg.Key != "e1" {
		t.Errorf("event = %q/%q, want %q/e1", msg.EventType, msg.Key, ChannelReceiverState)
	}
}

func expectNothing(t *testing.T, client *WSClient) {
	t.Helper()
	select {
	case <-client.send:
		t.Error("client should not receive a message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)
	client := newWSClient(hub, nil, "")
	client.subscribe(WSSubscribePayload{Channels: []string{ChannelReceiverState}})
	hub.Register(client)

	hub.Broadcast(ChannelFlowResult, "f1", map[string]any{"flow_id": "f1"})
	expectNothing(t, client)
}

func TestHub_FiltersByID(t *testing.T) {
	hub := newTestHub(t)
	client := newWSClient(hub, nil, "")
	client.subscribe(WSSubscribePayload{Channels: []string{ChannelReceiverState}, IDs: []string{"e1"}})
	hub.Register(client)

	hub.ReceiverState(setup.StateMessage{EntryID: "e2"})
	expectNothing(t, client)

	hub.ReceiverState(setup.StateMessage{EntryID: "e1"})
	if msg := receive(t, client); msg.Key != "e1" {
		t.Errorf("key = %q, want e1", msg.Key)
	}

	// Dropping the last ID drops the channel.
	client.unsubscribe(WSSubscribePayload{Channels: []string{ChannelReceiverState}, IDs: []string{"e1"}})
	hub.ReceiverState(setup.StateMessage{EntryID: "e1"})
	expectNothing(t, client)

	// A channel-wide subscription is not narrowed by a later ID filter.
	client.subscribe(WSSubscribePayload{Channels: []string{ChannelReceiverState}})
	client.subscribe(WSSubscribePayload{Channels: []string{ChannelReceiverState}, IDs: []string{"e1"}})
	hub.ReceiverState(setup.StateMessage{EntryID: "e3"})
	if msg := receive(t, client); msg.Key != "e3" {
		t.Errorf("key = %q, want e3", msg.Key)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newWSClient(hub, nil, "")
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// Sends after unregister are dropped, and a second close is harmless.
	if client.trySend([]byte("{}")) {
		t.Error("trySend() after unregister = true, want false")
	}
	hub.Unregister(client)
}

func TestWebSocket_FlowEvents(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected error connecting without token")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	token := signToken(t, testSecret, validClaims())
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelFlowResult}},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil || ack.Type != WSTypeResponse {
		t.Fatalf("subscribe ack = %+v, %v", ack, err)
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-2",
		Payload: WSSubscribePayload{Channels: []string{"device.state"}},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}
	if err := ws.ReadJSON(&ack); err != nil || ack.Type != WSTypeError || ack.ID != "sub-2" {
		t.Fatalf("unknown channel reply = %+v, %v", ack, err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/flows", bytes.NewBufferString(`{"source":"user"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("start flow: %v", err)
	}
	httpResp.Body.Close()

	var event WSMessage
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelFlowResult {
		t.Errorf("event = %+v", event)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without flows should fail")
	}
	if _, err := New(Deps{Logger: log, Flows: flow.NewManager(flow.Config{})}); err == nil {
		t.Error("New() without entries should fail")
	}
}
