package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/dashconfig"
	"chipdeck/internal/historydb"
	"chipdeck/internal/protocol"
)

type fakeHost struct {
	mu      sync.Mutex
	renders map[string]dashboard.Rendered
	configs map[string]chip.Config
}

func newFakeHost() *fakeHost {
	content := "45%"
	return &fakeHost{
		renders: map[string]dashboard.Rendered{
			"batt": {ID: "batt", Type: chip.TypeBattery, Visual: chip.Visual{Content: "45%"}, At: time.Unix(1700000000, 0)},
		},
		configs: map[string]chip.Config{
			"batt": {ID: "batt", Type: chip.TypeBattery, Entity: "sensor.phone_battery", Content: &content},
		},
	}
}

func (f *fakeHost) Snapshot(context.Context) ([]dashboard.Rendered, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dashboard.Rendered, 0, len(f.renders))
	for _, r := range f.renders {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHost) Widget(_ context.Context, id string) (dashboard.Rendered, chip.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.renders[id]
	if !ok {
		return dashboard.Rendered{}, chip.Config{}, fmt.Errorf("%w: %s", dashboard.ErrNotFound, id)
	}
	return r, f.configs[id], nil
}

func (f *fakeHost) UpdateConfig(_ context.Context, cfg chip.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[cfg.ID]; !ok {
		return fmt.Errorf("%w: %s", dashboard.ErrNotFound, cfg.ID)
	}
	f.configs[cfg.ID] = cfg
	return nil
}

func (f *fakeHost) Stats(context.Context) (dashboard.Stats, error) {
	return dashboard.Stats{Widgets: len(f.renders), Entities: 3, Renders: 7}, nil
}

type memDashboardStore struct {
	d     dashconfig.Dashboard
	saves int
}

func (m *memDashboardStore) Load() (dashconfig.Dashboard, error) { return m.d, nil }
func (m *memDashboardStore) Save(d dashconfig.Dashboard) error {
	m.d = d
	m.saves++
	return nil
}

type fakeHistory struct{}

func (fakeHistory) List(_ context.Context, id string, limit int) ([]historydb.Entry, error) {
	if id != "batt" {
		return nil, nil
	}
	out := []historydb.Entry{{WidgetID: id, Visual: json.RawMessage(`{"content":"45%"}`)}}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func newTestServer() (*Server, *fakeHost, *memDashboardStore) {
	host := newFakeHost()
	store := &memDashboardStore{d: dashconfig.Dashboard{Views: []dashconfig.View{{Chips: []chip.Config{host.configs["batt"]}}}}}
	srv := NewServer(Deps{
		Host:      host,
		Registry:  chip.NewRegistry(chip.DefaultOptions()),
		Dashboard: store,
		History:   fakeHistory{},
		Connected: func() bool { return true },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("chipdeck_renders_total 1\n"))
		}),
		Reload: func(context.Context) ([]string, error) { return []string{"dup state"}, nil },
	})
	return srv, host, store
}

func TestServer_HealthAndList(t *testing.T) {
	srv, _, _ := newTestServer()
	code, env := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if code != http.StatusOK || !env.OK || !strings.Contains(string(env.Data), `"hass_connected":true`) {
		t.Fatalf("unexpected health response %d %s", code, env.Data)
	}

	code, env = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/chips", nil)
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"content":"45%"`) {
		t.Fatalf("unexpected chips response %d %s", code, env.Data)
	}

	code, env = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/chips/batt", nil)
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"entity":"sensor.phone_battery"`) {
		t.Fatalf("unexpected chip response %d %s", code, env.Data)
	}

	code, env = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/chips/missing", nil)
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != "CHIP_NOT_FOUND" {
		t.Fatalf("expected CHIP_NOT_FOUND, got %d %+v", code, env.Error)
	}

	code, _ = doJSON(t, srv.Handler(), http.MethodDelete, "/api/v1/chips/batt", nil)
	if code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestServer_PutConfigUpdatesHostAndPersists(t *testing.T) {
	srv, host, store := newTestServer()
	body := map[string]any{"type": "custom:custom-battery", "entity": "sensor.tablet_battery"}
	code, env := doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/chips/batt/config", body)
	if code != http.StatusOK || !env.OK {
		t.Fatalf("unexpected put response %d %s", code, env.Data)
	}
	if host.configs["batt"].Entity != "sensor.tablet_battery" {
		t.Fatalf("host config not updated: %+v", host.configs["batt"])
	}
	if store.saves != 1 {
		t.Fatalf("expected dashboard saved once, got %d", store.saves)
	}
	if got, _ := store.d.Find("batt"); got.Entity != "sensor.tablet_battery" {
		t.Fatalf("persisted config not replaced: %+v", got)
	}

	code, env = doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/chips/batt/config", map[string]any{"type": "custom-battery"})
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_CONFIG" {
		t.Fatalf("expected INVALID_CONFIG for missing entity, got %d %+v", code, env.Error)
	}
	code, env = doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/chips/batt/config", map[string]any{"type": "custom-rocket"})
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_CONFIG" {
		t.Fatalf("expected INVALID_CONFIG for unknown type, got %d %+v", code, env.Error)
	}
}

func TestServer_HistoryReloadAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer()
	code, env := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/chips/batt/history?limit=5", nil)
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"widget_id":"batt"`) {
		t.Fatalf("unexpected history %d %s", code, env.Data)
	}
	code, env = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/chips/batt/history?limit=x", nil)
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_LIMIT" {
		t.Fatalf("expected INVALID_LIMIT, got %d", code)
	}

	code, env = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dashboard/reload", nil)
	if code != http.StatusOK || !strings.Contains(string(env.Data), "dup state") {
		t.Fatalf("unexpected reload %d %s", code, env.Data)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "chipdeck_renders_total") {
		t.Fatalf("metrics handler not mounted: %q", rec.Body.String())
	}
}

func TestServer_ReloadFailure(t *testing.T) {
	srv := NewServer(Deps{Reload: func(context.Context) ([]string, error) { return nil, errors.New("bad yaml") }})
	code, env := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dashboard/reload", nil)
	if code != http.StatusBadRequest || env.Error.Code != "DASHBOARD_RELOAD_FAILED" {
		t.Fatalf("expected reload failure, got %d %+v", code, env.Error)
	}
}

func TestWSHub_SnapshotThenLiveEvents(t *testing.T) {
	srv, _, _ := newTestServer()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	read := func() protocol.Message {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read ws failed: %v", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode ws event failed: %v", err)
		}
		return msg
	}

	first := read()
	if first.Op != protocol.OpChipRendered || !strings.Contains(string(first.Payload), `"id":"batt"`) {
		t.Fatalf("expected initial snapshot event, got %+v", first)
	}

	for srv.hub.Clients() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	srv.Publish(dashboard.Rendered{ID: "temp", Type: chip.TypeTemplate, Visual: chip.Visual{Content: "21 °C"}})
	live := read()
	if live.Type != "event" || !strings.Contains(string(live.Payload), `"content":"21 °C"`) {
		t.Fatalf("unexpected live event %+v", live)
	}

	srv.PublishConnection(false)
	if msg := read(); msg.Op != protocol.OpHassConnection {
		t.Fatalf("expected connection event, got %s", msg.Op)
	}
}
