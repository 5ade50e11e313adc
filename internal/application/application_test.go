package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chipdeck/internal/dashconfig"
	"chipdeck/internal/hass"
)

const testStates = `[
  {"entity_id":"sensor.phone_battery","state":"45","attributes":{"friendly_name":"Phone"}},
  {"entity_id":"sensor.outside","state":"21.5","attributes":{"unit_of_measurement":"°C"}}
]`

const testDashboard = `
title: Home
views:
  - title: Main
    chips:
      - id: phone
        type: battery
        entity: sensor.phone_battery
      - id: outside
        type: template
        entity: sensor.outside
        content: "{{ states(entity) }} °C"
`

// fakeHomeAssistant answers the client's frames the way a Home Assistant instance would.
// render_template gets a result frame followed by one render event.
func fakeHomeAssistant(t *testing.T, renders map[string]string) *hass.FakeSocket {
	t.Helper()
	sock := hass.NewFakeSocket()
	sock.Emit(`{"type":"auth_required","ha_version":"2024.6.0"}`)
	sock.Emit(`{"type":"auth_ok","ha_version":"2024.6.0"}`)

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			var text string
			select {
			case <-done:
				return
			case text = <-sock.Written:
			}
			var msg struct {
				ID       int64  `json:"id"`
				Type     string `json:"type"`
				Template string `json:"template"`
			}
			if err := json.Unmarshal([]byte(text), &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "get_states":
				sock.Emit(fmt.Sprintf(`{"id":%d,"type":"result","success":true,"result":%s}`, msg.ID, testStates))
			case "subscribe_events", "unsubscribe_events":
				sock.Emit(fmt.Sprintf(`{"id":%d,"type":"result","success":true,"result":null}`, msg.ID))
			case "render_template":
				out, ok := renders[msg.Template]
				if !ok {
					sock.Emit(fmt.Sprintf(`{"id":%d,"type":"result","success":false,"error":{"code":"template_error","message":"unknown template"}}`, msg.ID))
					continue
				}
				sock.Emit(fmt.Sprintf(`{"id":%d,"type":"result","success":true,"result":null}`, msg.ID))
				payload, _ := json.Marshal(map[string]any{"result": out})
				sock.Emit(fmt.Sprintf(`{"id":%d,"type":"event","event":%s}`, msg.ID, payload))
			case "ping":
				sock.Emit(fmt.Sprintf(`{"id":%d,"type":"pong"}`, msg.ID))
			}
		}
	}()
	return sock
}

func writeDashboard(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "dashboard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write dashboard: %v", err)
	}
	return path
}

func testOptions(t *testing.T, sock *hass.FakeSocket) StartOptions {
	t.Helper()
	dir := t.TempDir()
	return StartOptions{
		ConfigDir: dir,
		Dashboard: writeDashboard(t, dir, testDashboard),
		HassURL:   "ws://ha.local:8123/api/websocket",
		HassToken: "token",
		Dialer:    hass.FakeDialer{Sock: sock},
	}
}

func TestRenderOnce_RendersLiveDashboard(t *testing.T) {
	sock := fakeHomeAssistant(t, map[string]string{"{{ states(entity) }} °C": "21.5 °C"})
	opts := testOptions(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := RenderOnce(ctx, opts, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("RenderOnce failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(out))
	}
	if out[0].ID != "phone" || out[0].Visual.Content != "45%" {
		t.Fatalf("unexpected battery render: %+v", out[0])
	}
	if out[1].ID != "outside" || out[1].Visual.Content != "21.5 °C" {
		t.Fatalf("unexpected template render: %+v", out[1])
	}
}

func TestRenderOnce_RequiresToken(t *testing.T) {
	opts := testOptions(t, hass.NewFakeSocket())
	opts.HassToken = ""
	if _, err := RenderOnce(context.Background(), opts, 0); err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestRenderOnce_InvalidTokenStops(t *testing.T) {
	sock := hass.NewFakeSocket()
	sock.Emit(`{"type":"auth_required"}`)
	sock.Emit(`{"type":"auth_invalid","message":"bad token"}`)
	opts := testOptions(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RenderOnce(ctx, opts, 0); !errors.Is(err, hass.ErrAuthInvalid) {
		t.Fatalf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestStartApplication_ServesRenderedChips(t *testing.T) {
	sock := fakeHomeAssistant(t, map[string]string{"{{ states(entity) }} °C": "21.5 °C"})
	opts := testOptions(t, sock)
	opts.LocalPort = pickFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	app, err := StartApplication(ctx, opts)
	if err != nil {
		cancel()
		t.Fatalf("StartApplication failed: %v", err)
	}
	if app.DBPath() != filepath.Join(opts.ConfigDir, dbFileName) {
		t.Fatalf("unexpected db path %q", app.DBPath())
	}
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Fatalf("application did not stop")
		}
	}()

	base := app.LocalAPIBaseURL()
	deadline := time.Now().Add(5 * time.Second)
	for {
		body, ok := tryGet(base + "/api/v1/chips")
		if ok && strings.Contains(body, "21.5 °C") && strings.Contains(body, "45%") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("chips never rendered, last body: %s", body)
		}
		time.Sleep(50 * time.Millisecond)
	}

	body, ok := tryGet(base + "/healthz")
	if !ok || !strings.Contains(body, `"hass_connected":true`) {
		t.Fatalf("unexpected health body %s", body)
	}
}

func TestStartApplication_RequiresToken(t *testing.T) {
	opts := testOptions(t, hass.NewFakeSocket())
	opts.HassToken = ""
	if _, err := StartApplication(context.Background(), opts); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestCheck_ReportsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeDashboard(t, dir, `
views:
  - chips:
      - id: a
        type: battery
        entity: sensor.a
      - id: a
        type: template
`)
	got, _, err := Check(StartOptions{ConfigDir: dir, Dashboard: path})
	if got != path {
		t.Fatalf("expected path %q, got %q", path, got)
	}
	if !errors.Is(err, dashconfig.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestMigrateUp_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	path, err := MigrateUp(StartOptions{ConfigDir: dir})
	if err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file at %s: %v", path, err)
	}
}

func TestPictureResolver(t *testing.T) {
	cases := []struct {
		ws, in, want string
	}{
		{"ws://ha.local:8123/api/websocket", "/local/cat.png", "http://ha.local:8123/local/cat.png"},
		{"wss://ha.example.com/api/websocket", "/api/image/x", "https://ha.example.com/api/image/x"},
		{"ws://ha.local:8123/api/websocket", "https://cdn/x.png", "https://cdn/x.png"},
		{"ws://ha.local:8123/api/websocket", "//cdn/x.png", "//cdn/x.png"},
		{"", "/local/cat.png", "/local/cat.png"},
	}
	for _, tc := range cases {
		if got := pictureResolver(tc.ws)(tc.in); got != tc.want {
			t.Fatalf("pictureResolver(%q)(%q) = %q, want %q", tc.ws, tc.in, got, tc.want)
		}
	}
}

func tryGet(url string) (string, bool) {
	resp, err := http.Get(url)
	if err != nil {
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	return string(b), resp.StatusCode == http.StatusOK
}
