package console

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/mux"

	"github.com/station-console/station/internal/config"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/storage"
	"github.com/station-console/station/internal/wire"
)

type fakeStation struct {
	hits      atomic.Int32
	failReads atomic.Bool
	mu        sync.Mutex
	messages  []map[string]any
}

func (f *fakeStation) router() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":    true,
			"ts":    1700000000,
			"root":  "/srv/station",
			"files": map[string]bool{"station_db_exists": true, "agent_queue_exists": false},
			"process": map[string]any{
				"dynamo_worker": map[string]any{"pidfile": "dynamo.pid", "running": true, "pid": 42},
				"loop_worker":   map[string]any{"pidfile": "loop.pid", "running": false, "pid": nil},
			},
		})
	})
	r.HandleFunc("/rooms", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"rooms": []map[string]any{{"id": "9001", "title": "Room 9001"}}})
	})
	r.HandleFunc("/rooms/{room_id}/messages", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if req.Method == http.MethodPost {
			var in map[string]any
			_ = json.NewDecoder(req.Body).Decode(&in)
			f.messages = append(f.messages, map[string]any{
				"id":         len(f.messages) + 1,
				"role":       in["role"],
				"text":       in["text"],
				"created_at": 1700000000 + len(f.messages),
			})
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			return
		}
		if f.failReads.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "db locked"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": f.messages})
	})
	return r
}

func newTestModel(t *testing.T) (model, *fakeStation) {
	t.Helper()
	backend := &fakeStation{}
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		BackendURL:       srv.URL,
		DataDir:          t.TempDir(),
		PollInterval:     time.Hour,
		RequestTimeout:   5 * time.Second,
		MessageLimit:     80,
		DefaultRoom:      "9001",
		DefaultRoomTitle: "Room 9001",
		DefaultWorker:    "dynamo",
		Log:              config.LogConfig{Level: "error", Format: "text"},
	}
	app, err := wire.Build(cfg, wire.Options{LogOutput: io.Discard, Slots: storage.NewMemory()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	m := newModel(app)
	m.width, m.height = 120, 40
	return m, backend
}

func step(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func TestParseActionLine(t *testing.T) {
	action, params, err := parseActionLine("git_push message=fix the build branch=main")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if action != "git_push" {
		t.Fatalf("action: %q", action)
	}
	if params["message"] != "fix the build" || params["branch"] != "main" {
		t.Fatalf("params: %#v", params)
	}
	if _, _, err := parseActionLine("launch_rockets"); err == nil {
		t.Fatalf("expected unknown action error")
	}
	if _, _, err := parseActionLine("git_push orphan"); err == nil {
		t.Fatalf("expected error for a word before any key")
	}
}

func TestBlockedActionNeverReachesBackend(t *testing.T) {
	m, backend := newTestModel(t)
	ks, _ := m.keyset.Set(keys.EditModeKey, "")
	m.keyset = ks

	cmd := m.runAction("ops_start", nil)
	if cmd == nil || !m.inflight {
		t.Fatalf("expected action to start")
	}
	m, _ = step(t, m, cmd())
	if m.inflight {
		t.Fatalf("inflight should clear")
	}
	joined := strings.Join(m.output, "\n")
	if !strings.Contains(joined, "BLOCKED: edit mode key missing (set editModeKey in Keys)") {
		t.Fatalf("unexpected output:\n%s", joined)
	}
	if got := backend.hits.Load(); got != 0 {
		t.Fatalf("blocked action made %d request(s)", got)
	}
}

func TestRunActionRejectsWhileBusy(t *testing.T) {
	m, _ := newTestModel(t)
	if cmd := m.runAction("status", nil); cmd == nil {
		t.Fatalf("first action should start")
	}
	if cmd := m.runAction("status", nil); cmd != nil {
		t.Fatalf("second action should be refused")
	}
	if !strings.HasPrefix(m.statusLine, "busy") {
		t.Fatalf("status line: %q", m.statusLine)
	}
}

func TestPollUpdatesStatusView(t *testing.T) {
	m, _ := newTestModel(t)
	m.polling = true
	m, _ = step(t, m, m.pollCmd()())
	if m.polling || !m.ready {
		t.Fatalf("polling=%v ready=%v", m.polling, m.ready)
	}
	if m.status.Snapshot == nil || m.status.Snapshot.Status.Root != "/srv/station" {
		t.Fatalf("snapshot: %+v", m.status.Snapshot)
	}
	view := m.renderStatus()
	for _, want := range []string{"dynamo worker", "pid=42", "/srv/station"} {
		if !strings.Contains(view, want) {
			t.Fatalf("status view missing %q:\n%s", want, view)
		}
	}
}

func TestStaleTickIsDropped(t *testing.T) {
	m, _ := newTestModel(t)
	m.tickGen = 3
	m, _ = step(t, m, tickMsg{at: time.Now(), gen: 2})
	if m.polling {
		t.Fatalf("tick from an old chain must not poll")
	}
	m, cmd := step(t, m, tickMsg{at: time.Now(), gen: 3})
	if !m.polling || cmd == nil {
		t.Fatalf("current tick should poll")
	}
}

func TestKeyEditSavesThroughApp(t *testing.T) {
	m, _ := newTestModel(t)
	m.switchTab(tabKeys)
	for i, f := range keys.Fields() {
		if f == keys.GitHubRepo {
			m.keysIndex = i + 1
		}
	}
	m, _ = step(t, m, key(tea.KeyEnter))
	if !m.editingKey {
		t.Fatalf("enter should start editing")
	}
	m.input.SetValue("  acme/station  ")
	m, _ = step(t, m, key(tea.KeyEnter))
	if m.editingKey {
		t.Fatalf("second enter should commit")
	}
	if got := m.app.KeySet().Get(keys.GitHubRepo); got != "acme/station" {
		t.Fatalf("app keyset: %q", got)
	}
	if got := m.app.Keys.Load().Get(keys.GitHubRepo); got != "acme/station" {
		t.Fatalf("persisted: %q", got)
	}
}

func TestBackendURLEditRejectsBadScheme(t *testing.T) {
	m, _ := newTestModel(t)
	before := m.app.Dispatcher.BaseURL()
	m.switchTab(tabKeys)
	m.keysIndex = 0
	m, _ = step(t, m, key(tea.KeyEnter))
	m.input.SetValue("ftp://station.example")
	m, _ = step(t, m, key(tea.KeyEnter))
	if !strings.HasPrefix(m.statusLine, "error") {
		t.Fatalf("status line: %q", m.statusLine)
	}
	if m.app.Dispatcher.BaseURL() != before {
		t.Fatalf("base url changed to %q", m.app.Dispatcher.BaseURL())
	}
}

func TestRoomSendAppendsAndReloads(t *testing.T) {
	m, _ := newTestModel(t)
	m.switchTab(tabRooms)
	m.input.SetValue("hello station")
	m, cmd := step(t, m, key(tea.KeyEnter))
	if cmd == nil || !m.roomBusy {
		t.Fatalf("expected a send command")
	}
	m, _ = step(t, m, cmd())
	if m.roomBusy {
		t.Fatalf("roomBusy should clear")
	}
	view := m.app.Rooms.View("9001")
	if len(view.Messages) != 1 {
		t.Fatalf("messages: %+v", view.Messages)
	}
	if got := view.Messages[0]; got.Text != "hello station" || got.Role != "user" || got.Pending {
		t.Fatalf("message: %+v", got)
	}
	if !strings.Contains(m.renderRoomLog(80), "hello station") {
		t.Fatalf("room log does not show the message")
	}
}

func TestRoomSendShowsUnconfirmedWhenReloadFails(t *testing.T) {
	m, backend := newTestModel(t)
	backend.failReads.Store(true)
	m.switchTab(tabRooms)
	m.input.SetValue("hello station")
	m, cmd := step(t, m, key(tea.KeyEnter))
	if cmd == nil {
		t.Fatalf("expected a send command")
	}
	m, _ = step(t, m, cmd())
	if !strings.HasPrefix(m.statusLine, "error") {
		t.Fatalf("status line: %q", m.statusLine)
	}
	view := m.app.Rooms.View("9001")
	if len(view.Messages) != 1 || !view.Messages[0].Sent {
		t.Fatalf("messages: %+v", view.Messages)
	}
	if !strings.Contains(m.renderRoomLog(80), "(sent, unconfirmed)") {
		t.Fatalf("room log does not mark the message unconfirmed")
	}
}

func TestEmptyRoomSendIsIgnored(t *testing.T) {
	m, backend := newTestModel(t)
	m.switchTab(tabRooms)
	if cmd := m.sendRoomMessage("user", "   "); cmd != nil {
		t.Fatalf("blank text should not send")
	}
	if backend.hits.Load() != 0 {
		t.Fatalf("blank text reached the backend")
	}
}

func TestSlashCommands(t *testing.T) {
	m, _ := newTestModel(t)
	m.handleSlash("/worker loop")
	if m.worker != "loop" {
		t.Fatalf("worker: %q", m.worker)
	}
	m.handleSlash("/worker bogus")
	if m.worker != "loop" || !strings.HasPrefix(m.statusLine, "usage") {
		t.Fatalf("worker=%q status=%q", m.worker, m.statusLine)
	}
	if cmd := m.handleSlash("/room 42"); cmd == nil {
		t.Fatalf("/room should load the room")
	}
	if m.app.Rooms.Active() != "42" {
		t.Fatalf("active room: %q", m.app.Rooms.Active())
	}
	m.handleSlash("/help")
	if m.activeTab != tabHelp {
		t.Fatalf("tab: %v", m.activeTab)
	}
	m.handleSlash("/nope")
	if m.statusLine != "unknown command: /nope" {
		t.Fatalf("status line: %q", m.statusLine)
	}
}

func TestQuitConfirm(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = step(t, m, key(tea.KeyEsc))
	if !m.quitConfirm {
		t.Fatalf("esc should ask to quit")
	}
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if m.quitConfirm {
		t.Fatalf("n should cancel")
	}
	m, _ = step(t, m, key(tea.KeyEsc))
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	if cmd == nil {
		t.Fatalf("y should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
}

func TestViewRendersEveryTab(t *testing.T) {
	m, _ := newTestModel(t)
	for tab := tabStatus; tab < tabCount; tab++ {
		m.switchTab(tab)
		if strings.TrimSpace(m.View()) == "" {
			t.Fatalf("tab %d rendered nothing", tab)
		}
	}
}
