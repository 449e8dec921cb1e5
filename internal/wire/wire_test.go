package wire

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/station-console/station/internal/config"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/storage"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		BackendURL:       backend,
		DataDir:          t.TempDir(),
		PollInterval:     time.Hour,
		RequestTimeout:   5 * time.Second,
		MessageLimit:     80,
		DefaultRoom:      "9001",
		DefaultRoomTitle: "Room 9001",
		DefaultWorker:    "dynamo",
		Log:              config.LogConfig{Level: "error", Format: "text"},
	}
}

func TestBuildWiresStatusThroughDispatcher(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": 1700000000})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	app, err := Build(testConfig(t, srv.URL), Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if !app.Poller.Poll(context.Background()) {
		t.Fatalf("poll did not run")
	}
	state := app.Poller.State()
	if state.Snapshot == nil || !state.Snapshot.Status.OK {
		t.Fatalf("expected ok snapshot, got %+v", state)
	}
}

func TestKeysPersistAcrossBuilds(t *testing.T) {
	cfg := testConfig(t, "")
	app, err := Build(cfg, Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ks, _ := app.KeySet().Set(keys.GitHubRepo, "acme/station")
	if err := app.SaveKeySet(ks); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := app.SetBackendURL("http://localhost:8000/"); err != nil {
		t.Fatalf("set url: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := Build(cfg, Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer again.Close()
	if again.KeySet().Get(keys.GitHubRepo) != "acme/station" {
		t.Fatalf("keys not persisted: %#v", again.KeySet().Strings())
	}
	if again.Dispatcher.BaseURL() != "http://localhost:8000" {
		t.Fatalf("backend url not restored: %q", again.Dispatcher.BaseURL())
	}
}

func TestSaveKeySetFailureKeepsCurrent(t *testing.T) {
	slots := storage.NewMemory()
	app, err := Build(testConfig(t, "http://localhost"), Options{LogOutput: io.Discard, Slots: slots})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	slots.FailWrites = true
	ks, _ := app.KeySet().Set(keys.EditModeKey, "changed")
	if err := app.SaveKeySet(ks); err == nil {
		t.Fatalf("expected save failure")
	}
	if app.KeySet().Get(keys.EditModeKey) != keys.DefaultEditModeKey {
		t.Fatalf("failed save changed the current keys")
	}
	if _, err := app.SetBackendURL("ftp://nope"); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
