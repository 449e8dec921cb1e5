package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/station-console/station/internal/keys"
)

type countingTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("boom")
}

type captured struct {
	method  string
	path    string
	query   string
	editKey string
	reqID   string
	body    map[string]any
}

func fakeBackend(t *testing.T) (*httptest.Server, *countingTransport, chan captured) {
	t.Helper()
	seen := make(chan captured, 16)
	record := func(r *http.Request) {
		c := captured{
			method:  r.Method,
			path:    r.URL.Path,
			query:   r.URL.RawQuery,
			editKey: r.Header.Get(EditKeyHeader),
			reqID:   r.Header.Get("X-Request-Id"),
		}
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &c.body)
			}
		}
		seen <- c
	}
	writeJSON := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/ops/{worker}/status", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "worker": mux.Vars(req)["worker"]})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/ops/{worker}/start", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "boom"})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/ops/git/push", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{room_id}/messages", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		writeJSON(w, http.StatusOK, map[string]any{"messages": []any{}})
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "alive")
	})
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{broken")
	})
	r.HandleFunc("/api/status", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	counter := &countingTransport{next: http.DefaultTransport}
	return srv, counter, seen
}

func newTestDispatcher(base string, rt http.RoundTripper) *Dispatcher {
	log, _ := test.NewNullLogger()
	return New(base, &http.Client{Transport: rt}, log)
}

func keysWith(t *testing.T, pairs ...string) keys.KeySet {
	t.Helper()
	ks := keys.Defaults()
	for i := 0; i+1 < len(pairs); i += 2 {
		next, err := ks.Set(keys.Field(pairs[i]), pairs[i+1])
		if err != nil {
			t.Fatalf("set %s: %v", pairs[i], err)
		}
		ks = next
	}
	return ks
}

func TestBlockedActionMakesNoRequest(t *testing.T) {
	srv, counter, _ := fakeBackend(t)
	d := newTestDispatcher(srv.URL, counter)

	ks := keysWith(t, "editModeKey", "", "githubToken", "ghp_x", "githubRepo", "a/b")
	res := d.Dispatch(context.Background(), "git_push", Params{"message": "hi"}, ks)
	if res.Kind != Blocked {
		t.Fatalf("expected Blocked, got %s", res.Line())
	}
	if res.Reason != "edit mode key missing" || res.Missing != keys.EditModeKey {
		t.Fatalf("unexpected reason %q (%s)", res.Reason, res.Missing)
	}
	if got := counter.calls.Load(); got != 0 {
		t.Fatalf("blocked action reached the network %d times", got)
	}
}

func TestOpsStatusSuccessWithHeaderWhenPresent(t *testing.T) {
	srv, counter, seen := fakeBackend(t)
	d := newTestDispatcher(srv.URL, counter)

	res := d.Dispatch(context.Background(), "ops_status", nil, keysWith(t, "editModeKey", "1234"))
	if res.Kind != Success || res.Status != http.StatusOK {
		t.Fatalf("expected success, got %s", res.Line())
	}
	body := res.BodyMap()
	if body["ok"] != true || body["worker"] != "dynamo" {
		t.Fatalf("unexpected body %#v", body)
	}
	c := <-seen
	if c.editKey != "1234" {
		t.Fatalf("expected edit key header, got %q", c.editKey)
	}
	if c.reqID == "" {
		t.Fatalf("expected request id")
	}

	_ = d.Dispatch(context.Background(), "ops_status", Params{"worker": "loop"}, keysWith(t, "editModeKey", ""))
	c = <-seen
	if c.path != "/api/ops/loop/status" || c.editKey != "" {
		t.Fatalf("unexpected request %#v", c)
	}
}

func TestHTTPFailureRendersBodyError(t *testing.T) {
	srv, counter, seen := fakeBackend(t)
	d := newTestDispatcher(srv.URL+"/", counter)

	res := d.Dispatch(context.Background(), "ops_start", nil, keys.Defaults())
	if res.Kind != HTTPFailure || res.Status != 500 {
		t.Fatalf("expected HttpFailure 500, got %s", res.Line())
	}
	if res.String() != "HttpFailure: 500 boom" {
		t.Fatalf("unexpected rendering %q", res.String())
	}
	c := <-seen
	if c.path != "/api/ops/dynamo/start" || c.method != http.MethodPost || c.editKey != "1234" {
		t.Fatalf("unexpected request %#v", c)
	}

	var de *Error
	if !errors.As(res.Err(), &de) || de.Status != 500 || de.Kind != HTTPFailure {
		t.Fatalf("expected *Error, got %v", res.Err())
	}
}

func TestGitPushBody(t *testing.T) {
	srv, counter, seen := fakeBackend(t)
	d := newTestDispatcher(srv.URL, counter)

	ks := keysWith(t, "githubToken", "ghp_x", "githubRepo", "a/b")
	res := d.Dispatch(context.Background(), "git_push", Params{"message": "ship it"}, ks)
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Line())
	}
	c := <-seen
	if c.body["message"] != "ship it" || c.body["edit_mode_key"] != "1234" {
		t.Fatalf("unexpected body %#v", c.body)
	}
}

func TestPathAndQueryParams(t *testing.T) {
	srv, counter, seen := fakeBackend(t)
	d := newTestDispatcher(srv.URL, counter)

	res := d.Dispatch(context.Background(), "room_messages", Params{"room_id": "9001", "limit": 80}, keys.Defaults())
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Line())
	}
	c := <-seen
	if c.path != "/rooms/9001/messages" || c.query != "limit=80" {
		t.Fatalf("unexpected request %#v", c)
	}

	res = d.Dispatch(context.Background(), "room_messages", Params{"limit": 80}, keys.Defaults())
	if res.Kind != ConfigurationError || !strings.Contains(res.Message, "room_id") {
		t.Fatalf("expected missing placeholder error, got %s", res.Line())
	}

	res = d.Dispatch(context.Background(), "ops_status", Params{"worker": "../etc"}, keys.Defaults())
	if res.Kind != ConfigurationError {
		t.Fatalf("expected unknown worker error, got %s", res.Line())
	}
}

func TestNonJSONBodies(t *testing.T) {
	srv, counter, _ := fakeBackend(t)
	d := newTestDispatcher(srv.URL, counter)
	ctx := context.Background()

	res := d.Dispatch(ctx, "health", nil, keys.Defaults())
	if !res.OK() || res.BodyMap()["raw"] != "alive" {
		t.Fatalf("expected raw success, got %s %#v", res.Line(), res.Body)
	}

	res = d.Dispatch(ctx, "healthz", nil, keys.Defaults())
	if res.Kind != TransportFailure {
		t.Fatalf("expected TransportFailure for bad json, got %s", res.Line())
	}

	res = d.Dispatch(ctx, "status", nil, keys.Defaults())
	if res.Kind != HTTPFailure || res.String() != "HttpFailure: 502 upstream down" {
		t.Fatalf("unexpected result %s", res.Line())
	}
}

func TestConfigurationErrors(t *testing.T) {
	counter := &countingTransport{next: http.DefaultTransport}
	d := newTestDispatcher("not a url", counter)
	ctx := context.Background()

	if res := d.Dispatch(ctx, "nope", nil, keys.Defaults()); res.Kind != ConfigurationError {
		t.Fatalf("expected unknown action error, got %s", res.Line())
	}
	if res := d.Dispatch(ctx, "health", nil, keys.Defaults()); res.Kind != ConfigurationError {
		t.Fatalf("expected bad base url error, got %s", res.Line())
	}
	d.SetBaseURL("ftp://example.com")
	if res := d.Dispatch(ctx, "health", nil, keys.Defaults()); res.Kind != ConfigurationError {
		t.Fatalf("expected scheme error, got %s", res.Line())
	}
	if got := counter.calls.Load(); got != 0 {
		t.Fatalf("configuration errors reached the network %d times", got)
	}
}

func TestTransportFailureAndPanic(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	d := newTestDispatcher(base, http.DefaultTransport)
	if res := d.Dispatch(context.Background(), "health", nil, keys.Defaults()); res.Kind != TransportFailure {
		t.Fatalf("expected TransportFailure, got %s", res.Line())
	}

	d = newTestDispatcher("http://127.0.0.1:1", panicTransport{})
	res := d.Dispatch(context.Background(), "health", nil, keys.Defaults())
	if res.Kind != TransportFailure || !strings.Contains(res.Message, "boom") {
		t.Fatalf("expected recovered panic, got %s", res.Line())
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	got, err := NormalizeBaseURL(" https://station.example.com/ ")
	if err != nil || got != "https://station.example.com" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	got, err = NormalizeBaseURL("http://host//")
	if err != nil || got != "http://host/" {
		t.Fatalf("expected one slash stripped, got %q %v", got, err)
	}
}

func TestRegistry(t *testing.T) {
	specs := Actions()
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Fatalf("actions not sorted at %d", i)
		}
	}
	for _, s := range specs {
		if s.Auth == AuthRequired && (len(s.Guard) == 0 || s.Guard[0] != keys.EditModeKey) {
			t.Errorf("%s requires auth but does not guard the edit key first", s.Name)
		}
	}
	if s, ok := Lookup("ops_status"); !ok || s.Privileged() {
		t.Fatalf("ops_status should exist and be unguarded")
	}
}

func TestResultDecode(t *testing.T) {
	r := Result{Kind: Success, Body: map[string]any{"ok": true, "pid": float64(42)}}
	var out struct {
		OK  bool `json:"ok"`
		PID int  `json:"pid"`
	}
	if err := r.Decode(&out); err != nil || !out.OK || out.PID != 42 {
		t.Fatalf("decode failed: %+v %v", out, err)
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"message=fix", "the", "build", "branch=main"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params["message"] != "fix the build" || params["branch"] != "main" {
		t.Fatalf("params: %#v", params)
	}
	if _, err := ParseParams([]string{"orphan"}); err == nil {
		t.Fatalf("expected error for a word before any key")
	}
	if params, err := ParseParams(nil); err != nil || len(params) != 0 {
		t.Fatalf("empty input: %#v %v", params, err)
	}
}
