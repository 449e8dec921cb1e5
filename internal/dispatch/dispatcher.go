package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/station-console/station/internal/guard"
	"github.com/station-console/station/internal/keys"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 4 << 20

// Params are the caller-supplied values for an action. Path placeholders
// are taken out first; what remains becomes the query string (GET) or the
// JSON body (everything else).
type Params map[string]any

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Dispatcher sends actions to one backend. It is safe for concurrent use.
type Dispatcher struct {
	mu            sync.RWMutex
	baseURL       string
	client        *http.Client
	log           logrus.FieldLogger
	defaultWorker string
	now           func() time.Time
}

type Option func(*Dispatcher)

// WithDefaultWorker changes which worker {worker} falls back to.
func WithDefaultWorker(name string) Option {
	return func(d *Dispatcher) {
		if validWorker(name) {
			d.defaultWorker = name
		}
	}
}

// WithClock replaces time.Now for Duration measurements.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New builds a Dispatcher. Request timeouts belong to client.
func New(baseURL string, client *http.Client, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		baseURL:       strings.TrimSpace(baseURL),
		client:        client,
		log:           log.WithField("component", "dispatch"),
		defaultWorker: DefaultWorker,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) BaseURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baseURL
}

// SetBaseURL swaps the backend. Validation happens per dispatch so a bad
// URL surfaces as a ConfigurationError rather than here.
func (d *Dispatcher) SetBaseURL(raw string) {
	d.mu.Lock()
	d.baseURL = strings.TrimSpace(raw)
	d.mu.Unlock()
}

// NormalizeBaseURL checks that raw is an absolute http(s) URL and strips
// one trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("backend url is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("backend url %q is malformed: %w", trimmed, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("backend url %q must use http or https", trimmed)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", trimmed)
	}
	return strings.TrimSuffix(trimmed, "/"), nil
}

// Dispatch runs action with params. The guard is evaluated against ks
// before anything touches the network; a blocked action makes no request.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, params Params, ks keys.KeySet) (result Result) {
	started := d.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{Action: action, Kind: TransportFailure, Message: fmt.Sprintf("dispatch panic: %v", recovered)}
		}
		result.Action = action
		result.Duration = d.now().Sub(started)
		d.logResult(result)
	}()

	spec, ok := Lookup(action)
	if !ok {
		return Result{Kind: ConfigurationError, Message: fmt.Sprintf("unknown action %q", action)}
	}

	if verdict := guard.Evaluate(spec.Guard, ks); !verdict.Permitted {
		return Result{Kind: Blocked, Reason: verdict.Reason, Missing: verdict.Missing}
	}

	base, err := NormalizeBaseURL(d.BaseURL())
	if err != nil {
		return Result{Kind: ConfigurationError, Message: err.Error()}
	}

	req, err := d.buildRequest(ctx, base, spec, params, ks)
	if err != nil {
		return Result{Kind: ConfigurationError, Message: err.Error()}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Kind: TransportFailure, Message: fmt.Sprintf("request to %s %s failed: %v", spec.Method, req.URL.Path, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Kind: TransportFailure, Message: fmt.Sprintf("failed to read response body: %v", err)}
	}
	return classify(resp.StatusCode, resp.Header.Get("Content-Type"), payload)
}

func (d *Dispatcher) buildRequest(ctx context.Context, base string, spec Spec, params Params, ks keys.KeySet) (*http.Request, error) {
	merged := Params{}
	if spec.Fill != nil {
		for k, v := range spec.Fill(ks) {
			merged[k] = v
		}
	}
	for k, v := range params {
		merged[k] = v
	}

	path, err := d.expandPath(spec.Path, merged)
	if err != nil {
		return nil, err
	}

	editKey := strings.TrimSpace(ks.Get(keys.EditModeKey))
	if spec.EchoEditKey {
		if _, ok := merged["edit_mode_key"]; !ok {
			merged["edit_mode_key"] = editKey
		}
	}

	endpoint := base + path
	var body io.Reader
	if spec.Method == http.MethodGet {
		if len(merged) > 0 {
			query := url.Values{}
			for k, v := range merged {
				query.Set(k, fmt.Sprint(v))
			}
			endpoint += "?" + query.Encode()
		}
	} else {
		buf, err := json.Marshal(map[string]any(merged))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", spec.Name, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", spec.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch spec.Auth {
	case AuthRequired:
		req.Header.Set(EditKeyHeader, editKey)
	case AuthIfPresent:
		if editKey != "" {
			req.Header.Set(EditKeyHeader, editKey)
		}
	}
	return req, nil
}

// expandPath fills {placeholders} and removes the consumed params.
func (d *Dispatcher) expandPath(template string, params Params) (string, error) {
	var missing []string
	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		raw, ok := params[name]
		value := strings.TrimSpace(fmt.Sprint(raw))
		if !ok || raw == nil || value == "" {
			if name == "worker" {
				value = d.defaultWorker
			} else {
				missing = append(missing, name)
				return match
			}
		}
		delete(params, name)
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing path parameter %s", strings.Join(missing, ", "))
	}
	if strings.Contains(template, "{worker}") {
		worker, _ := url.PathUnescape(workerSegment(template, expanded))
		if !validWorker(worker) {
			return "", fmt.Errorf("unknown worker %q (want %s or %s)", worker, WorkerDynamo, WorkerLoop)
		}
	}
	return expanded, nil
}

// workerSegment returns the expanded segment at the {worker} position.
func workerSegment(template, expanded string) string {
	tparts := strings.Split(template, "/")
	eparts := strings.Split(expanded, "/")
	for i, part := range tparts {
		if part == "{worker}" && i < len(eparts) {
			return eparts[i]
		}
	}
	return ""
}

func classify(status int, contentType string, payload []byte) Result {
	isJSON := jsonContent(contentType)
	if status < 200 || status >= 300 {
		return Result{Kind: HTTPFailure, Status: status, Body: decodeLenient(isJSON, payload)}
	}
	if !isJSON {
		return Result{Kind: Success, Status: status, Body: map[string]any{"raw": string(payload)}}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return Result{Kind: Success, Status: status, Body: map[string]any{}}
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Result{Kind: TransportFailure, Status: status, Message: fmt.Sprintf("backend returned invalid json: %v", err)}
	}
	return Result{Kind: Success, Status: status, Body: decoded}
}

func decodeLenient(isJSON bool, payload []byte) any {
	if isJSON {
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err == nil {
			return decoded
		}
	}
	return map[string]any{"raw": string(payload)}
}

func jsonContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (d *Dispatcher) logResult(r Result) {
	entry := d.log.WithFields(logrus.Fields{
		"action":   r.Action,
		"kind":     r.Kind.String(),
		"status":   r.Status,
		"duration": r.Duration.Round(time.Millisecond).String(),
	})
	switch r.Kind {
	case Success:
		entry.Debug("dispatch ok")
	case Blocked:
		entry.WithField("reason", r.Reason).Info("dispatch blocked")
	default:
		entry.Warn(r.String())
	}
}

// KeySource yields the KeySet current at call time.
type KeySource func() keys.KeySet

// Session binds a Dispatcher to a KeySource so callers that do not own
// the keys (rooms, poller) can issue actions.
type Session struct {
	d    *Dispatcher
	keys KeySource
}

func (d *Dispatcher) Bind(src KeySource) *Session {
	if src == nil {
		src = keys.Defaults
	}
	return &Session{d: d, keys: src}
}

func (s *Session) Call(ctx context.Context, action string, params Params) Result {
	return s.d.Dispatch(ctx, action, params, s.keys())
}
