package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/station-console/station/internal/keys"
)

// Kind classifies a dispatch outcome.
type Kind int

const (
	Success Kind = iota
	Blocked
	ConfigurationError
	HTTPFailure
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "Success"
	case Blocked:
		return "Blocked"
	case ConfigurationError:
		return "ConfigurationError"
	case HTTPFailure:
		return "HttpFailure"
	case TransportFailure:
		return "TransportFailure"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Result is the outcome of one Dispatch call.
type Result struct {
	Action string
	Kind   Kind
	// Status is the HTTP status for Success and HttpFailure, else 0.
	Status int
	// Body is the decoded JSON response, or {"raw": text} when the
	// response was not JSON.
	Body any
	// Reason and Missing are set for Blocked results.
	Reason  string
	Missing keys.Field
	// Message explains ConfigurationError and TransportFailure results.
	Message  string
	Duration time.Duration
}

func (r Result) OK() bool { return r.Kind == Success }

// BodyMap returns Body as an object, or nil when it is not one.
func (r Result) BodyMap() map[string]any {
	m, _ := r.Body.(map[string]any)
	return m
}

// Decode re-decodes Body into a typed value.
func (r Result) Decode(into any) error {
	return decodeAny(r.Body, into)
}

// String renders a one-line summary such as "HttpFailure: 500 boom".
func (r Result) String() string {
	switch r.Kind {
	case Success:
		return fmt.Sprintf("%s: %d", r.Kind, r.Status)
	case Blocked:
		return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
	case HTTPFailure:
		return fmt.Sprintf("%s: %d %s", r.Kind, r.Status, summarizeBody(r.Body))
	default:
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
}

// Line prefixes String with the action name.
func (r Result) Line() string {
	return r.Action + " " + r.String()
}

// Err returns nil for Success and an *Error otherwise.
func (r Result) Err() error {
	if r.Kind == Success {
		return nil
	}
	return &Error{Action: r.Action, Kind: r.Kind, Status: r.Status, Message: r.detail()}
}

func (r Result) detail() string {
	switch r.Kind {
	case Blocked:
		return r.Reason
	case HTTPFailure:
		return summarizeBody(r.Body)
	default:
		return r.Message
	}
}

// Error is a failed Result in error form.
type Error struct {
	Action  string
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Action, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Action, e.Kind, e.Message)
}

func summarizeBody(body any) string {
	if m, ok := body.(map[string]any); ok {
		for _, key := range []string{"error", "detail", "message", "raw"} {
			if text, ok := m[key].(string); ok && strings.TrimSpace(text) != "" {
				return compactSingleLine(text, 240)
			}
		}
	}
	if body == nil {
		return ""
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return compactSingleLine(fmt.Sprint(body), 240)
	}
	return compactSingleLine(string(buf), 240)
}

func decodeAny(input any, out any) error {
	buf, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

func compactSingleLine(value string, limit int) string {
	compact := strings.Join(strings.Fields(value), " ")
	if limit > 0 && len(compact) > limit {
		if limit <= 3 {
			return compact[:limit]
		}
		return compact[:limit-3] + "..."
	}
	return compact
}
