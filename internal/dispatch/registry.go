// Package dispatch issues named remote actions against a Station backend.
//
// Every action is described by a static Spec: its HTTP method, its path
// template, the guard policy that must pass before any request is built,
// and how the X-Edit-Key header is attached. Dispatch never panics and
// never returns a bare error; every outcome is a Result.
package dispatch

import (
	"net/http"
	"sort"

	"github.com/station-console/station/internal/guard"
	"github.com/station-console/station/internal/keys"
)

// EditKeyHeader carries the operator's edit key on privileged requests.
const EditKeyHeader = "X-Edit-Key"

// AuthMode controls when EditKeyHeader is attached.
type AuthMode int

const (
	AuthNone AuthMode = iota
	// AuthIfPresent attaches the header only when the edit key is non-blank.
	AuthIfPresent
	// AuthRequired always attaches the header. Specs with this mode carry a
	// guard policy that starts with the edit key.
	AuthRequired
)

func (m AuthMode) String() string {
	switch m {
	case AuthIfPresent:
		return "if-present"
	case AuthRequired:
		return "required"
	default:
		return "none"
	}
}

// Workers the backend can start, stop and report on.
const (
	WorkerDynamo = "dynamo"
	WorkerLoop   = "loop"
)

// DefaultWorker fills {worker} when the caller leaves it out.
const DefaultWorker = WorkerDynamo

func validWorker(name string) bool {
	return name == WorkerDynamo || name == WorkerLoop
}

// Spec describes one remote action.
type Spec struct {
	Name   string
	Method string
	// Path may contain {placeholders} filled from Params.
	Path  string
	Guard guard.Policy
	Auth  AuthMode
	// EchoEditKey copies the edit key into the JSON body as edit_mode_key.
	EchoEditKey bool
	// Fill supplies body/query params derived from the KeySet. Caller
	// params win over filled ones.
	Fill    func(keys.KeySet) Params
	Summary string
}

// Privileged reports whether the action is guarded.
func (s Spec) Privileged() bool { return len(s.Guard) > 0 }

var privileged = guard.Policy{keys.EditModeKey}

var registry = map[string]Spec{}

func register(specs ...Spec) {
	for _, s := range specs {
		registry[s.Name] = s
	}
}

func init() {
	register(
		Spec{Name: "health", Method: http.MethodGet, Path: "/health", Summary: "backend liveness"},
		Spec{Name: "healthz", Method: http.MethodGet, Path: "/healthz", Summary: "backend liveness (k8s style)"},
		Spec{Name: "status", Method: http.MethodGet, Path: "/api/status", Summary: "station files and worker processes"},

		Spec{Name: "rooms_list", Method: http.MethodGet, Path: "/rooms", Summary: "list rooms"},
		Spec{Name: "rooms_snapshot", Method: http.MethodGet, Path: "/api/rooms", Summary: "rooms snapshot"},
		Spec{Name: "room_messages", Method: http.MethodGet, Path: "/rooms/{room_id}/messages", Summary: "room message log (limit=N)"},
		Spec{Name: "room_ensure", Method: http.MethodPost, Path: "/rooms/ensure", Summary: "create a room if missing (room_id, title)"},
		Spec{Name: "room_rename", Method: http.MethodPost, Path: "/rooms/rename", Summary: "rename a room (room_id, title)"},
		Spec{Name: "room_append", Method: http.MethodPost, Path: "/rooms/{room_id}/messages", Summary: "append a message (role, text)"},

		Spec{Name: "ops_status", Method: http.MethodGet, Path: "/api/ops/{worker}/status", Auth: AuthIfPresent, Summary: "worker status"},
		Spec{Name: "ops_start", Method: http.MethodPost, Path: "/api/ops/{worker}/start", Guard: privileged, Auth: AuthRequired, Summary: "start a worker"},
		Spec{Name: "ops_stop", Method: http.MethodPost, Path: "/api/ops/{worker}/stop", Guard: privileged, Auth: AuthRequired, Summary: "stop a worker"},
		Spec{Name: "ops_rooms", Method: http.MethodGet, Path: "/api/ops/rooms", Auth: AuthIfPresent, Summary: "rooms known to the ops runner"},
		Spec{Name: "ops_room_run", Method: http.MethodPost, Path: "/api/ops/rooms/{room_id}/run", Guard: privileged, Auth: AuthRequired, Summary: "run a room"},
		Spec{Name: "logs_tail", Method: http.MethodGet, Path: "/api/ops/logs/tail", Guard: privileged, Auth: AuthRequired, Summary: "tail worker logs"},
		Spec{Name: "ops_allowed", Method: http.MethodGet, Path: "/api/ops/allowed", Summary: "commands ops_exec accepts"},
		Spec{Name: "ops_exec", Method: http.MethodPost, Path: "/api/ops/exec", Guard: privileged, Auth: AuthRequired, Summary: "run an allowed command (name)"},

		Spec{Name: "git_status", Method: http.MethodGet, Path: "/api/ops/git/status", Auth: AuthIfPresent, Summary: "repository status"},
		Spec{
			Name:        "git_push",
			Method:      http.MethodPost,
			Path:        "/api/ops/git/push",
			Guard:       guard.Policy{keys.EditModeKey, keys.GitHubToken, keys.GitHubRepo},
			Auth:        AuthRequired,
			EchoEditKey: true,
			Fill: func(keys.KeySet) Params {
				return Params{"message": "station console push"}
			},
			Summary: "commit and push (message)",
		},
		Spec{
			Name:        "deploy",
			Method:      http.MethodPost,
			Path:        "/api/ops/render/deploy",
			Guard:       guard.Policy{keys.EditModeKey, keys.RenderAPIKey, keys.RenderServiceID},
			Auth:        AuthRequired,
			EchoEditKey: true,
			Fill: func(ks keys.KeySet) Params {
				return Params{"service_id": ks.Get(keys.RenderServiceID)}
			},
			Summary: "trigger a render deploy",
		},
		Spec{
			Name:        "render_ping",
			Method:      http.MethodPost,
			Path:        "/api/ops/render/ping",
			Guard:       guard.Policy{keys.EditModeKey, keys.RenderAPIKey},
			Auth:        AuthRequired,
			EchoEditKey: true,
			Summary:     "check render credentials",
		},
		Spec{
			Name:   "openai_test",
			Method: http.MethodPost,
			Path:   "/api/ops/openai/test",
			Guard:  guard.Policy{keys.EditModeKey, keys.OpenAIKey},
			Auth:   AuthRequired,
			Fill: func(ks keys.KeySet) Params {
				return Params{"api_key": ks.Get(keys.OpenAIKey)}
			},
			Summary: "check the openai key",
		},

		Spec{Name: "config_load", Method: http.MethodGet, Path: "/api/config/uui", Summary: "fetch stored keys"},
		Spec{
			Name:   "config_save",
			Method: http.MethodPost,
			Path:   "/api/config/uui",
			Guard:  privileged,
			Auth:   AuthRequired,
			Fill: func(ks keys.KeySet) Params {
				return Params(keys.WirePayload(ks))
			},
			Summary: "push keys to the backend",
		},
		Spec{Name: "settings_load", Method: http.MethodGet, Path: "/api/settings", Summary: "fetch masked settings"},
		Spec{
			Name:   "settings_save",
			Method: http.MethodPost,
			Path:   "/api/settings",
			Guard:  privileged,
			Auth:   AuthRequired,
			Fill: func(ks keys.KeySet) Params {
				return Params(keys.FlatWire(ks))
			},
			Summary: "push settings to the backend",
		},
	)
}

// Lookup finds an action by name.
func Lookup(name string) (Spec, bool) {
	s, ok := registry[name]
	return s, ok
}

// Actions returns every registered action sorted by name.
func Actions() []Spec {
	out := make([]Spec, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
