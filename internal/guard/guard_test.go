package guard

import (
	"testing"

	"github.com/station-console/station/internal/keys"
)

func withKeys(t *testing.T, values map[keys.Field]string) keys.KeySet {
	t.Helper()
	ks := keys.Defaults()
	for f, v := range values {
		next, err := ks.Set(f, v)
		if err != nil {
			t.Fatalf("set %s: %v", f, err)
		}
		ks = next
	}
	return ks
}

func TestEvaluate(t *testing.T) {
	push := Policy{keys.EditModeKey, keys.GitHubToken, keys.GitHubRepo}
	tests := []struct {
		name    string
		policy  Policy
		values  map[keys.Field]string
		allowed bool
		reason  string
	}{
		{name: "empty policy", policy: nil, values: map[keys.Field]string{keys.EditModeKey: ""}, allowed: true},
		{name: "edit key blank", policy: push, values: map[keys.Field]string{keys.EditModeKey: ""}, reason: "edit mode key missing"},
		{name: "edit key whitespace", policy: push, values: map[keys.Field]string{keys.EditModeKey: "   "}, reason: "edit mode key missing"},
		{name: "first missing wins", policy: push, values: map[keys.Field]string{keys.EditModeKey: "k"}, reason: "github token missing"},
		{name: "repo missing", policy: push, values: map[keys.Field]string{keys.GitHubToken: "t"}, reason: "github repo missing"},
		{name: "all present", policy: push, values: map[keys.Field]string{keys.GitHubToken: "t", keys.GitHubRepo: "a/b"}, allowed: true},
		{name: "deploy", policy: Policy{keys.EditModeKey, keys.RenderAPIKey, keys.RenderServiceID}, values: map[keys.Field]string{keys.RenderAPIKey: "r"}, reason: "render service id missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.policy, withKeys(t, tt.values))
			if got.Permitted != tt.allowed {
				t.Fatalf("permitted = %v, want %v (%s)", got.Permitted, tt.allowed, got.Reason)
			}
			if got.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	ks := withKeys(t, map[keys.Field]string{keys.EditModeKey: ""})
	policy := Policy{keys.EditModeKey, keys.OpenAIKey}
	first := Evaluate(policy, ks)
	for i := 0; i < 5; i++ {
		if got := Evaluate(policy, ks); got != first {
			t.Fatalf("evaluation changed: %#v vs %#v", got, first)
		}
	}
}

func TestHint(t *testing.T) {
	r := Blocked(keys.EditModeKey)
	if r.Hint() != "set editModeKey in Keys" {
		t.Fatalf("unexpected hint %q", r.Hint())
	}
	if Permit().Hint() != "" {
		t.Fatalf("permit should have no hint")
	}
	if !(Policy{keys.EditModeKey}).Requires(keys.EditModeKey) {
		t.Fatalf("expected Requires to find edit key")
	}
}
