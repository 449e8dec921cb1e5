// Package guard decides whether a privileged action may run given the
// current KeySet. Evaluation is pure: same policy and keys, same answer.
package guard

import (
	"fmt"
	"strings"

	"github.com/station-console/station/internal/keys"
)

// Policy is the ordered list of fields that must be non-blank. The first
// blank field is the one reported.
type Policy []keys.Field

// Result is the outcome of Evaluate.
type Result struct {
	Permitted bool
	Missing   keys.Field
	Reason    string
}

func Permit() Result { return Result{Permitted: true} }

func Blocked(field keys.Field) Result {
	return Result{Missing: field, Reason: field.MissingReason()}
}

// Evaluate checks policy against ks. An empty policy always permits.
func Evaluate(policy Policy, ks keys.KeySet) Result {
	for _, f := range policy {
		if strings.TrimSpace(ks.Get(f)) == "" {
			return Blocked(f)
		}
	}
	return Permit()
}

// Hint tells the operator which field to fill in.
func (r Result) Hint() string {
	if r.Permitted || r.Missing == "" {
		return ""
	}
	return fmt.Sprintf("set %s in Keys", r.Missing)
}

func (r Result) String() string {
	if r.Permitted {
		return "permitted"
	}
	return "blocked: " + r.Reason
}

// Requires reports whether f appears in the policy.
func (p Policy) Requires(f keys.Field) bool {
	for _, required := range p {
		if required == f {
			return true
		}
	}
	return false
}
