package dispatch

import (
	"fmt"
	"strings"
)

// ParseParams turns key=value words into Params. A word without '='
// continues the previous value, so "message=fix the build" keeps the
// whole message.
func ParseParams(words []string) (Params, error) {
	params := Params{}
	last := ""
	for _, word := range words {
		if k, v, ok := strings.Cut(word, "="); ok && k != "" {
			params[k] = v
			last = k
			continue
		}
		if last == "" {
			return nil, fmt.Errorf("expected key=value, got %q", word)
		}
		params[last] = fmt.Sprintf("%v %s", params[last], word)
	}
	return params, nil
}
