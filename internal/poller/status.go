package poller

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ProcessInfo is one entry of the status payload's process map.
type ProcessInfo struct {
	PIDFile string `json:"pidfile"`
	Running bool   `json:"running"`
	PID     *int   `json:"pid"`
}

// StatusPayload models GET /api/status.
type StatusPayload struct {
	OK      bool                   `json:"ok"`
	TS      Timestamp              `json:"ts"`
	Root    string                 `json:"root"`
	Paths   map[string]string      `json:"paths"`
	Files   map[string]bool        `json:"files"`
	Process map[string]ProcessInfo `json:"process"`
	Hints   map[string]string      `json:"hints"`
}

// Timestamp accepts unix seconds or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if secs, err := strconv.ParseFloat(text, 64); err == nil {
			t.Time = fromUnix(secs)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	t.Time = fromUnix(secs)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}

func fromUnix(secs float64) time.Time {
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
}

// Flag is a derived yes/no indicator shown in status views.
type Flag struct {
	Label string
	On    bool
	// Known is false when the payload did not mention the source field.
	Known bool
}

// Flags derives the headline indicators from the payload.
func (s StatusPayload) Flags() []Flag {
	process := func(label, name string) Flag {
		info, ok := s.Process[name]
		return Flag{Label: label, On: ok && info.Running, Known: ok}
	}
	file := func(label, name string) Flag {
		on, ok := s.Files[name]
		return Flag{Label: label, On: on, Known: ok}
	}
	return []Flag{
		process("dynamo worker", "dynamo_worker"),
		process("loop worker", "loop_worker"),
		file("station db", "station_db_exists"),
		file("agent queue", "agent_queue_exists"),
	}
}

// ProcessNames lists process entries in sorted order.
func (s StatusPayload) ProcessNames() []string {
	names := make([]string, 0, len(s.Process))
	for name := range s.Process {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileNames lists file flags in sorted order.
func (s StatusPayload) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
