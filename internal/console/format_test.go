package console

import (
	"strings"
	"testing"
	"time"
)

func TestWrapTextBreaksOnWords(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	want := "the quick\nbrown fox\njumps"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if wrapText("keep\n\nblank", 0) != "keep\n\nblank" {
		t.Fatalf("width 0 should return the input unchanged")
	}
}

func TestCompactSingleLine(t *testing.T) {
	got := compactSingleLine("  status\n\tfailed:   connection refused  ", 200)
	if got != "status failed: connection refused" {
		t.Fatalf("unexpected compact line: %q", got)
	}
	if got := compactSingleLine(strings.Repeat("x", 50), 10); got != "xxxxxxx..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestCycleStringWraps(t *testing.T) {
	options := []string{"dynamo", "loop"}
	if got := cycleString(options, "loop", 1); got != "dynamo" {
		t.Fatalf("expected wrap to dynamo, got %q", got)
	}
	if got := cycleString(options, "dynamo", -1); got != "loop" {
		t.Fatalf("expected wrap to loop, got %q", got)
	}
	if got := cycleString(options, "unknown", 1); got != "loop" {
		t.Fatalf("unknown current should start from the first option, got %q", got)
	}
}

func TestPrettyJSONShowsRawText(t *testing.T) {
	if got := prettyJSON(map[string]any{"raw": "pong"}); got != "pong" {
		t.Fatalf("expected raw text, got %q", got)
	}
	if got := prettyJSON(map[string]any{"ok": true}); got != "{\n  \"ok\": true\n}" {
		t.Fatalf("unexpected json: %q", got)
	}
}

func TestShortTimeZero(t *testing.T) {
	if shortTime(time.Time{}) != "--:--:--" {
		t.Fatalf("zero time should render as dashes")
	}
}
