package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/station-console/station/internal/dispatch"
	"github.com/station-console/station/internal/poller"
)

var (
	okText   = color.New(color.FgGreen).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	badText  = color.New(color.FgRed).SprintFunc()
	headText = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

// printResult writes a one-line verdict followed by the body.
func printResult(w io.Writer, res dispatch.Result) {
	switch res.Kind {
	case dispatch.Success:
		fmt.Fprintf(w, "%s %s %d %s\n", okText("OK"), res.Action, res.Status, dimText(res.Duration.Round(time.Millisecond)))
	case dispatch.Blocked:
		fmt.Fprintf(w, "%s %s: %s (set %s in Keys)\n", warnText("BLOCKED"), res.Action, res.Reason, res.Missing)
		return
	default:
		fmt.Fprintf(w, "%s %s\n", badText("ERROR"), res.Line())
	}
	if res.Body != nil {
		fmt.Fprintln(w, prettyBody(res.Body))
	}
}

func prettyBody(body any) string {
	if m, ok := body.(map[string]any); ok && len(m) == 1 {
		if raw, ok := m["raw"].(string); ok {
			return raw
		}
	}
	buf, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(buf)
}

func printStatus(w io.Writer, s poller.State) {
	snap := s.Snapshot
	switch {
	case snap == nil && s.LastError != "":
		fmt.Fprintf(w, "%s %s\n", badText("UNREACHABLE"), s.LastError)
		return
	case snap == nil:
		fmt.Fprintln(w, warnText("no status yet"))
		return
	case s.Stale():
		fmt.Fprintf(w, "%s last good %s · %s\n", warnText("STALE"), snap.At.Local().Format("15:04:05"), s.LastError)
	default:
		fmt.Fprintf(w, "%s %s\n", okText("LIVE"), snap.At.Local().Format("15:04:05"))
	}

	payload := snap.Status
	for _, flag := range payload.Flags() {
		value := badText("no")
		switch {
		case !flag.Known:
			value = dimText("?")
		case flag.On:
			value = okText("yes")
		}
		fmt.Fprintf(w, "  %-16s %s\n", flag.Label, value)
	}
	if names := payload.ProcessNames(); len(names) > 0 {
		fmt.Fprintln(w, headText("Processes"))
		for _, name := range names {
			info := payload.Process[name]
			pid := "-"
			if info.PID != nil {
				pid = fmt.Sprint(*info.PID)
			}
			state := badText("stopped")
			if info.Running {
				state = okText("running")
			}
			fmt.Fprintf(w, "  %-16s %s pid=%s %s\n", name, state, pid, dimText(info.PIDFile))
		}
	}
	if len(payload.Hints) > 0 {
		fmt.Fprintln(w, headText("Hints"))
		for _, name := range []string{"start", "stop", "status"} {
			if hint, ok := payload.Hints[name]; ok {
				fmt.Fprintf(w, "  %-8s %s\n", name, hint)
			}
		}
	}
	root := payload.Root
	if strings.TrimSpace(root) == "" {
		root = "?"
	}
	ts := "?"
	if !payload.TS.IsZero() {
		ts = payload.TS.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "%s\n", dimText("root "+root+" · backend time "+ts))
}
