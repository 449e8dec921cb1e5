// Package console is the interactive terminal front end: live status,
// guarded ops actions, room conversations and key management.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/station-console/station/internal/dispatch"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/poller"
	"github.com/station-console/station/internal/rooms"
	"github.com/station-console/station/internal/wire"
)

const (
	maxOutputLines = 400
	maxLogLines    = 50
)

type tabID int

const (
	tabStatus tabID = iota
	tabOps
	tabRooms
	tabKeys
	tabHelp
	tabCount
)

type model struct {
	app *wire.App

	keyset  keys.KeySet
	status  poller.State
	actions []dispatch.Spec
	worker  string

	ready       bool
	statusLine  string
	logs        []string
	output      []string
	activeTab   tabID
	opsIndex    int
	roomIndex   int
	keysIndex   int
	editingKey  bool
	revealKeys  bool
	inflight    bool
	polling     bool
	roomBusy    bool
	tickGen     int
	quitConfirm bool

	width  int
	height int

	input     textinput.Model
	opsView   viewport.Model
	roomView  viewport.Model
	statusBox viewport.Model
	spinner   spinner.Model

	theme uiTheme
}

type pollDoneMsg struct {
	ran   bool
	state poller.State
}

type actionDoneMsg struct {
	label  string
	result dispatch.Result
}

type roomsListedMsg struct {
	rooms []rooms.Room
	err   error
}

type roomLoadedMsg struct {
	roomID string
	err    error
}

type roomActionMsg struct {
	roomID string
	status string
	err    error
}

type tickMsg struct {
	at  time.Time
	gen int
}

func newModel(app *wire.App) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Blur()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = fg(stationPalette.ok)

	opsView := viewport.New(0, 0)
	opsView.MouseWheelEnabled = true
	opsView.MouseWheelDelta = 4
	roomView := viewport.New(0, 0)
	roomView.MouseWheelEnabled = true
	roomView.MouseWheelDelta = 4
	statusBox := viewport.New(0, 0)
	statusBox.MouseWheelEnabled = true
	statusBox.MouseWheelDelta = 4

	m := model{
		app:        app,
		keyset:     app.KeySet(),
		status:     app.Poller.State(),
		actions:    dispatch.Actions(),
		worker:     app.Config.DefaultWorker,
		statusLine: "starting...",
		logs:       []string{},
		output:     []string{},
		activeTab:  tabStatus,
		input:      input,
		opsView:    opsView,
		roomView:   roomView,
		statusBox:  statusBox,
		spinner:    sp,
		theme:      stationTheme(),
	}
	m.updateInputMode()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.pollCmd(),
		m.listRoomsCmd(),
		m.loadRoomCmd(m.app.Rooms.Active()),
		tickEvery(m.app.Config.PollInterval, m.tickGen),
	)
}

func tickEvery(interval time.Duration, gen int) tea.Cmd {
	if interval <= 0 {
		interval = poller.DefaultInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg{at: t, gen: gen}
	})
}

func (m model) pollCmd() tea.Cmd {
	p := m.app.Poller
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ran := p.Poll(ctx)
		return pollDoneMsg{ran: ran, state: p.State()}
	}
}

// refreshNow polls out of cadence and restarts the tick chain so the next
// automatic poll is a full interval away.
func (m *model) refreshNow() tea.Cmd {
	m.tickGen++
	cmds := []tea.Cmd{tickEvery(m.app.Config.PollInterval, m.tickGen)}
	if !m.polling {
		m.polling = true
		cmds = append(cmds, m.pollCmd())
	}
	m.statusLine = "refreshing status..."
	return tea.Batch(cmds...)
}

func (m model) actionCmd(label, action string, params dispatch.Params) tea.Cmd {
	d := m.app.Dispatcher
	ks := m.keyset
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return actionDoneMsg{label: label, result: d.Dispatch(ctx, action, params, ks)}
	}
}

// runAction starts action unless another one is in flight.
func (m *model) runAction(action string, params dispatch.Params) tea.Cmd {
	if m.inflight {
		m.statusLine = "busy: wait for the running action"
		return nil
	}
	spec, ok := dispatch.Lookup(action)
	if !ok {
		m.statusLine = "unknown action: " + action
		return nil
	}
	if params == nil {
		params = dispatch.Params{}
	}
	if strings.Contains(spec.Path, "{worker}") {
		if _, ok := params["worker"]; !ok {
			params["worker"] = m.worker
		}
	}
	if strings.Contains(spec.Path, "{room_id}") {
		if _, ok := params["room_id"]; !ok {
			params["room_id"] = m.app.Rooms.Active()
		}
	}
	m.inflight = true
	m.statusLine = "running " + action + "..."
	return m.actionCmd(actionLabel(action, params), action, params)
}

func actionLabel(action string, params dispatch.Params) string {
	if worker, ok := params["worker"]; ok {
		return fmt.Sprintf("%s (%v)", action, worker)
	}
	if room, ok := params["room_id"]; ok {
		return fmt.Sprintf("%s (room %v)", action, room)
	}
	return action
}

func (m model) listRoomsCmd() tea.Cmd {
	mgr := m.app.Rooms
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		list, err := mgr.ListRooms(ctx)
		return roomsListedMsg{rooms: list, err: err}
	}
}

func (m model) loadRoomCmd(roomID string) tea.Cmd {
	mgr := m.app.Rooms
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := mgr.LoadMessages(ctx, roomID, mgr.Limit())
		return roomLoadedMsg{roomID: roomID, err: err}
	}
}

func (m model) appendRoomCmd(roomID string, role rooms.Role, text string) tea.Cmd {
	mgr := m.app.Rooms
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mgr.AppendMessage(ctx, roomID, role, text)
		return roomActionMsg{roomID: roomID, status: "message sent to " + roomID, err: err}
	}
}

func (m model) ensureRoomCmd(roomID, title string) tea.Cmd {
	mgr := m.app.Rooms
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mgr.EnsureRoom(ctx, roomID, title)
		return roomActionMsg{roomID: roomID, status: "room ensured: " + roomID, err: err}
	}
}

func (m model) renameRoomCmd(roomID, title string) tea.Cmd {
	mgr := m.app.Rooms
	timeout := m.app.Config.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mgr.RenameRoom(ctx, roomID, title)
		return roomActionMsg{roomID: roomID, status: "room renamed: " + title, err: err}
	}
}

// switchRoom activates roomID now and loads it in the background.
func (m *model) switchRoom(roomID string) tea.Cmd {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil
	}
	m.app.Rooms.Activate(roomID)
	for i, r := range m.app.Rooms.Rooms() {
		if r.ID == roomID {
			m.roomIndex = i
		}
	}
	m.roomView.GotoBottom()
	m.statusLine = "room " + roomID
	m.renderPanes()
	return m.loadRoomCmd(roomID)
}

func (m *model) sendRoomMessage(role rooms.Role, text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		m.statusLine = "nothing to send"
		return nil
	}
	roomID := m.app.Rooms.Active()
	if roomID == "" {
		m.logError(rooms.ErrNoActiveRoom)
		return nil
	}
	m.roomBusy = true
	m.statusLine = "sending to " + roomID + "..."
	return m.appendRoomCmd(roomID, role, text)
}

// saveKeys persists ks and adopts it. On failure the previous set stays.
func (m *model) saveKeys(ks keys.KeySet, status string) {
	if err := m.app.SaveKeySet(ks); err != nil {
		m.logError(err)
		return
	}
	m.keyset = ks
	m.statusLine = status
	m.appendLog(status)
}

func (m *model) applyRemoteKeys(res dispatch.Result) {
	merged, changed := keys.MergeRemote(m.keyset, res.Body)
	if changed == 0 {
		m.statusLine = "remote keys match local keys"
		return
	}
	m.saveKeys(merged, fmt.Sprintf("pulled %d key(s) from backend", changed))
}

func (m *model) appendOutput(label string, res dispatch.Result) {
	lines := []string{">>> " + label}
	switch res.Kind {
	case dispatch.Success:
		lines = append(lines, strings.Split(prettyJSON(res.Body), "\n")...)
	case dispatch.Blocked:
		lines = append(lines, fmt.Sprintf("BLOCKED: %s (set %s in Keys)", res.Reason, res.Missing))
	case dispatch.HTTPFailure:
		lines = append(lines, "ERROR: "+res.String())
		if res.Body != nil {
			lines = append(lines, strings.Split(prettyJSON(res.Body), "\n")...)
		}
	default:
		lines = append(lines, "ERROR: "+res.String())
	}
	lines = append(lines, "")
	m.output = append(m.output, lines...)
	if len(m.output) > maxOutputLines {
		m.output = m.output[len(m.output)-maxOutputLines:]
	}
	m.opsView.GotoBottom()
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(err.Error(), 160)
	m.app.Log.WithError(err).Warn("console error")
}

// updateInputMode focuses the input on tabs that take text.
func (m *model) updateInputMode() {
	switch {
	case m.activeTab == tabRooms:
		m.input.Placeholder = "Message the room, or /help for commands"
		m.input.Focus()
	case m.activeTab == tabOps:
		m.input.Placeholder = "action key=value ... (Enter on empty runs the selected action)"
		m.input.Focus()
	case m.activeTab == tabKeys && m.editingKey:
		m.input.Placeholder = "new value, Enter to save, Esc to cancel"
		m.input.Focus()
	default:
		m.input.Placeholder = ""
		m.input.Blur()
	}
}

func isStale(err error) bool {
	return errors.Is(err, rooms.ErrStale)
}
