package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/station-console/station/internal/dispatch"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/poller"
	"github.com/station-console/station/internal/rooms"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case pollDoneMsg:
		m.polling = false
		if !msg.ran {
			break
		}
		prevErr := m.status.LastError
		m.status = msg.state
		if !m.ready {
			m.ready = true
			m.statusLine = "ready · " + m.app.Dispatcher.BaseURL()
		}
		if msg.state.LastError != "" && msg.state.LastError != prevErr {
			m.appendLog("status poll failed: " + msg.state.LastError)
			m.statusLine = "status poll failed: " + compactSingleLine(msg.state.LastError, 140)
		} else if msg.state.LastError == "" && prevErr != "" {
			m.appendLog("status poll recovered")
			m.statusLine = "status recovered"
		}
		m.renderPanes()
	case actionDoneMsg:
		m.inflight = false
		res := msg.result
		m.appendOutput(msg.label, res)
		m.statusLine = res.Line()
		if res.OK() {
			switch res.Action {
			case "ops_start", "ops_stop":
				cmds = append(cmds, m.refreshNow())
				m.statusLine = res.Line()
			case "config_load":
				m.applyRemoteKeys(res)
			case "room_ensure", "room_rename":
				cmds = append(cmds, m.listRoomsCmd())
			case "room_append":
				cmds = append(cmds, m.loadRoomCmd(m.app.Rooms.Active()))
			}
		} else {
			m.appendLog(res.Line())
		}
		m.renderPanes()
	case roomsListedMsg:
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.roomIndex = clampInt(m.roomIndex, 0, maxInt(0, len(msg.rooms)-1))
		m.renderPanes()
	case roomLoadedMsg:
		if msg.err != nil && !isStale(msg.err) {
			m.logError(fmt.Errorf("room %s: %w", msg.roomID, msg.err))
		}
		m.renderPanes()
	case roomActionMsg:
		m.roomBusy = false
		if msg.err != nil {
			m.logError(msg.err)
		} else {
			m.statusLine = msg.status
			m.appendLog(msg.status)
		}
		m.renderPanes()
	case tickMsg:
		if msg.gen != m.tickGen {
			break
		}
		if !m.polling {
			m.polling = true
			cmds = append(cmds, m.pollCmd())
		}
		if m.activeTab == tabRooms && !m.roomBusy {
			cmds = append(cmds, m.loadRoomCmd(m.app.Rooms.Active()))
		}
		cmds = append(cmds, tickEvery(m.app.Config.PollInterval, m.tickGen))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.roomBusy {
			m.renderPanes()
		}
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm {
			break
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabStatus:
			m.statusBox, cmd = m.statusBox.Update(msg)
		case tabOps:
			m.opsView, cmd = m.opsView.Update(msg)
		case tabRooms:
			m.roomView, cmd = m.roomView.Update(msg)
		}
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.quitConfirm {
		switch key {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
			m.renderPanes()
		}
		return m, nil
	}
	if m.editingKey {
		switch key {
		case "esc":
			m.editingKey = false
			m.input.SetValue("")
			m.statusLine = "edit canceled"
			m.updateInputMode()
			m.renderPanes()
			return m, nil
		case "enter":
			cmd := m.commitKeyEdit()
			m.renderPanes()
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key {
	case "esc":
		m.beginQuitConfirm()
		return m, nil
	case "tab":
		m.switchTab((m.activeTab + 1) % tabCount)
		return m, nil
	case "shift+tab":
		m.switchTab((m.activeTab + tabCount - 1) % tabCount)
		return m, nil
	case "ctrl+r":
		return m, m.refreshNow()
	case "ctrl+l":
		m.output = m.output[:0]
		m.statusLine = "output cleared"
		m.renderPanes()
		return m, nil
	case "ctrl+w":
		m.worker = cycleString([]string{dispatch.WorkerDynamo, dispatch.WorkerLoop}, m.worker, 1)
		m.statusLine = "worker: " + m.worker
		m.renderPanes()
		return m, nil
	}

	inputEmpty := strings.TrimSpace(m.input.Value()) == ""
	switch m.activeTab {
	case tabStatus:
		switch key {
		case "r":
			return m, m.refreshNow()
		case "q":
			m.beginQuitConfirm()
		case "up", "k", "-":
			m.statusBox.LineUp(2)
		case "down", "j", "+":
			m.statusBox.LineDown(2)
		case "pgup":
			m.statusBox.LineUp(8)
		case "pgdown":
			m.statusBox.LineDown(8)
		}
		return m, nil
	case tabHelp:
		if key == "q" {
			m.beginQuitConfirm()
		}
		return m, nil
	case tabKeys:
		return m.handleKeysTab(key)
	case tabOps:
		switch key {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if raw == "" {
				if len(m.actions) == 0 {
					return m, nil
				}
				return m, m.runAction(m.actions[m.opsIndex].Name, nil)
			}
			if strings.HasPrefix(raw, "/") {
				return m, m.handleSlash(raw)
			}
			action, params, err := parseActionLine(raw)
			if err != nil {
				m.statusLine = err.Error()
				return m, nil
			}
			return m, m.runAction(action, params)
		case "up":
			if inputEmpty {
				m.opsIndex = maxInt(0, m.opsIndex-1)
				m.renderPanes()
				return m, nil
			}
		case "down":
			if inputEmpty {
				m.opsIndex = minInt(len(m.actions)-1, m.opsIndex+1)
				m.renderPanes()
				return m, nil
			}
		case "pgup", "ctrl+u":
			m.opsView.LineUp(8)
			return m, nil
		case "pgdown", "ctrl+d":
			m.opsView.LineDown(8)
			return m, nil
		}
	case tabRooms:
		switch key {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if raw == "" {
				list := m.app.Rooms.Rooms()
				if m.roomIndex < len(list) && list[m.roomIndex].ID != m.app.Rooms.Active() {
					return m, m.switchRoom(list[m.roomIndex].ID)
				}
				return m, nil
			}
			if strings.HasPrefix(raw, "/") {
				return m, m.handleSlash(raw)
			}
			return m, m.sendRoomMessage(rooms.RoleUser, raw)
		case "ctrl+p":
			m.roomIndex = maxInt(0, m.roomIndex-1)
			m.renderPanes()
			return m, nil
		case "ctrl+n":
			m.roomIndex = minInt(maxInt(0, len(m.app.Rooms.Rooms())-1), m.roomIndex+1)
			m.renderPanes()
			return m, nil
		case "up":
			if inputEmpty {
				m.roomView.LineUp(4)
				return m, nil
			}
		case "down":
			if inputEmpty {
				m.roomView.LineDown(4)
				return m, nil
			}
		case "pgup", "ctrl+u":
			m.roomView.LineUp(8)
			return m, nil
		case "pgdown", "ctrl+d":
			m.roomView.LineDown(8)
			return m, nil
		case "home":
			m.roomView.GotoTop()
			return m, nil
		case "end":
			m.roomView.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) handleKeysTab(key string) (tea.Model, tea.Cmd) {
	rows := len(keys.Fields()) + 1
	switch key {
	case "up", "k":
		m.keysIndex = maxInt(0, m.keysIndex-1)
	case "down", "j":
		m.keysIndex = minInt(rows-1, m.keysIndex+1)
	case "enter", "e":
		m.editingKey = true
		m.input.SetValue(m.keyRowValue(m.keysIndex))
		m.input.CursorEnd()
		m.updateInputMode()
		m.statusLine = "editing " + m.keyRowLabel(m.keysIndex)
	case "x", "delete":
		if m.keysIndex == 0 {
			m.statusLine = "the backend url cannot be blank"
			break
		}
		field := keys.Fields()[m.keysIndex-1]
		next, err := m.keyset.Set(field, "")
		if err != nil {
			m.logError(err)
			break
		}
		m.saveKeys(next, "cleared "+string(field))
	case "r":
		m.revealKeys = !m.revealKeys
		m.statusLine = "reveal secrets: " + onOff(m.revealKeys)
	case "p":
		m.renderPanes()
		return m, m.runAction("config_save", nil)
	case "g":
		m.renderPanes()
		return m, m.runAction("config_load", nil)
	case "q":
		m.beginQuitConfirm()
	}
	m.renderPanes()
	return m, nil
}

func (m *model) commitKeyEdit() tea.Cmd {
	value := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	m.editingKey = false
	m.updateInputMode()
	if m.keysIndex == 0 {
		normalized, err := m.app.SetBackendURL(value)
		if err != nil {
			m.logError(err)
			return nil
		}
		m.appendLog("backend set to " + normalized)
		cmd := m.refreshNow()
		m.statusLine = "backend: " + normalized
		return tea.Batch(cmd, m.listRoomsCmd())
	}
	field := keys.Fields()[m.keysIndex-1]
	next, err := m.keyset.Set(field, value)
	if err != nil {
		m.logError(err)
		return nil
	}
	m.saveKeys(next, "saved "+string(field))
	return nil
}

func (m model) keyRowLabel(idx int) string {
	if idx == 0 {
		return "Backend URL"
	}
	return keys.Fields()[idx-1].Label()
}

func (m model) keyRowValue(idx int) string {
	if idx == 0 {
		return m.app.Dispatcher.BaseURL()
	}
	return m.keyset.Get(keys.Fields()[idx-1])
}

func (m *model) switchTab(tab tabID) {
	m.activeTab = tab
	m.updateInputMode()
	m.renderPanes()
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit station console?"
}

func (m *model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	tail := parts[1:]
	rest := strings.TrimSpace(strings.Join(tail, " "))
	switch cmd {
	case "/help":
		m.switchTab(tabHelp)
		return nil
	case "/quit", "/exit":
		m.beginQuitConfirm()
		return nil
	case "/refresh":
		return m.refreshNow()
	case "/clear":
		m.output = m.output[:0]
		m.statusLine = "output cleared"
		m.renderPanes()
		return nil
	case "/worker":
		if rest == "" {
			m.worker = cycleString([]string{dispatch.WorkerDynamo, dispatch.WorkerLoop}, m.worker, 1)
		} else if rest == dispatch.WorkerDynamo || rest == dispatch.WorkerLoop {
			m.worker = rest
		} else {
			m.statusLine = "usage: /worker dynamo|loop"
			return nil
		}
		m.statusLine = "worker: " + m.worker
		m.renderPanes()
		return nil
	case "/url":
		if rest == "" {
			m.statusLine = "backend: " + m.app.Dispatcher.BaseURL()
			return nil
		}
		normalized, err := m.app.SetBackendURL(rest)
		if err != nil {
			m.logError(err)
			return nil
		}
		m.appendLog("backend set to " + normalized)
		refresh := m.refreshNow()
		m.statusLine = "backend: " + normalized
		return tea.Batch(refresh, m.listRoomsCmd())
	case "/room":
		if len(tail) == 0 {
			m.statusLine = "usage: /room <room_id>"
			return nil
		}
		return m.switchRoom(tail[0])
	case "/rooms":
		return m.listRoomsCmd()
	case "/reload":
		return m.loadRoomCmd(m.app.Rooms.Active())
	case "/ensure":
		active := m.app.Rooms.ActiveRoom()
		title := nullCoalesce(rest, nullCoalesce(active.Title, "Room "+active.ID))
		m.roomBusy = true
		return m.ensureRoomCmd(active.ID, title)
	case "/rename":
		if rest == "" {
			m.statusLine = "usage: /rename <title>"
			return nil
		}
		m.roomBusy = true
		return m.renameRoomCmd(m.app.Rooms.Active(), rest)
	case "/system":
		return m.sendRoomMessage(rooms.RoleSystem, rest)
	case "/do":
		action, params, err := parseActionLine(rest)
		if err != nil {
			m.statusLine = err.Error()
			return nil
		}
		return m.runAction(action, params)
	case "/keys":
		switch rest {
		case "push":
			return m.runAction("config_save", nil)
		case "pull":
			return m.runAction("config_load", nil)
		default:
			m.statusLine = "usage: /keys push|pull"
			return nil
		}
	default:
		m.statusLine = "unknown command: " + cmd
		return nil
	}
}

// parseActionLine splits "action key=value ..." into an action name and
// params.
func parseActionLine(raw string) (string, dispatch.Params, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("usage: <action> [key=value ...]")
	}
	action := strings.ToLower(fields[0])
	if _, ok := dispatch.Lookup(action); !ok {
		return "", nil, fmt.Errorf("unknown action: %s", action)
	}
	params, err := dispatch.ParseParams(fields[1:])
	if err != nil {
		return "", nil, err
	}
	return action, params, nil
}

func statusHeadline(s poller.State) string {
	switch {
	case s.Snapshot == nil && s.LastError != "":
		return "offline: " + compactSingleLine(s.LastError, 80)
	case s.Snapshot == nil:
		return "waiting for first status..."
	case s.LastError != "":
		return "stale · last good " + shortTime(s.Snapshot.At)
	default:
		return "live · " + shortTime(s.Snapshot.At)
	}
}
