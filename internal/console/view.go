package console

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/station-console/station/internal/guard"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/rooms"
)

const sideListWidth = 34

func (m model) View() string {
	out := ""
	if m.quitConfirm {
		out = m.renderQuitModal()
	} else {
		header := m.renderHeader()
		content := m.renderContent()
		input := m.renderInput()
		footer := m.renderFooter()
		out = lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
	}
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabStatus, "Status"},
		{tabOps, "Ops"},
		{tabRooms, "Rooms"},
		{tabKeys, "Keys"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	meta := fmt.Sprintf(" %s · room %s · worker %s",
		backendHost(m.app.Dispatcher.BaseURL()), m.app.Rooms.Active(), m.worker)
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func backendHost(base string) string {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nullCoalesce(base, "(no backend)")
	}
	return parsed.Host
}

func (m *model) paneWidths() (int, int) {
	contentWidth := maxInt(40, m.width-4)
	left := minInt(sideListWidth, contentWidth/3)
	return left, contentWidth - left - 1
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)

	switch m.activeTab {
	case tabStatus:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Station Status") + "\n" + m.statusBox.View())
	case tabOps:
		leftWidth, rightWidth := m.paneWidths()
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Actions") + "\n" + m.renderActionList(contentHeight-3),
		)
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Output") + "\n" + m.opsView.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabRooms:
		leftWidth, rightWidth := m.paneWidths()
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Rooms") + "\n" + m.renderRoomList(),
		)
		active := m.app.Rooms.ActiveRoom()
		title := "Room " + active.ID
		if active.Title != "" && active.Title != title {
			title += " · " + active.Title
		}
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render(title) + "\n" + m.roomView.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabKeys:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Keys") + "\n" + m.renderKeys())
	case tabHelp:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Station Console Help") + "\n" + m.renderHelp())
	default:
		return ""
	}
}

func (m *model) renderStatus() string {
	var b strings.Builder
	headline := statusHeadline(m.status)
	headStyle := ternary(m.status.LastError != "", m.theme.errorStatus, m.theme.status)
	b.WriteString(headStyle.Render(headline))
	b.WriteString("\n")
	b.WriteString(m.theme.helpText.Render(fmt.Sprintf(
		"phase %s · polls %d · failures %d · every %s",
		m.status.Phase, m.status.Polls, m.status.Failures, m.app.Config.PollInterval,
	)))
	if m.status.LastError != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.outputError.Render("last error " + shortTime(m.status.LastErrorAt) + ": " + compactSingleLine(m.status.LastError, 160)))
	}
	snap := m.status.Snapshot
	if snap == nil {
		return b.String()
	}
	payload := snap.Status

	b.WriteString("\n\n")
	for _, flag := range payload.Flags() {
		style := ternary(flag.On, m.theme.flagOn, m.theme.flagOff)
		value := yesNo(flag.On)
		if !flag.Known {
			style = m.theme.helpText
			value = "?"
		}
		b.WriteString(m.theme.settingKey.Render(fmt.Sprintf("%-18s", flag.Label)) + " " + style.Render(value) + "\n")
	}

	if names := payload.ProcessNames(); len(names) > 0 {
		b.WriteString("\n" + m.theme.outputHead.Render("Processes") + "\n")
		for _, name := range names {
			info := payload.Process[name]
			pid := "-"
			if info.PID != nil {
				pid = fmt.Sprint(*info.PID)
			}
			state := ternary(info.Running, m.theme.flagOn.Render("running"), m.theme.flagOff.Render("stopped"))
			b.WriteString(fmt.Sprintf("  %-16s %s pid=%s %s\n", name, state, pid, m.theme.helpText.Render(info.PIDFile)))
		}
	}
	if names := payload.FileNames(); len(names) > 0 {
		b.WriteString("\n" + m.theme.outputHead.Render("Files") + "\n")
		for _, name := range names {
			b.WriteString(fmt.Sprintf("  %-22s %s\n", name, yesNo(payload.Files[name])))
		}
	}
	if len(payload.Hints) > 0 {
		b.WriteString("\n" + m.theme.outputHead.Render("Hints") + "\n")
		for _, name := range []string{"start", "stop", "status"} {
			if hint, ok := payload.Hints[name]; ok {
				b.WriteString(fmt.Sprintf("  %-8s %s\n", name, m.theme.helpText.Render(hint)))
			}
		}
	}
	b.WriteString("\n")
	b.WriteString(m.theme.helpText.Render(fmt.Sprintf(
		"root %s · backend ts %s · received %s",
		nullCoalesce(payload.Root, "?"), shortTime(payload.TS.Time), shortTime(snap.At),
	)))
	return b.String()
}

func (m *model) renderActionList(height int) string {
	var b strings.Builder
	start := 0
	if height > 0 && m.opsIndex >= height {
		start = m.opsIndex - height + 1
	}
	for i := start; i < len(m.actions); i++ {
		spec := m.actions[i]
		marker := " "
		markerStyle := m.theme.helpText
		if spec.Privileged() {
			if res := guard.Evaluate(spec.Guard, m.keyset); res.Permitted {
				marker, markerStyle = "●", m.theme.flagOn
			} else {
				marker, markerStyle = "○", m.theme.flagOff
			}
		}
		labelStyle := m.theme.settingKey
		prefix := "  "
		if i == m.opsIndex {
			labelStyle = m.theme.settingPick
			prefix = "▶ "
		}
		b.WriteString(prefix + markerStyle.Render(marker) + " " + labelStyle.Render(spec.Name) + "\n")
	}
	if m.opsIndex < len(m.actions) {
		spec := m.actions[m.opsIndex]
		b.WriteString("\n" + m.theme.helpText.Render(wrapText(spec.Method+" "+spec.Path, sideListWidth-4)))
		if spec.Summary != "" {
			b.WriteString("\n" + m.theme.helpText.Render(wrapText(spec.Summary, sideListWidth-4)))
		}
		if res := guard.Evaluate(spec.Guard, m.keyset); !res.Permitted {
			b.WriteString("\n" + m.theme.outputError.Render(wrapText(res.Reason+": "+res.Hint(), sideListWidth-4)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderOutput() string {
	if len(m.output) == 0 {
		return m.theme.helpText.Render("No actions run yet. Pick one on the left and press Enter.")
	}
	lines := make([]string, 0, len(m.output))
	for _, line := range m.output {
		switch {
		case strings.HasPrefix(line, ">>> "):
			lines = append(lines, m.theme.outputHead.Render(line))
		case strings.HasPrefix(line, "BLOCKED: "), strings.HasPrefix(line, "ERROR: "):
			lines = append(lines, m.theme.outputError.Render(line))
		default:
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderRoomList() string {
	list := m.app.Rooms.Rooms()
	if len(list) == 0 {
		return m.theme.helpText.Render("No rooms listed yet.\n/rooms to refresh, /room <id> to open one.")
	}
	active := m.app.Rooms.Active()
	var b strings.Builder
	for i, room := range list {
		labelStyle := m.theme.settingKey
		prefix := "  "
		if i == m.roomIndex {
			labelStyle = m.theme.settingPick
			prefix = "▶ "
		}
		marker := ternary(room.ID == active, "*", " ")
		line := truncate(fmt.Sprintf("%s %s %s", marker, room.ID, room.Title), sideListWidth-4)
		b.WriteString(prefix + labelStyle.Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderRoomLog(width int) string {
	view := m.app.Rooms.View(m.app.Rooms.Active())
	var b strings.Builder
	switch view.Phase {
	case rooms.Loading:
		b.WriteString(m.spinner.View() + " loading...\n")
	case rooms.Appending:
		b.WriteString(m.spinner.View() + " sending...\n")
	}
	if view.LastErr != "" {
		b.WriteString(m.theme.outputError.Render(compactSingleLine(view.LastErr, 160)) + "\n")
	}
	if len(view.Messages) == 0 {
		if view.Phase == rooms.Unloaded {
			b.WriteString(m.theme.helpText.Render("Room not loaded yet."))
		} else {
			b.WriteString(m.theme.helpText.Render("No messages yet. Type below to post one."))
		}
		return b.String()
	}
	for _, msg := range view.Messages {
		style, ok := m.theme.roomRole[string(msg.Role)]
		if !ok {
			style = m.theme.roomRole["other"]
		}
		prefix := style.Render(fmt.Sprintf("%s %s", shortTime(msg.CreatedAt), msg.Role))
		switch {
		case msg.Pending && msg.Sent:
			prefix += " " + m.theme.helpText.Render("(sent, unconfirmed)")
		case msg.Pending:
			prefix += " " + m.theme.helpText.Render("(sending)")
		}
		b.WriteString(prefix + "\n")
		b.WriteString(wrapText(msg.Text, maxInt(20, width-2)) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderKeys() string {
	var b strings.Builder
	b.WriteString(m.theme.helpText.Render("↑/↓ select · Enter edit · x clear · r reveal · p push to backend · g pull from backend"))
	b.WriteString("\n\n")
	rows := len(keys.Fields()) + 1
	for i := 0; i < rows; i++ {
		label := m.keyRowLabel(i)
		value := m.keyRowValue(i)
		if i > 0 {
			field := keys.Fields()[i-1]
			if field.Sensitive() && !m.revealKeys {
				value = keys.Mask(value)
			}
		}
		labelStyle := m.theme.settingKey
		valueStyle := m.theme.settingValue
		prefix := "  "
		if i == m.keysIndex {
			labelStyle = m.theme.settingPick
			valueStyle = m.theme.settingPick
			prefix = "▶ "
		}
		shown := valueStyle.Render(truncate(value, 80))
		if value == "" {
			shown = m.theme.helpText.Render("(unset)")
		}
		b.WriteString(prefix + labelStyle.Render(fmt.Sprintf("%-18s", label)) + " " + shown + "\n")
	}
	res := guard.Evaluate(guard.Policy{keys.EditModeKey}, m.keyset)
	b.WriteString("\n")
	if res.Permitted {
		b.WriteString(m.theme.flagOn.Render("privileged actions unlocked"))
	} else {
		b.WriteString(m.theme.flagOff.Render("privileged actions locked: " + res.Hint()))
	}
	b.WriteString("\n" + m.theme.helpText.Render("secrets shown: "+onOff(m.revealKeys)+" · stored in "+m.app.Config.StorePath()))
	return b.String()
}

func (m *model) renderHelp() string {
	lines := []string{
		"Core Keys",
		"- Tab / Shift+Tab: switch views",
		"- Ctrl+R: refresh status now · Ctrl+W: cycle worker (dynamo/loop)",
		"- Ctrl+L: clear action output",
		"- Esc: quit confirmation · Ctrl+C: quit",
		"",
		"Ops",
		"- Up/Down (input empty) select an action, Enter runs it",
		"- Or type: <action> key=value ... e.g. git_push message=ship it",
		"- ● unlocked · ○ needs the edit mode key",
		"",
		"Rooms",
		"- Enter sends the input to the active room",
		"- Ctrl+N / Ctrl+P pick a room, Enter on empty input opens it",
		"- PgUp/PgDn, Up/Down (input empty), Home/End scroll",
		"",
		"Slash Commands",
		"- /room <room_id>",
		"- /ensure [title]",
		"- /rename <title>",
		"- /rooms · /reload",
		"- /system <text>",
		"- /worker [dynamo|loop]",
		"- /url [backend_url]",
		"- /do <action> key=value ...",
		"- /keys push|pull",
		"- /refresh · /clear · /help · /quit",
		"",
		"Recent Activity",
	}
	if len(m.logs) == 0 {
		lines = append(lines, "- none")
	}
	for _, line := range m.logs[maxInt(0, len(m.logs)-10):] {
		lines = append(lines, "- "+line)
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	switch {
	case m.activeTab == tabRooms, m.activeTab == tabOps, m.activeTab == tabKeys && m.editingKey:
	default:
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Input is used on the Ops and Rooms tabs. Press Tab to switch."))
	}
	inputView := m.input.View()
	if m.inflight || m.roomBusy {
		inputView = m.spinner.View() + " working... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") || strings.Contains(lower, "blocked") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Tab switch view · Enter run/send · Ctrl+R refresh · PgUp/PgDn scroll · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.56), 42, 78)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}

	title := m.theme.errorStatus.Render("LEAVE THE STATION?")
	subtitle := m.theme.helpText.Render("Are you sure you want to quit the console?")
	prompt := m.theme.settingPick.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return")
	accent := m.theme.modalAccent.Render(strings.Repeat("=", 40))
	body := strings.Join([]string{
		title,
		subtitle,
		"",
		accent,
		m.theme.helpText.Render("Keys and the backend URL are saved locally."),
		accent,
		"",
		prompt,
	}, "\n")
	panel := m.theme.modalFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

// renderPanes refreshes viewport contents while keeping each pane's
// scroll position, or its bottom anchor when it was at the bottom.
func (m *model) renderPanes() {
	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)
	_, rightWidth := m.paneWidths()

	refresh := func(vp *viewport.Model, width int, content string, follow bool) {
		prevYOffset := vp.YOffset
		prevAtBottom := follow && vp.AtBottom()
		vp.Width = maxInt(20, width-4)
		vp.Height = maxInt(5, contentHeight-3)
		vp.SetContent(content)
		if prevAtBottom {
			vp.GotoBottom()
		} else {
			vp.SetYOffset(prevYOffset)
		}
	}
	refresh(&m.statusBox, contentWidth, m.renderStatus(), false)
	refresh(&m.opsView, rightWidth, m.renderOutput(), true)
	refresh(&m.roomView, rightWidth, m.renderRoomLog(rightWidth-4), true)
}
