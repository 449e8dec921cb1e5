package console

import "github.com/charmbracelet/lipgloss"

// palette names colours by what they signal in the console.
type palette struct {
	ok      lipgloss.Color
	alert   lipgloss.Color
	accent  lipgloss.Color
	heading lipgloss.Color
	text    lipgloss.Color
	dim     lipgloss.Color
	surface lipgloss.Color
	canvas  lipgloss.Color
}

var stationPalette = palette{
	ok:      lipgloss.Color("#05ffa1"),
	alert:   lipgloss.Color("#ff71ce"),
	accent:  lipgloss.Color("#01cdfe"),
	heading: lipgloss.Color("#ffd166"),
	text:    lipgloss.Color("#f3f3ff"),
	dim:     lipgloss.Color("#9ca3d8"),
	surface: lipgloss.Color("#1b0f35"),
	canvas:  lipgloss.Color("#120924"),
}

type uiTheme struct {
	// room log
	roomRole map[string]lipgloss.Style

	// worker flags, action output, key rows
	flagOn       lipgloss.Style
	flagOff      lipgloss.Style
	outputHead   lipgloss.Style
	outputError  lipgloss.Style
	settingKey   lipgloss.Style
	settingValue lipgloss.Style
	settingPick  lipgloss.Style
	status       lipgloss.Style
	errorStatus  lipgloss.Style
	helpText     lipgloss.Style

	// frame
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	modalFrame  lipgloss.Style
	modalAccent lipgloss.Style
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func bold(c lipgloss.Color) lipgloss.Style {
	return fg(c).Bold(true)
}

// boxed is a rounded panel on the surface colour.
func (p palette) boxed(edge lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(p.surface).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(edge).
		Padding(0, 1)
}

func stationTheme() uiTheme {
	p := stationPalette
	t := uiTheme{
		roomRole: map[string]lipgloss.Style{
			"user":   bold(p.ok),
			"system": bold(p.dim),
			"other":  bold(p.accent),
		},
		flagOn:       bold(p.ok),
		flagOff:      fg(p.alert),
		outputHead:   bold(p.heading),
		outputError:  bold(p.alert),
		settingKey:   fg(p.accent),
		settingValue: fg(p.text),
		settingPick:  bold(p.alert),
		status:       bold(p.accent),
		errorStatus:  bold(p.alert),
		helpText:     fg(p.dim),
	}

	t.root = lipgloss.NewStyle().Background(p.canvas).Foreground(p.text).Padding(0, 1)
	t.header = p.boxed(p.accent).Foreground(p.text)
	t.panel = p.boxed(p.accent)
	t.inputPanel = p.boxed(p.ok)
	t.footer = p.boxed(p.alert).Foreground(p.dim)
	t.panelTitle = bold(p.ok)
	t.tabActive = bold(lipgloss.Color("#22062f")).Background(p.alert).Padding(0, 1)
	t.tabInactive = fg(p.dim).Background(lipgloss.Color("#2a184a")).Padding(0, 1)
	t.modalFrame = lipgloss.NewStyle().
		Background(p.surface).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(p.accent).
		Padding(1, 2)
	t.modalAccent = bold(p.ok)
	return t
}
