package console

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/station-console/station/internal/wire"
)

// Run starts the interactive console and blocks until the operator quits.
func Run(app *wire.App) error {
	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if app.Config.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(app), opts...)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
