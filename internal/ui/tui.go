// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the stream monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the monitor TUI. The caller pushes StatusMsg/LevelMsg
// updates through Program.Send and waits on Program.Run.
func Run() *tea.Program {
	return tea.NewProgram(NewModel(), tea.WithAltScreen())
}
