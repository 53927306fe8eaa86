// ABOUTME: Bubbletea model for the stream monitor TUI
// ABOUTME: Renders engine state, stream format and per-channel levels
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// StatusMsg updates the engine side of the display.
type StatusMsg struct {
	State      string
	Backend    string
	SampleRate int
	Channels   int
	BitDepth   int
	BlockSize  int
	Fault      string
}

// LevelMsg updates the meters. Values are linear 0..1.
type LevelMsg struct {
	Peak   [2]float64
	RMS    [2]float64
	Blocks uint64
	Drops  uint64
}

// Model represents the TUI state
type Model struct {
	// Engine
	state   string
	backend string
	fault   string

	// Stream
	sampleRate int
	channels   int
	bitDepth   int
	blockSize  int

	// Levels
	peak   [2]float64
	rms    [2]float64
	blocks uint64
	drops  uint64

	// Dimensions
	width  int
	height int
}

// NewModel creates the initial TUI state.
func NewModel() Model {
	return Model{state: "idle"}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case LevelMsg:
		m.peak = msg.Peak
		m.rms = msg.RMS
		m.blocks = msg.Blocks
		m.drops = msg.Drops
	}
	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Backend != "" {
		m.backend = msg.Backend
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.bitDepth = msg.BitDepth
		m.blockSize = msg.BlockSize
	}
	m.fault = msg.Fault
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStream()
	s += m.renderMeters()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	status := m.state
	if m.fault != "" {
		status = fmt.Sprintf("%s (%s)", m.state, m.fault)
	}
	return fmt.Sprintf(`┌─ Bloom Audio Monitor ────────────────────────────────┐
│ Engine:  %-43s │
│ Backend: %-43s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 43), truncate(m.backend, 43))
}

func (m Model) renderStream() string {
	if m.sampleRate == 0 {
		return "│ No stream                                            │\n"
	}
	format := fmt.Sprintf("%dHz %dch %d-bit, block %d", m.sampleRate, m.channels, m.bitDepth, m.blockSize)
	return fmt.Sprintf("│ Format: %-44s │\n", format)
}

func (m Model) renderMeters() string {
	s := "│                                                      │\n"
	names := [2]string{"L", "R"}
	for ch := 0; ch < 2; ch++ {
		bar := renderMeter(m.rms[ch], m.peak[ch], 32)
		s += fmt.Sprintf("│ %s [%s] %4.0f%%%-8s │\n", names[ch], bar, m.peak[ch]*100, "")
	}
	s += fmt.Sprintf("│ Blocks: %-12d Tap drops: %-12d        │\n", m.blocks, m.drops)
	return s
}

func (m Model) renderHelp() string {
	return `│ q:Quit                                               │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// renderMeter draws an RMS bar with a peak marker.
func renderMeter(rms, peak float64, width int) string {
	filled := int(clamp01(rms) * float64(width))
	peakPos := int(clamp01(peak) * float64(width-1))

	b := []rune(strings.Repeat(" ", width))
	for i := 0; i < filled; i++ {
		b[i] = '█'
	}
	if peakPos >= filled && peakPos < width {
		b[peakPos] = '|'
	}
	return string(b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
