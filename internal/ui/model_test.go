// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, level rendering and key handling
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel()

	if model.state != "idle" {
		t.Errorf("expected initial state 'idle', got %q", model.state)
	}
	if model.sampleRate != 0 {
		t.Error("expected no stream initially")
	}
}

func TestStatusMsgUpdatesEngine(t *testing.T) {
	model := NewModel()

	updated, _ := model.Update(StatusMsg{
		State:      "streaming",
		Backend:    "sim",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   24,
		BlockSize:  48,
	})
	m := updated.(Model)

	if m.state != "streaming" || m.backend != "sim" {
		t.Errorf("status not applied: %q/%q", m.state, m.backend)
	}
	if m.sampleRate != 48000 || m.blockSize != 48 {
		t.Errorf("stream format not applied: %d/%d", m.sampleRate, m.blockSize)
	}
}

func TestLevelMsgUpdatesMeters(t *testing.T) {
	model := NewModel()

	updated, _ := model.Update(LevelMsg{
		Peak:   [2]float64{0.9, 0.5},
		RMS:    [2]float64{0.4, 0.2},
		Blocks: 123,
	})
	m := updated.(Model)

	if m.peak[0] != 0.9 || m.rms[1] != 0.2 || m.blocks != 123 {
		t.Errorf("levels not applied: %+v", m)
	}
}

func TestViewShowsFault(t *testing.T) {
	model := NewModel()
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	updated, _ = updated.(Model).Update(StatusMsg{State: "faulted", Fault: "xrun on buffer half 1"})

	view := updated.(Model).View()
	if !strings.Contains(view, "faulted") || !strings.Contains(view, "xrun") {
		t.Errorf("fault missing from view:\n%s", view)
	}
}

func TestQuitKey(t *testing.T) {
	model := NewModel()
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestRenderMeter(t *testing.T) {
	bar := renderMeter(0.5, 1.0, 10)
	if len([]rune(bar)) != 10 {
		t.Errorf("expected width 10, got %d", len([]rune(bar)))
	}
	if !strings.Contains(bar, "█") {
		t.Error("expected filled section")
	}
	if !strings.HasSuffix(bar, "|") {
		t.Errorf("expected peak marker at end, got %q", bar)
	}
}
