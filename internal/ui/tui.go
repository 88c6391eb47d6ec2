// ABOUTME: Receiver TUI for displaying live stream statistics
// ABOUTME: Real-time status display using bubbletea
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Status holds receiver state for display.
type Status struct {
	SessionID   string
	ListenPort  int
	Packets     uint64
	Lost        uint64
	Stale       uint64
	Underruns   uint64
	Malformed   uint64
	BitrateKbps float64
	PacketRate  float64
	BufferMs    float64
	BufferState string
}

// TUI manages the receiver status display.
type TUI struct {
	program *tea.Program
	updates chan Status
}

type tuiModel struct {
	status    Status
	startTime time.Time
	quitting  bool
}

type tickMsg time.Time
type statusMsg Status

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down receiver...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("ToneWire Receiver"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.ListenPort)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Buffer: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.1f ms (%s)", m.status.BufferMs, m.status.BufferState)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Packets: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d received, %.1f/s, %.1f kbps",
		m.status.Packets, m.status.PacketRate, m.status.BitrateKbps)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Problems: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d lost, %d stale, %d underruns, %d malformed",
		m.status.Lost, m.status.Stale, m.status.Underruns, m.status.Malformed)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// New creates a receiver TUI.
func New() *TUI {
	return &TUI{
		updates: make(chan Status, 10),
	}
}

// Start runs the TUI until the user quits. It blocks.
func (t *TUI) Start(initial Status) error {
	m := tuiModel{
		status:    initial,
		startTime: time.Now(),
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update without blocking.
func (t *TUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop quits the program and releases the update pump. Callers must not
// call Update after Stop.
func (t *TUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}
