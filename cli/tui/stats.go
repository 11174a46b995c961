package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oriys/novacore/cli/reader"
)

// StatsModel is a Bubble Tea model for the stats view.
type StatsModel struct {
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data any) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	snap, ok := m.data.(*reader.Snapshot)
	if !ok {
		return "Invalid data type for stats"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Novacore Statistics"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Webhooks"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Total", snap.Webhooks.Total, highlightColor),
		m.renderStatBox("Active", snap.Webhooks.Active, successColor),
		m.renderStatBox("Paused", snap.Webhooks.Paused, warningColor),
		m.renderStatBox("Failed", snap.Webhooks.Failed, errorColor),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Deliveries"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Queued", int(snap.Deliveries.Queued), warningColor),
		m.renderStatBox("Inflight", snap.Deliveries.Inflight, highlightColor),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Reminders"))
	b.WriteString("\n")
	b.WriteString(m.renderStatBox("Due", int(snap.Reminders.Due), warningColor))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s",
		LabelStyle.Render("Taken At:"),
		ValueStyle.Render(snap.TakenAt.Format("2006-01-02 15:04:05"))))

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	model := NewStatsModel(data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(data any) string {
	model := NewStatsModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
