package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oriys/novacore/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_webhook":
		content = m.renderInspectWebhook()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectWebhook() string {
	data, ok := m.data.(*reader.WebhookDetail)
	if !ok {
		return "Invalid data type for inspect_webhook"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Webhook Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"ID", data.ID},
		{"User", data.UserID},
		{"Name", data.Name},
		{"URL", data.URL},
		{"Status", data.Status},
		{"Delivered", fmt.Sprintf("%d", data.Delivered)},
		{"Failed", fmt.Sprintf("%d", data.Failed)},
		{"Max Retries", fmt.Sprintf("%d", data.MaxRetries)},
		{"Timeout", fmt.Sprintf("%dms", data.TimeoutMs)},
		{"Created At", data.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if data.MinSeverity != "" {
		rows = append(rows, []string{"Min Severity", data.MinSeverity})
	}
	if data.LastFailureAt != nil {
		rows = append(rows, []string{"Last Failure", data.LastFailureAt.Format("2006-01-02 15:04:05")})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Status" {
			value = StateStyle(data.Status).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	if len(data.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Events:\n"))
		for _, ev := range data.Events {
			b.WriteString(fmt.Sprintf("  • %s\n", ValueStyle.Render(ev)))
		}
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
