// Package login implements the visual presentation of the sign-in view.
package login

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/warpspeed/portal/internal/ui/components"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#CBA6F7")).
			Padding(1, 2)

	focusedBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("#89B4FA")).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Padding(1, 0)
)

// View renders the sign-in form.
func (m *LoginModel) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Width(m.width).Render("Warpspeed Portal - Sign in"))
	s.WriteString("\n\n")

	if m.notice != "" {
		s.WriteString(noticeStyle.Render(m.notice))
		s.WriteString("\n\n")
	}

	if m.isBusy {
		s.WriteString(boxStyle.Render(components.RenderStatus("running", m.statusMessage)))
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(labelStyle.Render("Method: ") + m.method.String())
	s.WriteString("\n\n")
	s.WriteString(m.viewField(FocusEmail, "Email", m.emailInput.View()))
	s.WriteString("\n")
	s.WriteString(m.viewField(FocusSecret, m.secretLabel(), m.secretInput.View()))

	if m.statusMessage != "" {
		s.WriteString("\n\n")
		s.WriteString(components.RenderStatus("info", m.statusMessage))
	}

	if m.err != nil {
		s.WriteString("\n\n")
		s.WriteString(components.RenderErrorPane(m.err, m.width))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.helpText()))
	return s.String()
}

func (m *LoginModel) secretLabel() string {
	if m.method == MethodPassword {
		return "Password"
	}
	return "Token"
}

func (m *LoginModel) helpText() string {
	if m.method == MethodPassword {
		return "Commands: [Enter] Sign in | [Tab] Next field | [Ctrl+T] Use magic link | [Esc] Quit"
	}
	if m.linkSent {
		return "Commands: [Enter] Verify token | [Tab] Edit email | [Ctrl+T] Use password | [Esc] Quit"
	}
	return "Commands: [Enter] Email me a link | [Tab] Paste token | [Ctrl+T] Use password | [Esc] Quit"
}

func (m *LoginModel) viewField(focus FocusState, label, input string) string {
	style := boxStyle
	if m.focusState == focus {
		style = focusedBoxStyle
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, labelStyle.Render(label), input))
}
