// Package chat implements the visual presentation of the conversation view.
package chat

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

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#CBA6F7")).
			Width(sidebarWidth - 2)

	focusedSidebarStyle = sidebarStyle.
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color("#89B4FA"))

	transcriptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#45475A"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#CBA6F7"))

	focusedInputStyle = inputStyle.
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color("#89B4FA"))

	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Italic(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

// View renders the conversation view.
func (m *ChatModel) View() string {
	var s strings.Builder

	s.WriteString(m.viewHeader())
	s.WriteString("\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.viewSidebar(), transcriptStyle.Render(m.viewport.View()))
	s.WriteString(body)
	s.WriteString("\n")

	s.WriteString(m.viewInput())
	s.WriteString("\n")

	switch {
	case m.err != nil:
		s.WriteString(components.RenderErrorPane(m.err, m.width))
		s.WriteString("\n")
	case m.isLoading && m.statusMessage != "":
		s.WriteString(m.spinner.View() + " " + m.statusMessage)
		s.WriteString("\n")
	case m.statusMessage != "":
		s.WriteString(components.RenderStatus("info", m.statusMessage))
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("[Enter] Send | [Tab] Switch pane | [Ctrl+N] New | [Ctrl+R] Refresh | [Ctrl+X] Report | [Ctrl+D] Download | [Ctrl+L] Logout | [Ctrl+C] Quit"))
	return s.String()
}

func (m *ChatModel) viewHeader() string {
	title := "Warpspeed Portal"
	if m.activeConversation != nil && m.activeConversation.Title != "" {
		title += " - " + m.activeConversation.Title
	}

	who := ""
	if m.user != nil {
		who = strings.TrimSpace(m.user.FirstName + " " + m.user.LastName)
		if who == "" {
			who = m.user.Email
		}
	}

	left := titleStyle.Render(title)
	right := components.RenderSessionStatus(m.session)
	if who != "" {
		right = who + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *ChatModel) viewSidebar() string {
	style := sidebarStyle
	if m.focusState == FocusList {
		style = focusedSidebarStyle
	}
	style = style.Height(m.viewport.Height)

	if len(m.conversations) == 0 {
		return style.Render(emptyStyle.Render("No conversations yet"))
	}
	selected := -1
	if m.focusState == FocusList {
		selected = m.selectedIndex
	}
	return style.Render(m.renderer.RenderConversationList(m.conversations, selected))
}

func (m *ChatModel) viewInput() string {
	style := inputStyle
	if m.focusState == FocusInput {
		style = focusedInputStyle
	}

	prefix := "> "
	if m.isSending {
		prefix = m.spinner.View() + " "
	}
	return style.Width(m.viewport.Width + sidebarWidth).Render(prefix + m.input.View())
}
