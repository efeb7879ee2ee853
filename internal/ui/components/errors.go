package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/warpspeed/portal/internal/apierr"
)

// Styling for error components.
var (
	errorPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder(), false, true, true, true).
			BorderForeground(lipgloss.Color("#F38BA8")).
			Padding(0, 1)

	errorHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#F38BA8"))

	errorHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387")).
			Italic(true)
)

// ErrorTitle names the error class for display
func ErrorTitle(err error) string {
	switch apierr.KindOf(err) {
	case apierr.KindNetwork:
		if apierr.IsTimeout(err) {
			return "Timeout"
		}
		return "Network error"
	case apierr.KindUnauthorized:
		return "Session error"
	case apierr.KindAPI:
		return fmt.Sprintf("Request failed (%d)", apierr.StatusCode(err))
	default:
		return "Error"
	}
}

// errorHint suggests what the user can do next
func errorHint(err error) string {
	switch apierr.KindOf(err) {
	case apierr.KindNetwork:
		return "Check your connection and try again."
	case apierr.KindUnauthorized:
		return "Sign in again to continue."
	default:
		return ""
	}
}

// RenderErrorPane renders err with its class and a recovery hint
func RenderErrorPane(err error, width int) string {
	if err == nil {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(errorHeaderStyle.Render(fmt.Sprintf("❌ %s: %s", ErrorTitle(err), apierr.Message(err))))

	if hint := errorHint(err); hint != "" {
		builder.WriteRune('\n')
		builder.WriteString(errorHintStyle.Render(hint))
	}

	if width > 4 {
		return errorPaneStyle.Width(width - 4).Render(builder.String())
	}
	return errorPaneStyle.Render(builder.String())
}
