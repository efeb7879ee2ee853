// Package login implements input handling for the sign-in view.
// This file contains the Bubble Tea update function that moves focus between
// the inputs, switches sign-in method and submits requests.
package login

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/logging"
)

// Update handles messages and updates the model state.
func (m *LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	// While a request is in flight only its result is processed.
	if m.isBusy {
		switch msg := msg.(type) {
		case magicLinkSentMsg, loginFailedMsg, LoginSucceededMsg:
		case tea.WindowSizeMsg:
			m.width, m.height = msg.Width, msg.Height
			return m, nil
		default:
			return m, nil
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.err != nil {
			m.err = nil
		}
		if handled, cmd := m.handleKeys(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case magicLinkSentMsg:
		m.isBusy = false
		if msg.err != nil {
			m.err = msg.err
			m.statusMessage = ""
			return m, nil
		}
		m.linkSent = true
		m.statusMessage = msg.message
		if m.statusMessage == "" {
			m.statusMessage = "Check your inbox for a sign-in link."
		}
		m.setFocus(FocusSecret)

	case loginFailedMsg:
		m.isBusy = false
		m.statusMessage = ""
		m.err = msg.err
		logging.GetUILogger().Warn("Sign-in failed", "method", m.method.String(), "error", apierr.Message(msg.err))
		return m, nil

	case LoginSucceededMsg:
		// Normally intercepted by the parent controller.
		m.isBusy = false
		m.statusMessage = "Signed in."
		return m, nil
	}

	switch m.focusState {
	case FocusEmail:
		m.emailInput, cmd = m.emailInput.Update(msg)
	case FocusSecret:
		m.secretInput, cmd = m.secretInput.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKeys processes navigation and submit keys. It reports whether the key
// was consumed so printable input still reaches the focused field.
func (m *LoginModel) handleKeys(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return true, tea.Quit

	case "ctrl+t":
		if m.method == MethodMagicLink {
			m.method = MethodPassword
		} else {
			m.method = MethodMagicLink
		}
		m.applyMethod()
		m.statusMessage = ""
		m.setFocus(FocusEmail)
		return true, nil

	case "tab", "shift+tab", "up", "down":
		if m.focusState == FocusEmail {
			m.setFocus(FocusSecret)
		} else {
			m.setFocus(FocusEmail)
		}
		return true, nil

	case "enter":
		return true, m.submit()
	}
	return false, nil
}

// submit issues the request appropriate to the focused field and method.
func (m *LoginModel) submit() tea.Cmd {
	email := strings.TrimSpace(m.emailInput.Value())
	secret := strings.TrimSpace(m.secretInput.Value())

	switch {
	case m.focusState == FocusEmail && m.method == MethodMagicLink:
		if email == "" {
			return nil
		}
		m.isBusy = true
		m.statusMessage = "Requesting a sign-in link for " + email + "..."
		return m.requestMagicLink(email)

	case m.focusState == FocusEmail:
		m.setFocus(FocusSecret)
		return nil

	case m.method == MethodMagicLink:
		if secret == "" {
			return nil
		}
		m.isBusy = true
		m.statusMessage = "Verifying sign-in link..."
		return m.verifyToken(secret)

	default:
		if email == "" || secret == "" {
			return nil
		}
		m.isBusy = true
		m.statusMessage = "Signing in as " + email + "..."
		return m.passwordLogin(email, secret)
	}
}

func (m *LoginModel) setFocus(focus FocusState) {
	m.focusState = focus
	if focus == FocusEmail {
		m.emailInput.Focus()
		m.secretInput.Blur()
	} else {
		m.secretInput.Focus()
		m.emailInput.Blur()
	}
}
