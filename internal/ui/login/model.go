// Package login implements the sign-in view of the portal console.
// This file defines the LoginModel structure holding the email and secret
// inputs, the selected sign-in method and the commands that talk to the
// auth service.
package login

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/warpspeed/portal/internal/auth"
	"github.com/warpspeed/portal/internal/interfaces"
)

// Method selects how the user proves their identity.
type Method int

const (
	MethodMagicLink Method = iota
	MethodPassword
)

func (m Method) String() string {
	if m == MethodPassword {
		return "Password"
	}
	return "Magic link"
}

// FocusState represents which input is currently focused.
type FocusState int

const (
	FocusEmail FocusState = iota
	FocusSecret
)

// LoginModel represents the state of the sign-in view.
type LoginModel struct {
	// Injected dependencies
	auth interfaces.AuthService
	ctx  context.Context

	// UI State
	method        Method
	emailInput    textinput.Model
	secretInput   textinput.Model
	focusState    FocusState
	linkSent      bool
	isBusy        bool
	statusMessage string
	notice        string
	err           error

	// Terminal dimensions
	width  int
	height int
}

// NewLoginModel creates the sign-in view. ctx bounds every auth call it issues.
func NewLoginModel(ctx context.Context, auth interfaces.AuthService) *LoginModel {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Width = 50
	email.Focus()

	secret := textinput.New()
	secret.CharLimit = 2048
	secret.Width = 50

	m := &LoginModel{
		auth:        auth,
		ctx:         ctx,
		emailInput:  email,
		secretInput: secret,
		focusState:  FocusEmail,
	}
	m.applyMethod()
	return m
}

// Init is the first command that will be executed.
func (m *LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

// SetNotice shows a message above the form, such as why the previous session ended.
func (m *LoginModel) SetNotice(notice string) {
	m.notice = notice
}

// Err returns the last sign-in failure.
func (m *LoginModel) Err() error {
	return m.err
}

// Busy reports whether a request is in flight.
func (m *LoginModel) Busy() bool {
	return m.isBusy
}

func (m *LoginModel) applyMethod() {
	m.secretInput.SetValue("")
	m.linkSent = false
	if m.method == MethodPassword {
		m.secretInput.Placeholder = "password"
		m.secretInput.EchoMode = textinput.EchoPassword
		m.secretInput.EchoCharacter = '•'
	} else {
		m.secretInput.Placeholder = "paste the token from the emailed link"
		m.secretInput.EchoMode = textinput.EchoNormal
	}
}

// Helper commands and messages

// LoginSucceededMsg is sent once a credential has been stored. It is handled
// by the parent controller, which switches to the chat view.
type LoginSucceededMsg struct {
	Response *interfaces.AuthResponse
}

type (
	// magicLinkSentMsg reports the outcome of a magic link request.
	magicLinkSentMsg struct {
		message string
		err     error
	}

	// loginFailedMsg reports a rejected verification or password login.
	loginFailedMsg struct {
		err error
	}
)

// requestMagicLink asks the API to email a sign-in link.
func (m *LoginModel) requestMagicLink(email string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.auth.RequestMagicLink(m.ctx, email)
		if err != nil {
			return magicLinkSentMsg{err: err}
		}
		return magicLinkSentMsg{message: resp.Message}
	}
}

// verifyToken exchanges a magic link token for a session.
func (m *LoginModel) verifyToken(token string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.auth.VerifyMagicLink(m.ctx, auth.MagicLinkToken(token))
		if err != nil {
			return loginFailedMsg{err: err}
		}
		return LoginSucceededMsg{Response: resp}
	}
}

// passwordLogin signs in with email and password.
func (m *LoginModel) passwordLogin(email, password string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.auth.Login(m.ctx, interfaces.LoginRequest{Email: email, Password: password})
		if err != nil {
			return loginFailedMsg{err: err}
		}
		return LoginSucceededMsg{Response: resp}
	}
}
