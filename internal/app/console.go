// Package app provides the console controller that orchestrates the portal
// views. It switches between the sign-in and conversation views, bootstraps a
// session when a credential is present and reacts to session invalidation
// raised by the request pipeline.
package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/probe"
	"github.com/warpspeed/portal/internal/ui/chat"
	"github.com/warpspeed/portal/internal/ui/components"
	"github.com/warpspeed/portal/internal/ui/login"
)

const eventBuffer = 16

// activeView determines which model is currently visible and receiving updates.
type activeView int

const (
	loginView activeView = iota
	loadingView
	chatView
)

func (v activeView) String() string {
	switch v {
	case loginView:
		return "login"
	case loadingView:
		return "loading"
	case chatView:
		return "chat"
	default:
		return "unknown"
	}
}

// Dependencies are the services the console drives. Monitor is optional.
type Dependencies struct {
	Auth     interfaces.AuthService
	Chat     interfaces.ChatService
	Renderer interfaces.ContentRenderer
	Store    interfaces.SessionStore
	Monitor  *probe.Monitor
}

// SessionInvalidatedMsg is delivered when session recovery fails and the
// stored credential has been cleared.
type SessionInvalidatedMsg struct {
	Err error
}

type (
	// sessionReadyMsg carries the result of the session bootstrap.
	sessionReadyMsg struct {
		user          *interfaces.User
		conversations []interfaces.Conversation
		err           error
	}

	// loggedOutMsg reports that the credential was discarded.
	loggedOutMsg struct {
		err error
	}

	// eventMsg wraps a message pushed from outside the program loop.
	eventMsg struct {
		msg tea.Msg
	}
)

// ConsoleController is the main application model that manages state
// transitions between the sign-in and conversation views.
type ConsoleController struct {
	deps Dependencies
	ctx  context.Context

	// Child UI Models
	loginModel *login.LoginModel
	chatModel  *chat.ChatModel

	// Active View State
	currentView activeView

	// Events raised outside the program loop
	events chan tea.Msg

	// Terminal dimensions
	width  int
	height int
}

// NewConsoleController creates the main controller with all dependencies injected.
func NewConsoleController(ctx context.Context, deps Dependencies) (*ConsoleController, error) {
	if deps.Auth == nil || deps.Chat == nil || deps.Renderer == nil || deps.Store == nil {
		return nil, fmt.Errorf("auth, chat, renderer and store are required")
	}

	return &ConsoleController{
		deps:        deps,
		ctx:         ctx,
		loginModel:  login.NewLoginModel(ctx, deps.Auth),
		currentView: loginView,
		events:      make(chan tea.Msg, eventBuffer),
	}, nil
}

// Notify delivers msg to the program loop. It never blocks; events are
// dropped when the buffer is full.
func (c *ConsoleController) Notify(msg tea.Msg) {
	select {
	case c.events <- msg:
	default:
		logging.GetUILogger().Warn("Dropping console event", "type", fmt.Sprintf("%T", msg))
	}
}

// InvalidationHandler adapts Notify to the request pipeline's invalidation hook.
func (c *ConsoleController) InvalidationHandler() func(error) {
	return func(err error) {
		c.Notify(SessionInvalidatedMsg{Err: err})
	}
}

// Init initializes the main controller and its initial child model.
func (c *ConsoleController) Init() tea.Cmd {
	cmds := []tea.Cmd{c.waitForEvent()}

	if c.deps.Monitor != nil {
		go c.deps.Monitor.Run(c.ctx, func(status interfaces.SessionStatus) {
			c.Notify(chat.SessionStatusMsg{Status: status})
		})
	}

	if c.deps.Store.Has() {
		c.switchTo(loadingView, "stored credential")
		cmds = append(cmds, c.bootstrap())
	} else {
		cmds = append(cmds, c.loginModel.Init())
	}
	return tea.Batch(cmds...)
}

// Update handles all messages and delegates them to the active child model.
func (c *ConsoleController) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return c, tea.Quit
		}
		if c.currentView == loadingView {
			return c, nil
		}

	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height

	case eventMsg:
		_, cmd = c.Update(msg.msg)
		return c, tea.Batch(cmd, c.waitForEvent())

	case login.LoginSucceededMsg:
		c.switchTo(loadingView, "signed in")
		return c, c.bootstrap()

	case sessionReadyMsg:
		return c, c.enterChat(msg)

	case SessionInvalidatedMsg:
		logging.GetUILogger().LogSessionChange("invalidated", apierr.Message(msg.Err))
		if c.currentView == loginView {
			// A failed sign-in already shows its own error.
			return c, nil
		}
		return c, c.enterLogin(apierr.Message(msg.Err))

	case chat.LogoutRequestedMsg:
		c.switchTo(loadingView, "logout")
		return c, c.logout()

	case loggedOutMsg:
		notice := "Signed out."
		if msg.err != nil {
			notice = "Signed out locally: " + apierr.Message(msg.err)
		}
		return c, c.enterLogin(notice)

	case chat.SessionStatusMsg:
		if c.chatModel == nil {
			return c, nil
		}
	}

	// Delegate messages to the active model.
	switch c.currentView {
	case loginView:
		_, cmd = c.loginModel.Update(msg)
		cmds = append(cmds, cmd)
	case chatView:
		_, cmd = c.chatModel.Update(msg)
		cmds = append(cmds, cmd)
	}

	return c, tea.Batch(cmds...)
}

// View renders the view of the currently active child model.
func (c *ConsoleController) View() string {
	switch c.currentView {
	case loginView:
		return c.loginModel.View()
	case loadingView:
		return components.RenderStatus("running", "Loading your session...")
	case chatView:
		return c.chatModel.View()
	default:
		return "Error: Unknown view state."
	}
}

// waitForEvent blocks on the event channel until the next external event.
func (c *ConsoleController) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-c.events:
			return eventMsg{msg: msg}
		case <-c.ctx.Done():
			return nil
		}
	}
}

// bootstrap loads the profile and the conversation list concurrently.
func (c *ConsoleController) bootstrap() tea.Cmd {
	auth, chatService := c.deps.Auth, c.deps.Chat
	ctx := c.ctx
	return func() tea.Msg {
		var (
			user          *interfaces.User
			conversations []interfaces.Conversation
		)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			profile, err := auth.GetUserProfile(groupCtx)
			if err != nil {
				return err
			}
			user = profile
			return nil
		})
		group.Go(func() error {
			page, err := chatService.GetConversations(groupCtx, interfaces.ConversationQuery{
				PageParams: interfaces.PageParams{Page: 1, Limit: 50},
			})
			if err != nil {
				return err
			}
			conversations = page.Conversations
			return nil
		})

		err := group.Wait()
		return sessionReadyMsg{user: user, conversations: conversations, err: err}
	}
}

// logout ends the remote session; the credential is discarded either way.
func (c *ConsoleController) logout() tea.Cmd {
	auth := c.deps.Auth
	ctx := c.ctx
	return func() tea.Msg {
		return loggedOutMsg{err: auth.Logout(ctx)}
	}
}

// enterChat switches to the conversation view after a bootstrap.
func (c *ConsoleController) enterChat(ready sessionReadyMsg) tea.Cmd {
	if apierr.IsUnauthorized(ready.err) || !c.deps.Store.Has() {
		return c.enterLogin(apierr.Message(ready.err))
	}

	conversations := ready.conversations
	if ready.err != nil {
		// Let the view retry the list on Init.
		conversations = nil
	}

	c.chatModel = chat.NewChatModel(c.ctx, c.deps.Chat, c.deps.Renderer, ready.user, conversations)
	if ready.err != nil {
		c.chatModel.SetError(ready.err)
	}
	if c.deps.Monitor != nil {
		c.chatModel.Update(chat.SessionStatusMsg{Status: c.deps.Monitor.Status()})
	}
	c.switchTo(chatView, "session ready")

	cmds := []tea.Cmd{c.chatModel.Init()}
	if c.width > 0 {
		_, cmd := c.chatModel.Update(tea.WindowSizeMsg{Width: c.width, Height: c.height})
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// enterLogin discards the conversation view and shows a fresh sign-in form.
func (c *ConsoleController) enterLogin(notice string) tea.Cmd {
	c.chatModel = nil
	c.loginModel = login.NewLoginModel(c.ctx, c.deps.Auth)
	c.loginModel.SetNotice(notice)
	c.switchTo(loginView, notice)

	cmds := []tea.Cmd{c.loginModel.Init()}
	if c.width > 0 {
		_, cmd := c.loginModel.Update(tea.WindowSizeMsg{Width: c.width, Height: c.height})
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (c *ConsoleController) switchTo(view activeView, reason string) {
	if c.currentView != view {
		logging.GetUILogger().LogUIStateChange(c.currentView.String(), view.String(), reason)
	}
	c.currentView = view
}
