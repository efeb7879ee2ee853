package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/content"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/session"
	"github.com/warpspeed/portal/internal/ui/chat"
	"github.com/warpspeed/portal/internal/ui/login"
)

type fakeAuth struct {
	interfaces.AuthService
	store      interfaces.SessionStore
	profileErr error
	profiles   atomic.Int32
	logouts    atomic.Int32
}

func (f *fakeAuth) GetUserProfile(context.Context) (*interfaces.User, error) {
	f.profiles.Add(1)
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &interfaces.User{ID: "u1", FirstName: "Ada", Email: "ada@example.com"}, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logouts.Add(1)
	return f.store.Clear()
}

type fakeChat struct {
	interfaces.ChatService
	listed atomic.Int32
}

func (f *fakeChat) GetConversations(context.Context, interfaces.ConversationQuery) (*interfaces.ConversationsResponse, error) {
	f.listed.Add(1)
	return &interfaces.ConversationsResponse{Conversations: []interfaces.Conversation{{ID: "c1", Title: "First"}}}, nil
}

type fixture struct {
	controller *ConsoleController
	auth       *fakeAuth
	chat       *fakeChat
	store      *session.MemoryStore
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	store := session.NewMemoryStore(session.DefaultOptions(false), nil)
	if token != "" {
		require.NoError(t, store.Set(token))
	}
	f := &fixture{auth: &fakeAuth{store: store}, chat: &fakeChat{}, store: store}

	controller, err := NewConsoleController(context.Background(), Dependencies{
		Auth:     f.auth,
		Chat:     f.chat,
		Renderer: content.NewRenderer(),
		Store:    store,
	})
	require.NoError(t, err)
	f.controller = controller
	return f
}

func TestInit_WithoutCredentialShowsLogin(t *testing.T) {
	f := newFixture(t, "")

	f.controller.Init()

	assert.Equal(t, loginView, f.controller.currentView)
	assert.Contains(t, f.controller.View(), "Sign in")
}

func TestInit_WithCredentialBootstrapsConcurrently(t *testing.T) {
	f := newFixture(t, "stored-token")

	f.controller.Init()
	require.Equal(t, loadingView, f.controller.currentView)

	msg := f.controller.bootstrap()()
	ready, ok := msg.(sessionReadyMsg)
	require.True(t, ok)
	require.NoError(t, ready.err)

	f.controller.Update(ready)

	assert.Equal(t, chatView, f.controller.currentView)
	assert.EqualValues(t, 1, f.auth.profiles.Load())
	assert.EqualValues(t, 1, f.chat.listed.Load())
	assert.Contains(t, f.controller.View(), "Ada")
}

func TestBootstrap_UnauthorizedReturnsToLogin(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.auth.profileErr = apierr.NewUnauthorizedError(apierr.MsgSessionExpired)

	f.controller.Update(f.controller.bootstrap()())

	assert.Equal(t, loginView, f.controller.currentView)
	assert.Contains(t, f.controller.View(), apierr.MsgSessionExpired)
}

func TestBootstrap_NetworkErrorKeepsChatView(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.auth.profileErr = &apierr.NetworkError{Message: apierr.MsgNetwork}

	f.controller.Update(f.controller.bootstrap()())

	assert.Equal(t, chatView, f.controller.currentView)
	assert.True(t, apierr.IsNetwork(f.controller.chatModel.Err()))
}

func TestLoginSucceededStartsBootstrap(t *testing.T) {
	f := newFixture(t, "")

	_, cmd := f.controller.Update(login.LoginSucceededMsg{Response: &interfaces.AuthResponse{Token: "t"}})

	assert.Equal(t, loadingView, f.controller.currentView)
	require.NotNil(t, cmd)
	assert.IsType(t, sessionReadyMsg{}, cmd())
}

func TestSessionInvalidatedSwitchesToLogin(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.controller.Update(f.controller.bootstrap()())
	require.Equal(t, chatView, f.controller.currentView)

	f.controller.Update(SessionInvalidatedMsg{Err: apierr.NewUnauthorizedError(apierr.MsgSessionExpired)})

	assert.Equal(t, loginView, f.controller.currentView)
	assert.Nil(t, f.controller.chatModel)
	assert.Contains(t, f.controller.View(), apierr.MsgSessionExpired)
}

func TestSessionInvalidatedDuringLoginKeepsForm(t *testing.T) {
	f := newFixture(t, "")
	form := f.controller.loginModel

	f.controller.Update(SessionInvalidatedMsg{Err: apierr.NewUnauthorizedError(apierr.MsgNoToken)})

	assert.Equal(t, loginView, f.controller.currentView)
	assert.Same(t, form, f.controller.loginModel)
}

func TestInvalidationHandlerDeliversThroughEventLoop(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.controller.Update(f.controller.bootstrap()())

	f.controller.InvalidationHandler()(apierr.NewUnauthorizedError(apierr.MsgSessionExpired))

	done := make(chan tea.Msg, 1)
	go func() { done <- f.controller.waitForEvent()() }()

	select {
	case msg := <-done:
		wrapped, ok := msg.(eventMsg)
		require.True(t, ok)
		assert.IsType(t, SessionInvalidatedMsg{}, wrapped.msg)

		_, cmd := f.controller.Update(msg)
		assert.NotNil(t, cmd, "the event loop is re-armed")
		assert.Equal(t, loginView, f.controller.currentView)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	f := newFixture(t, "")

	for i := 0; i < eventBuffer+5; i++ {
		f.controller.Notify(chat.SessionStatusMsg{})
	}

	assert.Len(t, f.controller.events, eventBuffer)
}

func TestLogoutClearsSessionAndShowsLogin(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.controller.Update(f.controller.bootstrap()())

	_, cmd := f.controller.Update(chat.LogoutRequestedMsg{})
	require.NotNil(t, cmd)
	f.controller.Update(cmd())

	assert.EqualValues(t, 1, f.auth.logouts.Load())
	assert.False(t, f.store.Has())
	assert.Equal(t, loginView, f.controller.currentView)
	assert.Contains(t, f.controller.View(), "Signed out.")
}

func TestSessionStatusForwardedToChat(t *testing.T) {
	f := newFixture(t, "stored-token")
	f.controller.Update(f.controller.bootstrap()())

	f.controller.Update(chat.SessionStatusMsg{Status: interfaces.SessionStatus{State: "offline"}})

	assert.Contains(t, f.controller.View(), "offline")
}

func TestCtrlCQuits(t *testing.T) {
	f := newFixture(t, "")

	_, cmd := f.controller.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestNewConsoleController_RequiresDependencies(t *testing.T) {
	_, err := NewConsoleController(context.Background(), Dependencies{})
	assert.Error(t, err)
}
