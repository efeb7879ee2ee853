// Package chat implements the conversation view of the portal console.
// This file defines the ChatModel structure containing the conversation list,
// the transcript viewport, the message input and the commands that call the
// chat service.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/warpspeed/portal/internal/interfaces"
)

const (
	sidebarWidth      = 32
	conversationLimit = 50
	messageLimit      = 100
	reportReason      = "Inaccurate or inappropriate response"
)

// FocusState represents which pane receives keyboard input.
type FocusState int

const (
	FocusInput FocusState = iota
	FocusList
)

// ChatModel represents the state of the conversation view.
type ChatModel struct {
	// Injected dependencies
	chat     interfaces.ChatService
	renderer interfaces.ContentRenderer
	ctx      context.Context

	// Session context
	user    *interfaces.User
	session interfaces.SessionStatus

	// Conversation state
	conversations      []interfaces.Conversation
	selectedIndex      int
	activeConversation *interfaces.Conversation
	messages           []interfaces.ChatMessage

	// UI components
	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	focusState FocusState

	// Operation state
	isSending     bool
	isLoading     bool
	sentAt        time.Time
	statusMessage string
	err           error

	// Terminal dimensions
	width  int
	height int
}

// NewChatModel creates the conversation view. conversations seeds the sidebar
// and may be nil.
func NewChatModel(
	ctx context.Context,
	chatService interfaces.ChatService,
	renderer interfaces.ContentRenderer,
	user *interfaces.User,
	conversations []interfaces.Conversation,
) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.CharLimit = 4000
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &ChatModel{
		chat:          chatService,
		renderer:      renderer,
		ctx:           ctx,
		user:          user,
		conversations: conversations,
		viewport:      viewport.New(80, 20),
		input:         ti,
		spinner:       sp,
		focusState:    FocusInput,
		session:       interfaces.SessionStatus{State: "checking"},
	}
}

// Init is the first command that will be executed.
func (m *ChatModel) Init() tea.Cmd {
	if m.conversations == nil {
		return tea.Batch(textinput.Blink, m.loadConversations())
	}
	return textinput.Blink
}

// Messages returns the transcript of the active conversation.
func (m *ChatModel) Messages() []interfaces.ChatMessage {
	return m.messages
}

// ActiveConversation returns the open conversation, or nil for a new one.
func (m *ChatModel) ActiveConversation() *interfaces.Conversation {
	return m.activeConversation
}

// Err returns the last failure shown in the view.
func (m *ChatModel) Err() error {
	return m.err
}

// SetError shows err in the view until the next action.
func (m *ChatModel) SetError(err error) {
	m.err = err
}

// Helper commands and messages

// LogoutRequestedMsg asks the parent controller to end the session.
type LogoutRequestedMsg struct{}

// SessionStatusMsg carries a liveness update for the status bar.
type SessionStatusMsg struct {
	Status interfaces.SessionStatus
}

type (
	// messageSentMsg reports the outcome of SendMessage.
	messageSentMsg struct {
		resp *interfaces.SendMessageResponse
		err  error
	}

	// conversationsLoadedMsg carries a page of conversations.
	conversationsLoadedMsg struct {
		resp *interfaces.ConversationsResponse
		err  error
	}

	// conversationOpenedMsg carries the transcript of one conversation.
	conversationOpenedMsg struct {
		resp *interfaces.ConversationMessagesResponse
		err  error
	}

	// actionResultMsg reports a report or download action.
	actionResultMsg struct {
		status string
		err    error
	}
)

// sendMessage posts the user's message on the long-running profile.
func (m *ChatModel) sendMessage(text, conversationID string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.chat.SendMessage(m.ctx, interfaces.SendMessageRequest{
			Message:        text,
			ConversationID: conversationID,
			AppContext:     &interfaces.AppContext{Screen: "console"},
		})
		return messageSentMsg{resp: resp, err: err}
	}
}

// loadConversations fetches the first page of conversations.
func (m *ChatModel) loadConversations() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.chat.GetConversations(m.ctx, interfaces.ConversationQuery{
			PageParams: interfaces.PageParams{Page: 1, Limit: conversationLimit},
		})
		return conversationsLoadedMsg{resp: resp, err: err}
	}
}

// openConversation fetches the messages of conversationID.
func (m *ChatModel) openConversation(conversationID string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.chat.GetConversationMessages(m.ctx, conversationID, interfaces.PageParams{Page: 1, Limit: messageLimit})
		return conversationOpenedMsg{resp: resp, err: err}
	}
}

// reportMessage flags an assistant message.
func (m *ChatModel) reportMessage(conversationID, messageID string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.chat.ReportMessage(m.ctx, conversationID, messageID, interfaces.ReportMessageRequest{
			Reason:   reportReason,
			Feedback: "Reported from the console",
		})
		if err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{status: orDefault(resp.Message, "Message reported.")}
	}
}

// downloadConversation asks the API to export the transcript.
func (m *ChatModel) downloadConversation(conversation interfaces.Conversation, transcript string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.chat.DownloadConversation(m.ctx, conversation.ID, interfaces.DownloadConversationRequest{
			Name:    exportName(conversation),
			Type:    "pdf",
			Content: transcript,
		})
		if err != nil {
			return actionResultMsg{err: err}
		}
		if resp.URL != "" {
			return actionResultMsg{status: "Download ready: " + resp.URL}
		}
		return actionResultMsg{status: orDefault(resp.Message, "Export requested.")}
	}
}

// lastAssistantMessage returns the most recent reply, if any.
func (m *ChatModel) lastAssistantMessage() (interfaces.ChatMessage, bool) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == "assistant" && m.messages[i].ID != "" {
			return m.messages[i], true
		}
	}
	return interfaces.ChatMessage{}, false
}

// transcript renders the conversation as plain text for export.
func (m *ChatModel) transcript() string {
	var b strings.Builder
	for _, msg := range m.messages {
		fmt.Fprintf(&b, "%s: %s\n\n", msg.Role, msg.Message)
	}
	return strings.TrimSpace(b.String())
}

func exportName(c interfaces.Conversation) string {
	name := strings.TrimSpace(c.Title)
	if name == "" {
		name = "conversation-" + c.ID
	}
	return name + ".pdf"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
