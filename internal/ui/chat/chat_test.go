package chat

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/interfaces"
)

type fakeChat struct {
	sent       []interfaces.SendMessageRequest
	reply      *interfaces.SendMessageResponse
	sendErr    error
	listed     int
	reported   [2]string
	download   interfaces.DownloadConversationRequest
	transcript *interfaces.ConversationMessagesResponse
}

func (f *fakeChat) SendMessage(_ context.Context, req interfaces.SendMessageRequest) (*interfaces.SendMessageResponse, error) {
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.reply, nil
}

func (f *fakeChat) GetConversations(_ context.Context, query interfaces.ConversationQuery) (*interfaces.ConversationsResponse, error) {
	f.listed++
	return &interfaces.ConversationsResponse{
		Conversations: []interfaces.Conversation{{ID: "c1", Title: "First"}, {ID: "c2", Title: "Second"}},
		Page:          query.Page,
		Limit:         query.Limit,
	}, nil
}

func (f *fakeChat) GetConversationMessages(_ context.Context, id string, _ interfaces.PageParams) (*interfaces.ConversationMessagesResponse, error) {
	if f.transcript != nil {
		return f.transcript, nil
	}
	return nil, apierr.NewAPIError(apierr.MsgNotFound, 404, nil)
}

func (f *fakeChat) ReportMessage(_ context.Context, conversationID, messageID string, _ interfaces.ReportMessageRequest) (*interfaces.MessageResponse, error) {
	f.reported = [2]string{conversationID, messageID}
	return &interfaces.MessageResponse{Message: "Message reported successfully"}, nil
}

func (f *fakeChat) DownloadConversation(_ context.Context, _ string, req interfaces.DownloadConversationRequest) (*interfaces.DownloadConversationResponse, error) {
	f.download = req
	return &interfaces.DownloadConversationResponse{URL: "https://files.example.com/export.pdf"}, nil
}

type plainRenderer struct{}

func (plainRenderer) RenderMessage(msg interfaces.ChatMessage, _ int) (string, error) {
	return msg.Role + ": " + msg.Message, nil
}

func (plainRenderer) RenderConversationList(conversations []interfaces.Conversation, _ int) string {
	out := ""
	for _, c := range conversations {
		out += c.Title + "\n"
	}
	return out
}

func newModel(f *fakeChat) *ChatModel {
	m := NewChatModel(context.Background(), f, plainRenderer{}, &interfaces.User{FirstName: "Ada"}, []interfaces.Conversation{})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

// run executes cmd and every command it batches, returning the messages
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// dispatch feeds the results of cmd back into the model, skipping spinner ticks
func dispatch(m *ChatModel, cmd tea.Cmd) []tea.Msg {
	msgs := run(cmd)
	var follow []tea.Msg
	for _, msg := range msgs {
		_, next := m.Update(msg)
		switch msg.(type) {
		case messageSentMsg:
			follow = append(follow, run(next)...)
		}
	}
	return append(msgs, follow...)
}

func typeAndSend(m *ChatModel, text string) tea.Cmd {
	m.input.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestSendMessage_NewConversation(t *testing.T) {
	f := &fakeChat{reply: &interfaces.SendMessageResponse{
		Message:        &interfaces.ChatMessage{ID: "m2", Role: "assistant", Message: "Hello!", ConversationID: "c9"},
		ConversationID: "c9",
	}}
	m := newModel(f)

	cmd := typeAndSend(m, "hi there")
	require.NotNil(t, cmd)
	assert.True(t, m.isSending)
	require.Len(t, m.Messages(), 1)
	assert.Equal(t, "user", m.Messages()[0].Role)
	assert.Empty(t, m.input.Value())

	dispatch(m, cmd)

	require.Len(t, f.sent, 1)
	assert.Equal(t, "hi there", f.sent[0].Message)
	assert.Empty(t, f.sent[0].ConversationID)
	assert.False(t, m.isSending)
	require.Len(t, m.Messages(), 2)
	require.NotNil(t, m.ActiveConversation())
	assert.Equal(t, "c9", m.ActiveConversation().ID)
	assert.Equal(t, 1, f.listed, "a new conversation refreshes the sidebar")
	assert.Contains(t, m.viewport.View(), "assistant: Hello!")
}

func TestSendMessage_ContinuesActiveConversation(t *testing.T) {
	f := &fakeChat{reply: &interfaces.SendMessageResponse{
		Message: &interfaces.ChatMessage{ID: "m3", Role: "assistant", Message: "Sure", ConversationID: "c1"},
	}}
	m := newModel(f)
	m.activeConversation = &interfaces.Conversation{ID: "c1"}

	dispatch(m, typeAndSend(m, "again"))

	require.Len(t, f.sent, 1)
	assert.Equal(t, "c1", f.sent[0].ConversationID)
	assert.Equal(t, 0, f.listed)
}

func TestSendMessage_Failure(t *testing.T) {
	f := &fakeChat{sendErr: &apierr.NetworkError{Message: apierr.MsgTimeout, Timeout: true}}
	m := newModel(f)

	dispatch(m, typeAndSend(m, "hello"))

	assert.False(t, m.isSending)
	assert.True(t, apierr.IsTimeout(m.Err()))
	assert.Len(t, m.Messages(), 1)
	assert.Contains(t, m.View(), apierr.MsgTimeout)
}

func TestSendMessage_IgnoresBlankInput(t *testing.T) {
	f := &fakeChat{}
	m := newModel(f)

	cmd := typeAndSend(m, "   ")

	assert.Nil(t, cmd)
	assert.Empty(t, m.Messages())
}

func TestOpenConversationFromList(t *testing.T) {
	f := &fakeChat{transcript: &interfaces.ConversationMessagesResponse{
		Conversation: interfaces.Conversation{ID: "c2", Title: "Second"},
		Messages: []interfaces.ChatMessage{
			{ID: "m1", Role: "user", Message: "question"},
			{ID: "m2", Role: "assistant", Message: "answer"},
		},
	}}
	m := newModel(f)
	m.conversations = []interfaces.Conversation{{ID: "c1", Title: "First"}, {ID: "c2", Title: "Second"}}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, FocusList, m.focusState)
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	dispatch(m, cmd)

	require.NotNil(t, m.ActiveConversation())
	assert.Equal(t, "Second", m.ActiveConversation().Title)
	assert.Len(t, m.Messages(), 2)
	assert.Equal(t, FocusInput, m.focusState)
	assert.Contains(t, m.View(), "Second")
}

func TestOpenConversation_NotFound(t *testing.T) {
	m := newModel(&fakeChat{})
	m.conversations = []interfaces.Conversation{{ID: "gone"}}
	m.setFocus(FocusList)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	dispatch(m, cmd)

	assert.Equal(t, 404, apierr.StatusCode(m.Err()))
	assert.Nil(t, m.ActiveConversation())
}

func TestReportLastAssistantMessage(t *testing.T) {
	f := &fakeChat{}
	m := newModel(f)
	m.activeConversation = &interfaces.Conversation{ID: "c1"}
	m.messages = []interfaces.ChatMessage{
		{ID: "a1", Role: "assistant", Message: "old"},
		{ID: "u1", Role: "user", Message: "q"},
		{ID: "a2", Role: "assistant", Message: "new"},
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	dispatch(m, cmd)

	assert.Equal(t, [2]string{"c1", "a2"}, f.reported)
	assert.Equal(t, "Message reported successfully", m.statusMessage)
}

func TestReportWithoutReply(t *testing.T) {
	f := &fakeChat{}
	m := newModel(f)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})

	assert.Nil(t, cmd)
	assert.Equal(t, [2]string{}, f.reported)
}

func TestDownloadConversation(t *testing.T) {
	f := &fakeChat{}
	m := newModel(f)
	m.activeConversation = &interfaces.Conversation{ID: "c1", Title: "Trip plan"}
	m.messages = []interfaces.ChatMessage{
		{ID: "u1", Role: "user", Message: "Where to?"},
		{ID: "a1", Role: "assistant", Message: "Lisbon."},
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	dispatch(m, cmd)

	assert.Equal(t, "Trip plan.pdf", f.download.Name)
	assert.Equal(t, "pdf", f.download.Type)
	assert.Equal(t, "user: Where to?\n\nassistant: Lisbon.", f.download.Content)
	assert.Contains(t, m.statusMessage, "https://files.example.com/export.pdf")
}

func TestNewConversationResetsTranscript(t *testing.T) {
	m := newModel(&fakeChat{})
	m.activeConversation = &interfaces.Conversation{ID: "c1"}
	m.messages = []interfaces.ChatMessage{{Role: "user", Message: "x"}}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.Nil(t, m.ActiveConversation())
	assert.Empty(t, m.Messages())
}

func TestLogoutIsDelegated(t *testing.T) {
	m := newModel(&fakeChat{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})

	require.NotNil(t, cmd)
	assert.Equal(t, LogoutRequestedMsg{}, cmd())
}

func TestSessionStatusShownInHeader(t *testing.T) {
	m := newModel(&fakeChat{})

	m.Update(SessionStatusMsg{Status: interfaces.SessionStatus{State: "offline"}})

	assert.Contains(t, m.View(), "offline")
	assert.Contains(t, m.View(), "Ada")
}

func TestInitLoadsConversationsWhenNotSeeded(t *testing.T) {
	f := &fakeChat{}
	m := NewChatModel(context.Background(), f, plainRenderer{}, nil, nil)

	for _, msg := range run(m.Init()) {
		if loaded, ok := msg.(conversationsLoadedMsg); ok {
			m.Update(loaded)
		}
	}

	assert.Equal(t, 1, f.listed)
	assert.Len(t, m.conversations, 2)
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "conversation-c1.pdf", exportName(interfaces.Conversation{ID: "c1"}))
	assert.Equal(t, "Notes.pdf", exportName(interfaces.Conversation{ID: "c1", Title: " Notes "}))
}
