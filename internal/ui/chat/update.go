// Package chat implements input processing for the conversation view.
// This file contains the Bubble Tea update function that routes keys between
// the conversation list and the message input and applies service results.
package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
)

// Update handles messages and updates the model state.
func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.handleGlobalKeys(msg); handled {
			return m, cmd
		}
		switch m.focusState {
		case FocusList:
			return m, m.handleListKeys(msg)
		case FocusInput:
			if handled, cmd := m.handleInputKeys(msg); handled {
				return m, cmd
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshViewport()

	case SessionStatusMsg:
		m.session = msg.Status

	case spinner.TickMsg:
		if m.isSending || m.isLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case messageSentMsg:
		m.isSending = false
		if msg.err != nil {
			m.err = msg.err
			m.statusMessage = ""
			return m, nil
		}
		cmds = append(cmds, m.applySent(msg.resp))

	case conversationsLoadedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.conversations = msg.resp.Conversations
		if m.selectedIndex >= len(m.conversations) {
			m.selectedIndex = 0
		}

	case conversationOpenedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		conversation := msg.resp.Conversation
		m.activeConversation = &conversation
		m.messages = msg.resp.Messages
		m.statusMessage = ""
		m.refreshViewport()
		m.setFocus(FocusInput)

	case actionResultMsg:
		m.isLoading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.statusMessage = msg.status
	}

	if m.focusState == FocusInput {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	// Keys belong to the input; the viewport only sees mouse and resize events.
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleGlobalKeys processes shortcuts available from either pane.
func (m *ChatModel) handleGlobalKeys(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return true, tea.Quit

	case "tab", "shift+tab":
		m.err = nil
		if m.focusState == FocusInput {
			m.setFocus(FocusList)
		} else {
			m.setFocus(FocusInput)
		}
		return true, nil

	case "ctrl+n":
		m.err = nil
		m.activeConversation = nil
		m.messages = nil
		m.statusMessage = "New conversation"
		m.refreshViewport()
		m.setFocus(FocusInput)
		return true, nil

	case "ctrl+r":
		m.err = nil
		m.isLoading = true
		return true, tea.Batch(m.loadConversations(), m.spinner.Tick)

	case "ctrl+x":
		m.err = nil
		reply, ok := m.lastAssistantMessage()
		if !ok || m.activeConversation == nil {
			m.statusMessage = "Nothing to report yet."
			return true, nil
		}
		m.isLoading = true
		m.statusMessage = "Reporting message..."
		return true, tea.Batch(m.reportMessage(m.activeConversation.ID, reply.ID), m.spinner.Tick)

	case "ctrl+d":
		m.err = nil
		if m.activeConversation == nil || len(m.messages) == 0 {
			m.statusMessage = "Open a conversation to download it."
			return true, nil
		}
		m.isLoading = true
		m.statusMessage = "Requesting export..."
		return true, tea.Batch(m.downloadConversation(*m.activeConversation, m.transcript()), m.spinner.Tick)

	case "ctrl+l":
		return true, func() tea.Msg { return LogoutRequestedMsg{} }
	}
	return false, nil
}

// handleListKeys processes key presses when the conversation list is focused.
func (m *ChatModel) handleListKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}

	case "down", "j":
		if m.selectedIndex < len(m.conversations)-1 {
			m.selectedIndex++
		}

	case "enter":
		if m.selectedIndex < len(m.conversations) {
			m.err = nil
			m.isLoading = true
			m.statusMessage = "Loading conversation..."
			return tea.Batch(m.openConversation(m.conversations[m.selectedIndex].ID), m.spinner.Tick)
		}
	}
	return nil
}

// handleInputKeys processes key presses when the message input is focused.
func (m *ChatModel) handleInputKeys(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.isSending {
			return true, nil
		}
		m.err = nil
		m.input.SetValue("")
		m.isSending = true
		m.sentAt = time.Now()
		m.statusMessage = ""

		conversationID := ""
		if m.activeConversation != nil {
			conversationID = m.activeConversation.ID
		}
		m.messages = append(m.messages, interfaces.ChatMessage{
			Role:           "user",
			Message:        text,
			ConversationID: conversationID,
			CreatedAt:      m.sentAt.UTC().Format(time.RFC3339),
		})
		m.refreshViewport()
		return true, tea.Batch(m.sendMessage(text, conversationID), m.spinner.Tick)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return true, cmd
	}
	return false, nil
}

// applySent appends the assistant reply and adopts a newly created conversation.
func (m *ChatModel) applySent(resp *interfaces.SendMessageResponse) tea.Cmd {
	logging.GetUILogger().Debug("Reply received", "duration", time.Since(m.sentAt))

	if resp.Message != nil {
		m.messages = append(m.messages, *resp.Message)
	}
	m.refreshViewport()

	if m.activeConversation != nil {
		return nil
	}

	switch {
	case resp.Conversation != nil:
		conversation := *resp.Conversation
		m.activeConversation = &conversation
	case resp.ConversationID != "":
		m.activeConversation = &interfaces.Conversation{ID: resp.ConversationID}
	case resp.Message != nil && resp.Message.ConversationID != "":
		m.activeConversation = &interfaces.Conversation{ID: resp.Message.ConversationID}
	default:
		return nil
	}

	// A new conversation was created; refresh the sidebar.
	return m.loadConversations()
}

func (m *ChatModel) setFocus(focus FocusState) {
	m.focusState = focus
	if focus == FocusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// resize fits the viewport and input to the terminal.
func (m *ChatModel) resize() {
	contentWidth := m.width - sidebarWidth - 4
	if contentWidth < 20 {
		contentWidth = 20
	}
	contentHeight := m.height - 8
	if contentHeight < 5 {
		contentHeight = 5
	}
	m.viewport.Width = contentWidth
	m.viewport.Height = contentHeight
	m.input.Width = contentWidth - 4
}

// refreshViewport re-renders the transcript and scrolls to the newest message.
func (m *ChatModel) refreshViewport() {
	if len(m.messages) == 0 {
		m.viewport.SetContent(emptyStyle.Render("Start a conversation by typing a message below."))
		return
	}

	rendered := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		out, err := m.renderer.RenderMessage(msg, m.viewport.Width)
		if err != nil {
			out = msg.Role + ": " + msg.Message
		}
		rendered = append(rendered, out)
	}
	m.viewport.SetContent(strings.Join(rendered, "\n\n"))
	m.viewport.GotoBottom()
}
