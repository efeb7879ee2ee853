// Package chat implements the /ai-chat endpoints. Message generation runs on
// the long-running client; everything else uses the standard profile.
package chat

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/protocol"
)

// Service implements interfaces.ChatService
type Service struct {
	standard    *protocol.Client
	longRunning *protocol.Client
	logger      *logging.Logger
}

// NewService creates a chat service over both client profiles
func NewService(clients *protocol.Clients) (*Service, error) {
	if clients == nil || clients.Standard == nil || clients.LongRunning == nil {
		return nil, fmt.Errorf("both standard and long-running clients are required")
	}
	if clients.Standard.Coordinator() != clients.LongRunning.Coordinator() {
		return nil, fmt.Errorf("clients must share one recovery coordinator")
	}

	return &Service{
		standard:    clients.Standard,
		longRunning: clients.LongRunning,
		logger:      logging.GetChatLogger(),
	}, nil
}

// SendMessage posts a user message and waits for the assistant reply
func (s *Service) SendMessage(ctx context.Context, req interfaces.SendMessageRequest) (*interfaces.SendMessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" && len(req.UploadedAttachments) == 0 {
		return nil, fmt.Errorf("message cannot be empty")
	}

	var out interfaces.SendMessageResponse
	resp, err := s.longRunning.Post(ctx, protocol.EndpointChatMessage, req, &out)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Assistant replied",
		"conversation_id", out.ConversationID,
		"response_time", resp.Metadata.ResponseTime)
	return &out, nil
}

// GetConversations lists conversations, optionally filtered by search
func (s *Service) GetConversations(ctx context.Context, query interfaces.ConversationQuery) (*interfaces.ConversationsResponse, error) {
	values := pageValues(query.PageParams)
	if search := strings.TrimSpace(query.Search); search != "" {
		values.Set("search", search)
	}

	var out interfaces.ConversationsResponse
	if _, err := s.standard.Get(ctx, protocol.EndpointConversations, values, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversationMessages returns one page of a conversation's messages
func (s *Service) GetConversationMessages(ctx context.Context, conversationID string, params interfaces.PageParams) (*interfaces.ConversationMessagesResponse, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID cannot be empty")
	}

	var out interfaces.ConversationMessagesResponse
	if _, err := s.standard.Get(ctx, protocol.ConversationPath(conversationID), pageValues(params), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportMessage flags an assistant message for review
func (s *Service) ReportMessage(ctx context.Context, conversationID, messageID string, req interfaces.ReportMessageRequest) (*interfaces.MessageResponse, error) {
	if conversationID == "" || messageID == "" {
		return nil, fmt.Errorf("conversation and message IDs are required")
	}

	var out interfaces.MessageResponse
	if _, err := s.standard.Post(ctx, protocol.ReportMessagePath(conversationID, messageID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadConversation asks the API to export a conversation
func (s *Service) DownloadConversation(ctx context.Context, conversationID string, req interfaces.DownloadConversationRequest) (*interfaces.DownloadConversationResponse, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID cannot be empty")
	}

	var out interfaces.DownloadConversationResponse
	if _, err := s.standard.Post(ctx, protocol.DownloadConversationPath(conversationID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageValues(p interfaces.PageParams) url.Values {
	values := url.Values{}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	return values
}

var _ interfaces.ChatService = (*Service)(nil)
