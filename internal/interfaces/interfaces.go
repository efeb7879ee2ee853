// Package interfaces defines the shared payload types and the component interfaces
// used for dependency injection across the portal client.
package interfaces

import (
	"context"
	"time"
)

// Gender values accepted by the remote profile API
const (
	GenderMale           = "MALE"
	GenderFemale         = "FEMALE"
	GenderOther          = "OTHER"
	GenderPreferNotToSay = "PREFER_NOT_TO_SAY"
)

// User represents a portal account profile
type User struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
	Gender          string `json:"gender,omitempty"`
	Nickname        string `json:"nickname,omitempty"`
	Bio             string `json:"bio,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login, register and magic-link verification
type AuthResponse struct {
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdateUserRequest is the body of PUT /auth/user
type UpdateUserRequest struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// PasswordResetRequest is the body of POST /auth/request-reset-password
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of PUT /auth/reset-password
type ResetPasswordRequest struct {
	ID                 string `json:"id"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// MagicLinkRequest is the body of POST /auth/magic-link/request
type MagicLinkRequest struct {
	Email string `json:"email"`
}

// MessageResponse is the generic {message} acknowledgement
type MessageResponse struct {
	Message string `json:"message,omitempty"`
}

// SocialAuthResponse carries the provider redirect URL for social sign-in
type SocialAuthResponse struct {
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// UploadedAttachment describes a file already uploaded to object storage
type UploadedAttachment struct {
	ObjectPath       string `json:"objectPath"`
	OriginalFilename string `json:"originalFilename"`
	Mimetype         string `json:"mimetype"`
	Size             int64  `json:"size"`
}

// AppContext tells the assistant which screen the message was sent from
type AppContext struct {
	Screen string                 `json:"screen"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// SendMessageRequest is the body of POST /ai-chat/message
type SendMessageRequest struct {
	Message             string               `json:"message"`
	ConversationID      string               `json:"conversationId,omitempty"`
	UploadedAttachments []UploadedAttachment `json:"uploadedAttachments,omitempty"`
	AppContext          *AppContext          `json:"appContext,omitempty"`
}

// Citation references a source used in an assistant reply
type Citation struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ChatMessage is a single user or assistant turn
type ChatMessage struct {
	ID                  string               `json:"id"`
	Message             string               `json:"message"`
	Role                string               `json:"role"` // "user" or "assistant"
	ConversationID      string               `json:"conversationId"`
	CreatedAt           string               `json:"createdAt"`
	UpdatedAt           string               `json:"updatedAt,omitempty"`
	Citations           []Citation           `json:"citations,omitempty"`
	UploadedAttachments []UploadedAttachment `json:"uploadedAttachments,omitempty"`
}

// Conversation summarizes a chat thread
type Conversation struct {
	ID           string       `json:"id"`
	Title        string       `json:"title,omitempty"`
	CreatedAt    string       `json:"createdAt"`
	UpdatedAt    string       `json:"updatedAt"`
	LastMessage  *ChatMessage `json:"lastMessage,omitempty"`
	MessageCount int          `json:"messageCount,omitempty"`
}

// SendMessageResponse is returned by POST /ai-chat/message
type SendMessageResponse struct {
	Message        *ChatMessage  `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	MessageID      string        `json:"messageId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// PageParams carries optional pagination query parameters; zero values are omitted
type PageParams struct {
	Page  int
	Limit int
}

// ConversationQuery filters GET /ai-chat/conversations
type ConversationQuery struct {
	PageParams
	Search string
}

// ConversationsResponse is a page of conversations
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Total         int            `json:"total,omitempty"`
	TotalPages    int            `json:"totalPages,omitempty"`
}

// ConversationMessagesResponse is a page of messages within one conversation
type ConversationMessagesResponse struct {
	Messages     []ChatMessage `json:"messages"`
	Conversation Conversation  `json:"conversation"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Total        int           `json:"total,omitempty"`
	TotalPages   int           `json:"totalPages,omitempty"`
}

// ReportMessageRequest flags an assistant message
type ReportMessageRequest struct {
	Reason   string `json:"reason,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// DownloadConversationRequest asks the API to export a conversation
type DownloadConversationRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	MessageID string `json:"messageId,omitempty"`
}

// DownloadConversationResponse carries the export location
type DownloadConversationResponse struct {
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionStore persists the bearer credential
type SessionStore interface {
	// Get returns the current credential; absence is not an error
	Get() (string, bool)

	// Set persists the credential, replacing any previous one
	Set(token string) error

	// Clear removes the credential; clearing an empty store succeeds
	Clear() error

	// Has reports whether a credential is present
	Has() bool
}

// AuthService covers the /auth endpoints
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Logout(ctx context.Context) error
	GetUserProfile(ctx context.Context) (*User, error)
	UpdateUserProfile(ctx context.Context, req UpdateUserRequest) (*User, error)
	SocialSignIn(ctx context.Context, provider string) (*SocialAuthResponse, error)
	RequestPasswordReset(ctx context.Context, req PasswordResetRequest) (*MessageResponse, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error)
	Authenticate(ctx context.Context) bool
	RequestMagicLink(ctx context.Context, email string) (*MessageResponse, error)
	VerifyMagicLink(ctx context.Context, token string) (*AuthResponse, error)
}

// ChatService covers the /ai-chat endpoints
type ChatService interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error)
	GetConversations(ctx context.Context, query ConversationQuery) (*ConversationsResponse, error)
	GetConversationMessages(ctx context.Context, conversationID string, params PageParams) (*ConversationMessagesResponse, error)
	ReportMessage(ctx context.Context, conversationID, messageID string, req ReportMessageRequest) (*MessageResponse, error)
	DownloadConversation(ctx context.Context, conversationID string, req DownloadConversationRequest) (*DownloadConversationResponse, error)
}

// SessionStatus is the liveness state reported by the probe monitor
type SessionStatus struct {
	State        string        `json:"state"` // "online", "unauthenticated", "offline", "checking"
	LastChecked  time.Time     `json:"lastChecked"`
	ResponseTime time.Duration `json:"responseTime,omitempty"`
}

// ContentRenderer formats chat messages for terminal display
type ContentRenderer interface {
	// RenderMessage renders one chat turn, highlighting fenced code blocks
	RenderMessage(msg ChatMessage, width int) (string, error)

	// RenderConversationList renders a list of conversation summaries
	RenderConversationList(conversations []Conversation, selected int) string
}
