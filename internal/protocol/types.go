// Package protocol implements the authenticated request pipeline for the
// Warpspeed API. This file defines the endpoint paths, timeout profiles and the
// request, response and statistics structures shared by every client.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Version reported in the User-Agent header
const Version = "1.0.0"

// Auth endpoint paths
const (
	EndpointLogin                = "/auth/login"
	EndpointRegister             = "/auth/register"
	EndpointLogout               = "/auth/logout"
	EndpointUser                 = "/auth/user"
	EndpointRequestResetPassword = "/auth/request-reset-password"
	EndpointResetPassword        = "/auth/reset-password"
	EndpointAuthenticate         = "/auth/authenticate"
	EndpointMagicLinkRequest     = "/auth/magic-link/request"
	EndpointMagicLinkVerify      = "/auth/magic-link/verify"
)

// Chat endpoint paths
const (
	EndpointChatMessage   = "/ai-chat/message"
	EndpointConversations = "/ai-chat/conversations"
)

// Social sign-in providers served under /auth/user/{provider}
const (
	ProviderGoogle   = "google"
	ProviderApple    = "apple"
	ProviderFacebook = "facebook"
)

// Timeout profiles
const (
	StandardTimeout    = 40 * time.Second
	LongRunningTimeout = 120 * time.Second
)

// SocialSignInPath returns the path for a supported provider
func SocialSignInPath(provider string) (string, error) {
	switch provider {
	case ProviderGoogle, ProviderApple, ProviderFacebook:
		return EndpointUser + "/" + provider, nil
	default:
		return "", fmt.Errorf("unsupported social provider: %s", provider)
	}
}

// ConversationPath returns /ai-chat/conversations/{id}
func ConversationPath(conversationID string) string {
	return EndpointConversations + "/" + url.PathEscape(conversationID)
}

// ReportMessagePath returns /ai-chat/conversations/{id}/messages/{id}/report
func ReportMessagePath(conversationID, messageID string) string {
	return ConversationPath(conversationID) + "/messages/" + url.PathEscape(messageID) + "/report"
}

// DownloadConversationPath returns /ai-chat/conversations/{id}/download
func DownloadConversationPath(conversationID string) string {
	return ConversationPath(conversationID) + "/download"
}

// Profile names a timeout configuration for one client instance
type Profile struct {
	Name    string
	Timeout time.Duration
}

// Built-in profiles
var (
	StandardProfile    = Profile{Name: "standard", Timeout: StandardTimeout}
	LongRunningProfile = Profile{Name: "long-running", Timeout: LongRunningTimeout}
)

// Request describes one API call. Body is marshalled to JSON once so the call
// can be replayed after a session recovery.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Header http.Header
}

// ResponseMetadata contains common metadata for all responses
type ResponseMetadata struct {
	RequestID     string        `json:"requestId,omitempty"`
	ResponseTime  time.Duration `json:"responseTime,omitempty"`
	ContentLength int64         `json:"contentLength,omitempty"`
	Replayed      bool          `json:"replayed,omitempty"`
}

// Response is a successful (2xx) API response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Metadata   ResponseMetadata
}

// Decode unmarshals the JSON body into v; an empty body leaves v untouched
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	return nil
}

// ConnectionStatistics tracks request counters for one client
type ConnectionStatistics struct {
	TotalRequests       int64         `json:"totalRequests"`
	SuccessfulRequests  int64         `json:"successfulRequests"`
	FailedRequests      int64         `json:"failedRequests"`
	Replays             int64         `json:"replays"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	LastRequestTime     time.Time     `json:"lastRequestTime"`
}

// RecoveryStatistics tracks coordinator activity
type RecoveryStatistics struct {
	Attempts      int64     `json:"attempts"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	WaitersQueued int64     `json:"waitersQueued"`
	LastRecovery  time.Time `json:"lastRecovery"`
}
