// Package auth implements the /auth endpoints on top of the request pipeline.
// Operations that yield a credential (login, register, magic-link verification)
// store it in the session store; logout always drops the local session.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/protocol"
)

// Service implements interfaces.AuthService
type Service struct {
	client *protocol.Client
	store  interfaces.SessionStore
	logger *logging.Logger
}

// NewService creates an auth service over the standard-profile client
func NewService(client *protocol.Client, store interfaces.SessionStore) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}

	return &Service{
		client: client,
		store:  store,
		logger: logging.GetAuthLogger(),
	}, nil
}

// Login authenticates with email and password
func (s *Service) Login(ctx context.Context, req interfaces.LoginRequest) (*interfaces.AuthResponse, error) {
	return s.credentialCall(ctx, "login", &protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.EndpointLogin,
		Body:   req,
	})
}

// Register creates an account and signs it in
func (s *Service) Register(ctx context.Context, req interfaces.RegisterRequest) (*interfaces.AuthResponse, error) {
	return s.credentialCall(ctx, "register", &protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.EndpointRegister,
		Body:   req,
	})
}

// VerifyMagicLink exchanges a magic-link token for a session credential
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*interfaces.AuthResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("magic link token cannot be empty")
	}

	return s.credentialCall(ctx, "magic_link_verify", &protocol.Request{
		Method: http.MethodGet,
		Path:   protocol.EndpointMagicLinkVerify,
		Query:  url.Values{"token": {token}},
	})
}

// RequestMagicLink asks the API to mail a sign-in link to email
func (s *Service) RequestMagicLink(ctx context.Context, email string) (*interfaces.MessageResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	var out interfaces.MessageResponse
	if _, err := s.client.Post(ctx, protocol.EndpointMagicLinkRequest, interfaces.MagicLinkRequest{Email: email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the remote session. The local session is cleared whether or not
// the remote call succeeds; a remote failure is still returned.
func (s *Service) Logout(ctx context.Context) (err error) {
	defer func() {
		if clearErr := s.store.Clear(); clearErr != nil {
			s.logger.Error("Failed to clear session on logout", "error", clearErr)
			if err == nil {
				err = fmt.Errorf("failed to clear session: %w", clearErr)
			}
		}
		s.logger.LogSessionChange("logout", "user requested")
	}()

	_, err = s.client.Post(ctx, protocol.EndpointLogout, nil, nil)
	return err
}

// GetUserProfile returns the signed-in user
func (s *Service) GetUserProfile(ctx context.Context) (*interfaces.User, error) {
	var user interfaces.User
	if _, err := s.client.Get(ctx, protocol.EndpointUser, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserProfile updates the signed-in user's profile fields
func (s *Service) UpdateUserProfile(ctx context.Context, req interfaces.UpdateUserRequest) (*interfaces.User, error) {
	var user interfaces.User
	if _, err := s.client.Put(ctx, protocol.EndpointUser, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SocialSignIn starts a social sign-in with google, apple or facebook
func (s *Service) SocialSignIn(ctx context.Context, provider string) (*interfaces.SocialAuthResponse, error) {
	path, err := protocol.SocialSignInPath(strings.ToLower(strings.TrimSpace(provider)))
	if err != nil {
		return nil, err
	}

	var out interfaces.SocialAuthResponse
	if _, err := s.client.Get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPasswordReset mails a password reset link
func (s *Service) RequestPasswordReset(ctx context.Context, req interfaces.PasswordResetRequest) (*interfaces.MessageResponse, error) {
	var out interfaces.MessageResponse
	if _, err := s.client.Post(ctx, protocol.EndpointRequestResetPassword, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword sets a new password
func (s *Service) ResetPassword(ctx context.Context, req interfaces.ResetPasswordRequest) (*interfaces.MessageResponse, error) {
	if req.NewPassword != req.ConfirmNewPassword {
		return nil, fmt.Errorf("passwords do not match")
	}

	var out interfaces.MessageResponse
	if _, err := s.client.Put(ctx, protocol.EndpointResetPassword, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate reports whether the current session is accepted. Any failure,
// including network errors, yields false.
func (s *Service) Authenticate(ctx context.Context) bool {
	if _, err := s.client.Get(ctx, protocol.EndpointAuthenticate, nil, nil); err != nil {
		s.logger.Debug("Authentication probe failed", "error", err)
		return false
	}
	return true
}

// IsAuthenticated reports whether a credential is stored locally
func (s *Service) IsAuthenticated() bool {
	return s.store.Has()
}

// credentialCall performs a call whose response may carry a new credential
func (s *Service) credentialCall(ctx context.Context, operation string, req *protocol.Request) (*interfaces.AuthResponse, error) {
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var out interfaces.AuthResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	token := ExtractCredential(resp)
	if token == "" {
		s.logger.Warn("Response carried no credential", "operation", operation)
		return &out, nil
	}

	if err := ValidateCredential(token); err != nil {
		return nil, fmt.Errorf("%s returned an unusable credential: %w", operation, err)
	}
	if err := s.store.Set(token); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	out.Token = token
	if expiry, ok := CredentialExpiry(token); ok {
		s.logger.Debug("Credential stored", "operation", operation, "expires", expiry)
	}
	s.logger.LogSessionChange(operation, "credential issued")
	return &out, nil
}

// ExtractCredential returns the token from the body "token" field, or from the
// Authorization response header with the Bearer prefix removed
func ExtractCredential(resp *protocol.Response) string {
	if resp == nil {
		return ""
	}

	if len(resp.Body) > 0 && gjson.ValidBytes(resp.Body) {
		if token := gjson.GetBytes(resp.Body, "token"); token.Type == gjson.String {
			if value := strings.TrimSpace(token.String()); value != "" {
				return value
			}
		}
	}

	header := strings.TrimSpace(resp.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

var _ interfaces.AuthService = (*Service)(nil)
