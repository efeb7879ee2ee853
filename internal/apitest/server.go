// Package apitest provides an in-process fake of the Warpspeed API for tests
// and local development. It issues real bearer tokens, tracks magic links and
// conversations, and records every call so tests can assert on traffic.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/warpspeed/portal/internal/interfaces"
)

// Call is one recorded request
type Call struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	RequestID     string
}

type account struct {
	user     interfaces.User
	password string
}

// Server is a fake API backed by httptest
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]*account // by email
	tokens        map[string]string   // token -> email
	stale         map[string]bool     // tokens needing revalidation
	magicLinks    map[string]string   // link token -> email
	conversations []*interfaces.Conversation
	messages      map[string][]interfaces.ChatMessage
	reports       []string
	calls         []Call

	// TokenInHeader returns issued tokens in the Authorization header instead of the body
	TokenInHeader bool
	// FailLogout makes POST /auth/logout answer 500
	FailLogout bool
	// AuthenticateDelay slows GET /auth/authenticate
	AuthenticateDelay time.Duration
	// ChatDelay slows POST /ai-chat/message
	ChatDelay time.Duration
}

// NewServer starts a fake API; callers must Close it
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		accounts:   make(map[string]*account),
		tokens:     make(map[string]string),
		stale:      make(map[string]bool),
		magicLinks: make(map[string]string),
		messages:   make(map[string][]interfaces.ChatMessage),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.record)

	auth := r.Group("/auth")
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)
	auth.POST("/request-reset-password", s.requestPasswordReset)
	auth.PUT("/reset-password", s.resetPassword)
	auth.GET("/authenticate", s.authenticate)
	auth.POST("/magic-link/request", s.requestMagicLink)
	auth.GET("/magic-link/verify", s.verifyMagicLink)
	auth.GET("/user/:provider", s.socialSignIn)

	protected := r.Group("/", s.requireToken)
	protected.POST("/auth/logout", s.logout)
	protected.GET("/auth/user", s.getUser)
	protected.PUT("/auth/user", s.updateUser)
	protected.POST("/ai-chat/message", s.sendMessage)
	protected.GET("/ai-chat/conversations", s.listConversations)
	protected.GET("/ai-chat/conversations/:id", s.getConversation)
	protected.POST("/ai-chat/conversations/:id/messages/:messageId/report", s.reportMessage)
	protected.POST("/ai-chat/conversations/:id/download", s.downloadConversation)

	return r
}

// AddUser registers an account and returns its profile
func (s *Server) AddUser(email, password string) interfaces.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, "Test", "User")
}

func (s *Server) addUserLocked(email, password, first, last string) interfaces.User {
	acct := &account{
		user: interfaces.User{
			ID:        uuid.NewString(),
			FirstName: first,
			LastName:  last,
			Email:     email,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
		password: password,
	}
	s.accounts[email] = acct
	return acct.user
}

// IssueToken creates a valid token for an existing account
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) string {
	token := "tok-" + uuid.NewString()
	s.tokens[token] = email
	return token
}

// Revoke invalidates token so both API calls and revalidation reject it
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	delete(s.stale, token)
}

// MarkStale makes protected endpoints answer 401 for token until it is
// revalidated through GET /auth/authenticate
func (s *Server) MarkStale(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale[token] = true
}

// MagicLinkFor returns the last link token mailed to email
func (s *Server) MagicLinkFor(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for link, addr := range s.magicLinks {
		if addr == email {
			return link, true
		}
	}
	return "", false
}

// AddConversation seeds a conversation with messages
func (s *Server) AddConversation(title string, messages ...string) interfaces.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.newConversationLocked(title)
	for i, text := range messages {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		s.appendMessageLocked(conv, role, text)
	}
	return *conv
}

// Calls returns every recorded call
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts calls matching method and path
func (s *Server) CallCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call matching method and path
func (s *Server) LastCall(method, path string) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Method == method && s.calls[i].Path == path {
			return s.calls[i], true
		}
	}
	return Call{}, false
}

// Reports returns "conversationID/messageID" for each reported message
func (s *Server) Reports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reports...)
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Query:         c.Request.URL.Query(),
		Authorization: c.GetHeader("Authorization"),
		RequestID:     c.GetHeader("X-Request-ID"),
	})
	s.mu.Unlock()
	c.Next()
}

func bearer(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func (s *Server) requireToken(c *gin.Context) {
	token := bearer(c)

	s.mu.Lock()
	email, ok := s.tokens[token]
	stale := s.stale[token]
	s.mu.Unlock()

	if !ok || stale {
		fail(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	c.Set("email", email)
	c.Set("token", token)
	c.Next()
}

func (s *Server) respondWithToken(c *gin.Context, status int, token string, user interfaces.User) {
	if s.TokenInHeader {
		c.Header("Authorization", "Bearer "+token)
		c.JSON(status, gin.H{"user": user})
		return
	}
	c.JSON(status, interfaces.AuthResponse{Token: token, User: &user})
}

func (s *Server) login(c *gin.Context) {
	var req interfaces.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Email]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token := s.issueLocked(req.Email)
	user := acct.user
	s.mu.Unlock()

	s.respondWithToken(c, http.StatusOK, token, user)
}

func (s *Server) register(c *gin.Context) {
	var req interfaces.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password != req.ConfirmPassword {
		fail(c, http.StatusBadRequest, "Passwords do not match")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		fail(c, http.StatusConflict, "Email already registered")
		return
	}
	user := s.addUserLocked(req.Email, req.Password, req.FirstName, req.LastName)
	token := s.issueLocked(req.Email)
	s.mu.Unlock()

	s.respondWithToken(c, http.StatusCreated, token, user)
}

func (s *Server) logout(c *gin.Context) {
	if s.FailLogout {
		fail(c, http.StatusInternalServerError, "")
		return
	}
	s.Revoke(c.GetString("token"))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) getUser(c *gin.Context) {
	s.mu.Lock()
	acct := s.accounts[c.GetString("email")]
	s.mu.Unlock()
	if acct == nil {
		fail(c, http.StatusNotFound, "")
		return
	}
	c.JSON(http.StatusOK, acct.user)
}

func (s *Server) updateUser(c *gin.Context) {
	var req interfaces.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[c.GetString("email")]
	if req.FirstName != "" {
		acct.user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acct.user.LastName = req.LastName
	}
	if req.Nickname != "" {
		acct.user.Nickname = req.Nickname
	}
	if req.Bio != "" {
		acct.user.Bio = req.Bio
	}
	if req.Gender != "" {
		acct.user.Gender = req.Gender
	}
	if req.PhoneNumber != "" {
		acct.user.PhoneNumber = req.PhoneNumber
	}
	if req.DateOfBirth != "" {
		acct.user.DateOfBirth = req.DateOfBirth
	}
	acct.user.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	c.JSON(http.StatusOK, acct.user)
}

func (s *Server) socialSignIn(c *gin.Context) {
	provider := c.Param("provider")
	c.JSON(http.StatusOK, interfaces.SocialAuthResponse{
		URL: fmt.Sprintf("https://accounts.example.com/%s/authorize", provider),
	})
}

func (s *Server) requestPasswordReset(c *gin.Context) {
	var req interfaces.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "Email is required")
		return
	}
	c.JSON(http.StatusOK, interfaces.MessageResponse{Message: "Reset link sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req interfaces.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NewPassword != req.ConfirmNewPassword {
		fail(c, http.StatusBadRequest, "Passwords do not match")
		return
	}
	c.JSON(http.StatusOK, interfaces.MessageResponse{Message: "Password updated"})
}

func (s *Server) authenticate(c *gin.Context) {
	if s.AuthenticateDelay > 0 {
		time.Sleep(s.AuthenticateDelay)
	}

	token := bearer(c)
	s.mu.Lock()
	email, ok := s.tokens[token]
	if ok {
		delete(s.stale, token)
	}
	s.mu.Unlock()

	if !ok {
		fail(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "email": email})
}

func (s *Server) requestMagicLink(c *gin.Context) {
	var req interfaces.MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "Email is required")
		return
	}

	s.mu.Lock()
	if _, ok := s.accounts[req.Email]; !ok {
		s.addUserLocked(req.Email, "", "", "")
	}
	s.magicLinks["ml-"+uuid.NewString()] = req.Email
	s.mu.Unlock()

	c.JSON(http.StatusOK, interfaces.MessageResponse{Message: "Magic link sent"})
}

func (s *Server) verifyMagicLink(c *gin.Context) {
	link := c.Query("token")

	s.mu.Lock()
	email, ok := s.magicLinks[link]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "Invalid or expired magic link")
		return
	}
	delete(s.magicLinks, link)
	token := s.issueLocked(email)
	user := s.accounts[email].user
	s.mu.Unlock()

	s.respondWithToken(c, http.StatusOK, token, user)
}

func (s *Server) newConversationLocked(title string) *interfaces.Conversation {
	now := time.Now().UTC().Format(time.RFC3339)
	conv := &interfaces.Conversation{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	s.conversations = append(s.conversations, conv)
	return conv
}

func (s *Server) appendMessageLocked(conv *interfaces.Conversation, role, text string) interfaces.ChatMessage {
	msg := interfaces.ChatMessage{
		ID:             uuid.NewString(),
		Message:        text,
		Role:           role,
		ConversationID: conv.ID,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	conv.MessageCount = len(s.messages[conv.ID])
	conv.UpdatedAt = msg.CreatedAt
	last := msg
	conv.LastMessage = &last
	return msg
}

func (s *Server) findConversationLocked(id string) *interfaces.Conversation {
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

func (s *Server) sendMessage(c *gin.Context) {
	var req interfaces.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, "Message is required")
		return
	}
	if s.ChatDelay > 0 {
		time.Sleep(s.ChatDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findConversationLocked(req.ConversationID)
	if req.ConversationID != "" && conv == nil {
		fail(c, http.StatusNotFound, "")
		return
	}
	if conv == nil {
		conv = s.newConversationLocked(truncate(req.Message, 40))
	}

	s.appendMessageLocked(conv, "user", req.Message)
	reply := s.appendMessageLocked(conv, "assistant", "You said:\n\n```text\n"+req.Message+"\n```")

	c.JSON(http.StatusOK, interfaces.SendMessageResponse{
		Message:        &reply,
		Conversation:   conv,
		MessageID:      reply.ID,
		ConversationID: conv.ID,
	})
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	return page, limit
}

func paginate(total, page, limit int) (int, int) {
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

func (s *Server) listConversations(c *gin.Context) {
	page, limit := pageParams(c)
	search := strings.ToLower(c.Query("search"))

	s.mu.Lock()
	matched := make([]interfaces.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if search == "" || strings.Contains(strings.ToLower(conv.Title), search) {
			matched = append(matched, *conv)
		}
	}
	s.mu.Unlock()

	start, end := paginate(len(matched), page, limit)
	c.JSON(http.StatusOK, interfaces.ConversationsResponse{
		Conversations: matched[start:end],
		Page:          page,
		Limit:         limit,
		Total:         len(matched),
		TotalPages:    (len(matched) + limit - 1) / limit,
	})
}

func (s *Server) getConversation(c *gin.Context) {
	page, limit := pageParams(c)

	s.mu.Lock()
	conv := s.findConversationLocked(c.Param("id"))
	if conv == nil {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "")
		return
	}
	messages := append([]interfaces.ChatMessage(nil), s.messages[conv.ID]...)
	snapshot := *conv
	s.mu.Unlock()

	start, end := paginate(len(messages), page, limit)
	c.JSON(http.StatusOK, interfaces.ConversationMessagesResponse{
		Messages:     messages[start:end],
		Conversation: snapshot,
		Page:         page,
		Limit:        limit,
		Total:        len(messages),
		TotalPages:   (len(messages) + limit - 1) / limit,
	})
}

func (s *Server) reportMessage(c *gin.Context) {
	var req interfaces.ReportMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findConversationLocked(c.Param("id")) == nil {
		fail(c, http.StatusNotFound, "")
		return
	}
	s.reports = append(s.reports, c.Param("id")+"/"+c.Param("messageId"))
	c.JSON(http.StatusOK, interfaces.MessageResponse{Message: "Message reported"})
}

func (s *Server) downloadConversation(c *gin.Context) {
	var req interfaces.DownloadConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		fail(c, http.StatusBadRequest, "Name is required")
		return
	}

	s.mu.Lock()
	conv := s.findConversationLocked(c.Param("id"))
	s.mu.Unlock()
	if conv == nil {
		fail(c, http.StatusNotFound, "")
		return
	}

	c.JSON(http.StatusOK, interfaces.DownloadConversationResponse{
		URL: fmt.Sprintf("%s/downloads/%s/%s.%s", s.URL, conv.ID, url.PathEscape(req.Name), req.Type),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
