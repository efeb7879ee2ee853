package chat

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/apitest"
	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/protocol"
	"github.com/warpspeed/portal/internal/session"
)

func newChat(t *testing.T, standard, longRunning time.Duration) (*Service, *apitest.Server, *session.MemoryStore, string) {
	t.Helper()

	api := apitest.NewServer()
	t.Cleanup(api.Close)
	api.AddUser("ada@example.com", "pw")
	token := api.IssueToken("ada@example.com")

	cfg := config.DefaultConfig()
	cfg.APIBaseURL = api.URL
	cfg.Timeouts.Standard = standard
	cfg.Timeouts.LongRunning = longRunning

	store := session.NewMemoryStore(session.DefaultOptions(false), nil)
	require.NoError(t, store.Set(token))

	clients, err := protocol.NewClients(cfg, store)
	require.NoError(t, err)
	t.Cleanup(clients.Close)

	service, err := NewService(clients)
	require.NoError(t, err)
	return service, api, store, token
}

func TestSendMessage_UsesLongRunningProfile(t *testing.T) {
	service, api, _, _ := newChat(t, 100*time.Millisecond, 3*time.Second)
	api.ChatDelay = 300 * time.Millisecond

	resp, err := service.SendMessage(context.Background(), interfaces.SendMessageRequest{Message: "hello"})
	require.NoError(t, err)

	require.NotNil(t, resp.Message)
	assert.Equal(t, "assistant", resp.Message.Role)
	assert.Contains(t, resp.Message.Message, "hello")
	assert.NotEmpty(t, resp.ConversationID)

	// The same delay exceeds the standard profile
	_, err = service.standard.Post(context.Background(), protocol.EndpointChatMessage, interfaces.SendMessageRequest{Message: "again"}, nil)
	assert.True(t, apierr.IsTimeout(err))
}

func TestSendMessage_RejectsEmpty(t *testing.T) {
	service, api, _, _ := newChat(t, time.Second, time.Second)

	_, err := service.SendMessage(context.Background(), interfaces.SendMessageRequest{Message: "   "})
	assert.Error(t, err)
	assert.Zero(t, api.CallCount(http.MethodPost, protocol.EndpointChatMessage))
}

func TestGetConversations_QueryParameters(t *testing.T) {
	service, api, _, _ := newChat(t, time.Second, time.Second)
	api.AddConversation("Trip to Lisbon", "plan it", "sure")
	api.AddConversation("Budget review", "numbers", "ok")
	api.AddConversation("Lisbon restaurants", "food?", "yes")

	resp, err := service.GetConversations(context.Background(), interfaces.ConversationQuery{
		PageParams: interfaces.PageParams{Page: 1, Limit: 10},
		Search:     "lisbon",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Conversations, 2)
	assert.Equal(t, 2, resp.Total)

	call, ok := api.LastCall(http.MethodGet, protocol.EndpointConversations)
	require.True(t, ok)
	assert.Equal(t, "1", call.Query.Get("page"))
	assert.Equal(t, "10", call.Query.Get("limit"))
	assert.Equal(t, "lisbon", call.Query.Get("search"))

	// Zero values are omitted
	_, err = service.GetConversations(context.Background(), interfaces.ConversationQuery{})
	require.NoError(t, err)
	call, _ = api.LastCall(http.MethodGet, protocol.EndpointConversations)
	assert.Empty(t, call.Query)
}

func TestConversationOperations(t *testing.T) {
	service, api, _, _ := newChat(t, time.Second, time.Second)
	conv := api.AddConversation("Notes", "one", "two", "three")
	ctx := context.Background()

	page, err := service.GetConversationMessages(ctx, conv.ID, interfaces.PageParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "three", page.Messages[0].Message)
	assert.Equal(t, 3, page.Total)

	report, err := service.ReportMessage(ctx, conv.ID, page.Messages[0].ID, interfaces.ReportMessageRequest{Reason: "inaccurate"})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Message)
	assert.Equal(t, []string{conv.ID + "/" + page.Messages[0].ID}, api.Reports())

	download, err := service.DownloadConversation(ctx, conv.ID, interfaces.DownloadConversationRequest{Name: "notes", Type: "pdf"})
	require.NoError(t, err)
	assert.Contains(t, download.URL, conv.ID)

	_, err = service.GetConversationMessages(ctx, "missing", interfaces.PageParams{})
	var apiErr *apierr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, apierr.MsgNotFound, apiErr.Message)

	_, err = service.ReportMessage(ctx, "", "m", interfaces.ReportMessageRequest{})
	assert.Error(t, err)
	_, err = service.DownloadConversation(ctx, "", interfaces.DownloadConversationRequest{})
	assert.Error(t, err)
}

func TestStaleSession_ChatAndListShareOneRecovery(t *testing.T) {
	service, api, store, token := newChat(t, 2*time.Second, 5*time.Second)
	api.AddConversation("Existing", "hi", "hello")
	api.MarkStale(token)
	api.AuthenticateDelay = 100 * time.Millisecond

	var g errgroup.Group
	g.Go(func() error {
		_, err := service.SendMessage(context.Background(), interfaces.SendMessageRequest{Message: "ping"})
		return err
	})
	g.Go(func() error {
		_, err := service.GetConversations(context.Background(), interfaces.ConversationQuery{})
		return err
	})
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, api.CallCount(http.MethodGet, protocol.EndpointAuthenticate), 2)
	assert.True(t, store.Has())
}

func TestNewService_RequiresSharedCoordinator(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)

	_, err = NewService(&protocol.Clients{})
	assert.Error(t, err)
}
