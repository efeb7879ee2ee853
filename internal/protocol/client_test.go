package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/session"
)

// fakeAPI serves /data and /auth/authenticate with scripted behavior
type fakeAPI struct {
	*httptest.Server

	dataCalls         atomic.Int32
	authenticateCalls atomic.Int32

	mu          sync.Mutex
	authHeaders []string

	// data returns the status for the n-th (1-based) data call
	data func(n int32, r *http.Request) int
	// authenticate returns the status for validation calls
	authenticate func(r *http.Request) int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		data:         func(int32, *http.Request) int { return http.StatusOK },
		authenticate: func(*http.Request) int { return http.StatusOK },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		n := api.dataCalls.Add(1)
		api.mu.Lock()
		api.authHeaders = append(api.authHeaders, r.Header.Get("Authorization"))
		api.mu.Unlock()

		status := api.data(n, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "call": n})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "token rejected"})
	})
	mux.HandleFunc(EndpointAuthenticate, func(w http.ResponseWriter, r *http.Request) {
		api.authenticateCalls.Add(1)
		w.WriteHeader(api.authenticate(r))
	})

	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func (f *fakeAPI) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIBaseURL:  baseURL,
		Environment: config.EnvDevelopment,
		Timeouts: config.TimeoutConfig{
			Standard:    2 * time.Second,
			LongRunning: 5 * time.Second,
		},
	}
}

func newClients(t *testing.T, api *fakeAPI, store *session.MemoryStore, opts ...Option) *Clients {
	t.Helper()
	clients, err := NewClients(testConfig(api.URL), store, opts...)
	require.NoError(t, err)
	t.Cleanup(clients.Close)
	return clients
}

func newStore(token string) *session.MemoryStore {
	store := session.NewMemoryStore(session.DefaultOptions(false), nil)
	if token != "" {
		store.Set(token)
	}
	return store
}

func TestClient_AttachesBearerAndStandardHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/v1/items", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	clients, err := NewClients(testConfig(srv.URL+"/api/v1/"), newStore("T1"), WithUserAgent("portal-test"))
	require.NoError(t, err)

	var out struct {
		Items []string `json:"items"`
	}
	resp, err := clients.Standard.Get(context.Background(), "/items", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer T1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "portal-test", got.Get("User-Agent"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Equal(t, got.Get("X-Request-ID"), resp.Metadata.RequestID)
	assert.NotNil(t, out.Items)
}

func TestClient_NoCredentialIsNotAnError(t *testing.T) {
	api := newFakeAPI(t)
	clients := newClients(t, api, newStore(""))

	_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, api.headers())
}

func TestClient_RecoversAndReplays(t *testing.T) {
	api := newFakeAPI(t)
	api.data = func(n int32, r *http.Request) int {
		if n == 1 {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}
	api.authenticate = func(r *http.Request) int {
		assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		return http.StatusOK
	}
	store := newStore("T1")
	clients := newClients(t, api, store)

	var out map[string]interface{}
	resp, err := clients.Standard.Get(context.Background(), "/data", nil, &out)
	require.NoError(t, err)

	assert.True(t, resp.Metadata.Replayed)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, int32(1), api.authenticateCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T1"}, api.headers())

	// The credential is kept as is
	token, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "T1", token)

	assert.Equal(t, int64(1), clients.Standard.Stats().Replays)
	assert.Equal(t, int64(1), clients.Coordinator.Stats().Successes)
}

func TestClient_NoTokenFailsWithoutValidationCall(t *testing.T) {
	api := newFakeAPI(t)
	api.data = func(int32, *http.Request) int { return http.StatusUnauthorized }

	var invalidated atomic.Int32
	clients := newClients(t, api, newStore(""), WithInvalidationHandler(func(error) { invalidated.Add(1) }))

	_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)

	var unauthorized *apierr.UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, apierr.MsgNoToken, unauthorized.Error())
	assert.Equal(t, int32(0), api.authenticateCalls.Load())
	assert.Equal(t, int32(1), api.dataCalls.Load())
	assert.Equal(t, int32(1), invalidated.Load())
}

func TestClient_RetriedAtMostOnce(t *testing.T) {
	api := newFakeAPI(t)
	api.data = func(int32, *http.Request) int { return http.StatusUnauthorized }
	store := newStore("T1")
	clients := newClients(t, api, store)

	_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)

	require.True(t, apierr.IsUnauthorized(err))
	assert.Equal(t, "token rejected", err.Error())
	assert.Equal(t, int32(2), api.dataCalls.Load())
	assert.Equal(t, int32(1), api.authenticateCalls.Load())
	assert.True(t, store.Has())
}

func TestClient_RecoveryFailureClearsSession(t *testing.T) {
	api := newFakeAPI(t)
	api.data = func(int32, *http.Request) int { return http.StatusUnauthorized }
	api.authenticate = func(*http.Request) int { return http.StatusUnauthorized }
	store := newStore("T1")

	var events []error
	var mu sync.Mutex
	clients := newClients(t, api, store, WithInvalidationHandler(func(err error) {
		mu.Lock()
		events = append(events, err)
		mu.Unlock()
	}))

	_, err := clients.Standard.Post(context.Background(), "/data", map[string]string{"a": "b"}, nil)

	var unauthorized *apierr.UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, apierr.MsgSessionExpired, unauthorized.Error())
	assert.False(t, store.Has())
	require.Len(t, events, 1)
	assert.Equal(t, apierr.MsgSessionExpired, events[0].Error())
	assert.Equal(t, int32(1), api.dataCalls.Load())
}

// gate holds the first n data calls until all of them have arrived so every
// caller observes the 401 before any recovery concludes
func gate(n int) func() {
	var mu sync.Mutex
	arrived := 0
	release := make(chan struct{})
	return func() {
		mu.Lock()
		arrived++
		if arrived == n {
			close(release)
		}
		mu.Unlock()
		<-release
	}
}

func TestClient_ConcurrentUnauthorizedSingleRecovery(t *testing.T) {
	const callers = 12

	api := newFakeAPI(t)
	wait := gate(callers)
	api.data = func(n int32, r *http.Request) int {
		if n <= callers {
			wait()
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}
	api.authenticate = func(*http.Request) int {
		time.Sleep(150 * time.Millisecond)
		return http.StatusOK
	}
	clients := newClients(t, api, newStore("T1"))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			resp, err := clients.Standard.Get(ctx, "/data", nil, nil)
			if err != nil {
				return err
			}
			assert.True(t, resp.Metadata.Replayed)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), api.authenticateCalls.Load())
	assert.Equal(t, int32(2*callers), api.dataCalls.Load())
	assert.False(t, clients.Coordinator.Refreshing())
	assert.Zero(t, clients.Coordinator.Pending())
	assert.Equal(t, int64(callers-1), clients.Coordinator.Stats().WaitersQueued)
}

func TestClient_ConcurrentUnauthorizedAllFailTogether(t *testing.T) {
	const callers = 8

	api := newFakeAPI(t)
	wait := gate(callers)
	api.data = func(int32, *http.Request) int {
		wait()
		return http.StatusUnauthorized
	}
	api.authenticate = func(*http.Request) int {
		time.Sleep(150 * time.Millisecond)
		return http.StatusUnauthorized
	}
	store := newStore("T1")

	var invalidated atomic.Int32
	clients := newClients(t, api, store, WithInvalidationHandler(func(error) { invalidated.Add(1) }))

	errs := make([]error, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			_, errs[i] = clients.Standard.Get(context.Background(), "/data", nil, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, err := range errs {
		require.True(t, apierr.IsUnauthorized(err))
		assert.Equal(t, apierr.MsgSessionExpired, err.Error())
	}
	assert.Equal(t, int32(1), api.authenticateCalls.Load())
	assert.Equal(t, int32(callers), api.dataCalls.Load())
	assert.Equal(t, int32(1), invalidated.Load())
	assert.False(t, store.Has())
}

func TestClients_ProfilesShareOneCoordinator(t *testing.T) {
	api := newFakeAPI(t)
	wait := gate(2)
	api.data = func(n int32, r *http.Request) int {
		if n <= 2 {
			wait()
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}
	api.authenticate = func(*http.Request) int {
		time.Sleep(150 * time.Millisecond)
		return http.StatusOK
	}
	clients := newClients(t, api, newStore("T1"))

	assert.Same(t, clients.Standard.Coordinator(), clients.LongRunning.Coordinator())
	assert.Equal(t, 2*time.Second, clients.Standard.Profile().Timeout)
	assert.Equal(t, 5*time.Second, clients.LongRunning.Profile().Timeout)

	var g errgroup.Group
	g.Go(func() error {
		_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)
		return err
	})
	g.Go(func() error {
		_, err := clients.LongRunning.Post(context.Background(), "/data", map[string]string{"message": "hi"}, nil)
		return err
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), api.authenticateCalls.Load())
}

func TestClient_TimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	coordinator, err := NewCoordinator(newStore("T1"), ValidatorFunc(func(context.Context, string) error {
		t.Fatal("timeouts must not trigger recovery")
		return nil
	}), time.Second, nil)
	require.NoError(t, err)

	client, err := NewClient(srv.URL, Profile{Name: "fast", Timeout: 50 * time.Millisecond}, newStore("T1"), coordinator)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/slow", nil, nil)

	var network *apierr.NetworkError
	require.ErrorAs(t, err, &network)
	assert.True(t, network.Timeout)
	assert.Equal(t, apierr.MsgTimeout, network.Message)
	assert.Equal(t, int64(1), client.Stats().FailedRequests)
}

func TestClient_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	clients, err := NewClients(testConfig(baseURL), newStore("T1"))
	require.NoError(t, err)

	_, err = clients.Standard.Get(context.Background(), "/data", nil, nil)
	assert.True(t, apierr.IsNetwork(err))
	assert.False(t, apierr.IsTimeout(err))
}

func TestClient_OtherStatusesSkipRecovery(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			api := newFakeAPI(t)
			api.data = func(int32, *http.Request) int { return status }
			clients := newClients(t, api, newStore("T1"))

			_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)

			var apiErr *apierr.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, status, apiErr.StatusCode)
			assert.Equal(t, "token rejected", apiErr.Message)
			assert.Equal(t, "token rejected", apiErr.Payload().Get("message").String())
			assert.Equal(t, int32(0), api.authenticateCalls.Load())
		})
	}
}

func TestNewClient_Validation(t *testing.T) {
	store := newStore("")
	coordinator, err := NewCoordinator(store, ValidatorFunc(func(context.Context, string) error { return nil }), 0, nil)
	require.NoError(t, err)

	_, err = NewClient("relative/path", StandardProfile, store, coordinator)
	assert.Error(t, err)

	_, err = NewClient("http://localhost", Profile{Name: "zero"}, store, coordinator)
	assert.Error(t, err)

	_, err = NewClient("http://localhost", StandardProfile, nil, coordinator)
	assert.Error(t, err)

	_, err = NewClient("http://localhost", StandardProfile, store, nil)
	assert.Error(t, err)

	_, err = NewClients(nil, store)
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	path, err := SocialSignInPath(ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "/auth/user/google", path)

	_, err = SocialSignInPath("myspace")
	assert.Error(t, err)

	assert.Equal(t, "/ai-chat/conversations/c1", ConversationPath("c1"))
	assert.Equal(t, "/ai-chat/conversations/c1/messages/m2/report", ReportMessagePath("c1", "m2"))
	assert.Equal(t, "/ai-chat/conversations/c%2F1/download", DownloadConversationPath("c/1"))
}

func TestClient_UndecodableBodyIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	clients, err := NewClients(testConfig(srv.URL), newStore("T1"))
	require.NoError(t, err)

	var out map[string]interface{}
	_, err = clients.Standard.Get(context.Background(), "/data", nil, &out)

	var apiErr *apierr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindAPI, apierr.KindOf(err))
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, apierr.MsgMalformedResponse, apiErr.Message)
	assert.Equal(t, "<html>maintenance</html>", string(apiErr.Data))
}

func TestClient_DoLeavesCallerRequestUntouched(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	clients, err := NewClients(testConfig(srv.URL), newStore("T1"))
	require.NoError(t, err)

	req := &Request{Path: "/data"}
	_, err = clients.Standard.Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, method)
	assert.Empty(t, req.Method)
}

func TestSharedValidator_CollapsesConcurrentValidations(t *testing.T) {
	api := newFakeAPI(t)
	var stale atomic.Bool
	stale.Store(true)
	api.data = func(_ int32, r *http.Request) int {
		if stale.Load() {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}
	api.authenticate = func(*http.Request) int {
		time.Sleep(100 * time.Millisecond)
		stale.Store(false)
		return http.StatusOK
	}

	inner, err := NewHTTPValidator(api.URL, api.Client(), "")
	require.NoError(t, err)
	shared := NewSharedValidator(inner)

	// One pipeline per caller, as the web portal builds them, all on one credential
	const callers = 4
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		clients := newClients(t, api, newStore("T1"), WithValidator(shared))
		g.Go(func() error {
			_, err := clients.Standard.Get(context.Background(), "/data", nil, nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), api.authenticateCalls.Load())
}

func TestSharedValidator_DoesNotCacheResults(t *testing.T) {
	calls := 0
	shared := NewSharedValidator(ValidatorFunc(func(context.Context, string) error {
		calls++
		return errors.New("rejected")
	}))

	assert.Error(t, shared.Validate(context.Background(), "T1"))
	assert.Error(t, shared.Validate(context.Background(), "T1"))
	assert.Equal(t, 2, calls)
}
