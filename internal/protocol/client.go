package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
)

// Option configures clients built by NewClients
type Option func(*options)

type options struct {
	httpClient   *http.Client
	userAgent    string
	onInvalidate InvalidationHandler
	validator    Validator
}

// WithHTTPClient replaces the shared HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(o *options) { o.userAgent = userAgent }
}

// WithInvalidationHandler registers the callback fired when recovery fails
func WithInvalidationHandler(handler InvalidationHandler) Option {
	return func(o *options) { o.onInvalidate = handler }
}

// WithValidator replaces the HTTP validator NewClients would build, for
// composers that share validation across several pipelines
func WithValidator(validator Validator) Option {
	return func(o *options) { o.validator = validator }
}

func defaultUserAgent() string {
	return fmt.Sprintf("Warpspeed-Portal/%s (Go)", Version)
}

// NewHTTPClient returns the transport shared by every profile. Timeouts are
// applied per attempt through the request context, not on the client.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 4,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Client issues authenticated calls with one timeout profile
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	profile     Profile
	store       interfaces.SessionStore
	coordinator *Coordinator
	userAgent   string
	logger      *logging.Logger

	mutex sync.RWMutex
	stats ConnectionStatistics
}

// NewClient creates a client for baseURL that recovers through coordinator
func NewClient(baseURL string, profile Profile, store interfaces.SessionStore, coordinator *Coordinator, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if profile.Timeout <= 0 {
		return nil, fmt.Errorf("profile %q must have a positive timeout", profile.Name)
	}

	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	o := applyOptions(opts)

	return &Client{
		httpClient:  o.httpClient,
		baseURL:     parsed,
		profile:     profile,
		store:       store,
		coordinator: coordinator,
		userAgent:   o.userAgent,
		logger:      logging.GetProtocolLogger().WithField("profile", profile.Name),
	}, nil
}

func applyOptions(opts []Option) options {
	o := options{userAgent: defaultUserAgent()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = NewHTTPClient()
	}
	return o
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", baseURL)
	}
	return parsed, nil
}

// Clients bundles the two profiles around one coordinator
type Clients struct {
	Standard    *Client
	LongRunning *Client
	Coordinator *Coordinator
}

// NewClients builds the standard and long-running clients for cfg. Both share
// one coordinator, so a recovery started by either queues callers of both.
func NewClients(cfg *config.Config, store interfaces.SessionStore, opts ...Option) (*Clients, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	o := applyOptions(opts)
	shared := []Option{WithHTTPClient(o.httpClient), WithUserAgent(o.userAgent)}

	validator := o.validator
	if validator == nil {
		httpValidator, err := NewHTTPValidator(cfg.APIBaseURL, o.httpClient, o.userAgent)
		if err != nil {
			return nil, err
		}
		validator = httpValidator
	}

	coordinator, err := NewCoordinator(store, validator, cfg.Timeouts.Standard, o.onInvalidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	standard, err := NewClient(cfg.APIBaseURL, Profile{Name: StandardProfile.Name, Timeout: cfg.Timeouts.Standard}, store, coordinator, shared...)
	if err != nil {
		return nil, fmt.Errorf("failed to create standard client: %w", err)
	}

	longRunning, err := NewClient(cfg.APIBaseURL, Profile{Name: LongRunningProfile.Name, Timeout: cfg.Timeouts.LongRunning}, store, coordinator, shared...)
	if err != nil {
		return nil, fmt.Errorf("failed to create long-running client: %w", err)
	}

	return &Clients{Standard: standard, LongRunning: longRunning, Coordinator: coordinator}, nil
}

// Close releases idle connections held by the shared transport
func (cs *Clients) Close() {
	cs.Standard.httpClient.CloseIdleConnections()
	if cs.LongRunning.httpClient != cs.Standard.httpClient {
		cs.LongRunning.httpClient.CloseIdleConnections()
	}
}

// Do executes req. A 401 triggers at most one recovery through the shared
// coordinator followed by a single replay; every other failure is returned
// classified.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if req.Method == "" {
		withMethod := *req
		withMethod.Method = http.MethodGet
		req = &withMethod
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	token, _ := c.store.Get()
	resp, err := c.attempt(ctx, req, body, token)
	if err == nil || !apierr.IsUnauthorized(err) {
		return resp, err
	}

	// Retried marker: this call never enters recovery again
	token, err = c.coordinator.Recover(ctx)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.stats.Replays++
	c.mutex.Unlock()

	resp, err = c.attempt(ctx, req, body, token)
	if err != nil {
		return nil, err
	}
	resp.Metadata.Replayed = true
	return resp, nil
}

// Get issues a GET and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) (*Response, error) {
	return c.doJSON(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) (*Response, error) {
	return c.doJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues a PUT with a JSON body and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) (*Response, error) {
	return c.doJSON(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out interface{}) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		c.logger.WithContext(ctx).Warn("Undecodable response body",
			"method", req.Method, "path", req.Path, "status", resp.StatusCode, "error", err)
		return nil, apierr.NewAPIError(apierr.MsgMalformedResponse, resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// Profile returns the timeout profile of this client
func (c *Client) Profile() Profile {
	return c.profile
}

// Coordinator returns the shared recovery coordinator
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// Stats returns a snapshot of request counters
func (c *Client) Stats() ConnectionStatistics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stats
}

// attempt performs one HTTP exchange bounded by the profile timeout
func (c *Client) attempt(ctx context.Context, req *Request, body []byte, token string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.profile.Timeout)
	defer cancel()

	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, c.buildURL(req.Path, req.Query), reader)
	if err != nil {
		return nil, apierr.Classify(apierr.Outcome{Err: fmt.Errorf("failed to create request: %w", err)})
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	c.setStandardHeaders(httpReq, requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		responseTime := time.Since(startTime)
		c.updateRequestStatistics(responseTime, false)
		c.logger.WithContext(ctx).Warn("Request failed without response",
			"method", req.Method, "path", req.Path, "request_id", requestID, "error", err)
		return nil, apierr.Classify(apierr.Outcome{Err: err})
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	responseTime := time.Since(startTime)
	if err != nil {
		c.updateRequestStatistics(responseTime, false)
		return nil, apierr.Classify(apierr.Outcome{Err: err})
	}

	c.logger.WithContext(ctx).LogHTTPRequest(req.Method, req.Path, httpResp.StatusCode, responseTime)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.updateRequestStatistics(responseTime, false)
		return nil, apierr.Classify(apierr.Outcome{StatusCode: httpResp.StatusCode, Body: data})
	}

	c.updateRequestStatistics(responseTime, true)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
		Metadata: ResponseMetadata{
			RequestID:     requestID,
			ResponseTime:  responseTime,
			ContentLength: int64(len(data)),
		},
	}, nil
}

// setStandardHeaders sets common headers for all requests
func (c *Client) setStandardHeaders(req *http.Request, requestID string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
}

// buildURL joins the endpoint path and query onto the base URL
func (c *Client) buildURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// updateRequestStatistics updates connection statistics
func (c *Client) updateRequestStatistics(responseTime time.Duration, success bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats := &c.stats
	stats.TotalRequests++
	stats.LastRequestTime = time.Now()

	if success {
		stats.SuccessfulRequests++
	} else {
		stats.FailedRequests++
	}

	// Moving average
	if stats.TotalRequests == 1 {
		stats.AverageResponseTime = responseTime
	} else {
		total := stats.AverageResponseTime * time.Duration(stats.TotalRequests-1)
		stats.AverageResponseTime = (total + responseTime) / time.Duration(stats.TotalRequests)
	}
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		return data, nil
	}
}

// HTTPValidator checks a credential against GET /auth/authenticate. It talks
// to the API directly so validation never re-enters the recovery path.
type HTTPValidator struct {
	httpClient *http.Client
	url        string
	userAgent  string
}

// NewHTTPValidator creates a validator for the API at baseURL
func NewHTTPValidator(baseURL string, httpClient *http.Client, userAgent string) (*HTTPValidator, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if userAgent == "" {
		userAgent = defaultUserAgent()
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + EndpointAuthenticate
	return &HTTPValidator{httpClient: httpClient, url: parsed.String(), userAgent: userAgent}, nil
}

// Validate returns nil when the API accepts token
func (v *HTTPValidator) Validate(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return apierr.Classify(apierr.Outcome{Err: err})
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return apierr.Classify(apierr.Outcome{Err: err})
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.Classify(apierr.Outcome{StatusCode: resp.StatusCode, Body: body})
	}
	return nil
}
