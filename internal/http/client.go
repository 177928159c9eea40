package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/hashicorp/go-retryablehttp"
)

// TokenManager supplies bearer tokens.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// Client is the HTTP engine shared by every repository. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *retryablehttp.Client
	tokenManager   TokenManager
	logger         masto.Logger
	debug          bool
	userAgent      string
	defaultHeaders map[string]string
	timeout        time.Duration
	interceptors   *masto.InterceptorChain
	serverVersion  string
}

// Request is one logical API call.
type Request struct {
	Method string
	// Path is relative to the base URL, or an absolute URL (pagination cursors).
	Path string
	// Params is masto.Params or a params struct. It is encoded into the query
	// string for GET/DELETE and into the body otherwise.
	Params  any
	Query   url.Values
	Body    interface{}
	Headers map[string]string
	// RequireAuth fails the call locally when no token manager is configured.
	RequireAuth bool
}

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Links      PageLinks
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger masto.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig enables retries of 5xx, 429 and connection errors.
func WithRetryConfig(retryMax int, retryWaitMin, retryWaitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = retryWaitMin
		c.httpClient.RetryWaitMax = retryWaitMax
	}
}

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDefaultHeaders sets headers sent with every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.defaultHeaders = headers
	}
}

// WithInterceptors installs an interceptor chain.
func WithInterceptors(chain *masto.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// WithServerVersion sets the version checked by RequireVersion.
func WithServerVersion(version string) Option {
	return func(c *Client) {
		c.serverVersion = version
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient = httpClient
	}
}

// NewClient creates a new HTTP client. tokenManager may be nil for
// unauthenticated access.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   retryClient,
		tokenManager: tokenManager,
		logger:       masto.NopLogger(),
		userAgent:    "masto-go/" + Version,
		timeout:      constants.DefaultHTTPTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			client.logger.Warn("retrying request", map[string]interface{}{
				"method":  req.Method,
				"url":     req.URL.Redacted(),
				"attempt": attempt,
			})
		}
	}

	return client
}

// Version is reported in the default User-Agent.
const Version = "1.0.0"

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ServerVersion returns the version checked by RequireVersion.
func (c *Client) ServerVersion() string {
	return c.serverVersion
}

// HasCredentials reports whether a token manager is configured.
func (c *Client) HasCredentials() bool {
	return c.tokenManager != nil
}

// Token returns the current bearer token, or "" without credentials.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", nil
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", &masto.Error{Kind: masto.KindUnauthorized, Op: "token", Message: "failed to obtain access token", Cause: err}
	}

	return token, nil
}

// RequireVersion fails with a Validation error when the server version is
// outside r. It performs no I/O.
func (c *Client) RequireVersion(op string, r masto.VersionRange) error {
	err := r.Check(c.serverVersion)
	if err == nil {
		if c.serverVersion != "" {
			if _, ok := masto.ParseVersion(c.serverVersion); !ok {
				c.logger.Debug("unparseable server version, skipping gate", map[string]interface{}{
					"op":      op,
					"version": c.serverVersion,
				})
			}
		}

		return nil
	}

	apiErr := &masto.Error{}
	if errors.As(err, &apiErr) {
		apiErr.Op = op
	}

	return err
}

// Do executes req. HTTP error statuses return both the response and a
// *masto.Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	op := req.Method + " " + req.Path

	if req.RequireAuth && c.tokenManager == nil {
		return nil, &masto.Error{
			Kind:    masto.KindUnauthorized,
			Op:      op,
			Message: "this operation requires an access token",
		}
	}

	target, err := c.resolve(req.Path)
	if err != nil {
		return nil, masto.NewValidationError(op, "invalid request URL", err)
	}

	params, err := masto.ParamsFrom(req.Params)
	if err != nil {
		return nil, masto.NewValidationError(op, "invalid request parameters", err)
	}

	query := url.Values{}
	for key, values := range req.Query {
		for _, v := range values {
			query.Add(key, v)
		}
	}

	var (
		body        []byte
		contentType string
	)

	if hasBody(req.Method) {
		body, contentType, err = encodeBody(params, req.Body)
		if err != nil {
			return nil, masto.NewValidationError(op, "failed to encode request body", err)
		}
	} else {
		appendQuery(query, params)
	}

	// Cursor URLs keep their query untouched unless something is added.
	if len(query) > 0 {
		merged := target.Query()
		for key, values := range query {
			merged[key] = append(merged[key], values...)
		}

		target.RawQuery = merged.Encode()
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target.String(), rawBody)
	if err != nil {
		return nil, masto.NewValidationError(op, "failed to create request", err)
	}

	err = c.setHeaders(ctx, httpReq, target, contentType, req.Headers)
	if err != nil {
		return nil, withOp(err, op)
	}

	view := &masto.Request{
		Method:   req.Method,
		Path:     target.Path,
		Headers:  httpReq.Header,
		Metadata: map[string]interface{}{"op": op},
	}

	err = c.interceptors.ExecuteRequestInterceptors(ctx, view)
	if err != nil {
		return nil, classifyTransportError(ctx, op, err)
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    target.Redacted(),
		})
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		_ = c.interceptors.ExecuteResponseInterceptors(ctx, view, &masto.Response{
			Duration: time.Since(start),
			Error:    err,
		})

		return nil, classifyTransportError(ctx, op, err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, op, err)
	}

	duration := time.Since(start)

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   resp.StatusCode,
			"duration": duration.String(),
		})
	}

	err = c.interceptors.ExecuteResponseInterceptors(ctx, view, &masto.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Duration:   duration,
	})
	if err != nil {
		c.logger.Warn("response interceptor failed", map[string]interface{}{"op": op, "error": err.Error()})
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Links:      ParseLinkHeader(resp.Header.Get("Link")),
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return response, statusError(op, resp.StatusCode, resp.Header, respBody)
	}

	return response, nil
}

func (c *Client) resolve(path string) (*url.URL, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return url.Parse(path)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return url.Parse(c.baseURL + path)
}

func (c *Client) setHeaders(ctx context.Context, httpReq *retryablehttp.Request, target *url.URL, contentType string, headers map[string]string) error {
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for key, value := range c.defaultHeaders {
		httpReq.Header.Set(key, value)
	}

	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	if c.tokenManager == nil || !c.sameHost(target) {
		return nil
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return nil
}

// sameHost keeps the bearer token away from cursor URLs on other hosts.
func (c *Client) sameHost(target *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}

	return strings.EqualFold(base.Host, target.Host)
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   path,
		Body:   body,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   path,
	})
}

// PostRaw posts pre-encoded bytes with the given content type.
func (c *Client) PostRaw(ctx context.Context, path string, data []byte, contentType string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    preEncoded(data),
		Headers: map[string]string{"Content-Type": contentType},
	})
}

// preEncoded is sent as-is.
type preEncoded []byte

func encodeBody(params masto.Params, body interface{}) ([]byte, string, error) {
	switch {
	case params.HasFile():
		return encodeMultipart(params)
	case len(params) > 0:
		return encodeJSON(params)
	case body == nil:
		return nil, "", nil
	}

	if raw, ok := body.(preEncoded); ok {
		return []byte(raw), "", nil
	}

	if reader, ok := body.(io.Reader); ok {
		var buf bytes.Buffer

		_, err := io.Copy(&buf, reader)
		if err != nil {
			return nil, "", fmt.Errorf("reading request body: %w", err)
		}

		return buf.Bytes(), "", nil
	}

	return encodeJSON(body)
}
