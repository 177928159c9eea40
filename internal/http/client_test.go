package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mastohttp "github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenManager for testing.
type MockTokenManager struct {
	token string
	err   error
}

func (m *MockTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.token, m.err
}

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{}) { l.record("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{}) { l.record("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/api/v1/statuses/1", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "Bearer test-token", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))

			_ = json.NewEncoder(writer).Encode(map[string]string{"id": "1", "content": "hello"})
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, &MockTokenManager{token: "test-token"})

		resp, err := client.Do(context.Background(), &mastohttp.Request{
			Method: "GET",
			Path:   "/api/v1/statuses/1",
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result map[string]string

		err = json.Unmarshal(resp.Body, &result)
		require.NoError(t, err)
		assert.Equal(t, "1", result["id"])
	})

	t.Run("array params use bracket keys", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, []string{"1", "2"}, request.URL.Query()["id[]"])
			assert.Equal(t, "40", request.URL.Query().Get("limit"))
			assert.Equal(t, "true", request.URL.Query().Get("local"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil)

		_, err := client.Do(context.Background(), &mastohttp.Request{
			Method: "GET",
			Path:   "/api/v1/accounts/relationships",
			Params: masto.Params{"id": []string{"1", "2"}, "limit": 40, "local": true},
		})
		require.NoError(t, err)
	})

	t.Run("struct params become a JSON body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]interface{}

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "hello", body["status"])
			assert.Equal(t, []interface{}{"m1", "m2"}, body["media_ids"])
			assert.NotContains(t, body, "spoiler_text")

			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, &MockTokenManager{token: "t"})

		_, err := client.Do(context.Background(), &mastohttp.Request{
			Method: "POST",
			Path:   "/api/v1/statuses",
			Params: &masto.CreateStatusParams{Status: "hello", MediaIDs: []string{"m1", "m2"}},
		})
		require.NoError(t, err)
	})

	t.Run("file params switch to multipart", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.True(t, strings.HasPrefix(request.Header.Get("Content-Type"), "multipart/form-data"))

			err := request.ParseMultipartForm(1 << 20)
			assert.NoError(t, err)
			assert.Equal(t, "a cat", request.FormValue("description"))

			file, header, err := request.FormFile("file")
			if assert.NoError(t, err) {
				defer func() { _ = file.Close() }()

				data, _ := io.ReadAll(file)
				assert.Equal(t, "cat.png", header.Filename)
				assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
				assert.Equal(t, "PNGDATA", string(data))
			}

			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, &MockTokenManager{token: "t"})

		_, err := client.Do(context.Background(), &mastohttp.Request{
			Method: "POST",
			Path:   "/api/v2/media",
			Params: &masto.CreateMediaParams{
				File:        masto.File{Name: "cat.png", ContentType: "image/png", Reader: strings.NewReader("PNGDATA")},
				Description: "a cat",
			},
		})
		require.NoError(t, err)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(writer).Encode(masto.ResponseError{Error: "Record not found"})
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil)

		resp, err := client.Do(context.Background(), &mastohttp.Request{
			Method: "GET",
			Path:   "/api/v1/statuses/missing",
		})
		require.Error(t, err)
		assert.Equal(t, 404, resp.StatusCode)

		apiErr := &masto.Error{}
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, masto.KindNotFound, apiErr.Kind)
		assert.Equal(t, "Record not found", apiErr.Message)
		assert.Equal(t, "GET /api/v1/statuses/missing", apiErr.Op)
		assert.True(t, masto.IsNotFound(err))
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "custom-value", request.Header.Get("X-Custom-Header"))
			assert.Equal(t, "default-value", request.Header.Get("X-Default"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil,
			mastohttp.WithDefaultHeaders(map[string]string{"X-Default": "default-value"}))

		resp, err := client.Do(context.Background(), &mastohttp.Request{
			Method:  "GET",
			Path:    "/api/v1/timelines/public",
			Headers: map[string]string{"X-Custom-Header": "custom-value"},
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := mastohttp.NewClient(server.URL, nil, mastohttp.WithLogger(logger), mastohttp.WithDebug(true))

		_, err := client.Do(context.Background(), &mastohttp.Request{Method: "GET", Path: "/api/v1/instance"})
		require.NoError(t, err)

		assert.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

func TestClient_RequireAuthWithoutCredentials(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := mastohttp.NewClient(server.URL, nil)

	resp, err := client.Do(context.Background(), &mastohttp.Request{
		Method:      "POST",
		Path:        "/api/v1/statuses",
		Params:      masto.Params{"status": "hi"},
		RequireAuth: true,
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, masto.KindUnauthorized, masto.KindOf(err))
	assert.Zero(t, hits.Load())
}

func TestClient_TokenNotSentToForeignHosts(t *testing.T) {
	t.Parallel()

	foreign := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Empty(t, request.Header.Get("Authorization"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer foreign.Close()

	home := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))
	defer home.Close()

	client := mastohttp.NewClient(home.URL, &MockTokenManager{token: "secret"})

	_, err := client.Do(context.Background(), &mastohttp.Request{Method: "GET", Path: foreign.URL + "/api/v1/timelines/home?max_id=5"})
	require.NoError(t, err)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		kind   masto.ErrorKind
		check  func(t *testing.T, apiErr *masto.Error)
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"The access token is invalid"}`, kind: masto.KindUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, kind: masto.KindUnauthorized},
		{name: "not found", status: http.StatusNotFound, kind: masto.KindNotFound},
		{
			name:   "rate limited with seconds",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "60"},
			kind:   masto.KindRateLimited,
			check: func(t *testing.T, apiErr *masto.Error) {
				t.Helper()
				assert.Equal(t, 60*time.Second, apiErr.RetryAfter)
				assert.Equal(t, 60, apiErr.RetryAfterSeconds())
			},
		},
		{
			name:   "rate limited with date",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)},
			kind:   masto.KindRateLimited,
			check: func(t *testing.T, apiErr *masto.Error) {
				t.Helper()
				assert.InDelta(t, 120, apiErr.RetryAfterSeconds(), 2)
			},
		},
		{
			name:   "validation details",
			status: http.StatusUnprocessableEntity,
			body:   `{"error":"Validation failed: Text can't be blank","details":{"text":[{"error":"ERR_BLANK","description":"can't be blank"}]}}`,
			kind:   masto.KindValidation,
			check: func(t *testing.T, apiErr *masto.Error) {
				t.Helper()
				assert.Equal(t, "Validation failed: Text can't be blank", apiErr.Message)
				require.Len(t, apiErr.Details["text"], 1)
				assert.Equal(t, "ERR_BLANK", apiErr.Details["text"][0].Error)
			},
		},
		{name: "bad gateway", status: http.StatusBadGateway, kind: masto.KindNetwork},
		{name: "service unavailable", status: http.StatusServiceUnavailable, kind: masto.KindNetwork},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   "boom",
			kind:   masto.KindUnknown,
			check: func(t *testing.T, apiErr *masto.Error) {
				t.Helper()
				assert.Equal(t, 500, apiErr.StatusCode)
				assert.Equal(t, []byte("boom"), apiErr.Body)
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				for k, v := range testCase.header {
					writer.Header().Set(k, v)
				}

				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := mastohttp.NewClient(server.URL, nil)

			_, err := client.Get(context.Background(), "/api/v1/test", nil)
			require.Error(t, err)

			apiErr := &masto.Error{}
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, testCase.kind, apiErr.Kind)
			assert.Equal(t, testCase.status, apiErr.StatusCode)

			if testCase.check != nil {
				testCase.check(t, apiErr)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := mastohttp.NewClient(server.URL, nil, mastohttp.WithTimeout(50*time.Millisecond))

	_, err := client.Get(context.Background(), "/api/v1/slow", nil)
	require.Error(t, err)
	assert.Equal(t, masto.KindTimeout, masto.KindOf(err))
	assert.ErrorIs(t, err, masto.ErrTimeout)
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := mastohttp.NewClient(serverURL, nil)

	_, err := client.Get(context.Background(), "/api/v1/instance", nil)
	require.Error(t, err)
	assert.Equal(t, masto.KindNetwork, masto.KindOf(err))
}

func TestClient_RequireVersion(t *testing.T) {
	t.Parallel()

	client := mastohttp.NewClient("https://example.social", nil, mastohttp.WithServerVersion("3.5.0"))

	err := client.RequireVersion("tags.follow", masto.Since("4.0.0"))
	require.Error(t, err)

	apiErr := &masto.Error{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, masto.KindValidation, apiErr.Kind)
	assert.Equal(t, "tags.follow", apiErr.Op)
	assert.Equal(t, ">=4.0.0", apiErr.RequiredVersion)
	assert.Equal(t, "3.5.0", apiErr.ActualVersion)

	require.NoError(t, client.RequireVersion("statuses.create", masto.Since("1.0.0")))
}

func TestClient_Interceptors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "intercepted", request.Header.Get("X-Trace"))
		writer.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	var seenStatus atomic.Int32

	chain := masto.NewInterceptorChain().
		AddRequestInterceptor(masto.HeaderInterceptor(map[string]string{"X-Trace": "intercepted"})).
		AddResponseInterceptor(func(ctx context.Context, req *masto.Request, resp *masto.Response) error {
			seenStatus.Store(int32(resp.StatusCode))

			return nil
		})

	client := mastohttp.NewClient(server.URL, nil, mastohttp.WithInterceptors(chain))

	_, err := client.Get(context.Background(), "/api/v1/instance", url.Values{"x": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, int32(http.StatusAccepted), seenStatus.Load())
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*mastohttp.Client, context.Context) (*mastohttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
		{
			name:   "POST raw",
			method: "POST",
			fn: func(c *mastohttp.Client, ctx context.Context) (*mastohttp.Response, error) {
				return c.PostRaw(ctx, "/test", []byte("a=b"), "application/x-www-form-urlencoded")
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := mastohttp.NewClient(server.URL, nil)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()
	t.Run("retries on 5xx errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil, mastohttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("no retries by default", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.Header().Set("Retry-After", "60")
			writer.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 429, resp.StatusCode)
		assert.True(t, masto.IsRateLimited(err))
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := mastohttp.NewClient(server.URL, nil, mastohttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})
}
