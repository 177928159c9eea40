package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	. "github.com/fivetwenty-io/masto/internal/client"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusJSON = `{"id":"103","content":"<p>hello</p>","visibility":"public",` +
	`"account":{"id":"1","acct":"alice","username":"alice"}}`

// newServer serves routes keyed by "METHOD /path" and counts every request.
func newServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Record not found"}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return server, &hits
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func newClient(t *testing.T, url, version, token string) *Client {
	t.Helper()

	client, err := New(context.Background(), &masto.Config{
		URL:           url,
		AccessToken:   token,
		ServerVersion: version,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires config", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), nil)
		require.ErrorIs(t, err, masto.ErrConfigRequired)
	})

	t.Run("requires URL", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &masto.Config{})
		require.Error(t, err)
		assert.True(t, masto.IsValidation(err))
		assert.Contains(t, err.Error(), "instance URL is required")
	})

	t.Run("explicit version skips negotiation", func(t *testing.T) {
		t.Parallel()

		server, hits := newServer(t, nil)

		client := newClient(t, server.URL, "4.2.0", "")

		assert.Equal(t, int32(0), hits.Load())
		assert.Equal(t, masto.ServerInfo{
			Software:        "mastodon",
			SoftwareVersion: "4.2.0",
			Version:         "4.2.0",
			StreamingURL:    server.URL,
		}, client.Server())
	})

	t.Run("negotiates with instance v2", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v2/instance": respond(`{"domain":"example.social","version":"4.2.1",` +
				`"configuration":{"urls":{"streaming":"wss://streaming.example.social"}}}`),
		})

		client, err := New(context.Background(), &masto.Config{URL: server.URL})
		require.NoError(t, err)

		info := client.Server()
		assert.Equal(t, "mastodon", info.Software)
		assert.Equal(t, "4.2.1", info.Version)
		assert.Equal(t, "https://streaming.example.social", info.StreamingURL)
	})

	t.Run("falls back to instance v1", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v1/instance": respond(`{"uri":"example.social",` +
				`"version":"2.7.2 (compatible; Pleroma 2.5.0)","urls":{"streaming_api":"wss://example.social"}}`),
		})

		client, err := New(context.Background(), &masto.Config{URL: server.URL})
		require.NoError(t, err)

		info := client.Server()
		assert.Equal(t, "pleroma", info.Software)
		assert.Equal(t, "2.5.0", info.SoftwareVersion)
		assert.Equal(t, "2.7.2", info.Version)
	})

	t.Run("configured streaming URL wins", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v2/instance": respond(`{"version":"4.2.1","configuration":{"urls":{"streaming":"wss://other"}}}`),
		})

		client, err := New(context.Background(), &masto.Config{
			URL:          server.URL,
			StreamingURL: "https://stream.example.social",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://stream.example.social", client.Server().StreamingURL)
	})

	t.Run("negotiation failure is returned", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v2/instance": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"This API requires an authenticated user"}`))
			},
		})

		_, err := New(context.Background(), &masto.Config{URL: server.URL})
		require.Error(t, err)
		assert.True(t, masto.IsUnauthorized(err))
	})

	t.Run("cached server info avoids requests", func(t *testing.T) {
		t.Parallel()

		server, hits := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v2/instance": respond(`{"version":"4.1.0","configuration":{"urls":{"streaming":"wss://s.example"}}}`),
		})

		cache := masto.NewMemoryCache(10)
		config := &masto.Config{URL: server.URL, Cache: cache}

		first, err := New(context.Background(), config)
		require.NoError(t, err)

		second, err := New(context.Background(), config)
		require.NoError(t, err)

		assert.Equal(t, int32(1), hits.Load())
		assert.Equal(t, first.Server(), second.Server())
	})
}

func TestClient_GetToken(t *testing.T) {
	t.Parallel()

	anonymous := newClient(t, "https://example.social", "4.2.0", "")
	_, err := anonymous.GetToken(context.Background())
	require.ErrorIs(t, err, ErrNoTokenManagerConfigured)

	authed := newClient(t, "https://example.social", "4.2.0", "secret")
	token, err := authed.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func TestClient_StreamingDefaultsToInstanceURL(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, map[string]http.HandlerFunc{
		"GET /api/v2/instance": respond(`{"version":"4.2.0"}`),
	})

	// the instance URL is the fallback streaming endpoint
	client, err := New(context.Background(), &masto.Config{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, server.URL, client.Server().StreamingURL)
	assert.Equal(t, masto.StateIdle, client.Streaming().State())
	require.NoError(t, client.Close())
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestStatusesClient(t *testing.T) {
	t.Parallel()

	t.Run("create sends idempotency key and token", func(t *testing.T) {
		t.Parallel()

		var keys []string

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"POST /api/v1/statuses": func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "hello", body["status"])
				assert.Equal(t, "unlisted", body["visibility"])

				keys = append(keys, r.Header.Get("Idempotency-Key"))
				_, _ = w.Write([]byte(statusJSON))
			},
		})

		client := newClient(t, server.URL, "4.2.0", "token")

		status, err := client.Statuses().Create(context.Background(), &masto.CreateStatusParams{
			Status:     "hello",
			Visibility: masto.VisibilityUnlisted,
		})
		require.NoError(t, err)
		assert.Equal(t, "103", status.ID)

		_, err = client.Statuses().Create(context.Background(), &masto.CreateStatusParams{
			Status:         "hello",
			Visibility:     masto.VisibilityUnlisted,
			IdempotencyKey: "fixed-key",
		})
		require.NoError(t, err)

		require.Len(t, keys, 2)
		assert.NotEmpty(t, keys[0])
		assert.Equal(t, "fixed-key", keys[1])
	})

	t.Run("create without credentials fails locally", func(t *testing.T) {
		t.Parallel()

		server, hits := newServer(t, nil)
		client := newClient(t, server.URL, "4.2.0", "")

		_, err := client.Statuses().Create(context.Background(), &masto.CreateStatusParams{Status: "hi"})
		require.Error(t, err)
		assert.True(t, masto.IsUnauthorized(err))
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("create requires text or media", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, "https://example.social", "4.2.0", "token")

		_, err := client.Statuses().Create(context.Background(), &masto.CreateStatusParams{})
		require.Error(t, err)
		assert.True(t, masto.IsValidation(err))
	})

	t.Run("get is public and escapes id", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"GET /api/v1/statuses/103": func(w http.ResponseWriter, r *http.Request) {
				assert.Empty(t, r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(statusJSON))
			},
		})

		client := newClient(t, server.URL, "4.2.0", "")

		status, err := client.Statuses().Get(context.Background(), "103")
		require.NoError(t, err)
		assert.Equal(t, "alice", status.Account.Acct)

		_, err = client.Statuses().Get(context.Background(), "")
		assert.True(t, masto.IsValidation(err))
	})

	t.Run("missing status is not found", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, nil)
		client := newClient(t, server.URL, "4.2.0", "")

		_, err := client.Statuses().Get(context.Background(), "404")
		require.Error(t, err)
		assert.True(t, masto.IsNotFound(err))
	})

	t.Run("actions post to their endpoints", func(t *testing.T) {
		t.Parallel()

		var paths []string

		record := func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.Method+" "+r.URL.Path)
			_, _ = w.Write([]byte(statusJSON))
		}

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"POST /api/v1/statuses/103/favourite":  record,
			"POST /api/v1/statuses/103/reblog":     record,
			"POST /api/v1/statuses/103/bookmark":   record,
			"POST /api/v1/statuses/103/unbookmark": record,
			"DELETE /api/v1/statuses/103":          record,
		})

		client := newClient(t, server.URL, "4.2.0", "token")
		ctx := context.Background()

		_, err := client.Statuses().Favourite(ctx, "103")
		require.NoError(t, err)
		_, err = client.Statuses().Reblog(ctx, "103")
		require.NoError(t, err)
		_, err = client.Statuses().Bookmark(ctx, "103")
		require.NoError(t, err)
		_, err = client.Statuses().Unbookmark(ctx, "103")
		require.NoError(t, err)
		_, err = client.Statuses().Delete(ctx, "103")
		require.NoError(t, err)

		assert.Equal(t, []string{
			"POST /api/v1/statuses/103/favourite",
			"POST /api/v1/statuses/103/reblog",
			"POST /api/v1/statuses/103/bookmark",
			"POST /api/v1/statuses/103/unbookmark",
			"DELETE /api/v1/statuses/103",
		}, paths)
	})
}

func TestMediaAttachmentsClient_Create(t *testing.T) {
	t.Parallel()

	t.Run("uploads multipart", func(t *testing.T) {
		t.Parallel()

		server, _ := newServer(t, map[string]http.HandlerFunc{
			"POST /api/v2/media": func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
				assert.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "a cat", r.FormValue("description"))

				file, header, err := r.FormFile("file")
				if assert.NoError(t, err) {
					data, _ := io.ReadAll(file)
					assert.Equal(t, "PNGDATA", string(data))
					assert.Equal(t, "cat.png", header.Filename)
				}

				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte(`{"id":"22","type":"image","url":null}`))
			},
		})

		client := newClient(t, server.URL, "4.2.0", "token")

		media, err := client.MediaAttachments().Create(context.Background(), &masto.CreateMediaParams{
			File:        masto.File{Name: "cat.png", ContentType: "image/png", Reader: strings.NewReader("PNGDATA")},
			Description: "a cat",
		})
		require.NoError(t, err)
		assert.Equal(t, "22", media.ID)
	})

	t.Run("old servers are rejected before any request", func(t *testing.T) {
		t.Parallel()

		server, hits := newServer(t, nil)
		client := newClient(t, server.URL, "3.0.0", "token")

		_, err := client.MediaAttachments().Create(context.Background(), &masto.CreateMediaParams{
			File: masto.File{Name: "cat.png", Reader: strings.NewReader("x")},
		})
		require.Error(t, err)

		var apiErr *masto.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, masto.KindValidation, apiErr.Kind)
		assert.Equal(t, "3.1.3", apiErr.RequiredVersion)
		assert.Equal(t, "3.0.0", apiErr.ActualVersion)
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("requires a file", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, "https://example.social", "4.2.0", "token")

		_, err := client.MediaAttachments().Create(context.Background(), &masto.CreateMediaParams{})
		assert.True(t, masto.IsValidation(err))
	})
}

func TestAccountsClient(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/accounts/relationships": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, []string{"1", "2"}, r.URL.Query()["id[]"])
			_, _ = w.Write([]byte(`[{"id":"1","following":true},{"id":"2"}]`))
		},
		"GET /api/v1/accounts/lookup": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "alice", r.URL.Query().Get("acct"))
			_, _ = w.Write([]byte(`{"id":"1","acct":"alice","username":"alice"}`))
		},
		"POST /api/v1/accounts/2/follow": respond(`{"id":"2","following":true}`),
	})

	client := newClient(t, server.URL, "4.2.0", "token")
	ctx := context.Background()

	relationships, err := client.Accounts().Relationships(ctx, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, relationships, 2)
	assert.True(t, relationships[0].Following)

	account, err := client.Accounts().Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", account.ID)

	relationship, err := client.Accounts().Follow(ctx, "2")
	require.NoError(t, err)
	assert.True(t, relationship.Following)

	old := newClient(t, server.URL, "3.3.0", "token")
	_, err = old.Accounts().Lookup(ctx, "alice")
	assert.True(t, masto.IsValidation(err))
}

func TestTimelinesClient_Hashtag(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/timelines/tag/golang": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("local"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[` + statusJSON + `]`))
		},
	})

	client := newClient(t, server.URL, "4.2.0", "")

	params := &masto.HashtagTimelineParams{}
	params.Local = true
	params.Limit = 5

	statuses, err := client.Timelines().Hashtag("golang", params).Next(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "103", statuses[0].ID)
}

func TestTagsAndDomainAllows_VersionGates(t *testing.T) {
	t.Parallel()

	server, hits := newServer(t, nil)
	client := newClient(t, server.URL, "3.5.5", "token")
	ctx := context.Background()

	_, err := client.Tags().Follow(ctx, "golang")
	assert.True(t, masto.IsValidation(err))

	_, err = client.FollowedTags().List(nil).Next(ctx)
	assert.True(t, masto.IsValidation(err))

	_, err = client.DomainAllows().Create(ctx, &masto.CreateDomainAllowParams{Domain: "example.org"})
	assert.True(t, masto.IsValidation(err))

	_, err = client.Instance().GetV2(ctx)
	assert.True(t, masto.IsValidation(err))

	assert.Equal(t, int32(0), hits.Load())
}

func TestDomainAllowsClient(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/admin/domain_allows": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "example.org", body["domain"])
			_, _ = w.Write([]byte(`{"id":"7","domain":"example.org"}`))
		},
		"DELETE /api/v1/admin/domain_allows/7": respond(`{}`),
		"GET /api/v1/admin/domain_allows": respond(`[{"id":"7","domain":"example.org"}]`),
	})

	client := newClient(t, server.URL, "4.2.0", "token")
	ctx := context.Background()

	allow, err := client.DomainAllows().Create(ctx, &masto.CreateDomainAllowParams{Domain: "example.org"})
	require.NoError(t, err)
	assert.Equal(t, "7", allow.ID)

	allows, err := client.DomainAllows().List(nil).Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, allows, 1)

	require.NoError(t, client.DomainAllows().Delete(ctx, "7"))
}

func TestNotificationsClient(t *testing.T) {
	t.Parallel()

	var dismissed, cleared atomic.Bool

	server, _ := newServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/notifications/9/dismiss": func(w http.ResponseWriter, _ *http.Request) {
			dismissed.Store(true)
			_, _ = w.Write([]byte(`{}`))
		},
		"POST /api/v1/notifications/clear": func(w http.ResponseWriter, _ *http.Request) {
			cleared.Store(true)
			_, _ = w.Write([]byte(`{}`))
		},
	})

	client := newClient(t, server.URL, "4.2.0", "token")

	require.NoError(t, client.Notifications().Dismiss(context.Background(), "9"))
	require.NoError(t, client.Notifications().Clear(context.Background()))
	assert.True(t, dismissed.Load())
	assert.True(t, cleared.Load())
}
