package client

import (
	"context"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/google/uuid"
)

const statusesPath = "/api/v1/statuses"

// StatusesClient implements masto.StatusesClient.
type StatusesClient struct {
	httpClient *http.Client
}

// NewStatusesClient creates a new statuses client.
func NewStatusesClient(httpClient *http.Client) *StatusesClient {
	return &StatusesClient{
		httpClient: httpClient,
	}
}

// Create publishes a status. Retried requests carry the same
// Idempotency-Key so the server does not post twice.
func (c *StatusesClient) Create(ctx context.Context, params *masto.CreateStatusParams) (*masto.Status, error) {
	err := params.Validate()
	if err != nil {
		return nil, err
	}

	key := params.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	return http.Fetch[masto.Status](ctx, c.httpClient, &http.Request{
		Method:      nethttp.MethodPost,
		Path:        statusesPath,
		Params:      params,
		Headers:     map[string]string{"Idempotency-Key": key},
		RequireAuth: true,
	})
}

// Get implements masto.StatusesClient.Get.
func (c *StatusesClient) Get(ctx context.Context, id string) (*masto.Status, error) {
	path, err := resourcePath("statuses.get", statusesPath, id)
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.Status](ctx, c.httpClient, path, nil)
}

// Delete removes a status and returns it with its source text, for
// delete-and-redraft.
func (c *StatusesClient) Delete(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.delete", nethttp.MethodDelete, id, "")
}

// Context returns the ancestors and descendants of a status.
func (c *StatusesClient) Context(ctx context.Context, id string) (*masto.Context, error) {
	path, err := resourcePath("statuses.context", statusesPath, id, "context")
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.Context](ctx, c.httpClient, path, nil)
}

func (c *StatusesClient) Favourite(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.favourite", nethttp.MethodPost, id, "favourite")
}

func (c *StatusesClient) Unfavourite(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.unfavourite", nethttp.MethodPost, id, "unfavourite")
}

func (c *StatusesClient) Reblog(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.reblog", nethttp.MethodPost, id, "reblog")
}

func (c *StatusesClient) Unreblog(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.unreblog", nethttp.MethodPost, id, "unreblog")
}

func (c *StatusesClient) Bookmark(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.bookmark", nethttp.MethodPost, id, "bookmark")
}

func (c *StatusesClient) Unbookmark(ctx context.Context, id string) (*masto.Status, error) {
	return c.send(ctx, "statuses.unbookmark", nethttp.MethodPost, id, "unbookmark")
}

// FavouritedBy lists the accounts that favourited a status.
func (c *StatusesClient) FavouritedBy(id string, params *masto.ListParams) masto.Paginator[masto.Account] {
	return paginator.New[masto.Account](c.httpClient, statusesPath+"/"+url.PathEscape(id)+"/favourited_by", params)
}

// RebloggedBy lists the accounts that boosted a status.
func (c *StatusesClient) RebloggedBy(id string, params *masto.ListParams) masto.Paginator[masto.Account] {
	return paginator.New[masto.Account](c.httpClient, statusesPath+"/"+url.PathEscape(id)+"/reblogged_by", params)
}

func (c *StatusesClient) send(ctx context.Context, op, method, id, action string) (*masto.Status, error) {
	var suffix []string
	if action != "" {
		suffix = append(suffix, action)
	}

	path, err := resourcePath(op, statusesPath, id, suffix...)
	if err != nil {
		return nil, err
	}

	return http.SendJSON[masto.Status](ctx, c.httpClient, method, path, nil)
}
