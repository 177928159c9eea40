package client

import (
	"context"
	nethttp "net/http"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const tagsPath = "/api/v1/tags"

// TagsClient implements masto.TagsClient.
type TagsClient struct {
	httpClient *http.Client
}

// NewTagsClient creates a new tags client.
func NewTagsClient(httpClient *http.Client) *TagsClient {
	return &TagsClient{
		httpClient: httpClient,
	}
}

// Get implements masto.TagsClient.Get.
func (c *TagsClient) Get(ctx context.Context, name string) (*masto.Tag, error) {
	path, err := resourcePath("tags.get", tagsPath, name)
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.Tag](ctx, c.httpClient, path, nil)
}

// Follow adds the tag to the home timeline.
func (c *TagsClient) Follow(ctx context.Context, name string) (*masto.Tag, error) {
	return c.toggle(ctx, "tags.follow", name, "follow")
}

// Unfollow removes the tag from the home timeline.
func (c *TagsClient) Unfollow(ctx context.Context, name string) (*masto.Tag, error) {
	return c.toggle(ctx, "tags.unfollow", name, "unfollow")
}

func (c *TagsClient) toggle(ctx context.Context, op, name, action string) (*masto.Tag, error) {
	err := c.httpClient.RequireVersion(op, masto.Since(constants.FollowedTagsSince))
	if err != nil {
		return nil, err
	}

	path, err := resourcePath(op, tagsPath, name, action)
	if err != nil {
		return nil, err
	}

	return http.SendJSON[masto.Tag](ctx, c.httpClient, nethttp.MethodPost, path, nil)
}

// FollowedTagsClient implements masto.FollowedTagsClient.
type FollowedTagsClient struct {
	httpClient *http.Client
}

// NewFollowedTagsClient creates a new followed tags client.
func NewFollowedTagsClient(httpClient *http.Client) *FollowedTagsClient {
	return &FollowedTagsClient{
		httpClient: httpClient,
	}
}

// List implements masto.FollowedTagsClient.List.
func (c *FollowedTagsClient) List(params *masto.ListParams) masto.Paginator[masto.Tag] {
	return paginator.New[masto.Tag](c.httpClient, "/api/v1/followed_tags", params,
		paginator.WithAuth(),
		paginator.WithVersion("followed_tags.list", masto.Since(constants.FollowedTagsSince)),
	)
}
