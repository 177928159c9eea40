package client

import (
	"context"
	nethttp "net/http"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

// MediaAttachmentsClient implements masto.MediaAttachmentsClient.
type MediaAttachmentsClient struct {
	httpClient *http.Client
}

// NewMediaAttachmentsClient creates a new media client.
func NewMediaAttachmentsClient(httpClient *http.Client) *MediaAttachmentsClient {
	return &MediaAttachmentsClient{
		httpClient: httpClient,
	}
}

// Create uploads a file through the asynchronous v2 endpoint. Large files
// may still be processing when this returns (URL is empty until then).
func (c *MediaAttachmentsClient) Create(ctx context.Context, params *masto.CreateMediaParams) (*masto.MediaAttachment, error) {
	if params == nil || params.File.Reader == nil {
		return nil, masto.NewValidationError("media.create", "file is required", nil)
	}

	err := c.httpClient.RequireVersion("media.create", masto.Since(constants.MediaV2Since))
	if err != nil {
		return nil, err
	}

	return http.SendJSON[masto.MediaAttachment](ctx, c.httpClient, nethttp.MethodPost, "/api/v2/media", params)
}

// Get implements masto.MediaAttachmentsClient.Get.
func (c *MediaAttachmentsClient) Get(ctx context.Context, id string) (*masto.MediaAttachment, error) {
	path, err := resourcePath("media.get", "/api/v1/media", id)
	if err != nil {
		return nil, err
	}

	return http.Fetch[masto.MediaAttachment](ctx, c.httpClient, &http.Request{
		Method:      nethttp.MethodGet,
		Path:        path,
		RequireAuth: true,
	})
}
