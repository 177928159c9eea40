package client

import (
	"context"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

// InstanceClient implements masto.InstanceClient.
type InstanceClient struct {
	httpClient *http.Client
}

// NewInstanceClient creates a new instance client.
func NewInstanceClient(httpClient *http.Client) *InstanceClient {
	return &InstanceClient{
		httpClient: httpClient,
	}
}

// Get implements masto.InstanceClient.Get.
func (c *InstanceClient) Get(ctx context.Context) (*masto.Instance, error) {
	return http.GetJSON[masto.Instance](ctx, c.httpClient, "/api/v1/instance", nil)
}

// GetV2 implements masto.InstanceClient.GetV2.
func (c *InstanceClient) GetV2(ctx context.Context) (*masto.InstanceV2, error) {
	err := c.httpClient.RequireVersion("instance.get_v2", masto.Since(constants.InstanceV2Since))
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.InstanceV2](ctx, c.httpClient, "/api/v2/instance", nil)
}
