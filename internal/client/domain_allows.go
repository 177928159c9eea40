package client

import (
	"context"
	nethttp "net/http"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const domainAllowsPath = "/api/v1/admin/domain_allows"

// DomainAllowsClient implements masto.DomainAllowsClient. Every operation
// requires an admin token and a 4.0.0 server.
type DomainAllowsClient struct {
	httpClient *http.Client
}

// NewDomainAllowsClient creates a new domain allows client.
func NewDomainAllowsClient(httpClient *http.Client) *DomainAllowsClient {
	return &DomainAllowsClient{
		httpClient: httpClient,
	}
}

func (c *DomainAllowsClient) List(params *masto.ListParams) masto.Paginator[masto.DomainAllow] {
	return paginator.New[masto.DomainAllow](c.httpClient, domainAllowsPath, params,
		paginator.WithAuth(),
		paginator.WithVersion("admin.domain_allows.list", masto.Since(constants.DomainAllowsSince)),
	)
}

func (c *DomainAllowsClient) Get(ctx context.Context, id string) (*masto.DomainAllow, error) {
	path, err := c.path("admin.domain_allows.get", id)
	if err != nil {
		return nil, err
	}

	return http.Fetch[masto.DomainAllow](ctx, c.httpClient, &http.Request{
		Method:      nethttp.MethodGet,
		Path:        path,
		RequireAuth: true,
	})
}

func (c *DomainAllowsClient) Create(ctx context.Context, params *masto.CreateDomainAllowParams) (*masto.DomainAllow, error) {
	if params == nil || params.Domain == "" {
		return nil, masto.NewValidationError("admin.domain_allows.create", "domain is required", nil)
	}

	err := c.httpClient.RequireVersion("admin.domain_allows.create", masto.Since(constants.DomainAllowsSince))
	if err != nil {
		return nil, err
	}

	return http.SendJSON[masto.DomainAllow](ctx, c.httpClient, nethttp.MethodPost, domainAllowsPath, params)
}

func (c *DomainAllowsClient) Delete(ctx context.Context, id string) error {
	path, err := c.path("admin.domain_allows.remove", id)
	if err != nil {
		return err
	}

	_, err = c.httpClient.Do(ctx, &http.Request{Method: nethttp.MethodDelete, Path: path, RequireAuth: true})

	return err
}

func (c *DomainAllowsClient) path(op, id string) (string, error) {
	err := c.httpClient.RequireVersion(op, masto.Since(constants.DomainAllowsSince))
	if err != nil {
		return "", err
	}

	return resourcePath(op, domainAllowsPath, id)
}
