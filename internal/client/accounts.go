package client

import (
	"context"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const accountsPath = "/api/v1/accounts"

// AccountsClient implements masto.AccountsClient.
type AccountsClient struct {
	httpClient *http.Client
}

// NewAccountsClient creates a new accounts client.
func NewAccountsClient(httpClient *http.Client) *AccountsClient {
	return &AccountsClient{
		httpClient: httpClient,
	}
}

// Get implements masto.AccountsClient.Get.
func (c *AccountsClient) Get(ctx context.Context, id string) (*masto.Account, error) {
	path, err := resourcePath("accounts.get", accountsPath, id)
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.Account](ctx, c.httpClient, path, nil)
}

// VerifyCredentials returns the account that owns the token.
func (c *AccountsClient) VerifyCredentials(ctx context.Context) (*masto.Account, error) {
	return http.Fetch[masto.Account](ctx, c.httpClient, &http.Request{
		Method:      nethttp.MethodGet,
		Path:        accountsPath + "/verify_credentials",
		RequireAuth: true,
	})
}

// Lookup resolves a webfinger address such as "user@example.social".
func (c *AccountsClient) Lookup(ctx context.Context, acct string) (*masto.Account, error) {
	if acct == "" {
		return nil, masto.NewValidationError("accounts.lookup", "acct is required", nil)
	}

	err := c.httpClient.RequireVersion("accounts.lookup", masto.Since(constants.AccountLookupSince))
	if err != nil {
		return nil, err
	}

	return http.GetJSON[masto.Account](ctx, c.httpClient, accountsPath+"/lookup", masto.Params{"acct": acct})
}

// Relationships returns the caller's relationship with each account.
func (c *AccountsClient) Relationships(ctx context.Context, ids []string) ([]masto.Relationship, error) {
	req := &http.Request{
		Method:      nethttp.MethodGet,
		Path:        accountsPath + "/relationships",
		Params:      masto.Params{"id": ids},
		RequireAuth: true,
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	return http.DecodeList[masto.Relationship]("GET "+req.Path, resp.Body)
}

func (c *AccountsClient) Follow(ctx context.Context, id string) (*masto.Relationship, error) {
	return c.relationship(ctx, "accounts.follow", id, "follow")
}

func (c *AccountsClient) Unfollow(ctx context.Context, id string) (*masto.Relationship, error) {
	return c.relationship(ctx, "accounts.unfollow", id, "unfollow")
}

// Statuses lists an account's statuses, newest first.
func (c *AccountsClient) Statuses(id string, params *masto.AccountStatusesParams) masto.Paginator[masto.Status] {
	return paginator.New[masto.Status](c.httpClient, accountsPath+"/"+url.PathEscape(id)+"/statuses", params)
}

func (c *AccountsClient) Followers(id string, params *masto.ListParams) masto.Paginator[masto.Account] {
	return paginator.New[masto.Account](c.httpClient, accountsPath+"/"+url.PathEscape(id)+"/followers", params)
}

func (c *AccountsClient) Following(id string, params *masto.ListParams) masto.Paginator[masto.Account] {
	return paginator.New[masto.Account](c.httpClient, accountsPath+"/"+url.PathEscape(id)+"/following", params)
}

func (c *AccountsClient) relationship(ctx context.Context, op, id, action string) (*masto.Relationship, error) {
	path, err := resourcePath(op, accountsPath, id, action)
	if err != nil {
		return nil, err
	}

	return http.SendJSON[masto.Relationship](ctx, c.httpClient, nethttp.MethodPost, path, nil)
}
