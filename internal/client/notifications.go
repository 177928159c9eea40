package client

import (
	"context"
	nethttp "net/http"

	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const notificationsPath = "/api/v1/notifications"

// NotificationsClient implements masto.NotificationsClient.
type NotificationsClient struct {
	httpClient *http.Client
}

// NewNotificationsClient creates a new notifications client.
func NewNotificationsClient(httpClient *http.Client) *NotificationsClient {
	return &NotificationsClient{
		httpClient: httpClient,
	}
}

// List implements masto.NotificationsClient.List.
func (c *NotificationsClient) List(params *masto.NotificationsParams) masto.Paginator[masto.Notification] {
	return paginator.New[masto.Notification](c.httpClient, notificationsPath, params, paginator.WithAuth())
}

// Get implements masto.NotificationsClient.Get.
func (c *NotificationsClient) Get(ctx context.Context, id string) (*masto.Notification, error) {
	path, err := resourcePath("notifications.get", notificationsPath, id)
	if err != nil {
		return nil, err
	}

	return http.Fetch[masto.Notification](ctx, c.httpClient, &http.Request{
		Method:      nethttp.MethodGet,
		Path:        path,
		RequireAuth: true,
	})
}

// Dismiss removes a single notification.
func (c *NotificationsClient) Dismiss(ctx context.Context, id string) error {
	path, err := resourcePath("notifications.dismiss", notificationsPath, id, "dismiss")
	if err != nil {
		return err
	}

	_, err = c.httpClient.Do(ctx, &http.Request{Method: nethttp.MethodPost, Path: path, RequireAuth: true})

	return err
}

// Clear removes every notification.
func (c *NotificationsClient) Clear(ctx context.Context) error {
	_, err := c.httpClient.Do(ctx, &http.Request{
		Method:      nethttp.MethodPost,
		Path:        notificationsPath + "/clear",
		RequireAuth: true,
	})

	return err
}
