package client

import (
	"net/url"

	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/paginator"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const timelinesPath = "/api/v1/timelines"

// TimelinesClient implements masto.TimelinesClient.
type TimelinesClient struct {
	httpClient *http.Client
}

// NewTimelinesClient creates a new timelines client.
func NewTimelinesClient(httpClient *http.Client) *TimelinesClient {
	return &TimelinesClient{
		httpClient: httpClient,
	}
}

// Home lists statuses from followed accounts and tags.
func (c *TimelinesClient) Home(params *masto.ListParams) masto.Paginator[masto.Status] {
	return paginator.New[masto.Status](c.httpClient, timelinesPath+"/home", params, paginator.WithAuth())
}

// Public lists the federated timeline, or the local one with Local set.
func (c *TimelinesClient) Public(params *masto.TimelineParams) masto.Paginator[masto.Status] {
	return paginator.New[masto.Status](c.httpClient, timelinesPath+"/public", params)
}

// Hashtag lists public statuses carrying tag.
func (c *TimelinesClient) Hashtag(tag string, params *masto.HashtagTimelineParams) masto.Paginator[masto.Status] {
	return paginator.New[masto.Status](c.httpClient, timelinesPath+"/tag/"+url.PathEscape(tag), params)
}

// List lists statuses from the members of a list.
func (c *TimelinesClient) List(listID string, params *masto.ListParams) masto.Paginator[masto.Status] {
	return paginator.New[masto.Status](c.httpClient, timelinesPath+"/list/"+url.PathEscape(listID), params, paginator.WithAuth())
}
