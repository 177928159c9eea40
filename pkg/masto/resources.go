package masto

import (
	"context"
	"time"
)

// ListParams are the cursor parameters shared by Link-paginated endpoints.
type ListParams struct {
	Limit   int    `param:"limit"`
	MaxID   string `param:"max_id"`
	MinID   string `param:"min_id"`
	SinceID string `param:"since_id"`
}

// TimelineParams filter public, hashtag and list timelines.
type TimelineParams struct {
	ListParams

	Local     bool `param:"local"`
	Remote    bool `param:"remote"`
	OnlyMedia bool `param:"only_media"`
}

// HashtagTimelineParams add tag combinations to TimelineParams.
type HashtagTimelineParams struct {
	TimelineParams

	Any  []string `param:"any"`
	All  []string `param:"all"`
	None []string `param:"none"`
}

// AccountStatusesParams filter an account's statuses.
type AccountStatusesParams struct {
	ListParams

	OnlyMedia      bool   `param:"only_media"`
	ExcludeReplies bool   `param:"exclude_replies"`
	ExcludeReblogs bool   `param:"exclude_reblogs"`
	Pinned         bool   `param:"pinned"`
	Tagged         string `param:"tagged"`
}

// NotificationsParams filter the notification list.
type NotificationsParams struct {
	ListParams

	Types        []string `param:"types"`
	ExcludeTypes []string `param:"exclude_types"`
	AccountID    string   `param:"account_id"`
}

// CreateStatusParams is the body of a new status.
type CreateStatusParams struct {
	Status      string     `param:"status"`
	MediaIDs    []string   `param:"media_ids"`
	InReplyToID string     `param:"in_reply_to_id"`
	Sensitive   bool       `param:"sensitive"`
	SpoilerText string     `param:"spoiler_text"`
	Visibility  Visibility `param:"visibility"`
	Language    string     `param:"language"`
	ScheduledAt *time.Time `param:"scheduled_at"`

	// IdempotencyKey is sent as a header. A random key is used when empty.
	IdempotencyKey string `param:"-"`
}

// Validate requires text or media.
func (p *CreateStatusParams) Validate() error {
	if p == nil || (p.Status == "" && len(p.MediaIDs) == 0) {
		return NewValidationError("statuses.create", "status text or media is required", nil)
	}

	return nil
}

// CreateMediaParams uploads an attachment.
type CreateMediaParams struct {
	File        File   `param:"file"`
	Thumbnail   *File  `param:"thumbnail"`
	Description string `param:"description"`
	Focus       string `param:"focus"`
}

// CreateDomainAllowParams allows federation with a domain.
type CreateDomainAllowParams struct {
	Domain string `param:"domain"`
}

// StatusesClient manages statuses.
type StatusesClient interface {
	Create(ctx context.Context, params *CreateStatusParams) (*Status, error)
	Get(ctx context.Context, id string) (*Status, error)
	Delete(ctx context.Context, id string) (*Status, error)
	Context(ctx context.Context, id string) (*Context, error)
	Favourite(ctx context.Context, id string) (*Status, error)
	Unfavourite(ctx context.Context, id string) (*Status, error)
	Reblog(ctx context.Context, id string) (*Status, error)
	Unreblog(ctx context.Context, id string) (*Status, error)
	Bookmark(ctx context.Context, id string) (*Status, error)
	Unbookmark(ctx context.Context, id string) (*Status, error)
	FavouritedBy(id string, params *ListParams) Paginator[Account]
	RebloggedBy(id string, params *ListParams) Paginator[Account]
}

// AccountsClient manages accounts and relationships.
type AccountsClient interface {
	Get(ctx context.Context, id string) (*Account, error)
	VerifyCredentials(ctx context.Context) (*Account, error)
	Lookup(ctx context.Context, acct string) (*Account, error)
	Relationships(ctx context.Context, ids []string) ([]Relationship, error)
	Follow(ctx context.Context, id string) (*Relationship, error)
	Unfollow(ctx context.Context, id string) (*Relationship, error)
	Statuses(id string, params *AccountStatusesParams) Paginator[Status]
	Followers(id string, params *ListParams) Paginator[Account]
	Following(id string, params *ListParams) Paginator[Account]
}

// TimelinesClient lists timelines.
type TimelinesClient interface {
	Home(params *ListParams) Paginator[Status]
	Public(params *TimelineParams) Paginator[Status]
	Hashtag(tag string, params *HashtagTimelineParams) Paginator[Status]
	List(listID string, params *ListParams) Paginator[Status]
}

// NotificationsClient manages notifications.
type NotificationsClient interface {
	List(params *NotificationsParams) Paginator[Notification]
	Get(ctx context.Context, id string) (*Notification, error)
	Dismiss(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// MediaAttachmentsClient uploads and fetches media.
type MediaAttachmentsClient interface {
	Create(ctx context.Context, params *CreateMediaParams) (*MediaAttachment, error)
	Get(ctx context.Context, id string) (*MediaAttachment, error)
}

// TagsClient manages hashtags. Following requires 4.0.0.
type TagsClient interface {
	Get(ctx context.Context, name string) (*Tag, error)
	Follow(ctx context.Context, name string) (*Tag, error)
	Unfollow(ctx context.Context, name string) (*Tag, error)
}

// FollowedTagsClient lists followed hashtags. Requires 4.0.0.
type FollowedTagsClient interface {
	List(params *ListParams) Paginator[Tag]
}

// InstanceClient fetches instance metadata.
type InstanceClient interface {
	Get(ctx context.Context) (*Instance, error)
	GetV2(ctx context.Context) (*InstanceV2, error)
}

// DomainAllowsClient manages the admin domain allow list. Requires 4.0.0.
type DomainAllowsClient interface {
	List(params *ListParams) Paginator[DomainAllow]
	Get(ctx context.Context, id string) (*DomainAllow, error)
	Create(ctx context.Context, params *CreateDomainAllowParams) (*DomainAllow, error)
	Delete(ctx context.Context, id string) error
}

// StreamingClient subscribes to realtime channels over one shared connection.
type StreamingClient interface {
	Subscribe(ctx context.Context, channel Channel, handler EventHandler) (Subscription, error)
	State() StreamState
	Close() error
}
