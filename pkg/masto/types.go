package masto

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validatable is implemented by entities that check their own shape after decoding.
type Validatable interface {
	Validate() error
}

// Visibility of a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Emoji represents a custom emoji.
type Emoji struct {
	Shortcode       string `json:"shortcode"         yaml:"shortcode"`
	URL             string `json:"url"               yaml:"url"`
	StaticURL       string `json:"static_url"        yaml:"static_url"`
	VisibleInPicker bool   `json:"visible_in_picker" yaml:"visible_in_picker"`
	Category        string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Field is a profile metadata field.
type Field struct {
	Name       string     `json:"name"                  yaml:"name"`
	Value      string     `json:"value"                 yaml:"value"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" yaml:"verified_at,omitempty"`
}

// Account represents a user of the instance and their profile.
type Account struct {
	ID             string    `json:"id"              yaml:"id"`
	Username       string    `json:"username"        yaml:"username"`
	Acct           string    `json:"acct"            yaml:"acct"`
	URL            string    `json:"url"             yaml:"url"`
	DisplayName    string    `json:"display_name"    yaml:"display_name"`
	Note           string    `json:"note"            yaml:"note"`
	Avatar         string    `json:"avatar"          yaml:"avatar"`
	Header         string    `json:"header"          yaml:"header"`
	Locked         bool      `json:"locked"          yaml:"locked"`
	Bot            bool      `json:"bot"             yaml:"bot"`
	CreatedAt      time.Time `json:"created_at"      yaml:"created_at"`
	FollowersCount int       `json:"followers_count" yaml:"followers_count"`
	FollowingCount int       `json:"following_count" yaml:"following_count"`
	StatusesCount  int       `json:"statuses_count"  yaml:"statuses_count"`
	Emojis         []Emoji   `json:"emojis"          yaml:"emojis"`
	Fields         []Field   `json:"fields"          yaml:"fields"`
}

// Validate checks the fields every account payload must carry.
func (a Account) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.Acct, validation.Required),
	)
}

// Relationship between the authenticated account and another account.
type Relationship struct {
	ID         string `json:"id"          yaml:"id"`
	Following  bool   `json:"following"   yaml:"following"`
	FollowedBy bool   `json:"followed_by" yaml:"followed_by"`
	Blocking   bool   `json:"blocking"    yaml:"blocking"`
	Muting     bool   `json:"muting"      yaml:"muting"`
	Requested  bool   `json:"requested"   yaml:"requested"`
	Notifying  bool   `json:"notifying"   yaml:"notifying"`
}

// Validate checks the relationship carries an account ID.
func (r Relationship) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.ID, validation.Required))
}

// MediaAttachment represents a file or media attached to a status.
type MediaAttachment struct {
	ID          string `json:"id"                    yaml:"id"`
	Type        string `json:"type"                  yaml:"type"`
	URL         string `json:"url,omitempty"         yaml:"url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty" yaml:"preview_url,omitempty"`
	RemoteURL   string `json:"remote_url,omitempty"  yaml:"remote_url,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Blurhash    string `json:"blurhash,omitempty"    yaml:"blurhash,omitempty"`
}

// Validate checks the attachment carries an ID and type.
func (m MediaAttachment) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Type, validation.Required),
	)
}

// Mention of an account inside a status.
type Mention struct {
	ID       string `json:"id"       yaml:"id"`
	Username string `json:"username" yaml:"username"`
	URL      string `json:"url"      yaml:"url"`
	Acct     string `json:"acct"     yaml:"acct"`
}

// TagHistory is one day of hashtag usage.
type TagHistory struct {
	Day      string `json:"day"      yaml:"day"`
	Uses     string `json:"uses"     yaml:"uses"`
	Accounts string `json:"accounts" yaml:"accounts"`
}

// Tag represents a hashtag.
type Tag struct {
	Name      string       `json:"name"                yaml:"name"`
	URL       string       `json:"url"                 yaml:"url"`
	History   []TagHistory `json:"history,omitempty"   yaml:"history,omitempty"`
	Following *bool        `json:"following,omitempty" yaml:"following,omitempty"`
}

// Validate checks the tag carries a name.
func (t Tag) Validate() error {
	return validation.ValidateStruct(&t, validation.Field(&t.Name, validation.Required))
}

// IsFollowing reports whether the authenticated user follows the tag.
func (t Tag) IsFollowing() bool {
	return t.Following != nil && *t.Following
}

// Application that posted a status.
type Application struct {
	Name    string `json:"name"              yaml:"name"`
	Website string `json:"website,omitempty" yaml:"website,omitempty"`
}

// Status represents a post.
type Status struct {
	ID                 string            `json:"id"                       yaml:"id"`
	URI                string            `json:"uri"                      yaml:"uri"`
	URL                string            `json:"url,omitempty"            yaml:"url,omitempty"`
	CreatedAt          time.Time         `json:"created_at"               yaml:"created_at"`
	EditedAt           *time.Time        `json:"edited_at,omitempty"      yaml:"edited_at,omitempty"`
	Account            Account           `json:"account"                  yaml:"account"`
	Content            string            `json:"content"                  yaml:"content"`
	Visibility         Visibility        `json:"visibility"               yaml:"visibility"`
	Sensitive          bool              `json:"sensitive"                yaml:"sensitive"`
	SpoilerText        string            `json:"spoiler_text"             yaml:"spoiler_text"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"        yaml:"media_attachments"`
	Application        *Application      `json:"application,omitempty"    yaml:"application,omitempty"`
	Mentions           []Mention         `json:"mentions"                 yaml:"mentions"`
	Tags               []Tag             `json:"tags"                     yaml:"tags"`
	Emojis             []Emoji           `json:"emojis"                   yaml:"emojis"`
	ReblogsCount       int               `json:"reblogs_count"            yaml:"reblogs_count"`
	FavouritesCount    int               `json:"favourites_count"         yaml:"favourites_count"`
	RepliesCount       int               `json:"replies_count"            yaml:"replies_count"`
	InReplyToID        string            `json:"in_reply_to_id,omitempty" yaml:"in_reply_to_id,omitempty"`
	Reblog             *Status           `json:"reblog,omitempty"         yaml:"reblog,omitempty"`
	Language           string            `json:"language,omitempty"       yaml:"language,omitempty"`
	Text               string            `json:"text,omitempty"           yaml:"text,omitempty"`
	Favourited         bool              `json:"favourited,omitempty"     yaml:"favourited,omitempty"`
	Reblogged          bool              `json:"reblogged,omitempty"      yaml:"reblogged,omitempty"`
	Bookmarked         bool              `json:"bookmarked,omitempty"     yaml:"bookmarked,omitempty"`
	InReplyToAccountID string            `json:"in_reply_to_account_id,omitempty" yaml:"in_reply_to_account_id,omitempty"`
}

// Validate checks the fields every status payload must carry.
func (s Status) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Account),
	)
}

// Context holds the ancestors and descendants of a status.
type Context struct {
	Ancestors   []Status `json:"ancestors"   yaml:"ancestors"`
	Descendants []Status `json:"descendants" yaml:"descendants"`
}

// Notification received by the authenticated account.
type Notification struct {
	ID        string    `json:"id"               yaml:"id"`
	Type      string    `json:"type"             yaml:"type"`
	CreatedAt time.Time `json:"created_at"       yaml:"created_at"`
	Account   Account   `json:"account"          yaml:"account"`
	Status    *Status   `json:"status,omitempty" yaml:"status,omitempty"`
}

// Validate checks the notification carries an ID and type.
func (n Notification) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Type, validation.Required),
	)
}

// Conversation is a direct-message thread.
type Conversation struct {
	ID         string    `json:"id"                    yaml:"id"`
	Unread     bool      `json:"unread"                yaml:"unread"`
	Accounts   []Account `json:"accounts"              yaml:"accounts"`
	LastStatus *Status   `json:"last_status,omitempty" yaml:"last_status,omitempty"`
}

// Validate checks the conversation carries an ID.
func (c Conversation) Validate() error {
	return validation.ValidateStruct(&c, validation.Field(&c.ID, validation.Required))
}

// Announcement published by the instance administrators.
type Announcement struct {
	ID          string     `json:"id"                  yaml:"id"`
	Content     string     `json:"content"             yaml:"content"`
	StartsAt    *time.Time `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"   yaml:"ends_at,omitempty"`
	Published   bool       `json:"published"           yaml:"published"`
	PublishedAt time.Time  `json:"published_at"        yaml:"published_at"`
	Read        bool       `json:"read"                yaml:"read"`
}

// Validate checks the announcement carries an ID.
func (a Announcement) Validate() error {
	return validation.ValidateStruct(&a, validation.Field(&a.ID, validation.Required))
}

// DomainAllow is a domain permitted to federate in allow-list mode.
type DomainAllow struct {
	ID        string    `json:"id"         yaml:"id"`
	Domain    string    `json:"domain"     yaml:"domain"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Validate checks the allow entry carries an ID and domain.
func (d DomainAllow) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Domain, validation.Required),
	)
}

// InstanceURLs lists the instance's auxiliary endpoints (v1 shape).
type InstanceURLs struct {
	StreamingAPI string `json:"streaming_api" yaml:"streaming_api"`
}

// Instance is the /api/v1/instance response.
type Instance struct {
	URI              string       `json:"uri"               yaml:"uri"`
	Title            string       `json:"title"             yaml:"title"`
	ShortDescription string       `json:"short_description" yaml:"short_description"`
	Description      string       `json:"description"       yaml:"description"`
	Email            string       `json:"email"             yaml:"email"`
	Version          string       `json:"version"           yaml:"version"`
	URLs             InstanceURLs `json:"urls"              yaml:"urls"`
	Languages        []string     `json:"languages"         yaml:"languages"`
	Registrations    bool         `json:"registrations"     yaml:"registrations"`
}

// Validate checks the instance reports a version.
func (i Instance) Validate() error {
	return validation.ValidateStruct(&i, validation.Field(&i.Version, validation.Required))
}

// InstanceV2 is the /api/v2/instance response.
type InstanceV2 struct {
	Domain        string   `json:"domain"      yaml:"domain"`
	Title         string   `json:"title"       yaml:"title"`
	Version       string   `json:"version"     yaml:"version"`
	SourceURL     string   `json:"source_url"  yaml:"source_url"`
	Description   string   `json:"description" yaml:"description"`
	Languages     []string `json:"languages"   yaml:"languages"`
	Configuration struct {
		URLs struct {
			Streaming string `json:"streaming" yaml:"streaming"`
		} `json:"urls" yaml:"urls"`
		Statuses struct {
			MaxCharacters            int `json:"max_characters"              yaml:"max_characters"`
			MaxMediaAttachments      int `json:"max_media_attachments"       yaml:"max_media_attachments"`
			CharactersReservedPerURL int `json:"characters_reserved_per_url" yaml:"characters_reserved_per_url"`
		} `json:"statuses" yaml:"statuses"`
	} `json:"configuration" yaml:"configuration"`
}

// Validate checks the instance reports a version.
func (i InstanceV2) Validate() error {
	return validation.ValidateStruct(&i, validation.Field(&i.Version, validation.Required))
}

// ServerInfo is the negotiated identity of the remote server.
type ServerInfo struct {
	Software        string `json:"software"         yaml:"software"`
	SoftwareVersion string `json:"software_version" yaml:"software_version"`
	Version         string `json:"version"          yaml:"version"`
	StreamingURL    string `json:"streaming_url"    yaml:"streaming_url"`
}
