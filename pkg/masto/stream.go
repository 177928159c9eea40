package masto

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Stream channel names.
const (
	StreamUser              = "user"
	StreamUserNotification  = "user:notification"
	StreamPublic            = "public"
	StreamPublicLocal       = "public:local"
	StreamPublicRemote      = "public:remote"
	StreamPublicMedia       = "public:media"
	StreamPublicLocalMedia  = "public:local:media"
	StreamPublicRemoteMedia = "public:remote:media"
	StreamHashtag           = "hashtag"
	StreamHashtagLocal      = "hashtag:local"
	StreamList              = "list"
	StreamDirect            = "direct"
)

// Event types delivered by the streaming API.
const (
	EventUpdate             = "update"
	EventStatusUpdate       = "status.update"
	EventDelete             = "delete"
	EventNotification       = "notification"
	EventConversation       = "conversation"
	EventAnnouncement       = "announcement"
	EventAnnouncementDelete = "announcement.delete"
	EventFiltersChanged     = "filters_changed"
)

// Channel identifies a realtime stream. Tag is set for hashtag channels and
// List for list channels.
type Channel struct {
	Name string `json:"stream"         yaml:"stream"`
	Tag  string `json:"tag,omitempty"  yaml:"tag,omitempty"`
	List string `json:"list,omitempty" yaml:"list,omitempty"`
}

// Channel constructors.

func UserChannel() Channel { return Channel{Name: StreamUser} }
func NotificationChannel() Channel { return Channel{Name: StreamUserNotification} }
func PublicChannel() Channel { return Channel{Name: StreamPublic} }
func LocalChannel() Channel { return Channel{Name: StreamPublicLocal} }
func RemoteChannel() Channel { return Channel{Name: StreamPublicRemote} }
func DirectChannel() Channel { return Channel{Name: StreamDirect} }

func HashtagChannel(tag string) Channel {
	return Channel{Name: StreamHashtag, Tag: strings.TrimPrefix(tag, "#")}
}

func LocalHashtagChannel(tag string) Channel {
	return Channel{Name: StreamHashtagLocal, Tag: strings.TrimPrefix(tag, "#")}
}

func ListChannel(listID string) Channel { return Channel{Name: StreamList, List: listID} }

// ParseChannel parses the textual form produced by Key, e.g. "hashtag:golang"
// or "list:42". Plain names such as "public:local" map to themselves.
func ParseChannel(s string) (Channel, error) {
	switch {
	case strings.HasPrefix(s, StreamHashtagLocal+":"):
		return LocalHashtagChannel(strings.TrimPrefix(s, StreamHashtagLocal+":")), nil
	case strings.HasPrefix(s, StreamHashtag+":"):
		return HashtagChannel(strings.TrimPrefix(s, StreamHashtag+":")), nil
	case strings.HasPrefix(s, StreamList+":"):
		return ListChannel(strings.TrimPrefix(s, StreamList+":")), nil
	}

	ch := Channel{Name: s}

	err := ch.Validate()
	if err != nil {
		return Channel{}, err
	}

	return ch, nil
}

// Validate checks the channel name and its required argument.
func (c Channel) Validate() error {
	switch c.Name {
	case StreamUser, StreamUserNotification, StreamPublic, StreamPublicLocal, StreamPublicRemote,
		StreamPublicMedia, StreamPublicLocalMedia, StreamPublicRemoteMedia, StreamDirect:
		return nil
	case StreamHashtag, StreamHashtagLocal:
		if c.Tag == "" {
			return NewValidationError("stream.channel", "hashtag channel requires a tag", nil)
		}

		return nil
	case StreamList:
		if c.List == "" {
			return NewValidationError("stream.channel", "list channel requires a list id", nil)
		}

		return nil
	default:
		return NewValidationError("stream.channel", fmt.Sprintf("unknown stream %q", c.Name), nil)
	}
}

// Key uniquely identifies the channel within a connection.
func (c Channel) Key() string {
	switch {
	case c.Tag != "":
		return c.Name + ":" + strings.ToLower(c.Tag)
	case c.List != "":
		return c.Name + ":" + c.List
	default:
		return c.Name
	}
}

func (c Channel) String() string { return c.Key() }

// SSEPath returns the server-sent events endpoint path and query for the channel.
func (c Channel) SSEPath() (string, url.Values) {
	query := url.Values{}

	var path string

	switch c.Name {
	case StreamUserNotification:
		path = "user/notification"
	case StreamPublicMedia:
		path = "public"
		query.Set("only_media", "true")
	case StreamPublicLocalMedia:
		path = "public/local"
		query.Set("only_media", "true")
	case StreamPublicRemoteMedia:
		path = "public/remote"
		query.Set("only_media", "true")
	case StreamPublicLocal:
		path = "public/local"
	case StreamPublicRemote:
		path = "public/remote"
	case StreamHashtagLocal:
		path = "hashtag/local"
	default:
		path = c.Name
	}

	if c.Tag != "" {
		query.Set("tag", c.Tag)
	}

	if c.List != "" {
		query.Set("list", c.List)
	}

	return "/api/v1/streaming/" + path, query
}

// ChannelFromStream maps the "stream" array of a WebSocket frame to a Channel.
func ChannelFromStream(stream []string) Channel {
	if len(stream) == 0 {
		return Channel{}
	}

	ch := Channel{Name: stream[0]}
	if len(stream) > 1 {
		switch ch.Name {
		case StreamHashtag, StreamHashtagLocal:
			ch.Tag = stream[1]
		case StreamList:
			ch.List = stream[1]
		}
	}

	return ch
}

// Event is one message received on a stream channel.
type Event struct {
	Channel    Channel         `json:"channel"`
	Type       string          `json:"event"`
	Payload    any             `json:"payload,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// EventHandler receives events for a subscription. Handlers run on the
// connection's reader goroutine; a slow handler delays later events.
type EventHandler func(Event)

// ParseEventPayload decodes the payload of an event by type. Delete events
// carry a bare ID; unknown types keep the raw payload as json.RawMessage.
func ParseEventPayload(eventType string, data []byte) (any, error) {
	var target Validatable

	switch eventType {
	case EventUpdate, EventStatusUpdate:
		target = &Status{}
	case EventNotification:
		target = &Notification{}
	case EventConversation:
		target = &Conversation{}
	case EventAnnouncement:
		target = &Announcement{}
	case EventDelete, EventAnnouncementDelete:
		id := strings.Trim(strings.TrimSpace(string(data)), `"`)
		if id == "" {
			return nil, NewValidationError("stream.event", eventType+" event without id", nil)
		}

		return id, nil
	case EventFiltersChanged:
		return nil, nil
	default:
		return json.RawMessage(data), nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return nil, NewValidationError("stream.event", "malformed "+eventType+" payload", err)
	}

	err = target.Validate()
	if err != nil {
		return nil, NewValidationError("stream.event", "invalid "+eventType+" payload", err)
	}

	return target, nil
}

// Status returns the payload of update and status.update events.
func (e Event) Status() (*Status, bool) {
	s, ok := e.Payload.(*Status)

	return s, ok
}

// Notification returns the payload of notification events.
func (e Event) Notification() (*Notification, bool) {
	n, ok := e.Payload.(*Notification)

	return n, ok
}

// Conversation returns the payload of conversation events.
func (e Event) Conversation() (*Conversation, bool) {
	c, ok := e.Payload.(*Conversation)

	return c, ok
}

// Announcement returns the payload of announcement events.
func (e Event) Announcement() (*Announcement, bool) {
	a, ok := e.Payload.(*Announcement)

	return a, ok
}

// DeletedID returns the ID carried by delete and announcement.delete events.
func (e Event) DeletedID() (string, bool) {
	id, ok := e.Payload.(string)

	return id, ok
}

// DedupKey identifies an event for duplicate suppression after a reconnect.
// Events without a stable identity return "".
func (e Event) DedupKey() string {
	var id string

	switch p := e.Payload.(type) {
	case *Status:
		id = p.ID
		if p.EditedAt != nil {
			id += "@" + p.EditedAt.UTC().Format(time.RFC3339Nano)
		}
	case *Notification:
		id = p.ID
	case *Conversation:
		id = p.ID
		if p.LastStatus != nil {
			id += "/" + p.LastStatus.ID
		}
	case *Announcement:
		id = p.ID
	case string:
		id = p
	}

	if id == "" {
		return ""
	}

	return e.Channel.Key() + "|" + e.Type + "|" + id
}

// StreamState is the state of the logical streaming connection.
type StreamState int

const (
	// StateIdle: no connection and no channels.
	StateIdle StreamState = iota
	// StateConnecting: the first handshake is in progress.
	StateConnecting
	// StateOpen: connected and subscribed.
	StateOpen
	// StateReconnecting: the connection dropped and a retry is scheduled.
	StateReconnecting
	// StateClosed is terminal.
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateListener observes connection state transitions. err is the transport
// error that caused a Reconnecting or Closed transition, if any.
type StateListener func(from, to StreamState, err error)

// Subscription is one listener registration on a channel.
type Subscription interface {
	ID() string
	Channel() Channel
	// Unsubscribe removes the listener. Removing the last listener of the
	// last channel closes the connection.
	Unsubscribe() error
	// Done is closed when the subscription ends for any reason.
	Done() <-chan struct{}
	// Err reports why the subscription ended; nil after Unsubscribe.
	Err() error
}
