// Package relay republishes streaming events onto NATS subjects so other
// processes can consume an instance's timelines without their own connection.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"
)

// Header names set on every relayed message.
const (
	HeaderEvent   = "Masto-Event"
	HeaderChannel = "Masto-Channel"
)

// Publisher is the subset of *nats.Conn the relay needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Config configures a Relay.
type Config struct {
	// URL of the NATS server. Ignored when Conn is set.
	URL string
	// Conn is an existing connection; the relay does not close it.
	Conn *nats.Conn
	// Name identifies the connection to the NATS server.
	Name string
	// SubjectPrefix is prepended to every subject, e.g. "masto.example".
	SubjectPrefix string
	Logger        masto.Logger
	// Options are passed to nats.Connect.
	Options []nats.Option
}

// Envelope is the JSON body of a relayed message.
type Envelope struct {
	Channel    string          `json:"channel"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Stats counts relayed and failed messages.
type Stats struct {
	Published uint64
	Failed    uint64
}

// Relay forwards events from stream subscriptions to NATS.
type Relay struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	logger masto.Logger

	mu     sync.Mutex
	subs   []masto.Subscription
	closed bool

	published atomic.Uint64
	failed    atomic.Uint64
}

// New connects to NATS unless cfg.Conn is supplied.
func New(cfg Config) (*Relay, error) {
	if cfg.SubjectPrefix == "" {
		return nil, constants.ErrSubjectPrefixMissing
	}

	logger := masto.LoggerOrNop(cfg.Logger)

	if cfg.Conn != nil {
		return newRelay(cfg.Conn, nil, cfg.SubjectPrefix, logger), nil
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	}
	opts = append(opts, cfg.Options...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return newRelay(conn, conn, cfg.SubjectPrefix, logger), nil
}

func newRelay(pub Publisher, owned *nats.Conn, prefix string, logger masto.Logger) *Relay {
	return &Relay{
		pub:    pub,
		conn:   owned,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Forward subscribes to each channel and publishes every event it receives.
// On failure the channels already subscribed stay forwarded until Close.
func (r *Relay) Forward(ctx context.Context, streaming masto.StreamingClient, channels ...masto.Channel) error {
	for _, channel := range channels {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()

		if closed {
			return constants.ErrRelayClosed
		}

		sub, err := streaming.Subscribe(ctx, channel, r.Publish)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", channel.Key(), err)
		}

		r.mu.Lock()
		r.subs = append(r.subs, sub)
		r.mu.Unlock()

		r.logger.Info("relaying stream channel", map[string]interface{}{
			"channel": channel.Key(),
			"subject": r.Subject(channel, "*"),
		})
	}

	return nil
}

// Publish sends one event. It is the handler registered by Forward and never
// blocks on the network beyond the client's write buffer.
func (r *Relay) Publish(event masto.Event) {
	msg, err := r.message(event)
	if err == nil {
		err = r.pub.PublishMsg(msg)
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("failed to relay stream event", map[string]interface{}{
			"channel": event.Channel.Key(),
			"event":   event.Type,
			"error":   err.Error(),
		})

		return
	}

	r.published.Add(1)
}

func (r *Relay) message(event masto.Event) (*nats.Msg, error) {
	payload := event.Raw
	if len(payload) == 0 && event.Payload != nil {
		var err error

		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
	}

	data, err := json.Marshal(Envelope{
		Channel:    event.Channel.Key(),
		Event:      event.Type,
		Payload:    payload,
		ReceivedAt: event.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	msg := nats.NewMsg(r.Subject(event.Channel, event.Type))
	msg.Data = data
	msg.Header.Set(HeaderEvent, event.Type)
	msg.Header.Set(HeaderChannel, event.Channel.Key())

	// JetStream deduplicates on this header
	if key := event.DedupKey(); key != "" {
		msg.Header.Set(nats.MsgIdHdr, key)
	}

	return msg, nil
}

// Subject maps a channel and event type to a NATS subject:
// <prefix>.<channel tokens>.<event>, e.g. "masto.hashtag.golang.update".
func (r *Relay) Subject(channel masto.Channel, eventType string) string {
	tokens := []string{r.prefix}
	for _, part := range strings.Split(channel.Key(), ":") {
		tokens = append(tokens, subjectToken(part))
	}

	if eventType != "*" {
		eventType = subjectToken(eventType)
	}

	return strings.Join(append(tokens, eventType), ".")
}

func subjectToken(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}

		return r
	}, s)
	if s == "" {
		return "_"
	}

	return s
}

// Stats returns the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{Published: r.published.Load(), Failed: r.failed.Load()}
}

// Close unsubscribes every forwarded channel and drains the connection the
// relay opened itself.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var result *multierror.Error

	for _, sub := range subs {
		err := sub.Unsubscribe()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unsubscribing %s: %w", sub.Channel().Key(), err))
		}
	}

	if r.conn != nil {
		err := r.conn.Drain()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("draining NATS connection: %w", err))
		}
	}

	return result.ErrorOrNil()
}
