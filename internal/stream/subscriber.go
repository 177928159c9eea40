package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// TokenFunc returns the bearer token sent when a connection is dialed. An
// empty token dials anonymously.
type TokenFunc func(ctx context.Context) (string, error)

// Config configures a Subscriber.
type Config struct {
	StreamingURL string
	Token        TokenFunc
	Transport    masto.StreamTransport

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// MaxReconnects bounds the connection attempts per outage; 0 is unlimited.
	MaxReconnects int
	DedupWindow   int

	Logger        masto.Logger
	OnStateChange masto.StateListener

	HTTPClient   *http.Client
	UserAgent    string
	PingInterval time.Duration
}

type transition struct {
	from, to masto.StreamState
	err      error
}

type channelEntry struct {
	channel masto.Channel
	subs    map[string]*subscription
}

// Subscriber multiplexes channel subscriptions over one logical connection.
type Subscriber struct {
	cfg    Config
	logger masto.Logger
	ws     dialer
	sse    dialer

	mu        sync.Mutex
	state     masto.StreamState
	gen       uint64
	conn      *connection
	cancel    context.CancelFunc
	registry  map[string]*channelEntry
	dedup     *dedupWindow
	stickySSE bool

	pending  []transition
	flushing bool
}

var _ masto.StreamingClient = (*Subscriber)(nil)

// New creates an idle subscriber. No connection is made until the first
// Subscribe.
func New(cfg Config) (*Subscriber, error) {
	if cfg.StreamingURL == "" {
		return nil, masto.NewValidationError("stream", masto.ErrStreamingUnavailable.Error(), masto.ErrStreamingUnavailable)
	}

	if cfg.Token == nil {
		cfg.Token = func(context.Context) (string, error) { return "", nil }
	}

	if cfg.Transport == "" {
		cfg.Transport = masto.StreamTransportAuto
	}

	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = constants.DefaultStreamBackoffInitial
	}

	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = constants.DefaultStreamBackoffMax
	}

	ws, err := newWSDialer(cfg.StreamingURL, cfg.Token, cfg.UserAgent, cfg.PingInterval)
	if err != nil {
		return nil, masto.NewValidationError("stream", err.Error(), err)
	}

	return &Subscriber{
		cfg:      cfg,
		logger:   masto.LoggerOrNop(cfg.Logger),
		ws:       ws,
		sse:      newSSEDialer(cfg.StreamingURL, cfg.Token, cfg.UserAgent, cfg.HTTPClient),
		registry: make(map[string]*channelEntry),
		dedup:    newDedupWindow(cfg.DedupWindow),
	}, nil
}

// State returns the current connection state.
func (s *Subscriber) State() masto.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Subscribe registers handler for channel. The first registration opens the
// connection; registrations made while connecting are sent once it is open.
// When ctx is done the subscription is removed.
func (s *Subscriber) Subscribe(ctx context.Context, channel masto.Channel, handler masto.EventHandler) (masto.Subscription, error) {
	err := channel.Validate()
	if err != nil {
		return nil, masto.NewValidationError("stream.subscribe", err.Error(), err)
	}

	if handler == nil {
		return nil, masto.NewValidationError("stream.subscribe", "handler is required", nil)
	}

	if ctx.Err() != nil {
		return nil, contextError("stream.subscribe", ctx.Err())
	}

	sub := &subscription{
		id:      uuid.NewString(),
		channel: channel,
		handler: handler,
		owner:   s,
		done:    make(chan struct{}),
	}

	s.mu.Lock()

	if s.state == masto.StateClosed {
		s.mu.Unlock()

		return nil, &masto.Error{
			Kind:    masto.KindNetwork,
			Op:      "stream.subscribe",
			Message: "subscriber is closed",
			Cause:   masto.ErrSubscriberClosed,
		}
	}

	key := channel.Key()

	entry, exists := s.registry[key]
	if !exists {
		entry = &channelEntry{channel: channel, subs: make(map[string]*subscription)}
		s.registry[key] = entry
	}

	entry.subs[sub.id] = sub

	switch {
	case s.state == masto.StateIdle:
		s.start()
	case s.state == masto.StateOpen && !exists:
		s.conn.enqueue(control{subscribe: true, channel: channel})
	}

	s.mu.Unlock()
	s.flush()

	sub.setStop(context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() }))

	return sub, nil
}

// Unsubscribe removes sub. Removing the last listener of a channel
// unsubscribes it on the server; removing the last channel closes the
// connection.
func (s *Subscriber) Unsubscribe(sub masto.Subscription) error {
	own, ok := sub.(*subscription)
	if !ok || own.owner != s {
		return masto.NewValidationError("stream.unsubscribe", "subscription belongs to another subscriber", nil)
	}

	return own.Unsubscribe()
}

func (s *Subscriber) remove(sub *subscription) {
	var idle *connection

	s.mu.Lock()

	key := sub.channel.Key()

	entry, ok := s.registry[key]
	if ok {
		if _, found := entry.subs[sub.id]; !found {
			ok = false
		}
	}

	if !ok {
		s.mu.Unlock()

		return
	}

	delete(entry.subs, sub.id)

	if len(entry.subs) == 0 {
		delete(s.registry, key)

		if s.state == masto.StateOpen {
			s.conn.enqueue(control{subscribe: false, channel: entry.channel})
		}
	}

	if len(s.registry) == 0 && s.state != masto.StateIdle && s.state != masto.StateClosed {
		idle = s.stop()
		s.setState(masto.StateIdle, nil)
	}

	s.mu.Unlock()

	if idle != nil {
		_ = idle.shutdown()
	}

	sub.finish(nil)
	s.flush()
}

// Close disconnects and finishes every subscription with
// masto.ErrSubscriberClosed. The subscriber cannot be reused.
func (s *Subscriber) Close() error {
	s.mu.Lock()

	if s.state == masto.StateClosed {
		s.mu.Unlock()

		return nil
	}

	conn := s.stop()
	subs := s.drain()
	s.setState(masto.StateClosed, nil)
	s.mu.Unlock()

	var result *multierror.Error

	if conn != nil {
		err := conn.shutdown()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("closing stream connection: %w", err))
		}
	}

	s.flush()

	for _, sub := range subs {
		sub.finish(masto.ErrSubscriberClosed)
	}

	return result.ErrorOrNil()
}

// start launches a connection loop. Callers hold s.mu.
func (s *Subscriber) start() {
	s.gen++

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setState(masto.StateConnecting, nil)

	go s.run(ctx, s.gen)
}

// stop invalidates the running loop and returns its connection for the
// caller to shut down outside the lock. Callers hold s.mu.
func (s *Subscriber) stop() *connection {
	s.gen++

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	conn := s.conn
	s.conn = nil

	return conn
}

// drain empties the registry. Callers hold s.mu.
func (s *Subscriber) drain() []*subscription {
	var subs []*subscription

	for _, entry := range s.registry {
		for _, sub := range entry.subs {
			subs = append(subs, sub)
		}
	}

	s.registry = make(map[string]*channelEntry)

	return subs
}

func (s *Subscriber) setState(to masto.StreamState, err error) {
	if s.state == to {
		return
	}

	s.pending = append(s.pending, transition{from: s.state, to: to, err: err})
	s.state = to
}

// flush reports queued transitions in order without holding s.mu, so a
// listener may call back into the subscriber.
func (s *Subscriber) flush() {
	s.mu.Lock()

	if s.flushing {
		s.mu.Unlock()

		return
	}

	s.flushing = true

	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, t := range batch {
			s.report(t)
		}

		s.mu.Lock()
	}

	s.flushing = false
	s.mu.Unlock()
}

func (s *Subscriber) report(t transition) {
	fields := map[string]interface{}{
		"from": t.from.String(),
		"to":   t.to.String(),
	}
	if t.err != nil {
		fields["error"] = t.err.Error()
	}

	if t.to == masto.StateReconnecting {
		s.logger.Warn("stream connection degraded", fields)
	} else {
		s.logger.Debug("stream state changed", fields)
	}

	if s.cfg.OnStateChange == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream state listener panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	s.cfg.OnStateChange(t.from, t.to, t.err)
}

// run owns one connection lifetime: dial, read until failure, back off and
// redial, replaying the registry on every open.
func (s *Subscriber) run(ctx context.Context, gen uint64) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BackoffInitial
	bo.MaxInterval = s.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	failures := 0

	for {
		c, err := s.dial(ctx)
		if err == nil {
			conn := newConnection(c, gen)
			if !s.attach(gen, conn) {
				_ = conn.shutdown()

				return
			}

			bo.Reset()

			failures = 0

			go conn.writeLoop(ctx, s.logger)

			err = s.readLoop(conn)
			_ = conn.shutdown()
		}

		if ctx.Err() != nil {
			return
		}

		failures++

		if s.cfg.MaxReconnects > 0 && failures > s.cfg.MaxReconnects {
			s.terminate(gen, fmt.Errorf("%w: %w", masto.ErrReconnectBudget, err))

			return
		}

		if !s.degrade(gen, err) {
			return
		}

		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (s *Subscriber) dial(ctx context.Context) (conn, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.StreamHandshakeTimeout)
	defer cancel()

	switch s.cfg.Transport {
	case masto.StreamTransportWebSocket:
		return s.ws.dial(ctx)
	case masto.StreamTransportSSE:
		return s.sse.dial(ctx)
	}

	s.mu.Lock()
	sticky := s.stickySSE
	s.mu.Unlock()

	if sticky {
		return s.sse.dial(ctx)
	}

	c, err := s.ws.dial(ctx)
	if err == nil || !errors.Is(err, ErrHandshakeFailed) {
		return c, err
	}

	s.logger.Info("websocket handshake rejected, falling back to server-sent events", map[string]interface{}{
		"error": err.Error(),
	})

	c, sseErr := s.sse.dial(ctx)
	if sseErr != nil {
		return nil, sseErr
	}

	s.mu.Lock()
	s.stickySSE = true
	s.mu.Unlock()

	return c, nil
}

// attach installs a fresh connection and queues the full channel set.
func (s *Subscriber) attach(gen uint64, conn *connection) bool {
	s.mu.Lock()

	if gen != s.gen || s.state == masto.StateClosed {
		s.mu.Unlock()

		return false
	}

	s.conn = conn

	keys := make([]string, 0, len(s.registry))
	for key := range s.registry {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		conn.enqueue(control{subscribe: true, channel: s.registry[key].channel})
	}

	s.setState(masto.StateOpen, nil)
	s.mu.Unlock()
	s.flush()

	s.logger.Info("stream connected", map[string]interface{}{
		"transport": string(conn.conn.kind()),
		"channels":  len(keys),
	})

	return true
}

// degrade moves a live loop to Reconnecting.
func (s *Subscriber) degrade(gen uint64, err error) bool {
	s.mu.Lock()

	if gen != s.gen {
		s.mu.Unlock()

		return false
	}

	s.conn = nil
	s.setState(masto.StateReconnecting, err)
	s.mu.Unlock()
	s.flush()

	return true
}

// terminate closes the subscriber after the reconnect budget is spent.
func (s *Subscriber) terminate(gen uint64, err error) {
	s.mu.Lock()

	if gen != s.gen {
		s.mu.Unlock()

		return
	}

	conn := s.stop()
	subs := s.drain()
	s.setState(masto.StateClosed, err)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.shutdown()
	}

	s.flush()

	for _, sub := range subs {
		sub.finish(err)
	}
}

func (s *Subscriber) readLoop(conn *connection) error {
	for {
		f, err := conn.conn.read()
		if err != nil {
			return err
		}

		event, err := decodeFrame(f)
		if err != nil {
			s.logger.Warn("dropping malformed stream event", map[string]interface{}{
				"channel": f.channel.Key(),
				"event":   f.event,
				"error":   err.Error(),
			})

			continue
		}

		event.ReceivedAt = time.Now()
		s.dispatch(conn.gen, event)
	}
}

// dispatch delivers event to every listener of its channel, in the reader
// goroutine.
func (s *Subscriber) dispatch(gen uint64, event masto.Event) {
	s.mu.Lock()

	if gen != s.gen {
		s.mu.Unlock()

		return
	}

	if s.dedup.seen(event.DedupKey()) {
		s.mu.Unlock()

		return
	}

	entry, ok := s.registry[event.Channel.Key()]
	if !ok {
		s.mu.Unlock()

		return
	}

	handlers := make([]*subscription, 0, len(entry.subs))
	for _, sub := range entry.subs {
		handlers = append(handlers, sub)
	}

	s.mu.Unlock()

	for _, sub := range handlers {
		s.deliver(sub, event)
	}
}

func (s *Subscriber) deliver(sub *subscription, event masto.Event) {
	// A sibling handler may have run long enough for sub to be removed.
	if !sub.active() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream handler panicked", map[string]interface{}{
				"subscription": sub.id,
				"channel":      sub.channel.Key(),
				"event":        event.Type,
				"panic":        fmt.Sprint(r),
			})
		}
	}()

	sub.handler(event)
}

// contextError maps a done context onto the error taxonomy.
func contextError(op string, err error) *masto.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &masto.Error{Kind: masto.KindTimeout, Op: op, Message: "deadline exceeded", Cause: err}
	}

	return &masto.Error{Kind: masto.KindNetwork, Op: op, Message: "canceled", Cause: err}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
