package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var errDropped = errors.New("connection reset by peer")

type fakeConn struct {
	frames   chan frame
	errs     chan error
	controls chan control
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:   make(chan frame, 16),
		errs:     make(chan error, 1),
		controls: make(chan control, 32),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) writeControl(_ context.Context, ctl control) error {
	c.controls <- ctl

	return nil
}

func (c *fakeConn) read() (frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return frame{}, err
	case <-c.closed:
		return frame{}, ErrConnectionClosed
	}
}

func (c *fakeConn) close() error {
	c.once.Do(func() { close(c.closed) })

	return nil
}

func (c *fakeConn) kind() masto.StreamTransport {
	return masto.StreamTransportWebSocket
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	results chan dialResult
	calls   atomic.Int32
}

func newFakeDialer(results ...dialResult) *fakeDialer {
	d := &fakeDialer{results: make(chan dialResult, 16)}
	for _, r := range results {
		d.results <- r
	}

	return d
}

func (d *fakeDialer) dial(ctx context.Context) (conn, error) {
	d.calls.Add(1)

	select {
	case r := <-d.results:
		if r.err != nil {
			return nil, r.err
		}

		return r.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type stateRecorder struct {
	mu          sync.Mutex
	transitions []string
	lastErr     error
}

func (r *stateRecorder) listen(from, to masto.StreamState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions = append(r.transitions, from.String()+"->"+to.String())
	if err != nil {
		r.lastErr = err
	}
}

func (r *stateRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.transitions...)
}

func newTestSubscriber(t *testing.T, d dialer, mutate func(*Config)) *Subscriber {
	t.Helper()

	cfg := Config{
		StreamingURL:   "http://streaming.example.test",
		Transport:      masto.StreamTransportWebSocket,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)

	s.ws = d

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func statusJSON(id string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"content":"<p>hi</p>","account":{"id":"9","acct":"alice"}}`, id))
}

func expectControl(t *testing.T, c *fakeConn) control {
	t.Helper()

	select {
	case ctl := <-c.controls:
		return ctl
	case <-time.After(waitFor):
		t.Fatal("no control message written")

		return control{}
	}
}

func TestSubscriber_DeliversTypedEvents(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	events := make(chan masto.Event, 4)

	_, err := s.Subscribe(context.Background(), masto.UserChannel(), func(e masto.Event) { events <- e })
	require.NoError(t, err)

	ctl := expectControl(t, c)
	assert.True(t, ctl.subscribe)
	assert.Equal(t, "user", ctl.channel.Key())
	assert.Equal(t, masto.StateOpen, s.State())

	c.frames <- frame{channel: masto.UserChannel(), event: masto.EventUpdate, payload: statusJSON("101")}
	c.frames <- frame{channel: masto.UserChannel(), event: masto.EventDelete, payload: []byte("101")}

	update := <-events
	status, ok := update.Status()
	require.True(t, ok)
	assert.Equal(t, "101", status.ID)
	assert.Equal(t, "alice", status.Account.Acct)
	assert.False(t, update.ReceivedAt.IsZero())

	deleted := <-events
	id, ok := deleted.DeletedID()
	require.True(t, ok)
	assert.Equal(t, "101", id)
}

func TestSubscriber_NoDeliveryAfterUnsubscribe(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	var blocked atomic.Bool

	entered := make(chan string, 1)
	release := make(chan struct{})
	seen := make(chan string, 8)

	listener := func(name string) masto.EventHandler {
		return func(masto.Event) {
			if blocked.CompareAndSwap(false, true) {
				entered <- name
				<-release
			}

			seen <- name
		}
	}

	subs := map[string]masto.Subscription{}

	for _, name := range []string{"first", "second"} {
		sub, err := s.Subscribe(context.Background(), masto.PublicChannel(), listener(name))
		require.NoError(t, err)

		subs[name] = sub
	}

	expectControl(t, c)

	c.frames <- frame{channel: masto.PublicChannel(), event: masto.EventUpdate, payload: statusJSON("1")}

	var running string

	select {
	case running = <-entered:
	case <-time.After(waitFor):
		t.Fatal("no handler was called")
	}

	other := "first"
	if running == "first" {
		other = "second"
	}

	require.NoError(t, subs[other].Unsubscribe())
	close(release)

	c.frames <- frame{channel: masto.PublicChannel(), event: masto.EventUpdate, payload: statusJSON("2")}

	for range 2 {
		select {
		case name := <-seen:
			assert.Equal(t, running, name)
		case <-time.After(waitFor):
			t.Fatal("event was not delivered")
		}
	}
}

func TestSubscriber_MalformedEventIsDropped(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	events := make(chan masto.Event, 4)

	_, err := s.Subscribe(context.Background(), masto.UserChannel(), func(e masto.Event) { events <- e })
	require.NoError(t, err)
	expectControl(t, c)

	c.frames <- frame{channel: masto.UserChannel(), event: masto.EventUpdate, payload: []byte(`{"content":"no id"}`)}
	c.frames <- frame{channel: masto.UserChannel(), event: masto.EventUpdate, payload: statusJSON("2")}

	got := <-events
	status, _ := got.Status()
	assert.Equal(t, "2", status.ID)
	assert.Equal(t, masto.StateOpen, s.State())
}

//nolint:funlen
func TestSubscriber_ChannelLifecycle(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	d := newFakeDialer(dialResult{conn: c})
	s := newTestSubscriber(t, d, nil)

	noop := func(masto.Event) {}
	ctx := context.Background()

	first, err := s.Subscribe(ctx, masto.UserChannel(), noop)
	require.NoError(t, err)
	expectControl(t, c)

	second, err := s.Subscribe(ctx, masto.UserChannel(), noop)
	require.NoError(t, err)

	tag, err := s.Subscribe(ctx, masto.HashtagChannel("Go"), noop)
	require.NoError(t, err)

	ctl := expectControl(t, c)
	assert.Equal(t, "hashtag:go", ctl.channel.Key())

	// a second listener on an open channel sends nothing
	select {
	case extra := <-c.controls:
		t.Fatalf("unexpected control %s", extra)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unsubscribe())
	assert.Equal(t, masto.StateOpen, s.State())

	require.NoError(t, tag.Unsubscribe())

	ctl = expectControl(t, c)
	assert.False(t, ctl.subscribe)
	assert.Equal(t, "hashtag:go", ctl.channel.Key())

	require.NoError(t, s.Unsubscribe(second))
	assert.Equal(t, masto.StateIdle, s.State())
	assert.Eventually(t, c.isClosed, waitFor, 5*time.Millisecond)

	for _, sub := range []masto.Subscription{first, second, tag} {
		<-sub.Done()
		assert.NoError(t, sub.Err())
	}

	// unsubscribing twice is a no-op
	require.NoError(t, first.Unsubscribe())
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestSubscriber_ReconnectReplaysChannels(t *testing.T) {
	t.Parallel()

	c1 := newFakeConn()
	c2 := newFakeConn()
	recorder := &stateRecorder{}

	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c1}, dialResult{conn: c2}), func(cfg *Config) {
		cfg.OnStateChange = recorder.listen
	})

	events := make(chan masto.Event, 4)
	handler := func(e masto.Event) { events <- e }

	_, err := s.Subscribe(context.Background(), masto.UserChannel(), handler)
	require.NoError(t, err)
	expectControl(t, c1)

	_, err = s.Subscribe(context.Background(), masto.HashtagChannel("go"), handler)
	require.NoError(t, err)
	expectControl(t, c1)

	c1.errs <- errDropped

	replayed := []string{expectControl(t, c2).channel.Key(), expectControl(t, c2).channel.Key()}
	assert.Equal(t, []string{"hashtag:go", "user"}, replayed)

	require.Eventually(t, func() bool { return s.State() == masto.StateOpen }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{
		"idle->connecting",
		"connecting->open",
		"open->reconnecting",
		"reconnecting->open",
	}, recorder.snapshot())

	recorder.mu.Lock()
	assert.ErrorIs(t, recorder.lastErr, errDropped)
	recorder.mu.Unlock()

	c2.frames <- frame{channel: masto.HashtagChannel("go"), event: masto.EventUpdate, payload: statusJSON("7")}

	got := <-events
	assert.Equal(t, "hashtag:go", got.Channel.Key())
}

func TestSubscriber_HandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	var calls atomic.Int32

	delivered := make(chan string, 2)

	_, err := s.Subscribe(context.Background(), masto.PublicChannel(), func(e masto.Event) {
		if calls.Add(1) == 1 {
			panic("listener bug")
		}

		status, _ := e.Status()
		delivered <- status.ID
	})
	require.NoError(t, err)
	expectControl(t, c)

	c.frames <- frame{channel: masto.PublicChannel(), event: masto.EventUpdate, payload: statusJSON("1")}
	c.frames <- frame{channel: masto.PublicChannel(), event: masto.EventUpdate, payload: statusJSON("2")}

	select {
	case id := <-delivered:
		assert.Equal(t, "2", id)
	case <-time.After(waitFor):
		t.Fatal("event after panic was not delivered")
	}

	assert.Equal(t, masto.StateOpen, s.State())
}

func TestSubscriber_DedupWindowDropsRepeats(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), func(cfg *Config) {
		cfg.DedupWindow = 8
	})

	delivered := make(chan string, 8)

	_, err := s.Subscribe(context.Background(), masto.UserChannel(), func(e masto.Event) {
		status, _ := e.Status()
		delivered <- status.ID
	})
	require.NoError(t, err)
	expectControl(t, c)

	for _, id := range []string{"1", "1", "2", "1", "3"} {
		c.frames <- frame{channel: masto.UserChannel(), event: masto.EventUpdate, payload: statusJSON(id)}
	}

	var got []string
	for range 3 {
		got = append(got, <-delivered)
	}

	assert.Equal(t, []string{"1", "2", "3"}, got)

	select {
	case extra := <-delivered:
		t.Fatalf("duplicate %s delivered", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriber_ReconnectBudgetCloses(t *testing.T) {
	t.Parallel()

	recorder := &stateRecorder{}
	d := newFakeDialer(
		dialResult{err: errDropped},
		dialResult{err: errDropped},
		dialResult{err: errDropped},
	)

	s := newTestSubscriber(t, d, func(cfg *Config) {
		cfg.MaxReconnects = 2
		cfg.OnStateChange = recorder.listen
	})

	sub, err := s.Subscribe(context.Background(), masto.UserChannel(), func(masto.Event) {})
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription did not finish")
	}

	require.ErrorIs(t, sub.Err(), masto.ErrReconnectBudget)
	require.ErrorIs(t, sub.Err(), errDropped)
	assert.Equal(t, masto.StateClosed, s.State())
	assert.Equal(t, int32(3), d.calls.Load())
	assert.Equal(t, []string{
		"idle->connecting",
		"connecting->reconnecting",
		"reconnecting->closed",
	}, recorder.snapshot())

	_, err = s.Subscribe(context.Background(), masto.UserChannel(), func(masto.Event) {})
	require.ErrorIs(t, err, masto.ErrSubscriberClosed)
}

func TestSubscriber_CloseFinishesSubscriptions(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	sub, err := s.Subscribe(context.Background(), masto.DirectChannel(), func(masto.Event) {})
	require.NoError(t, err)
	expectControl(t, c)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	<-sub.Done()
	require.ErrorIs(t, sub.Err(), masto.ErrSubscriberClosed)
	assert.Equal(t, masto.StateClosed, s.State())
	assert.True(t, c.isClosed())

	_, err = s.Subscribe(context.Background(), masto.DirectChannel(), func(masto.Event) {})
	require.ErrorIs(t, err, masto.ErrSubscriberClosed)
}

func TestSubscriber_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	c := newFakeConn()
	s := newTestSubscriber(t, newFakeDialer(dialResult{conn: c}), nil)

	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.Subscribe(ctx, masto.LocalChannel(), func(masto.Event) {})
	require.NoError(t, err)
	expectControl(t, c)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription outlived its context")
	}

	require.NoError(t, sub.Err())
	assert.Eventually(t, func() bool { return s.State() == masto.StateIdle }, waitFor, 5*time.Millisecond)
}

func TestSubscriber_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := newTestSubscriber(t, newFakeDialer(), nil)

	_, err := s.Subscribe(context.Background(), masto.Channel{Name: "firehose"}, func(masto.Event) {})
	require.Error(t, err)
	assert.True(t, masto.IsValidation(err))

	_, err = s.Subscribe(context.Background(), masto.UserChannel(), nil)
	require.Error(t, err)
	assert.True(t, masto.IsValidation(err))

	assert.Equal(t, masto.StateIdle, s.State())

	_, err = New(Config{})
	require.Error(t, err)
	assert.True(t, masto.IsValidation(err))
}

func TestSubscriber_SubscribeErrorsAreTyped(t *testing.T) {
	t.Parallel()

	s := newTestSubscriber(t, newFakeDialer(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Subscribe(ctx, masto.UserChannel(), func(masto.Event) {})
	require.Error(t, err)

	var apiErr *masto.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, masto.KindNetwork, apiErr.Kind)
	require.ErrorIs(t, err, context.Canceled)

	expired, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()

	_, err = s.Subscribe(expired, masto.UserChannel(), func(masto.Event) {})
	assert.Equal(t, masto.KindTimeout, masto.KindOf(err))
	require.ErrorIs(t, err, masto.ErrTimeout)

	require.NoError(t, s.Close())

	_, err = s.Subscribe(context.Background(), masto.UserChannel(), func(masto.Event) {})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "stream.subscribe", apiErr.Op)
	require.ErrorIs(t, err, masto.ErrSubscriberClosed)
	assert.Equal(t, masto.StateClosed, s.State())
}

//nolint:funlen
func TestSubscriber_WebSocketReconnect(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)

	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/api/v1/streaming", request.URL.Path)
		assert.Equal(t, "Bearer stream-token", request.Header.Get("Authorization"))

		ws, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		n := connections.Add(1)

		var msg wsControl
		if ws.ReadJSON(&msg) != nil {
			return
		}

		subscribed <- msg.Type + " " + msg.Stream

		_ = ws.WriteJSON(map[string]any{
			"stream":  []string{"user"},
			"event":   "update",
			"payload": string(statusJSON(fmt.Sprint(n))),
		})

		if n == 1 {
			return
		}

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	recorder := &stateRecorder{}

	s, err := New(Config{
		StreamingURL:   server.URL,
		Token:          func(context.Context) (string, error) { return "stream-token", nil },
		Transport:      masto.StreamTransportWebSocket,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		OnStateChange:  recorder.listen,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	delivered := make(chan string, 4)

	_, err = s.Subscribe(context.Background(), masto.UserChannel(), func(e masto.Event) {
		status, _ := e.Status()
		delivered <- status.ID
	})
	require.NoError(t, err)

	for _, want := range []string{"1", "2"} {
		select {
		case got := <-subscribed:
			assert.Equal(t, "subscribe user", got)
		case <-time.After(waitFor):
			t.Fatal("server saw no subscribe")
		}

		select {
		case id := <-delivered:
			assert.Equal(t, want, id)
		case <-time.After(waitFor):
			t.Fatalf("event %s not delivered", want)
		}
	}

	require.Eventually(t, func() bool { return s.State() == masto.StateOpen }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{
		"idle->connecting",
		"connecting->open",
		"open->reconnecting",
		"reconnecting->open",
	}, recorder.snapshot())
}

// sseServer has no WebSocket endpoint, so upgrades are answered with 404.
func sseServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/streaming/health", func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/v1/streaming/hashtag", func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "golang", request.URL.Query().Get("tag"))
		assert.Equal(t, "Bearer sse-token", request.Header.Get("Authorization"))

		writer.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(writer, ":thump\n\nevent: update\ndata: %s\n\n", statusJSON("55"))
		writer.(http.Flusher).Flush()

		<-request.Context().Done()
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestSubscriber_ServerSentEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		transport masto.StreamTransport
	}{
		{name: "explicit sse", transport: masto.StreamTransportSSE},
		{name: "auto falls back from websocket", transport: masto.StreamTransportAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := sseServer(t)

			s, err := New(Config{
				StreamingURL: server.URL,
				Token:        func(context.Context) (string, error) { return "sse-token", nil },
				Transport:    tt.transport,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			events := make(chan masto.Event, 1)

			_, err = s.Subscribe(context.Background(), masto.HashtagChannel("golang"), func(e masto.Event) { events <- e })
			require.NoError(t, err)

			select {
			case e := <-events:
				status, ok := e.Status()
				require.True(t, ok)
				assert.Equal(t, "55", status.ID)
				assert.Equal(t, "hashtag:golang", e.Channel.Key())
			case <-time.After(waitFor):
				t.Fatal("no event over server-sent events")
			}

			if tt.transport == masto.StreamTransportAuto {
				s.mu.Lock()
				assert.True(t, s.stickySSE)
				s.mu.Unlock()
			}
		})
	}
}

func TestSSEConn_ReplacedStreamEndsQuietly(t *testing.T) {
	t.Parallel()

	channel := masto.HashtagChannel("go")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := &sseConn{
		ctx:     ctx,
		cancel:  cancel,
		streams: make(map[string]*sseStream),
		frames:  make(chan frame),
		errs:    make(chan error, 1),
	}

	current := &sseStream{stop: func() {}}
	c.streams[channel.Key()] = current

	c.pump(channel, io.NopCloser(strings.NewReader("")), &sseStream{stop: func() {}})

	select {
	case err := <-c.errs:
		t.Fatalf("replaced stream failed the connection: %v", err)
	default:
	}

	c.pump(channel, io.NopCloser(strings.NewReader("")), current)

	select {
	case err := <-c.errs:
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	default:
		t.Fatal("ended stream did not fail the connection")
	}
}

func TestDedupWindow_Evicts(t *testing.T) {
	t.Parallel()

	w := newDedupWindow(2)

	assert.False(t, w.seen("a"))
	assert.False(t, w.seen("b"))
	assert.True(t, w.seen("a"))
	assert.False(t, w.seen("c"))
	assert.False(t, w.seen("a"), "a was evicted by c")
	assert.False(t, w.seen(""))
	assert.False(t, w.seen(""))

	var disabled *dedupWindow

	assert.False(t, disabled.seen("a"))
	assert.False(t, disabled.seen("a"))
}
