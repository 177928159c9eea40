package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/fivetwenty-io/masto/internal/sse"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

// sseDialer serves channels over server-sent events. The streaming server
// exposes one event stream per channel, so an sseConn keeps one request per
// subscribed channel behind a single logical connection.
type sseDialer struct {
	baseURL   string
	token     TokenFunc
	userAgent string
	client    *http.Client
}

func newSSEDialer(streamingURL string, token TokenFunc, userAgent string, client *http.Client) *sseDialer {
	if client == nil {
		client = &http.Client{}
	}

	return &sseDialer{
		baseURL:   strings.TrimSuffix(streamingURL, "/"),
		token:     token,
		userAgent: userAgent,
		client:    client,
	}
}

// dial checks the streaming server's health endpoint; channel streams are
// opened by subscribe controls.
func (d *sseDialer) dial(ctx context.Context) (conn, error) {
	token, err := d.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v1/streaming/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building health request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking streaming health: %w", err)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: health check returned %d", ErrHandshakeFailed, resp.StatusCode)
	}

	connCtx, cancel := context.WithCancel(context.Background())

	return &sseConn{
		dialer:  d,
		token:   token,
		ctx:     connCtx,
		cancel:  cancel,
		streams: make(map[string]*sseStream),
		frames:  make(chan frame),
		errs:    make(chan error, 1),
	}, nil
}

type sseConn struct {
	dialer *sseDialer
	token  string
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	streams map[string]*sseStream

	frames chan frame
	errs   chan error
}

// sseStream is one channel request. Identity tells a replaced stream from
// its successor under the same key.
type sseStream struct {
	stop context.CancelFunc
}

func (c *sseConn) kind() masto.StreamTransport {
	return masto.StreamTransportSSE
}

func (c *sseConn) writeControl(ctx context.Context, ctl control) error {
	key := ctl.channel.Key()

	c.mu.Lock()
	current, exists := c.streams[key]

	if !ctl.subscribe {
		delete(c.streams, key)
		c.mu.Unlock()

		if exists {
			current.stop()
		}

		return nil
	}

	c.mu.Unlock()

	if exists {
		return nil
	}

	body, stop, err := c.open(ctx, ctl.channel)
	if err != nil {
		return err
	}

	stream := &sseStream{stop: stop}

	c.mu.Lock()
	c.streams[key] = stream
	c.mu.Unlock()

	go c.pump(ctl.channel, body, stream)

	return nil
}

func (c *sseConn) open(ctx context.Context, channel masto.Channel) (io.ReadCloser, context.CancelFunc, error) {
	path, query := channel.SSEPath()
	target := c.dialer.baseURL + path

	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	streamCtx, stop := context.WithCancel(c.ctx)

	// the handshake honours the caller's deadline, the stream outlives it
	release := context.AfterFunc(ctx, stop)
	defer release()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		stop()

		return nil, nil, fmt.Errorf("building stream request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")

	if c.dialer.userAgent != "" {
		req.Header.Set("User-Agent", c.dialer.userAgent)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.dialer.client.Do(req)
	if err != nil {
		stop()

		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		stop()

		return nil, nil, fmt.Errorf("%w: %s returned %d", ErrHandshakeFailed, path, resp.StatusCode)
	}

	return resp.Body, stop, nil
}

// pump forwards parsed events until the stream ends. An unexpected end of a
// stream that is still registered fails the whole logical connection.
func (c *sseConn) pump(channel masto.Channel, body io.ReadCloser, stream *sseStream) {
	defer func() { _ = body.Close() }()

	parser := sse.NewParser(body)

	for {
		event, err := parser.Next()
		if err != nil {
			c.mu.Lock()
			stillSubscribed := c.streams[channel.Key()] == stream
			c.mu.Unlock()

			if stillSubscribed && c.ctx.Err() == nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}

				c.fail(fmt.Errorf("stream %s: %w", channel.Key(), err))
			}

			return
		}

		select {
		case c.frames <- frame{channel: channel, event: event.Type, payload: []byte(event.Data)}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *sseConn) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *sseConn) read() (frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return frame{}, err
	case <-c.ctx.Done():
		return frame{}, ErrConnectionClosed
	}
}

func (c *sseConn) close() error {
	c.cancel()

	return nil
}
