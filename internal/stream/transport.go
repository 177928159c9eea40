// Package stream implements the realtime event subscriber: one logical
// connection per streaming server, multiplexing every subscribed channel,
// reconnecting with backoff and replaying subscriptions after a drop.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

var (
	// ErrConnectionClosed is returned by reads on a closed connection.
	ErrConnectionClosed = errors.New("stream connection closed")
	// ErrHandshakeFailed wraps a non-101/200 handshake response.
	ErrHandshakeFailed = errors.New("stream handshake failed")
)

// frame is one inbound message, before payload decoding.
type frame struct {
	channel masto.Channel
	event   string
	payload []byte
}

// control is an outbound subscribe or unsubscribe request.
type control struct {
	subscribe bool
	channel   masto.Channel
}

func (c control) String() string {
	if c.subscribe {
		return "subscribe " + c.channel.Key()
	}

	return "unsubscribe " + c.channel.Key()
}

// conn is a live transport connection. read is only called from the reader
// goroutine and writeControl only from the writer goroutine; close may be
// called from anywhere, more than once.
type conn interface {
	writeControl(ctx context.Context, ctl control) error
	read() (frame, error)
	close() error
	kind() masto.StreamTransport
}

// dialer opens transport connections.
type dialer interface {
	dial(ctx context.Context) (conn, error)
}

// connection pairs a transport conn with its ordered control queue.
type connection struct {
	conn conn
	gen  uint64

	mu     sync.Mutex
	queue  []control
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newConnection(c conn, gen uint64) *connection {
	return &connection{
		conn:   c,
		gen:    gen,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueue appends ctl to the write queue without blocking.
func (c *connection) enqueue(ctl control) {
	c.mu.Lock()
	c.queue = append(c.queue, ctl)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// writeLoop drains the queue in order until the connection is shut down.
// A failed write closes the transport so the reader notices and reconnects.
func (c *connection) writeLoop(ctx context.Context, logger masto.Logger) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-c.notify:
		}

		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()

				break
			}

			ctl := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			err := c.conn.writeControl(ctx, ctl)
			if err != nil {
				logger.Warn("stream control write failed", map[string]interface{}{
					"control": ctl.String(),
					"error":   err.Error(),
				})

				_ = c.shutdown()

				return
			}
		}
	}
}

// shutdown stops the writer and closes the transport.
func (c *connection) shutdown() error {
	var err error

	c.once.Do(func() {
		close(c.done)
		err = c.conn.close()
	})

	return err
}

// decodeFrame builds the public event from a raw frame.
func decodeFrame(f frame) (masto.Event, error) {
	payload, err := masto.ParseEventPayload(f.event, f.payload)
	if err != nil {
		return masto.Event{}, err
	}

	return masto.Event{
		Channel: f.channel,
		Type:    f.event,
		Payload: payload,
		Raw:     rawJSON(f.payload),
	}, nil
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 || !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))

		return quoted
	}

	return json.RawMessage(data)
}
