package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/gorilla/websocket"
)

// wsDialer connects to <streaming>/api/v1/streaming over WebSocket.
type wsDialer struct {
	endpoint     string
	token        TokenFunc
	userAgent    string
	dialer       *websocket.Dialer
	pingInterval time.Duration
}

func newWSDialer(streamingURL string, token TokenFunc, userAgent string, pingInterval time.Duration) (*wsDialer, error) {
	endpoint, err := url.Parse(strings.TrimSuffix(streamingURL, "/") + "/api/v1/streaming")
	if err != nil {
		return nil, fmt.Errorf("parsing streaming URL: %w", err)
	}

	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	case "http":
		endpoint.Scheme = "ws"
	}

	if pingInterval <= 0 {
		pingInterval = constants.StreamPingInterval
	}

	return &wsDialer{
		endpoint:  endpoint.String(),
		token:     token,
		userAgent: userAgent,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.StreamHandshakeTimeout,
		},
		pingInterval: pingInterval,
	}, nil
}

func (d *wsDialer) dial(ctx context.Context) (conn, error) {
	header := http.Header{}
	if d.userAgent != "" {
		header.Set("User-Agent", d.userAgent)
	}

	token, err := d.token(ctx)
	if err != nil {
		return nil, err
	}

	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := d.dialer.DialContext(ctx, d.endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s returned %d", ErrHandshakeFailed, d.endpoint, resp.StatusCode)
		}

		return nil, fmt.Errorf("dialing %s: %w", d.endpoint, err)
	}

	c := &wsConn{
		ws:           ws,
		pingInterval: d.pingInterval,
		stop:         make(chan struct{}),
	}

	c.extendDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendDeadline()

		return nil
	})

	go c.pingLoop()

	return c, nil
}

type wsConn struct {
	ws           *websocket.Conn
	pingInterval time.Duration
	stop         chan struct{}
	once         sync.Once
}

// wsMessage is the inbound Mastodon frame. Payload is usually a JSON string
// holding the encoded entity.
type wsMessage struct {
	Stream  []string        `json:"stream"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

type wsControl struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Tag    string `json:"tag,omitempty"`
	List   string `json:"list,omitempty"`
}

func (c *wsConn) kind() masto.StreamTransport {
	return masto.StreamTransportWebSocket
}

func (c *wsConn) writeControl(ctx context.Context, ctl control) error {
	msg := wsControl{
		Type:   "unsubscribe",
		Stream: ctl.channel.Name,
		Tag:    ctl.channel.Tag,
		List:   ctl.channel.List,
	}
	if ctl.subscribe {
		msg.Type = "subscribe"
	}

	deadline := time.Now().Add(constants.StreamWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := c.ws.SetWriteDeadline(deadline)
	if err != nil {
		return err
	}

	return c.ws.WriteJSON(msg)
}

func (c *wsConn) read() (frame, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return frame{}, err
		}

		c.extendDeadline()

		var msg wsMessage

		err = json.Unmarshal(data, &msg)
		if err != nil || msg.Event == "" {
			// error notices and unknown frames carry no event
			continue
		}

		return frame{
			channel: masto.ChannelFromStream(msg.Stream),
			event:   msg.Event,
			payload: unquotePayload(msg.Payload),
		}, nil
	}
}

func unquotePayload(raw json.RawMessage) []byte {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return []byte(s)
		}
	}

	return raw
}

func (c *wsConn) extendDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.StreamWriteTimeout))
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) close() error {
	var err error

	c.once.Do(func() {
		close(c.stop)

		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})

	return err
}
