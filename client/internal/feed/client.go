package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Client is one connection to the datastream endpoint.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects to url. header may carry an Origin for servers with an
// origin allow-list.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	d := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("feed: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("feed: dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Send writes text as one text frame.
func (c *Client) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)) //nolint:errcheck
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("feed: send: %w", err)
	}
	return nil
}

// Run reads frames and passes each text frame to onMessage until the
// connection closes or ctx is cancelled. A normal close from the server
// returns nil.
func (c *Client) Run(ctx context.Context, onMessage func([]byte)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() }) //nolint:errcheck
	defer stop()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("feed: closed by server: %d %s", ce.Code, ce.Text)
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		if mt == websocket.TextMessage {
			onMessage(data)
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
