package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TokenSource supplies the bearer token sent when dialing.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// WebSocketDialer connects to {baseURL}/queues/{queueID}.
type WebSocketDialer struct {
	baseURL string
	tokens  TokenSource
	dialer  *websocket.Dialer
}

func NewWebSocketDialer(baseURL string, tokens TokenSource) *WebSocketDialer {
	return &WebSocketDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WebSocketDialer) URL(queueID string) string {
	return d.baseURL + "/queues/" + url.PathEscape(queueID)
}

func (d *WebSocketDialer) Dial(ctx context.Context, queueID string) (Conn, error) {
	header := http.Header{}
	if d.tokens != nil {
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := d.dialer.DialContext(ctx, d.URL(queueID), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.URL(queueID), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL(queueID), err)
	}

	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws   *websocket.Conn
	once sync.Once
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}
