package database

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn 把 websocket 訊息包成 byte stream, 給 STOMP client 使用.
// 每次 Write 送出一個 text message, Read 依序讀取訊息內容.
type WSConn struct {
	ws     *websocket.Conn
	reader io.Reader

	rmu sync.Mutex
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

const wsCloseWait = time.Second

// HandshakeError server answered the upgrade request with a non-101 status
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// DialWebSocket 連線到 websocket endpoint, 失敗時依 RetryCount 重試
func DialWebSocket(ctx context.Context, c WebSocketConnection) (*WSConn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
	}

	var err error
	for i := 0; i <= c.RetryCount; i++ {
		ws, resp, dialErr := dialer.DialContext(ctx, c.URL, c.Header)
		if dialErr == nil {
			return NewWSConn(ws), nil
		}
		err = dialErr
		if resp != nil {
			_ = resp.Body.Close()
			err = &HandshakeError{StatusCode: resp.StatusCode, Err: dialErr}
			// 憑證錯誤重試也沒用
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, err
			}
		}

		if i < c.RetryCount {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryInterval):
			}
		}
	}

	return nil, fmt.Errorf("failed to dial websocket %s after %d retries: %w", c.URL, c.RetryCount, err)
}

// NewWSConn wraps an established websocket connection
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Read reads the payload of consecutive websocket messages
func (c *WSConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one text message
func (c *WSConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseWait),
		)
		c.wmu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
