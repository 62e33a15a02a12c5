package database

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoServer 啟動 fiber websocket echo server
func startEchoServer(t *testing.T) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(func(c *fiberws.Conn) {
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func TestDialWebSocket_StreamsMessages(t *testing.T) {
	url := startEchoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialWebSocket(ctx, WebSocketConnection{URL: url, RetryCount: 2, RetryInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("world"))
	require.NoError(t, err)

	// 兩個 websocket 訊息應讀成連續的 byte stream
	buf := make([]byte, 10)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(buf))
}

func TestDialWebSocket_ReadAfterClose(t *testing.T) {
	url := startEchoServer(t)

	conn, err := DialWebSocket(context.Background(), WebSocketConnection{URL: url})
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	// 重複 Close 不應 panic
	_ = conn.Close()

	_, err = conn.Read(make([]byte, 4))
	assert.Error(t, err)
}

func TestDialWebSocket_Retries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	start := time.Now()
	_, err = DialWebSocket(context.Background(), WebSocketConnection{
		URL:           "ws://" + addr + "/ws",
		RetryCount:    2,
		RetryInterval: 20 * time.Millisecond,
	})

	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDialWebSocket_HandshakeRejected(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusUnauthorized)
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	start := time.Now()
	_, err = DialWebSocket(context.Background(), WebSocketConnection{
		URL:           "ws://" + ln.Addr().String() + "/ws",
		RetryCount:    3,
		RetryInterval: time.Second,
	})

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, fiber.StatusUnauthorized, hsErr.StatusCode)
	// 401 不重試
	assert.Less(t, time.Since(start), time.Second)
}
