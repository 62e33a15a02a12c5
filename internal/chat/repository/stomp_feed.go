package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/pkg/database"
	errprocess "chat_sync_client/pkg/err"
	"chat_sync_client/pkg/logger"
	"chat_sync_client/pkg/token"

	"github.com/go-stomp/stomp/v3"
	"go.uber.org/zap"
)

// Dialer opens the byte stream the STOMP session runs on
type Dialer func(ctx context.Context, token string) (io.ReadWriteCloser, error)

// NewWebSocketDialer dials a STOMP websocket endpoint, sending the token on the upgrade request
func NewWebSocketDialer(url string, retryCount int, retryInterval time.Duration) Dialer {
	return func(ctx context.Context, tk string) (io.ReadWriteCloser, error) {
		header := http.Header{}
		if tk != "" {
			header.Set("Authorization", token.BearerHeader(tk))
		}
		conn, err := database.DialWebSocket(ctx, database.WebSocketConnection{
			URL:           url,
			Header:        header,
			RetryCount:    retryCount,
			RetryInterval: retryInterval,
		})
		if err != nil {
			var hsErr *database.HandshakeError
			if errors.As(err, &hsErr) && (hsErr.StatusCode == http.StatusUnauthorized || hsErr.StatusCode == http.StatusForbidden) {
				return nil, errprocess.Wrap(domain.ErrUnauthorized, err, "websocket handshake rejected")
			}
			return nil, err
		}
		return conn, nil
	}
}

// StompOptions STOMP destinations and reconnect policy
type StompOptions struct {
	Host               string
	SubscribePrefix    string
	PublishDestination string
	HeartBeat          time.Duration
	// 0 代表無限重連
	ReconnectAttempts int
	ReconnectInterval time.Duration
}

// StompFeed LiveFeed over STOMP. 斷線後自動重連, 重連成功觸發 OnConnect
type StompFeed struct {
	feedHooks

	dial Dialer
	opts StompOptions

	mu      sync.Mutex
	session *stompSession
	token   string
	closed  bool

	lifecycle context.Context
	stop      context.CancelFunc
}

// stompSession 一次成功的連線, 訂閱只在該連線有效
type stompSession struct {
	conn *stomp.Conn
	rwc  *watchedConn
	subs map[string]*stomp.Subscription
}

// NewStompFeed create StompFeed
func NewStompFeed(dial Dialer, opts StompOptions) *StompFeed {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StompFeed{
		dial:      dial,
		opts:      opts,
		lifecycle: ctx,
		stop:      cancel,
	}
}

// Connect establishes the shared connection; no-op when already connected with the same token
func (f *StompFeed) Connect(ctx context.Context, tk string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errprocess.Wrap(domain.ErrNotConnected, nil, "stomp feed closed")
	}
	if f.session != nil && f.token == tk {
		f.mu.Unlock()
		return nil
	}
	f.token = tk
	f.mu.Unlock()

	s, err := f.open(ctx, tk)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = s.conn.MustDisconnect()
		return errprocess.Wrap(domain.ErrNotConnected, nil, "stomp feed closed")
	}
	old := f.session
	f.session = s
	f.mu.Unlock()

	if old != nil {
		_ = old.conn.MustDisconnect()
	}

	logger.Log.Info("stomp connected")
	go f.monitor(s, tk)
	f.fireConnect()
	return nil
}

// open dials and performs the STOMP handshake
func (f *StompFeed) open(ctx context.Context, tk string) (*stompSession, error) {
	rwc, err := f.dial(ctx, tk)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "dial live feed")
	}
	w := newWatchedConn(rwc)

	// stomp.Connect 不吃 ctx, 用關閉連線中斷握手
	stopAfter := context.AfterFunc(ctx, func() { _ = w.Close() })
	defer stopAfter()

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(f.opts.HeartBeat, f.opts.HeartBeat),
	}
	if tk != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", token.BearerHeader(tk)))
	}
	if f.opts.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(f.opts.Host))
	}

	conn, err := stomp.Connect(w, opts...)
	if err != nil {
		_ = w.Close()
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "stomp handshake")
	}

	return &stompSession{
		conn: conn,
		rwc:  w,
		subs: make(map[string]*stomp.Subscription),
	}, nil
}

// monitor waits for the session to die, then reconnects
func (f *StompFeed) monitor(s *stompSession, tk string) {
	<-s.rwc.done

	f.mu.Lock()
	current := f.session == s
	if current {
		f.session = nil
	}
	closed := f.closed
	f.mu.Unlock()

	if !current {
		return
	}

	logger.Log.Warn("stomp disconnected", zap.Error(s.rwc.err))
	f.fireDisconnect(s.rwc.err)
	if closed {
		return
	}
	f.reconnect(tk)
}

func (f *StompFeed) reconnect(tk string) {
	for attempt := 1; f.opts.ReconnectAttempts == 0 || attempt <= f.opts.ReconnectAttempts; attempt++ {
		select {
		case <-f.lifecycle.Done():
			return
		case <-time.After(f.opts.ReconnectInterval):
		}

		s, err := f.open(f.lifecycle, tk)
		if err != nil {
			logger.Log.Warn("stomp reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			f.fireError(err)
			if errors.Is(err, domain.ErrUnauthorized) {
				return
			}
			continue
		}

		f.mu.Lock()
		if f.closed || f.session != nil {
			f.mu.Unlock()
			_ = s.conn.MustDisconnect()
			return
		}
		f.session = s
		f.mu.Unlock()

		logger.Log.Info("stomp reconnected", zap.Int("attempt", attempt))
		go f.monitor(s, tk)
		f.fireConnect()
		return
	}
	logger.Log.Error("stomp reconnect attempts exhausted", zap.Int("attempts", f.opts.ReconnectAttempts))
}

// Connected reports whether a session is up
func (f *StompFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session != nil
}

// Subscribe subscribes <prefix><chatroomID> on the current session
func (f *StompFeed) Subscribe(chatroomID string, handler PushHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.session
	if s == nil {
		return domain.ErrNotConnected
	}
	if _, ok := s.subs[chatroomID]; ok {
		return nil
	}

	sub, err := s.conn.Subscribe(f.opts.SubscribePrefix+chatroomID, stomp.AckAuto)
	if err != nil {
		return errprocess.Wrap(domain.ErrNetwork, err, "subscribe "+chatroomID)
	}
	s.subs[chatroomID] = sub

	go f.consume(s, chatroomID, sub, handler)
	return nil
}

func (f *StompFeed) consume(s *stompSession, chatroomID string, sub *stomp.Subscription, handler PushHandler) {
	for msg := range sub.C {
		if msg.Err != nil {
			// 連線斷掉時每個訂閱都會收到錯誤, 由 monitor 統一處理
			if s.rwc.isDone() {
				return
			}
			logger.Log.Error("stomp subscription error", zap.String("chatroomID", chatroomID), zap.Error(msg.Err))
			f.fireError(errprocess.Wrap(domain.ErrNetwork, msg.Err, "subscription "+chatroomID))
			continue
		}
		handler(msg.Body)
	}
}

// Unsubscribe drops the chatroom subscription on the current session
func (f *StompFeed) Unsubscribe(chatroomID string) error {
	f.mu.Lock()
	s := f.session
	if s == nil {
		f.mu.Unlock()
		return nil
	}
	sub, ok := s.subs[chatroomID]
	delete(s.subs, chatroomID)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, stomp.ErrCompletedSubscription) {
		return errprocess.Wrap(domain.ErrNetwork, err, "unsubscribe "+chatroomID)
	}
	return nil
}

// Publish sends msg as JSON to the publish destination
func (f *StompFeed) Publish(ctx context.Context, msg domain.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil {
		return domain.ErrNotConnected
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.conn.Send(f.opts.PublishDestination, "application/json", body); err != nil {
		return errprocess.Wrap(domain.ErrNetwork, err, "publish to "+f.opts.PublishDestination)
	}
	return nil
}

// Close disconnects and stops reconnecting
func (f *StompFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	s := f.session
	f.session = nil
	f.mu.Unlock()

	f.stop()
	if s != nil {
		return s.conn.MustDisconnect()
	}
	return nil
}

// watchedConn 記錄底層連線第一次讀寫失敗
type watchedConn struct {
	io.ReadWriteCloser

	once sync.Once
	done chan struct{}
	err  error
}

var errConnClosed = errors.New("connection closed")

func newWatchedConn(rwc io.ReadWriteCloser) *watchedConn {
	return &watchedConn{ReadWriteCloser: rwc, done: make(chan struct{})}
}

func (w *watchedConn) Read(p []byte) (int, error) {
	n, err := w.ReadWriteCloser.Read(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedConn) Write(p []byte) (int, error) {
	n, err := w.ReadWriteCloser.Write(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedConn) Close() error {
	w.fail(errConnClosed)
	return w.ReadWriteCloser.Close()
}

func (w *watchedConn) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

func (w *watchedConn) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
