package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat_sync_client/internal/chat/domain"
	errprocess "chat_sync_client/pkg/err"
	"chat_sync_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisFeed LiveFeed over redis pub/sub, 每個聊天室一個 channel.
// 沒有後端幫忙蓋時間戳, Publish 時直接以本地時間當 sentAt
type RedisFeed struct {
	feedHooks

	client *redis.Client
	prefix string
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	closed    bool
	subs      map[string]*redisSub
}

// redisSub ps 為 nil 代表還在等 redis 確認訂閱
type redisSub struct {
	ps *redis.PubSub
}

// NewRedisFeed create RedisFeed
func NewRedisFeed(client *redis.Client, channelPrefix string) *RedisFeed {
	return &RedisFeed{
		client: client,
		prefix: channelPrefix,
		now:    time.Now,
		subs:   make(map[string]*redisSub),
	}
}

func (r *RedisFeed) channel(chatroomID string) string {
	return r.prefix + chatroomID
}

// Connect 確認 redis 可用. redis 的認證在 client 設定, token 不使用
func (r *RedisFeed) Connect(ctx context.Context, _ string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errprocess.Wrap(domain.ErrNotConnected, nil, "redis feed closed")
	}
	r.mu.Unlock()

	if err := r.client.Ping(ctx).Err(); err != nil {
		wrapped := errprocess.Wrap(domain.ErrNetwork, err, "redis ping")
		r.fireError(wrapped)
		return wrapped
	}

	r.mu.Lock()
	already := r.connected
	r.connected = true
	r.mu.Unlock()

	if !already {
		logger.Log.Info("redis feed connected")
		r.fireConnect()
	}
	return nil
}

// Connected reports whether Connect succeeded and Close was not called
func (r *RedisFeed) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Subscribe 訂閱聊天室 channel, 收到訊息後呼叫 handler 處理.
// 先佔位再到 redis 訂閱, 等待確認時不持有 lock
func (r *RedisFeed) Subscribe(chatroomID string, handler PushHandler) error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return domain.ErrNotConnected
	}
	if _, ok := r.subs[chatroomID]; ok {
		r.mu.Unlock()
		return nil
	}
	slot := &redisSub{}
	r.subs[chatroomID] = slot
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := r.channel(chatroomID)
	ps := r.client.Subscribe(ctx, channel)
	// 等 subscribe 確認, 之後的 publish 才保證收得到
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		r.mu.Lock()
		if r.subs[chatroomID] == slot {
			delete(r.subs, chatroomID)
		}
		r.mu.Unlock()
		return errprocess.Wrap(domain.ErrNetwork, err, "subscribe "+channel)
	}

	r.mu.Lock()
	if r.subs[chatroomID] != slot {
		// 等待期間被 Unsubscribe 或 Close
		closed := r.closed
		r.mu.Unlock()
		_ = ps.Close()
		if closed {
			return domain.ErrNotConnected
		}
		return nil
	}
	slot.ps = ps
	r.mu.Unlock()

	go func() {
		for m := range ps.Channel() {
			handler([]byte(m.Payload))
		}
		logger.Log.Debug(fmt.Sprintf("%s , sub close", channel))
	}()
	return nil
}

// Unsubscribe 關閉聊天室 channel 訂閱
func (r *RedisFeed) Unsubscribe(chatroomID string) error {
	r.mu.Lock()
	sub, ok := r.subs[chatroomID]
	delete(r.subs, chatroomID)
	r.mu.Unlock()

	// 還在等確認的由 Subscribe 自己收尾
	if !ok || sub.ps == nil {
		return nil
	}
	if err := sub.ps.Close(); err != nil {
		return errprocess.Wrap(domain.ErrNetwork, err, "unsubscribe "+r.channel(chatroomID))
	}
	return nil
}

// Publish 將 message 序列化後, 發布到聊天室 channel
func (r *RedisFeed) Publish(ctx context.Context, msg domain.OutgoingMessage) error {
	if !r.Connected() {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(domain.MessageResponse{
		ChatroomID: msg.ChatroomID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		SentAt:     r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel(msg.ChatroomID), data).Err(); err != nil {
		return errprocess.Wrap(domain.ErrNetwork, err, "publish to "+r.channel(msg.ChatroomID))
	}
	return nil
}

// Close 關閉所有訂閱. redis client 由建立者負責關閉
func (r *RedisFeed) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	wasConnected := r.connected
	r.connected = false
	subs := r.subs
	r.subs = make(map[string]*redisSub)
	r.mu.Unlock()

	for id, sub := range subs {
		if sub.ps == nil {
			continue
		}
		if err := sub.ps.Close(); err != nil {
			logger.Log.Warn("close redis subscription", zap.String("chatroomID", id), zap.Error(err))
		}
	}
	if wasConnected {
		r.fireDisconnect(nil)
	}
	return nil
}
