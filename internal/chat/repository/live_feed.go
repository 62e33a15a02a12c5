package repository

import (
	"context"
	"sync"

	"chat_sync_client/internal/chat/domain"
)

// PushHandler receives the raw payload of one live event
type PushHandler func(payload []byte)

// LiveFeed 共用的即時訊息連線, 每個聊天室一個訂閱
type LiveFeed interface {
	Connect(ctx context.Context, token string) error
	Connected() bool
	// Subscribe 重複呼叫為 no-op
	Subscribe(chatroomID string, handler PushHandler) error
	// Unsubscribe 未訂閱時為 no-op
	Unsubscribe(chatroomID string) error
	Publish(ctx context.Context, msg domain.OutgoingMessage) error

	OnConnect(handler func())
	OnDisconnect(handler func(err error))
	OnError(handler func(err error))

	Close() error
}

// feedHooks 連線事件的 callback 清單
type feedHooks struct {
	mu           sync.Mutex
	onConnect    []func()
	onDisconnect []func(error)
	onError      []func(error)
}

func (h *feedHooks) OnConnect(handler func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, handler)
}

func (h *feedHooks) OnDisconnect(handler func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = append(h.onDisconnect, handler)
}

func (h *feedHooks) OnError(handler func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, handler)
}

func (h *feedHooks) fireConnect() {
	h.mu.Lock()
	handlers := append([]func(){}, h.onConnect...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (h *feedHooks) fireDisconnect(err error) {
	h.mu.Lock()
	handlers := append([]func(error){}, h.onDisconnect...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (h *feedHooks) fireError(err error) {
	h.mu.Lock()
	handlers := append([]func(error){}, h.onError...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}
