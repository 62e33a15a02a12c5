package app

import (
	"sync"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/pkg/logger"

	"go.uber.org/zap"
)

// Watcher receives change notifications for one chatroom, or all of them when chatroomID is empty.
// 收到通知後重新讀 Synchronizer 的 snapshot
type Watcher struct {
	C <-chan domain.TimelineEvent

	ch         chan domain.TimelineEvent
	chatroomID string
	hub        *watchHub
}

// Close stops delivery and closes C
func (w *Watcher) Close() {
	w.hub.remove(w)
}

type watchHub struct {
	mu       sync.Mutex
	buffer   int
	watchers map[*Watcher]struct{}
}

func newWatchHub(buffer int) *watchHub {
	if buffer <= 0 {
		buffer = 1
	}
	return &watchHub{
		buffer:   buffer,
		watchers: make(map[*Watcher]struct{}),
	}
}

func (h *watchHub) add(chatroomID string) *Watcher {
	ch := make(chan domain.TimelineEvent, h.buffer)
	w := &Watcher{C: ch, ch: ch, chatroomID: chatroomID, hub: h}

	h.mu.Lock()
	h.watchers[w] = struct{}{}
	h.mu.Unlock()
	return w
}

func (h *watchHub) remove(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; !ok {
		return
	}
	delete(h.watchers, w)
	close(w.ch)
}

// publish 不阻塞, buffer 滿了就丟掉
func (h *watchHub) publish(ev domain.TimelineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		if w.chatroomID != "" && ev.ChatroomID != "" && w.chatroomID != ev.ChatroomID {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			logger.Log.Debug("watcher buffer full, event dropped",
				zap.String("chatroomID", ev.ChatroomID), zap.String("type", string(ev.Type)))
		}
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		delete(h.watchers, w)
		close(w.ch)
	}
}
