package app

import (
	"context"
	"sync"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockHistoryRepository Mock HistoryRepository
type MockHistoryRepository struct {
	mock.Mock
}

// FetchPage moke fetch one history page
func (m *MockHistoryRepository) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.MessagePage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.MessagePage), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// List moke list chatrooms
func (m *MockRoomRepository) List(ctx context.Context) ([]domain.Chatroom, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Chatroom), args.Error(1)
	}
	return nil, args.Error(1)
}

// Create moke create chatroom
func (m *MockRoomRepository) Create(ctx context.Context, userIDs []string) (*domain.Chatroom, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Chatroom), args.Error(1)
	}
	return nil, args.Error(1)
}

// Delete moke delete chatroom
func (m *MockRoomRepository) Delete(ctx context.Context, chatroomID string) error {
	args := m.Called(ctx, chatroomID)
	return args.Error(0)
}

// MockLiveFeed Mock LiveFeed. hooks 與 handler 記下來讓測試可以手動觸發
type MockLiveFeed struct {
	mock.Mock

	hmu          sync.Mutex
	handlers     map[string]repository.PushHandler
	onConnect    []func()
	onDisconnect []func(error)
	onError      []func(error)
}

// NewMockLiveFeed create MockLiveFeed
func NewMockLiveFeed() *MockLiveFeed {
	return &MockLiveFeed{handlers: make(map[string]repository.PushHandler)}
}

// Connect moke connect
func (m *MockLiveFeed) Connect(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// Connected moke connection state
func (m *MockLiveFeed) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

// Subscribe moke subscribe, handler is kept for Push
func (m *MockLiveFeed) Subscribe(chatroomID string, handler repository.PushHandler) error {
	args := m.Called(chatroomID)
	if args.Error(0) == nil {
		m.hmu.Lock()
		m.handlers[chatroomID] = handler
		m.hmu.Unlock()
	}
	return args.Error(0)
}

// Unsubscribe moke unsubscribe
func (m *MockLiveFeed) Unsubscribe(chatroomID string) error {
	args := m.Called(chatroomID)
	m.hmu.Lock()
	delete(m.handlers, chatroomID)
	m.hmu.Unlock()
	return args.Error(0)
}

// Publish moke publish
func (m *MockLiveFeed) Publish(ctx context.Context, msg domain.OutgoingMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// OnConnect keeps the hook
func (m *MockLiveFeed) OnConnect(handler func()) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onConnect = append(m.onConnect, handler)
}

// OnDisconnect keeps the hook
func (m *MockLiveFeed) OnDisconnect(handler func(err error)) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onDisconnect = append(m.onDisconnect, handler)
}

// OnError keeps the hook
func (m *MockLiveFeed) OnError(handler func(err error)) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onError = append(m.onError, handler)
}

// Close moke close
func (m *MockLiveFeed) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Push delivers payload to the chatroom's subscribed handler; false when not subscribed
func (m *MockLiveFeed) Push(chatroomID string, payload []byte) bool {
	m.hmu.Lock()
	h, ok := m.handlers[chatroomID]
	m.hmu.Unlock()
	if !ok {
		return false
	}
	h(payload)
	return true
}

// FireConnect runs the OnConnect hooks
func (m *MockLiveFeed) FireConnect() {
	m.hmu.Lock()
	hooks := append([]func(){}, m.onConnect...)
	m.hmu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// FireDisconnect runs the OnDisconnect hooks
func (m *MockLiveFeed) FireDisconnect(err error) {
	m.hmu.Lock()
	hooks := append([]func(error){}, m.onDisconnect...)
	m.hmu.Unlock()
	for _, h := range hooks {
		h(err)
	}
}
