package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/internal/chat/repository"
	errprocess "chat_sync_client/pkg/err"
	"chat_sync_client/pkg/logger"
	"chat_sync_client/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options Synchronizer 設定
type Options struct {
	PageSize       int
	SortKey        string
	SortDir        string
	OptimisticEcho bool
	WatchBuffer    int

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 15
	}
	if o.SortKey == "" {
		o.SortKey = "sentAt"
	}
	if o.SortDir == "" {
		o.SortDir = "asc"
	}
	if o.WatchBuffer <= 0 {
		o.WatchBuffer = 32
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// roomState 開啟中的聊天室. 關閉後整個丟掉, 用指標判斷回來的 fetch 是否過期
type roomState struct {
	id       string
	timeline *Timeline
	cursor   domain.Cursor
	latest   *domain.Message

	inFlight bool
	cancel   context.CancelFunc

	// 樂觀回顯, 顯示在已確認訊息之後
	pending []domain.Message
}

// Synchronizer 維護每個開啟中聊天室的 timeline, 資料來源為歷史分頁與 live feed
type Synchronizer struct {
	history repository.HistoryRepository
	feed    repository.LiveFeed
	opts    Options
	hub     *watchHub

	mu       sync.Mutex
	rooms    map[string]*roomState
	senderID string
	closed   bool
}

// NewSynchronizer create Synchronizer and register live feed hooks
func NewSynchronizer(history repository.HistoryRepository, feed repository.LiveFeed, opts Options) *Synchronizer {
	opts = opts.withDefaults()
	s := &Synchronizer{
		history: history,
		feed:    feed,
		opts:    opts,
		hub:     newWatchHub(opts.WatchBuffer),
		rooms:   make(map[string]*roomState),
	}

	feed.OnConnect(s.handleConnect)
	feed.OnDisconnect(func(err error) {
		s.emit(domain.TimelineEvent{Type: domain.EventDisconnected, Err: err})
	})
	feed.OnError(func(err error) {
		s.emit(domain.TimelineEvent{Type: domain.EventError, Err: err})
	})
	return s
}

// Connect checks the token locally, then opens the live feed.
// 過期或無法解析的 token 直接回 ErrUnauthorized, 不會連線
func (s *Synchronizer) Connect(ctx context.Context, tk string) error {
	claims, err := token.ParseUnverified(tk)
	if err != nil {
		return errprocess.Wrap(domain.ErrUnauthorized, err, "parse token")
	}
	if err := token.CheckNotExpired(claims, s.opts.Now()); err != nil {
		return errprocess.Wrap(domain.ErrUnauthorized, err, "check token")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	s.senderID = claims.SenderID()
	s.mu.Unlock()

	if err := s.feed.Connect(ctx, tk); err != nil {
		s.emit(domain.TimelineEvent{Type: domain.EventError, Err: err})
		return err
	}
	// feed 沒有觸發 OnConnect 時也要補訂閱, Subscribe 是冪等的
	s.subscribeOpen()
	return nil
}

// SenderID returns the member id taken from the connected token
func (s *Synchronizer) SenderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senderID
}

func (s *Synchronizer) handleConnect() {
	s.emit(domain.TimelineEvent{Type: domain.EventConnected})
	s.subscribeOpen()
}

// subscribeOpen 重連後對每個開啟中的聊天室重新訂閱
func (s *Synchronizer) subscribeOpen() {
	for _, id := range s.OpenChatrooms() {
		s.subscribe(id)
	}
}

func (s *Synchronizer) subscribe(chatroomID string) {
	if err := s.feed.Subscribe(chatroomID, s.pushHandler(chatroomID)); err != nil {
		logger.Log.Warn("subscribe chatroom", zap.String("chatroomID", chatroomID), zap.Error(err))
		s.emit(domain.TimelineEvent{Type: domain.EventError, ChatroomID: chatroomID, Err: err})
	}
}

// pushHandler 解析 live feed payload; 格式錯誤的直接丟棄
func (s *Synchronizer) pushHandler(chatroomID string) repository.PushHandler {
	return func(payload []byte) {
		if _, err := s.HandlePush(chatroomID, payload); err != nil {
			s.emit(domain.TimelineEvent{Type: domain.EventError, ChatroomID: chatroomID, Err: err})
		}
	}
}

// HandlePush decodes a raw live event and delivers it.
// Malformed payloads return ErrMalformedPush and leave the timeline untouched
func (s *Synchronizer) HandlePush(chatroomID string, payload []byte) (bool, error) {
	m, err := domain.DecodeMessage(chatroomID, payload)
	if err != nil {
		return false, errprocess.Wrap(domain.ErrMalformedPush, err, "decode push for "+chatroomID)
	}
	return s.DeliverLiveMessage(chatroomID, m), nil
}

// OpenChatroom initializes an empty timeline and cursor. Idempotent; no history is fetched
func (s *Synchronizer) OpenChatroom(chatroomID string) error {
	if strings.TrimSpace(chatroomID) == "" {
		return domain.ErrInvalidChatroom
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	if _, ok := s.rooms[chatroomID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.rooms[chatroomID] = &roomState{
		id:       chatroomID,
		timeline: NewTimeline(),
	}
	s.mu.Unlock()

	if s.feed.Connected() {
		s.subscribe(chatroomID)
	}
	return nil
}

// LoadNextPage fetches the next history page and merges it.
// 同一聊天室同時最多一個 fetch; 已到底時不再發 request
func (s *Synchronizer) LoadNextPage(ctx context.Context, chatroomID string) (domain.LoadResult, error) {
	s.mu.Lock()
	st, ok := s.rooms[chatroomID]
	if !ok {
		s.mu.Unlock()
		return domain.LoadResult{}, domain.ErrChatroomNotOpen
	}
	page := st.cursor.NextPageIndex
	if st.cursor.Exhausted {
		s.mu.Unlock()
		return domain.LoadResult{Status: domain.LoadExhausted, Page: page}, nil
	}
	if st.inFlight {
		s.mu.Unlock()
		return domain.LoadResult{Status: domain.LoadInFlight, Page: page}, nil
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	st.inFlight = true
	st.cancel = cancel
	s.mu.Unlock()

	resp, err := s.history.FetchPage(fetchCtx, domain.PageRequest{
		ChatroomID: chatroomID,
		Page:       page,
		Size:       s.opts.PageSize,
		SortKey:    s.opts.SortKey,
		SortDir:    s.opts.SortDir,
	})
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	// 關閉 (或關閉後重開) 期間回來的結果不採用
	if s.rooms[chatroomID] != st {
		logger.Log.Debug("discard page for closed chatroom", zap.String("chatroomID", chatroomID), zap.Int("page", page))
		return domain.LoadResult{Status: domain.LoadDiscarded, Page: page}, nil
	}
	st.inFlight = false
	st.cancel = nil

	if err != nil {
		s.emit(domain.TimelineEvent{Type: domain.EventError, ChatroomID: chatroomID, Err: err})
		return domain.LoadResult{Status: domain.LoadFailed, Page: page}, err
	}
	if resp == nil {
		resp = &domain.MessagePage{}
	}
	if resp.TotalPages > 0 {
		st.cursor.TotalPages = resp.TotalPages
	}

	if resp.Received == 0 && len(resp.Messages) == 0 {
		st.cursor.Exhausted = true
		s.emit(domain.TimelineEvent{Type: domain.EventExhausted, ChatroomID: chatroomID})
		return domain.LoadResult{Status: domain.LoadExhausted, Page: page}, nil
	}

	added := s.mergeLocked(st, resp.Messages)
	st.cursor.NextPageIndex++
	s.emit(domain.TimelineEvent{Type: domain.EventPageMerged, ChatroomID: chatroomID, Added: added})

	return domain.LoadResult{
		Status:  domain.LoadMerged,
		Page:    page,
		Fetched: len(resp.Messages),
		Added:   added,
	}, nil
}

// RequestNextPage runs LoadNextPage in the background; results arrive as watch events
func (s *Synchronizer) RequestNextPage(ctx context.Context, chatroomID string) {
	go func() {
		if _, err := s.LoadNextPage(ctx, chatroomID); errors.Is(err, domain.ErrChatroomNotOpen) {
			s.emit(domain.TimelineEvent{Type: domain.EventError, ChatroomID: chatroomID, Err: err})
		}
	}()
}

// DeliverLiveMessage merges one live message. Returns false for duplicates and chatrooms that are not open
func (s *Synchronizer) DeliverLiveMessage(chatroomID string, m domain.Message) bool {
	if m.ChatroomID == "" {
		m.ChatroomID = chatroomID
	}
	if m.ChatroomID != chatroomID {
		return false
	}
	m.Pending = false
	m.LocalID = ""

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[chatroomID]
	if !ok {
		return false
	}
	if s.mergeLocked(st, []domain.Message{m}) == 0 {
		return false
	}
	s.reconcileLocked(st, m)
	s.emit(domain.TimelineEvent{Type: domain.EventLiveMerged, ChatroomID: chatroomID, Added: 1, Message: &m})
	return true
}

// mergeLocked 合併訊息並更新 latest
func (s *Synchronizer) mergeLocked(st *roomState, msgs []domain.Message) int {
	added := st.timeline.Merge(msgs)
	for _, m := range added {
		if st.latest == nil || st.latest.SentAt.Before(m.SentAt) {
			latest := m
			st.latest = &latest
		}
	}
	return len(added)
}

// pendingClockSkew 後端時鐘可以比本地慢多少
const pendingClockSkew = 10 * time.Second

// reconcileLocked 移除第一則與 m 對應的樂觀回顯.
// 只接受送出之後才蓋時間的訊息, 舊的同內容訊息不算
func (s *Synchronizer) reconcileLocked(st *roomState, m domain.Message) {
	for i, p := range st.pending {
		if !p.SameContent(m) || m.SentAt.Before(p.SentAt.Add(-pendingClockSkew)) {
			continue
		}
		st.pending = append(st.pending[:i:i], st.pending[i+1:]...)
		confirmed := m
		s.emit(domain.TimelineEvent{Type: domain.EventReconciled, ChatroomID: st.id, Message: &confirmed})
		return
	}
}

// SendMessage publishes content to the chatroom over the live feed.
// senderID 空白時使用 token 內的 member id
func (s *Synchronizer) SendMessage(ctx context.Context, chatroomID, senderID, content string) error {
	content = strings.TrimSpace(content)
	switch {
	case strings.TrimSpace(chatroomID) == "":
		return domain.ErrInvalidChatroom
	case content == "":
		return domain.ErrEmptyContent
	}
	if senderID == "" {
		senderID = s.SenderID()
	}
	if !s.feed.Connected() {
		return domain.ErrNotConnected
	}

	var localID string
	if s.opts.OptimisticEcho {
		localID = s.addPending(domain.Message{
			ChatroomID: chatroomID,
			SenderID:   senderID,
			Content:    content,
			SentAt:     s.opts.Now().UTC(),
		})
	}

	err := s.feed.Publish(ctx, domain.OutgoingMessage{
		ChatroomID: chatroomID,
		SenderID:   senderID,
		Content:    content,
	})
	if err != nil {
		if localID != "" {
			s.dropPending(chatroomID, localID)
		}
		s.emit(domain.TimelineEvent{Type: domain.EventError, ChatroomID: chatroomID, Err: err})
		return err
	}
	return nil
}

func (s *Synchronizer) addPending(m domain.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[m.ChatroomID]
	if !ok {
		return ""
	}
	m.Pending = true
	m.LocalID = uuid.New().String()
	st.pending = append(st.pending, m)
	s.emit(domain.TimelineEvent{Type: domain.EventPending, ChatroomID: m.ChatroomID, Added: 1, Message: &m})
	return m.LocalID
}

func (s *Synchronizer) dropPending(chatroomID, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[chatroomID]
	if !ok {
		return
	}
	for i, p := range st.pending {
		if p.LocalID == localID {
			st.pending = append(st.pending[:i:i], st.pending[i+1:]...)
			s.emit(domain.TimelineEvent{Type: domain.EventPending, ChatroomID: chatroomID, Added: -1, Message: &p})
			return
		}
	}
}

// CloseChatroom discards the chatroom state and cancels its in-flight fetch. The shared connection stays up
func (s *Synchronizer) CloseChatroom(chatroomID string) {
	s.mu.Lock()
	st, ok := s.rooms[chatroomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, chatroomID)
	if st.cancel != nil {
		st.cancel()
	}
	s.emit(domain.TimelineEvent{Type: domain.EventClosed, ChatroomID: chatroomID})
	s.mu.Unlock()

	if err := s.feed.Unsubscribe(chatroomID); err != nil {
		logger.Log.Warn("unsubscribe chatroom", zap.String("chatroomID", chatroomID), zap.Error(err))
	}
}

// ResetChatroom closes and reopens the chatroom, starting again from page 0. Watchers are kept
func (s *Synchronizer) ResetChatroom(chatroomID string) error {
	s.CloseChatroom(chatroomID)
	return s.OpenChatroom(chatroomID)
}

// Timeline returns confirmed messages in ascending order followed by pending echoes
func (s *Synchronizer) Timeline(chatroomID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[chatroomID]
	if !ok {
		return nil
	}
	return append(st.timeline.Messages(), st.pending...)
}

// LatestMessage the confirmed message with the greatest sentAt
func (s *Synchronizer) LatestMessage(chatroomID string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[chatroomID]
	if !ok || st.latest == nil {
		return domain.Message{}, false
	}
	return *st.latest, true
}

// Cursor returns the pagination cursor of an open chatroom
func (s *Synchronizer) Cursor(chatroomID string) (domain.Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[chatroomID]
	if !ok {
		return domain.Cursor{}, false
	}
	return st.cursor, true
}

// OpenChatrooms sorted ids of open chatrooms
func (s *Synchronizer) OpenChatrooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watch subscribes to change notifications of chatroomID; empty id watches every chatroom
func (s *Synchronizer) Watch(chatroomID string) *Watcher {
	return s.hub.add(chatroomID)
}

// Close closes every chatroom, every watcher and the live feed
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rooms := s.rooms
	s.rooms = make(map[string]*roomState)
	s.mu.Unlock()

	for id, st := range rooms {
		if st.cancel != nil {
			st.cancel()
		}
		s.emit(domain.TimelineEvent{Type: domain.EventClosed, ChatroomID: id})
	}
	s.hub.closeAll()
	return s.feed.Close()
}

// emit 可在持有 s.mu 時呼叫, hub 有自己的鎖且不阻塞
func (s *Synchronizer) emit(ev domain.TimelineEvent) {
	if ev.At.IsZero() {
		ev.At = s.opts.Now()
	}
	s.hub.publish(ev)
}
