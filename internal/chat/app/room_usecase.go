package app

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/internal/chat/repository"
	"chat_sync_client/pkg"
	"chat_sync_client/pkg/logger"

	"go.uber.org/zap"
)

// RoomUseCase - 聊天室列表, 建立與刪除
type RoomUseCase struct {
	roomRepo repository.RoomRepository
	syncer   *Synchronizer

	mu    sync.Mutex
	rooms map[string]domain.Chatroom
}

// NewRoomUseCase init room use case
func NewRoomUseCase(r repository.RoomRepository, s *Synchronizer) *RoomUseCase {
	return &RoomUseCase{
		roomRepo: r,
		syncer:   s,
		rooms:    make(map[string]domain.Chatroom),
	}
}

// ListChatrooms 取得聊天室列表, 開啟中的聊天室用本地較新的最後一則訊息
func (uc *RoomUseCase) ListChatrooms(ctx context.Context) ([]domain.Chatroom, error) {
	rooms, err := uc.roomRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	for i := range rooms {
		local, ok := uc.syncer.LatestMessage(rooms[i].ChatroomID)
		if !ok {
			continue
		}
		if rooms[i].LatestMessage == nil || rooms[i].LatestMessage.SentAt.Before(local.SentAt) {
			rooms[i].LatestMessage = &local
		}
	}

	uc.mu.Lock()
	uc.rooms = make(map[string]domain.Chatroom, len(rooms))
	for _, r := range rooms {
		uc.rooms[r.ChatroomID] = r
	}
	uc.mu.Unlock()

	return rooms, nil
}

// Chatroom returns a chatroom from the last ListChatrooms result
func (uc *RoomUseCase) Chatroom(chatroomID string) (domain.Chatroom, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	r, ok := uc.rooms[chatroomID]
	return r, ok
}

// CreateChatroom 建立聊天室, 目前登入的使用者一定在成員內
func (uc *RoomUseCase) CreateChatroom(ctx context.Context, userIDs []string) (*domain.Chatroom, error) {
	members := pkg.Unique(append([]string{uc.syncer.SenderID()}, userIDs...))
	if len(members) < 2 {
		return nil, domain.ErrInvalidParticipants
	}

	room, err := uc.roomRepo.Create(ctx, members)
	if err != nil {
		return nil, err
	}
	if room != nil {
		uc.mu.Lock()
		uc.rooms[room.ChatroomID] = *room
		uc.mu.Unlock()
		return room, nil
	}

	// 後端沒有回傳聊天室時重新拉列表找出來
	rooms, err := uc.ListChatrooms(ctx)
	if err != nil {
		logger.Log.Warn("refresh chatrooms after create", zap.Error(err))
		return nil, nil
	}
	for _, r := range rooms {
		if sameMembers(r.Participants, members) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

// DeleteChatroom 刪除聊天室並關閉本地狀態
func (uc *RoomUseCase) DeleteChatroom(ctx context.Context, chatroomID string) error {
	if strings.TrimSpace(chatroomID) == "" {
		return domain.ErrInvalidChatroom
	}
	if err := uc.roomRepo.Delete(ctx, chatroomID); err != nil {
		return err
	}

	uc.syncer.CloseChatroom(chatroomID)

	uc.mu.Lock()
	delete(uc.rooms, chatroomID)
	uc.mu.Unlock()
	return nil
}

func sameMembers(a, b []string) bool {
	a = pkg.Unique(a)
	b = pkg.Unique(b)
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
