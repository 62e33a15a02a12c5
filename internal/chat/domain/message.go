package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	errprocess "chat_sync_client/pkg/err"
)

// Message 表示一則聊天訊息, 建立後不可變
type Message struct {
	ID         string    `bson:"id,omitempty" json:"id,omitempty"` // 後端有給才有
	ChatroomID string    `bson:"chatroom_id" json:"chatroomId"`
	SenderID   string    `bson:"sender_id" json:"senderId"`
	Content    string    `bson:"content" json:"content"`
	SentAt     time.Time `bson:"sent_at" json:"sentAt"`

	// 本地樂觀回顯, 等後端回傳正式訊息後移除
	Pending bool   `bson:"-" json:"pending,omitempty"`
	LocalID string `bson:"-" json:"localId,omitempty"`
}

// MessageKey 訊息去重用的 identity
type MessageKey struct {
	ID         string
	ChatroomID string
	SenderID   string
	SentAt     int64
	Content    string
}

// Key returns the dedup identity: the backend id when present,
// otherwise (chatroomId, senderId, sentAt, content)
func (m Message) Key() MessageKey {
	if m.ID != "" {
		return MessageKey{ID: m.ID}
	}
	return m.CompositeKey()
}

// CompositeKey ignores the backend id
func (m Message) CompositeKey() MessageKey {
	return MessageKey{
		ChatroomID: m.ChatroomID,
		SenderID:   m.SenderID,
		SentAt:     m.SentAt.UnixNano(),
		Content:    m.Content,
	}
}

// SameContent reports whether o carries the same chatroom, sender and content.
// 用來對應樂觀回顯與後端回傳的正式訊息
func (m Message) SameContent(o Message) bool {
	return m.ChatroomID == o.ChatroomID && m.SenderID == o.SenderID && m.Content == o.Content
}

// Before 排序規則: sentAt 由舊到新, 同時間再依 sender/content/id 決定, 讓順序與到達順序無關
func (m Message) Before(o Message) bool {
	if !m.SentAt.Equal(o.SentAt) {
		return m.SentAt.Before(o.SentAt)
	}
	if m.SenderID != o.SenderID {
		return m.SenderID < o.SenderID
	}
	if m.Content != o.Content {
		return m.Content < o.Content
	}
	return m.ID < o.ID
}

// Validate 檢查訊息必要欄位
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.Content) == "":
		return errprocess.Set("content is empty")
	case m.SenderID == "":
		return errprocess.Set("sender id is empty")
	case m.SentAt.IsZero():
		return errprocess.Set("sent at is empty")
	}
	return nil
}

// MessageResponse 後端回傳的訊息格式, 舊版本用 sendAt
type MessageResponse struct {
	ID         string `json:"id,omitempty"`
	ChatroomID string `json:"chatroomId,omitempty"`
	Content    string `json:"content"`
	SentAt     string `json:"sentAt,omitempty"`
	SendAt     string `json:"sendAt,omitempty"`
	SenderID   string `json:"senderId"`
}

// ToMessage converts the wire form into a Message of chatroomID
func (r MessageResponse) ToMessage(chatroomID string) (Message, error) {
	raw := r.SentAt
	if raw == "" {
		raw = r.SendAt
	}
	sentAt, err := ParseSentAt(raw)
	if err != nil {
		return Message{}, err
	}

	if r.ChatroomID != "" && chatroomID != "" && r.ChatroomID != chatroomID {
		return Message{}, fmt.Errorf("chatroom mismatch: got %s, want %s", r.ChatroomID, chatroomID)
	}
	if chatroomID == "" {
		chatroomID = r.ChatroomID
	}

	m := Message{
		ID:         r.ID,
		ChatroomID: chatroomID,
		SenderID:   r.SenderID,
		Content:    r.Content,
		SentAt:     sentAt,
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// DecodeMessage 解析 live feed 推送的 payload
func DecodeMessage(chatroomID string, payload []byte) (Message, error) {
	var r MessageResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return Message{}, err
	}
	return r.ToMessage(chatroomID)
}

// 後端 LocalDateTime 不帶時區, 視為 UTC
var sentAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseSentAt parses an ISO-8601 timestamp with or without zone offset
func ParseSentAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("sent at is empty")
	}
	for _, layout := range sentAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid sent at %q", raw)
}

// OutgoingMessage 送往 live feed 的訊息
type OutgoingMessage struct {
	ChatroomID string `json:"chatroomId"`
	SenderID   string `json:"senderId"`
	Content    string `json:"content"`
}

// PageRequest 歷史訊息分頁查詢條件
type PageRequest struct {
	ChatroomID string
	Page       int
	Size       int
	SortKey    string
	SortDir    string
}

// MessagePage 一頁歷史訊息
type MessagePage struct {
	Messages   []Message
	Received   int // 過濾壞資料前的筆數, 0 代表沒有更多歷史
	TotalPages int
}

// MessagePageResponse 後端分頁回應
type MessagePageResponse struct {
	Content []MessageResponse `json:"content"`
	Page    PageData          `json:"page"`
}

// PageData 後端分頁資訊
type PageData struct {
	Size          int `json:"size"`
	Number        int `json:"number"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}
