package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chat_sync_client/internal/chat/domain"
	errprocess "chat_sync_client/pkg/err"
	"chat_sync_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// HistoryRepository 分頁讀取聊天室歷史訊息
type HistoryRepository interface {
	FetchPage(ctx context.Context, req domain.PageRequest) (*domain.MessagePage, error)
}

type restHistoryRepository struct {
	baseURL string
	timeout time.Duration
	token   TokenSource
}

// NewRestHistoryRepository create a HistoryRepository backed by the REST API
func NewRestHistoryRepository(baseURL string, timeout time.Duration, token TokenSource) HistoryRepository {
	return &restHistoryRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		token:   token,
	}
}

// FetchPage GET /chatroom/{id}/messages?page=&size=&sort=sentAt,asc
func (r *restHistoryRepository) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(req.Size))
	q.Set("sort", req.SortKey+","+req.SortDir)
	endpoint := fmt.Sprintf("%s/chatroom/%s/messages?%s", r.baseURL, url.PathEscape(req.ChatroomID), q.Encode())

	code, body, err := doRequest(ctx, fiber.Get(endpoint), r.token(), r.timeout)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "fetch messages "+req.ChatroomID)
	}
	if err := checkStatus(code, "fetch messages "+req.ChatroomID); err != nil {
		return nil, err
	}

	var resp domain.MessagePageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "decode messages "+req.ChatroomID)
	}

	page := &domain.MessagePage{
		Messages:   make([]domain.Message, 0, len(resp.Content)),
		Received:   len(resp.Content),
		TotalPages: resp.Page.TotalPages,
	}
	for _, mr := range resp.Content {
		m, err := mr.ToMessage(req.ChatroomID)
		if err != nil {
			// 單筆壞資料不影響整頁
			logger.Log.Warn("skip malformed history message", zap.String("chatroomID", req.ChatroomID), zap.Error(err))
			continue
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}

type mongoHistoryRepository struct {
	coll *mongo.Collection
}

// NewMongoHistoryRepository create a HistoryRepository reading the backend's message collection
func NewMongoHistoryRepository(db *mongo.Database, collection string) HistoryRepository {
	return &mongoHistoryRepository{
		coll: db.Collection(collection),
	}
}

// mongo 欄位對照
var mongoSortFields = map[string]string{
	"sentAt":   "sent_at",
	"senderId": "sender_id",
	"content":  "content",
}

func (r *mongoHistoryRepository) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.MessagePage, error) {
	field, ok := mongoSortFields[req.SortKey]
	if !ok {
		field = "sent_at"
	}
	dir := 1
	if strings.EqualFold(req.SortDir, "desc") {
		dir = -1
	}

	filter := bson.M{"chatroom_id": req.ChatroomID}
	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}).
		SetSkip(int64(req.Page * req.Size)).
		SetLimit(int64(req.Size))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "find messages "+req.ChatroomID)
	}
	var messages []domain.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "decode messages "+req.ChatroomID)
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "count messages "+req.ChatroomID)
	}

	page := &domain.MessagePage{
		Messages: make([]domain.Message, 0, len(messages)),
		Received: len(messages),
	}
	if req.Size > 0 {
		page.TotalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	for _, m := range messages {
		m.ChatroomID = req.ChatroomID
		m.SentAt = m.SentAt.UTC()
		if err := m.Validate(); err != nil {
			logger.Log.Warn("skip malformed stored message", zap.String("chatroomID", req.ChatroomID), zap.Error(err))
			continue
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}
