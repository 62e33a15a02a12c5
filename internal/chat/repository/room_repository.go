package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chat_sync_client/internal/chat/domain"
	errprocess "chat_sync_client/pkg/err"

	"github.com/gofiber/fiber/v2"
)

// RoomRepository definition chatroom directory
type RoomRepository interface {
	List(ctx context.Context) ([]domain.Chatroom, error)
	Create(ctx context.Context, userIDs []string) (*domain.Chatroom, error)
	Delete(ctx context.Context, chatroomID string) error
}

type restRoomRepository struct {
	baseURL string
	timeout time.Duration
	token   TokenSource
}

// NewRestRoomRepository create a RoomRepository backed by the REST API
func NewRestRoomRepository(baseURL string, timeout time.Duration, token TokenSource) RoomRepository {
	return &restRoomRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		token:   token,
	}
}

// List GET /chatroom
func (r *restRoomRepository) List(ctx context.Context) ([]domain.Chatroom, error) {
	code, body, err := doRequest(ctx, fiber.Get(r.baseURL+"/chatroom"), r.token(), r.timeout)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "list chatrooms")
	}
	if err := checkStatus(code, "list chatrooms"); err != nil {
		return nil, err
	}

	var resp []domain.ChatroomResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "decode chatrooms")
	}

	rooms := make([]domain.Chatroom, 0, len(resp))
	for _, cr := range resp {
		if cr.ChatroomID == "" {
			continue
		}
		rooms = append(rooms, cr.ToChatroom())
	}
	return rooms, nil
}

// Create POST /chatroom {userIds}; the backend may answer with an empty body
func (r *restRoomRepository) Create(ctx context.Context, userIDs []string) (*domain.Chatroom, error) {
	a := fiber.Post(r.baseURL + "/chatroom").JSON(domain.CreateChatroomRequest{UserIDs: userIDs})

	code, body, err := doRequest(ctx, a, r.token(), r.timeout)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrNetwork, err, "create chatroom")
	}
	if err := checkStatus(code, "create chatroom"); err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var resp domain.ChatroomResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ChatroomID == "" {
		return nil, nil
	}
	room := resp.ToChatroom()
	return &room, nil
}

// Delete DELETE /chatroom/{id}
func (r *restRoomRepository) Delete(ctx context.Context, chatroomID string) error {
	endpoint := fmt.Sprintf("%s/chatroom/%s", r.baseURL, url.PathEscape(chatroomID))

	code, _, err := doRequest(ctx, fiber.Delete(endpoint), r.token(), r.timeout)
	if err != nil {
		return errprocess.Wrap(domain.ErrNetwork, err, "delete chatroom "+chatroomID)
	}
	return checkStatus(code, "delete chatroom "+chatroomID)
}
