package repository

import (
	"context"
	"net"
	"testing"
	"time"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAPI 啟動假的後端 REST API
func startAPI(t *testing.T, setup func(app *fiber.App)) string {
	t.Helper()
	logger.SetNewNop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	setup(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String() + "/api"
}

func TestRestHistory_FetchPage(t *testing.T) {
	var gotAuth, gotPage, gotSize, gotSort string
	base := startAPI(t, func(app *fiber.App) {
		app.Get("/api/chatroom/:id/messages", func(c *fiber.Ctx) error {
			gotAuth = c.Get(fiber.HeaderAuthorization)
			gotPage = c.Query("page")
			gotSize = c.Query("size")
			gotSort = c.Query("sort")
			return c.JSON(fiber.Map{
				"content": []fiber.Map{
					{"chatroomId": c.Params("id"), "senderId": "u1", "content": "hi", "sentAt": "2024-05-01T10:00:00"},
					{"senderId": "u2", "content": "yo", "sendAt": "2024-05-01T10:00:01Z"},
					{"senderId": "u2", "content": "", "sentAt": "2024-05-01T10:00:02Z"},
				},
				"page": fiber.Map{"size": 15, "number": 0, "totalElements": 2, "totalPages": 1},
			})
		})
	})

	repo := NewRestHistoryRepository(base, time.Second, StaticToken("tk"))
	page, err := repo.FetchPage(context.Background(), domain.PageRequest{
		ChatroomID: "room-1", Page: 2, Size: 15, SortKey: "sentAt", SortDir: "asc",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tk", gotAuth)
	assert.Equal(t, "2", gotPage)
	assert.Equal(t, "15", gotSize)
	assert.Equal(t, "sentAt,asc", gotSort)

	// 空 content 的那筆會被略過
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, "room-1", page.Messages[0].ChatroomID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), page.Messages[0].SentAt)
	assert.Equal(t, "yo", page.Messages[1].Content)
}

func TestRestHistory_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: fiber.StatusUnauthorized, want: domain.ErrUnauthorized},
		{name: "forbidden", status: fiber.StatusForbidden, want: domain.ErrUnauthorized},
		{name: "server error", status: fiber.StatusInternalServerError, want: domain.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := startAPI(t, func(app *fiber.App) {
				app.Get("/api/chatroom/:id/messages", func(c *fiber.Ctx) error {
					return c.SendStatus(tt.status)
				})
			})

			repo := NewRestHistoryRepository(base, time.Second, StaticToken("tk"))
			_, err := repo.FetchPage(context.Background(), domain.PageRequest{ChatroomID: "r", Size: 15})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRestHistory_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	repo := NewRestHistoryRepository("http://"+addr+"/api", time.Second, StaticToken(""))
	_, err = repo.FetchPage(context.Background(), domain.PageRequest{ChatroomID: "r", Size: 15})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestRestHistory_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	base := startAPI(t, func(app *fiber.App) {
		app.Get("/api/chatroom/:id/messages", func(c *fiber.Ctx) error {
			<-release
			return c.SendStatus(fiber.StatusOK)
		})
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	repo := NewRestHistoryRepository(base, 5*time.Second, StaticToken(""))

	errCh := make(chan error, 1)
	go func() {
		_, err := repo.FetchPage(ctx, domain.PageRequest{ChatroomID: "r", Size: 15})
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("FetchPage did not return after cancel")
	}
}

func TestRestRooms(t *testing.T) {
	var created domain.CreateChatroomRequest
	var deleted string
	base := startAPI(t, func(app *fiber.App) {
		app.Get("/api/chatroom", func(c *fiber.Ctx) error {
			return c.JSON([]fiber.Map{
				{
					"chatroomId":   "room-1",
					"participants": []string{"u1", "u2"},
					"lastMessage":  fiber.Map{"senderId": "u2", "content": "bye", "sentAt": "2024-05-01T10:00:00Z"},
				},
				{"chatroomId": "", "participants": []string{"u1"}},
			})
		})
		app.Post("/api/chatroom", func(c *fiber.Ctx) error {
			if err := c.BodyParser(&created); err != nil {
				return err
			}
			return c.SendStatus(fiber.StatusCreated)
		})
		app.Delete("/api/chatroom/:id", func(c *fiber.Ctx) error {
			deleted = c.Params("id")
			return c.SendStatus(fiber.StatusNoContent)
		})
	})

	repo := NewRestRoomRepository(base, time.Second, StaticToken("tk"))
	ctx := context.Background()

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, []string{"u1", "u2"}, rooms[0].Participants)
	require.NotNil(t, rooms[0].LatestMessage)
	assert.Equal(t, "bye", rooms[0].LatestMessage.Content)

	room, err := repo.Create(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Nil(t, room)
	assert.Equal(t, []string{"u1", "u3"}, created.UserIDs)

	require.NoError(t, repo.Delete(ctx, "room-1"))
	assert.Equal(t, "room-1", deleted)
}
