package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat_sync_client/internal/chat/domain"
	errprocess "chat_sync_client/pkg/err"
	"chat_sync_client/pkg/token"

	"github.com/gofiber/fiber/v2"
)

// TokenSource 提供目前登入的 token
type TokenSource func() string

// StaticToken returns a TokenSource that always yields t
func StaticToken(t string) TokenSource {
	return func() string { return t }
}

type agentResult struct {
	code int
	body []byte
	errs []error
}

// doRequest 送出 fiber client request, ctx 取消時立即返回
func doRequest(ctx context.Context, a *fiber.Agent, bearer string, timeout time.Duration) (int, []byte, error) {
	if bearer != "" {
		a.Set(fiber.HeaderAuthorization, token.BearerHeader(bearer))
	}
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			fiber.ReleaseAgent(a)
			return 0, nil, context.DeadlineExceeded
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		a.Timeout(timeout)
	}

	done := make(chan agentResult, 1)
	go func() {
		code, body, errs := a.Bytes()
		done <- agentResult{code: code, body: body, errs: errs}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case res := <-done:
		if len(res.errs) > 0 {
			return res.code, res.body, errors.Join(res.errs...)
		}
		return res.code, res.body, nil
	}
}

// checkStatus 將 HTTP 狀態碼轉成錯誤種類
func checkStatus(code int, what string) error {
	switch {
	case code == fiber.StatusUnauthorized || code == fiber.StatusForbidden:
		return errprocess.Wrap(domain.ErrUnauthorized, nil, fmt.Sprintf("%s: status %d", what, code))
	case code < 200 || code >= 300:
		return errprocess.Wrap(domain.ErrNetwork, nil, fmt.Sprintf("%s: status %d", what, code))
	}
	return nil
}
