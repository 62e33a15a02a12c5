package errprocess

import (
	"errors"
	"fmt"

	"chat_sync_client/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 將底層錯誤包成指定的錯誤種類並記錄
// errors.Is 對 kind 與 err 都成立
func Wrap(kind error, err error, msg string) error {
	var wrapped error
	if err == nil {
		wrapped = fmt.Errorf("%w: %s", kind, msg)
	} else {
		wrapped = fmt.Errorf("%w: %s: %w", kind, msg, err)
	}
	logger.Log.Error(msg, zap.String("kind", kind.Error()), zap.Error(err))
	return wrapped
}
