package errprocess

import (
	"errors"
	"testing"

	"chat_sync_client/pkg/logger"

	"github.com/stretchr/testify/assert"
)

var errKind = errors.New("network error")

func TestWrap(t *testing.T) {
	logger.SetNewNop()
	cause := errors.New("connection refused")

	err := Wrap(errKind, cause, "fetch page")

	assert.ErrorIs(t, err, errKind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "network error: fetch page: connection refused", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	logger.SetNewNop()

	err := Wrap(errKind, nil, "status 502")

	assert.ErrorIs(t, err, errKind)
	assert.Equal(t, "network error: status 502", err.Error())
}

func TestSet(t *testing.T) {
	logger.SetNewNop()
	assert.EqualError(t, Set("boom"), "boom")
}
