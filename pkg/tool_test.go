package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "c"))
	assert.False(t, Contains(nil, "a"))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"u1", "u2"}, Unique([]string{"u1", " ", "u2", "u1 ", ""}))
	assert.Empty(t, Unique(nil))
}
