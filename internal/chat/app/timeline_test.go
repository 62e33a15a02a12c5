package app

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"chat_sync_client/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// msgAt 第 n 則測試訊息, sentAt = t0 + n 分鐘
func msgAt(n int) domain.Message {
	return domain.Message{
		ChatroomID: "c1",
		SenderID:   fmt.Sprintf("u%d", n%2),
		Content:    fmt.Sprintf("m%d", n),
		SentAt:     t0.Add(time.Duration(n) * time.Minute),
	}
}

func msgRange(from, to int) []domain.Message {
	var out []domain.Message
	for i := from; i <= to; i++ {
		out = append(out, msgAt(i))
	}
	return out
}

func contents(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestTimeline_InsertSorted(t *testing.T) {
	tl := NewTimeline()
	for _, n := range []int{3, 1, 2, 5, 4} {
		assert.True(t, tl.Insert(msgAt(n)))
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, contents(tl.Messages()))

	latest, ok := tl.Latest()
	require.True(t, ok)
	assert.Equal(t, "m5", latest.Content)
}

func TestTimeline_Idempotent(t *testing.T) {
	tl := NewTimeline()
	assert.True(t, tl.Insert(msgAt(1)))
	assert.False(t, tl.Insert(msgAt(1)))
	assert.Equal(t, 1, tl.Len())

	added := tl.Merge(msgRange(1, 3))
	assert.Len(t, added, 2)
	assert.Equal(t, 3, tl.Len())
}

func TestTimeline_OrderIndependent(t *testing.T) {
	batches := [][]domain.Message{msgRange(1, 5), msgRange(4, 9), {msgAt(7), msgAt(12)}, msgRange(10, 11)}

	want := NewTimeline()
	for _, b := range batches {
		want.Merge(b)
	}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		perm := r.Perm(len(batches))
		got := NewTimeline()
		for _, p := range perm {
			got.Merge(batches[p])
		}
		assert.Equal(t, want.Messages(), got.Messages(), "permutation %v", perm)
	}
	assert.Equal(t, 12, want.Len())
}

func TestTimeline_OrderIndependentMixedIDs(t *testing.T) {
	x := msgAt(1)
	x.ID = "x"
	y := msgAt(1)
	y.ID = "y"
	bare := msgAt(1)
	msgs := []domain.Message{x, bare, y, msgAt(2)}

	orders := [][]int{
		{0, 1, 2, 3}, {0, 2, 1, 3}, {1, 0, 2, 3}, {1, 2, 0, 3},
		{2, 0, 1, 3}, {2, 1, 0, 3}, {3, 1, 0, 2}, {3, 2, 1, 0},
	}
	var want []domain.Message
	for _, order := range orders {
		tl := NewTimeline()
		for _, i := range order {
			tl.Insert(msgs[i])
		}
		if want == nil {
			want = tl.Messages()
		}
		assert.Equal(t, want, tl.Messages(), "order %v", order)
	}

	// 有 id 的各留一則, 沒有 id 的副本被吸收
	require.Len(t, want, 3)
	assert.Equal(t, "x", want[0].ID)
	assert.Equal(t, "y", want[1].ID)
}

func TestTimeline_IDReplacesBareCopy(t *testing.T) {
	tl := NewTimeline()
	require.True(t, tl.Insert(msgAt(1)))
	require.True(t, tl.Insert(msgAt(2)))

	withID := msgAt(1)
	withID.ID = "id-1"
	assert.False(t, tl.Insert(withID))
	assert.Equal(t, 2, tl.Len())
	assert.Equal(t, "id-1", tl.Messages()[0].ID)

	// 之後的無 id 副本仍是重複
	assert.False(t, tl.Insert(msgAt(1)))
	assert.Equal(t, 2, tl.Len())
}

func TestTimeline_SameInstantTieBreak(t *testing.T) {
	a := domain.Message{ChatroomID: "c1", SenderID: "u2", Content: "x", SentAt: t0}
	b := domain.Message{ChatroomID: "c1", SenderID: "u1", Content: "y", SentAt: t0}

	ab := NewTimeline()
	ab.Merge([]domain.Message{a, b})
	ba := NewTimeline()
	ba.Merge([]domain.Message{b, a})

	assert.Equal(t, ab.Messages(), ba.Messages())
	assert.Equal(t, []string{"y", "x"}, contents(ab.Messages()))
}

func TestTimeline_BackendID(t *testing.T) {
	tl := NewTimeline()
	withID := msgAt(1)
	withID.ID = "id-1"
	require.True(t, tl.Insert(withID))

	// 相同 id 視為同一則, 即使內容不同
	edited := withID
	edited.Content = "changed"
	assert.False(t, tl.Insert(edited))

	// 沒有 id 的同一則訊息也視為重複
	assert.False(t, tl.Insert(msgAt(1)))

	// 不同 id 但內容相同的是兩則訊息
	other := msgAt(1)
	other.ID = "id-2"
	assert.True(t, tl.Insert(other))
	assert.Equal(t, 2, tl.Len())
}
