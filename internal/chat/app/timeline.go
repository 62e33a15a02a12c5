package app

import (
	"slices"
	"sort"

	"chat_sync_client/internal/chat/domain"
)

// Timeline 單一聊天室已確認的訊息, 依 Message.Before 排序且不重複.
// 同一個 composite key 底下: 有 id 的訊息各自保留一則, 全部沒有 id 時只保留一則.
// 結果與到達順序無關
type Timeline struct {
	items []domain.Message

	byID map[string]struct{}
	// composite key -> true 代表目前由一則沒有 id 的訊息佔用
	byComposite map[domain.MessageKey]bool
}

// NewTimeline create an empty Timeline
func NewTimeline() *Timeline {
	return &Timeline{
		byID:        make(map[string]struct{}),
		byComposite: make(map[domain.MessageKey]bool),
	}
}

// Contains reports whether m is already in the timeline.
// 沒有 id 的訊息只要 composite key 出現過就算重複; 有 id 的訊息比 id,
// 或同 composite key 只有一則沒有 id 的副本
func (t *Timeline) Contains(m domain.Message) bool {
	idless, seen := t.byComposite[m.CompositeKey()]
	if m.ID == "" {
		return seen
	}
	if _, ok := t.byID[m.ID]; ok {
		return true
	}
	return idless
}

// Insert merges m at its sorted position; returns false for duplicates.
// 有 id 的訊息遇到同 composite key 的無 id 副本時, 原地補上 id, 不算新增
func (t *Timeline) Insert(m domain.Message) bool {
	k := m.CompositeKey()
	idless, seen := t.byComposite[k]

	if m.ID == "" {
		if seen {
			return false
		}
		t.byComposite[k] = true
		t.insertSorted(m)
		return true
	}

	if _, ok := t.byID[m.ID]; ok {
		return false
	}
	t.byID[m.ID] = struct{}{}
	t.byComposite[k] = false
	if idless {
		t.replaceIDless(m)
		return false
	}
	t.insertSorted(m)
	return true
}

func (t *Timeline) insertSorted(m domain.Message) {
	i := sort.Search(len(t.items), func(i int) bool {
		return m.Before(t.items[i])
	})
	t.items = slices.Insert(t.items, i, m)
}

// replaceIDless 以 m 取代同 composite key 的無 id 副本.
// 其他訊息的 composite key 不同, 排序位置不變
func (t *Timeline) replaceIDless(m domain.Message) {
	probe := m
	probe.ID = ""
	i := sort.Search(len(t.items), func(i int) bool {
		return !t.items[i].Before(probe)
	})
	if i < len(t.items) && t.items[i].ID == "" && t.items[i].CompositeKey() == probe.CompositeKey() {
		t.items[i] = m
	}
}

// Merge inserts every message and returns the ones actually added
func (t *Timeline) Merge(msgs []domain.Message) []domain.Message {
	var added []domain.Message
	for _, m := range msgs {
		if t.Insert(m) {
			added = append(added, m)
		}
	}
	return added
}

// Messages returns a copy in ascending order
func (t *Timeline) Messages() []domain.Message {
	return append([]domain.Message(nil), t.items...)
}

// Latest returns the newest message
func (t *Timeline) Latest() (domain.Message, bool) {
	if len(t.items) == 0 {
		return domain.Message{}, false
	}
	return t.items[len(t.items)-1], true
}

// Len number of confirmed messages
func (t *Timeline) Len() int {
	return len(t.items)
}
