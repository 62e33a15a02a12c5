package domain

import "time"

// EventType timeline change notification type
type EventType string

const (
	// EventPageMerged a history page was merged
	EventPageMerged EventType = "page_merged"
	// EventLiveMerged a live message was merged
	EventLiveMerged EventType = "live_merged"
	// EventExhausted history has no more pages
	EventExhausted EventType = "exhausted"
	// EventPending an optimistic echo was added or dropped
	EventPending EventType = "pending"
	// EventReconciled an optimistic echo was replaced by the authoritative message
	EventReconciled EventType = "reconciled"
	// EventError an error surfaced for display
	EventError EventType = "error"
	// EventClosed the chatroom was closed
	EventClosed EventType = "closed"
	// EventConnected the live feed (re)connected
	EventConnected EventType = "connected"
	// EventDisconnected the live feed dropped
	EventDisconnected EventType = "disconnected"
)

// TimelineEvent 推給 UI 的變更通知, 收到後重新讀取 snapshot
type TimelineEvent struct {
	Type       EventType
	ChatroomID string
	Added      int
	Message    *Message
	Err        error
	At         time.Time
}

// LoadStatus LoadNextPage 結果
type LoadStatus string

const (
	// LoadMerged page fetched and merged
	LoadMerged LoadStatus = "merged"
	// LoadExhausted no request made, or the page came back empty
	LoadExhausted LoadStatus = "exhausted"
	// LoadInFlight another fetch for the chatroom is pending; no request made
	LoadInFlight LoadStatus = "in_flight"
	// LoadDiscarded chatroom closed while fetching; response dropped
	LoadDiscarded LoadStatus = "discarded"
	// LoadFailed fetch failed, cursor unchanged
	LoadFailed LoadStatus = "failed"
)

// LoadResult LoadNextPage 回傳
type LoadResult struct {
	Status  LoadStatus
	Page    int
	Fetched int
	Added   int
}
