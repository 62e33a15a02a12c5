package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/pkg/logger"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/mock"
)

// fakeHistory 記憶體中的歷史訊息, 可以讓某一頁延遲回應
type fakeHistory struct {
	mu       sync.Mutex
	messages map[string][]domain.Message
	override map[int][]domain.Message
	delayed  map[int]bool
	calls    int

	started chan struct{}
	release chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		messages: make(map[string][]domain.Message),
		override: make(map[int][]domain.Message),
		delayed:  make(map[int]bool),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (h *fakeHistory) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.MessagePage, error) {
	h.mu.Lock()
	h.calls++
	msgs, ok := h.override[req.Page]
	if !ok {
		all := h.messages[req.ChatroomID]
		from := min(req.Page*req.Size, len(all))
		to := min(from+req.Size, len(all))
		msgs = all[from:to]
	}
	delayed := h.delayed[req.Page]
	h.mu.Unlock()

	if delayed {
		h.started <- struct{}{}
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.MessagePage{Messages: append([]domain.Message(nil), msgs...), Received: len(msgs)}, nil
}

type timelineFeature struct {
	syncer  *Synchronizer
	history *fakeHistory
	feed    *MockLiveFeed

	loadDone chan domain.LoadResult
	sendErr  error
}

func (f *timelineFeature) aSynchronizerWithoutALiveConnection() error {
	logger.SetNewNop()
	f.history = newFakeHistory()
	f.feed = NewMockLiveFeed()
	f.feed.On("Connected").Return(false)
	f.feed.On("Unsubscribe", mock.Anything).Return(nil)
	f.syncer = NewSynchronizer(f.history, f.feed, Options{PageSize: 15})
	return nil
}

func (f *timelineFeature) theBackendHasMessages(n int, chatroomID string) error {
	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	f.history.messages[chatroomID] = msgRange(1, n)
	return nil
}

func (f *timelineFeature) chatroomIsOpen(chatroomID string) error {
	return f.syncer.OpenChatroom(chatroomID)
}

func (f *timelineFeature) iCloseChatroom(chatroomID string) error {
	f.syncer.CloseChatroom(chatroomID)
	return nil
}

func (f *timelineFeature) iLoadTheNextPageOf(chatroomID string) error {
	_, err := f.syncer.LoadNextPage(context.Background(), chatroomID)
	return err
}

func (f *timelineFeature) pageReturnsMessagesAfterADelay(page int, _ string, from, to int) error {
	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	f.history.override[page] = msgRange(from, to)
	f.history.delayed[page] = true
	return nil
}

func (f *timelineFeature) aPageLoadIsInFlight(chatroomID string) error {
	f.loadDone = make(chan domain.LoadResult, 1)
	go func() {
		res, _ := f.syncer.LoadNextPage(context.Background(), chatroomID)
		f.loadDone <- res
	}()

	select {
	case <-f.history.started:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("page request was not sent")
	}
}

func (f *timelineFeature) theDelayedPageIsReleased() error {
	close(f.history.release)
	return nil
}

func (f *timelineFeature) theInFlightLoadEndsAs(status string) error {
	select {
	case res := <-f.loadDone:
		if string(res.Status) != status {
			return fmt.Errorf("load ended as %q, want %q", res.Status, status)
		}
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("in-flight load did not finish")
	}
}

func (f *timelineFeature) liveMessageArrivesIn(n int, chatroomID string) error {
	f.syncer.DeliverLiveMessage(chatroomID, msgAt(n))
	return nil
}

func (f *timelineFeature) iSendTo(content, chatroomID string) error {
	f.sendErr = f.syncer.SendMessage(context.Background(), chatroomID, "u1", content)
	return nil
}

func (f *timelineFeature) theSendFailsWithNotConnected() error {
	if !errors.Is(f.sendErr, domain.ErrNotConnected) {
		return fmt.Errorf("send error = %v, want not connected", f.sendErr)
	}
	return nil
}

func (f *timelineFeature) theTimelineHasMessages(chatroomID string, from, to int) error {
	got := contents(f.syncer.Timeline(chatroomID))
	want := contents(msgRange(from, to))
	if fmt.Sprint(got) != fmt.Sprint(want) {
		return fmt.Errorf("timeline = %v, want %v", got, want)
	}
	return nil
}

func (f *timelineFeature) theTimelineIsEmpty(chatroomID string) error {
	if tl := f.syncer.Timeline(chatroomID); len(tl) != 0 {
		return fmt.Errorf("timeline has %d messages", len(tl))
	}
	return nil
}

func (f *timelineFeature) chatroomIsExhausted(chatroomID string) error {
	cur, ok := f.syncer.Cursor(chatroomID)
	if !ok || !cur.Exhausted {
		return fmt.Errorf("cursor = %+v, want exhausted", cur)
	}
	return nil
}

func (f *timelineFeature) theBackendServedPageRequests(n int) error {
	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	if f.history.calls != n {
		return fmt.Errorf("backend served %d page requests, want %d", f.history.calls, n)
	}
	return nil
}

// InitializeTimelineScenario register timeline steps
func InitializeTimelineScenario(ctx *godog.ScenarioContext) {
	f := &timelineFeature{}

	ctx.Step(`^a synchronizer without a live connection$`, f.aSynchronizerWithoutALiveConnection)
	ctx.Step(`^the backend has (\d+) messages in chatroom "([^"]*)"$`, f.theBackendHasMessages)
	ctx.Step(`^chatroom "([^"]*)" is open$`, f.chatroomIsOpen)
	ctx.Step(`^I open chatroom "([^"]*)"$`, f.chatroomIsOpen)
	ctx.Step(`^I close chatroom "([^"]*)"$`, f.iCloseChatroom)
	ctx.Step(`^I load the next page of "([^"]*)"$`, f.iLoadTheNextPageOf)
	ctx.Step(`^page (\d+) of "([^"]*)" returns messages (\d+) to (\d+) after a delay$`, f.pageReturnsMessagesAfterADelay)
	ctx.Step(`^a page load for "([^"]*)" is in flight$`, f.aPageLoadIsInFlight)
	ctx.Step(`^the delayed page is released$`, f.theDelayedPageIsReleased)
	ctx.Step(`^the in-flight load ends as "([^"]*)"$`, f.theInFlightLoadEndsAs)
	ctx.Step(`^live message (\d+) arrives in "([^"]*)"$`, f.liveMessageArrivesIn)
	ctx.Step(`^I send "([^"]*)" to "([^"]*)"$`, f.iSendTo)
	ctx.Step(`^the send fails with not connected$`, f.theSendFailsWithNotConnected)
	ctx.Step(`^the timeline of "([^"]*)" has messages (\d+) to (\d+)$`, f.theTimelineHasMessages)
	ctx.Step(`^the timeline of "([^"]*)" is empty$`, f.theTimelineIsEmpty)
	ctx.Step(`^chatroom "([^"]*)" is exhausted$`, f.chatroomIsExhausted)
	ctx.Step(`^the backend served (\d+) page requests$`, f.theBackendServedPageRequests)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeTimelineScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
