package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bili_bot/internal/classifier"
	"bili_bot/internal/model"
	"bili_bot/internal/storage"
)

type fakePlatform struct {
	mu        sync.Mutex
	pages     map[int64]*model.FeedPage
	live      map[int64]bool
	feedErr   map[int64]error
	panicOn   int64
	liveCalls atomic.Int32
	feedCalls atomic.Int32
	noCred    bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		pages:   map[int64]*model.FeedPage{},
		live:    map[int64]bool{},
		feedErr: map[int64]error{},
	}
}

func (f *fakePlatform) HasCredential() bool { return !f.noCred }

func (f *fakePlatform) LatestFeed(_ context.Context, creatorID int64) (*model.FeedPage, error) {
	f.feedCalls.Add(1)
	if creatorID == f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.feedErr[creatorID]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[creatorID]; ok {
		return p, nil
	}
	return &model.FeedPage{}, nil
}

func (f *fakePlatform) LiveInfo(_ context.Context, creatorID int64) (*model.LiveInfo, error) {
	f.liveCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.LiveInfo{CreatorName: "UP", Live: f.live[creatorID], RoomTitle: "room"}, nil
}

func (f *fakePlatform) setLive(creatorID int64, live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[creatorID] = live
}

type sent struct {
	SubscriberID string
	ItemURL      string
	Transition   model.Transition
}

type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []sent
	err    error
	before func()
}

func (d *fakeDispatcher) Dispatch(_ context.Context, subscriberID string, p *model.RenderPayload) error {
	if d.before != nil {
		d.before()
	}
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{SubscriberID: subscriberID, ItemURL: p.PermalinkURL})
	return nil
}

func (d *fakeDispatcher) DispatchLive(_ context.Context, subscriberID string, _ *model.LiveInfo, t model.Transition) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{SubscriberID: subscriberID, Transition: t})
	return nil
}

func (d *fakeDispatcher) messages() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]sent, len(d.sent))
	copy(cp, d.sent)
	return cp
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestScheduler(store storage.Storage, p Platform, d Dispatcher) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, p, classifier.New(log, nil), d, log)
}

func subscribe(t *testing.T, store storage.Storage, sub model.Subscription) {
	t.Helper()
	if err := store.Put(context.Background(), &sub); err != nil {
		t.Fatalf("put subscription: %v", err)
	}
}

func lastSeen(t *testing.T, store storage.Storage, sid string, uid int64) *model.Subscription {
	t.Helper()
	got, err := store.Get(context.Background(), model.Key{SubscriberID: sid, CreatorID: uid})
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	return got
}

func video(id string) model.FeedItem {
	return model.FeedItem{
		ID:        id,
		Kind:      model.KindVideo,
		TypeToken: model.TypeVideo,
		Author:    model.Author{Name: "UP"},
		Video:     &model.Video{Title: "t" + id, BVID: "BV" + id},
	}
}

func TestSchedulerSendsAndCommits(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3"), video("2")}}
	subscribe(t, store, model.Subscription{SubscriberID: "telegram:private:1", CreatorID: 1, LastSeenItemID: "2"})

	disp := &fakeDispatcher{}
	sched := newTestScheduler(store, platform, disp)
	sched.checkAll(context.Background())

	want := []sent{{SubscriberID: "telegram:private:1", ItemURL: classifier.VideoURL("BV3")}}
	if diff := cmp.Diff(want, disp.messages()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("3", lastSeen(t, store, "telegram:private:1", 1).LastSeenItemID); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}

	// Second cycle sees the anchor and sends nothing.
	sched.checkAll(context.Background())
	if diff := cmp.Diff(1, len(disp.messages())); diff != "" {
		t.Errorf("second cycle message count mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerFilteredItemAdvancesCursor(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3")}}
	subscribe(t, store, model.Subscription{
		SubscriberID:   "telegram:group:2",
		CreatorID:      1,
		LastSeenItemID: "2",
		FilterTypes:    []model.FilterType{model.FilterVideo, model.FilterLive},
	})

	disp := &fakeDispatcher{}
	newTestScheduler(store, platform, disp).checkAll(context.Background())

	if diff := cmp.Diff(0, len(disp.messages())); diff != "" {
		t.Errorf("filtered item was sent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("3", lastSeen(t, store, "telegram:group:2", 1).LastSeenItemID); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerDispatchFailureKeepsCursor(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3")}}
	subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 1, LastSeenItemID: "2"})

	disp := &fakeDispatcher{err: errors.New("chat unavailable")}
	newTestScheduler(store, platform, disp).checkAll(context.Background())

	if diff := cmp.Diff("2", lastSeen(t, store, "s", 1).LastSeenItemID); diff != "" {
		t.Errorf("cursor moved after failed send (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int32(0), platform.liveCalls.Load()); diff != "" {
		t.Errorf("live checked after failed dynamic stage (-want +got):\n%s", diff)
	}
}

func TestSchedulerIsolatesFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePlatform)
	}{
		{
			name:  "fetch error",
			setup: func(p *fakePlatform) { p.feedErr[1] = errors.New("status 412") },
		},
		{
			name:  "panic",
			setup: func(p *fakePlatform) { p.panicOn = 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			platform := newFakePlatform()
			platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3")}}
			platform.pages[2] = &model.FeedPage{Items: []model.FeedItem{video("9")}}
			tt.setup(platform)
			subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 1, LastSeenItemID: "2"})
			subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 2, LastSeenItemID: "8"})

			disp := &fakeDispatcher{}
			newTestScheduler(store, platform, disp).checkAll(context.Background())

			want := []sent{{SubscriberID: "s", ItemURL: classifier.VideoURL("BV9")}}
			if diff := cmp.Diff(want, disp.messages()); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("2", lastSeen(t, store, "s", 1).LastSeenItemID); diff != "" {
				t.Errorf("failed subscription cursor mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("9", lastSeen(t, store, "s", 2).LastSeenItemID); diff != "" {
				t.Errorf("healthy subscription cursor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSchedulerLiveTransitions(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 1})

	disp := &fakeDispatcher{}
	sched := newTestScheduler(store, platform, disp)

	for _, live := range []bool{false, true, true, false} {
		platform.setLive(1, live)
		sched.checkAll(context.Background())
	}

	want := []sent{
		{SubscriberID: "s", Transition: model.WentLive},
		{SubscriberID: "s", Transition: model.WentOffline},
	}
	if diff := cmp.Diff(want, disp.messages()); diff != "" {
		t.Errorf("live notices mismatch (-want +got):\n%s", diff)
	}
	if lastSeen(t, store, "s", 1).IsLive {
		t.Error("expected is_live false after going offline")
	}
}

func TestSchedulerLiveFilterSkipsLiveCheck(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.live[1] = true
	subscribe(t, store, model.Subscription{
		SubscriberID: "s",
		CreatorID:    1,
		FilterTypes:  []model.FilterType{model.FilterLive},
	})

	disp := &fakeDispatcher{}
	newTestScheduler(store, platform, disp).checkAll(context.Background())

	if diff := cmp.Diff(int32(0), platform.liveCalls.Load()); diff != "" {
		t.Errorf("live info requested for muted live (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, len(disp.messages())); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
}

func TestSchedulerUnsubscribedDuringDispatch(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3")}}
	subscribe(t, store, model.Subscription{
		SubscriberID:   "s",
		CreatorID:      1,
		LastSeenItemID: "2",
		FilterTypes:    []model.FilterType{model.FilterLive},
	})

	disp := &fakeDispatcher{before: func() {
		_ = store.Delete(context.Background(), model.Key{SubscriberID: "s", CreatorID: 1})
	}}
	newTestScheduler(store, platform, disp).checkAll(context.Background())

	_, err := store.Get(context.Background(), model.Key{SubscriberID: "s", CreatorID: 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected subscription to stay deleted, got err=%v", err)
	}
}

func TestSchedulerConcurrentSubscriptions(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	for uid := int64(1); uid <= 6; uid++ {
		platform.pages[uid] = &model.FeedPage{Items: []model.FeedItem{video("10")}}
		subscribe(t, store, model.Subscription{
			SubscriberID: "s",
			CreatorID:    uid,
			FilterTypes:  []model.FilterType{model.FilterLive},
		})
	}

	disp := &fakeDispatcher{}
	sched := newTestScheduler(store, platform, disp)
	sched.SetConcurrency(3)
	sched.checkAll(context.Background())

	if diff := cmp.Diff(6, len(disp.messages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
	for uid := int64(1); uid <= 6; uid++ {
		if diff := cmp.Diff("10", lastSeen(t, store, "s", uid).LastSeenItemID); diff != "" {
			t.Errorf("creator %d cursor mismatch (-want +got):\n%s", uid, diff)
		}
	}
}

func TestSchedulerNoCredentialSkipsCycle(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.noCred = true
	subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 1})

	newTestScheduler(store, platform, &fakeDispatcher{}).checkAll(context.Background())

	if diff := cmp.Diff(int32(0), platform.feedCalls.Load()); diff != "" {
		t.Errorf("feed fetched without credential (-want +got):\n%s", diff)
	}
}

func TestSchedulerCancelledContext(t *testing.T) {
	store := newTestStore(t)
	platform := newFakePlatform()
	platform.pages[1] = &model.FeedPage{Items: []model.FeedItem{video("3")}}
	subscribe(t, store, model.Subscription{SubscriberID: "s", CreatorID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	disp := &fakeDispatcher{}
	newTestScheduler(store, platform, disp).checkAll(ctx)

	if diff := cmp.Diff(0, len(disp.messages())); diff != "" {
		t.Errorf("expected no messages when context cancelled (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	sched := newTestScheduler(store, newFakePlatform(), &fakeDispatcher{})
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
