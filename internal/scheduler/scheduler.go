// Package scheduler drives the periodic poll of every subscription.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"bili_bot/internal/classifier"
	"bili_bot/internal/live"
	"bili_bot/internal/metrics"
	"bili_bot/internal/model"
	"bili_bot/internal/storage"
)

// Platform supplies feed pages and live state.
type Platform interface {
	LatestFeed(ctx context.Context, creatorID int64) (*model.FeedPage, error)
	LiveInfo(ctx context.Context, creatorID int64) (*model.LiveInfo, error)
}

// credentialed is implemented by platforms that can run without a login.
type credentialed interface {
	HasCredential() bool
}

// Dispatcher delivers updates to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, subscriberID string, p *model.RenderPayload) error
	DispatchLive(ctx context.Context, subscriberID string, info *model.LiveInfo, t model.Transition) error
}

type stage string

const (
	stageFetching        stage = "fetching"
	stageClassifying     stage = "classifying"
	stageDispatching     stage = "dispatching"
	stageCommitting      stage = "committing"
	stageLiveFetching    stage = "live_fetching"
	stageLiveDispatching stage = "live_dispatching"
	stageLiveCommitting  stage = "live_committing"
)

// Scheduler periodically checks every subscription for new dynamics and
// live state changes.
type Scheduler struct {
	store      storage.Storage
	platform   Platform
	classifier *classifier.Classifier
	dispatcher Dispatcher
	log        *slog.Logger

	tick            time.Duration
	concurrency     int
	callTimeout     time.Duration
	dispatchTimeout time.Duration
}

// New creates a Scheduler with a 20-minute interval and sequential polling.
func New(store storage.Storage, platform Platform, cls *classifier.Classifier, dispatcher Dispatcher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:           store,
		platform:        platform,
		classifier:      cls,
		dispatcher:      dispatcher,
		log:             log,
		tick:            20 * time.Minute,
		concurrency:     1,
		callTimeout:     15 * time.Second,
		dispatchTimeout: 5 * time.Minute,
	}
}

// SetTickInterval overrides the poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetConcurrency sets how many subscriptions are checked at once.
func (s *Scheduler) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.concurrency = n
}

// SetTimeouts bounds platform calls and a whole dispatch (render plus send).
func (s *Scheduler) SetTimeouts(call, dispatch time.Duration) {
	s.callTimeout = call
	s.dispatchTimeout = dispatch
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	if c, ok := s.platform.(credentialed); ok && !c.HasCredential() {
		s.log.Warn("no bilibili credential and no alternate feed source, skipping poll cycle")
		return
	}

	start := time.Now()
	subs, err := s.store.ListAll(ctx)
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.processSubscription(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	metrics.PollCycles.Inc()
	metrics.PollDuration.Observe(time.Since(start).Seconds())
	s.log.Debug("poll cycle finished", "subscriptions", len(subs), "duration", time.Since(start))
}

type job struct {
	sub   model.Subscription
	stage stage
}

// processSubscription runs one subscription's cycle. Work already started
// finishes even if ctx is cancelled; every call is bounded by a timeout.
func (s *Scheduler) processSubscription(parent context.Context, sub model.Subscription) {
	ctx := context.WithoutCancel(parent)
	j := &job{sub: sub}

	defer func() {
		if r := recover(); r != nil {
			s.fail(j, fmt.Errorf("panic: %v", r))
			s.log.Debug("panic stack", "stack", string(debug.Stack()))
		}
	}()

	s.log.Debug("checking subscription", "subscriber", sub.SubscriberID, "creator_id", sub.CreatorID)

	if err := s.checkDynamics(ctx, j); err != nil {
		s.fail(j, err)
		return
	}
	if sub.HasFilterType(model.FilterLive) {
		return
	}
	if err := s.checkLive(ctx, j); err != nil {
		s.fail(j, err)
	}
}

func (s *Scheduler) checkDynamics(ctx context.Context, j *job) error {
	j.stage = stageFetching
	fctx, cancel := withTimeout(ctx, s.callTimeout)
	page, err := s.platform.LatestFeed(fctx, j.sub.CreatorID)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}

	j.stage = stageClassifying
	d := s.classifier.Classify(page, &j.sub)
	if !d.Advanced() {
		return nil
	}

	if d.Payload != nil {
		j.stage = stageDispatching
		dctx, cancel := withTimeout(ctx, s.dispatchTimeout)
		err := s.dispatcher.Dispatch(dctx, j.sub.SubscriberID, d.Payload)
		cancel()
		if err != nil {
			return fmt.Errorf("dispatch item %s: %w", d.Cursor, err)
		}
		s.log.Info("sent dynamic", "subscriber", j.sub.SubscriberID, "creator_id", j.sub.CreatorID, "item_id", d.Cursor)
	} else {
		metrics.ItemsFiltered.Inc()
	}

	j.stage = stageCommitting
	return s.commit(ctx, j, func(rec *model.Subscription) error {
		rec.LastSeenItemID = d.Cursor
		return nil
	})
}

func (s *Scheduler) checkLive(ctx context.Context, j *job) error {
	j.stage = stageLiveFetching
	fctx, cancel := withTimeout(ctx, s.callTimeout)
	info, err := s.platform.LiveInfo(fctx, j.sub.CreatorID)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch live info: %w", err)
	}

	tr := live.Diff(info.Live, j.sub.IsLive)
	if tr == model.TransitionNone {
		return nil
	}
	metrics.LiveTransitions.WithLabelValues(tr.String()).Inc()

	j.stage = stageLiveDispatching
	dctx, cancel := withTimeout(ctx, s.dispatchTimeout)
	err = s.dispatcher.DispatchLive(dctx, j.sub.SubscriberID, info, tr)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch live %s: %w", tr, err)
	}
	s.log.Info("sent live notice", "subscriber", j.sub.SubscriberID, "creator_id", j.sub.CreatorID, "transition", tr.String())

	j.stage = stageLiveCommitting
	return s.commit(ctx, j, func(rec *model.Subscription) error {
		rec.IsLive = live.Apply(tr, rec.IsLive)
		return nil
	})
}

// commit writes through the store's atomic update. A record deleted since
// the cycle started stays deleted.
func (s *Scheduler) commit(ctx context.Context, j *job, fn storage.UpdateFunc) error {
	cctx, cancel := withTimeout(ctx, s.callTimeout)
	defer cancel()

	err := s.store.Update(cctx, j.sub.Key(), fn)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("subscription removed before commit", "subscriber", j.sub.SubscriberID, "creator_id", j.sub.CreatorID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Scheduler) fail(j *job, err error) {
	metrics.SubscriptionErrors.WithLabelValues(string(j.stage)).Inc()
	s.log.Error("check subscription",
		"subscriber", j.sub.SubscriberID,
		"creator_id", j.sub.CreatorID,
		"stage", string(j.stage),
		"error", err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
