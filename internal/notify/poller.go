package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// Poller defaults.
const (
	DefaultInterval     = 5 * time.Second
	DefaultBatchSize    = 500
	DefaultQueryTimeout = 10 * time.Second
)

// Subscription receives newly recorded notifications. An empty UserID
// subscribes to every user. Deliver must not block for long; it is called
// from the poll loop.
type Subscription struct {
	ID      string
	UserID  string
	Deliver func(n *model.Notification) error
}

// DeliveryResult is the outcome of handing one row to one subscription.
type DeliveryResult struct {
	SubscriptionID string
	Err            error
}

// PollerConfig tunes a Poller. Zero values take the defaults.
type PollerConfig struct {
	Interval     time.Duration
	BatchSize    int
	QueryTimeout time.Duration
}

// Poller tails the notification table and fans new rows out to registered
// subscriptions. The cursor only moves forward; delivery is at least once
// per running process and best effort.
type Poller struct {
	store  store.Store
	cfg    PollerConfig
	logger *slog.Logger

	subsMu sync.RWMutex
	subs   map[string]Subscription

	cursorMu sync.Mutex
	cursor   model.NotificationCursor

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(s store.Store, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Poller{
		store:  s,
		cfg:    cfg,
		logger: logger.With("component", "notification-poller"),
		subs:   make(map[string]Subscription),
	}
}

// Subscribe registers sub, replacing any subscription with the same ID.
func (p *Poller) Subscribe(sub Subscription) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.subs[sub.ID] = sub
}

// Unsubscribe removes the subscription. Unknown ids are ignored.
func (p *Poller) Unsubscribe(id string) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	delete(p.subs, id)
}

// Subscribers returns the number of registered subscriptions.
func (p *Poller) Subscribers() int {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	return len(p.subs)
}

// Cursor returns the position of the last delivered row.
func (p *Poller) Cursor() model.NotificationCursor {
	p.cursorMu.Lock()
	defer p.cursorMu.Unlock()
	return p.cursor
}

// Start launches the poll loop. Calling Start on a running poller does
// nothing.
func (p *Poller) Start() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		p.run(ctx)
	}(p.done)
	p.logger.Info("notification poller started", "interval", p.cfg.Interval)
}

// Stop cancels the loop and waits for it to exit. The poller can be
// started again afterwards; the cursor is kept.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("notification poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll notifications", "err", err)
		}
		timer.Reset(p.cfg.Interval)
	}
}

// Poll fetches one batch after the cursor, fans every row out and advances
// the cursor to the last row. It returns the number of rows fetched.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	cursor := p.Cursor()

	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	rows, err := p.store.ListNotificationsAfter(qctx, cursor, p.cfg.BatchSize)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list notifications after %v/%d: %w", cursor.CreatedAt, cursor.ID, err)
	}

	for _, n := range rows {
		p.Fanout(n)
		next := model.CursorOf(n)
		if next.After(cursor) {
			cursor = next
		}
	}

	p.cursorMu.Lock()
	if cursor.After(p.cursor) {
		p.cursor = cursor
	}
	p.cursorMu.Unlock()
	return len(rows), nil
}

// Fanout delivers n to a snapshot of the matching subscriptions. A failing
// or panicking handler is logged and does not affect the others.
func (p *Poller) Fanout(n *model.Notification) []DeliveryResult {
	p.subsMu.RLock()
	targets := make([]Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		if s.UserID == "" || s.UserID == n.UserID {
			targets = append(targets, s)
		}
	}
	p.subsMu.RUnlock()

	results := make([]DeliveryResult, 0, len(targets))
	for _, s := range targets {
		err := deliver(s, n)
		if err != nil {
			p.logger.Warn("notification delivery failed",
				"subscription", s.ID, "user_id", n.UserID, "notification_id", n.ID, "err", err)
		}
		results = append(results, DeliveryResult{SubscriptionID: s.ID, Err: err})
	}
	return results
}

func deliver(s Subscription, n *model.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.Deliver(n)
}
