// Package jobs holds the periodic activity detectors. Each job queries one
// activity table for a recent window and feeds what it finds into the badge
// engine. Jobs keep no state between runs.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/scheduler"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// Job names as registered with the scheduler.
const (
	NameContestPosts    = "new-contest-posts"
	NameRecommendations = "recipe-recommendations"
	NameCookedRecipes   = "cooked-recipes"
	NameFridgeItems     = "new-fridge-items"
	NameGoalProgress    = "goal-progress"
	NamePopularPosts    = "popular-posts"
)

// DefaultLikeThreshold is the like count at which a post becomes popular.
const DefaultLikeThreshold = 50

// Engine is the part of the badge engine the jobs drive.
type Engine interface {
	DispatchWith(ctx context.Context, uow store.Store, ev model.ActivityEvent) ([]*engine.Grant, error)
	AdvanceBadge(ctx context.Context, uow store.Store, userID string, badgeID int64, increment int64) (*engine.Grant, error)
	Announce(ctx context.Context, grants ...*engine.Grant)
}

// Deps are shared by every job.
type Deps struct {
	Store  store.Store
	Engine Engine
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// base carries the deps and detection window of one job.
type base struct {
	name   string
	window time.Duration
	store  store.Store
	engine Engine
	logger *slog.Logger
	now    func() time.Time
}

func newBase(name string, window time.Duration, d Deps) base {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return base{
		name:   name,
		window: window,
		store:  d.Store,
		engine: d.Engine,
		logger: d.Logger.With("job", name),
		now:    now,
	}
}

func (b base) Name() string { return b.name }

func (b base) since() time.Time {
	return b.now().Add(-b.window)
}

// dispatch routes one event in its own transaction on conn. Failures are
// logged and swallowed so one user cannot stall the batch.
func (b base) dispatch(ctx context.Context, conn store.Store, ev model.ActivityEvent) {
	grants, err := b.engine.DispatchWith(ctx, conn, ev)
	if err != nil {
		b.logger.Error("dispatch failed", "user_id", ev.UserID, "event_type", ev.Type, "err", err)
		return
	}
	b.engine.Announce(ctx, grants...)
}

// Standard builds the six detection jobs with their default intervals and
// a window equal to each interval.
func Standard(d Deps, check, goal, popular time.Duration, likeThreshold int64) []Scheduled {
	return []Scheduled{
		{Job: NewContestPosts(d, check), Interval: check},
		{Job: NewRecommendations(d, check), Interval: check},
		{Job: NewCookedRecipes(d), Interval: check},
		{Job: NewFridgeItems(d, check), Interval: check},
		{Job: NewGoalProgress(d), Interval: goal},
		{Job: NewPopularPosts(d, popular, likeThreshold), Interval: popular},
	}
}

// Scheduled pairs a job with its interval.
type Scheduled struct {
	Job      scheduler.Job
	Interval time.Duration
}
