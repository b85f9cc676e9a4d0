package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// ContestPosts dispatches a contest event for every user who posted within
// the window.
type ContestPosts struct{ base }

func NewContestPosts(d Deps, window time.Duration) *ContestPosts {
	return &ContestPosts{newBase(NameContestPosts, window, d)}
}

func (j *ContestPosts) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		users, err := conn.RecentPostAuthors(ctx, j.since())
		if err != nil {
			return fmt.Errorf("detect new posts: %w", err)
		}
		if len(users) > 0 {
			j.logger.Info("detected new posts", "users", len(users))
		}
		for _, u := range users {
			j.dispatch(ctx, conn, model.ActivityEvent{UserID: u, Type: model.EventContestPost})
		}
		return nil
	})
}

// Recommendations dispatches a recipe event for every user who recommended
// a recipe within the window.
type Recommendations struct{ base }

func NewRecommendations(d Deps, window time.Duration) *Recommendations {
	return &Recommendations{newBase(NameRecommendations, window, d)}
}

func (j *Recommendations) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		users, err := conn.RecentRecommendationUsers(ctx, j.since())
		if err != nil {
			return fmt.Errorf("detect recommendations: %w", err)
		}
		if len(users) > 0 {
			j.logger.Info("detected recommendations", "users", len(users))
		}
		for _, u := range users {
			j.dispatch(ctx, conn, model.ActivityEvent{UserID: u, Type: model.EventRecommendation})
		}
		return nil
	})
}

// FridgeItems dispatches a fridge event per user, incremented by the number
// of items stored within the window.
type FridgeItems struct{ base }

func NewFridgeItems(d Deps, window time.Duration) *FridgeItems {
	return &FridgeItems{newBase(NameFridgeItems, window, d)}
}

func (j *FridgeItems) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		counts, err := conn.RecentFridgeCounts(ctx, j.since())
		if err != nil {
			return fmt.Errorf("detect fridge items: %w", err)
		}
		if len(counts) > 0 {
			j.logger.Info("detected new fridge items", "users", len(counts))
		}
		for _, c := range counts {
			j.dispatch(ctx, conn, model.ActivityEvent{UserID: c.UserID, Type: model.EventFridgeAddition, Increment: c.Count})
		}
		return nil
	})
}

// CookedRecipes reconciles each cooked badge's counter with the user's total
// cooked actions, advancing by the difference. It has no window: totals are
// all-time, and the stored counter is the watermark.
type CookedRecipes struct{ base }

func NewCookedRecipes(d Deps) *CookedRecipes {
	return &CookedRecipes{newBase(NameCookedRecipes, 0, d)}
}

func (j *CookedRecipes) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		totals, err := conn.CookedTotals(ctx)
		if err != nil {
			return fmt.Errorf("detect cooked recipes: %w", err)
		}
		if len(totals) == 0 {
			return nil
		}
		badges, err := conn.ListBadgesByCategory(ctx, model.CategoryCooked)
		if err != nil {
			return fmt.Errorf("list cooked badges: %w", err)
		}
		if len(badges) == 0 {
			j.logger.Debug("no cooked badges configured")
			return nil
		}
		j.logger.Debug("evaluating cooked progress", "users", len(totals))

		for _, t := range totals {
			for _, b := range badges {
				j.reconcile(ctx, conn, t, b.ID)
			}
		}
		return nil
	})
}

func (j *CookedRecipes) reconcile(ctx context.Context, conn store.Store, total model.UserCount, badgeID int64) {
	var previous int64
	rec, err := conn.GetProgress(ctx, total.UserID, badgeID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		j.logger.Error("read cooked progress", "user_id", total.UserID, "badge_id", badgeID, "err", err)
		return
	case rec.Frozen():
		return
	default:
		previous = rec.CurrentValue
	}

	delta := total.Count - previous
	if delta <= 0 {
		return
	}
	g, err := j.engine.AdvanceBadge(ctx, conn, total.UserID, badgeID, delta)
	if err != nil {
		j.logger.Error("advance cooked badge", "user_id", total.UserID, "badge_id", badgeID, "err", err)
		return
	}
	j.engine.Announce(ctx, g)
}

// GoalProgress dispatches a goal event whenever a user's cooked total rises
// above the last total seen. The first sighting only seeds the watermark.
type GoalProgress struct{ base }

func NewGoalProgress(d Deps) *GoalProgress {
	return &GoalProgress{newBase(NameGoalProgress, 0, d)}
}

func (j *GoalProgress) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		totals, err := conn.CookedTotals(ctx)
		if err != nil {
			return fmt.Errorf("detect goal progress: %w", err)
		}
		for _, t := range totals {
			j.check(ctx, conn, t)
		}
		return nil
	})
}

func (j *GoalProgress) check(ctx context.Context, conn store.Store, t model.UserCount) {
	last, err := conn.GetGoalWatermark(ctx, t.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		if err := conn.InsertGoalWatermark(ctx, t.UserID, t.Count); err != nil {
			j.logger.Error("seed goal watermark", "user_id", t.UserID, "err", err)
		}
		return
	}
	if err != nil {
		j.logger.Error("read goal watermark", "user_id", t.UserID, "err", err)
		return
	}
	if t.Count <= last {
		return
	}

	ev := model.ActivityEvent{UserID: t.UserID, Type: model.EventGoalProgress}
	var grants []*engine.Grant
	err = conn.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		grants, err = j.engine.DispatchWith(ctx, tx, ev)
		if err != nil {
			return err
		}
		return tx.UpdateGoalWatermark(ctx, t.UserID, t.Count)
	})
	if err != nil {
		j.logger.Error("goal dispatch failed", "user_id", t.UserID, "err", err)
		return
	}
	j.engine.Announce(ctx, grants...)
}

// PopularPosts flags posts that crossed the like threshold and dispatches a
// likes event to their authors. The flag and the dispatch commit together,
// and the flag is a conditional update, so each post triggers once.
type PopularPosts struct {
	base
	threshold int64
}

func NewPopularPosts(d Deps, window time.Duration, threshold int64) *PopularPosts {
	if threshold <= 0 {
		threshold = DefaultLikeThreshold
	}
	return &PopularPosts{base: newBase(NamePopularPosts, window, d), threshold: threshold}
}

func (j *PopularPosts) Run(ctx context.Context) error {
	return j.store.WithConn(ctx, func(conn store.Store) error {
		posts, err := conn.PopularCandidates(ctx, j.since(), j.threshold)
		if err != nil {
			return fmt.Errorf("detect popular posts: %w", err)
		}
		if len(posts) > 0 {
			j.logger.Info("evaluating popular posts", "posts", len(posts))
		}
		for _, p := range posts {
			j.promote(ctx, conn, p)
		}
		return nil
	})
}

func (j *PopularPosts) promote(ctx context.Context, conn store.Store, p model.PopularPost) {
	var grants []*engine.Grant
	err := conn.RunInTransaction(ctx, func(tx store.Store) error {
		claimed, err := tx.MarkPostPopular(ctx, p.ContentID)
		if err != nil || !claimed {
			return err
		}
		grants, err = j.engine.DispatchWith(ctx, tx, model.ActivityEvent{UserID: p.UserID, Type: model.EventLikeMilestone})
		return err
	})
	if err != nil {
		j.logger.Error("promote popular post", "content_id", p.ContentID, "user_id", p.UserID, "err", err)
		return
	}
	j.engine.Announce(ctx, grants...)
}
