package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
	"github.com/alfredjeanlab/laurel/internal/store/storetest"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

const window = 10 * time.Second

type fixture struct {
	store  *storetest.Store
	engine *engine.Engine
	pub    *events.MemoryPublisher
	deps   Deps
}

func newFixture(t *testing.T, badges ...model.BadgeDefinition) *fixture {
	t.Helper()
	s := storetest.New()
	s.Now = func() time.Time { return now }
	for _, b := range badges {
		s.AddBadge(b)
	}
	pub := &events.MemoryPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(s, pub, logger)
	return &fixture{
		store:  s,
		engine: e,
		pub:    pub,
		deps:   Deps{Store: s, Engine: e, Logger: logger, Now: func() time.Time { return now }},
	}
}

func badge(id int64, category string, target int64) model.BadgeDefinition {
	return model.BadgeDefinition{ID: id, Category: category, TargetValue: target, DisplayName: category}
}

func progressOf(t *testing.T, s *storetest.Store, userID string, badgeID int64) *model.ProgressRecord {
	t.Helper()
	rec, err := s.GetProgress(context.Background(), userID, badgeID)
	require.NoError(t, err)
	return rec
}

func TestContestPostsWindow(t *testing.T) {
	f := newFixture(t, badge(1, model.CategoryContest, 1))
	f.store.AddPost(storetest.Post{UserID: "u1", CreatedAt: now.Add(-5 * time.Second)})
	f.store.AddPost(storetest.Post{UserID: "u1", CreatedAt: now.Add(-2 * time.Second)})
	f.store.AddPost(storetest.Post{UserID: "u2", CreatedAt: now.Add(-30 * time.Second)})

	require.NoError(t, NewContestPosts(f.deps, window).Run(context.Background()))

	assert.Equal(t, int64(1), progressOf(t, f.store, "u1", 1).CurrentValue, "distinct authors dispatch once")
	assert.Len(t, f.store.AwardsFor("u1", 1), 1)
	assert.Empty(t, f.store.AwardsFor("u2", 1))
	assert.Len(t, f.pub.Topic(events.TopicBadgeAwarded), 1)
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t, badge(2, model.CategoryRecipe, 2))
	f.store.AddRecommendation("u1", now.Add(-time.Second))
	f.store.AddRecommendation("u1", now.Add(-3*time.Second))

	job := NewRecommendations(f.deps, window)
	assert.Equal(t, NameRecommendations, job.Name())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, int64(1), progressOf(t, f.store, "u1", 2).CurrentValue)
	assert.Empty(t, f.store.AwardsFor("u1", 2))
}

func TestFridgeItemsIncrementByCount(t *testing.T) {
	f := newFixture(t, badge(3, model.CategoryFridge, 3))
	for range 3 {
		f.store.AddFridgeItem("u1", now.Add(-time.Second))
	}
	f.store.AddFridgeItem("u1", now.Add(-time.Minute))

	require.NoError(t, NewFridgeItems(f.deps, window).Run(context.Background()))

	rec := progressOf(t, f.store, "u1", 3)
	assert.Equal(t, int64(3), rec.CurrentValue)
	assert.True(t, rec.Completed)
	assert.Len(t, f.store.AwardsFor("u1", 3), 1)
}

func TestCookedRecipesReconcilesDelta(t *testing.T) {
	f := newFixture(t, badge(4, model.CategoryCooked, 3), badge(5, model.CategoryCooked, 5))
	ctx := context.Background()
	job := NewCookedRecipes(f.deps)

	for range 3 {
		f.store.AddCooked("u1", now.Add(-time.Hour))
	}
	require.NoError(t, job.Run(ctx))
	assert.True(t, progressOf(t, f.store, "u1", 4).Completed)
	assert.Equal(t, int64(3), progressOf(t, f.store, "u1", 5).CurrentValue)
	assert.Len(t, f.store.AwardsFor("u1", 4), 1)

	// No new actions: nothing moves.
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, int64(3), progressOf(t, f.store, "u1", 5).CurrentValue)

	for range 2 {
		f.store.AddCooked("u1", now)
	}
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, int64(3), progressOf(t, f.store, "u1", 4).CurrentValue, "completed counter stays frozen")
	assert.True(t, progressOf(t, f.store, "u1", 5).Completed)
	assert.Len(t, f.store.AwardsFor("u1", 4), 1)
	assert.Len(t, f.store.AwardsFor("u1", 5), 1)
}

func TestCookedRecipesWithoutBadges(t *testing.T) {
	f := newFixture(t)
	f.store.AddCooked("u1", now)
	require.NoError(t, NewCookedRecipes(f.deps).Run(context.Background()))
	assert.Empty(t, f.store.Notifications())
}

func TestGoalProgressSeedsThenDispatches(t *testing.T) {
	f := newFixture(t, model.BadgeDefinition{ID: 6, Category: model.CategoryGoal, TargetValue: 2, DisplayName: "Goal Getter"})
	ctx := context.Background()
	job := NewGoalProgress(f.deps)

	f.store.AddCooked("u1", now)
	f.store.AddCooked("u1", now)
	require.NoError(t, job.Run(ctx))

	mark, ok := f.store.Watermark("u1")
	require.True(t, ok)
	assert.Equal(t, int64(2), mark)
	_, err := f.store.GetProgress(ctx, "u1", 6)
	assert.Error(t, err, "first sighting must not dispatch")

	f.store.AddCooked("u1", now)
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, int64(1), progressOf(t, f.store, "u1", 6).CurrentValue)
	mark, _ = f.store.Watermark("u1")
	assert.Equal(t, int64(3), mark)

	// Unchanged total: no dispatch.
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, int64(1), progressOf(t, f.store, "u1", 6).CurrentValue)
}

func TestPopularPostsTriggerOnce(t *testing.T) {
	f := newFixture(t, badge(7, model.CategoryLikes, 1))
	ctx := context.Background()
	job := NewPopularPosts(f.deps, 20*time.Second, 0)

	hot := f.store.AddPost(storetest.Post{UserID: "author", LikeCount: 59, CreatedAt: now.Add(-time.Hour)})
	f.store.AddLike(hot, now.Add(-time.Second))
	lukewarm := f.store.AddPost(storetest.Post{UserID: "other", LikeCount: 39, CreatedAt: now.Add(-time.Hour)})
	f.store.AddLike(lukewarm, now.Add(-time.Second))
	stale := f.store.AddPost(storetest.Post{UserID: "stale", LikeCount: 99, CreatedAt: now.Add(-time.Hour)})
	f.store.AddLike(stale, now.Add(-time.Hour))

	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	assert.Equal(t, []int64{hot}, f.store.PopularPosts())
	assert.Len(t, f.store.AwardsFor("author", 7), 1)
	assert.Equal(t, int64(1), progressOf(t, f.store, "author", 7).CurrentValue)
	assert.Empty(t, f.store.AwardsFor("other", 7))
	assert.Empty(t, f.store.AwardsFor("stale", 7))
}

func TestPopularPostsRollsBackFlagOnDispatchFailure(t *testing.T) {
	f := newFixture(t, badge(7, model.CategoryLikes, 1))
	hot := f.store.AddPost(storetest.Post{UserID: "author", LikeCount: 50, CreatedAt: now})
	f.store.AddLike(hot, now)
	f.store.Fail("InsertAward", errors.New("constraint"))

	require.NoError(t, NewPopularPosts(f.deps, window, 50).Run(context.Background()))
	assert.Empty(t, f.store.PopularPosts(), "flag commits only with the dispatch")

	f.store.Fail("InsertAward", nil)
	require.NoError(t, NewPopularPosts(f.deps, window, 50).Run(context.Background()))
	assert.Equal(t, []int64{hot}, f.store.PopularPosts())
}

func TestDetectionQueryFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.store.Fail("RecentPostAuthors", boom)

	err := NewContestPosts(f.deps, window).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

type flakyEngine struct {
	mu       sync.Mutex
	failFor  string
	users    []string
	announce int
}

func (e *flakyEngine) DispatchWith(ctx context.Context, uow store.Store, ev model.ActivityEvent) ([]*engine.Grant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users = append(e.users, ev.UserID)
	if ev.UserID == e.failFor {
		return nil, errors.New("deadlock detected")
	}
	return []*engine.Grant{{}}, nil
}

func (e *flakyEngine) AdvanceBadge(ctx context.Context, uow store.Store, userID string, badgeID int64, increment int64) (*engine.Grant, error) {
	return nil, nil
}

func (e *flakyEngine) Announce(ctx context.Context, grants ...*engine.Grant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.announce += len(grants)
}

func TestPerUserFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(t)
	eng := &flakyEngine{failFor: "u1"}
	f.deps.Engine = eng
	for _, u := range []string{"u1", "u2", "u3"} {
		f.store.AddPost(storetest.Post{UserID: u, CreatedAt: now})
	}

	require.NoError(t, NewContestPosts(f.deps, window).Run(context.Background()))
	assert.Equal(t, []string{"u1", "u2", "u3"}, eng.users)
	assert.Equal(t, 2, eng.announce)
}

func TestStandardJobs(t *testing.T) {
	f := newFixture(t)
	scheduled := Standard(f.deps, 10*time.Second, 15*time.Second, 20*time.Second, 50)

	names := make(map[string]time.Duration)
	for _, s := range scheduled {
		names[s.Job.Name()] = s.Interval
	}
	assert.Equal(t, map[string]time.Duration{
		NameContestPosts:    10 * time.Second,
		NameRecommendations: 10 * time.Second,
		NameCookedRecipes:   10 * time.Second,
		NameFridgeItems:     10 * time.Second,
		NameGoalProgress:    15 * time.Second,
		NamePopularPosts:    20 * time.Second,
	}, names)
}
