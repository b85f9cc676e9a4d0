package contest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store/storetest"
)

var t0 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func entry(id int64, likes int64, offset time.Duration) model.ContestEntry {
	return model.ContestEntry{ContentID: id, UserID: "u" + string(rune('0'+id)), LikeCount: likes, CreatedAt: t0.Add(offset)}
}

func contentIDs(results []model.ContestResult) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ContentID
	}
	return ids
}

func TestRankTieBreaksByCreationTime(t *testing.T) {
	entries := []model.ContestEntry{
		entry(1, 10, 1*time.Minute),
		entry(2, 10, 2*time.Minute),
		entry(3, 7, 3*time.Minute),
		entry(4, 10, 4*time.Minute),
	}
	results := Rank(9, entries, Podium)

	assert.Equal(t, []int64{1, 2, 4, 3}, contentIDs(results))
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, int64(9), r.ContestID)
	}
}

func TestRankTieBreaksByContentID(t *testing.T) {
	entries := []model.ContestEntry{entry(5, 3, 0), entry(2, 3, 0)}
	assert.Equal(t, []int64{2, 5}, contentIDs(Rank(1, entries, Podium)))
}

func TestRankKeepsPodiumOnly(t *testing.T) {
	var entries []model.ContestEntry
	for i := int64(1); i <= 8; i++ {
		entries = append(entries, entry(i, i, 0))
	}
	results := Rank(1, entries, Podium)
	assert.Equal(t, []int64{8, 7, 6, 5, 4}, contentIDs(results))
}

type memArchiver struct {
	archived map[int64][]model.ContestResult
	err      error
}

func (m *memArchiver) Archive(_ context.Context, id int64, results []model.ContestResult) error {
	if m.err != nil {
		return m.err
	}
	if m.archived == nil {
		m.archived = make(map[int64][]model.ContestResult)
	}
	m.archived[id] = results
	return nil
}

type fixture struct {
	store    *storetest.Store
	pub      *events.MemoryPublisher
	archiver *memArchiver
	agg      *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New()
	s.AddBadge(model.BadgeDefinition{ID: 100, Category: model.CategoryRanks, TargetValue: 1, Repeatable: true, DisplayName: "Champion"})
	s.AddBadge(model.BadgeDefinition{ID: 101, Category: model.CategoryRanks, TargetValue: 3, Repeatable: true, DisplayName: "Podium"})
	pub := &events.MemoryPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	arch := &memArchiver{}
	agg := NewAggregator(s, engine.New(s, pub, logger), pub, arch, logger)
	agg.now = func() time.Time { return t0.Add(48 * time.Hour) }
	return &fixture{store: s, pub: pub, archiver: arch, agg: agg}
}

func (f *fixture) addContest(id int64, ends time.Time, likes ...int64) {
	f.store.AddContest(storetest.Contest{ID: id, Title: "Spring bake-off", EndsAt: ends})
	cid := id
	for i, l := range likes {
		f.store.AddPost(storetest.Post{
			UserID:    "user" + string(rune('A'+i)),
			ContestID: &cid,
			LikeCount: l,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestAggregateRanksAndGrantsBadges(t *testing.T) {
	f := newFixture(t)
	f.addContest(1, t0.Add(24*time.Hour), 10, 10, 7, 10, 1, 0)

	require.NoError(t, f.agg.Run(context.Background()))

	results, err := f.store.ListContestResults(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, results, Podium)
	assert.Equal(t, []string{"userA", "userB", "userD", "userC", "userE"}, []string{
		results[0].UserID, results[1].UserID, results[2].UserID, results[3].UserID, results[4].UserID,
	})

	// Rank 1 earns both badges; ranks 2 and 3 earn Podium only.
	assert.Len(t, f.store.AwardsFor("userA", 100), 1)
	assert.Len(t, f.store.AwardsFor("userA", 101), 1)
	assert.Empty(t, f.store.AwardsFor("userB", 100))
	assert.Len(t, f.store.AwardsFor("userB", 101), 1)
	assert.Len(t, f.store.AwardsFor("userD", 101), 1)
	assert.Empty(t, f.store.AwardsFor("userC", 101))

	award := f.store.AwardsFor("userA", 100)[0]
	require.NotNil(t, award.ContestID)
	assert.Equal(t, int64(1), *award.ContestID)

	assert.Len(t, f.pub.Topic(events.TopicContestRanked), 1)
	assert.Len(t, f.pub.Topic(events.TopicBadgeAwarded), 4)
	assert.Len(t, f.archiver.archived[1], Podium)
}

func TestAggregateRunsOncePerContest(t *testing.T) {
	f := newFixture(t)
	f.addContest(1, t0.Add(24*time.Hour), 5, 3)
	ctx := context.Background()

	require.NoError(t, f.agg.Run(ctx))
	require.NoError(t, f.agg.Run(ctx))

	results, err := f.agg.Aggregate(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, results, "already aggregated")

	assert.Len(t, f.store.AwardsFor("userA", 100), 1)
	assert.Len(t, f.pub.Topic(events.TopicContestRanked), 1)
}

func TestAggregateSkipsOpenAndEmptyContests(t *testing.T) {
	f := newFixture(t)
	f.addContest(1, t0.Add(72*time.Hour), 5)
	f.addContest(2, t0.Add(24*time.Hour))
	ctx := context.Background()

	require.NoError(t, f.agg.Run(ctx))

	pending, err := f.store.PendingContests(ctx, f.agg.now())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, pending, "an empty ended contest stays pending")
	assert.Empty(t, f.pub.Events())
}

func TestAggregateRefusesOpenContest(t *testing.T) {
	f := newFixture(t)
	f.addContest(1, f.agg.now().Add(24*time.Hour), 3)
	ctx := context.Background()

	results, err := f.agg.Aggregate(ctx, 1)
	require.ErrorIs(t, err, ErrContestOpen)
	assert.Nil(t, results)
	assert.Empty(t, f.store.AwardsFor("userA", 100))

	// A late post still counts once the contest has ended.
	cid := int64(1)
	f.store.AddPost(storetest.Post{UserID: "late", ContestID: &cid, LikeCount: 99, CreatedAt: f.agg.now()})
	f.agg.now = func() time.Time { return t0.Add(96 * time.Hour) }

	results, err = f.agg.Aggregate(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "late", results[0].UserID)
	assert.Len(t, f.store.AwardsFor("late", 100), 1)
}

func TestAggregateUnknownContest(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Aggregate(context.Background(), 42)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAggregateFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addContest(1, t0.Add(24*time.Hour), 5, 3)
	f.store.Fail("InsertNotification", errors.New("disk full"))

	require.NoError(t, f.agg.Run(context.Background()), "per-contest failures are logged")

	results, err := f.store.ListContestResults(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, f.store.AwardsFor("userA", 100))
}

func TestArchiveFailureDoesNotFailAggregation(t *testing.T) {
	f := newFixture(t)
	f.archiver.err = errors.New("bucket missing")
	f.addContest(1, t0.Add(24*time.Hour), 5)

	results, err := f.agg.Aggregate(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPendingQueryFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("timeout")
	f.store.Fail("PendingContests", boom)
	assert.ErrorIs(t, f.agg.Run(context.Background()), boom)
}
