package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// JobName is the scheduler name of the aggregator.
const JobName = "contest-ranking"

// ErrContestOpen is returned by Aggregate for a contest that has not ended.
var ErrContestOpen = errors.New("contest has not ended")

// Granter grants badges inside a caller's transaction.
type Granter interface {
	GrantWith(ctx context.Context, uow store.Store, userID string, badgeID int64, contestID *int64) (*engine.Grant, error)
	Announce(ctx context.Context, grants ...*engine.Grant)
}

// Archiver stores a copy of final results.
type Archiver interface {
	Archive(ctx context.Context, contestID int64, results []model.ContestResult) error
}

// Aggregator ranks every ended contest exactly once.
type Aggregator struct {
	store     store.Store
	granter   Granter
	publisher events.Publisher
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
}

// NewAggregator returns an aggregator. archiver may be nil.
func NewAggregator(s store.Store, g Granter, pub events.Publisher, archiver Archiver, logger *slog.Logger) *Aggregator {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Aggregator{
		store:     s,
		granter:   g,
		publisher: pub,
		archiver:  archiver,
		logger:    logger.With("job", JobName),
		now:       time.Now,
	}
}

func (a *Aggregator) Name() string { return JobName }

// Run aggregates every pending contest. Only the pending-contest query
// error is returned; a failing contest is logged and retried next run.
func (a *Aggregator) Run(ctx context.Context) error {
	pending, err := a.store.PendingContests(ctx, a.now())
	if err != nil {
		return fmt.Errorf("list pending contests: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	a.logger.Info("aggregating finished contests", "contests", len(pending))

	for _, id := range pending {
		if _, err := a.Aggregate(ctx, id); err != nil {
			a.logger.Error("aggregate contest", "event_id", id, "err", err)
		}
	}
	return nil
}

// Aggregate ranks one contest and grants its rank badges in a single
// transaction. It returns the persisted results, or nil when the contest was
// already aggregated or has no entries yet. Open contests are refused with
// ErrContestOpen.
func (a *Aggregator) Aggregate(ctx context.Context, contestID int64) ([]model.ContestResult, error) {
	var (
		results []model.ContestResult
		grants  []*engine.Grant
	)
	err := a.store.RunInTransaction(ctx, func(tx store.Store) error {
		results, grants = nil, nil

		if err := tx.LockContest(ctx, contestID); err != nil {
			return err
		}
		ended, err := tx.ContestEnded(ctx, contestID, a.now())
		if err != nil {
			return err
		}
		if !ended {
			return ErrContestOpen
		}
		done, err := tx.ContestHasResults(ctx, contestID)
		if err != nil || done {
			return err
		}

		entries, err := tx.ContestEntries(ctx, contestID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		results = Rank(contestID, entries, Podium)
		if err := tx.InsertContestResults(ctx, results); err != nil {
			return err
		}

		badges, err := tx.ListBadgesByCategory(ctx, model.CategoryRanks)
		if err != nil {
			return fmt.Errorf("list rank badges: %w", err)
		}
		id := contestID
		for _, r := range results {
			for _, b := range badges {
				if int64(r.Rank) > b.TargetValue {
					continue
				}
				g, err := a.granter.GrantWith(ctx, tx, r.UserID, b.ID, &id)
				if err != nil {
					return err
				}
				if g != nil {
					grants = append(grants, g)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate contest %d: %w", contestID, err)
	}
	if results == nil {
		return nil, nil
	}

	a.logger.Info("contest ranked", "event_id", contestID, "places", len(results), "badges", len(grants))
	a.granter.Announce(ctx, grants...)
	if err := a.publisher.Publish(ctx, events.TopicContestRanked, events.ContestRanked{ContestID: contestID, Results: results}); err != nil {
		a.logger.Warn("publish contest ranking", "event_id", contestID, "err", err)
	}
	if a.archiver != nil {
		if err := a.archiver.Archive(ctx, contestID, results); err != nil {
			a.logger.Warn("archive contest ranking", "event_id", contestID, "err", err)
		}
	}
	return results, nil
}
