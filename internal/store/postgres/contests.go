package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// contestLockSpace namespaces contest advisory locks away from user badge locks.
const contestLockSpace = "laurel.contest"

// PendingContests returns ended contests that have no result rows yet,
// oldest first.
func (q queries) PendingContests(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.event_id FROM contests c
		WHERE c.ends_at < $1
		  AND NOT EXISTS (SELECT 1 FROM contest_results r WHERE r.event_id = c.event_id)
		ORDER BY c.ends_at, c.event_id`, now)
	if err != nil {
		return nil, fmt.Errorf("pending contests: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contest id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q queries) LockContest(ctx context.Context, contestID int64) error {
	if _, err := q.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::bigint, 0))`, contestLockSpace, contestID); err != nil {
		return fmt.Errorf("lock contest %d: %w", contestID, err)
	}
	return nil
}

// ContestEnded reports whether the contest's end time is before now. It
// returns sql.ErrNoRows for an unknown contest.
func (q queries) ContestEnded(ctx context.Context, contestID int64, now time.Time) (bool, error) {
	var ended bool
	err := q.db.QueryRowContext(ctx,
		`SELECT ends_at < $2 FROM contests WHERE event_id = $1`, contestID, now).Scan(&ended)
	if err != nil {
		return false, fmt.Errorf("contest %d end time: %w", contestID, err)
	}
	return ended, nil
}

func (q queries) ContestHasResults(ctx context.Context, contestID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contest_results WHERE event_id = $1)`, contestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check contest results: %w", err)
	}
	return exists, nil
}

func (q queries) ContestEntries(ctx context.Context, contestID int64) ([]model.ContestEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT content_id, user_id, like_count, created_at
		FROM posts WHERE event_id = $1`, contestID)
	if err != nil {
		return nil, fmt.Errorf("contest entries: %w", err)
	}
	defer rows.Close()

	var out []model.ContestEntry
	for rows.Next() {
		var e model.ContestEntry
		if err := rows.Scan(&e.ContentID, &e.UserID, &e.LikeCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contest entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) InsertContestResults(ctx context.Context, results []model.ContestResult) error {
	for _, r := range results {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO contest_results (event_id, content_id, user_id, rank, like_count)
			VALUES ($1, $2, $3, $4, $5)`,
			r.ContestID, r.ContentID, r.UserID, r.Rank, r.LikeCount)
		if err != nil {
			return fmt.Errorf("insert contest result %d/%d: %w", r.ContestID, r.Rank, err)
		}
	}
	return nil
}

func (q queries) ListContestResults(ctx context.Context, contestID int64) ([]model.ContestResult, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT event_id, content_id, user_id, rank, like_count
		FROM contest_results WHERE event_id = $1 ORDER BY rank`, contestID)
	if err != nil {
		return nil, fmt.Errorf("list contest results: %w", err)
	}
	defer rows.Close()

	var out []model.ContestResult
	for rows.Next() {
		var r model.ContestResult
		if err := rows.Scan(&r.ContestID, &r.ContentID, &r.UserID, &r.Rank, &r.LikeCount); err != nil {
			return nil, fmt.Errorf("scan contest result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
