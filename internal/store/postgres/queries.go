package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// executor is the interface satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every query bound to one executor. It is embedded by each
// unit-of-work type so they share one implementation.
type queries struct {
	db executor
}

const badgeColumns = `badge_id, category, target_value, repeatable, display_name, description`

func (q queries) GetBadge(ctx context.Context, id int64) (*model.BadgeDefinition, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+badgeColumns+` FROM badges WHERE badge_id = $1`, id)
	return scanBadge(row)
}

func (q queries) ListBadgesByCategory(ctx context.Context, category string) ([]*model.BadgeDefinition, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE category = $1 ORDER BY badge_id`, category)
	if err != nil {
		return nil, fmt.Errorf("list badges by category: %w", err)
	}
	return collectBadges(rows)
}

func (q queries) ListBadges(ctx context.Context) ([]*model.BadgeDefinition, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY badge_id`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return collectBadges(rows)
}

func collectBadges(rows *sql.Rows) ([]*model.BadgeDefinition, error) {
	defer rows.Close()
	var badges []*model.BadgeDefinition
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (q queries) UpsertBadge(ctx context.Context, b *model.BadgeDefinition) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO badges (`+badgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (badge_id) DO UPDATE SET
			category = EXCLUDED.category,
			target_value = EXCLUDED.target_value,
			repeatable = EXCLUDED.repeatable,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description`,
		b.ID, b.Category, b.TargetValue, b.Repeatable, b.DisplayName, nullString(b.Description),
	)
	if err != nil {
		return fmt.Errorf("upsert badge %d: %w", b.ID, err)
	}
	return nil
}

const progressColumns = `process_id, user_id, badge_id, current_value, target_value, is_completed, updated_at`

func (q queries) GetProgress(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM badge_progress WHERE user_id = $1 AND badge_id = $2`,
		userID, badgeID)
	return scanProgress(row)
}

// GetProgressForUpdate reads the record and locks its row until the
// enclosing transaction ends.
func (q queries) GetProgressForUpdate(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM badge_progress WHERE user_id = $1 AND badge_id = $2 FOR UPDATE`,
		userID, badgeID)
	return scanProgress(row)
}

// InsertProgress creates the record unless one already exists for the
// (user, badge) pair, in which case it reports false and writes nothing.
func (q queries) InsertProgress(ctx context.Context, rec *model.ProgressRecord) (bool, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO badge_progress (user_id, badge_id, current_value, target_value, is_completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_id) DO NOTHING
		RETURNING process_id`,
		rec.UserID, rec.BadgeID, rec.CurrentValue, rec.TargetValue, rec.Completed, rec.UpdatedAt,
	).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert progress: %w", err)
	}
	return true, nil
}

func (q queries) UpdateProgress(ctx context.Context, rec *model.ProgressRecord) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE badge_progress
		SET current_value = $1, target_value = $2, is_completed = $3, updated_at = $4
		WHERE process_id = $5`,
		rec.CurrentValue, rec.TargetValue, rec.Completed, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update progress %d: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress %d: %w", rec.ID, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LockUserBadge takes a transaction-scoped advisory lock on the (user, badge)
// pair. It blocks until concurrent holders commit or roll back.
func (q queries) LockUserBadge(ctx context.Context, userID string, badgeID int64) error {
	if _, err := q.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::bigint, 0))`, userID, badgeID); err != nil {
		return fmt.Errorf("lock user badge: %w", err)
	}
	return nil
}

func (q queries) HasAward(ctx context.Context, userID string, badgeID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)`,
		userID, badgeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check award: %w", err)
	}
	return exists, nil
}

func (q queries) InsertAward(ctx context.Context, a *model.Award) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO user_badges (user_id, badge_id, awarded_at, is_active, is_displayed, event_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_badges_id`,
		a.UserID, a.BadgeID, a.AwardedAt, a.Active, a.Displayed, nullInt64Ptr(a.ContestID),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert award: %w", err)
	}
	return nil
}

func (q queries) ListAwards(ctx context.Context, userID string) ([]*model.Award, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_badges_id, user_id, badge_id, awarded_at, is_active, is_displayed, event_id
		FROM user_badges WHERE user_id = $1 ORDER BY awarded_at, user_badges_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var awards []*model.Award
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}
