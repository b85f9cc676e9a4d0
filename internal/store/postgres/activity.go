package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// cookedAction is the recipe_actions.action value for "cooked".
const cookedAction = 1

func (q queries) RecentPostAuthors(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM posts WHERE created_at >= $1 ORDER BY user_id`, since)
	if err != nil {
		return nil, fmt.Errorf("recent post authors: %w", err)
	}
	return collectUserIDs(rows)
}

func (q queries) RecentRecommendationUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recipe_recommendations WHERE recommended_at >= $1 ORDER BY user_id`, since)
	if err != nil {
		return nil, fmt.Errorf("recent recommendation users: %w", err)
	}
	return collectUserIDs(rows)
}

func (q queries) CookedTotals(ctx context.Context) ([]model.UserCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) FROM recipe_actions
		WHERE action = $1
		GROUP BY user_id ORDER BY user_id`, cookedAction)
	if err != nil {
		return nil, fmt.Errorf("cooked totals: %w", err)
	}
	return collectUserCounts(rows)
}

func (q queries) RecentFridgeCounts(ctx context.Context, since time.Time) ([]model.UserCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) FROM fridge_items
		WHERE created_at >= $1
		GROUP BY user_id ORDER BY user_id`, since)
	if err != nil {
		return nil, fmt.Errorf("recent fridge counts: %w", err)
	}
	return collectUserCounts(rows)
}

func (q queries) GetGoalWatermark(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := q.db.QueryRowContext(ctx,
		`SELECT cooked_total FROM goal_watermarks WHERE user_id = $1`, userID).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (q queries) InsertGoalWatermark(ctx context.Context, userID string, value int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO goal_watermarks (user_id, cooked_total, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO NOTHING`, userID, value)
	if err != nil {
		return fmt.Errorf("insert goal watermark: %w", err)
	}
	return nil
}

// UpdateGoalWatermark raises the watermark; it never lowers it.
func (q queries) UpdateGoalWatermark(ctx context.Context, userID string, value int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE goal_watermarks
		SET cooked_total = GREATEST(cooked_total, $2), updated_at = now()
		WHERE user_id = $1`, userID, value)
	if err != nil {
		return fmt.Errorf("update goal watermark: %w", err)
	}
	return nil
}

// PopularCandidates returns unflagged posts liked since the given time whose
// like count reached threshold.
func (q queries) PopularCandidates(ctx context.Context, since time.Time, threshold int64) ([]model.PopularPost, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT p.content_id, p.user_id, p.like_count
		FROM posts p
		WHERE NOT p.is_popular
		  AND p.like_count >= $2
		  AND EXISTS (
			SELECT 1 FROM post_likes l
			WHERE l.content_id = p.content_id AND l.created_at >= $1
		  )
		ORDER BY p.content_id`, since, threshold)
	if err != nil {
		return nil, fmt.Errorf("popular candidates: %w", err)
	}
	defer rows.Close()

	var out []model.PopularPost
	for rows.Next() {
		var p model.PopularPost
		if err := rows.Scan(&p.ContentID, &p.UserID, &p.LikeCount); err != nil {
			return nil, fmt.Errorf("scan popular post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPostPopular flags the post. It reports false when another run already
// flagged it.
func (q queries) MarkPostPopular(ctx context.Context, contentID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE posts SET is_popular = true WHERE content_id = $1 AND NOT is_popular`, contentID)
	if err != nil {
		return false, fmt.Errorf("mark post popular: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark post popular: %w", err)
	}
	return n == 1, nil
}

func (q queries) DueSupplementPlans(ctx context.Context, slots []string) ([]model.SupplementPlan, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT plan_id, user_id, supplement_name, time_slot
		FROM supplement_plans
		WHERE active AND time_slot = ANY($1)
		ORDER BY plan_id`, pq.Array(slots))
	if err != nil {
		return nil, fmt.Errorf("due supplement plans: %w", err)
	}
	defer rows.Close()

	var out []model.SupplementPlan
	for rows.Next() {
		var p model.SupplementPlan
		if err := rows.Scan(&p.ID, &p.UserID, &p.SupplementName, &p.TimeSlot); err != nil {
			return nil, fmt.Errorf("scan supplement plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectUserIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectUserCounts(rows *sql.Rows) ([]model.UserCount, error) {
	defer rows.Close()
	var out []model.UserCount
	for rows.Next() {
		var c model.UserCount
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
