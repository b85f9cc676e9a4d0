package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
)

const notificationColumns = `notification_id, user_id, type, related_id, title, body, link_url, created_at, is_read`

// InsertNotification appends a notification. The database assigns the id
// and created_at, both of which are written back into n.
func (q queries) InsertNotification(ctx context.Context, n *model.Notification) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, related_id, title, body, link_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING notification_id, created_at`,
		n.UserID, n.Type, nullInt64Ptr(n.RelatedID), n.Title, n.Body, nullString(n.LinkURL),
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotificationsAfter returns up to limit notifications strictly after
// cursor in (created_at, notification_id) order.
func (q queries) ListNotificationsAfter(ctx context.Context, cursor model.NotificationCursor, limit int) ([]*model.Notification, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE (created_at, notification_id) > ($1, $2)
		ORDER BY created_at, notification_id
		LIMIT $3`,
		cursor.CreatedAt, cursor.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// HasNotificationToday reports whether a notification with the same user,
// type and related id was created on now's calendar day.
func (q queries) HasNotificationToday(ctx context.Context, userID, typ string, relatedID int64, now time.Time) (bool, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND related_id = $3
			  AND created_at >= $4 AND created_at < $5
		)`,
		userID, typ, relatedID, start, start.AddDate(0, 0, 1),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return exists, nil
}
