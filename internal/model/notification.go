package model

import "time"

// Notification types recorded by laurel.
const (
	NotificationGeneric    = "generic"
	NotificationBadge      = "badge"
	NotificationSupplement = "supplement"
)

// Notification is an append-only message for one user.
type Notification struct {
	ID        int64     `json:"notification_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	RelatedID *int64    `json:"related_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	LinkURL   string    `json:"link_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"is_read"`
}

// NotificationCursor is a position in the notification stream ordered by
// (created_at, notification_id). The zero cursor precedes every row.
type NotificationCursor struct {
	CreatedAt time.Time
	ID        int64
}

// IsZero reports whether the cursor is unconstrained.
func (c NotificationCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == 0
}

// After reports whether c is strictly past other.
func (c NotificationCursor) After(other NotificationCursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID > other.ID
	}
	return c.CreatedAt.After(other.CreatedAt)
}

// CursorOf returns the cursor positioned at n.
func CursorOf(n *Notification) NotificationCursor {
	return NotificationCursor{CreatedAt: n.CreatedAt, ID: n.ID}
}
