package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanBadge scans a row in badgeColumns order.
func scanBadge(row scannable) (*model.BadgeDefinition, error) {
	var b model.BadgeDefinition
	var description sql.NullString
	if err := row.Scan(&b.ID, &b.Category, &b.TargetValue, &b.Repeatable, &b.DisplayName, &description); err != nil {
		return nil, err
	}
	b.Description = description.String
	return &b, nil
}

// scanProgress scans a row in progressColumns order.
func scanProgress(row scannable) (*model.ProgressRecord, error) {
	var p model.ProgressRecord
	err := row.Scan(&p.ID, &p.UserID, &p.BadgeID, &p.CurrentValue, &p.TargetValue, &p.Completed, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAward(row scannable) (*model.Award, error) {
	var a model.Award
	var contestID sql.NullInt64
	err := row.Scan(&a.ID, &a.UserID, &a.BadgeID, &a.AwardedAt, &a.Active, &a.Displayed, &contestID)
	if err != nil {
		return nil, err
	}
	a.ContestID = int64Ptr(contestID)
	return &a, nil
}

// scanNotification scans a row in notificationColumns order.
func scanNotification(row scannable) (*model.Notification, error) {
	var n model.Notification
	var (
		relatedID sql.NullInt64
		linkURL   sql.NullString
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &relatedID, &n.Title, &n.Body, &linkURL, &n.CreatedAt, &n.Read)
	if err != nil {
		return nil, err
	}
	n.RelatedID = int64Ptr(relatedID)
	n.LinkURL = linkURL.String
	return &n, nil
}

// nullString converts an empty string to a NULL sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64Ptr converts a *int64 to sql.NullInt64.
func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
