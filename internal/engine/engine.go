// Package engine advances badge progress counters, grants badges, and routes
// activity events to the badges of their category.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/store"
)

var (
	// ErrUnknownBadge is returned when a badge id has no catalog entry.
	ErrUnknownBadge = errors.New("unknown badge")
	// ErrInvalidIncrement is returned for increments below 1.
	ErrInvalidIncrement = errors.New("increment must be at least 1")
)

// Badge notification content.
const (
	badgeNotificationTitle = "New badge earned!"
	badgeNotificationLink  = "/me/badges"
)

// Engine owns the progress and award state machine.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New returns an Engine writing through s and announcing awards on pub.
func New(s store.Store, pub events.Publisher, logger *slog.Logger) *Engine {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Engine{
		store:     s,
		publisher: pub,
		logger:    logger.With("component", "engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Grant is one badge granted inside a unit of work. Grants are announced with
// Announce once that unit has committed.
type Grant struct {
	Award        *model.Award
	Badge        *model.BadgeDefinition
	Notification *model.Notification
}

// Advance adds increment to the user's counter for the badge and returns the
// resulting state. A completed record is frozen: it is returned unchanged and
// nothing is written. The caller supplies the unit of work; Advance should
// run inside a transaction so the row lock holds until commit.
func (e *Engine) Advance(ctx context.Context, uow store.Store, userID string, badgeID int64, increment int64) (model.Progress, error) {
	if increment < 1 {
		return model.Progress{}, fmt.Errorf("advance %s/%d by %d: %w", userID, badgeID, increment, ErrInvalidIncrement)
	}

	badge, err := uow.GetBadge(ctx, badgeID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Progress{}, fmt.Errorf("advance %s/%d: %w", userID, badgeID, ErrUnknownBadge)
	}
	if err != nil {
		return model.Progress{}, fmt.Errorf("advance %s/%d: get badge: %w", userID, badgeID, err)
	}

	rec, err := uow.GetProgressForUpdate(ctx, userID, badgeID)
	if errors.Is(err, sql.ErrNoRows) {
		rec = &model.ProgressRecord{
			UserID:       userID,
			BadgeID:      badgeID,
			CurrentValue: increment,
			TargetValue:  badge.TargetValue,
			Completed:    increment >= badge.TargetValue,
			UpdatedAt:    e.now(),
		}
		var created bool
		created, err = uow.InsertProgress(ctx, rec)
		if err != nil {
			return model.Progress{}, fmt.Errorf("advance %s/%d: %w", userID, badgeID, err)
		}
		if created {
			return rec.Progress(), nil
		}
		// Lost the race to a concurrent first insert; lock the winner's row.
		rec, err = uow.GetProgressForUpdate(ctx, userID, badgeID)
	}
	if err != nil {
		return model.Progress{}, fmt.Errorf("advance %s/%d: get progress: %w", userID, badgeID, err)
	}

	if rec.Frozen() {
		return rec.Progress(), nil
	}

	rec.CurrentValue += increment
	rec.TargetValue = badge.TargetValue
	rec.Completed = rec.CurrentValue >= rec.TargetValue
	rec.UpdatedAt = e.now()
	if err := uow.UpdateProgress(ctx, rec); err != nil {
		return model.Progress{}, fmt.Errorf("advance %s/%d: %w", userID, badgeID, err)
	}
	return rec.Progress(), nil
}

// GrantWith awards the badge through uow and records the badge notification
// in the same unit of work. It returns nil when the badge is not repeatable
// and the user already holds it. The caller announces the grant after commit.
func (e *Engine) GrantWith(ctx context.Context, uow store.Store, userID string, badgeID int64, contestID *int64) (*Grant, error) {
	badge, err := uow.GetBadge(ctx, badgeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("grant %s/%d: %w", userID, badgeID, ErrUnknownBadge)
	}
	if err != nil {
		return nil, fmt.Errorf("grant %s/%d: get badge: %w", userID, badgeID, err)
	}

	if err := uow.LockUserBadge(ctx, userID, badgeID); err != nil {
		return nil, err
	}
	if !badge.Repeatable {
		held, err := uow.HasAward(ctx, userID, badgeID)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, nil
		}
	}

	award := &model.Award{
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: e.now(),
		ContestID: contestID,
	}
	if err := uow.InsertAward(ctx, award); err != nil {
		return nil, err
	}

	relatedID := badge.ID
	n := &model.Notification{
		UserID:    userID,
		Type:      model.NotificationBadge,
		RelatedID: &relatedID,
		Title:     badgeNotificationTitle,
		Body:      fmt.Sprintf("You earned the '%s' badge.", badge.DisplayName),
		LinkURL:   badgeNotificationLink,
	}
	if err := notify.Record(ctx, uow, n); err != nil {
		return nil, err
	}

	return &Grant{Award: award, Badge: badge, Notification: n}, nil
}

// Award grants the badge in its own transaction and announces it. It reports
// whether a new award row was written. An unknown badge is logged and
// reported as false with no error.
func (e *Engine) Award(ctx context.Context, userID string, badgeID int64, contestID *int64) (bool, error) {
	var g *Grant
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		g, err = e.GrantWith(ctx, tx, userID, badgeID, contestID)
		return err
	})
	if errors.Is(err, ErrUnknownBadge) {
		e.logger.Warn("award skipped: badge not in catalog", "user_id", userID, "badge_id", badgeID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	if g == nil {
		return false, nil
	}
	e.Announce(ctx, g)
	return true, nil
}

// Announce publishes committed grants on the event bus. Publish failures are
// logged; the grants themselves are already durable.
func (e *Engine) Announce(ctx context.Context, grants ...*Grant) {
	for _, g := range grants {
		if g == nil {
			continue
		}
		ev := events.BadgeAwarded{Award: g.Award, Badge: g.Badge.DisplayName}
		if err := e.publisher.Publish(ctx, events.TopicBadgeAwarded, ev); err != nil {
			e.logger.Warn("publish badge award", "user_id", g.Award.UserID, "badge_id", g.Award.BadgeID, "err", err)
		}
	}
}
