package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// Dispatch routes ev in its own transaction and announces any grants after
// commit.
func (e *Engine) Dispatch(ctx context.Context, ev model.ActivityEvent) error {
	grants, err := e.DispatchWith(ctx, e.store, ev)
	if err != nil {
		return err
	}
	e.Announce(ctx, grants...)
	return nil
}

// DispatchWith advances every badge in the event's category for the user and
// grants those that complete. All writes happen in one transaction opened on
// uow; when uow is already a transaction it is reused and the caller owns the
// commit. Grants are returned for the caller to Announce after commit.
//
// An event without a user id is logged and ignored.
func (e *Engine) DispatchWith(ctx context.Context, uow store.Store, ev model.ActivityEvent) ([]*Grant, error) {
	if ev.UserID == "" {
		e.logger.Warn("dispatch skipped: empty user id", "event_type", ev.Type)
		return nil, nil
	}

	category := ev.Type.Category()
	var grants []*Grant
	err := uow.RunInTransaction(ctx, func(tx store.Store) error {
		grants = grants[:0]
		badges, err := tx.ListBadgesByCategory(ctx, category)
		if err != nil {
			return fmt.Errorf("list badges for %q: %w", category, err)
		}

		for _, b := range badges {
			p, err := e.Advance(ctx, tx, ev.UserID, b.ID, ev.Step())
			if errors.Is(err, ErrUnknownBadge) {
				e.logger.Warn("badge vanished during dispatch", "user_id", ev.UserID, "badge_id", b.ID)
				continue
			}
			if err != nil {
				return err
			}
			if !p.Completed {
				continue
			}
			g, err := e.GrantWith(ctx, tx, ev.UserID, b.ID, ev.ContestID)
			if err != nil {
				return err
			}
			if g != nil {
				grants = append(grants, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch %s for %s: %w", ev.Type, ev.UserID, err)
	}
	return grants, nil
}

// AdvanceBadge advances one badge for the user and grants it when the
// result is completed, all in one transaction opened on uow.
func (e *Engine) AdvanceBadge(ctx context.Context, uow store.Store, userID string, badgeID int64, increment int64) (*Grant, error) {
	var g *Grant
	err := uow.RunInTransaction(ctx, func(tx store.Store) error {
		g = nil
		p, err := e.Advance(ctx, tx, userID, badgeID, increment)
		if err != nil {
			return err
		}
		if !p.Completed {
			return nil
		}
		g, err = e.GrantWith(ctx, tx, userID, badgeID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
