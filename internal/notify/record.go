// Package notify records user notifications and streams newly recorded
// rows to in-process subscribers.
package notify

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// Record validates and appends a notification through the given unit of
// work. The type defaults to generic. On success n carries the assigned id
// and created_at.
func Record(ctx context.Context, s store.Store, n *model.Notification) error {
	if n.Type == "" {
		n.Type = model.NotificationGeneric
	}
	if err := model.ValidateNotification(n); err != nil {
		return err
	}
	if err := s.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}
