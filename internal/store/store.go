package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Store defines the persistence interface for badge progress, awards,
// notifications and the activity tables the detection jobs read.
//
// A Store value is also the unit of work: the Store handed to the callback of
// RunInTransaction or WithConn is bound to that transaction or connection, and
// every call made through it shares it. Nested RunInTransaction calls on a
// transaction-bound Store reuse the outer transaction.
type Store interface {
	// Badge catalog
	GetBadge(ctx context.Context, id int64) (*model.BadgeDefinition, error) // sql.ErrNoRows when missing
	ListBadgesByCategory(ctx context.Context, category string) ([]*model.BadgeDefinition, error)
	ListBadges(ctx context.Context) ([]*model.BadgeDefinition, error)
	UpsertBadge(ctx context.Context, badge *model.BadgeDefinition) error

	// Progress
	GetProgress(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error)
	GetProgressForUpdate(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error)
	InsertProgress(ctx context.Context, rec *model.ProgressRecord) (bool, error) // false when the row already exists
	UpdateProgress(ctx context.Context, rec *model.ProgressRecord) error

	// Awards
	LockUserBadge(ctx context.Context, userID string, badgeID int64) error
	HasAward(ctx context.Context, userID string, badgeID int64) (bool, error)
	InsertAward(ctx context.Context, award *model.Award) error
	ListAwards(ctx context.Context, userID string) ([]*model.Award, error)

	// Notifications
	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotificationsAfter(ctx context.Context, cursor model.NotificationCursor, limit int) ([]*model.Notification, error)
	HasNotificationToday(ctx context.Context, userID, typ string, relatedID int64, now time.Time) (bool, error)

	// Activity detection
	RecentPostAuthors(ctx context.Context, since time.Time) ([]string, error)
	RecentRecommendationUsers(ctx context.Context, since time.Time) ([]string, error)
	CookedTotals(ctx context.Context) ([]model.UserCount, error)
	RecentFridgeCounts(ctx context.Context, since time.Time) ([]model.UserCount, error)
	GetGoalWatermark(ctx context.Context, userID string) (int64, error) // sql.ErrNoRows when unseen
	InsertGoalWatermark(ctx context.Context, userID string, value int64) error
	UpdateGoalWatermark(ctx context.Context, userID string, value int64) error
	PopularCandidates(ctx context.Context, since time.Time, threshold int64) ([]model.PopularPost, error)
	MarkPostPopular(ctx context.Context, contentID int64) (bool, error) // false when already flagged

	// Contests
	PendingContests(ctx context.Context, now time.Time) ([]int64, error)
	LockContest(ctx context.Context, contestID int64) error
	ContestEnded(ctx context.Context, contestID int64, now time.Time) (bool, error) // sql.ErrNoRows when missing
	ContestHasResults(ctx context.Context, contestID int64) (bool, error)
	ContestEntries(ctx context.Context, contestID int64) ([]model.ContestEntry, error)
	InsertContestResults(ctx context.Context, results []model.ContestResult) error
	ListContestResults(ctx context.Context, contestID int64) ([]model.ContestResult, error)

	// Reminders
	DueSupplementPlans(ctx context.Context, slots []string) ([]model.SupplementPlan, error)

	// Units of work
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error
	WithConn(ctx context.Context, fn func(conn Store) error) error

	// Lifecycle
	Close() error
}
