package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var (
	badgeRowColumns    = []string{"badge_id", "category", "target_value", "repeatable", "display_name", "description"}
	progressRowColumns = []string{"process_id", "user_id", "badge_id", "current_value", "target_value", "is_completed", "updated_at"}
	notificationRows   = []string{"notification_id", "user_id", "type", "related_id", "title", "body", "link_url", "created_at", "is_read"}
)

func TestGetBadge(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectQuery("SELECT .+ FROM badges WHERE badge_id = \\$1").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(badgeRowColumns).AddRow(3, "cooked", 3, false, "Home Cook", nil))

	b, err := s.GetBadge(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetBadge: %v", err)
	}
	if b.Category != "cooked" || b.TargetValue != 3 || b.DisplayName != "Home Cook" || b.Description != "" {
		t.Errorf("GetBadge = %+v", b)
	}
}

func TestGetBadgeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectQuery("SELECT .+ FROM badges WHERE badge_id = \\$1").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(badgeRowColumns))

	if _, err := s.GetBadge(context.Background(), 99); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetBadge(missing) err = %v, want sql.ErrNoRows", err)
	}
}

func TestListBadgesByCategory(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectQuery("SELECT .+ FROM badges WHERE category = \\$1 ORDER BY badge_id").WithArgs("ranks").
		WillReturnRows(sqlmock.NewRows(badgeRowColumns).
			AddRow(10, "ranks", 1, true, "Champion", "first place").
			AddRow(11, "ranks", 3, true, "Podium", nil))

	badges, err := s.ListBadgesByCategory(context.Background(), "ranks")
	if err != nil {
		t.Fatalf("ListBadgesByCategory: %v", err)
	}
	if len(badges) != 2 || badges[0].ID != 10 || badges[1].TargetValue != 3 {
		t.Errorf("ListBadgesByCategory = %+v", badges)
	}
	if !badges[0].Repeatable || badges[0].Description != "first place" {
		t.Errorf("badge[0] = %+v", badges[0])
	}
}

func TestGetProgressForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM badge_progress WHERE user_id = \\$1 AND badge_id = \\$2 FOR UPDATE").
		WithArgs("u1", int64(3)).
		WillReturnRows(sqlmock.NewRows(progressRowColumns).AddRow(7, "u1", 3, 2, 3, false, now))

	p, err := s.GetProgressForUpdate(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("GetProgressForUpdate: %v", err)
	}
	if p.ID != 7 || p.CurrentValue != 2 || p.Frozen() {
		t.Errorf("progress = %+v", p)
	}
}

func TestInsertProgress(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Now()
	rec := &model.ProgressRecord{UserID: "u1", BadgeID: 3, CurrentValue: 1, TargetValue: 3, UpdatedAt: now}

	mock.ExpectQuery("INSERT INTO badge_progress .+ ON CONFLICT \\(user_id, badge_id\\) DO NOTHING").
		WithArgs("u1", int64(3), int64(1), int64(3), false, now).
		WillReturnRows(sqlmock.NewRows([]string{"process_id"}).AddRow(42))

	created, err := s.InsertProgress(context.Background(), rec)
	if err != nil {
		t.Fatalf("InsertProgress: %v", err)
	}
	if !created || rec.ID != 42 {
		t.Errorf("InsertProgress = %v, id %d; want true, 42", created, rec.ID)
	}
}

func TestInsertProgressConflict(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectQuery("INSERT INTO badge_progress").
		WillReturnRows(sqlmock.NewRows([]string{"process_id"}))

	created, err := s.InsertProgress(context.Background(), &model.ProgressRecord{UserID: "u1", BadgeID: 3})
	if err != nil {
		t.Fatalf("InsertProgress: %v", err)
	}
	if created {
		t.Error("InsertProgress on conflict should report false")
	}
}

func TestUpdateProgressMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectExec("UPDATE badge_progress").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateProgress(context.Background(), &model.ProgressRecord{ID: 5})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("UpdateProgress err = %v, want sql.ErrNoRows", err)
	}
}

func TestLockUserBadge(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::bigint, 0))")).
		WithArgs("u1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.LockUserBadge(context.Background(), "u1", 3); err != nil {
		t.Fatalf("LockUserBadge: %v", err)
	}
}

func TestInsertAward(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Now()
	contestID := int64(9)
	a := &model.Award{UserID: "u1", BadgeID: 10, AwardedAt: now, ContestID: &contestID}

	mock.ExpectQuery("INSERT INTO user_badges").
		WithArgs("u1", int64(10), now, false, false, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_badges_id"}).AddRow(77))

	if err := s.InsertAward(context.Background(), a); err != nil {
		t.Fatalf("InsertAward: %v", err)
	}
	if a.ID != 77 {
		t.Errorf("award id = %d, want 77", a.ID)
	}
}

func TestInsertNotificationReturnsIDAndTime(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	badgeID := int64(3)
	n := &model.Notification{UserID: "u1", Type: model.NotificationBadge, RelatedID: &badgeID, Title: "t", Body: "b", LinkURL: "/me/badges"}

	mock.ExpectQuery("INSERT INTO notifications .+ RETURNING notification_id, created_at").
		WithArgs("u1", "badge", int64(3), "t", "b", "/me/badges").
		WillReturnRows(sqlmock.NewRows([]string{"notification_id", "created_at"}).AddRow(12, created))

	if err := s.InsertNotification(context.Background(), n); err != nil {
		t.Fatalf("InsertNotification: %v", err)
	}
	if n.ID != 12 || !n.CreatedAt.Equal(created) {
		t.Errorf("notification = %+v", n)
	}
}

func TestListNotificationsAfter(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cursor := model.NotificationCursor{CreatedAt: at, ID: 4}

	mock.ExpectQuery("SELECT .+ FROM notifications\\s+WHERE \\(created_at, notification_id\\) > \\(\\$1, \\$2\\)").
		WithArgs(at, int64(4), 500).
		WillReturnRows(sqlmock.NewRows(notificationRows).
			AddRow(5, "u1", "badge", 3, "New badge earned!", "body", "/me/badges", at, false).
			AddRow(6, "u2", "generic", nil, "hi", "there", nil, at.Add(time.Second), false))

	rows, err := s.ListNotificationsAfter(context.Background(), cursor, 500)
	if err != nil {
		t.Fatalf("ListNotificationsAfter: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].RelatedID == nil || *rows[0].RelatedID != 3 {
		t.Errorf("rows[0].RelatedID = %v, want 3", rows[0].RelatedID)
	}
	if rows[1].RelatedID != nil || rows[1].LinkURL != "" {
		t.Errorf("rows[1] = %+v, want NULL related_id and link_url", rows[1])
	}
}

func TestHasNotificationTodayUsesCalendarDay(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Date(2026, 3, 1, 21, 30, 0, 0, time.UTC)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1", "supplement", int64(7), start, start.AddDate(0, 0, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HasNotificationToday(context.Background(), "u1", "supplement", 7, now)
	if err != nil {
		t.Fatalf("HasNotificationToday: %v", err)
	}
	if !ok {
		t.Error("expected existing notification")
	}
}

func TestMarkPostPopular(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectExec("UPDATE posts SET is_popular = true WHERE content_id = \\$1 AND NOT is_popular").
		WithArgs(int64(8)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE posts SET is_popular = true").
		WithArgs(int64(8)).WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.MarkPostPopular(context.Background(), 8)
	if err != nil || !claimed {
		t.Fatalf("first MarkPostPopular = %v, %v; want true, nil", claimed, err)
	}
	claimed, err = s.MarkPostPopular(context.Background(), 8)
	if err != nil || claimed {
		t.Fatalf("second MarkPostPopular = %v, %v; want false, nil", claimed, err)
	}
}

func TestCookedTotals(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectQuery("SELECT user_id, COUNT\\(\\*\\) FROM recipe_actions").WithArgs(cookedAction).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "count"}).AddRow("u1", 3).AddRow("u2", 1))

	totals, err := s.CookedTotals(context.Background())
	if err != nil {
		t.Fatalf("CookedTotals: %v", err)
	}
	want := []model.UserCount{{UserID: "u1", Count: 3}, {UserID: "u2", Count: 1}}
	if len(totals) != len(want) || totals[0] != want[0] || totals[1] != want[1] {
		t.Errorf("CookedTotals = %v, want %v", totals, want)
	}
}

func TestDueSupplementPlansNoSlots(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewFromDB(db)

	plans, err := s.DueSupplementPlans(context.Background(), nil)
	if err != nil || plans != nil {
		t.Fatalf("DueSupplementPlans(nil) = %v, %v; want nil, nil", plans, err)
	}
}

func TestPendingContests(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Now()

	mock.ExpectQuery("SELECT c.event_id FROM contests c").WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(1).AddRow(4))

	ids, err := s.PendingContests(context.Background(), now)
	if err != nil {
		t.Fatalf("PendingContests: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Errorf("PendingContests = %v", ids)
	}
}

func TestLockContestUsesBigintKey(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	big := int64(1) << 40
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::bigint, 0))")).
		WithArgs(contestLockSpace, big).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.LockContest(context.Background(), big); err != nil {
		t.Fatalf("LockContest: %v", err)
	}
}

func TestContestEnded(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT ends_at < \\$2 FROM contests").
		WithArgs(int64(7), now).
		WillReturnRows(sqlmock.NewRows([]string{"ended"}).AddRow(false))
	mock.ExpectQuery("SELECT ends_at < \\$2 FROM contests").
		WithArgs(int64(8), now).
		WillReturnError(sql.ErrNoRows)

	ended, err := s.ContestEnded(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("ContestEnded: %v", err)
	}
	if ended {
		t.Error("ContestEnded = true for an open contest")
	}
	if _, err := s.ContestEnded(context.Background(), 8, now); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ContestEnded(unknown) = %v, want sql.ErrNoRows", err)
	}
}

func TestRunInTransactionCommits(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.LockContest(context.Background(), 1)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction err = %v, want boom", err)
	}
}

func TestNestedTransactionReusesOuter(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.RunInTransaction(context.Background(), func(inner store.Store) error {
			if inner != tx {
				t.Error("nested RunInTransaction should reuse the outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestWithConnOpensTransactionsOnPinnedConn(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithConn(context.Background(), func(conn store.Store) error {
		if err := conn.RunInTransaction(context.Background(), func(store.Store) error { return nil }); err != nil {
			return err
		}
		_ = conn.RunInTransaction(context.Background(), func(store.Store) error { return errors.New("per-user failure") })
		return nil
	})
	if err != nil {
		t.Fatalf("WithConn: %v", err)
	}
}
