// Package storetest provides an in-memory store.Store for tests.
//
// Transactions are serialized: a transaction works on a private copy of the
// data and swaps it in on commit, so row and advisory locks are implied.
// Autocommit writes wait for any running transaction.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

// Post is a row of the posts table.
type Post struct {
	ContentID int64
	UserID    string
	ContestID *int64
	LikeCount int64
	Popular   bool
	CreatedAt time.Time
}

// Contest is a row of the contests table.
type Contest struct {
	ID     int64
	Title  string
	EndsAt time.Time
}

type activity struct {
	UserID string
	At     time.Time
}

type like struct {
	ContentID int64
	At        time.Time
}

type progressKey struct {
	userID  string
	badgeID int64
}

type state struct {
	nextID          int64
	badges          map[int64]model.BadgeDefinition
	progress        map[progressKey]model.ProgressRecord
	awards          []model.Award
	notifications   []model.Notification
	posts           []Post
	likes           []like
	fridge          []activity
	cooked          []activity
	recommendations []activity
	contests        []Contest
	results         []model.ContestResult
	watermarks      map[string]int64
	plans           []model.SupplementPlan
}

func newState() *state {
	return &state{
		badges:     make(map[int64]model.BadgeDefinition),
		progress:   make(map[progressKey]model.ProgressRecord),
		watermarks: make(map[string]int64),
	}
}

func (st *state) clone() *state {
	c := &state{
		nextID:          st.nextID,
		badges:          make(map[int64]model.BadgeDefinition, len(st.badges)),
		progress:        make(map[progressKey]model.ProgressRecord, len(st.progress)),
		watermarks:      make(map[string]int64, len(st.watermarks)),
		awards:          append([]model.Award(nil), st.awards...),
		notifications:   append([]model.Notification(nil), st.notifications...),
		posts:           append([]Post(nil), st.posts...),
		likes:           append([]like(nil), st.likes...),
		fridge:          append([]activity(nil), st.fridge...),
		cooked:          append([]activity(nil), st.cooked...),
		recommendations: append([]activity(nil), st.recommendations...),
		contests:        append([]Contest(nil), st.contests...),
		results:         append([]model.ContestResult(nil), st.results...),
		plans:           append([]model.SupplementPlan(nil), st.plans...),
	}
	for k, v := range st.badges {
		c.badges[k] = v
	}
	for k, v := range st.progress {
		c.progress[k] = v
	}
	for k, v := range st.watermarks {
		c.watermarks[k] = v
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// Store is an in-memory store.Store.
type Store struct {
	// Now is the clock used for created_at and awarded_at defaults.
	Now func() time.Time

	root *Store
	tx   bool

	mu   sync.Mutex
	data *state

	// Held by the root for the lifetime of a transaction or autocommit write.
	txMu sync.Mutex

	faultMu sync.Mutex
	faults  map[string]error
	commits int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{Now: time.Now, data: newState(), faults: make(map[string]error)}
	s.root = s
	return s
}

// Fail makes every later call to the named method return err. A nil err
// clears the fault.
func (s *Store) Fail(method string, err error) {
	r := s.root
	r.faultMu.Lock()
	defer r.faultMu.Unlock()
	if err == nil {
		delete(r.faults, method)
		return
	}
	r.faults[method] = err
}

func (s *Store) fault(method string) error {
	r := s.root
	r.faultMu.Lock()
	defer r.faultMu.Unlock()
	return r.faults[method]
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	r := s.root
	r.faultMu.Lock()
	defer r.faultMu.Unlock()
	return r.commits
}

func (s *Store) now() time.Time {
	return s.root.Now()
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) write(fn func(st *state) error) error {
	if !s.tx {
		s.root.txMu.Lock()
		defer s.root.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// RunInTransaction runs fn against a private copy of the data and publishes
// the copy when fn returns nil. Nested calls reuse the transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx {
		return fn(s)
	}
	if err := s.fault("RunInTransaction"); err != nil {
		return err
	}
	r := s.root
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := r.data.clone()
	r.mu.Unlock()

	txS := &Store{root: r, tx: true, data: snapshot}
	if err := fn(txS); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.mu.Lock()
	r.data = txS.data
	r.mu.Unlock()

	r.faultMu.Lock()
	r.commits++
	r.faultMu.Unlock()
	return nil
}

// WithConn calls fn with the store itself.
func (s *Store) WithConn(ctx context.Context, fn func(conn store.Store) error) error {
	if err := s.fault("WithConn"); err != nil {
		return err
	}
	return fn(s)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Badge catalog

func (s *Store) GetBadge(ctx context.Context, id int64) (*model.BadgeDefinition, error) {
	if err := s.fault("GetBadge"); err != nil {
		return nil, err
	}
	var (
		b  model.BadgeDefinition
		ok bool
	)
	s.read(func(st *state) { b, ok = st.badges[id] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (s *Store) ListBadgesByCategory(ctx context.Context, category string) ([]*model.BadgeDefinition, error) {
	if err := s.fault("ListBadgesByCategory"); err != nil {
		return nil, err
	}
	all, _ := s.ListBadges(ctx)
	var out []*model.BadgeDefinition
	for _, b := range all {
		if b.Category == category {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListBadges(ctx context.Context) ([]*model.BadgeDefinition, error) {
	var out []*model.BadgeDefinition
	s.read(func(st *state) {
		for _, b := range st.badges {
			b := b
			out = append(out, &b)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertBadge(ctx context.Context, b *model.BadgeDefinition) error {
	if err := s.fault("UpsertBadge"); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		st.badges[b.ID] = *b
		return nil
	})
}

// Progress

func (s *Store) GetProgress(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error) {
	if err := s.fault("GetProgress"); err != nil {
		return nil, err
	}
	var (
		p  model.ProgressRecord
		ok bool
	)
	s.read(func(st *state) { p, ok = st.progress[progressKey{userID, badgeID}] })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *Store) GetProgressForUpdate(ctx context.Context, userID string, badgeID int64) (*model.ProgressRecord, error) {
	return s.GetProgress(ctx, userID, badgeID)
}

func (s *Store) InsertProgress(ctx context.Context, rec *model.ProgressRecord) (bool, error) {
	if err := s.fault("InsertProgress"); err != nil {
		return false, err
	}
	created := false
	err := s.write(func(st *state) error {
		k := progressKey{rec.UserID, rec.BadgeID}
		if _, exists := st.progress[k]; exists {
			return nil
		}
		rec.ID = st.id()
		st.progress[k] = *rec
		created = true
		return nil
	})
	return created, err
}

func (s *Store) UpdateProgress(ctx context.Context, rec *model.ProgressRecord) error {
	if err := s.fault("UpdateProgress"); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		k := progressKey{rec.UserID, rec.BadgeID}
		cur, ok := st.progress[k]
		if !ok || cur.ID != rec.ID {
			return sql.ErrNoRows
		}
		st.progress[k] = *rec
		return nil
	})
}

// Awards

func (s *Store) LockUserBadge(ctx context.Context, userID string, badgeID int64) error {
	return s.fault("LockUserBadge")
}

func (s *Store) HasAward(ctx context.Context, userID string, badgeID int64) (bool, error) {
	if err := s.fault("HasAward"); err != nil {
		return false, err
	}
	found := false
	s.read(func(st *state) {
		for _, a := range st.awards {
			if a.UserID == userID && a.BadgeID == badgeID {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (s *Store) InsertAward(ctx context.Context, a *model.Award) error {
	if err := s.fault("InsertAward"); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		a.ID = st.id()
		st.awards = append(st.awards, *a)
		return nil
	})
}

func (s *Store) ListAwards(ctx context.Context, userID string) ([]*model.Award, error) {
	var out []*model.Award
	s.read(func(st *state) {
		for _, a := range st.awards {
			if a.UserID == userID {
				a := a
				out = append(out, &a)
			}
		}
	})
	return out, nil
}

// Notifications

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	if err := s.fault("InsertNotification"); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		n.ID = st.id()
		if n.CreatedAt.IsZero() {
			n.CreatedAt = s.now()
		}
		st.notifications = append(st.notifications, *n)
		return nil
	})
}

func (s *Store) ListNotificationsAfter(ctx context.Context, cursor model.NotificationCursor, limit int) ([]*model.Notification, error) {
	if err := s.fault("ListNotificationsAfter"); err != nil {
		return nil, err
	}
	var out []*model.Notification
	s.read(func(st *state) {
		for _, n := range st.notifications {
			if model.CursorOf(&n).After(cursor) {
				n := n
				out = append(out, &n)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return model.CursorOf(out[j]).After(model.CursorOf(out[i]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) HasNotificationToday(ctx context.Context, userID, typ string, relatedID int64, now time.Time) (bool, error) {
	if err := s.fault("HasNotificationToday"); err != nil {
		return false, err
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	found := false
	s.read(func(st *state) {
		for _, n := range st.notifications {
			if n.UserID == userID && n.Type == typ && n.RelatedID != nil && *n.RelatedID == relatedID &&
				!n.CreatedAt.Before(start) && n.CreatedAt.Before(end) {
				found = true
				return
			}
		}
	})
	return found, nil
}

// Activity detection

func (s *Store) RecentPostAuthors(ctx context.Context, since time.Time) ([]string, error) {
	if err := s.fault("RecentPostAuthors"); err != nil {
		return nil, err
	}
	var acts []activity
	s.read(func(st *state) {
		for _, p := range st.posts {
			acts = append(acts, activity{UserID: p.UserID, At: p.CreatedAt})
		}
	})
	return distinctSince(acts, since), nil
}

func (s *Store) RecentRecommendationUsers(ctx context.Context, since time.Time) ([]string, error) {
	if err := s.fault("RecentRecommendationUsers"); err != nil {
		return nil, err
	}
	var acts []activity
	s.read(func(st *state) { acts = append(acts, st.recommendations...) })
	return distinctSince(acts, since), nil
}

func (s *Store) CookedTotals(ctx context.Context) ([]model.UserCount, error) {
	if err := s.fault("CookedTotals"); err != nil {
		return nil, err
	}
	var acts []activity
	s.read(func(st *state) { acts = append(acts, st.cooked...) })
	return countSince(acts, time.Time{}), nil
}

func (s *Store) RecentFridgeCounts(ctx context.Context, since time.Time) ([]model.UserCount, error) {
	if err := s.fault("RecentFridgeCounts"); err != nil {
		return nil, err
	}
	var acts []activity
	s.read(func(st *state) { acts = append(acts, st.fridge...) })
	return countSince(acts, since), nil
}

func (s *Store) GetGoalWatermark(ctx context.Context, userID string) (int64, error) {
	var (
		v  int64
		ok bool
	)
	s.read(func(st *state) { v, ok = st.watermarks[userID] })
	if !ok {
		return 0, sql.ErrNoRows
	}
	return v, nil
}

func (s *Store) InsertGoalWatermark(ctx context.Context, userID string, value int64) error {
	return s.write(func(st *state) error {
		if _, ok := st.watermarks[userID]; !ok {
			st.watermarks[userID] = value
		}
		return nil
	})
}

func (s *Store) UpdateGoalWatermark(ctx context.Context, userID string, value int64) error {
	return s.write(func(st *state) error {
		if cur, ok := st.watermarks[userID]; ok && value > cur {
			st.watermarks[userID] = value
		}
		return nil
	})
}

func (s *Store) PopularCandidates(ctx context.Context, since time.Time, threshold int64) ([]model.PopularPost, error) {
	if err := s.fault("PopularCandidates"); err != nil {
		return nil, err
	}
	var out []model.PopularPost
	s.read(func(st *state) {
		recent := make(map[int64]bool)
		for _, l := range st.likes {
			if !l.At.Before(since) {
				recent[l.ContentID] = true
			}
		}
		for _, p := range st.posts {
			if !p.Popular && p.LikeCount >= threshold && recent[p.ContentID] {
				out = append(out, model.PopularPost{ContentID: p.ContentID, UserID: p.UserID, LikeCount: p.LikeCount})
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

func (s *Store) MarkPostPopular(ctx context.Context, contentID int64) (bool, error) {
	if err := s.fault("MarkPostPopular"); err != nil {
		return false, err
	}
	claimed := false
	err := s.write(func(st *state) error {
		for i := range st.posts {
			if st.posts[i].ContentID == contentID && !st.posts[i].Popular {
				st.posts[i].Popular = true
				claimed = true
			}
		}
		return nil
	})
	return claimed, err
}

// Contests

func (s *Store) PendingContests(ctx context.Context, now time.Time) ([]int64, error) {
	if err := s.fault("PendingContests"); err != nil {
		return nil, err
	}
	var ids []int64
	s.read(func(st *state) {
		done := make(map[int64]bool)
		for _, r := range st.results {
			done[r.ContestID] = true
		}
		cs := append([]Contest(nil), st.contests...)
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].EndsAt.Before(cs[j].EndsAt) })
		for _, c := range cs {
			if c.EndsAt.Before(now) && !done[c.ID] {
				ids = append(ids, c.ID)
			}
		}
	})
	return ids, nil
}

func (s *Store) LockContest(ctx context.Context, contestID int64) error {
	return s.fault("LockContest")
}

func (s *Store) ContestEnded(ctx context.Context, contestID int64, now time.Time) (bool, error) {
	if err := s.fault("ContestEnded"); err != nil {
		return false, err
	}
	var (
		ended bool
		found bool
	)
	s.read(func(st *state) {
		for _, c := range st.contests {
			if c.ID == contestID {
				ended, found = c.EndsAt.Before(now), true
				return
			}
		}
	})
	if !found {
		return false, sql.ErrNoRows
	}
	return ended, nil
}

func (s *Store) ContestHasResults(ctx context.Context, contestID int64) (bool, error) {
	found := false
	s.read(func(st *state) {
		for _, r := range st.results {
			if r.ContestID == contestID {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (s *Store) ContestEntries(ctx context.Context, contestID int64) ([]model.ContestEntry, error) {
	if err := s.fault("ContestEntries"); err != nil {
		return nil, err
	}
	var out []model.ContestEntry
	s.read(func(st *state) {
		for _, p := range st.posts {
			if p.ContestID != nil && *p.ContestID == contestID {
				out = append(out, model.ContestEntry{ContentID: p.ContentID, UserID: p.UserID, LikeCount: p.LikeCount, CreatedAt: p.CreatedAt})
			}
		}
	})
	return out, nil
}

func (s *Store) InsertContestResults(ctx context.Context, results []model.ContestResult) error {
	if err := s.fault("InsertContestResults"); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		for _, r := range results {
			for _, existing := range st.results {
				if existing.ContestID == r.ContestID && existing.Rank == r.Rank {
					return fmt.Errorf("insert contest result %d/%d: duplicate key", r.ContestID, r.Rank)
				}
			}
		}
		st.results = append(st.results, results...)
		return nil
	})
}

func (s *Store) ListContestResults(ctx context.Context, contestID int64) ([]model.ContestResult, error) {
	var out []model.ContestResult
	s.read(func(st *state) {
		for _, r := range st.results {
			if r.ContestID == contestID {
				out = append(out, r)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// Reminders

func (s *Store) DueSupplementPlans(ctx context.Context, slots []string) ([]model.SupplementPlan, error) {
	if err := s.fault("DueSupplementPlans"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(slots))
	for _, sl := range slots {
		want[sl] = true
	}
	var out []model.SupplementPlan
	s.read(func(st *state) {
		for _, p := range st.plans {
			if want[p.TimeSlot] {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func distinctSince(acts []activity, since time.Time) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range acts {
		if a.At.Before(since) || seen[a.UserID] {
			continue
		}
		seen[a.UserID] = true
		out = append(out, a.UserID)
	}
	sort.Strings(out)
	return out
}

func countSince(acts []activity, since time.Time) []model.UserCount {
	counts := make(map[string]int64)
	for _, a := range acts {
		if !a.At.Before(since) {
			counts[a.UserID]++
		}
	}
	out := make([]model.UserCount, 0, len(counts))
	for u, c := range counts {
		out = append(out, model.UserCount{UserID: u, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
