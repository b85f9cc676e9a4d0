package storetest

import (
	"sort"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Seed helpers write directly to committed state and ignore faults.

// AddBadge adds or replaces a catalog entry.
func (s *Store) AddBadge(b model.BadgeDefinition) {
	_ = s.write(func(st *state) error {
		st.badges[b.ID] = b
		return nil
	})
}

// AddPost inserts a post and returns its content id.
func (s *Store) AddPost(p Post) int64 {
	_ = s.write(func(st *state) error {
		if p.ContentID == 0 {
			p.ContentID = st.id()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		st.posts = append(st.posts, p)
		return nil
	})
	return p.ContentID
}

// AddLike records a like on a post at the given time and bumps its count.
func (s *Store) AddLike(contentID int64, at time.Time) {
	_ = s.write(func(st *state) error {
		st.likes = append(st.likes, like{ContentID: contentID, At: at})
		for i := range st.posts {
			if st.posts[i].ContentID == contentID {
				st.posts[i].LikeCount++
			}
		}
		return nil
	})
}

// AddCooked records a cooked recipe action.
func (s *Store) AddCooked(userID string, at time.Time) {
	_ = s.write(func(st *state) error {
		st.cooked = append(st.cooked, activity{UserID: userID, At: at})
		return nil
	})
}

// AddFridgeItem records a fridge insert.
func (s *Store) AddFridgeItem(userID string, at time.Time) {
	_ = s.write(func(st *state) error {
		st.fridge = append(st.fridge, activity{UserID: userID, At: at})
		return nil
	})
}

// AddRecommendation records a recipe recommendation.
func (s *Store) AddRecommendation(userID string, at time.Time) {
	_ = s.write(func(st *state) error {
		st.recommendations = append(st.recommendations, activity{UserID: userID, At: at})
		return nil
	})
}

// AddContest inserts a contest.
func (s *Store) AddContest(c Contest) {
	_ = s.write(func(st *state) error {
		st.contests = append(st.contests, c)
		return nil
	})
}

// AddSupplementPlan inserts an active supplement plan.
func (s *Store) AddSupplementPlan(p model.SupplementPlan) {
	_ = s.write(func(st *state) error {
		if p.ID == 0 {
			p.ID = st.id()
		}
		st.plans = append(st.plans, p)
		return nil
	})
}

// SetProgress writes a progress record as is.
func (s *Store) SetProgress(p model.ProgressRecord) {
	_ = s.write(func(st *state) error {
		if p.ID == 0 {
			p.ID = st.id()
		}
		st.progress[progressKey{p.UserID, p.BadgeID}] = p
		return nil
	})
}

// Notifications returns every committed notification in insertion order.
func (s *Store) Notifications() []model.Notification {
	var out []model.Notification
	s.read(func(st *state) { out = append(out, st.notifications...) })
	return out
}

// AwardsFor returns the committed awards for one user and badge.
func (s *Store) AwardsFor(userID string, badgeID int64) []model.Award {
	var out []model.Award
	s.read(func(st *state) {
		for _, a := range st.awards {
			if a.UserID == userID && a.BadgeID == badgeID {
				out = append(out, a)
			}
		}
	})
	return out
}

// Watermark returns the goal watermark and whether one exists.
func (s *Store) Watermark(userID string) (int64, bool) {
	var (
		v  int64
		ok bool
	)
	s.read(func(st *state) { v, ok = st.watermarks[userID] })
	return v, ok
}

// PopularPosts returns the content ids flagged popular.
func (s *Store) PopularPosts() []int64 {
	var ids []int64
	s.read(func(st *state) {
		for _, p := range st.posts {
			if p.Popular {
				ids = append(ids, p.ContentID)
			}
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
