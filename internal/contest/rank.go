// Package contest ranks finished contests and grants rank badges.
package contest

import (
	"sort"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Podium is the number of ranked places persisted per contest.
const Podium = 5

// Rank orders entries by like count (descending), then creation time and
// content id (both ascending), and returns the first limit places numbered
// from 1.
func Rank(contestID int64, entries []model.ContestEntry, limit int) []model.ContestResult {
	sorted := append([]model.ContestEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.LikeCount != b.LikeCount {
			return a.LikeCount > b.LikeCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ContentID < b.ContentID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	results := make([]model.ContestResult, len(sorted))
	for i, e := range sorted {
		results[i] = model.ContestResult{
			ContestID: contestID,
			ContentID: e.ContentID,
			UserID:    e.UserID,
			Rank:      i + 1,
			LikeCount: e.LikeCount,
		}
	}
	return results
}
