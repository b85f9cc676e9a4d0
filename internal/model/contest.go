package model

import "time"

// ContestEntry is a post competing in a contest.
type ContestEntry struct {
	ContentID int64     `json:"content_id"`
	UserID    string    `json:"user_id"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// ContestResult is one persisted ranking row. Results are written once per
// contest; their presence marks the contest as aggregated.
type ContestResult struct {
	ContestID int64  `json:"event_id"`
	ContentID int64  `json:"content_id"`
	UserID    string `json:"user_id"`
	Rank      int    `json:"rank"`
	LikeCount int64  `json:"like_count"`
}
