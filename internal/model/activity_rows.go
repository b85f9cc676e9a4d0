package model

// UserCount is a per-user aggregate returned by detection queries.
type UserCount struct {
	UserID string
	Count  int64
}

// PopularPost is a post whose like count crossed the popularity threshold.
type PopularPost struct {
	ContentID int64
	UserID    string
	LikeCount int64
}

// SupplementPlan is a user's scheduled supplement intake.
type SupplementPlan struct {
	ID             int64
	UserID         string
	SupplementName string
	TimeSlot       string
}
