package model

import "time"

// BadgeDefinition is a catalog entry. The catalog is administered outside
// laurel; the engine only reads it.
type BadgeDefinition struct {
	ID          int64  `json:"badge_id" yaml:"badge_id" validate:"gte=1"`
	Category    string `json:"category" yaml:"category" validate:"required"`
	TargetValue int64  `json:"target_value" yaml:"target_value" validate:"gte=1"`
	Repeatable  bool   `json:"repeatable" yaml:"repeatable"`
	DisplayName string `json:"display_name" yaml:"display_name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ProgressRecord tracks one user's counter toward one badge. TargetValue is a
// snapshot of the definition's threshold taken on the last write.
type ProgressRecord struct {
	ID           int64     `json:"process_id"`
	UserID       string    `json:"user_id"`
	BadgeID      int64     `json:"badge_id"`
	CurrentValue int64     `json:"current_value"`
	TargetValue  int64     `json:"target_value"`
	Completed    bool      `json:"is_completed"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Frozen reports whether the record can no longer change.
func (p *ProgressRecord) Frozen() bool {
	return p.Completed
}

// Progress returns the record's state as returned by the progress engine.
func (p *ProgressRecord) Progress() Progress {
	return Progress{Current: p.CurrentValue, Target: p.TargetValue, Completed: p.Completed}
}

// Progress is the outcome of advancing a counter.
type Progress struct {
	Current   int64 `json:"current"`
	Target    int64 `json:"target"`
	Completed bool  `json:"completed"`
}

// Award is one granted badge instance.
type Award struct {
	ID        int64     `json:"user_badges_id"`
	UserID    string    `json:"user_id"`
	BadgeID   int64     `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
	Active    bool      `json:"is_active"`
	Displayed bool      `json:"is_displayed"`
	ContestID *int64    `json:"event_id,omitempty"`
}
