package model

// EventType identifies the kind of activity a detection job observed.
// Unknown values are allowed: they resolve to a category equal to the raw
// string so new badge categories can be triggered without a code change.
type EventType string

const (
	EventContestPost    EventType = "contest"
	EventLikeMilestone  EventType = "likes"
	EventRecommendation EventType = "recipe"
	EventCookedRecipe   EventType = "cooked"
	EventFridgeAddition EventType = "fridge"
	EventGoalProgress   EventType = "goal"
	EventContestRank    EventType = "ranks"
)

// Badge categories stored in the catalog.
const (
	CategoryContest = "contest"
	CategoryLikes   = "likes"
	CategoryRecipe  = "recipe"
	CategoryCooked  = "cooked"
	CategoryFridge  = "fridge"
	CategoryGoal    = "goal"
	CategoryRanks   = "ranks"
)

var eventCategories = map[EventType]string{
	EventContestPost:    CategoryContest,
	EventLikeMilestone:  CategoryLikes,
	EventRecommendation: CategoryRecipe,
	EventCookedRecipe:   CategoryCooked,
	EventFridgeAddition: CategoryFridge,
	EventGoalProgress:   CategoryGoal,
	EventContestRank:    CategoryRanks,
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsKnown reports whether the event type has an entry in the category table.
func (t EventType) IsKnown() bool {
	_, ok := eventCategories[t]
	return ok
}

// Category returns the badge category the event advances. Unmapped types
// pass through unchanged.
func (t EventType) Category() string {
	if c, ok := eventCategories[t]; ok {
		return c
	}
	return string(t)
}

// ActivityEvent is a detected (user, event) pair handed to the dispatcher.
// It is never persisted.
type ActivityEvent struct {
	UserID    string    `json:"user_id"`
	Type      EventType `json:"event_type"`
	Increment int64     `json:"increment,omitempty"`
	ContestID *int64    `json:"contest_id,omitempty"`
}

// Step returns the increment to apply, defaulting to 1.
func (e ActivityEvent) Step() int64 {
	if e.Increment <= 0 {
		return 1
	}
	return e.Increment
}
