package domain

import "time"

// Analytics summarises a user's stack history.
type Analytics struct {
	UserID UserID `json:"user_id"`

	TotalStacks     int     `json:"total_stacks"`
	CompletedStacks int     `json:"completed_stacks"`
	CompletionRate  float64 `json:"completion_rate"`

	ByType   map[StackType]int  `json:"by_type"`
	ByDomain map[LifeDomain]int `json:"by_domain"`

	AverageMessages float64 `json:"average_messages"`

	// Streaks count consecutive UTC days with at least one stack started.
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// InsightReport is the structured answer the LLM produces over retrieved history.
type InsightReport struct {
	UserID      UserID    `json:"user_id"`
	Topic       string    `json:"topic,omitempty"`
	Summary     string    `json:"summary"`
	Themes      []string  `json:"themes"`
	Patterns    []string  `json:"patterns"`
	Suggestions []string  `json:"suggestions"`
	Sources     int       `json:"sources"`
	CreatedAt   time.Time `json:"created_at"`
}
