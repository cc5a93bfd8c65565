package domain

import "time"

// AnonymousUser tracks an unauthenticated visitor across sessions so
// the facade can personalize and bucket without requiring login.
// Persists >=365 days.
type AnonymousUser struct {
	AnonID       string    `json:"anonId" db:"anon_id"`
	FirstSeenAt  time.Time `json:"firstSeenAt" db:"first_seen_at"`
	LastSeenAt   time.Time `json:"lastSeenAt" db:"last_seen_at"`
	SessionCount int       `json:"sessionCount" db:"session_count"`
	UserAgent    string    `json:"userAgent,omitempty" db:"user_agent"`
	Country      string    `json:"country,omitempty" db:"country"`
	IsActive     bool      `json:"isActive" db:"is_active"`
}

// UserPreference drives the Personaliser.
type UserPreference struct {
	UserID                 string   `json:"userId" db:"user_id"`
	InterestTickers        []string `json:"interestTickers" db:"interest_tickers"`
	InterestKeywords       []string `json:"interestKeywords" db:"interest_keywords"`
	PersonalizationEnabled bool     `json:"personalizationEnabled" db:"personalization_enabled"`
	DiversityWeight        float64  `json:"diversityWeight" db:"diversity_weight"`
	IsActive               bool     `json:"isActive" db:"is_active"`
}

// ClickLog records a single click, optionally tagged with the
// experiment variant active at impression time.
type ClickLog struct {
	AnonID        string    `json:"anonId" db:"anon_id"`
	UserID        *string   `json:"userId,omitempty" db:"user_id"`
	NewsID        int64     `json:"newsId" db:"news_id"`
	ClickedAt     time.Time `json:"clickedAt" db:"clicked_at"`
	DwellTimeMs   *int64    `json:"dwellTimeMs,omitempty" db:"dwell_time_ms"`
	ExperimentKey *string   `json:"experimentKey,omitempty" db:"experiment_key"`
	Variant       *string   `json:"variant,omitempty" db:"variant"`
	DatePartition string    `json:"datePartition" db:"date_partition"` // YYYY-MM-DD
}

// ImpressionLog records one item shown to a user at a given position;
// same identity/partitioning fields as ClickLog plus rank-time state.
type ImpressionLog struct {
	AnonID        string    `json:"anonId" db:"anon_id"`
	UserID        *string   `json:"userId,omitempty" db:"user_id"`
	NewsID        int64     `json:"newsId" db:"news_id"`
	ShownAt       time.Time `json:"shownAt" db:"shown_at"`
	ExperimentKey *string   `json:"experimentKey,omitempty" db:"experiment_key"`
	Variant       *string   `json:"variant,omitempty" db:"variant"`
	DatePartition string    `json:"datePartition" db:"date_partition"`

	Position         int     `json:"position" db:"position"` // 1-based
	Importance       float64 `json:"importance" db:"importance"`
	RankScore        float64 `json:"rankScore" db:"rank_score"`
	Personalized     bool    `json:"personalized" db:"personalized"`
	DiversityApplied bool    `json:"diversityApplied" db:"diversity_applied"`
}
