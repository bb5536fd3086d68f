package entity

import "time"

// KeywordOutcome summarizes one exploration of a keyword.
type KeywordOutcome struct {
	Keyword       string               `json:"keyword"`
	Searched      int                  `json:"searched"`
	Passed        int                  `json:"passed"`
	Matches       []MatchedProduct     `json:"matches"`
	FilterReasons map[RejectReason]int `json:"filter_reasons,omitempty"`
	Score         float64              `json:"score"`
	Err           string               `json:"error,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	Duration      time.Duration        `json:"duration"`
}
