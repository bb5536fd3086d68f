package entity

import "time"

// Keyword is a unit of exploration in the frontier.
type Keyword struct {
	Text         string
	Score        float64
	Depth        int
	FirstSeen    time.Time
	LastExplored time.Time
}
