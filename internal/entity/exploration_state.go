package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ExplorationState is the persisted memory of a frontier exploration session.
type ExplorationState struct {
	Researched        map[string]struct{}
	Queued            []string
	Expanded          map[string]struct{}
	FoundProducts     int
	TotalResearched   int
	StartedAt         time.Time
	LastKeyword       string
	KeywordTimestamps map[string]time.Time
	KeywordScores     map[string]float64
}

// NewExplorationState returns an empty state stamped with the session start.
func NewExplorationState(startedAt time.Time) *ExplorationState {
	return &ExplorationState{
		Researched:        make(map[string]struct{}),
		Expanded:          make(map[string]struct{}),
		StartedAt:         startedAt,
		KeywordTimestamps: make(map[string]time.Time),
		KeywordScores:     make(map[string]float64),
	}
}

func (s *ExplorationState) IsResearched(keyword string) bool {
	_, ok := s.Researched[keyword]
	return ok
}

// MarkResearched records that keyword was explored at the given instant.
func (s *ExplorationState) MarkResearched(keyword string, at time.Time) {
	s.Researched[keyword] = struct{}{}
	s.KeywordTimestamps[keyword] = at
	s.LastKeyword = keyword
	s.TotalResearched++
}

// InCooldown reports whether keyword was explored less than window ago.
func (s *ExplorationState) InCooldown(keyword string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	at, ok := s.KeywordTimestamps[keyword]
	if !ok {
		return false
	}
	return now.Sub(at) < window
}

// ExpireCooldowns releases researched keywords whose cooldown has elapsed so
// they become eligible again. It returns the released keywords, sorted.
func (s *ExplorationState) ExpireCooldowns(now time.Time, window time.Duration) []string {
	if window <= 0 {
		return nil
	}
	var released []string
	for kw := range s.Researched {
		at, ok := s.KeywordTimestamps[kw]
		if !ok || now.Sub(at) < window {
			continue
		}
		delete(s.Researched, kw)
		released = append(released, kw)
	}
	sort.Strings(released)
	return released
}

func (s *ExplorationState) IsExpanded(keyword string) bool {
	_, ok := s.Expanded[keyword]
	return ok
}

func (s *ExplorationState) MarkExpanded(keyword string) {
	s.Expanded[keyword] = struct{}{}
}

func (s *ExplorationState) SetScore(keyword string, score float64) {
	s.KeywordScores[keyword] = score
}

// ScoreOf returns the last recorded score for keyword.
func (s *ExplorationState) ScoreOf(keyword string) (float64, bool) {
	v, ok := s.KeywordScores[keyword]
	return v, ok
}

// ExpandedSeeds returns the expanded seed set in sorted order.
func (s *ExplorationState) ExpandedSeeds() []string {
	return sortedKeys(s.Expanded)
}

type explorationStateJSON struct {
	ResearchedKeywords []string           `json:"researched_keywords"`
	QueuedKeywords     []string           `json:"queued_keywords"`
	ExpandedSeeds      []string           `json:"expanded_seeds"`
	FoundProducts      int                `json:"found_products"`
	TotalResearched    int                `json:"total_researched"`
	StartedAt          string             `json:"started_at"`
	LastKeyword        string             `json:"last_keyword"`
	KeywordTimestamps  map[string]string  `json:"keyword_timestamps"`
	KeywordScores      map[string]float64 `json:"keyword_scores"`
}

// MarshalJSON writes set-valued fields as sorted lists and instants as RFC 3339.
func (s *ExplorationState) MarshalJSON() ([]byte, error) {
	out := explorationStateJSON{
		ResearchedKeywords: sortedKeys(s.Researched),
		QueuedKeywords:     s.Queued,
		ExpandedSeeds:      sortedKeys(s.Expanded),
		FoundProducts:      s.FoundProducts,
		TotalResearched:    s.TotalResearched,
		LastKeyword:        s.LastKeyword,
		KeywordTimestamps:  make(map[string]string, len(s.KeywordTimestamps)),
		KeywordScores:      s.KeywordScores,
	}
	if out.QueuedKeywords == nil {
		out.QueuedKeywords = []string{}
	}
	if out.KeywordScores == nil {
		out.KeywordScores = map[string]float64{}
	}
	if !s.StartedAt.IsZero() {
		out.StartedAt = s.StartedAt.Format(time.RFC3339Nano)
	}
	for kw, at := range s.KeywordTimestamps {
		out.KeywordTimestamps[kw] = at.Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

func (s *ExplorationState) UnmarshalJSON(data []byte) error {
	var in explorationStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fresh := NewExplorationState(time.Time{})
	for _, kw := range in.ResearchedKeywords {
		fresh.Researched[kw] = struct{}{}
	}
	for _, kw := range in.ExpandedSeeds {
		fresh.Expanded[kw] = struct{}{}
	}
	fresh.Queued = in.QueuedKeywords
	fresh.FoundProducts = in.FoundProducts
	fresh.TotalResearched = in.TotalResearched
	fresh.LastKeyword = in.LastKeyword
	if in.StartedAt != "" {
		at, err := parseInstant(in.StartedAt)
		if err != nil {
			return fmt.Errorf("started_at: %w", err)
		}
		fresh.StartedAt = at
	}
	for kw, raw := range in.KeywordTimestamps {
		at, err := parseInstant(raw)
		if err != nil {
			return fmt.Errorf("keyword_timestamps[%s]: %w", kw, err)
		}
		fresh.KeywordTimestamps[kw] = at
	}
	for kw, score := range in.KeywordScores {
		fresh.KeywordScores[kw] = score
	}
	*s = *fresh
	return nil
}

// parseInstant accepts RFC 3339 and the zone-less ISO form older state files used.
func parseInstant(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		at, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return at, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
