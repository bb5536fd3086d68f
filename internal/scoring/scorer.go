package scoring

import (
	"math"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

// matchBonus is the score added per matched candidate.
const matchBonus = 5

// Score rates a keyword outcome: the filter pass rate as a percentage plus a
// bonus per matched candidate, rounded to one decimal. It is 0 when nothing
// was searched.
func Score(searched, passed, matched int) float64 {
	if searched <= 0 {
		return 0
	}
	raw := float64(passed)/float64(searched)*100 + float64(matchBonus*matched)
	return math.Round(raw*10) / 10
}

// ScoreOutcome applies Score to an outcome.
func ScoreOutcome(o *entity.KeywordOutcome) float64 {
	return Score(o.Searched, o.Passed, len(o.Matches))
}
