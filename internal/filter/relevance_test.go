package filter

import (
	"math"
	"testing"
)

func TestTitleRelevance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		listing string
		source  string
		want    float64
	}{
		{"empty listing title", "", "收纳盒", 0.5},
		{"empty source title", "収納 ボックス", "", 0.5},
		{"no cjk words", "USB cable 2m", "数据线", 0.5},
		{"shared word", "収納 ボックス 大容量", "収納 ケース", 1.0/3 + 0.3},
		{"all shared caps at one", "収納 ボックス", "収納 ボックス セット", 1},
		{"substring match", "収納ボックス", "大型収納ボックスセット", 1},
		{"filler words ignored", "この 収納", "靴下", 0},
		{"nothing shared", "収納 ボックス", "靴下 セット", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TitleRelevance(tc.listing, tc.source)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("TitleRelevance(%q, %q) = %v, want %v", tc.listing, tc.source, got, tc.want)
			}
		})
	}
}
