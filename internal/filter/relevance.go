package filter

import (
	"regexp"
	"strings"
)

// cjkRun matches runs of two or more kanji, hiragana or katakana characters.
var cjkRun = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}ー]{2,}`)

var fillerWords = map[string]struct{}{
	"です": {}, "ます": {}, "する": {}, "した": {}, "ある": {}, "ない": {},
	"この": {}, "その": {}, "もの": {}, "ため": {}, "から": {}, "まで": {},
	"ところ": {}, "こと": {}, "について": {},
}

// titleWords extracts the distinct CJK word runs of a title, without filler words.
func titleWords(title string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range cjkRun.FindAllString(title, -1) {
		if _, filler := fillerWords[w]; filler {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// TitleRelevance compares a destination listing title with a source product
// title and returns a score in [0, 1]. It returns 0.5 when relevance cannot be
// determined, and 0 when the titles share nothing.
func TitleRelevance(listingTitle, sourceTitle string) float64 {
	if listingTitle == "" || sourceTitle == "" {
		return 0.5
	}
	words := titleWords(listingTitle)
	if len(words) == 0 {
		return 0.5
	}

	sourceSet := make(map[string]struct{})
	for _, w := range titleWords(sourceTitle) {
		sourceSet[w] = struct{}{}
	}
	common := 0
	for _, w := range words {
		if _, ok := sourceSet[w]; ok {
			common++
		}
	}
	n := float64(len(words))
	if common > 0 {
		return min(1, float64(common)/n+0.3)
	}

	partial := 0
	for _, w := range words {
		if strings.Contains(sourceTitle, w) {
			partial++
		}
	}
	if partial > 0 {
		return min(1, float64(partial)/n+0.2)
	}
	return 0
}
