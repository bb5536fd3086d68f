package postgres

import (
	"context"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

func TestInsertOutcomeSQL(t *testing.T) {
	t.Parallel()

	o := &entity.KeywordOutcome{Keyword: "収納", Searched: 10, Passed: 2, Score: 71.7, Duration: 1500 * time.Millisecond}
	query, args, err := insertOutcome("s1", o, []byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(query, "INSERT INTO keyword_outcomes") || !strings.HasSuffix(query, "RETURNING id") {
		t.Fatalf("query = %s", query)
	}
	if !strings.Contains(query, "$10") || strings.Contains(query, "?") {
		t.Fatalf("placeholders = %s", query)
	}
	if len(args) != 10 || args[0] != "s1" || args[1] != "収納" || args[9] != int64(1500) {
		t.Fatalf("args = %v", args)
	}
}

func TestTopKeywordsSQL(t *testing.T) {
	t.Parallel()

	query, args, err := topKeywordsQuery(5)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT keyword, COUNT(*), MAX(score), COALESCE(SUM(matches), 0) FROM keyword_outcomes WHERE error = $1 GROUP BY keyword ORDER BY MAX(score) DESC, keyword LIMIT 5"
	if query != want {
		t.Fatalf("query =\n%s\nwant\n%s", query, want)
	}
	if !reflect.DeepEqual(args, []any{""}) {
		t.Fatalf("args = %v", args)
	}
}

// TestOutcomeRepoRoundTrip runs against RESEARCH_TEST_POSTGRES_URL when set.
func TestOutcomeRepoRoundTrip(t *testing.T) {
	url := os.Getenv("RESEARCH_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("RESEARCH_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := NewPool(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE keyword_outcomes CASCADE"); err != nil {
		t.Fatal(err)
	}

	repo := NewOutcomeRepo(db)
	o := &entity.KeywordOutcome{
		Keyword:   "収納",
		Searched:  10,
		Passed:    2,
		Score:     71.7,
		StartedAt: time.Now(),
		Matches: []entity.MatchedProduct{
			{Listing: entity.CandidateListing{ID: "B1", Title: "box", Price: 2500}},
		},
		FilterReasons: map[entity.RejectReason]int{entity.ReasonPriceTooLow: 1},
	}
	if err := repo.Save(ctx, "s1", o); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, "s1", &entity.KeywordOutcome{Keyword: "ラック", Score: 12, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	stats, err := repo.TopKeywords(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].Keyword != "収納" || stats[0].Matches != 1 || stats[0].BestScore != 71.7 {
		t.Fatalf("stats = %+v", stats)
	}
}
