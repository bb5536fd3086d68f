package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/filter"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

func ptr[T any](v T) *T { return &v }

func passingListing(id, image string) entity.CandidateListing {
	return entity.CandidateListing{
		ID:             id,
		Title:          "収納 ボックス 折りたたみ",
		Price:          2500,
		ImageURL:       image,
		Rank:           10000,
		Category:       "ホーム＆キッチン",
		ReviewCount:    10,
		Rating:         ptr(3.9),
		Fulfillment:    entity.FulfillmentFBA,
		VariationCount: 1,
	}
}

func newTestResearcher(cfg config.Config, search repository.SearchRepository, m CandidateMatcher, outcomes repository.OutcomeRepository) KeywordResearcher {
	pipeline := filter.NewPipeline(cfg.Filter, filter.NewSalesEstimator(cfg.Sales))
	profit := filter.NewProfitCalculator(cfg.Profit, cfg.Fees)
	return NewResearcher(search, pipeline, m, profit, outcomes, cfg.Matcher, nil, nil)
}

func TestResearchPipeline(t *testing.T) {
	t.Parallel()

	cheap := passingListing("B1", "img1")
	cheap.Price = 100
	search := &fakeSearch{
		listings: []entity.CandidateListing{
			passingListing("B0", "img1"),
			cheap,
			passingListing("B2", ""),
		},
		images: map[string][]entity.SourcingCandidate{
			"img1": {
				{ImageURL: "k1", PriceCNY: 30},
				{ImageURL: "k2", PriceCNY: 40},
				{ImageURL: "k3", PriceCNY: 10},  // margin above the plausible ceiling
				{ImageURL: "k4", PriceCNY: 100}, // loss
				{ImageURL: "r5", PriceCNY: 30},  // rejected by the matcher
			},
		},
	}
	store := &memOutcomes{}
	r := newTestResearcher(config.Default(), search, fakeMatcher{"k1": true, "k2": true, "k3": true, "k4": true}, store)

	out, err := r.Research(context.Background(), "収納 ボックス")
	if err != nil {
		t.Fatal(err)
	}
	if out.Searched != 3 || out.Passed != 2 {
		t.Fatalf("searched=%d passed=%d", out.Searched, out.Passed)
	}
	if out.FilterReasons[entity.ReasonPriceTooLow] != 1 {
		t.Fatalf("filter reasons = %v", out.FilterReasons)
	}
	if len(out.Matches) != 1 {
		t.Fatalf("matches = %+v", out.Matches)
	}
	m := out.Matches[0]
	if m.Listing.ID != "B0" || m.Best.Candidate.ImageURL != "k1" {
		t.Fatalf("best = %+v", m.Best)
	}
	if len(m.Alternatives) != 1 || m.Alternatives[0].Candidate.ImageURL != "k2" {
		t.Fatalf("alternatives = %+v", m.Alternatives)
	}
	if m.Best.Profit.Margin <= m.Alternatives[0].Profit.Margin {
		t.Fatal("best candidate does not have the highest margin")
	}
	if out.Score != 71.7 {
		t.Fatalf("score = %v, want 71.7", out.Score)
	}
	if len(store.saved) != 1 || store.saved[0] != out {
		t.Fatalf("outcome not stored: %d", len(store.saved))
	}
	if r.SessionID() == "" {
		t.Fatal("empty session id")
	}
}

func TestResearchLimitsCandidates(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Matcher.MaxCandidates = 1
	search := &fakeSearch{
		listings: []entity.CandidateListing{passingListing("B0", "img1")},
		images: map[string][]entity.SourcingCandidate{
			"img1": {{ImageURL: "k1", PriceCNY: 30}, {ImageURL: "k2", PriceCNY: 40}},
		},
	}
	r := newTestResearcher(cfg, search, fakeMatcher{"k1": true, "k2": true}, nil)

	out, err := r.Research(context.Background(), "kw")
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Matches) != 1 || len(out.Matches[0].Alternatives) != 0 {
		t.Fatalf("matches = %+v", out.Matches)
	}
}

func TestResearchSearchFailure(t *testing.T) {
	t.Parallel()

	store := &memOutcomes{}
	search := &fakeSearch{err: repository.ErrSearchTimeout}
	r := newTestResearcher(config.Default(), search, fakeMatcher{}, store)

	out, err := r.Research(context.Background(), "kw")
	if !errors.Is(err, repository.ErrSearchTimeout) {
		t.Fatalf("err = %v", err)
	}
	if out == nil || out.Err == "" || out.Searched != 0 || out.Score != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(store.saved) != 1 {
		t.Fatal("failed outcome not stored")
	}
}
