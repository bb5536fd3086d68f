package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/matcher"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/internal/scoring"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

type fakeResearcher struct {
	mu       sync.Mutex
	outcomes map[string]*entity.KeywordOutcome
	errs     map[string]error
	calls    []string
	onCall   func(keyword string)
}

func (f *fakeResearcher) SessionID() string { return "test-session" }

func (f *fakeResearcher) Research(_ context.Context, keyword string) (*entity.KeywordOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, keyword)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(keyword)
	}

	out := &entity.KeywordOutcome{Keyword: keyword}
	if o, ok := f.outcomes[keyword]; ok {
		cp := *o
		cp.Matches = append([]entity.MatchedProduct(nil), o.Matches...)
		out = &cp
	}
	out.Score = scoring.ScoreOutcome(out)
	if err, ok := f.errs[keyword]; ok {
		return out, err
	}
	return out, nil
}

func (f *fakeResearcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func outcome(searched, passed int, ids ...string) *entity.KeywordOutcome {
	o := &entity.KeywordOutcome{Searched: searched, Passed: passed}
	for _, id := range ids {
		o.Matches = append(o.Matches, entity.MatchedProduct{Listing: entity.CandidateListing{ID: id}})
	}
	return o
}

// memStateRepo round-trips the state through JSON like the file store does.
type memStateRepo struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (r *memStateRepo) Load(context.Context) (*entity.ExplorationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return entity.NewExplorationState(time.Time{}), nil
	}
	st := &entity.ExplorationState{}
	if err := json.Unmarshal(r.data, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *memStateRepo) Save(_ context.Context, st *entity.ExplorationState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = b
	r.saves++
	return nil
}

func (r *memStateRepo) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	return nil
}

type memKnownRepo struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newKnown(ids ...string) *memKnownRepo {
	r := &memKnownRepo{ids: make(map[string]struct{})}
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	return r
}

func (r *memKnownRepo) Load(context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.ids))
	for id := range r.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *memKnownRepo) Add(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	return nil
}

func (r *memKnownRepo) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

type fakeSuggest map[string][]string

func (f fakeSuggest) Suggest(_ context.Context, keyword string) ([]string, error) {
	return f[keyword], nil
}

type memQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *memQueue) Push(_ context.Context, keywords ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, keywords...)
	return nil
}

func (q *memQueue) Requeue(_ context.Context, keywords ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append([]string(nil), keywords...), q.items...)
	return nil
}

func (q *memQueue) Pop(context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", repository.ErrQueueEmpty
	}
	kw := q.items[0]
	q.items = q.items[1:]
	return kw, nil
}

func (q *memQueue) Size(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

type memSubmitted map[string]struct{}

func (m memSubmitted) MarkSubmitted(_ context.Context, kw string, _ time.Duration) error {
	m[kw] = struct{}{}
	return nil
}

func (m memSubmitted) IsSubmitted(_ context.Context, kw string) (bool, error) {
	_, ok := m[kw]
	return ok, nil
}

func (m memSubmitted) RemoveSubmitted(_ context.Context, kw string) error {
	delete(m, kw)
	return nil
}

type fakeSearch struct {
	listings []entity.CandidateListing
	err      error
	images   map[string][]entity.SourcingCandidate
}

func (f *fakeSearch) Search(context.Context, string) ([]entity.CandidateListing, error) {
	return f.listings, f.err
}

func (f *fakeSearch) ImageSearch(_ context.Context, imageURL string) ([]entity.SourcingCandidate, error) {
	return f.images[imageURL], nil
}

// fakeMatcher keeps candidates whose image URL is listed.
type fakeMatcher map[string]bool

func (f fakeMatcher) Match(_ context.Context, _ matcher.Reference, cands []entity.SourcingCandidate) []entity.MatchSignal {
	out := make([]entity.MatchSignal, len(cands))
	for i, c := range cands {
		out[i] = entity.MatchSignal{Keep: f[c.ImageURL], Combined: 0.5, Path: entity.PathFeatures}
	}
	return out
}

type memOutcomes struct {
	mu    sync.Mutex
	saved []*entity.KeywordOutcome
}

func (m *memOutcomes) Save(_ context.Context, _ string, o *entity.KeywordOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, o)
	return nil
}

func (m *memOutcomes) TopKeywords(context.Context, int) ([]repository.KeywordStat, error) {
	return nil, nil
}

// testExploreConfig disables every limit so tests opt in to what they need.
func testExploreConfig() config.ExploreConfig {
	cfg := config.Default().Explore
	cfg.MaxKeywords = 0
	cfg.MaxDurationMinutes = 0
	cfg.MaxCandidates = 0
	cfg.DryRunThreshold = 0
	cfg.MaxDepth = 2
	cfg.ExcludedKeywords = nil
	return cfg
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
