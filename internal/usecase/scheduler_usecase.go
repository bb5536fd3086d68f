package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/frontier"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

// SchedulerState is the lifecycle phase of a frontier exploration.
type SchedulerState string

const (
	StateIdle      SchedulerState = "idle"
	StateRunning   SchedulerState = "running"
	StateStopping  SchedulerState = "stopping"
	StateExhausted SchedulerState = "exhausted"
	StateCompleted SchedulerState = "completed"
)

const (
	// resumeScore is the priority of a queued keyword whose score was not recorded.
	resumeScore = 50.0
	// titleSeedFloor is the minimum priority of keywords taken from matched titles.
	titleSeedFloor = 50.0
	persistTimeout = 10 * time.Second
)

var ErrSchedulerBusy = errors.New("scheduler is already running")

// RunOptions controls how a session starts.
type RunOptions struct {
	// Resume rebuilds the frontier from the persisted state.
	Resume bool
	// Reset discards the persisted state before starting.
	Reset bool
	// OnOutcome, if set, receives every keyword outcome after deduplication.
	OnOutcome func(*entity.KeywordOutcome)
}

// Summary describes a finished session.
type Summary struct {
	SessionID  string                  `json:"session_id"`
	State      SchedulerState          `json:"state"`
	Explored   int                     `json:"explored"`
	Found      int                     `json:"found"`
	Duplicates int                     `json:"duplicates"`
	Remaining  int                     `json:"remaining"`
	Products   []entity.MatchedProduct `json:"products"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// Snapshot is a point-in-time view of a running scheduler.
type Snapshot struct {
	State           SchedulerState `json:"state"`
	SessionID       string         `json:"session_id,omitempty"`
	StartedAt       time.Time      `json:"started_at,omitempty"`
	LastKeyword     string         `json:"last_keyword,omitempty"`
	Explored        int            `json:"explored"`
	TotalResearched int            `json:"total_researched"`
	FoundProducts   int            `json:"found_products"`
	FrontierSize    int            `json:"frontier_size"`
	ZeroHitStreak   int            `json:"zero_hit_streak"`
}

// FrontierScheduler explores keywords in score order, one at a time.
type FrontierScheduler interface {
	Run(ctx context.Context, seeds []string, opts RunOptions) (*Summary, error)
	Snapshot() Snapshot
}

// sessionOutcome remembers what a keyword produced during this session for refill.
type sessionOutcome struct {
	keyword string
	score   float64
	titles  []string
}

type schedulerUseCase struct {
	cfg        config.ExploreConfig
	excluded   []string
	researcher KeywordResearcher
	suggest    repository.SuggestRepository
	states     repository.StateRepository
	known      repository.KnownProductRepository
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu         sync.Mutex
	status     SchedulerState
	state      *entity.ExplorationState
	frontier   *frontier.Frontier
	knownIDs   map[string]struct{}
	seen       map[string]struct{}
	history    []sessionOutcome
	zeroHits   int
	explored   int
	found      int
	startedAt  time.Time
	duplicates int
	products   []entity.MatchedProduct
}

// NewScheduler creates a frontier scheduler. excluded lists keywords (matched
// whole or as a token) that are never explored; suggest may be nil to disable
// expansion.
func NewScheduler(
	cfg config.ExploreConfig,
	excluded []string,
	researcher KeywordResearcher,
	suggest repository.SuggestRepository,
	states repository.StateRepository,
	known repository.KnownProductRepository,
	l *zap.Logger,
	m *metrics.Metrics,
) FrontierScheduler {
	ex := make([]string, 0, len(excluded))
	for _, e := range excluded {
		if n := utils.NormalizeKeyword(e); n != "" {
			ex = append(ex, n)
		}
	}
	return &schedulerUseCase{
		cfg:        cfg,
		excluded:   ex,
		researcher: researcher,
		suggest:    suggest,
		states:     states,
		known:      known,
		logger:     logger.OrNop(l).Named("scheduler"),
		metrics:    m,
		now:        time.Now,
		status:     StateIdle,
	}
}

func (s *schedulerUseCase) Run(ctx context.Context, seeds []string, opts RunOptions) (*Summary, error) {
	s.mu.Lock()
	if s.status == StateRunning || s.status == StateStopping {
		s.mu.Unlock()
		return nil, ErrSchedulerBusy
	}
	s.status = StateRunning
	s.mu.Unlock()

	if err := s.start(ctx, seeds, opts); err != nil {
		s.setStatus(StateIdle)
		return nil, err
	}

	final := s.loop(ctx, opts)
	s.finish(ctx)
	s.setStatus(final)

	s.mu.Lock()
	defer s.mu.Unlock()
	sum := &Summary{
		SessionID:  s.researcher.SessionID(),
		State:      final,
		Explored:   s.explored,
		Found:      s.found,
		Duplicates: s.duplicates,
		Remaining:  s.frontier.Len(),
		Products:   s.products,
		Elapsed:    s.now().Sub(s.startedAt),
	}
	s.logger.Info("exploration finished",
		zap.String("state", string(final)),
		zap.Int("explored", sum.Explored),
		zap.Int("found", sum.Found),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("remaining", sum.Remaining),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// start prepares the state, the frontier and the known-product set.
func (s *schedulerUseCase) start(ctx context.Context, seeds []string, opts RunOptions) error {
	if opts.Reset {
		if err := s.states.Reset(ctx); err != nil {
			return err
		}
	}

	now := s.now()
	state := entity.NewExplorationState(now)
	if opts.Resume {
		loaded, err := s.states.Load(ctx)
		if err != nil {
			return err
		}
		state = loaded
		if state.StartedAt.IsZero() {
			state.StartedAt = now
		}
		if released := state.ExpireCooldowns(now, s.cfg.Cooldown); len(released) > 0 {
			s.logger.Info("cooldown elapsed", zap.Strings("keywords", released))
		}
	}

	knownIDs, err := s.known.Load(ctx)
	if err != nil {
		s.logger.Warn("known product registry unavailable, starting empty", zap.Error(err))
		knownIDs = make(map[string]struct{})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.frontier = frontier.New()
	s.knownIDs = knownIDs
	s.seen = make(map[string]struct{})
	s.history = nil
	s.products = nil
	s.zeroHits, s.explored, s.found, s.duplicates = 0, 0, 0, 0
	s.startedAt = now

	if opts.Resume && len(state.Queued) > 0 {
		for _, kw := range state.Queued {
			score, ok := state.ScoreOf(kw)
			if !ok {
				score = resumeScore
			}
			s.enqueueLocked(kw, 0, score)
		}
	} else {
		for _, kw := range seeds {
			s.enqueueLocked(kw, 0, s.cfg.InitialScore)
		}
	}
	s.state.Queued = s.queuedLocked()

	s.logger.Info("exploration started",
		zap.Bool("resume", opts.Resume),
		zap.Int("frontier", s.frontier.Len()),
		zap.Int("researched", len(state.Researched)),
		zap.Int("known_products", len(knownIDs)),
	)
	return nil
}

func (s *schedulerUseCase) loop(ctx context.Context, opts RunOptions) SchedulerState {
	for {
		if ctx.Err() != nil {
			s.setStatus(StateStopping)
			s.logger.Info("stop requested", zap.Error(ctx.Err()))
			return StateStopping
		}
		if reason := s.stopReason(); reason != "" {
			s.logger.Info("stop condition reached", zap.String("reason", reason))
			return StateCompleted
		}
		kw, ok := s.dequeue()
		if !ok {
			s.logger.Info("frontier exhausted")
			return StateExhausted
		}
		out := s.explore(ctx, kw)
		if opts.OnOutcome != nil {
			opts.OnOutcome(out)
		}
		s.expand(ctx, kw)
		s.persist(ctx)
	}
}

// stopReason names the stop condition that holds, if any.
func (s *schedulerUseCase) stopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cfg.MaxKeywords > 0 && s.explored >= s.cfg.MaxKeywords:
		return "max_keywords"
	case s.cfg.MaxDurationMinutes > 0 && s.now().Sub(s.startedAt) >= time.Duration(s.cfg.MaxDurationMinutes)*time.Minute:
		return "max_duration"
	case s.cfg.MaxCandidates > 0 && s.found >= s.cfg.MaxCandidates:
		return "max_candidates"
	}
	return ""
}

// dequeue pops the best eligible keyword, refilling the frontier once when
// it runs dry. It reports false when nothing eligible remains.
func (s *schedulerUseCase) dequeue() (entity.Keyword, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refilled := false
	for {
		kw, ok := s.frontier.Pop()
		if !ok {
			if refilled || s.refillLocked() == 0 {
				s.metrics.SetFrontierSize(0)
				return entity.Keyword{}, false
			}
			refilled = true
			continue
		}
		if s.eligibleLocked(kw.Text, s.now()) {
			s.metrics.SetFrontierSize(s.frontier.Len())
			return kw, true
		}
	}
}

// explore researches one keyword under its own deadline and folds the
// outcome into the session.
func (s *schedulerUseCase) explore(ctx context.Context, kw entity.Keyword) *entity.KeywordOutcome {
	kctx, cancel := s.keywordContext(ctx)
	defer cancel()

	s.logger.Info("exploring keyword",
		zap.String("keyword", kw.Text),
		zap.Float64("priority", kw.Score),
		zap.Int("depth", kw.Depth),
	)
	start := s.now()
	out, err := s.researcher.Research(kctx, kw.Text)
	if out == nil {
		out = &entity.KeywordOutcome{Keyword: kw.Text, StartedAt: start}
	}
	if err != nil {
		if out.Err == "" {
			out.Err = err.Error()
		}
		s.logger.Warn("keyword research failed", zap.String("keyword", kw.Text), zap.Error(err))
	}
	s.metrics.ObserveKeyword(err != nil, s.now().Sub(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkResearched(kw.Text, s.now())
	s.explored++

	// The streak follows raw matches; a keyword whose hits were all seen
	// earlier in the session still resets it.
	matched := len(out.Matches)
	counted := s.dedupLocked(out)
	s.state.FoundProducts += counted
	s.found += counted
	s.metrics.AddMatchedProducts(counted)

	titles := make([]string, 0, len(out.Matches))
	for _, m := range out.Matches {
		titles = append(titles, m.Listing.Title)
	}
	s.history = append(s.history, sessionOutcome{keyword: kw.Text, score: out.Score, titles: titles})

	if out.Score > 0 {
		s.boostSiblingsLocked(kw.Text, out.Score)
	}
	for _, t := range s.titleKeywordsLocked(titles) {
		s.enqueueLocked(t, 0, max(out.Score, titleSeedFloor))
	}

	if matched == 0 {
		s.zeroHits++
	} else {
		s.zeroHits = 0
	}
	if s.cfg.DryRunThreshold > 0 && s.zeroHits >= s.cfg.DryRunThreshold {
		if n := s.pruneLocked(); n > 0 {
			s.logger.Info("pruned low-score keywords", zap.Int("removed", n), zap.Int("zero_hit_streak", s.zeroHits))
		}
		s.zeroHits = 0
	}
	return out
}

// expand enqueues the keyword's suggestions and the big keywords derived
// from them, once per keyword and only below the depth bound.
func (s *schedulerUseCase) expand(ctx context.Context, kw entity.Keyword) {
	if s.suggest == nil {
		return
	}
	s.mu.Lock()
	skip := s.state.IsExpanded(kw.Text) || kw.Depth >= s.cfg.MaxDepth
	s.mu.Unlock()
	if skip {
		return
	}

	kctx, cancel := s.keywordContext(ctx)
	defer cancel()
	suggestions, err := s.suggest.Suggest(kctx, kw.Text)
	if err != nil {
		s.logger.Warn("suggest failed", zap.String("keyword", kw.Text), zap.Error(err))
		suggestions = nil
	}
	if limit := s.cfg.MaxSuggestsPerSeed; limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkExpanded(kw.Text)
	added := 0
	for _, sg := range suggestions {
		if s.enqueueLocked(sg, kw.Depth+1, kw.Score) {
			added++
		}
	}
	if kw.Depth+1 < s.cfg.MaxDepth {
		bigs := bigKeywords(kw.Text, suggestions)
		if limit := s.cfg.MaxBigKeywordsPerExpand; limit >= 0 && len(bigs) > limit {
			bigs = bigs[:limit]
		}
		for _, b := range bigs {
			if s.state.IsExpanded(b) {
				continue
			}
			if s.enqueueLocked(b, kw.Depth+1, kw.Score) {
				added++
			}
		}
	}
	s.logger.Debug("keyword expanded",
		zap.String("keyword", kw.Text),
		zap.Int("suggestions", len(suggestions)),
		zap.Int("enqueued", added),
	)
}

// refillLocked derives new keywords when the frontier is empty: tokens of
// matched titles from well-scoring keywords, then tokens of expanded seeds.
func (s *schedulerUseCase) refillLocked() int {
	now := s.now()
	added := 0
	for _, h := range s.history {
		if h.score <= s.cfg.TitleRefillMinScore {
			continue
		}
		for _, title := range h.titles {
			for _, tok := range utils.Tokens(title) {
				if !titleToken(tok) || !s.eligibleLocked(tok, now) {
					continue
				}
				if s.enqueueLocked(tok, 0, h.score*s.cfg.TitleRefillFactor) {
					added++
				}
			}
		}
	}
	for _, seed := range s.state.ExpandedSeeds() {
		score, ok := s.state.ScoreOf(seed)
		if !ok || score <= s.cfg.SeedRefillMinScore {
			continue
		}
		for _, tok := range utils.Tokens(seed) {
			if utf8.RuneCountInString(tok) < 2 || !s.eligibleLocked(tok, now) {
				continue
			}
			if s.enqueueLocked(tok, 0, score*s.cfg.SeedRefillFactor) {
				added++
			}
		}
	}
	if added > 0 {
		s.logger.Info("frontier refilled", zap.Int("added", added))
	}
	return added
}

// boostSiblingsLocked averages the priority of queued keywords sharing a
// token with keyword toward its outcome score.
func (s *schedulerUseCase) boostSiblingsLocked(keyword string, score float64) {
	s.frontier.Rewrite(func(kw entity.Keyword) (entity.Keyword, bool) {
		if kw.Text != keyword && utils.SharesToken(keyword, kw.Text) {
			kw.Score = (kw.Score + score) / 2
			s.state.SetScore(kw.Text, kw.Score)
		}
		return kw, true
	})
}

// pruneLocked drops queued keywords scoring below PruneFactor of the mean.
func (s *schedulerUseCase) pruneLocked() int {
	before := s.frontier.Len()
	if before == 0 {
		return 0
	}
	cutoff := s.frontier.Mean() * s.cfg.PruneFactor
	s.frontier.Rewrite(func(kw entity.Keyword) (entity.Keyword, bool) {
		return kw, kw.Score >= cutoff
	})
	s.metrics.SetFrontierSize(s.frontier.Len())
	return before - s.frontier.Len()
}

// dedupLocked filters out products already reported this session, flags
// products known from earlier sessions and returns how many count as new.
func (s *schedulerUseCase) dedupLocked(out *entity.KeywordOutcome) int {
	kept := out.Matches[:0]
	counted := 0
	for _, m := range out.Matches {
		id := m.Listing.ID
		switch {
		case id == "":
			counted++
		case contains(s.seen, id):
			continue
		case contains(s.knownIDs, id):
			m.Duplicate = true
			s.duplicates++
			s.seen[id] = struct{}{}
		default:
			s.seen[id] = struct{}{}
			counted++
		}
		kept = append(kept, m)
	}
	out.Matches = kept
	s.products = append(s.products, kept...)
	return counted
}

// titleKeywordsLocked picks the most frequent eligible tokens of matched titles.
func (s *schedulerUseCase) titleKeywordsLocked(titles []string) []string {
	if s.cfg.MaxTitleKeywords <= 0 || len(titles) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, title := range titles {
		for _, tok := range utils.Tokens(title) {
			if titleToken(tok) {
				counts[tok]++
			}
		}
	}
	ranked := make([]string, 0, len(counts))
	for tok := range counts {
		ranked = append(ranked, tok)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	now := s.now()
	var out []string
	for _, tok := range ranked {
		if s.frontier.Contains(tok) || !s.eligibleLocked(tok, now) {
			continue
		}
		out = append(out, tok)
		if len(out) >= s.cfg.MaxTitleKeywords {
			break
		}
	}
	return out
}

// enqueueLocked adds an eligible keyword to the frontier and records its score.
func (s *schedulerUseCase) enqueueLocked(text string, depth int, score float64) bool {
	text = utils.NormalizeKeyword(text)
	now := s.now()
	if !s.eligibleLocked(text, now) {
		return false
	}
	if !s.frontier.Push(entity.Keyword{Text: text, Score: score, Depth: depth, FirstSeen: now}) {
		return false
	}
	s.state.SetScore(text, score)
	s.metrics.SetFrontierSize(s.frontier.Len())
	return true
}

func (s *schedulerUseCase) eligibleLocked(text string, now time.Time) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if s.state.IsResearched(text) || s.state.InCooldown(text, now, s.cfg.Cooldown) {
		return false
	}
	return !s.excludedLocked(text)
}

func (s *schedulerUseCase) excludedLocked(text string) bool {
	if len(s.excluded) == 0 {
		return false
	}
	tokens := utils.TokenSet(text)
	for _, e := range s.excluded {
		if e == text {
			return true
		}
		if _, ok := tokens[e]; ok {
			return true
		}
	}
	return false
}

func (s *schedulerUseCase) persist(ctx context.Context) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Queued = s.queuedLocked()
	if err := s.states.Save(pctx, s.state); err != nil {
		s.logger.Error("failed to persist exploration state", zap.Error(err))
	}
}

// finish persists the state and merges this session's products into the registry.
func (s *schedulerUseCase) finish(ctx context.Context) {
	s.persist(ctx)

	s.mu.Lock()
	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		if !contains(s.knownIDs, id) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.known.Add(pctx, ids); err != nil {
		s.logger.Error("failed to update known product registry", zap.Error(err))
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		s.knownIDs[id] = struct{}{}
	}
	s.mu.Unlock()
	s.logger.Info("known product registry updated", zap.Int("added", len(ids)))
}

func (s *schedulerUseCase) queuedLocked() []string {
	snap := s.frontier.Snapshot()
	out := make([]string, len(snap))
	for i, kw := range snap {
		out[i] = kw.Text
	}
	return out
}

// keywordContext bounds one keyword's collaborator calls. A stop request does
// not cancel it; the loop checks for cancellation between keywords.
func (s *schedulerUseCase) keywordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if s.cfg.KeywordTimeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, s.cfg.KeywordTimeout)
}

func (s *schedulerUseCase) setStatus(st SchedulerState) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *schedulerUseCase) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:         s.status,
		SessionID:     s.researcher.SessionID(),
		Explored:      s.explored,
		ZeroHitStreak: s.zeroHits,
	}
	if s.state != nil {
		snap.StartedAt = s.startedAt
		snap.LastKeyword = s.state.LastKeyword
		snap.TotalResearched = s.state.TotalResearched
		snap.FoundProducts = s.state.FoundProducts
	}
	if s.frontier != nil {
		snap.FrontierSize = s.frontier.Len()
	}
	return snap
}

// bigKeywords strips the seed's own tokens from each suggestion and returns
// the distinct remainders of at least two characters.
func bigKeywords(seed string, suggestions []string) []string {
	seedTokens := utils.TokenSet(seed)
	seen := make(map[string]struct{})
	var out []string
	for _, sg := range suggestions {
		var rest []string
		for _, t := range utils.Tokens(sg) {
			if _, ok := seedTokens[t]; !ok {
				rest = append(rest, t)
			}
		}
		big := strings.Join(rest, " ")
		if utf8.RuneCountInString(big) < 2 || contains(seen, big) {
			continue
		}
		seen[big] = struct{}{}
		out = append(out, big)
	}
	return out
}

// titleToken reports whether a title token is a plausible search keyword:
// at least two characters, not a bare ASCII word (often a brand) and not a number.
func titleToken(tok string) bool {
	if utf8.RuneCountInString(tok) < 2 {
		return false
	}
	if utils.IsASCIIAlnum(tok) {
		return false
	}
	digits := numberSeparators.Replace(tok)
	return digits != "" && !utils.IsNumeric(digits)
}

var numberSeparators = strings.NewReplacer(",", "", ".", "")

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
