package matcher

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/filter"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

// Reference is the destination listing a set of candidates is compared against.
type Reference struct {
	ImageURL string
	Title    string
}

// Matcher decides which sourcing candidates depict the same product as a
// reference listing.
type Matcher struct {
	cfg      config.MatcherConfig
	fetcher  repository.ImageFetcher
	embedder repository.ImageEmbedder
	ngWords  []string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a matcher. embedder may be nil, in which case every pair is
// scored on local features and colour alone.
func New(cfg config.MatcherConfig, fetcher repository.ImageFetcher, embedder repository.ImageEmbedder, l *zap.Logger, m *metrics.Metrics) *Matcher {
	var ng []string
	for _, w := range cfg.NGWords {
		if w = utils.NormalizeKeyword(w); w != "" {
			ng = append(ng, w)
		}
	}
	return &Matcher{
		cfg:      cfg,
		fetcher:  fetcher,
		embedder: embedder,
		ngWords:  ng,
		logger:   logger.OrNop(l).Named("matcher"),
		metrics:  m,
	}
}

// imageFeatures is everything the matcher derives from one image.
type imageFeatures struct {
	descriptors []descriptor
	histogram   []float64
	embedding   []float32
}

// Match scores every candidate against ref and returns one signal per
// candidate, in order. Individual failures degrade the pair's signal instead
// of aborting the batch.
func (m *Matcher) Match(ctx context.Context, ref Reference, candidates []entity.SourcingCandidate) []entity.MatchSignal {
	signals := make([]entity.MatchSignal, len(candidates))
	if len(candidates) == 0 {
		return signals
	}

	refFeat, err := m.load(ctx, ref.ImageURL)
	if err != nil {
		m.logger.Warn("reference image unavailable", zap.String("url", ref.ImageURL), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.FetchConcurrency))
	for i, c := range candidates {
		if reason := m.screen(c); reason != "" {
			signals[i] = entity.MatchSignal{Path: entity.PathScreened, RejectReason: reason}
			m.metrics.IncMatchRejection(string(entity.PathScreened))
			continue
		}
		g.Go(func() error {
			var candFeat *imageFeatures
			if refFeat != nil {
				f, err := m.load(gctx, c.ImageURL)
				if err != nil {
					m.logger.Debug("candidate image unavailable", zap.String("url", c.ImageURL), zap.Error(err))
				}
				candFeat = f
			}
			signals[i] = m.Fuse(m.compare(refFeat, candFeat, ref.Title, c.Title))
			if !signals[i].Keep {
				m.metrics.IncMatchRejection(string(signals[i].Path))
			}
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

// screen rejects candidates that cannot be a sensible match before any download.
func (m *Matcher) screen(c entity.SourcingCandidate) string {
	if c.ImageURL == "" {
		return "no_image"
	}
	if c.PriceCNY < m.cfg.MinPriceCNY {
		return "price_sanity"
	}
	if len(m.ngWords) > 0 {
		title := utils.NormalizeKeyword(c.Title)
		for _, w := range m.ngWords {
			if strings.Contains(title, w) {
				return "ng_word"
			}
		}
	}
	return ""
}

// compare collects the raw similarity readings for one pair. Missing
// features on either side leave the corresponding readings at zero.
func (m *Matcher) compare(ref, cand *imageFeatures, refTitle, candTitle string) entity.MatchSignal {
	sig := entity.MatchSignal{TitleRelevance: filter.TitleRelevance(refTitle, candTitle)}
	if ref == nil || cand == nil {
		return sig
	}
	sig.LocalFeature = featureSimilarity(ref.descriptors, cand.descriptors, m.cfg.RatioThreshold)
	sig.Histogram = correlation(ref.histogram, cand.histogram)
	if ref.embedding != nil && cand.embedding != nil {
		sig.Embedding, sig.EmbeddingOK = cosine(ref.embedding, cand.embedding)
	}
	return sig
}

// Fuse combines the readings of sig into a single score and applies the
// garbage rejection rules of the path in use. A pair that passes the image
// floors is still rejected when the titles share nothing; a relevant title
// never keeps a pair the image floors rejected.
func (m *Matcher) Fuse(sig entity.MatchSignal) entity.MatchSignal {
	c := m.cfg
	if sig.EmbeddingOK {
		sig.Path = entity.PathEmbedding
		sig.Combined = c.EmbeddingWeight*sig.Embedding + c.EmbeddingHistogramWeight*sig.Histogram + c.EmbeddingTitleWeight*sig.TitleRelevance
		switch {
		case sig.Embedding < c.EmbeddingHardFloor:
			sig.RejectReason = fmt.Sprintf("embedding %.2f below %.2f", sig.Embedding, c.EmbeddingHardFloor)
		case sig.Embedding < c.EmbeddingSoftFloor && sig.Histogram < c.EmbeddingHistogramFloor:
			sig.RejectReason = fmt.Sprintf("embedding %.2f with colour %.2f", sig.Embedding, sig.Histogram)
		}
	} else {
		sig.Path = entity.PathFeatures
		sig.Combined = c.FeatureWeight*sig.LocalFeature + c.FeatureHistogramWeight*sig.Histogram + c.FeatureTitleWeight*sig.TitleRelevance
		switch {
		case sig.LocalFeature == 0:
			sig.RejectReason = "no matching features"
		case sig.LocalFeature < c.FeatureHardFloor && sig.Histogram < c.FeatureHardHistogramFloor,
			sig.LocalFeature < c.FeatureSoftFloor && sig.Histogram < c.FeatureHistogramFloor:
			sig.RejectReason = fmt.Sprintf("features %.3f with colour %.2f", sig.LocalFeature, sig.Histogram)
		}
	}
	if sig.RejectReason == "" && sig.TitleRelevance == 0 {
		sig.RejectReason = "unrelated title"
	}
	sig.Keep = sig.RejectReason == ""
	return sig
}

// load downloads and analyses one image.
func (m *Matcher) load(ctx context.Context, url string) (*imageFeatures, error) {
	if url == "" {
		return nil, fmt.Errorf("empty image url")
	}
	data, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	f, err := m.analyse(data)
	if err != nil {
		return nil, err
	}
	if m.embedder != nil && m.embedder.Available() {
		emb, err := m.embedder.EmbedImage(ctx, data)
		if err != nil {
			m.logger.Debug("embedding unavailable, using local features", zap.String("url", url), zap.Error(err))
		} else {
			f.embedding = emb
		}
	}
	return f, nil
}

func (m *Matcher) analyse(data []byte) (*imageFeatures, error) {
	img, err := decodeResized(data, m.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	return analyseImage(img, m.cfg), nil
}

func analyseImage(img *image.RGBA, cfg config.MatcherConfig) *imageFeatures {
	return &imageFeatures{
		descriptors: extractFeatures(toGray(img), cfg.FASTThreshold, cfg.MaxKeypoints),
		histogram:   hsHistogram(img),
	}
}
