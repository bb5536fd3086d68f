package matcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"testing"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/filter"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if b, ok := f[url]; ok {
		return b, nil
	}
	return nil, errors.New("not found")
}

type fakeEmbedder struct {
	vectors map[string][]float32 // keyed by encoded image
	err     error
}

func (f fakeEmbedder) Available() bool { return true }

func (f fakeEmbedder) EmbedImage(_ context.Context, img []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[string(img)], nil
}

func texturedPNG(t *testing.T, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewRGBA(image.Rect(0, 0, 320, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	for i := 0; i < 60; i++ {
		x0, y0 := rng.IntN(280), rng.IntN(280)
		w, h := 10+rng.IntN(40), 10+rng.IntN(40)
		c := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
		for y := y0; y < min(y0+h, 320); y++ {
			for x := x0; x < min(x0+w, 320); x++ {
				img.Set(x, y, c)
			}
		}
	}
	return encodePNG(t, img)
}

func flatPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newMatcher(f fakeFetcher, e repository.ImageEmbedder) *Matcher {
	return New(config.Default().Matcher, f, e, nil, nil)
}

func TestFuseEmbeddingPath(t *testing.T) {
	t.Parallel()

	m := newMatcher(nil, nil)
	cases := []struct {
		name      string
		embedding float64
		histogram float64
		keep      bool
	}{
		{"exactly at hard floor", 0.25, 1.0, true},
		{"just below hard floor", 0.2499, 1.0, false},
		{"below hard floor regardless of colour", 0.20, 1.0, false},
		{"at soft floor without colour", 0.35, 0.0, true},
		{"soft zone at colour floor", 0.30, 0.3, true},
		{"soft zone just below colour floor", 0.30, 0.2999, false},
		{"just below both floors", 0.3499, 0.2999, false},
		{"just below soft floor at colour floor", 0.3499, 0.3, true},
		{"strong embedding", 0.80, -0.5, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig := m.Fuse(entity.MatchSignal{Embedding: tc.embedding, EmbeddingOK: true, Histogram: tc.histogram, TitleRelevance: 1})
			if sig.Path != entity.PathEmbedding {
				t.Fatalf("path = %s", sig.Path)
			}
			if sig.Keep != tc.keep {
				t.Fatalf("keep = %v (%s), want %v", sig.Keep, sig.RejectReason, tc.keep)
			}
			want := 0.6*tc.embedding + 0.2*tc.histogram + 0.2
			if diff := sig.Combined - want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("combined = %v, want %v", sig.Combined, want)
			}
		})
	}
}

func TestFuseFeaturePath(t *testing.T) {
	t.Parallel()

	m := newMatcher(nil, nil)
	cases := []struct {
		name      string
		feature   float64
		histogram float64
		keep      bool
	}{
		{"no features", 0, 1, false},
		{"weak features with strong colour", 0.015, 0.95, true},
		{"weak features below first colour floor", 0.015, 0.39, false},
		{"weak features at first colour floor", 0.015, 0.4, false},
		{"at first floor without enough colour", 0.02, 0.5, false},
		{"between floors below second colour floor", 0.025, 0.5, false},
		{"between floors at second colour floor", 0.025, 0.6, true},
		{"just below second floor", 0.0299, 0.5999, false},
		{"at second floor without colour", 0.03, 0, true},
		{"strong features", 0.3, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig := m.Fuse(entity.MatchSignal{LocalFeature: tc.feature, Histogram: tc.histogram, TitleRelevance: 1})
			if sig.Path != entity.PathFeatures {
				t.Fatalf("path = %s", sig.Path)
			}
			if sig.Keep != tc.keep {
				t.Fatalf("keep = %v (%s), want %v", sig.Keep, sig.RejectReason, tc.keep)
			}
		})
	}
}

func TestFuseRejectsUnrelatedTitles(t *testing.T) {
	t.Parallel()

	m := newMatcher(nil, nil)
	title := filter.TitleRelevance("ワイヤレスイヤホン 防水", "ステンレス鍋 蓋付き")
	if title != 0 {
		t.Fatalf("title relevance = %v, want 0", title)
	}
	for name, sig := range map[string]entity.MatchSignal{
		"embedding": {Embedding: 0.9, EmbeddingOK: true, Histogram: 0.8, TitleRelevance: title},
		"features":  {LocalFeature: 0.5, Histogram: 0.8, TitleRelevance: title},
	} {
		got := m.Fuse(sig)
		if got.Keep || got.RejectReason != "unrelated title" {
			t.Fatalf("%s path kept unrelated titles: %+v", name, got)
		}
		sig.TitleRelevance = 0.2
		if got := m.Fuse(sig); !got.Keep {
			t.Fatalf("%s path rejected weakly related titles: %+v", name, got)
		}
	}
}

func TestTitleRelevanceNeverRescues(t *testing.T) {
	t.Parallel()

	m := newMatcher(nil, nil)
	for _, e := range []float64{0, 0.01, 0.02, 0.1, 0.2, 0.3, 0.5} {
		for _, h := range []float64{-1, 0, 0.2, 0.5, 1} {
			for _, ok := range []bool{true, false} {
				img := m.Fuse(entity.MatchSignal{Embedding: e, EmbeddingOK: ok, LocalFeature: e, Histogram: h, TitleRelevance: 0.5})
				if img.Keep {
					continue
				}
				hi := m.Fuse(entity.MatchSignal{Embedding: e, EmbeddingOK: ok, LocalFeature: e, Histogram: h, TitleRelevance: 1})
				if hi.Keep {
					t.Fatalf("title relevance kept an image reject: e=%v h=%v embedding=%v", e, h, ok)
				}
			}
		}
	}
}

func TestScreenDropsNGWordsBeforeDownload(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Matcher
	cfg.NGWords = append(cfg.NGWords, "  ＡＣＭＥ ")
	fetched := 0
	m := New(cfg, countingFetcher{fakeFetcher{"ref": texturedPNG(t, 3)}, &fetched}, nil, nil, nil)

	cands := []entity.SourcingCandidate{
		{ImageURL: "x", PriceCNY: 20, Title: "ACME 收纳盒"},
		{ImageURL: "x", PriceCNY: 20, Title: "儿童 皮卡丘 水杯"},
		{ImageURL: "x", PriceCNY: 20, Title: "Nike 同款 运动包"},
	}
	sigs := m.Match(context.Background(), Reference{ImageURL: "ref"}, cands)
	for i, sig := range sigs {
		if sig.Keep || sig.Path != entity.PathScreened || sig.RejectReason != "ng_word" {
			t.Fatalf("candidate %d: %+v", i, sig)
		}
	}
	if fetched != 1 {
		t.Fatalf("fetched %d images, want only the reference", fetched)
	}
}

type countingFetcher struct {
	fakeFetcher
	n *int
}

func (f countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	*f.n++
	return f.fakeFetcher.Fetch(ctx, url)
}

func TestFeatureSimilarity(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Matcher
	a, err := decodeResized(texturedPNG(t, 7), cfg.ImageSize)
	if err != nil {
		t.Fatal(err)
	}
	fa := analyseImage(a, cfg)
	if len(fa.descriptors) < 2 {
		t.Fatalf("textured image produced %d keypoints", len(fa.descriptors))
	}
	if sim := featureSimilarity(fa.descriptors, fa.descriptors, cfg.RatioThreshold); sim < 0.5 {
		t.Fatalf("self similarity = %v", sim)
	}

	flat, err := decodeResized(flatPNG(t), cfg.ImageSize)
	if err != nil {
		t.Fatal(err)
	}
	ff := analyseImage(flat, cfg)
	if sim := featureSimilarity(fa.descriptors, ff.descriptors, cfg.RatioThreshold); sim != 0 {
		t.Fatalf("similarity against flat image = %v, want 0", sim)
	}
}

func TestHistogramCorrelation(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Matcher
	a, _ := decodeResized(texturedPNG(t, 1), cfg.ImageSize)
	b, _ := decodeResized(texturedPNG(t, 99), cfg.ImageSize)
	ha, hb := hsHistogram(a), hsHistogram(b)
	if got := correlation(ha, ha); got < 0.999 {
		t.Fatalf("self correlation = %v", got)
	}
	if got := correlation(ha, hb); got < -1 || got > 1 {
		t.Fatalf("correlation out of range: %v", got)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got, ok := cosine([]float32{1, 0}, []float32{1, 0}); !ok || got != 1 {
		t.Fatalf("parallel = %v %v", got, ok)
	}
	if got, ok := cosine([]float32{1, 0}, []float32{-1, 0}); !ok || got != 0 {
		t.Fatalf("opposite = %v %v, want clamped 0", got, ok)
	}
	if _, ok := cosine([]float32{1}, []float32{1, 0}); ok {
		t.Fatal("length mismatch accepted")
	}
}

func TestMatchEndToEnd(t *testing.T) {
	t.Parallel()

	ref := texturedPNG(t, 42)
	images := fakeFetcher{
		"ref":   ref,
		"same":  ref,
		"flat":  flatPNG(t),
		"other": texturedPNG(t, 1234),
	}
	m := newMatcher(images, nil)
	cands := []entity.SourcingCandidate{
		{ImageURL: "same", PriceCNY: 20},
		{ImageURL: "flat", PriceCNY: 20},
		{ImageURL: "missing", PriceCNY: 20},
		{ImageURL: "same", PriceCNY: 0.1},
		{ImageURL: "", PriceCNY: 20},
	}
	sigs := m.Match(context.Background(), Reference{ImageURL: "ref", Title: "収納 ボックス"}, cands)
	if len(sigs) != len(cands) {
		t.Fatalf("got %d signals", len(sigs))
	}
	if !sigs[0].Keep || sigs[0].Path != entity.PathFeatures {
		t.Fatalf("identical image rejected: %+v", sigs[0])
	}
	if sigs[1].Keep {
		t.Fatalf("flat image kept: %+v", sigs[1])
	}
	if sigs[2].Keep {
		t.Fatalf("unfetchable image kept: %+v", sigs[2])
	}
	if sigs[3].Keep || sigs[3].RejectReason != "price_sanity" {
		t.Fatalf("cheap candidate not screened: %+v", sigs[3])
	}
	if sigs[4].Keep || sigs[4].RejectReason != "no_image" {
		t.Fatalf("imageless candidate not screened: %+v", sigs[4])
	}
}

func TestMatchUsesEmbeddingWhenAvailable(t *testing.T) {
	t.Parallel()

	ref := texturedPNG(t, 42)
	other := texturedPNG(t, 77)
	images := fakeFetcher{"ref": ref, "other": other}
	emb := fakeEmbedder{vectors: map[string][]float32{
		string(ref):   {1, 0, 0},
		string(other): {0.9, 0.1, 0},
	}}
	m := newMatcher(images, emb)

	sigs := m.Match(context.Background(), Reference{ImageURL: "ref"}, []entity.SourcingCandidate{{ImageURL: "other", PriceCNY: 10}})
	if sigs[0].Path != entity.PathEmbedding || !sigs[0].EmbeddingOK {
		t.Fatalf("expected embedding path, got %+v", sigs[0])
	}
	if sigs[0].Embedding < 0.9 {
		t.Fatalf("embedding similarity = %v", sigs[0].Embedding)
	}
}

func TestMatchFallsBackWhenEmbeddingFails(t *testing.T) {
	t.Parallel()

	ref := texturedPNG(t, 42)
	m := newMatcher(fakeFetcher{"ref": ref, "same": ref}, fakeEmbedder{err: errors.New("model offline")})
	sigs := m.Match(context.Background(), Reference{ImageURL: "ref"}, []entity.SourcingCandidate{{ImageURL: "same", PriceCNY: 10}})
	if sigs[0].Path != entity.PathFeatures {
		t.Fatalf("expected feature path fallback, got %+v", sigs[0])
	}
	if !sigs[0].Keep {
		t.Fatalf("identical image rejected on fallback: %+v", sigs[0])
	}
}
