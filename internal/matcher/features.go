package matcher

import (
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"
)

const (
	// fastArc is the number of contiguous circle pixels a FAST corner needs.
	fastArc = 9
	// patchRadius bounds the orientation moment and the descriptor sampling pattern.
	patchRadius = 13
	// border keeps every rotated sample and blur tap inside the image.
	border     = patchRadius + 5
	blurRadius = 2
	descBits   = 256
)

// circle is the 16-pixel Bresenham ring of radius 3 used by FAST.
var circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// briefPattern holds descBits point pairs (x1, y1, x2, y2) drawn from an
// isotropic Gaussian inside the patch. The seed is fixed so descriptors are
// comparable across processes.
var briefPattern = func() [descBits][4]float64 {
	var p [descBits][4]float64
	rng := rand.New(rand.NewPCG(0x5eed, 0xb41ef))
	sigma := float64(patchRadius) / 2.5
	sample := func() float64 {
		for {
			v := rng.NormFloat64() * sigma
			if math.Abs(v) <= patchRadius-1 {
				return v
			}
		}
	}
	for i := range p {
		for {
			x1, y1, x2, y2 := sample(), sample(), sample(), sample()
			if math.Hypot(x1, y1) < patchRadius && math.Hypot(x2, y2) < patchRadius {
				p[i] = [4]float64{x1, y1, x2, y2}
				break
			}
		}
	}
	return p
}()

type keypoint struct {
	x, y  int
	score int
}

type descriptor [descBits / 64]uint64

// detectFAST finds FAST-9 corners with 3x3 non-maximum suppression and
// returns at most limit of the strongest ones.
func detectFAST(g *grayImage, threshold, limit int) []keypoint {
	scores := make([]int, g.w*g.h)
	for y := border; y < g.h-border; y++ {
		for x := border; x < g.w-border; x++ {
			scores[y*g.w+x] = cornerScore(g, x, y, threshold)
		}
	}

	var kps []keypoint
	for y := border; y < g.h-border; y++ {
		for x := border; x < g.w-border; x++ {
			s := scores[y*g.w+x]
			if s == 0 {
				continue
			}
			if isLocalMax(scores, g.w, x, y, s) {
				kps = append(kps, keypoint{x: x, y: y, score: s})
			}
		}
	}
	sort.SliceStable(kps, func(i, j int) bool { return kps[i].score > kps[j].score })
	if limit > 0 && len(kps) > limit {
		kps = kps[:limit]
	}
	return kps
}

func isLocalMax(scores []int, w, x, y, s int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			// Ties are broken toward the earlier pixel in scan order.
			if n > s || (n == s && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// cornerScore returns 0 when (x, y) is not a FAST corner, otherwise the sum
// of absolute differences beyond the threshold over the qualifying ring.
func cornerScore(g *grayImage, x, y, t int) int {
	c := g.at(x, y)
	var ring [16]int
	for i, o := range circle {
		ring[i] = g.at(x+o[0], y+o[1])
	}

	brighter, darker := 0, 0
	runB, runD := 0, 0
	for i := 0; i < 16+fastArc-1; i++ {
		v := ring[i%16]
		if v > c+t {
			runB++
			runD = 0
		} else if v < c-t {
			runD++
			runB = 0
		} else {
			runB, runD = 0, 0
		}
		brighter = max(brighter, runB)
		darker = max(darker, runD)
	}
	if brighter < fastArc && darker < fastArc {
		return 0
	}

	score := 0
	for _, v := range ring {
		d := v - c
		if brighter >= fastArc && d > t {
			score += d - t
		}
		if darker >= fastArc && -d > t {
			score += -d - t
		}
	}
	return score
}

// orientation is the intensity-centroid angle of the circular patch around kp.
func orientation(g *grayImage, kp keypoint) float64 {
	var m01, m10 int
	r2 := patchRadius * patchRadius
	for dy := -patchRadius; dy <= patchRadius; dy++ {
		for dx := -patchRadius; dx <= patchRadius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := g.at(kp.x+dx, kp.y+dy)
			m10 += dx * v
			m01 += dy * v
		}
	}
	return math.Atan2(float64(m01), float64(m10))
}

// describe computes steered BRIEF descriptors on the blurred image.
func describe(g, blurred *grayImage, kps []keypoint) []descriptor {
	out := make([]descriptor, len(kps))
	for i, kp := range kps {
		angle := orientation(g, kp)
		sin, cos := math.Sincos(angle)
		sampleAt := func(px, py float64) int {
			rx := int(math.Round(cos*px - sin*py))
			ry := int(math.Round(sin*px + cos*py))
			return blurred.at(kp.x+rx, kp.y+ry)
		}
		var d descriptor
		for b, p := range briefPattern {
			if sampleAt(p[0], p[1]) < sampleAt(p[2], p[3]) {
				d[b/64] |= 1 << (b % 64)
			}
		}
		out[i] = d
	}
	return out
}

func hamming(a, b descriptor) int {
	n := 0
	for i := range a {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}

// extractFeatures runs detection and description on a grayscale image.
func extractFeatures(g *grayImage, threshold, limit int) []descriptor {
	kps := detectFAST(g, threshold, limit)
	if len(kps) == 0 {
		return nil
	}
	return describe(g, boxBlur(g, blurRadius), kps)
}

// featureSimilarity counts matches of a that pass the nearest/second-nearest
// ratio test against b and divides by the smaller keypoint count. Either side
// with fewer than two descriptors yields 0.
func featureSimilarity(a, b []descriptor, ratio float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	good := 0
	for _, da := range a {
		best, second := math.MaxInt, math.MaxInt
		for _, db := range b {
			d := hamming(da, db)
			if d < best {
				best, second = d, best
			} else if d < second {
				second = d
			}
		}
		if float64(best) < ratio*float64(second) {
			good++
		}
	}
	sim := float64(good) / float64(min(len(a), len(b)))
	return min(sim, 1)
}
