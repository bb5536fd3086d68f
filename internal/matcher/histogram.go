package matcher

import (
	"image"
	"math"
)

const (
	hueBins = 50
	satBins = 60
)

// hsHistogram builds a hue x saturation histogram on the 8-bit HSV scale
// (hue 0-180, saturation 0-256) and min-max normalizes it to [0, 1].
func hsHistogram(img *image.RGBA) []float64 {
	hist := make([]float64, hueBins*satBins)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			h, s := hueSat(row[x*4], row[x*4+1], row[x*4+2])
			hb := min(int(h*hueBins/180), hueBins-1)
			sb := min(int(s*satBins/256), satBins-1)
			hist[hb*satBins+sb]++
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range hist {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if span := hi - lo; span > 0 {
		for i := range hist {
			hist[i] = (hist[i] - lo) / span
		}
	} else {
		clear(hist)
	}
	return hist
}

// hueSat converts an RGB pixel to hue in [0, 180) and saturation in [0, 255].
func hueSat(r8, g8, b8 uint8) (float64, float64) {
	r, g, b := float64(r8), float64(g8), float64(b8)
	v := max(r, g, b)
	lo := min(r, g, b)
	delta := v - lo
	if v == 0 || delta == 0 {
		return 0, 0
	}
	s := delta / v * 255

	var h float64
	switch v {
	case r:
		h = 60 * (g - b) / delta
	case g:
		h = 120 + 60*(b-r)/delta
	default:
		h = 240 + 60*(r-g)/delta
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s
}

// correlation is Pearson's correlation coefficient of two histograms. When
// either histogram is constant the comparison is degenerate and yields 1.
func correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	var sa, sb float64
	for i := range a {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/n, sb/n

	var num, da, db float64
	for i := range a {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	den := da * db
	if math.Abs(den) <= math.SmallestNonzeroFloat64 {
		return 1
	}
	return num / math.Sqrt(den)
}
