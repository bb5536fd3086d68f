package matcher

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeResized decodes an encoded image and scales it to size x size.
func decodeResized(data []byte, size int) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// grayImage is a row-major 8-bit luminance plane.
type grayImage struct {
	w, h int
	pix  []uint8
}

func (g *grayImage) at(x, y int) int {
	return int(g.pix[y*g.w+x])
}

func toGray(img *image.RGBA) *grayImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &grayImage{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r, gg, bb := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			g.pix[y*w+x] = uint8((299*r + 587*gg + 114*bb + 500) / 1000)
		}
	}
	return g
}

// boxBlur returns g smoothed with a (2r+1)x(2r+1) box filter, clamping at the edges.
func boxBlur(g *grayImage, r int) *grayImage {
	w, h := g.w, g.h
	tmp := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dx := -r; dx <= r; dx++ {
				xx := x + dx
				if xx < 0 || xx >= w {
					continue
				}
				sum += int(g.pix[y*w+xx])
				n++
			}
			tmp[y*w+x] = sum / n
		}
	}
	out := &grayImage{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -r; dy <= r; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				sum += tmp[yy*w+x]
				n++
			}
			out.pix[y*w+x] = uint8(sum / n)
		}
	}
	return out
}
