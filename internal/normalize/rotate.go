package normalize

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate turns a binary raster counter-clockwise by degrees about its centre
// with Catmull-Rom interpolation. The canvas keeps its size, uncovered
// pixels become Background, and the result is snapped back to two levels.
func Rotate(g *image.Gray, degrees float64) *image.Gray {
	src := g
	if g.Bounds().Min != (image.Point{}) {
		src = Grayscale(g)
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = Background
	}

	rad := degrees * math.Pi / 180
	alpha, beta := math.Cos(rad), math.Sin(rad)
	// Pixel centres sit at +0.5 in draw's continuous coordinates.
	cx, cy := float64(w/2)+0.5, float64(h/2)+0.5
	s2d := f64.Aff3{
		alpha, beta, (1-alpha)*cx - beta*cy,
		-beta, alpha, beta*cx + (1-alpha)*cy,
	}
	draw.CatmullRom.Transform(out, s2d, src, src.Bounds(), draw.Src, nil)

	for i, v := range out.Pix {
		if v >= 128 {
			out.Pix[i] = Background
		} else {
			out.Pix[i] = Ink
		}
	}
	return out
}
