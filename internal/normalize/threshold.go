package normalize

import "image"

// OtsuThreshold returns the level that maximizes the between-class variance
// of the histogram. Ties keep the lowest level.
func OtsuThreshold(g *image.Gray) uint8 {
	var hist [256]float64
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}
	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return 0
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * n
	}

	var (
		weightB, sumB float64
		maxBetween    float64
		best          int
	)
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		sumB += float64(t) * hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		between := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if between > maxBetween {
			maxBetween = between
			best = t
		}
	}
	return uint8(best)
}

// Binarize thresholds g at its Otsu level: pixels above it become
// Background, the rest Ink.
func Binarize(g *image.Gray) *image.Gray {
	t := OtsuThreshold(g)
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] > t {
				out.Pix[y*out.Stride+x] = Background
			} else {
				out.Pix[y*out.Stride+x] = Ink
			}
		}
	}
	return out
}
