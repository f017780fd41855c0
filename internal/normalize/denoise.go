package normalize

import (
	"image"
	"math"
)

// weightCutoff drops neighbours whose patches are too dissimilar to matter.
const weightCutoff = 0.001

// Denoise applies non-local means filtering. Each pixel becomes the weighted
// mean of the pixels in its search window, weighted by how similar the
// surrounding templateWindow patches are. Borders are mirrored without
// repeating the edge pixel.
func Denoise(src *image.Gray, h float64, templateWindow, searchWindow int) *image.Gray {
	w, ht := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, ht))
	if w == 0 || ht == 0 {
		return out
	}
	if h <= 0 || templateWindow < 1 || searchWindow < 1 {
		copy(out.Pix, Grayscale(src).Pix)
		return out
	}

	tr := templateWindow / 2
	sr := searchWindow / 2
	pad := tr + sr
	pw, ph := w+2*pad, ht+2*pad

	padded := make([]int32, pw*ph)
	b := src.Bounds()
	for y := 0; y < ph; y++ {
		sy := reflect101(y-pad, ht)
		for x := 0; x < pw; x++ {
			sx := reflect101(x-pad, w)
			padded[y*pw+x] = int32(src.Pix[src.PixOffset(b.Min.X+sx, b.Min.Y+sy)])
		}
	}

	side := 2*tr + 1
	area := int64(side * side)
	weights := weightTable(h)

	num := make([]float64, w*ht)
	den := make([]float64, w*ht)

	// The integral image covers every template window of every output pixel.
	iw, ih := w+2*tr, ht+2*tr
	stride := iw + 1
	integral := make([]int64, stride*(ih+1))

	for dy := -sr; dy <= sr; dy++ {
		for dx := -sr; dx <= sr; dx++ {
			for y := 0; y < ih; y++ {
				var row int64
				py := y + sr
				base := py * pw
				shifted := (py + dy) * pw
				for x := 0; x < iw; x++ {
					px := x + sr
					d := int64(padded[base+px] - padded[shifted+px+dx])
					row += d * d
					integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
				}
			}

			for y := 0; y < ht; y++ {
				y0, y1 := y*stride, (y+side)*stride
				nb := (y + pad + dy) * pw
				for x := 0; x < w; x++ {
					ssd := integral[y1+x+side] - integral[y0+x+side] - integral[y1+x] + integral[y0+x]
					wgt := weights[ssd/area]
					if wgt == 0 {
						continue
					}
					i := y*w + x
					num[i] += wgt * float64(padded[nb+x+pad+dx])
					den[i] += wgt
				}
			}
		}
	}

	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			v := math.Round(num[i] / den[i])
			out.Pix[y*out.Stride+x] = uint8(math.Min(255, math.Max(0, v)))
		}
	}
	return out
}

// weightTable maps a mean squared patch difference to its weight.
func weightTable(h float64) []float64 {
	table := make([]float64, 255*255+1)
	h2 := h * h
	for d := range table {
		wgt := math.Exp(-float64(d) / h2)
		if wgt < weightCutoff {
			break
		}
		table[d] = wgt
	}
	return table
}

// reflect101 mirrors i into [0, n) without repeating the border pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
