// Package normalize prepares a receipt photograph for text recognition. It
// produces an upright two-level raster: grayscale, denoised, Otsu-binarized
// and deskewed.
package normalize

import (
	"image"
	"log/slog"
)

const (
	// Background and Ink are the two levels of a normalized raster.
	Background uint8 = 255
	Ink        uint8 = 0
)

// Normalizer holds the denoising parameters. The zero value is not usable;
// use New.
type Normalizer struct {
	// Strength is the filter strength h; larger values remove more noise
	// and more detail.
	Strength float64
	// TemplateWindow is the side of the patch compared between pixels.
	TemplateWindow int
	// SearchWindow is the side of the area searched for similar patches.
	SearchWindow int
}

// New returns a Normalizer tuned for photographed receipts.
func New() *Normalizer {
	return &Normalizer{
		Strength:       10,
		TemplateWindow: 7,
		SearchWindow:   21,
	}
}

// Normalize converts img into an upright binary raster of the same size.
// It never fails; an image with no ink is returned binarized but unrotated.
func (n *Normalizer) Normalize(img image.Image) *image.Gray {
	binary := n.Binarized(img)

	angle, ok := EstimateSkew(binary)
	if !ok {
		slog.Debug("No foreground pixels, skipping deskew")
		return binary
	}
	slog.Debug("Deskewing", "angle", angle)
	return Rotate(binary, angle)
}

// Binarized runs every step before deskewing.
func (n *Normalizer) Binarized(img image.Image) *image.Gray {
	gray := Grayscale(img)
	denoised := Denoise(gray, n.Strength, n.TemplateWindow, n.SearchWindow)
	return Binarize(denoised)
}
