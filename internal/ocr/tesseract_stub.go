//go:build !ocr

package ocr

import (
	"context"
	"image"
)

// TesseractLines is unavailable without the "ocr" build tag.
type TesseractLines struct{}

// NewTesseractLines returns ErrOCRNotEnabled. Rebuild with -tags ocr to
// enable the primary engine.
func NewTesseractLines(languages string) (*TesseractLines, error) {
	return nil, ErrOCRNotEnabled
}

// RecognizeLines returns ErrOCRNotEnabled.
func (t *TesseractLines) RecognizeLines(ctx context.Context, img *image.Gray) ([]TextLine, error) {
	return nil, ErrOCRNotEnabled
}

// Close is a no-op. It is safe to call on a nil engine.
func (t *TesseractLines) Close() error {
	return nil
}
