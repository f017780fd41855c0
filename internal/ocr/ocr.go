// Package ocr recovers text from normalized receipt rasters.
//
// A primary engine reports text line by line with a confidence for each line;
// low-confidence lines are dropped. When the primary engine is unavailable,
// fails or finds nothing, a fallback engine reads the whole raster once.
//
// The primary engine wraps libtesseract through gosseract and is compiled in
// only with the "ocr" build tag:
//
//	go build -tags ocr ./...
//
// Both engines need Tesseract with the Japanese and English language data.
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr tesseract-ocr-jpn libtesseract-dev
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// DefaultLanguages is the Tesseract language pair used for receipts.
const DefaultLanguages = "jpn+eng"

// ErrOCRNotEnabled is returned by NewTesseractLines when the binary was built
// without the "ocr" build tag.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// TextLine is one line reported by a line-level engine.
type TextLine struct {
	Text       string
	Confidence float64 // 0..1
}

// LineRecognizer reads a raster line by line. Lines are returned in reading
// order.
type LineRecognizer interface {
	RecognizeLines(ctx context.Context, img *image.Gray) ([]TextLine, error)
}

// TextRecognizer reads a raster as a single block of text.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, img *image.Gray) (string, error)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
