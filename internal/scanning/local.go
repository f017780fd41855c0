package scanning

import (
	"context"
	"image"
	"log/slog"

	"github.com/zombor/receipt-reader/internal/fields"
	"github.com/zombor/receipt-reader/internal/normalize"
)

// TextExtractor recovers text from a normalized raster, returning "" when
// there is none.
type TextExtractor interface {
	Extract(ctx context.Context, img *image.Gray) string
}

// Local implements the Scanner interface with the on-device pipeline:
// normalize, extract text, parse fields.
type Local struct {
	normalizer   *normalize.Normalizer
	extractor    TextExtractor
	maxDimension int
}

// NewLocal creates a Local scanner. Uploads are shrunk to maxDimension
// before normalization.
func NewLocal(normalizer *normalize.Normalizer, extractor TextExtractor, maxDimension int) *Local {
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &Local{
		normalizer:   normalizer,
		extractor:    extractor,
		maxDimension: maxDimension,
	}
}

// ScanReceipt reads a receipt. It returns ErrNoTextExtracted when the
// photograph yielded no text at all.
func (l *Local) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*fields.Record, error) {
	img, err := decodeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}
	img = fitImage(img, l.maxDimension)

	raster := l.normalizer.Normalize(img)
	text := l.extractor.Extract(ctx, raster)
	if text == "" {
		return nil, ErrNoTextExtracted
	}

	rec := fields.Parse(text)
	if !rec.Consistent() {
		slog.Warn("Item amounts do not add up to the receipt total", "store", rec.Store, "sum", rec.Sum(), "total", rec.Total)
	}
	return &rec, nil
}

// Close is a no-op; the recognition engine is owned by its cache.
func (l *Local) Close() error {
	return nil
}
