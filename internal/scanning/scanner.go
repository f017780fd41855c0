package scanning

import (
	"context"
	"errors"

	"github.com/zombor/receipt-reader/internal/fields"
)

// ErrNoTextExtracted is returned when no text could be recovered from the
// image. Callers should ask the user for a clearer photograph.
var ErrNoTextExtracted = errors.New("no text could be extracted from the image")

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt reads a receipt image/PDF into a purchase record
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*fields.Record, error)
	// Close closes the scanner and releases resources
	Close() error
}
