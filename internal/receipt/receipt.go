package receipt

import (
	"errors"
	"time"

	"github.com/zombor/receipt-reader/internal/fields"
)

var (
	// ErrReceiptNotFound is returned when no receipt has the requested ID
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrBatchNotFound is returned when no batch has the requested ID
	ErrBatchNotFound = errors.New("batch not found")
	// ErrAlreadyBatched is returned when a receipt already belongs to a batch
	ErrAlreadyBatched = errors.New("receipt already belongs to a batch")
)

// Receipt is a scanned receipt with its original upload
type Receipt struct {
	ID          string        `json:"id"`
	Record      fields.Record `json:"record"`
	Filename    string        `json:"filename"`
	ContentType string        `json:"content_type"`
	BatchID     string        `json:"batch_id,omitempty"` // ID of the batch this receipt belongs to
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Batch groups receipts that are exported together
type Batch struct {
	ID         string    `json:"id"`
	ReceiptIDs []string  `json:"receipt_ids"`
	Total      float64   `json:"total"` // Sum of the receipts' totals
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
