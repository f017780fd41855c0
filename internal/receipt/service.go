package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-reader/internal/scanning"
)

// IDGenerator generates unique IDs for receipts and batches
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with random UUIDs and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phones produce long names; keep 50 characters plus the extension
	if runes := []rune(base); len(runes) > 50 {
		base = string(runes[:50])
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ScanReceipt stores the upload and reads it, returning an unsaved receipt
// for the user to review. The stored file is removed if reading fails.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	record, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(ctx, savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	return &Receipt{
		ID:          id,
		Record:      *record,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CreateReceipt saves a reviewed receipt. Item store and date are re-synced
// with the record, invalid amounts are zeroed and a missing total is taken
// from the items. Only the record is taken from the caller when the receipt
// already exists; its file, batch and creation time stay as stored.
func (s *Service) CreateReceipt(receipt *Receipt) error {
	if receipt.ID == "" {
		return fmt.Errorf("receipt ID is required")
	}

	now := s.timeSource.Now()
	existing, err := s.db.GetReceipt(receipt.ID)
	switch {
	case err == nil:
		receipt.Filename = existing.Filename
		receipt.ContentType = existing.ContentType
		receipt.BatchID = existing.BatchID
		receipt.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrReceiptNotFound):
		// First save of a scan preview: the upload was stored under the receipt ID
		if receipt.Filename != "" && !strings.HasPrefix(receipt.Filename, receipt.ID+"_") {
			return fmt.Errorf("file %s does not belong to receipt %s", receipt.Filename, receipt.ID)
		}
		receipt.BatchID = ""
		receipt.CreatedAt = now
	default:
		return fmt.Errorf("getting existing receipt: %w", err)
	}
	receipt.UpdatedAt = now
	receipt.Record = receipt.Record.Normalize()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return fmt.Errorf("saving receipt to database: %w", err)
	}
	if !receipt.Record.Consistent() {
		slog.Warn("Saved receipt whose items do not add up to the total", "id", receipt.ID, "sum", receipt.Record.Sum(), "total", receipt.Record.Total)
	}
	return nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, oldest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(ctx context.Context, id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}
	// A missing file should not keep the record around
	if err := s.storage.Delete(ctx, receipt.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the original upload for a receipt
func (s *Service) GetReceiptFile(ctx context.Context, id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(ctx, receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// CreateBatch groups receipts into a new batch
func (s *Service) CreateBatch(receiptIDs []string) (*Batch, error) {
	if len(receiptIDs) == 0 {
		return nil, fmt.Errorf("at least one receipt is required")
	}

	now := s.timeSource.Now()
	id := s.idGenerator.Generate()

	// Validate everything before changing anything
	receipts := make([]*Receipt, 0, len(receiptIDs))
	seen := make(map[string]bool, len(receiptIDs))
	var total float64
	for _, receiptID := range receiptIDs {
		if seen[receiptID] {
			return nil, fmt.Errorf("receipt %s listed twice", receiptID)
		}
		seen[receiptID] = true

		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		if receipt.BatchID != "" {
			return nil, fmt.Errorf("receipt %s: %w", receiptID, ErrAlreadyBatched)
		}
		total += receipt.Record.Total
		receipts = append(receipts, receipt)
	}

	batch := &Batch{
		ID:         id,
		ReceiptIDs: receiptIDs,
		Total:      total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.SaveBatch(batch); err != nil {
		return nil, fmt.Errorf("saving batch: %w", err)
	}

	for _, receipt := range receipts {
		receipt.BatchID = id
		receipt.UpdatedAt = now
		if err := s.db.SaveReceipt(receipt); err != nil {
			return nil, fmt.Errorf("updating receipt %s: %w", receipt.ID, err)
		}
	}

	return batch, nil
}

// GetBatch retrieves a batch by ID
func (s *Service) GetBatch(id string) (*Batch, error) {
	batch, err := s.db.GetBatch(id)
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return batch, nil
}

// GetBatchWithReceipts retrieves a batch with its receipts in batch order
func (s *Service) GetBatchWithReceipts(id string) (*Batch, []*Receipt, error) {
	batch, err := s.db.GetBatch(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting batch: %w", err)
	}

	receipts := make([]*Receipt, 0, len(batch.ReceiptIDs))
	for _, receiptID := range batch.ReceiptIDs {
		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		receipts = append(receipts, receipt)
	}

	return batch, receipts, nil
}

// ListBatches returns all batches, oldest first
func (s *Service) ListBatches() ([]*Batch, error) {
	batches, err := s.db.ListBatches()
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
	return batches, nil
}

// isNotFound reports whether err means the requested receipt or batch does
// not exist
func isNotFound(err error) bool {
	return errors.Is(err, ErrReceiptNotFound) || errors.Is(err, ErrBatchNotFound)
}
