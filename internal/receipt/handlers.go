package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-reader/internal/scanning"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// lookupStatus maps a service lookup error to a status code
func lookupStatus(err error) int {
	if isNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// contentTypeFor guesses a MIME type from the upload's extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

// handleScanReceipt reads an uploaded photograph and returns an unsaved receipt
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, msg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	receipt, err := s.service.ScanReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		if errors.Is(err, scanning.ErrNoTextExtracted) {
			writeError(w, "No text could be read from the image. Please retake the photo flat and in good light.", http.StatusUnprocessableEntity)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleCreateReceipt saves a reviewed receipt
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt Receipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.CreateReceipt(&receipt); err != nil {
		slog.Error("Error creating receipt", "id", receipt.ID, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, &receipt)
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeError(w, "Receipt not found", lookupStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the original upload for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleReceiptCSV exports one receipt's items
func (s *Server) handleReceiptCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := s.service.ExportReceiptCSV(&buf, id); err != nil {
		slog.Error("Error exporting receipt", "id", id, "error", err)
		writeError(w, "Receipt not found", lookupStatus(err))
		return
	}
	writeCSV(w, fmt.Sprintf("receipt_%s.csv", id), buf.Bytes())
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.Context(), r.PathValue("id")); err != nil {
		slog.Error("Error deleting receipt", "error", err)
		writeError(w, "Error deleting receipt", lookupStatus(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListBatches returns a list of all batches
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.service.ListBatches()
	if err != nil {
		slog.Error("Error listing batches", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if batches == nil {
		batches = []*Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// handleCreateBatch groups receipts into a batch
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiptIDs []string `json:"receipt_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	batch, err := s.service.CreateBatch(req.ReceiptIDs)
	if err != nil {
		slog.Error("Error creating batch", "error", err)
		code := http.StatusBadRequest
		if errors.Is(err, ErrAlreadyBatched) {
			code = http.StatusConflict
		}
		writeError(w, err.Error(), code)
		return
	}

	writeJSON(w, http.StatusCreated, batch)
}

// handleGetBatch returns a batch with its receipts
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, receipts, err := s.service.GetBatchWithReceipts(r.PathValue("id"))
	if err != nil {
		writeError(w, "Batch not found", lookupStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch":    batch,
		"receipts": receipts,
	})
}

// handleBatchCSV exports the items of every receipt in a batch
func (s *Server) handleBatchCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := s.service.ExportBatchCSV(&buf, id); err != nil {
		slog.Error("Error exporting batch", "id", id, "error", err)
		writeError(w, "Batch not found", lookupStatus(err))
		return
	}
	writeCSV(w, fmt.Sprintf("batch_%s.csv", id), buf.Bytes())
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
