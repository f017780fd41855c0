package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/zombor/receipt-reader/internal/fields"
)

// csvHeader names the exported columns: date, store, item, amount.
var csvHeader = []string{"日付", "店舗名", "商品名", "金額"}

// ExportReceiptCSV writes the items of one receipt as CSV
func (s *Service) ExportReceiptCSV(w io.Writer, id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt: %w", err)
	}
	return writeItemsCSV(w, receipt.Record.Items)
}

// ExportBatchCSV writes the items of every receipt in a batch as CSV, in
// batch order
func (s *Service) ExportBatchCSV(w io.Writer, id string) error {
	_, receipts, err := s.GetBatchWithReceipts(id)
	if err != nil {
		return err
	}
	var items []fields.LineItem
	for _, receipt := range receipts {
		items = append(items, receipt.Record.Items...)
	}
	return writeItemsCSV(w, items)
}

// writeItemsCSV writes a header and one row per item. The output starts
// with a UTF-8 byte order mark so spreadsheet software detects the encoding.
func writeItemsCSV(w io.Writer, items []fields.LineItem) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, item := range items {
		row := []string{item.Date, item.Store, item.Name, strconv.FormatFloat(item.Amount, 'f', -1, 64)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return tw.Close()
}
