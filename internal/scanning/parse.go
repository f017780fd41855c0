package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/receipt-reader/internal/fields"
)

// visionReceipt is the JSON shape requested from the vision models
type visionReceipt struct {
	StoreName string       `json:"store_name"`
	Date      string       `json:"date"`
	Items     []visionItem `json:"items"`
	Total     flexAmount   `json:"total"`
}

type visionItem struct {
	Name   string     `json:"name"`
	Amount flexAmount `json:"amount"`
}

// flexAmount accepts a number, a price string such as "¥1,200" or null.
type flexAmount float64

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*a = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*a = flexAmount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("amount must be a number or a string: %w", err)
	}
	*a = flexAmount(fields.CleanPrice(s))
	return nil
}

// parseRecordJSON parses the JSON reply of a vision model
func parseRecordJSON(text string) (*fields.Record, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data visionReceipt
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	rec := fields.Record{
		Store: strings.TrimSpace(data.StoreName),
		Date:  strings.TrimSpace(data.Date),
		Total: float64(data.Total),
	}
	for _, item := range data.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		rec.Items = append(rec.Items, fields.LineItem{Name: name, Amount: float64(item.Amount)})
	}
	rec = rec.Normalize()
	return &rec, nil
}
