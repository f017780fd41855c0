// Package fields turns recognized receipt text into a structured purchase record.
package fields

import (
	"encoding/json"
	"math"
)

const (
	// UnknownStore is used when no line qualifies as the store name.
	UnknownStore = "unknown store"
	// UnknownDate is used when no date is found in the text.
	UnknownDate = "date unknown"
)

// LineItem is a single purchased item. Date and Store repeat the record's
// values so items can be exported as flat rows.
type LineItem struct {
	Date   string  `json:"date"`
	Store  string  `json:"store"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Record is the structured result of reading one receipt.
type Record struct {
	Store string     `json:"store"`
	Date  string     `json:"date"`
	Items []LineItem `json:"items"`
	Total float64    `json:"total"`
}

// Sum adds the item amounts in order.
func (r Record) Sum() float64 {
	var sum float64
	for _, item := range r.Items {
		sum += item.Amount
	}
	return sum
}

// Consistent reports whether the items add up to the total. A record whose
// total was adopted from the item sum is always consistent.
func (r Record) Consistent() bool {
	return r.Sum() == r.Total
}

// Normalize returns a copy with item store/date re-synced to the record,
// sentinel values for blank fields and invalid amounts zeroed. A missing
// total is taken from the item sum.
func (r Record) Normalize() Record {
	out := Record{
		Store: r.Store,
		Date:  r.Date,
		Total: sanitizeAmount(r.Total),
		Items: make([]LineItem, 0, len(r.Items)),
	}
	if out.Store == "" {
		out.Store = UnknownStore
	}
	if out.Date == "" {
		out.Date = UnknownDate
	}
	for _, item := range r.Items {
		out.Items = append(out.Items, LineItem{
			Date:   out.Date,
			Store:  out.Store,
			Name:   item.Name,
			Amount: sanitizeAmount(item.Amount),
		})
	}
	if out.Total <= 0 {
		out.Total = out.Sum()
	}
	return out
}

// MarshalJSON adds the derived consistency flag.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	p := plain(r)
	if p.Items == nil {
		p.Items = []LineItem{}
	}
	return json.Marshal(struct {
		plain
		Consistent bool `json:"consistent"`
	}{p, r.Consistent()})
}

func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
