package fields

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Parse extracts a Record from recognized receipt text. It never fails:
// missing values fall back to UnknownStore, UnknownDate and a total adopted
// from the item sum.
func Parse(text string) Record {
	lines := splitLines(text)

	date := UnknownDate
	if m := datePattern.FindString(text); m != "" {
		date = m
	}
	store := findStore(lines)

	rec := Record{
		Store: store,
		Date:  date,
		Items: []LineItem{},
	}

	totalSeen := false
	for _, line := range lines {
		if isTotalLine(line) {
			if amount, ok := trailingPrice(line); ok {
				if TotalPolicy == LastWins || !totalSeen {
					rec.Total = amount
				}
				totalSeen = true
			}
			continue
		}

		m := itemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if !acceptItemName(name) {
			continue
		}
		rec.Items = append(rec.Items, LineItem{
			Date:   date,
			Store:  store,
			Name:   name,
			Amount: CleanPrice(m[2]),
		})
	}

	if rec.Total <= 0 {
		rec.Total = rec.Sum()
	}
	return rec
}

// CleanPrice converts an amount token such as "¥1,200円" to a number. Tokens
// that cannot be read as a non-negative finite number yield 0.
func CleanPrice(s string) float64 {
	s = priceNoise.ReplaceAllString(width.Fold.String(s), "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func findStore(lines []string) string {
	for i, line := range lines {
		if i == StoreSearchLines {
			break
		}
		if digitRunPattern.MatchString(line) {
			continue
		}
		if utf8.RuneCountInString(line) > minStoreNameRunes {
			return line
		}
	}
	return UnknownStore
}

func isTotalLine(line string) bool {
	lower := strings.ToLower(width.Fold.String(line))
	for _, marker := range totalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// trailingPrice returns the last amount on a line.
func trailingPrice(line string) (float64, bool) {
	matches := pricePattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	return CleanPrice(matches[len(matches)-1][1]), true
}

func acceptItemName(name string) bool {
	if utf8.RuneCountInString(name) <= minItemNameRunes {
		return false
	}
	for _, word := range excludedItemWords {
		if strings.Contains(name, word) {
			return false
		}
	}
	return true
}
