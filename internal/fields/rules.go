package fields

import "regexp"

// StoreSearchLines is how many leading lines are considered for the store name.
const StoreSearchLines = 3

// minStoreNameRunes is the length a store line must exceed.
const minStoreNameRunes = 2

// minItemNameRunes is the length an item name must exceed.
const minItemNameRunes = 1

// Policy decides which of several matching lines supplies a value.
type Policy int

const (
	FirstWins Policy = iota
	LastWins
)

// TotalPolicy: when several total lines are present, the last one read is kept.
const TotalPolicy = LastWins

// Digits, separators, yen signs and spaces may come in either width; the
// matched text is kept as written.
var (
	// datePattern matches 2026/01/05, 2026-1-5, 2026.01.05 and 2026年1月5日.
	datePattern = regexp.MustCompile(`[0-9０-９]{4}[年/.\-／．－][0-9０-９]{1,2}[月/.\-／．－][0-9０-９]{1,2}日?`)

	// digitRunPattern disqualifies store candidates that look like phone
	// numbers, dates or amounts.
	digitRunPattern = regexp.MustCompile(`[0-9０-９]{2,}`)

	// pricePattern captures an amount with an optional yen sign and unit word.
	pricePattern = regexp.MustCompile(`[¥￥]?[\s\x{3000}]*([0-9０-９][0-9０-９,，]*)円?`)

	// itemPattern is "<name> <amount>" anchored at the end of the line.
	itemPattern = regexp.MustCompile(`^(.*?)[\s\x{3000}]+[¥￥]?[\s\x{3000}]*([0-9０-９][0-9０-９,，]*)円?$`)

	// priceNoise is removed from a width-folded amount token before parsing.
	priceNoise = regexp.MustCompile(`[¥,円\s]`)
)

// totalMarkers are matched against the width-folded, lower-cased line.
var totalMarkers = []string{"合計", "合 計", "total"}

// excludedItemWords mark payment and tax lines that are not merchandise:
// change due, cash tendered, credit payment, change, subtotal and tax.
var excludedItemWords = []string{"おつり", "現金", "クレジット", "釣銭", "小計", "税"}
