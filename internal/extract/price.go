// internal/extract/price.go
package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/scrape-studio/studio/pkg/models"
)

// currencySymbols and currencyCodes form the fixed set of recognized
// currency tags. Order matters for multi-character symbols ("R$" before "$").
var currencySymbols = []string{"R$", "$", "€", "£", "¥", "₹", "₩", "₽", "₺", "₴", "₫", "kr", "zł", "Fr"}

var currencyCodes = []string{
	"USD", "EUR", "GBP", "JPY", "INR", "KRW", "RUB", "TRY",
	"AUD", "CAD", "CHF", "SEK", "NOK", "DKK", "PLN", "BRL", "MXN", "CNY",
}

var (
	priceBeforeRe *regexp.Regexp
	priceAfterRe  *regexp.Regexp
)

func init() {
	var tags []string
	for _, s := range currencySymbols {
		tags = append(tags, regexp.QuoteMeta(s))
	}
	tags = append(tags, currencyCodes...)
	alt := strings.Join(tags, "|")

	priceBeforeRe = regexp.MustCompile(`(` + alt + `)\s*([0-9][0-9.,]*[0-9]|[0-9])`)
	priceAfterRe = regexp.MustCompile(`([0-9][0-9.,]*[0-9]|[0-9])\s*(` + alt + `)`)
}

// priceMatch is one currency-tagged number found in a text fragment.
type priceMatch struct {
	Currency string
	Value    float64
}

// ScanPrices finds every currency-tagged numeric substring in text.
func ScanPrices(text string) []priceMatch {
	var matches []priceMatch
	seen := map[string]bool{}

	add := func(cur, num string) {
		v, ok := parseNumber(num)
		if !ok {
			return
		}
		key := cur + "|" + num
		if seen[key] {
			return
		}
		seen[key] = true
		matches = append(matches, priceMatch{Currency: cur, Value: v})
	}

	for _, m := range priceBeforeRe.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	for _, m := range priceAfterRe.FindAllStringSubmatch(text, -1) {
		add(m[2], m[1])
	}
	return matches
}

// CleanPrice extracts a single price from raw element text. When multiple
// currency-tagged numbers appear, the lowest parsed value wins: sites list
// the struck-through original next to the active sale price, and the active
// one is the lower. Returns "" when no price is recognized.
func CleanPrice(text string, format *models.PriceFormat) string {
	matches := ScanPrices(text)
	if len(matches) == 0 {
		return ""
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Value < best.Value {
			best = m
		}
	}
	value := applyFormat(best.Value, format)
	return formatPrice(best.Currency, value)
}

// ParsePrice parses a previously cleaned (or raw) price string into its
// numeric value. Used for the original/sale comparison invariant.
func ParsePrice(text string) (float64, bool) {
	matches := ScanPrices(text)
	if len(matches) == 0 {
		// Bare number with no currency tag.
		return parseNumber(strings.TrimSpace(text))
	}
	lowest := matches[0].Value
	for _, m := range matches[1:] {
		if m.Value < lowest {
			lowest = m.Value
		}
	}
	return lowest, true
}

// applyFormat applies subunit-currency normalization from the persisted
// config (multiplier plus decimal removal for currencies quoted in cents).
func applyFormat(v float64, format *models.PriceFormat) float64 {
	if format == nil {
		return v
	}
	if format.RemoveDecimals {
		v = math.Trunc(v)
	}
	if format.Multiplier != 0 && format.Multiplier != 1 {
		v *= format.Multiplier
	}
	return v
}

func formatPrice(currency string, v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%s%.0f", currency, v)
	}
	return fmt.Sprintf("%s%.2f", currency, v)
}

// parseNumber handles both decimal conventions: "1,234.56" and "1.234,56",
// as well as bare integers and two-digit decimal forms like "19,99".
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The rightmost separator is the decimal point.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		// A single comma followed by exactly two digits is a decimal
		// separator; anything else is grouping.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// A dot followed by exactly three digits with more than one dot, or
		// grouping-style repetition, is a thousands separator.
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
