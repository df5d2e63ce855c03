// internal/extract/price_test.go
package extract

import (
	"testing"

	"github.com/scrape-studio/studio/pkg/models"
)

func TestCleanPrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"$19.99", "$19.99"},
		{"Price: $1,234.56", "$1234.56"},
		{"€1.234,56", "€1234.56"},
		{"19,99 €", "€19.99"},
		{"USD 42", "USD42"},
		{"free shipping", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := CleanPrice(c.in, nil); got != c.want {
			t.Errorf("CleanPrice(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanPriceLowestWins(t *testing.T) {
	// Struck-through original next to the sale price: the active price is
	// the lower one.
	got := CleanPrice("$50.00 $39.99", nil)
	if got != "$39.99" {
		t.Errorf("got %q, want $39.99", got)
	}
}

func TestCleanPriceBrazilianReal(t *testing.T) {
	// "R$" must win over the bare "$" symbol it contains.
	got := CleanPrice("R$ 1.299,00", nil)
	if got != "R$1299" {
		t.Errorf("got %q, want R$1299", got)
	}
}

func TestCleanPriceFormat(t *testing.T) {
	cents := &models.PriceFormat{Multiplier: 0.01}
	if got := CleanPrice("$1999", cents); got != "$19.99" {
		t.Errorf("multiplier: got %q, want $19.99", got)
	}

	trunc := &models.PriceFormat{RemoveDecimals: true}
	if got := CleanPrice("$19.99", trunc); got != "$19" {
		t.Errorf("removeDecimals: got %q, want $19", got)
	}
}

func TestScanPricesDeduplicates(t *testing.T) {
	matches := ScanPrices("$10 or $10")
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Currency != "$" || matches[0].Value != 10 {
		t.Errorf("unexpected match %+v", matches[0])
	}
}

func TestParsePrice(t *testing.T) {
	v, ok := ParsePrice("$39.99")
	if !ok || v != 39.99 {
		t.Errorf("ParsePrice($39.99) = %v, %v", v, ok)
	}

	// Bare numbers with no currency tag still parse.
	v, ok = ParsePrice("42")
	if !ok || v != 42 {
		t.Errorf("ParsePrice(42) = %v, %v", v, ok)
	}

	if _, ok := ParsePrice("no price here"); ok {
		t.Error("expected failure for non-numeric text")
	}
}

func TestParseNumberLocales(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.56", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"19,99", 19.99, true},
		{"1,234,567", 1234567, true},
		{"1.234.567", 1234567, true},
		{"7", 7, true},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("parseNumber(%q) = %v, %v, want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
