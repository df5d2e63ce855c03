// internal/extract/paginate_test.go
package extract

import (
	"testing"

	"github.com/scrape-studio/studio/pkg/models"
)

func TestDetectURLPatternOffset(t *testing.T) {
	pat, ok := DetectURLPattern(
		"https://shop.example/items?start=0",
		"https://shop.example/items?start=24",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Type != models.PaginationURLPattern {
		t.Errorf("type = %q", pat.Type)
	}
	if pat.Pattern != "?start={offset}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
	if pat.Offset == nil {
		t.Fatal("offset descriptor missing")
	}
	if pat.Offset.Key != "start" || pat.Offset.Start != 0 || pat.Offset.Increment != 24 {
		t.Errorf("offset = %+v", pat.Offset)
	}
}

func TestDetectURLPatternPage(t *testing.T) {
	pat, ok := DetectURLPattern(
		"https://shop.example/items?page=1",
		"https://shop.example/items?page=2",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Pattern != "?page={page}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
	if pat.Offset != nil {
		t.Errorf("page-style pattern should carry no offset, got %+v", pat.Offset)
	}
}

func TestDetectURLPatternImpliedFirstPage(t *testing.T) {
	// The parameter is absent on page 1 and appears as "2" on page 2.
	pat, ok := DetectURLPattern(
		"https://shop.example/items",
		"https://shop.example/items?page=2",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Pattern != "?page={page}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
}

func TestDetectURLPatternKeepsOtherParams(t *testing.T) {
	pat, ok := DetectURLPattern(
		"https://shop.example/items?sort=price&page=1",
		"https://shop.example/items?sort=price&page=2",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Pattern != "?sort=price&page={page}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
}

func TestDetectURLPatternAmbiguous(t *testing.T) {
	cases := [][2]string{
		// Two numeric parameters changed.
		{"https://a.example/?page=1&limit=10", "https://a.example/?page=2&limit=20"},
		// Nothing changed.
		{"https://a.example/items?page=1", "https://a.example/items?page=1"},
		// Non-numeric change.
		{"https://a.example/?cat=shoes", "https://a.example/?cat=bags"},
	}
	for _, c := range cases {
		if pat, ok := DetectURLPattern(c[0], c[1]); ok {
			t.Errorf("DetectURLPattern(%q, %q) = %+v, want none", c[0], c[1], pat)
		}
	}
}

func TestDetectURLPatternPathSegment(t *testing.T) {
	pat, ok := DetectURLPattern(
		"https://shop.example/items/page/1",
		"https://shop.example/items/page/2",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Pattern != "https://shop.example/items/page/{page}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
}

func TestDetectURLPatternTrailingNumber(t *testing.T) {
	pat, ok := DetectURLPattern(
		"https://shop.example/items/1",
		"https://shop.example/items/2",
	)
	if !ok {
		t.Fatal("expected a pattern")
	}
	if pat.Pattern != "https://shop.example/items/{page}" {
		t.Errorf("pattern = %q", pat.Pattern)
	}
}

func TestDetectURLPatternUnrelatedPaths(t *testing.T) {
	// The second URL ends in a number but the paths are otherwise unrelated,
	// so the trailing-number heuristic must not fire.
	if pat, ok := DetectURLPattern(
		"https://shop.example/about",
		"https://shop.example/items/2",
	); ok {
		t.Errorf("unexpected pattern %+v", pat)
	}
}

func TestBuildPageURL(t *testing.T) {
	pagePat := &models.PaginationPattern{
		Type:    models.PaginationURLPattern,
		Pattern: "?page={page}",
	}
	got := BuildPageURL("https://shop.example/items?page=1", pagePat, 3)
	if got != "https://shop.example/items?page=3" {
		t.Errorf("page url = %q", got)
	}

	offsetPat := &models.PaginationPattern{
		Type:    models.PaginationURLPattern,
		Pattern: "?start={offset}",
		Offset:  &models.OffsetDescriptor{Key: "start", Start: 0, Increment: 24},
	}
	got = BuildPageURL("https://shop.example/items?start=0", offsetPat, 2)
	if got != "https://shop.example/items?start=24" {
		t.Errorf("offset url = %q", got)
	}
	got = BuildPageURL("https://shop.example/items?start=0", offsetPat, 4)
	if got != "https://shop.example/items?start=72" {
		t.Errorf("offset url page 4 = %q", got)
	}

	absPat := &models.PaginationPattern{
		Type:    models.PaginationURLPattern,
		Pattern: "https://shop.example/items/page/{page}",
	}
	got = BuildPageURL("https://shop.example/items", absPat, 5)
	if got != "https://shop.example/items/page/5" {
		t.Errorf("absolute url = %q", got)
	}
}

func TestBuildPageURLEdgeCases(t *testing.T) {
	pat := &models.PaginationPattern{Type: models.PaginationURLPattern, Pattern: "?page={page}"}

	// Page 1 is the start URL itself; there is nothing to build.
	if got := BuildPageURL("https://shop.example/", pat, 1); got != "" {
		t.Errorf("page 1 url = %q, want empty", got)
	}

	// An {offset} template without its descriptor cannot be rendered.
	broken := &models.PaginationPattern{Type: models.PaginationURLPattern, Pattern: "?start={offset}"}
	if got := BuildPageURL("https://shop.example/", broken, 2); got != "" {
		t.Errorf("offset without descriptor = %q, want empty", got)
	}

	if got := BuildPageURL("https://shop.example/", nil, 2); got != "" {
		t.Errorf("nil pattern = %q, want empty", got)
	}
}
