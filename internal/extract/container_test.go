// internal/extract/container_test.go
package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/scrape-studio/studio/pkg/models"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func fieldSelectorsFixture() []models.AssignedSelector {
	return []models.AssignedSelector{
		{Role: models.RoleTitle, CSS: ".name", ExtractionType: models.ExtractText},
		{Role: models.RolePrice, CSS: ".price", ExtractionType: models.ExtractText},
		{Role: models.RoleNextPage, CSS: ".next", ExtractionType: models.ExtractText},
	}
}

func productGridHTML(cards int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="site-header header"><span class="name">Shop</span></div><div class="grid">`)
	for i := 0; i < cards; i++ {
		b.WriteString(`<div class="product-card"><span class="name">Widget</span><span class="price">$10</span></div>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func TestDetectContainerProductGrid(t *testing.T) {
	doc := mustDoc(t, productGridHTML(6))

	det, ok := DetectContainer(doc, fieldSelectorsFixture(), DefaultHeuristics())
	if !ok {
		t.Fatal("expected a container")
	}
	if det.Selector != ".product-card" {
		t.Errorf("selector = %q", det.Selector)
	}
	if det.Count != 6 {
		t.Errorf("count = %d", det.Count)
	}
}

func TestDetectContainerDeterministic(t *testing.T) {
	doc := mustDoc(t, productGridHTML(8))
	h := DefaultHeuristics()

	first, ok1 := DetectContainer(doc, fieldSelectorsFixture(), h)
	second, ok2 := DetectContainer(doc, fieldSelectorsFixture(), h)
	if !ok1 || !ok2 {
		t.Fatal("expected detection on both runs")
	}
	if first != second {
		t.Errorf("runs disagree: %+v vs %+v", first, second)
	}
}

func TestDetectContainerNoRepeatingGroup(t *testing.T) {
	// A single record with no repeating sibling structure.
	doc := mustDoc(t, `<html><body><span class="name">Only</span><span class="price">$5</span></body></html>`)

	if det, ok := DetectContainer(doc, fieldSelectorsFixture(), DefaultHeuristics()); ok {
		t.Errorf("unexpected detection %+v", det)
	}
}

func TestDetectContainerSkipsChromeClasses(t *testing.T) {
	// The repeating unit is navigation chrome, not content.
	var b strings.Builder
	b.WriteString(`<html><body><ul>`)
	for i := 0; i < 6; i++ {
		b.WriteString(`<li class="menu-item"><span class="name">Link</span><span class="price">$0</span></li>`)
	}
	b.WriteString(`</ul></body></html>`)

	if det, ok := DetectContainer(mustDoc(t, b.String()), fieldSelectorsFixture(), DefaultHeuristics()); ok {
		t.Errorf("unexpected detection %+v", det)
	}
}

func TestDetectContainerFallbackWalk(t *testing.T) {
	// Only two of ten anchors live inside a bounded group, so the scoring
	// path rejects it; the fallback walk from the first anchor accepts it
	// because every group member resolves both fields.
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for i := 0; i < 2; i++ {
		b.WriteString(`<div class="box"><span class="name">In</span><span class="price">$1</span></div>`)
	}
	for i := 0; i < 8; i++ {
		b.WriteString(`<span class="name">Stray</span>`)
	}
	b.WriteString(`</body></html>`)

	det, ok := DetectContainer(mustDoc(t, b.String()), fieldSelectorsFixture(), DefaultHeuristics())
	if !ok {
		t.Fatal("expected fallback detection")
	}
	if det.Selector != ".box" || det.Count != 2 {
		t.Errorf("detection = %+v", det)
	}
}

func TestDetectContainerNoFieldSelectors(t *testing.T) {
	doc := mustDoc(t, productGridHTML(4))
	sels := []models.AssignedSelector{{Role: models.RoleNextPage, CSS: ".next"}}
	if _, ok := DetectContainer(doc, sels, DefaultHeuristics()); ok {
		t.Error("nextPage selectors alone must not anchor detection")
	}
}

func TestCandidateSelectorsPrefersProductClasses(t *testing.T) {
	doc := mustDoc(t, `<div class="col-4 product-tile"></div>`)
	cands := candidateSelectors(doc.Find("div").First())
	if len(cands) == 0 {
		t.Fatal("no candidates")
	}
	if cands[0].selector != ".product-tile" || !cands[0].productLike {
		t.Errorf("first candidate = %+v", cands[0])
	}
}
