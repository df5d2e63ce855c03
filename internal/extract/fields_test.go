// internal/extract/fields_test.go
package extract

import (
	"testing"

	"github.com/scrape-studio/studio/pkg/models"
)

const cardPageHTML = `<html><body>
<div class="card">
  <h3>Alpha Widget</h3>
  <span class="price">$50.00 $39.99</span>
  <a class="link" href="/p/alpha">view</a>
  <img class="photo" src="data:image/gif;base64,R0lGOD" data-src="/img/alpha.jpg">
  <div class="sku" data-id="A-100"></div>
</div>
<div class="card">
  <h3>Beta Widget</h3>
  <span class="price">€19,99</span>
  <a class="link" href="https://cdn.example/p/beta">view</a>
  <img class="photo" src="https://cdn.example/img/beta.jpg">
  <div class="sku"></div>
</div>
<div class="card"><p>sold out placeholder</p></div>
</body></html>`

func cardConfig() *models.ScraperConfig {
	return &models.ScraperConfig{
		StartURL: "https://shop.example/list",
		Selectors: []models.AssignedSelector{
			// The first title selector matches nothing; priority fallback
			// must move on to the h3.
			{Role: models.RoleTitle, CSS: ".title-missing", ExtractionType: models.ExtractText, Priority: 1},
			{Role: models.RoleTitle, CSS: "h3", ExtractionType: models.ExtractText, Priority: 2},
			{Role: models.RolePrice, CSS: ".price", ExtractionType: models.ExtractText, Priority: 1},
			{Role: models.RoleURL, CSS: ".link", ExtractionType: models.ExtractHref, Priority: 1},
			{Role: models.RoleImage, CSS: ".photo", ExtractionType: models.ExtractSrc, Priority: 1},
			{Role: models.RoleCustom, CustomName: "sku", CSS: ".sku", ExtractionType: models.ExtractAttribute, AttributeName: "data-id", Priority: 1},
		},
	}
}

func TestExtractItems(t *testing.T) {
	doc := mustDoc(t, cardPageHTML)
	items := ExtractItems(doc, cardConfig(), ".card", "https://shop.example/list")

	// The empty third card yields no populated field and is dropped.
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if v := first["title"]; v == nil || *v != "Alpha Widget" {
		t.Errorf("title = %v", strOrNil(v))
	}
	// Lowest-wins when the struck-through original sits next to the sale.
	if v := first["price"]; v == nil || *v != "$39.99" {
		t.Errorf("price = %v", strOrNil(v))
	}
	if v := first["url"]; v == nil || *v != "https://shop.example/p/alpha" {
		t.Errorf("url = %v", strOrNil(v))
	}
	// The placeholder data: src must be bypassed in favor of data-src.
	if v := first["image"]; v == nil || *v != "https://shop.example/img/alpha.jpg" {
		t.Errorf("image = %v", strOrNil(v))
	}
	if v := first["sku"]; v == nil || *v != "A-100" {
		t.Errorf("sku = %v", strOrNil(v))
	}

	second := items[1]
	if v := second["price"]; v == nil || *v != "€19.99" {
		t.Errorf("second price = %v", strOrNil(v))
	}
	if v := second["url"]; v == nil || *v != "https://cdn.example/p/beta" {
		t.Errorf("absolute url = %v", strOrNil(v))
	}
	if v := second["image"]; v == nil || *v != "https://cdn.example/img/beta.jpg" {
		t.Errorf("second image = %v", strOrNil(v))
	}
	// Requested but unmatched fields are present with a nil value.
	if v, ok := second["sku"]; !ok || v != nil {
		t.Errorf("empty attribute should yield nil, got %v", strOrNil(v))
	}
}

func TestExtractItemsPriceOrderInvariant(t *testing.T) {
	// The site reversed the markup: the "original" span holds the lower
	// value. The two fields must be swapped back.
	doc := mustDoc(t, `<div class="card">
		<span class="was">$29.99</span>
		<span class="now">$49.99</span>
	</div>`)
	cfg := &models.ScraperConfig{
		Selectors: []models.AssignedSelector{
			{Role: models.RoleOriginalPrice, CSS: ".was", ExtractionType: models.ExtractText},
			{Role: models.RoleSalePrice, CSS: ".now", ExtractionType: models.ExtractText},
		},
	}
	items := ExtractItems(doc, cfg, ".card", "")
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	orig := items[0]["originalPrice"]
	sale := items[0]["salePrice"]
	if orig == nil || sale == nil {
		t.Fatal("missing price fields")
	}
	if *orig != "$49.99" || *sale != "$29.99" {
		t.Errorf("orig = %q, sale = %q", *orig, *sale)
	}
}

func TestExtractItemsContainerIsTarget(t *testing.T) {
	// The container itself is the link element.
	doc := mustDoc(t, `<a class="card" href="/p/1"><h3>One</h3></a>`)
	cfg := &models.ScraperConfig{
		Selectors: []models.AssignedSelector{
			{Role: models.RoleTitle, CSS: "h3", ExtractionType: models.ExtractText},
			{Role: models.RoleURL, CSS: "a.card", ExtractionType: models.ExtractHref},
		},
	}
	items := ExtractItems(doc, cfg, "a.card", "https://shop.example/")
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if v := items[0]["url"]; v == nil || *v != "https://shop.example/p/1" {
		t.Errorf("url = %v", strOrNil(v))
	}
}

func TestExtractItemsHTMLToMarkdown(t *testing.T) {
	doc := mustDoc(t, `<div class="card"><div class="desc">Very <strong>sturdy</strong> build</div></div>`)
	cfg := &models.ScraperConfig{
		HTMLToMarkdown: true,
		Selectors: []models.AssignedSelector{
			{Role: models.RoleCustom, CustomName: "description", CSS: ".desc", ExtractionType: models.ExtractInnerHTML},
		},
	}
	items := ExtractItems(doc, cfg, ".card", "")
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	v := items[0]["description"]
	if v == nil || *v != "Very **sturdy** build" {
		t.Errorf("description = %v", strOrNil(v))
	}
}

func strOrNil(v *string) string {
	if v == nil {
		return "<nil>"
	}
	return *v
}
