// internal/extract/fields.go
package extract

import (
	"net/url"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/pkg/models"
)

// lazySrcAttrs are promoted over a placeholder src, in order.
var lazySrcAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// fieldGroup is the ordered selector fallback chain for one output field.
type fieldGroup struct {
	Name      string
	Selectors []models.AssignedSelector
}

// groupSelectors buckets the config's selectors by output field, preserving
// first-appearance order across fields and priority order within each.
// nextPage selectors drive pagination, not item fields, and are excluded.
func groupSelectors(selectors []models.AssignedSelector) []fieldGroup {
	var order []string
	byName := map[string][]models.AssignedSelector{}
	for _, s := range selectors {
		if s.Role == models.RoleNextPage {
			continue
		}
		name := s.FieldName()
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = append(byName[name], s)
	}

	groups := make([]fieldGroup, 0, len(order))
	for _, name := range order {
		sels := byName[name]
		sort.SliceStable(sels, func(i, j int) bool { return sels[i].Priority < sels[j].Priority })
		groups = append(groups, fieldGroup{Name: name, Selectors: sels})
	}
	return groups
}

// ExtractItems pulls one ScrapedItem per container element from a document
// snapshot. Containers yielding no non-null field are dropped so that
// accidentally matched chrome never produces empty records.
func ExtractItems(doc *goquery.Document, cfg *models.ScraperConfig, containerSel, pageURL string) []models.ScrapedItem {
	groups := groupSelectors(cfg.Selectors)
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var converter *md.Converter
	if cfg.HTMLToMarkdown {
		converter = md.NewConverter("", true, nil)
	}

	var items []models.ScrapedItem
	doc.Find(containerSel).Each(func(_ int, container *goquery.Selection) {
		item := models.ScrapedItem{}
		populated := false
		for _, g := range groups {
			var value *string
			for _, sel := range g.Selectors {
				if v := extractValue(container, sel, base, cfg.PriceFormat, converter); v != nil {
					value = v
					break
				}
			}
			item[g.Name] = value
			if value != nil {
				populated = true
			}
		}
		if populated {
			enforcePriceOrder(item)
			items = append(items, item)
		}
	})
	return items
}

// extractValue reads one field value from the container according to the
// selector's extraction type. Returns nil when nothing usable matched,
// which moves the fallback chain to the next priority.
func extractValue(container *goquery.Selection, sel models.AssignedSelector, base *url.URL, format *models.PriceFormat, converter *md.Converter) *string {
	el := container.Find(sel.CSS).First()
	if el.Length() == 0 {
		// The container itself may be the target (e.g. the card is the link).
		if !container.Is(sel.CSS) {
			return nil
		}
		el = container
	}

	switch sel.ExtractionType {
	case models.ExtractText, "":
		text := strings.TrimSpace(el.Text())
		if text == "" {
			return nil
		}
		if isPriceRole(sel.Role) {
			if cleaned := CleanPrice(text, format); cleaned != "" {
				return &cleaned
			}
			return nil
		}
		return &text

	case models.ExtractHref:
		href, ok := el.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return nil
		}
		resolved := resolveURL(base, href)
		return &resolved

	case models.ExtractSrc:
		src := imageSource(el)
		if src == "" {
			return nil
		}
		resolved := resolveURL(base, src)
		return &resolved

	case models.ExtractAttribute:
		if sel.AttributeName == "" {
			return nil
		}
		v, ok := el.Attr(sel.AttributeName)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		v = strings.TrimSpace(v)
		return &v

	case models.ExtractInnerHTML:
		html, err := el.Html()
		if err != nil || strings.TrimSpace(html) == "" {
			return nil
		}
		if converter != nil {
			if markdown, err := converter.ConvertString(html); err == nil {
				markdown = strings.TrimSpace(markdown)
				return &markdown
			}
			log.Debug().Str("selector", sel.CSS).Msg("Markdown conversion failed, keeping raw HTML")
		}
		return &html

	default:
		return nil
	}
}

// imageSource promotes lazy-load attributes over a placeholder src.
func imageSource(el *goquery.Selection) string {
	src, _ := el.Attr("src")
	if !isPlaceholderSrc(src) {
		return src
	}
	for _, attr := range lazySrcAttrs {
		if v, ok := el.Attr(attr); ok && v != "" {
			return v
		}
	}
	if isPlaceholderSrc(src) && strings.HasPrefix(src, "data:") {
		return ""
	}
	return src
}

func isPlaceholderSrc(src string) bool {
	if src == "" {
		return true
	}
	if strings.HasPrefix(src, "data:") {
		return true
	}
	lower := strings.ToLower(src)
	return strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "blank") ||
		strings.Contains(lower, "loading")
}

func isPriceRole(role models.Role) bool {
	return role == models.RolePrice || role == models.RoleOriginalPrice || role == models.RoleSalePrice
}

// enforcePriceOrder upholds the "original price >= sale price" invariant:
// the two roles are extracted independently, and sites that reverse the
// markup would otherwise report a sale above the original.
func enforcePriceOrder(item models.ScrapedItem) {
	orig, hasOrig := item[string(models.RoleOriginalPrice)]
	sale, hasSale := item[string(models.RoleSalePrice)]
	if !hasOrig || !hasSale || orig == nil || sale == nil {
		return
	}
	ov, okO := ParsePrice(*orig)
	sv, okS := ParsePrice(*sale)
	if okO && okS && ov < sv {
		item[string(models.RoleOriginalPrice)], item[string(models.RoleSalePrice)] = sale, orig
	}
}

// resolveURL resolves a possibly relative reference against the page origin.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
