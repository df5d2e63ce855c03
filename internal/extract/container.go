// internal/extract/container.go
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/pkg/models"
)

// disallowedContainerTags are structural elements that can never be the
// repeating record container.
var disallowedContainerTags = map[string]bool{
	"html": true, "body": true, "head": true,
	"nav": true, "header": true, "footer": true,
	"form": true, "a": true, "img": true, "svg": true,
	"script": true, "style": true, "table": true, "button": true,
}

// chromeClassKeywords mark page chrome rather than content; an ancestor
// whose class list contains one is skipped.
var chromeClassKeywords = []string{
	"menu", "dropdown", "cookie", "language", "navbar", "nav-", "footer",
	"header", "banner", "breadcrumb", "pagination", "filter", "sidebar",
	"modal", "popup", "overlay", "tooltip",
}

// productClassKeywords hint that a class names a record-like unit.
var productClassKeywords = []string{
	"product", "item", "card", "result", "listing", "tile", "goods",
	"entry", "offer", "article",
}

var classNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Detection is a detected container selector and the element count it
// matched at detection time.
type Detection struct {
	Selector string
	Count    int
}

// DetectContainer infers the repeating item container from the configured
// field selectors. It returns ok=false when no candidate is acceptable;
// that is the NO_CONTAINER_DETECTED case, reported as a recoverable-empty
// result so the operator can pick a container manually.
//
// The algorithm is deterministic for an unchanged document: candidate order
// follows document order and ties keep the earliest candidate.
func DetectContainer(doc *goquery.Document, selectors []models.AssignedSelector, h Heuristics) (Detection, bool) {
	fieldSelectors := distinctFieldSelectors(selectors)
	if len(fieldSelectors) == 0 {
		return Detection{}, false
	}

	// The selector with the most matches anchors the sample: it is the most
	// likely to appear once per record.
	var anchorNodes *goquery.Selection
	for _, css := range fieldSelectors {
		nodes := doc.Find(css)
		if anchorNodes == nil || nodes.Length() > anchorNodes.Length() {
			anchorNodes = nodes
		}
	}
	if anchorNodes == nil || anchorNodes.Length() == 0 {
		return Detection{}, false
	}

	sample := sampleSelections(anchorNodes, h.SampleLimit)

	type candidate struct {
		selector    string
		productLike bool
	}
	var candidates []candidate
	seen := map[string]bool{}

	for _, anchor := range sample {
		depth := 0
		for parent := anchor.Parent(); parent.Length() > 0 && depth < h.MaxAncestorDepth; parent = parent.Parent() {
			depth++
			if containerDisallowed(parent) {
				continue
			}
			for _, sel := range candidateSelectors(parent) {
				if seen[sel.selector] {
					continue
				}
				seen[sel.selector] = true
				candidates = append(candidates, candidate{selector: sel.selector, productLike: sel.productLike})
			}
		}
	}

	best := Detection{}
	bestScore := 0.0
	for _, cand := range candidates {
		matched := doc.Find(cand.selector)
		n := matched.Length()
		if n < h.MinContainerCount || n >= h.MaxContainerCount {
			continue
		}

		contained := 0
		for _, anchor := range sample {
			if anchor.Closest(cand.selector).Length() > 0 {
				contained++
			}
		}
		score := float64(contained) / float64(len(sample))
		if cand.productLike {
			score += h.ProductClassBonus
		}
		if n >= h.ReasonableCountMin && n <= h.ReasonableCountMax {
			score += h.ReasonableBonus
		}
		if score > bestScore {
			bestScore = score
			best = Detection{Selector: cand.selector, Count: n}
		}
	}

	if best.Selector != "" && bestScore >= h.MinAcceptScore {
		log.Debug().
			Str("selector", best.Selector).
			Int("count", best.Count).
			Float64("score", bestScore).
			Msg("Container detected")
		return best, true
	}

	// Fallback: walk up from a single representative anchor looking for the
	// first ancestor whose selector bounds a sane repeating group where
	// every requested field resolves.
	if det, ok := fallbackWalk(doc, sample[0], fieldSelectors, h); ok {
		log.Debug().Str("selector", det.Selector).Int("count", det.Count).Msg("Container found via fallback walk")
		return det, true
	}

	return Detection{}, false
}

// fallbackWalk climbs from one representative element and accepts the first
// ancestor selector matching a bounded group whose members each contain
// every requested selector. It applies the same validity filter as the
// scoring path.
func fallbackWalk(doc *goquery.Document, anchor *goquery.Selection, fieldSelectors []string, h Heuristics) (Detection, bool) {
	depth := 0
	for parent := anchor.Parent(); parent.Length() > 0 && depth < h.MaxAncestorDepth; parent = parent.Parent() {
		depth++
		if containerDisallowed(parent) {
			continue
		}
		for _, cand := range candidateSelectors(parent) {
			matched := doc.Find(cand.selector)
			n := matched.Length()
			if n < h.FallbackCountMin || n > h.FallbackCountMax {
				continue
			}
			if allContainFields(matched, fieldSelectors) {
				return Detection{Selector: cand.selector, Count: n}, true
			}
		}
	}
	return Detection{}, false
}

func allContainFields(matched *goquery.Selection, fieldSelectors []string) bool {
	ok := true
	matched.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		for _, css := range fieldSelectors {
			if el.Find(css).Length() == 0 {
				ok = false
				return false
			}
		}
		return true
	})
	return ok
}

type candidateSelector struct {
	selector    string
	productLike bool
}

// candidateSelectors derives one or two class-based selectors for an
// ancestor, preferring product-like class names.
func candidateSelectors(el *goquery.Selection) []candidateSelector {
	classAttr, _ := el.Attr("class")
	var usable []string
	for _, cls := range strings.Fields(classAttr) {
		if classNameRe.MatchString(cls) {
			usable = append(usable, cls)
		}
	}
	if len(usable) == 0 {
		return nil
	}

	var out []candidateSelector
	for _, cls := range usable {
		if isProductLikeClass(cls) {
			out = append(out, candidateSelector{selector: "." + cls, productLike: true})
			break
		}
	}
	if len(out) == 0 || out[0].selector != "."+usable[0] {
		out = append(out, candidateSelector{selector: "." + usable[0], productLike: isProductLikeClass(usable[0])})
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return out
}

// containerDisallowed applies the structural validity filter shared by the
// scoring path and the fallback walk.
func containerDisallowed(el *goquery.Selection) bool {
	if tag := goquery.NodeName(el); disallowedContainerTags[tag] {
		return true
	}
	classAttr, _ := el.Attr("class")
	lower := strings.ToLower(classAttr)
	for _, kw := range chromeClassKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isProductLikeClass(cls string) bool {
	lower := strings.ToLower(cls)
	for _, kw := range productClassKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func distinctFieldSelectors(selectors []models.AssignedSelector) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range selectors {
		css := strings.TrimSpace(s.CSS)
		if s.Role == models.RoleNextPage || css == "" || seen[css] {
			continue
		}
		seen[css] = true
		out = append(out, css)
	}
	return out
}

func sampleSelections(nodes *goquery.Selection, limit int) []*goquery.Selection {
	var sample []*goquery.Selection
	nodes.EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		sample = append(sample, el)
		return true
	})
	return sample
}
