// internal/extract/paginate.go
package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/pkg/models"
)

var (
	pageSegmentRe = regexp.MustCompile(`^(.*/page/)(\d+)(/?)$`)
	trailingNumRe = regexp.MustCompile(`^(.*/)(\d+)(/?)$`)
)

// advancePage moves the page to the next result page. It returns false when
// pagination has ended, which is a normal stop. Only a navigation failure
// is reported as an error.
func advancePage(ctx context.Context, page browser.Page, pag *models.PaginationPattern, startURL string, nextPage int, h Heuristics) (bool, error) {
	if pag == nil {
		return false, nil
	}

	switch pag.Type {
	case models.PaginationNextPage:
		if pag.Selector == "" {
			return false, nil
		}
		var clickable bool
		if err := page.Evaluate(ctx, clickableScript(pag.Selector), &clickable); err != nil {
			return false, fmt.Errorf("%w: next page check: %v", ErrEvaluation, err)
		}
		if !clickable {
			log.Debug().Str("selector", pag.Selector).Msg("Next page target absent or disabled, stopping")
			return false, nil
		}
		if err := page.Click(ctx, pag.Selector); err != nil {
			log.Warn().Err(err).Str("selector", pag.Selector).Msg("Next page click failed, stopping")
			return false, nil
		}
		// Either a navigation happens or the page updates in place; wait
		// for whichever, then pause for client-side rendering.
		if _, err := page.WaitNavigation(ctx, h.ClickNavTimeout); err != nil {
			return false, err
		}
		sleep(ctx, h.PostClickSettle)
		return true, nil

	case models.PaginationURLPattern:
		next := BuildPageURL(startURL, pag, nextPage)
		if next == "" {
			return false, nil
		}
		if err := page.Navigate(ctx, next); err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrNavigationFailed, next, err)
		}
		return true, nil

	default:
		// infinite_scroll is satisfied by the auto-scroll loader; there is
		// no further page to advance to.
		return false, nil
	}
}

// BuildPageURL renders the pagination template for the given 1-based page
// number (page 2 is the first advance). Relative "?query" patterns replace
// the start URL's query; absolute patterns stand alone.
func BuildPageURL(startURL string, pag *models.PaginationPattern, pageNum int) string {
	if pag == nil || pag.Pattern == "" || pageNum < 2 {
		return ""
	}

	rendered := strings.ReplaceAll(pag.Pattern, "{page}", strconv.Itoa(pageNum))
	if strings.Contains(rendered, "{offset}") {
		if pag.Offset == nil {
			return ""
		}
		offset := pag.Offset.Start + pag.Offset.Increment*(pageNum-1)
		rendered = strings.ReplaceAll(rendered, "{offset}", strconv.Itoa(offset))
	}

	if strings.HasPrefix(rendered, "?") {
		base, err := url.Parse(startURL)
		if err != nil {
			return ""
		}
		base.RawQuery = strings.TrimPrefix(rendered, "?")
		return base.String()
	}
	return rendered
}

// DetectURLPattern derives a pagination pattern by comparing a baseline URL
// with an operator-supplied "page 2" URL. Exactly one pattern is derived
// per call; ambiguous or unchanged inputs yield no pattern rather than a
// guess.
func DetectURLPattern(baseURL, secondURL string) (*models.PaginationPattern, bool) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, false
	}
	second, err := url.Parse(secondURL)
	if err != nil {
		return nil, false
	}

	if pat, ok := detectQueryPattern(base, second); ok {
		return pat, true
	}
	if base.RawQuery == second.RawQuery {
		if pat, ok := detectPathPattern(base, second); ok {
			return pat, true
		}
	}
	return nil, false
}

// detectQueryPattern looks for a single query parameter whose numeric value
// changed between the two URLs, classifying it as page-style or
// offset-style.
func detectQueryPattern(base, second *url.URL) (*models.PaginationPattern, bool) {
	baseQ := base.Query()
	secondQ := second.Query()

	type change struct {
		key      string
		old, new int
	}
	var changes []change

	for key, vals := range secondQ {
		if len(vals) == 0 {
			continue
		}
		newVal, err := strconv.Atoi(vals[0])
		if err != nil {
			continue
		}
		oldRaw := baseQ.Get(key)
		if oldRaw == "" {
			// A page parameter appearing for the first time: implied page 1.
			if !baseQ.Has(key) && newVal == 2 {
				changes = append(changes, change{key: key, old: 1, new: 2})
			}
			continue
		}
		oldVal, err := strconv.Atoi(oldRaw)
		if err != nil || oldVal == newVal {
			continue
		}
		changes = append(changes, change{key: key, old: oldVal, new: newVal})
	}

	if len(changes) != 1 {
		return nil, false
	}
	c := changes[0]

	pageStyle := c.new-c.old == 1 && (c.old == 0 || c.old == 1)
	placeholder := "{offset}"
	if pageStyle {
		placeholder = "{page}"
	}

	// Rebuild the query with the changed key replaced by the placeholder,
	// keeping the other parameters at their page-2 values.
	var parts []string
	for _, kv := range strings.Split(second.RawQuery, "&") {
		key, _, _ := strings.Cut(kv, "=")
		if key == c.key {
			parts = append(parts, c.key+"="+placeholder)
		} else if kv != "" {
			parts = append(parts, kv)
		}
	}

	pat := &models.PaginationPattern{
		Type:    models.PaginationURLPattern,
		Pattern: "?" + strings.Join(parts, "&"),
	}
	if !pageStyle {
		pat.Offset = &models.OffsetDescriptor{Key: c.key, Start: c.old, Increment: c.new - c.old}
	}
	return pat, true
}

// detectPathPattern recognizes "/page/N" segments and trailing "/N" path
// numbering.
func detectPathPattern(base, second *url.URL) (*models.PaginationPattern, bool) {
	if base.Path == second.Path {
		return nil, false
	}

	if m := pageSegmentRe.FindStringSubmatch(second.Path); m != nil {
		tmpl := *second
		tmpl.Path = m[1] + "{page}" + m[3]
		return &models.PaginationPattern{
			Type:    models.PaginationURLPattern,
			Pattern: tmpl.String(),
		}, true
	}

	if m := trailingNumRe.FindStringSubmatch(second.Path); m != nil {
		// Only trust a trailing number when the base path is its prefix;
		// otherwise the two URLs differ in more than the page number.
		if base.Path == m[1] || strings.TrimSuffix(base.Path, "/") == strings.TrimSuffix(m[1], "/") ||
			trailingNumRe.MatchString(base.Path) {
			tmpl := *second
			tmpl.Path = m[1] + "{page}" + m[3]
			return &models.PaginationPattern{
				Type:    models.PaginationURLPattern,
				Pattern: tmpl.String(),
			}, true
		}
	}
	return nil, false
}
