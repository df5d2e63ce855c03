// internal/extract/engine.go
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/pkg/models"
)

// Engine runs heuristic extraction against one borrowed page handle. It is
// stateless between runs and never outlives the owning session; the session
// serializes all calls against the handle.
//
// The engine never retries: a failed navigation or selector problem is
// surfaced immediately so operators see the real issue instead of masked
// flakiness. Retry, if desired, belongs to the caller.
type Engine struct {
	page  browser.Page
	h     Heuristics
	creds CredentialResolver
}

// Option configures an Engine.
type Option func(*Engine)

// WithHeuristics overrides the default thresholds (used by tests and the
// config layer).
func WithHeuristics(h Heuristics) Option {
	return func(e *Engine) { e.h = h }
}

// WithCredentials supplies the resolver for {{credential:...}} pre-action
// values.
func WithCredentials(c CredentialResolver) Option {
	return func(e *Engine) { e.creds = c }
}

// New creates an Engine borrowing the given page handle.
func New(page browser.Page, opts ...Option) *Engine {
	e := &Engine{page: page, h: DefaultHeuristics()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the full extraction: shim install, navigation, pre-action
// replay, optional auto-scroll, then per-page extraction and pagination up
// to maxPages or targetProducts. A fatal step returns success=false with
// whatever items were already collected; the result is always complete.
func (e *Engine) Execute(ctx context.Context, cfg *models.ScraperConfig) *models.ScrapeResult {
	start := time.Now()
	result := &models.ScrapeResult{Success: true, Items: []models.ScrapedItem{}}

	finish := func() *models.ScrapeResult {
		result.Duration = time.Since(start)
		return result
	}
	fail := func(err error) *models.ScrapeResult {
		log.Warn().Err(err).Str("config", cfg.Name).Msg("Extraction aborted")
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return finish()
	}

	// Defeat observer-gated lazy loaders before any application code runs.
	if err := e.page.InstallShim(ctx, lazyObserverShim); err != nil {
		return fail(fatal("SHIM_INSTALL", "failed to install lazy-load shim", err))
	}

	navCtx, cancel := context.WithTimeout(ctx, e.h.NavigationTimeout)
	err := e.page.Navigate(navCtx, cfg.StartURL)
	cancel()
	if err != nil {
		return fail(fatal("NAVIGATION", fmt.Sprintf("failed to open %s", cfg.StartURL), err))
	}

	if cfg.PreActions != nil {
		replayPreActions(ctx, e.page, cfg.PreActions.Actions, e.h, e.creds)
	}

	if cfg.AutoScroll {
		runAutoScroll(ctx, e.page, cfg, e.h)
	}

	maxPages := cfg.MaxPages()
	containerSel := cfg.ItemContainer

	for pageNum := 0; pageNum < maxPages; pageNum++ {
		items, detected, outcome, pageErr := e.extractCurrentPage(ctx, cfg, containerSel)
		log.Debug().Str("config", cfg.Name).Int("page", pageNum+1).Stringer("outcome", outcome).Msg("Page extracted")
		if outcome == OutcomeFatal {
			return fail(pageErr)
		}
		if outcome == OutcomeEmpty {
			// No container could be inferred: structured empty result, the
			// operator should pick one manually.
			result.Errors = append(result.Errors, ReasonNoContainer)
			break
		}
		if containerSel == "" {
			// Reuse the detection on subsequent pages of the same listing.
			containerSel = detected
		}

		result.Items = append(result.Items, items...)
		result.PagesScraped++

		if cfg.TargetProducts > 0 && len(result.Items) >= cfg.TargetProducts {
			result.Items = result.Items[:cfg.TargetProducts]
			break
		}
		if pageNum == maxPages-1 {
			break
		}

		advanced, advErr := advancePage(ctx, e.page, cfg.Pagination, cfg.StartURL, pageNum+2, e.h)
		if advErr != nil {
			return fail(fatal("PAGINATION", "failed to advance to next page", advErr))
		}
		if !advanced {
			break
		}
		if cfg.AutoScroll {
			runAutoScroll(ctx, e.page, cfg, e.h)
		}
	}

	log.Info().
		Str("config", cfg.Name).
		Int("items", len(result.Items)).
		Int("pages", result.PagesScraped).
		Dur("duration", time.Since(start)).
		Msg("Extraction finished")
	return finish()
}

// extractCurrentPage snapshots the live DOM and extracts one page of items.
// With an explicit container, zero matches is fatal: the selector was built
// against this site, so failure indicates a real problem. Without one, the
// container is auto-detected; detection failure yields OutcomeEmpty for the
// recoverable-empty path.
func (e *Engine) extractCurrentPage(ctx context.Context, cfg *models.ScraperConfig, containerSel string) ([]models.ScrapedItem, string, Outcome, error) {
	html, err := e.page.HTML(ctx)
	if err != nil {
		return nil, "", OutcomeFatal, fatal("SNAPSHOT", "failed to read page HTML", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", OutcomeFatal, fatal("PARSE", "failed to parse page HTML", err)
	}

	pageURL, urlErr := e.page.URL(ctx)
	if urlErr != nil || pageURL == "" {
		pageURL = cfg.StartURL
	}

	if containerSel != "" {
		if doc.Find(containerSel).Length() == 0 {
			return nil, "", OutcomeFatal, fatal("CONTAINER_NOT_FOUND",
				fmt.Sprintf("item container %q matched no elements", containerSel),
				ErrContainerNotFound)
		}
		return ExtractItems(doc, cfg, containerSel, pageURL), containerSel, OutcomeSuccess, nil
	}

	det, ok := DetectContainer(doc, cfg.Selectors, e.h)
	if !ok {
		return nil, "", OutcomeEmpty, nil
	}
	return ExtractItems(doc, cfg, det.Selector, pageURL), det.Selector, OutcomeSuccess, nil
}

// ValidateConfig navigates to the start URL and checks that the config's
// selectors resolve against the live page. It borrows the page exactly like
// Execute does and performs no extraction.
func (e *Engine) ValidateConfig(ctx context.Context, cfg *models.ScraperConfig) error {
	navCtx, cancel := context.WithTimeout(ctx, e.h.NavigationTimeout)
	err := e.page.Navigate(navCtx, cfg.StartURL)
	cancel()
	if err != nil {
		return fatal("NAVIGATION", fmt.Sprintf("failed to open %s", cfg.StartURL), err)
	}

	html, err := e.page.HTML(ctx)
	if err != nil {
		return fatal("SNAPSHOT", "failed to read page HTML", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fatal("PARSE", "failed to parse page HTML", err)
	}

	if cfg.ItemContainer != "" && doc.Find(cfg.ItemContainer).Length() == 0 {
		return fatal("CONTAINER_NOT_FOUND",
			fmt.Sprintf("item container %q matched no elements", cfg.ItemContainer),
			ErrContainerNotFound)
	}

	matched := 0
	for _, css := range distinctFieldSelectors(cfg.Selectors) {
		if doc.Find(css).Length() > 0 {
			matched++
		}
	}
	if matched == 0 {
		return fatal("NO_SELECTOR_MATCH", "none of the configured selectors matched the page", nil)
	}
	return nil
}
