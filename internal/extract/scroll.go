// internal/extract/scroll.go
package extract

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/pkg/models"
)

// scrollReport summarizes a loader run. The loader itself never fails:
// absence of new content is success, and every loop is bounded.
type scrollReport struct {
	Iterations int
	UpSteps    int
	Counts     []int // observed element counts, non-decreasing
}

// runAutoScroll loads everything a human would see by scrolling, without a
// fixed sleep budget. Phase 1 saturates downward until the element count
// and document height stop changing; phase 2 probes upward because some
// loaders only fire when content re-enters the viewport from above.
func runAutoScroll(ctx context.Context, page browser.Page, cfg *models.ScraperConfig, h Heuristics) scrollReport {
	report := scrollReport{}
	metricsExpr := pageMetricsScript(cfg.Selectors)

	readMetrics := func() (pageMetrics, bool) {
		var m pageMetrics
		if err := page.Evaluate(ctx, metricsExpr, &m); err != nil {
			log.Debug().Err(err).Msg("Auto-scroll metrics read failed, stopping loader")
			return pageMetrics{}, false
		}
		return m, true
	}

	jumpBottom := func() bool {
		if err := page.Evaluate(ctx, scrollToScript(-1), nil); err != nil {
			return false
		}
		sleep(ctx, h.ScrollSettle)
		waitIndicatorGone(ctx, page, h)
		return true
	}

	// Phase 1: saturate downward.
	saturate := func() (pageMetrics, bool) {
		var last pageMetrics
		stable := 0
		haveLast := false
		for i := 0; i < h.ScrollMaxIterations; i++ {
			report.Iterations++
			if !jumpBottom() {
				return last, false
			}
			m, ok := readMetrics()
			if !ok {
				return last, false
			}
			report.Counts = append(report.Counts, m.Count)
			if haveLast && m.Count == last.Count && m.Height == last.Height {
				stable++
				if stable >= h.ScrollStableRuns {
					return m, true
				}
			} else {
				stable = 0
			}
			last = m
			haveLast = true
		}
		return last, false
	}

	last, saturated := saturate()

	// Phase 2: probe upward. Content gated on scroll-up re-entry only
	// appears when elements cross back into the viewport from below.
	pos := last.Height
	fruitless := 0
	for step := 0; step < h.ScrollUpMaxSteps && pos > 0; step++ {
		report.UpSteps++
		pos -= h.ScrollUpStep
		if pos < 0 {
			pos = 0
		}
		if err := page.Evaluate(ctx, scrollToScript(pos), nil); err != nil {
			break
		}
		sleep(ctx, h.ScrollSettle)

		m, ok := readMetrics()
		if !ok {
			break
		}
		if m.Count > last.Count {
			report.Counts = append(report.Counts, m.Count)
			fruitless = 0
			// New content appeared above the fold: go back down and
			// re-saturate before continuing the upward probe.
			m2, ok2 := saturate()
			if !ok2 && m2.Count == 0 {
				break
			}
			last = m2
			saturated = saturated || ok2
			pos = last.Height
			continue
		}

		fruitless++
		if saturated && fruitless >= h.ScrollUpEarlyBail {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Make remaining placeholder images real and restore scroll position
	// before the extraction snapshot. The restore is a plain scroll; no
	// synthetic scroll events once loading is done.
	_ = page.Evaluate(ctx, forceEagerImagesScript, nil)
	_ = page.ScrollTo(ctx, 0, 0)

	log.Debug().
		Int("iterations", report.Iterations).
		Int("up_steps", report.UpSteps).
		Int("final_count", lastCount(report.Counts)).
		Msg("Auto-scroll finished")
	return report
}

// waitIndicatorGone polls until no recognized loading indicator is visible
// or the bounded wait elapses.
func waitIndicatorGone(ctx context.Context, page browser.Page, h Heuristics) {
	deadline := time.Now().Add(h.IndicatorWait)
	for time.Now().Before(deadline) {
		var visible bool
		if err := page.Evaluate(ctx, loadingIndicatorScript, &visible); err != nil || !visible {
			return
		}
		sleep(ctx, h.IndicatorPoll)
		if ctx.Err() != nil {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func lastCount(counts []int) int {
	if len(counts) == 0 {
		return 0
	}
	return counts[len(counts)-1]
}
