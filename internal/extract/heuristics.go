// Package extract implements the heuristic extraction engine: container
// auto-detection, priority-fallback field extraction, price normalization,
// the lazy-load auto-scroll loader, pagination advance and pre-action replay.
package extract

import "time"

// Heuristics gathers every threshold the engine's heuristics depend on.
// Tests override these instead of depending on real page timing.
type Heuristics struct {
	// Container auto-detection.
	SampleLimit         int     // anchors sampled when scoring candidates
	MaxAncestorDepth    int     // how far up the tree candidates are collected
	MinContainerCount   int     // candidates matching fewer elements are rejected
	MaxContainerCount   int     // candidates matching this many or more are rejected
	ReasonableCountMin  int     // container counts in this range get a score bonus
	ReasonableCountMax  int
	FallbackCountMin    int     // fallback walk accepts counts in this range
	FallbackCountMax    int
	MinAcceptScore      float64 // candidates scoring below this are discarded
	ProductClassBonus   float64
	ReasonableBonus     float64

	// Auto-scroll loader.
	ScrollMaxIterations int           // phase 1 hard cap
	ScrollStableRuns    int           // consecutive no-change iterations to stop
	ScrollUpStep        float64       // pixels per upward probe step
	ScrollUpMaxSteps    int           // phase 2 hard cap
	ScrollUpEarlyBail   int           // fruitless upward steps before bailing when phase 1 saturated
	IndicatorWait       time.Duration // bounded wait for a loading indicator to clear
	IndicatorPoll       time.Duration
	ScrollSettle        time.Duration // pause after each scroll jump

	// Timeouts.
	NavigationTimeout time.Duration
	ClickNavTimeout   time.Duration // wait after a next-page click
	PostClickSettle   time.Duration // pause for client-side updates after advancing
	PreActionWait     time.Duration // visibility wait before each pre-action
	PreActionPoll     time.Duration
}

// DefaultHeuristics returns the production thresholds.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		SampleLimit:        20,
		MaxAncestorDepth:   10,
		MinContainerCount:  2,
		MaxContainerCount:  500,
		ReasonableCountMin: 5,
		ReasonableCountMax: 200,
		FallbackCountMin:   2,
		FallbackCountMax:   200,
		MinAcceptScore:     0.5,
		ProductClassBonus:  0.3,
		ReasonableBonus:    0.2,

		ScrollMaxIterations: 50,
		ScrollStableRuns:    3,
		ScrollUpStep:        400,
		ScrollUpMaxSteps:    40,
		ScrollUpEarlyBail:   8,
		IndicatorWait:       4 * time.Second,
		IndicatorPoll:       200 * time.Millisecond,
		ScrollSettle:        250 * time.Millisecond,

		NavigationTimeout: 30 * time.Second,
		ClickNavTimeout:   8 * time.Second,
		PostClickSettle:   1500 * time.Millisecond,
		PreActionWait:     3 * time.Second,
		PreActionPoll:     150 * time.Millisecond,
	}
}
