// internal/extract/scripts.go
//
// Script snippets evaluated in the remote page. Each one returns a JSON
// value; the engine only depends on the Page.Evaluate capability, never on
// a specific browser binding.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrape-studio/studio/pkg/models"
)

// lazyObserverShim makes observer-gated lazy loaders report every observed
// element as already visible. Installed before navigation so it runs ahead
// of any application code.
const lazyObserverShim = `(() => {
	const RealIO = window.IntersectionObserver;
	window.IntersectionObserver = class {
		constructor(callback, options) {
			this._callback = callback;
			this._options = options || {};
			this.root = this._options.root || null;
			this.rootMargin = this._options.rootMargin || '0px';
			this.thresholds = [0];
		}
		observe(target) {
			const rect = target.getBoundingClientRect ? target.getBoundingClientRect() : {};
			this._callback([{
				target,
				isIntersecting: true,
				intersectionRatio: 1,
				intersectionRect: rect,
				boundingClientRect: rect,
				rootBounds: null,
				time: performance.now(),
			}], this);
		}
		unobserve() {}
		disconnect() {}
		takeRecords() { return []; }
	};
	window.IntersectionObserver._shimmed = RealIO;
})();`

// pageMetricsScript counts elements matched by the configured selectors and
// reads the document height. Used by the auto-scroll loader to detect when
// lazy-loaded content stops arriving.
func pageMetricsScript(selectors []models.AssignedSelector) string {
	return fmt.Sprintf(`(() => {
	const sels = %s;
	let count = 0;
	for (const s of sels) {
		try { count += document.querySelectorAll(s).length; } catch (e) {}
	}
	return { count, height: document.documentElement.scrollHeight };
})()`, selectorArray(selectors))
}

// scrollToScript jumps the scroll position and fires synthetic scroll
// events so scroll-listener-based loaders notice the movement.
func scrollToScript(y float64) string {
	target := fmt.Sprintf("%.0f", y)
	if y < 0 {
		target = "document.documentElement.scrollHeight"
	}
	return fmt.Sprintf(`(() => {
	window.scrollTo(0, %s);
	window.dispatchEvent(new Event('scroll'));
	document.dispatchEvent(new Event('scroll'));
	return window.scrollY;
})()`, target)
}

// loadingIndicatorScript reports whether any recognized loading indicator
// is currently visible.
const loadingIndicatorScript = `(() => {
	const sels = ['.loading', '.loader', '.spinner', '.loading-spinner',
		'[class*="loading"]', '[class*="spinner"]', '[aria-busy="true"]',
		'.infinite-scroll-request', '.skeleton', '[class*="skeleton"]'];
	for (const s of sels) {
		let nodes;
		try { nodes = document.querySelectorAll(s); } catch (e) { continue; }
		for (const el of nodes) {
			const style = window.getComputedStyle(el);
			if (style.display !== 'none' && style.visibility !== 'hidden' &&
				el.getClientRects().length > 0) {
				return true;
			}
		}
	}
	return false;
})()`

// forceEagerImagesScript rewrites images still pointing at a placeholder so
// the pre-extraction snapshot carries real sources.
const forceEagerImagesScript = `(() => {
	const lazyAttrs = ['data-src', 'data-lazy-src', 'data-original'];
	let fixed = 0;
	for (const img of document.querySelectorAll('img')) {
		const src = img.getAttribute('src') || '';
		const placeholder = src === '' || src.startsWith('data:') ||
			src.includes('placeholder') || src.includes('blank') || src.includes('loading');
		if (!placeholder) continue;
		for (const attr of lazyAttrs) {
			const real = img.getAttribute(attr);
			if (real) { img.setAttribute('src', real); fixed++; break; }
		}
	}
	return fixed;
})()`

// clickableScript verifies the pagination target exists, is enabled and is
// visible. A false answer means end of list, not an error.
func clickableScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	if (el.disabled) return false;
	const aria = el.getAttribute('aria-disabled');
	if (aria === 'true') return false;
	if (el.classList.contains('disabled')) return false;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	return true;
})()`, jsString(selector))
}

// visibleScript reports whether the selector matches a visible element.
func visibleScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const style = window.getComputedStyle(el);
	return style.display !== 'none' && style.visibility !== 'hidden' &&
		el.getClientRects().length > 0;
})()`, jsString(selector))
}

// pageMetrics mirrors the JSON shape returned by pageMetricsScript.
type pageMetrics struct {
	Count  int     `json:"count"`
	Height float64 `json:"height"`
}

func selectorArray(selectors []models.AssignedSelector) string {
	var parts []string
	for _, s := range selectors {
		if s.Role == models.RoleNextPage || strings.TrimSpace(s.CSS) == "" {
			continue
		}
		parts = append(parts, jsString(s.CSS))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
