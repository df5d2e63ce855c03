// Package static is the HTTP fast path: a plain GET plus snapshot
// extraction, no browser involved. When the response looks bot-blocked or
// yields too few items, the result flags that a browser session is needed
// and why; the caller decides whether to fall back.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/cache"
	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/ratelimit"
	"github.com/scrape-studio/studio/internal/retry"
	"github.com/scrape-studio/studio/pkg/models"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultCacheTTL  = 5 * time.Minute

	// Bodies shorter than this are treated as block pages regardless of
	// content.
	minPlausibleBody = 500

	maxBodySize = 10 * 1024 * 1024
)

// Fallback reasons reported when the fast path cannot finish the job.
const (
	ReasonBotDetection = "bot_detection"
	ReasonNoItems      = "no_items_found"
	ReasonTimeout      = "timeout"
)

// Result is the fast-path outcome. NeedsBrowser set with a Reason means the
// caller should rerun the config through a browser session.
type Result struct {
	Success      bool                 `json:"success"`
	Items        []models.ScrapedItem `json:"items"`
	Count        int                  `json:"count"`
	NeedsBrowser bool                 `json:"needs_browser"`
	Reason       string               `json:"reason,omitempty"`
	ScriptData   map[string]string    `json:"scriptData,omitempty"`
}

// Options configures a Scraper. Zero-value fields get defaults.
type Options struct {
	Client    *http.Client
	Cache     cache.Cache
	Limiter   ratelimit.RateLimiter
	Retry     retry.Config
	UserAgent string
	CacheTTL  time.Duration
	Heur      extract.Heuristics

	// HarvestScripts runs inline scripts in a sandbox and exposes the
	// globals they assign, for sites that embed their listing data as JS.
	HarvestScripts bool
}

// Scraper is the static HTTP scraper.
type Scraper struct {
	client   *http.Client
	cache    cache.Cache
	limiter  ratelimit.RateLimiter
	retry    retry.Config
	ua       string
	cacheTTL time.Duration
	h        extract.Heuristics
	harvest  bool
}

// New creates a Scraper.
func New(opts Options) *Scraper {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Heur.SampleLimit == 0 {
		opts.Heur = extract.DefaultHeuristics()
	}
	return &Scraper{
		client:   opts.Client,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		retry:    opts.Retry,
		ua:       opts.UserAgent,
		cacheTTL: opts.CacheTTL,
		h:        opts.Heur,
		harvest:  opts.HarvestScripts,
	}
}

// Scrape runs the fast path for one config. It never paginates and never
// replays pre-actions; anything needing page interaction is browser work.
func (s *Scraper) Scrape(ctx context.Context, cfg *models.ScraperConfig) *Result {
	start := time.Now()

	body, err := s.fetch(ctx, cfg.StartURL)
	if err != nil {
		reason := ReasonTimeout
		if !isTimeout(err) {
			reason = "request_error: " + err.Error()
		}
		log.Debug().Err(err).Str("url", cfg.StartURL).Msg("Static fetch failed")
		return &Result{Items: []models.ScrapedItem{}, NeedsBrowser: true, Reason: reason}
	}

	if blocked, marker := looksBotBlocked(body); blocked {
		log.Debug().Str("url", cfg.StartURL).Str("marker", marker).Msg("Static fetch looks bot-blocked")
		return &Result{Items: []models.ScrapedItem{}, NeedsBrowser: true, Reason: ReasonBotDetection}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &Result{Items: []models.ScrapedItem{}, NeedsBrowser: true, Reason: "parse_error: " + err.Error()}
	}

	res := &Result{Items: []models.ScrapedItem{}}
	if s.harvest {
		res.ScriptData = harvestScriptGlobals(doc, cfg.StartURL)
	}

	containerSel := cfg.ItemContainer
	if containerSel == "" {
		det, ok := extract.DetectContainer(doc, cfg.Selectors, s.h)
		if !ok {
			res.NeedsBrowser = true
			res.Reason = ReasonNoItems
			return res
		}
		containerSel = det.Selector
	} else if doc.Find(containerSel).Length() == 0 {
		res.NeedsBrowser = true
		res.Reason = ReasonNoItems
		return res
	}

	res.Items = extract.ExtractItems(doc, cfg, containerSel, cfg.StartURL)
	res.Count = len(res.Items)

	switch {
	case res.Count == 0:
		res.NeedsBrowser = true
		res.Reason = ReasonNoItems
	case cfg.TargetProducts > 0 && res.Count < cfg.TargetProducts:
		// Partial results are still results; the browser fallback can do
		// better via scrolling and pagination.
		res.Success = true
		res.NeedsBrowser = true
		res.Reason = fmt.Sprintf("below_target_%d/%d", res.Count, cfg.TargetProducts)
	default:
		res.Success = true
	}

	log.Debug().
		Str("url", cfg.StartURL).
		Int("items", res.Count).
		Bool("needs_browser", res.NeedsBrowser).
		Dur("duration", time.Since(start)).
		Msg("Static scrape finished")
	return res
}

// fetch gets the page body, consulting the cache first and retrying
// transient HTTP failures with backoff.
func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	key := cache.Key(pageURL, "")
	if s.cache != nil {
		if body, ok := s.cache.Get(key); ok {
			return body, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
	}

	var body []byte
	err := retry.WithRetry(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return err
		}
		s.setHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return retry.NewHTTPError(resp.StatusCode, resp.Status, pageURL)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(key, body, s.cacheTTL)
	}
	return body, nil
}

// setHeaders mimics a desktop browser; plain Go client headers trip the
// cheapest bot checks.
func (s *Scraper) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Cache-Control", "max-age=0")
}

var botIndicators = []string{
	"captcha",
	"cloudflare",
	"access denied",
	"robot check",
	"please verify you are human",
	"enable javascript",
	"browser check",
	"ddos protection",
}

// looksBotBlocked reports whether the body reads like a challenge page. Very
// short bodies count as blocked: real listings are never that small.
func looksBotBlocked(body []byte) (bool, string) {
	if len(body) < minPlausibleBody {
		return true, "short_body"
	}
	lower := strings.ToLower(string(body))
	for _, indicator := range botIndicators {
		if strings.Contains(lower, indicator) {
			return true, indicator
		}
	}
	return false, ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout()
	}
	var terr interface{ Timeout() bool }
	return errors.As(err, &terr) && terr.Timeout()
}
