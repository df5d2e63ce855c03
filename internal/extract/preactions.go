// internal/extract/preactions.go
package extract

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scrape-studio/studio/internal/browser"
	"github.com/scrape-studio/studio/pkg/models"
)

// CredentialResolver resolves {{credential:name}} placeholders in recorded
// type actions so secrets never live in persisted configs.
type CredentialResolver interface {
	Resolve(name string) (string, error)
}

var credentialRe = regexp.MustCompile(`^\{\{credential:([^}]+)\}\}$`)

// replayPreActions executes the recorded action sequence before scraping.
// Each action is independently best-effort: popups are conditional, so an
// absent target is a skip and an execution failure does not abort the rest.
// Cross-page navigation is blocked for the duration so a stray click cannot
// hijack the session.
func replayPreActions(ctx context.Context, page browser.Page, actions []models.RecorderAction, h Heuristics, creds CredentialResolver) {
	if len(actions) == 0 {
		return
	}

	release, err := page.GuardNavigation(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not install navigation guard for pre-action replay")
	} else {
		defer release()
	}

	for i, action := range actions {
		if !waitVisible(ctx, page, action.Selector, h) {
			log.Debug().
				Int("index", i).
				Str("selector", action.Selector).
				Msg("Pre-action target not visible, skipping")
			continue
		}

		var actErr error
		switch action.Type {
		case models.ActionClick:
			actErr = page.Click(ctx, action.Selector)
		case models.ActionType:
			value := action.Value
			if m := credentialRe.FindStringSubmatch(value); m != nil && creds != nil {
				secret, err := creds.Resolve(m[1])
				if err != nil {
					log.Warn().Err(err).Str("credential", m[1]).Msg("Credential lookup failed, skipping type action")
					continue
				}
				value = secret
			}
			actErr = page.Type(ctx, action.Selector, value)
		case models.ActionSelect:
			actErr = page.SelectOption(ctx, action.Selector, action.Value)
		default:
			log.Warn().Str("type", string(action.Type)).Msg("Unknown pre-action type, skipping")
			continue
		}

		if actErr != nil {
			log.Warn().
				Err(actErr).
				Int("index", i).
				Str("type", string(action.Type)).
				Str("selector", action.Selector).
				Msg("Pre-action failed, continuing with remaining actions")
		}
	}
}

// waitVisible polls for the selector to become visible within the bounded
// pre-action wait.
func waitVisible(ctx context.Context, page browser.Page, selector string, h Heuristics) bool {
	expr := visibleScript(selector)
	deadline := time.Now().Add(h.PreActionWait)
	for {
		var visible bool
		if err := page.Evaluate(ctx, expr, &visible); err == nil && visible {
			return true
		}
		if !time.Now().Before(deadline) || ctx.Err() != nil {
			return false
		}
		sleep(ctx, h.PreActionPoll)
	}
}
