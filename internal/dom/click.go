package dom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/domeme-scraper/internal/browser"
)

var ErrNotChecked = errors.New("checkbox stayed unchecked")

// Tier names the interaction that finally took effect.
type Tier string

const (
	TierAlready Tier = "already"
	TierLabel   Tier = "label"
	TierNative  Tier = "native"
	TierScript  Tier = "script"
	TierHandler Tier = "handler"
	TierForce   Tier = "force"
)

// Click escalates from a native click to a scripted click to executing
// the element's bound handler.
func Click(el browser.Element) (Tier, error) {
	_ = el.ScrollIntoView()

	var errs []error
	if err := el.Click(); err == nil {
		return TierNative, nil
	} else {
		errs = append(errs, fmt.Errorf("native: %w", err))
	}
	if err := el.ScriptClick(); err == nil {
		return TierScript, nil
	} else {
		errs = append(errs, fmt.Errorf("script: %w", err))
	}
	if err := el.InvokeHandler(); err == nil {
		return TierHandler, nil
	} else {
		errs = append(errs, fmt.Errorf("handler: %w", err))
	}
	return "", fmt.Errorf("all click tiers failed: %w", errors.Join(errs...))
}

func isChecked(el browser.Element) bool {
	on, err := el.Checked()
	return err == nil && on
}

// Check makes a checkbox checked. An already checked box is left alone.
// Otherwise it tries its label, a native click and a scripted click,
// verifying state after each; with force it finally sets checked=true and
// dispatches a change event.
func Check(ctx context.Context, scope browser.Scope, el browser.Element, force bool, settle time.Duration) (Tier, error) {
	if isChecked(el) {
		return TierAlready, nil
	}
	_ = el.ScrollIntoView()

	try := func(fn func() error) bool {
		if err := fn(); err != nil {
			return false
		}
		_ = browser.Pause(ctx, settle)
		return isChecked(el)
	}

	if id, _ := el.Attr("id"); id != "" && scope != nil {
		labels, err := scope.QueryAll(fmt.Sprintf("label[for='%s']", id))
		if err == nil && len(labels) > 0 && try(labels[0].Click) {
			return TierLabel, nil
		}
	}
	if try(el.Click) {
		return TierNative, nil
	}
	if try(el.ScriptClick) {
		return TierScript, nil
	}
	if force && try(el.ForceCheck) {
		return TierForce, nil
	}
	return "", ErrNotChecked
}
