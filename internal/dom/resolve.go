// Package dom resolves semantic targets from ordered candidate locator
// lists and drives the click fallback chains used by the workflows.
package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/domeme-scraper/internal/browser"
)

var ErrNotFound = errors.New("no candidate locator matched")

// Candidates is an ordered list of locators for one semantic target.
// The first match wins.
type Candidates []string

// Expand substitutes {id} in every locator.
func (c Candidates) Expand(id string) Candidates {
	out := make(Candidates, len(c))
	for i, loc := range c {
		out[i] = strings.ReplaceAll(loc, "{id}", id)
	}
	return out
}

// Result is the outcome of a resolution. A zero Result means nothing
// matched; that is a normal outcome, not an error.
type Result struct {
	Element browser.Element
	Locator string
}

func (r Result) Found() bool {
	return r.Element != nil
}

// Err returns ErrNotFound wrapped with target when nothing matched.
func (r Result) Err(target string) error {
	if r.Found() {
		return nil
	}
	return fmt.Errorf("%s: %w", target, ErrNotFound)
}

// Predicate filters matched elements.
type Predicate func(browser.Element) bool

// Interactable requires the element to be displayed and enabled.
func Interactable(el browser.Element) bool {
	visible, err := el.Visible()
	if err != nil || !visible {
		return false
	}
	enabled, err := el.Enabled()
	return err == nil && enabled
}

// All combines predicates.
func All(preds ...Predicate) Predicate {
	return func(el browser.Element) bool {
		for _, p := range preds {
			if p != nil && !p(el) {
				return false
			}
		}
		return true
	}
}

// Find returns the first element matched by any candidate that satisfies
// pred. Query errors on a candidate count as no match.
func Find(scope browser.Scope, candidates Candidates, pred Predicate) Result {
	for _, loc := range candidates {
		els, err := scope.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			if pred == nil || pred(el) {
				return Result{Element: el, Locator: loc}
			}
		}
	}
	return Result{}
}

// Resolve returns the first existing element.
func Resolve(scope browser.Scope, candidates Candidates) Result {
	return Find(scope, candidates, nil)
}

// ResolveClickable returns the first displayed and enabled element.
func ResolveClickable(scope browser.Scope, candidates Candidates) Result {
	return Find(scope, candidates, Interactable)
}

// FindAll returns every element of the first candidate that matches at
// least one element.
func FindAll(scope browser.Scope, candidates Candidates) ([]browser.Element, string) {
	for _, loc := range candidates {
		els, err := scope.QueryAll(loc)
		if err != nil || len(els) == 0 {
			continue
		}
		return els, loc
	}
	return nil, ""
}

// Poll checks cond until it holds or timeout elapses. cond is always
// evaluated at least once.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		wait := interval
		if rest := time.Until(deadline); rest < wait {
			wait = rest
		}
		if err := browser.Pause(ctx, wait); err != nil {
			return false
		}
		if cond() {
			return true
		}
	}
	return false
}

// Wait polls Find until it matches or timeout elapses.
func Wait(ctx context.Context, scope browser.Scope, candidates Candidates, pred Predicate, timeout, interval time.Duration) Result {
	var res Result
	Poll(ctx, timeout, interval, func() bool {
		res = Find(scope, candidates, pred)
		return res.Found()
	})
	return res
}

// TextOf returns the trimmed text of the first element matched, or "".
func TextOf(scope browser.Scope, candidates Candidates) string {
	for _, loc := range candidates {
		els, err := scope.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
	}
	return ""
}
