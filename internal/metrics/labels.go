package metrics

import (
	"context"
	"errors"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/dom"
)

// Kinded errors name their own label.
type Kinded interface {
	Kind() string
}

// ErrorLabel maps err onto a bounded label set.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, dom.ErrNotFound):
		return "not_found"
	case errors.Is(err, browser.ErrDialogOpen):
		return "dialog_open"
	}
	return "other"
}
