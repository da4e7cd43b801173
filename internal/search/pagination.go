package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/dom"
)

// next moves to page+1. It reports false when the current page offers no
// way forward.
func (e *Engine) next(ctx context.Context, req Request, page int) (bool, error) {
	if req.Mode == ModeForm {
		return e.clickNext(ctx, page)
	}
	if !e.hasNextLink(page) {
		return false, nil
	}
	return true, e.navigate(ctx, req.Keyword, page+1)
}

// hasNextLink looks for an anchor whose href carries the next page number,
// or for a next-page control.
func (e *Engine) hasNextLink(page int) bool {
	pag := e.adapter.PaginationLocators()
	want := strconv.Itoa(page + 1)
	param := e.adapter.PageParam()

	for _, loc := range pag.PageLinks {
		els, err := e.driver.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			href, _ := el.Attr("href")
			if pageOf(href, param) == want {
				return true
			}
		}
	}
	return dom.Resolve(e.driver, pag.Next).Found()
}

func pageOf(href, param string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}

// clickNext clicks the next control, or else the numbered link right after
// the current page.
func (e *Engine) clickNext(ctx context.Context, page int) (bool, error) {
	pag := e.adapter.PaginationLocators()

	target := dom.ResolveClickable(e.driver, pag.Next)
	if !target.Found() {
		target = e.numberedLink(page + 1)
	}
	if !target.Found() {
		return false, nil
	}

	tier, err := dom.Click(target.Element)
	if err != nil {
		e.logger.Warn("pagination control did not respond", "locator", target.Locator, "page", page+1, "error", err)
		return false, nil
	}
	e.metrics.IncClickTier(string(tier))
	e.logger.Debug("clicked to next page", "locator", target.Locator, "page", page+1)
	return true, e.ready(ctx)
}

func (e *Engine) numberedLink(n int) dom.Result {
	pag := e.adapter.PaginationLocators()
	want := strconv.Itoa(n)

	current := 0
	if text := dom.TextOf(e.driver, pag.CurrentPage); text != "" {
		current, _ = strconv.Atoi(strings.TrimSpace(text))
	}

	return dom.Find(e.driver, pag.PageNumbers, func(el browser.Element) bool {
		text, err := el.Text()
		if err != nil {
			return false
		}
		text = strings.TrimSpace(text)
		if text != want {
			return false
		}
		if current > 0 && n <= current {
			return false
		}
		return dom.Interactable(el)
	})
}
