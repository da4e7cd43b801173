// Package search runs a keyword against a marketplace, paginating and
// deduplicating until a budget is spent or the results run out.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/extract"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/metrics"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/price"
	"github.com/maltedev/domeme-scraper/internal/ratelimit"
)

var (
	ErrEmptyKeyword = errors.New("search keyword is empty")
	ErrPageLoad     = errors.New("result page did not load")
	ErrNoSearchForm = errors.New("search form not found")
)

type Mode string

const (
	// ModeDirect builds the result URL for every page.
	ModeDirect Mode = "direct"
	// ModeForm types into the site search box and clicks through pages.
	ModeForm Mode = "form"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDirect:
		return ModeDirect, nil
	case ModeForm:
		return ModeForm, nil
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

type Request struct {
	Keyword    string
	MaxResults int
	MaxPages   int
	Filter     price.Filter
	Mode       Mode
}

// StopReason says why pagination ended.
type StopReason string

const (
	StopMaxResults StopReason = "max_results"
	StopNoNew      StopReason = "no_new_records"
	StopNoNext     StopReason = "no_next_page"
	StopMaxPages   StopReason = "max_pages"
	StopError      StopReason = "error"
)

// Result holds what a search collected. Err is set when a page failed;
// Records still holds everything gathered before the failure.
type Result struct {
	Keyword  string
	Records  []models.ProductRecord
	// Visible holds the ids of kept records shown on the page the search
	// stopped on, the only page the browser still has loaded.
	Visible  []string
	Pages    int
	Stop     StopReason
	Dropped  extract.Stats
	Duration time.Duration
	Err      error
}

// PageError reports the page a search gave up on.
type PageError struct {
	Keyword string
	Page    int
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("search %q page %d: %v", e.Keyword, e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func (e *PageError) Kind() string {
	return "page_load"
}

type Options struct {
	// Snapshot extracts from one HTML snapshot per page instead of
	// querying the live document per field.
	Snapshot bool
	Pacer    ratelimit.Pacer
}

type Engine struct {
	driver    browser.Driver
	adapter   marketplace.Adapter
	extractor *extract.Extractor
	waits     browser.Waits
	pacer     ratelimit.Pacer
	snapshot  bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(driver browser.Driver, adapter marketplace.Adapter, waits browser.Waits, opts Options, m *metrics.Metrics, logger *slog.Logger) *Engine {
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.None{}
	}
	return &Engine{
		driver:    driver,
		adapter:   adapter,
		extractor: extract.New(adapter, logger),
		waits:     waits,
		pacer:     pacer,
		snapshot:  opts.Snapshot,
		metrics:   m,
		logger:    logger.With("component", "search", "source", string(adapter.Name())),
	}
}

// Search returns an error only for an unusable request. Page failures end
// pagination and are reported on the Result.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if req.MaxPages < 1 {
		req.MaxPages = 1
	}
	if req.Mode == "" {
		req.Mode = ModeDirect
	}

	start := time.Now()
	res := &Result{Keyword: req.Keyword}
	defer func() {
		res.Duration = time.Since(start)
		e.metrics.ObserveSearch(string(e.adapter.Name()), res.Duration)
		e.metrics.AddRecords(string(e.adapter.Name()), len(res.Records))
	}()

	log := e.logger.With("keyword", req.Keyword, "mode", req.Mode)
	log.Info("search started", "max_results", req.MaxResults, "max_pages", req.MaxPages, "min_price", req.Filter.Min, "max_price", req.Filter.Max)

	if err := e.open(ctx, req); err != nil {
		e.abort(res, log, 1, err)
		return res, nil
	}

	seen := make(map[string]struct{})
	for page := 1; ; page++ {
		res.Pages = page

		records, stats, err := e.collect(ctx, page, req.Filter)
		if err != nil {
			e.abort(res, log, page, err)
			return res, nil
		}
		e.metrics.IncPage(string(e.adapter.Name()), "ok")
		e.metrics.AddDropped(string(e.adapter.Name()), "no_name", stats.NoName)
		e.metrics.AddDropped(string(e.adapter.Name()), "price_filter", stats.Filtered)
		res.Dropped.Items += stats.Items
		res.Dropped.NoName += stats.NoName
		res.Dropped.Filtered += stats.Filtered

		fresh := 0
		for _, rec := range records {
			key := rec.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Records = append(res.Records, rec.WithKeyword(req.Keyword))
			fresh++
		}
		if req.MaxResults > 0 && len(res.Records) > req.MaxResults {
			res.Records = res.Records[:req.MaxResults]
		}
		res.Visible = visibleIDs(records, res.Records)
		log.Info("page extracted", "page", page, "items", stats.Items, "kept", stats.Kept, "new", fresh, "total", len(res.Records))

		if req.MaxResults > 0 && len(res.Records) >= req.MaxResults {
			res.Stop = StopMaxResults
			break
		}
		if fresh == 0 {
			res.Stop = StopNoNew
			break
		}
		if page >= req.MaxPages {
			res.Stop = StopMaxPages
			break
		}

		if err := e.pacer.Wait(ctx); err != nil {
			e.abort(res, log, page+1, err)
			return res, nil
		}
		moved, err := e.next(ctx, req, page)
		if err != nil {
			e.abort(res, log, page+1, err)
			return res, nil
		}
		if !moved {
			res.Stop = StopNoNext
			break
		}
	}

	log.Info("search finished", "records", len(res.Records), "pages", res.Pages, "stop", res.Stop)
	return res, nil
}

// visibleIDs returns the ids of page records that made it into kept.
func visibleIDs(page, kept []models.ProductRecord) []string {
	in := make(map[string]struct{}, len(kept))
	for _, r := range kept {
		in[r.ProductID] = struct{}{}
	}
	var ids []string
	for _, id := range models.IDs(page) {
		if _, ok := in[id]; ok {
			ids = append(ids, id)
			delete(in, id)
		}
	}
	return ids
}

func (e *Engine) abort(res *Result, log *slog.Logger, page int, err error) {
	perr := &PageError{Keyword: res.Keyword, Page: page, Err: err}
	res.Err = perr
	res.Stop = StopError
	res.Visible = nil
	if page > res.Pages {
		res.Pages = page
	}
	e.feedback(false)
	e.metrics.IncPage(string(e.adapter.Name()), "error")
	e.metrics.IncError(perr)
	log.Error("search aborted, keeping partial results", "page", page, "records", len(res.Records), "error", err)
}

func (e *Engine) feedback(ok bool) {
	fb, isFeedback := e.pacer.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}

func (e *Engine) open(ctx context.Context, req Request) error {
	if req.Mode == ModeForm {
		return e.submitForm(ctx, req.Keyword)
	}
	return e.navigate(ctx, req.Keyword, 1)
}

func (e *Engine) navigate(ctx context.Context, keyword string, page int) error {
	target, err := e.adapter.BuildSearchRequest(keyword, page)
	if err != nil {
		return err
	}
	e.logger.Debug("loading result page", "url", target, "page", page)
	if err := e.driver.Navigate(ctx, target); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	return e.ready(ctx)
}

func (e *Engine) ready(ctx context.Context) error {
	if err := e.driver.WaitReady(ctx, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	e.feedback(true)
	return browser.Pause(ctx, e.waits.PageLoad)
}

func (e *Engine) submitForm(ctx context.Context, keyword string) error {
	if err := e.driver.Navigate(ctx, e.adapter.HomeURL()); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := e.ready(ctx); err != nil {
		return err
	}

	form := e.adapter.FormLocators()
	input := dom.Wait(ctx, e.driver, form.Input, dom.Interactable, e.waits.Results, e.waits.Poll)
	if !input.Found() {
		return ErrNoSearchForm
	}
	if err := input.Element.Fill(keyword); err != nil {
		return fmt.Errorf("enter keyword: %w", err)
	}

	submitted := false
	if btn := dom.ResolveClickable(e.driver, form.Submit); btn.Found() {
		if tier, err := dom.Click(btn.Element); err == nil {
			e.metrics.IncClickTier(string(tier))
			submitted = true
		} else {
			e.logger.Warn("search button did not respond, pressing enter", "locator", btn.Locator, "error", err)
		}
	}
	if !submitted {
		if err := input.Element.Press("Enter"); err != nil {
			return fmt.Errorf("submit search: %w", err)
		}
	}
	return e.ready(ctx)
}

// collect waits for the result list and extracts the current page. A
// result list that never renders yields an empty page.
func (e *Engine) collect(ctx context.Context, page int, filter price.Filter) ([]models.ProductRecord, extract.Stats, error) {
	ready := e.adapter.ResultItemLocators().Ready
	if len(ready) > 0 {
		if res := dom.Wait(ctx, e.driver, ready, nil, e.waits.Results, e.waits.Poll); !res.Found() {
			e.logger.Warn("result list did not render", "page", page)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, extract.Stats{}, err
	}

	e.scroll(ctx)

	var scope browser.Scope = e.driver
	if e.snapshot {
		snap, err := browser.Snapshot(e.driver)
		if err != nil {
			return nil, extract.Stats{}, fmt.Errorf("snapshot: %w", err)
		}
		scope = snap
	}
	return e.extractor.ExtractAll(scope, filter)
}

func (e *Engine) scroll(ctx context.Context) {
	for _, script := range []string{
		"window.scrollTo(0, document.body.scrollHeight)",
		"window.scrollTo(0, 0)",
	} {
		if _, err := e.driver.Execute(script); err != nil {
			e.logger.Debug("scroll failed", "error", err)
			return
		}
		_ = browser.Pause(ctx, e.waits.Scroll)
	}
}
