// Package scraper ties login, search and staging to one browser handle and
// runs keywords through them sequentially.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/domeme-scraper/internal/auth"
	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/metrics"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/search"
	"github.com/maltedev/domeme-scraper/internal/staging"
)

var ErrNotLoggedIn = errors.New("session is not logged in")

// Sink receives the records of each finished keyword.
type Sink interface {
	Write(ctx context.Context, source models.Source, keyword string, records []models.ProductRecord) error
}

type Config struct {
	Waits       browser.Waits
	Search      search.Options
	Auth        auth.Options
	Credentials auth.Credentials
}

// Session is one browser handle with its login state. It never closes the
// driver; whoever created the handle does. A Session is not safe for
// concurrent use.
type Session struct {
	driver   browser.Driver
	profile  *marketplace.Profile
	creds    auth.Credentials
	auth     *auth.Authenticator
	engine   *search.Engine
	staging  *staging.Workflow
	metrics  *metrics.Metrics
	loggedIn bool
	logger   *slog.Logger
}

func NewSession(driver browser.Driver, profile *marketplace.Profile, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Session {
	return &Session{
		driver:  driver,
		profile: profile,
		creds:   cfg.Credentials,
		auth:    auth.New(driver, profile, cfg.Waits, cfg.Auth, m, logger),
		engine:  search.New(driver, profile, cfg.Waits, cfg.Search, m, logger),
		staging: staging.New(driver, profile, cfg.Waits, m, logger),
		metrics: m,
		logger:  logger.With("component", "session", "source", string(profile.Source)),
	}
}

func (s *Session) Source() models.Source {
	return s.profile.Source
}

func (s *Session) LoggedIn() bool {
	return s.loggedIn
}

// EnsureLogin logs in once. Later calls return immediately; the state is
// not re-verified.
func (s *Session) EnsureLogin(ctx context.Context) error {
	if s.loggedIn || !s.profile.RequiresLogin {
		return nil
	}
	return s.Relogin(ctx)
}

// Relogin authenticates again regardless of the current state.
func (s *Session) Relogin(ctx context.Context) error {
	s.loggedIn = false
	if _, err := s.auth.Login(ctx, s.creds); err != nil {
		return err
	}
	s.loggedIn = true
	return nil
}

// Search runs one keyword, logging in first when the marketplace needs it.
func (s *Session) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	if err := s.EnsureLogin(ctx); err != nil {
		return nil, err
	}
	return s.engine.Search(ctx, req)
}

// Stage runs the staging workflow for ids on the current result page.
func (s *Session) Stage(ctx context.Context, ids []string) (*staging.Report, error) {
	if s.profile.RequiresLogin && !s.loggedIn {
		return nil, ErrNotLoggedIn
	}
	if !s.staging.Supported() {
		return nil, fmt.Errorf("%s: %w", s.profile.Source, staging.ErrNoStaging)
	}
	return s.staging.Run(ctx, ids), nil
}

// Plan is a batch of keywords sharing one request template.
type Plan struct {
	Keywords []string
	Request  search.Request
	// Stage forwards each keyword's product ids to the staging workflow.
	Stage bool
	Sink  Sink
}

type KeywordOutcome struct {
	Keyword string
	Search  *search.Result
	Staging *staging.Report
	// Unstaged lists ids from earlier result pages. Staging acts on the
	// loaded page only, so they are never selected.
	Unstaged []string
	Err      error
}

// Run processes keywords in order. Cancellation is honoured between
// keywords only. A failing keyword is recorded and the next one runs; a
// failed login stops the batch.
func (s *Session) Run(ctx context.Context, plan Plan) ([]KeywordOutcome, error) {
	if err := s.EnsureLogin(ctx); err != nil {
		return nil, err
	}

	outcomes := make([]KeywordOutcome, 0, len(plan.Keywords))
	for i, kw := range plan.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			s.logger.Warn("batch canceled", "done", i, "remaining", len(plan.Keywords)-i)
			return outcomes, err
		}

		s.logger.Info("keyword started", "keyword", kw, "index", i+1, "total", len(plan.Keywords))
		outcomes = append(outcomes, s.runKeyword(ctx, kw, plan))
	}
	return outcomes, nil
}

func (s *Session) runKeyword(ctx context.Context, kw string, plan Plan) KeywordOutcome {
	out := KeywordOutcome{Keyword: kw}

	req := plan.Request
	req.Keyword = kw
	res, err := s.Search(ctx, req)
	if err != nil {
		out.Err = err
		s.logger.Error("search failed", "keyword", kw, "error", err)
		return out
	}
	out.Search = res
	if res.Err != nil {
		out.Err = res.Err
	}

	if plan.Sink != nil && len(res.Records) > 0 {
		if err := plan.Sink.Write(ctx, s.profile.Source, kw, res.Records); err != nil {
			s.metrics.IncError(err)
			s.logger.Error("result sink failed", "keyword", kw, "error", err)
			out.Err = errors.Join(out.Err, err)
		}
	}

	if !plan.Stage || !s.staging.Supported() {
		return out
	}
	ids := res.Visible
	out.Unstaged = models.WithoutIDs(models.IDs(res.Records), ids)
	if len(out.Unstaged) > 0 {
		s.logger.Warn("ids from earlier pages are not staged", "keyword", kw, "count", len(out.Unstaged), "pages", res.Pages)
	}
	if len(ids) > 0 {
		rep, err := s.Stage(ctx, ids)
		if err != nil {
			out.Err = errors.Join(out.Err, err)
			return out
		}
		out.Staging = rep
		if !rep.Success {
			out.Err = errors.Join(out.Err, rep.Err)
		}
	}
	return out
}

// Sinks fans records out to several sinks and joins their errors.
type Sinks []Sink

func (ss Sinks) Write(ctx context.Context, source models.Source, keyword string, records []models.ProductRecord) error {
	var errs []error
	for _, s := range ss {
		if err := s.Write(ctx, source, keyword, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
