// Package auth logs a browser session into a marketplace and classifies
// the result.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/metrics"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrFormNotFound         = errors.New("login form not found")
	ErrRejected             = errors.New("login rejected")
	ErrAmbiguous            = errors.New("could not verify login state")
)

type State int

const (
	StateNotStarted State = iota
	StatePageLoaded
	StateCredentialsEntered
	StateSubmitted
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StatePageLoaded:
		return "page_loaded"
	case StateCredentialsEntered:
		return "credentials_entered"
	case StateSubmitted:
		return "submitted"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// AmbiguousPolicy decides the outcome when no heuristic matches after
// submission: a slow page and wrong credentials look the same.
type AmbiguousPolicy string

const (
	AmbiguousFail   AmbiguousPolicy = "fail"
	AmbiguousAccept AmbiguousPolicy = "accept"
)

// Evidence names the heuristic that decided the outcome.
type Evidence string

const (
	EvidenceURL          Evidence = "url"
	EvidenceAccountLink  Evidence = "account_link"
	EvidenceErrorMessage Evidence = "error_message"
	EvidenceDialog       Evidence = "dialog"
	EvidenceNone         Evidence = "none"
)

type Outcome struct {
	State    State
	Reason   string
	Evidence Evidence
	// Ambiguous is set when no heuristic matched, whatever the policy.
	Ambiguous bool
}

func (o Outcome) Verified() bool {
	return o.State == StateVerified
}

// Error is returned for every failed login. It matches
// ErrAuthenticationFailed and unwraps to the specific cause.
type Error struct {
	State  State
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("login failed after %s: %s", e.State, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

func (e *Error) Kind() string {
	return "auth"
}

type Options struct {
	Ambiguous AmbiguousPolicy
}

type Authenticator struct {
	driver  browser.Driver
	profile *marketplace.Profile
	waits   browser.Waits
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(driver browser.Driver, profile *marketplace.Profile, waits browser.Waits, opts Options, m *metrics.Metrics, logger *slog.Logger) *Authenticator {
	if opts.Ambiguous == "" {
		opts.Ambiguous = AmbiguousFail
	}
	return &Authenticator{
		driver:  driver,
		profile: profile,
		waits:   waits,
		opts:    opts,
		metrics: m,
		logger:  logger.With("component", "auth", "source", string(profile.Source)),
	}
}

// Login runs the login state machine once. The returned error is nil only
// when the outcome is verified.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (Outcome, error) {
	if !creds.Complete() {
		return Outcome{State: StateNotStarted, Reason: ErrMissingCredentials.Error()}, ErrMissingCredentials
	}

	out, err := a.run(ctx, creds)
	if err != nil {
		a.metrics.IncLogin("failed")
		a.logger.Error("login failed", "state", out.State, "reason", out.Reason, "error", err)
		return out, err
	}
	if out.Ambiguous {
		a.metrics.IncLogin("ambiguous_accepted")
		a.logger.Warn("login state could not be verified, accepting by policy", "url", a.driver.URL())
	} else {
		a.metrics.IncLogin("verified")
		a.logger.Info("login verified", "evidence", out.Evidence)
	}
	return out, nil
}

func (a *Authenticator) fail(state State, reason string, cause error) (Outcome, error) {
	return Outcome{State: StateFailed, Reason: reason}, &Error{State: state, Reason: reason, Err: cause}
}

func (a *Authenticator) run(ctx context.Context, creds Credentials) (Outcome, error) {
	loc := a.profile.Login
	loginURL := a.profile.LoginURL()

	a.logger.Info("opening login page", "url", loginURL)
	if err := a.driver.Navigate(ctx, loginURL); err != nil {
		return a.fail(StateNotStarted, "login page unreachable", err)
	}
	if err := a.driver.WaitReady(ctx, 0); err != nil {
		return a.fail(StateNotStarted, "login page did not become ready", err)
	}
	if err := browser.Pause(ctx, a.waits.PageLoad); err != nil {
		return a.fail(StatePageLoaded, "interrupted", err)
	}

	user := dom.Wait(ctx, a.driver, loc.Username, dom.Interactable, a.waits.Results, a.waits.Poll)
	pass := dom.ResolveClickable(a.driver, loc.Password)
	if !user.Found() || !pass.Found() {
		return a.fail(StatePageLoaded, "form not found", ErrFormNotFound)
	}
	a.logger.Debug("credential fields resolved", "username", user.Locator, "password", pass.Locator)

	if err := user.Element.Fill(creds.Username); err != nil {
		return a.fail(StatePageLoaded, "could not enter username", err)
	}
	if err := pass.Element.Fill(creds.Password); err != nil {
		return a.fail(StatePageLoaded, "could not enter password", err)
	}

	a.discardDialogs()
	if err := a.submit(pass.Element); err != nil {
		return a.fail(StateCredentialsEntered, "could not submit login form", err)
	}

	if err := browser.Pause(ctx, a.waits.ActionComplete); err != nil {
		return a.fail(StateSubmitted, "interrupted", err)
	}
	return a.classify()
}

// discardDialogs empties the dialog queue so classify only sees dialogs
// raised by the submit itself.
func (a *Authenticator) discardDialogs() {
	for {
		dlg, ok := a.driver.WaitDialog(0)
		if !ok {
			return
		}
		a.logger.Debug("discarding dialog raised before submit", "message", dlg.Message)
	}
}

func (a *Authenticator) submit(password browser.Element) error {
	if btn := dom.ResolveClickable(a.driver, a.profile.Login.Submit); btn.Found() {
		tier, err := dom.Click(btn.Element)
		if err == nil {
			a.metrics.IncClickTier(string(tier))
			return nil
		}
		a.logger.Warn("submit control did not respond, pressing enter", "locator", btn.Locator, "error", err)
	}
	return password.Press("Enter")
}

func (a *Authenticator) classify() (Outcome, error) {
	loc := a.profile.Login

	// A rejected login on this marketplace often surfaces as an alert.
	dialog, sawDialog := a.driver.WaitDialog(a.waits.Element)
	if sawDialog {
		a.logger.Info("dialog after login submit", "message", dialog.Message)
	}

	url := strings.ToLower(a.driver.URL())
	if loc.LoginMarker != "" && !strings.Contains(url, strings.ToLower(loc.LoginMarker)) && containsAny(url, loc.PostLoginMarkers) {
		return Outcome{State: StateVerified, Evidence: EvidenceURL}, nil
	}

	if dom.Resolve(a.driver, loc.AccountLinks).Found() {
		return Outcome{State: StateVerified, Evidence: EvidenceAccountLink}, nil
	}

	if msg := dom.TextOf(a.driver, loc.Errors); msg != "" {
		out, err := a.fail(StateSubmitted, msg, ErrRejected)
		out.Evidence = EvidenceErrorMessage
		return out, err
	}

	if sawDialog && strings.TrimSpace(dialog.Message) != "" {
		out, err := a.fail(StateSubmitted, dialog.Message, ErrRejected)
		out.Evidence = EvidenceDialog
		return out, err
	}

	if a.opts.Ambiguous == AmbiguousAccept {
		return Outcome{State: StateVerified, Evidence: EvidenceNone, Ambiguous: true}, nil
	}
	out, err := a.fail(StateSubmitted, ErrAmbiguous.Error(), ErrAmbiguous)
	out.Evidence = EvidenceNone
	out.Ambiguous = true
	return out, err
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
