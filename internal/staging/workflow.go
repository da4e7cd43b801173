// Package staging drives the save-for-later flow: select products on the
// result page, save them to the staging list, then forward the whole list
// through the transfer dialog of the second application.
package staging

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
	ErrNothingSelected = errors.New("no product could be selected")
	ErrNoStaging       = errors.New("marketplace has no staging area")
	ErrPopupMissing    = errors.New("transfer dialog did not appear")
)

// Stage is the last state the workflow reached.
type Stage int

const (
	StageIdle Stage = iota
	StageItemsSelected
	StageSaveTriggered
	StageSecondSiteLoaded
	StageStagingAreaOpen
	StageAllSelected
	StageTransferDialogOpen
	StageTransferConfirmed
	StageDone
)

var stageNames = [...]string{
	"idle",
	"items_selected",
	"save_triggered",
	"second_site_loaded",
	"staging_area_open",
	"all_selected",
	"transfer_dialog_open",
	"transfer_confirmed",
	"done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// StageError names the stage that could not be reached.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("staging failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Kind() string {
	return "staging"
}

// Report is the observable outcome of one run.
type Report struct {
	Stage    Stage
	Selected []string
	Missing  []string
	Success  bool
	Err      error
}

type Workflow struct {
	driver  browser.Driver
	profile *marketplace.Profile
	loc     marketplace.StagingLocators
	waits   browser.Waits
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(driver browser.Driver, profile *marketplace.Profile, waits browser.Waits, m *metrics.Metrics, logger *slog.Logger) *Workflow {
	return &Workflow{
		driver:  driver,
		profile: profile,
		loc:     profile.Staging,
		waits:   waits,
		metrics: m,
		logger:  logger.With("component", "staging", "source", string(profile.Source)),
	}
}

// Supported reports whether the profile configures a staging area.
func (w *Workflow) Supported() bool {
	return len(w.loc.Save) > 0 && w.profile.Endpoints.SecondApp != ""
}

// Run stages ids from the current result page and transfers the staging
// list. It runs once per batch and never retries a stage. The driver is
// back on the top-level document when Run returns, whatever the outcome.
func (w *Workflow) Run(ctx context.Context, ids []string) (rep *Report) {
	rep = &Report{Stage: StageIdle}

	defer func() {
		if w.driver.InFrame() {
			if err := w.driver.ExitFrame(); err != nil {
				w.logger.Error("could not leave transfer dialog frame", "error", err)
			}
		}
		outcome := "success"
		if !rep.Success {
			outcome = "failed"
			w.metrics.IncError(rep.Err)
		}
		w.metrics.IncStaging(outcome, rep.Stage.String())
	}()

	fail := func(next Stage, err error) *Report {
		rep.Err = &StageError{Stage: next, Err: err}
		w.logger.Error("staging stopped", "stage", next, "reached", rep.Stage, "error", err)
		return rep
	}

	if !w.Supported() {
		return fail(StageItemsSelected, ErrNoStaging)
	}

	selected, missing, err := w.SelectItems(ctx, ids)
	rep.Selected, rep.Missing = selected, missing
	if err != nil {
		return fail(StageItemsSelected, err)
	}
	rep.Stage = StageItemsSelected

	steps := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageSaveTriggered, w.triggerSave},
		{StageSecondSiteLoaded, w.openSecondSite},
		{StageStagingAreaOpen, w.openStagingArea},
		{StageAllSelected, w.selectAll},
		{StageTransferDialogOpen, w.openTransferDialog},
		{StageTransferConfirmed, w.confirmTransfer},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fail(step.stage, err)
		}
		if err := step.run(ctx); err != nil {
			return fail(step.stage, err)
		}
		rep.Stage = step.stage
		w.logger.Info("stage reached", "stage", step.stage)
	}

	rep.Stage = StageDone
	rep.Success = true
	w.logger.Info("staging finished", "selected", len(rep.Selected), "missing", len(rep.Missing))
	return rep
}

// SelectItems checks the box of every id on the current page. A box that
// is already checked counts as selected and is not touched, so calling it
// twice is harmless. With no ids every item box on the page is selected.
func (w *Workflow) SelectItems(ctx context.Context, ids []string) (selected, missing []string, err error) {
	if len(ids) == 0 {
		return w.selectEvery(ctx)
	}

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		res := dom.Resolve(w.driver, w.loc.ItemCheckbox.Expand(id))
		if !res.Found() {
			w.logger.Warn("checkbox not found", "product_id", id)
			missing = append(missing, id)
			continue
		}
		if w.check(ctx, res.Element, false, "product_id", id) {
			selected = append(selected, id)
		} else {
			missing = append(missing, id)
		}
	}

	if len(selected) == 0 {
		return selected, missing, ErrNothingSelected
	}
	return selected, missing, nil
}

func (w *Workflow) selectEvery(ctx context.Context) (selected, missing []string, err error) {
	boxes, _ := dom.FindAll(w.driver, w.loc.AnyItemCheckbox)
	for i, box := range boxes {
		id, _ := box.Attr("value")
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
		}
		if w.check(ctx, box, false, "product_id", id) {
			selected = append(selected, id)
		} else {
			missing = append(missing, id)
		}
	}
	if len(selected) == 0 {
		return selected, missing, ErrNothingSelected
	}
	return selected, missing, nil
}

func (w *Workflow) check(ctx context.Context, el browser.Element, force bool, attrs ...any) bool {
	tier, err := dom.Check(ctx, w.driver, el, force, w.waits.Element)
	if err != nil {
		w.logger.Warn("checkbox stayed unchecked", append(attrs, "error", err)...)
		return false
	}
	w.metrics.IncClickTier(string(tier))
	w.logger.Debug("checkbox checked", append(attrs, "tier", tier)...)
	return true
}

// click resolves a control whose action binding matches and clicks it.
func (w *Workflow) click(ctx context.Context, target string, cands dom.Candidates, binding dom.Binding) error {
	res := dom.Wait(ctx, w.driver, cands, binding.Matches, w.waits.Element, w.waits.Poll)
	if !res.Found() {
		return res.Err(target)
	}
	tier, err := dom.Click(res.Element)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	w.metrics.IncClickTier(string(tier))
	w.logger.Debug("clicked", "target", target, "locator", res.Locator, "tier", tier)
	return nil
}

// dismissDialog is the guard run after any action that may raise a native
// dialog. Left open, a dialog blocks every later navigation.
func (w *Workflow) dismissDialog(after string) {
	if d, ok := w.driver.WaitDialog(w.waits.Element); ok {
		w.logger.Info("dialog accepted", "after", after, "type", d.Type, "message", d.Message)
	}
}

func (w *Workflow) triggerSave(ctx context.Context) error {
	if err := w.click(ctx, "save control", w.loc.Save, w.loc.SaveBinding); err != nil {
		return err
	}
	if err := browser.Pause(ctx, w.waits.ActionComplete); err != nil {
		return err
	}
	w.dismissDialog("save")
	return nil
}

func (w *Workflow) openSecondSite(ctx context.Context) error {
	w.dismissDialog("second site")
	if err := w.driver.Navigate(ctx, w.profile.Endpoints.SecondApp); err != nil {
		return err
	}
	if err := w.driver.WaitReady(ctx, 0); err != nil {
		return err
	}
	return browser.Pause(ctx, w.waits.PageLoad)
}

func (w *Workflow) openStagingArea(ctx context.Context) error {
	if link := dom.ResolveClickable(w.driver, w.loc.StagingLink); link.Found() {
		tier, err := dom.Click(link.Element)
		if err == nil {
			w.metrics.IncClickTier(string(tier))
			if err := w.driver.WaitReady(ctx, 0); err != nil {
				return err
			}
			return browser.Pause(ctx, w.waits.PageLoad)
		}
		w.logger.Warn("staging link did not respond, navigating directly", "error", err)
	}

	if w.profile.Endpoints.StagingList == "" {
		return dom.Result{}.Err("staging list link")
	}
	w.logger.Info("opening staging list directly", "url", w.profile.Endpoints.StagingList)
	if err := w.driver.Navigate(ctx, w.profile.Endpoints.StagingList); err != nil {
		return err
	}
	if err := w.driver.WaitReady(ctx, 0); err != nil {
		return err
	}
	return browser.Pause(ctx, w.waits.PageLoad)
}

func (w *Workflow) selectAll(ctx context.Context) error {
	res := dom.Wait(ctx, w.driver, w.loc.SelectAll, nil, w.waits.Element, w.waits.Poll)
	if !res.Found() {
		return res.Err("select-all checkbox")
	}
	if !w.check(ctx, res.Element, true, "target", "select_all") {
		return dom.ErrNotChecked
	}
	return nil
}

func (w *Workflow) openTransferDialog(ctx context.Context) error {
	if err := w.click(ctx, "transfer control", w.loc.Transfer, w.loc.TransferBinding); err != nil {
		return err
	}
	w.dismissDialog("transfer")

	var strategy string
	appeared := dom.Poll(ctx, w.waits.Popup, w.waits.Poll, func() bool {
		strategy = w.detectPopup()
		return strategy != ""
	})
	if !appeared {
		return ErrPopupMissing
	}
	w.logger.Debug("transfer dialog detected", "strategy", strategy)

	frame := dom.Find(w.driver, w.loc.PopupFrame, dom.AnyBinding(w.loc.FrameBindings))
	if !frame.Found() {
		return nil
	}
	if err := w.driver.EnterFrame(frame.Element); err != nil {
		return fmt.Errorf("enter dialog frame: %w", err)
	}
	w.logger.Debug("entered dialog frame", "locator", frame.Locator)
	return browser.Pause(ctx, w.waits.Frame)
}

// detectPopup returns the name of the first strategy that sees the dialog.
func (w *Workflow) detectPopup() string {
	if dom.Resolve(w.driver, w.loc.PopupOverlay).Found() {
		return "overlay"
	}
	if dom.Resolve(w.driver, w.loc.PopupForm).Found() {
		return "form"
	}
	probe := w.loc.PopupText
	if probe.Contains != "" {
		hit := dom.Find(w.driver, probe.Scope, func(el browser.Element) bool {
			text, err := el.Text()
			if err != nil || !strings.Contains(text, probe.Contains) {
				return false
			}
			visible, err := el.Visible()
			return err == nil && visible
		})
		if hit.Found() {
			return "text"
		}
	}
	return ""
}

func (w *Workflow) confirmTransfer(ctx context.Context) error {
	pred := dom.All(dom.Interactable, w.loc.ConfirmBinding.Matches)
	res := dom.Wait(ctx, w.driver, w.loc.Confirm, pred, w.waits.Element, w.waits.Poll)
	if !res.Found() {
		return res.Err("transfer confirm control")
	}
	tier, err := dom.Click(res.Element)
	if err != nil {
		return fmt.Errorf("transfer confirm control: %w", err)
	}
	w.metrics.IncClickTier(string(tier))
	if err := browser.Pause(ctx, w.waits.ActionComplete); err != nil {
		return err
	}
	w.dismissDialog("confirm")
	return nil
}
