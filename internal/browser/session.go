package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is a Driver backed by one playwright page. It is not safe for
// concurrent use; callers own it for the duration of an operation.
type Session struct {
	page    playwright.Page
	frame   playwright.Frame
	dialogs chan Dialog
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

var _ Driver = (*Session)(nil)

func (s *Session) handleDialog(d playwright.Dialog) {
	dlg := Dialog{Type: d.Type(), Message: d.Message()}
	if err := d.Accept(); err != nil {
		s.logger.Error("failed to accept dialog", "type", dlg.Type, "error", err)
	}
	select {
	case s.dialogs <- dlg:
	default:
		s.logger.Warn("dialog queue full, dropping", "message", dlg.Message)
	}
}

func (s *Session) document() playwright.Frame {
	if s.frame != nil {
		return s.frame
	}
	return s.page.MainFrame()
}

func (s *Session) ms(d time.Duration) *float64 {
	if d <= 0 {
		d = s.timeout
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// Navigate loads url in the top-level page, retrying transient failures.
// Any entered frame is left.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.frame = nil

	var lastErr error
	for i := 0; i <= s.retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			s.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := Pause(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}

		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   s.ms(0),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		s.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
	}

	return fmt.Errorf("navigate %s: %w", url, lastErr)
}

func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.frame != nil {
		return s.frame.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: s.ms(timeout),
		})
	}
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: s.ms(timeout),
	})
}

func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) Title() (string, error) {
	return s.page.Title()
}

func (s *Session) QueryAll(selector string) ([]Element, error) {
	handles, err := s.document().QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles, s.timeout), nil
}

func (s *Session) Execute(script string) (any, error) {
	return s.document().Evaluate(script)
}

func (s *Session) HTML() (string, error) {
	return s.document().Content()
}

func (s *Session) EnterFrame(frame Element) error {
	el, ok := frame.(*element)
	if !ok {
		return fmt.Errorf("enter frame: %w", ErrNoFrame)
	}
	f, err := el.handle.ContentFrame()
	if err != nil {
		return fmt.Errorf("enter frame: %w", err)
	}
	if f == nil {
		return ErrNoFrame
	}
	s.frame = f
	return nil
}

func (s *Session) ExitFrame() error {
	s.frame = nil
	return nil
}

func (s *Session) InFrame() bool {
	return s.frame != nil
}

func (s *Session) WaitDialog(timeout time.Duration) (Dialog, bool) {
	select {
	case d := <-s.dialogs:
		return d, true
	default:
	}
	if timeout <= 0 {
		return Dialog{}, false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case d := <-s.dialogs:
		return d, true
	case <-t.C:
		return Dialog{}, false
	}
}

func (s *Session) Close() error {
	return s.page.Close()
}

type element struct {
	handle  playwright.ElementHandle
	timeout time.Duration
}

func wrapHandles(handles []playwright.ElementHandle, timeout time.Duration) []Element {
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &element{handle: h, timeout: timeout})
	}
	return out
}

func (e *element) QueryAll(selector string) ([]Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles, e.timeout), nil
}

func (e *element) Text() (string, error) {
	text, err := e.handle.InnerText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attr(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *element) Visible() (bool, error) {
	return e.handle.IsVisible()
}

func (e *element) Enabled() (bool, error) {
	return e.handle.IsEnabled()
}

func (e *element) Checked() (bool, error) {
	return e.handle.IsChecked()
}

func (e *element) Click() error {
	return e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(float64(e.timeout.Milliseconds())),
	})
}

func (e *element) ScriptClick() error {
	_, err := e.handle.Evaluate(`el => el.click()`)
	return err
}

func (e *element) ForceCheck() error {
	_, err := e.handle.Evaluate(`el => {
		el.checked = true;
		el.dispatchEvent(new Event('change', { bubbles: true }));
	}`)
	return err
}

func (e *element) InvokeHandler() error {
	res, err := e.handle.Evaluate(`el => {
		const code = el.getAttribute('onclick');
		if (!code) { return false; }
		new Function(code).call(el);
		return true;
	}`)
	if err != nil {
		return err
	}
	if ran, _ := res.(bool); !ran {
		return ErrNoActionBinding
	}
	return nil
}

func (e *element) ScrollIntoView() error {
	return e.handle.ScrollIntoViewIfNeeded()
}

func (e *element) Fill(value string) error {
	return e.handle.Fill(value)
}

func (e *element) Press(key string) error {
	return e.handle.Press(key)
}
