package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrDialogOpen      = errors.New("a native dialog is still open")
	ErrNotInteractive  = errors.New("element is a read-only snapshot")
	ErrNoFrame         = errors.New("element does not host a frame")
	ErrNoActionBinding = errors.New("element has no onclick binding")
)

// Scope is anything that can be searched for elements: the active document
// of a driver or an element inside it.
type Scope interface {
	QueryAll(selector string) ([]Element, error)
}

// Element is a node in the active document. Interaction methods on a
// snapshot node return ErrNotInteractive.
type Element interface {
	Scope
	Text() (string, error)
	Attr(name string) (string, error)
	Visible() (bool, error)
	Enabled() (bool, error)
	Checked() (bool, error)

	// Click is a native click.
	Click() error
	// ScriptClick calls el.click() from page script.
	ScriptClick() error
	// ForceCheck sets checked=true and dispatches a change event.
	ForceCheck() error
	// InvokeHandler executes the element's onclick binding directly.
	InvokeHandler() error

	ScrollIntoView() error
	Fill(value string) error
	Press(key string) error
}

// Dialog is a native alert, confirm or prompt raised by the page.
type Dialog struct {
	Type    string
	Message string
}

// Driver is the browser handle the workflows operate on. It always has one
// active document: the top-level page or a frame entered with EnterFrame.
type Driver interface {
	Scope
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, timeout time.Duration) error
	URL() string
	Title() (string, error)
	Execute(script string) (any, error)
	HTML() (string, error)

	EnterFrame(frame Element) error
	ExitFrame() error
	InFrame() bool

	// WaitDialog reports a dialog raised since the last call, waiting up to
	// timeout for one to appear. Dialogs are accepted when reported.
	WaitDialog(timeout time.Duration) (Dialog, bool)
}

// Waits are the fixed pauses and bounded-wait budgets used by workflows.
type Waits struct {
	PageLoad       time.Duration `yaml:"page_load"`
	Element        time.Duration `yaml:"element"`
	Click          time.Duration `yaml:"click"`
	Scroll         time.Duration `yaml:"scroll"`
	Frame          time.Duration `yaml:"frame"`
	Popup          time.Duration `yaml:"popup"`
	ActionComplete time.Duration `yaml:"action_complete"`
	Results        time.Duration `yaml:"results"`
	Poll           time.Duration `yaml:"poll"`
}

func DefaultWaits() Waits {
	return Waits{
		PageLoad:       2 * time.Second,
		Element:        500 * time.Millisecond,
		Click:          300 * time.Millisecond,
		Scroll:         100 * time.Millisecond,
		Frame:          time.Second,
		Popup:          2 * time.Second,
		ActionComplete: 3 * time.Second,
		Results:        5 * time.Second,
		Poll:           200 * time.Millisecond,
	}
}

// Pause sleeps for d unless ctx ends first.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsXPath reports whether a locator is a structural path rather than CSS.
func IsXPath(locator string) bool {
	return strings.HasPrefix(locator, "//") ||
		strings.HasPrefix(locator, "(//") ||
		strings.HasPrefix(locator, "xpath=")
}
