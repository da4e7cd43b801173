// Package browsertest provides an in-memory browser.Driver for exercising
// workflows against HTML fixtures.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/domeme-scraper/internal/browser"
)

// Click tiers, in the order workflows escalate through them.
const (
	TierNative  = "native"
	TierScript  = "script"
	TierHandler = "handler"
	TierForce   = "force"
)

var ErrNotInteractable = errors.New("element not interactable")

type hook struct {
	selector string
	event    string
	fn       func(d *Driver, key string) error
}

type failure struct {
	selector string
	tier     string
}

// ClickEvent records one successful interaction.
type ClickEvent struct {
	Tier    string
	Element string
}

// Driver is a fake browser. Pages are served from registered fixtures;
// unknown URLs load an empty document.
type Driver struct {
	pages     map[string]string
	frameHTML map[string]string
	frames    map[string]*goquery.Document

	doc   *goquery.Document
	frame *goquery.Document
	url   string
	title string

	hooks    []hook
	failures []failure
	navErrs  map[string]error

	dialogs  []browser.Dialog
	blocking bool

	navigations []string
	scripts     []string
	clicks      []ClickEvent
}

var _ browser.Driver = (*Driver)(nil)

func New() *Driver {
	d := &Driver{
		pages:     make(map[string]string),
		frameHTML: make(map[string]string),
		frames:    make(map[string]*goquery.Document),
		navErrs:   make(map[string]error),
	}
	d.doc = mustParse("<html><body></body></html>")
	return d
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: bad fixture: %v", err))
	}
	return doc
}

// AddPage serves html at url.
func (d *Driver) AddPage(url, html string) *Driver {
	d.pages[url] = html
	return d
}

// AddFrame registers the document hosted by an iframe whose src or id
// equals key.
func (d *Driver) AddFrame(key, html string) *Driver {
	d.frameHTML[key] = html
	return d
}

// FailNavigation makes every navigation to url fail with err.
func (d *Driver) FailNavigation(url string, err error) *Driver {
	d.navErrs[url] = err
	return d
}

// OnClick runs fn after any successful click tier on an element matching
// selector, including label clicks forwarded to their control.
func (d *Driver) OnClick(selector string, fn func(d *Driver) error) *Driver {
	d.hooks = append(d.hooks, hook{selector: selector, event: "click", fn: func(d *Driver, _ string) error {
		return fn(d)
	}})
	return d
}

// OnPress runs fn when a key is pressed in an element matching selector.
func (d *Driver) OnPress(selector string, fn func(d *Driver, key string) error) *Driver {
	d.hooks = append(d.hooks, hook{selector: selector, event: "press", fn: fn})
	return d
}

// OnFill runs fn after a value is typed into an element matching selector.
func (d *Driver) OnFill(selector string, fn func(d *Driver, value string) error) *Driver {
	d.hooks = append(d.hooks, hook{selector: selector, event: "fill", fn: fn})
	return d
}

// FailTier makes the named click tier fail on elements matching selector.
func (d *Driver) FailTier(selector string, tiers ...string) *Driver {
	for _, t := range tiers {
		d.failures = append(d.failures, failure{selector: selector, tier: t})
	}
	return d
}

// SetTitle sets the value returned by Title.
func (d *Driver) SetTitle(title string) *Driver {
	d.title = title
	return d
}

// RaiseDialog opens a native dialog. Until it is collected with WaitDialog
// navigation and clicks fail with browser.ErrDialogOpen.
func (d *Driver) RaiseDialog(message string) {
	d.dialogs = append(d.dialogs, browser.Dialog{Type: "alert", Message: message})
	d.blocking = true
}

// Load replaces the top-level document as if the page navigated itself.
func (d *Driver) Load(url string) {
	d.url = url
	d.frame = nil
	d.frames = make(map[string]*goquery.Document)
	html, ok := d.pages[url]
	if !ok {
		html = "<html><body></body></html>"
	}
	d.doc = mustParse(html)
}

// Append adds html to every node matching selector in the top-level document.
func (d *Driver) Append(selector, html string) {
	d.doc.Find(selector).AppendHtml(html)
}

// Find queries the top-level document for assertions.
func (d *Driver) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// FindInFrame queries the cached document of the frame registered as key.
func (d *Driver) FindInFrame(key, selector string) *goquery.Selection {
	doc, ok := d.frames[key]
	if !ok {
		return &goquery.Selection{}
	}
	return doc.Find(selector)
}

func (d *Driver) Navigations() []string {
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}

func (d *Driver) Visited(url string) int {
	n := 0
	for _, u := range d.navigations {
		if u == url {
			n++
		}
	}
	return n
}

func (d *Driver) Scripts() []string {
	return d.scripts
}

func (d *Driver) Clicks() []ClickEvent {
	return d.clicks
}

func (d *Driver) PendingDialogs() int {
	return len(d.dialogs)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.blocking {
		return browser.ErrDialogOpen
	}
	d.navigations = append(d.navigations, url)
	if err, ok := d.navErrs[url]; ok {
		return err
	}
	d.Load(url)
	return nil
}

func (d *Driver) WaitReady(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (d *Driver) URL() string {
	return d.url
}

func (d *Driver) Title() (string, error) {
	if d.title != "" {
		return d.title, nil
	}
	return d.doc.Find("title").First().Text(), nil
}

func (d *Driver) active() *goquery.Document {
	if d.frame != nil {
		return d.frame
	}
	return d.doc
}

func (d *Driver) QueryAll(selector string) ([]browser.Element, error) {
	return d.wrap(d.active().Selection, selector), nil
}

func (d *Driver) wrap(scope *goquery.Selection, selector string) []browser.Element {
	if browser.IsXPath(selector) {
		return nil
	}
	found := scope.Find(selector)
	out := make([]browser.Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{d: d, sel: s})
	})
	return out
}

func (d *Driver) Execute(script string) (any, error) {
	d.scripts = append(d.scripts, script)
	return nil, nil
}

func (d *Driver) HTML() (string, error) {
	return d.active().Html()
}

func (d *Driver) EnterFrame(frame browser.Element) error {
	el, ok := frame.(*Element)
	if !ok || goquery.NodeName(el.sel) != "iframe" {
		return browser.ErrNoFrame
	}
	for _, attr := range []string{"src", "id", "name"} {
		key := el.sel.AttrOr(attr, "")
		if key == "" {
			continue
		}
		if doc, ok := d.frames[key]; ok {
			d.frame = doc
			return nil
		}
		if html, ok := d.frameHTML[key]; ok {
			doc := mustParse(html)
			d.frames[key] = doc
			d.frame = doc
			return nil
		}
	}
	return browser.ErrNoFrame
}

func (d *Driver) ExitFrame() error {
	d.frame = nil
	return nil
}

func (d *Driver) InFrame() bool {
	return d.frame != nil
}

func (d *Driver) WaitDialog(time.Duration) (browser.Dialog, bool) {
	if len(d.dialogs) == 0 {
		return browser.Dialog{}, false
	}
	dlg := d.dialogs[0]
	d.dialogs = d.dialogs[1:]
	d.blocking = len(d.dialogs) > 0
	return dlg, true
}

func (d *Driver) failing(sel *goquery.Selection, tier string) bool {
	for _, f := range d.failures {
		if f.tier == tier && sel.Is(f.selector) {
			return true
		}
	}
	return false
}

func (d *Driver) fire(sel *goquery.Selection, event, key string) error {
	for _, h := range d.hooks {
		if h.event == event && sel.Is(h.selector) {
			if err := h.fn(d, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Element is a live node of the fake document.
type Element struct {
	d   *Driver
	sel *goquery.Selection
}

var _ browser.Element = (*Element)(nil)

func (e *Element) node() *browser.Node {
	return browser.NewNode(e.sel)
}

func (e *Element) describe() string {
	name := goquery.NodeName(e.sel)
	if id := e.sel.AttrOr("id", ""); id != "" {
		return name + "#" + id
	}
	if v := e.sel.AttrOr("value", ""); v != "" {
		return name + "[value=" + v + "]"
	}
	return name
}

func (e *Element) QueryAll(selector string) ([]browser.Element, error) {
	return e.d.wrap(e.sel, selector), nil
}

func (e *Element) Text() (string, error)            { return e.node().Text() }
func (e *Element) Attr(name string) (string, error) { return e.node().Attr(name) }
func (e *Element) Visible() (bool, error)           { return e.node().Visible() }
func (e *Element) Enabled() (bool, error)           { return e.node().Enabled() }
func (e *Element) Checked() (bool, error)           { return e.node().Checked() }

func (e *Element) interact(tier string) error {
	if e.d.blocking {
		return browser.ErrDialogOpen
	}
	if e.d.failing(e.sel, tier) {
		return fmt.Errorf("%s click on %s: %w", tier, e.describe(), ErrNotInteractable)
	}
	return nil
}

func (e *Element) activate(tier string) error {
	if err := e.interact(tier); err != nil {
		return err
	}
	target := e.sel
	if goquery.NodeName(e.sel) == "label" {
		if id := e.sel.AttrOr("for", ""); id != "" {
			if control := e.d.active().Find("#" + id); control.Length() > 0 {
				target = control.First()
			}
		}
	}
	if goquery.NodeName(target) == "input" && strings.EqualFold(target.AttrOr("type", ""), "checkbox") {
		if _, on := target.Attr("checked"); on {
			target.RemoveAttr("checked")
		} else {
			target.SetAttr("checked", "checked")
		}
	}
	e.d.clicks = append(e.d.clicks, ClickEvent{Tier: tier, Element: e.describe()})
	if err := e.d.fire(target, "click", ""); err != nil {
		return err
	}
	if target != e.sel {
		return e.d.fire(e.sel, "click", "")
	}
	return nil
}

func (e *Element) Click() error {
	visible, _ := e.Visible()
	enabled, _ := e.Enabled()
	if !visible || !enabled {
		return fmt.Errorf("native click on %s: %w", e.describe(), ErrNotInteractable)
	}
	return e.activate(TierNative)
}

func (e *Element) ScriptClick() error {
	return e.activate(TierScript)
}

func (e *Element) ForceCheck() error {
	if err := e.interact(TierForce); err != nil {
		return err
	}
	e.sel.SetAttr("checked", "checked")
	e.d.clicks = append(e.d.clicks, ClickEvent{Tier: TierForce, Element: e.describe()})
	return nil
}

func (e *Element) InvokeHandler() error {
	if err := e.interact(TierHandler); err != nil {
		return err
	}
	if e.sel.AttrOr("onclick", "") == "" {
		return browser.ErrNoActionBinding
	}
	e.d.clicks = append(e.d.clicks, ClickEvent{Tier: TierHandler, Element: e.describe()})
	return e.d.fire(e.sel, "click", "")
}

func (e *Element) ScrollIntoView() error {
	return nil
}

func (e *Element) Fill(value string) error {
	if e.d.blocking {
		return browser.ErrDialogOpen
	}
	e.sel.SetAttr("value", value)
	return e.d.fire(e.sel, "fill", value)
}

func (e *Element) Press(key string) error {
	if e.d.blocking {
		return browser.ErrDialogOpen
	}
	return e.d.fire(e.sel, "press", key)
}
