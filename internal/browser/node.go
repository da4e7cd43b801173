package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a read-only Element over a parsed HTML snapshot. Extraction runs
// against snapshots so that a results page costs one Content() round-trip
// instead of one per field.
type Node struct {
	sel *goquery.Selection
}

var _ Element = (*Node)(nil)

func ParseHTML(html string) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Node{sel: doc.Selection}, nil
}

// Snapshot parses the driver's active document.
func Snapshot(d Driver) (*Node, error) {
	html, err := d.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return ParseHTML(html)
}

func NewNode(sel *goquery.Selection) *Node {
	return &Node{sel: sel}
}

func (n *Node) Selection() *goquery.Selection {
	return n.sel
}

// QueryAll matches CSS selectors only. Structural paths match nothing.
func (n *Node) QueryAll(selector string) ([]Element, error) {
	if IsXPath(selector) {
		return nil, nil
	}
	found := n.sel.Find(selector)
	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, NewNode(s))
	})
	return out, nil
}

func (n *Node) Text() (string, error) {
	return strings.Join(strings.Fields(n.sel.Text()), " "), nil
}

func (n *Node) Attr(name string) (string, error) {
	v, _ := n.sel.Attr(name)
	return v, nil
}

func (n *Node) Visible() (bool, error) {
	if strings.EqualFold(n.sel.AttrOr("type", ""), "hidden") {
		return false, nil
	}
	for s := n.sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

func (n *Node) Enabled() (bool, error) {
	_, disabled := n.sel.Attr("disabled")
	return !disabled, nil
}

func (n *Node) Checked() (bool, error) {
	_, checked := n.sel.Attr("checked")
	return checked, nil
}

func (n *Node) Click() error          { return ErrNotInteractive }
func (n *Node) ScriptClick() error    { return ErrNotInteractive }
func (n *Node) ForceCheck() error     { return ErrNotInteractive }
func (n *Node) InvokeHandler() error  { return ErrNotInteractive }
func (n *Node) ScrollIntoView() error { return nil }
func (n *Node) Fill(string) error     { return ErrNotInteractive }
func (n *Node) Press(string) error    { return ErrNotInteractive }
