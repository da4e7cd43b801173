package dom

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/domeme-scraper/internal/browser"
)

// Binding matches an element by substrings of one attribute, usually the
// onclick handler that tells two identically styled buttons apart.
type Binding struct {
	Attribute string   `yaml:"attribute"`
	Require   []string `yaml:"require"`
	Forbid    []string `yaml:"forbid"`
}

// UnmarshalYAML replaces b as a whole. A binding in an override file never
// inherits Require or Forbid entries from the binding it overrides.
func (b *Binding) UnmarshalYAML(value *yaml.Node) error {
	type plain Binding
	var fresh plain
	if err := value.Decode(&fresh); err != nil {
		return err
	}
	*b = Binding(fresh)
	return nil
}

func (b Binding) IsZero() bool {
	return b.Attribute == "" && len(b.Require) == 0 && len(b.Forbid) == 0
}

func (b Binding) attribute() string {
	if b.Attribute == "" {
		return "onclick"
	}
	return b.Attribute
}

// Matches reports whether el carries every required substring and none of
// the forbidden ones. A zero Binding matches everything.
func (b Binding) Matches(el browser.Element) bool {
	if b.IsZero() {
		return true
	}
	v, err := el.Attr(b.attribute())
	if err != nil {
		return false
	}
	for _, s := range b.Require {
		if !strings.Contains(v, s) {
			return false
		}
	}
	for _, s := range b.Forbid {
		if strings.Contains(v, s) {
			return false
		}
	}
	return true
}

// AnyBinding matches when at least one binding matches. An empty list
// matches everything.
func AnyBinding(bindings []Binding) Predicate {
	return func(el browser.Element) bool {
		if len(bindings) == 0 {
			return true
		}
		for _, b := range bindings {
			if b.Matches(el) {
				return true
			}
		}
		return false
	}
}
