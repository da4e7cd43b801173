// Package marketplace holds per-marketplace configuration: URL templates
// and candidate locator lists. Search, extraction, login and staging are
// shared; a marketplace only supplies data.
package marketplace

import (
	"fmt"
	"sort"

	"github.com/maltedev/domeme-scraper/internal/models"
)

// Adapter is what the search engine needs from a marketplace.
type Adapter interface {
	Name() models.Source
	Origin() string
	HomeURL() string
	BuildSearchRequest(keyword string, page int) (string, error)
	ResultItemLocators() ResultLocators
	FieldLocators() FieldLocators
	PaginationLocators() PaginationLocators
	FormLocators() FormLocators
	PageParam() string
	DetailURL(id string) string
	Absolute(href string) string
}

// Registry maps sources to profiles.
type Registry struct {
	profiles map[models.Source]*Profile
}

// Defaults returns a registry with the built-in profiles.
func Defaults() *Registry {
	r := &Registry{profiles: make(map[models.Source]*Profile)}
	for _, p := range []*Profile{Domeggook(), Coupang(), Naver(), Elevenst()} {
		r.profiles[p.Source] = p
	}
	return r
}

func (r *Registry) Get(source models.Source) (*Profile, error) {
	p, ok := r.profiles[source]
	if !ok {
		return nil, fmt.Errorf("unknown marketplace %q", source)
	}
	return p, nil
}

func (r *Registry) Put(p *Profile) {
	r.profiles[p.Source] = p
}

func (r *Registry) Sources() []models.Source {
	out := make([]models.Source, 0, len(r.profiles))
	for s := range r.profiles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
