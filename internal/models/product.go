package models

import (
	"errors"
	"fmt"
	"time"
)

type Source string

const (
	SourceDomeggook Source = "domeggook"
	SourceCoupang   Source = "coupang"
	SourceNaver     Source = "naver"
	SourceElevenst  Source = "11st"
)

func (s Source) Valid() bool {
	switch s {
	case SourceDomeggook, SourceCoupang, SourceNaver, SourceElevenst:
		return true
	}
	return false
}

var ErrMissingName = errors.New("product name is required")

// ProductRecord is one listing scraped from a search result page.
// PriceValue is nil when the price text could not be parsed.
type ProductRecord struct {
	Source        Source    `json:"source"`
	SearchKeyword string    `json:"search_keyword"`
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	PriceDisplay  string    `json:"price_display"`
	PriceValue    *int      `json:"price_value"`
	Link          string    `json:"link"`
	Image         string    `json:"image"`
	Seller        string    `json:"seller"`
	Grade         string    `json:"grade"`
	FastDelivery  bool      `json:"fast_delivery"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Price returns the parsed price and whether one is known.
func (p ProductRecord) Price() (int, bool) {
	if p.PriceValue == nil {
		return 0, false
	}
	return *p.PriceValue, true
}

// DedupKey identifies a record within one search. The product id wins,
// the name is the fallback.
func (p ProductRecord) DedupKey() string {
	if p.ProductID != "" {
		return "id:" + p.ProductID
	}
	return "name:" + p.Name
}

func (p ProductRecord) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	if p.PriceValue != nil && *p.PriceValue < 0 {
		return fmt.Errorf("negative price %d for %q", *p.PriceValue, p.Name)
	}
	return nil
}

// WithKeyword returns a copy annotated with the keyword that produced it.
func (p ProductRecord) WithKeyword(keyword string) ProductRecord {
	p.SearchKeyword = keyword
	return p
}

// IDs collects the non-empty product ids in order.
func IDs(records []ProductRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.ProductID != "" {
			ids = append(ids, r.ProductID)
		}
	}
	return ids
}

// WithoutIDs returns the ids not listed in drop, keeping their order.
func WithoutIDs(ids, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
