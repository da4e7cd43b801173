// Package extract turns result-page nodes into product records.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/price"
)

// Stats counts what happened to the raw items of one page.
type Stats struct {
	Items    int
	Kept     int
	NoName   int
	Filtered int
}

type Extractor struct {
	adapter    marketplace.Adapter
	fields     marketplace.FieldLocators
	idFromLink *regexp.Regexp
	gradeNum   *regexp.Regexp
	now        func() time.Time
	logger     *slog.Logger
}

func New(adapter marketplace.Adapter, logger *slog.Logger) *Extractor {
	x := &Extractor{
		adapter: adapter,
		fields:  adapter.FieldLocators(),
		now:     time.Now,
		logger:  logger.With("component", "extractor"),
	}
	if p := x.fields.IDFromLink; p != "" {
		re, err := regexp.Compile(p)
		if err != nil || re.NumSubexp() < 1 {
			x.logger.Warn("ignoring id link pattern", "pattern", p, "error", err)
		} else {
			x.idFromLink = re
		}
	}
	if m := x.fields.GradeMarker; m != "" {
		x.gradeNum = regexp.MustCompile(`(\d+)\s*` + regexp.QuoteMeta(m))
	}
	return x
}

// ExtractAll extracts every result item under scope. Records without a name
// are dropped and the price filter is applied here, so an unparseable price
// never survives an active filter.
func (x *Extractor) ExtractAll(scope browser.Scope, filter price.Filter) ([]models.ProductRecord, Stats, error) {
	var stats Stats

	items, loc := dom.FindAll(scope, x.adapter.ResultItemLocators().Items)
	if len(items) == 0 {
		return nil, stats, nil
	}
	stats.Items = len(items)
	x.logger.Debug("result items found", "count", len(items), "locator", loc)

	records := make([]models.ProductRecord, 0, len(items))
	for i, item := range items {
		rec := x.ExtractOne(item)
		if rec.Name == "" {
			stats.NoName++
			x.logger.Debug("dropping item without name", "index", i)
			continue
		}
		v, known := rec.Price()
		if !filter.Allows(v, known) {
			stats.Filtered++
			x.logger.Debug("price filtered", "name", rec.Name, "price", rec.PriceDisplay, "known", known)
			continue
		}
		records = append(records, rec)
	}
	stats.Kept = len(records)
	return records, stats, nil
}

// ExtractOne reads every field independently; a missing field stays empty.
func (x *Extractor) ExtractOne(node browser.Element) models.ProductRecord {
	href := x.href(node)
	rec := models.ProductRecord{
		Source:      x.adapter.Name(),
		ProductID:   x.productID(node, href),
		Name:        dom.TextOf(node, x.fields.Name),
		Seller:      dom.TextOf(node, x.fields.Seller),
		Grade:       x.grade(node),
		CollectedAt: x.now(),
	}

	if v, ok := x.price(node); ok {
		rec.PriceValue = &v
		rec.PriceDisplay = price.Format(v, x.fields.PriceSuffix)
	}

	rec.Image = x.image(node)
	rec.Link = href
	if rec.Link == "" {
		rec.Link = x.adapter.DetailURL(rec.ProductID)
	}

	if len(x.fields.FastDelivery) > 0 {
		rec.FastDelivery = dom.Resolve(node, x.fields.FastDelivery).Found()
	}
	return rec
}

// productID tries the item's own attributes, then the id locators, then
// numeric tokens in the id text, then the link pattern.
func (x *Extractor) productID(node browser.Element, href string) string {
	for _, attr := range x.fields.IDAttrs {
		if v, _ := node.Attr(attr); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, loc := range x.fields.ID {
		els, err := node.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			for _, attr := range []string{"value", "data-product-id"} {
				if v, _ := el.Attr(attr); strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
	}

	minDigits := x.fields.IDMinDigits
	if minDigits <= 0 {
		minDigits = 6
	}
	for _, loc := range x.fields.IDText {
		els, err := node.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, _ := el.Text()
			for _, tok := range strings.Fields(text) {
				if len(tok) >= minDigits && price.OnlyDigits(tok) {
					return tok
				}
			}
		}
	}

	if x.idFromLink != nil && href != "" {
		if m := x.idFromLink.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

func (x *Extractor) price(node browser.Element) (int, bool) {
	for _, loc := range x.fields.Price {
		els, err := node.QueryAll(loc)
		if err != nil || len(els) == 0 {
			continue
		}
		text := x.priceText(els[0])
		if v, ok := price.Parse(text); ok && v >= price.MinPlausible {
			return v, true
		}
	}

	if x.fields.PriceEmphasis == "" {
		return 0, false
	}
	emphasis, err := node.QueryAll(x.fields.PriceEmphasis)
	if err != nil {
		return 0, false
	}
	for _, el := range emphasis {
		text, _ := el.Text()
		if v, ok := price.Parse(text); ok && price.Plausible(v) {
			return v, true
		}
	}
	return 0, false
}

func (x *Extractor) priceText(container browser.Element) string {
	if x.fields.PriceEmphasis != "" {
		if inner := dom.TextOf(container, dom.Candidates{x.fields.PriceEmphasis}); inner != "" {
			return inner
		}
	}
	text, _ := container.Text()
	return text
}

func (x *Extractor) image(node browser.Element) string {
	for _, loc := range x.fields.Image {
		els, err := node.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			if src := imageURL(el); src != "" {
				return x.adapter.Absolute(src)
			}
		}
	}

	if len(x.fields.ImageMarkers) == 0 {
		return ""
	}
	imgs, err := node.QueryAll("img")
	if err != nil {
		return ""
	}
	for _, el := range imgs {
		src := imageURL(el)
		if src != "" && containsAll(src, x.fields.ImageMarkers) {
			return x.adapter.Absolute(src)
		}
	}
	return ""
}

func imageURL(el browser.Element) string {
	for _, attr := range []string{"src", "data-src"} {
		v, _ := el.Attr(attr)
		v = strings.TrimSpace(v)
		if v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

// href is the first usable product anchor, made absolute. Empty when the
// item has none.
func (x *Extractor) href(node browser.Element) string {
	for _, loc := range x.fields.Link {
		els, err := node.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			href, _ := el.Attr("href")
			href = strings.TrimSpace(href)
			if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
				continue
			}
			return x.adapter.Absolute(href)
		}
	}
	return ""
}

func (x *Extractor) grade(node browser.Element) string {
	if len(x.fields.Grade) == 0 {
		return ""
	}
	marker := x.fields.GradeMarker
	for _, loc := range x.fields.Grade {
		els, err := node.QueryAll(loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, _ := el.Text()
			if marker != "" && !strings.Contains(text, marker) {
				continue
			}
			if strong := dom.TextOf(el, dom.Candidates{"strong"}); strong != "" {
				return strong
			}
			if x.gradeNum == nil {
				continue
			}
			if m := x.gradeNum.FindStringSubmatch(text); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func containsAll(s string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// Describe is a short log label for a record.
func Describe(rec models.ProductRecord) string {
	if rec.ProductID != "" {
		return fmt.Sprintf("%s (%s)", rec.Name, rec.ProductID)
	}
	return rec.Name
}
