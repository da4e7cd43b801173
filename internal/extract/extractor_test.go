package extract

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/price"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const listing = `<html><body>
<div class="sub_cont_bane1">
  <input type="checkbox" name="item[]" value="123456">
  <div class="bane_brd1"><img src="/upload/item/123456.jpg"></div>
  <div class="itemName">면 양말 5켤레</div>
  <div class="main_cont_text1 priceLg"><strong>15,000</strong>원</div>
  <a onclick="supplyList('socks')">양말상회</a>
  <div class="main_cont_text3">공급사 <strong>3</strong>등급</div>
  <span class="main_cont_bu9">빠른배송</span>
</div>
<div class="sub_cont_bane1">
  <span class="txt8">상품번호 654321</span>
  <div class="main_cont_text1 b">덧신 양말</div>
  <div class="main_cont_text1 priceLg">가격문의</div>
  <div class="main_cont_text3">5등급 공급사</div>
  <img src="https://cdn.domeggook.com/upload/item/654321.jpg">
</div>
<div class="sub_cont_bane1">
  <div class="main_cont_text1 priceLg"><strong>9,900</strong>원</div>
</div>
<div class="sub_cont_bane1">
  <input type="checkbox" name="item[]" value="777777">
  <div class="itemName">수면 양말</div>
  <div class="main_cont_text1 priceLg"><strong>11,000</strong>원</div>
</div>
</body></html>`

func extractor(t *testing.T) *Extractor {
	t.Helper()
	x := New(marketplace.Domeggook(), testLogger())
	x.now = func() time.Time { return time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC) }
	return x
}

func TestExtractAll_NoFilter(t *testing.T) {
	root, err := browser.ParseHTML(listing)
	require.NoError(t, err)

	recs, stats, err := extractor(t).ExtractAll(root, price.Filter{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Items: 4, Kept: 3, NoName: 1}, stats)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, models.SourceDomeggook, first.Source)
	assert.Equal(t, "123456", first.ProductID)
	assert.Equal(t, "면 양말 5켤레", first.Name)
	assert.Equal(t, "15,000원", first.PriceDisplay)
	if assert.NotNil(t, first.PriceValue) {
		assert.Equal(t, 15000, *first.PriceValue)
	}
	assert.Equal(t, "https://domemedb.domeggook.com/upload/item/123456.jpg", first.Image)
	assert.Equal(t, "https://domemedb.domeggook.com/index/item/itemView.php?itemNo=123456", first.Link)
	assert.Equal(t, "양말상회", first.Seller)
	assert.Equal(t, "3", first.Grade)
	assert.True(t, first.FastDelivery)
	assert.False(t, first.CollectedAt.IsZero())

	second := recs[1]
	assert.Equal(t, "654321", second.ProductID)
	assert.Equal(t, "덧신 양말", second.Name)
	assert.Nil(t, second.PriceValue)
	assert.Empty(t, second.PriceDisplay)
	assert.Equal(t, "5", second.Grade)
	assert.Equal(t, "https://cdn.domeggook.com/upload/item/654321.jpg", second.Image)
	assert.False(t, second.FastDelivery)
}

func TestExtractAll_MinPrice(t *testing.T) {
	root, err := browser.ParseHTML(listing)
	require.NoError(t, err)

	recs, stats, err := extractor(t).ExtractAll(root, price.Filter{Min: price.Bound(12000)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "123456", recs[0].ProductID)
	// Unknown price and 11,000 are both filtered.
	assert.Equal(t, 2, stats.Filtered)
	assert.Equal(t, 1, stats.NoName)
}

func TestExtractAll_NoItems(t *testing.T) {
	root, err := browser.ParseHTML(`<html><body><p>검색 결과가 없습니다</p></body></html>`)
	require.NoError(t, err)

	recs, stats, err := extractor(t).ExtractAll(root, price.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, stats.Items)
}

func TestExtractOne_PriceFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		want  int
		known bool
	}{
		{"emphasis inside container", `<div class="priceLg"><strong>29,530</strong>원 (VAT)</div>`, 29530, true},
		{"container text", `<div class="priceLg">8,800원</div>`, 8800, true},
		{"small number is not a price", `<div class="priceLg">3</div>`, 0, false},
		{"emphasis scan outside container", `<div><strong>2</strong><strong>45,000원</strong></div>`, 45000, true},
		{"nothing", `<div>문의</div>`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := browser.ParseHTML(`<div class="sub_cont_bane1"><div class="itemName">x</div>` + tt.html + `</div>`)
			require.NoError(t, err)
			items, _ := root.QueryAll(".sub_cont_bane1")
			require.Len(t, items, 1)

			rec := extractor(t).ExtractOne(items[0])
			v, ok := rec.Price()
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestExtractOne_RetailLink(t *testing.T) {
	root, err := browser.ParseHTML(`<ul><li class="search-product" data-product-id="99">
		<a class="search-product-link" href="/vp/products/99"><div class="name">양말</div></a>
		<strong class="price-value">12,900</strong>
		<span class="badge rocket">로켓</span>
	</li></ul>`)
	require.NoError(t, err)
	items, _ := root.QueryAll("li.search-product")
	require.Len(t, items, 1)

	rec := New(marketplace.Coupang(), testLogger()).ExtractOne(items[0])
	assert.Equal(t, models.SourceCoupang, rec.Source)
	assert.Equal(t, "99", rec.ProductID)
	assert.Equal(t, "https://www.coupang.com/vp/products/99", rec.Link)
	assert.Equal(t, "양말", rec.Name)
	assert.True(t, rec.FastDelivery)
	v, ok := rec.Price()
	assert.True(t, ok)
	assert.Equal(t, 12900, v)
}

func TestExtractOne_RetailProductID(t *testing.T) {
	tests := []struct {
		name    string
		profile *marketplace.Profile
		html    string
		want    string
	}{
		{
			name:    "attribute on the item node",
			profile: marketplace.Coupang(),
			html:    `<li class="search-product" data-product-id="99"><a href="/vp/products/12345"><div class="name">양말</div></a></li>`,
			want:    "99",
		},
		{
			name:    "attribute on a descendant",
			profile: marketplace.Coupang(),
			html:    `<li class="search-product"><div data-product-id="77"></div><div class="name">양말</div></li>`,
			want:    "77",
		},
		{
			name:    "link pattern",
			profile: marketplace.Coupang(),
			html:    `<li class="search-product"><a class="search-product-link" href="/vp/products/4567?itemId=1"><div class="name">양말</div></a></li>`,
			want:    "4567",
		},
		{
			name:    "naver link pattern",
			profile: marketplace.Naver(),
			html:    `<li class="search-product"><a class="product_link" href="https://smartstore.naver.com/shop/products/8080"><div class="product_title">양말</div></a></li>`,
			want:    "8080",
		},
		{
			name:    "no id anywhere",
			profile: marketplace.Coupang(),
			html:    `<li class="search-product"><a href="/np/categories/1"><div class="name">양말</div></a></li>`,
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := browser.ParseHTML(`<ul>` + tt.html + `</ul>`)
			require.NoError(t, err)
			items, _ := root.QueryAll("li.search-product")
			require.Len(t, items, 1)

			rec := New(tt.profile, testLogger()).ExtractOne(items[0])
			assert.Equal(t, tt.want, rec.ProductID)
			assert.Equal(t, "양말", rec.Name)
		})
	}
}

func TestNew_BadLinkPattern(t *testing.T) {
	p := marketplace.Coupang()
	p.Fields.IDFromLink = `/products/\d+`
	x := New(p, testLogger())
	assert.Nil(t, x.idFromLink)

	root, err := browser.ParseHTML(`<ul><li class="search-product"><a href="/vp/products/5"><div class="name">양말</div></a></li></ul>`)
	require.NoError(t, err)
	items, _ := root.QueryAll("li.search-product")
	require.Len(t, items, 1)
	assert.Empty(t, x.ExtractOne(items[0]).ProductID)
}

func TestNew_CompilesPatterns(t *testing.T) {
	tests := []struct {
		name      string
		profile   *marketplace.Profile
		wantGrade bool
		wantLink  bool
	}{
		{name: "domeggook", profile: marketplace.Domeggook(), wantGrade: true},
		{name: "coupang", profile: marketplace.Coupang(), wantLink: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(tt.profile, testLogger())
			assert.Equal(t, tt.wantGrade, x.gradeNum != nil)
			assert.Equal(t, tt.wantLink, x.idFromLink != nil)
			if x.gradeNum != nil {
				assert.Equal(t, []string{"3 등급", "3"}, x.gradeNum.FindStringSubmatch("판매자 3 등급"))
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "양말 (1)", Describe(models.ProductRecord{Name: "양말", ProductID: "1"}))
	assert.Equal(t, "양말", Describe(models.ProductRecord{Name: "양말"}))
}
