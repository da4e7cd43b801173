package marketplace

import (
	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/models"
)

// Retail profiles need no login and have no staging area. Their listings
// carry direct anchors, so links come from href rather than a template.

func Coupang() *Profile {
	return &Profile{
		Source:  models.SourceCoupang,
		Version: "2024.12",
		Endpoints: Endpoints{
			Origin:    "https://www.coupang.com",
			Home:      "https://www.coupang.com",
			Search:    "https://www.coupang.com/np/search?q={keyword}",
			PageParam: "page",
		},
		Results: ResultLocators{
			Ready: dom.Candidates{"ul.search-product-list", "#productList", "[class*='product-list']"},
			Items: dom.Candidates{"li.search-product", "li[class*='search-product']", ".search-product", "[data-product-id]"},
		},
		Pagination: PaginationLocators{
			Next:      dom.Candidates{"a.btn-next", "a[class*='next']"},
			PageLinks: dom.Candidates{"a[href*='page=']"},
		},
		Form: FormLocators{
			Input:  dom.Candidates{"input[name='q']", "#headerSearchKeyword", "input[type='search']"},
			Submit: dom.Candidates{"button[type='submit']", ".header-search-button", "button.btn-search"},
		},
		Fields: FieldLocators{
			IDAttrs:      []string{"data-product-id"},
			ID:           dom.Candidates{"[data-product-id]"},
			IDFromLink:   `/products/(\d+)`,
			Name:         dom.Candidates{".name", ".product-name", "[class*='name']"},
			Price:        dom.Candidates{"strong.price-value", ".price-value", "[class*='price']"},
			PriceSuffix:  "원",
			Image:        dom.Candidates{"img.search-product-wrap-img", "img"},
			ImageMarkers: []string{"coupangcdn.com"},
			Link:         dom.Candidates{"a.search-product-link", "a[href*='/products/']", "a"},
			Seller:       dom.Candidates{"[class*='seller']"},
			FastDelivery: dom.Candidates{".badge.rocket", "img[alt*='로켓']"},
		},
	}
}

func Naver() *Profile {
	return &Profile{
		Source:  models.SourceNaver,
		Version: "2024.12",
		Endpoints: Endpoints{
			Origin:    "https://search.shopping.naver.com",
			Home:      "https://shopping.naver.com",
			Search:    "https://search.shopping.naver.com/search/all?query={keyword}&pagingIndex={page}",
			PageParam: "pagingIndex",
		},
		Results: ResultLocators{
			Ready: dom.Candidates{"[class*='basicList_list']", "[class*='product-list']"},
			Items: dom.Candidates{"[class*='product_item']", "[class*='basicList_item']", "[class*='item']"},
		},
		Pagination: PaginationLocators{
			Next:      dom.Candidates{"a[class*='pagination_next']"},
			PageLinks: dom.Candidates{"a[href*='pagingIndex=']"},
		},
		Form: FormLocators{
			Input:  dom.Candidates{"input[name='query']", "input[type='search']"},
			Submit: dom.Candidates{"button[type='submit']", "button[class*='search']"},
		},
		Fields: FieldLocators{
			IDFromLink:   `/products/(\d+)`,
			Name:         dom.Candidates{"[class*='product_title']", "[class*='name']"},
			Price:        dom.Candidates{"[class*='price_num']", "[class*='price']", "[class*='num']"},
			PriceSuffix:  "원",
			Image:        dom.Candidates{"img"},
			ImageMarkers: []string{"pstatic.net"},
			Link:         dom.Candidates{"a[class*='product_link']", "a"},
			Seller:       dom.Candidates{"[class*='mall']", "[class*='seller']"},
		},
	}
}

func Elevenst() *Profile {
	return &Profile{
		Source:  models.SourceElevenst,
		Version: "2024.12",
		Endpoints: Endpoints{
			Origin:    "https://www.11st.co.kr",
			Home:      "https://www.11st.co.kr",
			Search:    "https://search.11st.co.kr/Search.tmall?kwd={keyword}",
			PageParam: "pageNo",
		},
		Results: ResultLocators{
			Ready: dom.Candidates{"[class*='search_product']", "[class*='product-list']"},
			Items: dom.Candidates{"li[class*='product']", "[class*='c_card']", "[class*='item']"},
		},
		Pagination: PaginationLocators{
			Next:      dom.Candidates{"a[class*='next']"},
			PageLinks: dom.Candidates{"a[href*='pageNo=']"},
		},
		Form: FormLocators{
			Input:  dom.Candidates{"input[name='kwd']", "input[type='search']"},
			Submit: dom.Candidates{"button[type='submit']", "button[class*='search']"},
		},
		Fields: FieldLocators{
			IDFromLink:   `/products/(\d+)`,
			Name:         dom.Candidates{"[class*='title']", "[class*='name']"},
			Price:        dom.Candidates{"[class*='price'] .value", "[class*='price']"},
			PriceSuffix:  "원",
			Image:        dom.Candidates{"img"},
			ImageMarkers: []string{"11st.co.kr"},
			Link:         dom.Candidates{"a[href*='products']", "a"},
			Seller:       dom.Candidates{"[class*='seller']"},
		},
	}
}
