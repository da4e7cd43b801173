package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/browser/browsertest"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/price"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type item struct {
	id    string
	name  string
	price string
}

// listingPage renders a domeggook result page. A next value above zero adds
// a pagination link to that page.
func listingPage(items []item, next int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, it := range items {
		b.WriteString(`<div class="sub_cont_bane1">`)
		fmt.Fprintf(&b, `<input type="checkbox" name="item[]" value="%s">`, it.id)
		fmt.Fprintf(&b, `<div class="itemName">%s</div>`, it.name)
		if it.price == "" {
			b.WriteString(`<div class="main_cont_text1 priceLg">가격문의</div>`)
		} else {
			fmt.Fprintf(&b, `<div class="main_cont_text1 priceLg"><strong>%s</strong>원</div>`, it.price)
		}
		b.WriteString(`</div>`)
	}
	if next > 0 {
		fmt.Fprintf(&b, `<div class="paging"><a href="/index/item/supplyList.php?mode=search&page=%d">%d</a></div>`, next, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func pageURL(t *testing.T, keyword string, page int) string {
	t.Helper()
	u, err := marketplace.Domeggook().BuildSearchRequest(keyword, page)
	require.NoError(t, err)
	return u
}

func newEngine(d browser.Driver, opts Options) *Engine {
	return New(d, marketplace.Domeggook(), browser.Waits{}, opts, nil, testLogger())
}

type countingPacer struct {
	waits     int
	successes int
	errors    int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func (p *countingPacer) RecordSuccess() { p.successes++ }
func (p *countingPacer) RecordError()   { p.errors++ }

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeDirect, false},
		{"direct", ModeDirect, false},
		{" FORM ", ModeForm, false},
		{"crawl", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_EmptyKeyword(t *testing.T) {
	res, err := newEngine(browsertest.New(), Options{}).Search(context.Background(), Request{Keyword: "   "})
	assert.ErrorIs(t, err, ErrEmptyKeyword)
	assert.Nil(t, res)
}

func TestSearch_DedupAcrossPages(t *testing.T) {
	for _, snapshot := range []bool{false, true} {
		t.Run(fmt.Sprintf("snapshot=%t", snapshot), func(t *testing.T) {
			d := browsertest.New().
				AddPage(pageURL(t, "양말", 1), listingPage([]item{
					{"100001", "면 양말", "15,000"},
					{"100002", "울 양말", "18,000"},
					{"100001", "면 양말", "15,000"},
				}, 2)).
				AddPage(pageURL(t, "양말", 2), listingPage([]item{
					{"100002", "울 양말", "18,000"},
					{"100003", "등산 양말", "21,000"},
				}, 0))

			res, err := newEngine(d, Options{Snapshot: snapshot}).Search(context.Background(), Request{
				Keyword:  "양말",
				MaxPages: 2,
			})
			require.NoError(t, err)
			require.NoError(t, res.Err)

			ids := make([]string, 0, len(res.Records))
			for _, r := range res.Records {
				ids = append(ids, r.ProductID)
				assert.Equal(t, "양말", r.SearchKeyword)
			}
			assert.Equal(t, []string{"100001", "100002", "100003"}, ids)
			assert.Equal(t, []string{"100002", "100003"}, res.Visible)
			assert.Equal(t, 2, res.Pages)
			assert.Equal(t, StopMaxPages, res.Stop)
			assert.Equal(t, 5, res.Dropped.Items)
		})
	}
}

func TestSearch_MinPrice(t *testing.T) {
	d := browsertest.New().
		AddPage(pageURL(t, "양말", 1), listingPage([]item{
			{"200001", "면 양말", "15,000"},
			{"200002", "덧신", "11,000"},
			{"200003", "수면 양말", ""},
			{"200004", "울 양말", "12,000"},
		}, 0))

	res, err := newEngine(d, Options{}).Search(context.Background(), Request{
		Keyword: "양말",
		Filter:  price.Filter{Min: price.Bound(12000)},
	})
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	for _, r := range res.Records {
		v, ok := r.Price()
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, 12000)
	}
	assert.Equal(t, 2, res.Dropped.Filtered)
}

func TestSearch_StopReasons(t *testing.T) {
	page1 := []item{{"300001", "양말 A", "15,000"}, {"300002", "양말 B", "16,000"}, {"300003", "양말 C", "17,000"}}

	tests := []struct {
		name        string
		pages       map[int]string
		req         Request
		wantStop    StopReason
		wantCount   int
		wantPages   int
		wantVisible []string
		notVisited  []int
	}{
		{
			name:        "max results truncates",
			pages:       map[int]string{1: listingPage(page1, 2)},
			req:         Request{MaxResults: 2, MaxPages: 5},
			wantStop:    StopMaxResults,
			wantCount:   2,
			wantPages:   1,
			wantVisible: []string{"300001", "300002"},
			notVisited:  []int{2},
		},
		{
			name: "no next link",
			pages: map[int]string{
				1: listingPage(page1, 2),
				2: listingPage([]item{{"300004", "양말 D", "18,000"}}, 0),
			},
			req:         Request{MaxPages: 5},
			wantStop:    StopNoNext,
			wantCount:   4,
			wantPages:   2,
			wantVisible: []string{"300004"},
			notVisited:  []int{3},
		},
		{
			name: "repeated page",
			pages: map[int]string{
				1: listingPage(page1, 2),
				2: listingPage(page1, 3),
			},
			req:         Request{MaxPages: 5},
			wantStop:    StopNoNew,
			wantCount:   3,
			wantPages:   2,
			wantVisible: []string{"300001", "300002", "300003"},
			notVisited:  []int{3},
		},
		{
			name:        "page budget",
			pages:       map[int]string{1: listingPage(page1, 2)},
			req:         Request{MaxPages: 1},
			wantStop:    StopMaxPages,
			wantCount:   3,
			wantPages:   1,
			wantVisible: []string{"300001", "300002", "300003"},
			notVisited:  []int{2},
		},
		{
			name:       "empty first page",
			pages:      map[int]string{1: listingPage(nil, 0)},
			req:        Request{MaxPages: 3},
			wantStop:   StopNoNew,
			wantCount:  0,
			wantPages:  1,
			notVisited: []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := browsertest.New()
			for n, html := range tt.pages {
				d.AddPage(pageURL(t, "양말", n), html)
			}
			req := tt.req
			req.Keyword = "양말"

			res, err := newEngine(d, Options{}).Search(context.Background(), req)
			require.NoError(t, err)
			assert.NoError(t, res.Err)
			assert.Equal(t, tt.wantStop, res.Stop)
			assert.Len(t, res.Records, tt.wantCount)
			assert.Equal(t, tt.wantPages, res.Pages)
			assert.Equal(t, tt.wantVisible, res.Visible)
			for _, n := range tt.notVisited {
				assert.Zero(t, d.Visited(pageURL(t, "양말", n)), "page %d requested", n)
			}
		})
	}
}

func TestSearch_PartialResultsOnPageError(t *testing.T) {
	boom := errors.New("net::ERR_CONNECTION_RESET")
	d := browsertest.New().
		AddPage(pageURL(t, "양말", 1), listingPage([]item{
			{"400001", "양말 A", "15,000"},
			{"400002", "양말 B", "16,000"},
		}, 2)).
		FailNavigation(pageURL(t, "양말", 2), boom)
	pacer := &countingPacer{}

	res, err := newEngine(d, Options{Pacer: pacer}).Search(context.Background(), Request{
		Keyword:  "양말",
		MaxPages: 3,
	})
	require.NoError(t, err)

	assert.Len(t, res.Records, 2)
	assert.Equal(t, StopError, res.Stop)
	assert.Equal(t, 2, res.Pages)

	var perr *PageError
	require.ErrorAs(t, res.Err, &perr)
	assert.Equal(t, 2, perr.Page)
	assert.Equal(t, "양말", perr.Keyword)
	assert.Equal(t, "page_load", perr.Kind())
	assert.ErrorIs(t, res.Err, ErrPageLoad)

	assert.Equal(t, 1, pacer.waits)
	assert.Equal(t, 1, pacer.successes)
	assert.Equal(t, 1, pacer.errors)
}

func TestSearch_FirstPageFails(t *testing.T) {
	d := browsertest.New().FailNavigation(pageURL(t, "양말", 1), errors.New("timeout"))

	res, err := newEngine(d, Options{}).Search(context.Background(), Request{Keyword: "양말"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, StopError, res.Stop)
	assert.Equal(t, 1, res.Pages)
	assert.ErrorIs(t, res.Err, ErrPageLoad)
}

func TestSearch_CancelledContext(t *testing.T) {
	d := browsertest.New().AddPage(pageURL(t, "양말", 1), listingPage([]item{{"500001", "양말", "15,000"}}, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newEngine(d, Options{}).Search(ctx, Request{Keyword: "양말"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.ErrorIs(t, res.Err, ErrPageLoad)
	assert.Empty(t, d.Navigations())
}

func TestSearch_ScrollsEachPage(t *testing.T) {
	d := browsertest.New().AddPage(pageURL(t, "양말", 1), listingPage([]item{{"600001", "양말", "15,000"}}, 0))

	_, err := newEngine(d, Options{}).Search(context.Background(), Request{Keyword: "양말"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"window.scrollTo(0, document.body.scrollHeight)",
		"window.scrollTo(0, 0)",
	}, d.Scripts())
}

func TestSearch_FormMode(t *testing.T) {
	profile := marketplace.Domeggook()
	page1URL := "https://domemedb.domeggook.com/index/item/supplyList.php?sw=socks"
	page2URL := page1URL + "&page=2"

	home := `<html><body><form>
<input type="text" name="sw">
<button type="submit">검색</button>
</form></body></html>`
	page1 := strings.Replace(listingPage([]item{
		{"700001", "양말 A", "15,000"},
		{"700002", "양말 B", "16,000"},
	}, 0), "</body>", `<div class="pagination"><span class="active">1</span><a data-page="2">2</a></div></body>`, 1)
	page2 := listingPage([]item{{"700003", "양말 C", "17,000"}}, 0)

	var typed string
	d := browsertest.New().
		AddPage(profile.HomeURL(), home).
		AddPage(page1URL, page1).
		AddPage(page2URL, page2)
	d.OnClick("button[type='submit']", func(d *browsertest.Driver) error {
		typed = d.Find("input[name='sw']").AttrOr("value", "")
		d.Load(page1URL)
		return nil
	})
	d.OnClick("a[data-page='2']", func(d *browsertest.Driver) error {
		d.Load(page2URL)
		return nil
	})

	res, err := newEngine(d, Options{}).Search(context.Background(), Request{
		Keyword:  "양말",
		MaxPages: 3,
		Mode:     ModeForm,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Equal(t, "양말", typed)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, StopNoNext, res.Stop)
	assert.Equal(t, []string{profile.HomeURL()}, d.Navigations())
}

func TestSearch_FormModeEnterFallback(t *testing.T) {
	profile := marketplace.Domeggook()
	resultsURL := "https://domemedb.domeggook.com/index/item/supplyList.php?sw=socks"

	var pressed string
	d := browsertest.New().
		AddPage(profile.HomeURL(), `<html><body><input type="text" name="keyword"></body></html>`).
		AddPage(resultsURL, listingPage([]item{{"800001", "양말", "15,000"}}, 0))
	d.OnPress("input[name='keyword']", func(d *browsertest.Driver, key string) error {
		pressed = key
		d.Load(resultsURL)
		return nil
	})

	res, err := newEngine(d, Options{}).Search(context.Background(), Request{Keyword: "양말", Mode: ModeForm})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "Enter", pressed)
	assert.Len(t, res.Records, 1)
}

func TestSearch_FormModeWithoutSearchBox(t *testing.T) {
	d := browsertest.New().AddPage(marketplace.Domeggook().HomeURL(), "<html><body></body></html>")

	res, err := newEngine(d, Options{}).Search(context.Background(), Request{Keyword: "양말", Mode: ModeForm})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, ErrNoSearchForm)
	assert.Equal(t, StopError, res.Stop)
}

func TestPageOf(t *testing.T) {
	assert.Equal(t, "3", pageOf("/list.php?sw=a&page=3", "page"))
	assert.Equal(t, "", pageOf("/list.php?sw=a", "page"))
	assert.Equal(t, "", pageOf("", "page"))
	assert.Equal(t, "2", pageOf("https://example.test/?pg=2", "pg"))
}
