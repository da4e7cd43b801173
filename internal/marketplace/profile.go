package marketplace

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/models"
)

var ErrNoSearchURL = errors.New("profile has no search url template")

// Endpoints are the URL templates a profile navigates to. Search takes
// {keyword} and optionally {page}; Detail takes {id}.
type Endpoints struct {
	Origin        string `yaml:"origin"`
	Home          string `yaml:"home"`
	Login         string `yaml:"login"`
	LoginRedirect string `yaml:"login_redirect"`
	RedirectParam string `yaml:"redirect_param"`
	Search        string `yaml:"search"`
	PageParam     string `yaml:"page_param"`
	Detail        string `yaml:"detail"`
	SecondApp     string `yaml:"second_app"`
	StagingList   string `yaml:"staging_list"`
}

type ResultLocators struct {
	// Ready is waited on before extraction.
	Ready dom.Candidates `yaml:"ready"`
	// Items are the per-result containers.
	Items dom.Candidates `yaml:"items"`
}

type PaginationLocators struct {
	Next        dom.Candidates `yaml:"next"`
	PageNumbers dom.Candidates `yaml:"page_numbers"`
	CurrentPage dom.Candidates `yaml:"current_page"`
	PageLinks   dom.Candidates `yaml:"page_links"`
}

type FormLocators struct {
	Input  dom.Candidates `yaml:"input"`
	Submit dom.Candidates `yaml:"submit"`
}

type FieldLocators struct {
	// IDAttrs are read from the item node itself before any ID locator.
	IDAttrs []string       `yaml:"id_attrs"`
	ID      dom.Candidates `yaml:"id"`
	// IDFromLink is a pattern whose first group is the id inside the
	// product link. It is the last id fallback.
	IDFromLink    string         `yaml:"id_from_link"`
	IDText        dom.Candidates `yaml:"id_text"`
	IDMinDigits   int            `yaml:"id_min_digits"`
	Name          dom.Candidates `yaml:"name"`
	Price         dom.Candidates `yaml:"price"`
	PriceEmphasis string         `yaml:"price_emphasis"`
	PriceSuffix   string         `yaml:"price_suffix"`
	Image         dom.Candidates `yaml:"image"`
	ImageMarkers  []string       `yaml:"image_markers"`
	Link          dom.Candidates `yaml:"link"`
	Seller        dom.Candidates `yaml:"seller"`
	Grade         dom.Candidates `yaml:"grade"`
	GradeMarker   string         `yaml:"grade_marker"`
	FastDelivery  dom.Candidates `yaml:"fast_delivery"`
}

type LoginLocators struct {
	Username         dom.Candidates `yaml:"username"`
	Password         dom.Candidates `yaml:"password"`
	Submit           dom.Candidates `yaml:"submit"`
	AccountLinks     dom.Candidates `yaml:"account_links"`
	Errors           dom.Candidates `yaml:"errors"`
	LoginMarker      string         `yaml:"login_marker"`
	PostLoginMarkers []string       `yaml:"post_login_markers"`
}

type TextProbe struct {
	Scope    dom.Candidates `yaml:"scope"`
	Contains string         `yaml:"contains"`
}

type StagingLocators struct {
	// ItemCheckbox templates take {id}.
	ItemCheckbox    dom.Candidates `yaml:"item_checkbox"`
	AnyItemCheckbox dom.Candidates `yaml:"any_item_checkbox"`
	Save            dom.Candidates `yaml:"save"`
	SaveBinding     dom.Binding    `yaml:"save_binding"`
	StagingLink     dom.Candidates `yaml:"staging_link"`
	SelectAll       dom.Candidates `yaml:"select_all"`
	Transfer        dom.Candidates `yaml:"transfer"`
	TransferBinding dom.Binding    `yaml:"transfer_binding"`
	PopupOverlay    dom.Candidates `yaml:"popup_overlay"`
	PopupForm       dom.Candidates `yaml:"popup_form"`
	PopupText       TextProbe      `yaml:"popup_text"`
	PopupFrame      dom.Candidates `yaml:"popup_frame"`
	FrameBindings   []dom.Binding  `yaml:"frame_bindings"`
	Confirm         dom.Candidates `yaml:"confirm"`
	ConfirmBinding  dom.Binding    `yaml:"confirm_binding"`
}

// Profile is the full locator and URL configuration of one marketplace.
// Profiles carry no behavior beyond URL building; the engines are shared.
type Profile struct {
	Source        models.Source      `yaml:"source"`
	Version       string             `yaml:"version"`
	RequiresLogin bool               `yaml:"requires_login"`
	Endpoints     Endpoints          `yaml:"endpoints"`
	Results       ResultLocators     `yaml:"results"`
	Pagination    PaginationLocators `yaml:"pagination"`
	Form          FormLocators       `yaml:"form"`
	Fields        FieldLocators      `yaml:"fields"`
	Login         LoginLocators      `yaml:"login"`
	Staging       StagingLocators    `yaml:"staging"`
}

var _ Adapter = (*Profile)(nil)

func (p *Profile) Name() models.Source {
	return p.Source
}

func (p *Profile) Origin() string {
	return p.Endpoints.Origin
}

func (p *Profile) HomeURL() string {
	return p.Endpoints.Home
}

func (p *Profile) ResultItemLocators() ResultLocators {
	return p.Results
}

func (p *Profile) FieldLocators() FieldLocators {
	return p.Fields
}

func (p *Profile) PaginationLocators() PaginationLocators {
	return p.Pagination
}

func (p *Profile) FormLocators() FormLocators {
	return p.Form
}

func (p *Profile) PageParam() string {
	if p.Endpoints.PageParam == "" {
		return "page"
	}
	return p.Endpoints.PageParam
}

// BuildSearchRequest renders the direct search URL for keyword and page.
// Page 1 carries no page parameter unless the template asks for one.
func (p *Profile) BuildSearchRequest(keyword string, page int) (string, error) {
	tmpl := p.Endpoints.Search
	if tmpl == "" {
		return "", ErrNoSearchURL
	}
	if page < 1 {
		page = 1
	}

	escaped := strings.ReplaceAll(url.QueryEscape(keyword), "+", "%20")
	out := strings.ReplaceAll(tmpl, "{keyword}", escaped)

	if strings.Contains(out, "{page}") {
		return strings.ReplaceAll(out, "{page}", strconv.Itoa(page)), nil
	}
	if page > 1 {
		out = appendQuery(out, p.PageParam(), strconv.Itoa(page))
	}
	return out, nil
}

// DetailURL renders the detail page of a product, or "" without template or id.
func (p *Profile) DetailURL(id string) string {
	if p.Endpoints.Detail == "" || id == "" {
		return ""
	}
	return strings.ReplaceAll(p.Endpoints.Detail, "{id}", url.QueryEscape(id))
}

// LoginURL appends the base64 encoded post-login target to the login page.
func (p *Profile) LoginURL() string {
	login := p.Endpoints.Login
	if login == "" || p.Endpoints.LoginRedirect == "" {
		return login
	}
	param := p.Endpoints.RedirectParam
	if param == "" {
		param = "back"
	}
	target := base64.StdEncoding.EncodeToString([]byte(p.Endpoints.LoginRedirect))
	return appendQuery(login, param, target)
}

// Absolute resolves href against the profile origin.
func (p *Profile) Absolute(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(p.Endpoints.Origin)
	if err != nil || base.Host == "" {
		return href
	}
	return base.ResolveReference(ref).String()
}

func (p *Profile) Validate() error {
	if !p.Source.Valid() {
		return fmt.Errorf("unknown marketplace source %q", p.Source)
	}
	if p.Endpoints.Search == "" {
		return fmt.Errorf("%s: %w", p.Source, ErrNoSearchURL)
	}
	if len(p.Results.Items) == 0 {
		return fmt.Errorf("%s: no result item locators", p.Source)
	}
	if len(p.Fields.Name) == 0 {
		return fmt.Errorf("%s: no name locators", p.Source)
	}
	if p.Fields.IDFromLink != "" {
		re, err := regexp.Compile(p.Fields.IDFromLink)
		if err != nil {
			return fmt.Errorf("%s: id_from_link: %w", p.Source, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: id_from_link needs a capture group", p.Source)
		}
	}
	if p.RequiresLogin && (len(p.Login.Username) == 0 || len(p.Login.Password) == 0) {
		return fmt.Errorf("%s: login required but no credential field locators", p.Source)
	}
	return nil
}

func appendQuery(raw, key, value string) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + key + "=" + value
}
