package marketplace

import (
	"github.com/maltedev/domeme-scraper/internal/dom"
	"github.com/maltedev/domeme-scraper/internal/models"
)

// Domeggook is the wholesale marketplace profile. Its search lives on
// domemedb, and the staging list on the speedgo application.
func Domeggook() *Profile {
	return &Profile{
		Source:        models.SourceDomeggook,
		Version:       "2024.12",
		RequiresLogin: true,
		Endpoints: Endpoints{
			Origin:        "https://domemedb.domeggook.com",
			Home:          "https://domemedb.domeggook.com/index/?mainChannel=aihome",
			Login:         "https://domeggook.com/ssl/member/mem_loginForm.php",
			LoginRedirect: "https://domemedb.domeggook.com/index",
			RedirectParam: "back",
			Search:        "https://domemedb.domeggook.com/index/item/supplyList.php?sf=subject&enc=utf8&fromOversea=0&mode=search&sw={keyword}",
			PageParam:     "page",
			Detail:        "https://domemedb.domeggook.com/index/item/itemView.php?itemNo={id}",
			SecondApp:     "https://speedgo.domeggook.com/",
			StagingList:   "https://speedgo.domeggook.com/mybox/mb_saveList.php",
		},
		Results: ResultLocators{
			Ready: dom.Candidates{".sub_cont_bane1", ".sub_cont_bane1_SetListGallery", "[class*='item']"},
			Items: dom.Candidates{".sub_cont_bane1", ".sub_cont_bane1_SetListGallery"},
		},
		Pagination: PaginationLocators{
			Next:        dom.Candidates{"a[onclick*='next']", ".pagination a.next", "a.paging_next", "a:has-text('다음')"},
			PageNumbers: dom.Candidates{".pagination a", ".paging a"},
			CurrentPage: dom.Candidates{".pagination .active", ".paging .current", "a[class*='current']"},
			PageLinks:   dom.Candidates{"a[href*='page=']"},
		},
		Form: FormLocators{
			Input:  dom.Candidates{"input[name='sw']", "input[name='keyword']", "input[name='search']", "#searchKeyword"},
			Submit: dom.Candidates{"button[type='submit']", "button.btn-search", "#searchBtn"},
		},
		Fields: FieldLocators{
			ID:            dom.Candidates{"input[name='item[]']"},
			IDText:        dom.Candidates{"span.txt8"},
			IDMinDigits:   6,
			Name:          dom.Candidates{".itemName", ".main_cont_text1.b"},
			Price:         dom.Candidates{".main_cont_text1.priceLg", ".priceLg"},
			PriceEmphasis: "strong",
			PriceSuffix:   "원",
			Image:         dom.Candidates{".bane_brd1 img"},
			ImageMarkers:  []string{"domeggook.com", "upload/item"},
			Seller:        dom.Candidates{"a[onclick*='supplyList']"},
			Grade:         dom.Candidates{".main_cont_text3"},
			GradeMarker:   "등급",
			FastDelivery:  dom.Candidates{".main_cont_bu9"},
		},
		Login: LoginLocators{
			Username: dom.Candidates{
				"input[name='user_id']", "input[name='id']", "input[name='username']",
				"input[name='mem_id']", "#user_id", "#id", "#mem_id",
			},
			Password: dom.Candidates{
				"input[name='password']", "input[name='pwd']", "input[type='password']", "#password", "#pwd",
			},
			Submit: dom.Candidates{
				"button[type='submit']", "input[type='submit']", "button.btn-login", "#loginBtn",
			},
			AccountLinks: dom.Candidates{
				"a[href*='logout']", "a[href*='mypage']", "[class*='logout']", "[class*='mypage']",
			},
			Errors: dom.Candidates{
				".error", ".alert", "[class*='error']", "[class*='alert']", "[class*='fail']", "[class*='warning']", ".msg-error",
			},
			LoginMarker:      "login",
			PostLoginMarkers: []string{"domemedb", "mainChannel"},
		},
		Staging: StagingLocators{
			ItemCheckbox: dom.Candidates{
				"input[type='checkbox'][value='{id}']",
				"input[type='checkbox'][name='item[]'][value='{id}']",
				"input[type='checkbox'][id='{id}']",
				"#input_check3_{id}",
			},
			AnyItemCheckbox: dom.Candidates{"input[type='checkbox'][name='item[]']"},
			Save:            dom.Candidates{"button[onclick*='hashTagAdd']"},
			SaveBinding:     dom.Binding{Attribute: "onclick", Require: []string{"hashTagAdd"}, Forbid: []string{"itemSave"}},
			StagingLink:     dom.Candidates{"a[href*='mybox/mb_saveList.php']"},
			SelectAll: dom.Candidates{
				"#selectAll", "input[name='selectAll']", "input.checkbox1#selectAll", "input[type='checkbox'][id='selectAll']",
			},
			Transfer:        dom.Candidates{"button[onclick*='speedGoSend']"},
			TransferBinding: dom.Binding{Attribute: "onclick", Require: []string{"speedGoSend"}},
			PopupOverlay:    dom.Candidates{"div[style*='background:#2c303b']", "iframe[id*='layui-layer-iframe']", ".layui-layer"},
			PopupForm:       dom.Candidates{"#mkForm"},
			PopupText:       TextProbe{Scope: dom.Candidates{".layui-layer-title", ".layui-layer"}, Contains: "스피드고"},
			PopupFrame: dom.Candidates{
				"iframe[id*='layui-layer-iframe']", "iframe[name*='layui-layer-iframe']", "iframe[src*='popup_setBulkProduct']", "iframe",
			},
			FrameBindings: []dom.Binding{
				{Attribute: "src", Require: []string{"popup_setBulkProduct"}},
				{Attribute: "id", Require: []string{"layui-layer-iframe"}},
			},
			Confirm: dom.Candidates{
				"//*[@id='mkForm']/div/div[3]/div[11]/button[1]",
				"#mkForm button[onclick*='goProduct']",
				"button[onclick*='goProduct']",
				"//button[contains(@onclick, 'goProduct')]",
				"//button[contains(text(), '스피드고')]",
			},
		},
	}
}
