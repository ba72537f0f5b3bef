// Package whatsapp adapts the harvesting core to the WhatsApp web client:
// the XPaths of its side panel and chat pane, the private-chat rule, login
// detection and contact search.
package whatsapp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// DefaultURL is the web client entry point.
const DefaultURL = "https://web.whatsapp.com/"

// Locators are the client XPaths. Relative locators start with ".".
type Locators struct {
	SidePanel    ui.Locator `yaml:"side_panel"`
	ChatList     ui.Locator `yaml:"chat_list"`
	RowCountAttr string     `yaml:"row_count_attr"`
	ContactItem  ui.Locator `yaml:"contact_item"`
	ContactName  ui.Locator `yaml:"contact_name"`

	PreviewBox   ui.Locator `yaml:"preview_box"`
	Photo        ui.Locator `yaml:"photo"`
	PreviewText  ui.Locator `yaml:"preview_text"`
	SenderPrefix ui.Locator `yaml:"sender_prefix"`
	GroupIcon    ui.Locator `yaml:"group_icon"`
	// GroupTitleMarkers are substrings of preview span titles that only
	// group chats show, such as "changed to +" notices.
	GroupTitleMarkers []string `yaml:"group_title_markers"`

	SearchBox     ui.Locator `yaml:"search_box"`
	SearchResults ui.Locator `yaml:"search_results"`
	ResultItem    ui.Locator `yaml:"result_item"`
	ResultName    ui.Locator `yaml:"result_name"`

	ChatPane      ui.Locator `yaml:"chat_pane"`
	RowsContainer ui.Locator `yaml:"rows_container"`
	Rows          ui.Locator `yaml:"rows"`
}

// DefaultLocators match the current web client markup.
func DefaultLocators() Locators {
	return Locators{
		SidePanel:    `//*[@id="pane-side"]`,
		ChatList:     `//div[@aria-label="Chat list" and @role="grid"]`,
		RowCountAttr: "aria-rowcount",
		ContactItem:  `//div[contains(@class, "x10l6tqk xh8yej3 x1g42fcv")]`,
		ContactName:  `.//span[@title]`,

		PreviewBox:        `.//div[@class="_ak8k"]`,
		Photo:             `.//div[@class="_ak8n"]`,
		PreviewText:       `.//span[@dir="auto"]`,
		SenderPrefix:      `.//span[@class="x1rg5ohu _ao3e"]`,
		GroupIcon:         `.//span[@data-icon="default-group"]`,
		GroupTitleMarkers: []string{"Group", "group", " changed to +"},

		SearchBox:     `//div[@contenteditable="true" and @role="textbox" and @data-tab="3"]`,
		SearchResults: `//div[@aria-label="Search results."]`,
		ResultItem:    `.//div[@class="x10l6tqk xh8yej3 x1g42fcv" and @role="listitem"]`,
		ResultName:    `.//span[@dir="auto" and @title]`,

		ChatPane:      `//div[@class="x10l6tqk x13vifvy x17qophe xyw6214 x9f619 x78zum5 xdt5ytf xh8yej3 x5yr21d x6ikm8r x1rife3k xjbqb8w x1ewm37j" and @tabindex="0"]`,
		RowsContainer: `//div[@class="x3psx0u xwib8y2 xkhd6sd xrmvbpv"]`,
		Rows:          `.//div[@tabindex="-1" and @role="row"]`,
	}
}

// IsPrivateChat reports whether a side panel item is a one-to-one chat.
// Groups show a sender prefix before their last message preview; without a
// preview they are recognised by the group avatar or a group notice title.
func (l Locators) IsPrivateChat(item ui.Node) (bool, error) {
	preview, err := item.Find(l.PreviewBox)
	if err != nil {
		return false, fmt.Errorf("preview box: %w", err)
	}

	if span, err := preview.Find(l.PreviewText); err == nil {
		text, err := span.Text()
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(text) == "" {
			return true, nil
		}
		return !ui.Has(preview, l.SenderPrefix), nil
	} else if ui.IsStale(err) {
		return false, err
	}

	if photo, err := item.Find(l.Photo); err == nil && ui.Has(photo, l.GroupIcon) {
		return false, nil
	}
	for _, marker := range l.GroupTitleMarkers {
		if ui.Has(preview, titleContains(marker)) {
			return false, nil
		}
	}
	return true, nil
}

func titleContains(s string) ui.Locator {
	return ui.Locator(fmt.Sprintf(`.//span[contains(@title, "%s")]`, s))
}

var translateY = regexp.MustCompile(`translateY\((\d+)px\)`)

// ContactRank reads the virtualization offset from an item's inline style.
// Items without one are reported with ok=false.
func ContactRank(item ui.Node) (int, bool, error) {
	style, ok, err := item.Attribute("style")
	if err != nil || !ok {
		return 0, false, err
	}
	m := translateY.FindStringSubmatch(style)
	if m == nil {
		return 0, false, nil
	}
	rank, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, nil
	}
	return rank, true, nil
}

// NameOf returns the display name of a side panel item.
func (l Locators) NameOf(item ui.Node) (string, error) {
	return ui.FindAttribute(item, l.ContactName, "title")
}

// StripNonBMP drops code points outside the Basic Multilingual Plane, which
// the browser driver cannot type.
func StripNonBMP(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return -1
		}
		return r
	}, s)
}
