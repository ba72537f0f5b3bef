// Package classify maps one visible conversation row to a MessageRecord.
//
// Classification is a fixed sequence of independent rules. Each rule reads
// only the row and contributes to one part of the record; a rule that cannot
// find what it expects leaves its fields at their zero value and reports a
// miss. Classify therefore always yields a record.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

const (
	// UnknownTime is used when a media-only row carries no time label.
	UnknownTime = "Unknown time"
	// nullContent marks the absent text payload in a synthesized header.
	nullContent = "None"
)

// Locators are the row-relative XPaths the rules look for.
type Locators struct {
	ReplyBlock     ui.Locator `yaml:"reply_block"`
	ReplySender    ui.Locator `yaml:"reply_sender"`
	ReplyText      ui.Locator `yaml:"reply_text"`
	ReplyImageIcon ui.Locator `yaml:"reply_image_icon"`
	ReplyVideoIcon ui.Locator `yaml:"reply_video_icon"`

	TextPayload ui.Locator `yaml:"text_payload"`
	HeaderAttr  string     `yaml:"header_attr"`
	TextSpan    ui.Locator `yaml:"text_span"`

	MediaInfo   ui.Locator `yaml:"media_info"`
	MediaSender ui.Locator `yaml:"media_sender"`
	SenderAttr  string     `yaml:"sender_attr"`
	MediaTime   ui.Locator `yaml:"media_time"`

	DownloadIcon ui.Locator `yaml:"download_icon"`
	OpenPicture  ui.Locator `yaml:"open_picture"`
	StickerLabel ui.Locator `yaml:"sticker_label"`
	VideoIcon    ui.Locator `yaml:"video_icon"`
}

// DefaultLocators match the current web client markup.
func DefaultLocators() Locators {
	return Locators{
		ReplyBlock:     `.//div[@class="_ahy0"]`,
		ReplySender:    `.//span[@dir="auto" and contains(@class, "_ao3e")]`,
		ReplyText:      `.//span[@dir="auto" and @class="quoted-mention _ao3e"]`,
		ReplyImageIcon: `.//span[@data-icon="status-image"]`,
		ReplyVideoIcon: `.//span[@data-icon="status-video"]`,

		TextPayload: `.//div[@class="copyable-text"]`,
		HeaderAttr:  "data-pre-plain-text",
		TextSpan:    `.//span[@class="_ao3e selectable-text copyable-text"]/span`,

		MediaInfo:   `.//div[@class="_amk6 _amlo"]`,
		MediaSender: `./span`,
		SenderAttr:  "aria-label",
		MediaTime:   `.//span[@class="x1rg5ohu x16dsc37" and @dir="auto"]`,

		DownloadIcon: `.//span[@data-icon="media-download"]`,
		OpenPicture:  `.//div[@aria-label="Open picture"]`,
		StickerLabel: `.//div[contains(@label, "Sticker")]`,
		VideoIcon:    `.//span[@data-icon="msg-video"]`,
	}
}

// Rule contributes to a record from one row.
type Rule struct {
	Name  string
	Apply func(row ui.Node, rec *types.MessageRecord) error
}

// Classifier applies its rules in order.
type Classifier struct {
	rules []Rule
}

// New returns a classifier with the standard reply, body and media rules.
func New(loc Locators) *Classifier {
	return newWithRules(
		Rule{Name: "reply", Apply: replyRule(loc)},
		Rule{Name: "body", Apply: bodyRule(loc)},
		Rule{Name: "media", Apply: mediaRule(loc)},
	)
}

// newWithRules returns a classifier running exactly the given rules.
func newWithRules(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify runs every rule against row. The record is always usable; the
// error joins the misses of rules that could only partially fill it.
func (c *Classifier) Classify(row ui.Node) (types.MessageRecord, error) {
	var rec types.MessageRecord
	var errs []error
	for _, r := range c.rules {
		if err := r.Apply(row, &rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
		}
	}
	return rec, errors.Join(errs...)
}

// replyRule fills Reply when the row quotes another message. The quoted
// sender is required once the quote block is present.
func replyRule(loc Locators) func(ui.Node, *types.MessageRecord) error {
	return func(row ui.Node, rec *types.MessageRecord) error {
		block, err := row.Find(loc.ReplyBlock)
		if err != nil {
			return nil
		}
		sender, err := ui.FindText(block, loc.ReplySender)
		if err != nil {
			return fmt.Errorf("quote block without sender: %w", err)
		}
		reply := &types.Reply{Sender: sender}
		if text, err := ui.FindText(block, loc.ReplyText); err == nil {
			reply.QuotedText = text
		}
		reply.IsMedia = ui.Has(block, loc.ReplyImageIcon) || ui.Has(block, loc.ReplyVideoIcon)
		rec.Reply = reply
		return nil
	}
}

// bodyRule fills Header and Text. Rows with a text payload carry their own
// header; media-only rows get one synthesized from sender and time labels.
func bodyRule(loc Locators) func(ui.Node, *types.MessageRecord) error {
	return func(row ui.Node, rec *types.MessageRecord) error {
		if payload, err := row.Find(loc.TextPayload); err == nil {
			header, _, err := payload.Attribute(loc.HeaderAttr)
			if err != nil {
				return fmt.Errorf("read header: %w", err)
			}
			rec.Header = header
			// Media with caption layouts may lack the span; that is an empty body, not a miss.
			if text, err := ui.FindText(row, loc.TextSpan); err == nil {
				rec.Text = text
			}
			return nil
		}

		info, err := row.Find(loc.MediaInfo)
		if err != nil {
			return nil
		}
		sender, err := ui.FindAttribute(info, loc.MediaSender, loc.SenderAttr)
		if err != nil {
			return fmt.Errorf("media row without sender label: %w", err)
		}
		when := UnknownTime
		if t, err := ui.FindText(info, loc.MediaTime); err == nil && strings.TrimSpace(t) != "" {
			when = t
		}
		rec.Header = fmt.Sprintf("[%s, %s] %s:", when, nullContent, sender)
		return nil
	}
}

type mediaDetector struct {
	kind  types.MediaKind
	match func(row ui.Node) bool
}

// mediaRule sets Media from the first matching detector.
func mediaRule(loc Locators) func(ui.Node, *types.MessageRecord) error {
	has := func(l ui.Locator) func(ui.Node) bool {
		return func(row ui.Node) bool { return ui.Has(row, l) }
	}
	both := func(a, b ui.Locator) func(ui.Node) bool {
		return func(row ui.Node) bool { return ui.Has(row, a) && ui.Has(row, b) }
	}
	detectors := []mediaDetector{
		{kind: types.MediaImage, match: both(loc.DownloadIcon, loc.OpenPicture)},
		{kind: types.MediaSticker, match: has(loc.DownloadIcon)},
		{kind: types.MediaImage, match: has(loc.OpenPicture)},
		{kind: types.MediaSticker, match: has(loc.StickerLabel)},
		{kind: types.MediaVideo, match: has(loc.VideoIcon)},
	}
	return func(row ui.Node, rec *types.MessageRecord) error {
		for _, d := range detectors {
			if d.match(row) {
				rec.Media = d.kind
				return nil
			}
		}
		rec.Media = types.MediaNone
		return nil
	}
}
