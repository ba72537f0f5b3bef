// Package stall diagnoses why scrolling a chat toward its first message
// stopped making progress, and performs the corrective click when one is
// available.
package stall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// Diagnosis is the reason a chat stopped scrolling.
type Diagnosis int

const (
	Unknown Diagnosis = iota
	StillSyncing
	ManualTriggerNeeded
	TopReached
	PausedAlert
)

func (d Diagnosis) String() string {
	switch d {
	case StillSyncing:
		return "still_syncing"
	case ManualTriggerNeeded:
		return "manual_trigger_needed"
	case TopReached:
		return "top_reached"
	case PausedAlert:
		return "paused_alert"
	default:
		return "unknown"
	}
}

// Banners are the informational texts the client shows above the oldest
// loaded message. They are matched by substring so surrounding whitespace
// and trailing punctuation do not matter.
type Banners struct {
	Syncing       string `yaml:"syncing"`
	ManualTrigger string `yaml:"manual_trigger"`
	TopReached    string `yaml:"top_reached"`
}

// DefaultBanners returns the English client texts.
func DefaultBanners() Banners {
	return Banners{
		Syncing:       "Syncing older messages. Click to see progress.",
		ManualTrigger: "Click here to get older messages from your phone.",
		TopReached:    "Use WhatsApp on your phone to see older messages.",
	}
}

// Locators find the chat pane and its stall markers. ChatPane is shared with
// the site locators and set from them.
type Locators struct {
	ChatPane      ui.Locator `yaml:"-"`
	Banner        ui.Locator `yaml:"banner"`
	TriggerButton ui.Locator `yaml:"trigger_button"`
	PauseIcon     ui.Locator `yaml:"pause_icon"`
	PauseButton   ui.Locator `yaml:"pause_button"`
}

// DefaultLocators match the current web client markup.
func DefaultLocators() Locators {
	return Locators{
		ChatPane:      `//div[@class="x10l6tqk x13vifvy x17qophe xyw6214 x9f619 x78zum5 xdt5ytf xh8yej3 x5yr21d x6ikm8r x1rife3k xjbqb8w x1ewm37j" and @tabindex="0"]`,
		Banner:        `.//div[@class="x78zum5 x6s0dn4 x1r0jzty x17zd0t2"]`,
		TriggerButton: `.//button[@class="x14m1o6m x126m2zf x1b9z3ur x9f619 x1rg5ohu x1okw0bk x193iq5w x123j3cw xn6708d x10b6aqq x1ye3gou x13a8xbf xdod15v x2b8uid x1lq5wgf xgqcy7u x30kzoy x9jhf4c"]`,
		PauseIcon:     `.//span[@data-icon="alert-sync-paused"]`,
		PauseButton:   `.//button[contains(@class, "x14m1o6m")]`,
	}
}

// Resolver inspects the chat pane each time it is consulted. The pane is
// looked up again on every call because the client re-renders it while
// history loads.
type Resolver struct {
	root    ui.Node
	loc     Locators
	banners Banners
	clock   clock.Clock
	settle  time.Duration
}

// NewResolver returns a resolver reading the chat pane under root. settle is
// the pause after a corrective click.
func NewResolver(root ui.Node, loc Locators, banners Banners, c clock.Clock, settle time.Duration) *Resolver {
	if c == nil {
		c = clock.Real{}
	}
	return &Resolver{root: root, loc: loc, banners: banners, clock: c, settle: settle}
}

// Diagnose classifies the current stall without acting on it.
func (r *Resolver) Diagnose() (Diagnosis, error) {
	pane, err := r.root.Find(r.loc.ChatPane)
	if err != nil {
		return Unknown, fmt.Errorf("find chat pane: %w", err)
	}
	if text, err := ui.FindText(pane, r.loc.Banner); err == nil {
		if d, ok := r.matchBanner(text); ok {
			return d, nil
		}
	}
	if ui.Has(pane, r.loc.PauseIcon) {
		return PausedAlert, nil
	}
	return Unknown, nil
}

func (r *Resolver) matchBanner(text string) (Diagnosis, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown, false
	}
	switch {
	case r.banners.Syncing != "" && strings.Contains(text, r.banners.Syncing):
		return StillSyncing, true
	case r.banners.ManualTrigger != "" && strings.Contains(text, r.banners.ManualTrigger):
		return ManualTriggerNeeded, true
	case r.banners.TopReached != "" && strings.Contains(text, r.banners.TopReached):
		return TopReached, true
	}
	return Unknown, false
}

// Resolve diagnoses the stall and, for the two recoverable diagnoses, clicks
// the matching control and waits for the pane to settle. StillSyncing is
// returned untouched; waiting it out is the caller's job.
func (r *Resolver) Resolve(ctx context.Context) (Diagnosis, error) {
	d, err := r.Diagnose()
	if err != nil {
		return d, err
	}
	logging.StallDebug("diagnosis: %s", d)

	var button ui.Locator
	switch d {
	case ManualTriggerNeeded:
		button = r.loc.TriggerButton
	case PausedAlert:
		button = r.loc.PauseButton
	default:
		return d, nil
	}

	if err := r.click(button); err != nil {
		return d, fmt.Errorf("resolve %s: %w", d, err)
	}
	logging.Stall("clicked %s control, settling %s", d, r.settle)
	return d, r.clock.Sleep(ctx, r.settle)
}

func (r *Resolver) click(button ui.Locator) error {
	pane, err := r.root.Find(r.loc.ChatPane)
	if err != nil {
		return err
	}
	btn, err := pane.Find(button)
	if err != nil {
		return err
	}
	return btn.Click()
}
