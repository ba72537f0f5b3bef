package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

var (
	// ErrLoginTimeout is returned when the chat list did not appear in time.
	ErrLoginTimeout = errors.New("whatsapp: login not confirmed in time")
	// ErrContactNotFound is returned when a search did not offer the contact.
	ErrContactNotFound = errors.New("whatsapp: contact not found")
)

// Session is the browser tab the client drives.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Document returns the root of the current page.
	Document(ctx context.Context) (ui.Node, error)
	// WaitFor blocks until loc matches or timeout passes. Expiry wraps
	// context.DeadlineExceeded.
	WaitFor(ctx context.Context, loc ui.Locator, timeout time.Duration) (ui.Node, error)
	// Clear empties an editable field.
	Clear(ctx context.Context, field ui.Node) error
	// Type enters text into an editable field.
	Type(ctx context.Context, field ui.Node, text string) error
	PressEnter(ctx context.Context) error
}

// Timing holds the waits around client interactions.
type Timing struct {
	LoginTimeout   time.Duration
	SearchSettle   time.Duration
	ResultsTimeout time.Duration
	SelectSettle   time.Duration
}

// DefaultTiming returns the waits used against the live client.
func DefaultTiming() Timing {
	return Timing{
		LoginTimeout:   120 * time.Second,
		SearchSettle:   2 * time.Second,
		ResultsTimeout: 10 * time.Second,
		SelectSettle:   10 * time.Second,
	}
}

// Client drives one logged-in web client tab.
type Client struct {
	session Session
	loc     Locators
	timing  Timing
	clock   clock.Clock
}

// NewClient returns a client on session. A nil clock sleeps on the wall clock.
func NewClient(s Session, loc Locators, t Timing, c clock.Clock) *Client {
	if c == nil {
		c = clock.Real{}
	}
	return &Client{session: s, loc: loc, timing: t, clock: c}
}

// Locators returns the client's locators.
func (c *Client) Locators() Locators {
	return c.loc
}

// WaitForLogin opens url and waits for the chat list, which only renders
// once the user has scanned the QR code.
func (c *Client) WaitForLogin(ctx context.Context, url string) error {
	if err := c.session.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	logging.Session("waiting up to %s for login", c.timing.LoginTimeout)
	if _, err := c.session.WaitFor(ctx, c.loc.ChatList, c.timing.LoginTimeout); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrLoginTimeout, c.timing.LoginTimeout)
		}
		return fmt.Errorf("wait for chat list: %w", err)
	}
	logging.Session("login confirmed")
	return nil
}

// ChatCount reads the total number of chats from the chat list grid.
func (c *Client) ChatCount(ctx context.Context) (int, error) {
	doc, err := c.session.Document(ctx)
	if err != nil {
		return 0, err
	}
	return ChatCount(doc, c.loc)
}

// ChatCount reads the row count marker of the virtualized chat list under doc.
func ChatCount(doc ui.Node, loc Locators) (int, error) {
	raw, err := ui.FindAttribute(doc, loc.ChatList, loc.RowCountAttr)
	if err != nil {
		return 0, fmt.Errorf("chat list marker: %w: %w", harvest.ErrPrecondition, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("chat list marker %q: %w", raw, harvest.ErrPrecondition)
	}
	return n, nil
}

// ContactSource describes the side panel for harvest.Enumerate.
func (c *Client) ContactSource() harvest.Source[string] {
	return harvest.Source[string]{
		Items:    c.loc.ContactItem,
		Rank:     ContactRank,
		Identity: c.loc.NameOf,
		Relevant: c.loc.IsPrivateChat,
	}
}

// Contacts enumerates the names of every private chat in the side panel.
func (c *Client) Contacts(ctx context.Context, h *harvest.Harvester) ([]string, error) {
	doc, err := c.session.Document(ctx)
	if err != nil {
		return nil, err
	}
	total, err := ChatCount(doc, c.loc)
	if err != nil {
		return nil, err
	}
	logging.Session("chat list reports %d chats", total)

	panel, err := scrollable(doc, c.loc.SidePanel)
	if err != nil {
		return nil, err
	}
	return harvest.Enumerate(ctx, h, doc, panel, c.ContactSource())
}

// SelectContact searches for name and opens the matching chat. Names are
// compared with non-BMP characters removed on both sides.
func (c *Client) SelectContact(ctx context.Context, name string) error {
	doc, err := c.session.Document(ctx)
	if err != nil {
		return err
	}
	box, err := doc.Find(c.loc.SearchBox)
	if err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := box.Click(); err != nil {
		return fmt.Errorf("focus search box: %w", err)
	}
	if err := c.session.Clear(ctx, box); err != nil {
		return fmt.Errorf("clear search box: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.timing.SearchSettle); err != nil {
		return err
	}
	want := StripNonBMP(name)
	if err := c.session.Type(ctx, box, want); err != nil {
		return fmt.Errorf("type search: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.timing.SearchSettle); err != nil {
		return err
	}
	if err := c.session.PressEnter(ctx); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}

	results, err := c.session.WaitFor(ctx, c.loc.SearchResults, c.timing.ResultsTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %q: no search results: %v", ErrContactNotFound, name, err)
	}
	items, err := results.FindAll(c.loc.ResultItem)
	if err != nil {
		return fmt.Errorf("search results: %w", err)
	}
	for _, item := range items {
		title, err := ui.FindAttribute(item, c.loc.ResultName, "title")
		if err != nil || StripNonBMP(title) != want {
			continue
		}
		if err := item.Click(); err != nil {
			return fmt.Errorf("open chat %q: %w", name, err)
		}
		logging.SessionDebug("opened chat %q, settling %s", name, c.timing.SelectSettle)
		return c.clock.Sleep(ctx, c.timing.SelectSettle)
	}
	return fmt.Errorf("%w: %q among %d results", ErrContactNotFound, name, len(items))
}

// ChatPane returns the scrollable pane of the open chat.
func (c *Client) ChatPane(ctx context.Context) (ui.Scrollable, error) {
	doc, err := c.session.Document(ctx)
	if err != nil {
		return nil, err
	}
	return scrollable(doc, c.loc.ChatPane)
}

// Rows returns the conversation rows currently in the open chat.
func (c *Client) Rows(ctx context.Context) ([]ui.Node, error) {
	doc, err := c.session.Document(ctx)
	if err != nil {
		return nil, err
	}
	container, err := doc.Find(c.loc.RowsContainer)
	if err != nil {
		return nil, fmt.Errorf("message rows: %w: %w", harvest.ErrPrecondition, err)
	}
	return container.FindAll(c.loc.Rows)
}

// Document returns the current page root.
func (c *Client) Document(ctx context.Context) (ui.Node, error) {
	return c.session.Document(ctx)
}

func scrollable(doc ui.Node, loc ui.Locator) (ui.Scrollable, error) {
	n, err := doc.Find(loc)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w: %w", loc, harvest.ErrPrecondition, err)
	}
	s, err := ui.AsScrollable(n)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w: %w", loc, harvest.ErrPrecondition, err)
	}
	return s, nil
}
