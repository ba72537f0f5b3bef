package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// TabInfo describes an open tab.
type TabInfo struct {
	ID       string
	TargetID string
	URL      string
	Title    string
	Opened   time.Time
	Active   time.Time
}

// Tab is one page opened by Chrome. It implements the session the site
// adapter drives.
type Tab struct {
	page       *rod.Page
	navTimeout time.Duration

	mu   sync.Mutex
	info TabInfo
}

// ID returns the tab id used in logs.
func (t *Tab) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.ID
}

// Info returns a copy of the tab metadata.
func (t *Tab) Info() TabInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

func (t *Tab) touch(update func(*TabInfo)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	update(&t.info)
	t.info.Active = time.Now()
}

// follow keeps the tab URL current and forwards console calls to the
// browser log until ctx ends or the page closes.
func (t *Tab) follow(ctx context.Context, console *consoleFilter) {
	id := t.ID()
	handlers := []interface{}{
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return
			}
			t.touch(func(i *TabInfo) { i.URL = ev.Frame.URL })
			logging.BrowserDebug("[%s] navigated to %s", id, ev.Frame.URL)
		},
	}
	if console.enabled() {
		handlers = append(handlers, func(ev *proto.RuntimeConsoleAPICalled) {
			if console.allow(ev.Type) {
				logging.BrowserDebug("[%s] console %s: %s", id, ev.Type, consoleText(ev.Args))
			}
		})
	}
	go t.page.Context(ctx).EachEvent(handlers...)()
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx).Timeout(t.navTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	if info, err := p.Info(); err == nil {
		t.touch(func(i *TabInfo) { i.URL, i.Title = info.URL, info.Title })
	}
	logging.BrowserDebug("[%s] loaded %s", t.ID(), url)
	return nil
}

// Document returns the page root bound to ctx.
func (t *Tab) Document(ctx context.Context) (ui.Node, error) {
	return &pageNode{page: t.page.Context(ctx)}, nil
}

// WaitFor blocks until loc matches. On expiry the error wraps
// context.DeadlineExceeded.
func (t *Tab) WaitFor(ctx context.Context, loc ui.Locator, timeout time.Duration) (ui.Node, error) {
	el, err := t.page.Context(ctx).Timeout(timeout).ElementX(string(loc))
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", loc, mapErr(err))
	}
	return &element{el: el.CancelTimeout()}, nil
}

// Clear selects the field's content and deletes it.
func (t *Tab) Clear(ctx context.Context, field ui.Node) error {
	e, err := asElement(field)
	if err != nil {
		return err
	}
	if err := e.withContext(ctx).SelectAllText(); err != nil {
		return mapErr(err)
	}
	return t.page.Keyboard.Type(input.Backspace)
}

// Type inserts text into the field.
func (t *Tab) Type(ctx context.Context, field ui.Node, text string) error {
	e, err := asElement(field)
	if err != nil {
		return err
	}
	return mapErr(e.withContext(ctx).Input(text))
}

// PressEnter sends the Enter key to the focused element.
func (t *Tab) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.page.Keyboard.Type(input.Enter)
}

// Screenshot captures the visible viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	return t.page.Context(ctx).Screenshot(false, nil)
}
