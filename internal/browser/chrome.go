package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
)

// ErrNotStarted is returned by OpenTab before Start succeeded.
var ErrNotStarted = errors.New("browser: not started")

// Chrome owns one browser connection and the tabs opened on it.
type Chrome struct {
	cfg Config

	mu         sync.Mutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
	tabs       []*Tab
}

// New returns an unstarted Chrome.
func New(cfg Config) *Chrome {
	return &Chrome{cfg: cfg}
}

// Start attaches to DebuggerURL when set and launches Chrome otherwise.
// Calling Start on a live connection is a no-op; a dead one is replaced.
func (c *Chrome) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		_, err := c.browser.Version()
		if err == nil {
			return nil
		}
		logging.BrowserWarn("lost connection to chrome, reconnecting: %v", err)
		_ = c.closeLocked()
	}

	controlURL := c.cfg.DebuggerURL
	if controlURL == "" {
		l := c.cfg.launcher()
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		c.launcher = l
		controlURL = u
		logging.Browser("launched chrome headless=%v profile=%s", c.cfg.Headless, c.cfg.ProfileDir)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if c.launcher != nil {
			c.launcher.Cleanup()
			c.launcher = nil
		}
		return fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = b
	c.controlURL = controlURL
	logging.Browser("connected to %s", controlURL)
	return nil
}

// ControlURL returns the DevTools WebSocket URL of the connection.
func (c *Chrome) ControlURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlURL
}

// OpenTab opens a blank page in the default browser context, so it shares
// the persistent profile and its WhatsApp login.
func (c *Chrome) OpenTab(ctx context.Context) (*Tab, error) {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		return nil, ErrNotStarted
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	vp := c.cfg.viewport()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		logging.BrowserWarn("set viewport %dx%d: %v", vp.Width, vp.Height, err)
	}

	now := time.Now()
	tab := &Tab{
		page:       page,
		navTimeout: c.cfg.NavigationTimeoutDuration(),
		info: TabInfo{
			ID:       uuid.NewString(),
			TargetID: string(page.TargetID),
			Opened:   now,
			Active:   now,
		},
	}
	tab.follow(ctx, newConsoleFilter(c.cfg.Console))

	c.mu.Lock()
	c.tabs = append(c.tabs, tab)
	c.mu.Unlock()
	logging.BrowserDebug("[%s] opened tab %s", tab.info.ID, tab.info.TargetID)
	return tab, nil
}

// Tabs returns the metadata of every tab opened so far.
func (c *Chrome) Tabs() []TabInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TabInfo, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, t.Info())
	}
	return out
}

// Close closes the tabs we opened. A launched browser is shut down; an
// attached one keeps running.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Chrome) closeLocked() error {
	for _, t := range c.tabs {
		_ = t.page.Close()
	}
	c.tabs = nil

	var err error
	if c.browser != nil && c.launcher != nil {
		err = c.browser.Close()
		c.launcher.Cleanup()
	}
	c.browser, c.launcher, c.controlURL = nil, nil, ""
	logging.Browser("browser closed")
	return err
}
