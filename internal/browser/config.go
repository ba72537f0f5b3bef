// Package browser drives Chrome through rod and exposes its pages through
// the ui port. Chrome owns the browser process; each page it opens is a Tab
// the site adapter scripts.
package browser

import (
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// Config is the browser section of the configuration file.
type Config struct {
	Bin string `yaml:"bin"`
	// DebuggerURL attaches to a Chrome the user started with
	// --remote-debugging-port. Such a browser is never closed by us.
	DebuggerURL string `yaml:"debugger_url"`
	Headless    bool   `yaml:"headless"`
	// ProfileDir keeps the Chrome profile between runs so the QR login
	// survives restarts.
	ProfileDir        string   `yaml:"profile_dir"`
	Flags             []string `yaml:"flags"`
	Viewport          Viewport `yaml:"viewport"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	Console           Console  `yaml:"console"`
}

// Viewport is the emulated window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Console selects which page console calls reach the browser log.
type Console struct {
	// Level is off, errors, warnings or all.
	Level string `yaml:"level"`
	// Throttle drops repeats of the same call type within this window.
	Throttle string `yaml:"throttle"`
}

// DefaultConfig returns the settings used against WhatsApp Web.
func DefaultConfig() Config {
	return Config{
		ProfileDir:        ".wascrape/chrome-profile",
		Viewport:          Viewport{Width: 1920, Height: 1080},
		NavigationTimeout: "30s",
		Console:           Console{Level: "warnings", Throttle: "100ms"},
	}
}

func (c Config) viewport() Viewport {
	v := c.Viewport
	if v.Width <= 0 {
		v.Width = 1920
	}
	if v.Height <= 0 {
		v.Height = 1080
	}
	return v
}

// NavigationTimeoutDuration returns the page load ceiling.
func (c Config) NavigationTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.NavigationTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c Config) consoleThrottle() time.Duration {
	d, err := time.ParseDuration(c.Console.Throttle)
	if err != nil {
		return 0
	}
	return d
}

// launcher builds the Chrome launcher. Extra flags are written as
// "--name=value" or "--name".
func (c Config) launcher() *launcher.Launcher {
	l := launcher.New().Headless(c.Headless)
	if c.Bin != "" {
		l = l.Bin(c.Bin)
	}
	if c.ProfileDir != "" {
		l = l.UserDataDir(c.ProfileDir)
	}
	for _, f := range c.Flags {
		name, val, ok := strings.Cut(strings.TrimLeft(f, "-"), "=")
		if ok {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}
