// Package config loads the scraper configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/browser"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/classify"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/stall"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/whatsapp"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = ".wascrape/config.yaml"

// Config holds all scraper configuration.
type Config struct {
	Browser  browser.Config `yaml:"browser"`
	Login    LoginConfig    `yaml:"login"`
	Contacts ContactsConfig `yaml:"contacts"`
	Chat     ChatConfig     `yaml:"chat"`
	Stall    StallConfig    `yaml:"stall"`
	Banners  stall.Banners  `yaml:"banners"`
	Locators LocatorsConfig `yaml:"locators"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`

	// MaxIterations bounds every harvesting loop. 0 = default, -1 = unbounded.
	MaxIterations int `yaml:"max_iterations"`
}

// LoginConfig configures the initial QR login wait.
type LoginConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// ContactsConfig tunes the side panel enumeration.
type ContactsConfig struct {
	InitialSpeed   int    `yaml:"initial_speed"`
	SpeedIncrement int    `yaml:"speed_increment"`
	SpeedDecrement int    `yaml:"speed_decrement"`
	SpeedFloor     int    `yaml:"speed_floor"`
	StallThreshold int    `yaml:"stall_threshold"`
	Pause          string `yaml:"pause"`
}

// ChatConfig tunes contact selection and history reveal.
type ChatConfig struct {
	RevealStep     int    `yaml:"reveal_step"`
	StallCeiling   int    `yaml:"stall_ceiling"`
	Pause          string `yaml:"pause"`
	SearchSettle   string `yaml:"search_settle"`
	ResultsTimeout string `yaml:"results_timeout"`
	SelectSettle   string `yaml:"select_settle"`
}

// StallConfig tunes the stall resolver.
type StallConfig struct {
	SyncCooldown     string `yaml:"sync_cooldown"`
	SyncPollInterval string `yaml:"sync_poll_interval"`
	SyncPollCeiling  int    `yaml:"sync_poll_ceiling"` // -1 = poll until the banner changes
	Settle           string `yaml:"settle"`
}

// LocatorsConfig groups every XPath the scraper uses.
type LocatorsConfig struct {
	Site  whatsapp.Locators `yaml:"site"`
	Stall stall.Locators    `yaml:"stall"`
	Rows  classify.Locators `yaml:"rows"`
}

// OutputConfig configures where results go.
type OutputConfig struct {
	JSONPath    string `yaml:"json_path"`
	Indent      int    `yaml:"indent"`
	ArchivePath string `yaml:"archive_path"` // empty disables the archive
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	opts := harvest.DefaultOptions()
	return &Config{
		Browser: browser.DefaultConfig(),

		Login: LoginConfig{
			URL:     whatsapp.DefaultURL,
			Timeout: "120s",
		},

		Contacts: ContactsConfig{
			InitialSpeed:   opts.Speed.Initial,
			SpeedIncrement: opts.Speed.Increment,
			SpeedDecrement: opts.Speed.Decrement,
			SpeedFloor:     opts.Speed.Floor,
			StallThreshold: opts.StallThreshold,
			Pause:          "500ms",
		},

		Chat: ChatConfig{
			RevealStep:     opts.RevealStep,
			StallCeiling:   opts.RevealStallCeiling,
			Pause:          "2s",
			SearchSettle:   "2s",
			ResultsTimeout: "10s",
			SelectSettle:   "10s",
		},

		Stall: StallConfig{
			SyncCooldown:     "10s",
			SyncPollInterval: "1s",
			SyncPollCeiling:  opts.SyncPollCeiling,
			Settle:           "5s",
		},

		Banners: stall.DefaultBanners(),

		Locators: LocatorsConfig{
			Site:  whatsapp.DefaultLocators(),
			Stall: stall.DefaultLocators(),
			Rows:  classify.DefaultLocators(),
		},

		Output: OutputConfig{
			JSONPath:    "messages.json",
			Indent:      2,
			ArchivePath: ".wascrape/archive.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    ".wascrape/logs",
		},

		MaxIterations: opts.MaxIterations,
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("WASCRAPE_OUTPUT"); path != "" {
		c.Output.JSONPath = path
	}
	// An empty WASCRAPE_ARCHIVE disables the archive.
	if path, ok := os.LookupEnv("WASCRAPE_ARCHIVE"); ok {
		c.Output.ArchivePath = path
	}
	if v := os.Getenv("WASCRAPE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if bin := os.Getenv("WASCRAPE_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if url := os.Getenv("WASCRAPE_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLoginTimeout returns the login wait as a duration.
func (c *Config) GetLoginTimeout() time.Duration {
	return parseDuration(c.Login.Timeout, 120*time.Second)
}

// GetStallSettle returns the pause after a corrective click.
func (c *Config) GetStallSettle() time.Duration {
	return parseDuration(c.Stall.Settle, 5*time.Second)
}

// HarvestOptions converts the contacts, chat and stall sections.
func (c *Config) HarvestOptions() harvest.Options {
	return harvest.Options{
		Speed: harvest.Speed{
			Initial:   c.Contacts.InitialSpeed,
			Increment: c.Contacts.SpeedIncrement,
			Decrement: c.Contacts.SpeedDecrement,
			Floor:     c.Contacts.SpeedFloor,
		},
		StallThreshold:     c.Contacts.StallThreshold,
		Pause:              parseDuration(c.Contacts.Pause, 500*time.Millisecond),
		RevealStep:         c.Chat.RevealStep,
		RevealStallCeiling: c.Chat.StallCeiling,
		RevealPause:        parseDuration(c.Chat.Pause, 2*time.Second),
		SyncCooldown:       parseDuration(c.Stall.SyncCooldown, 10*time.Second),
		SyncPollInterval:   parseDuration(c.Stall.SyncPollInterval, time.Second),
		SyncPollCeiling:    c.Stall.SyncPollCeiling,
		MaxIterations:      c.MaxIterations,
	}
}

// Timing converts the login and chat waits.
func (c *Config) Timing() whatsapp.Timing {
	return whatsapp.Timing{
		LoginTimeout:   c.GetLoginTimeout(),
		SearchSettle:   parseDuration(c.Chat.SearchSettle, 2*time.Second),
		ResultsTimeout: parseDuration(c.Chat.ResultsTimeout, 10*time.Second),
		SelectSettle:   parseDuration(c.Chat.SelectSettle, 10*time.Second),
	}
}

// StallLocators returns the stall locators with the chat pane taken from the
// site locators.
func (c *Config) StallLocators() stall.Locators {
	loc := c.Locators.Stall
	loc.ChatPane = c.Locators.Site.ChatPane
	return loc
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output.JSONPath == "" {
		return fmt.Errorf("output.json_path must be set")
	}
	if c.Output.Indent < 0 {
		return fmt.Errorf("output.indent must not be negative: %d", c.Output.Indent)
	}
	if c.Contacts.InitialSpeed > 0 && c.Contacts.SpeedFloor > c.Contacts.InitialSpeed {
		return fmt.Errorf("contacts.speed_floor (%d) exceeds contacts.initial_speed (%d)",
			c.Contacts.SpeedFloor, c.Contacts.InitialSpeed)
	}
	if c.Stall.SyncPollCeiling < harvest.Unbounded {
		return fmt.Errorf("stall.sync_poll_ceiling must be -1 (unbounded) or more: %d", c.Stall.SyncPollCeiling)
	}
	if c.MaxIterations < harvest.Unbounded {
		return fmt.Errorf("max_iterations must be -1 (unbounded) or more: %d", c.MaxIterations)
	}

	durations := []struct{ key, value string }{
		{"browser.navigation_timeout", c.Browser.NavigationTimeout},
		{"browser.console.throttle", c.Browser.Console.Throttle},
		{"login.timeout", c.Login.Timeout},
		{"contacts.pause", c.Contacts.Pause},
		{"chat.pause", c.Chat.Pause},
		{"chat.search_settle", c.Chat.SearchSettle},
		{"chat.results_timeout", c.Chat.ResultsTimeout},
		{"chat.select_settle", c.Chat.SelectSettle},
		{"stall.sync_cooldown", c.Stall.SyncCooldown},
		{"stall.sync_poll_interval", c.Stall.SyncPollInterval},
		{"stall.settle", c.Stall.Settle},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, d.value, err)
		}
	}

	required := []struct {
		key   string
		value string
	}{
		{"locators.site.chat_list", string(c.Locators.Site.ChatList)},
		{"locators.site.contact_item", string(c.Locators.Site.ContactItem)},
		{"locators.site.chat_pane", string(c.Locators.Site.ChatPane)},
		{"locators.site.rows", string(c.Locators.Site.Rows)},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must be set", r.key)
		}
	}

	return nil
}
