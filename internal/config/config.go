package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EVENTFEED_LISTEN.
const EnvPrefix = "EVENTFEED"

const (
	DefaultListen       = "127.0.0.1:3000"
	DefaultTimezone     = "Europe/London"
	DefaultSourceURL    = "http://www.canterbury.co.uk/events/thedms.aspx?dms=12&msg="
	DefaultSchema       = "legacy"
	DefaultBudget       = 60 * time.Second
	DefaultNavTimeout   = 30 * time.Second
	DefaultFreshness    = 24 * time.Hour
	DefaultCheck        = "*/5 * * * *"
	DefaultFeedDir      = "/var/lib/eventfeed"
	DefaultCalendarName = "Canterbury Events"
)

// SelectorConfig overrides individual CSS selectors. Empty fields keep the
// built-in value.
type SelectorConfig struct {
	Row         string `yaml:"row,omitempty" json:"row,omitempty"`
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Address     string `yaml:"address,omitempty" json:"address,omitempty"`
	ExtraInfo   string `yaml:"extra_info,omitempty" json:"extra_info,omitempty"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Date        string `yaml:"date,omitempty" json:"date,omitempty"`
	DateText    string `yaml:"date_text,omitempty" json:"date_text,omitempty"`
	TimeText    string `yaml:"time_text,omitempty" json:"time_text,omitempty"`
	Spinner     string `yaml:"spinner,omitempty" json:"spinner,omitempty"`
	Next        string `yaml:"next,omitempty" json:"next,omitempty"`
}

// SourceConfig describes the listing site.
type SourceConfig struct {
	// URL is the first listing page.
	URL string `yaml:"url" json:"url" envconfig:"URL" validate:"required,url"`

	// Schema selects the markup variant: "legacy" or "current".
	Schema string `yaml:"schema" json:"schema" envconfig:"SCHEMA" validate:"oneof=legacy current"`

	// StrictWeekday rejects dates whose weekday token disagrees with the
	// calendar.
	StrictWeekday bool `yaml:"strict_weekday" json:"strict_weekday" envconfig:"STRICT_WEEKDAY"`

	// TimeSeparator overrides the schema's start/end separator when set.
	TimeSeparator string `yaml:"time_separator,omitempty" json:"time_separator,omitempty" envconfig:"TIME_SEPARATOR"`

	// URLPrefix overrides the schema's URL prefix when set; an empty string
	// disables prefixing.
	URLPrefix *string `yaml:"url_prefix,omitempty" json:"url_prefix,omitempty" envconfig:"URL_PREFIX"`

	Selectors SelectorConfig `yaml:"selectors,omitempty" json:"selectors,omitempty" ignored:"true"`
}

type ScrapeConfig struct {
	// Budget is the wall-clock limit for one run, checked between pages.
	Budget time.Duration `yaml:"budget" json:"budget" envconfig:"BUDGET" validate:"gte=0"`

	// NavTimeout bounds each navigation and element wait.
	NavTimeout time.Duration `yaml:"nav_timeout" json:"nav_timeout" envconfig:"NAV_TIMEOUT" validate:"gt=0"`

	// ChromePath points at a Chrome/Chromium binary. Empty lets chromedp
	// search the usual locations.
	ChromePath string `yaml:"chrome_path,omitempty" json:"chrome_path,omitempty" envconfig:"CHROME_PATH"`
}

type FeedConfig struct {
	Dir          string `yaml:"dir" json:"dir" envconfig:"DIR" validate:"required"`
	CalendarName string `yaml:"calendar_name" json:"calendar_name" envconfig:"CALENDAR_NAME"`
}

type RefreshConfig struct {
	// Freshness is how old the feed may get before a refresh is started.
	Freshness time.Duration `yaml:"freshness" json:"freshness" envconfig:"FRESHNESS" validate:"gt=0"`

	// Check is the cron spec of the staleness check.
	Check string `yaml:"check" json:"check" envconfig:"CHECK" validate:"required"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" json:"password" envconfig:"PASSWORD"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" envconfig:"LISTEN" validate:"required,hostname_port"`

	// Timezone is the IANA zone the listing's wall-clock times belong to.
	Timezone string `yaml:"timezone" json:"timezone" envconfig:"TIMEZONE" validate:"required"`

	// StaticDir, when set, is served under "/".
	StaticDir string `yaml:"static_dir,omitempty" json:"static_dir,omitempty" envconfig:"STATIC_DIR"`

	Source  SourceConfig  `yaml:"source" json:"source" envconfig:"SOURCE"`
	Scrape  ScrapeConfig  `yaml:"scrape" json:"scrape" envconfig:"SCRAPE"`
	Feed    FeedConfig    `yaml:"feed" json:"feed" envconfig:"FEED"`
	Refresh RefreshConfig `yaml:"refresh" json:"refresh" envconfig:"REFRESH"`

	// BasicAuth, if set with both fields, enables HTTP Basic Authentication
	// on all endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" envconfig:"BASIC_AUTH"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   DefaultListen,
		Timezone: DefaultTimezone,
		Source: SourceConfig{
			URL:    DefaultSourceURL,
			Schema: DefaultSchema,
		},
		Scrape: ScrapeConfig{
			Budget:     DefaultBudget,
			NavTimeout: DefaultNavTimeout,
		},
		Feed: FeedConfig{
			Dir:          DefaultFeedDir,
			CalendarName: DefaultCalendarName,
		},
		Refresh: RefreshConfig{
			Freshness: DefaultFreshness,
			Check:     DefaultCheck,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly. A zero budget is kept:
// it means "first page only".
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Source.URL == "" {
		c.Source.URL = DefaultSourceURL
	}
	if c.Source.Schema == "" {
		c.Source.Schema = DefaultSchema
	}
	if c.Scrape.NavTimeout <= 0 {
		c.Scrape.NavTimeout = DefaultNavTimeout
	}
	if c.Feed.Dir == "" {
		c.Feed.Dir = DefaultFeedDir
	}
	if c.Refresh.Freshness <= 0 {
		c.Refresh.Freshness = DefaultFreshness
	}
	if c.Refresh.Check == "" {
		c.Refresh.Check = DefaultCheck
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate checks field constraints plus the time zone and cron spec.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Refresh.Check); err != nil {
		return fmt.Errorf("config: refresh.check %q: %w", c.Refresh.Check, err)
	}
	return nil
}

// Location returns the configured time zone, or time.Local if it cannot be
// loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ApplyEnv overlays EVENTFEED_* environment variables. Unset variables leave
// the current values alone.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path, then applies
// environment overrides and validates the result.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := readOrCreate(path)
	if err != nil {
		return cfg, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readOrCreate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions, creating the
// parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
