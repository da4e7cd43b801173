package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/domeme-scraper/internal/auth"
	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/database"
	"github.com/maltedev/domeme-scraper/internal/export"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/search"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Site     SiteConfig
	Search   SearchConfig
	Waits    browser.Waits
	Auth     AuthConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

// Options converts the section into launch options for the browser.
func (b BrowserConfig) Options() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = b.Headless
	opts.Timeout = b.Timeout
	opts.UserAgent = b.UserAgent
	opts.ViewportWidth = b.ViewportWidth
	opts.ViewportHeight = b.ViewportHeight
	opts.AcceptLanguage = b.AcceptLanguage
	opts.TimezoneID = b.TimezoneID
	opts.Locale = b.Locale
	opts.ProxyServer = b.ProxyServer
	return opts
}

type SiteConfig struct {
	Marketplace string
	// LocatorsFile overrides built-in locator sets when set.
	LocatorsFile string
	// SecondAppURL overrides the profile's staging application URL.
	SecondAppURL string
}

type SearchConfig struct {
	MaxResults   int
	MaxPages     int
	MinPrice     int
	MaxPrice     int
	Mode         string
	Stage        bool
	Snapshot     bool
	RateLimitMin time.Duration
	RateLimitMax time.Duration
}

type AuthConfig struct {
	UsernameEnv string
	PasswordEnv string
	Ambiguous   string
}

type OutputConfig struct {
	Dir     string
	Formats string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type QueueConfig struct {
	MaxSize   int
	CacheSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := browser.DefaultOptions()
	waits := browser.DefaultWaits()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", nil),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", defaults.Timeout),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaults.UserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", defaults.ViewportWidth),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", defaults.ViewportHeight),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", defaults.AcceptLanguage),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", defaults.TimezoneID),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", defaults.Locale),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Site: SiteConfig{
			Marketplace:  getEnvOrDefault("SITE_MARKETPLACE", "domeggook"),
			LocatorsFile: getEnvOrDefault("SITE_LOCATORS_FILE", ""),
			SecondAppURL: getEnvOrDefault("SITE_SECOND_APP_URL", ""),
		},
		Search: SearchConfig{
			MaxResults:   getIntOrDefault("SEARCH_MAX_RESULTS", 20),
			MaxPages:     getIntOrDefault("SEARCH_MAX_PAGES", 1),
			MinPrice:     getIntOrDefault("SEARCH_MIN_PRICE", 12000),
			MaxPrice:     getIntOrDefault("SEARCH_MAX_PRICE", 0),
			Mode:         getEnvOrDefault("SEARCH_MODE", string(search.ModeDirect)),
			Stage:        getBoolOrDefault("SEARCH_STAGE", true),
			Snapshot:     getBoolOrDefault("SEARCH_SNAPSHOT", true),
			RateLimitMin: getDurationOrDefault("SEARCH_RATE_LIMIT_MIN", time.Second),
			RateLimitMax: getDurationOrDefault("SEARCH_RATE_LIMIT_MAX", 3*time.Second),
		},
		Waits: browser.Waits{
			PageLoad:       getDurationOrDefault("WAIT_PAGE_LOAD", waits.PageLoad),
			Element:        getDurationOrDefault("WAIT_ELEMENT", waits.Element),
			Click:          getDurationOrDefault("WAIT_CLICK", waits.Click),
			Scroll:         getDurationOrDefault("WAIT_SCROLL", waits.Scroll),
			Frame:          getDurationOrDefault("WAIT_FRAME", waits.Frame),
			Popup:          getDurationOrDefault("WAIT_POPUP", waits.Popup),
			ActionComplete: getDurationOrDefault("WAIT_ACTION_COMPLETE", waits.ActionComplete),
			Results:        getDurationOrDefault("WAIT_RESULTS", waits.Results),
			Poll:           getDurationOrDefault("WAIT_POLL", waits.Poll),
		},
		Auth: AuthConfig{
			UsernameEnv: getEnvOrDefault("AUTH_USERNAME_ENV", "DOMEID"),
			PasswordEnv: getEnvOrDefault("AUTH_PASSWORD_ENV", "DOMPWD"),
			Ambiguous:   getEnvOrDefault("AUTH_AMBIGUOUS", string(auth.AmbiguousFail)),
		},
		Output: OutputConfig{
			Dir:     getEnvOrDefault("OUTPUT_DIR", "result"),
			Formats: getEnvOrDefault("OUTPUT_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "domeme"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:      getBoolOrDefault("REDIS_ENABLED", false),
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:domeme_events"),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Queue: QueueConfig{
			MaxSize:   getIntOrDefault("QUEUE_MAX_SIZE", 1000),
			CacheSize: getIntOrDefault("QUEUE_RESULT_CACHE", 128),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be at least 1")
	}
	if c.Search.MaxPages < 1 {
		return fmt.Errorf("SEARCH_MAX_PAGES must be at least 1")
	}
	if c.Search.MinPrice < 0 || c.Search.MaxPrice < 0 {
		return fmt.Errorf("search prices cannot be negative")
	}
	if c.Search.MaxPrice > 0 && c.Search.MinPrice > c.Search.MaxPrice {
		return fmt.Errorf("SEARCH_MIN_PRICE cannot be greater than SEARCH_MAX_PRICE")
	}
	if _, err := search.ParseMode(c.Search.Mode); err != nil {
		return fmt.Errorf("SEARCH_MODE: %w", err)
	}
	if c.Search.RateLimitMin > c.Search.RateLimitMax {
		return fmt.Errorf("SEARCH_RATE_LIMIT_MIN cannot be greater than SEARCH_RATE_LIMIT_MAX")
	}
	switch auth.AmbiguousPolicy(c.Auth.Ambiguous) {
	case auth.AmbiguousFail, auth.AmbiguousAccept:
	default:
		return fmt.Errorf("AUTH_AMBIGUOUS must be %q or %q", auth.AmbiguousFail, auth.AmbiguousAccept)
	}
	if _, err := export.ParseFormats(c.Output.Formats); err != nil {
		return fmt.Errorf("OUTPUT_FORMAT: %w", err)
	}
	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED")
	}
	if c.Queue.MaxSize < 0 {
		return fmt.Errorf("QUEUE_MAX_SIZE cannot be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return defaultValue
}

// Profile resolves the configured marketplace, applying the locator file
// and URL overrides.
func (s SiteConfig) Profile() (*marketplace.Profile, error) {
	reg := marketplace.Defaults()
	if s.LocatorsFile != "" {
		var err error
		if reg, err = marketplace.LoadFile(s.LocatorsFile); err != nil {
			return nil, err
		}
	}

	profile, err := reg.Get(models.Source(strings.ToLower(strings.TrimSpace(s.Marketplace))))
	if err != nil {
		return nil, err
	}
	if s.SecondAppURL != "" {
		profile.Endpoints.SecondApp = s.SecondAppURL
	}
	return profile, nil
}

func (d DatabaseConfig) Connection() database.Config {
	return database.Config{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.DBName,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
	}
}
