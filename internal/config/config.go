package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/pricing"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/ratelimit"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Quote    QuoteConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Journal  JournalConfig
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

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
	ProxyServer    string
	BlockResources bool
	Stealth        bool
}

type QuoteConfig struct {
	BaseURL        string
	Divisor        float64
	Factor1        float64
	Factor2        float64
	Factor3        float64
	RoundTo        int64
	TimeoutSeconds int
	Retries        int
	WarmUp         bool
	Debug          bool

	NavigationsPerSecond float64
	NavigationBurst      int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	BackoffJitter        time.Duration
	ResultsWait          time.Duration
	ProductIdleWait      time.Duration
}

type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	MaxEntries    int
	CacheFailures bool
	KeyPrefix     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// JournalConfig controls the optional audit trail of quotes. When disabled
// no database or stream connection is opened.
type JournalConfig struct {
	Enabled       bool
	Stream        string
	RelayInterval time.Duration
	RelayBatch    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := kream.DefaultSettings()
	browserDefaults := browser.DefaultOptions()
	backoff := ratelimit.DefaultBackoff()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 150*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", browserDefaults.Headless),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", browserDefaults.ViewportWidth),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", browserDefaults.ViewportHeight),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", browserDefaults.AcceptLanguage),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", browserDefaults.TimezoneID),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", browserDefaults.Locale),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", browserDefaults.UserAgent),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
			BlockResources: getBoolOrDefault("BROWSER_BLOCK_RESOURCES", browserDefaults.BlockResources),
			Stealth:        getBoolOrDefault("BROWSER_STEALTH", browserDefaults.Stealth),
		},
		Quote: QuoteConfig{
			BaseURL:        getEnvOrDefault("KREAM_BASE_URL", kream.DefaultBaseURL),
			Divisor:        getFloatOrDefault("QUOTE_DIVISOR", defaults.Divisor),
			Factor1:        getFloatOrDefault("QUOTE_FACTOR1", defaults.Factor1),
			Factor2:        getFloatOrDefault("QUOTE_FACTOR2", defaults.Factor2),
			Factor3:        getFloatOrDefault("QUOTE_FACTOR3", defaults.Factor3),
			RoundTo:        int64(getIntOrDefault("QUOTE_ROUND_TO", int(defaults.RoundTo))),
			TimeoutSeconds: getIntOrDefault("QUOTE_TIMEOUT_SECONDS", defaults.TimeoutSeconds),
			Retries:        getIntOrDefault("QUOTE_RETRIES", defaults.Retries),
			WarmUp:         getBoolOrDefault("QUOTE_WARMUP", defaults.WarmUp),
			Debug:          getBoolOrDefault("QUOTE_DEBUG", defaults.Debug),

			NavigationsPerSecond: getFloatOrDefault("QUOTE_NAVIGATIONS_PER_SECOND", 1),
			NavigationBurst:      getIntOrDefault("QUOTE_NAVIGATION_BURST", 2),
			BackoffBase:          getDurationOrDefault("QUOTE_BACKOFF_BASE", backoff.Base),
			BackoffMax:           getDurationOrDefault("QUOTE_BACKOFF_MAX", backoff.Max),
			BackoffJitter:        getDurationOrDefault("QUOTE_BACKOFF_JITTER", backoff.Jitter),
			ResultsWait:          getDurationOrDefault("QUOTE_RESULTS_WAIT", 20*time.Second),
			ProductIdleWait:      getDurationOrDefault("QUOTE_PRODUCT_IDLE_WAIT", 30*time.Second),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnvOrDefault("CACHE_BACKEND", CacheMemory)),
			TTL:           getDurationOrDefault("CACHE_TTL", 120*time.Second),
			MaxEntries:    getIntOrDefault("CACHE_MAX_ENTRIES", 1000),
			CacheFailures: getBoolOrDefault("CACHE_FAILURES", true),
			KeyPrefix:     getEnvOrDefault("CACHE_KEY_PREFIX", "kream:quote:"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "kream_quotes"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Journal: JournalConfig{
			Enabled:       getBoolOrDefault("JOURNAL_ENABLED", false),
			Stream:        getEnvOrDefault("JOURNAL_STREAM", "stream:kream_quotes"),
			RelayInterval: getDurationOrDefault("JOURNAL_RELAY_INTERVAL", 5*time.Second),
			RelayBatch:    getIntOrDefault("JOURNAL_RELAY_BATCH", 100),
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
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("QUOTE_*: %w", err)
	}

	if c.Quote.NavigationBurst < 1 {
		return fmt.Errorf("QUOTE_NAVIGATION_BURST must be at least 1")
	}

	if c.Quote.BackoffBase < 0 || c.Quote.BackoffMax < 0 || c.Quote.BackoffJitter < 0 {
		return fmt.Errorf("QUOTE_BACKOFF_* must not be negative")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheMemory, CacheRedis, c.Cache.Backend)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}

	if c.Journal.Enabled && c.Journal.RelayBatch < 1 {
		return fmt.Errorf("JOURNAL_RELAY_BATCH must be at least 1")
	}

	return nil
}

// Settings are the per-quote defaults; API callers may override them.
func (c *Config) Settings() kream.Settings {
	return kream.Settings{
		Formula: pricing.Formula{
			Divisor: c.Quote.Divisor,
			Factor1: c.Quote.Factor1,
			Factor2: c.Quote.Factor2,
			Factor3: c.Quote.Factor3,
			RoundTo: c.Quote.RoundTo,
		},
		TimeoutSeconds: c.Quote.TimeoutSeconds,
		Retries:        c.Quote.Retries,
		WarmUp:         c.Quote.WarmUp,
		Debug:          c.Quote.Debug,
	}
}

func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = time.Duration(c.Quote.TimeoutSeconds) * time.Second
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	opts.UserAgent = c.Browser.UserAgent
	opts.ProxyServer = c.Browser.ProxyServer
	opts.BlockResources = c.Browser.BlockResources
	opts.Stealth = c.Browser.Stealth
	return opts
}

func (c *Config) FetcherOptions() kream.Options {
	opts := kream.DefaultOptions()
	opts.BaseURL = c.Quote.BaseURL
	opts.Limiter = ratelimit.NewOriginLimiter(c.Quote.NavigationsPerSecond, c.Quote.NavigationBurst)
	opts.Backoff = ratelimit.Backoff{
		Base:   c.Quote.BackoffBase,
		Max:    c.Quote.BackoffMax,
		Jitter: c.Quote.BackoffJitter,
	}
	opts.ResultsWait = c.Quote.ResultsWait
	opts.ProductIdleWait = c.Quote.ProductIdleWait
	return opts
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
