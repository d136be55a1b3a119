package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Download routes understood by the Share API
const (
	DownloadRouteDirect   = "direct"   // GET /share/{token}
	DownloadRouteDownload = "download" // GET /share/{token}/download
)

// Config holds application configuration
type Config struct {
	APIBase       string
	DownloadRoute string
	Timeout       int // seconds; 0 leaves requests unbounded
	ProxyURL      string
	CookiesPath   string
	UserAgent     string

	OutputDir string
	Format    string
	RateLimit string

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBase:       "http://localhost:8000",
		DownloadRoute: DownloadRouteDirect,
		Timeout:       0,
		UserAgent:     "sharefetch/1.0",
		OutputDir:     ".",
		Format:        "text",

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

type fileConfig struct {
	APIBase       *string         `toml:"api_base"`
	DownloadRoute *string         `toml:"download_route"`
	Timeout       *int            `toml:"timeout"`
	Proxy         *string         `toml:"proxy"`
	Cookies       *string         `toml:"cookies"`
	UserAgent     *string         `toml:"user_agent"`
	Output        *outputConfig   `toml:"output"`
	Logging       *loggingSection `toml:"logging"`
}

type outputConfig struct {
	Dir       *string `toml:"dir"`
	Format    *string `toml:"format"`
	RateLimit *string `toml:"rate_limit"`
}

type loggingSection struct {
	Level *string `toml:"level"`
	Debug *bool   `toml:"debug"`
	Quiet *bool   `toml:"quiet"`
	File  *string `toml:"file"`
}

// LoadFromFile overlays values from a TOML config file. Keys the file sets
// replace current values; unknown keys are rejected.
func (c *Config) LoadFromFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return NewValidationErrorWithValue("config", "unknown keys in config file", strings.Join(keys, ", ")).
			WithContext("file", path)
	}

	setString(&c.APIBase, fc.APIBase)
	setString(&c.DownloadRoute, fc.DownloadRoute)
	setString(&c.ProxyURL, fc.Proxy)
	setString(&c.CookiesPath, fc.Cookies)
	setString(&c.UserAgent, fc.UserAgent)
	if fc.Timeout != nil {
		c.Timeout = *fc.Timeout
	}
	if o := fc.Output; o != nil {
		setString(&c.OutputDir, o.Dir)
		setString(&c.Format, o.Format)
		setString(&c.RateLimit, o.RateLimit)
	}
	if l := fc.Logging; l != nil {
		setString(&c.LogLevel, l.Level)
		setString(&c.LogFile, l.File)
		if l.Debug != nil {
			c.EnableDebug = *l.Debug
		}
		if l.Quiet != nil {
			c.QuietMode = *l.Quiet
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if base := os.Getenv("SHAREFETCH_API_BASE"); base != "" {
		c.APIBase = base
	}

	if route := os.Getenv("SHAREFETCH_DOWNLOAD_ROUTE"); route != "" {
		c.DownloadRoute = route
	}

	if timeout := os.Getenv("SHAREFETCH_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t >= 0 {
			c.Timeout = t
		}
	}

	if proxy := os.Getenv("SHAREFETCH_PROXY"); proxy != "" {
		c.ProxyURL = proxy
	}

	if cookies := os.Getenv("SHAREFETCH_COOKIES"); cookies != "" {
		c.CookiesPath = cookies
	}

	if dir := os.Getenv("SHAREFETCH_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}

	if format := os.Getenv("SHAREFETCH_FORMAT"); format != "" {
		c.Format = format
	}

	if rate := os.Getenv("SHAREFETCH_RATE_LIMIT"); rate != "" {
		c.RateLimit = rate
	}

	if logLevel := os.Getenv("SHAREFETCH_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if debug := os.Getenv("SHAREFETCH_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}

	if quiet := os.Getenv("SHAREFETCH_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}

	if logFile := os.Getenv("SHAREFETCH_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationErrorWithValue("api_base", "must be an absolute http(s) URL", c.APIBase)
	}

	switch c.DownloadRoute {
	case DownloadRouteDirect, DownloadRouteDownload:
	default:
		return NewValidationErrorWithValue("download_route", "must be 'direct' or 'download'", c.DownloadRoute)
	}

	if c.Timeout < 0 {
		return NewValidationErrorWithValue("timeout", "must be >= 0", c.Timeout)
	}

	switch c.Format {
	case "text", "json", "yaml":
	default:
		return NewValidationErrorWithValue("format", "must be one of text, json, yaml", c.Format)
	}

	if c.OutputDir == "" {
		return NewValidationError("output_dir", "cannot be empty")
	}

	return nil
}
