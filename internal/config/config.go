// Package config loads and validates scanner configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultListingURL is the contest listing scanned when none is configured.
const DefaultListingURL = "https://www.pciconcursos.com.br/concursos/"

// Pipeline modes.
const (
	ModePDF  = "pdf"
	ModeHTML = "html"
)

// State backends.
const (
	BackendFile = "file"
	BackendGCS  = "gcs"
)

// Notification providers.
const (
	NotifyNone   = "none"
	NotifyLog    = "log"
	NotifyPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Source   SourceConfig   `mapstructure:"source"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Keywords KeywordsConfig `mapstructure:"keywords"`
	State    StateConfig    `mapstructure:"state"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	RunInterval time.Duration `mapstructure:"run_interval"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig describes the listing site and how its markup is read.
type SourceConfig struct {
	ListingURL          string `mapstructure:"listing_url"`
	BlockSelector       string `mapstructure:"block_selector"`
	TitleSelector       string `mapstructure:"title_selector"`
	RegionSelector      string `mapstructure:"region_selector"`
	DateSelector        string `mapstructure:"date_selector"`
	AnnouncementPattern string `mapstructure:"announcement_pattern"`
	ContentSelector     string `mapstructure:"content_selector"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	WaitSelector       string        `mapstructure:"wait_selector"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// PipelineConfig governs how contests are processed.
type PipelineConfig struct {
	Mode           string `mapstructure:"mode"`
	Workers        int    `mapstructure:"workers"`
	TopicsEnabled  bool   `mapstructure:"topics_enabled"`
	TopicThreshold int    `mapstructure:"topic_threshold"`
	Timezone       string `mapstructure:"timezone"`
}

// KeywordsConfig points at an optional vocabulary file.
type KeywordsConfig struct {
	File string `mapstructure:"file"`
}

// StateConfig selects where the processed set and records live.
type StateConfig struct {
	Backend         string `mapstructure:"backend"`
	Dir             string `mapstructure:"dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	Prefix          string `mapstructure:"prefix"`
	ProcessedObject string `mapstructure:"processed_object"`
	RecordsObject   string `mapstructure:"records_object"`
}

// ArchiveConfig toggles copying matched documents into the blob backend.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects the notification channel for new matches.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONCURSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// No default: an unset threshold depends on pipeline.topics_enabled.
	if err := v.BindEnv("pipeline.topic_threshold"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Pipeline.TopicsEnabled && !v.IsSet("pipeline.topic_threshold") {
		cfg.Pipeline.TopicThreshold = 3
	}
	if !cfg.Pipeline.TopicsEnabled {
		cfg.Pipeline.TopicThreshold = 0
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.run_interval", "0s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("source.listing_url", DefaultListingURL)
	v.SetDefault("source.block_selector", "")
	v.SetDefault("source.title_selector", "")
	v.SetDefault("source.region_selector", "")
	v.SetDefault("source.date_selector", "")
	v.SetDefault("source.announcement_pattern", "")
	v.SetDefault("source.content_selector", "")
	v.SetDefault("http.user_agent", "concurso-crawler/1.0 (+https://github.com/JakeFAU/concurso-crawler)")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.rate_limit_rps", 2.0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "25s")
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("pipeline.mode", ModePDF)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.topics_enabled", false)
	v.SetDefault("pipeline.timezone", "America/Sao_Paulo")
	v.SetDefault("keywords.file", "")
	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.dir", "data")
	v.SetDefault("state.prefix", "")
	v.SetDefault("state.processed_object", "processed.json")
	v.SetDefault("state.records_object", "data.json")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "editais")
	v.SetDefault("notify.provider", NotifyLog)
	v.SetDefault("db.table", "concursos")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RunInterval < 0 {
		return fmt.Errorf("server.run_interval must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := validateHTTPURL(c.Source.ListingURL); err != nil {
		return fmt.Errorf("source.listing_url: %w", err)
	}
	if c.HTTP.Timeout < time.Second || c.HTTP.Timeout > 2*time.Minute {
		return fmt.Errorf("http.timeout must be between 1s and 2m, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.RateLimitRPS <= 0 {
		return fmt.Errorf("http.rate_limit_rps must be > 0")
	}
	if c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("http.rate_limit_burst must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Pipeline.Mode {
	case ModePDF, ModeHTML:
	default:
		return fmt.Errorf("pipeline.mode must be %q or %q, got %q", ModePDF, ModeHTML, c.Pipeline.Mode)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.TopicThreshold < 0 {
		return fmt.Errorf("pipeline.topic_threshold must be >= 0")
	}
	if c.Pipeline.Timezone == "" {
		return fmt.Errorf("pipeline.timezone is required")
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.Dir == "" {
			return fmt.Errorf("state.dir is required for the file backend")
		}
	case BackendGCS:
		if c.State.GCSBucket == "" {
			return fmt.Errorf("state.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("state.backend must be %q or %q, got %q", BackendFile, BackendGCS, c.State.Backend)
	}
	if c.State.ProcessedObject == "" || c.State.RecordsObject == "" {
		return fmt.Errorf("state.processed_object and state.records_object are required")
	}
	if c.State.ProcessedObject == c.State.RecordsObject {
		return fmt.Errorf("state.processed_object and state.records_object must differ")
	}
	switch c.Notify.Provider {
	case NotifyNone, NotifyLog:
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.TopicID == "" {
			return fmt.Errorf("notify.project_id and notify.topic_id are required for pubsub")
		}
	default:
		return fmt.Errorf("notify.provider must be one of none, log, pubsub; got %q", c.Notify.Provider)
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
