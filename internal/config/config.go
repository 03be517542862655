// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/source/htmlboard"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig       `mapstructure:"server"`
	Auth       AuthConfig         `mapstructure:"auth"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Scraping   ScrapingConfig     `mapstructure:"scraping"`
	Sources    SourcesConfig      `mapstructure:"sources"`
	Filters    scraper.FilterSpec `mapstructure:"filters"`
	Dedup      DedupConfig        `mapstructure:"dedup"`
	DB         DBConfig           `mapstructure:"db"`
	Redis      RedisConfig        `mapstructure:"redis"`
	SQLite     SQLiteConfig       `mapstructure:"sqlite"`
	Telegram   TelegramConfig     `mapstructure:"telegram"`
	Monitoring MonitoringConfig   `mapstructure:"monitoring"`
	Session    SessionConfig      `mapstructure:"session"`
	PubSub     PubSubConfig       `mapstructure:"pubsub"`
	Storage    StorageConfig      `mapstructure:"storage"`
	Enrich     EnrichConfig       `mapstructure:"enrich"`
	Progress   ProgressConfig     `mapstructure:"progress"`
}

// ServerConfig controls the operator HTTP server.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScrapingConfig governs cycle timing, pacing and the anti-block identity pool.
type ScrapingConfig struct {
	Interval       time.Duration      `mapstructure:"interval"`
	CycleTimeout   time.Duration      `mapstructure:"cycle_timeout"`
	MinDelay       time.Duration      `mapstructure:"min_delay"`
	MaxDelay       time.Duration      `mapstructure:"max_delay"`
	MaxRetries     int                `mapstructure:"max_retries"`
	BackoffBase    time.Duration      `mapstructure:"backoff_base"`
	BackoffMax     time.Duration      `mapstructure:"backoff_max"`
	Concurrency    int                `mapstructure:"concurrency"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	RespectRobots  bool               `mapstructure:"respect_robots"`
	SourceRPS      float64            `mapstructure:"source_rps"`
	SourceBurst    int                `mapstructure:"source_burst"`
	PerSourceRPS   map[string]float64 `mapstructure:"per_source_rps"`
	UserAgents     []string           `mapstructure:"user_agents"`
	Proxies        []string           `mapstructure:"proxies"`
	Location       string             `mapstructure:"default_location"`
}

// SourcesConfig selects and configures job source adapters.
type SourcesConfig struct {
	// Enabled limits cycles to these source ids; empty means every registered source.
	Enabled  []string          `mapstructure:"enabled"`
	Remotive RemotiveConfig    `mapstructure:"remotive"`
	Adzuna   AdzunaConfig      `mapstructure:"adzuna"`
	Boards   []htmlboard.Board `mapstructure:"boards"`
	Headless HeadlessConfig    `mapstructure:"headless"`
}

// RemotiveConfig configures the Remotive JSON API adapter.
type RemotiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Limit   int    `mapstructure:"limit"`
}

// AdzunaConfig configures the Adzuna search API adapter.
type AdzunaConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	AppID    string `mapstructure:"app_id"`
	AppKey   string `mapstructure:"app_key"`
	Country  string `mapstructure:"country"`
	MaxPages int    `mapstructure:"max_pages"`
}

// HeadlessConfig configures the chromedp renderer used by boards with render:
// headless, and the promotion threshold for boards with render: auto.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	WaitSelector       string        `mapstructure:"wait_selector"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// DedupConfig selects the seen-job backend.
type DedupConfig struct {
	Backend       string        `mapstructure:"backend"`
	Scope         string        `mapstructure:"scope"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	KeepSimilar   bool          `mapstructure:"keep_similar"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig controls the Redis dedup backend.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SQLiteConfig controls the single-file dedup backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// TelegramConfig configures the bot used for notifications and commands.
type TelegramConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	Token             string  `mapstructure:"token"`
	ChatID            string  `mapstructure:"chat_id"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	PollTimeout       int     `mapstructure:"poll_timeout"`
	DisablePreview    bool    `mapstructure:"disable_preview"`
	ShowJobType       bool    `mapstructure:"show_job_type"`
	ShowDescription   bool    `mapstructure:"show_description"`
}

// MonitoringConfig tunes health tracking and the periodic jobs.
type MonitoringConfig struct {
	FailureThreshold       int           `mapstructure:"failure_threshold"`
	StatsInterval          time.Duration `mapstructure:"stats_interval"`
	HealthInterval         time.Duration `mapstructure:"health_interval"`
	StaleAfter             time.Duration `mapstructure:"stale_after"`
	ResetStatsAfterSummary bool          `mapstructure:"reset_stats_after_summary"`
	StatusEvery            int           `mapstructure:"status_every"`
	AdminUserIDs           []string      `mapstructure:"admin_user_ids"`
	AlertUserIDs           []string      `mapstructure:"alert_user_ids"`
}

// SessionConfig tunes the per-user state machine.
type SessionConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	MaxQueries     int           `mapstructure:"max_queries"`
}

// PubSubConfig holds metadata for delivered-job events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig selects where cycle reports are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EnrichConfig configures the optional summarisation service.
type EnrichConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProgressConfig tunes the progress hub and selects its sinks.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	Log            bool          `mapstructure:"log"`
	Prometheus     bool          `mapstructure:"prometheus"`
	Store          bool          `mapstructure:"store"`
}

// Dedup backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Report storage backends.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// envAliases lets conventional secret names override the prefixed keys.
var envAliases = map[string][]string{
	"telegram.token":         {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":       {"TELEGRAM_CHAT_ID"},
	"sources.adzuna.app_id":  {"ADZUNA_APP_ID"},
	"sources.adzuna.app_key": {"ADZUNA_APP_KEY"},
	"enrich.api_key":         {"LLM_API_KEY", "GROQ_API_KEY"},
	"db.dsn":                 {"DATABASE_URL"},
	"redis.url":              {"REDIS_URL"},
}

// Load builds a Config from an optional .env file, an optional YAML file and
// the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("JOBSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, names := range envAliases {
		args := append([]string{key, "JOBSCRAPER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("scraping.interval", "300s")
	v.SetDefault("scraping.cycle_timeout", "4m")
	v.SetDefault("scraping.min_delay", "1s")
	v.SetDefault("scraping.max_delay", "3s")
	v.SetDefault("scraping.max_retries", 3)
	v.SetDefault("scraping.backoff_base", "2s")
	v.SetDefault("scraping.backoff_max", "30s")
	v.SetDefault("scraping.concurrency", 8)
	v.SetDefault("scraping.request_timeout", "30s")
	v.SetDefault("scraping.respect_robots", false)
	v.SetDefault("scraping.source_rps", 1.0)
	v.SetDefault("scraping.source_burst", 2)
	v.SetDefault("scraping.user_agents", []string{})
	v.SetDefault("scraping.proxies", []string{})
	v.SetDefault("scraping.default_location", "")

	v.SetDefault("sources.enabled", []string{})
	v.SetDefault("sources.remotive.enabled", true)
	v.SetDefault("sources.remotive.base_url", "https://remotive.com/api/remote-jobs")
	v.SetDefault("sources.remotive.limit", 100)
	v.SetDefault("sources.adzuna.enabled", false)
	v.SetDefault("sources.adzuna.base_url", "https://api.adzuna.com/v1/api/jobs")
	v.SetDefault("sources.adzuna.app_id", "")
	v.SetDefault("sources.adzuna.app_key", "")
	v.SetDefault("sources.adzuna.country", "us")
	v.SetDefault("sources.adzuna.max_pages", 2)
	v.SetDefault("sources.headless.enabled", false)
	v.SetDefault("sources.headless.max_parallel", 1)
	v.SetDefault("sources.headless.navigation_timeout", "25s")
	v.SetDefault("sources.headless.wait_selector", "body")
	v.SetDefault("sources.headless.promotion_threshold", 2048)

	v.SetDefault("filters.remote_only", false)

	v.SetDefault("dedup.backend", BackendMemory)
	v.SetDefault("dedup.scope", "global")
	v.SetDefault("dedup.retention", "720h")
	v.SetDefault("dedup.prune_interval", "24h")
	v.SetDefault("dedup.keep_similar", false)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "jobscraper:seen:")
	v.SetDefault("sqlite.path", "jobs.db")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.messages_per_second", 1.0)
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.disable_preview", false)
	v.SetDefault("telegram.show_job_type", true)
	v.SetDefault("telegram.show_description", false)

	v.SetDefault("monitoring.failure_threshold", 5)
	v.SetDefault("monitoring.stats_interval", "24h")
	v.SetDefault("monitoring.health_interval", "1h")
	v.SetDefault("monitoring.stale_after", "1h")
	v.SetDefault("monitoring.reset_stats_after_summary", true)
	v.SetDefault("monitoring.status_every", 10)
	v.SetDefault("monitoring.admin_user_ids", []string{})
	v.SetDefault("monitoring.alert_user_ids", []string{})

	v.SetDefault("session.confirm_timeout", "5m")
	v.SetDefault("session.max_queries", 5)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "reports")

	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("enrich.api_key", "")
	v.SetDefault("enrich.model", "llama-3.3-70b-versatile")
	v.SetDefault("enrich.timeout", "10s")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.log", true)
	v.SetDefault("progress.prometheus", true)
	v.SetDefault("progress.store", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scraping.Interval <= 0 {
		return fmt.Errorf("scraping.interval must be > 0")
	}
	if c.Scraping.CycleTimeout <= 0 {
		return fmt.Errorf("scraping.cycle_timeout must be > 0")
	}
	if c.Scraping.MinDelay < 0 || c.Scraping.MaxDelay < c.Scraping.MinDelay {
		return fmt.Errorf("scraping.max_delay must be >= scraping.min_delay >= 0")
	}
	if c.Scraping.MaxRetries <= 0 {
		return fmt.Errorf("scraping.max_retries must be > 0")
	}
	if c.Scraping.Concurrency <= 0 {
		return fmt.Errorf("scraping.concurrency must be > 0")
	}
	if c.Scraping.SourceRPS < 0 {
		return fmt.Errorf("scraping.source_rps must be >= 0")
	}
	if c.Sources.Adzuna.Enabled && (c.Sources.Adzuna.AppID == "" || c.Sources.Adzuna.AppKey == "") {
		return fmt.Errorf("sources.adzuna.app_id and app_key must be set when adzuna is enabled")
	}
	for i, b := range c.Sources.Boards {
		if b.ID == "" || b.URLTemplate == "" {
			return fmt.Errorf("sources.boards[%d] must have id and url_template", i)
		}
		if b.Render == "headless" && !c.Sources.Headless.Enabled {
			return fmt.Errorf("sources.boards[%d] renders headless but sources.headless.enabled is false", i)
		}
	}
	if c.Sources.Headless.Enabled && c.Sources.Headless.MaxParallel <= 0 {
		return fmt.Errorf("sources.headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Dedup.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path must be set for the sqlite dedup backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres dedup backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url must be set for the redis dedup backend")
		}
	default:
		return fmt.Errorf("dedup.backend must be one of memory, sqlite, postgres, redis")
	}
	if c.Dedup.Scope != "global" && c.Dedup.Scope != "user" {
		return fmt.Errorf("dedup.scope must be global or user")
	}
	if c.Dedup.Retention < 0 {
		return fmt.Errorf("dedup.retention must be >= 0")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set when telegram is enabled")
	}
	if c.Monitoring.FailureThreshold <= 0 {
		return fmt.Errorf("monitoring.failure_threshold must be > 0")
	}
	if c.Session.ConfirmTimeout <= 0 {
		return fmt.Errorf("session.confirm_timeout must be > 0")
	}
	if c.Session.MaxQueries <= 0 {
		return fmt.Errorf("session.max_queries must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageLocal:
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, local, gcs")
	}
	if c.Enrich.Enabled && c.Enrich.APIKey == "" {
		return fmt.Errorf("enrich.api_key must be set when enrichment is enabled")
	}
	return nil
}

// SourceIDs converts the enabled list to source ids.
func (c Config) SourceIDs() []scraper.SourceID {
	ids := make([]scraper.SourceID, 0, len(c.Sources.Enabled))
	for _, s := range c.Sources.Enabled {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, scraper.SourceID(s))
		}
	}
	return ids
}

// AdminIDs returns the users that receive operator messages, falling back to
// telegram.chat_id.
func (c Config) AdminIDs() []string {
	if len(c.Monitoring.AdminUserIDs) > 0 {
		return c.Monitoring.AdminUserIDs
	}
	if c.Telegram.ChatID != "" {
		return []string{c.Telegram.ChatID}
	}
	return nil
}
