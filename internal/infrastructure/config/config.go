package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Frontend     FrontendConfig
	MercadoLivre MercadoLivreConfig
	Shopee       ShopeeConfig
	Sync         SyncConfig
	Queue        QueueConfig
	Webhook      WebhookConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// When disabled, webhook dedup falls back to memory and events are not fanned out.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for verifying operator access tokens.
// Tokens are issued by the platform's identity service.
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// FrontendConfig holds where sellers land after the OAuth callback
type FrontendConfig struct {
	URL              string
	IntegrationsPath string
}

// MercadoLivreConfig holds Mercado Livre application credentials
type MercadoLivreConfig struct {
	Enabled           bool
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	APIBaseURL        string
	AuthURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// ShopeeConfig holds Shopee Open Platform partner credentials
type ShopeeConfig struct {
	Enabled           bool
	PartnerID         int64
	PartnerKey        string
	RedirectURI       string
	APIBaseURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// SyncConfig holds bulk sync and token lifecycle settings
type SyncConfig struct {
	PageSize             int
	MaxPages             int
	TokenRefreshSkew     time.Duration
	SupportRetention     time.Duration
	CronEnabled          bool
	SupportInterval      time.Duration
	OrdersInterval       time.Duration
	ProductsInterval     time.Duration
	TokenRefreshInterval time.Duration
}

// QueueConfig holds job queue settings
type QueueConfig struct {
	Enabled            bool
	PollInterval       time.Duration
	DefaultAttempts    int
	BackoffDelay       time.Duration
	WebhookConcurrency int
	SyncConcurrency    int
	JobTimeout         time.Duration
	// StaleAfter is how long a job may stay ACTIVE before another worker
	// takes it back; zero derives it from JobTimeout
	StaleAfter  time.Duration
	StopTimeout time.Duration
}

// WebhookConfig holds webhook ingestion settings
type WebhookConfig struct {
	DedupEnabled bool
	DedupTTL     time.Duration
	MaxBodySize  int64
	// Per client IP; zero disables the limiter
	RatePerSecond float64
	RateBurst     int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	PrometheusEnabled bool // serve /metrics for scraping
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	// Continuous profiling
	ProfilingEnabled bool
	ProfilingServer  string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ORDERSYNC_ prefix (e.g., ORDERSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ORDERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true must be registered so env overrides still apply
	v.SetDefault("mercadolivre.enabled", true)
	v.SetDefault("shopee.enabled", true)
	v.SetDefault("sync.cron_enabled", true)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("webhook.dedup_enabled", true)
	v.SetDefault("telemetry.prometheus_enabled", true)
	v.SetDefault("webhook.rate_per_second", 50.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Frontend: FrontendConfig{
			URL:              v.GetString("frontend.url"),
			IntegrationsPath: v.GetString("frontend.integrations_path"),
		},
		MercadoLivre: MercadoLivreConfig{
			Enabled:           v.GetBool("mercadolivre.enabled"),
			ClientID:          v.GetString("mercadolivre.client_id"),
			ClientSecret:      v.GetString("mercadolivre.client_secret"),
			RedirectURI:       v.GetString("mercadolivre.redirect_uri"),
			APIBaseURL:        v.GetString("mercadolivre.api_base_url"),
			AuthURL:           v.GetString("mercadolivre.auth_url"),
			Timeout:           v.GetDuration("mercadolivre.timeout"),
			RequestsPerSecond: v.GetFloat64("mercadolivre.requests_per_second"),
		},
		Shopee: ShopeeConfig{
			Enabled:           v.GetBool("shopee.enabled"),
			PartnerID:         v.GetInt64("shopee.partner_id"),
			PartnerKey:        v.GetString("shopee.partner_key"),
			RedirectURI:       v.GetString("shopee.redirect_uri"),
			APIBaseURL:        v.GetString("shopee.api_base_url"),
			Timeout:           v.GetDuration("shopee.timeout"),
			RequestsPerSecond: v.GetFloat64("shopee.requests_per_second"),
		},
		Sync: SyncConfig{
			PageSize:             v.GetInt("sync.page_size"),
			MaxPages:             v.GetInt("sync.max_pages"),
			TokenRefreshSkew:     v.GetDuration("sync.token_refresh_skew"),
			SupportRetention:     v.GetDuration("sync.support_retention"),
			CronEnabled:          v.GetBool("sync.cron_enabled"),
			SupportInterval:      v.GetDuration("sync.support_interval"),
			OrdersInterval:       v.GetDuration("sync.orders_interval"),
			ProductsInterval:     v.GetDuration("sync.products_interval"),
			TokenRefreshInterval: v.GetDuration("sync.token_refresh_interval"),
		},
		Queue: QueueConfig{
			Enabled:            v.GetBool("queue.enabled"),
			PollInterval:       v.GetDuration("queue.poll_interval"),
			DefaultAttempts:    v.GetInt("queue.default_attempts"),
			BackoffDelay:       v.GetDuration("queue.backoff_delay"),
			WebhookConcurrency: v.GetInt("queue.webhook_concurrency"),
			SyncConcurrency:    v.GetInt("queue.sync_concurrency"),
			JobTimeout:         v.GetDuration("queue.job_timeout"),
			StaleAfter:         v.GetDuration("queue.stale_after"),
			StopTimeout:        v.GetDuration("queue.stop_timeout"),
		},
		Webhook: WebhookConfig{
			DedupEnabled:  v.GetBool("webhook.dedup_enabled"),
			DedupTTL:      v.GetDuration("webhook.dedup_ttl"),
			MaxBodySize:   v.GetInt64("webhook.max_body_size"),
			RatePerSecond: v.GetFloat64("webhook.rate_per_second"),
			RateBurst:     v.GetInt("webhook.rate_burst"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			PrometheusEnabled: v.GetBool("telemetry.prometheus_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ordersync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ordersync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "ordersync"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Frontend.URL == "" {
		cfg.Frontend.URL = "http://localhost:3000"
	}
	if cfg.Frontend.IntegrationsPath == "" {
		cfg.Frontend.IntegrationsPath = "/integrations"
	}
	if cfg.MercadoLivre.APIBaseURL == "" {
		cfg.MercadoLivre.APIBaseURL = "https://api.mercadolibre.com"
	}
	if cfg.MercadoLivre.AuthURL == "" {
		cfg.MercadoLivre.AuthURL = "https://auth.mercadolivre.com.br/authorization"
	}
	if cfg.MercadoLivre.Timeout == 0 {
		cfg.MercadoLivre.Timeout = 30 * time.Second
	}
	if cfg.MercadoLivre.RequestsPerSecond == 0 {
		cfg.MercadoLivre.RequestsPerSecond = 10
	}
	if cfg.Shopee.APIBaseURL == "" {
		cfg.Shopee.APIBaseURL = "https://partner.shopeemobile.com"
	}
	if cfg.Shopee.Timeout == 0 {
		cfg.Shopee.Timeout = 30 * time.Second
	}
	if cfg.Shopee.RequestsPerSecond == 0 {
		cfg.Shopee.RequestsPerSecond = 10
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 50
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 4
	}
	if cfg.Sync.TokenRefreshSkew == 0 {
		cfg.Sync.TokenRefreshSkew = 5 * time.Minute
	}
	if cfg.Sync.SupportRetention == 0 {
		cfg.Sync.SupportRetention = 30 * 24 * time.Hour
	}
	if cfg.Sync.SupportInterval == 0 {
		cfg.Sync.SupportInterval = 5 * time.Minute
	}
	if cfg.Sync.OrdersInterval == 0 {
		cfg.Sync.OrdersInterval = 15 * time.Minute
	}
	if cfg.Sync.ProductsInterval == 0 {
		cfg.Sync.ProductsInterval = time.Hour
	}
	if cfg.Sync.TokenRefreshInterval == 0 {
		cfg.Sync.TokenRefreshInterval = 30 * time.Minute
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = time.Second
	}
	if cfg.Queue.DefaultAttempts == 0 {
		cfg.Queue.DefaultAttempts = 3
	}
	if cfg.Queue.BackoffDelay == 0 {
		cfg.Queue.BackoffDelay = 30 * time.Second
	}
	if cfg.Queue.WebhookConcurrency == 0 {
		cfg.Queue.WebhookConcurrency = 4
	}
	if cfg.Queue.SyncConcurrency == 0 {
		cfg.Queue.SyncConcurrency = 2
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 10 * time.Minute
	}
	if cfg.Queue.StopTimeout == 0 {
		cfg.Queue.StopTimeout = 30 * time.Second
	}
	if cfg.Webhook.DedupTTL == 0 {
		cfg.Webhook.DedupTTL = 48 * time.Hour
	}
	if cfg.Webhook.MaxBodySize == 0 {
		cfg.Webhook.MaxBodySize = 64 << 10 // 64KB
	}
	if cfg.Webhook.RatePerSecond > 0 && cfg.Webhook.RateBurst == 0 {
		cfg.Webhook.RateBurst = int(cfg.Webhook.RatePerSecond * 2)
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ordersync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Sync.PageSize <= 0 || c.Sync.MaxPages <= 0 {
		return fmt.Errorf("sync.page_size and sync.max_pages must be positive")
	}
	if c.Sync.TokenRefreshSkew < 0 {
		return fmt.Errorf("sync.token_refresh_skew cannot be negative")
	}
	if c.Queue.DefaultAttempts < 1 {
		return fmt.Errorf("queue.default_attempts must be at least 1")
	}
	if c.Queue.StaleAfter != 0 && c.Queue.StaleAfter <= c.Queue.JobTimeout {
		return fmt.Errorf("queue.stale_after (%s) must exceed queue.job_timeout (%s)", c.Queue.StaleAfter, c.Queue.JobTimeout)
	}
	if c.Queue.WebhookConcurrency < 1 || c.Queue.SyncConcurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1")
	}
	if _, err := url.Parse(c.Frontend.URL); err != nil {
		return fmt.Errorf("frontend.url is invalid: %w", err)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.MercadoLivre.Enabled && (c.MercadoLivre.ClientID == "" || c.MercadoLivre.ClientSecret == "") {
			return fmt.Errorf("mercadolivre.client_id and mercadolivre.client_secret are required in production")
		}
		if c.Shopee.Enabled && (c.Shopee.PartnerID == 0 || c.Shopee.PartnerKey == "") {
			return fmt.Errorf("shopee.partner_id and shopee.partner_key are required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// CallbackRedirect builds the frontend URL the OAuth callback redirects to
func (f *FrontendConfig) CallbackRedirect(params url.Values) string {
	base := strings.TrimRight(f.URL, "/") + f.IntegrationsPath
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
