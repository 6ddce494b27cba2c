// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package config loads Warden configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence (lowest first).
//
// Every scoring and scheduling knob lives here so nothing in the detection
// path hardcodes policy: contamination, ensemble size, per-tree sample cap,
// scan and train intervals, severity multipliers, response bands and the
// alert rate-limit window.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Model     ModelConfig     `koanf:"model"`
	Scan      ScanConfig      `koanf:"scan"`
	Training  TrainingConfig  `koanf:"training"`
	Response  ResponseConfig  `koanf:"response"`
	Alerting  AlertingConfig  `koanf:"alerting"`
	Retention RetentionConfig `koanf:"retention"`
	Events    EventsConfig    `koanf:"events"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Email     EmailConfig     `koanf:"email"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig holds admin HTTP API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = DuckDB default
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ModelConfig holds isolation forest hyperparameters and model storage.
type ModelConfig struct {
	Kind          string  `koanf:"kind"`
	Contamination float64 `koanf:"contamination"`
	Trees         int     `koanf:"trees"`
	MaxSamples    int     `koanf:"max_samples"`
	Seed          int64   `koanf:"seed"`
	MinSamples    int     `koanf:"min_samples"`

	// Backend is "file" or "badger".
	Backend      string `koanf:"backend"`
	Dir          string `koanf:"dir"`
	KeepVersions int    `koanf:"keep_versions"`
}

// ScanConfig controls the periodic anomaly scan.
type ScanConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	Window      time.Duration `koanf:"window"`
	DedupWindow time.Duration `koanf:"dedup_window"`
	Timeout     time.Duration `koanf:"timeout"`
	QueueSize   int           `koanf:"queue_size"`

	// Threshold overrides the active model's decision threshold when
	// positive. Zero uses the threshold stored with the active model.
	Threshold float64 `koanf:"threshold"`

	// Severity tiers are multiples of the warning bound on the normalized
	// response scale.
	HighMultiplier     float64 `koanf:"high_multiplier"`
	CriticalMultiplier float64 `koanf:"critical_multiplier"`
	TopFeatures        int     `koanf:"top_features"`
}

// TrainingConfig controls scheduled retraining.
type TrainingConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	Window         time.Duration `koanf:"window"`
	TrainOnStartup bool          `koanf:"train_on_startup"`
	Timeout        time.Duration `koanf:"timeout"`
	FeedbackWindow time.Duration `koanf:"feedback_window"`
	Folds          int           `koanf:"folds"`
}

// ResponseConfig holds the response bands applied to normalized scores.
type ResponseConfig struct {
	WarningThreshold  float64  `koanf:"warning_threshold"`
	CriticalThreshold float64  `koanf:"critical_threshold"`
	ExternalChannel   string   `koanf:"external_channel"`
	AdminRoles        []string `koanf:"admin_roles"`
	HoneypotRevoke    bool     `koanf:"honeypot_revoke"`
}

// AlertingConfig controls the alert rule engine.
type AlertingConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	Timeout         time.Duration `koanf:"timeout"`
	SecurityRoles   []string      `koanf:"security_roles"`
}

// RetentionConfig controls activity log and audit trail cleanup.
type RetentionConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	ActivityMaxAge time.Duration `koanf:"activity_max_age"`
	AuditMaxAge    time.Duration `koanf:"audit_max_age"`
}

// EventsConfig selects the event bus transport.
type EventsConfig struct {
	// Transport is "memory" or "nats". NATS requires the nats build tag.
	Transport      string `koanf:"transport"`
	BufferSize     int64  `koanf:"buffer_size"`
	NATSURL        string `koanf:"nats_url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	DurableName    string `koanf:"durable_name"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled   bool    `koanf:"enabled"`
	BotToken  string  `koanf:"bot_token"`
	ChatID    string  `koanf:"chat_id"`
	BaseURL   string  `koanf:"base_url"`
	RateLimit float64 `koanf:"rate_limit"` // messages per second
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
}

// WebhookConfig configures the generic webhook channel.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig protects the admin API.
type SecurityConfig struct {
	AuthEnabled      bool          `koanf:"auth_enabled"`
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	RateLimit        int           `koanf:"rate_limit"` // requests per minute per IP, 0 disables
	TriggerLimit     int           `koanf:"trigger_limit"`
	TriggerWindow    time.Duration `koanf:"trigger_window"`
	CasbinCacheTTL   time.Duration `koanf:"casbin_cache_ttl"`
	CasbinPolicyPath string        `koanf:"casbin_policy_path"`
}

// Load reads configuration with the layered koanf loader.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
