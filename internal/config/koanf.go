// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/warden/config.yaml",
	"/etc/warden/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8490,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/warden.duckdb",
			MaxMemory: "1GB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Model: ModelConfig{
			Kind:          "isolation_forest",
			Contamination: 0.1,
			Trees:         100,
			MaxSamples:    256,
			Seed:          42,
			MinSamples:    10,
			Backend:       "file",
			Dir:           "/data/models",
			KeepVersions:  5,
		},
		Scan: ScanConfig{
			Enabled:            true,
			Interval:           15 * time.Minute,
			Window:             time.Hour,
			DedupWindow:        time.Hour,
			Timeout:            10 * time.Minute,
			QueueSize:          4,
			HighMultiplier:     1.5,
			CriticalMultiplier: 2.0,
			TopFeatures:        3,
		},
		Training: TrainingConfig{
			Enabled:        true,
			Interval:       24 * time.Hour,
			Window:         24 * time.Hour,
			TrainOnStartup: false,
			Timeout:        30 * time.Minute,
			FeedbackWindow: 30 * 24 * time.Hour,
			Folds:          5,
		},
		Response: ResponseConfig{
			WarningThreshold:  0.4,
			CriticalThreshold: 0.7,
			ExternalChannel:   "telegram",
			AdminRoles:        []string{"super_admin", "qomita_rahbar"},
		},
		Alerting: AlertingConfig{
			Enabled:         true,
			Interval:        5 * time.Minute,
			RateLimitWindow: 15 * time.Minute,
			Timeout:         2 * time.Minute,
			SecurityRoles:   []string{"super_admin", "security_auditor", "it_admin"},
		},
		Retention: RetentionConfig{
			Enabled:        true,
			Interval:       7 * 24 * time.Hour,
			ActivityMaxAge: 90 * 24 * time.Hour,
			AuditMaxAge:    365 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Transport:      "memory",
			BufferSize:     256,
			NATSURL:        "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats",
			DurableName:    "warden-dispatcher",
		},
		Telegram: TelegramConfig{
			BaseURL:   "https://api.telegram.org",
			RateLimit: 1,
		},
		Email: EmailConfig{
			Port: 587,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AuthEnabled:    true,
			TokenTTL:       24 * time.Hour,
			RateLimit:      100,
			TriggerLimit:   5,
			TriggerWindow:  time.Minute,
			CasbinCacheTTL: 5 * time.Minute,
		},
	}
}

// LoadWithKoanf layers struct defaults, the config file and environment
// variables, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"response.admin_roles",
	"alerting.security_roles",
	"email.to",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Variables not listed are ignored.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"model_kind":          "model.kind",
	"model_contamination": "model.contamination",
	"model_trees":         "model.trees",
	"model_max_samples":   "model.max_samples",
	"model_seed":          "model.seed",
	"model_min_samples":   "model.min_samples",
	"model_backend":       "model.backend",
	"model_dir":           "model.dir",
	"model_keep_versions": "model.keep_versions",

	"scan_enabled":             "scan.enabled",
	"scan_interval":            "scan.interval",
	"scan_window":              "scan.window",
	"scan_dedup_window":        "scan.dedup_window",
	"scan_timeout":             "scan.timeout",
	"scan_threshold":           "scan.threshold",
	"scan_high_multiplier":     "scan.high_multiplier",
	"scan_critical_multiplier": "scan.critical_multiplier",
	"scan_top_features":        "scan.top_features",

	"train_enabled":         "training.enabled",
	"train_interval":        "training.interval",
	"train_window":          "training.window",
	"train_on_startup":      "training.train_on_startup",
	"train_timeout":         "training.timeout",
	"train_feedback_window": "training.feedback_window",
	"train_folds":           "training.folds",

	"response_warning_threshold":  "response.warning_threshold",
	"response_critical_threshold": "response.critical_threshold",
	"response_external_channel":   "response.external_channel",
	"response_admin_roles":        "response.admin_roles",
	"response_honeypot_revoke":    "response.honeypot_revoke",

	"alerting_enabled":           "alerting.enabled",
	"alerting_interval":          "alerting.interval",
	"alerting_rate_limit_window": "alerting.rate_limit_window",
	"alerting_security_roles":    "alerting.security_roles",

	"retention_enabled":          "retention.enabled",
	"retention_interval":         "retention.interval",
	"retention_activity_max_age": "retention.activity_max_age",
	"retention_audit_max_age":    "retention.audit_max_age",

	"events_transport": "events.transport",
	"nats_url":         "events.nats_url",
	"nats_embedded":    "events.embedded_server",
	"nats_store_dir":   "events.store_dir",

	"telegram_enabled":   "telegram.enabled",
	"telegram_bot_token": "telegram.bot_token",
	"telegram_chat_id":   "telegram.chat_id",

	"smtp_enabled":  "email.enabled",
	"smtp_host":     "email.host",
	"smtp_port":     "email.port",
	"smtp_username": "email.username",
	"smtp_password": "email.password",
	"smtp_from":     "email.from",
	"smtp_to":       "email.to",

	"webhook_enabled": "webhook.enabled",
	"webhook_url":     "webhook.url",

	"auth_enabled":       "security.auth_enabled",
	"jwt_secret":         "security.jwt_secret",
	"jwt_token_ttl":      "security.token_ttl",
	"cors_origins":       "security.cors_origins",
	"rate_limit":         "security.rate_limit",
	"casbin_policy_path": "security.casbin_policy_path",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
