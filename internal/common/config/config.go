// internal/common/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Marketo       MarketoConfig      `mapstructure:"marketo"`
	Export        ExportConfig       `mapstructure:"export"`
	Checkpoint    CheckpointConfig   `mapstructure:"checkpoint"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Tracing       TracingConfig      `mapstructure:"tracing"`
}

// --- Core App Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// MarketoConfig holds the upstream REST API connection settings.
type MarketoConfig struct {
	InstanceURL    string `mapstructure:"instance_url"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
	MaxAuthRetries int    `mapstructure:"max_auth_retries"`
}

// Host returns the host part of the instance URL, used to namespace checkpoints.
func (m MarketoConfig) Host() string {
	u, err := url.Parse(m.InstanceURL)
	if err != nil || u.Host == "" {
		return m.InstanceURL
	}
	return u.Host
}

// ExportConfig describes what one export run extracts and where the delimited output goes.
type ExportConfig struct {
	Since               string   `mapstructure:"since"` // YYYY-MM-DD
	Output              string   `mapstructure:"output"`
	Delimiter           string   `mapstructure:"delimiter"`
	TrackedFields       []string `mapstructure:"tracked_fields"`
	CustomFields        []string `mapstructure:"custom_fields"`
	IncludeMailActivity bool     `mapstructure:"include_mail_activity"`
	IncludeWebActivity  bool     `mapstructure:"include_web_activity"`
	ConvertTimezone     bool     `mapstructure:"convert_timezone"`
	Timezone            string   `mapstructure:"timezone"`
	Resume              bool     `mapstructure:"resume"`
}

// AllTrackedFields returns the default tracked fields followed by the custom ones,
// trimmed and de-duplicated with declaration order preserved.
func (e ExportConfig) AllTrackedFields() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(e.TrackedFields)+len(e.CustomFields))
	for _, list := range [][]string{e.TrackedFields, e.CustomFields} {
		for _, f := range list {
			f = strings.TrimSpace(f)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// CheckpointConfig controls continuation-token checkpointing in Redis.
type CheckpointConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TTL       int    `mapstructure:"ttl"` // seconds, 0 = no expiry
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	Table          string `mapstructure:"table"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
	Index     string   `mapstructure:"index"`
	BulkSize  int      `mapstructure:"bulk_size"`
}

// GetAddresses returns the configured addresses, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig holds settings for run-summary notifications.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
