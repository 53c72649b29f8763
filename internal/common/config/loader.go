// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const sinceLayout = "2006-01-02"

// NewViper returns a viper instance wired to the config search paths and environment.
// Callers bind command-line flags on top of it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// MARKETO_CLIENT_ID overrides marketo.client_id
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads config files and env into v, then unmarshals, defaults and validates.
func Load(v *viper.Viper) (*Config, error) {
	loadEnvFile()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(v *viper.Viper, path string) (*Config, error) {
	loadEnvFile()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "activity-export")
	v.SetDefault("marketo.instance_url", "")
	v.SetDefault("marketo.client_id", "")
	v.SetDefault("marketo.client_secret", "")
	v.SetDefault("marketo.timeout", 30000)
	v.SetDefault("marketo.max_auth_retries", 3)
	v.SetDefault("export.since", "")
	v.SetDefault("export.output", "")
	v.SetDefault("export.delimiter", ",")
	v.SetDefault("export.tracked_fields", []string{"Lead Score"})
	v.SetDefault("export.custom_fields", []string{})
	v.SetDefault("export.include_mail_activity", false)
	v.SetDefault("export.include_web_activity", false)
	v.SetDefault("export.convert_timezone", true)
	v.SetDefault("export.timezone", "Asia/Tokyo")
	v.SetDefault("export.resume", false)
	v.SetDefault("checkpoint.enabled", false)
	v.SetDefault("checkpoint.key_prefix", "activity-export:checkpoint")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// loadEnvFile loads the first .env found walking up to the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Marketo.InstanceURL == "" {
		cfg.Marketo.InstanceURL = os.Getenv("MKTO_INSTANCE")
	}
	if cfg.Marketo.ClientID == "" {
		cfg.Marketo.ClientID = os.Getenv("MKTO_CLIENT_ID")
	}
	if cfg.Marketo.ClientSecret == "" {
		cfg.Marketo.ClientSecret = os.Getenv("MKTO_CLIENT_SECRET")
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	cfg.Marketo.InstanceURL = strings.TrimSuffix(cfg.Marketo.InstanceURL, "/")
	if cfg.Marketo.Timeout == 0 {
		cfg.Marketo.Timeout = 30000
	}
	if cfg.Marketo.MaxAuthRetries == 0 {
		cfg.Marketo.MaxAuthRetries = 3
	}

	if cfg.Export.Delimiter == "" {
		cfg.Export.Delimiter = ","
	}
	if len(cfg.Export.TrackedFields) == 0 {
		cfg.Export.TrackedFields = []string{"Lead Score"}
	}
	if cfg.Export.Timezone == "" {
		cfg.Export.Timezone = "Asia/Tokyo"
	}

	if cfg.Checkpoint.KeyPrefix == "" {
		cfg.Checkpoint.KeyPrefix = "activity-export:checkpoint"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.Table == "" {
		cfg.Database.Postgres.Table = "lead_activity_rows"
	}

	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "lead-activities"
	}
	if cfg.Database.Elasticsearch.BulkSize == 0 {
		cfg.Database.Elasticsearch.BulkSize = 500
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// validateConfig validates settings every command needs.
func validateConfig(cfg *Config) error {
	if cfg.Marketo.InstanceURL == "" {
		return fmt.Errorf("marketo.instance_url is required")
	}
	if !strings.HasPrefix(cfg.Marketo.InstanceURL, "http://") && !strings.HasPrefix(cfg.Marketo.InstanceURL, "https://") {
		return fmt.Errorf("marketo.instance_url must start with http:// or https://")
	}
	if cfg.Marketo.ClientID == "" {
		return fmt.Errorf("marketo.client_id is required")
	}
	if cfg.Marketo.ClientSecret == "" {
		return fmt.Errorf("marketo.client_secret is required")
	}
	if cfg.Marketo.Timeout < 0 {
		return fmt.Errorf("marketo.timeout must be positive")
	}
	if cfg.Marketo.MaxAuthRetries < 0 {
		return fmt.Errorf("marketo.max_auth_retries must not be negative")
	}
	return nil
}

// ValidateExport validates the settings required by an export run.
func ValidateExport(cfg *Config) error {
	if cfg.Export.Since == "" {
		return fmt.Errorf("export.since is required")
	}
	if _, err := time.Parse(sinceLayout, cfg.Export.Since); err != nil {
		return fmt.Errorf("export.since must be formatted as YYYY-MM-DD: %w", err)
	}
	if utf8.RuneCountInString(cfg.Export.Delimiter) != 1 {
		return fmt.Errorf("export.delimiter must be a single character")
	}
	if len(cfg.Export.AllTrackedFields()) == 0 {
		return fmt.Errorf("export.tracked_fields must name at least one field")
	}
	if cfg.Export.ConvertTimezone {
		if _, err := time.LoadLocation(cfg.Export.Timezone); err != nil {
			return fmt.Errorf("export.timezone %q is not a valid location: %w", cfg.Export.Timezone, err)
		}
	}

	if (cfg.Checkpoint.Enabled || cfg.Export.Resume) && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when checkpointing is enabled")
	}

	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Notifications.SNS.Enabled {
		if cfg.Notifications.SNS.TopicARN == "" {
			return fmt.Errorf("notifications.sns.topic_arn is required")
		}
		if cfg.Notifications.SNS.Region == "" {
			return fmt.Errorf("notifications.sns.region is required")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
