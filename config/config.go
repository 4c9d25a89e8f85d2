package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/angas/elprice/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfigApi struct {
	Address string
	Port    int16
	// The completed timeline normally stops before the end date's own day,
	// set this to also fill the hours of that day.
	IncludeEndDate bool `mapstructure:"include_end_date"`
}

func (a AppConfigApi) GetPort() int16 {
	if a.Port == 0 {
		return 8080
	}
	return a.Port
}

type AppConfigDatabase struct {
	// "sqlite" (default) or "postgres"
	Driver *string
	// Path to the SQLite file, also holds the log table and backups
	Path string
	// Connection string when driver is postgres
	Dsn string
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetDriver() string {
	if d.Driver == nil || *d.Driver == "" {
		return "sqlite"
	}
	return strings.ToLower(*d.Driver)
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigEnergyPrice struct {
	Area  string  `mapstructure:"area"`   // "SE1", "SE2", "SE3", "SE4"
	RunAt *string `mapstructure:"run_at"` // Cron spec, default: "@every 1h"
	// How far back to look when the store is empty or has fallen behind
	LookbackHours *int `mapstructure:"lookback_hours"`
	// Timeout in seconds for a single ingestion run
	Timeout      *int   `mapstructure:"timeout"`
	TibberToken  string `mapstructure:"tibber_token"` // Optional, enables the Tibber provider
	TibberHomeId string `mapstructure:"tibber_home_id"`
}

func (e AppConfigEnergyPrice) GetRunAt() string {
	if e.RunAt == nil || *e.RunAt == "" {
		return "@every 1h"
	}
	return *e.RunAt
}

func (e AppConfigEnergyPrice) GetLookbackHours() int {
	if e.LookbackHours == nil || *e.LookbackHours < 1 {
		return 48
	}
	return *e.LookbackHours
}

func (e AppConfigEnergyPrice) GetTimeout() time.Duration {
	if e.Timeout == nil || *e.Timeout < 1 {
		return 30 * time.Second
	}
	return time.Duration(*e.Timeout) * time.Second
}

type AppConfigBackfill struct {
	Enabled *bool
	// Grace period after startup, e.g. "3m"
	Delay *string
	// How many years back the backfill reads
	Years *int
}

func (b AppConfigBackfill) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

func (b AppConfigBackfill) GetDelay() time.Duration {
	return durationOrDefault(b.Delay, 3*time.Minute)
}

func (b AppConfigBackfill) GetYears() int {
	if b.Years == nil || *b.Years < 1 {
		return 10
	}
	return *b.Years
}

type AppConfigCache struct {
	// Max number of cached windows, 0 disables the cache, default: 128
	Size *int
	// How long a cached window lives, default: "10m"
	Ttl *string
}

func (c AppConfigCache) GetSize() int {
	if c.Size == nil {
		return 128
	}
	return *c.Size
}

func (c AppConfigCache) GetTtl() time.Duration {
	return durationOrDefault(c.Ttl, 10*time.Minute)
}

type AppConfigMqtt struct {
	// Events are only published when a broker is configured
	Broker   string
	Port     int16
	Username string
	Password string
	Topic    *string
	// Payload encoding: "json" or "msgpack", default: "json"
	Encoding *string
}

func (m AppConfigMqtt) GetTopic() string {
	if m.Topic == nil || *m.Topic == "" {
		return "elprice/events"
	}
	return strings.TrimSuffix(*m.Topic, "/")
}

func (m AppConfigMqtt) GetEncoding() string {
	if m.Encoding == nil {
		return "json"
	}
	return strings.ToLower(strings.TrimSpace(*m.Encoding))
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for database console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return logging.LogAttrFormatJSON
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Api         AppConfigApi
	Database    AppConfigDatabase
	EnergyPrice AppConfigEnergyPrice `mapstructure:"energy_price"`
	Backfill    AppConfigBackfill    `mapstructure:"backfill"`
	Cache       AppConfigCache       `mapstructure:"cache"`
	Mqtt        AppConfigMqtt        `mapstructure:"mqtt"`
	Logging     AppConfigLogging     `mapstructure:"logging"`
}

func Load(path string) (*AppConfig, error) {
	// A missing .env is fine, it only supplies secrets during development.
	_ = godotenv.Load()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	return unmarshal()
}

// Watch calls onChange with the reloaded config every time the config file
// is written. Reload errors are logged and the old config stays in effect.
func Watch(logger *slog.Logger, onChange func(*AppConfig)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := unmarshal()
		if err != nil {
			logger.Error("config reload failed", slog.String("file", e.Name), slog.Any("error", err))
			return
		}
		logger.Info("config reloaded", slog.String("file", e.Name))
		onChange(c)
	})
	viper.WatchConfig()
}

func unmarshal() (*AppConfig, error) {
	var c AppConfig
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}
	return &c, nil
}

func durationOrDefault(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
