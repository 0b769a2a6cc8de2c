// Package conf loads faultwatch settings from YAML files and FAULTWATCH_*
// environment variables.
package conf

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/faultwatch/faultwatch/internal/errors"
)

// Database types.
const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// EnvPrefix prefixes environment overrides, e.g. FAULTWATCH_DATABASE_DSN.
const EnvPrefix = "FAULTWATCH"

// Settings is the root configuration.
type Settings struct {
	Database  DatabaseSettings  `mapstructure:"database" yaml:"database" json:"database"`
	Logging   LoggingSettings   `mapstructure:"logging" yaml:"logging" json:"logging"`
	Alert     AlertSettings     `mapstructure:"alert" yaml:"alert" json:"alert"`
	Runner    RunnerSettings    `mapstructure:"runner" yaml:"runner" json:"runner"`
	API       APISettings       `mapstructure:"api" yaml:"api" json:"api"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
}

type DatabaseSettings struct {
	Type         string `mapstructure:"type" yaml:"type" json:"type"`
	Path         string `mapstructure:"path" yaml:"path" json:"path"`
	DSN          string `mapstructure:"dsn" yaml:"dsn" json:"-"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
}

type LoggingSettings struct {
	Level   string `mapstructure:"level" yaml:"level" json:"level"`
	Console bool   `mapstructure:"console" yaml:"console" json:"console"`
}

// AlertSettings holds the contact policy and the rule macro table.
type AlertSettings struct {
	// DefaultOnly sends everything to DefaultMail and nobody else.
	DefaultOnly bool `mapstructure:"default_only" yaml:"default_only" json:"default_only"`
	// SysContact includes each device's sysContact (or its override).
	SysContact bool `mapstructure:"syscontact" yaml:"syscontact" json:"syscontact"`
	// Users includes users owning the faulting device, port or bill.
	Users bool `mapstructure:"users" yaml:"users" json:"users"`
	// Globals includes admin and global-read users. Takes precedence over Admins.
	Globals bool `mapstructure:"globals" yaml:"globals" json:"globals"`
	// Admins includes admin users.
	Admins bool `mapstructure:"admins" yaml:"admins" json:"admins"`

	DefaultMail   string `mapstructure:"default_mail" yaml:"default_mail" json:"default_mail"`
	DefaultCopy   bool   `mapstructure:"default_copy" yaml:"default_copy" json:"default_copy"`
	DefaultIfNone bool   `mapstructure:"default_if_none" yaml:"default_if_none" json:"default_if_none"`

	Macros MacroSettings `mapstructure:"macros" yaml:"macros" json:"macros"`

	// LogRetentionDays bounds alert_log history. 0 keeps everything.
	LogRetentionDays int `mapstructure:"log_retention_days" yaml:"log_retention_days" json:"log_retention_days"`
}

// MacroSettings maps macro names to SQL fragments referenced from rule
// queries as %macros.<name>.
type MacroSettings struct {
	Rule map[string]string `mapstructure:"rule" yaml:"rule" json:"rule"`
}

type RunnerSettings struct {
	// Concurrency bounds how many devices are evaluated at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	// Interval is the evaluation period used by `faultwatch serve`.
	Interval Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	// RuleCacheTTL bounds how long a device's valid rule set is memoized.
	RuleCacheTTL Duration `mapstructure:"rule_cache_ttl" yaml:"rule_cache_ttl" json:"rule_cache_ttl"`
	// QueryTimeout bounds a single rule query.
	QueryTimeout Duration `mapstructure:"query_timeout" yaml:"query_timeout" json:"query_timeout"`
}

type APISettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" json:"listen"`
}

type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn" json:"-"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.type", DatabaseSQLite)
	v.SetDefault("database.path", "faultwatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("alert.syscontact", true)
	v.SetDefault("alert.users", false)
	v.SetDefault("alert.globals", false)
	v.SetDefault("alert.admins", false)
	v.SetDefault("alert.default_if_none", false)
	v.SetDefault("alert.log_retention_days", 0)
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.interval", "5m")
	v.SetDefault("runner.rule_cache_ttl", "5m")
	v.SetDefault("runner.query_timeout", "30s")
	v.SetDefault("api.listen", ":8480")
	v.SetDefault("telemetry.environment", "production")
}

// Defaults returns settings with only the built-in defaults applied.
func Defaults() *Settings {
	s, err := decode(newViper())
	if err != nil {
		// Defaults are static, a failure here is a programming error.
		panic(err)
	}
	return s
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings from path. An empty path searches ./faultwatch.yaml and
// /etc/faultwatch/faultwatch.yaml and tolerates neither existing.
func Load(path string) (*Settings, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("faultwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/faultwatch")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Newf("failed to read config: %w", err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
	}

	s, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.Newf("failed to decode config: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &s, nil
}

// Validate rejects settings the runtime cannot start with.
func (s *Settings) Validate() error {
	invalid := func(field string, value any, msg string) error {
		return errors.Newf("invalid %s: %s", field, msg).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("field", field).
			Context("value", value).
			Build()
	}

	switch s.Database.Type {
	case DatabaseSQLite:
		if s.Database.Path == "" {
			return invalid("database.path", s.Database.Path, "required for sqlite")
		}
	case DatabaseMySQL:
		if s.Database.DSN == "" {
			return invalid("database.dsn", "", "required for mysql")
		}
	default:
		return invalid("database.type", s.Database.Type, "must be sqlite or mysql")
	}

	if s.Runner.Concurrency < 1 {
		return invalid("runner.concurrency", s.Runner.Concurrency, "must be at least 1")
	}
	if s.Runner.Interval.Std() < time.Second {
		return invalid("runner.interval", s.Runner.Interval.String(), "must be at least 1s")
	}
	if s.Runner.RuleCacheTTL < 0 || s.Runner.QueryTimeout < 0 {
		return invalid("runner", s.Runner.RuleCacheTTL.String(), "durations must not be negative")
	}
	if s.Alert.LogRetentionDays < 0 {
		return invalid("alert.log_retention_days", s.Alert.LogRetentionDays, "must not be negative")
	}
	for name := range s.Alert.Macros.Rule {
		if name == "" {
			return invalid("alert.macros.rule", name, "macro names must not be empty")
		}
	}
	return nil
}
