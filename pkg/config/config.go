// Package config provides configuration types and loaders for BackupFlow.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ErrLoadSettings indicates the settings file could not be read or decoded
var ErrLoadSettings = errors.New("settings load failed")

// AppSettings holds process level settings that are not part of a backup strategy
type AppSettings struct {
	Debug          bool   `mapstructure:"debug"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsPort    string `mapstructure:"metrics_port"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Schedule       string `mapstructure:"backup_schedule"`
	HistoryFile    string `mapstructure:"history_file"`
	HistoryDSN     string `mapstructure:"history_dsn"`
	HistoryLimit   int    `mapstructure:"history_limit"`
}

// Lookup resolves a configuration key. An empty value is reported as unset.
type Lookup func(key string) (string, bool)

// EnvLookup reads keys from the process environment
func EnvLookup(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return "", false
	}
	return value, true
}

// MapLookup reads keys from a fixed map
func MapLookup(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		if !ok || value == "" {
			return "", false
		}
		return value, true
	}
}

// ViperLookup reads keys through viper, so environment variables take precedence
// over values from the settings file
func ViperLookup(v *viper.Viper) Lookup {
	return func(key string) (string, bool) {
		value := v.GetString(key)
		if value == "" {
			return "", false
		}
		return value, true
	}
}

// NewViper builds the viper instance shared by settings and strategy lookups.
// path may be empty, in which case only the environment is consulted.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadSettings, path, err)
		}
	}

	return v, nil
}

// setDefaults sets default values for process settings
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_port", "8080")
	v.SetDefault("pushgateway_url", "")
	v.SetDefault("backup_schedule", "")
	v.SetDefault("history_file", "")
	v.SetDefault("history_dsn", "")
	v.SetDefault("history_limit", 50)
}

// LoadSettings decodes AppSettings from v
func LoadSettings(v *viper.Viper) (AppSettings, error) {
	var settings AppSettings
	// AutomaticEnv only applies to keys viper already knows, so bind them explicitly.
	for _, key := range []string{"debug", "log_level", "log_file", "log_format", "metrics_port",
		"pushgateway_url", "backup_schedule", "history_file", "history_dsn", "history_limit"} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return settings, fmt.Errorf("%w: bind %s: %v", ErrLoadSettings, key, err)
		}
	}
	if err := v.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("%w: decode: %v", ErrLoadSettings, err)
	}
	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = 50
	}
	return settings, nil
}

// ParseFlag interprets a strategy boolean setting. Only true, 1, yes and on
// (in any case) are true; every other value is false.
func ParseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// BoolOrDefault reads a boolean key, falling back when unset
func BoolOrDefault(lookup Lookup, key string, defaultValue bool) bool {
	value, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	return ParseFlag(value)
}

// StringOrDefault reads a string key, falling back when unset
func StringOrDefault(lookup Lookup, key, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

// OptionalInt reads an integer key. Unset or unparsable values yield nil.
func OptionalInt(lookup Lookup, key string) *int {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &n
}

// IntOrDefault reads an integer key, falling back when unset. An unparsable
// value is an error.
func IntOrDefault(lookup Lookup, key string, defaultValue int) (int, error) {
	value, ok := lookup(key)
	if !ok {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	return n, nil
}

// MaskSensitive masks a credential for display
func MaskSensitive(info string) string {
	if info == "" {
		return "[not set]"
	}

	if len(info) <= 4 {
		return "****"
	}

	return info[:2] + "****" + info[len(info)-2:]
}

// DisplaySettings logs the effective process settings
func DisplaySettings(log logrus.FieldLogger, s AppSettings) {
	log.WithFields(logrus.Fields{
		"debug":       s.Debug,
		"logLevel":    s.LogLevel,
		"logFile":     s.LogFile,
		"metricsPort": s.MetricsPort,
		"pushgateway": s.PushgatewayURL != "",
		"schedule":    s.Schedule,
		"historyFile": s.HistoryFile,
		"historyDB":   s.HistoryDSN != "",
	}).Debug("Effective settings")
}
