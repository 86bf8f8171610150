/*
Package config loads server configuration from file and environment.

PURPOSE:
  Centralizes every tunable of the commission server. Values come from,
  in increasing precedence: built-in defaults, an optional config file
  (config.yaml in the working directory or /etc/commission-engine/),
  and MLM_* environment variables (MLM_SERVER_PORT, MLM_DB_PATH, ...).

SEE ALSO:
  - cmd/server/main.go: Consumes the loaded config
  - commission/rules.go: Rule-table values configured here
*/
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full server configuration.
type Config struct {
	Server struct {
		Port           int           `mapstructure:"port"`
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		AllowedOrigins []string      `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Rules struct {
		HoldPeriodDays int     `mapstructure:"hold_period_days"`
		BaseCurrency   string  `mapstructure:"base_currency"`
		CurrencyRate   float64 `mapstructure:"currency_rate"`
	} `mapstructure:"rules"`

	Scheduler struct {
		Enabled       bool          `mapstructure:"enabled"`
		CheckInterval time.Duration `mapstructure:"check_interval"`
	} `mapstructure:"scheduler"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads configuration from file and environment. A missing config
// file is fine; defaults plus environment carry a dev setup.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("db.path", "commissions.db")
	v.SetDefault("rules.hold_period_days", 7)
	v.SetDefault("rules.base_currency", "USD")
	v.SetDefault("rules.currency_rate", 89500)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", time.Hour)
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/commission-engine/")

	v.SetEnvPrefix("MLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
