// Package config loads garage settings from garage.yaml and GARAGE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// GARAGE_LEGACY_DB for legacy.db.
const EnvPrefix = "GARAGE"

// Config holds the settings shared by serve and the legacy commands.
type Config struct {
	AllowedHomeIP string `mapstructure:"allowed_home_ip"`
	Legacy        Legacy `mapstructure:"legacy"`
	Backup        Backup `mapstructure:"backup"`
	Import        Import `mapstructure:"import"`
	Log           Log    `mapstructure:"log"`
}

type Legacy struct {
	DB string `mapstructure:"db"`
}

type Backup struct {
	Dir string `mapstructure:"dir"`
}

type Import struct {
	Strict bool `mapstructure:"strict"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allowed_home_ip", "")
	v.SetDefault("legacy.db", "legacy.db")
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("import.strict", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration. An explicit path must exist; without one,
// garage.yaml is looked up in the working directory and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The admin deployment predates the prefix.
	if err := v.BindEnv("allowed_home_ip", EnvPrefix+"_ALLOWED_HOME_IP", "ALLOWED_HOME_IP"); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName("garage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Legacy.DB == "" {
		return errors.New("legacy.db must not be empty")
	}
	if c.Backup.Dir == "" {
		return errors.New("backup.dir must not be empty")
	}
	return nil
}
