// Package config loads the Brain's runtime configuration from a YAML file
// with environment-variable overrides, using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for a Brain server process.
type Config struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	LogLevel          string        `mapstructure:"log_level"`
	DataDir           string        `mapstructure:"data_dir"`
	HMACSecret        string        `mapstructure:"hmac_secret"`
	OperatorToken     string        `mapstructure:"operator_token"`
	MetricsPort       int           `mapstructure:"metrics_port"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ExecutionBaseURL  string        `mapstructure:"execution_base_url"`
	EgressTimeout     time.Duration `mapstructure:"egress_timeout"`
}

// Default returns hardcoded fallbacks applied before the config file and
// environment are layered on, matching the teacher's flag-default pattern.
func Default() Config {
	return Config{
		Host:             "localhost",
		Port:             8090,
		LogLevel:         "info",
		DataDir:          "./data",
		HMACSecret:       "dev-secret-change-me",
		OperatorToken:    "dev-operator-token",
		MetricsPort:      9090,
		ShutdownTimeout:  30 * time.Second,
		ExecutionBaseURL: "http://localhost:9100",
		EgressTimeout:    500 * time.Millisecond,
	}
}

// Load reads configPath (if non-empty and present) as YAML, then applies
// BRAIN_-prefixed environment variable overrides (e.g. BRAIN_HMAC_SECRET),
// on top of Default().
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("hmac_secret", cfg.HMACSecret)
	v.SetDefault("operator_token", cfg.OperatorToken)
	v.SetDefault("metrics_port", cfg.MetricsPort)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("execution_base_url", cfg.ExecutionBaseURL)
	v.SetDefault("egress_timeout", cfg.EgressTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
