package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "NUMCHAIN"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "numchain.db"
	defaultLogLevel         = "info"
	defaultEnvironment      = EnvironmentDevelopment
	defaultAccessTTLMinutes = 15
	defaultRefreshTTLHours  = 7 * 24
)

const (
	// EnvironmentDevelopment relaxes cookie policy for local browsers.
	EnvironmentDevelopment = "development"
	// EnvironmentProduction requires Secure cross-site cookies.
	EnvironmentProduction = "production"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	Environment   string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("environment", defaultEnvironment)
	configViper.SetDefault("auth.access_ttl_minutes", defaultAccessTTLMinutes)
	configViper.SetDefault("auth.refresh_ttl_hours", defaultRefreshTTLHours)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		Environment:   configViper.GetString("environment"),
		AccessSecret:  configViper.GetString("auth.access_secret"),
		RefreshSecret: configViper.GetString("auth.refresh_secret"),
		AccessTTL:     time.Duration(configViper.GetInt("auth.access_ttl_minutes")) * time.Minute,
		RefreshTTL:    time.Duration(configViper.GetInt("auth.refresh_ttl_hours")) * time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AccessSecret) == "" {
		return fmt.Errorf("auth.access_secret is required")
	}
	if strings.TrimSpace(c.RefreshSecret) == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("auth.access_secret and auth.refresh_secret must differ")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Environment != EnvironmentDevelopment && c.Environment != EnvironmentProduction {
		return fmt.Errorf("environment must be %q or %q", EnvironmentDevelopment, EnvironmentProduction)
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("auth.access_ttl_minutes must be positive")
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("auth.refresh_ttl_hours must be positive")
	}
	return nil
}
