package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "SHOWOFF"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "showoff.db"
	defaultLogLevel         = "info"
	defaultMediaDir         = "media"
	defaultMediaBaseURL     = "/media"
	defaultTokenTTL         = 24 * time.Hour
	defaultWorkerPollPeriod = 5 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	MediaDir         string
	MediaBaseURL     string
	SigningSecret    string
	TokenTTL         time.Duration
	WorkerPollPeriod time.Duration
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
	configViper.SetDefault("media.dir", defaultMediaDir)
	configViper.SetDefault("media.base_url", defaultMediaBaseURL)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("worker.poll_period", defaultWorkerPollPeriod)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		MediaDir:         configViper.GetString("media.dir"),
		MediaBaseURL:     configViper.GetString("media.base_url"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTL:         configViper.GetDuration("auth.token_ttl"),
		WorkerPollPeriod: configViper.GetDuration("worker.poll_period"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("media.dir is required")
	}
	return nil
}
