// Package envconfig loads flagctl's runtime configuration from
// environment variables and an optional .env file, the same viper-based
// load-then-validate shape as the teacher's internal/config package.
package envconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds flagctl's configuration. Configuration priority:
// environment variables > .env file > defaults.
type Config struct {
	ProjectAPIKey  string
	PersonalAPIKey string
	HostURL        string
	PollInterval   time.Duration
	FlushInterval  time.Duration
}

// Load reads configuration from environment variables and ./.env (if
// present); environment variables take precedence over the .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig() // .env is optional
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		ProjectAPIKey:  strings.TrimSpace(v.GetString("FLAGKIT_PROJECT_API_KEY")),
		PersonalAPIKey: strings.TrimSpace(v.GetString("FLAGKIT_PERSONAL_API_KEY")),
		HostURL:        strings.TrimSpace(v.GetString("FLAGKIT_HOST_URL")),
		PollInterval:   v.GetDuration("FLAGKIT_POLL_INTERVAL"),
		FlushInterval:  v.GetDuration("FLAGKIT_FLUSH_INTERVAL"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("FLAGKIT_HOST_URL", "https://us.i.posthog.com")
	v.SetDefault("FLAGKIT_POLL_INTERVAL", "30s")
	v.SetDefault("FLAGKIT_FLUSH_INTERVAL", "30s")
}

func validate(cfg *Config) error {
	if cfg.ProjectAPIKey == "" {
		return fmt.Errorf("FLAGKIT_PROJECT_API_KEY must be set")
	}
	if cfg.HostURL == "" {
		return fmt.Errorf("FLAGKIT_HOST_URL must not be empty")
	}
	return nil
}
