// Package flagkit is a server-side client for local feature-flag
// evaluation and asynchronous event capture. It evaluates flags against
// a periodically-polled rule set without a network round trip in the
// common case, falling back to a remote decision endpoint when local
// evaluation is inconclusive, and batches captured events in the
// background.
package flagkit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const defaultHostURL = "https://us.i.posthog.com"

// Config holds the client's configuration (spec §6's configuration
// options table). Zero values are filled in by Validate with the
// documented defaults.
type Config struct {
	// Required.
	ProjectAPIKey string

	// PersonalAPIKey enables the rule-set endpoint. Its absence disables
	// local evaluation; flag queries fall straight through to /decide.
	PersonalAPIKey string

	HostURL string

	FeatureFlagPollInterval time.Duration

	FlushAt       int
	FlushInterval time.Duration
	MaxBatchSize  int
	MaxQueueSize  int

	FeatureFlagSentCacheSizeLimit           int
	FeatureFlagSentCacheSlidingExpiration   time.Duration
	FeatureFlagSentCacheCompactionPercentage float64

	DecisionCacheSize int

	// SuperProperties are merged into every captured event's properties.
	SuperProperties map[string]any

	// DisableFeatureFlagEvents suppresses $feature_flag_called capture
	// from IsFeatureEnabled/GetFeatureFlag/GetAllFeatureFlags.
	DisableFeatureFlagEvents bool

	// Logger receives the client's structured logs. Nil defaults to a
	// zerolog console logger writing to stdout.
	Logger *zerolog.Logger
}

// Validate fills in documented defaults and checks required fields.
func (c *Config) Validate() error {
	if c.ProjectAPIKey == "" {
		return fmt.Errorf("flagkit: ProjectAPIKey is required")
	}
	if c.HostURL == "" {
		c.HostURL = defaultHostURL
	}
	if c.FeatureFlagPollInterval <= 0 {
		c.FeatureFlagPollInterval = 30 * time.Second
	}
	if c.FlushAt <= 0 {
		c.FlushAt = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.FeatureFlagSentCacheSizeLimit <= 0 {
		c.FeatureFlagSentCacheSizeLimit = 50_000
	}
	if c.FeatureFlagSentCacheSlidingExpiration <= 0 {
		c.FeatureFlagSentCacheSlidingExpiration = 10 * time.Minute
	}
	if c.FeatureFlagSentCacheCompactionPercentage <= 0 {
		c.FeatureFlagSentCacheCompactionPercentage = 0.2
	}
	if c.DecisionCacheSize <= 0 {
		c.DecisionCacheSize = 10_000
	}
	return nil
}
