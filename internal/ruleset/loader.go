// Package ruleset polls the local-evaluation endpoint and holds the
// active flag/cohort snapshot behind an atomic reference, the same
// read-mostly pattern the teacher's internal/snapshot package uses for
// its push-based store, adapted here to pull-based HTTP polling with
// conditional requests.
package ruleset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagkit/flagkit-go/internal/telemetry"
	"github.com/flagkit/flagkit-go/internal/wire"
)

// Snapshot is one immutable, atomically-installed view of the rule set.
type Snapshot struct {
	RuleSet  wire.RuleSet
	ETag     string
	LoadedAt time.Time
}

// Transport is the minimal HTTP surface the loader needs; satisfied by
// *http.Client and by test doubles.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls how the Loader reaches the local-evaluation endpoint.
type Config struct {
	HostURL        string
	ProjectAPIKey  string
	PersonalAPIKey string
	PollInterval   time.Duration
}

// Loader polls the rule-set endpoint on a fixed interval and keeps the
// most recently successfully loaded Snapshot available to readers
// without locking.
type Loader struct {
	transport Transport
	cfg       Config
	logger    zerolog.Logger

	current atomic.Pointer[Snapshot]

	stop    chan struct{}
	stopped chan struct{}
}

// NewLoader constructs a Loader. PersonalAPIKey absent disables local
// evaluation entirely at the caller's discretion (spec §6); the loader
// itself will simply keep failing auth and logging, so callers should
// check before starting it.
func NewLoader(transport Transport, cfg Config, logger zerolog.Logger) *Loader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	l := &Loader{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With().Str("component", "ruleset-loader").Logger(),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	l.current.Store(&Snapshot{})
	return l
}

// Load returns the most recently installed Snapshot. It never blocks
// and never returns nil; an unloaded Loader returns an empty Snapshot
// whose RuleSet has no flags.
func (l *Loader) Load() *Snapshot {
	return l.current.Load()
}

// Start launches the background polling loop, including the first
// fetch. It never blocks the caller on network I/O: evaluation calls
// made before the first fetch completes see an empty snapshot and fall
// back to the remote decision endpoint (spec 4.L).
func (l *Loader) Start(ctx context.Context) {
	go l.run(ctx)
}

func (l *Loader) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	defer close(l.stopped)

	l.fetch(ctx)

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.fetch(ctx)
		}
	}
}

// Stop halts the polling loop and waits for it to exit.
func (l *Loader) Stop() {
	close(l.stop)
	<-l.stopped
}

// ClearLocalFlagsCache discards both the rule set and the entity tag,
// forcing a full fetch (no If-None-Match) on the next tick.
func (l *Loader) ClearLocalFlagsCache() {
	l.current.Store(&Snapshot{})
}

func (l *Loader) fetch(ctx context.Context) {
	url := fmt.Sprintf("%s/api/feature_flag/local_evaluation?token=%s&send_cohorts", l.cfg.HostURL, l.cfg.ProjectAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to build rule-set request")
		return
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.PersonalAPIKey)

	if prior := l.current.Load(); prior != nil && prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}

	resp, err := l.transport.Do(req)
	if err != nil {
		l.logger.Warn().Err(err).Msg("rule-set fetch failed, keeping prior snapshot")
		telemetry.RuleSetLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		l.handleFreshLoad(resp)
		telemetry.RuleSetLoadsTotal.WithLabelValues("fresh").Inc()
	case http.StatusNotModified:
		l.handleNotModified(resp)
		telemetry.RuleSetLoadsTotal.WithLabelValues("not_modified").Inc()
	case http.StatusPaymentRequired:
		l.logger.Warn().Msg("rule-set quota limited, clearing local evaluation state")
		l.ClearLocalFlagsCache()
		telemetry.RuleSetLoadsTotal.WithLabelValues("quota_limited").Inc()
	case http.StatusUnauthorized, http.StatusForbidden:
		l.logger.Error().Int("status", resp.StatusCode).Msg("rule-set authentication failed")
		telemetry.RuleSetLoadsTotal.WithLabelValues("auth_failed").Inc()
	default:
		l.logger.Warn().Int("status", resp.StatusCode).Msg("rule-set fetch returned unexpected status, keeping prior snapshot")
		telemetry.RuleSetLoadsTotal.WithLabelValues("error").Inc()
	}
}

func (l *Loader) handleFreshLoad(resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		l.logger.Warn().Err(err).Msg("failed to read rule-set body, keeping prior snapshot")
		return
	}

	var rs wire.RuleSet
	if err := json.Unmarshal(body, &rs); err != nil {
		l.logger.Warn().Err(err).Msg("malformed rule-set body, keeping prior snapshot")
		return
	}

	l.current.Store(&Snapshot{
		RuleSet:  rs,
		ETag:     resp.Header.Get("ETag"),
		LoadedAt: time.Now(),
	})
	l.logger.Debug().Int("flags", len(rs.Flags)).Msg("rule set loaded")
}

func (l *Loader) handleNotModified(resp *http.Response) {
	prior := l.current.Load()
	if prior == nil {
		prior = &Snapshot{}
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		etag = prior.ETag
	}
	l.current.Store(&Snapshot{RuleSet: prior.RuleSet, ETag: etag, LoadedAt: prior.LoadedAt})
}
