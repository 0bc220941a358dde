package flagkit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagkit/flagkit-go/internal/cache"
	"github.com/flagkit/flagkit-go/internal/capture"
	"github.com/flagkit/flagkit-go/internal/decide"
	"github.com/flagkit/flagkit-go/internal/evaluate"
	"github.com/flagkit/flagkit-go/internal/ruleset"
)

// Properties is a bag of event or person properties.
type Properties map[string]any

// GroupProperties identifies one group a subject belongs to.
type GroupProperties struct {
	Key        string
	Properties Properties
}

// Client is the façade over local flag evaluation and asynchronous
// event capture (spec 4.L). All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	httpClient    *http.Client
	loader        *ruleset.Loader
	decideClient  *decide.Client
	decisionCache *cache.DecisionCache
	suppression   *cache.SuppressionCache
	queue         *capture.Queue
	clock         evaluate.Clock

	cancelPoll context.CancelFunc
	closeOnce  sync.Once
}

// NewClient constructs and starts a Client. It never blocks on network
// I/O: if a PersonalAPIKey is configured it launches the background
// rule-set poller (whose first fetch runs asynchronously), and it
// starts the capture queue's worker. Flag queries made before the
// first rule-set load completes fall back to the remote decision
// endpoint rather than waiting. Call Close to release these background
// resources.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "flagkit-client").Logger()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	c := &Client{
		cfg:          cfg,
		logger:       logger,
		httpClient:   httpClient,
		decideClient: decide.New(httpClient, cfg.HostURL, cfg.ProjectAPIKey, logger),
		decisionCache: cache.NewDecisionCache(cfg.DecisionCacheSize),
		suppression: cache.NewSuppressionCache(
			cfg.FeatureFlagSentCacheSizeLimit,
			cfg.FeatureFlagSentCacheSlidingExpiration,
			cfg.FeatureFlagSentCacheCompactionPercentage,
			nil,
		),
		clock: evaluate.SystemClock{},
	}

	sender := capture.NewHTTPSender(httpClient, cfg.HostURL, cfg.ProjectAPIKey, logger)
	c.queue = capture.NewQueue(sender, capture.Config{
		FlushAt:       cfg.FlushAt,
		FlushInterval: cfg.FlushInterval,
		MaxBatchSize:  cfg.MaxBatchSize,
		MaxQueueSize:  cfg.MaxQueueSize,
	}, logger)
	c.queue.Start()

	if cfg.PersonalAPIKey != "" {
		c.loader = ruleset.NewLoader(httpClient, ruleset.Config{
			HostURL:        cfg.HostURL,
			ProjectAPIKey:  cfg.ProjectAPIKey,
			PersonalAPIKey: cfg.PersonalAPIKey,
			PollInterval:   cfg.FeatureFlagPollInterval,
		}, logger)

		pollCtx, cancel := context.WithCancel(context.Background())
		c.cancelPoll = cancel
		c.loader.Start(pollCtx)
	}

	logger.Info().
		Str("host_url", cfg.HostURL).
		Bool("local_evaluation", c.loader != nil).
		Msg("flagkit client started")

	return c, nil
}

// Close stops the background poller and capture queue. The queue is
// drained (any buffered events are flushed) before Close returns. Safe
// to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.loader != nil {
			c.cancelPoll()
			c.loader.Stop()
		}
		c.queue.Close()
		c.logger.Info().Msg("flagkit client closed")
	})
}

// Flush forces an immediate delivery attempt of any buffered events.
func (c *Client) Flush() {
	c.queue.Flush()
}

func toSubject(distinctID string, personProperties Properties, groups map[string]GroupProperties) evaluate.Subject {
	s := evaluate.Subject{DistinctID: distinctID, PersonProperties: evaluate.PropertyBag(personProperties)}
	if len(groups) > 0 {
		s.Groups = make(map[string]evaluate.GroupContext, len(groups))
		for groupType, g := range groups {
			s.Groups[groupType] = evaluate.GroupContext{Key: g.Key, Properties: evaluate.PropertyBag(g.Properties)}
		}
	}
	return s
}
