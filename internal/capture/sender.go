package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flagkit/flagkit-go/internal/wire"
)

// Transport is the minimal HTTP surface the sender needs.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxAttempts bounds retries per batch; past this the batch is dropped
// and logged rather than retried indefinitely, matching the teacher's
// dispatcher bounding webhook deliveries to MaxRetries attempts.
const maxAttempts = 5

// httpSender POSTs batches to the capture endpoint's /batch/ route,
// retrying transient failures with exponential backoff. It replaces the
// teacher's hand-rolled math.Pow(2, attempt) wait with
// github.com/cenkalti/backoff/v5, but otherwise follows
// internal/webhook.Dispatcher.deliverWithRetry: a fresh request per
// attempt, a per-request timeout, and a delivery id for tracing.
type httpSender struct {
	transport Transport
	hostURL   string
	apiKey    string
	logger    zerolog.Logger
}

// NewHTTPSender constructs a Sender that ships batches over HTTP.
func NewHTTPSender(transport Transport, hostURL, apiKey string, logger zerolog.Logger) Sender {
	return &httpSender{
		transport: transport,
		hostURL:   hostURL,
		apiKey:    apiKey,
		logger:    logger.With().Str("component", "capture-sender").Logger(),
	}
}

func (s *httpSender) Send(batch []wire.CapturedEvent) error {
	deliveryID := uuid.New().String()
	body, err := json.Marshal(wire.CaptureBatch{
		APIKey: s.apiKey,
		Batch:  batch,
	})
	if err != nil {
		return fmt.Errorf("encode capture batch: %w", err)
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequest(http.MethodPost, s.hostURL+"/batch/", bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("build capture request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req = req.WithContext(ctx)

		resp, err := s.transport.Do(req)
		if err != nil {
			s.logger.Warn().Str("delivery_id", deliveryID).Err(err).Msg("capture batch delivery attempt failed")
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logger.Debug().Str("delivery_id", deliveryID).Int("batch_size", len(batch)).Msg("capture batch delivered")
			return struct{}{}, nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return struct{}{}, backoff.Permanent(fmt.Errorf("capture batch rejected with status %d", resp.StatusCode))
		}
		return struct{}{}, fmt.Errorf("capture batch delivery returned status %d", resp.StatusCode)
	}

	_, err = backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	return err
}
