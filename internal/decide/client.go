// Package decide implements the remote decision client: the fallback
// path the local evaluator defers to when it cannot reach a conclusion
// on its own.
package decide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/flagkit/flagkit-go/internal/evaluate"
	"github.com/flagkit/flagkit-go/internal/wire"
)

// Transport is the minimal HTTP surface the client needs.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts subject context to the /decide endpoint and projects the
// response into the common Decision shape.
type Client struct {
	transport Transport
	hostURL   string
	apiKey    string
	logger    zerolog.Logger
}

// New constructs a decision Client.
func New(transport Transport, hostURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		transport: transport,
		hostURL:   hostURL,
		apiKey:    apiKey,
		logger:    logger.With().Str("component", "decide-client").Logger(),
	}
}

// Decide evaluates the requested flags (or all flags, if keys is empty)
// remotely. Transport and schema failures never escape as an error to
// the caller's flag-query methods: they are logged here and an empty
// result map is returned, which callers observe as flags being absent
// (enabled=false / variant=null).
func (c *Client) Decide(ctx context.Context, subject evaluate.Subject, keys []string) map[string]evaluate.Decision {
	body, err := json.Marshal(wire.DecideRequest{
		APIKey:             c.apiKey,
		DistinctID:         subject.DistinctID,
		Groups:             groupKeys(subject),
		PersonProperties:   subject.PersonProperties,
		GroupProperties:    groupProperties(subject),
		FlagKeysToEvaluate: keys,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode decide request")
		return nil
	}

	url := fmt.Sprintf("%s/decide?v=4", c.hostURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to build decide request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.transport.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("decide request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("decide endpoint returned non-200")
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read decide response")
		return nil
	}

	return parseResponse(respBody, c.logger)
}

func groupKeys(subject evaluate.Subject) map[string]string {
	if len(subject.Groups) == 0 {
		return nil
	}
	out := make(map[string]string, len(subject.Groups))
	for groupType, g := range subject.Groups {
		out[groupType] = g.Key
	}
	return out
}

func groupProperties(subject evaluate.Subject) map[string]map[string]any {
	if len(subject.Groups) == 0 {
		return nil
	}
	out := make(map[string]map[string]any, len(subject.Groups))
	for groupType, g := range subject.Groups {
		out[groupType] = g.Properties
	}
	return out
}

// parseResponse handles both the legacy v3 shape and the current v4
// shape, projecting either into the common Decision type.
func parseResponse(body []byte, logger zerolog.Logger) map[string]evaluate.Decision {
	var probe struct {
		Flags        json.RawMessage `json:"flags"`
		FeatureFlags json.RawMessage `json:"featureFlags"`
		QuotaLimited []string        `json:"quotaLimited"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		logger.Warn().Err(err).Msg("malformed decide response")
		return nil
	}

	for _, q := range probe.QuotaLimited {
		if q == "feature_flags" {
			logger.Warn().Msg("decide endpoint reported feature_flags quota limited")
			return nil
		}
	}

	if probe.Flags != nil {
		var v4 wire.DecideResponseV4
		if err := json.Unmarshal(body, &v4); err != nil {
			logger.Warn().Err(err).Msg("malformed v4 decide response")
			return nil
		}
		return projectV4(v4)
	}

	var v3 wire.DecideResponseV3
	if err := json.Unmarshal(body, &v3); err != nil {
		logger.Warn().Err(err).Msg("malformed v3 decide response")
		return nil
	}
	return projectV3(v3)
}

func projectV4(resp wire.DecideResponseV4) map[string]evaluate.Decision {
	out := make(map[string]evaluate.Decision, len(resp.Flags))
	for key, f := range resp.Flags {
		out[key] = evaluate.Decision{
			Key:        key,
			Enabled:    f.Enabled,
			VariantKey: f.Variant,
			Payload:    f.Metadata.Payload,
		}
	}
	return out
}

func projectV3(resp wire.DecideResponseV3) map[string]evaluate.Decision {
	out := make(map[string]evaluate.Decision, len(resp.FeatureFlags))
	for key, raw := range resp.FeatureFlags {
		d := evaluate.Decision{Key: key}

		var asBool bool
		if err := json.Unmarshal(raw, &asBool); err == nil {
			d.Enabled = asBool
		} else {
			var asVariant string
			if err := json.Unmarshal(raw, &asVariant); err == nil {
				d.Enabled = asVariant != ""
				d.VariantKey = asVariant
			}
		}

		if payload, ok := resp.FeatureFlagPayloads[key]; ok {
			d.Payload = []byte(payload)
		}
		out[key] = d
	}
	return out
}
