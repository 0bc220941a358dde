package flagkit

import (
	"context"

	"github.com/flagkit/flagkit-go/internal/cache"
	"github.com/flagkit/flagkit-go/internal/evaluate"
	"github.com/flagkit/flagkit-go/internal/telemetry"
	"github.com/flagkit/flagkit-go/internal/wire"
)

// FeatureFlagResult is the outcome of resolving one flag: whether it is
// enabled, which variant (if multivariate) was selected, any attached
// payload, and the reason code the decision was reached for.
type FeatureFlagResult struct {
	Key        string
	Enabled    bool
	VariantKey string
	Payload    []byte
	Reason     evaluate.DecisionReason
}

func fromDecision(d evaluate.Decision) FeatureFlagResult {
	return FeatureFlagResult{Key: d.Key, Enabled: d.Enabled, VariantKey: d.VariantKey, Payload: d.Payload, Reason: d.Reason}
}

// IsFeatureEnabled reports whether key is enabled for distinctId. When
// onlyEvaluateLocally is true, a flag local evaluation cannot resolve
// never falls back to the remote decision endpoint and is reported as
// disabled (spec 4.F scenario 4).
func (c *Client) IsFeatureEnabled(ctx context.Context, distinctID, key string, personProperties Properties, groups map[string]GroupProperties, onlyEvaluateLocally bool) (bool, error) {
	result, err := c.GetFeatureFlag(ctx, distinctID, key, personProperties, groups, onlyEvaluateLocally)
	if err != nil {
		return false, err
	}
	return result.Enabled, nil
}

// GetFeatureFlag resolves a single flag, preferring local evaluation and
// falling back to the remote decision endpoint when local evaluation is
// inconclusive or no rule set has been loaded, unless onlyEvaluateLocally
// is true (spec 4.F).
func (c *Client) GetFeatureFlag(ctx context.Context, distinctID, key string, personProperties Properties, groups map[string]GroupProperties, onlyEvaluateLocally bool) (FeatureFlagResult, error) {
	all, err := c.getAllFeatureFlags(ctx, distinctID, personProperties, groups, []string{key}, onlyEvaluateLocally)
	if err != nil {
		return FeatureFlagResult{Key: key}, err
	}
	if result, ok := all[key]; ok {
		return result, nil
	}
	return FeatureFlagResult{Key: key}, nil
}

// GetAllFeatureFlags resolves every flag in the active rule set (plus
// any still reachable only remotely, unless onlyEvaluateLocally is true)
// for distinctId.
func (c *Client) GetAllFeatureFlags(ctx context.Context, distinctID string, personProperties Properties, groups map[string]GroupProperties, onlyEvaluateLocally bool) (map[string]FeatureFlagResult, error) {
	return c.getAllFeatureFlags(ctx, distinctID, personProperties, groups, nil, onlyEvaluateLocally)
}

// getAllFeatureFlags is the shared driver. requestedKeys narrows which
// flags are forced through the remote endpoint when local evaluation
// can't resolve them; nil means "fall back for every inconclusive flag".
// A non-nil requestedKeys also limits the returned map to those keys.
// The decision cache is only consulted/populated for calls that may
// fall back remotely: an onlyEvaluateLocally=true decision and a
// onlyEvaluateLocally=false decision for the same fingerprint can
// legitimately differ (one forces Inconclusive to false, the other
// defers to /decide), so they must never share a cache entry. It is
// also only used for full (nil requestedKeys) resolutions, since its
// key does not include the requested flag keys.
func (c *Client) getAllFeatureFlags(ctx context.Context, distinctID string, personProperties Properties, groups map[string]GroupProperties, requestedKeys []string, onlyEvaluateLocally bool) (map[string]FeatureFlagResult, error) {
	subject := toSubject(distinctID, personProperties, groups)
	fingerprint := cache.Fingerprint(distinctID, personProperties, toCacheGroups(groups))

	var decisions map[string]evaluate.Decision
	if onlyEvaluateLocally {
		decisions = c.resolve(ctx, subject, requestedKeys, true)
	} else if len(requestedKeys) > 0 {
		decisions = c.resolve(ctx, subject, requestedKeys, false)
	} else if cached, ok := c.decisionCache.Get(fingerprint); ok {
		decisions = cached
	} else {
		decisions = c.resolve(ctx, subject, requestedKeys, false)
		c.decisionCache.Put(fingerprint, decisions)
	}

	out := make(map[string]FeatureFlagResult, len(decisions))
	for key, d := range decisions {
		out[key] = fromDecision(d)
		c.maybeEmitFlagCalled(ctx, key, distinctID, fingerprint, d)
	}
	return out, nil
}

// resolve evaluates locally against the current rule set, then fills in
// any inconclusive (or, with no rule set loaded, every requested) flag
// via the remote decision endpoint — unless onlyEvaluateLocally is true,
// in which case an inconclusive flag is reported disabled instead of
// ever reaching the network (spec 4.F).
func (c *Client) resolve(ctx context.Context, subject evaluate.Subject, requestedKeys []string, onlyEvaluateLocally bool) map[string]evaluate.Decision {
	out := make(map[string]evaluate.Decision)
	var remoteKeys []string

	// A loader whose first fetch has not landed (or whose rule set was
	// cleared) has nothing to evaluate against; treat it like no loader.
	var ruleSet *wire.RuleSet
	if c.loader != nil {
		if snapshot := c.loader.Load(); !snapshot.LoadedAt.IsZero() {
			ruleSet = &snapshot.RuleSet
		}
	}

	if ruleSet != nil {
		results := evaluate.EvaluateAll(ruleSet, subject, c.clock)
		for key, r := range results {
			if len(requestedKeys) > 0 && !contains(requestedKeys, key) {
				continue
			}
			if r.Inconclusive {
				if onlyEvaluateLocally {
					out[key] = evaluate.Decision{
						Key:    key,
						Reason: evaluate.DecisionReason{Code: evaluate.ReasonInconclusiveLocalOnly},
					}
					continue
				}
				remoteKeys = append(remoteKeys, key)
				continue
			}
			out[key] = r.Decision
			telemetry.DecisionsTotal.WithLabelValues("local", outcomeLabel(r.Decision)).Inc()
		}
	} else if onlyEvaluateLocally {
		for _, key := range requestedKeys {
			out[key] = evaluate.Decision{
				Key:    key,
				Reason: evaluate.DecisionReason{Code: evaluate.ReasonInconclusiveLocalOnly},
			}
		}
	} else {
		remoteKeys = requestedKeys
	}

	if onlyEvaluateLocally {
		return out
	}

	if ruleSet == nil && len(requestedKeys) == 0 {
		remoteKeys = nil // Decide with an empty key list means "all flags".
	}
	if ruleSet != nil && len(remoteKeys) == 0 {
		return out
	}

	remote := c.decideClient.Decide(ctx, subject, remoteKeys)
	for key, d := range remote {
		out[key] = d
		telemetry.DecisionsTotal.WithLabelValues("remote", outcomeLabel(d)).Inc()
	}
	return out
}

func outcomeLabel(d evaluate.Decision) string {
	if d.Enabled {
		return "enabled"
	}
	return "disabled"
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func toCacheGroups(groups map[string]GroupProperties) map[string]cache.Group {
	if len(groups) == 0 {
		return nil
	}
	out := make(map[string]cache.Group, len(groups))
	for groupType, g := range groups {
		out[groupType] = cache.Group{Key: g.Key, Properties: g.Properties}
	}
	return out
}

// maybeEmitFlagCalled captures a $feature_flag_called event the first
// time this (flagKey, distinctId, fingerprint) triple is observed within
// the suppression cache's TTL, per spec 4.J.
func (c *Client) maybeEmitFlagCalled(ctx context.Context, flagKey, distinctID string, fingerprint uint64, d evaluate.Decision) {
	if c.cfg.DisableFeatureFlagEvents {
		return
	}
	if !c.suppression.ShouldEmit(flagKey, distinctID, fingerprint) {
		return
	}

	props := Properties{
		wire.PropFeatureFlag:         flagKey,
		wire.PropFeatureFlagResponse: flagPropertyValue(fromDecision(d)),
		wire.PropLocallyEvaluated:    c.loader != nil,
	}
	c.Capture(ctx, distinctID, wire.EventFeatureFlagCalled, props, nil, false)
}
