package flagkit

import (
	"context"
	"time"

	"github.com/flagkit/flagkit-go/internal/wire"
)

// Capture enqueues an event for asynchronous delivery. When
// sendFeatureFlags is true, all flag decisions for distinctId are
// resolved first (consulting the decision cache) and merged into
// properties as $feature/<key> entries plus $active_feature_flags,
// matching spec 4.L.
func (c *Client) Capture(ctx context.Context, distinctID, event string, properties Properties, groups map[string]GroupProperties, sendFeatureFlags bool) {
	merged := make(Properties, len(c.cfg.SuperProperties)+len(properties)+2)
	for k, v := range c.cfg.SuperProperties {
		merged[k] = v
	}
	for k, v := range properties {
		merged[k] = v
	}

	if len(groups) > 0 {
		groupKeys := make(map[string]string, len(groups))
		for groupType, g := range groups {
			groupKeys[groupType] = g.Key
		}
		merged[wire.PropGroups] = groupKeys
	}

	if sendFeatureFlags {
		decisions, err := c.GetAllFeatureFlags(ctx, distinctID, nil, groups, false)
		if err != nil {
			c.logger.Warn().Err(err).Str("distinct_id", distinctID).Msg("failed to resolve flags for event enrichment")
		} else {
			active := make([]string, 0, len(decisions))
			for key, d := range decisions {
				merged[wire.FeaturePropertyPrefix+key] = flagPropertyValue(d)
				if d.Enabled {
					active = append(active, key)
				}
			}
			merged[wire.PropActiveFeatureFlags] = active
		}
	}

	c.queue.Enqueue(wire.CapturedEvent{
		Event:      event,
		DistinctID: distinctID,
		Properties: merged,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func flagPropertyValue(d FeatureFlagResult) any {
	if d.VariantKey != "" {
		return d.VariantKey
	}
	return d.Enabled
}

// Identify emits a $identify event carrying $set/$set_once person
// properties.
func (c *Client) Identify(ctx context.Context, distinctID string, set, setOnce Properties) {
	props := Properties{}
	if len(set) > 0 {
		props[wire.PropSet] = set
	}
	if len(setOnce) > 0 {
		props[wire.PropSetOnce] = setOnce
	}
	c.Capture(ctx, distinctID, wire.EventIdentify, props, nil, false)
}

// GroupIdentify emits a $groupidentify event carrying $group_set
// properties for one group instance.
func (c *Client) GroupIdentify(ctx context.Context, groupType, groupKey string, groupSet Properties) {
	props := Properties{
		wire.PropGroupType: groupType,
		wire.PropGroupKey:  groupKey,
	}
	if len(groupSet) > 0 {
		props[wire.PropGroupSet] = groupSet
	}
	c.Capture(ctx, groupKey, wire.EventGroupIdentify, props, nil, false)
}
