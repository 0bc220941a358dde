// Package wire defines the JSON shapes exchanged with the rule-set,
// decide, capture, and remote-config endpoints.
package wire

import "encoding/json"

// FilterType names the kind of property a PropertyFilter inspects.
type FilterType string

const (
	FilterTypePerson FilterType = "person"
	FilterTypeGroup  FilterType = "group"
	FilterTypeCohort FilterType = "cohort"
	FilterTypeFlag   FilterType = "flag"
)

// Operator names a property-filter comparison.
type Operator string

const (
	OpExact          Operator = "exact"
	OpIsNot          Operator = "is_not"
	OpIsSet          Operator = "is_set"
	OpIsNotSet       Operator = "is_not_set"
	OpRegex          Operator = "regex"
	OpNotRegex       Operator = "not_regex"
	OpIContains      Operator = "icontains"
	OpNotIContains   Operator = "not_icontains"
	OpGT             Operator = "gt"
	OpGTE            Operator = "gte"
	OpLT             Operator = "lt"
	OpLTE            Operator = "lte"
	OpIsDateBefore   Operator = "is_date_before"
	OpIsDateAfter    Operator = "is_date_after"
	OpFlagEvaluatesTo Operator = "flag_evaluates_to"
)

// PropertyFilter is one predicate within a ConditionGroup.
type PropertyFilter struct {
	Type             FilterType      `json:"type"`
	Key              string          `json:"key"`
	Value            json.RawMessage `json:"value,omitempty"`
	Operator         Operator        `json:"operator"`
	GroupTypeIndex   *int            `json:"group_type_index,omitempty"`
	DependencyChain  []string        `json:"dependency_chain,omitempty"`
	Negation         bool            `json:"negation,omitempty"`
}

// ConditionGroup is one ordered entry in a flag's targeting filters.
type ConditionGroup struct {
	Properties        []PropertyFilter `json:"properties,omitempty"`
	RolloutPercentage *float64         `json:"rollout_percentage,omitempty"`
	VariantOverride   string           `json:"variant,omitempty"`
}

// VariantSplit is one entry of a multivariate flag's split table.
type VariantSplit struct {
	Key               string  `json:"key"`
	RolloutPercentage float64 `json:"rollout_percentage"`
}

// Multivariate holds the ordered variant split for a flag.
type Multivariate struct {
	Variants []VariantSplit `json:"variants"`
}

// FlagFilters is the `filters` object of a FlagDefinition.
type FlagFilters struct {
	Groups                   []ConditionGroup          `json:"groups"`
	Multivariate             *Multivariate              `json:"multivariate,omitempty"`
	Payloads                 map[string]json.RawMessage `json:"payloads,omitempty"`
	AggregationGroupTypeIndex *int                       `json:"aggregation_group_type_index,omitempty"`
}

// FlagDefinition is one entry of the rule set's `flags` array.
type FlagDefinition struct {
	ID                         int64       `json:"id"`
	Key                        string      `json:"key"`
	Active                     bool        `json:"active"`
	Filters                    FlagFilters `json:"filters"`
	EnsureExperienceContinuity bool        `json:"ensure_experience_continuity"`
}

// CohortType is the combination rule for a cohort's sub-conditions.
type CohortType string

const (
	CohortAND CohortType = "AND"
	CohortOR  CohortType = "OR"
)

// CohortValue is either an embedded PropertyFilter or a reference to
// another cohort by id. Exactly one of Filter/CohortID is set.
type CohortValue struct {
	Filter   *PropertyFilter `json:"filter,omitempty"`
	CohortID string          `json:"cohort_id,omitempty"`
	Negation bool            `json:"negation,omitempty"`
}

// Cohort is a reusable boolean expression over properties and other cohorts.
type Cohort struct {
	ID       string        `json:"id"`
	Type     CohortType    `json:"type"`
	Values   []CohortValue `json:"values"`
	Negation bool          `json:"negation,omitempty"`
}

// RuleSet is the full decoded response from the local-evaluation endpoint.
type RuleSet struct {
	Flags            []FlagDefinition  `json:"flags"`
	GroupTypeMapping map[string]string `json:"group_type_mapping"`
	Cohorts          map[string]Cohort `json:"cohorts"`
}

// QuotaLimitedBody is the shape of a 402 rule-set or decide response.
type QuotaLimitedBody struct {
	Type          string   `json:"type"`
	QuotaLimited  []string `json:"quotaLimited,omitempty"`
}

// DecideRequest is the body posted to /decide.
type DecideRequest struct {
	APIKey              string                     `json:"api_key"`
	DistinctID          string                     `json:"distinct_id"`
	Groups              map[string]string          `json:"groups,omitempty"`
	PersonProperties    map[string]any             `json:"person_properties,omitempty"`
	GroupProperties     map[string]map[string]any  `json:"group_properties,omitempty"`
	FlagKeysToEvaluate  []string                   `json:"flag_keys_to_evaluate,omitempty"`
}

// DecideResponseV3 is the legacy decide response shape.
type DecideResponseV3 struct {
	FeatureFlags         map[string]json.RawMessage `json:"featureFlags"`
	FeatureFlagPayloads   map[string]string          `json:"featureFlagPayloads"`
	QuotaLimited          []string                   `json:"quotaLimited,omitempty"`
}

// FlagMetadata carries the id/version/payload trio of a v4 flag result.
type FlagMetadata struct {
	ID      int64           `json:"id"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FlagResultV4 is one entry of a v4 decide response's `flags` map.
type FlagResultV4 struct {
	Key      string          `json:"key"`
	Enabled  bool            `json:"enabled"`
	Variant  string          `json:"variant,omitempty"`
	Reason   json.RawMessage `json:"reason,omitempty"`
	Metadata FlagMetadata    `json:"metadata"`
}

// DecideResponseV4 is the current decide response shape.
type DecideResponseV4 struct {
	Flags        map[string]FlagResultV4 `json:"flags"`
	RequestID    string                  `json:"requestId,omitempty"`
	QuotaLimited []string                `json:"quotaLimited,omitempty"`
}

// CapturedEvent is one entry of a capture batch.
type CapturedEvent struct {
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

// CaptureBatch is the body posted to /batch/.
type CaptureBatch struct {
	APIKey               string          `json:"api_key"`
	HistoricalMigrations bool            `json:"historical_migrations"`
	Batch                []CapturedEvent `json:"batch"`
}

// Reserved property keys used throughout the capture pipeline (spec §6).
const (
	PropLib                = "$lib"
	PropLibVersion         = "$lib_version"
	PropGeoipDisable       = "$geoip_disable"
	PropActiveFeatureFlags = "$active_feature_flags"
	PropFeatureFlag        = "$feature_flag"
	PropFeatureFlagResponse = "$feature_flag_response"
	PropFeatureFlagID      = "$feature_flag_id"
	PropFeatureFlagVersion = "$feature_flag_version"
	PropFeatureFlagReason  = "$feature_flag_reason"
	PropFeatureFlagRequestID = "$feature_flag_request_id"
	PropLocallyEvaluated   = "locally_evaluated"
	PropGroups             = "$groups"
	PropSet                = "$set"
	PropSetOnce            = "$set_once"
	PropGroupType          = "$group_type"
	PropGroupKey           = "$group_key"
	PropGroupSet           = "$group_set"

	EventIdentify         = "$identify"
	EventGroupIdentify    = "$groupidentify"
	EventFeatureFlagCalled = "$feature_flag_called"

	FeaturePropertyPrefix = "$feature/"
)
