package evaluate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit-go/internal/wire"
)

func rawValue(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func pct(p float64) *float64 { return &p }

// Scenario 1: simple rollout.
func TestEvaluate_SimpleRollout(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "beta-feature",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{RolloutPercentage: pct(100)}},
		},
	}
	subject := Subject{DistinctID: "distinct-id"}

	d, err := Evaluate(flag, subject, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.Enabled)

	flag.Active = false
	d, err = Evaluate(flag, subject, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, d.Enabled)
	assert.Equal(t, ReasonFlagDisabled, d.Reason.Code)
}

// Scenario 2: person property exact match.
func TestEvaluate_PersonPropertyExactMatch(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "region-flag",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{
				Properties: []wire.PropertyFilter{{
					Type:     wire.FilterTypePerson,
					Key:      "region",
					Operator: wire.OpExact,
					Value:    rawValue(t, []string{"USA"}),
				}},
				RolloutPercentage: pct(100),
			}},
		},
	}

	enabled := Subject{DistinctID: "u1", PersonProperties: PropertyBag{"region": "USA"}}
	d, err := Evaluate(flag, enabled, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.Enabled)

	disabled := Subject{DistinctID: "u2", PersonProperties: PropertyBag{"region": "Canada"}}
	d, err = Evaluate(flag, disabled, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, d.Enabled)
}

// Scenario 3: multivariate variant overrides.
func TestEvaluate_MultivariateVariantOverrides(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "multivariate-flag",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{
				{
					Properties: []wire.PropertyFilter{{
						Type:     wire.FilterTypePerson,
						Key:      "email",
						Operator: wire.OpExact,
						Value:    rawValue(t, []string{"test@posthog.com"}),
					}},
					RolloutPercentage: pct(100),
					VariantOverride:   "second-variant",
				},
				{
					RolloutPercentage: pct(50),
					VariantOverride:   "first-variant",
				},
			},
			Multivariate: &wire.Multivariate{Variants: []wire.VariantSplit{
				{Key: "first-variant", RolloutPercentage: 50},
				{Key: "second-variant", RolloutPercentage: 50},
			}},
		},
	}

	matching := Subject{DistinctID: "test_id", PersonProperties: PropertyBag{"email": "test@posthog.com"}}
	d, err := Evaluate(flag, matching, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "second-variant", d.VariantKey)

	nonMatching := Subject{DistinctID: "example_id"}
	d, err = Evaluate(flag, nonMatching, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "first-variant", d.VariantKey)
}

// Scenario from 4.F.1: experience continuity forces Inconclusive.
func TestEvaluate_ExperienceContinuityIsInconclusive(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:                        "sticky-flag",
		Active:                     true,
		EnsureExperienceContinuity: true,
	}
	_, err := Evaluate(flag, Subject{DistinctID: "u1"}, SystemClock{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInconclusive)
}

func TestEvaluate_IsNotSetIsInconclusive(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "unset-check",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{
				Properties: []wire.PropertyFilter{{
					Type:     wire.FilterTypePerson,
					Key:      "missing_prop",
					Operator: wire.OpIsNotSet,
				}},
				RolloutPercentage: pct(100),
			}},
		},
	}
	_, err := Evaluate(flag, Subject{DistinctID: "u1"}, SystemClock{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInconclusive)
}

func TestEvaluate_NoGroupMatches(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "no-match",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{
				Properties: []wire.PropertyFilter{{
					Type:     wire.FilterTypePerson,
					Key:      "plan",
					Operator: wire.OpExact,
					Value:    rawValue(t, []string{"enterprise"}),
				}},
				RolloutPercentage: pct(100),
			}},
		},
	}
	d, err := Evaluate(flag, Subject{DistinctID: "u1", PersonProperties: PropertyBag{"plan": "free"}}, SystemClock{}, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, d.Enabled)
	assert.Equal(t, ReasonNoConditionMatch, d.Reason.Code)
}

func TestEvaluate_FlagDependency(t *testing.T) {
	dependency := wire.FlagDefinition{
		Key:    "base-flag",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{RolloutPercentage: pct(100)}},
		},
	}
	dependent := wire.FlagDefinition{
		Key:    "dependent-flag",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{
				Properties: []wire.PropertyFilter{{
					Type:            wire.FilterTypeFlag,
					Key:             "base-flag",
					Operator:        wire.OpFlagEvaluatesTo,
					Value:           rawValue(t, true),
					DependencyChain: []string{"base-flag"},
				}},
				RolloutPercentage: pct(100),
			}},
		},
	}

	ruleSet := &wire.RuleSet{Flags: []wire.FlagDefinition{dependency, dependent}}
	results := EvaluateAll(ruleSet, Subject{DistinctID: "u1"}, SystemClock{})
	require.False(t, results["base-flag"].Inconclusive)
	assert.True(t, results["base-flag"].Decision.Enabled)
	require.False(t, results["dependent-flag"].Inconclusive)
	assert.True(t, results["dependent-flag"].Decision.Enabled)
}

func TestEvaluate_FlagDependencyEmptyChainIsCycle(t *testing.T) {
	flag := wire.FlagDefinition{
		Key:    "cyclic-flag",
		Active: true,
		Filters: wire.FlagFilters{
			Groups: []wire.ConditionGroup{{
				Properties: []wire.PropertyFilter{{
					Type:     wire.FilterTypeFlag,
					Key:      "cyclic-flag",
					Operator: wire.OpFlagEvaluatesTo,
					Value:    rawValue(t, true),
				}},
				RolloutPercentage: pct(100),
			}},
		},
	}
	_, err := Evaluate(flag, Subject{DistinctID: "u1"}, SystemClock{}, nil, ResolvedFlags{}, nil)
	assert.ErrorIs(t, err, ErrInconclusive)
}

func TestEqualDependencyChains_NilEqualsEmpty(t *testing.T) {
	assert.True(t, EqualDependencyChains(nil, []string{}))
	assert.False(t, EqualDependencyChains(nil, []string{"a"}))
}
