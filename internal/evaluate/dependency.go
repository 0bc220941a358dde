package evaluate

import (
	"encoding/json"

	"github.com/flagkit/flagkit-go/internal/wire"
)

// ResolvedFlags satisfies FlagEvaluator over a set of already-computed
// flag decisions, populated by EvaluateAll as it walks the rule set's
// flags in declaration order.
type ResolvedFlags map[string]Decision

// EvaluatedFlag implements FlagEvaluator.
func (r ResolvedFlags) EvaluatedFlag(key string) (Decision, bool) {
	d, ok := r[key]
	return d, ok
}

// DependencyChainEmpty reports whether a dependencyChain is the cycle
// marker. A legitimate chain always names at least the referenced flag,
// so an empty chain can only mean the rule-set loader detected a cycle
// while precomputing it.
func DependencyChainEmpty(chain []string) bool { return len(chain) == 0 }

// EqualDependencyChains implements the filter-equality symmetry
// invariant for dependency chains: a nil chain and an explicit empty
// chain compare equal; a populated chain compares equal only
// element-for-element.
func EqualDependencyChains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// evaluateFlagDependency checks a `flagEvaluatesTo` filter against an
// already-resolved set of flag decisions.
func evaluateFlagDependency(filter wire.PropertyFilter, flags FlagEvaluator) (bool, error) {
	if DependencyChainEmpty(filter.DependencyChain) {
		return false, ErrInconclusive
	}
	if flags == nil {
		return false, ErrInconclusive
	}
	decision, ok := flags.EvaluatedFlag(filter.Key)
	if !ok {
		return false, ErrInconclusive
	}
	return matchDependencyExpectation(decision, filter.Value)
}

// matchDependencyExpectation applies spec 4.E's matching rule: a
// string-expected value matches the exact variant key (case-sensitive);
// boolean true matches any non-empty variant or a literal enabled=true;
// boolean false matches only a literal disabled result.
func matchDependencyExpectation(decision Decision, raw json.RawMessage) (bool, error) {
	var expectedBool bool
	if err := json.Unmarshal(raw, &expectedBool); err == nil {
		if expectedBool {
			return decision.Enabled || decision.VariantKey != "", nil
		}
		return !decision.Enabled && decision.VariantKey == "", nil
	}

	var expectedVariant string
	if err := json.Unmarshal(raw, &expectedVariant); err == nil {
		return decision.VariantKey == expectedVariant, nil
	}

	return false, ErrInconclusive
}
