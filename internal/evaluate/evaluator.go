package evaluate

import (
	"github.com/flagkit/flagkit-go/internal/rollout"
	"github.com/flagkit/flagkit-go/internal/wire"
)

// Evaluate is the local evaluator driver for a single flag: it walks
// the flag's condition groups, resolves a winning group's variant, and
// produces a Decision. It returns ErrInconclusive (never a Decision)
// whenever any part of the evaluation needs information the SDK cannot
// assert locally (experience continuity, an unset-property check, an
// unresolved cohort, or an unresolved flag dependency) — callers are
// expected to fall back to the remote decision endpoint in that case.
func Evaluate(flag wire.FlagDefinition, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string) (Decision, error) {
	if flag.EnsureExperienceContinuity {
		return Decision{}, ErrInconclusive
	}

	if !flag.Active {
		return Decision{
			Key:     flag.Key,
			Enabled: false,
			Reason:  DecisionReason{Code: ReasonFlagDisabled, Description: "flag is not active"},
		}, nil
	}

	for i, group := range flag.Filters.Groups {
		matched, err := EvaluateGroup(group, flag.Key, subject, clock, cohorts, flags, groupTypes, flag.Filters.AggregationGroupTypeIndex)
		if err != nil {
			return Decision{}, err
		}
		if !matched {
			continue
		}

		variantKey, reason := resolveVariant(group, flag.Filters.Multivariate, flag.Key, subject, groupTypes, flag.Filters.AggregationGroupTypeIndex)
		decision := Decision{
			Key:        flag.Key,
			Enabled:    true,
			VariantKey: variantKey,
			Reason:     DecisionReason{Code: reason, ConditionIndex: i},
		}
		if payload, ok := flag.Filters.Payloads[payloadKey(variantKey)]; ok {
			decision.Payload = payload
		}
		return decision, nil
	}

	return Decision{
		Key:     flag.Key,
		Enabled: false,
		Reason:  DecisionReason{Code: ReasonNoConditionMatch},
	}, nil
}

func payloadKey(variantKey string) string {
	if variantKey == "" {
		return "true"
	}
	return variantKey
}

// resolveVariant applies a group's variantOverride when present and
// valid, otherwise computes the variant split via the variant-salted
// rollout hash.
func resolveVariant(group wire.ConditionGroup, multivariate *wire.Multivariate, flagKey string, subject Subject, groupTypes map[int]string, aggregationGroupTypeIndex *int) (string, Reason) {
	if multivariate == nil || len(multivariate.Variants) == 0 {
		return "", ReasonConditionMatch
	}

	if group.VariantOverride != "" && variantExists(multivariate, group.VariantOverride) {
		return group.VariantOverride, ReasonConditionMatch
	}

	variants := make([]rollout.Variant, 0, len(multivariate.Variants))
	for _, v := range multivariate.Variants {
		variants = append(variants, rollout.Variant{Key: v.Key, RolloutPercentage: v.RolloutPercentage})
	}

	subjectID := groupSubjectID(subject, aggregationGroupTypeIndex, groupTypes)
	key, err := rollout.SelectVariant(flagKey, subjectID, variants)
	if err != nil || key == "" {
		return "", ReasonMultivariateDefault
	}
	return key, ReasonConditionMatch
}

func variantExists(multivariate *wire.Multivariate, key string) bool {
	for _, v := range multivariate.Variants {
		if v.Key == key {
			return true
		}
	}
	return false
}

// EvaluateAll evaluates every flag in the rule set once, in declaration
// order, recording each conclusive result in a ResolvedFlags accumulator
// so that later flags' flagEvaluatesTo filters can resolve. Flags are not
// reordered by dependencyChain: a flag whose dependency is declared after
// it finds no resolved result and comes out Inconclusive.
func EvaluateAll(ruleSet *wire.RuleSet, subject Subject, clock Clock) map[string]Result {
	groupTypes := invertGroupTypeMapping(ruleSet.GroupTypeMapping)
	resolved := make(ResolvedFlags, len(ruleSet.Flags))
	out := make(map[string]Result, len(ruleSet.Flags))

	for _, flag := range ruleSet.Flags {
		decision, err := Evaluate(flag, subject, clock, ruleSet.Cohorts, resolved, groupTypes)
		if err != nil {
			out[flag.Key] = Result{Inconclusive: true}
			continue
		}
		resolved[flag.Key] = decision
		out[flag.Key] = Result{Decision: decision}
	}
	return out
}

// Result is one entry of EvaluateAll's output: either a Decision or a
// marker that local evaluation was Inconclusive for this flag.
type Result struct {
	Decision     Decision
	Inconclusive bool
}

func invertGroupTypeMapping(mapping map[string]string) map[int]string {
	out := make(map[int]string, len(mapping))
	for idxStr, groupType := range mapping {
		idx, err := parsePositiveInt(idxStr)
		if err != nil {
			continue
		}
		out[idx] = groupType
	}
	return out
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
