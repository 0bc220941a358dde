package evaluate

import (
	"github.com/flagkit/flagkit-go/internal/rollout"
	"github.com/flagkit/flagkit-go/internal/wire"
)

// groupSubjectID picks the identifier the rollout hash is computed
// over: the group's own key when the flag aggregates by group, the
// subject's distinct id otherwise.
func groupSubjectID(subject Subject, aggregationGroupTypeIndex *int, groupTypes map[int]string) string {
	if aggregationGroupTypeIndex == nil {
		return subject.DistinctID
	}
	groupType, ok := groupTypes[*aggregationGroupTypeIndex]
	if !ok {
		return subject.DistinctID
	}
	g, ok := subject.Groups[groupType]
	if !ok {
		return ""
	}
	return g.Key
}

// EvaluateGroup walks a ConditionGroup's filters in declaration order,
// short-circuiting on the first non-match or Inconclusive, and admits
// the subject only if every filter matches AND the rollout hash passes.
// A group with no properties is a pure rollout.
func EvaluateGroup(group wire.ConditionGroup, flagKey string, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string, aggregationGroupTypeIndex *int) (bool, error) {
	for _, filter := range group.Properties {
		matched, err := EvaluateFilter(filter, subject, clock, cohorts, flags, groupTypes)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}

	pct := 100.0
	if group.RolloutPercentage != nil {
		pct = *group.RolloutPercentage
	}
	subjectID := groupSubjectID(subject, aggregationGroupTypeIndex, groupTypes)
	return rollout.IsRolledOut(flagKey, subjectID, pct, "")
}
