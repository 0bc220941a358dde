package evaluate

import (
	"encoding/json"

	"github.com/flagkit/flagkit-go/internal/wire"
)

// evaluateCohortFilter resolves a `type=cohort` PropertyFilter: its
// Value carries the referenced cohort id.
func evaluateCohortFilter(filter wire.PropertyFilter, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string) (bool, error) {
	var cohortID string
	if err := json.Unmarshal(filter.Value, &cohortID); err != nil {
		return false, ErrInconclusive
	}
	matched, err := resolveCohort(cohortID, subject, clock, cohorts, flags, groupTypes, make(map[string]bool))
	if err != nil {
		return false, err
	}
	if filter.Negation {
		return !matched, nil
	}
	return matched, nil
}

// resolveCohort walks the cohort DAG rooted at id, combining sub-
// conditions with the cohort's declared AND/OR type. visiting guards
// against cycles: re-entering an id already on the current path raises
// Inconclusive rather than recursing forever.
func resolveCohort(id string, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string, visiting map[string]bool) (bool, error) {
	if visiting[id] {
		return false, ErrCyclicCohort
	}
	cohort, ok := cohorts[id]
	if !ok {
		return false, ErrUnknownCohort
	}

	visiting[id] = true
	defer delete(visiting, id)

	results := make([]bool, 0, len(cohort.Values))
	for _, value := range cohort.Values {
		matched, err := resolveCohortValue(value, subject, clock, cohorts, flags, groupTypes, visiting)
		if err != nil {
			return false, err
		}
		results = append(results, matched)

		if cohort.Type == wire.CohortOR && matched {
			break // short-circuit: OR is already satisfied
		}
		if cohort.Type == wire.CohortAND && !matched {
			break // short-circuit: AND already failed
		}
	}

	outcome := combine(cohort.Type, results)
	if cohort.Negation {
		outcome = !outcome
	}
	return outcome, nil
}

func resolveCohortValue(value wire.CohortValue, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string, visiting map[string]bool) (bool, error) {
	var matched bool
	var err error

	switch {
	case value.Filter != nil:
		matched, err = EvaluateFilter(*value.Filter, subject, clock, cohorts, flags, groupTypes)
		if err == ErrInconclusive {
			// A negated sub-condition that cannot be proven false (a
			// missing property, say) cannot be proven true either: it
			// stays Inconclusive regardless of the negation flag.
			return false, ErrInconclusive
		}
	case value.CohortID != "":
		matched, err = resolveCohort(value.CohortID, subject, clock, cohorts, flags, groupTypes, visiting)
	default:
		return false, ErrUnknownCohort
	}
	if err != nil {
		return false, err
	}
	if value.Negation {
		matched = !matched
	}
	return matched, nil
}

func combine(kind wire.CohortType, results []bool) bool {
	if len(results) == 0 {
		return true
	}
	if kind == wire.CohortOR {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}
