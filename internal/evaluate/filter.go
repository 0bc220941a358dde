package evaluate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flagkit/flagkit-go/internal/wire"
)

// regexCache memoizes compiled patterns across evaluations, the same
// sync.Map-backed pattern the upstream operator registry uses for its
// own regex handlers.
var regexCache sync.Map

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// FlagEvaluator resolves an already-computed dependency result so that
// flagEvaluatesTo filters can be checked without this package importing
// the driver that produces them.
type FlagEvaluator interface {
	EvaluatedFlag(key string) (Decision, bool)
}

// EvaluateFilter evaluates one PropertyFilter against a Subject and
// returns whether it matches. It returns ErrInconclusive when the
// operator cannot be decided locally (isNotSet, unparsable dates,
// unresolved cohort/flag references).
func EvaluateFilter(filter wire.PropertyFilter, subject Subject, clock Clock, cohorts map[string]wire.Cohort, flags FlagEvaluator, groupTypes map[int]string) (bool, error) {
	if filter.Type == wire.FilterTypeCohort {
		return evaluateCohortFilter(filter, subject, clock, cohorts, flags, groupTypes)
	}
	if filter.Operator == wire.OpFlagEvaluatesTo {
		return evaluateFlagDependency(filter, flags)
	}

	value, present := lookupProperty(filter, subject, groupTypes)

	switch filter.Operator {
	case wire.OpIsSet:
		return present, nil
	case wire.OpIsNotSet:
		// The SDK cannot assert negative knowledge locally: a property
		// truly absent from the rule-set snapshot is indistinguishable
		// from one the ingestion pipeline hasn't observed yet.
		return false, ErrInconclusive
	case wire.OpExact:
		return matchAnyExact(value, present, filter.Value), nil
	case wire.OpIsNot:
		if !present {
			return true, nil
		}
		return !matchAnyExact(value, present, filter.Value), nil
	case wire.OpRegex, wire.OpNotRegex:
		return evaluateRegex(filter, value, present)
	case wire.OpIContains, wire.OpNotIContains:
		return evaluateContains(filter, value, present)
	case wire.OpGT, wire.OpGTE, wire.OpLT, wire.OpLTE:
		return evaluateOrdered(filter, value, present)
	case wire.OpIsDateBefore, wire.OpIsDateAfter:
		return evaluateDate(filter, value, present, clock)
	default:
		return false, fmt.Errorf("evaluate: unknown operator %q", filter.Operator)
	}
}

// lookupProperty resolves a filter's key against the right bag,
// honoring the distinct_id synthetic property (subject identifier
// compared in addition to, and shadowed by, any explicit property of
// that name).
func lookupProperty(filter wire.PropertyFilter, subject Subject, groupTypes map[int]string) (any, bool) {
	var source PropertyBag
	if filter.Type == wire.FilterTypeGroup {
		source = groupBag(filter, subject, groupTypes)
	} else {
		source = subject.PersonProperties
	}

	if v, ok := source[filter.Key]; ok {
		return v, true
	}
	if filter.Key == "distinct_id" && filter.Type != wire.FilterTypeGroup {
		return subject.DistinctID, true
	}
	return nil, false
}

func groupBag(filter wire.PropertyFilter, subject Subject, groupTypes map[int]string) PropertyBag {
	if filter.GroupTypeIndex == nil {
		return nil
	}
	groupType, ok := groupTypes[*filter.GroupTypeIndex]
	if !ok {
		return nil
	}
	g, ok := subject.Groups[groupType]
	if !ok {
		return nil
	}
	return g.Properties
}

func decodeFilterValues(raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}
	var multi []any
	if err := json.Unmarshal(raw, &multi); err == nil {
		return multi
	}
	var single any
	if err := json.Unmarshal(raw, &single); err == nil {
		return []any{single}
	}
	return nil
}

func matchAnyExact(value any, present bool, raw json.RawMessage) bool {
	if !present {
		return false
	}
	valueStr := canonicalString(value)
	for _, candidate := range decodeFilterValues(raw) {
		if strings.EqualFold(valueStr, canonicalString(candidate)) {
			return true
		}
	}
	return false
}

func evaluateRegex(filter wire.PropertyFilter, value any, present bool) (bool, error) {
	if !present {
		return false, nil
	}
	candidates := decodeFilterValues(filter.Value)
	if len(candidates) == 0 {
		return false, nil
	}
	pattern := canonicalString(candidates[0])
	re, err := compileRegex(pattern)
	if err != nil {
		return false, ErrInconclusive
	}
	matched := re.MatchString(canonicalString(value))
	if filter.Operator == wire.OpNotRegex {
		return !matched, nil
	}
	return matched, nil
}

func evaluateContains(filter wire.PropertyFilter, value any, present bool) (bool, error) {
	if !present {
		return false, nil
	}
	candidates := decodeFilterValues(filter.Value)
	if len(candidates) == 0 {
		return false, nil
	}
	needle := strings.ToLower(canonicalString(candidates[0]))
	haystack := strings.ToLower(canonicalString(value))
	contains := strings.Contains(haystack, needle)
	if filter.Operator == wire.OpNotIContains {
		return !contains, nil
	}
	return contains, nil
}

func evaluateOrdered(filter wire.PropertyFilter, value any, present bool) (bool, error) {
	if !present {
		return false, nil
	}
	candidates := decodeFilterValues(filter.Value)
	if len(candidates) == 0 {
		return false, nil
	}
	target := candidates[0]

	leftNum, leftOK := toFloat(value)
	rightNum, rightOK := toFloat(target)
	var cmp int
	if leftOK && rightOK {
		cmp = compareFloat(leftNum, rightNum)
	} else {
		cmp = strings.Compare(canonicalString(value), canonicalString(target))
	}

	switch filter.Operator {
	case wire.OpGT:
		return cmp > 0, nil
	case wire.OpGTE:
		return cmp >= 0, nil
	case wire.OpLT:
		return cmp < 0, nil
	case wire.OpLTE:
		return cmp <= 0, nil
	}
	return false, nil
}

func evaluateDate(filter wire.PropertyFilter, value any, present bool, clock Clock) (bool, error) {
	if !present {
		return false, ErrInconclusive
	}
	candidates := decodeFilterValues(filter.Value)
	if len(candidates) == 0 {
		return false, ErrInconclusive
	}
	threshold, err := resolveDateThreshold(canonicalString(candidates[0]), clock)
	if err != nil {
		return false, ErrInconclusive
	}
	propTime, err := parsePropertyDate(value)
	if err != nil {
		return false, ErrInconclusive
	}

	if filter.Operator == wire.OpIsDateBefore {
		return propTime.Before(threshold), nil
	}
	return propTime.After(threshold), nil
}

// resolveDateThreshold parses either an absolute ISO-8601 timestamp or a
// relative duration of the form "-<N><unit>" with unit in {h,d,w,m,y},
// anchored to clock.Now().
func resolveDateThreshold(raw string, clock Clock) (time.Time, error) {
	if strings.HasPrefix(raw, "-") {
		return parseRelativeDuration(raw, clock.Now())
	}
	return parseAbsoluteTime(raw)
}

func parseRelativeDuration(raw string, now time.Time) (time.Time, error) {
	if len(raw) < 3 {
		return time.Time{}, fmt.Errorf("evaluate: malformed relative date %q", raw)
	}
	unit := raw[len(raw)-1]
	amountStr := raw[1 : len(raw)-1]
	amount, err := strconv.Atoi(amountStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("evaluate: malformed relative date %q: %w", raw, err)
	}

	switch unit {
	case 'h':
		return now.Add(-time.Duration(amount) * time.Hour), nil
	case 'd':
		return now.AddDate(0, 0, -amount), nil
	case 'w':
		return now.AddDate(0, 0, -amount*7), nil
	case 'm':
		return now.AddDate(0, -amount, 0), nil
	case 'y':
		return now.AddDate(-amount, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("evaluate: unknown relative date unit %q", string(unit))
	}
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseAbsoluteTime(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("evaluate: unparsable date %q", raw)
}

func parsePropertyDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case string:
		return parseAbsoluteTime(v)
	case time.Time:
		return v, nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("evaluate: property is not a date: %v", value)
	}
}

func canonicalString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
