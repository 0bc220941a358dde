package rollout

import "errors"

// ErrInvalidRollout is returned when a rollout percentage falls outside [0,100].
var ErrInvalidRollout = errors.New("rollout: percentage must be between 0 and 100")

// ErrInvalidVariantWeights is returned when variant percentages exceed 100.
var ErrInvalidVariantWeights = errors.New("rollout: variant percentages must not exceed 100")

// variantSalt is appended when hashing for multivariate selection, per
// the peer-SDK compatibility contract (spec 4.A).
const variantSalt = "variant"

// Variant is one entry of a flag's multivariate split, in declaration order.
type Variant struct {
	Key               string
	RolloutPercentage float64
}

// IsRolledOut determines whether the subject identified by subjectID
// falls within rolloutPercentage of a stable hash over (flagKey,
// subjectID, salt).
//
// rollout=0 always excludes; rollout=100 always includes, without
// computing a hash. An empty subjectID never rolls out: there is no
// stable identity to hash.
func IsRolledOut(flagKey, subjectID string, rolloutPercentage float64, salt string) (bool, error) {
	if rolloutPercentage < 0 || rolloutPercentage > 100 {
		return false, ErrInvalidRollout
	}
	if rolloutPercentage == 0 {
		return false, nil
	}
	if subjectID == "" {
		return false, nil
	}
	if rolloutPercentage == 100 {
		return true, nil
	}

	h, err := Hash(flagKey, subjectID, salt)
	if err != nil {
		return false, err
	}
	return h < rolloutPercentage/100.0, nil
}

// ValidateVariants checks that no variant percentage is negative and the
// cumulative total does not exceed 100. An empty slice is valid (no
// multivariate split configured).
func ValidateVariants(variants []Variant) error {
	total := 0.0
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.Key == "" {
			return errors.New("rollout: variant key cannot be empty")
		}
		if seen[v.Key] {
			return errors.New("rollout: duplicate variant key: " + v.Key)
		}
		seen[v.Key] = true
		if v.RolloutPercentage < 0 {
			return errors.New("rollout: variant percentage cannot be negative")
		}
		total += v.RolloutPercentage
	}
	if total > 100 {
		return ErrInvalidVariantWeights
	}
	return nil
}

// SelectVariant walks the cumulative ranges of variants, in declaration
// order, and returns the key of the first range containing the
// variant-salted hash of (flagKey, subjectID). It returns "" when no
// variants are configured, the hash falls past the last range (the
// percentages summed to less than 100), or subjectID is empty.
func SelectVariant(flagKey, subjectID string, variants []Variant) (string, error) {
	if len(variants) == 0 || subjectID == "" {
		return "", nil
	}
	if err := ValidateVariants(variants); err != nil {
		return "", err
	}

	h, err := Hash(flagKey, subjectID, variantSalt)
	if err != nil {
		return "", err
	}

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.RolloutPercentage / 100.0
		if h < cumulative {
			return v.Key, nil
		}
	}
	return "", nil
}
