// Package rollout provides deterministic subject bucketing for feature
// flag rollouts and multivariate selection.
package rollout

import (
	"crypto/sha1"
	"fmt"
	"strconv"
)

// longScale is the divisor that normalizes the truncated hash into [0,1).
// It is 2^60 - 1, reproduced exactly as peer SDKs compute it so that the
// same (flagKey, subjectID, salt) always yields the same float across
// implementations.
const longScale = 0xFFFFFFFFFFFFFFF

// Hash maps (flagKey, subjectIdentifier, salt) to a stable value in
// [0,1). The construction is fixed by the compatibility contract with
// peer SDKs and must not be altered: concatenate flagKey + "." +
// subjectIdentifier + salt, take the SHA-1 digest, keep the leading 15
// hex digits, parse them as a base-16 integer, and divide by 2^60-1.
//
// salt is "" for rollout-percentage hashing and "variant" for
// multivariate selection.
func Hash(flagKey, subjectIdentifier, salt string) (float64, error) {
	h := sha1.New()
	h.Write([]byte(flagKey + "." + subjectIdentifier + salt))
	digest := h.Sum(nil)

	hexDigest := fmt.Sprintf("%x", digest)
	if len(hexDigest) > 15 {
		hexDigest = hexDigest[:15]
	}

	value, err := strconv.ParseInt(hexDigest, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("rollout: parse hash digest: %w", err)
	}

	return float64(value) / longScale, nil
}
