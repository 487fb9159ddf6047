package experiment

import "unicode/utf16"

// bucketHash computes the 31x string hash used for bucketing. The string is
// decomposed into UTF-16 code units (characters above U+FFFF hash as their
// surrogate pair, not as one code point) and the arithmetic is 32-bit
// two's-complement with wraparound. Hashing code points or using
// arbitrary-precision integers buckets sessions differently and silently
// shifts variant distributions.
func bucketHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	return h
}

// bucketFraction reduces the hash of sessionID+experimentID to a fraction in
// [0, 1) with 1/10000 granularity. Same inputs always yield the same
// fraction; no randomness source is read at call time.
func bucketFraction(sessionID, experimentID string) float64 {
	h := int64(bucketHash(sessionID + experimentID))
	if h < 0 {
		h = -h
	}
	return float64(h%10000) / 10000
}

// assignVariant deterministically picks a variant for the session by walking
// the variant list in order against the cumulative weight distribution.
// When weights sum below 100 and the fraction lands in the uncovered tail,
// the FIRST variant is returned; callers rely on this tie-break. Returns nil
// only for an empty variant list.
func assignVariant(sessionID string, exp *Experiment) *Variant {
	if len(exp.Variants) == 0 {
		return nil
	}
	random := bucketFraction(sessionID, exp.ID)
	cum := 0.0
	for i := range exp.Variants {
		cum += exp.Variants[i].Weight / 100
		if random <= cum {
			return &exp.Variants[i]
		}
	}
	return &exp.Variants[0]
}
