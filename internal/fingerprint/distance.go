package fingerprint

import "math/bits"

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Similarity returns 1 - HammingDistance/64, a value in [0, 1].
func Similarity(hash1, hash2 uint64) float64 {
	return similarityAt(HammingDistance(hash1, hash2))
}

func similarityAt(distance int) float64 {
	return 1 - float64(distance)/Bits
}

// Similar reports whether two hashes meet the threshold.
func Similar(hash1, hash2 uint64, threshold float64) bool {
	return Similarity(hash1, hash2) >= threshold
}

// MaxDistance returns the largest Hamming distance whose similarity still
// meets threshold, or -1 when no distance does.
func MaxDistance(threshold float64) int {
	for d := Bits; d >= 0; d-- {
		if similarityAt(d) >= threshold {
			return d
		}
	}
	return -1
}
