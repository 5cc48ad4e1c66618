// Package drift detects structural changes in the scraped page. Each
// snapshot is reduced to a 64-bit SimHash over its element structure; a large
// Hamming distance between consecutive snapshots means the markup the
// extraction strategies depend on has probably been redesigned.
package drift

import (
	"hash/fnv"
	"math/bits"
)

// simhash folds the FNV-64a hashes of tokens into a single fingerprint.
// Each bit of the result is set when more tokens have it set than unset.
func simhash(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var votes [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fp uint64
	for i, v := range votes {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
