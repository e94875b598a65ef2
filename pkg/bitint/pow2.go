// SPDX-License-Identifier: MIT
//
// Package bitint holds the power-of-two helpers used to validate FFT and
// display buffer sizes. Both functions are O(1) and allocation free.
package bitint

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so clearing the lowest set bit (n & (n-1)) leaves
// zero.
//
//	8  -> 1000 & 0111 = 0000 (true)
//	12 -> 1100 & 1011 = 1000 (false)
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 0.
// Subtracting one first keeps exact powers of two unchanged (8 -> 8, not 16).
// Config validation uses it to suggest a usable display buffer size.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
