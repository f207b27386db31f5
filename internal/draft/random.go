package draft

import "unicode/utf16"

const (
	fnvOffset32 uint32 = 0x811c9dc5
	fnvPrime32  uint32 = 0x01000193
)

// HashSeed is FNV-1a over the UTF-16 code units of s, not its bytes.
func HashSeed(s string) uint32 {
	h := fnvOffset32
	for _, u := range utf16.Encode([]rune(s)) {
		h ^= uint32(u)
		h *= fnvPrime32
	}
	return h
}

// mulberry32 returns a generator of floats in [0, 1).
func mulberry32(a uint32) func() float64 {
	return func() float64 {
		a += 0x6d2b79f5
		t := (a ^ (a >> 15)) * (1 | a)
		t = (t + (t^(t>>7))*(61|t)) ^ t
		return float64(t^(t>>14)) / 4294967296
	}
}

// Shuffle returns a copy of items permuted by Fisher-Yates driven by the seed.
// The same seed and input always yield the same order.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)

	next := mulberry32(HashSeed(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := int(next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
