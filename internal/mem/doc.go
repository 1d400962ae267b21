// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Amplitude pages are allocated 64-byte aligned so a page starts on a cache line
// and the bit-mask loops never straddle two lines for the first entry.
package mem
