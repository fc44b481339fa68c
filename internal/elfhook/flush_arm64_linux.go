//go:build linux && arm64

package elfhook

// flushCache is a no-op on AArch64: the hardware maintains coherence for
// data writes to instruction-fetchable memory after the implicit DSB/ISB
// mprotect performs, per platform convention (spec.md §4.5/§9).
func flushCache(start, end uintptr) {}
