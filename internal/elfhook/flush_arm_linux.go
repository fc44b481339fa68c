//go:build linux && arm

package elfhook

import "golang.org/x/sys/unix"

// flushCache issues the ARM cacheflush(2) syscall over [start, end) to
// evict stale I-cache lines after a GOT write, per spec.md §4.5/§6.
//
// x/sys/unix has no SYS_CACHEFLUSH constant for GOARCH=arm — that name is
// only defined for the mips/mips64 syscall tables — so the raw syscall
// number is issued directly via cacheflushSyscall (arch_arm.go).
func flushCache(start, end uintptr) {
	unix.Syscall(cacheflushSyscall, start, end, 0)
}
