//go:build arm64

package elfhook

import "debug/elf"

const nativeWordSize = W64

const nativeMachine = elf.EM_AARCH64

var matchingRelocTypes = map[uint32]bool{
	uint32(elf.R_AARCH64_JUMP_SLOT): true,
	uint32(elf.R_AARCH64_GLOB_DAT):  true,
	uint32(elf.R_AARCH64_ABS64):     true,
}

// AArch64 has no cacheflush syscall to speak of; the hardware maintains
// coherence for data writes to instruction-fetchable memory after the
// implicit DSB/ISB mprotect performs. See flush_arm64_linux.go's flushCache.
const cacheflushSyscall = 0
