//go:build arm

package elfhook

import "debug/elf"

// nativeWordSize and nativeMachine pin this build to 32-bit ARM, per
// spec.md §1's non-goal: "does not support architectures other than
// 32-bit ARM and 64-bit AArch64." A loaded image whose e_machine disagrees
// fails init with FORMAT (spec.md §4.4 step 1).
const nativeWordSize = W32

const nativeMachine = elf.EM_ARM

// matchingRelocTypes enumerates the relocation types the Hook Engine
// treats as GOT/PLT slots worth rewriting (spec.md §4.5 step 3).
var matchingRelocTypes = map[uint32]bool{
	uint32(elf.R_ARM_JUMP_SLOT): true,
	uint32(elf.R_ARM_GLOB_DAT):  true,
	uint32(elf.R_ARM_ABS32):     true,
}

// cacheflushSyscall is the kernel-provided cacheflush syscall number on
// 32-bit ARM Linux (spec.md §6).
const cacheflushSyscall = 0xF0002
