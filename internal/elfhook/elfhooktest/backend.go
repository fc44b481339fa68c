// Package elfhooktest provides a Unicorn-engine-backed MemoryBackend used
// by the elfhook test suite. It lets tests build a synthetic ELF image as
// a plain []byte, map it into an emulated CPU's address space, and run
// the real elfhook.Engine code path against it.
//
// Grounded on the teacher's internal/emulator/emulator.go, which drives
// the same unicorn-engine/unicorn bindings (uc.NewUnicorn, MemMap,
// MemWrite, MemRead) for full ARM64 instruction emulation; here the same
// binding surface backs a protected-memory harness instead.
package elfhooktest

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/arlobrandt/pltgot/internal/elfhook"
)

// PageSize is the page granularity the harness maps memory at.
const PageSize = 0x1000

// UnicornBackend implements elfhook.MemoryBackend over a single mapped
// region of Unicorn guest memory.
type UnicornBackend struct {
	mu uc.Unicorn
	ws elfhook.WordSize
}

// New creates a backend for the given word size. ws selects the emulated
// architecture: W32 maps ARM, W64 maps AArch64 — matching the native
// build's own arch pinning in arch_arm.go/arch_arm64.go.
func New(ws elfhook.WordSize) (*UnicornBackend, error) {
	arch := uc.ARCH_ARM64
	if ws == elfhook.W32 {
		arch = uc.ARCH_ARM
	}
	mu, err := uc.NewUnicorn(arch, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	return &UnicornBackend{mu: mu, ws: ws}, nil
}

// Close releases the underlying Unicorn instance.
func (b *UnicornBackend) Close() error { return b.mu.Close() }

// MapImage maps size bytes (page-rounded) starting at base and writes
// data into it, simulating the OS having already loaded the object there.
func (b *UnicornBackend) MapImage(base uintptr, data []byte) error {
	size := alignUp(uint64(len(data)), PageSize)
	if err := b.mu.MemMap(uint64(base), size); err != nil {
		return fmt.Errorf("map image: %w", err)
	}
	if err := b.mu.MemWrite(uint64(base), data); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// UnmapPage removes the mapping covering pageAddr, so later reads, writes
// and Protect calls against that page fail.
func (b *UnicornBackend) UnmapPage(pageAddr uintptr) error {
	return b.mu.MemUnmap(uint64(pageAddr), PageSize)
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

func (b *UnicornBackend) PageSize() uintptr { return PageSize }

func (b *UnicornBackend) ReadAt(addr uintptr, n int) ([]byte, error) {
	buf, err := b.mu.MemRead(uint64(addr), uint64(n))
	if err != nil {
		return nil, fmt.Errorf("mem read 0x%x: %w", addr, err)
	}
	return buf, nil
}

func (b *UnicornBackend) ReadWord(addr uintptr, ws elfhook.WordSize) (uint64, error) {
	n := 4
	if ws == elfhook.W64 {
		n = 8
	}
	buf, err := b.mu.MemRead(uint64(addr), uint64(n))
	if err != nil {
		return 0, fmt.Errorf("mem read word 0x%x: %w", addr, err)
	}
	if ws == elfhook.W64 {
		return binary.LittleEndian.Uint64(buf), nil
	}
	return uint64(binary.LittleEndian.Uint32(buf)), nil
}

func (b *UnicornBackend) WriteWord(addr uintptr, ws elfhook.WordSize, v uint64) error {
	buf := make([]byte, 8)
	n := 8
	if ws == elfhook.W64 {
		binary.LittleEndian.PutUint64(buf, v)
	} else {
		binary.LittleEndian.PutUint32(buf, uint32(v))
		n = 4
	}
	if err := b.mu.MemWrite(uint64(addr), buf[:n]); err != nil {
		return fmt.Errorf("mem write word 0x%x: %w", addr, err)
	}
	return nil
}

func (b *UnicornBackend) Protect(pageAddr, pageSize uintptr, prot elfhook.Prot) error {
	var uprot int
	if prot&elfhook.ProtRead != 0 {
		uprot |= uc.PROT_READ
	}
	if prot&elfhook.ProtWrite != 0 {
		uprot |= uc.PROT_WRITE
	}
	if prot&elfhook.ProtExec != 0 {
		uprot |= uc.PROT_EXEC
	}
	if err := b.mu.MemProtect(uint64(pageAddr), uint64(pageSize), uprot); err != nil {
		return fmt.Errorf("mem protect 0x%x: %w", pageAddr, err)
	}
	return nil
}

// FlushCache is a no-op: the simulated harness never fetches instructions
// through the rewritten slot, so there is no I-cache to keep coherent.
func (b *UnicornBackend) FlushCache(start, end uintptr) {}
