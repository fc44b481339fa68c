//go:build linux && (arm || arm64)

package elfhook

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LiveBackend is the production MemoryBackend: it reads and writes the
// current process's own mapped memory directly, because the shared object
// being hooked is already loaded into this same address space (spec.md
// §1, §6). mprotect and, on 32-bit ARM, the cacheflush syscall are the
// only system calls involved (spec.md §5).
type LiveBackend struct {
	pageSize uintptr
}

// NewLiveBackend constructs a LiveBackend sized to the runtime page size.
func NewLiveBackend() *LiveBackend {
	return &LiveBackend{pageSize: uintptr(unix.Getpagesize())}
}

func (b *LiveBackend) PageSize() uintptr { return b.pageSize }

func (b *LiveBackend) ReadAt(addr uintptr, n int) ([]byte, error) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// ReadWord and WriteWord use atomic, aligned, word-sized accesses so
// concurrent readers of a GOT slot observe either the old or the new
// value, never a torn mix (spec.md §5).
func (b *LiveBackend) ReadWord(addr uintptr, ws WordSize) (uint64, error) {
	if ws == W64 {
		return atomic.LoadUint64((*uint64)(unsafe.Pointer(addr))), nil
	}
	return uint64(atomic.LoadUint32((*uint32)(unsafe.Pointer(addr)))), nil
}

func (b *LiveBackend) WriteWord(addr uintptr, ws WordSize, v uint64) error {
	if ws == W64 {
		atomic.StoreUint64((*uint64)(unsafe.Pointer(addr)), v)
	} else {
		atomic.StoreUint32((*uint32)(unsafe.Pointer(addr)), uint32(v))
	}
	return nil
}

func (b *LiveBackend) Protect(pageAddr, pageSize uintptr, prot Prot) error {
	mem := unsafe.Slice((*byte)(unsafe.Pointer(pageAddr)), int(pageSize))
	var uprot int
	if prot&ProtRead != 0 {
		uprot |= unix.PROT_READ
	}
	if prot&ProtWrite != 0 {
		uprot |= unix.PROT_WRITE
	}
	if prot&ProtExec != 0 {
		uprot |= unix.PROT_EXEC
	}
	return unix.Mprotect(mem, uprot)
}

func (b *LiveBackend) FlushCache(start, end uintptr) {
	flushCache(start, end)
}
