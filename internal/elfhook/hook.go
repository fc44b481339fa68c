package elfhook

import "debug/elf"

// Engine is the Hook Engine: given an ImageView, a symbol name, and a
// replacement address, it resolves the symbol, walks each present
// relocation region with the appropriate iterator, identifies matching
// GOT slots, and rewrites each under transient write permission.
//
// Engine performs no locking of its own — spec.md §5 assumes external
// coordination between simultaneous hooks of the same image.
type Engine struct {
	backend MemoryBackend
}

// NewEngine returns a Hook Engine backed by the given MemoryBackend. In
// production this is the live-process backend (backend_linux.go); tests
// use the Unicorn-simulated backend in the elfhooktest package.
func NewEngine(backend MemoryBackend) *Engine {
	return &Engine{backend: backend}
}

type relRegion struct {
	addr         uintptr
	size         uint64
	packed       bool
	shortCircuit bool
}

// Hook resolves symbolName against view and rewrites every matching
// GOT/PLT slot to newAddr, returning the value that was there
// immediately before the last slot it rewrote (or, if every matching
// slot was already hooked, the already-installed value).
//
// Region order is PLT, then DYN, then ANDROID (spec.md §4.5 step 2). The
// PLT region stops at its first match — a symbol has at most one PLT
// slot, an invariant of the toolchain this format assumes rather than one
// this engine enforces. DYN and ANDROID are walked to completion because
// a symbol may have multiple GOT slots referencing it (e.g. a GLOB_DAT
// alongside an ABS relocation).
//
// Page protections are never restored after the write: a second mprotect
// to narrow permissions back costs more than the benefit, and GOT pages
// are already commonly writable. If a target's GOT page started out
// hardened (R-X), this call permanently widens it. That tradeoff is
// inherited, not something to "fix" here.
func (e *Engine) Hook(view *ImageView, symbolName string, newAddr uintptr) (uintptr, error) {
	if view == nil || !view.initialized {
		return 0, newErr(KindElfInit, "Hook", nil)
	}
	if symbolName == "" || newAddr == 0 {
		return 0, newErr(KindInval, "Hook", nil)
	}

	symidx, err := view.FindSymbolIndex(symbolName)
	if err != nil {
		return 0, err
	}

	regions := [3]relRegion{
		{view.RelPLT, view.RelPLTSz, false, true},
		{view.RelDyn, view.RelDynSz, false, false},
		{view.RelAndroid, view.RelAndroidSz, true, false},
	}

	var oldAddr uintptr
	rewrote := false

	for _, r := range regions {
		if r.addr == 0 || r.size == 0 {
			continue
		}

		it, err := e.newIterator(view, r)
		if err != nil {
			return 0, err
		}

		for {
			rec, ok, err := it.next()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			if rec.Sym(view.ws) != symidx {
				continue
			}
			if !matchingRelocTypes[rec.Type(view.ws)] {
				continue
			}

			seg, ok := view.findLoadSegment(rec.Offset)
			if !ok {
				return 0, newErr(KindNotFound, "Hook.slot", nil)
			}

			slot := view.BiasAddr + uintptr(rec.Offset)
			old, changed, err := e.rewriteSlot(view.ws, slot, newAddr, seg.Flags)
			if err != nil {
				return 0, err
			}
			if changed || !rewrote {
				oldAddr = old
			}
			if changed {
				rewrote = true
			}

			if r.shortCircuit {
				break
			}
		}
	}

	return oldAddr, nil
}

// newIterator builds the plain or packed relIterator for region r.
func (e *Engine) newIterator(view *ImageView, r relRegion) (relIterator, error) {
	data, err := view.mem.ReadAt(r.addr, int(r.size))
	if err != nil {
		return nil, newErr(KindFormat, "Hook.region", err)
	}
	if r.packed {
		return newPackedRelIter(data, view.ws, view.IsUseRela)
	}
	return newPlainRelIter(data, view.ws, view.IsUseRela), nil
}

// rewriteSlot reads the current value at slot; if it already equals
// newAddr the slot is treated as already hooked and left untouched
// (spec.md §4.5 step 4 — idempotent rehook). Otherwise it flips page
// protections, overwrites the slot, and flushes the instruction cache
// where the architecture requires it.
//
// segFlags is the enclosing PT_LOAD segment's original flags (spec.md
// §4.5 step 5): the slot's page is reprotected to those flags plus W,
// minus X, rather than an unconditional RW, so a segment mapped R-only
// doesn't get handed an exec bit it never had.
func (e *Engine) rewriteSlot(ws WordSize, slot uintptr, newAddr uintptr, segFlags elf.ProgFlag) (old uintptr, changed bool, err error) {
	cur, err := e.backend.ReadWord(slot, ws)
	if err != nil {
		return 0, false, newErr(KindUnknown, "Hook.read", err)
	}
	if uintptr(cur) == newAddr {
		return uintptr(cur), false, nil
	}

	pageSize := e.backend.PageSize()
	pageAddr := slot &^ (pageSize - 1)
	prot := (progFlagsToProt(segFlags) | ProtWrite) &^ ProtExec

	if err := e.backend.Protect(pageAddr, pageSize, prot); err != nil {
		return 0, false, newErr(KindUnknown, "Hook.protect", err)
	}

	if err := e.backend.WriteWord(slot, ws, uint64(newAddr)); err != nil {
		return 0, false, newErr(KindUnknown, "Hook.write", err)
	}

	e.backend.FlushCache(pageAddr, pageAddr+pageSize)

	return uintptr(cur), true, nil
}

// progFlagsToProt translates a PT_LOAD segment's elf.ProgFlag bits (PF_R,
// PF_W, PF_X) to the backend's Prot bits; the two enums don't share a bit
// layout so this is a straight field-by-field remap, not a cast.
func progFlagsToProt(flags elf.ProgFlag) Prot {
	var prot Prot
	if flags&elf.PF_R != 0 {
		prot |= ProtRead
	}
	if flags&elf.PF_W != 0 {
		prot |= ProtWrite
	}
	if flags&elf.PF_X != 0 {
		prot |= ProtExec
	}
	return prot
}
