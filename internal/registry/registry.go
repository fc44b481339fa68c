// Package registry is the process-local hook registration layer: given a
// library name pattern, a symbol, and a replacement address, it resolves
// matching loaded objects via internal/discovery and applies
// elfhook.Engine.Hook to each, tracking installed hooks so they can be
// listed or rolled back.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arlobrandt/pltgot/internal/discovery"
	"github.com/arlobrandt/pltgot/internal/elfhook"
	"github.com/arlobrandt/pltgot/internal/pltlog"
)

// Hook is one installed hook: a symbol in one matched loaded object,
// rewritten to NewAddr. OldAddr is the value previously in the GOT slot,
// recorded so the caller can round-trip back to it by re-invoking Hook
// with OldAddr as the new target (spec.md §8's round-trip property — the
// registry keeps no rollback bookkeeping of its own beyond this).
type Hook struct {
	ID          uuid.UUID
	Pattern     string
	Symbol      string
	BaseAddr    uintptr
	Path        string
	OldAddr     uintptr
	NewAddr     uintptr
	InstalledAt string
}

// Finder resolves a name pattern to currently loaded objects. It matches
// discovery.Find's signature; Manager calls through this field rather
// than discovery.Find directly so tests can substitute a fixed object
// list instead of reading the real process's /proc/self/maps.
type Finder func(ctx context.Context, pattern string) ([]discovery.Object, error)

// Manager is the registry's entry point. It owns a MemoryBackend (shared
// by every ImageView it builds), an ImageView cache keyed by base address,
// and the table of hooks it has installed.
type Manager struct {
	backend elfhook.MemoryBackend
	logger  *pltlog.Logger
	engine  *elfhook.Engine
	find    Finder

	// Script, set via SetScript, additionally filters discovery.Find's
	// results down to paths for which it returns true. Left nil, every
	// discovered match is hooked.
	Script func(path string) bool

	mu    sync.RWMutex
	views map[uintptr]*elfhook.ImageView
	hooks []Hook
}

// NewManager returns a Manager backed by backend, resolving patterns
// through discovery.Find. A nil logger installs a no-op logger.
func NewManager(backend elfhook.MemoryBackend, logger *pltlog.Logger) *Manager {
	if logger == nil {
		logger = pltlog.NewNop()
	}
	return &Manager{
		backend: backend,
		logger:  logger,
		engine:  elfhook.NewEngine(backend),
		find:    discovery.Find,
		views:   make(map[uintptr]*elfhook.ImageView),
	}
}

// SetFinder replaces the discovery function Manager.Hook resolves
// patterns through, for tests that need a fixed object list instead of
// the real /proc/self/maps.
func (m *Manager) SetFinder(f Finder) {
	m.find = f
}

// SetScript installs a goja-backed name predicate compiled by
// internal/registry/script.go. It filters the objects the Finder's glob
// match returns; it does not replace the glob match.
func (m *Manager) SetScript(predicate func(path string) bool) {
	m.Script = predicate
}

// Hook resolves pattern via discovery.Find, applies symbol/newAddr to
// every matching loaded object, and records one Hook per match that hooked
// successfully; a match whose image fails to parse or hook is logged and
// skipped. Zero
// discovered matches is not an error — it returns a nil slice, since
// deciding whether "no loaded object matched" is fatal belongs to the
// caller, not this layer.
func (m *Manager) Hook(ctx context.Context, pattern, symbol string, newAddr uintptr, installedAt string) ([]Hook, error) {
	objs, err := m.find(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", pattern, err)
	}

	if m.Script != nil {
		filtered := objs[:0]
		for _, o := range objs {
			if m.Script(o.Path) {
				filtered = append(filtered, o)
			}
		}
		objs = filtered
	}

	var installed []Hook
	for _, o := range objs {
		view, err := m.viewFor(o)
		if err != nil {
			m.logger.HookFailed(pattern, symbol, err)
			continue
		}

		old, err := m.engine.Hook(view, symbol, newAddr)
		if err != nil {
			m.logger.HookFailed(pattern, symbol, err)
			continue
		}
		m.logger.HookInstalled(pattern, symbol, old, newAddr)

		installed = append(installed, Hook{
			ID:          uuid.New(),
			Pattern:     pattern,
			Symbol:      symbol,
			BaseAddr:    o.BaseAddr,
			Path:        o.Path,
			OldAddr:     old,
			NewAddr:     newAddr,
			InstalledAt: installedAt,
		})
	}

	m.mu.Lock()
	m.hooks = append(m.hooks, installed...)
	m.mu.Unlock()

	return installed, nil
}

// viewFor returns the cached ImageView for o, building and caching one if
// this is the first time o.BaseAddr has been seen.
func (m *Manager) viewFor(o discovery.Object) (*elfhook.ImageView, error) {
	m.mu.RLock()
	view, ok := m.views[o.BaseAddr]
	m.mu.RUnlock()
	if ok {
		return view, nil
	}

	view, err := elfhook.NewImageView(o.BaseAddr, o.Path, m.backend)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", o.Path, err)
	}
	m.logger.ParseSummary(o.Path, view)

	m.mu.Lock()
	m.views[o.BaseAddr] = view
	m.mu.Unlock()

	return view, nil
}

// List returns every hook installed so far, oldest first.
func (m *Manager) List() []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Hook, len(m.hooks))
	copy(out, m.hooks)
	return out
}
