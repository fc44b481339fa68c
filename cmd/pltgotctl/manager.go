package main

import (
	"sync"

	"github.com/arlobrandt/pltgot/internal/elfhook"
	"github.com/arlobrandt/pltgot/internal/pltlog"
	"github.com/arlobrandt/pltgot/internal/registry"
)

var (
	managerOnce sync.Once
	manager     *registry.Manager
)

// sharedManager returns the process-local registry.Manager every
// hook-touching subcommand shares, backed by the live in-process memory
// backend — the target shared objects this tool hooks are mapped into
// pltgotctl's own address space (spec.md §1).
func sharedManager() *registry.Manager {
	managerOnce.Do(func() {
		logger := pltlog.L
		if logger == nil {
			logger = pltlog.NewNop()
		}
		manager = registry.NewManager(elfhook.NewLiveBackend(), logger)
	})
	return manager
}
