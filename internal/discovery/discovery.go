// Package discovery enumerates shared objects mapped into the current
// process, the "discovery of which shared objects are loaded" external
// collaborator spec.md §1 assumes is already satisfied before the core
// ever sees a base address.
package discovery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
)

// Object is one distinct shared object mapped into the process, identified
// by its first (lowest-address) readable mapping — that mapping's start is
// the object's base address, per spec.md §3's base_addr.
type Object struct {
	BaseAddr uintptr
	Path     string
}

const mapsPath = "/proc/self/maps"

// List enumerates every distinct mapped object by reading /proc/self/maps.
// ctx is checked before the read starts; there is no cancellable I/O to
// interrupt partway through a single file read.
func List(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(mapsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", mapsPath, err)
	}
	defer f.Close()
	return parseMaps(f)
}

// Find lists every mapped object and returns those whose path's final
// component matches the shell glob pattern (path.Match semantics — spec.md §1's "name-pattern
// matching" collaborator).
func Find(ctx context.Context, pattern string) ([]Object, error) {
	objs, err := List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Object
	for _, o := range objs {
		matched, err := matchBasename(pattern, o.Path)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, o)
		}
	}
	return out, nil
}

// matchBasename reports whether pattern (a path.Match glob) matches the
// final path component of pathname.
func matchBasename(pattern, pathname string) (bool, error) {
	matched, err := path.Match(pattern, path.Base(pathname))
	if err != nil {
		return false, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	return matched, nil
}

// parseMaps parses the "start-end perms offset dev inode pathname" format
// of /proc/[pid]/maps, keeping the first readable mapping per distinct
// pathname.
func parseMaps(r io.Reader) ([]Object, error) {
	seen := make(map[string]bool)
	var out []Object

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue // anonymous mapping, no pathname field
		}

		pathname := fields[5]
		if pathname == "" || strings.HasPrefix(pathname, "[") {
			continue
		}
		if seen[pathname] {
			continue
		}

		perms := fields[1]
		if !strings.Contains(perms, "r") {
			continue
		}

		addrRange := fields[0]
		startStr, _, ok := strings.Cut(addrRange, "-")
		if !ok {
			continue
		}
		start, err := strconv.ParseUint(startStr, 16, 64)
		if err != nil {
			continue
		}

		seen[pathname] = true
		out = append(out, Object{BaseAddr: uintptr(start), Path: pathname})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan maps: %w", err)
	}
	return out, nil
}
