package registry

import (
	"fmt"

	"github.com/dop251/goja"
)

// CompileScript compiles a JavaScript snippet into a name predicate for
// Manager.SetScript. The snippet must define a top-level function "match"
// taking a single string (the candidate object's path) and returning a
// boolean, e.g.:
//
//	function match(path) { return path.indexOf("libssl") !== -1; }
//
// The returned predicate is not safe for concurrent use by multiple
// goroutines at once — each goja.Runtime is single-threaded — so Manager
// always calls it from whichever goroutine is running Hook.
func CompileScript(src string) (func(path string) bool, error) {
	vm := goja.New()
	if _, err := vm.RunString(src); err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	var match func(string) bool
	if err := vm.ExportTo(vm.Get("match"), &match); err != nil {
		return nil, fmt.Errorf("script must define function match(path): %w", err)
	}

	return func(path string) bool {
		return match(path)
	}, nil
}
