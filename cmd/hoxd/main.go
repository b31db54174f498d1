// Command hoxd is the thin CLI layer wiring internal/vcs, internal/cache,
// internal/reconcile, and internal/loop together: task CRUD, a reconciling
// watch daemon, and the Ralph loop engine driving individual tasks.
package main

import (
	"fmt"
	"os"

	"github.com/hoxforge/hox/internal/herr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit code spec §6 assigns it. Errors
// that don't carry an herr.Kind (flag parsing, usage errors cobra already
// printed) fall back to 1.
func exitCodeFor(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	switch herr.KindOf(err) {
	case herr.KindVcsNotFound:
		return 3
	case herr.KindDependencyCycle:
		return 4
	case herr.KindValidation, herr.KindSchemaValidation, herr.KindPathUnsafe, herr.KindInvalidRef:
		return 2
	case "":
		return 1
	default:
		return 1
	}
}
