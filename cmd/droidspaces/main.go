package main

import (
	"os"

	"github.com/maazm7d/droidspaces/internal/engine"
)

// main dispatches to the droidspaces-init child body when re-exec'd (argv[1]
// is the sentinel engine.spawnInit sets), otherwise runs the cobra CLI. This
// is the self-reexec pattern in place of the teacher's C-helper
// stage1/stage2/master split (see internal/engine's package doc).
func main() {
	if len(os.Args) > 1 && os.Args[1] == engine.ReexecMarker {
		runInitChild()
		return
	}
	Execute()
}
