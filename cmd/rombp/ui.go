package main

import (
	"fmt"
	"os"
)

// launchUI is the hand-off point for the no-args path: a real GUI build
// would replace this one function with a file browser and call into
// the same internal/patch.Apply this CLI uses. This build has no GUI
// compiled in.
func launchUI() {
	fmt.Fprintln(os.Stderr, "rombp: no arguments given and no graphical interface is compiled into this build")
	fmt.Fprintln(os.Stderr, "rombp: run with -i SOURCE -p PATCH -o OUTPUT, or -h for help")
	os.Exit(1)
}
