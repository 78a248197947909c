package vrtld

import (
	"fmt"
	"os"
)

// Verbose gates diagnostic output on every loader operation. It mirrors
// the DEBUG_PRINTF build-time switch the loader was originally written
// against: off by default, flippable by an embedding host at any point.
var Verbose bool

func debugf(format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "vrtld: "+format+"\n", args...)
}
