// Completion: 100% - Error latch and sentinel errors
package vrtld

import (
	"fmt"
	"sync"
)

// errLatch is the single-slot error message buffer the public dl*
// surface reports through, mirroring libdl's dlerror() semantics: the
// first failure latched since the slot was last cleared is kept (later
// failures do not overwrite it), and reading it clears it.
//
// vrtld is documented as non-reentrant and single-threaded (callers must
// serialize every entry point), so the mutex here exists only to make
// the latch itself safe to read from a signal-handler-style context; it
// is never used to make two concurrent DLOpen calls safe.
type errLatch struct {
	mu  sync.Mutex
	msg string
	set bool
}

var latch errLatch

func setError(format string, args ...any) {
	latch.mu.Lock()
	defer latch.mu.Unlock()
	if latch.set {
		return // first writer wins within one operation
	}
	latch.msg = fmt.Sprintf(format, args...)
	latch.set = true
	debugf("%s", latch.msg)
}

func clearError() {
	latch.mu.Lock()
	defer latch.mu.Unlock()
	latch.msg = ""
	latch.set = false
}

// DLError returns the text of the most recent error latched by a vrtld
// call and clears the latch, exactly like libdl's dlerror(3). It returns
// "" if nothing has failed since the last call (or since Init).
func DLError() string {
	latch.mu.Lock()
	defer latch.mu.Unlock()
	if !latch.set {
		return ""
	}
	msg := latch.msg
	latch.msg = ""
	latch.set = false
	return msg
}
