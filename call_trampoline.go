//go:build linux

// Completion: 80% - FFI trampoline declaration
package vrtld

// callTrampoline jumps to addr with no arguments and discards any
// return value, implemented in assembly per GOARCH (see
// call_trampoline_amd64.s / call_trampoline_arm64.s / call_trampoline_arm.s).
// This is the one piece of the loader with no higher-level library to
// delegate to in the retrieval pack: invoking a raw address as a
// niladic function is inherently a calling-convention-specific
// operation, the same kind of trampoline cgo-free FFI libraries use to
// call into C without cgo.
func callTrampoline(addr uintptr)
