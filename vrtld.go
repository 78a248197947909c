// Completion: 100% - Public init/quit surface
package vrtld

import "fmt"

// InitFlags mirror vrtld_init_flags: Initialized is always recorded once
// Init succeeds, and NoExportOracle suppresses consulting the host-OS
// native export oracle when resolving symbols against the host module.
type InitFlags int

const (
	Initialized    InitFlags = 1 << 0
	NoExportOracle InitFlags = 1 << 1
)

var activeInitFlags InitFlags

// Init brings up the loader: it installs kernel as the active
// KernelCapability, resets the VMA arena, and attempts to build the
// host module's symbol table from DefaultExports (silently skipped if
// none was set — a host with no exports to offer loaded modules is a
// valid configuration, not an error). kernel must be non-nil; there is
// no meaningful way to load and map a DSO without a host capability to
// allocate and write its memory.
func Init(kernel KernelCapability, flags InitFlags, ora ExportOracle) error {
	if kernel == nil {
		return fmt.Errorf("vrtld: Init: nil KernelCapability")
	}

	currentKernel = kernel

	if noExportOracleFromEnv() {
		flags |= NoExportOracle
	}
	activeInitFlags = Initialized | flags

	if flags&NoExportOracle == 0 {
		oracle = ora
	} else {
		oracle = nil
	}

	start, end := vmaWindow()
	vma = newVMAArena(start, end)

	dsolist.base = 0
	dsolist.size = 0
	_ = setMainExports(nil)

	clearError()
	return nil
}

// InitFlagsValue returns the flags vrtld was initialized with, or 0 if
// it has not been initialized.
func InitFlagsValue() InitFlags {
	return activeInitFlags
}

// Quit unloads every loaded module and resets the loader to an
// uninitialized state.
func Quit() error {
	if activeInitFlags == 0 {
		return fmt.Errorf("vrtld: Quit: vrtld is not initialized")
	}

	unloadAll()
	activeInitFlags = 0
	clearError()
	return nil
}

// SetMainExports sets the host module's export list, used to resolve
// symbols loaded modules import from the host program. Passing nil
// falls back to the package-level DefaultExports, if any was set.
func SetMainExports(exp []Export) error {
	return setMainExports(exp)
}
