// Completion: 100% - Ambient configuration
package vrtld

import (
	"strconv"

	"github.com/xyproto/env/v2"
)

// Default VMA window, matching the address range the loader's design
// was sized around. A host embedding vrtld in a differently-laid-out
// address space overrides these with environment variables rather than
// a compile-time constant, since Go has no equivalent of a build-time
// #define for this.
const (
	defaultVMAStart = 0x98000000
	defaultVMAEnd   = 0xA2000000
)

// vmaWindow returns the (start, end) of the virtual address range the
// VMA arena manages. VRTLD_VMA_START/VRTLD_VMA_END, if set, must be
// hexadecimal (with or without a leading "0x") and override the
// defaults; an unparsable value falls back silently to the default for
// that bound.
func vmaWindow() (uintptr, uintptr) {
	start := uintptr(defaultVMAStart)
	end := uintptr(defaultVMAEnd)

	if s := env.Str("VRTLD_VMA_START"); s != "" {
		if v, err := strconv.ParseUint(trimHexPrefix(s), 16, 64); err == nil {
			start = uintptr(v)
		}
	}
	if s := env.Str("VRTLD_VMA_END"); s != "" {
		if v, err := strconv.ParseUint(trimHexPrefix(s), 16, 64); err == nil {
			end = uintptr(v)
		}
	}
	return start, end
}

// noExportOracleFromEnv lets a host force NoExportOracle on without
// threading it through every Init call site, mirroring how
// VRTLD_NO_SCE_EXPORTS would be toggled for a one-off debug build.
func noExportOracleFromEnv() bool {
	return env.Bool("VRTLD_NO_EXPORT_ORACLE")
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
