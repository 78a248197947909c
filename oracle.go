// Completion: 100% - Host-OS native export oracle
package vrtld

// ExportOracle is consulted as a last resort by the main module's symbol
// resolution path, standing in for a platform's own native export table
// (e.g. a syscall-NID export list baked into the host firmware). It is
// read-only: vrtld never asks an oracle to resolve anything but a plain
// symbol name, and never attempts to enumerate or modify it.
type ExportOracle interface {
	// Lookup resolves name to an address. ok is false if the oracle has
	// no such export.
	Lookup(name string) (addr uintptr, ok bool)
}

// MapOracle is a trivial ExportOracle backed by a name-to-address map.
// It is the reference implementation used in tests and by hosts that
// have no richer native export table to consult.
type MapOracle map[string]uintptr

func (m MapOracle) Lookup(name string) (uintptr, bool) {
	addr, ok := m[name]
	return addr, ok
}
