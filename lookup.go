// Completion: 100% - Symbol lookup
package vrtld

import "debug/elf"

// hashtabLookup resolves symname via a module's SysV hash table.
func hashtabLookup(strtab []byte, symtab []elf.Sym32, hashtab []uint32, symname string) *elf.Sym32 {
	hash := elfHash(symname)
	nbucket := hashtab[0]
	bucket := hashtab[2 : 2+nbucket]
	chainTab := hashtab[2+nbucket:]

	for i := bucket[hash%nbucket]; i != 0; i = chainTab[i] {
		if cstr(strtab, symtab[i].Name) == symname {
			return &symtab[i]
		}
	}
	return nil
}

// lookupSym resolves symname within a single module, preferring its hash
// table when present and falling back to a linear scan (symbol index 0
// is always the mandatory UNDEF entry and is skipped).
func lookupSym(mod *Module, symname string) *elf.Sym32 {
	if mod == nil || mod.dynsym == nil || mod.dynstr == nil {
		return nil
	}
	if mod.hashtab != nil {
		return hashtabLookup(mod.dynstr, mod.dynsym, mod.hashtab, symname)
	}
	for i := 1; i < len(mod.dynsym); i++ {
		if cstr(mod.dynstr, mod.dynsym[i].Name) == symname {
			return &mod.dynsym[i]
		}
	}
	return nil
}

// lookup resolves symname against a single module, falling back to the
// export oracle as a last resort if mod is the host module itself.
func lookup(mod *Module, symname string) (uintptr, bool) {
	if sym := lookupSym(mod, symname); sym != nil && elf.SectionIndex(sym.Shndx) != elf.SHN_UNDEF {
		return mod.base + uintptr(sym.Value), true
	}
	if mod == dsolist && oracle != nil {
		if addr, ok := oracle.Lookup(symname); ok {
			return addr, true
		}
	}
	return 0, false
}

// reverseLookupSym finds the defined symbol in mod whose address exactly
// equals addr, used to populate DLAddr results. A module that has not
// been relocated yet, or has no more than the mandatory UNDEF symbol,
// can never satisfy a reverse lookup.
func reverseLookupSym(mod *Module, addr uintptr) *elf.Sym32 {
	if !mod.relocated() || mod.dynsym == nil || len(mod.dynsym) <= 1 {
		return nil
	}
	for i := 1; i < len(mod.dynsym); i++ {
		sym := &mod.dynsym[i]
		if elf.SectionIndex(sym.Shndx) != elf.SHN_UNDEF && sym.Value != 0 {
			if mod.base+uintptr(sym.Value) == addr {
				return sym
			}
		}
	}
	return nil
}

// lookupGlobal resolves symname against the override-exports table (if
// set), then the export oracle, then every loaded module in chain order
// starting with the host module itself. The first match wins.
func lookupGlobal(symname string) (uintptr, bool) {
	if symname == "" {
		return 0, false
	}

	for _, e := range overrideExports {
		if e.Name == symname {
			return e.AddrRX, true
		}
	}

	if oracle != nil {
		if addr, ok := oracle.Lookup(symname); ok {
			return addr, true
		}
	}

	for mod := dsolist; mod != nil; mod = mod.next {
		if sym := lookupSym(mod, symname); sym != nil && elf.SectionIndex(sym.Shndx) != elf.SHN_UNDEF {
			return mod.base + uintptr(sym.Value), true
		}
	}

	return 0, false
}

// overrideExports takes priority over every other resolution path in
// lookupGlobal. A host program sets it (rarely) to force specific
// symbol names to resolve to addresses of its choosing regardless of
// what any loaded module or the export oracle would otherwise provide.
var overrideExports []Export

// oracle is the host-OS native export fallback consulted by lookup and
// lookupGlobal, set by Init unless NoExportOracle was requested.
var oracle ExportOracle
