// Completion: 100% - Export-to-symtab builder
package vrtld

import (
	"debug/elf"
	"fmt"
)

// symtabFromExports synthesizes a minimal ELF32 symbol table, string
// table and SysV hash table from a flat (name, address) export list, so
// that the host program can be treated as just another module during
// symbol resolution. Addresses are stored relative to base so that
// base+st_value reproduces the original absolute address later.
func symtabFromExports(exp []Export, base uintptr) (symtab []elf.Sym32, strtab []byte, hashtab []uint32, err error) {
	if len(exp) == 0 {
		return nil, nil, nil, fmt.Errorf("vrtld: empty export list")
	}

	nchain := uint32(len(exp)) + 1 // + the synthetic UNDEF symbol
	nbucket := nchain*2 + 1

	symtab = make([]elf.Sym32, nchain)

	strtabSize := 1
	for _, e := range exp {
		strtabSize += 1 + len(e.Name)
	}
	strtab = make([]byte, strtabSize)

	strPtr := 1
	symtab[0].Name = 1
	for i, e := range exp {
		copy(strtab[strPtr:], e.Name)
		symtab[i+1].Name = uint32(strPtr)
		symtab[i+1].Shndx = uint16(elf.SHN_ABS)
		symtab[i+1].Value = uint32(e.AddrRX - base)
		strPtr += len(e.Name) + 1
	}
	if strPtr != strtabSize {
		return nil, nil, nil, fmt.Errorf("vrtld: export string table size mismatch")
	}

	hashtab = make([]uint32, 2+nbucket+nchain)
	hashtab[0] = nbucket
	hashtab[1] = nchain
	bucket := hashtab[2 : 2+nbucket]
	chain := hashtab[2+nbucket:]
	for i := range bucket {
		bucket[i] = stnUndef
	}
	for i := range chain {
		chain[i] = stnUndef
	}

	for i := uint32(0); i < nchain; i++ {
		name := cstr(strtab, symtab[i].Name)
		h := elfHash(name) % nbucket
		if bucket[h] == stnUndef {
			bucket[h] = i
		} else {
			y := bucket[h]
			for chain[y] != stnUndef {
				y = chain[y]
			}
			chain[y] = i
		}
	}

	return symtab, strtab, hashtab, nil
}

// cstr reads a NUL-terminated string out of a byte table starting at off.
func cstr(tab []byte, off uint32) string {
	end := off
	for end < uint32(len(tab)) && tab[end] != 0 {
		end++
	}
	return string(tab[off:end])
}

// setMainExports builds the host module's synthetic symbol table either
// from an explicit export list, or — if exp is nil — from the package
// level DefaultExports fallback a host program may have set before
// calling Init. This is the closest Go equivalent of the original's
// weakly-linked default export array: there is no weak-symbol mechanism,
// so the host opts in by assigning a package variable instead.
func setMainExports(exp []Export) error {
	if exp == nil {
		exp = DefaultExports
	}
	if len(exp) == 0 {
		return fmt.Errorf("vrtld: no exports to set")
	}

	symtab, strtab, hashtab, err := symtabFromExports(exp, dsolist.base)
	if err != nil {
		return err
	}

	dsolist.dynsym = symtab
	dsolist.dynstr = strtab
	dsolist.hashtab = hashtab
	dsolist.exports = exp
	dsolist.flags |= modOwnSymtab
	dsolist.flags |= moduleFlags(Global)

	return nil
}

// DefaultExports is consulted by SetMainExports(nil) when no explicit
// export list is supplied. A host program that wants modules it loads
// to see its own exported symbols without passing them at every call
// site should set this once before calling Init.
var DefaultExports []Export
