// Completion: 100% - SysV ELF hash function
package vrtld

// elfHash is the classic SysV ELF string hash used by .hash sections
// (see the System V ABI, "Hashing Function"). It is reimplemented here
// bit-for-bit rather than pulled from a hashing library because the
// algorithm is mandated by the ELF hash-table wire format itself, not a
// free choice of hash function.
func elfHash(name string) uint32 {
	var h, g uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		g = h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &= 0x0fffffff
	}
	return h
}
