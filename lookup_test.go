package vrtld

import "testing"

func resetChainForTest() {
	dsolist.next = nil
	dsolist.dynsym = nil
	dsolist.dynstr = nil
	dsolist.hashtab = nil
	dsolist.flags = modMapped | modRelocated | modInitialized
	dsolist.base = 0
	overrideExports = nil
	oracle = nil
}

func moduleWithExports(name string, base uintptr, exp []Export) *Module {
	symtab, strtab, hashtab, err := symtabFromExports(exp, base)
	if err != nil {
		panic(err)
	}
	return &Module{
		Name:    name,
		base:    base,
		size:    0x1000,
		dynsym:  symtab,
		dynstr:  strtab,
		hashtab: hashtab,
		flags:   modMapped | modRelocated | modInitialized,
	}
}

func TestLookupGlobalOverrideWinsOverEverything(t *testing.T) {
	resetChainForTest()
	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "clash", AddrRX: 0x2100}})
	linkModule(mod)

	overrideExports = []Export{{Name: "clash", AddrRX: 0xdeadbeef}}

	addr, ok := lookupGlobal("clash")
	if !ok || addr != 0xdeadbeef {
		t.Fatalf("override export should win, got addr=0x%x ok=%v", addr, ok)
	}
}

func TestLookupGlobalOracleBeforeChain(t *testing.T) {
	resetChainForTest()
	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "clash", AddrRX: 0x2100}})
	linkModule(mod)

	oracle = MapOracle{"clash": 0xcafebabe}

	addr, ok := lookupGlobal("clash")
	if !ok || addr != 0xcafebabe {
		t.Fatalf("oracle should win over module chain, got addr=0x%x ok=%v", addr, ok)
	}
}

func TestLookupGlobalChainOrderStartsAtHost(t *testing.T) {
	resetChainForTest()
	dsolist.dynsym, dsolist.dynstr, dsolist.hashtab, _ = symtabFromExports([]Export{{Name: "shared", AddrRX: 0x50}}, 0)
	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "shared", AddrRX: 0x2100}})
	linkModule(mod)

	addr, ok := lookupGlobal("shared")
	if !ok || addr != 0x50 {
		t.Fatalf("expected host module's export to win (searched first), got 0x%x", addr)
	}
}

func TestLookupGlobalEmptyNameFails(t *testing.T) {
	resetChainForTest()
	if _, ok := lookupGlobal(""); ok {
		t.Fatalf("empty symbol name must never resolve")
	}
}

func TestReverseLookupSymRequiresRelocated(t *testing.T) {
	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "fn", AddrRX: 0x2100}})
	mod.flags &^= modRelocated
	if sym := reverseLookupSym(mod, 0x2100); sym != nil {
		t.Fatalf("reverse lookup must fail on an unrelocated module")
	}
}

func TestReverseLookupSymFindsExactAddress(t *testing.T) {
	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "fn", AddrRX: 0x2100}})
	sym := reverseLookupSym(mod, 0x2100)
	if sym == nil {
		t.Fatalf("expected to find symbol at 0x2100")
	}
	if cstr(mod.dynstr, sym.Name) != "fn" {
		t.Fatalf("expected symbol name `fn`, got %q", cstr(mod.dynstr, sym.Name))
	}
}
