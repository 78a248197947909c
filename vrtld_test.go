package vrtld

import "testing"

func TestInitRejectsNilKernel(t *testing.T) {
	resetChainForTest()
	if err := Init(nil, 0, nil); err == nil {
		t.Fatalf("expected Init to reject a nil KernelCapability")
	}
}

func TestInitQuitLifecycle(t *testing.T) {
	resetChainForTest()

	if err := Quit(); err == nil {
		t.Fatalf("expected Quit to fail before Init was ever called")
	}

	k := newFakeKernel()
	if err := Init(k, 0, MapOracle{"host_fn": 0x1000}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if InitFlagsValue()&Initialized == 0 {
		t.Fatalf("expected the Initialized flag to be set after Init")
	}
	if oracle == nil {
		t.Fatalf("expected the export oracle to be installed")
	}

	if err := Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if InitFlagsValue() != 0 {
		t.Fatalf("expected flags to be cleared after Quit")
	}

	if err := Quit(); err == nil {
		t.Fatalf("a second Quit without an intervening Init must fail")
	}
}

func TestInitNoExportOracleSuppressesOracle(t *testing.T) {
	resetChainForTest()
	k := newFakeKernel()
	if err := Init(k, NoExportOracle, MapOracle{"host_fn": 0x1000}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Quit()

	if oracle != nil {
		t.Fatalf("expected NoExportOracle to suppress the provided oracle")
	}
	if InitFlagsValue()&NoExportOracle == 0 {
		t.Fatalf("expected NoExportOracle to be recorded in the active flags")
	}
}

func TestQuitUnloadsEveryModule(t *testing.T) {
	resetChainForTest()
	k := newFakeKernel()
	if err := Init(k, 0, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	mod := moduleWithExports("libfoo.so", 0x2000, []Export{{Name: "fn", AddrRX: 0x2100}})
	linkModule(mod)

	if err := Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if dsolist.next != nil {
		t.Fatalf("expected Quit to detach every loaded module from the chain")
	}
}

func TestSetMainExportsWrapsThePrivateHelper(t *testing.T) {
	resetChainForTest()
	k := newFakeKernel()
	if err := Init(k, 0, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Quit()

	if err := SetMainExports([]Export{{Name: "hostfn", AddrRX: 0x5000}}); err != nil {
		t.Fatalf("SetMainExports: %v", err)
	}
	if sym := lookupSym(dsolist, "hostfn"); sym == nil {
		t.Fatalf("expected `hostfn` to resolve against the host module after SetMainExports")
	}
}
