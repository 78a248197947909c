// Completion: 100% - CLI interface complete
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fgsfdsfgs/vrtld"
)

const versionString = "vrtldinfo 1.0.0"

func main() {
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (show loader debug messages)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (show loader debug messages)")
	var symname = flag.String("sym", "", "resolve a single symbol and print its address, then exit")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		return
	}

	vrtld.Verbose = *verbose || *verboseLong

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: vrtldinfo [-v] [-sym NAME] FILE.so [FILE.so ...]")
		os.Exit(1)
	}

	if err := vrtld.Init(vrtld.NewUnixKernel(), 0, nil); err != nil {
		fmt.Fprintf(os.Stderr, "vrtldinfo: %v\n", err)
		os.Exit(1)
	}
	defer vrtld.Quit()

	status := 0
	for _, path := range paths {
		if err := dumpOne(path, *symname); err != nil {
			fmt.Fprintf(os.Stderr, "vrtldinfo: %s: %v\n", path, err)
			status = 1
		}
	}
	os.Exit(status)
}

func dumpOne(path, symname string) error {
	mod, err := vrtld.DLOpen(path, vrtld.Now|vrtld.Global)
	if err != nil {
		return err
	}
	defer vrtld.DLClose(mod)

	fmt.Printf("%s\n", path)
	fmt.Printf("  base: 0x%x\n", vrtld.GetBase(mod))
	fmt.Printf("  size: 0x%x\n", vrtld.GetSize(mod))

	exidx, numExidx := vrtld.GetExidx(mod)
	if exidx != 0 {
		fmt.Printf("  exidx: 0x%x (%d entries)\n", exidx, numExidx)
	}

	if symname == "" {
		return nil
	}
	addr, err := vrtld.DLSym(mod, symname)
	if err != nil {
		return err
	}
	fmt.Printf("  %s = 0x%x\n", symname, addr)
	return nil
}
