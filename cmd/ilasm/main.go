// ilasm CLI - assembles IL listings into an ILBI method body image
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ilasm/manifest"
)

func log() commonlog.Logger { return commonlog.GetLogger("ilasm.cli") }

func main() {
	if len(os.Args) > 1 && os.Args[1] == "dump" {
		handleDumpCommand(os.Args[2:])
		return
	}

	verbosity := flag.Int("v", -1, "Log verbosity (overrides [log] verbosity)")
	logFile := flag.String("log", "", "Log file (default stderr)")
	outPath := flag.String("o", "", "Output image path (overrides [output] path)")
	workers := flag.Int("j", -1, "Parallel assembly workers, 0 for one per CPU")
	noCache := flag.Bool("no-cache", false, "Skip the body cache")
	noMmap := flag.Bool("no-mmap", false, "Write the image through a heap buffer instead of mmap")
	noInit := flag.Bool("no-init-locals", false, "Clear the init-locals flag on every body")
	hexDump := flag.Bool("x", false, "Print each assembled body as hex")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ilasm [options] [paths...]\n")
		fmt.Fprintf(os.Stderr, "       ilasm dump <image>\n\n")
		fmt.Fprintf(os.Stderr, "Assembles .method blocks from IL listings into an image. Without paths,\n")
		fmt.Fprintf(os.Stderr, "the [source] dirs of the nearest ilasm.toml are used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ilasm                      # Assemble the project in ilasm.toml\n")
		fmt.Fprintf(os.Stderr, "  ilasm -x main.il           # Assemble one listing, print the bodies\n")
		fmt.Fprintf(os.Stderr, "  ilasm -o lib.ilbi ./src    # Assemble a directory into lib.ilbi\n")
		fmt.Fprintf(os.Stderr, "  ilasm dump out.ilbi        # List the methods in an image\n")
	}
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default(wd)
	}

	// Flags override the manifest
	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	if *logFile != "" {
		m.Log.File = absPath(*logFile)
	}
	if *outPath != "" {
		m.Output.Path = absPath(*outPath)
	}
	if *workers >= 0 {
		m.Assembler.Workers = *workers
	}
	if *noCache {
		m.Cache.Enabled = false
	}
	if *noMmap {
		m.Output.Mmap = false
	}
	if *noInit {
		m.Assembler.InitLocals = false
	}

	commonlog.Configure(m.Log.Verbosity, m.LogPath())

	files, err := listingFiles(m, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no listings found")
		os.Exit(1)
	}

	res, err := assemble(m, files, len(flag.Args()) == 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *hexDump {
		printBodies(os.Stdout, res)
	}
	log().Infof("assembled %d methods (%d from cache) into %s", len(res.Methods), res.CacheHits, m.OutputPath())
}

// absPath resolves flag paths against the working directory rather than
// the manifest directory.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
