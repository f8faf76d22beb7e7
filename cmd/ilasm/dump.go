package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/ilasm/il"
	"github.com/chazu/ilasm/image"
	"github.com/chazu/ilasm/metadata"
	"github.com/chazu/ilasm/methodbody"
)

// handleDumpCommand processes the `ilasm dump` subcommand.
// Usage:
//
//	ilasm dump out.ilbi
func handleDumpCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Error: dump requires exactly one image path")
		os.Exit(1)
	}
	img, err := image.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := dumpImage(os.Stdout, img); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dumpImage prints every method in img with its header, locals and
// disassembled code.
func dumpImage(w io.Writer, img *image.Image) error {
	fmt.Fprintf(w, "; project %q, build %s\n", img.Manifest.Project, img.Manifest.BuildID)
	fmt.Fprintf(w, "; %d methods, %d local signatures\n", img.Header.MethodCount, img.Header.SigCount)
	for _, m := range img.Methods() {
		body, err := img.Body(m.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n.method %s  // offset 0x%X, %d bytes\n", m.Name, m.Offset, m.Size)
		if err := dumpBody(w, body, img.Signature); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	return nil
}

func dumpBody(w io.Writer, body []byte, sig func(metadata.Token) ([]byte, error)) error {
	h, size, err := methodbody.DecodeHeader(body)
	if err != nil {
		return err
	}
	if uint64(size)+uint64(h.CodeSize) > uint64(len(body)) {
		return fmt.Errorf("%w: code size %d overruns body", methodbody.ErrInvalidHeader, h.CodeSize)
	}
	format := "fat"
	if size == 1 {
		format = "tiny"
	}
	fmt.Fprintf(w, "  // %s header, max stack %d", format, h.MaxStack)
	if h.InitLocals {
		fmt.Fprint(w, ", init locals")
	}
	if h.HasExceptions {
		fmt.Fprint(w, ", exception section")
	}
	fmt.Fprintln(w)
	if h.LocalSig != 0 && sig != nil {
		blob, err := sig(h.LocalSig)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  // locals %v: % X\n", h.LocalSig, blob)
	}
	listing, err := il.Disassemble(body[size : size+int(h.CodeSize)])
	fmt.Fprint(w, listing)
	return err
}

// printBodies writes each assembled body as hex, the form -x prints.
func printBodies(w io.Writer, res *result) {
	for _, a := range res.Methods {
		src := ""
		if a.Cached {
			src = " (cached)"
		}
		fmt.Fprintf(w, "%s%s: % X\n", a.Name, src, a.Body)
	}
}
