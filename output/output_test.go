package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndFinalize(t *testing.T) {
	for _, mmap := range []bool{true, false} {
		target := filepath.Join(t.TempDir(), "sub", "out.bin")
		o, err := Create(target, 16, mmap)
		if err != nil {
			t.Fatal(err)
		}
		if err := o.WriteAt(0, []byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
		if err := o.WriteByteAt(3, 4); err != nil {
			t.Fatal(err)
		}
		if err := o.WriteU16At(4, 0x0605); err != nil {
			t.Fatal(err)
		}
		if err := o.WriteU32At(6, 0x0A090807); err != nil {
			t.Fatal(err)
		}
		next, err := o.WriteCompressedUintAt(10, 0x80)
		if err != nil || next != 12 {
			t.Fatalf("compressed: next = %d, err = %v", next, err)
		}
		if _, err := os.Stat(target); !os.IsNotExist(err) {
			t.Errorf("mmap=%t: target exists before Finalize", mmap)
		}
		if err := o.Finalize(); err != nil {
			t.Fatal(err)
		}

		got, err := os.ReadFile(target)
		if err != nil {
			t.Fatal(err)
		}
		want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0x80, 0x80, 0, 0, 0, 0}
		if !bytes.Equal(got, want) {
			t.Errorf("mmap=%t: file = % X, want % X", mmap, got, want)
		}
		entries, _ := os.ReadDir(filepath.Dir(target))
		if len(entries) != 1 {
			t.Errorf("mmap=%t: leftover files %v", mmap, entries)
		}
	}
}

func TestFinalizeKeepsSize(t *testing.T) {
	for _, mmap := range []bool{true, false} {
		target := filepath.Join(t.TempDir(), "out.bin")
		o, err := Create(target, 24, mmap)
		if err != nil {
			t.Fatal(err)
		}
		if o.Size() != 24 {
			t.Fatalf("mmap=%t: Size = %d, want 24", mmap, o.Size())
		}
		if err := o.Finalize(); err != nil {
			t.Fatal(err)
		}
		fi, err := os.Stat(target)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() != 24 {
			t.Errorf("mmap=%t: file size = %d, want 24", mmap, fi.Size())
		}
		if o.Size() != 0 {
			t.Errorf("mmap=%t: Size after Finalize = %d, want 0", mmap, o.Size())
		}
	}
}

func TestBoundsChecks(t *testing.T) {
	o, err := Create(filepath.Join(t.TempDir(), "out.bin"), 8, true)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Abort()

	tests := []struct {
		name string
		err  error
	}{
		{"write past end", o.WriteAt(6, []byte{1, 2, 3})},
		{"byte past end", o.WriteByteAt(8, 0)},
		{"u32 straddling end", o.WriteU32At(5, 1)},
		{"negative offset", o.WriteAt(-1, []byte{1})},
		{"zero past end", o.ZeroRange(4, 5)},
		{"copy source past end", o.CopyRange(6, 0, 4)},
		{"copy target past end", o.CopyRange(0, 6, 4)},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrOutOfBounds) {
			t.Errorf("%s: err = %v, want ErrOutOfBounds", tt.name, tt.err)
		}
	}
	if err := o.WriteAt(0, make([]byte, 8)); err != nil {
		t.Errorf("full-size write: %v", err)
	}
}

func TestCopyAndZeroRange(t *testing.T) {
	o, err := Create(filepath.Join(t.TempDir(), "out.bin"), 8, false)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Abort()
	o.WriteAt(0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err := o.CopyRange(0, 2, 4); err != nil {
		t.Fatal(err)
	}
	if err := o.ZeroRange(6, 2); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 1, 2, 3, 4, 0, 0}
	if !bytes.Equal(o.Bytes(), want) {
		t.Errorf("bytes = % X, want % X", o.Bytes(), want)
	}
}

func TestWriteAligned(t *testing.T) {
	o, err := Create(filepath.Join(t.TempDir(), "out.bin"), 12, false)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Abort()
	o.FillRange(0, 12, 0xFF)
	next, err := o.WriteAligned(1, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatal(err)
	}
	if next != 4 {
		t.Errorf("next = %d, want 4", next)
	}
	want := []byte{0xFF, 0xAA, 0xBB, 0x00, 0xFF}
	if !bytes.Equal(o.Bytes()[:5], want) {
		t.Errorf("bytes = % X, want % X", o.Bytes()[:5], want)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	o, err := Create(target, 4, true)
	if err != nil {
		t.Fatal(err)
	}
	o.WriteU32At(0, 1)
	if err := o.Abort(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files left after Abort: %v", entries)
	}
	if err := o.WriteByteAt(0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("write after Abort: err = %v, want ErrClosed", err)
	}
	if err := o.Abort(); err != nil {
		t.Errorf("second Abort: %v", err)
	}
}

func TestEmptyFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "empty.bin")
	o, err := Create(target, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if o.Mapped() {
		t.Error("zero-length file should not be mapped")
	}
	if err := o.Finalize(); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(target); err != nil || fi.Size() != 0 {
		t.Errorf("stat = %v, %v", fi, err)
	}
}
