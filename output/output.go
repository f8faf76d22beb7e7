// Package output writes fixed-size files through an offset-addressed
// buffer. The buffer is a shared memory mapping of a temporary file on unix
// systems and a heap slice elsewhere; Finalize renames the temporary file
// onto the target so readers never observe a partial file.
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/ilasm/metadata"
)

// log returns the package logger. Backends are installed after package init,
// so the logger is looked up on use.
func log() commonlog.Logger { return commonlog.GetLogger("ilasm.output") }

var (
	ErrOutOfBounds = errors.New("write out of bounds")
	ErrClosed      = errors.New("output already finalized or aborted")
)

// Output is a file of fixed size under construction.
type Output struct {
	target string
	temp   string
	file   *os.File
	data   []byte
	mapped bool
	closed bool
}

// Create makes a temporary file next to target, sized to size bytes. With
// mmap set the file is memory mapped when the platform allows it.
func Create(target string, size int, mmap bool) (*Output, error) {
	if size < 0 {
		return nil, fmt.Errorf("output: negative size %d", size)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: creating %s: %w", dir, err)
	}
	temp := filepath.Join(dir, "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(temp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("output: creating temp file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(temp)
		return nil, fmt.Errorf("output: sizing temp file: %w", err)
	}

	o := &Output{target: target, temp: temp, file: f}
	if mmap && size > 0 && mmapSupported {
		data, err := mapFile(f, size)
		if err != nil {
			f.Close()
			os.Remove(temp)
			return nil, fmt.Errorf("output: mapping temp file: %w", err)
		}
		o.data, o.mapped = data, true
	} else {
		o.data = make([]byte, size)
	}
	log().Debugf("created %s (%d bytes, mapped=%t)", temp, size, o.mapped)
	return o, nil
}

// Size returns the file size fixed at creation.
func (o *Output) Size() int { return len(o.data) }

// TargetPath returns the path the file is renamed to on Finalize.
func (o *Output) TargetPath() string { return o.target }

// Mapped reports whether writes go straight to a file mapping.
func (o *Output) Mapped() bool { return o.mapped }

// Bytes returns the whole buffer. The slice is invalid after Finalize
// or Abort.
func (o *Output) Bytes() []byte { return o.data }

// Slice returns the writable region [offset, offset+size).
func (o *Output) Slice(offset, size int) ([]byte, error) {
	if err := o.check(offset, size); err != nil {
		return nil, err
	}
	return o.data[offset : offset+size : offset+size], nil
}

func (o *Output) check(offset, size int) error {
	if o.closed {
		return ErrClosed
	}
	if offset < 0 || size < 0 || offset > len(o.data) || size > len(o.data)-offset {
		return fmt.Errorf("%w: [%d, %d) in %d-byte file", ErrOutOfBounds, offset, offset+size, len(o.data))
	}
	return nil
}

// WriteAt copies data to offset.
func (o *Output) WriteAt(offset int, data []byte) error {
	dst, err := o.Slice(offset, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// WriteByteAt writes one byte.
func (o *Output) WriteByteAt(offset int, b byte) error {
	if err := o.check(offset, 1); err != nil {
		return err
	}
	o.data[offset] = b
	return nil
}

// WriteU16At writes a little-endian uint16.
func (o *Output) WriteU16At(offset int, v uint16) error {
	dst, err := o.Slice(offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(dst, v)
	return nil
}

// WriteU32At writes a little-endian uint32.
func (o *Output) WriteU32At(offset int, v uint32) error {
	dst, err := o.Slice(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(dst, v)
	return nil
}

// WriteU64At writes a little-endian uint64.
func (o *Output) WriteU64At(offset int, v uint64) error {
	dst, err := o.Slice(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

// WriteCompressedUintAt writes v in ECMA-335 compressed form and returns
// the offset just past it.
func (o *Output) WriteCompressedUintAt(offset int, v uint32) (int, error) {
	enc, err := metadata.AppendCompressedUint(nil, v)
	if err != nil {
		return offset, err
	}
	if err := o.WriteAt(offset, enc); err != nil {
		return offset, err
	}
	return offset + len(enc), nil
}

// WriteAligned writes data at offset, zero-fills up to the next 4-byte
// boundary and returns that boundary.
func (o *Output) WriteAligned(offset int, data []byte) (int, error) {
	end := offset + len(data)
	next := (end + 3) &^ 3
	if next > len(o.data) {
		next = end
	}
	if err := o.WriteAt(offset, data); err != nil {
		return offset, err
	}
	if err := o.ZeroRange(end, next-end); err != nil {
		return offset, err
	}
	return next, nil
}

// ZeroRange clears size bytes starting at offset.
func (o *Output) ZeroRange(offset, size int) error {
	return o.FillRange(offset, size, 0)
}

// FillRange sets size bytes starting at offset to b.
func (o *Output) FillRange(offset, size int, b byte) error {
	dst, err := o.Slice(offset, size)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = b
	}
	return nil
}

// CopyRange moves size bytes from src to dst within the file. The ranges
// may overlap.
func (o *Output) CopyRange(src, dst, size int) error {
	if err := o.check(src, size); err != nil {
		return err
	}
	if err := o.check(dst, size); err != nil {
		return err
	}
	copy(o.data[dst:dst+size], o.data[src:src+size])
	return nil
}

// Flush pushes buffered bytes to the temporary file.
func (o *Output) Flush() error {
	if o.closed {
		return ErrClosed
	}
	if o.mapped {
		if err := syncMap(o.data); err != nil {
			return fmt.Errorf("output: sync: %w", err)
		}
		return nil
	}
	if _, err := o.file.WriteAt(o.data, 0); err != nil {
		return fmt.Errorf("output: write: %w", err)
	}
	return nil
}

// Finalize flushes, closes and renames the temporary file onto the
// target path.
func (o *Output) Finalize() error {
	if err := o.Flush(); err != nil {
		o.Abort()
		return err
	}
	size := len(o.data)
	if err := o.release(); err != nil {
		os.Remove(o.temp)
		return err
	}
	if err := os.Rename(o.temp, o.target); err != nil {
		os.Remove(o.temp)
		return fmt.Errorf("output: rename onto %s: %w", o.target, err)
	}
	log().Infof("wrote %s (%d bytes)", o.target, size)
	return nil
}

// Abort discards the temporary file. It is a no-op after Finalize.
func (o *Output) Abort() error {
	if o.closed {
		return nil
	}
	err := o.release()
	if rerr := os.Remove(o.temp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	log().Debugf("aborted %s", o.temp)
	return err
}

func (o *Output) release() error {
	o.closed = true
	var err error
	if o.mapped {
		err = unmap(o.data)
	}
	o.data = nil
	if cerr := o.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("output: close: %w", err)
	}
	return nil
}
