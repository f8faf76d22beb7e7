package image

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/ilasm/methodbody"
	"github.com/chazu/ilasm/output"
)

func log() commonlog.Logger { return commonlog.GetLogger("ilasm.image") }

// SignatureSource provides the StandAloneSig rows and the blob heap the
// bodies' local signature tokens point into. metadata.Context satisfies it.
type SignatureSource interface {
	StandAloneSigs() []uint32
	BlobHeap() []byte
}

// ---------------------------------------------------------------------------
// Writer: collects bodies and lays out an image
// ---------------------------------------------------------------------------

// Writer accumulates method bodies in the order they are added.
type Writer struct {
	project string
	buildID string
	flags   uint32
	names   map[string]bool
	methods []Method
	bodies  [][]byte
}

// NewWriter creates a writer; every writer gets a fresh build id.
func NewWriter(project string) *Writer {
	return &Writer{
		project: project,
		buildID: uuid.NewString(),
		names:   make(map[string]bool),
	}
}

// BuildID returns the id recorded in the manifest.
func (w *Writer) BuildID() string { return w.buildID }

// SetFlags sets the header flags.
func (w *Writer) SetFlags(flags uint32) { w.flags = flags }

// Len returns the number of bodies added.
func (w *Writer) Len() int { return len(w.methods) }

// Add appends an assembled body under name.
func (w *Writer) Add(name string, body *methodbody.Body) error {
	return w.AddRaw(name, body.Bytes, uint32(body.LocalSig))
}

// AddRaw appends already encoded body bytes.
func (w *Writer) AddRaw(name string, body []byte, localSig uint32) error {
	if w.names[name] {
		return fmt.Errorf("%w: %q", ErrDuplicateMethod, name)
	}
	w.names[name] = true
	w.methods = append(w.methods, Method{
		Name:     name,
		Size:     uint32(len(body)),
		LocalSig: localSig,
		Hash:     sha256.Sum256(body),
	})
	w.bodies = append(w.bodies, body)
	return nil
}

// layout is a fully planned image.
type layout struct {
	header   Header
	manifest []byte
	sigs     []uint32
	blobs    []byte
	size     int
}

// plan assigns every body an offset. Bodies start 4-byte aligned so fat
// headers are aligned; the signature table and blob heap follow.
func (w *Writer) plan(src SignatureSource) (*layout, error) {
	l := &layout{}
	if src != nil {
		l.sigs = src.StandAloneSigs()
		l.blobs = src.BlobHeap()
	}

	off := HeaderSize
	for i, b := range w.bodies {
		w.methods[i].Offset = uint32(off)
		off = align4(off + len(b))
	}
	sigOff := off
	off += 4 * len(l.sigs)
	blobOff := off
	off = align4(off + len(l.blobs))

	m := &Manifest{Project: w.project, BuildID: w.buildID, Methods: w.methods}
	enc, err := MarshalManifest(m)
	if err != nil {
		return nil, fmt.Errorf("image: marshal manifest: %w", err)
	}
	l.manifest = enc
	l.header = Header{
		Version:        Version,
		Flags:          w.flags,
		MethodCount:    uint32(len(w.methods)),
		SigCount:       uint32(len(l.sigs)),
		SigTableOffset: uint32(sigOff),
		BlobOffset:     uint32(blobOff),
		BlobSize:       uint32(len(l.blobs)),
		ManifestOffset: uint32(off),
		ManifestSize:   uint32(len(enc)),
	}
	l.size = off + len(enc)
	if uint64(l.size) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: image of %d bytes exceeds 32-bit offsets", ErrCorruptData, l.size)
	}
	return l, nil
}

// Size returns the number of bytes the image will occupy.
func (w *Writer) Size(src SignatureSource) (int, error) {
	l, err := w.plan(src)
	if err != nil {
		return 0, err
	}
	return l.size, nil
}

// WriteTo lays the image out into o, which must be at least Size bytes.
func (w *Writer) WriteTo(o *output.Output, src SignatureSource) error {
	l, err := w.plan(src)
	if err != nil {
		return err
	}
	if o.Size() < l.size {
		return fmt.Errorf("%w: need %d bytes, output has %d", output.ErrOutOfBounds, l.size, o.Size())
	}
	if err := o.WriteAt(0, l.header.encode()); err != nil {
		return err
	}
	for i, b := range w.bodies {
		if _, err := o.WriteAligned(int(w.methods[i].Offset), b); err != nil {
			return fmt.Errorf("image: writing %s: %w", w.methods[i].Name, err)
		}
	}
	for i, idx := range l.sigs {
		if err := o.WriteU32At(int(l.header.SigTableOffset)+4*i, idx); err != nil {
			return err
		}
	}
	if _, err := o.WriteAligned(int(l.header.BlobOffset), l.blobs); err != nil {
		return err
	}
	if err := o.WriteAt(int(l.header.ManifestOffset), l.manifest); err != nil {
		return err
	}
	log().Debugf("laid out %d methods, %d signatures, %d blob bytes", len(w.methods), len(l.sigs), len(l.blobs))
	return nil
}

// WriteFile writes the image to path, replacing it atomically.
func (w *Writer) WriteFile(path string, src SignatureSource, mmap bool) error {
	size, err := w.Size(src)
	if err != nil {
		return err
	}
	o, err := output.Create(path, size, mmap)
	if err != nil {
		return err
	}
	if err := w.WriteTo(o, src); err != nil {
		o.Abort()
		return err
	}
	if err := o.Finalize(); err != nil {
		return err
	}
	log().Infof("image %s: %d methods, build %s", path, len(w.methods), w.buildID)
	return nil
}
