package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/chazu/ilasm/metadata"
)

// Image is a decoded ILBI file. Body slices alias the input data.
type Image struct {
	Header   Header
	Manifest *Manifest

	data   []byte
	sigs   []uint32
	blobs  *metadata.BlobHeap
	byName map[string]int
}

// ReadFile reads and decodes the image at path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Read(data)
}

// Read decodes an image and verifies every body checksum.
func Read(data []byte) (*Image, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	section := func(off, size uint32, what string) ([]byte, error) {
		end := uint64(off) + uint64(size)
		if uint64(off) < HeaderSize || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s [%d, %d) outside %d-byte image", ErrCorruptData, what, off, end, len(data))
		}
		return data[off:end:end], nil
	}

	img := &Image{Header: h, data: data, byName: make(map[string]int)}

	raw, err := section(h.ManifestOffset, h.ManifestSize, "manifest")
	if err != nil {
		return nil, err
	}
	if img.Manifest, err = UnmarshalManifest(raw); err != nil {
		return nil, err
	}
	if uint32(len(img.Manifest.Methods)) != h.MethodCount {
		return nil, fmt.Errorf("%w: header lists %d methods, manifest %d", ErrCorruptData, h.MethodCount, len(img.Manifest.Methods))
	}

	sigTable, err := section(h.SigTableOffset, 4*h.SigCount, "signature table")
	if err != nil {
		return nil, err
	}
	img.sigs = make([]uint32, h.SigCount)
	for i := range img.sigs {
		img.sigs[i] = binary.LittleEndian.Uint32(sigTable[4*i:])
	}
	heap, err := section(h.BlobOffset, h.BlobSize, "blob heap")
	if err != nil {
		return nil, err
	}
	img.blobs = metadata.NewBlobHeap()
	if len(heap) > 0 {
		if img.blobs, err = metadata.LoadBlobHeap(heap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
	}

	for i, m := range img.Manifest.Methods {
		body, err := section(m.Offset, m.Size, m.Name)
		if err != nil {
			return nil, err
		}
		if sha256.Sum256(body) != m.Hash {
			return nil, fmt.Errorf("%w: %s", ErrChecksum, m.Name)
		}
		if _, dup := img.byName[m.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMethod, m.Name)
		}
		img.byName[m.Name] = i
	}
	return img, nil
}

// Methods returns the manifest entries in image order.
func (img *Image) Methods() []Method {
	return img.Manifest.Methods
}

// Body returns the encoded body of the named method.
func (img *Image) Body(name string) ([]byte, error) {
	i, ok := img.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, name)
	}
	m := img.Manifest.Methods[i]
	return img.data[m.Offset : m.Offset+m.Size : m.Offset+m.Size], nil
}

// Signature returns the blob behind a StandAloneSig token.
func (img *Image) Signature(t metadata.Token) ([]byte, error) {
	if t.Table() != metadata.TableStandAloneSig || t.IsNil() || int(t.RID()) > len(img.sigs) {
		return nil, fmt.Errorf("%w: no signature row for %v", ErrCorruptData, t)
	}
	return img.blobs.Get(img.sigs[t.RID()-1])
}

// Equal reports whether two images hold the same bodies and signatures,
// ignoring build ids.
func (img *Image) Equal(other *Image) bool {
	a, b := img.Manifest.Methods, other.Manifest.Methods
	if len(a) != len(b) || len(img.sigs) != len(other.sigs) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Hash != b[i].Hash || a[i].LocalSig != b[i].LocalSig {
			return false
		}
	}
	return bytes.Equal(img.blobs.Bytes(), other.blobs.Bytes())
}
