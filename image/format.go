// Package image packs assembled method bodies into a single ILBI file:
// a fixed header, the bodies, the StandAloneSig rows and blob heap they
// refer to, and a CBOR manifest naming every body.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Format constants
// ---------------------------------------------------------------------------

// Magic identifies an ILBI file.
var Magic = [4]byte{'I', 'L', 'B', 'I'}

// Version is the current format version.
const Version uint32 = 1

// HeaderSize is the size of the fixed header:
// magic(4) + version(4) + flags(4) + methodCount(4) + sigCount(4) +
// sigTableOffset(4) + blobOffset(4) + blobSize(4) + manifestOffset(4) +
// manifestSize(4) = 40
const HeaderSize = 40

// Image flags
const (
	FlagNone       uint32 = 0
	FlagInitLocals uint32 = 1 << 0 // bodies were assembled with init-locals on by default
)

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected ILBI")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrCorruptHeader   = errors.New("corrupt image header")
	ErrCorruptData     = errors.New("corrupt image data")
	ErrChecksum        = errors.New("method body checksum mismatch")
	ErrDuplicateMethod = errors.New("duplicate method name")
	ErrMethodNotFound  = errors.New("method not found")
)

// Header is the decoded fixed header.
type Header struct {
	Version        uint32
	Flags          uint32
	MethodCount    uint32
	SigCount       uint32
	SigTableOffset uint32
	BlobOffset     uint32
	BlobSize       uint32
	ManifestOffset uint32
	ManifestSize   uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic[:])
	for i, v := range []uint32{
		h.Version, h.Flags, h.MethodCount, h.SigCount, h.SigTableOffset,
		h.BlobOffset, h.BlobSize, h.ManifestOffset, h.ManifestSize,
	} {
		binary.LittleEndian.PutUint32(buf[4+4*i:], v)
	}
	return buf
}

func decodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrCorruptHeader
	}
	if string(data[:4]) != string(Magic[:]) {
		return Header{}, fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(data[4+4*i:]) }
	h := Header{
		Version:        u32(0),
		Flags:          u32(1),
		MethodCount:    u32(2),
		SigCount:       u32(3),
		SigTableOffset: u32(4),
		BlobOffset:     u32(5),
		BlobSize:       u32(6),
		ManifestOffset: u32(7),
		ManifestSize:   u32(8),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, Version, h.Version)
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// Manifest
// ---------------------------------------------------------------------------

// Manifest is the CBOR trailer describing the image contents.
type Manifest struct {
	Project string   `cbor:"1,keyasint,omitempty"`
	BuildID string   `cbor:"2,keyasint"`
	Methods []Method `cbor:"3,keyasint"`
}

// Method locates one body in the image.
type Method struct {
	Name     string   `cbor:"1,keyasint"`
	Offset   uint32   `cbor:"2,keyasint"`
	Size     uint32   `cbor:"3,keyasint"`
	LocalSig uint32   `cbor:"4,keyasint,omitempty"` // StandAloneSig token, 0 without locals
	Hash     [32]byte `cbor:"5,keyasint"`           // SHA-256 of the body bytes
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalManifest serializes m in canonical CBOR.
func MarshalManifest(m *Manifest) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalManifest deserializes a manifest from CBOR bytes.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("image: unmarshal manifest: %w", err)
	}
	return &m, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
