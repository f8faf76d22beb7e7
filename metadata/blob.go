package metadata

import (
	"fmt"
	"math"
)

// BlobHeap is the #Blob heap. Index 0 is the empty blob and identical
// blobs share one entry.
type BlobHeap struct {
	data    []byte
	indices map[string]uint32
}

// NewBlobHeap creates a heap holding only the empty blob.
func NewBlobHeap() *BlobHeap {
	return &BlobHeap{
		data:    []byte{0},
		indices: map[string]uint32{"": 0},
	}
}

// Add stores blob and returns its heap index.
func (h *BlobHeap) Add(blob []byte) (uint32, error) {
	if idx, ok := h.indices[string(blob)]; ok {
		return idx, nil
	}
	if uint64(len(h.data))+uint64(len(blob))+4 > math.MaxUint32 {
		return 0, fmt.Errorf("%w: blob heap size", ErrOverflow)
	}
	idx := uint32(len(h.data))
	data, err := AppendCompressedUint(h.data, uint32(len(blob)))
	if err != nil {
		return 0, err
	}
	h.data = append(data, blob...)
	h.indices[string(blob)] = idx
	return idx, nil
}

// Get returns the blob stored at idx.
func (h *BlobHeap) Get(idx uint32) ([]byte, error) {
	if uint64(idx) >= uint64(len(h.data)) {
		return nil, fmt.Errorf("%w: blob index %d out of range", ErrInvalidSignature, idx)
	}
	n, used, err := ReadCompressedUint(h.data[idx:])
	if err != nil {
		return nil, err
	}
	start := uint64(idx) + uint64(used)
	end := start + uint64(n)
	if end > uint64(len(h.data)) {
		return nil, fmt.Errorf("%w: blob at %d overruns heap", ErrInvalidSignature, idx)
	}
	return h.data[start:end:end], nil
}

// Bytes returns the raw heap contents.
func (h *BlobHeap) Bytes() []byte {
	return h.data
}

// Len returns the heap size in bytes.
func (h *BlobHeap) Len() int {
	return len(h.data)
}

// LoadBlobHeap rebuilds a heap from raw bytes produced by Bytes. Every
// entry is walked so later Adds keep deduplicating.
func LoadBlobHeap(data []byte) (*BlobHeap, error) {
	if len(data) == 0 || data[0] != 0 {
		return nil, fmt.Errorf("%w: blob heap must start with the empty blob", ErrInvalidSignature)
	}
	h := &BlobHeap{
		data:    append([]byte(nil), data...),
		indices: map[string]uint32{"": 0},
	}
	for off := 1; off < len(data); {
		blob, err := h.Get(uint32(off))
		if err != nil {
			return nil, err
		}
		if _, ok := h.indices[string(blob)]; !ok {
			h.indices[string(blob)] = uint32(off)
		}
		n, used, _ := ReadCompressedUint(data[off:])
		off += used + int(n)
	}
	return h, nil
}
