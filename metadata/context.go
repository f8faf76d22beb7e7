package metadata

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Context: blob heap plus StandAloneSig rows
// ---------------------------------------------------------------------------

// Context collects the signatures a set of method bodies refers to. It is
// safe for concurrent use.
type Context struct {
	mu         sync.Mutex
	blobs      *BlobHeap
	standalone []uint32          // blob index per StandAloneSig row, rid = index+1
	rows       map[uint32]uint32 // blob index -> rid
}

// NewContext creates an empty metadata context.
func NewContext() *Context {
	return &Context{
		blobs: NewBlobHeap(),
		rows:  make(map[uint32]uint32),
	}
}

// AddLocalSignature encodes locals as a LocalVarSig and returns the
// StandAloneSig token for it. Identical signatures share one row.
func (c *Context) AddLocalSignature(locals []LocalVariable) (Token, error) {
	sig, err := EncodeLocalVarSig(locals)
	if err != nil {
		return 0, err
	}
	return c.AddStandAloneSig(sig)
}

// AddStandAloneSig registers an already encoded signature blob.
func (c *Context) AddStandAloneSig(sig []byte) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.blobs.Add(sig)
	if err != nil {
		return 0, err
	}
	if rid, ok := c.rows[idx]; ok {
		return NewToken(TableStandAloneSig, rid)
	}
	rid := uint32(len(c.standalone) + 1)
	tok, err := NewToken(TableStandAloneSig, rid)
	if err != nil {
		return 0, err
	}
	c.standalone = append(c.standalone, idx)
	c.rows[idx] = rid
	return tok, nil
}

// Signature returns the blob behind a StandAloneSig token.
func (c *Context) Signature(t Token) ([]byte, error) {
	if t.Table() != TableStandAloneSig {
		return nil, fmt.Errorf("%w: %v is not a StandAloneSig token", ErrInvalidSignature, t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rid := t.RID()
	if rid == 0 || int(rid) > len(c.standalone) {
		return nil, fmt.Errorf("%w: no StandAloneSig row %d", ErrInvalidSignature, rid)
	}
	return c.blobs.Get(c.standalone[rid-1])
}

// StandAloneSigs returns the blob index of every StandAloneSig row in rid
// order.
func (c *Context) StandAloneSigs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.standalone...)
}

// BlobHeap returns a copy of the heap bytes.
func (c *Context) BlobHeap() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.blobs.Bytes()...)
}
