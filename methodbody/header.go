package methodbody

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chazu/ilasm/metadata"
)

// ErrInvalidHeader is returned when body bytes do not start with a valid
// tiny or fat header.
var ErrInvalidHeader = errors.New("invalid method header")

// Method header flags.
const (
	flagTinyFormat uint16 = 0x0002
	flagFatFormat  uint16 = 0x0003
	flagMoreSects  uint16 = 0x0008
	flagInitLocals uint16 = 0x0010

	fatHeaderSize  = 12
	fatHeaderWords = 3 // size in 4-byte units, upper nibble of the flags

	maxTinyCodeSize = 64
	maxTinyStack    = 8
)

// Header describes a method body preamble.
type Header struct {
	CodeSize      uint32
	MaxStack      uint16
	LocalSig      metadata.Token
	HasExceptions bool
	InitLocals    bool
}

// IsTiny reports whether the one-byte format can carry h.
func (h Header) IsTiny() bool {
	return h.CodeSize < maxTinyCodeSize &&
		h.MaxStack <= maxTinyStack &&
		h.LocalSig == 0 &&
		!h.HasExceptions
}

// EncodeHeader returns the tiny or fat header bytes for h.
func EncodeHeader(h Header) []byte {
	if h.IsTiny() {
		return []byte{byte(h.CodeSize)<<2 | byte(flagTinyFormat)}
	}
	flags := fatHeaderWords<<12 | flagFatFormat
	if h.HasExceptions {
		flags |= flagMoreSects
	}
	if h.InitLocals && h.LocalSig != 0 {
		flags |= flagInitLocals
	}
	buf := make([]byte, 0, fatHeaderSize)
	buf = binary.LittleEndian.AppendUint16(buf, flags)
	buf = binary.LittleEndian.AppendUint16(buf, h.MaxStack)
	buf = binary.LittleEndian.AppendUint32(buf, h.CodeSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.LocalSig.Value())
	return buf
}

// DecodeHeader reads the header at the start of body and returns it with
// its size in bytes.
func DecodeHeader(body []byte) (Header, int, error) {
	if len(body) == 0 {
		return Header{}, 0, fmt.Errorf("%w: empty body", ErrInvalidHeader)
	}
	switch uint16(body[0]) & 0x3 {
	case flagTinyFormat:
		return Header{CodeSize: uint32(body[0] >> 2), MaxStack: maxTinyStack}, 1, nil
	case flagFatFormat:
		if len(body) < fatHeaderSize {
			return Header{}, 0, fmt.Errorf("%w: fat header truncated", ErrInvalidHeader)
		}
		flags := binary.LittleEndian.Uint16(body)
		if flags>>12 != fatHeaderWords {
			return Header{}, 0, fmt.Errorf("%w: fat header size %d", ErrInvalidHeader, flags>>12)
		}
		return Header{
			MaxStack:      binary.LittleEndian.Uint16(body[2:]),
			CodeSize:      binary.LittleEndian.Uint32(body[4:]),
			LocalSig:      metadata.Token(binary.LittleEndian.Uint32(body[8:])),
			HasExceptions: flags&flagMoreSects != 0,
			InitLocals:    flags&flagInitLocals != 0,
		}, fatHeaderSize, nil
	}
	return Header{}, 0, fmt.Errorf("%w: format bits %#x", ErrInvalidHeader, body[0]&0x3)
}

// SetLocalSig rewrites the local signature token of a fat-header body in
// place.
func SetLocalSig(body []byte, tok metadata.Token) error {
	h, _, err := DecodeHeader(body)
	if err != nil {
		return err
	}
	if h.LocalSig == 0 {
		return fmt.Errorf("%w: body has no local signature", ErrInvalidHeader)
	}
	binary.LittleEndian.PutUint32(body[8:], tok.Value())
	return nil
}
