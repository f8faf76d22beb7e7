package metadata

import "fmt"

// AppendCompressedUint appends v in the ECMA-335 compressed form: one byte
// below 0x80, two bytes below 0x4000, four bytes below 0x20000000.
func AppendCompressedUint(buf []byte, v uint32) ([]byte, error) {
	switch {
	case v < 0x80:
		return append(buf, byte(v)), nil
	case v < 0x4000:
		return append(buf, byte(v>>8)|0x80, byte(v)), nil
	case v < 0x20000000:
		return append(buf, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v)), nil
	}
	return buf, fmt.Errorf("%w: compressed integer %d", ErrOverflow, v)
}

// ReadCompressedUint decodes a compressed integer and returns it with the
// number of bytes consumed.
func ReadCompressedUint(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty compressed integer", ErrInvalidSignature)
	}
	b := data[0]
	switch {
	case b&0x80 == 0:
		return uint32(b), 1, nil
	case b&0xC0 == 0x80:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", ErrInvalidSignature)
		}
		return uint32(b&0x3F)<<8 | uint32(data[1]), 2, nil
	case b&0xE0 == 0xC0:
		if len(data) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", ErrInvalidSignature)
		}
		return uint32(b&0x1F)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), 4, nil
	}
	return 0, 0, fmt.Errorf("%w: bad compressed integer lead byte 0x%02X", ErrInvalidSignature, b)
}

// AppendTypeDefOrRef appends a TypeDefOrRef coded index for t.
func AppendTypeDefOrRef(buf []byte, t Token) ([]byte, error) {
	var tag uint32
	switch t.Table() {
	case TableTypeDef:
		tag = 0
	case TableTypeRef:
		tag = 1
	case TableTypeSpec:
		tag = 2
	default:
		return buf, fmt.Errorf("%w: %v is not a TypeDefOrRef token", ErrInvalidSignature, t)
	}
	return AppendCompressedUint(buf, t.RID()<<2|tag)
}
