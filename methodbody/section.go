package methodbody

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	sectEHTable   byte = 0x01
	sectFatFormat byte = 0x40

	smallClauseSize = 12
	fatClauseSize   = 24
	sectHeaderSize  = 4
	maxFatSectSize  = 0x00FFFFFF
)

// EncodeExceptionSection encodes handlers as a method data section padded
// to a multiple of four bytes. No handlers yields an empty section.
func EncodeExceptionSection(handlers []Handler) ([]byte, error) {
	if len(handlers) == 0 {
		return nil, nil
	}
	if fitsSmall(handlers) {
		return encodeSmall(handlers), nil
	}
	return encodeFat(handlers)
}

// fitsSmall reports whether every clause fits the small layout: offsets in
// 16 bits, lengths in 8 bits, and the section size in one byte.
func fitsSmall(handlers []Handler) bool {
	if sectHeaderSize+smallClauseSize*len(handlers) > math.MaxUint8 {
		return false
	}
	for _, h := range handlers {
		if h.TryOffset > math.MaxUint16 || h.HandlerOffset > math.MaxUint16 ||
			h.TryLength > math.MaxUint8 || h.HandlerLength > math.MaxUint8 {
			return false
		}
	}
	return true
}

func encodeSmall(handlers []Handler) []byte {
	size := sectHeaderSize + smallClauseSize*len(handlers)
	buf := make([]byte, 0, align4(size))
	buf = append(buf, sectEHTable, byte(size), 0, 0)
	for _, h := range handlers {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(h.Kind))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(h.TryOffset))
		buf = append(buf, byte(h.TryLength))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(h.HandlerOffset))
		buf = append(buf, byte(h.HandlerLength))
		buf = binary.LittleEndian.AppendUint32(buf, h.classOrFilter())
	}
	return pad4(buf)
}

func encodeFat(handlers []Handler) ([]byte, error) {
	size := sectHeaderSize + fatClauseSize*len(handlers)
	if size > maxFatSectSize {
		return nil, fmt.Errorf("%w: exception section of %d clauses", ErrOverflow, len(handlers))
	}
	buf := make([]byte, 0, align4(size))
	buf = append(buf, sectEHTable|sectFatFormat, byte(size), byte(size>>8), byte(size>>16))
	for _, h := range handlers {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Kind))
		buf = binary.LittleEndian.AppendUint32(buf, h.TryOffset)
		buf = binary.LittleEndian.AppendUint32(buf, h.TryLength)
		buf = binary.LittleEndian.AppendUint32(buf, h.HandlerOffset)
		buf = binary.LittleEndian.AppendUint32(buf, h.HandlerLength)
		buf = binary.LittleEndian.AppendUint32(buf, h.classOrFilter())
	}
	return pad4(buf), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func pad4(buf []byte) []byte {
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}
