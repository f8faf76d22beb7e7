// Package metadata holds the pieces of ECMA-335 metadata a method body
// refers to: tokens, compressed integers, type and local-variable
// signatures, and the blob heap that stores them.
package metadata

import (
	"errors"
	"fmt"
)

var (
	ErrOverflow         = errors.New("value too large to encode")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Table identifies a metadata table by its token high byte.
type Table uint8

const (
	TableModule        Table = 0x00
	TableTypeRef       Table = 0x01
	TableTypeDef       Table = 0x02
	TableField         Table = 0x04
	TableMethodDef     Table = 0x06
	TableMemberRef     Table = 0x0A
	TableStandAloneSig Table = 0x11
	TableTypeSpec      Table = 0x1B
	TableMethodSpec    Table = 0x2B
	TableUserString    Table = 0x70
)

var tableNames = map[Table]string{
	TableModule:        "Module",
	TableTypeRef:       "TypeRef",
	TableTypeDef:       "TypeDef",
	TableField:         "Field",
	TableMethodDef:     "MethodDef",
	TableMemberRef:     "MemberRef",
	TableStandAloneSig: "StandAloneSig",
	TableTypeSpec:      "TypeSpec",
	TableMethodSpec:    "MethodSpec",
	TableUserString:    "UserString",
}

func (t Table) String() string {
	if name, ok := tableNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Table(0x%02X)", uint8(t))
}

// MaxRID is the largest row id a token can carry.
const MaxRID = 0x00FFFFFF

// Token is a metadata token: table in the high byte, row id below.
type Token uint32

// NewToken builds a token, rejecting row ids that do not fit 24 bits.
func NewToken(table Table, rid uint32) (Token, error) {
	if rid > MaxRID {
		return 0, fmt.Errorf("%w: row id %d", ErrOverflow, rid)
	}
	return Token(uint32(table)<<24 | rid), nil
}

func (t Token) Table() Table { return Table(t >> 24) }
func (t Token) RID() uint32 { return uint32(t) & MaxRID }
func (t Token) IsNil() bool { return t.RID() == 0 }
func (t Token) Value() uint32 { return uint32(t) }

func (t Token) String() string {
	return fmt.Sprintf("0x%08X", uint32(t))
}
