package il

import "errors"

// Assembly errors.
var (
	ErrUnknownMnemonic          = errors.New("unknown mnemonic")
	ErrNotABranch               = errors.New("not a branch instruction")
	ErrUnexpectedOperand        = errors.New("unexpected operand")
	ErrOperandKindMismatch      = errors.New("operand kind mismatch")
	ErrInvalidBranchOperandKind = errors.New("invalid branch operand kind")
	ErrStackUnderflow           = errors.New("stack underflow")
	ErrDuplicateLabel           = errors.New("duplicate label")
	ErrUndefinedLabel           = errors.New("undefined label")
	ErrBranchOffsetOutOfRange   = errors.New("branch offset out of range")
	ErrOverflow                 = errors.New("value overflows field")
	ErrFinalized                = errors.New("assembler already finalized")
)
