// Package methodbody assembles complete CIL method bodies: header, code
// and the optional exception handling section.
package methodbody

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chazu/ilasm/il"
	"github.com/chazu/ilasm/metadata"
)

var (
	ErrMissingImplementation = errors.New("method body has no implementation")
	ErrInvalidRegion         = errors.New("region end precedes start")
	ErrOverflow              = errors.New("value overflows field")
	ErrNoSignatureStore      = errors.New("locals declared without a signature store")
	ErrNilClause             = errors.New("nil exception clause")
)

// SignatureStore turns local declarations into a StandAloneSig token.
// *metadata.Context implements it.
type SignatureStore interface {
	AddLocalSignature(locals []metadata.LocalVariable) (metadata.Token, error)
}

// Implementation emits a method's instructions.
type Implementation func(a *il.Assembler) error

// Builder configures one method body. It is an immutable value: every
// method returns an updated copy and leaves the receiver untouched.
type Builder struct {
	maxStack    uint16
	hasMaxStack bool
	noInit      bool
	locals      []metadata.LocalVariable
	clauses     []Clause
	labeled     []Clause
	impl        Implementation
}

// NewBuilder returns an empty configuration with init-locals set.
func NewBuilder() Builder {
	return Builder{}
}

// MaxStack overrides the observed maximum stack depth.
func (b Builder) MaxStack(n uint16) Builder {
	b.maxStack = n
	b.hasMaxStack = true
	return b
}

// InitLocals controls the InitLocals header flag. It is on by default.
func (b Builder) InitLocals(on bool) Builder {
	b.noInit = !on
	return b
}

// Local declares the next local slot.
func (b Builder) Local(name string, typ metadata.TypeSig) Builder {
	return b.LocalVar(metadata.LocalVariable{Name: name, Type: typ})
}

// LocalVar declares the next local slot with modifiers and flags.
func (b Builder) LocalVar(v metadata.LocalVariable) Builder {
	b.locals = append(slices.Clip(b.locals), v)
	return b
}

// ExceptionHandler adds a clause given by byte offsets.
func (b Builder) ExceptionHandler(h Handler) Builder {
	b.clauses = append(slices.Clip(b.clauses), h)
	return b
}

// Clause adds a clause of either form. Labeled clauses are placed after
// every offset clause.
func (b Builder) Clause(c Clause) Builder {
	switch c.(type) {
	case LabeledHandler, *LabeledHandler:
		b.labeled = append(slices.Clip(b.labeled), c)
		return b
	}
	b.clauses = append(slices.Clip(b.clauses), c)
	return b
}

// CatchHandler adds a typed catch clause. A nil class token makes it a
// fault clause.
func (b Builder) CatchHandler(tryOffset, tryLength, handlerOffset, handlerLength uint32, class metadata.Token) Builder {
	kind := KindException
	if class.IsNil() {
		kind = KindFault
	}
	return b.ExceptionHandler(Handler{
		Kind:          kind,
		TryOffset:     tryOffset,
		TryLength:     tryLength,
		HandlerOffset: handlerOffset,
		HandlerLength: handlerLength,
		ClassToken:    class,
	})
}

func (b Builder) FinallyHandler(tryOffset, tryLength, handlerOffset, handlerLength uint32) Builder {
	return b.ExceptionHandler(Handler{
		Kind:          KindFinally,
		TryOffset:     tryOffset,
		TryLength:     tryLength,
		HandlerOffset: handlerOffset,
		HandlerLength: handlerLength,
	})
}

func (b Builder) FaultHandler(tryOffset, tryLength, handlerOffset, handlerLength uint32) Builder {
	return b.ExceptionHandler(Handler{
		Kind:          KindFault,
		TryOffset:     tryOffset,
		TryLength:     tryLength,
		HandlerOffset: handlerOffset,
		HandlerLength: handlerLength,
	})
}

// FilterHandler adds a filter clause; the filter block starts at
// filterOffset and ends where the handler begins.
func (b Builder) FilterHandler(tryOffset, tryLength, filterOffset, handlerOffset, handlerLength uint32) Builder {
	return b.ExceptionHandler(Handler{
		Kind:          KindFilter,
		TryOffset:     tryOffset,
		TryLength:     tryLength,
		HandlerOffset: handlerOffset,
		HandlerLength: handlerLength,
		FilterOffset:  filterOffset,
	})
}

func (b Builder) CatchHandlerWithLabels(tryStart, tryEnd, handlerStart, handlerEnd string, class metadata.Token) Builder {
	kind := KindException
	if class.IsNil() {
		kind = KindFault
	}
	return b.Clause(LabeledHandler{
		Kind:         kind,
		TryStart:     tryStart,
		TryEnd:       tryEnd,
		HandlerStart: handlerStart,
		HandlerEnd:   handlerEnd,
		ClassToken:   class,
	})
}

func (b Builder) FinallyHandlerWithLabels(tryStart, tryEnd, handlerStart, handlerEnd string) Builder {
	return b.Clause(LabeledHandler{
		Kind:         KindFinally,
		TryStart:     tryStart,
		TryEnd:       tryEnd,
		HandlerStart: handlerStart,
		HandlerEnd:   handlerEnd,
	})
}

func (b Builder) FaultHandlerWithLabels(tryStart, tryEnd, handlerStart, handlerEnd string) Builder {
	return b.Clause(LabeledHandler{
		Kind:         KindFault,
		TryStart:     tryStart,
		TryEnd:       tryEnd,
		HandlerStart: handlerStart,
		HandlerEnd:   handlerEnd,
	})
}

func (b Builder) FilterHandlerWithLabels(tryStart, tryEnd, filterStart, handlerStart, handlerEnd string) Builder {
	return b.Clause(LabeledHandler{
		Kind:         KindFilter,
		TryStart:     tryStart,
		TryEnd:       tryEnd,
		HandlerStart: handlerStart,
		HandlerEnd:   handlerEnd,
		FilterStart:  filterStart,
	})
}

// Implementation sets the callback that emits the method's code.
func (b Builder) Implementation(fn Implementation) Builder {
	b.impl = fn
	return b
}

// Locals returns the declared locals.
func (b Builder) Locals() []metadata.LocalVariable {
	return slices.Clone(b.locals)
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Body is an assembled method body.
type Body struct {
	Bytes      []byte
	LocalSig   metadata.Token
	CodeSize   uint32
	MaxStack   uint16
	HeaderSize int
	Handlers   []Handler
}

// Code returns the instruction bytes without header or sections.
func (b *Body) Code() []byte {
	end := b.HeaderSize + int(b.CodeSize)
	return b.Bytes[b.HeaderSize:end:end]
}

// IsTiny reports whether the body uses the one-byte header.
func (b *Body) IsTiny() bool {
	return b.HeaderSize == 1
}

// Build runs the implementation on a fresh assembler and lays out the
// final body. store may be nil when no locals are declared.
func (b Builder) Build(store SignatureStore) (*Body, error) {
	if b.impl == nil {
		return nil, ErrMissingImplementation
	}
	asm := il.NewAssembler()
	if err := b.impl(asm); err != nil {
		return nil, err
	}

	handlers := make([]Handler, 0, len(b.clauses)+len(b.labeled))
	for i, c := range slices.Concat(b.clauses, b.labeled) {
		if isNilClause(c) {
			return nil, fmt.Errorf("%w: clause %d", ErrNilClause, i)
		}
		h, err := c.Resolve(asm)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	code, observed, err := asm.Finalize()
	if err != nil {
		return nil, err
	}
	maxStack := observed
	if b.hasMaxStack {
		maxStack = b.maxStack
	}

	var localSig metadata.Token
	if len(b.locals) > 0 {
		if store == nil {
			return nil, ErrNoSignatureStore
		}
		if localSig, err = store.AddLocalSignature(b.locals); err != nil {
			return nil, fmt.Errorf("local signature: %w", err)
		}
	}

	var section []byte
	if len(handlers) > 0 {
		if section, err = EncodeExceptionSection(handlers); err != nil {
			return nil, err
		}
	}

	header := EncodeHeader(Header{
		CodeSize:      uint32(len(code)),
		MaxStack:      maxStack,
		LocalSig:      localSig,
		HasExceptions: len(handlers) > 0,
		InitLocals:    !b.noInit,
	})

	out := make([]byte, 0, align4(len(header)+len(code))+len(section))
	out = append(out, header...)
	out = append(out, code...)
	if len(section) > 0 {
		out = pad4(out)
		out = append(out, section...)
	}
	return &Body{
		Bytes:      out,
		LocalSig:   localSig,
		CodeSize:   uint32(len(code)),
		MaxStack:   maxStack,
		HeaderSize: len(header),
		Handlers:   handlers,
	}, nil
}

func isNilClause(c Clause) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *Handler:
		return v == nil
	case *LabeledHandler:
		return v == nil
	}
	return false
}
