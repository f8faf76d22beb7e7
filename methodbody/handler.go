package methodbody

import (
	"fmt"

	"github.com/chazu/ilasm/il"
	"github.com/chazu/ilasm/metadata"
)

// ---------------------------------------------------------------------------
// Exception handler clauses
// ---------------------------------------------------------------------------

// HandlerKind is the clause flags value.
type HandlerKind uint16

const (
	KindException HandlerKind = 0x0000
	KindFilter    HandlerKind = 0x0001
	KindFinally   HandlerKind = 0x0002
	KindFault     HandlerKind = 0x0004
)

func (k HandlerKind) String() string {
	switch k {
	case KindException:
		return "catch"
	case KindFilter:
		return "filter"
	case KindFinally:
		return "finally"
	case KindFault:
		return "fault"
	}
	return fmt.Sprintf("HandlerKind(%d)", uint16(k))
}

// LabelTable resolves label names to code offsets. *il.Assembler
// implements it.
type LabelTable interface {
	LabelPosition(name string) (uint32, bool)
}

// Clause is an exception handler in either resolved or label form.
type Clause interface {
	Resolve(labels LabelTable) (Handler, error)
	clause()
}

// Handler is a resolved exception clause with byte offsets.
type Handler struct {
	Kind          HandlerKind
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken    metadata.Token // KindException only
	FilterOffset  uint32         // KindFilter only
}

func (Handler) clause() {}

// Resolve returns h unchanged.
func (h Handler) Resolve(LabelTable) (Handler, error) {
	return h, nil
}

// classOrFilter is the last field of an encoded clause.
func (h Handler) classOrFilter() uint32 {
	switch h.Kind {
	case KindFilter:
		return h.FilterOffset
	case KindException:
		return h.ClassToken.Value()
	}
	return 0
}

// LabeledHandler is an exception clause whose regions are given as labels.
// End labels are exclusive.
type LabeledHandler struct {
	Kind         HandlerKind
	TryStart     string
	TryEnd       string
	HandlerStart string
	HandlerEnd   string
	FilterStart  string // KindFilter only
	ClassToken   metadata.Token
}

func (LabeledHandler) clause() {}

// Resolve converts label positions into offsets and lengths.
func (lh LabeledHandler) Resolve(labels LabelTable) (Handler, error) {
	lookup := func(name string) (uint32, error) {
		pos, ok := labels.LabelPosition(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q in %v handler", il.ErrUndefinedLabel, name, lh.Kind)
		}
		return pos, nil
	}
	region := func(startName, endName string) (uint32, uint32, error) {
		start, err := lookup(startName)
		if err != nil {
			return 0, 0, err
		}
		end, err := lookup(endName)
		if err != nil {
			return 0, 0, err
		}
		if end < start {
			return 0, 0, fmt.Errorf("%w: %q (0x%04X) precedes %q (0x%04X)", ErrInvalidRegion, endName, end, startName, start)
		}
		return start, end - start, nil
	}

	tryOff, tryLen, err := region(lh.TryStart, lh.TryEnd)
	if err != nil {
		return Handler{}, err
	}
	hOff, hLen, err := region(lh.HandlerStart, lh.HandlerEnd)
	if err != nil {
		return Handler{}, err
	}
	h := Handler{
		Kind:          lh.Kind,
		TryOffset:     tryOff,
		TryLength:     tryLen,
		HandlerOffset: hOff,
		HandlerLength: hLen,
		ClassToken:    lh.ClassToken,
	}
	if lh.Kind == KindFilter {
		if h.FilterOffset, err = lookup(lh.FilterStart); err != nil {
			return Handler{}, err
		}
	}
	return h, nil
}
