// Package ilfile reads textual IL listings and turns each method in them
// into a methodbody.Builder.
package ilfile

// File is a parsed listing.
type File struct {
	Path    string    `cbor:"-"`
	Methods []*Method `cbor:"methods"`
}

// Method is one .method block.
type Method struct {
	Name       string      `cbor:"name"`
	MaxStack   *uint16     `cbor:"maxstack,omitempty"`
	NoInit     bool        `cbor:"noinit,omitempty"`
	Locals     []Local     `cbor:"locals,omitempty"`
	Handlers   []TryClause `cbor:"handlers,omitempty"`
	Statements []Statement `cbor:"body"`
	Pos        Position    `cbor:"-"`
}

// Local is a .locals entry. Type is kept as written and resolved when the
// method is built.
type Local struct {
	Name string   `cbor:"name"`
	Type TypeExpr `cbor:"type"`
	Pos  Position `cbor:"-"`
}

// TypeExpr is a parsed type reference.
type TypeExpr struct {
	Pinned bool     `cbor:"pinned,omitempty"`
	Base   string   `cbor:"base"`            // primitive name, "class", "valuetype", "!N" or "!!N"
	Token  uint32   `cbor:"token,omitempty"` // class and valuetype
	Suffix []string `cbor:"suffix,omitempty"`
	ByRef  bool     `cbor:"byref,omitempty"`
}

// TryClause is a .try directive. End labels are exclusive.
type TryClause struct {
	Kind         string   `cbor:"kind"` // catch, finally, fault, filter
	TryStart     string   `cbor:"ts"`
	TryEnd       string   `cbor:"te"`
	FilterStart  string   `cbor:"fs,omitempty"`
	HandlerStart string   `cbor:"hs"`
	HandlerEnd   string   `cbor:"he"`
	ClassToken   uint32   `cbor:"class,omitempty"`
	Pos          Position `cbor:"-"`
}

// Statement is a label definition or an instruction.
type Statement struct {
	Label    string   `cbor:"label,omitempty"`
	Mnemonic string   `cbor:"op,omitempty"`
	Operands []string `cbor:"args,omitempty"`
	List     bool     `cbor:"list,omitempty"` // operands were a (a, b, ...) list
	Pos      Position `cbor:"-"`
}

// IsLabel reports whether the statement defines a label.
func (s Statement) IsLabel() bool {
	return s.Label != ""
}
