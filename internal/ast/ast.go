// Package ast defines the expression tree the evaluator walks. Pipeline
// parsing lives outside the engine; operators receive already-built trees.
// Every node carries the source range of its originating configuration for
// diagnostics.
package ast

import (
	"strings"

	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// Expression is the interface implemented by all expression nodes.
type Expression interface {
	Loc() diag.Location
	expressionNode()
}

// Constant is a literal value.
type Constant struct {
	Value    types.Data
	Location diag.Location
}

func (e *Constant) Loc() diag.Location { return e.Location }
func (*Constant) expressionNode()      {}

// RecordField is one entry of a record constructor.
type RecordField struct {
	Name  string
	Value Expression
}

// Record constructs a record from named subexpressions.
type Record struct {
	Fields   []RecordField
	Location diag.Location
}

func (e *Record) Loc() diag.Location { return e.Location }
func (*Record) expressionNode()      {}

// List constructs a list from subexpressions.
type List struct {
	Elems    []Expression
	Location diag.Location
}

func (e *List) Loc() diag.Location { return e.Location }
func (*List) expressionNode()      {}

// This evaluates to the whole input record.
type This struct {
	Location diag.Location
}

func (e *This) Loc() diag.Location { return e.Location }
func (*This) expressionNode()      {}

// Root accesses a top-level field of the input record.
type Root struct {
	Name     string
	Location diag.Location
}

func (e *Root) Loc() diag.Location { return e.Location }
func (*Root) expressionNode()      {}

// FieldAccess descends into a record-valued subexpression.
type FieldAccess struct {
	Expr     Expression
	Name     string
	Location diag.Location
}

func (e *FieldAccess) Loc() diag.Location { return e.Location }
func (*FieldAccess) expressionNode()      {}

// Meta accesses batch metadata, e.g. `@name`.
type Meta struct {
	Name     string
	Location diag.Location
}

func (e *Meta) Loc() diag.Location { return e.Location }
func (*Meta) expressionNode()      {}

// Call invokes a registered function.
type Call struct {
	Fn       string
	Args     []Expression
	Location diag.Location
}

func (e *Call) Loc() diag.Location { return e.Location }
func (*Call) expressionNode()      {}

// UnaryOp enumerates the unary operators.
type UnaryOp int

const (
	OpPos UnaryOp = iota
	OpNeg
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpPos:
		return "+"
	case OpNeg:
		return "-"
	case OpNot:
		return "not"
	}
	return "?"
}

// Unary applies a unary operator.
type Unary struct {
	Op       UnaryOp
	Expr     Expression
	Location diag.Location
}

func (e *Unary) Loc() diag.Location { return e.Location }
func (*Unary) expressionNode()      {}

// BinaryOp enumerates the binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
	OpIn
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpIn:
		return "in"
	}
	return "?"
}

// Binary applies a binary operator.
type Binary struct {
	Op       BinaryOp
	Left     Expression
	Right    Expression
	Location diag.Location
}

func (e *Binary) Loc() diag.Location { return e.Location }
func (*Binary) expressionNode()      {}

// Selector names a field path for assignment targets.
type Selector struct {
	Path     []string
	Location diag.Location
}

func (e *Selector) Loc() diag.Location { return e.Location }
func (*Selector) expressionNode()      {}

func (e *Selector) String() string {
	return strings.Join(e.Path, ".")
}

// Assignment binds the value of the right-hand side to the selector. The
// evaluator yields the right-hand side; materialization into the output
// record is the enclosing operator's job.
type Assignment struct {
	Left     *Selector
	Right    Expression
	Location diag.Location
}

func (e *Assignment) Loc() diag.Location { return e.Location }
func (*Assignment) expressionNode()      {}
