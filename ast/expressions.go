// Package ast defines the abstract syntax tree produced by the parser.
//
// There are three node families: expressions, statements and type
// references. Each family is a closed set of struct variants behind a marker
// interface; consumers dispatch with exhaustive type switches rather than
// visitors, so adding a variant surfaces every place that must handle it.
//
// All nodes are heap-allocated by the parser into a per-compilation Arena
// (see arena.go); node pointers stay valid until the arena is discarded.
package ast

import (
	"cot/token"
)

// Expression is the marker interface implemented by every expression node.
// Tok returns the leading token, which carries the node's source position.
type Expression interface {
	Tok() token.Token
	exprNode()
}

// Typed carries the type annotation written by the checker. It is embedded
// in every expression variant; TypeID is 0 until checking has run.
type Typed struct {
	TypeID int32
}

// ResultType returns the type id the checker assigned to this expression.
func (t *Typed) ResultType() int32 { return t.TypeID }

// SetResultType records the checker's type id for this expression.
func (t *Typed) SetResultType(id int32) { t.TypeID = id }

// Literal represents a literal value in the source code
// (e.g., numbers, strings, booleans, or null). Value holds the
// already-decoded Go value: int64, float64, string, bool, or nil for null.
type Literal struct {
	Typed
	Token token.Token
	Value any
}

// Variable represents a reference to a named binding.
type Variable struct {
	Typed
	Name token.Token
}

// Unary represents a unary prefix operation expression (e.g., "!a", "-b", "~c").
type Unary struct {
	Typed
	Operator token.Token
	Right    Expression
}

// Binary represents a binary operation expression (e.g., "a + b").
// It consists of a left-hand side expression, an operator token,
// and a right-hand side expression. Logical && and || are Logical nodes,
// not Binary, because they short-circuit.
type Binary struct {
	Typed
	Left     Expression
	Operator token.Token
	Right    Expression
}

// Logical represents a short-circuiting && or || expression.
type Logical struct {
	Typed
	Left     Expression
	Operator token.Token
	Right    Expression
}

// Assign represents an assignment expression. Target must be an lvalue:
// a Variable, Field, Index or pointer dereference.
type Assign struct {
	Typed
	Operator token.Token
	Target   Expression
	Value    Expression
}

// Ternary represents `cond ? then : else`.
type Ternary struct {
	Typed
	Token     token.Token
	Condition Expression
	Then      Expression
	Else      Expression
}

// Grouping represents a parenthesized expression (e.g., "(a + b)").
// Useful for controlling evaluation precedence.
type Grouping struct {
	Typed
	Token      token.Token
	Expression Expression
}

// Call represents a function call `callee(args...)`.
type Call struct {
	Typed
	Token     token.Token
	Callee    Expression
	Arguments []Expression
}

// MethodCall represents `recv.name(args...)`. Method resolution against
// impl blocks happens in the checker.
type MethodCall struct {
	Typed
	Receiver  Expression
	Name      token.Token
	Arguments []Expression
}

// Field represents a field access `recv.name`.
type Field struct {
	Typed
	Receiver Expression
	Name     token.Token
}

// OptField represents an optional-chaining field access `recv?.name`.
type OptField struct {
	Typed
	Receiver Expression
	Name     token.Token
}

// Index represents an index access `recv[index]`.
type Index struct {
	Typed
	Token    token.Token
	Receiver Expression
	Value    Expression
}

// OptIndex represents an optional index access `recv?[index]`.
type OptIndex struct {
	Typed
	Token    token.Token
	Receiver Expression
	Value    Expression
}

// Slice represents a slicing expression `recv[start..end]`.
type Slice struct {
	Typed
	Token    token.Token
	Receiver Expression
	Start    Expression
	End      Expression
}

// Range represents `start..end` or `start..=end`.
type Range struct {
	Typed
	Token     token.Token
	Start     Expression
	End       Expression
	Inclusive bool
}

// Cast represents `expr as Type`.
type Cast struct {
	Typed
	Token  token.Token
	Value  Expression
	Target TypeRef
}

// TypeTest represents `expr is Type`.
type TypeTest struct {
	Typed
	Token  token.Token
	Value  Expression
	Target TypeRef
}

// StructInit represents `Name{ .field = value, ... }` and
// `new Name{ ... }` when heap-allocated.
type StructInit struct {
	Typed
	Name   token.Token
	Fields []FieldInit
	OnHeap bool
}

// FieldInit is one `.name = value` entry of a StructInit.
type FieldInit struct {
	Name  token.Token
	Value Expression
}

// ArrayInit represents `[a, b, c]`.
type ArrayInit struct {
	Typed
	Token    token.Token
	Elements []Expression
}

// New represents `new T` for collections, e.g. `new List<*Item>`.
type New struct {
	Typed
	Token  token.Token
	Target TypeRef
}

// Lambda represents an anonymous function `fn(params) ret => expr` or with a
// block body. Free variables are captured by the lowerer into a closure
// environment.
type Lambda struct {
	Typed
	Token      token.Token
	Parameters []Parameter
	ReturnType TypeRef
	Body       Statement
}

// InterpString represents an interpolated string literal. Parts alternate
// between Literal string segments and arbitrary expressions, in source
// order.
type InterpString struct {
	Typed
	Token token.Token
	Parts []Expression
}

func (e *Literal) exprNode()      {}
func (e *Variable) exprNode()     {}
func (e *Unary) exprNode()        {}
func (e *Binary) exprNode()       {}
func (e *Logical) exprNode()      {}
func (e *Assign) exprNode()       {}
func (e *Ternary) exprNode()      {}
func (e *Grouping) exprNode()     {}
func (e *Call) exprNode()         {}
func (e *MethodCall) exprNode()   {}
func (e *Field) exprNode()        {}
func (e *OptField) exprNode()     {}
func (e *Index) exprNode()        {}
func (e *OptIndex) exprNode()     {}
func (e *Slice) exprNode()        {}
func (e *Range) exprNode()        {}
func (e *Cast) exprNode()         {}
func (e *TypeTest) exprNode()     {}
func (e *StructInit) exprNode()   {}
func (e *ArrayInit) exprNode()    {}
func (e *New) exprNode()          {}
func (e *Lambda) exprNode()       {}
func (e *InterpString) exprNode() {}

func (e *Literal) Tok() token.Token      { return e.Token }
func (e *Variable) Tok() token.Token     { return e.Name }
func (e *Unary) Tok() token.Token        { return e.Operator }
func (e *Binary) Tok() token.Token       { return e.Operator }
func (e *Logical) Tok() token.Token      { return e.Operator }
func (e *Assign) Tok() token.Token       { return e.Operator }
func (e *Ternary) Tok() token.Token      { return e.Token }
func (e *Grouping) Tok() token.Token     { return e.Token }
func (e *Call) Tok() token.Token         { return e.Token }
func (e *MethodCall) Tok() token.Token   { return e.Name }
func (e *Field) Tok() token.Token        { return e.Name }
func (e *OptField) Tok() token.Token     { return e.Name }
func (e *Index) Tok() token.Token        { return e.Token }
func (e *OptIndex) Tok() token.Token     { return e.Token }
func (e *Slice) Tok() token.Token        { return e.Token }
func (e *Range) Tok() token.Token        { return e.Token }
func (e *Cast) Tok() token.Token         { return e.Token }
func (e *TypeTest) Tok() token.Token     { return e.Token }
func (e *StructInit) Tok() token.Token   { return e.Name }
func (e *ArrayInit) Tok() token.Token    { return e.Token }
func (e *New) Tok() token.Token          { return e.Token }
func (e *Lambda) Tok() token.Token       { return e.Token }
func (e *InterpString) Tok() token.Token { return e.Token }

// VariantInit constructs an enum variant, e.g. `Shape::Circle(1.5)` or a
// bare `Shape::Point`.
type VariantInit struct {
	Typed
	EnumName  token.Token
	Variant   token.Token
	Arguments []Expression
}

func (e *VariantInit) exprNode()        {}
func (e *VariantInit) Tok() token.Token { return e.Variant }
