package ast

import (
	"cot/token"
)

// TypeRef is the marker interface for syntactic type references. The checker
// resolves these against the type registry.
type TypeRef interface {
	Tok() token.Token
	typeRefNode()
}

// NamedType references a type by name, e.g. `i64` or `Foo`.
type NamedType struct {
	Name token.Token
}

// PointerType is `*T`.
type PointerType struct {
	Token   token.Token
	Element TypeRef
}

// OptionalType is `?T`.
type OptionalType struct {
	Token   token.Token
	Element TypeRef
}

// ArrayType is `[N]T`.
type ArrayType struct {
	Token   token.Token
	Length  Expression
	Element TypeRef
}

// SliceType is `[]T`.
type SliceType struct {
	Token   token.Token
	Element TypeRef
}

// FuncType is `fn(params) ret`.
type FuncType struct {
	Token      token.Token
	Parameters []TypeRef
	Return     TypeRef
}

// GenericType is an instantiation such as `List<*Item>` or `Map<string, i64>`.
type GenericType struct {
	Name      token.Token
	Arguments []TypeRef
}

func (t *NamedType) typeRefNode()    {}
func (t *PointerType) typeRefNode()  {}
func (t *OptionalType) typeRefNode() {}
func (t *ArrayType) typeRefNode()    {}
func (t *SliceType) typeRefNode()    {}
func (t *FuncType) typeRefNode()     {}
func (t *GenericType) typeRefNode()  {}

func (t *NamedType) Tok() token.Token    { return t.Name }
func (t *PointerType) Tok() token.Token  { return t.Token }
func (t *OptionalType) Tok() token.Token { return t.Token }
func (t *ArrayType) Tok() token.Token    { return t.Token }
func (t *SliceType) Tok() token.Token    { return t.Token }
func (t *FuncType) Tok() token.Token     { return t.Token }
func (t *GenericType) Tok() token.Token  { return t.Name }
