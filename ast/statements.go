package ast

import (
	"cot/token"
)

// Statement is the marker interface implemented by every statement and
// declaration node.
type Statement interface {
	Tok() token.Token
	stmtNode()
}

// VarStmt represents a `var` or `const` declaration. The type annotation is
// optional for `var` when an initializer is present; `const` always requires
// an initializer.
type VarStmt struct {
	Name        token.Token
	Type        TypeRef
	Initializer Expression
	IsConst     bool
}

// ExpressionStmt represents a statement that consists of a single expression.
// This evaluates the expression and discards the result.
type ExpressionStmt struct {
	Expression Expression
}

// ReturnStmt represents `return` with an optional value.
type ReturnStmt struct {
	Token token.Token
	Value Expression
}

// IfStmt represents `if cond { } else { }`. Else may be nil, or another
// IfStmt for `else if` chains.
type IfStmt struct {
	Token     token.Token
	Condition Expression
	Then      Statement
	Else      Statement
}

// WhileStmt represents `while cond { }`.
type WhileStmt struct {
	Token     token.Token
	Condition Expression
	Body      Statement
}

// ForStmt represents both `for i in a..b { }` and `for x in collection { }`.
// The checker distinguishes the two by the type of Iterable.
type ForStmt struct {
	Token    token.Token
	Variable token.Token
	Iterable Expression
	Body     Statement
}

// BlockStmt represents `{ ... }`. Entering a block pushes a scope and a
// defer frame.
type BlockStmt struct {
	Token      token.Token
	Statements []Statement
}

// LoopStmt represents an infinite `loop { }`; exits only via break, return
// or throw.
type LoopStmt struct {
	Token token.Token
	Body  Statement
}

// BreakStmt exits the innermost loop.
type BreakStmt struct {
	Token token.Token
}

// ContinueStmt restarts the innermost loop.
type ContinueStmt struct {
	Token token.Token
}

// DeferStmt schedules an expression for LIFO execution on every exit path of
// the enclosing scope.
type DeferStmt struct {
	Token      token.Token
	Expression Expression
}

// TryStmt represents `try { } catch (e) { }`.
type TryStmt struct {
	Token   token.Token
	Body    Statement
	ErrName token.Token
	Catch   Statement
}

// ThrowStmt represents `throw expr`.
type ThrowStmt struct {
	Token token.Token
	Value Expression
}

// SwitchStmt represents `switch subject { arms }`. For enum subjects the
// checker requires the arms to be exhaustive or to contain a wildcard.
type SwitchStmt struct {
	Token   token.Token
	Subject Expression
	Arms    []SwitchArm
}

// SwitchArm is one `pattern => body` arm of a switch.
type SwitchArm struct {
	Pattern Pattern
	Body    Statement
}

// Pattern is the closed set of switch arm patterns.
type Pattern interface {
	patternNode()
}

// LiteralPattern matches a literal value.
type LiteralPattern struct {
	Value Literal
}

// VariantPattern matches an enum variant, optionally binding its payload,
// e.g. `Shape::Circle(r)`.
type VariantPattern struct {
	EnumName token.Token
	Variant  token.Token
	Bindings []token.Token
}

// WildcardPattern is the `_` arm.
type WildcardPattern struct {
	Token token.Token
}

func (p LiteralPattern) patternNode()  {}
func (p VariantPattern) patternNode()  {}
func (p WildcardPattern) patternNode() {}

// Parameter is a single `name: Type` entry of a function signature.
type Parameter struct {
	Name token.Token
	Type TypeRef
}

// FunctionDecl represents `fn name(params) ret { body }`.
type FunctionDecl struct {
	Name       token.Token
	Parameters []Parameter
	ReturnType TypeRef
	Body       *BlockStmt
	IsPublic   bool
}

// StructField is a single named field of a struct declaration.
type StructField struct {
	Name token.Token
	Type TypeRef
}

// StructDecl represents `struct Name { fields }`.
type StructDecl struct {
	Name     token.Token
	Fields   []StructField
	IsPublic bool
}

// EnumVariant is one variant of an enum declaration. Payload types are
// either positional (tuple style) or named (struct style); at most one of
// Payload and Fields is populated.
type EnumVariant struct {
	Name    token.Token
	Payload []TypeRef
	Fields  []StructField
}

// EnumDecl represents `enum Name { variants }`.
type EnumDecl struct {
	Name     token.Token
	Variants []EnumVariant
	IsPublic bool
}

// ImplBlock represents `impl Type { methods }` and `impl Trait for Type`.
// Trait is the zero token for inherent impls.
type ImplBlock struct {
	Token   token.Token
	Trait   token.Token
	Target  token.Token
	Methods []*FunctionDecl
}

// TraitMethod is a required method signature inside a trait declaration.
type TraitMethod struct {
	Name       token.Token
	Parameters []Parameter
	ReturnType TypeRef
}

// TraitDecl represents `trait Name { method signatures }`.
type TraitDecl struct {
	Name     token.Token
	Methods  []TraitMethod
	IsPublic bool
}

// UnionDecl represents `union Name { fields }`; fields overlay the same
// storage.
type UnionDecl struct {
	Name     token.Token
	Fields   []StructField
	IsPublic bool
}

// TypeAliasDecl represents `type Name = Target`.
type TypeAliasDecl struct {
	Name     token.Token
	Target   TypeRef
	IsPublic bool
}

// TestDecl represents `test "name" { body }`.
type TestDecl struct {
	Token token.Token
	Name  token.Token
	Body  *BlockStmt
}

// ImportDecl represents `import "path"` with an optional alias.
type ImportDecl struct {
	Token token.Token
	Path  token.Token
	Alias token.Token
}

// ComptimeBlock represents a top-level `comptime { }` block.
type ComptimeBlock struct {
	Token token.Token
	Body  *BlockStmt
}

func (s *VarStmt) stmtNode()        {}
func (s *ExpressionStmt) stmtNode() {}
func (s *ReturnStmt) stmtNode()     {}
func (s *IfStmt) stmtNode()         {}
func (s *WhileStmt) stmtNode()      {}
func (s *ForStmt) stmtNode()        {}
func (s *BlockStmt) stmtNode()      {}
func (s *LoopStmt) stmtNode()       {}
func (s *BreakStmt) stmtNode()      {}
func (s *ContinueStmt) stmtNode()   {}
func (s *DeferStmt) stmtNode()      {}
func (s *TryStmt) stmtNode()        {}
func (s *ThrowStmt) stmtNode()      {}
func (s *SwitchStmt) stmtNode()     {}
func (s *FunctionDecl) stmtNode()   {}
func (s *StructDecl) stmtNode()     {}
func (s *EnumDecl) stmtNode()       {}
func (s *ImplBlock) stmtNode()      {}
func (s *TraitDecl) stmtNode()      {}
func (s *UnionDecl) stmtNode()      {}
func (s *TypeAliasDecl) stmtNode()  {}
func (s *TestDecl) stmtNode()       {}
func (s *ImportDecl) stmtNode()     {}
func (s *ComptimeBlock) stmtNode()  {}

func (s *VarStmt) Tok() token.Token        { return s.Name }
func (s *ExpressionStmt) Tok() token.Token { return s.Expression.Tok() }
func (s *ReturnStmt) Tok() token.Token     { return s.Token }
func (s *IfStmt) Tok() token.Token         { return s.Token }
func (s *WhileStmt) Tok() token.Token      { return s.Token }
func (s *ForStmt) Tok() token.Token        { return s.Token }
func (s *BlockStmt) Tok() token.Token      { return s.Token }
func (s *LoopStmt) Tok() token.Token       { return s.Token }
func (s *BreakStmt) Tok() token.Token      { return s.Token }
func (s *ContinueStmt) Tok() token.Token   { return s.Token }
func (s *DeferStmt) Tok() token.Token      { return s.Token }
func (s *TryStmt) Tok() token.Token        { return s.Token }
func (s *ThrowStmt) Tok() token.Token      { return s.Token }
func (s *SwitchStmt) Tok() token.Token     { return s.Token }
func (s *FunctionDecl) Tok() token.Token   { return s.Name }
func (s *StructDecl) Tok() token.Token     { return s.Name }
func (s *EnumDecl) Tok() token.Token       { return s.Name }
func (s *ImplBlock) Tok() token.Token      { return s.Token }
func (s *TraitDecl) Tok() token.Token      { return s.Name }
func (s *UnionDecl) Tok() token.Token      { return s.Name }
func (s *TypeAliasDecl) Tok() token.Token  { return s.Name }
func (s *TestDecl) Tok() token.Token       { return s.Token }
func (s *ImportDecl) Tok() token.Token     { return s.Token }
func (s *ComptimeBlock) Tok() token.Token  { return s.Token }
