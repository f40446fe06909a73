// Package checker implements semantic analysis: it annotates every
// expression with a resolved type id, populates scopes, registers
// user-defined types and verifies method and trait conformance.
//
// Checking runs in two passes. The collect pass walks top-level declarations
// and registers type names and function signatures without examining bodies,
// so forward references resolve. The body pass then descends into each
// function. One diagnostic is emitted per distinct error; the offending
// expression is poisoned with the error sentinel type so cascading errors
// stay suppressed.
package checker

import (
	"strings"

	"cot/ast"
	"cot/diag"
	"cot/token"
	"cot/types"
)

// MethodSig is a resolved method signature attached to a receiver base type.
type MethodSig struct {
	Name   string
	Params []types.TypeID
	Return types.TypeID
	Decl   *ast.FunctionDecl
}

// Checker threads the type registry and diagnostics bag through both passes.
type Checker struct {
	registry *types.Registry
	bag      *diag.Bag

	global *Scope
	scope  *Scope

	// methods maps a receiver base type id to its inherent and trait
	// methods, collected from impl blocks.
	methods map[types.TypeID]map[string]*MethodSig

	// resolved memoizes every syntactic type reference the checker
	// resolved, so the lowerer can reuse the ids without re-resolving.
	resolved map[ast.TypeRef]types.TypeID

	currentReturn types.TypeID
	loopDepth     int
}

// New creates a checker writing diagnostics into bag and registering types
// into registry.
func New(registry *types.Registry, bag *diag.Bag) *Checker {
	global := newScope(nil)
	return &Checker{
		registry: registry,
		bag:      bag,
		global:   global,
		scope:    global,
		methods:  make(map[types.TypeID]map[string]*MethodSig),
		resolved: make(map[ast.TypeRef]types.TypeID),
	}
}

// Methods exposes the collected method table to the lowerer.
func (c *Checker) Methods(base types.TypeID) map[string]*MethodSig {
	return c.methods[base]
}

// CallSignature returns the function type of a callee by name. Dotted names
// resolve impl methods with the receiver excluded from the parameter list.
func (c *Checker) CallSignature(name string) types.TypeID {
	if symbol := c.global.Resolve(name); symbol != nil && symbol.Kind == SymbolFunction {
		return symbol.Type
	}
	if dot := strings.IndexByte(name, '.'); dot > 0 {
		if base, ok := c.registry.Lookup(name[:dot]); ok {
			if sig, ok := c.methods[base][name[dot+1:]]; ok {
				return c.registry.FuncOf(sig.Params, sig.Return)
			}
		}
	}
	return types.Invalid
}

func (c *Checker) errorAt(tok token.Token, format string, args ...any) {
	c.bag.Add(diag.Semantic, tok.Line, tok.Column, format, args...)
}

func (c *Checker) pushScope() {
	c.scope = newScope(c.scope)
}

func (c *Checker) popScope() {
	c.scope = c.scope.parent
}

// Check runs both passes over the parsed program.
func (c *Checker) Check(statements []ast.Statement) {
	c.collectTypeNames(statements)
	c.collectSignatures(statements)
	c.checkBodies(statements)
}

// collectTypeNames registers every declared type name with an empty body so
// later references, including mutually recursive ones, resolve.
func (c *Checker) collectTypeNames(statements []ast.Statement) {
	for _, statement := range statements {
		switch s := statement.(type) {
		case *ast.StructDecl:
			if _, created := c.registry.RegisterStruct(s.Name.Lexeme, nil); !created {
				c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
			}
		case *ast.EnumDecl:
			if _, created := c.registry.RegisterEnum(s.Name.Lexeme, nil); !created {
				c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
			}
		case *ast.UnionDecl:
			if _, created := c.registry.RegisterUnion(s.Name.Lexeme, nil); !created {
				c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
			}
		case *ast.TraitDecl:
			if _, created := c.registry.RegisterTrait(s.Name.Lexeme, nil); !created {
				c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
			}
		}
	}
}

// collectSignatures resolves type bodies, alias targets, function signatures
// and impl methods. Trait conformance is verified once every method is
// known.
func (c *Checker) collectSignatures(statements []ast.Statement) {
	impls := []*ast.ImplBlock{}

	for _, statement := range statements {
		switch s := statement.(type) {
		case *ast.StructDecl:
			id, _ := c.registry.Lookup(s.Name.Lexeme)
			c.registry.SetStructFields(id, c.resolveFields(s.Fields))

		case *ast.UnionDecl:
			id, _ := c.registry.Lookup(s.Name.Lexeme)
			c.registry.SetUnionFields(id, c.resolveFields(s.Fields))

		case *ast.EnumDecl:
			id, _ := c.registry.Lookup(s.Name.Lexeme)
			variants := make([]types.VariantDesc, 0, len(s.Variants))
			for tag, v := range s.Variants {
				payload := make([]types.TypeID, 0, len(v.Payload)+len(v.Fields))
				for _, p := range v.Payload {
					payload = append(payload, c.resolveTypeRef(p))
				}
				for _, f := range v.Fields {
					payload = append(payload, c.resolveTypeRef(f.Type))
				}
				variants = append(variants, types.VariantDesc{
					Name:    v.Name.Lexeme,
					Tag:     tag,
					Payload: payload,
				})
			}
			c.registry.SetEnumVariants(id, variants)

		case *ast.TraitDecl:
			id, _ := c.registry.Lookup(s.Name.Lexeme)
			methods := make([]types.MethodDesc, 0, len(s.Methods))
			for _, m := range s.Methods {
				params := make([]types.TypeID, 0, len(m.Parameters))
				for _, p := range m.Parameters {
					params = append(params, c.resolveTypeRef(p.Type))
				}
				ret := types.Void
				if m.ReturnType != nil {
					ret = c.resolveTypeRef(m.ReturnType)
				}
				methods = append(methods, types.MethodDesc{Name: m.Name.Lexeme, Params: params, Return: ret})
			}
			c.registry.SetTraitMethods(id, methods)

		case *ast.TypeAliasDecl:
			target := c.resolveTypeRef(s.Target)
			if !c.registry.RegisterAlias(s.Name.Lexeme, target) {
				c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
			}

		case *ast.FunctionDecl:
			c.declareFunction(s)

		case *ast.ImplBlock:
			impls = append(impls, s)
		}
	}

	for _, impl := range impls {
		c.collectImpl(impl)
	}
	for _, impl := range impls {
		if impl.Trait.Lexeme != "" {
			c.checkTraitConformance(impl)
		}
	}
}

// declareFunction registers a top-level function symbol in the global scope.
func (c *Checker) declareFunction(fn *ast.FunctionDecl) {
	params := make([]types.TypeID, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		params = append(params, c.resolveTypeRef(p.Type))
	}
	ret := types.Void
	if fn.ReturnType != nil {
		ret = c.resolveTypeRef(fn.ReturnType)
	}
	symbol := &Symbol{
		Name: fn.Name.Lexeme,
		Kind: SymbolFunction,
		Type: c.registry.FuncOf(params, ret),
		Decl: fn.Name,
	}
	if !c.global.Define(symbol) {
		c.errorAt(fn.Name, "duplicate definition of '%s'", fn.Name.Lexeme)
	}
}

// collectImpl records the methods of one impl block against the target
// type.
func (c *Checker) collectImpl(impl *ast.ImplBlock) {
	target, ok := c.registry.Lookup(impl.Target.Lexeme)
	if !ok {
		c.errorAt(impl.Target, "undefined type '%s' in impl block", impl.Target.Lexeme)
		return
	}
	if c.methods[target] == nil {
		c.methods[target] = make(map[string]*MethodSig)
	}
	for _, method := range impl.Methods {
		params := make([]types.TypeID, 0, len(method.Parameters))
		for _, p := range method.Parameters {
			params = append(params, c.resolveTypeRef(p.Type))
		}
		ret := types.Void
		if method.ReturnType != nil {
			ret = c.resolveTypeRef(method.ReturnType)
		}
		if _, exists := c.methods[target][method.Name.Lexeme]; exists {
			c.errorAt(method.Name, "duplicate method '%s' for type '%s'", method.Name.Lexeme, impl.Target.Lexeme)
			continue
		}
		c.methods[target][method.Name.Lexeme] = &MethodSig{
			Name:   method.Name.Lexeme,
			Params: params,
			Return: ret,
			Decl:   method,
		}
	}
}

// checkTraitConformance verifies that every method the trait requires is
// implemented with a compatible signature.
func (c *Checker) checkTraitConformance(impl *ast.ImplBlock) {
	traitID, ok := c.registry.Lookup(impl.Trait.Lexeme)
	if !ok || c.registry.Get(traitID).Kind != types.KindTrait {
		c.errorAt(impl.Trait, "'%s' is not a trait", impl.Trait.Lexeme)
		return
	}
	target, ok := c.registry.Lookup(impl.Target.Lexeme)
	if !ok {
		return
	}
	for _, required := range c.registry.Get(traitID).Methods {
		provided, exists := c.methods[target][required.Name]
		if !exists {
			c.errorAt(impl.Token, "type '%s' does not implement '%s.%s'",
				impl.Target.Lexeme, impl.Trait.Lexeme, required.Name)
			continue
		}
		compatible := provided.Return == required.Return && len(provided.Params) == len(required.Params)
		if compatible {
			for i := range provided.Params {
				if provided.Params[i] != required.Params[i] {
					compatible = false
					break
				}
			}
		}
		if !compatible {
			c.errorAt(provided.Decl.Name, "method '%s' has a signature incompatible with trait '%s'",
				required.Name, impl.Trait.Lexeme)
		}
	}
}

// resolveFields resolves the type references of a field list.
func (c *Checker) resolveFields(fields []ast.StructField) []types.FieldDesc {
	out := make([]types.FieldDesc, 0, len(fields))
	seen := map[string]bool{}
	for _, f := range fields {
		if seen[f.Name.Lexeme] {
			c.errorAt(f.Name, "duplicate field '%s'", f.Name.Lexeme)
			continue
		}
		seen[f.Name.Lexeme] = true
		out = append(out, types.FieldDesc{Name: f.Name.Lexeme, Type: c.resolveTypeRef(f.Type)})
	}
	return out
}

// ResolvedType returns the id a type reference resolved to during
// checking, or Invalid for references the checker never saw.
func (c *Checker) ResolvedType(ref ast.TypeRef) types.TypeID {
	if ref == nil {
		return types.Invalid
	}
	if id, ok := c.resolved[ref]; ok {
		return id
	}
	return types.Invalid
}

// resolveTypeRef resolves a syntactic type reference to a registered type
// id, reporting undefined names and bad generic instantiations.
func (c *Checker) resolveTypeRef(ref ast.TypeRef) types.TypeID {
	id := c.resolveTypeRefInner(ref)
	c.resolved[ref] = id
	return id
}

func (c *Checker) resolveTypeRefInner(ref ast.TypeRef) types.TypeID {
	switch t := ref.(type) {
	case *ast.NamedType:
		id, ok := c.registry.Lookup(t.Name.Lexeme)
		if !ok {
			c.errorAt(t.Name, "undefined type '%s'", t.Name.Lexeme)
			return types.Error
		}
		return id
	case *ast.PointerType:
		return c.registry.PointerTo(c.resolveTypeRef(t.Element))
	case *ast.OptionalType:
		return c.registry.OptionalOf(c.resolveTypeRef(t.Element))
	case *ast.SliceType:
		return c.registry.SliceOf(c.resolveTypeRef(t.Element))
	case *ast.ArrayType:
		length := int64(0)
		if lit, ok := t.Length.(*ast.Literal); ok {
			if n, ok := lit.Value.(int64); ok {
				length = n
			}
		} else {
			c.errorAt(t.Token, "array length must be an integer literal")
		}
		return c.registry.ArrayOf(c.resolveTypeRef(t.Element), length)
	case *ast.FuncType:
		params := make([]types.TypeID, 0, len(t.Parameters))
		for _, p := range t.Parameters {
			params = append(params, c.resolveTypeRef(p))
		}
		ret := types.Void
		if t.Return != nil {
			ret = c.resolveTypeRef(t.Return)
		}
		return c.registry.FuncOf(params, ret)
	case *ast.GenericType:
		base, ok := c.registry.Lookup(t.Name.Lexeme)
		if !ok {
			c.errorAt(t.Name, "undefined type '%s'", t.Name.Lexeme)
			return types.Error
		}
		desc := c.registry.Get(base)
		if desc.Kind != types.KindGenericDef {
			c.errorAt(t.Name, "type '%s' is not generic", t.Name.Lexeme)
			return types.Error
		}
		if len(t.Arguments) != len(desc.TypeParams) {
			c.errorAt(t.Name, "'%s' expects %d type arguments, got %d",
				t.Name.Lexeme, len(desc.TypeParams), len(t.Arguments))
			return types.Error
		}
		args := make([]types.TypeID, 0, len(t.Arguments))
		for _, a := range t.Arguments {
			args = append(args, c.resolveTypeRef(a))
		}
		return c.registry.Instance(base, args)
	}
	return types.Error
}

// assignable wraps the registry's assignability with the checker-level
// coercion of ?*T to *T, which lowers to an unchecked unwrap.
func (c *Checker) assignable(dst, src types.TypeID) bool {
	if c.registry.Assignable(dst, src) {
		return true
	}
	srcDesc := c.registry.Get(src)
	if srcDesc.Kind == types.KindOptional && srcDesc.Element == dst &&
		c.registry.Get(dst).Kind == types.KindPointer {
		return true
	}
	return false
}

// checkBodies descends into every function, method, test and comptime body.
// Global var/const declarations are checked first so every body sees them.
func (c *Checker) checkBodies(statements []ast.Statement) {
	for _, statement := range statements {
		if global, ok := statement.(*ast.VarStmt); ok {
			c.checkVarStmt(global)
		}
	}
	for _, statement := range statements {
		switch s := statement.(type) {
		case *ast.VarStmt:
			// already checked above
		case *ast.FunctionDecl:
			c.checkFunction(s, types.Invalid)
		case *ast.ImplBlock:
			target, ok := c.registry.Lookup(s.Target.Lexeme)
			if !ok {
				continue
			}
			for _, method := range s.Methods {
				c.checkFunction(method, target)
			}
		case *ast.TestDecl:
			c.currentReturn = types.Void
			c.pushScope()
			c.checkBlock(s.Body)
			c.popScope()
		case *ast.ComptimeBlock:
			c.currentReturn = types.Void
			c.pushScope()
			c.checkBlock(s.Body)
			c.popScope()
		case *ast.StructDecl, *ast.EnumDecl, *ast.UnionDecl, *ast.TraitDecl,
			*ast.TypeAliasDecl, *ast.ImportDecl:
			// handled during collection
		default:
			// top-level statements outside any function are not part of the
			// language; report once per offender
			c.errorAt(statement.Tok(), "statement is not allowed at the top level")
		}
	}
}

// checkFunction checks one function or method body. receiver is the impl
// target type for methods and Invalid for free functions.
func (c *Checker) checkFunction(fn *ast.FunctionDecl, receiver types.TypeID) {
	previousReturn := c.currentReturn
	c.currentReturn = types.Void
	if fn.ReturnType != nil {
		c.currentReturn = c.resolveTypeRef(fn.ReturnType)
	}

	c.pushScope()
	if receiver != types.Invalid {
		c.scope.Define(&Symbol{Name: "self", Kind: SymbolVariable, Type: receiver, Decl: fn.Name})
	}
	for _, p := range fn.Parameters {
		symbol := &Symbol{
			Name:      p.Name.Lexeme,
			Kind:      SymbolVariable,
			Type:      c.resolveTypeRef(p.Type),
			IsMutable: true,
			Decl:      p.Name,
		}
		if !c.scope.Define(symbol) {
			c.errorAt(p.Name, "duplicate parameter '%s'", p.Name.Lexeme)
		}
	}
	c.checkBlock(fn.Body)
	c.popScope()
	c.currentReturn = previousReturn
}

func (c *Checker) checkBlock(block *ast.BlockStmt) {
	for _, statement := range block.Statements {
		c.checkStatement(statement)
	}
}

func (c *Checker) checkStatement(statement ast.Statement) {
	switch s := statement.(type) {
	case *ast.VarStmt:
		c.checkVarStmt(s)

	case *ast.ExpressionStmt:
		c.checkExpression(s.Expression)

	case *ast.ReturnStmt:
		if s.Value == nil {
			if c.currentReturn != types.Void {
				c.errorAt(s.Token, "missing return value; function returns %s", c.registry.String(c.currentReturn))
			}
			return
		}
		got := c.checkExpression(s.Value)
		if got != types.Error && !c.assignable(c.currentReturn, got) {
			c.errorAt(s.Token, "cannot return %s from a function returning %s",
				c.registry.String(got), c.registry.String(c.currentReturn))
		}

	case *ast.IfStmt:
		c.expectBool(s.Condition)
		c.checkStatement(s.Then)
		if s.Else != nil {
			c.checkStatement(s.Else)
		}

	case *ast.WhileStmt:
		c.expectBool(s.Condition)
		c.loopDepth++
		c.checkStatement(s.Body)
		c.loopDepth--

	case *ast.ForStmt:
		c.checkForStmt(s)

	case *ast.BlockStmt:
		c.pushScope()
		c.checkBlock(s)
		c.popScope()

	case *ast.LoopStmt:
		c.loopDepth++
		c.checkStatement(s.Body)
		c.loopDepth--

	case *ast.BreakStmt:
		if c.loopDepth == 0 {
			c.errorAt(s.Token, "'break' outside of a loop")
		}

	case *ast.ContinueStmt:
		if c.loopDepth == 0 {
			c.errorAt(s.Token, "'continue' outside of a loop")
		}

	case *ast.DeferStmt:
		c.checkExpression(s.Expression)

	case *ast.TryStmt:
		c.pushScope()
		c.checkStatement(s.Body)
		c.popScope()
		c.pushScope()
		c.scope.Define(&Symbol{Name: s.ErrName.Lexeme, Kind: SymbolVariable, Type: types.String, Decl: s.ErrName})
		c.checkStatement(s.Catch)
		c.popScope()

	case *ast.ThrowStmt:
		got := c.checkExpression(s.Value)
		if got != types.Error && got != types.String {
			c.errorAt(s.Token, "throw value must be a string, got %s", c.registry.String(got))
		}

	case *ast.SwitchStmt:
		c.checkSwitch(s)

	case *ast.FunctionDecl:
		c.errorAt(s.Name, "nested function declarations are not allowed; use a lambda")

	default:
		c.errorAt(statement.Tok(), "declaration is not allowed inside a function body")
	}
}

func (c *Checker) checkVarStmt(s *ast.VarStmt) {
	var declared types.TypeID = types.Invalid
	if s.Type != nil {
		declared = c.resolveTypeRef(s.Type)
	}

	var initType types.TypeID = types.Invalid
	if s.Initializer != nil {
		initType = c.checkExpression(s.Initializer)
		if initType == types.Void {
			c.errorAt(s.Name, "cannot initialise '%s' with a void value", s.Name.Lexeme)
			initType = types.Error
		}
	}

	varType := declared
	if varType == types.Invalid {
		varType = initType
	} else if initType != types.Invalid && initType != types.Error && !c.assignable(declared, initType) {
		c.errorAt(s.Name, "cannot assign %s to '%s' of type %s",
			c.registry.String(initType), s.Name.Lexeme, c.registry.String(declared))
	}

	kind := SymbolVariable
	if s.IsConst {
		kind = SymbolConstant
	}
	symbol := &Symbol{
		Name:      s.Name.Lexeme,
		Kind:      kind,
		Type:      varType,
		IsMutable: !s.IsConst,
		Decl:      s.Name,
	}
	if !c.scope.Define(symbol) {
		c.errorAt(s.Name, "duplicate definition of '%s'", s.Name.Lexeme)
	}
}

func (c *Checker) checkForStmt(s *ast.ForStmt) {
	iterType := c.checkExpression(s.Iterable)
	elemType := types.Error

	if iterType != types.Error {
		desc := c.registry.Get(iterType)
		switch {
		case desc.Kind == types.KindRange:
			elemType = types.I64
		case desc.Kind == types.KindSlice || desc.Kind == types.KindArray:
			elemType = desc.Element
		case iterType == types.String:
			elemType = types.I64
		case desc.Kind == types.KindGenericInstance && c.registry.Get(desc.Base).Name == "List":
			elemType = desc.Args[0]
		default:
			c.errorAt(s.Token, "cannot iterate over %s", c.registry.String(iterType))
		}
	}

	c.pushScope()
	// the induction variable is an SSA value in the lowered loop header, so
	// it is not assignable
	c.scope.Define(&Symbol{Name: s.Variable.Lexeme, Kind: SymbolVariable, Type: elemType, Decl: s.Variable})
	c.loopDepth++
	c.checkStatement(s.Body)
	c.loopDepth--
	c.popScope()
}

func (c *Checker) checkSwitch(s *ast.SwitchStmt) {
	subject := c.checkExpression(s.Subject)
	subjectDesc := c.registry.Get(subject)
	isEnum := subjectDesc.Kind == types.KindEnum

	covered := map[string]bool{}
	hasWildcard := false

	for _, arm := range s.Arms {
		switch p := arm.Pattern.(type) {
		case ast.LiteralPattern:
			litType := c.literalType(p.Value.Value)
			if subject != types.Error && !c.comparable(subject, litType) {
				c.errorAt(p.Value.Token, "pattern type %s does not match subject type %s",
					c.registry.String(litType), c.registry.String(subject))
			}
			c.checkStatement(arm.Body)

		case ast.WildcardPattern:
			hasWildcard = true
			c.checkStatement(arm.Body)

		case ast.VariantPattern:
			if !isEnum {
				if subject != types.Error {
					c.errorAt(p.Variant, "variant pattern on non-enum subject %s", c.registry.String(subject))
				}
				c.checkStatement(arm.Body)
				continue
			}
			var variant *types.VariantDesc
			for i := range subjectDesc.Variants {
				if subjectDesc.Variants[i].Name == p.Variant.Lexeme {
					variant = &subjectDesc.Variants[i]
					break
				}
			}
			if variant == nil {
				c.errorAt(p.Variant, "enum %s has no variant '%s'", subjectDesc.Name, p.Variant.Lexeme)
				c.checkStatement(arm.Body)
				continue
			}
			covered[variant.Name] = true
			if len(p.Bindings) != len(variant.Payload) {
				c.errorAt(p.Variant, "variant '%s' carries %d values, pattern binds %d",
					variant.Name, len(variant.Payload), len(p.Bindings))
			}
			c.pushScope()
			for i, binding := range p.Bindings {
				bindType := types.Error
				if i < len(variant.Payload) {
					bindType = variant.Payload[i]
				}
				c.scope.Define(&Symbol{Name: binding.Lexeme, Kind: SymbolVariable, Type: bindType, Decl: binding})
			}
			c.checkStatement(arm.Body)
			c.popScope()
		}
	}

	if isEnum && !hasWildcard {
		for _, v := range subjectDesc.Variants {
			if !covered[v.Name] {
				c.errorAt(s.Token, "non-exhaustive switch: variant '%s' of %s is not handled",
					v.Name, subjectDesc.Name)
			}
		}
	}
}

func (c *Checker) expectBool(e ast.Expression) {
	got := c.checkExpression(e)
	if got != types.Error && got != types.Bool {
		c.errorAt(e.Tok(), "condition must be bool, got %s", c.registry.String(got))
	}
}

func (c *Checker) literalType(value any) types.TypeID {
	switch value.(type) {
	case int64:
		return types.I64
	case float64:
		return types.F64
	case string:
		return types.String
	case bool:
		return types.Bool
	case nil:
		return c.registry.OptionalOf(types.Void)
	}
	return types.Error
}

// comparable reports whether == and pattern matching may compare the two
// types.
func (c *Checker) comparable(a, b types.TypeID) bool {
	if a == types.Error || b == types.Error || a == b {
		return true
	}
	if c.registry.IsNumeric(a) && c.registry.IsNumeric(b) {
		return true
	}
	if c.registry.Get(a).Kind == types.KindOptional || c.registry.Get(b).Kind == types.KindOptional {
		return c.assignable(a, b) || c.assignable(b, a)
	}
	return false
}
