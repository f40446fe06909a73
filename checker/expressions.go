package checker

import (
	"cot/ast"
	"cot/token"
	"cot/types"
)

// builtinSig describes one of the native runtime functions reachable from
// source. These dispatch through the native-call opcode at runtime.
type builtinSig struct {
	params []types.TypeID
	ret    types.TypeID
	anyArg bool // println/print accept any single showable value
}

func (c *Checker) builtins() map[string]builtinSig {
	return map[string]builtinSig{
		"println":      {params: []types.TypeID{types.Invalid}, ret: types.Void, anyArg: true},
		"print":        {params: []types.TypeID{types.Invalid}, ret: types.Void, anyArg: true},
		"string":       {params: []types.TypeID{types.Invalid}, ret: types.String, anyArg: true},
		"len":          {params: []types.TypeID{types.Invalid}, ret: types.I64, anyArg: true},
		"read_file":    {params: []types.TypeID{types.String}, ret: types.String},
		"process_args": {params: nil, ret: c.registry.SliceOf(types.String)},
	}
}

// checkExpression computes and records the type of an expression. Every
// variant sets its Typed annotation before returning; expressions that
// already produced a diagnostic return the error sentinel.
func (c *Checker) checkExpression(expression ast.Expression) types.TypeID {
	result := c.typeOf(expression)
	if typed, ok := expression.(interface{ SetResultType(int32) }); ok {
		typed.SetResultType(int32(result))
	}
	return result
}

func (c *Checker) typeOf(expression ast.Expression) types.TypeID {
	switch e := expression.(type) {
	case *ast.Literal:
		return c.literalType(e.Value)

	case *ast.Variable:
		symbol := c.scope.Resolve(e.Name.Lexeme)
		if symbol == nil {
			c.errorAt(e.Name, "undefined identifier '%s'", e.Name.Lexeme)
			return types.Error
		}
		return symbol.Type

	case *ast.Grouping:
		return c.checkExpression(e.Expression)

	case *ast.Unary:
		return c.checkUnary(e)

	case *ast.Binary:
		return c.checkBinary(e)

	case *ast.Logical:
		left := c.checkExpression(e.Left)
		right := c.checkExpression(e.Right)
		if left != types.Error && left != types.Bool {
			c.errorAt(e.Left.Tok(), "operand of '%s' must be bool, got %s", e.Operator.Lexeme, c.registry.String(left))
		}
		if right != types.Error && right != types.Bool {
			c.errorAt(e.Right.Tok(), "operand of '%s' must be bool, got %s", e.Operator.Lexeme, c.registry.String(right))
		}
		return types.Bool

	case *ast.Assign:
		return c.checkAssign(e)

	case *ast.Ternary:
		c.expectBool(e.Condition)
		thenType := c.checkExpression(e.Then)
		elseType := c.checkExpression(e.Else)
		if thenType == types.Error || elseType == types.Error {
			return types.Error
		}
		if thenType == elseType {
			return thenType
		}
		if promoted := c.registry.Promote(thenType, elseType); promoted != types.Invalid {
			return promoted
		}
		if c.assignable(thenType, elseType) {
			return thenType
		}
		c.errorAt(e.Token, "ternary branches have incompatible types %s and %s",
			c.registry.String(thenType), c.registry.String(elseType))
		return types.Error

	case *ast.Call:
		return c.checkCall(e)

	case *ast.MethodCall:
		return c.checkMethodCall(e)

	case *ast.Field:
		return c.checkField(e)

	case *ast.OptField:
		receiver := c.checkExpression(e.Receiver)
		if receiver == types.Error {
			return types.Error
		}
		desc := c.registry.Get(receiver)
		if desc.Kind != types.KindOptional {
			c.errorAt(e.Name, "'?.' requires an optional receiver, got %s", c.registry.String(receiver))
			return types.Error
		}
		fieldType := c.fieldType(desc.Element, e.Name)
		if fieldType == types.Error {
			return types.Error
		}
		return c.registry.OptionalOf(fieldType)

	case *ast.Index:
		return c.checkIndex(e)

	case *ast.OptIndex:
		receiver := c.checkExpression(e.Receiver)
		c.expectInteger(e.Value)
		if receiver == types.Error {
			return types.Error
		}
		desc := c.registry.Get(receiver)
		if desc.Kind != types.KindOptional {
			c.errorAt(e.Token, "'?[' requires an optional receiver, got %s", c.registry.String(receiver))
			return types.Error
		}
		elemDesc := c.registry.Get(desc.Element)
		if elemDesc.Kind != types.KindSlice && elemDesc.Kind != types.KindArray {
			c.errorAt(e.Token, "cannot index %s", c.registry.String(desc.Element))
			return types.Error
		}
		return c.registry.OptionalOf(elemDesc.Element)

	case *ast.Slice:
		receiver := c.checkExpression(e.Receiver)
		c.expectInteger(e.Start)
		c.expectInteger(e.End)
		if receiver == types.Error {
			return types.Error
		}
		if receiver == types.String {
			return types.String
		}
		desc := c.registry.Get(receiver)
		if desc.Kind == types.KindSlice || desc.Kind == types.KindArray {
			return c.registry.SliceOf(desc.Element)
		}
		c.errorAt(e.Token, "cannot slice %s", c.registry.String(receiver))
		return types.Error

	case *ast.Range:
		c.expectInteger(e.Start)
		c.expectInteger(e.End)
		return c.registry.RangeOf(e.Inclusive)

	case *ast.Cast:
		return c.checkCast(e)

	case *ast.TypeTest:
		c.checkExpression(e.Value)
		c.resolveTypeRef(e.Target)
		return types.Bool

	case *ast.StructInit:
		return c.checkStructInit(e)

	case *ast.ArrayInit:
		return c.checkArrayInit(e)

	case *ast.New:
		return c.checkNew(e)

	case *ast.VariantInit:
		return c.checkVariantInit(e)

	case *ast.Lambda:
		return c.checkLambda(e)

	case *ast.InterpString:
		for _, part := range e.Parts {
			partType := c.checkExpression(part)
			if partType == types.Void {
				c.errorAt(part.Tok(), "cannot interpolate a void expression")
			}
		}
		return types.String
	}

	return types.Error
}

func (c *Checker) expectInteger(e ast.Expression) {
	if e == nil {
		return
	}
	got := c.checkExpression(e)
	if got != types.Error && !c.registry.IsInteger(got) {
		c.errorAt(e.Tok(), "expected an integer, got %s", c.registry.String(got))
	}
}

func (c *Checker) checkUnary(e *ast.Unary) types.TypeID {
	operand := c.checkExpression(e.Right)
	if operand == types.Error {
		return types.Error
	}

	switch e.Operator.TokenType {
	case token.BANG:
		if operand != types.Bool {
			c.errorAt(e.Operator, "operand of '!' must be bool, got %s", c.registry.String(operand))
			return types.Error
		}
		return types.Bool
	case token.SUB:
		if !c.registry.IsNumeric(operand) {
			c.errorAt(e.Operator, "operand of unary '-' must be numeric, got %s", c.registry.String(operand))
			return types.Error
		}
		return operand
	case token.TILDE:
		if !c.registry.IsInteger(operand) {
			c.errorAt(e.Operator, "operand of '~' must be an integer, got %s", c.registry.String(operand))
			return types.Error
		}
		return operand
	case token.MULT:
		desc := c.registry.Get(operand)
		if desc.Kind != types.KindPointer {
			c.errorAt(e.Operator, "cannot dereference %s", c.registry.String(operand))
			return types.Error
		}
		return desc.Element
	case token.AMP:
		return c.registry.PointerTo(operand)
	}
	return types.Error
}

func (c *Checker) checkBinary(e *ast.Binary) types.TypeID {
	left := c.checkExpression(e.Left)
	right := c.checkExpression(e.Right)
	if left == types.Error || right == types.Error {
		return types.Error
	}

	switch e.Operator.TokenType {
	case token.ADD:
		if left == types.String && right == types.String {
			return types.String
		}
		fallthrough
	case token.SUB, token.MULT, token.DIV, token.MOD:
		promoted := c.registry.Promote(left, right)
		if promoted == types.Invalid {
			c.errorAt(e.Operator, "operator '%s' cannot combine %s and %s",
				e.Operator.Lexeme, c.registry.String(left), c.registry.String(right))
			return types.Error
		}
		return promoted

	case token.AMP, token.PIPE, token.CARET, token.SHL, token.SHR:
		if !c.registry.IsInteger(left) || !c.registry.IsInteger(right) {
			c.errorAt(e.Operator, "operator '%s' requires integers, got %s and %s",
				e.Operator.Lexeme, c.registry.String(left), c.registry.String(right))
			return types.Error
		}
		if e.Operator.TokenType == token.SHL || e.Operator.TokenType == token.SHR {
			return left
		}
		return c.registry.Promote(left, right)

	case token.LESS, token.LESS_EQUAL, token.LARGER, token.LARGER_EQUAL:
		if left == types.String && right == types.String {
			return types.Bool
		}
		if c.registry.Promote(left, right) == types.Invalid {
			c.errorAt(e.Operator, "cannot compare %s and %s",
				c.registry.String(left), c.registry.String(right))
		}
		return types.Bool

	case token.EQUAL_EQUAL, token.NOT_EQUAL:
		if !c.comparable(left, right) {
			c.errorAt(e.Operator, "cannot compare %s and %s",
				c.registry.String(left), c.registry.String(right))
		}
		return types.Bool

	case token.OPT_ELSE:
		desc := c.registry.Get(left)
		if desc.Kind != types.KindOptional {
			c.errorAt(e.Operator, "left side of '?:' must be optional, got %s", c.registry.String(left))
			return types.Error
		}
		if !c.assignable(desc.Element, right) {
			c.errorAt(e.Operator, "'?:' fallback %s does not match %s",
				c.registry.String(right), c.registry.String(desc.Element))
		}
		return desc.Element
	}
	return types.Error
}

func (c *Checker) checkAssign(e *ast.Assign) types.TypeID {
	targetType := c.checkExpression(e.Target)

	// mutability: assigning to a const is an error
	if variable, ok := e.Target.(*ast.Variable); ok {
		if symbol := c.scope.Resolve(variable.Name.Lexeme); symbol != nil && !symbol.IsMutable {
			c.errorAt(variable.Name, "cannot assign to immutable binding '%s'", variable.Name.Lexeme)
		}
	}

	valueType := c.checkExpression(e.Value)
	if targetType != types.Error && valueType != types.Error && !c.assignable(targetType, valueType) {
		c.errorAt(e.Operator, "cannot assign %s to %s",
			c.registry.String(valueType), c.registry.String(targetType))
	}
	return targetType
}

func (c *Checker) checkCall(e *ast.Call) types.TypeID {
	// builtin runtime functions dispatch by name
	if variable, ok := e.Callee.(*ast.Variable); ok {
		if sig, isBuiltin := c.builtins()[variable.Name.Lexeme]; isBuiltin {
			if c.scope.Resolve(variable.Name.Lexeme) == nil {
				return c.checkBuiltinCall(e, variable.Name, sig)
			}
		}
	}

	calleeType := c.checkExpression(e.Callee)
	if calleeType == types.Error {
		for _, a := range e.Arguments {
			c.checkExpression(a)
		}
		return types.Error
	}
	desc := c.registry.Get(calleeType)
	if desc.Kind != types.KindFunction {
		c.errorAt(e.Token, "%s is not callable", c.registry.String(calleeType))
		return types.Error
	}
	if len(e.Arguments) != len(desc.Params) {
		c.errorAt(e.Token, "call expects %d arguments, got %d", len(desc.Params), len(e.Arguments))
	}
	for i, argument := range e.Arguments {
		argType := c.checkExpression(argument)
		if i < len(desc.Params) && argType != types.Error && !c.assignable(desc.Params[i], argType) {
			c.errorAt(argument.Tok(), "argument %d has type %s, want %s",
				i+1, c.registry.String(argType), c.registry.String(desc.Params[i]))
		}
	}
	return desc.Return
}

func (c *Checker) checkBuiltinCall(e *ast.Call, name token.Token, sig builtinSig) types.TypeID {
	if sig.anyArg {
		if len(e.Arguments) != 1 {
			c.errorAt(e.Token, "'%s' expects 1 argument, got %d", name.Lexeme, len(e.Arguments))
		}
		for _, argument := range e.Arguments {
			argType := c.checkExpression(argument)
			if argType == types.Void {
				c.errorAt(argument.Tok(), "'%s' cannot take a void value", name.Lexeme)
			}
		}
		return sig.ret
	}
	if len(e.Arguments) != len(sig.params) {
		c.errorAt(e.Token, "'%s' expects %d arguments, got %d", name.Lexeme, len(sig.params), len(e.Arguments))
	}
	for i, argument := range e.Arguments {
		argType := c.checkExpression(argument)
		if i < len(sig.params) && argType != types.Error && !c.assignable(sig.params[i], argType) {
			c.errorAt(argument.Tok(), "argument %d has type %s, want %s",
				i+1, c.registry.String(argType), c.registry.String(sig.params[i]))
		}
	}
	return sig.ret
}

// collectionMethod resolves a method of the built-in generic collections
// List and Map; T/K/V placeholders are substituted from the receiver instance.
func (c *Checker) collectionMethod(instance types.TypeID, name token.Token, args []ast.Expression) (types.TypeID, bool) {
	desc := c.registry.Get(instance)
	baseName := c.registry.Get(desc.Base).Name

	check := func(params []types.TypeID, ret types.TypeID) types.TypeID {
		if len(args) != len(params) {
			c.errorAt(name, "'%s' expects %d arguments, got %d", name.Lexeme, len(params), len(args))
		}
		for i, argument := range args {
			argType := c.checkExpression(argument)
			if i < len(params) && argType != types.Error && !c.assignable(params[i], argType) {
				c.errorAt(argument.Tok(), "argument %d has type %s, want %s",
					i+1, c.registry.String(argType), c.registry.String(params[i]))
			}
		}
		return ret
	}

	switch baseName {
	case "List":
		elem := desc.Args[0]
		switch name.Lexeme {
		case "push":
			return check([]types.TypeID{elem}, types.Void), true
		case "pop":
			return check(nil, elem), true
		case "get":
			return check([]types.TypeID{types.I64}, elem), true
		case "set":
			return check([]types.TypeID{types.I64, elem}, types.Void), true
		case "len":
			return check(nil, types.I64), true
		}
	case "Map":
		key, value := desc.Args[0], desc.Args[1]
		switch name.Lexeme {
		case "set":
			return check([]types.TypeID{key, value}, types.Void), true
		case "get":
			return check([]types.TypeID{key}, value), true
		case "has":
			return check([]types.TypeID{key}, types.Bool), true
		case "delete":
			return check([]types.TypeID{key}, types.Void), true
		case "len":
			return check(nil, types.I64), true
		}
	}
	return types.Error, false
}

func (c *Checker) checkMethodCall(e *ast.MethodCall) types.TypeID {
	receiver := c.checkExpression(e.Receiver)
	if receiver == types.Error {
		for _, a := range e.Arguments {
			c.checkExpression(a)
		}
		return types.Error
	}

	// one level of auto-deref: (*T).m resolves against T
	base := receiver
	if desc := c.registry.Get(base); desc.Kind == types.KindPointer {
		base = desc.Element
	}
	desc := c.registry.Get(base)

	if desc.Kind == types.KindGenericInstance {
		if result, handled := c.collectionMethod(base, e.Name, e.Arguments); handled {
			return result
		}
		// user methods on a generic base: substitute the instance arguments
		if sig, ok := c.methods[desc.Base][e.Name.Lexeme]; ok {
			return c.checkMethodArgs(e, sig, desc.Base, desc.Args)
		}
		c.errorAt(e.Name, "%s has no method '%s'", c.registry.String(base), e.Name.Lexeme)
		return types.Error
	}

	if sig, ok := c.methods[base][e.Name.Lexeme]; ok {
		return c.checkMethodArgs(e, sig, types.Invalid, nil)
	}
	c.errorAt(e.Name, "%s has no method '%s'", c.registry.String(base), e.Name.Lexeme)
	for _, a := range e.Arguments {
		c.checkExpression(a)
	}
	return types.Error
}

func (c *Checker) checkMethodArgs(e *ast.MethodCall, sig *MethodSig, def types.TypeID, instArgs []types.TypeID) types.TypeID {
	substitute := func(t types.TypeID) types.TypeID {
		if def == types.Invalid {
			return t
		}
		return c.registry.Substitute(t, def, instArgs)
	}

	if len(e.Arguments) != len(sig.Params) {
		c.errorAt(e.Name, "method '%s' expects %d arguments, got %d", sig.Name, len(sig.Params), len(e.Arguments))
	}
	for i, argument := range e.Arguments {
		argType := c.checkExpression(argument)
		if i < len(sig.Params) && argType != types.Error {
			want := substitute(sig.Params[i])
			if !c.assignable(want, argType) {
				c.errorAt(argument.Tok(), "argument %d has type %s, want %s",
					i+1, c.registry.String(argType), c.registry.String(want))
			}
		}
	}
	return substitute(sig.Return)
}

// fieldType resolves a field on a struct, union, or pointer-to-struct
// receiver.
func (c *Checker) fieldType(receiver types.TypeID, name token.Token) types.TypeID {
	base := receiver
	if desc := c.registry.Get(base); desc.Kind == types.KindPointer {
		base = desc.Element
	}
	desc := c.registry.Get(base)
	if desc.Kind != types.KindStruct && desc.Kind != types.KindUnion {
		c.errorAt(name, "%s has no fields", c.registry.String(receiver))
		return types.Error
	}
	for _, field := range desc.Fields {
		if field.Name == name.Lexeme {
			return field.Type
		}
	}
	c.errorAt(name, "%s has no field '%s'", desc.Name, name.Lexeme)
	return types.Error
}

func (c *Checker) checkField(e *ast.Field) types.TypeID {
	receiver := c.checkExpression(e.Receiver)
	if receiver == types.Error {
		return types.Error
	}
	if c.registry.Get(receiver).Kind == types.KindOptional {
		c.errorAt(e.Name, "field access on optional %s requires '?.'", c.registry.String(receiver))
		return types.Error
	}
	return c.fieldType(receiver, e.Name)
}

func (c *Checker) checkIndex(e *ast.Index) types.TypeID {
	receiver := c.checkExpression(e.Receiver)
	c.expectInteger(e.Value)
	if receiver == types.Error {
		return types.Error
	}
	if receiver == types.String {
		// string indexing yields the byte value
		return types.I64
	}
	desc := c.registry.Get(receiver)
	if desc.Kind == types.KindSlice || desc.Kind == types.KindArray {
		return desc.Element
	}
	c.errorAt(e.Token, "cannot index %s", c.registry.String(receiver))
	return types.Error
}

func (c *Checker) checkCast(e *ast.Cast) types.TypeID {
	value := c.checkExpression(e.Value)
	target := c.resolveTypeRef(e.Target)
	if value == types.Error || target == types.Error {
		return types.Error
	}

	valueDesc := c.registry.Get(value)
	targetDesc := c.registry.Get(target)

	switch {
	case c.registry.IsNumeric(value) && c.registry.IsNumeric(target):
		return target
	case valueDesc.Kind == types.KindPointer && targetDesc.Kind == types.KindPointer:
		// pointer reinterpret
		return target
	case valueDesc.Kind == types.KindEnum && c.registry.IsInteger(target):
		return target
	case value == types.String || target == types.String:
		c.errorAt(e.Token, "int and string do not cast; use string(x) or parse explicitly")
		return types.Error
	}
	c.errorAt(e.Token, "cannot cast %s to %s", c.registry.String(value), c.registry.String(target))
	return types.Error
}

func (c *Checker) checkStructInit(e *ast.StructInit) types.TypeID {
	id, ok := c.registry.Lookup(e.Name.Lexeme)
	if !ok || c.registry.Get(id).Kind != types.KindStruct {
		c.errorAt(e.Name, "undefined struct '%s'", e.Name.Lexeme)
		for _, f := range e.Fields {
			c.checkExpression(f.Value)
		}
		return types.Error
	}
	desc := c.registry.Get(id)

	assigned := map[string]bool{}
	for _, init := range e.Fields {
		var field *types.FieldDesc
		for i := range desc.Fields {
			if desc.Fields[i].Name == init.Name.Lexeme {
				field = &desc.Fields[i]
				break
			}
		}
		valueType := c.checkExpression(init.Value)
		if field == nil {
			c.errorAt(init.Name, "struct %s has no field '%s'", desc.Name, init.Name.Lexeme)
			continue
		}
		if assigned[field.Name] {
			c.errorAt(init.Name, "field '%s' initialised twice", field.Name)
		}
		assigned[field.Name] = true
		if valueType != types.Error && !c.assignable(field.Type, valueType) {
			c.errorAt(init.Name, "field '%s' has type %s, got %s",
				field.Name, c.registry.String(field.Type), c.registry.String(valueType))
		}
	}
	for _, field := range desc.Fields {
		if !assigned[field.Name] {
			c.errorAt(e.Name, "struct initialiser is missing field '%s'", field.Name)
		}
	}

	if e.OnHeap {
		return c.registry.PointerTo(id)
	}
	return id
}

func (c *Checker) checkArrayInit(e *ast.ArrayInit) types.TypeID {
	if len(e.Elements) == 0 {
		return c.registry.ArrayOf(types.Void, 0)
	}
	elemType := c.checkExpression(e.Elements[0])
	for _, element := range e.Elements[1:] {
		got := c.checkExpression(element)
		if got != types.Error && elemType != types.Error && got != elemType {
			if promoted := c.registry.Promote(elemType, got); promoted != types.Invalid {
				elemType = promoted
				continue
			}
			c.errorAt(element.Tok(), "array element has type %s, want %s",
				c.registry.String(got), c.registry.String(elemType))
		}
	}
	return c.registry.ArrayOf(elemType, int64(len(e.Elements)))
}

func (c *Checker) checkNew(e *ast.New) types.TypeID {
	target := c.resolveTypeRef(e.Target)
	if target == types.Error {
		return types.Error
	}
	desc := c.registry.Get(target)
	switch desc.Kind {
	case types.KindGenericInstance:
		return target
	case types.KindStruct:
		return c.registry.PointerTo(target)
	}
	c.errorAt(e.Token, "cannot heap-allocate %s", c.registry.String(target))
	return types.Error
}

func (c *Checker) checkVariantInit(e *ast.VariantInit) types.TypeID {
	id, ok := c.registry.Lookup(e.EnumName.Lexeme)
	if !ok || c.registry.Get(id).Kind != types.KindEnum {
		c.errorAt(e.EnumName, "undefined enum '%s'", e.EnumName.Lexeme)
		for _, a := range e.Arguments {
			c.checkExpression(a)
		}
		return types.Error
	}
	desc := c.registry.Get(id)

	var variant *types.VariantDesc
	for i := range desc.Variants {
		if desc.Variants[i].Name == e.Variant.Lexeme {
			variant = &desc.Variants[i]
			break
		}
	}
	if variant == nil {
		c.errorAt(e.Variant, "enum %s has no variant '%s'", desc.Name, e.Variant.Lexeme)
		return types.Error
	}
	if len(e.Arguments) != len(variant.Payload) {
		c.errorAt(e.Variant, "variant '%s' takes %d values, got %d",
			variant.Name, len(variant.Payload), len(e.Arguments))
	}
	for i, argument := range e.Arguments {
		argType := c.checkExpression(argument)
		if i < len(variant.Payload) && argType != types.Error && !c.assignable(variant.Payload[i], argType) {
			c.errorAt(argument.Tok(), "payload %d has type %s, want %s",
				i+1, c.registry.String(argType), c.registry.String(variant.Payload[i]))
		}
	}
	return id
}

func (c *Checker) checkLambda(e *ast.Lambda) types.TypeID {
	params := make([]types.TypeID, 0, len(e.Parameters))
	for _, p := range e.Parameters {
		params = append(params, c.resolveTypeRef(p.Type))
	}
	ret := types.Void
	if e.ReturnType != nil {
		ret = c.resolveTypeRef(e.ReturnType)
	}

	previousReturn := c.currentReturn
	previousLoopDepth := c.loopDepth
	c.currentReturn = ret
	c.loopDepth = 0
	c.pushScope()
	for i, p := range e.Parameters {
		c.scope.Define(&Symbol{
			Name:      p.Name.Lexeme,
			Kind:      SymbolVariable,
			Type:      params[i],
			IsMutable: true,
			Decl:      p.Name,
		})
	}
	c.checkStatement(e.Body)
	c.popScope()
	c.currentReturn = previousReturn
	c.loopDepth = previousLoopDepth

	return c.registry.FuncOf(params, ret)
}
