package lower

import (
	"fmt"

	"cot/ast"
	"cot/ir"
	"cot/token"
	"cot/types"
)

// lowerExpr translates one expression into instructions in the current
// block and returns the SSA value holding the result. Void expressions
// return ir.None.
func (lw *Lowerer) lowerExpr(expression ast.Expression) ir.Value {
	switch e := expression.(type) {
	case *ast.Literal:
		return lw.lowerLiteral(e)

	case *ast.Variable:
		return lw.lowerVariable(e)

	case *ast.Grouping:
		return lw.lowerExpr(e.Expression)

	case *ast.Unary:
		return lw.lowerUnary(e)

	case *ast.Binary:
		return lw.lowerBinary(e)

	case *ast.Logical:
		return lw.lowerLogical(e)

	case *ast.Assign:
		return lw.lowerAssign(e)

	case *ast.Ternary:
		return lw.lowerTernary(e)

	case *ast.Call:
		return lw.lowerCall(e)

	case *ast.MethodCall:
		return lw.lowerMethodCall(e)

	case *ast.Field:
		return lw.lowerField(e)

	case *ast.OptField:
		return lw.lowerOptField(e)

	case *ast.Index:
		return lw.lowerIndex(e)

	case *ast.Slice:
		return lw.lowerSlice(e)

	case *ast.Cast:
		return lw.lowerCast(e)

	case *ast.TypeTest:
		return lw.lowerTypeTest(e)

	case *ast.StructInit:
		return lw.lowerStructInit(e)

	case *ast.ArrayInit:
		return lw.lowerArrayInit(e)

	case *ast.New:
		return lw.lowerNew(e)

	case *ast.VariantInit:
		return lw.lowerVariantInit(e)

	case *ast.Lambda:
		return lw.lowerLambda(e)

	case *ast.InterpString:
		return lw.lowerInterpString(e)
	}

	lw.errorAt(expression.Tok(), "unsupported construct in lowering: %T", expression)
	return ir.None
}

func (lw *Lowerer) lowerLiteral(e *ast.Literal) ir.Value {
	switch v := e.Value.(type) {
	case int64:
		t := lw.typeOf(e)
		if !lw.registry.IsInteger(t) {
			t = types.I64
		}
		return lw.b.IConst(v, t)
	case float64:
		t := lw.typeOf(e)
		if !lw.registry.IsFloat(t) {
			t = types.F64
		}
		return lw.b.FConst(v, t)
	case string:
		return lw.b.SConst(v)
	case bool:
		return lw.b.BConst(v)
	case nil:
		return lw.b.NullConst(lw.typeOf(e))
	}
	lw.errorAt(e.Token, "unsupported literal %T", e.Value)
	return ir.None
}

func (lw *Lowerer) lowerVariable(e *ast.Variable) ir.Value {
	if b := lw.resolve(e.Name.Lexeme); b != nil {
		if b.isDirect {
			return b.direct
		}
		return lw.b.Load(b.ptr, b.typ)
	}
	if index, isGlobal := lw.globals[e.Name.Lexeme]; isGlobal {
		g := lw.module.Globals[index]
		ptr := lw.b.GlobalPtr(g.Name, index, g.Type, lw.registry)
		return lw.b.Load(ptr, g.Type)
	}
	// a bare function name evaluates to a closure with an empty environment
	t := lw.typeOf(e)
	if lw.registry.Get(t).Kind == types.KindFunction {
		env := lw.b.NullConst(t)
		return lw.b.MakeClosure(e.Name.Lexeme, env, t)
	}
	lw.errorAt(e.Name, "unresolved name '%s' survived checking", e.Name.Lexeme)
	return ir.None
}

// lowerAddress computes an lvalue address. The boolean reports whether the
// expression was addressable; rvalue receivers are spilled by the caller.
func (lw *Lowerer) lowerAddress(expression ast.Expression) (ir.Value, bool) {
	switch e := expression.(type) {
	case *ast.Variable:
		if b := lw.resolve(e.Name.Lexeme); b != nil {
			if !b.isDirect {
				return b.ptr, true
			}
			// `self` holds a receiver pointer directly
			if lw.registry.Get(b.typ).Kind == types.KindPointer {
				return b.direct, true
			}
			return ir.None, false
		}
		if index, isGlobal := lw.globals[e.Name.Lexeme]; isGlobal {
			g := lw.module.Globals[index]
			return lw.b.GlobalPtr(g.Name, index, g.Type, lw.registry), true
		}
		return ir.None, false

	case *ast.Grouping:
		return lw.lowerAddress(e.Expression)

	case *ast.Field:
		base, ok := lw.fieldBase(e.Receiver)
		if !ok {
			return ir.None, false
		}
		index, fieldType, found := lw.fieldSlot(lw.typeOf(e.Receiver), e.Name.Lexeme)
		if !found {
			return ir.None, false
		}
		return lw.b.FieldPtr(base, index, fieldType, lw.registry), true

	case *ast.Unary:
		if e.Operator.TokenType == token.MULT {
			return lw.lowerExpr(e.Right), true
		}
	}
	return ir.None, false
}

// fieldBase produces the pointer the field lives behind: pointer receivers
// evaluate to themselves, struct values evaluate to their slot address, and
// rvalue structs are spilled into a fresh slot.
func (lw *Lowerer) fieldBase(receiver ast.Expression) (ir.Value, bool) {
	recvType := lw.typeOf(receiver)
	if lw.registry.Get(recvType).Kind == types.KindPointer {
		return lw.lowerExpr(receiver), true
	}
	if addr, ok := lw.lowerAddress(receiver); ok {
		return addr, true
	}
	// rvalue struct: spill to a temporary slot
	value := lw.lowerExpr(receiver)
	if !value.Valid() {
		return ir.None, false
	}
	tmp := lw.b.Alloca(recvType, lw.registry)
	lw.b.Store(tmp, value)
	return tmp, true
}

// fieldSlot finds a field's index and type on a struct or union, looking
// through one pointer level.
func (lw *Lowerer) fieldSlot(receiver types.TypeID, name string) (int, types.TypeID, bool) {
	base := receiver
	if desc := lw.registry.Get(base); desc.Kind == types.KindPointer {
		base = desc.Element
	}
	desc := lw.registry.Get(base)
	for i, field := range desc.Fields {
		if field.Name == name {
			return i, field.Type, true
		}
	}
	return 0, types.Error, false
}

func (lw *Lowerer) lowerUnary(e *ast.Unary) ir.Value {
	switch e.Operator.TokenType {
	case token.AMP:
		addr, ok := lw.lowerAddress(e.Right)
		if !ok {
			lw.errorAt(e.Operator, "cannot take the address of this expression")
			return ir.None
		}
		return addr
	case token.MULT:
		ptr := lw.lowerExpr(e.Right)
		return lw.b.Load(ptr, lw.typeOf(e))
	}

	operand := lw.lowerExpr(e.Right)
	t := lw.typeOf(e)
	switch e.Operator.TokenType {
	case token.BANG:
		return lw.b.Unary(ir.OpLogNot, operand, types.Bool)
	case token.TILDE:
		return lw.b.Unary(ir.OpBNot, operand, t)
	case token.SUB:
		if lw.registry.IsFloat(t) {
			return lw.b.Unary(ir.OpFNeg, operand, t)
		}
		return lw.b.Unary(ir.OpINeg, operand, t)
	}
	lw.errorAt(e.Operator, "unsupported unary operator '%s'", e.Operator.Lexeme)
	return ir.None
}

func condFor(op token.TokenType, signed bool) ir.Cond {
	switch op {
	case token.EQUAL_EQUAL:
		return ir.CondEQ
	case token.NOT_EQUAL:
		return ir.CondNE
	case token.LESS:
		if signed {
			return ir.CondLT
		}
		return ir.CondULT
	case token.LESS_EQUAL:
		if signed {
			return ir.CondLE
		}
		return ir.CondULE
	case token.LARGER:
		if signed {
			return ir.CondGT
		}
		return ir.CondUGT
	case token.LARGER_EQUAL:
		if signed {
			return ir.CondGE
		}
		return ir.CondUGE
	}
	return ir.CondEQ
}

func isNullLiteral(e ast.Expression) bool {
	lit, ok := e.(*ast.Literal)
	return ok && lit.Value == nil
}

func (lw *Lowerer) lowerBinary(e *ast.Binary) ir.Value {
	op := e.Operator.TokenType

	// `x == null` and `x != null` lower to is_null
	if op == token.EQUAL_EQUAL || op == token.NOT_EQUAL {
		var operand ast.Expression
		if isNullLiteral(e.Right) {
			operand = e.Left
		} else if isNullLiteral(e.Left) {
			operand = e.Right
		}
		if operand != nil {
			value := lw.lowerExpr(operand)
			test := lw.b.Unary(ir.OpIsNull, value, types.Bool)
			if op == token.NOT_EQUAL {
				test = lw.b.Unary(ir.OpLogNot, test, types.Bool)
			}
			return test
		}
	}

	if op == token.OPT_ELSE {
		return lw.lowerOptElse(e)
	}

	leftType := lw.typeOf(e.Left)
	rightType := lw.typeOf(e.Right)
	left := lw.lowerExpr(e.Left)
	right := lw.lowerExpr(e.Right)

	// strings
	if leftType == types.String && rightType == types.String {
		switch op {
		case token.ADD:
			return lw.b.Binary(ir.OpStrConcat, left, right, types.String)
		case token.EQUAL_EQUAL, token.NOT_EQUAL, token.LESS, token.LESS_EQUAL, token.LARGER, token.LARGER_EQUAL:
			compared := lw.b.Binary(ir.OpStrCompare, left, right, types.I64)
			zero := lw.b.IConst(0, types.I64)
			return lw.b.ICmp(condFor(op, true), compared, zero)
		}
	}

	// numeric operands are promoted to a common type first
	operandType := lw.registry.Promote(leftType, rightType)
	if operandType == types.Invalid || operandType == types.Error {
		operandType = leftType
	}
	if lw.registry.IsNumeric(leftType) && lw.registry.IsNumeric(rightType) {
		left = lw.coerce(left, operandType)
		right = lw.coerce(right, operandType)
	}
	isFloat := lw.registry.IsFloat(operandType)
	signed := !lw.registry.IsInteger(operandType) || lw.registry.IsSigned(operandType)
	resultType := lw.typeOf(e)

	switch op {
	case token.ADD:
		if isFloat {
			return lw.b.Binary(ir.OpFAdd, left, right, resultType)
		}
		return lw.b.Binary(ir.OpIAdd, left, right, resultType)
	case token.SUB:
		if isFloat {
			return lw.b.Binary(ir.OpFSub, left, right, resultType)
		}
		return lw.b.Binary(ir.OpISub, left, right, resultType)
	case token.MULT:
		if isFloat {
			return lw.b.Binary(ir.OpFMul, left, right, resultType)
		}
		return lw.b.Binary(ir.OpIMul, left, right, resultType)
	case token.DIV:
		if isFloat {
			return lw.b.Binary(ir.OpFDiv, left, right, resultType)
		}
		if signed {
			return lw.b.Binary(ir.OpSDiv, left, right, resultType)
		}
		return lw.b.Binary(ir.OpUDiv, left, right, resultType)
	case token.MOD:
		if signed {
			return lw.b.Binary(ir.OpSRem, left, right, resultType)
		}
		return lw.b.Binary(ir.OpURem, left, right, resultType)

	case token.AMP:
		return lw.b.Binary(ir.OpBAnd, left, right, resultType)
	case token.PIPE:
		return lw.b.Binary(ir.OpBOr, left, right, resultType)
	case token.CARET:
		return lw.b.Binary(ir.OpBXor, left, right, resultType)
	case token.SHL:
		return lw.b.Binary(ir.OpShl, left, right, resultType)
	case token.SHR:
		if signed {
			return lw.b.Binary(ir.OpAShr, left, right, resultType)
		}
		return lw.b.Binary(ir.OpLShr, left, right, resultType)

	case token.EQUAL_EQUAL, token.NOT_EQUAL, token.LESS, token.LESS_EQUAL, token.LARGER, token.LARGER_EQUAL:
		if isFloat {
			return lw.b.FCmp(condFor(op, true), left, right)
		}
		return lw.b.ICmp(condFor(op, signed), left, right)
	}

	lw.errorAt(e.Operator, "unsupported binary operator '%s'", e.Operator.Lexeme)
	return ir.None
}

// lowerOptElse lowers `a ?: b` as an is_null diamond.
func (lw *Lowerer) lowerOptElse(e *ast.Binary) ir.Value {
	resultType := lw.typeOf(e)
	left := lw.lowerExpr(e.Left)

	someBlk := lw.fn.NewBlock("opt.some")
	noneBlk := lw.fn.NewBlock("opt.none")
	joinBlk := lw.fn.NewBlock("opt.join")

	test := lw.b.Unary(ir.OpIsNull, left, types.Bool)
	lw.b.BrIf(test, noneBlk, someBlk)

	lw.b.SetBlock(someBlk)
	unwrapped := lw.b.Unary(ir.OpUnwrapOptional, left, resultType)
	someEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(noneBlk)
	fallback := lw.coerce(lw.lowerExpr(e.Right), resultType)
	noneEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(joinBlk)
	return lw.b.Phi(joinBlk, resultType, []ir.PhiIncoming{
		{Pred: someEnd, Val: unwrapped},
		{Pred: noneEnd, Val: fallback},
	})
}

// lowerLogical lowers short-circuit && and || as a diamond CFG with a phi
// at the join holding {false, rhs} or {true, rhs}.
func (lw *Lowerer) lowerLogical(e *ast.Logical) ir.Value {
	left := lw.lowerExpr(e.Left)
	shortCircuit := lw.b.BConst(e.Operator.TokenType == token.OR_OR)
	leftEnd := lw.b.Block()

	rhsBlk := lw.fn.NewBlock("logic.rhs")
	joinBlk := lw.fn.NewBlock("logic.join")

	if e.Operator.TokenType == token.AND_AND {
		lw.b.BrIf(left, rhsBlk, joinBlk)
	} else {
		lw.b.BrIf(left, joinBlk, rhsBlk)
	}

	lw.b.SetBlock(rhsBlk)
	right := lw.lowerExpr(e.Right)
	rhsEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(joinBlk)
	return lw.b.Phi(joinBlk, types.Bool, []ir.PhiIncoming{
		{Pred: leftEnd, Val: shortCircuit},
		{Pred: rhsEnd, Val: right},
	})
}

func (lw *Lowerer) lowerAssign(e *ast.Assign) ir.Value {
	// element assignment goes through the dedicated array store
	if index, isIndex := e.Target.(*ast.Index); isIndex {
		recvType := lw.typeOf(index.Receiver)
		receiver := lw.lowerExpr(index.Receiver)
		idx := lw.lowerExpr(index.Value)
		elemType := lw.registry.Get(recvType).Element
		value := lw.coerce(lw.lowerExpr(e.Value), elemType)
		lw.b.Effect(ir.OpArrayStore, receiver, idx, value)
		return value
	}

	targetType := lw.typeOf(e.Target)
	addr, ok := lw.lowerAddress(e.Target)
	if !ok {
		lw.errorAt(e.Operator, "assignment target is not addressable")
		return ir.None
	}
	value := lw.coerce(lw.lowerExpr(e.Value), targetType)
	lw.b.Store(addr, value)
	return value
}

func (lw *Lowerer) lowerTernary(e *ast.Ternary) ir.Value {
	resultType := lw.typeOf(e)
	cond := lw.lowerExpr(e.Condition)

	thenBlk := lw.fn.NewBlock("sel.then")
	elseBlk := lw.fn.NewBlock("sel.else")
	joinBlk := lw.fn.NewBlock("sel.join")

	lw.b.BrIf(cond, thenBlk, elseBlk)

	lw.b.SetBlock(thenBlk)
	thenVal := lw.coerce(lw.lowerExpr(e.Then), resultType)
	thenEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(elseBlk)
	elseVal := lw.coerce(lw.lowerExpr(e.Else), resultType)
	elseEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(joinBlk)
	return lw.b.Phi(joinBlk, resultType, []ir.PhiIncoming{
		{Pred: thenEnd, Val: thenVal},
		{Pred: elseEnd, Val: elseVal},
	})
}

func (lw *Lowerer) lowerCall(e *ast.Call) ir.Value {
	if variable, isVariable := e.Callee.(*ast.Variable); isVariable {
		name := variable.Name.Lexeme
		if lw.resolve(name) == nil {
			if _, isGlobal := lw.globals[name]; !isGlobal {
				if handled, result := lw.lowerBuiltinCall(e, name); handled {
					return result
				}
				// direct call to a module function
				args := lw.lowerArguments(e.Arguments, name)
				return lw.b.Call(name, false, args, lw.typeOf(e))
			}
		}
	}

	// calling a closure value
	closure := lw.lowerExpr(e.Callee)
	args := make([]ir.Value, 0, len(e.Arguments))
	calleeDesc := lw.registry.Get(lw.typeOf(e.Callee))
	for i, argument := range e.Arguments {
		value := lw.lowerExpr(argument)
		if calleeDesc.Kind == types.KindFunction && i < len(calleeDesc.Params) {
			value = lw.coerce(value, calleeDesc.Params[i])
		}
		args = append(args, value)
	}
	return lw.b.CallClosure(closure, args, lw.typeOf(e))
}

// lowerArguments lowers call arguments, coercing each to the target
// function's parameter type when the signature is known.
func (lw *Lowerer) lowerArguments(arguments []ast.Expression, callee string) []ir.Value {
	var params []types.TypeID
	if sig := lw.chk.CallSignature(callee); sig != types.Invalid {
		params = lw.registry.Get(sig).Params
	}
	args := make([]ir.Value, 0, len(arguments))
	for i, argument := range arguments {
		value := lw.lowerExpr(argument)
		if i < len(params) {
			value = lw.coerce(value, params[i])
		}
		args = append(args, value)
	}
	return args
}

// lowerBuiltinCall lowers calls to the native runtime surface. Length
// queries compile to the dedicated ops; everything else dispatches through
// the native-call opcode.
func (lw *Lowerer) lowerBuiltinCall(e *ast.Call, name string) (bool, ir.Value) {
	switch name {
	case "len":
		if len(e.Arguments) != 1 {
			return false, ir.None
		}
		argType := lw.typeOf(e.Arguments[0])
		value := lw.lowerExpr(e.Arguments[0])
		desc := lw.registry.Get(argType)
		switch {
		case argType == types.String:
			return true, lw.b.Unary(ir.OpStrLen, value, types.I64)
		case desc.Kind == types.KindSlice || desc.Kind == types.KindArray:
			return true, lw.b.Unary(ir.OpArrayLen, value, types.I64)
		case desc.Kind == types.KindGenericInstance && lw.registry.Get(desc.Base).Name == "Map":
			return true, lw.b.Unary(ir.OpMapLen, value, types.I64)
		case desc.Kind == types.KindGenericInstance:
			return true, lw.b.Unary(ir.OpListLen, value, types.I64)
		}
		return true, lw.b.IConst(0, types.I64)

	case "println", "print", "string", "read_file", "process_args":
		args := make([]ir.Value, 0, len(e.Arguments))
		for _, argument := range e.Arguments {
			value := lw.lowerExpr(argument)
			// the runtime print natives take a string; convert
			// non-string operands first
			if name == "println" || name == "print" {
				value = lw.stringify(argument, value)
			}
			args = append(args, value)
		}
		return true, lw.b.Call(name, true, args, lw.typeOf(e))
	}
	return false, ir.None
}

// stringify converts a value to its string form for printing, reusing the
// `string` native for non-string operands.
func (lw *Lowerer) stringify(argument ast.Expression, value ir.Value) ir.Value {
	if lw.typeOf(argument) == types.String {
		return value
	}
	return lw.b.Call("string", true, []ir.Value{value}, types.String)
}

func (lw *Lowerer) lowerMethodCall(e *ast.MethodCall) ir.Value {
	recvType := lw.typeOf(e.Receiver)
	base := recvType
	if desc := lw.registry.Get(base); desc.Kind == types.KindPointer {
		base = desc.Element
	}
	desc := lw.registry.Get(base)

	if desc.Kind == types.KindGenericInstance {
		baseName := lw.registry.Get(desc.Base).Name
		if baseName == "List" || baseName == "Map" {
			return lw.lowerCollectionMethod(e, base, baseName)
		}
	}

	// user method: the receiver travels as a hidden leading pointer
	// argument
	var receiver ir.Value
	if lw.registry.Get(recvType).Kind == types.KindPointer {
		receiver = lw.lowerExpr(e.Receiver)
	} else {
		ptr, ok := lw.fieldBase(e.Receiver)
		if !ok {
			lw.errorAt(e.Name, "method receiver is not addressable")
			return ir.None
		}
		receiver = ptr
	}

	typeName := desc.Name
	if desc.Kind == types.KindGenericInstance {
		typeName = lw.registry.Get(desc.Base).Name
	}
	callee := typeName + "." + e.Name.Lexeme
	args := append([]ir.Value{receiver}, lw.lowerArguments(e.Arguments, callee)...)
	return lw.b.Call(callee, false, args, lw.typeOf(e))
}

func (lw *Lowerer) lowerCollectionMethod(e *ast.MethodCall, instance types.TypeID, baseName string) ir.Value {
	desc := lw.registry.Get(instance)
	receiver := lw.lowerExpr(e.Receiver)
	resultType := lw.typeOf(e)

	lowered := make([]ir.Value, len(e.Arguments))
	for i, argument := range e.Arguments {
		lowered[i] = lw.lowerExpr(argument)
	}

	if baseName == "List" {
		elem := desc.Args[0]
		switch e.Name.Lexeme {
		case "push":
			lw.b.Effect(ir.OpListPush, receiver, lw.coerce(lowered[0], elem))
			return ir.None
		case "pop":
			return lw.b.Unary(ir.OpListPop, receiver, resultType)
		case "get":
			return lw.b.Binary(ir.OpListGet, receiver, lowered[0], resultType)
		case "set":
			lw.b.Effect(ir.OpListSet, receiver, lowered[0], lw.coerce(lowered[1], elem))
			return ir.None
		case "len":
			return lw.b.Unary(ir.OpListLen, receiver, types.I64)
		}
	}

	key, value := desc.Args[0], types.Invalid
	if len(desc.Args) > 1 {
		value = desc.Args[1]
	}
	switch e.Name.Lexeme {
	case "set":
		lw.b.Effect(ir.OpMapSet, receiver, lw.coerce(lowered[0], key), lw.coerce(lowered[1], value))
		return ir.None
	case "get":
		return lw.b.Binary(ir.OpMapGet, receiver, lowered[0], resultType)
	case "has":
		return lw.b.Binary(ir.OpMapHas, receiver, lowered[0], types.Bool)
	case "delete":
		lw.b.Effect(ir.OpMapDelete, receiver, lowered[0])
		return ir.None
	case "len":
		return lw.b.Unary(ir.OpMapLen, receiver, types.I64)
	}

	lw.errorAt(e.Name, "unsupported collection method '%s'", e.Name.Lexeme)
	return ir.None
}

func (lw *Lowerer) lowerField(e *ast.Field) ir.Value {
	base, ok := lw.fieldBase(e.Receiver)
	if !ok {
		lw.errorAt(e.Name, "field receiver is not addressable")
		return ir.None
	}
	index, fieldType, found := lw.fieldSlot(lw.typeOf(e.Receiver), e.Name.Lexeme)
	if !found {
		lw.errorAt(e.Name, "field '%s' survived checking but has no slot", e.Name.Lexeme)
		return ir.None
	}
	ptr := lw.b.FieldPtr(base, index, fieldType, lw.registry)
	return lw.b.Load(ptr, fieldType)
}

// lowerOptField lowers `recv?.name` as an is_null diamond yielding an
// optional of the field type.
func (lw *Lowerer) lowerOptField(e *ast.OptField) ir.Value {
	recvType := lw.typeOf(e.Receiver)
	inner := lw.registry.Get(recvType).Element
	resultType := lw.typeOf(e)

	receiver := lw.lowerExpr(e.Receiver)

	someBlk := lw.fn.NewBlock("optf.some")
	noneBlk := lw.fn.NewBlock("optf.none")
	joinBlk := lw.fn.NewBlock("optf.join")

	test := lw.b.Unary(ir.OpIsNull, receiver, types.Bool)
	lw.b.BrIf(test, noneBlk, someBlk)

	lw.b.SetBlock(someBlk)
	unwrapped := lw.b.Unary(ir.OpUnwrapOptional, receiver, inner)
	index, fieldType, found := lw.fieldSlot(inner, e.Name.Lexeme)
	var wrapped ir.Value
	if found {
		ptr := lw.b.FieldPtr(unwrapped, index, fieldType, lw.registry)
		loaded := lw.b.Load(ptr, fieldType)
		wrapped = lw.b.Unary(ir.OpWrapOptional, loaded, resultType)
	} else {
		wrapped = lw.b.NullConst(resultType)
	}
	someEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(noneBlk)
	null := lw.b.NullConst(resultType)
	noneEnd := lw.b.Block()
	lw.b.Jump(joinBlk)

	lw.b.SetBlock(joinBlk)
	return lw.b.Phi(joinBlk, resultType, []ir.PhiIncoming{
		{Pred: someEnd, Val: wrapped},
		{Pred: noneEnd, Val: null},
	})
}

func (lw *Lowerer) lowerIndex(e *ast.Index) ir.Value {
	receiver := lw.lowerExpr(e.Receiver)
	index := lw.coerce(lw.lowerExpr(e.Value), types.I64)
	if lw.typeOf(e.Receiver) == types.String {
		// out-of-range string indexing yields 0 at runtime, not a trap
		return lw.b.Binary(ir.OpStrIndex, receiver, index, types.I64)
	}
	return lw.b.Binary(ir.OpArrayLoad, receiver, index, lw.typeOf(e))
}

func (lw *Lowerer) lowerSlice(e *ast.Slice) ir.Value {
	receiver := lw.lowerExpr(e.Receiver)
	start := lw.coerce(lw.lowerExpr(e.Start), types.I64)
	end := lw.coerce(lw.lowerExpr(e.End), types.I64)
	resultType := lw.typeOf(e)
	if lw.typeOf(e.Receiver) == types.String {
		return lw.b.NAry(ir.OpStrSlice, []ir.Value{receiver, start, end}, resultType)
	}
	return lw.b.NAry(ir.OpSliceNew, []ir.Value{receiver, start, end}, resultType)
}

func (lw *Lowerer) lowerCast(e *ast.Cast) ir.Value {
	value := lw.lowerExpr(e.Value)
	from := lw.typeOf(e.Value)
	to := lw.typeOf(e)

	fromDesc := lw.registry.Get(from)
	toDesc := lw.registry.Get(to)

	switch {
	case lw.registry.IsNumeric(from) && lw.registry.IsNumeric(to):
		return lw.convertNumeric(value, from, to)
	case fromDesc.Kind == types.KindPointer && toDesc.Kind == types.KindPointer:
		return lw.b.Unary(ir.OpBitcast, value, to)
	case fromDesc.Kind == types.KindEnum && lw.registry.IsInteger(to):
		tag := lw.b.Unary(ir.OpVariantGetTag, value, types.I64)
		return lw.convertNumeric(tag, types.I64, to)
	}
	return value
}

// convertNumeric emits the conversion chain between two numeric types:
// sext/uext for widening, trunc for narrowing, int_to_float/float_to_int
// across domains, bitcast between the float widths.
func (lw *Lowerer) convertNumeric(value ir.Value, from, to types.TypeID) ir.Value {
	if from == to {
		return value
	}
	fromInt := lw.registry.IsInteger(from)
	toInt := lw.registry.IsInteger(to)
	switch {
	case fromInt && toInt:
		fromRank, toRank := intRankOf(from), intRankOf(to)
		if toRank > fromRank {
			if lw.registry.IsSigned(from) {
				return lw.b.Unary(ir.OpSExt, value, to)
			}
			return lw.b.Unary(ir.OpUExt, value, to)
		}
		if toRank < fromRank {
			return lw.b.Unary(ir.OpTrunc, value, to)
		}
		return lw.b.Unary(ir.OpBitcast, value, to)
	case fromInt && !toInt:
		return lw.b.Unary(ir.OpIntToFloat, value, to)
	case !fromInt && toInt:
		return lw.b.Unary(ir.OpFloatToInt, value, to)
	}
	return lw.b.Unary(ir.OpBitcast, value, to)
}

func intRankOf(id types.TypeID) int {
	switch id {
	case types.I8, types.U8:
		return 1
	case types.I16, types.U16:
		return 2
	case types.I32, types.U32:
		return 3
	case types.I64, types.U64:
		return 4
	}
	return 0
}

func (lw *Lowerer) lowerTypeTest(e *ast.TypeTest) ir.Value {
	valueType := lw.typeOf(e.Value)
	target := lw.chk.ResolvedType(e.Target)
	value := lw.lowerExpr(e.Value)

	desc := lw.registry.Get(valueType)
	if desc.Kind == types.KindOptional && desc.Element == target {
		test := lw.b.Unary(ir.OpIsNull, value, types.Bool)
		return lw.b.Unary(ir.OpLogNot, test, types.Bool)
	}
	// statically decided otherwise
	return lw.b.BConst(valueType == target)
}

func (lw *Lowerer) lowerStructInit(e *ast.StructInit) ir.Value {
	structType := lw.typeOf(e)
	if e.OnHeap {
		// heap records come from the runtime allocator
		desc := lw.registry.Get(lw.registry.Get(structType).Element)
		count := lw.b.IConst(int64(len(desc.Fields)), types.I64)
		ptr := lw.b.Call("record_new", true, []ir.Value{count}, structType)
		lw.storeStructFields(ptr, lw.registry.Get(structType).Element, e)
		return ptr
	}
	tmp := lw.b.Alloca(structType, lw.registry)
	lw.lowerStructInitInto(tmp, e)
	return lw.b.Load(tmp, structType)
}

// lowerStructInitInto writes the initialiser's fields directly through ptr,
// the direct-alias form used for `var f = Foo{...}`.
func (lw *Lowerer) lowerStructInitInto(ptr ir.Value, e *ast.StructInit) {
	structType := lw.typeOf(e)
	if lw.registry.Get(structType).Kind == types.KindPointer {
		structType = lw.registry.Get(structType).Element
	}
	lw.storeStructFields(ptr, structType, e)
}

func (lw *Lowerer) storeStructFields(ptr ir.Value, structType types.TypeID, e *ast.StructInit) {
	desc := lw.registry.Get(structType)
	for _, init := range e.Fields {
		for index, field := range desc.Fields {
			if field.Name != init.Name.Lexeme {
				continue
			}
			value := lw.coerce(lw.lowerExpr(init.Value), field.Type)
			fieldPtr := lw.b.FieldPtr(ptr, index, field.Type, lw.registry)
			lw.b.Store(fieldPtr, value)
			break
		}
	}
}

func (lw *Lowerer) lowerArrayInit(e *ast.ArrayInit) ir.Value {
	arrayType := lw.typeOf(e)
	elemType := lw.registry.Get(arrayType).Element
	count := lw.b.IConst(int64(len(e.Elements)), types.I64)
	array := lw.b.Call("array_new", true, []ir.Value{count}, arrayType)
	for i, element := range e.Elements {
		index := lw.b.IConst(int64(i), types.I64)
		value := lw.coerce(lw.lowerExpr(element), elemType)
		lw.b.Effect(ir.OpArrayStore, array, index, value)
	}
	return array
}

func (lw *Lowerer) lowerNew(e *ast.New) ir.Value {
	t := lw.typeOf(e)
	desc := lw.registry.Get(t)
	if desc.Kind == types.KindGenericInstance {
		if lw.registry.Get(desc.Base).Name == "Map" {
			return lw.b.Nullary(ir.OpMapNew, t)
		}
		return lw.b.Nullary(ir.OpListNew, t)
	}
	// `new Struct` without an initialiser
	structType := desc.Element
	fields := len(lw.registry.Get(structType).Fields)
	count := lw.b.IConst(int64(fields), types.I64)
	return lw.b.Call("record_new", true, []ir.Value{count}, t)
}

func (lw *Lowerer) lowerVariantInit(e *ast.VariantInit) ir.Value {
	enumType := lw.typeOf(e)
	desc := lw.registry.Get(enumType)
	tag := 0
	var payloadTypes []types.TypeID
	for _, v := range desc.Variants {
		if v.Name == e.Variant.Lexeme {
			tag = v.Tag
			payloadTypes = v.Payload
			break
		}
	}
	payload := make([]ir.Value, 0, len(e.Arguments))
	for i, argument := range e.Arguments {
		value := lw.lowerExpr(argument)
		if i < len(payloadTypes) {
			value = lw.coerce(value, payloadTypes[i])
		}
		payload = append(payload, value)
	}
	return lw.b.VariantConstruct(enumType, tag, payload)
}

// lowerLambda analyzes the lambda's free variables, builds the environment
// record, and emits make_closure. The body itself is lowered after the
// host function finishes.
func (lw *Lowerer) lowerLambda(e *ast.Lambda) ir.Value {
	captured := lw.freeVariables(e)

	fields := make([]types.FieldDesc, 0, len(captured))
	for _, name := range captured {
		fields = append(fields, types.FieldDesc{Name: name, Type: lw.resolve(name).typ})
	}
	envName := fmt.Sprintf("__env.%d", lw.lambdaCount)
	envType, _ := lw.registry.RegisterStruct(envName, fields)

	count := lw.b.IConst(int64(len(fields)), types.I64)
	envPtr := lw.b.Call("record_new", true, []ir.Value{count}, lw.registry.PointerTo(envType))
	for index, name := range captured {
		b := lw.resolve(name)
		var value ir.Value
		if b.isDirect {
			value = b.direct
		} else {
			value = lw.b.Load(b.ptr, b.typ)
		}
		fieldPtr := lw.b.FieldPtr(envPtr, index, b.typ, lw.registry)
		lw.b.Store(fieldPtr, value)
	}

	name := fmt.Sprintf("lambda.%d", lw.lambdaCount)
	lw.lambdaCount++
	lw.pending = append(lw.pending, pendingLambda{
		name:     name,
		lambda:   e,
		envType:  envType,
		captured: captured,
	})
	return lw.b.MakeClosure(name, envPtr, lw.typeOf(e))
}

// lowerLambdaBody lowers one queued lambda as a module function taking the
// environment as a hidden first parameter.
func (lw *Lowerer) lowerLambdaBody(p pendingLambda) {
	ret := types.Void
	if p.lambda.ReturnType != nil {
		if resolved := lw.chk.ResolvedType(p.lambda.ReturnType); resolved != types.Invalid {
			ret = resolved
		}
	}

	fn := &ir.Function{Name: p.name, Return: ret, IsLambda: true}
	lw.beginFunction(fn, ret)

	envPtrType := lw.registry.PointerTo(p.envType)
	envValue := fn.NewValue(envPtrType)
	fn.Params = append(fn.Params, ir.Param{Name: "env", Val: envValue})

	envDesc := lw.registry.Get(p.envType)
	for index, name := range p.captured {
		fieldType := envDesc.Fields[index].Type
		fieldPtr := lw.b.FieldPtr(envValue, index, fieldType, lw.registry)
		value := lw.b.Load(fieldPtr, fieldType)
		lw.bindDirect(name, value, fieldType)
	}

	for _, param := range p.lambda.Parameters {
		paramType := lw.chk.ResolvedType(param.Type)
		if paramType == types.Invalid {
			paramType = types.I64
		}
		value := fn.NewValue(paramType)
		fn.Params = append(fn.Params, ir.Param{Name: param.Name.Lexeme, Val: value})
		slot := lw.b.Alloca(paramType, lw.registry)
		lw.b.Store(slot, value)
		lw.bindSlot(param.Name.Lexeme, slot, paramType)
	}

	lw.pushScope()
	lw.lowerStmt(p.lambda.Body)
	lw.popScopeNormal()
	lw.implicitReturn()
}

// freeVariables collects the names a lambda references from enclosing
// scopes, in first-use order.
func (lw *Lowerer) freeVariables(e *ast.Lambda) []string {
	bound := map[string]bool{}
	for _, p := range e.Parameters {
		bound[p.Name.Lexeme] = true
	}

	seen := map[string]bool{}
	captured := []string{}

	var walkExpr func(ast.Expression)
	var walkStmt func(ast.Statement)

	note := func(name string) {
		if bound[name] || seen[name] {
			return
		}
		if _, isGlobal := lw.globals[name]; isGlobal {
			return
		}
		if lw.resolve(name) == nil {
			return
		}
		seen[name] = true
		captured = append(captured, name)
	}

	walkExpr = func(expression ast.Expression) {
		switch x := expression.(type) {
		case nil:
		case *ast.Variable:
			note(x.Name.Lexeme)
		case *ast.Unary:
			walkExpr(x.Right)
		case *ast.Binary:
			walkExpr(x.Left)
			walkExpr(x.Right)
		case *ast.Logical:
			walkExpr(x.Left)
			walkExpr(x.Right)
		case *ast.Assign:
			walkExpr(x.Target)
			walkExpr(x.Value)
		case *ast.Ternary:
			walkExpr(x.Condition)
			walkExpr(x.Then)
			walkExpr(x.Else)
		case *ast.Grouping:
			walkExpr(x.Expression)
		case *ast.Call:
			walkExpr(x.Callee)
			for _, a := range x.Arguments {
				walkExpr(a)
			}
		case *ast.MethodCall:
			walkExpr(x.Receiver)
			for _, a := range x.Arguments {
				walkExpr(a)
			}
		case *ast.Field:
			walkExpr(x.Receiver)
		case *ast.OptField:
			walkExpr(x.Receiver)
		case *ast.Index:
			walkExpr(x.Receiver)
			walkExpr(x.Value)
		case *ast.Slice:
			walkExpr(x.Receiver)
			walkExpr(x.Start)
			walkExpr(x.End)
		case *ast.Range:
			walkExpr(x.Start)
			walkExpr(x.End)
		case *ast.Cast:
			walkExpr(x.Value)
		case *ast.TypeTest:
			walkExpr(x.Value)
		case *ast.StructInit:
			for _, f := range x.Fields {
				walkExpr(f.Value)
			}
		case *ast.ArrayInit:
			for _, el := range x.Elements {
				walkExpr(el)
			}
		case *ast.VariantInit:
			for _, a := range x.Arguments {
				walkExpr(a)
			}
		case *ast.InterpString:
			for _, part := range x.Parts {
				walkExpr(part)
			}
		case *ast.Lambda:
			// names free in a nested lambda are free here too, unless the
			// nested lambda binds them
			for _, inner := range lw.freeVariables(x) {
				note(inner)
			}
		}
	}

	walkStmt = func(statement ast.Statement) {
		switch x := statement.(type) {
		case nil:
		case *ast.VarStmt:
			walkExpr(x.Initializer)
			bound[x.Name.Lexeme] = true
		case *ast.ExpressionStmt:
			walkExpr(x.Expression)
		case *ast.ReturnStmt:
			walkExpr(x.Value)
		case *ast.IfStmt:
			walkExpr(x.Condition)
			walkStmt(x.Then)
			if x.Else != nil {
				walkStmt(x.Else)
			}
		case *ast.WhileStmt:
			walkExpr(x.Condition)
			walkStmt(x.Body)
		case *ast.ForStmt:
			walkExpr(x.Iterable)
			bound[x.Variable.Lexeme] = true
			walkStmt(x.Body)
		case *ast.BlockStmt:
			for _, inner := range x.Statements {
				walkStmt(inner)
			}
		case *ast.LoopStmt:
			walkStmt(x.Body)
		case *ast.DeferStmt:
			walkExpr(x.Expression)
		case *ast.TryStmt:
			walkStmt(x.Body)
			bound[x.ErrName.Lexeme] = true
			walkStmt(x.Catch)
		case *ast.ThrowStmt:
			walkExpr(x.Value)
		case *ast.SwitchStmt:
			walkExpr(x.Subject)
			for _, arm := range x.Arms {
				if vp, isVariant := arm.Pattern.(ast.VariantPattern); isVariant {
					for _, b := range vp.Bindings {
						bound[b.Lexeme] = true
					}
				}
				walkStmt(arm.Body)
			}
		}
	}

	walkStmt(e.Body)
	return captured
}

func (lw *Lowerer) lowerInterpString(e *ast.InterpString) ir.Value {
	var result ir.Value
	for _, part := range e.Parts {
		var value ir.Value
		if lit, isLit := part.(*ast.Literal); isLit {
			text, _ := lit.Value.(string)
			if text == "" && result.Valid() {
				continue
			}
			value = lw.b.SConst(text)
		} else {
			value = lw.stringify(part, lw.lowerExpr(part))
		}
		if !result.Valid() {
			result = value
			continue
		}
		result = lw.b.Binary(ir.OpStrConcat, result, value, types.String)
	}
	if !result.Valid() {
		return lw.b.SConst("")
	}
	return result
}

// coerce converts value to the target type where the checker allowed an
// implicit coercion: numeric promotion, wrapping into an optional, the null
// literal adopting its context's optional type, and the checked unwrap of
// ?*T into *T.
func (lw *Lowerer) coerce(value ir.Value, to types.TypeID) ir.Value {
	from := value.Type
	if !value.Valid() || from == to || to == types.Invalid || to == types.Error || from == types.Error {
		return value
	}

	if lw.registry.IsNumeric(from) && lw.registry.IsNumeric(to) {
		return lw.convertNumeric(value, from, to)
	}

	toDesc := lw.registry.Get(to)
	fromDesc := lw.registry.Get(from)

	if toDesc.Kind == types.KindOptional {
		// the null literal carries the placeholder type ?void
		if from == lw.registry.OptionalOf(types.Void) {
			return lw.b.NullConst(to)
		}
		if from == toDesc.Element {
			return lw.b.Unary(ir.OpWrapOptional, value, to)
		}
		inner := lw.coerce(value, toDesc.Element)
		if inner.Type == toDesc.Element {
			return lw.b.Unary(ir.OpWrapOptional, inner, to)
		}
		return value
	}

	// ?*T to *T after a null check: unwrap without narrowing
	if fromDesc.Kind == types.KindOptional && fromDesc.Element == to {
		return lw.b.Unary(ir.OpUnwrapOptional, value, to)
	}

	return value
}
