// Package lower translates the annotated AST into the SSA IR module. The
// translation preserves source behavior including defer order (LIFO on
// every exit edge), short-circuit evaluation (diamond CFG with a phi at the
// join) and try/catch boundaries (handler instructions around the body).
package lower

import (
	"fmt"

	"cot/ast"
	"cot/checker"
	"cot/diag"
	"cot/ir"
	"cot/token"
	"cot/types"
)

// binding locates one name during lowering. Most locals live in an alloca
// slot; loop induction variables, `self`, captured environment fields and
// switch payload bindings are direct SSA values.
type binding struct {
	ptr      ir.Value
	direct   ir.Value
	typ      types.TypeID
	isDirect bool
}

type scope struct {
	parent *scope
	names  map[string]*binding
	defers []ast.Expression
}

type loopContext struct {
	continueTarget *ir.Block
	breakTarget    *ir.Block
	// scope at loop entry: break/continue drain the defers of every scope
	// opened inside the loop body
	entryScope *scope
}

type pendingLambda struct {
	name     string
	lambda   *ast.Lambda
	envType  types.TypeID
	captured []string
}

// Lowerer drives one module's lowering.
type Lowerer struct {
	module   *ir.Module
	registry *types.Registry
	chk      *checker.Checker
	bag      *diag.Bag

	b     *ir.Builder
	fn    *ir.Function
	scope *scope
	loops []loopContext

	currentReturn types.TypeID
	globals       map[string]int
	lambdaCount   int
	pending       []pendingLambda

	// tryStack records, innermost last, the scope each active try statement
	// was opened in. Throw drains defers only down to the innermost
	// handler; break/continue/return edges crossing a try emit
	// clear_handler.
	tryStack []*scope
}

// Lower translates a checked program into an IR module. It must not be
// called when the diagnostics bag already holds errors.
func Lower(statements []ast.Statement, chk *checker.Checker, registry *types.Registry, bag *diag.Bag) *ir.Module {
	lw := &Lowerer{
		module:   ir.NewModule(registry),
		registry: registry,
		chk:      chk,
		bag:      bag,
		globals:  make(map[string]int),
	}

	FoldConstants(statements)
	lw.collectGlobals(statements)

	for _, statement := range statements {
		switch s := statement.(type) {
		case *ast.FunctionDecl:
			lw.lowerFunction(s.Name.Lexeme, s, types.Invalid, s.IsPublic || s.Name.Lexeme == "main")
		case *ast.ImplBlock:
			target, ok := registry.Lookup(s.Target.Lexeme)
			if !ok {
				continue
			}
			for _, method := range s.Methods {
				lw.lowerFunction(s.Target.Lexeme+"."+method.Name.Lexeme, method, target, false)
			}
		case *ast.TestDecl:
			name, _ := s.Name.Literal.(string)
			lw.lowerSynthetic("test."+name, s.Body)
		case *ast.ComptimeBlock:
			lw.lowerSynthetic(fmt.Sprintf("comptime.%d", len(lw.module.Functions)), s.Body)
		}
	}

	lw.lowerGlobalInit(statements)

	for _, f := range lw.module.Functions {
		eliminateDeadBlocks(f)
		if err := ir.Verify(f); err != nil {
			bag.Add(diag.Internal, 0, 0, "IR verification failed: %v\n%s", err, ir.PrintFunction(lw.module, f))
		}
	}
	return lw.module
}

func (lw *Lowerer) errorAt(tok token.Token, format string, args ...any) {
	lw.bag.Add(diag.Lowering, tok.Line, tok.Column, format, args...)
}

func (lw *Lowerer) typeOf(e ast.Expression) types.TypeID {
	type typed interface{ ResultType() int32 }
	if t, ok := e.(typed); ok {
		return types.TypeID(t.ResultType())
	}
	return types.Error
}

// collectGlobals records top-level var/const declarations as module
// globals. Literal initializers become the global's initial value;
// non-constant initializers run in the synthesized __init routine.
func (lw *Lowerer) collectGlobals(statements []ast.Statement) {
	for _, statement := range statements {
		global, ok := statement.(*ast.VarStmt)
		if !ok {
			continue
		}
		t := types.I64
		if global.Initializer != nil {
			t = lw.typeOf(global.Initializer)
		}
		if global.Type != nil {
			if resolved := lw.chk.ResolvedType(global.Type); resolved != types.Invalid {
				t = resolved
			}
		}
		g := ir.Global{Name: global.Name.Lexeme, Type: t}
		if lit, isLit := global.Initializer.(*ast.Literal); isLit {
			g.Init = lit.Value
		}
		lw.globals[g.Name] = len(lw.module.Globals)
		lw.module.Globals = append(lw.module.Globals, g)
	}
}

// lowerGlobalInit synthesizes the __init routine storing every non-literal
// global initializer, in declaration order.
func (lw *Lowerer) lowerGlobalInit(statements []ast.Statement) {
	needed := false
	for _, statement := range statements {
		if global, ok := statement.(*ast.VarStmt); ok {
			if _, isLit := global.Initializer.(*ast.Literal); global.Initializer != nil && !isLit {
				needed = true
			}
		}
	}
	if !needed {
		return
	}

	fn := &ir.Function{Name: "__init", Return: types.Void}
	lw.beginFunction(fn, types.Void)
	for _, statement := range statements {
		global, ok := statement.(*ast.VarStmt)
		if !ok || global.Initializer == nil {
			continue
		}
		if _, isLit := global.Initializer.(*ast.Literal); isLit {
			continue
		}
		index := lw.globals[global.Name.Lexeme]
		slot := lw.module.Globals[index]
		ptr := lw.b.GlobalPtr(slot.Name, index, slot.Type, lw.registry)
		value := lw.lowerExpr(global.Initializer)
		lw.b.Store(ptr, lw.coerce(value, slot.Type))
	}
	lw.b.Ret(ir.None)
	lw.endFunction()
}

// lowerSynthetic lowers a test or comptime body as a void routine.
func (lw *Lowerer) lowerSynthetic(name string, body *ast.BlockStmt) {
	fn := &ir.Function{Name: name, Return: types.Void}
	lw.beginFunction(fn, types.Void)
	lw.pushScope()
	for _, statement := range body.Statements {
		lw.lowerStmt(statement)
	}
	lw.popScopeNormal()
	lw.implicitReturn()
	lw.endFunction()
}

func (lw *Lowerer) beginFunction(fn *ir.Function, ret types.TypeID) {
	lw.fn = fn
	lw.b = ir.NewBuilder(fn)
	lw.scope = &scope{names: make(map[string]*binding)}
	lw.loops = nil
	lw.tryStack = nil
	lw.currentReturn = ret
	lw.module.Functions = append(lw.module.Functions, fn)
}

func (lw *Lowerer) endFunction() {
	// lower lambdas captured while lowering this function; they append
	// themselves to the module after their host, including lambdas nested
	// inside lambdas
	for len(lw.pending) > 0 {
		queue := lw.pending
		lw.pending = nil
		for _, p := range queue {
			lw.lowerLambdaBody(p)
		}
	}
}

// lowerFunction lowers one source function or impl method. Methods take the
// receiver as a hidden leading `self` parameter, passed as a pointer.
func (lw *Lowerer) lowerFunction(name string, decl *ast.FunctionDecl, receiver types.TypeID, exported bool) {
	ret := types.Void
	if decl.ReturnType != nil {
		if resolved := lw.chk.ResolvedType(decl.ReturnType); resolved != types.Invalid {
			ret = resolved
		}
	}

	fn := &ir.Function{Name: name, Return: ret, IsExported: exported}
	lw.beginFunction(fn, ret)

	if receiver != types.Invalid {
		selfType := lw.registry.PointerTo(receiver)
		value := fn.NewValue(selfType)
		fn.Params = append(fn.Params, ir.Param{Name: "self", Val: value})
		lw.bindDirect("self", value, selfType)
	}
	for _, p := range decl.Parameters {
		paramType := lw.chk.ResolvedType(p.Type)
		if paramType == types.Invalid {
			paramType = types.I64
		}
		value := fn.NewValue(paramType)
		fn.Params = append(fn.Params, ir.Param{Name: p.Name.Lexeme, Val: value})
		// parameters are mutable: spill into a stack slot
		slot := lw.b.Alloca(paramType, lw.registry)
		lw.b.Store(slot, value)
		lw.bindSlot(p.Name.Lexeme, slot, paramType)
	}

	lw.pushScope()
	for _, statement := range decl.Body.Statements {
		lw.lowerStmt(statement)
	}
	lw.popScopeNormal()
	lw.implicitReturn()
	lw.endFunction()
}

// implicitReturn terminates a fall-through function end. Void functions
// return; value functions return the zero value of their return type.
func (lw *Lowerer) implicitReturn() {
	if lw.b.Terminated() {
		return
	}
	if lw.currentReturn == types.Void {
		lw.b.Ret(ir.None)
		return
	}
	lw.b.Ret(lw.zeroValue(lw.currentReturn))
}

func (lw *Lowerer) zeroValue(t types.TypeID) ir.Value {
	switch {
	case lw.registry.IsInteger(t):
		return lw.b.IConst(0, t)
	case lw.registry.IsFloat(t):
		return lw.b.FConst(0, t)
	case t == types.Bool:
		return lw.b.BConst(false)
	case t == types.String:
		return lw.b.SConst("")
	}
	return lw.b.NullConst(t)
}

// --- scopes and defers ---

func (lw *Lowerer) pushScope() {
	lw.scope = &scope{parent: lw.scope, names: make(map[string]*binding)}
}

// popScopeNormal emits the scope's deferred expressions in LIFO order on
// the fall-through edge, then drops the scope.
func (lw *Lowerer) popScopeNormal() {
	if !lw.b.Terminated() {
		lw.emitDefersFor(lw.scope)
	}
	lw.scope = lw.scope.parent
}

func (lw *Lowerer) emitDefersFor(s *scope) {
	for i := len(s.defers) - 1; i >= 0; i-- {
		lw.lowerExpr(s.defers[i])
	}
}

// emitDefersThrough drains the defers of every scope from the innermost out
// to stop (exclusive); pass nil to drain the whole function, as return
// edges do.
func (lw *Lowerer) emitDefersThrough(stop *scope) {
	for s := lw.scope; s != nil && s != stop; s = s.parent {
		lw.emitDefersFor(s)
	}
}

// emitHandlerClears pops, via clear_handler, every active handler whose try
// statement sits between the current scope and stop; a break, continue or
// return that jumps past a try body must not leave its handler installed.
func (lw *Lowerer) emitHandlerClears(stop *scope) {
	for i := len(lw.tryStack) - 1; i >= 0; i-- {
		entry := lw.tryStack[i]
		for s := lw.scope; s != stop && s != nil; s = s.parent {
			if s == entry {
				lw.b.ClearHandler()
				break
			}
		}
	}
}

// innermostHandlerScope returns the scope boundary of the innermost active
// try, or nil when a throw propagates out of the function.
func (lw *Lowerer) innermostHandlerScope() *scope {
	if len(lw.tryStack) == 0 {
		return nil
	}
	return lw.tryStack[len(lw.tryStack)-1]
}

func (lw *Lowerer) bindSlot(name string, slot ir.Value, t types.TypeID) {
	lw.scope.names[name] = &binding{ptr: slot, typ: t}
}

func (lw *Lowerer) bindDirect(name string, value ir.Value, t types.TypeID) {
	lw.scope.names[name] = &binding{direct: value, typ: t, isDirect: true}
}

func (lw *Lowerer) resolve(name string) *binding {
	for s := lw.scope; s != nil; s = s.parent {
		if b, ok := s.names[name]; ok {
			return b
		}
	}
	return nil
}

// --- statements ---

func (lw *Lowerer) lowerStmt(statement ast.Statement) {
	if lw.b.Terminated() {
		// unreachable code after return/break/throw is dropped
		return
	}
	lw.b.SetLine(statement.Tok().Line)

	switch s := statement.(type) {
	case *ast.VarStmt:
		lw.lowerVarStmt(s)

	case *ast.ExpressionStmt:
		lw.lowerExpr(s.Expression)

	case *ast.ReturnStmt:
		var value ir.Value
		if s.Value != nil {
			value = lw.coerce(lw.lowerExpr(s.Value), lw.currentReturn)
		}
		lw.emitDefersThrough(nil)
		lw.emitHandlerClears(nil)
		lw.b.Ret(value)

	case *ast.IfStmt:
		lw.lowerIf(s)

	case *ast.WhileStmt:
		lw.lowerWhile(s)

	case *ast.ForStmt:
		lw.lowerFor(s)

	case *ast.BlockStmt:
		lw.pushScope()
		for _, inner := range s.Statements {
			lw.lowerStmt(inner)
		}
		lw.popScopeNormal()

	case *ast.LoopStmt:
		lw.lowerLoop(s)

	case *ast.BreakStmt:
		if len(lw.loops) == 0 {
			return
		}
		loop := lw.loops[len(lw.loops)-1]
		lw.emitDefersThrough(loop.entryScope)
		lw.emitHandlerClears(loop.entryScope)
		lw.b.Jump(loop.breakTarget)

	case *ast.ContinueStmt:
		if len(lw.loops) == 0 {
			return
		}
		loop := lw.loops[len(lw.loops)-1]
		lw.emitDefersThrough(loop.entryScope)
		lw.emitHandlerClears(loop.entryScope)
		lw.b.Jump(loop.continueTarget)

	case *ast.DeferStmt:
		lw.scope.defers = append(lw.scope.defers, s.Expression)

	case *ast.TryStmt:
		lw.lowerTry(s)

	case *ast.ThrowStmt:
		// unwind only to the innermost active handler; the runtime pops the
		// handler when it dispatches. Without one, the throw leaves the
		// frame and the emitter releases its heap locals.
		value := lw.lowerExpr(s.Value)
		lw.emitDefersThrough(lw.innermostHandlerScope())
		lw.b.Throw(value, len(lw.tryStack) == 0)

	case *ast.SwitchStmt:
		lw.lowerSwitch(s)

	default:
		lw.errorAt(statement.Tok(), "unsupported construct in lowering: %T", statement)
	}
}

func (lw *Lowerer) lowerVarStmt(s *ast.VarStmt) {
	varType := lw.typeOf(s.Initializer)
	if s.Initializer == nil || varType == types.Invalid {
		varType = types.I64
	}
	if s.Type != nil {
		if resolved := lw.chk.ResolvedType(s.Type); resolved != types.Invalid {
			varType = resolved
		}
	}

	slot := lw.b.Alloca(varType, lw.registry)
	lw.bindSlot(s.Name.Lexeme, slot, varType)

	if s.Initializer == nil {
		lw.b.Store(slot, lw.zeroValue(varType))
		return
	}

	// direct-alias: a struct literal initializer writes its fields straight
	// into the variable's slot instead of going through a temporary
	if init, isStruct := s.Initializer.(*ast.StructInit); isStruct && !init.OnHeap {
		lw.lowerStructInitInto(slot, init)
		return
	}

	value := lw.coerce(lw.lowerExpr(s.Initializer), varType)
	lw.b.Store(slot, value)
}

func (lw *Lowerer) lowerIf(s *ast.IfStmt) {
	cond := lw.lowerExpr(s.Condition)
	thenBlk := lw.fn.NewBlock("then")
	exitBlk := lw.fn.NewBlock("endif")
	elseBlk := exitBlk
	if s.Else != nil {
		elseBlk = lw.fn.NewBlock("else")
	}

	lw.b.BrIf(cond, thenBlk, elseBlk)

	lw.b.SetBlock(thenBlk)
	lw.pushScope()
	lw.lowerStmt(s.Then)
	lw.popScopeNormal()
	lw.b.Jump(exitBlk)

	if s.Else != nil {
		lw.b.SetBlock(elseBlk)
		lw.pushScope()
		lw.lowerStmt(s.Else)
		lw.popScopeNormal()
		lw.b.Jump(exitBlk)
	}

	lw.b.SetBlock(exitBlk)
}

func (lw *Lowerer) lowerWhile(s *ast.WhileStmt) {
	headerBlk := lw.fn.NewBlock("while.head")
	bodyBlk := lw.fn.NewBlock("while.body")
	exitBlk := lw.fn.NewBlock("while.exit")

	lw.b.Jump(headerBlk)
	lw.b.SetBlock(headerBlk)
	cond := lw.lowerExpr(s.Condition)
	lw.b.BrIf(cond, bodyBlk, exitBlk)

	lw.b.SetBlock(bodyBlk)
	lw.pushScope()
	lw.loops = append(lw.loops, loopContext{
		continueTarget: headerBlk,
		breakTarget:    exitBlk,
		entryScope:     lw.scope.parent,
	})
	lw.lowerStmt(s.Body)
	lw.loops = lw.loops[:len(lw.loops)-1]
	lw.popScopeNormal()
	lw.b.Jump(headerBlk)

	lw.b.SetBlock(exitBlk)
}

func (lw *Lowerer) lowerLoop(s *ast.LoopStmt) {
	bodyBlk := lw.fn.NewBlock("loop.body")
	exitBlk := lw.fn.NewBlock("loop.exit")

	lw.b.Jump(bodyBlk)
	lw.b.SetBlock(bodyBlk)
	lw.pushScope()
	lw.loops = append(lw.loops, loopContext{
		continueTarget: bodyBlk,
		breakTarget:    exitBlk,
		entryScope:     lw.scope.parent,
	})
	lw.lowerStmt(s.Body)
	lw.loops = lw.loops[:len(lw.loops)-1]
	lw.popScopeNormal()
	lw.b.Jump(bodyBlk)

	lw.b.SetBlock(exitBlk)
}

// lowerFor handles both range loops and collection loops.
//
// A range loop `for i in a..b` places a phi for the induction variable at
// the loop header, with incoming edges (entry, start) and (latch, next).
// The loop bound is phi'd as well, self-referencing on the back edge, which
// expresses its loop invariance.
func (lw *Lowerer) lowerFor(s *ast.ForStmt) {
	if rangeExpr, isRange := s.Iterable.(*ast.Range); isRange {
		lw.lowerForRange(s, rangeExpr)
		return
	}
	lw.lowerForCollection(s)
}

func (lw *Lowerer) lowerForRange(s *ast.ForStmt, rangeExpr *ast.Range) {
	start := lw.coerce(lw.lowerExpr(rangeExpr.Start), types.I64)
	end := lw.coerce(lw.lowerExpr(rangeExpr.End), types.I64)
	// the phi's first incoming edge is whatever block finished computing
	// the bounds
	entryBlk := lw.b.Block()

	headerBlk := lw.fn.NewBlock("for.head")
	bodyBlk := lw.fn.NewBlock("for.body")
	latchBlk := lw.fn.NewBlock("for.latch")
	exitBlk := lw.fn.NewBlock("for.exit")

	lw.b.Jump(headerBlk)

	lw.b.SetBlock(headerBlk)
	indPhi := lw.b.NewPhi(headerBlk, types.I64)
	boundPhi := lw.b.NewPhi(headerBlk, types.I64)

	cond := ir.CondLT
	if rangeExpr.Inclusive {
		cond = ir.CondLE
	}
	check := lw.b.ICmp(cond, indPhi.Result, boundPhi.Result)
	lw.b.BrIf(check, bodyBlk, exitBlk)

	lw.b.SetBlock(bodyBlk)
	lw.pushScope()
	lw.bindDirect(s.Variable.Lexeme, indPhi.Result, types.I64)
	lw.loops = append(lw.loops, loopContext{
		continueTarget: latchBlk,
		breakTarget:    exitBlk,
		entryScope:     lw.scope.parent,
	})
	lw.lowerStmt(s.Body)
	lw.loops = lw.loops[:len(lw.loops)-1]
	lw.popScopeNormal()
	lw.b.Jump(latchBlk)

	lw.b.SetBlock(latchBlk)
	one := lw.b.IConst(1, types.I64)
	next := lw.b.Binary(ir.OpIAdd, indPhi.Result, one, types.I64)
	lw.b.Jump(headerBlk)

	indPhi.Incoming = []ir.PhiIncoming{
		{Pred: entryBlk, Val: start},
		{Pred: latchBlk, Val: next},
	}
	boundPhi.Incoming = []ir.PhiIncoming{
		{Pred: entryBlk, Val: end},
		{Pred: latchBlk, Val: boundPhi.Result},
	}

	lw.b.SetBlock(exitBlk)
}

func (lw *Lowerer) lowerForCollection(s *ast.ForStmt) {
	iterType := lw.typeOf(s.Iterable)
	iterDesc := lw.registry.Get(iterType)

	collection := lw.lowerExpr(s.Iterable)

	var length ir.Value
	var elemType types.TypeID
	var loadElem func(index ir.Value) ir.Value

	switch {
	case iterType == types.String:
		length = lw.b.Unary(ir.OpStrLen, collection, types.I64)
		elemType = types.I64
		loadElem = func(index ir.Value) ir.Value {
			return lw.b.Binary(ir.OpStrIndex, collection, index, types.I64)
		}
	case iterDesc.Kind == types.KindSlice || iterDesc.Kind == types.KindArray:
		length = lw.b.Unary(ir.OpArrayLen, collection, types.I64)
		elemType = iterDesc.Element
		loadElem = func(index ir.Value) ir.Value {
			return lw.b.Binary(ir.OpArrayLoad, collection, index, elemType)
		}
	case iterDesc.Kind == types.KindGenericInstance:
		length = lw.b.Unary(ir.OpListLen, collection, types.I64)
		elemType = iterDesc.Args[0]
		loadElem = func(index ir.Value) ir.Value {
			return lw.b.Binary(ir.OpListGet, collection, index, elemType)
		}
	default:
		lw.errorAt(s.Token, "unsupported iterable in lowering: %s", lw.registry.String(iterType))
		return
	}

	entryBlk := lw.b.Block()
	zero := lw.b.IConst(0, types.I64)

	headerBlk := lw.fn.NewBlock("for.head")
	bodyBlk := lw.fn.NewBlock("for.body")
	latchBlk := lw.fn.NewBlock("for.latch")
	exitBlk := lw.fn.NewBlock("for.exit")

	lw.b.Jump(headerBlk)

	lw.b.SetBlock(headerBlk)
	indPhi := lw.b.NewPhi(headerBlk, types.I64)
	check := lw.b.ICmp(ir.CondLT, indPhi.Result, length)
	lw.b.BrIf(check, bodyBlk, exitBlk)

	lw.b.SetBlock(bodyBlk)
	element := loadElem(indPhi.Result)
	lw.pushScope()
	lw.bindDirect(s.Variable.Lexeme, element, elemType)
	lw.loops = append(lw.loops, loopContext{
		continueTarget: latchBlk,
		breakTarget:    exitBlk,
		entryScope:     lw.scope.parent,
	})
	lw.lowerStmt(s.Body)
	lw.loops = lw.loops[:len(lw.loops)-1]
	lw.popScopeNormal()
	lw.b.Jump(latchBlk)

	lw.b.SetBlock(latchBlk)
	one := lw.b.IConst(1, types.I64)
	next := lw.b.Binary(ir.OpIAdd, indPhi.Result, one, types.I64)
	lw.b.Jump(headerBlk)

	indPhi.Incoming = []ir.PhiIncoming{
		{Pred: entryBlk, Val: zero},
		{Pred: latchBlk, Val: next},
	}

	lw.b.SetBlock(exitBlk)
}

// lowerTry wires the handler stack: set_handler before the body,
// clear_handler at the end of the body, and a jump over the catch block.
// The catch block binds the thrown value, fetched from the runtime.
func (lw *Lowerer) lowerTry(s *ast.TryStmt) {
	catchBlk := lw.fn.NewBlock("catch")
	afterBlk := lw.fn.NewBlock("try.exit")

	entryScope := lw.scope
	lw.b.SetHandler(catchBlk)
	lw.tryStack = append(lw.tryStack, entryScope)
	lw.pushScope()
	lw.lowerStmt(s.Body)
	lw.popScopeNormal()
	lw.tryStack = lw.tryStack[:len(lw.tryStack)-1]
	if !lw.b.Terminated() {
		lw.b.ClearHandler()
		lw.b.Jump(afterBlk)
	}

	lw.b.SetBlock(catchBlk)
	caught := lw.b.Call("caught_error", true, nil, types.String)
	lw.pushScope()
	lw.bindDirect(s.ErrName.Lexeme, caught, types.String)
	lw.lowerStmt(s.Catch)
	lw.popScopeNormal()
	lw.b.Jump(afterBlk)

	lw.b.SetBlock(afterBlk)
}

// lowerSwitch emits a tag dispatch for enum subjects and a comparison chain
// for literal subjects.
func (lw *Lowerer) lowerSwitch(s *ast.SwitchStmt) {
	subjectType := lw.typeOf(s.Subject)
	subject := lw.lowerExpr(s.Subject)
	desc := lw.registry.Get(subjectType)

	if desc.Kind == types.KindEnum {
		lw.lowerEnumSwitch(s, subject, desc)
		return
	}
	lw.lowerLiteralSwitch(s, subject, subjectType)
}

// lowerEnumSwitch emits variant_get_tag, a br_table on the tag, and inside
// each arm variant_get_payload for every pattern binding.
func (lw *Lowerer) lowerEnumSwitch(s *ast.SwitchStmt, subject ir.Value, desc *types.Descriptor) {
	exitBlk := lw.fn.NewBlock("switch.exit")
	defaultBlk := exitBlk

	type armInfo struct {
		block   *ir.Block
		body    ast.Statement
		pattern *ast.VariantPattern
	}
	arms := []armInfo{}
	armByVariant := map[string]*ir.Block{}

	for i := range s.Arms {
		arm := &s.Arms[i]
		switch p := arm.Pattern.(type) {
		case ast.VariantPattern:
			block := lw.fn.NewBlock("case." + p.Variant.Lexeme)
			arms = append(arms, armInfo{block: block, body: arm.Body, pattern: &p})
			armByVariant[p.Variant.Lexeme] = block
		case ast.WildcardPattern:
			block := lw.fn.NewBlock("case.default")
			arms = append(arms, armInfo{block: block, body: arm.Body})
			defaultBlk = block
		}
	}

	tag := lw.b.Unary(ir.OpVariantGetTag, subject, types.I64)
	table := make([]*ir.Block, len(desc.Variants))
	for i, v := range desc.Variants {
		if block, ok := armByVariant[v.Name]; ok {
			table[i] = block
		} else {
			table[i] = defaultBlk
		}
	}
	lw.b.BrTable(tag, table, defaultBlk)

	for _, arm := range arms {
		lw.b.SetBlock(arm.block)
		lw.pushScope()
		if arm.pattern != nil {
			var variant *types.VariantDesc
			for i := range desc.Variants {
				if desc.Variants[i].Name == arm.pattern.Variant.Lexeme {
					variant = &desc.Variants[i]
					break
				}
			}
			if variant != nil {
				for slot, bindingTok := range arm.pattern.Bindings {
					if slot >= len(variant.Payload) {
						break
					}
					payload := lw.b.VariantPayload(subject, slot, variant.Payload[slot])
					lw.bindDirect(bindingTok.Lexeme, payload, variant.Payload[slot])
				}
			}
		}
		lw.lowerStmt(arm.body)
		lw.popScopeNormal()
		lw.b.Jump(exitBlk)
	}

	lw.b.SetBlock(exitBlk)
}

// lowerLiteralSwitch compares the subject against each literal arm in
// order, falling through to the wildcard arm.
func (lw *Lowerer) lowerLiteralSwitch(s *ast.SwitchStmt, subject ir.Value, subjectType types.TypeID) {
	exitBlk := lw.fn.NewBlock("switch.exit")

	var wildcardBody ast.Statement
	for i := range s.Arms {
		arm := &s.Arms[i]
		literal, isLiteral := arm.Pattern.(ast.LiteralPattern)
		if !isLiteral {
			if _, isWildcard := arm.Pattern.(ast.WildcardPattern); isWildcard {
				wildcardBody = arm.Body
			}
			continue
		}

		matchBlk := lw.fn.NewBlock("case")
		nextBlk := lw.fn.NewBlock("case.next")

		var cond ir.Value
		switch v := literal.Value.Value.(type) {
		case int64:
			cond = lw.b.ICmp(ir.CondEQ, subject, lw.b.IConst(v, subjectType))
		case bool:
			cond = lw.b.ICmp(ir.CondEQ, subject, lw.b.BConst(v))
		case float64:
			cond = lw.b.FCmp(ir.CondEQ, subject, lw.b.FConst(v, subjectType))
		case string:
			compared := lw.b.Binary(ir.OpStrCompare, subject, lw.b.SConst(v), types.I64)
			cond = lw.b.ICmp(ir.CondEQ, compared, lw.b.IConst(0, types.I64))
		default:
			cond = lw.b.BConst(false)
		}
		lw.b.BrIf(cond, matchBlk, nextBlk)

		lw.b.SetBlock(matchBlk)
		lw.pushScope()
		lw.lowerStmt(arm.Body)
		lw.popScopeNormal()
		lw.b.Jump(exitBlk)

		lw.b.SetBlock(nextBlk)
	}

	if wildcardBody != nil {
		lw.pushScope()
		lw.lowerStmt(wildcardBody)
		lw.popScopeNormal()
	}
	lw.b.Jump(exitBlk)
	lw.b.SetBlock(exitBlk)
}

// eliminateDeadBlocks removes blocks unreachable from the entry and prunes
// predecessor lists and phi edges that referenced them. Lowering leaves
// such blocks behind joins where both branches returned.
func eliminateDeadBlocks(f *ir.Function) {
	reachable := map[*ir.Block]bool{}
	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		// a set_handler edge keeps its catch block alive
		for _, inst := range b.Instrs {
			if inst.Op == ir.OpSetHandler && inst.Target != nil {
				visit(inst.Target)
			}
		}
	}
	if f.Entry() != nil {
		visit(f.Entry())
	}

	kept := f.Blocks[:0]
	for _, block := range f.Blocks {
		if !reachable[block] {
			continue
		}
		preds := block.Preds[:0]
		for _, p := range block.Preds {
			if reachable[p] {
				preds = append(preds, p)
			}
		}
		block.Preds = preds
		for _, inst := range block.Instrs {
			if inst.Op != ir.OpPhi {
				continue
			}
			incoming := inst.Incoming[:0]
			for _, in := range inst.Incoming {
				if reachable[in.Pred] {
					incoming = append(incoming, in)
				}
			}
			inst.Incoming = incoming
		}
		kept = append(kept, block)
	}
	f.Blocks = kept
}
