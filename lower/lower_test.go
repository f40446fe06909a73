package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot/checker"
	"cot/diag"
	"cot/ir"
	"cot/lexer"
	"cot/parser"
	"cot/types"
)

func lowerSource(t *testing.T, source string) (*ir.Module, *diag.Bag) {
	t.Helper()
	scanner := lexer.New(source)
	tokens := scanner.Scan()
	require.Empty(t, scanner.Errors())

	p := parser.Make(tokens)
	statements, parseErrors := p.Parse()
	require.Empty(t, parseErrors)

	registry := types.NewRegistry()
	bag := diag.NewBag("test.cot")
	chk := checker.New(registry, bag)
	chk.Check(statements)
	require.False(t, bag.HasErrors(), "checking failed: %v", bag.All())

	module := Lower(statements, chk, registry, bag)
	return module, bag
}

func mustLower(t *testing.T, source string) *ir.Module {
	t.Helper()
	module, bag := lowerSource(t, source)
	require.False(t, bag.HasErrors(), "lowering failed: %v", bag.All())
	return module
}

func findOps(f *ir.Function, op ir.Op) []*ir.Instruction {
	out := []*ir.Instruction{}
	for _, block := range f.Blocks {
		for _, inst := range block.Instrs {
			if inst.Op == op {
				out = append(out, inst)
			}
		}
	}
	return out
}

func TestConstantFoldingBeforeLowering(t *testing.T) {
	module := mustLower(t, "fn main() i64 { return 1 + 2 * 3 }")
	main := module.Function("main")
	require.NotNil(t, main)

	consts := findOps(main, ir.OpIConst)
	require.Len(t, consts, 1, "1 + 2 * 3 should fold to a single constant")
	assert.Equal(t, int64(7), consts[0].IntVal)
	assert.Empty(t, findOps(main, ir.OpIAdd))
	assert.Empty(t, findOps(main, ir.OpIMul))
}

func TestEveryFunctionVerifies(t *testing.T) {
	module := mustLower(t, `
struct Item { name: string, value: i64 }
fn helper(x: i64) i64 { return x * 2 }
fn main() i64 {
	var items = new List<*Item>
	items.push(new Item{ .name = "first", .value = 1 })
	var total = 0
	for i in 0..10 {
		if i % 2 == 0 { total = total + helper(i) }
	}
	return total
}`)
	for _, f := range module.Functions {
		assert.NoError(t, ir.Verify(f), "function %s", f.Name)
	}
}

func TestForRangeLoopHeaderPhis(t *testing.T) {
	module := mustLower(t, `
fn main() i64 {
	var total = 0
	for i in 0..10 { total = total + i }
	return total
}`)
	main := module.Function("main")
	phis := findOps(main, ir.OpPhi)
	require.Len(t, phis, 2, "range loop carries an induction phi and a bound phi")

	induction, bound := phis[0], phis[1]
	require.Len(t, induction.Incoming, 2)
	require.Len(t, bound.Incoming, 2)

	// the bound phi is self-referential on the back edge, expressing loop
	// invariance
	selfReferential := bound.Incoming[0].Val.ID == bound.Result.ID ||
		bound.Incoming[1].Val.ID == bound.Result.ID
	assert.True(t, selfReferential, "bound phi must reference itself on the latch edge")
}

func TestShortCircuitDiamond(t *testing.T) {
	module := mustLower(t, `
fn check(a: bool, b: bool) bool { return a && b }
fn either(a: bool, b: bool) bool { return a || b }`)

	for _, name := range []string{"check", "either"} {
		f := module.Function(name)
		phis := findOps(f, ir.OpPhi)
		require.Len(t, phis, 1, "%s needs a join phi", name)
		assert.Equal(t, types.Bool, phis[0].Result.Type)
		assert.Len(t, phis[0].Incoming, 2)
	}
}

func TestDeferLIFOOrder(t *testing.T) {
	module := mustLower(t, `
fn first() { return }
fn second() { return }
fn main() i64 {
	defer first()
	defer second()
	return 0
}`)
	main := module.Function("main")

	order := []string{}
	for _, block := range main.Blocks {
		for _, inst := range block.Instrs {
			if inst.Op == ir.OpCall && !inst.Builtin {
				order = append(order, inst.Callee)
			}
		}
	}
	require.Equal(t, []string{"second", "first"}, order, "defers must run LIFO")
}

func TestDeferRunsOnEveryExitPath(t *testing.T) {
	module := mustLower(t, `
fn cleanup() { return }
fn main() i64 {
	defer cleanup()
	if true { return 1 }
	return 2
}`)
	main := module.Function("main")
	calls := findOps(main, ir.OpCall)
	cleanups := 0
	for _, call := range calls {
		if call.Callee == "cleanup" {
			cleanups++
		}
	}
	assert.Equal(t, 2, cleanups, "each return edge drains the defer stack")
}

func TestTryCatchHandlerOps(t *testing.T) {
	module := mustLower(t, `
fn main() i64 {
	try { throw "boom" } catch (e) { println(e) }
	return 0
}`)
	main := module.Function("main")
	assert.Len(t, findOps(main, ir.OpSetHandler), 1)
	assert.Len(t, findOps(main, ir.OpThrow), 1)
	// the throw path skips clear_handler; it appears on the normal path
	// only when the body can fall through, which this one cannot
	handlers := findOps(main, ir.OpSetHandler)
	assert.NotNil(t, handlers[0].Target)
}

func TestThrowPropagationFlag(t *testing.T) {
	module := mustLower(t, `
fn caught() i64 {
	try { throw "boom" } catch (e) { println(e) }
	return 0
}
fn propagating() i64 {
	throw "boom"
	return 0
}`)

	throws := findOps(module.Function("caught"), ir.OpThrow)
	require.Len(t, throws, 1)
	assert.False(t, throws[0].BoolVal, "a throw under a handler stays in the frame")

	throws = findOps(module.Function("propagating"), ir.OpThrow)
	require.Len(t, throws, 1)
	assert.True(t, throws[0].BoolVal, "an unhandled throw exits the frame")
}

func TestEnumSwitchLowersToBrTable(t *testing.T) {
	module := mustLower(t, `
enum Shape { Point, Circle(f64), Rect(f64, f64) }
fn classify(s: Shape) i64 {
	switch s {
		Shape::Point => { return 0 }
		Shape::Circle(r) => { return 1 }
		_ => { return 2 }
	}
	return 3
}`)
	f := module.Function("classify")
	tags := findOps(f, ir.OpVariantGetTag)
	require.Len(t, tags, 1)
	tables := findOps(f, ir.OpBrTable)
	require.Len(t, tables, 1)
	assert.Len(t, tables[0].Table, 3, "one table entry per variant")
	payloads := findOps(f, ir.OpVariantGetPayload)
	assert.Len(t, payloads, 1, "only the Circle arm binds a payload")
}

func TestStructDirectAlias(t *testing.T) {
	module := mustLower(t, `
struct Foo { name: string, field_name: string }
fn main() i64 {
	var f = Foo{ .name = "n", .field_name = "fn" }
	println(f.name)
	println(f.field_name)
	return 0
}`)
	main := module.Function("main")
	// the literal writes through the variable's own slot: one alloca, no
	// temporary copy
	allocas := findOps(main, ir.OpAlloca)
	require.Len(t, allocas, 1)
	fieldPtrs := findOps(main, ir.OpFieldPtr)
	assert.Len(t, fieldPtrs, 4, "two initialising stores, two reads")
}

func TestLambdaCapture(t *testing.T) {
	module := mustLower(t, `
fn main() i64 {
	var base = 10
	var add = fn(x: i64) i64 => x + base
	return add(5)
}`)
	main := module.Function("main")
	closures := findOps(main, ir.OpMakeClosure)
	require.Len(t, closures, 1)
	assert.Equal(t, "lambda.0", closures[0].Callee)

	lambda := module.Function("lambda.0")
	require.NotNil(t, lambda, "lambda body becomes a module function")
	assert.True(t, lambda.IsLambda)
	require.GreaterOrEqual(t, len(lambda.Params), 1)
	assert.Equal(t, "env", lambda.Params[0].Name)
	assert.NoError(t, ir.Verify(lambda))
}

func TestGlobalsAndInit(t *testing.T) {
	module := mustLower(t, `
var counter = 0
var greeting = "hi" + "!"
fn main() i64 { counter = counter + 1; return counter }`)

	require.Len(t, module.Globals, 2)
	assert.Equal(t, "counter", module.Globals[0].Name)
	assert.Equal(t, int64(0), module.Globals[0].Init)

	// the folded string literal is constant, so no __init is needed for
	// it; folding turned "hi" + "!" into a literal
	assert.Nil(t, module.Function("__init"))
	main := module.Function("main")
	assert.NotEmpty(t, findOps(main, ir.OpGlobalPtr))
}

func TestOptionalLowering(t *testing.T) {
	module := mustLower(t, `
struct Node { value: i64 }
fn read(maybe: ?*Node) i64 {
	if maybe == null { return 0 }
	var node: *Node = maybe
	return node.value
}`)
	f := module.Function("read")
	assert.Len(t, findOps(f, ir.OpIsNull), 1)
	assert.Len(t, findOps(f, ir.OpUnwrapOptional), 1, "?*T to *T coercion unwraps")
}

func TestInterpolatedStringLowering(t *testing.T) {
	module := mustLower(t, `
fn main() i64 {
	var n = 3
	println("count: ${n} items")
	return 0
}`)
	main := module.Function("main")
	concats := findOps(main, ir.OpStrConcat)
	assert.Len(t, concats, 2, "three parts concatenate pairwise")
}

func TestTestAndComptimeBlocksBecomeRoutines(t *testing.T) {
	module := mustLower(t, `
fn main() i64 { return 0 }
test "math works" { var x = 1 + 1 }
comptime { var y = 2 }`)
	assert.NotNil(t, module.Function("test.math works"))
	found := false
	for _, f := range module.Functions {
		if len(f.Name) > 9 && f.Name[:9] == "comptime." {
			found = true
		}
	}
	assert.True(t, found, "comptime block lowers to a routine")
}

func TestDeadBlockElimination(t *testing.T) {
	module := mustLower(t, `
fn main() i64 {
	loop {
		return 1
	}
}`)
	main := module.Function("main")
	for _, block := range main.Blocks {
		assert.NotNil(t, block.Terminator(), "unreachable unterminated blocks must be swept")
	}
}
