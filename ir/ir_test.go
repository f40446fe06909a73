package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot/types"
)

func TestBlockTermination(t *testing.T) {
	registry := types.NewRegistry()
	f := &Function{Name: "f", Return: types.I64}
	b := NewBuilder(f)

	v := b.IConst(42, types.I64)
	require.Error(t, Verify(f), "unterminated block must fail verification")

	b.Ret(v)
	require.NoError(t, Verify(f))

	// emitting past a terminator is a no-op, so blocks keep exactly one
	b.Ret(v)
	assert.Len(t, f.Entry().Instrs, 2)
	_ = registry
}

func TestBranchWiresPredecessors(t *testing.T) {
	f := &Function{Name: "f", Return: types.Void}
	b := NewBuilder(f)

	thenBlk := f.NewBlock("then")
	elseBlk := f.NewBlock("else")
	cond := b.BConst(true)
	b.BrIf(cond, thenBlk, elseBlk)

	assert.Equal(t, []*Block{f.Entry()}, thenBlk.Preds)
	assert.Equal(t, []*Block{f.Entry()}, elseBlk.Preds)
	assert.Equal(t, []*Block{thenBlk, elseBlk}, f.Entry().Successors())
}

func TestPhiPlacementRules(t *testing.T) {
	f := &Function{Name: "f", Return: types.I64}
	b := NewBuilder(f)

	thenBlk := f.NewBlock("then")
	elseBlk := f.NewBlock("else")
	joinBlk := f.NewBlock("join")

	cond := b.BConst(true)
	b.BrIf(cond, thenBlk, elseBlk)

	b.SetBlock(thenBlk)
	one := b.IConst(1, types.I64)
	b.Jump(joinBlk)

	b.SetBlock(elseBlk)
	two := b.IConst(2, types.I64)
	b.Jump(joinBlk)

	b.SetBlock(joinBlk)
	result := b.Phi(joinBlk, types.I64, []PhiIncoming{
		{Pred: thenBlk, Val: one},
		{Pred: elseBlk, Val: two},
	})
	b.Ret(result)

	require.NoError(t, Verify(f))

	// a phi argument block outside the predecessor set must be rejected
	stray := f.NewBlock("stray")
	joinBlk.Instrs[0].Incoming[0].Pred = stray
	err := Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a predecessor")
}

func TestPhiMustBeAtBlockTop(t *testing.T) {
	f := &Function{Name: "f", Return: types.I64}
	b := NewBuilder(f)
	entry := b.Block()

	v := b.IConst(1, types.I64)
	b.Ret(v)

	// manually wedge a phi after the iconst
	phi := &Instruction{Op: OpPhi, Result: f.NewValue(types.I64)}
	entry.Instrs = append(entry.Instrs[:1], append([]*Instruction{phi}, entry.Instrs[1:]...)...)
	err := Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phi after a non-phi")
}

func TestDominanceViolationDetected(t *testing.T) {
	f := &Function{Name: "f", Return: types.I64}
	b := NewBuilder(f)

	thenBlk := f.NewBlock("then")
	joinBlk := f.NewBlock("join")

	cond := b.BConst(false)
	b.BrIf(cond, thenBlk, joinBlk)

	b.SetBlock(thenBlk)
	inner := b.IConst(9, types.I64)
	b.Jump(joinBlk)

	b.SetBlock(joinBlk)
	// `inner` does not dominate the join: thenBlk may be skipped
	b.Ret(inner)

	err := Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dominate")
}

func TestValuesAreMonotonic(t *testing.T) {
	f := &Function{Name: "f", Return: types.Void}
	b := NewBuilder(f)
	a := b.IConst(1, types.I64)
	c := b.IConst(2, types.I64)
	assert.Less(t, a.ID, c.ID)
	assert.Equal(t, int32(2), f.ValueCount())
}

func TestInternerDeduplicates(t *testing.T) {
	in := NewInterner()
	a := in.Intern("hello")
	b := in.Intern("world")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, in.Intern("hello"))
	assert.Equal(t, 2, in.Count())
	assert.Equal(t, "world", in.Lookup(b))
}

func TestPrinterRendersPhi(t *testing.T) {
	registry := types.NewRegistry()
	m := NewModule(registry)
	f := &Function{Name: "pick", Return: types.I64}
	m.Functions = append(m.Functions, f)

	b := NewBuilder(f)
	thenBlk := f.NewBlock("then")
	elseBlk := f.NewBlock("else")
	joinBlk := f.NewBlock("join")
	cond := b.BConst(true)
	b.BrIf(cond, thenBlk, elseBlk)
	b.SetBlock(thenBlk)
	one := b.IConst(1, types.I64)
	b.Jump(joinBlk)
	b.SetBlock(elseBlk)
	two := b.IConst(2, types.I64)
	b.Jump(joinBlk)
	b.SetBlock(joinBlk)
	result := b.Phi(joinBlk, types.I64, []PhiIncoming{{Pred: thenBlk, Val: one}, {Pred: elseBlk, Val: two}})
	b.Ret(result)

	text := Print(m)
	assert.True(t, strings.Contains(text, "phi"), "printer output missing phi: %s", text)
	assert.True(t, strings.Contains(text, "br_if"), "printer output missing br_if: %s", text)
}
