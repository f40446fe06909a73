package compiler

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"cot/ir"
	"cot/types"
)

// Emitter flattens an IR module into a bytecode image. Emission panics on
// invariant violations and the panic is converted into an internal compiler
// error carrying the IR dump, since any such failure is a compiler bug
// rather than a user error.
type Emitter struct {
	module *ir.Module
	image  *Image
}

type emitPanic struct {
	err error
}

func (e *Emitter) fail(format string, args ...any) {
	panic(emitPanic{errors.Errorf(format, args...)})
}

// Emit compiles the module into a bytecode image.
func Emit(module *ir.Module) (img *Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(emitPanic)
			if !ok {
				panic(r)
			}
			err = errors.Wrapf(p.err, "internal compiler error; IR dump:\n%s", ir.Print(module))
		}
	}()

	e := &Emitter{module: module, image: NewImage()}

	for _, f := range module.Functions {
		eliminatePhis(f)
	}
	for _, f := range module.Functions {
		e.emitFunction(f)
	}

	for index, f := range module.Functions {
		if f.IsExported {
			e.image.Exports = append(e.image.Exports, Export{
				NameConst:  e.image.InternIdent(f.Name),
				RoutineIdx: uint32(index),
			})
		}
	}

	e.finalChecks()
	return e.image, nil
}

// finalChecks verifies the routine table at the end of emission: no routine
// is empty and none extends past the code section. Jump resolution and
// fall-through are checked per function while it is emitted.
func (e *Emitter) finalChecks() {
	for _, r := range e.image.Routines {
		if r.CodeLength == 0 {
			e.fail("routine %s is empty", r.Name)
		}
		if r.CodeOffset+r.CodeLength > uint32(len(e.image.Code)) {
			e.fail("routine %s extends past the code section", r.Name)
		}
	}
}

// --- phi elimination ---

// eliminatePhis rewrites phi nodes into explicit mov instructions at the
// end of each predecessor block, splitting critical edges so the copies
// execute on exactly one edge. Each phi then owns a frame slot written by
// its predecessors' movs.
func eliminatePhis(f *ir.Function) {
	// split critical edges feeding phi blocks
	for _, block := range append([]*ir.Block{}, f.Blocks...) {
		if countPhis(block) == 0 || len(block.Preds) < 2 {
			continue
		}
		for pi, pred := range append([]*ir.Block{}, block.Preds...) {
			if len(pred.Successors()) < 2 {
				continue
			}
			edge := f.NewBlock("edge")
			term := &ir.Instruction{Op: ir.OpJump, Target: block}
			edge.Instrs = []*ir.Instruction{term}
			edge.Preds = []*ir.Block{pred}

			retargetTerminator(pred.Terminator(), block, edge)
			block.Preds[pi] = edge
			for _, inst := range block.Instrs {
				if inst.Op != ir.OpPhi {
					continue
				}
				for i := range inst.Incoming {
					if inst.Incoming[i].Pred == pred {
						inst.Incoming[i].Pred = edge
					}
				}
			}
		}
	}

	// lower the phis into predecessor movs
	for _, block := range f.Blocks {
		phis := []*ir.Instruction{}
		rest := block.Instrs[:0]
		for _, inst := range block.Instrs {
			if inst.Op == ir.OpPhi {
				phis = append(phis, inst)
			} else {
				rest = append(rest, inst)
			}
		}
		if len(phis) == 0 {
			continue
		}
		block.Instrs = rest

		phiIDs := map[int32]bool{}
		for _, phi := range phis {
			phiIDs[phi.Result.ID] = true
		}

		for _, phi := range phis {
			for _, in := range phi.Incoming {
				source := in.Val
				// the lost-copy hazard: when one phi's incoming value is
				// another phi of the same block, its slot may already have
				// been overwritten by an earlier mov on this edge; route
				// the read through a temporary
				if phiIDs[source.ID] && source.ID != phi.Result.ID {
					tmp := f.NewValue(source.Type)
					readMov := &ir.Instruction{Op: ir.OpMov, Result: tmp, Args: []ir.Value{source}}
					insertBeforeTerminator(in.Pred, readMov)
					source = tmp
				}
				mov := &ir.Instruction{Op: ir.OpMov, Result: phi.Result, Args: []ir.Value{source}}
				insertBeforeTerminator(in.Pred, mov)
			}
		}
	}
}

func countPhis(block *ir.Block) int {
	n := 0
	for _, inst := range block.Instrs {
		if inst.Op == ir.OpPhi {
			n++
		}
	}
	return n
}

func retargetTerminator(term *ir.Instruction, from, to *ir.Block) {
	if term.Target == from {
		term.Target = to
	}
	if term.Else == from {
		term.Else = to
	}
	for i := range term.Table {
		if term.Table[i] == from {
			term.Table[i] = to
		}
	}
	if term.Default == from {
		term.Default = to
	}
}

func insertBeforeTerminator(block *ir.Block, inst *ir.Instruction) {
	at := len(block.Instrs) - 1
	block.Instrs = append(block.Instrs, nil)
	copy(block.Instrs[at+1:], block.Instrs[at:])
	block.Instrs[at] = inst
}

// --- per-function emission ---

type pendingJump struct {
	patchAt int // offset of the i16 placeholder within the function's code
	base    int // offset the displacement is relative to
	target  *ir.Block
}

type functionEmitter struct {
	em *Emitter
	fn *ir.Function

	code      []byte
	alloc     *Allocator
	slotCount int

	heapSlots []int // alloca slots holding refcounted values

	blockOffsets map[*ir.Block]int
	pending      []pendingJump

	lastLine int32
	lastOp   Opcode
	position int
}

func (e *Emitter) emitFunction(f *ir.Function) {
	fe := &functionEmitter{
		em:           e,
		fn:           f,
		blockOffsets: make(map[*ir.Block]int),
		lastLine:     -1,
	}
	fe.alloc = NewAllocator(&fe.slotCount,
		func(reg, slot int) { fe.raw(OP_STORE_LOCAL, packRegs(reg, 0), slot) },
		func(reg, slot int) { fe.raw(OP_LOAD_LOCAL, packRegs(reg, 0), slot) },
	)

	// use-distance pass: walk the linearized function backward building
	// each value's sorted list of upcoming uses
	linear := []*ir.Instruction{}
	for _, block := range f.Blocks {
		linear = append(linear, block.Instrs...)
	}
	for i := len(linear) - 1; i >= 0; i-- {
		for _, arg := range linear[i].Args {
			if arg.Valid() {
				fe.alloc.RecordUse(arg.ID, i)
			}
		}
	}
	fe.alloc.SortUses()

	// arguments arrive in r0..r14; anything beyond lands in the leading
	// frame slots
	for i, p := range f.Params {
		if i < MaxRegisterArgs {
			fe.alloc.PreassignReg(p.Val.ID, i)
		} else {
			fe.alloc.PreassignSlot(p.Val.ID, fe.slotCount)
			fe.slotCount++
		}
	}

	for bi, block := range f.Blocks {
		fe.blockOffsets[block] = len(fe.code)
		if bi > 0 {
			// control reaches later blocks by jump, so the register file's
			// contents are unknown; the entry block keeps the argument
			// registers
			fe.alloc.Reset()
		}
		for _, inst := range block.Instrs {
			fe.emitInst(inst)
			fe.position++
		}
	}

	fe.patchJumps()
	fe.checkTermination()

	image := e.image
	offset := uint32(len(image.Code))
	image.Code = append(image.Code, fe.code...)

	if fe.slotCount > 0xFFFF {
		e.fail("function %s needs %d frame slots", f.Name, fe.slotCount)
	}
	flags := uint8(0)
	if f.IsExported {
		flags |= FlagExported
	}
	if f.IsLambda {
		flags |= FlagLambda
	}
	image.Routines = append(image.Routines, Routine{
		Name:       f.Name,
		NameConst:  image.InternIdent(f.Name),
		CodeOffset: offset,
		CodeLength: uint32(len(fe.code)),
		LocalCount: uint16(fe.slotCount),
		ArgCount:   uint8(len(f.Params)),
		Flags:      flags,
	})
}

// raw assembles one instruction and appends it to the function's code.
func (fe *functionEmitter) raw(op Opcode, operands ...int) {
	encoded, err := AssembleInstruction(op, operands...)
	if err != nil {
		fe.em.fail("%s: %v", fe.fn.Name, err)
	}
	fe.code = append(fe.code, encoded...)
	fe.lastOp = op
}

// jumpTo emits a patched control transfer. The displacement is relative to
// the first byte after the operand.
func (fe *functionEmitter) jumpTo(op Opcode, target *ir.Block, regOperand int) {
	switch op {
	case OP_JMP:
		fe.raw(OP_JMP, 0)
		fe.pending = append(fe.pending, pendingJump{patchAt: len(fe.code) - 2, base: len(fe.code), target: target})
	case OP_BRT, OP_BRF:
		fe.raw(op, regOperand, 0)
		fe.pending = append(fe.pending, pendingJump{patchAt: len(fe.code) - 2, base: len(fe.code), target: target})
	case OP_SET_HANDLER:
		fe.raw(OP_SET_HANDLER, 0)
		fe.pending = append(fe.pending, pendingJump{patchAt: len(fe.code) - 2, base: len(fe.code), target: target})
	}
}

func (fe *functionEmitter) patchJumps() {
	for _, p := range fe.pending {
		offset, known := fe.blockOffsets[p.target]
		if !known {
			fe.em.fail("function %s: jump to unknown block %s", fe.fn.Name, p.target.Name)
		}
		displacement := offset - p.base
		if displacement < -32768 || displacement > 32767 {
			fe.em.fail("function %s: jump displacement %d exceeds i16", fe.fn.Name, displacement)
		}
		binary.LittleEndian.PutUint16(fe.code[p.patchAt:], uint16(int16(displacement)))
	}
	fe.pending = fe.pending[:0]
}

// checkTermination enforces that the routine cannot fall through into the
// next routine: its final opcode must be an unconditional transfer.
func (fe *functionEmitter) checkTermination() {
	switch fe.lastOp {
	case OP_RET, OP_RETV, OP_THROW, OP_JMP, OP_JMP_LONG, OP_BR_TABLE, OP_TRAP, OP_HALT:
		return
	}
	fe.em.fail("function %s ends in %v, not a terminator", fe.fn.Name, fe.lastOp)
}

func (fe *functionEmitter) use(v ir.Value, pinned map[int]bool) int {
	reg, err := fe.alloc.EnsureReg(v.ID, pinned)
	if err != nil {
		fe.em.fail("function %s: %v", fe.fn.Name, err)
	}
	pinned[reg] = true
	return reg
}

func (fe *functionEmitter) def(v ir.Value, pinned map[int]bool) int {
	reg, err := fe.alloc.AllocResult(v.ID, pinned)
	if err != nil {
		fe.em.fail("function %s: %v", fe.fn.Name, err)
	}
	return reg
}

func (fe *functionEmitter) retireArgs(inst *ir.Instruction) {
	for _, arg := range inst.Args {
		if arg.Valid() {
			fe.alloc.ConsumeUse(arg.ID, fe.position)
		}
	}
}

func (fe *functionEmitter) retireResult(inst *ir.Instruction) {
	if inst.Result.Valid() {
		// frees the register immediately when the result is never used
		fe.alloc.ConsumeUse(inst.Result.ID, fe.position)
	}
}

func (fe *functionEmitter) isHeap(t types.TypeID) bool {
	return fe.em.module.Registry.IsHeap(t)
}

func (fe *functionEmitter) isStructValue(t types.TypeID) bool {
	kind := fe.em.module.Registry.Get(t).Kind
	return kind == types.KindStruct || kind == types.KindUnion
}

func sizeOfType(registry *types.Registry, t types.TypeID) int {
	switch t {
	case types.I8, types.U8, types.Bool:
		return 1
	case types.I16, types.U16:
		return 2
	case types.I32, types.U32, types.F32:
		return 4
	}
	return 8
}
