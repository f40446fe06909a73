package ir

import (
	"cot/types"
)

// Builder appends instructions to a current block and wires up the
// predecessor lists as terminators are emitted. The lowerer drives one
// builder per function.
type Builder struct {
	Func *Function
	cur  *Block
	line int32
}

// NewBuilder creates a builder positioned at a fresh entry block.
func NewBuilder(f *Function) *Builder {
	b := &Builder{Func: f}
	b.cur = f.NewBlock("entry")
	return b
}

// Block returns the block instructions are currently appended to.
func (b *Builder) Block() *Block {
	return b.cur
}

// SetBlock repositions the builder onto an existing block.
func (b *Builder) SetBlock(block *Block) {
	b.cur = block
}

// SetLine records the current source line; subsequent instructions carry it
// for the debug-line table.
func (b *Builder) SetLine(line int32) {
	b.line = line
}

// Terminated reports whether the current block already ends in a
// terminator; further instructions would be unreachable.
func (b *Builder) Terminated() bool {
	return b.cur.Terminator() != nil
}

func (b *Builder) append(inst *Instruction) {
	inst.Line = b.line
	b.cur.Instrs = append(b.cur.Instrs, inst)
}

// emit appends an instruction that produces a value of type t.
func (b *Builder) emit(inst *Instruction, t types.TypeID) Value {
	inst.Result = b.Func.NewValue(t)
	b.append(inst)
	return inst.Result
}

// emitVoid appends an instruction with no result.
func (b *Builder) emitVoid(inst *Instruction) {
	b.append(inst)
}

func addPred(block, pred *Block) {
	for _, p := range block.Preds {
		if p == pred {
			return
		}
	}
	block.Preds = append(block.Preds, pred)
}

// --- constants ---

func (b *Builder) IConst(v int64, t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpIConst, IntVal: v}, t)
}

func (b *Builder) FConst(v float64, t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpFConst, FloatVal: v}, t)
}

func (b *Builder) SConst(s string) Value {
	return b.emit(&Instruction{Op: OpSConst, StrVal: s}, types.String)
}

func (b *Builder) BConst(v bool) Value {
	return b.emit(&Instruction{Op: OpBConst, BoolVal: v}, types.Bool)
}

func (b *Builder) NullConst(t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpNullConst}, t)
}

// --- arithmetic, bitwise, comparison ---

func (b *Builder) Binary(op Op, left, right Value, t types.TypeID) Value {
	return b.emit(&Instruction{Op: op, Args: []Value{left, right}}, t)
}

func (b *Builder) Unary(op Op, operand Value, t types.TypeID) Value {
	return b.emit(&Instruction{Op: op, Args: []Value{operand}}, t)
}

func (b *Builder) ICmp(cond Cond, left, right Value) Value {
	return b.emit(&Instruction{Op: OpICmp, Cond: cond, Args: []Value{left, right}}, types.Bool)
}

func (b *Builder) FCmp(cond Cond, left, right Value) Value {
	return b.emit(&Instruction{Op: OpFCmp, Cond: cond, Args: []Value{left, right}}, types.Bool)
}

// --- memory ---

// Alloca reserves one stack slot for a value of type element and yields a
// pointer to it.
func (b *Builder) Alloca(element types.TypeID, registry *types.Registry) Value {
	return b.emit(&Instruction{Op: OpAlloca, TypeArg: element}, registry.PointerTo(element))
}

func (b *Builder) Load(ptr Value, t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpLoad, Args: []Value{ptr}}, t)
}

func (b *Builder) Store(ptr, value Value) {
	b.emitVoid(&Instruction{Op: OpStore, Args: []Value{ptr, value}})
}

// FieldPtr yields a pointer to field index of the struct behind ptr.
func (b *Builder) FieldPtr(ptr Value, index int, fieldType types.TypeID, registry *types.Registry) Value {
	return b.emit(&Instruction{Op: OpFieldPtr, Args: []Value{ptr}, Index: index}, registry.PointerTo(fieldType))
}

func (b *Builder) IndexPtr(ptr, index Value, elemType types.TypeID, registry *types.Registry) Value {
	return b.emit(&Instruction{Op: OpIndexPtr, Args: []Value{ptr, index}}, registry.PointerTo(elemType))
}

// GlobalPtr yields a pointer to the module global with the given index.
func (b *Builder) GlobalPtr(name string, index int, t types.TypeID, registry *types.Registry) Value {
	return b.emit(&Instruction{Op: OpGlobalPtr, StrVal: name, Index: index}, registry.PointerTo(t))
}

// --- control ---

func (b *Builder) Jump(target *Block) {
	if b.Terminated() {
		return
	}
	b.emitVoid(&Instruction{Op: OpJump, Target: target})
	addPred(target, b.cur)
}

func (b *Builder) BrIf(cond Value, then, otherwise *Block) {
	if b.Terminated() {
		return
	}
	b.emitVoid(&Instruction{Op: OpBrIf, Args: []Value{cond}, Target: then, Else: otherwise})
	addPred(then, b.cur)
	addPred(otherwise, b.cur)
}

func (b *Builder) BrTable(tag Value, table []*Block, dflt *Block) {
	if b.Terminated() {
		return
	}
	b.emitVoid(&Instruction{Op: OpBrTable, Args: []Value{tag}, Table: table, Default: dflt})
	for _, t := range table {
		addPred(t, b.cur)
	}
	if dflt != nil {
		addPred(dflt, b.cur)
	}
}

// Ret terminates the block with a return; pass None for void functions.
func (b *Builder) Ret(value Value) {
	if b.Terminated() {
		return
	}
	inst := &Instruction{Op: OpRet}
	if value.Valid() {
		inst.Args = []Value{value}
	}
	b.emitVoid(inst)
}

func (b *Builder) Call(callee string, builtin bool, args []Value, result types.TypeID) Value {
	inst := &Instruction{Op: OpCall, Callee: callee, Builtin: builtin, Args: args}
	if result == types.Void {
		b.emitVoid(inst)
		return None
	}
	return b.emit(inst, result)
}

// CallClosure calls through a closure value; the closure is the first
// argument.
func (b *Builder) CallClosure(closure Value, args []Value, result types.TypeID) Value {
	all := append([]Value{closure}, args...)
	inst := &Instruction{Op: OpCall, Args: all}
	if result == types.Void {
		b.emitVoid(inst)
		return None
	}
	return b.emit(inst, result)
}

// NAry emits an instruction with an arbitrary operand list and a result.
func (b *Builder) NAry(op Op, args []Value, t types.TypeID) Value {
	return b.emit(&Instruction{Op: op, Args: args}, t)
}

// Nullary emits an operand-less instruction producing a value, e.g.
// list_new.
func (b *Builder) Nullary(op Op, t types.TypeID) Value {
	return b.emit(&Instruction{Op: op}, t)
}

// Effect emits a value-less instruction with operands, e.g. list_push.
func (b *Builder) Effect(op Op, args ...Value) {
	b.emitVoid(&Instruction{Op: op, Args: args})
}

// VariantConstruct builds an enum value with the given tag and payload.
func (b *Builder) VariantConstruct(enum types.TypeID, tag int, payload []Value) Value {
	return b.emit(&Instruction{Op: OpVariantConstruct, TypeArg: enum, Index: tag, Args: payload}, enum)
}

// MakeClosure captures env into a callable closure over the named function.
// The routine index is resolved by the emitter.
func (b *Builder) MakeClosure(callee string, env Value, t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpMakeClosure, Callee: callee, Args: []Value{env}}, t)
}

// --- phi ---

// Phi places a phi at the top of block; the lowerer fills the incoming
// edges as it finishes each predecessor.
func (b *Builder) Phi(block *Block, t types.TypeID, incoming []PhiIncoming) Value {
	inst := &Instruction{Op: OpPhi, Incoming: incoming, Line: b.line}
	inst.Result = b.Func.NewValue(t)
	// phis go before any non-phi instruction
	insertAt := 0
	for insertAt < len(block.Instrs) && block.Instrs[insertAt].Op == OpPhi {
		insertAt++
	}
	block.Instrs = append(block.Instrs, nil)
	copy(block.Instrs[insertAt+1:], block.Instrs[insertAt:])
	block.Instrs[insertAt] = inst
	return inst.Result
}

// NewPhi places an empty phi at the top of block and returns the
// instruction so the caller can fill Incoming once every predecessor value
// exists (loop headers reference values defined later in lowering order).
func (b *Builder) NewPhi(block *Block, t types.TypeID) *Instruction {
	inst := &Instruction{Op: OpPhi, Line: b.line}
	inst.Result = b.Func.NewValue(t)
	insertAt := 0
	for insertAt < len(block.Instrs) && block.Instrs[insertAt].Op == OpPhi {
		insertAt++
	}
	block.Instrs = append(block.Instrs, nil)
	copy(block.Instrs[insertAt+1:], block.Instrs[insertAt:])
	block.Instrs[insertAt] = inst
	return inst
}

// VariantPayload extracts payload slot of a variant value.
func (b *Builder) VariantPayload(value Value, slot int, t types.TypeID) Value {
	return b.emit(&Instruction{Op: OpVariantGetPayload, Args: []Value{value}, Index: slot}, t)
}

// --- error handling ---

func (b *Builder) SetHandler(handler *Block) {
	b.emitVoid(&Instruction{Op: OpSetHandler, Target: handler})
	addPred(handler, b.cur)
}

func (b *Builder) ClearHandler() {
	b.emitVoid(&Instruction{Op: OpClearHandler})
}

// Throw terminates the block with a throw. propagates is true when no
// handler of this function is active, so the throw unwinds the frame.
func (b *Builder) Throw(value Value, propagates bool) {
	if b.Terminated() {
		return
	}
	b.emitVoid(&Instruction{Op: OpThrow, Args: []Value{value}, BoolVal: propagates})
}

// DebugLine records an explicit line marker in the instruction stream.
func (b *Builder) DebugLine(line int32) {
	b.emitVoid(&Instruction{Op: OpDebugLine, Line: line, IntVal: int64(line)})
}
