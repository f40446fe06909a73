package compiler

import (
	"cot/ir"
)

var binaryOps = map[ir.Op]Opcode{
	ir.OpIAdd: OP_IADD, ir.OpISub: OP_ISUB, ir.OpIMul: OP_IMUL,
	ir.OpSDiv: OP_SDIV, ir.OpUDiv: OP_UDIV, ir.OpSRem: OP_SREM, ir.OpURem: OP_UREM,
	ir.OpFAdd: OP_FADD, ir.OpFSub: OP_FSUB, ir.OpFMul: OP_FMUL, ir.OpFDiv: OP_FDIV,
	ir.OpBAnd: OP_BAND, ir.OpBOr: OP_BOR, ir.OpBXor: OP_BXOR,
	ir.OpShl: OP_SHL, ir.OpAShr: OP_ASHR, ir.OpLShr: OP_LSHR,
	ir.OpLogAnd: OP_LOGAND, ir.OpLogOr: OP_LOGOR,
	ir.OpStrConcat: OP_STR_CONCAT, ir.OpStrCompare: OP_STR_CMP, ir.OpStrIndex: OP_STR_INDEX,
	ir.OpArrayLoad: OP_ARRAY_LOAD,
	ir.OpListGet: OP_LIST_GET, ir.OpMapGet: OP_MAP_GET, ir.OpMapHas: OP_MAP_HAS,
}

var unaryOps = map[ir.Op]Opcode{
	ir.OpINeg: OP_INEG, ir.OpFNeg: OP_FNEG, ir.OpBNot: OP_BNOT, ir.OpLogNot: OP_LOGNOT,
	ir.OpStrLen: OP_STR_LEN, ir.OpArrayLen: OP_ARRAY_LEN,
	ir.OpWrapOptional: OP_WRAP_OPT, ir.OpUnwrapOptional: OP_UNWRAP_OPT, ir.OpIsNull: OP_IS_NULL,
	ir.OpListPop: OP_LIST_POP, ir.OpListLen: OP_LIST_LEN, ir.OpMapLen: OP_MAP_LEN,
	ir.OpVariantGetTag: OP_VARIANT_TAG,
}

var icmpOps = map[ir.Cond]Opcode{
	ir.CondEQ: OP_ICMP_EQ, ir.CondNE: OP_ICMP_NE,
	ir.CondLT: OP_ICMP_LT, ir.CondLE: OP_ICMP_LE,
	ir.CondGT: OP_ICMP_GT, ir.CondGE: OP_ICMP_GE,
	ir.CondULT: OP_ICMP_ULT, ir.CondULE: OP_ICMP_ULE,
	ir.CondUGT: OP_ICMP_UGT, ir.CondUGE: OP_ICMP_UGE,
}

var fcmpOps = map[ir.Cond]Opcode{
	ir.CondEQ: OP_FCMP_EQ, ir.CondNE: OP_FCMP_NE,
	ir.CondLT: OP_FCMP_LT, ir.CondLE: OP_FCMP_LE,
	ir.CondGT: OP_FCMP_GT, ir.CondGE: OP_FCMP_GE,
}

// emitInst translates one IR instruction into bytecode, keeping the
// allocator's register state in step.
func (fe *functionEmitter) emitInst(inst *ir.Instruction) {
	if inst.Line > 0 && inst.Line != fe.lastLine {
		fe.lastLine = inst.Line
		fe.em.image.Lines = append(fe.em.image.Lines, LineEntry{
			CodeOffset: uint32(len(fe.em.image.Code) + len(fe.code)),
			Line:       uint32(inst.Line),
		})
	}

	pinned := map[int]bool{}
	registry := fe.em.module.Registry

	switch inst.Op {
	case ir.OpIConst:
		dst := fe.def(inst.Result, pinned)
		v := inst.IntVal
		switch {
		case v >= -32768 && v <= 32767:
			fe.raw(OP_LOADI16, packRegs(dst, 0), int(int16(v)))
		case v >= -2147483648 && v <= 2147483647:
			fe.raw(OP_LOADI32, packRegs(dst, 0), int(int32(v)))
		default:
			fe.raw(OP_LOADI64, packRegs(dst, 0), int(v))
		}
		fe.retireResult(inst)

	case ir.OpFConst:
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LOADK, packRegs(dst, 0), int(fe.em.image.InternF64(inst.FloatVal)))
		fe.retireResult(inst)

	case ir.OpSConst:
		fe.em.module.Strings.Intern(inst.StrVal)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LOADK, packRegs(dst, 0), int(fe.em.image.InternString(inst.StrVal)))
		fe.retireResult(inst)

	case ir.OpBConst:
		dst := fe.def(inst.Result, pinned)
		value := 0
		if inst.BoolVal {
			value = 1
		}
		fe.raw(OP_LOADB, packRegs(dst, 0), value)
		fe.retireResult(inst)

	case ir.OpNullConst:
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LOADNULL, packRegs(dst, 0))
		fe.retireResult(inst)

	case ir.OpIAdd, ir.OpISub, ir.OpIMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpAShr, ir.OpLShr,
		ir.OpLogAnd, ir.OpLogOr,
		ir.OpStrConcat, ir.OpStrCompare, ir.OpStrIndex,
		ir.OpArrayLoad, ir.OpMapHas:
		a := fe.use(inst.Args[0], pinned)
		b := fe.use(inst.Args[1], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(binaryOps[inst.Op], packRegs(dst, a), packRegs(b, 0))
		fe.retireResult(inst)

	case ir.OpListGet:
		fe.emitCollectionGet(inst, OP_LIST_GET, OP_LIST_GET_STRUCT, pinned)

	case ir.OpMapGet:
		fe.emitCollectionGet(inst, OP_MAP_GET, OP_MAP_GET_STRUCT, pinned)

	case ir.OpINeg, ir.OpFNeg, ir.OpBNot, ir.OpLogNot,
		ir.OpStrLen, ir.OpArrayLen,
		ir.OpWrapOptional, ir.OpUnwrapOptional, ir.OpIsNull,
		ir.OpListPop, ir.OpListLen, ir.OpMapLen, ir.OpVariantGetTag:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(unaryOps[inst.Op], packRegs(dst, src))
		fe.retireResult(inst)

	case ir.OpICmp:
		a := fe.use(inst.Args[0], pinned)
		b := fe.use(inst.Args[1], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(icmpOps[inst.Cond], packRegs(dst, a), packRegs(b, 0))
		fe.retireResult(inst)

	case ir.OpFCmp:
		a := fe.use(inst.Args[0], pinned)
		b := fe.use(inst.Args[1], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(fcmpOps[inst.Cond], packRegs(dst, a), packRegs(b, 0))
		fe.retireResult(inst)

	case ir.OpAlloca:
		slot := fe.slotCount
		fe.slotCount++
		if fe.isHeap(inst.TypeArg) {
			fe.heapSlots = append(fe.heapSlots, slot)
		}
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LEA_LOCAL, packRegs(dst, 0), slot)
		fe.retireResult(inst)

	case ir.OpLoad:
		addr := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LOAD, packRegs(dst, addr))
		fe.retireResult(inst)

	case ir.OpStore:
		addr := fe.use(inst.Args[0], pinned)
		value := fe.use(inst.Args[1], pinned)
		// a heap value escaping into a local or field keeps a reference
		if fe.isHeap(inst.Args[1].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(value, 0))
		}
		fe.raw(OP_STORE, packRegs(addr, value))
		fe.retireArgs(inst)

	case ir.OpFieldPtr:
		obj := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_FIELD_PTR, packRegs(dst, obj), inst.Index)
		fe.retireResult(inst)

	case ir.OpIndexPtr:
		obj := fe.use(inst.Args[0], pinned)
		index := fe.use(inst.Args[1], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_INDEX_PTR, packRegs(dst, obj), packRegs(index, 0))
		fe.retireResult(inst)

	case ir.OpGlobalPtr:
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LEA_GLOBAL, packRegs(dst, 0), inst.Index)
		fe.retireResult(inst)

	case ir.OpJump:
		fe.alloc.FlushAll()
		fe.jumpTo(OP_JMP, inst.Target, 0)

	case ir.OpBrIf:
		cond := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		fe.alloc.FlushAll()
		fe.jumpTo(OP_BRT, inst.Target, packRegs(cond, 0))
		fe.jumpTo(OP_JMP, inst.Else, 0)

	case ir.OpBrTable:
		fe.emitBrTable(inst, pinned)

	case ir.OpRet:
		fe.emitRet(inst, pinned)

	case ir.OpCall:
		fe.emitCall(inst, pinned)

	case ir.OpSExt, ir.OpUExt, ir.OpTrunc:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		width := sizeOfType(registry, inst.Result.Type)
		opcode := map[ir.Op]Opcode{ir.OpSExt: OP_SEXT, ir.OpUExt: OP_UEXT, ir.OpTrunc: OP_TRUNC}[inst.Op]
		fe.raw(opcode, packRegs(dst, src), width)
		fe.retireResult(inst)

	case ir.OpIntToFloat:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_ITOF, packRegs(dst, src))
		fe.retireResult(inst)

	case ir.OpFloatToInt:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_FTOI, packRegs(dst, src))
		fe.retireResult(inst)

	case ir.OpBitcast:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		from, to := inst.Args[0].Type, inst.Result.Type
		if registry.IsFloat(from) && registry.IsFloat(to) && from != to {
			fe.raw(OP_FCONV, packRegs(dst, src))
		} else {
			fe.raw(OP_MOV, packRegs(dst, src))
		}
		fe.retireResult(inst)

	case ir.OpStrSlice:
		src := fe.use(inst.Args[0], pinned)
		start := fe.use(inst.Args[1], pinned)
		end := fe.use(inst.Args[2], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_STR_SLICE, packRegs(dst, src), packRegs(start, end), 0)
		fe.retireResult(inst)

	case ir.OpSliceNew:
		src := fe.use(inst.Args[0], pinned)
		start := fe.use(inst.Args[1], pinned)
		end := fe.use(inst.Args[2], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_SLICE_NEW, packRegs(dst, src), packRegs(start, end))
		fe.retireResult(inst)

	case ir.OpArrayStore:
		array := fe.use(inst.Args[0], pinned)
		index := fe.use(inst.Args[1], pinned)
		value := fe.use(inst.Args[2], pinned)
		if fe.isHeap(inst.Args[2].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(value, 0))
		}
		fe.raw(OP_ARRAY_STORE, packRegs(array, index), packRegs(value, 0))
		fe.retireArgs(inst)

	case ir.OpListNew:
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_LIST_NEW, packRegs(dst, 0))
		fe.retireResult(inst)

	case ir.OpMapNew:
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_MAP_NEW, packRegs(dst, 0))
		fe.retireResult(inst)

	case ir.OpListPush:
		list := fe.use(inst.Args[0], pinned)
		value := fe.use(inst.Args[1], pinned)
		opcode := OP_LIST_PUSH
		if fe.isStructValue(inst.Args[1].Type) {
			// multi-slot struct values are boxed on the way into the list
			opcode = OP_LIST_PUSH_STRUCT
		} else if fe.isHeap(inst.Args[1].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(value, 0))
		}
		fe.raw(opcode, packRegs(list, value))
		fe.retireArgs(inst)

	case ir.OpListSet:
		list := fe.use(inst.Args[0], pinned)
		index := fe.use(inst.Args[1], pinned)
		value := fe.use(inst.Args[2], pinned)
		if fe.isHeap(inst.Args[2].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(value, 0))
		}
		fe.raw(OP_LIST_SET, packRegs(list, index), packRegs(value, 0))
		fe.retireArgs(inst)

	case ir.OpMapSet:
		m := fe.use(inst.Args[0], pinned)
		key := fe.use(inst.Args[1], pinned)
		value := fe.use(inst.Args[2], pinned)
		opcode := OP_MAP_SET
		if fe.isStructValue(inst.Args[2].Type) {
			opcode = OP_MAP_SET_STRUCT
		} else if fe.isHeap(inst.Args[2].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(value, 0))
		}
		fe.raw(opcode, packRegs(m, key), packRegs(value, 0))
		fe.retireArgs(inst)

	case ir.OpMapDelete:
		m := fe.use(inst.Args[0], pinned)
		key := fe.use(inst.Args[1], pinned)
		fe.raw(OP_MAP_DELETE, packRegs(m, key))
		fe.retireArgs(inst)

	case ir.OpVariantConstruct:
		for _, payload := range inst.Args {
			reg := fe.use(payload, pinned)
			if fe.isHeap(payload.Type) {
				fe.raw(OP_ARC_RETAIN, packRegs(reg, 0))
			}
			fe.raw(OP_PUSH_ARG, packRegs(reg, 0))
		}
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_VARIANT_NEW, packRegs(dst, 0), inst.Index, len(inst.Args))
		fe.retireResult(inst)

	case ir.OpVariantGetPayload:
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		fe.raw(OP_VARIANT_PAYLOAD, packRegs(dst, src), inst.Index)
		fe.retireResult(inst)

	case ir.OpMakeClosure:
		env := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		dst := fe.def(inst.Result, pinned)
		routine := fe.em.module.FunctionIndex(inst.Callee)
		if routine < 0 {
			fe.em.fail("closure over unknown function %s", inst.Callee)
		}
		fe.raw(OP_CLOSURE_NEW, packRegs(dst, env), routine)
		fe.retireResult(inst)

	case ir.OpSetHandler:
		fe.alloc.FlushAll()
		fe.jumpTo(OP_SET_HANDLER, inst.Target, 0)

	case ir.OpClearHandler:
		fe.raw(OP_CLEAR_HANDLER)

	case ir.OpThrow:
		value := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		if inst.BoolVal {
			// no handler in this frame: the throw exits the function, so
			// the frame's heap locals release exactly as on return
			fe.releaseHeapLocals(value)
		}
		fe.raw(OP_THROW, packRegs(value, 0))

	case ir.OpMov:
		// phi copy: the phi value lives in its frame slot; predecessors
		// write it there
		src := fe.use(inst.Args[0], pinned)
		fe.retireArgs(inst)
		slot := fe.alloc.SlotFor(inst.Result.ID)
		fe.raw(OP_STORE_LOCAL, packRegs(src, 0), slot)

	case ir.OpDebugLine:
		// position already recorded through the shared line tracking

	case ir.OpPhi:
		fe.em.fail("phi instruction survived elimination in %s", fe.fn.Name)

	default:
		fe.em.fail("unhandled IR op %s in %s", ir.OpName(inst.Op), fe.fn.Name)
	}
}

// emitCollectionGet picks the struct-aware opcode when the element is a
// multi-slot struct, which unboxes into the destination.
func (fe *functionEmitter) emitCollectionGet(inst *ir.Instruction, plain, structForm Opcode, pinned map[int]bool) {
	container := fe.use(inst.Args[0], pinned)
	key := fe.use(inst.Args[1], pinned)
	fe.retireArgs(inst)
	dst := fe.def(inst.Result, pinned)
	opcode := plain
	if fe.isStructValue(inst.Result.Type) {
		opcode = structForm
	}
	fe.raw(opcode, packRegs(dst, container), packRegs(key, 0))
	fe.retireResult(inst)
}

// emitBrTable encodes the tag register, the table size, and count+1 signed
// offsets; the final offset is the default edge.
func (fe *functionEmitter) emitBrTable(inst *ir.Instruction, pinned map[int]bool) {
	tag := fe.use(inst.Args[0], pinned)
	fe.retireArgs(inst)
	fe.alloc.FlushAll()

	count := len(inst.Table)
	fe.raw(OP_BR_TABLE, packRegs(tag, 0), count)

	// the displacement base is the end of the whole instruction
	offsetsStart := len(fe.code)
	base := offsetsStart + 2*(count+1)
	targets := append(append([]*ir.Block{}, inst.Table...), inst.Default)
	for i, target := range targets {
		fe.code = append(fe.code, 0, 0)
		fe.pending = append(fe.pending, pendingJump{
			patchAt: offsetsStart + 2*i,
			base:    base,
			target:  target,
		})
	}
}

// releaseHeapLocals drops the frame's reference to every heap-typed local
// allocated so far, through a scratch register that avoids the live value.
// Slots never reached on this path hold null, which release ignores.
func (fe *functionEmitter) releaseHeapLocals(avoidReg int) {
	scratch := 14
	if avoidReg == 14 {
		scratch = 13
	}
	for _, slot := range fe.heapSlots {
		fe.raw(OP_LOAD_LOCAL, packRegs(scratch, 0), slot)
		fe.raw(OP_ARC_RELEASE, packRegs(scratch, 0))
	}
}

// emitRet releases the heap-typed locals this frame owns, retains an
// escaping heap result, and returns.
func (fe *functionEmitter) emitRet(inst *ir.Instruction, pinned map[int]bool) {
	retReg := -1
	if len(inst.Args) > 0 {
		retReg = fe.use(inst.Args[0], pinned)
		if fe.isHeap(inst.Args[0].Type) {
			fe.raw(OP_ARC_RETAIN, packRegs(retReg, 0))
		}
		fe.retireArgs(inst)
	}

	fe.releaseHeapLocals(retReg)

	if retReg >= 0 {
		fe.raw(OP_RETV, packRegs(retReg, 0))
	} else {
		fe.raw(OP_RET)
	}
}

// emitCall spills the whole register file (the callee owns it), moves the
// arguments into r0.., pushes any beyond the register window, and fetches
// the result from r15.
func (fe *functionEmitter) emitCall(inst *ir.Instruction, pinned map[int]bool) {
	isClosure := inst.Callee == ""
	args := inst.Args
	var closure ir.Value
	if isClosure {
		closure = args[0]
		args = args[1:]
	}

	// every live value goes to its slot; the call clobbers all registers
	fe.alloc.FlushAll()

	slotOf := func(v ir.Value) int {
		slot := fe.alloc.SlotFor(v.ID)
		return slot
	}

	maxRegArgs := MaxRegisterArgs
	if isClosure {
		// r14 carries the closure itself
		maxRegArgs = MaxRegisterArgs - 1
	}

	regArgc := len(args)
	if regArgc > maxRegArgs {
		regArgc = maxRegArgs
	}
	stackArgc := len(args) - regArgc

	// stack arguments first, pushed left to right through the scratch
	// register
	for _, arg := range args[regArgc:] {
		fe.raw(OP_LOAD_LOCAL, packRegs(14, 0), slotOf(arg))
		fe.raw(OP_PUSH_ARG, packRegs(14, 0))
	}
	for i, arg := range args[:regArgc] {
		fe.raw(OP_LOAD_LOCAL, packRegs(i, 0), slotOf(arg))
	}

	argByte := regArgc<<4 | stackArgc
	if stackArgc > 15 {
		fe.em.fail("call in %s passes %d stack arguments; the encoding caps at 15", fe.fn.Name, stackArgc)
	}

	switch {
	case isClosure:
		fe.raw(OP_LOAD_LOCAL, packRegs(14, 0), slotOf(closure))
		fe.raw(OP_CALL_CLOSURE, packRegs(14, 0), argByte)
	case inst.Builtin:
		fe.raw(OP_CALL_NATIVE, int(fe.em.image.InternIdent(inst.Callee)), argByte)
	default:
		routine := fe.em.module.FunctionIndex(inst.Callee)
		if routine < 0 {
			fe.em.fail("call to unknown function %s", inst.Callee)
		}
		fe.raw(OP_CALL, routine, argByte)
	}

	if stackArgc > 0 {
		fe.raw(OP_POP_ARGS, stackArgc)
	}

	// all argument uses happen at this position
	fe.retireArgs(inst)

	if inst.Result.Valid() {
		dst := fe.def(inst.Result, map[int]bool{})
		fe.raw(OP_MOV, packRegs(dst, ResultRegister))
		fe.retireResult(inst)
	}
}
