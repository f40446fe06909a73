package ir

import (
	"fmt"
	"strings"
)

var opNames = map[Op]string{
	OpIConst: "iconst", OpFConst: "fconst", OpSConst: "sconst", OpBConst: "bconst", OpNullConst: "null_const",
	OpIAdd: "iadd", OpISub: "isub", OpIMul: "imul", OpSDiv: "sdiv", OpUDiv: "udiv",
	OpSRem: "srem", OpURem: "urem", OpINeg: "ineg",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpFNeg: "fneg",
	OpBAnd: "band", OpBOr: "bor", OpBXor: "bxor", OpBNot: "bnot",
	OpShl: "shl", OpAShr: "ashr", OpLShr: "lshr",
	OpICmp: "icmp", OpFCmp: "fcmp",
	OpLogAnd: "log_and", OpLogOr: "log_or", OpLogNot: "log_not",
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store", OpFieldPtr: "field_ptr", OpIndexPtr: "index_ptr",
	OpGlobalPtr: "global_ptr",
	OpJump: "jump", OpBrIf: "br_if", OpBrTable: "br_table", OpRet: "ret", OpCall: "call",
	OpBitcast: "bitcast", OpSExt: "sext", OpUExt: "uext", OpTrunc: "trunc",
	OpIntToFloat: "int_to_float", OpFloatToInt: "float_to_int",
	OpStrConcat: "str_concat", OpStrLen: "str_len", OpStrCompare: "str_compare",
	OpStrIndex: "str_index", OpStrSlice: "str_slice",
	OpWrapOptional: "wrap_optional", OpUnwrapOptional: "unwrap_optional", OpIsNull: "is_null",
	OpArrayLoad: "array_load", OpArrayStore: "array_store", OpArrayLen: "array_len", OpSliceNew: "slice_new",
	OpListNew: "list_new", OpListPush: "list_push", OpListPop: "list_pop",
	OpListGet: "list_get", OpListSet: "list_set", OpListLen: "list_len",
	OpMapNew: "map_new", OpMapSet: "map_set", OpMapGet: "map_get",
	OpMapHas: "map_has", OpMapDelete: "map_delete", OpMapLen: "map_len",
	OpVariantConstruct: "variant_construct", OpVariantGetTag: "variant_get_tag", OpVariantGetPayload: "variant_get_payload",
	OpMakeClosure: "make_closure",
	OpSetHandler:  "set_handler", OpClearHandler: "clear_handler", OpThrow: "throw",
	OpPhi: "phi", OpMov: "mov", OpDebugLine: "debug_line",
}

var condNames = map[Cond]string{
	CondEQ: "eq", CondNE: "ne", CondLT: "lt", CondLE: "le", CondGT: "gt", CondGE: "ge",
	CondULT: "ult", CondULE: "ule", CondUGT: "ugt", CondUGE: "uge",
}

// OpName returns the lowercase mnemonic of an op.
func OpName(op Op) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op%d", op)
}

// Print renders a module as text; the dump is attached to internal compiler
// errors and shown by the -dump-ir flag.
func Print(m *Module) string {
	var out strings.Builder
	for _, g := range m.Globals {
		fmt.Fprintf(&out, "global %s: %s\n", g.Name, m.Registry.String(g.Type))
	}
	for _, f := range m.Functions {
		out.WriteString(PrintFunction(m, f))
	}
	return out.String()
}

// PrintFunction renders one function.
func PrintFunction(m *Module, f *Function) string {
	var out strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s: v%d %s", p.Name, p.Val.ID, m.Registry.String(p.Val.Type))
	}
	fmt.Fprintf(&out, "fn %s(%s) %s {\n", f.Name, strings.Join(params, ", "), m.Registry.String(f.Return))
	for _, block := range f.Blocks {
		preds := make([]string, len(block.Preds))
		for i, p := range block.Preds {
			preds[i] = p.Name
		}
		fmt.Fprintf(&out, "%s:", block.Name)
		if len(preds) > 0 {
			fmt.Fprintf(&out, " ; preds: %s", strings.Join(preds, ", "))
		}
		out.WriteString("\n")
		for _, inst := range block.Instrs {
			out.WriteString("  " + formatInstruction(inst) + "\n")
		}
	}
	out.WriteString("}\n")
	return out.String()
}

func formatInstruction(inst *Instruction) string {
	var out strings.Builder
	if inst.Result.Valid() {
		fmt.Fprintf(&out, "v%d = ", inst.Result.ID)
	}
	out.WriteString(OpName(inst.Op))
	if inst.Op == OpICmp || inst.Op == OpFCmp {
		out.WriteString("." + condNames[inst.Cond])
	}

	switch inst.Op {
	case OpIConst:
		fmt.Fprintf(&out, " %d", inst.IntVal)
	case OpFConst:
		fmt.Fprintf(&out, " %g", inst.FloatVal)
	case OpSConst:
		fmt.Fprintf(&out, " %q", inst.StrVal)
	case OpBConst:
		fmt.Fprintf(&out, " %v", inst.BoolVal)
	case OpCall:
		if inst.Callee != "" {
			prefix := " "
			if inst.Builtin {
				prefix = " native:"
			}
			out.WriteString(prefix + inst.Callee)
		}
	case OpPhi:
		for i, in := range inst.Incoming {
			if i > 0 {
				out.WriteString(",")
			}
			fmt.Fprintf(&out, " [%s: v%d]", in.Pred.Name, in.Val.ID)
		}
		return out.String()
	}

	for _, a := range inst.Args {
		fmt.Fprintf(&out, " v%d", a.ID)
	}
	if inst.Target != nil {
		out.WriteString(" -> " + inst.Target.Name)
	}
	if inst.Else != nil {
		out.WriteString(", " + inst.Else.Name)
	}
	for _, t := range inst.Table {
		out.WriteString(" [" + t.Name + "]")
	}
	if inst.Default != nil {
		out.WriteString(" default " + inst.Default.Name)
	}
	if inst.Op == OpFieldPtr || inst.Op == OpVariantGetPayload || inst.Op == OpMakeClosure {
		fmt.Fprintf(&out, " #%d", inst.Index)
	}
	return out.String()
}
