package compiler

import (
	"testing"
)

func TestAssembleInstruction(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []int
		expected []byte
	}{
		{OP_MOV, []int{packRegs(3, 15)}, []byte{byte(OP_MOV), 0x3F}},
		{OP_IADD, []int{packRegs(1, 2), packRegs(3, 0)}, []byte{byte(OP_IADD), 0x12, 0x30}},
		{OP_LOADI16, []int{packRegs(0, 0), 0x1234}, []byte{byte(OP_LOADI16), 0x00, 0x34, 0x12}},
		{OP_LOADK, []int{packRegs(2, 0), 7}, []byte{byte(OP_LOADK), 0x20, 7, 0, 0, 0}},
		{OP_JMP, []int{-2}, []byte{byte(OP_JMP), 0xFE, 0xFF}},
		{OP_RET, []int{}, []byte{byte(OP_RET)}},
		{OP_RETV, []int{packRegs(5, 0)}, []byte{byte(OP_RETV), 0x50}},
		{OP_CALL, []int{3, 0x21}, []byte{byte(OP_CALL), 3, 0, 0x21}},
		{OP_STORE_LOCAL, []int{packRegs(4, 0), 9}, []byte{byte(OP_STORE_LOCAL), 0x40, 9, 0}},
		{OP_ARC_RETAIN, []int{packRegs(6, 0)}, []byte{byte(OP_ARC_RETAIN), 0x60}},
	}

	for _, tt := range tests {
		instruction, err := AssembleInstruction(tt.op, tt.operands...)
		if err != nil {
			t.Errorf("error assembling %v: %v", tt.op, err)
			continue
		}
		if len(instruction) != len(tt.expected) {
			t.Errorf("%v has wrong length - got: %d, want: %d", tt.op, len(instruction), len(tt.expected))
			continue
		}
		for i, expected := range tt.expected {
			if instruction[i] != expected {
				t.Errorf("%v byte %d - got: %v, want: %v", tt.op, i, instruction[i], expected)
			}
		}
	}
}

func TestAssembleRejectsBadOperandCount(t *testing.T) {
	if _, err := AssembleInstruction(OP_IADD, 1); err == nil {
		t.Error("expected an operand count error")
	}
}

func TestRegisterNibblePacking(t *testing.T) {
	packed := packRegs(11, 4)
	a, b := unpackRegs(byte(packed))
	if a != 11 || b != 4 {
		t.Errorf("unpackRegs(packRegs(11, 4)) = %d, %d", a, b)
	}
}

func TestDisassembleInstruction(t *testing.T) {
	tests := []struct {
		instruction []byte
		expected    string
	}{
		{[]byte{byte(OP_IADD), 0x12, 0x30}, "OP_IADD r1|r2 r3|r0"},
		{[]byte{byte(OP_RET)}, "OP_RET"},
		{[]byte{byte(OP_JMP), 0xFE, 0xFF}, "OP_JMP -2"},
		{[]byte{byte(OP_LOADB), 0x10, 1}, "OP_LOADB r1|r0 r0|r1"},
	}
	for _, tt := range tests {
		result, err := DisassembleInstruction(tt.instruction)
		if err != nil {
			t.Errorf("%v", err)
			continue
		}
		if result != tt.expected {
			t.Errorf("wrong disassembled instruction - got: %s, want: %s", result, tt.expected)
		}
	}
}

func TestEveryOpcodeHasADefinition(t *testing.T) {
	for op := OP_MOV; op <= OP_END; op++ {
		if _, err := Get(op); err != nil {
			t.Errorf("opcode %d has no definition", op)
		}
	}
}
