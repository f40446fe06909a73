package compiler

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

// DumpBytecode writes the serialized image to a file with a `.cbo`
// extension. The bytes are the exact form the VM loads.
func (img *Image) DumpBytecode(filePath string) error {
	if filePath == "" {
		filePath = "bytecode.cbo"
	} else if !strings.HasSuffix(filePath, ".cbo") {
		filePath = filePath + ".cbo"
	}
	if err := os.WriteFile(filePath, img.Bytes(), 0o644); err != nil {
		return fmt.Errorf("error creating cot bytecode file: %s", err.Error())
	}
	return nil
}

// Disassemble renders the image's code section routine by routine in a
// human readable format and optionally saves it to disk with a `.dcbo`
// extension.
func (img *Image) Disassemble(saveToDisk bool, filePath string) (string, error) {
	var builder strings.Builder

	fmt.Fprintf(&builder, "; cot bytecode v%d.%d, %d constants, %d routines\n",
		img.Major, img.Minor, len(img.Constants), len(img.Routines))

	for _, c := range img.Constants {
		switch c.Tag {
		case TagI64:
			fmt.Fprintf(&builder, "; const i64 %d\n", c.I64)
		case TagF64:
			fmt.Fprintf(&builder, "; const f64 %g\n", c.F64)
		case TagString:
			fmt.Fprintf(&builder, "; const str %q\n", c.Str)
		case TagIdent:
			fmt.Fprintf(&builder, "; const ident %s\n", c.Str)
		case TagDecimal:
			fmt.Fprintf(&builder, "; const dec %s\n", c.Str)
		case TagBool:
			fmt.Fprintf(&builder, "; const bool %v\n", c.Bool)
		}
	}

	for _, routine := range img.Routines {
		fmt.Fprintf(&builder, "\n%s: ; offset %d, %d bytes, %d locals, %d args\n",
			routine.Name, routine.CodeOffset, routine.CodeLength, routine.LocalCount, routine.ArgCount)
		code := img.Code[routine.CodeOffset : routine.CodeOffset+routine.CodeLength]
		ip := 0
		for ip < len(code) {
			length, text, err := disassembleAt(code, ip)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&builder, "  %04d  %s\n", ip, text)
			ip += length
		}
	}

	disassembled := builder.String()
	if saveToDisk {
		if filePath == "" {
			filePath = "bytecode.dcbo"
		} else if !strings.HasSuffix(filePath, ".dcbo") {
			filePath = filePath + ".dcbo"
		}
		if err := os.WriteFile(filePath, []byte(disassembled), 0o644); err != nil {
			return "", fmt.Errorf("error creating disassembled bytecode file: %s", err.Error())
		}
	}
	return disassembled, nil
}

// disassembleAt decodes the instruction at ip and returns its total length
// and rendering. OP_BR_TABLE carries a variable-length offset table and is
// handled outside the fixed-width operand machinery.
func disassembleAt(code []byte, ip int) (int, string, error) {
	op := Opcode(code[ip])
	def, err := Get(op)
	if err != nil {
		return 0, "", fmt.Errorf("offset %d: %v", ip, err)
	}

	length := 1
	for _, w := range def.OperandWidths {
		length += w
	}

	if op == OP_BR_TABLE {
		count := int(binary.LittleEndian.Uint16(code[ip+2:]))
		tableBytes := 2 * (count + 1)
		text, err := DisassembleInstruction(code[ip : ip+length])
		if err != nil {
			return 0, "", err
		}
		var offsets []string
		for i := 0; i <= count; i++ {
			at := ip + length + 2*i
			offsets = append(offsets, fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(code[at:]))))
		}
		return length + tableBytes, text + " [" + strings.Join(offsets, " ") + "]", nil
	}

	text, err := DisassembleInstruction(code[ip : ip+length])
	if err != nil {
		return 0, "", fmt.Errorf("offset %d: %v", ip, err)
	}
	return length, text, nil
}
