package compiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Bytecode image layout (all integers little-endian):
//
//	magic "CBO1", version {u8 major, u8 minor}
//	constant pool: u32 count, entries {u8 tag, payload}
//	routine table: u32 count, entries {u32 name_const, u32 code_offset,
//	    u32 code_length, u16 local_count, u8 arg_count, u8 flags}
//	code section, 8-byte aligned, zero padded
//	export table: u32 count, {u32 name_const, u32 routine_idx} pairs
//	debug-line table: u32 count, {u32 code_offset, u32 line} pairs

var Magic = [4]byte{'C', 'B', 'O', '1'}

const (
	VersionMajor = 1
	VersionMinor = 0
)

// Constant pool entry tags.
const (
	TagI64 byte = iota
	TagF64
	TagString
	TagIdent
	TagDecimal
	TagBool
)

// Constant is one constant pool entry.
type Constant struct {
	Tag  byte
	I64  int64
	F64  float64
	Str  string
	Bool bool
}

// Routine flag bits.
const (
	FlagExported = 1 << 0
	FlagLambda   = 1 << 1
	FlagTest     = 1 << 2
)

// Routine is one routine table entry.
type Routine struct {
	Name       string
	NameConst  uint32
	CodeOffset uint32
	CodeLength uint32
	LocalCount uint16
	ArgCount   uint8
	Flags      uint8
}

// Export maps a symbolic name to a routine index.
type Export struct {
	NameConst  uint32
	RoutineIdx uint32
}

// LineEntry pairs a code offset with its source line.
type LineEntry struct {
	CodeOffset uint32
	Line       uint32
}

// Image is the in-memory form of a bytecode file.
type Image struct {
	Major     byte
	Minor     byte
	Constants []Constant
	Routines  []Routine
	Code      []byte
	Exports   []Export
	Lines     []LineEntry

	constIndex map[string]uint32
}

func NewImage() *Image {
	return &Image{
		Major:      VersionMajor,
		Minor:      VersionMinor,
		constIndex: make(map[string]uint32),
	}
}

func (img *Image) intern(key string, c Constant) uint32 {
	if index, ok := img.constIndex[key]; ok {
		return index
	}
	index := uint32(len(img.Constants))
	img.Constants = append(img.Constants, c)
	img.constIndex[key] = index
	return index
}

// InternI64 interns an i64 constant and returns its pool index.
func (img *Image) InternI64(v int64) uint32 {
	return img.intern(fmt.Sprintf("i:%d", v), Constant{Tag: TagI64, I64: v})
}

// InternF64 interns an f64 constant.
func (img *Image) InternF64(v float64) uint32 {
	return img.intern(fmt.Sprintf("f:%x", math.Float64bits(v)), Constant{Tag: TagF64, F64: v})
}

// InternString interns a string constant.
func (img *Image) InternString(v string) uint32 {
	return img.intern("s:"+v, Constant{Tag: TagString, Str: v})
}

// InternIdent interns an identifier, used for routine and native-call
// names.
func (img *Image) InternIdent(v string) uint32 {
	return img.intern("n:"+v, Constant{Tag: TagIdent, Str: v})
}

// InternBool interns a bool constant.
func (img *Image) InternBool(v bool) uint32 {
	return img.intern(fmt.Sprintf("b:%v", v), Constant{Tag: TagBool, Bool: v})
}

// Bytes serializes the image into its binary file form.
func (img *Image) Bytes() []byte {
	var out bytes.Buffer
	le := binary.LittleEndian

	out.Write(Magic[:])
	out.WriteByte(img.Major)
	out.WriteByte(img.Minor)

	writeU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		out.Write(b[:])
	}
	writeU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		out.Write(b[:])
	}
	writeU64 := func(v uint64) {
		var b [8]byte
		le.PutUint64(b[:], v)
		out.Write(b[:])
	}

	writeU32(uint32(len(img.Constants)))
	for _, c := range img.Constants {
		out.WriteByte(c.Tag)
		switch c.Tag {
		case TagI64:
			writeU64(uint64(c.I64))
		case TagF64:
			writeU64(math.Float64bits(c.F64))
		case TagString, TagIdent, TagDecimal:
			writeU32(uint32(len(c.Str)))
			out.WriteString(c.Str)
		case TagBool:
			if c.Bool {
				out.WriteByte(1)
			} else {
				out.WriteByte(0)
			}
		}
	}

	writeU32(uint32(len(img.Routines)))
	for _, r := range img.Routines {
		writeU32(r.NameConst)
		writeU32(r.CodeOffset)
		writeU32(r.CodeLength)
		writeU16(r.LocalCount)
		out.WriteByte(r.ArgCount)
		out.WriteByte(r.Flags)
	}

	// the code section starts 8-byte aligned; its extent is implied by the
	// routine table
	for out.Len()%8 != 0 {
		out.WriteByte(0)
	}
	out.Write(img.Code)

	writeU32(uint32(len(img.Exports)))
	for _, e := range img.Exports {
		writeU32(e.NameConst)
		writeU32(e.RoutineIdx)
	}

	writeU32(uint32(len(img.Lines)))
	for _, l := range img.Lines {
		writeU32(l.CodeOffset)
		writeU32(l.Line)
	}

	return out.Bytes()
}
