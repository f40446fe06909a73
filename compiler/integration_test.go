package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileOK demonstrates the complete pipeline: tokens -> AST -> checked
// AST -> SSA IR -> bytecode image.
func compileOK(t *testing.T, source string) *Image {
	t.Helper()
	result := Compile("test.cot", source)
	require.False(t, result.Bag.HasErrors(), "compilation failed: %v", result.Bag.All())
	require.NotNil(t, result.Image)
	return result.Image
}

func opcodeCounts(t *testing.T, img *Image) map[Opcode]int {
	t.Helper()
	counts := map[Opcode]int{}
	for _, routine := range img.Routines {
		code := img.Code[routine.CodeOffset : routine.CodeOffset+routine.CodeLength]
		ip := 0
		for ip < len(code) {
			length, _, err := disassembleAt(code, ip)
			require.NoError(t, err, "routine %s decodes cleanly", routine.Name)
			counts[Opcode(code[ip])]++
			ip += length
		}
	}
	return counts
}

func TestConstantReturn(t *testing.T) {
	img := compileOK(t, "fn main() i64 { return 42 }")
	require.Len(t, img.Routines, 1)
	assert.Equal(t, "main", img.Routines[0].Name)

	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_LOADI16])
	assert.Equal(t, 1, counts[OP_RETV])
}

func TestArithmeticWithPrecedence(t *testing.T) {
	// 1 + 2 * 3 folds to 7 before emission
	img := compileOK(t, "fn main() i64 { return 1 + 2 * 3 }")
	code := img.Code[img.Routines[0].CodeOffset:][:img.Routines[0].CodeLength]
	require.Equal(t, OP_LOADI16, Opcode(code[0]))
	assert.Equal(t, byte(7), code[2], "folded constant 7, little-endian low byte")
}

func TestRecursionCompiles(t *testing.T) {
	img := compileOK(t, `
fn fib(n: i64) i64 {
	if n <= 1 { return n }
	return fib(n-1) + fib(n-2)
}
fn main() i64 { return fib(10) }`)

	require.Len(t, img.Routines, 2)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 3, counts[OP_CALL])
	// the first call's result must survive the second call: it is spilled
	// to a frame slot, not parked in a clobberable register
	assert.Greater(t, counts[OP_STORE_LOCAL], 0,
		"a call result used across another call needs a spill")
	assert.Greater(t, int(img.Routines[0].LocalCount), 0)
}

func TestStructFieldsAndStrings(t *testing.T) {
	img := compileOK(t, `
struct Foo { name: string, field_name: string }
fn main() i64 {
	var f = Foo{ .name = "n", .field_name = "fn" }
	println(f.name)
	println(f.field_name)
	return 0
}`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 4, counts[OP_FIELD_PTR], "two field writes, two field reads")
	assert.Equal(t, 2, counts[OP_CALL_NATIVE], "two println dispatches")

	// both strings are distinct pool entries
	strCount := 0
	for _, c := range img.Constants {
		if c.Tag == TagString {
			strCount++
		}
	}
	assert.Equal(t, 2, strCount)
}

func TestStringSlice(t *testing.T) {
	img := compileOK(t, `fn main() i64 { var s = "hello"; println(s[0..1]); return 0 }`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_STR_SLICE])
}

func TestListOfStructPointers(t *testing.T) {
	img := compileOK(t, `
struct Item { name: string, value: i64 }
fn main() i64 {
	var items = new List<*Item>
	items.push(new Item{ .name = "first", .value = 1 })
	var r = items.get(0)
	println(r.name)
	println(string(r.value))
	return 0
}`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_LIST_NEW])
	// pointer elements use the plain list opcodes and get retained
	assert.Equal(t, 1, counts[OP_LIST_PUSH])
	assert.Equal(t, 1, counts[OP_LIST_GET])
	assert.Zero(t, counts[OP_LIST_PUSH_STRUCT])
	assert.Greater(t, counts[OP_ARC_RETAIN], 0)
}

func TestStructValuesInCollectionsUseBoxingOpcodes(t *testing.T) {
	img := compileOK(t, `
struct Point { x: i64, y: i64 }
fn main() i64 {
	var points = new List<Point>
	points.push(Point{ .x = 1, .y = 2 })
	var p = points.get(0)
	return p.x
}`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_LIST_PUSH_STRUCT], "struct values box on the way in")
	assert.Equal(t, 1, counts[OP_LIST_GET_STRUCT], "and unbox on the way out")
}

func TestBytecodeDeterminism(t *testing.T) {
	source := `
struct Item { name: string, value: i64 }
fn helper(a: i64, b: i64) i64 { return a * b + 1 }
fn main() i64 {
	var items = new List<*Item>
	var total = 0
	for i in 0..5 { total = total + helper(i, i) }
	return total
}`
	first := compileOK(t, source).Bytes()
	second := compileOK(t, source).Bytes()
	require.True(t, bytes.Equal(first, second), "compiling the same source twice must be byte-identical")
}

func TestImageHeaderAndAlignment(t *testing.T) {
	img := compileOK(t, "fn main() i64 { return 0 }")
	raw := img.Bytes()

	require.True(t, bytes.HasPrefix(raw, []byte("CBO1")))
	assert.Equal(t, byte(VersionMajor), raw[4])
	assert.Equal(t, byte(VersionMinor), raw[5])

	// locate the code section: it starts at an 8-byte aligned offset
	offset := bytes.Index(raw, img.Code)
	require.GreaterOrEqual(t, offset, 0)
	assert.Zero(t, offset%8, "code section must be 8-byte aligned")
}

func TestEmptySourceProducesHeaderOnlyImage(t *testing.T) {
	img := compileOK(t, "")
	assert.Empty(t, img.Routines)
	assert.Empty(t, img.Code)
	raw := img.Bytes()
	assert.True(t, bytes.HasPrefix(raw, []byte("CBO1")))
}

func TestManyLiveValuesSpill(t *testing.T) {
	// twenty simultaneously live sums exceed the fifteen allocatable
	// registers, forcing farthest-next-use spills
	var sb strings.Builder
	sb.WriteString("fn main() i64 {\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("var v")
		sb.WriteByte(byte('a' + i))
		sb.WriteString(" = ")
		sb.WriteString(strings.Repeat("1 + ", i+1))
		sb.WriteString("1\n")
	}
	sb.WriteString("return va + vb + vc + vd + ve + vf + vg + vh + vi + vj + vk + vl + vm + vn + vo + vp + vq + vr + vs + vt\n}")

	img := compileOK(t, sb.String())
	counts := opcodeCounts(t, img)
	assert.Greater(t, counts[OP_STORE_LOCAL]+counts[OP_LOAD_LOCAL], 0)
	assert.Greater(t, int(img.Routines[0].LocalCount), 15)
}

func TestMoreThanFifteenArguments(t *testing.T) {
	var params, args []string
	for i := 0; i < 17; i++ {
		name := "p" + string(rune('a'+i))
		params = append(params, name+": i64")
		args = append(args, "1")
	}
	source := "fn wide(" + strings.Join(params, ", ") + ") i64 { return pa }\n" +
		"fn main() i64 { return wide(" + strings.Join(args, ", ") + ") }"

	img := compileOK(t, source)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 2, counts[OP_PUSH_ARG], "arguments 16 and 17 travel on the stack")
	assert.Equal(t, 1, counts[OP_POP_ARGS])
}

func TestArcRetainOnLocalStore(t *testing.T) {
	img := compileOK(t, `
fn main() i64 {
	var s = "owned"
	var u = s
	return 0
}`)
	counts := opcodeCounts(t, img)
	assert.GreaterOrEqual(t, counts[OP_ARC_RETAIN], 2, "each store of a heap value retains")
	assert.GreaterOrEqual(t, counts[OP_ARC_RELEASE], 2, "frame-owned heap slots release on return")
}

func TestJumpsResolve(t *testing.T) {
	// a loop with branches both forward and backward; decoding every
	// routine proves no placeholder offsets survived
	img := compileOK(t, `
fn main() i64 {
	var total = 0
	for i in 0..100 {
		if i % 3 == 0 { continue }
		if i > 90 { break }
		total = total + i
	}
	while total > 10 { total = total - 7 }
	return total
}`)
	counts := opcodeCounts(t, img)
	assert.Greater(t, counts[OP_JMP]+counts[OP_BRT], 2)
}

func TestThrowReleasesHeapLocals(t *testing.T) {
	// `s` is a frame-owned string; the throw has no handler in this
	// function, so it exits the frame and must pair the local's retain
	// with a release, exactly like a return would
	img := compileOK(t, `
fn explode() i64 {
	var s = "owned"
	throw "boom" + s
	return 0
}
fn main() i64 {
	try { return explode() } catch (e) { println(e) }
	return 1
}`)
	explode := img.Routines[0]
	require.Equal(t, "explode", explode.Name)
	code := img.Code[explode.CodeOffset : explode.CodeOffset+explode.CodeLength]

	releases := 0
	sawReleaseBeforeThrow := false
	ip := 0
	for ip < len(code) {
		length, _, err := disassembleAt(code, ip)
		require.NoError(t, err)
		switch Opcode(code[ip]) {
		case OP_ARC_RELEASE:
			releases++
		case OP_THROW:
			sawReleaseBeforeThrow = releases > 0
		}
		ip += length
	}
	assert.True(t, sawReleaseBeforeThrow, "propagating throw must release frame-owned heap locals first")
}

func TestCaughtThrowKeepsHeapLocals(t *testing.T) {
	// here the throw is caught in the same frame: the catch path still
	// owns `s` and releases it at its own return, so the throw itself
	// must not release early
	img := compileOK(t, `
fn main() i64 {
	var s = "owned"
	try { throw "boom" } catch (e) { println(s) }
	return 0
}`)
	main := img.Routines[0]
	code := img.Code[main.CodeOffset : main.CodeOffset+main.CodeLength]

	releasesBeforeThrow := 0
	ip := 0
	for ip < len(code) {
		length, _, err := disassembleAt(code, ip)
		require.NoError(t, err)
		if Opcode(code[ip]) == OP_THROW {
			break
		}
		if Opcode(code[ip]) == OP_ARC_RELEASE {
			releasesBeforeThrow++
		}
		ip += length
	}
	assert.Zero(t, releasesBeforeThrow, "a caught throw leaves the frame's locals alive for the catch path")
}

func TestTryCatchAndThrow(t *testing.T) {
	img := compileOK(t, `
fn main() i64 {
	try { throw "boom" } catch (e) { println(e) }
	return 0
}`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_SET_HANDLER])
	assert.Equal(t, 1, counts[OP_THROW])
}

func TestEnumSwitchEmitsBrTable(t *testing.T) {
	img := compileOK(t, `
enum Shape { Point, Circle(f64), Rect(f64, f64) }
fn classify(s: Shape) i64 {
	switch s {
		Shape::Point => { return 0 }
		Shape::Circle(r) => { return 1 }
		_ => { return 2 }
	}
	return 3
}
fn main() i64 { return classify(Shape::Point) }`)
	counts := opcodeCounts(t, img)
	assert.Equal(t, 1, counts[OP_BR_TABLE])
	assert.Equal(t, 1, counts[OP_VARIANT_TAG])
	assert.Equal(t, 1, counts[OP_VARIANT_NEW])
}

func TestExportsAndDebugLines(t *testing.T) {
	img := compileOK(t, `
pub fn helper() i64 { return 1 }
fn internal() i64 { return 2 }
fn main() i64 { return helper() + internal() }`)

	names := map[string]bool{}
	for _, e := range img.Exports {
		names[img.Constants[e.NameConst].Str] = true
	}
	assert.True(t, names["main"])
	assert.True(t, names["helper"])
	assert.False(t, names["internal"])

	assert.NotEmpty(t, img.Lines, "debug-line table records offsets")
	for i := 1; i < len(img.Lines); i++ {
		assert.LessOrEqual(t, img.Lines[i-1].CodeOffset, img.Lines[i].CodeOffset,
			"line entries are ordered by code offset")
	}
}

func TestDisassemblerRoundWalk(t *testing.T) {
	img := compileOK(t, `
fn main() i64 {
	var total = 0
	for i in 0..10 { total = total + i }
	return total
}`)
	text, err := img.Disassemble(false, "")
	require.NoError(t, err)
	assert.Contains(t, text, "main:")
	assert.Contains(t, text, "OP_RETV")
}

func TestDiagnosticsStopEmission(t *testing.T) {
	result := Compile("bad.cot", "fn main() i64 { return missing }")
	assert.True(t, result.Bag.HasErrors())
	assert.Nil(t, result.Image, "no bytecode may be produced after errors")
	assert.Nil(t, result.Module)
}
