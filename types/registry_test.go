package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedTypesAreInterned(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, r.PointerTo(I64), r.PointerTo(I64))
	assert.Equal(t, r.OptionalOf(String), r.OptionalOf(String))
	assert.Equal(t, r.SliceOf(Bool), r.SliceOf(Bool))
	assert.Equal(t, r.ArrayOf(I32, 4), r.ArrayOf(I32, 4))
	assert.NotEqual(t, r.ArrayOf(I32, 4), r.ArrayOf(I32, 5))
	assert.Equal(t, r.FuncOf([]TypeID{I64}, Bool), r.FuncOf([]TypeID{I64}, Bool))
	assert.NotEqual(t, r.FuncOf([]TypeID{I64}, Bool), r.FuncOf([]TypeID{I64}, Void))
}

func TestGenericInstanceDedup(t *testing.T) {
	r := NewRegistry()
	list, ok := r.Lookup("List")
	require.True(t, ok)

	item, created := r.RegisterStruct("Item", []FieldDesc{{Name: "value", Type: I64}})
	require.True(t, created)

	a := r.Instance(list, []TypeID{r.PointerTo(item)})
	b := r.Instance(list, []TypeID{r.PointerTo(item)})
	assert.Equal(t, a, b)

	c := r.Instance(list, []TypeID{item})
	assert.NotEqual(t, a, c)
	assert.Equal(t, "List<*Item>", r.String(a))
}

func TestSubstitution(t *testing.T) {
	r := NewRegistry()
	list, _ := r.Lookup("List")
	tparam := r.Param(list, 0)

	// List<T>.get(i64) -> T resolved against List<string>
	got := r.Substitute(tparam, list, []TypeID{String})
	assert.Equal(t, String, got)

	// nested: *T against List<*Item>
	item, _ := r.RegisterStruct("Item", nil)
	ptr := r.PointerTo(item)
	got = r.Substitute(r.PointerTo(tparam), list, []TypeID{item})
	assert.Equal(t, ptr, got)

	mapDef, _ := r.Lookup("Map")
	vparam := r.Param(mapDef, 1)
	got = r.Substitute(vparam, mapDef, []TypeID{String, I64})
	assert.Equal(t, I64, got)
}

func TestPromotionTable(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		a, b, want TypeID
	}{
		{I8, I64, I64},
		{I32, I16, I32},
		{U8, U16, U16},
		{I32, U32, I32},
		{U64, I64, I64},
		{I64, F64, F64},
		{F32, I8, F32},
		{F32, F64, F64},
		{Decimal, F64, Decimal},
		{Error, I64, Error},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Promote(tt.a, tt.b), "promote(%s, %s)", r.String(tt.a), r.String(tt.b))
	}
	assert.Equal(t, Invalid, r.Promote(Bool, I64))
	assert.Equal(t, Invalid, r.Promote(String, String))
}

func TestAssignability(t *testing.T) {
	r := NewRegistry()
	optI64 := r.OptionalOf(I64)
	nullType := r.OptionalOf(Void)

	assert.True(t, r.Assignable(I64, I64))
	assert.True(t, r.Assignable(optI64, I64), "T assignable to ?T")
	assert.True(t, r.Assignable(optI64, nullType), "null assignable to any optional")
	assert.False(t, r.Assignable(I64, optI64), "?T not silently unwrapped")
	assert.False(t, r.Assignable(I64, I32), "no implicit narrowing on assignment")

	slice := r.SliceOf(I64)
	empty := r.ArrayOf(Void, 0)
	assert.True(t, r.Assignable(slice, empty), "empty array coerces to any slice")

	// error sentinel never cascades
	assert.True(t, r.Assignable(Error, Bool))
	assert.True(t, r.Assignable(Bool, Error))
}

func TestHeapClassification(t *testing.T) {
	r := NewRegistry()
	item, _ := r.RegisterStruct("Item", nil)
	list, _ := r.Lookup("List")

	assert.True(t, r.IsHeap(String))
	assert.True(t, r.IsHeap(r.PointerTo(item)))
	assert.True(t, r.IsHeap(r.Instance(list, []TypeID{I64})))
	assert.True(t, r.IsHeap(r.SliceOf(I64)))
	assert.False(t, r.IsHeap(I64))
	assert.False(t, r.IsHeap(Bool))
	assert.False(t, r.IsHeap(item), "bare struct is multi-slot, not a heap ref")

	shape, _ := r.RegisterEnum("Shape", []VariantDesc{
		{Name: "Point", Tag: 0},
		{Name: "Circle", Tag: 1, Payload: []TypeID{F64}},
	})
	assert.True(t, r.IsHeap(shape), "enum with payload is heap-allocated")

	color, _ := r.RegisterEnum("Color", []VariantDesc{{Name: "Red"}, {Name: "Blue", Tag: 1}})
	assert.False(t, r.IsHeap(color), "c-like enum is a scalar tag")
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	_, created := r.RegisterStruct("Foo", nil)
	require.True(t, created)
	_, created = r.RegisterStruct("Foo", nil)
	assert.False(t, created)
}
