// Package types implements the type registry shared by the checker, the
// lowerer and the bytecode emitter. Types are identified by TypeID; identity
// is by id and generic instances are deduplicated by (base, arguments), so
// two mentions of List<i64> resolve to the same id.
package types

import (
	"fmt"
	"strings"
)

// TypeID identifies a registered type. Ids are dense indices into the
// registry's descriptor table.
type TypeID int32

// Predeclared type ids. The registry seeds its descriptor table with these
// in order, so the constants double as indices.
const (
	Invalid TypeID = iota
	// Error is the poisoned sentinel assigned to expressions that already
	// produced a semantic diagnostic. It is assignable to and from
	// everything so one error does not cascade.
	Error
	Void
	Bool
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	String
	Decimal
)

// Kind discriminates type descriptors.
type Kind int

const (
	KindPrimitive Kind = iota
	KindPointer
	KindOptional
	KindArray
	KindSlice
	KindFunction
	KindStruct
	KindEnum
	KindUnion
	KindTrait
	KindGenericDef
	KindGenericInstance
	KindGenericParam
	KindRange
	KindClosure
)

// FieldDesc is one named field of a struct or union descriptor.
type FieldDesc struct {
	Name string
	Type TypeID
}

// VariantDesc is one variant of an enum descriptor. Payload lists the
// payload slot types in declaration order; it is empty for bare variants.
type VariantDesc struct {
	Name    string
	Tag     int
	Payload []TypeID
}

// MethodDesc is a required method of a trait descriptor.
type MethodDesc struct {
	Name   string
	Params []TypeID
	Return TypeID
}

// Descriptor is the tagged variant describing one registered type. Only the
// fields relevant to Kind are populated.
type Descriptor struct {
	Kind       Kind
	Name       string
	Element    TypeID // pointer/optional/array/slice element
	Length     int64  // array length
	Params     []TypeID
	Return     TypeID
	Fields     []FieldDesc
	Variants   []VariantDesc
	Methods    []MethodDesc
	TypeParams []string // generic definition parameters
	Base       TypeID   // generic instance base / param owner
	Args       []TypeID // generic instance arguments
	ParamIdx   int      // generic parameter index within its definition
	Inclusive  bool     // range inclusivity
}

// Registry owns the descriptor table and the interning maps that keep
// derived types unique. It is threaded explicitly through the pipeline; no
// package-level registry exists so tests can run compilations in isolation.
type Registry struct {
	descriptors []Descriptor

	named     map[string]TypeID
	pointers  map[TypeID]TypeID
	optionals map[TypeID]TypeID
	slices    map[TypeID]TypeID
	arrays    map[string]TypeID
	functions map[string]TypeID
	instances map[string]TypeID
	ranges    map[bool]TypeID
}

// NewRegistry creates a registry seeded with the primitive types and the
// built-in generic collection definitions List<T> and Map<K, V>.
func NewRegistry() *Registry {
	r := &Registry{
		named:     make(map[string]TypeID),
		pointers:  make(map[TypeID]TypeID),
		optionals: make(map[TypeID]TypeID),
		slices:    make(map[TypeID]TypeID),
		arrays:    make(map[string]TypeID),
		functions: make(map[string]TypeID),
		instances: make(map[string]TypeID),
		ranges:    make(map[bool]TypeID),
	}

	primitives := []string{
		"<invalid>", "<error>", "void", "bool",
		"i8", "i16", "i32", "i64",
		"u8", "u16", "u32", "u64",
		"f32", "f64", "string", "decimal",
	}
	for i, name := range primitives {
		r.descriptors = append(r.descriptors, Descriptor{Kind: KindPrimitive, Name: name})
		if !strings.HasPrefix(name, "<") {
			r.named[name] = TypeID(i)
		}
	}

	r.RegisterGenericDef("List", []string{"T"})
	r.RegisterGenericDef("Map", []string{"K", "V"})
	return r
}

func (r *Registry) add(d Descriptor) TypeID {
	id := TypeID(len(r.descriptors))
	r.descriptors = append(r.descriptors, d)
	return id
}

// Get returns the descriptor for id. Ids are never invalidated, so the
// returned pointer stays valid for the registry's lifetime.
func (r *Registry) Get(id TypeID) *Descriptor {
	return &r.descriptors[id]
}

// Count reports how many types are registered.
func (r *Registry) Count() int {
	return len(r.descriptors)
}

// Lookup resolves a type name registered via the named table. The boolean
// reports whether the name exists.
func (r *Registry) Lookup(name string) (TypeID, bool) {
	id, ok := r.named[name]
	return id, ok
}

// PointerTo returns the unique id for *element.
func (r *Registry) PointerTo(element TypeID) TypeID {
	if id, ok := r.pointers[element]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindPointer, Element: element})
	r.pointers[element] = id
	return id
}

// OptionalOf returns the unique id for ?element.
func (r *Registry) OptionalOf(element TypeID) TypeID {
	if id, ok := r.optionals[element]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindOptional, Element: element})
	r.optionals[element] = id
	return id
}

// SliceOf returns the unique id for []element.
func (r *Registry) SliceOf(element TypeID) TypeID {
	if id, ok := r.slices[element]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindSlice, Element: element})
	r.slices[element] = id
	return id
}

// ArrayOf returns the unique id for [length]element.
func (r *Registry) ArrayOf(element TypeID, length int64) TypeID {
	key := fmt.Sprintf("%d:%d", element, length)
	if id, ok := r.arrays[key]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindArray, Element: element, Length: length})
	r.arrays[key] = id
	return id
}

// FuncOf returns the unique id for fn(params) ret.
func (r *Registry) FuncOf(params []TypeID, ret TypeID) TypeID {
	var key strings.Builder
	for _, p := range params {
		fmt.Fprintf(&key, "%d,", p)
	}
	fmt.Fprintf(&key, "->%d", ret)
	if id, ok := r.functions[key.String()]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindFunction, Params: params, Return: ret})
	r.functions[key.String()] = id
	return id
}

// RangeOf returns the id of the integer range type with the given
// inclusivity bit.
func (r *Registry) RangeOf(inclusive bool) TypeID {
	if id, ok := r.ranges[inclusive]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindRange, Element: I64, Inclusive: inclusive})
	r.ranges[inclusive] = id
	return id
}

// RegisterStruct registers a named struct type. Registering an existing name
// returns the previous id and false so the checker can report a duplicate
// definition.
func (r *Registry) RegisterStruct(name string, fields []FieldDesc) (TypeID, bool) {
	if id, exists := r.named[name]; exists {
		return id, false
	}
	id := r.add(Descriptor{Kind: KindStruct, Name: name, Fields: fields})
	r.named[name] = id
	return id, true
}

// SetStructFields fills in the fields of a struct registered during the
// collect pass, once the field type references have been resolved.
func (r *Registry) SetStructFields(id TypeID, fields []FieldDesc) {
	r.descriptors[id].Fields = fields
}

// RegisterEnum registers a named enum type.
func (r *Registry) RegisterEnum(name string, variants []VariantDesc) (TypeID, bool) {
	if id, exists := r.named[name]; exists {
		return id, false
	}
	id := r.add(Descriptor{Kind: KindEnum, Name: name, Variants: variants})
	r.named[name] = id
	return id, true
}

// SetEnumVariants fills in the variants of an enum registered during the
// collect pass.
func (r *Registry) SetEnumVariants(id TypeID, variants []VariantDesc) {
	r.descriptors[id].Variants = variants
}

// RegisterUnion registers a named union type whose fields share storage.
func (r *Registry) RegisterUnion(name string, fields []FieldDesc) (TypeID, bool) {
	if id, exists := r.named[name]; exists {
		return id, false
	}
	id := r.add(Descriptor{Kind: KindUnion, Name: name, Fields: fields})
	r.named[name] = id
	return id, true
}

// SetUnionFields fills in a union's fields after the collect pass.
func (r *Registry) SetUnionFields(id TypeID, fields []FieldDesc) {
	r.descriptors[id].Fields = fields
}

// RegisterTrait registers a named trait with its required method set.
func (r *Registry) RegisterTrait(name string, methods []MethodDesc) (TypeID, bool) {
	if id, exists := r.named[name]; exists {
		return id, false
	}
	id := r.add(Descriptor{Kind: KindTrait, Name: name, Methods: methods})
	r.named[name] = id
	return id, true
}

// SetTraitMethods fills in a trait's required methods after the collect pass.
func (r *Registry) SetTraitMethods(id TypeID, methods []MethodDesc) {
	r.descriptors[id].Methods = methods
}

// RegisterAlias makes name resolve to target without creating a new type.
func (r *Registry) RegisterAlias(name string, target TypeID) bool {
	if _, exists := r.named[name]; exists {
		return false
	}
	r.named[name] = target
	return true
}

// RegisterGenericDef registers a generic definition such as List<T>. The
// parameters each get a KindGenericParam descriptor used during method
// signature substitution; parameter descriptors are registered immediately
// after their definition so Param can find them by offset.
func (r *Registry) RegisterGenericDef(name string, params []string) TypeID {
	if id, exists := r.named[name]; exists {
		return id
	}
	id := r.add(Descriptor{Kind: KindGenericDef, Name: name, TypeParams: params})
	r.named[name] = id
	for i, p := range params {
		r.add(Descriptor{Kind: KindGenericParam, Name: p, Base: id, ParamIdx: i})
	}
	return id
}

// Param returns the id of the i'th type parameter of a generic definition.
func (r *Registry) Param(def TypeID, index int) TypeID {
	return def + 1 + TypeID(index)
}

// Instance returns the unique id of base instantiated with args, e.g.
// List<*Item>. Instances are deduplicated by (base, args).
func (r *Registry) Instance(base TypeID, args []TypeID) TypeID {
	var key strings.Builder
	fmt.Fprintf(&key, "%d<", base)
	for _, a := range args {
		fmt.Fprintf(&key, "%d,", a)
	}
	key.WriteString(">")
	if id, ok := r.instances[key.String()]; ok {
		return id
	}
	id := r.add(Descriptor{Kind: KindGenericInstance, Base: base, Args: args})
	r.instances[key.String()] = id
	return id
}

// Substitute rewrites generic parameters of def inside t with the matching
// entry of args. Used to resolve method signatures like List<T>.get -> T.
func (r *Registry) Substitute(t TypeID, def TypeID, args []TypeID) TypeID {
	d := r.Get(t)
	switch d.Kind {
	case KindGenericParam:
		if d.Base == def && d.ParamIdx < len(args) {
			return args[d.ParamIdx]
		}
		return t
	case KindPointer:
		return r.PointerTo(r.Substitute(d.Element, def, args))
	case KindOptional:
		return r.OptionalOf(r.Substitute(d.Element, def, args))
	case KindSlice:
		return r.SliceOf(r.Substitute(d.Element, def, args))
	case KindFunction:
		params := make([]TypeID, len(d.Params))
		for i, p := range d.Params {
			params[i] = r.Substitute(p, def, args)
		}
		return r.FuncOf(params, r.Substitute(d.Return, def, args))
	}
	return t
}

// IsInteger reports whether id is one of the integer primitives.
func (r *Registry) IsInteger(id TypeID) bool {
	return id >= I8 && id <= U64
}

// IsSigned reports whether id is a signed integer primitive.
func (r *Registry) IsSigned(id TypeID) bool {
	return id >= I8 && id <= I64
}

// IsFloat reports whether id is f32 or f64.
func (r *Registry) IsFloat(id TypeID) bool {
	return id == F32 || id == F64
}

// IsNumeric reports whether id participates in arithmetic.
func (r *Registry) IsNumeric(id TypeID) bool {
	return r.IsInteger(id) || r.IsFloat(id) || id == Decimal
}

// integer rank for the promotion table; wider wins, same-width ties break
// toward the signed operand.
func intRank(id TypeID) int {
	switch id {
	case I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32:
		return 3
	case I64, U64:
		return 4
	}
	return 0
}

// Promote returns the result type of an arithmetic operation on a and b per
// the numeric promotion table, or Invalid when the operands do not mix.
func (r *Registry) Promote(a, b TypeID) TypeID {
	if a == Error || b == Error {
		return Error
	}
	if !r.IsNumeric(a) || !r.IsNumeric(b) {
		return Invalid
	}
	if a == Decimal || b == Decimal {
		return Decimal
	}
	if a == F64 || b == F64 {
		return F64
	}
	if a == F32 || b == F32 {
		return F32
	}
	ra, rb := intRank(a), intRank(b)
	if ra > rb {
		return a
	}
	if rb > ra {
		return b
	}
	if r.IsSigned(a) {
		return a
	}
	return b
}

// Assignable reports whether a value of type src may be assigned to a
// location of type dst. Exact matches aside, the allowed coercions are:
// null to any optional, any T to ?T, an array to a slice of the same
// element type, and an empty array literal to any slice.
func (r *Registry) Assignable(dst, src TypeID) bool {
	if dst == src {
		return true
	}
	if dst == Error || src == Error {
		return true
	}
	d := r.Get(dst)
	if d.Kind == KindOptional {
		// the null literal checks as ?void
		if src == r.OptionalOf(Void) {
			return true
		}
		if r.Assignable(d.Element, src) {
			return true
		}
	}
	if d.Kind == KindSlice {
		s := r.Get(src)
		// an empty array literal has no element type and coerces to any
		// slice
		if s.Kind == KindArray && (s.Element == d.Element || s.Length == 0) {
			return true
		}
	}
	return false
}

// IsHeap reports whether values of this type live on the refcounted heap.
// Heap values receive arc_retain/arc_release bookkeeping in the emitter;
// scalars never do.
func (r *Registry) IsHeap(id TypeID) bool {
	d := r.Get(id)
	switch d.Kind {
	case KindPrimitive:
		return id == String || id == Decimal
	case KindPointer, KindSlice, KindGenericInstance, KindClosure, KindFunction:
		return true
	case KindStruct, KindUnion:
		// multi-slot value; boxed only when stored in collections
		return false
	case KindEnum:
		for _, v := range d.Variants {
			if len(v.Payload) > 0 {
				return true
			}
		}
		return false
	case KindOptional:
		return r.IsHeap(d.Element)
	}
	return false
}

// String renders a type id for diagnostics and IR dumps.
func (r *Registry) String(id TypeID) string {
	if id < 0 || int(id) >= len(r.descriptors) {
		return fmt.Sprintf("<type#%d>", id)
	}
	d := r.Get(id)
	switch d.Kind {
	case KindPrimitive, KindStruct, KindEnum, KindUnion, KindTrait, KindGenericDef, KindGenericParam:
		return d.Name
	case KindPointer:
		return "*" + r.String(d.Element)
	case KindOptional:
		return "?" + r.String(d.Element)
	case KindArray:
		return fmt.Sprintf("[%d]%s", d.Length, r.String(d.Element))
	case KindSlice:
		return "[]" + r.String(d.Element)
	case KindFunction:
		parts := make([]string, len(d.Params))
		for i, p := range d.Params {
			parts[i] = r.String(p)
		}
		return fmt.Sprintf("fn(%s) %s", strings.Join(parts, ", "), r.String(d.Return))
	case KindGenericInstance:
		parts := make([]string, len(d.Args))
		for i, a := range d.Args {
			parts[i] = r.String(a)
		}
		return fmt.Sprintf("%s<%s>", r.Get(d.Base).Name, strings.Join(parts, ", "))
	case KindRange:
		if d.Inclusive {
			return "range[..=]"
		}
		return "range[..]"
	case KindClosure:
		return "closure"
	}
	return fmt.Sprintf("<type#%d>", id)
}
