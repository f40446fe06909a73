package parser

import (
	"testing"

	"cot/ast"
	"cot/lexer"
	"cot/token"
)

func parseSource(t *testing.T, source string) []ast.Statement {
	t.Helper()
	scanner := lexer.New(source)
	tokens := scanner.Scan()
	if len(scanner.Errors()) > 0 {
		t.Fatalf("lexing %q failed: %v", source, scanner.Errors())
	}
	parser := Make(tokens)
	statements, errors := parser.Parse()
	if len(errors) > 0 {
		t.Fatalf("parsing %q failed: %v", source, errors[0])
	}
	return statements
}

func parseExpression(t *testing.T, source string) ast.Expression {
	t.Helper()
	statements := parseSource(t, source)
	if len(statements) != 1 {
		t.Fatalf("expected one statement, got %d", len(statements))
	}
	exprStmt, ok := statements[0].(*ast.ExpressionStmt)
	if !ok {
		t.Fatalf("expected expression statement, got %T", statements[0])
	}
	return exprStmt.Expression
}

func TestArithmeticPrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3)
	expr := parseExpression(t, "1 + 2 * 3")
	add, ok := expr.(*ast.Binary)
	if !ok || add.Operator.TokenType != token.ADD {
		t.Fatalf("root is %T, want Binary(+)", expr)
	}
	mult, ok := add.Right.(*ast.Binary)
	if !ok || mult.Operator.TokenType != token.MULT {
		t.Fatalf("right is %T, want Binary(*)", add.Right)
	}
}

func TestComparisonBindsLooserThanRange(t *testing.T) {
	expr := parseExpression(t, "a < b..c")
	cmp, ok := expr.(*ast.Binary)
	if !ok || cmp.Operator.TokenType != token.LESS {
		t.Fatalf("root is %T, want Binary(<)", expr)
	}
	if _, ok := cmp.Right.(*ast.Range); !ok {
		t.Fatalf("right is %T, want Range", cmp.Right)
	}
}

func TestCastBindsTighterThanComparison(t *testing.T) {
	// `x as i64 < y` must parse as `(x as i64) < y`
	expr := parseExpression(t, "x as i64 < y")
	cmp, ok := expr.(*ast.Binary)
	if !ok || cmp.Operator.TokenType != token.LESS {
		t.Fatalf("root is %T, want Binary(<)", expr)
	}
	if _, ok := cmp.Left.(*ast.Cast); !ok {
		t.Fatalf("left is %T, want Cast", cmp.Left)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	expr := parseExpression(t, "a = b = 1")
	outer, ok := expr.(*ast.Assign)
	if !ok {
		t.Fatalf("root is %T, want Assign", expr)
	}
	if _, ok := outer.Value.(*ast.Assign); !ok {
		t.Fatalf("value is %T, want nested Assign", outer.Value)
	}
}

func TestCompoundAssignmentDesugars(t *testing.T) {
	expr := parseExpression(t, "a += 2")
	assign, ok := expr.(*ast.Assign)
	if !ok {
		t.Fatalf("root is %T, want Assign", expr)
	}
	binary, ok := assign.Value.(*ast.Binary)
	if !ok || binary.Operator.TokenType != token.ADD {
		t.Fatalf("value is %T, want Binary(+)", assign.Value)
	}
}

func TestTernary(t *testing.T) {
	expr := parseExpression(t, "c ? 1 : 2")
	if _, ok := expr.(*ast.Ternary); !ok {
		t.Fatalf("root is %T, want Ternary", expr)
	}
}

func TestPostfixChain(t *testing.T) {
	expr := parseExpression(t, "items.get(0).name")
	field, ok := expr.(*ast.Field)
	if !ok || field.Name.Lexeme != "name" {
		t.Fatalf("root is %T, want Field(name)", expr)
	}
	method, ok := field.Receiver.(*ast.MethodCall)
	if !ok || method.Name.Lexeme != "get" {
		t.Fatalf("receiver is %T, want MethodCall(get)", field.Receiver)
	}
}

func TestSliceAndIndex(t *testing.T) {
	if _, ok := parseExpression(t, "s[0..1]").(*ast.Slice); !ok {
		t.Error("s[0..1] did not parse as Slice")
	}
	if _, ok := parseExpression(t, "s[0]").(*ast.Index); !ok {
		t.Error("s[0] did not parse as Index")
	}
}

func TestOptionalChaining(t *testing.T) {
	if _, ok := parseExpression(t, "p?.name").(*ast.OptField); !ok {
		t.Error("p?.name did not parse as OptField")
	}
}

func TestStructInitVsBlock(t *testing.T) {
	expr := parseExpression(t, `Foo{ .name = "n", .field_name = "fn" }`)
	structInit, ok := expr.(*ast.StructInit)
	if !ok {
		t.Fatalf("root is %T, want StructInit", expr)
	}
	if len(structInit.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(structInit.Fields))
	}

	// `if x { return }` must keep treating `{` as a block
	statements := parseSource(t, "fn f(x: bool) { if x { return } }")
	fn := statements[0].(*ast.FunctionDecl)
	if _, ok := fn.Body.Statements[0].(*ast.IfStmt); !ok {
		t.Fatalf("if body parsed as %T", fn.Body.Statements[0])
	}
}

func TestNewExpressions(t *testing.T) {
	expr := parseExpression(t, "new List<*Item>")
	newExpr, ok := expr.(*ast.New)
	if !ok {
		t.Fatalf("root is %T, want New", expr)
	}
	generic, ok := newExpr.Target.(*ast.GenericType)
	if !ok || generic.Name.Lexeme != "List" {
		t.Fatalf("target is %T, want GenericType(List)", newExpr.Target)
	}
	if _, ok := generic.Arguments[0].(*ast.PointerType); !ok {
		t.Fatalf("argument is %T, want PointerType", generic.Arguments[0])
	}

	heap := parseExpression(t, `new Item{ .name = "first", .value = 1 }`)
	structInit, ok := heap.(*ast.StructInit)
	if !ok || !structInit.OnHeap {
		t.Fatalf("new Item{} is %T onHeap=%v, want heap StructInit", heap, ok)
	}
}

func TestNestedGenericShiftSplit(t *testing.T) {
	statements := parseSource(t, "var m: Map<string, List<i64>> = new Map<string, List<i64>>")
	varStmt := statements[0].(*ast.VarStmt)
	generic, ok := varStmt.Type.(*ast.GenericType)
	if !ok || generic.Name.Lexeme != "Map" {
		t.Fatalf("type is %T, want GenericType(Map)", varStmt.Type)
	}
	inner, ok := generic.Arguments[1].(*ast.GenericType)
	if !ok || inner.Name.Lexeme != "List" {
		t.Fatalf("second argument is %T, want GenericType(List)", generic.Arguments[1])
	}
}

func TestDeclarations(t *testing.T) {
	source := `
struct Item { name: string, value: i64 }
enum Shape { Point, Circle(f64), Rect{ w: f64, h: f64 } }
trait Printable { fn print(v: i64) }
impl Printable for Item { fn print(v: i64) { return } }
union Raw { bits: i64, real: f64 }
type Id = i64
test "item roundtrip" { var x = 1 }
import "std/io" as io
comptime { var x = 1 }
pub fn main() i64 { return 0 }
`
	statements := parseSource(t, source)
	wantTypes := []string{
		"*ast.StructDecl", "*ast.EnumDecl", "*ast.TraitDecl", "*ast.ImplBlock",
		"*ast.UnionDecl", "*ast.TypeAliasDecl", "*ast.TestDecl", "*ast.ImportDecl",
		"*ast.ComptimeBlock", "*ast.FunctionDecl",
	}
	if len(statements) != len(wantTypes) {
		t.Fatalf("parsed %d declarations, want %d", len(statements), len(wantTypes))
	}

	enum := statements[1].(*ast.EnumDecl)
	if len(enum.Variants) != 3 {
		t.Fatalf("enum has %d variants, want 3", len(enum.Variants))
	}
	if len(enum.Variants[1].Payload) != 1 {
		t.Errorf("Circle payload = %d types, want 1", len(enum.Variants[1].Payload))
	}
	if len(enum.Variants[2].Fields) != 2 {
		t.Errorf("Rect fields = %d, want 2", len(enum.Variants[2].Fields))
	}

	fn := statements[9].(*ast.FunctionDecl)
	if !fn.IsPublic {
		t.Error("pub fn not marked public")
	}
}

func TestSwitchPatterns(t *testing.T) {
	source := `
fn f(s: Shape) i64 {
	switch s {
		Shape::Circle(r) => { return 1 }
		Shape::Point => { return 2 }
		_ => { return 0 }
	}
	return 0
}
`
	statements := parseSource(t, source)
	fn := statements[0].(*ast.FunctionDecl)
	switchStmt := fn.Body.Statements[0].(*ast.SwitchStmt)
	if len(switchStmt.Arms) != 3 {
		t.Fatalf("switch has %d arms, want 3", len(switchStmt.Arms))
	}
	variant := switchStmt.Arms[0].Pattern.(ast.VariantPattern)
	if variant.Variant.Lexeme != "Circle" || len(variant.Bindings) != 1 {
		t.Errorf("first arm = %v, want Circle with one binding", variant)
	}
	if _, ok := switchStmt.Arms[2].Pattern.(ast.WildcardPattern); !ok {
		t.Errorf("last arm is %T, want wildcard", switchStmt.Arms[2].Pattern)
	}
}

func TestControlFlowStatements(t *testing.T) {
	source := `
fn f() i64 {
	defer cleanup()
	try { throw 1 } catch (e) { return 2 }
	loop { break }
	while true { continue }
	for i in 0..10 { }
	for item in items { }
	return 0
}
`
	statements := parseSource(t, source)
	body := statements[0].(*ast.FunctionDecl).Body.Statements
	if _, ok := body[0].(*ast.DeferStmt); !ok {
		t.Errorf("statement 0 is %T, want DeferStmt", body[0])
	}
	if _, ok := body[1].(*ast.TryStmt); !ok {
		t.Errorf("statement 1 is %T, want TryStmt", body[1])
	}
	if _, ok := body[2].(*ast.LoopStmt); !ok {
		t.Errorf("statement 2 is %T, want LoopStmt", body[2])
	}
}

func TestInterpolatedString(t *testing.T) {
	expr := parseExpression(t, `"count: ${n} items"`)
	interp, ok := expr.(*ast.InterpString)
	if !ok {
		t.Fatalf("root is %T, want InterpString", expr)
	}
	if len(interp.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(interp.Parts))
	}
}

func TestLambda(t *testing.T) {
	expr := parseExpression(t, "fn(x: i64) i64 => x + 1")
	lambda, ok := expr.(*ast.Lambda)
	if !ok {
		t.Fatalf("root is %T, want Lambda", expr)
	}
	if len(lambda.Parameters) != 1 {
		t.Errorf("parameters = %d, want 1", len(lambda.Parameters))
	}
}

func TestErrorRecovery(t *testing.T) {
	// two independent mistakes must surface as two diagnostics, and the
	// valid declaration in between must still parse
	source := `
var = 1
fn ok() i64 { return 0 }
struct { }
`
	scanner := lexer.New(source)
	parser := Make(scanner.Scan())
	statements, errors := parser.Parse()
	if len(errors) != 2 {
		t.Fatalf("errors = %d (%v), want 2", len(errors), errors)
	}
	found := false
	for _, s := range statements {
		if fn, ok := s.(*ast.FunctionDecl); ok && fn.Name.Lexeme == "ok" {
			found = true
		}
	}
	if !found {
		t.Error("valid declaration between errors was dropped")
	}
}

func TestChildReferenceIntegrity(t *testing.T) {
	source := `
struct Foo { name: string }
fn main() i64 {
	var f = Foo{ .name = "n" }
	if f.name == "n" { return 1 } else { return 0 }
}
`
	statements := parseSource(t, source)
	var walkStmt func(s ast.Statement)
	var walkExpr func(e ast.Expression)

	walkExpr = func(e ast.Expression) {
		if e == nil {
			t.Fatal("nil expression child after successful parse")
		}
		switch v := e.(type) {
		case *ast.Binary:
			walkExpr(v.Left)
			walkExpr(v.Right)
		case *ast.Field:
			walkExpr(v.Receiver)
		case *ast.StructInit:
			for _, f := range v.Fields {
				walkExpr(f.Value)
			}
		}
	}
	walkStmt = func(s ast.Statement) {
		if s == nil {
			t.Fatal("nil statement child after successful parse")
		}
		switch v := s.(type) {
		case *ast.FunctionDecl:
			walkStmt(v.Body)
		case *ast.BlockStmt:
			for _, inner := range v.Statements {
				walkStmt(inner)
			}
		case *ast.VarStmt:
			walkExpr(v.Initializer)
		case *ast.IfStmt:
			walkExpr(v.Condition)
			walkStmt(v.Then)
			if v.Else != nil {
				walkStmt(v.Else)
			}
		case *ast.ReturnStmt:
			if v.Value != nil {
				walkExpr(v.Value)
			}
		}
	}
	for _, s := range statements {
		walkStmt(s)
	}
}

func TestArenaOwnsNodes(t *testing.T) {
	scanner := lexer.New("fn main() i64 { return 1 + 2 }")
	parser := Make(scanner.Scan())
	_, errors := parser.Parse()
	if len(errors) > 0 {
		t.Fatalf("parse failed: %v", errors)
	}
	expressions, statements, typeRefs := parser.Arena().Counts()
	if expressions == 0 || statements == 0 || typeRefs == 0 {
		t.Errorf("arena counts = (%d, %d, %d), want all non-zero", expressions, statements, typeRefs)
	}
}
