package parser

import (
	"encoding/json"
	"fmt"
	"os"

	"cot/ast"
)

const (
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// The printer builds a JSON-friendly representation of the AST using maps
// and slices, one map per node tagged with the node's variant name. It is
// used by the REPL and by the -dump-ast flag of the check command.

func stmtJSON(statement ast.Statement) any {
	if statement == nil {
		return nil
	}
	switch s := statement.(type) {
	case *ast.VarStmt:
		kind := "VarStmt"
		if s.IsConst {
			kind = "ConstStmt"
		}
		return map[string]any{
			"type":        kind,
			"name":        s.Name.Lexeme,
			"varType":     typeJSON(s.Type),
			"initializer": exprJSON(s.Initializer),
		}
	case *ast.ExpressionStmt:
		return map[string]any{"type": "ExpressionStmt", "expression": exprJSON(s.Expression)}
	case *ast.ReturnStmt:
		return map[string]any{"type": "ReturnStmt", "value": exprJSON(s.Value)}
	case *ast.IfStmt:
		return map[string]any{
			"type":      "IfStmt",
			"condition": exprJSON(s.Condition),
			"then":      stmtJSON(s.Then),
			"else":      stmtJSON(s.Else),
		}
	case *ast.WhileStmt:
		return map[string]any{"type": "WhileStmt", "condition": exprJSON(s.Condition), "body": stmtJSON(s.Body)}
	case *ast.ForStmt:
		return map[string]any{
			"type":     "ForStmt",
			"variable": s.Variable.Lexeme,
			"iterable": exprJSON(s.Iterable),
			"body":     stmtJSON(s.Body),
		}
	case *ast.BlockStmt:
		statements := make([]any, 0, len(s.Statements))
		for _, inner := range s.Statements {
			statements = append(statements, stmtJSON(inner))
		}
		return map[string]any{"type": "BlockStmt", "statements": statements}
	case *ast.LoopStmt:
		return map[string]any{"type": "LoopStmt", "body": stmtJSON(s.Body)}
	case *ast.BreakStmt:
		return map[string]any{"type": "BreakStmt"}
	case *ast.ContinueStmt:
		return map[string]any{"type": "ContinueStmt"}
	case *ast.DeferStmt:
		return map[string]any{"type": "DeferStmt", "expression": exprJSON(s.Expression)}
	case *ast.TryStmt:
		return map[string]any{
			"type":    "TryStmt",
			"body":    stmtJSON(s.Body),
			"errName": s.ErrName.Lexeme,
			"catch":   stmtJSON(s.Catch),
		}
	case *ast.ThrowStmt:
		return map[string]any{"type": "ThrowStmt", "value": exprJSON(s.Value)}
	case *ast.SwitchStmt:
		arms := make([]any, 0, len(s.Arms))
		for _, arm := range s.Arms {
			arms = append(arms, map[string]any{
				"pattern": patternJSON(arm.Pattern),
				"body":    stmtJSON(arm.Body),
			})
		}
		return map[string]any{"type": "SwitchStmt", "subject": exprJSON(s.Subject), "arms": arms}
	case *ast.FunctionDecl:
		parameters := make([]any, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			parameters = append(parameters, map[string]any{"name": p.Name.Lexeme, "paramType": typeJSON(p.Type)})
		}
		return map[string]any{
			"type":       "FunctionDecl",
			"name":       s.Name.Lexeme,
			"parameters": parameters,
			"returnType": typeJSON(s.ReturnType),
			"body":       stmtJSON(s.Body),
		}
	case *ast.StructDecl:
		return map[string]any{"type": "StructDecl", "name": s.Name.Lexeme, "fields": fieldsJSON(s.Fields)}
	case *ast.EnumDecl:
		variants := make([]any, 0, len(s.Variants))
		for _, v := range s.Variants {
			payload := make([]any, 0, len(v.Payload))
			for _, p := range v.Payload {
				payload = append(payload, typeJSON(p))
			}
			variants = append(variants, map[string]any{
				"name":    v.Name.Lexeme,
				"payload": payload,
				"fields":  fieldsJSON(v.Fields),
			})
		}
		return map[string]any{"type": "EnumDecl", "name": s.Name.Lexeme, "variants": variants}
	case *ast.ImplBlock:
		methods := make([]any, 0, len(s.Methods))
		for _, m := range s.Methods {
			methods = append(methods, stmtJSON(m))
		}
		return map[string]any{
			"type":    "ImplBlock",
			"trait":   s.Trait.Lexeme,
			"target":  s.Target.Lexeme,
			"methods": methods,
		}
	case *ast.TraitDecl:
		return map[string]any{"type": "TraitDecl", "name": s.Name.Lexeme}
	case *ast.UnionDecl:
		return map[string]any{"type": "UnionDecl", "name": s.Name.Lexeme, "fields": fieldsJSON(s.Fields)}
	case *ast.TypeAliasDecl:
		return map[string]any{"type": "TypeAliasDecl", "name": s.Name.Lexeme, "target": typeJSON(s.Target)}
	case *ast.TestDecl:
		return map[string]any{"type": "TestDecl", "name": s.Name.Lexeme, "body": stmtJSON(s.Body)}
	case *ast.ImportDecl:
		return map[string]any{"type": "ImportDecl", "path": s.Path.Lexeme, "alias": s.Alias.Lexeme}
	case *ast.ComptimeBlock:
		return map[string]any{"type": "ComptimeBlock", "body": stmtJSON(s.Body)}
	}
	return map[string]any{"type": fmt.Sprintf("%T", statement)}
}

func fieldsJSON(fields []ast.StructField) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{"name": f.Name.Lexeme, "fieldType": typeJSON(f.Type)})
	}
	return out
}

func patternJSON(pattern ast.Pattern) any {
	switch p := pattern.(type) {
	case ast.LiteralPattern:
		return map[string]any{"type": "LiteralPattern", "value": p.Value.Value}
	case ast.VariantPattern:
		bindings := make([]any, 0, len(p.Bindings))
		for _, b := range p.Bindings {
			bindings = append(bindings, b.Lexeme)
		}
		return map[string]any{
			"type":     "VariantPattern",
			"enum":     p.EnumName.Lexeme,
			"variant":  p.Variant.Lexeme,
			"bindings": bindings,
		}
	case ast.WildcardPattern:
		return map[string]any{"type": "WildcardPattern"}
	}
	return nil
}

func exprJSON(expression ast.Expression) any {
	if expression == nil {
		return nil
	}
	switch e := expression.(type) {
	case *ast.Literal:
		return map[string]any{"type": "Literal", "value": e.Value}
	case *ast.Variable:
		return map[string]any{"type": "Variable", "name": e.Name.Lexeme}
	case *ast.Unary:
		return map[string]any{"type": "Unary", "operator": e.Operator.Lexeme, "right": exprJSON(e.Right)}
	case *ast.Binary:
		return map[string]any{
			"type":     "Binary",
			"operator": e.Operator.Lexeme,
			"left":     exprJSON(e.Left),
			"right":    exprJSON(e.Right),
		}
	case *ast.Logical:
		return map[string]any{
			"type":     "Logical",
			"operator": e.Operator.Lexeme,
			"left":     exprJSON(e.Left),
			"right":    exprJSON(e.Right),
		}
	case *ast.Assign:
		return map[string]any{"type": "Assign", "target": exprJSON(e.Target), "value": exprJSON(e.Value)}
	case *ast.Ternary:
		return map[string]any{
			"type":      "Ternary",
			"condition": exprJSON(e.Condition),
			"then":      exprJSON(e.Then),
			"else":      exprJSON(e.Else),
		}
	case *ast.Grouping:
		return map[string]any{"type": "Grouping", "expression": exprJSON(e.Expression)}
	case *ast.Call:
		return map[string]any{"type": "Call", "callee": exprJSON(e.Callee), "arguments": exprsJSON(e.Arguments)}
	case *ast.MethodCall:
		return map[string]any{
			"type":      "MethodCall",
			"receiver":  exprJSON(e.Receiver),
			"name":      e.Name.Lexeme,
			"arguments": exprsJSON(e.Arguments),
		}
	case *ast.Field:
		return map[string]any{"type": "Field", "receiver": exprJSON(e.Receiver), "name": e.Name.Lexeme}
	case *ast.OptField:
		return map[string]any{"type": "OptField", "receiver": exprJSON(e.Receiver), "name": e.Name.Lexeme}
	case *ast.Index:
		return map[string]any{"type": "Index", "receiver": exprJSON(e.Receiver), "index": exprJSON(e.Value)}
	case *ast.OptIndex:
		return map[string]any{"type": "OptIndex", "receiver": exprJSON(e.Receiver), "index": exprJSON(e.Value)}
	case *ast.Slice:
		return map[string]any{
			"type":     "Slice",
			"receiver": exprJSON(e.Receiver),
			"start":    exprJSON(e.Start),
			"end":      exprJSON(e.End),
		}
	case *ast.Range:
		return map[string]any{
			"type":      "Range",
			"start":     exprJSON(e.Start),
			"end":       exprJSON(e.End),
			"inclusive": e.Inclusive,
		}
	case *ast.Cast:
		return map[string]any{"type": "Cast", "value": exprJSON(e.Value), "target": typeJSON(e.Target)}
	case *ast.TypeTest:
		return map[string]any{"type": "TypeTest", "value": exprJSON(e.Value), "target": typeJSON(e.Target)}
	case *ast.StructInit:
		fields := make([]any, 0, len(e.Fields))
		for _, f := range e.Fields {
			fields = append(fields, map[string]any{"name": f.Name.Lexeme, "value": exprJSON(f.Value)})
		}
		return map[string]any{"type": "StructInit", "name": e.Name.Lexeme, "fields": fields, "onHeap": e.OnHeap}
	case *ast.ArrayInit:
		return map[string]any{"type": "ArrayInit", "elements": exprsJSON(e.Elements)}
	case *ast.New:
		return map[string]any{"type": "New", "target": typeJSON(e.Target)}
	case *ast.Lambda:
		return map[string]any{"type": "Lambda", "body": stmtJSON(e.Body)}
	case *ast.InterpString:
		return map[string]any{"type": "InterpString", "parts": exprsJSON(e.Parts)}
	case *ast.VariantInit:
		return map[string]any{
			"type":      "VariantInit",
			"enum":      e.EnumName.Lexeme,
			"variant":   e.Variant.Lexeme,
			"arguments": exprsJSON(e.Arguments),
		}
	}
	return map[string]any{"type": fmt.Sprintf("%T", expression)}
}

func exprsJSON(expressions []ast.Expression) []any {
	out := make([]any, 0, len(expressions))
	for _, e := range expressions {
		out = append(out, exprJSON(e))
	}
	return out
}

func typeJSON(typeRef ast.TypeRef) any {
	if typeRef == nil {
		return nil
	}
	switch t := typeRef.(type) {
	case *ast.NamedType:
		return t.Name.Lexeme
	case *ast.PointerType:
		return map[string]any{"pointer": typeJSON(t.Element)}
	case *ast.OptionalType:
		return map[string]any{"optional": typeJSON(t.Element)}
	case *ast.ArrayType:
		return map[string]any{"array": typeJSON(t.Element), "length": exprJSON(t.Length)}
	case *ast.SliceType:
		return map[string]any{"slice": typeJSON(t.Element)}
	case *ast.FuncType:
		parameters := make([]any, 0, len(t.Parameters))
		for _, p := range t.Parameters {
			parameters = append(parameters, typeJSON(p))
		}
		return map[string]any{"fn": parameters, "return": typeJSON(t.Return)}
	case *ast.GenericType:
		arguments := make([]any, 0, len(t.Arguments))
		for _, a := range t.Arguments {
			arguments = append(arguments, typeJSON(a))
		}
		return map[string]any{"generic": t.Name.Lexeme, "arguments": arguments}
	}
	return fmt.Sprintf("%T", typeRef)
}

// PrintASTJSON marshals the statements to prettified JSON and prints the
// result to standard output.
func PrintASTJSON(statements []ast.Statement) (string, error) {
	out := make([]any, 0, len(statements))
	for _, s := range statements {
		out = append(out, stmtJSON(s))
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	fmt.Println(colorYellow + string(encoded) + colorReset)
	return string(encoded), nil
}

// WriteASTJSONToFile writes the AST for the provided statements to a .json
// file at the given path.
func WriteASTJSONToFile(statements []ast.Statement, path string) error {
	out := make([]any, 0, len(statements))
	for _, s := range statements {
		out = append(out, stmtJSON(s))
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}
