package lower

import (
	"cot/ast"
	"cot/token"
)

// FoldConstants rewrites literal-only subexpressions into their computed
// literal before lowering. This is the only source-level optimization the
// pipeline performs besides dead-block elimination; evaluation rules mirror
// the runtime semantics (signed integers wrap, division by a zero literal
// is left alone so it traps at runtime).
func FoldConstants(statements []ast.Statement) {
	for _, statement := range statements {
		foldStmt(statement)
	}
}

func foldStmt(statement ast.Statement) {
	switch s := statement.(type) {
	case *ast.VarStmt:
		s.Initializer = foldExpr(s.Initializer)
	case *ast.ExpressionStmt:
		s.Expression = foldExpr(s.Expression)
	case *ast.ReturnStmt:
		s.Value = foldExpr(s.Value)
	case *ast.IfStmt:
		s.Condition = foldExpr(s.Condition)
		foldStmt(s.Then)
		if s.Else != nil {
			foldStmt(s.Else)
		}
	case *ast.WhileStmt:
		s.Condition = foldExpr(s.Condition)
		foldStmt(s.Body)
	case *ast.ForStmt:
		s.Iterable = foldExpr(s.Iterable)
		foldStmt(s.Body)
	case *ast.BlockStmt:
		for _, inner := range s.Statements {
			foldStmt(inner)
		}
	case *ast.LoopStmt:
		foldStmt(s.Body)
	case *ast.DeferStmt:
		s.Expression = foldExpr(s.Expression)
	case *ast.TryStmt:
		foldStmt(s.Body)
		foldStmt(s.Catch)
	case *ast.ThrowStmt:
		s.Value = foldExpr(s.Value)
	case *ast.SwitchStmt:
		s.Subject = foldExpr(s.Subject)
		for i := range s.Arms {
			foldStmt(s.Arms[i].Body)
		}
	case *ast.FunctionDecl:
		foldStmt(s.Body)
	case *ast.ImplBlock:
		for _, m := range s.Methods {
			foldStmt(m)
		}
	case *ast.TestDecl:
		foldStmt(s.Body)
	case *ast.ComptimeBlock:
		foldStmt(s.Body)
	}
}

func foldExpr(expression ast.Expression) ast.Expression {
	if expression == nil {
		return nil
	}
	switch e := expression.(type) {
	case *ast.Grouping:
		e.Expression = foldExpr(e.Expression)
		// a grouping around a literal is transparent
		if lit, ok := e.Expression.(*ast.Literal); ok {
			return lit
		}
		return e
	case *ast.Unary:
		e.Right = foldExpr(e.Right)
		if lit, ok := e.Right.(*ast.Literal); ok {
			if folded := foldUnary(e, lit); folded != nil {
				return folded
			}
		}
		return e
	case *ast.Binary:
		e.Left = foldExpr(e.Left)
		e.Right = foldExpr(e.Right)
		left, leftOK := e.Left.(*ast.Literal)
		right, rightOK := e.Right.(*ast.Literal)
		if leftOK && rightOK {
			if folded := foldBinary(e, left, right); folded != nil {
				return folded
			}
		}
		return e
	case *ast.Logical:
		e.Left = foldExpr(e.Left)
		e.Right = foldExpr(e.Right)
		if lit, ok := e.Left.(*ast.Literal); ok {
			if value, isBool := lit.Value.(bool); isBool {
				// `true && x` is x, `false && x` is false; dually for ||
				if e.Operator.TokenType == token.AND_AND {
					if value {
						return e.Right
					}
					return e.Left
				}
				if value {
					return e.Left
				}
				return e.Right
			}
		}
		return e
	case *ast.Assign:
		e.Value = foldExpr(e.Value)
		return e
	case *ast.Ternary:
		e.Condition = foldExpr(e.Condition)
		e.Then = foldExpr(e.Then)
		e.Else = foldExpr(e.Else)
		if lit, ok := e.Condition.(*ast.Literal); ok {
			if value, isBool := lit.Value.(bool); isBool {
				if value {
					return e.Then
				}
				return e.Else
			}
		}
		return e
	case *ast.Call:
		for i := range e.Arguments {
			e.Arguments[i] = foldExpr(e.Arguments[i])
		}
		return e
	case *ast.MethodCall:
		e.Receiver = foldExpr(e.Receiver)
		for i := range e.Arguments {
			e.Arguments[i] = foldExpr(e.Arguments[i])
		}
		return e
	case *ast.Field:
		e.Receiver = foldExpr(e.Receiver)
		return e
	case *ast.OptField:
		e.Receiver = foldExpr(e.Receiver)
		return e
	case *ast.Index:
		e.Receiver = foldExpr(e.Receiver)
		e.Value = foldExpr(e.Value)
		return e
	case *ast.Slice:
		e.Receiver = foldExpr(e.Receiver)
		e.Start = foldExpr(e.Start)
		e.End = foldExpr(e.End)
		return e
	case *ast.Range:
		e.Start = foldExpr(e.Start)
		e.End = foldExpr(e.End)
		return e
	case *ast.Cast:
		e.Value = foldExpr(e.Value)
		return e
	case *ast.StructInit:
		for i := range e.Fields {
			e.Fields[i].Value = foldExpr(e.Fields[i].Value)
		}
		return e
	case *ast.ArrayInit:
		for i := range e.Elements {
			e.Elements[i] = foldExpr(e.Elements[i])
		}
		return e
	case *ast.VariantInit:
		for i := range e.Arguments {
			e.Arguments[i] = foldExpr(e.Arguments[i])
		}
		return e
	case *ast.InterpString:
		for i := range e.Parts {
			e.Parts[i] = foldExpr(e.Parts[i])
		}
		return e
	}
	return expression
}

func foldUnary(e *ast.Unary, operand *ast.Literal) ast.Expression {
	result := &ast.Literal{Typed: e.Typed, Token: e.Operator}
	switch e.Operator.TokenType {
	case token.SUB:
		switch v := operand.Value.(type) {
		case int64:
			result.Value = -v
			return result
		case float64:
			result.Value = -v
			return result
		}
	case token.BANG:
		if v, ok := operand.Value.(bool); ok {
			result.Value = !v
			return result
		}
	case token.TILDE:
		if v, ok := operand.Value.(int64); ok {
			result.Value = ^v
			return result
		}
	}
	return nil
}

func foldBinary(e *ast.Binary, left, right *ast.Literal) ast.Expression {
	result := &ast.Literal{Typed: e.Typed, Token: e.Operator}

	if a, ok := left.Value.(int64); ok {
		b, ok := right.Value.(int64)
		if !ok {
			return nil
		}
		switch e.Operator.TokenType {
		case token.ADD:
			result.Value = a + b
		case token.SUB:
			result.Value = a - b
		case token.MULT:
			result.Value = a * b
		case token.DIV:
			if b == 0 {
				// left for the runtime trap
				return nil
			}
			result.Value = a / b
		case token.MOD:
			if b == 0 {
				return nil
			}
			result.Value = a % b
		case token.AMP:
			result.Value = a & b
		case token.PIPE:
			result.Value = a | b
		case token.CARET:
			result.Value = a ^ b
		case token.SHL:
			result.Value = a << uint64(b)
		case token.SHR:
			result.Value = a >> uint64(b)
		case token.EQUAL_EQUAL:
			result.Value = a == b
		case token.NOT_EQUAL:
			result.Value = a != b
		case token.LESS:
			result.Value = a < b
		case token.LESS_EQUAL:
			result.Value = a <= b
		case token.LARGER:
			result.Value = a > b
		case token.LARGER_EQUAL:
			result.Value = a >= b
		default:
			return nil
		}
		return result
	}

	if a, ok := left.Value.(float64); ok {
		b, ok := right.Value.(float64)
		if !ok {
			return nil
		}
		switch e.Operator.TokenType {
		case token.ADD:
			result.Value = a + b
		case token.SUB:
			result.Value = a - b
		case token.MULT:
			result.Value = a * b
		case token.DIV:
			if b == 0 {
				return nil
			}
			result.Value = a / b
		case token.EQUAL_EQUAL:
			result.Value = a == b
		case token.NOT_EQUAL:
			result.Value = a != b
		case token.LESS:
			result.Value = a < b
		case token.LESS_EQUAL:
			result.Value = a <= b
		case token.LARGER:
			result.Value = a > b
		case token.LARGER_EQUAL:
			result.Value = a >= b
		default:
			return nil
		}
		return result
	}

	if a, ok := left.Value.(string); ok {
		b, ok := right.Value.(string)
		if !ok {
			return nil
		}
		switch e.Operator.TokenType {
		case token.ADD:
			result.Value = a + b
		case token.EQUAL_EQUAL:
			result.Value = a == b
		case token.NOT_EQUAL:
			result.Value = a != b
		default:
			return nil
		}
		return result
	}

	return nil
}
