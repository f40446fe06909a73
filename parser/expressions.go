package parser

import (
	"fmt"

	"cot/ast"
	"cot/token"
)

// Precedence levels for the grammar's rules, ordered from lowest to highest.
// Higher rules bind tighter and are reduced before lower precedence rules.
const (
	PREC_NONE       = iota
	PREC_ASSIGNMENT // = += -= *= /= and ternary ?: at the same level
	PREC_OR         // ||
	PREC_AND        // &&
	PREC_EQUALITY   // == !=
	PREC_COMPARISON // < <= > >=
	PREC_RANGE      // .. ..=
	PREC_CAST       // as, is
	PREC_BITWISE    // & | ^
	PREC_SHIFT      // << >>
	PREC_TERM       // + -
	PREC_FACTOR     // * / %
	PREC_UNARY      // ! - ~ * &
	PREC_POSTFIX    // call, index, field, slice, ?. // HIGHEST PRECEDENCE
)

type prefixFunc func(*Parser) (ast.Expression, error)
type infixFunc func(*Parser, ast.Expression) (ast.Expression, error)

// Defines the parsing behavior for a specific token type.
// It contains optional prefix and infix parsing functions, and the
// precedence level of the token.
type parseRule struct {
	prefix     prefixFunc
	infix      infixFunc
	precedence int
}

// buildRules constructs the token -> parse rule table. Each token maps to a
// particular infix and prefix parsing rule with its precedence level.
func buildRules() map[token.TokenType]parseRule {
	return map[token.TokenType]parseRule{
		token.INT:            {prefix: (*Parser).literal},
		token.FLOAT:          {prefix: (*Parser).literal},
		token.STRING:         {prefix: (*Parser).literal},
		token.TRUE:           {prefix: (*Parser).literal},
		token.FALSE:          {prefix: (*Parser).literal},
		token.NULL:           {prefix: (*Parser).literal},
		token.STRING_CONTENT: {prefix: (*Parser).interpolatedString},
		token.IDENTIFIER:     {prefix: (*Parser).variable},
		token.LPA:            {prefix: (*Parser).grouping, infix: (*Parser).call, precedence: PREC_POSTFIX},
		token.LSQR:           {prefix: (*Parser).arrayLiteral, infix: (*Parser).indexOrSlice, precedence: PREC_POSTFIX},
		token.NEW:            {prefix: (*Parser).newExpression},
		token.FUNC:           {prefix: (*Parser).lambda},

		token.BANG:  {prefix: (*Parser).unary},
		token.TILDE: {prefix: (*Parser).unary},
		token.SUB:   {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: PREC_TERM},
		token.ADD:   {infix: (*Parser).binary, precedence: PREC_TERM},
		token.MULT:  {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: PREC_FACTOR},
		token.AMP:   {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: PREC_BITWISE},
		token.DIV:   {infix: (*Parser).binary, precedence: PREC_FACTOR},
		token.MOD:   {infix: (*Parser).binary, precedence: PREC_FACTOR},
		token.PIPE:  {infix: (*Parser).binary, precedence: PREC_BITWISE},
		token.CARET: {infix: (*Parser).binary, precedence: PREC_BITWISE},
		token.SHL:   {infix: (*Parser).binary, precedence: PREC_SHIFT},
		token.SHR:   {infix: (*Parser).binary, precedence: PREC_SHIFT},

		token.EQUAL_EQUAL:  {infix: (*Parser).binary, precedence: PREC_EQUALITY},
		token.NOT_EQUAL:    {infix: (*Parser).binary, precedence: PREC_EQUALITY},
		token.LESS:         {infix: (*Parser).binary, precedence: PREC_COMPARISON},
		token.LESS_EQUAL:   {infix: (*Parser).binary, precedence: PREC_COMPARISON},
		token.LARGER:       {infix: (*Parser).binary, precedence: PREC_COMPARISON},
		token.LARGER_EQUAL: {infix: (*Parser).binary, precedence: PREC_COMPARISON},

		token.AND_AND: {infix: (*Parser).logical, precedence: PREC_AND},
		token.OR_OR:   {infix: (*Parser).logical, precedence: PREC_OR},

		token.RANGE:      {infix: (*Parser).rangeExpression, precedence: PREC_RANGE},
		token.RANGE_INCL: {infix: (*Parser).rangeExpression, precedence: PREC_RANGE},

		token.AS: {infix: (*Parser).cast, precedence: PREC_CAST},
		token.IS: {infix: (*Parser).typeTest, precedence: PREC_CAST},

		token.ASSIGN:      {infix: (*Parser).assignment, precedence: PREC_ASSIGNMENT},
		token.ADD_ASSIGN:  {infix: (*Parser).assignment, precedence: PREC_ASSIGNMENT},
		token.SUB_ASSIGN:  {infix: (*Parser).assignment, precedence: PREC_ASSIGNMENT},
		token.MULT_ASSIGN: {infix: (*Parser).assignment, precedence: PREC_ASSIGNMENT},
		token.DIV_ASSIGN:  {infix: (*Parser).assignment, precedence: PREC_ASSIGNMENT},
		token.QUESTION:    {infix: (*Parser).ternary, precedence: PREC_ASSIGNMENT},
		token.OPT_ELSE:    {infix: (*Parser).binary, precedence: PREC_ASSIGNMENT},

		token.DOT:       {infix: (*Parser).fieldOrMethod, precedence: PREC_POSTFIX},
		token.OPT_FIELD: {infix: (*Parser).optionalField, precedence: PREC_POSTFIX},
	}
}

// getRule retrieves the parsing rule associated with the given token type,
// or a zero rule if the token has no expression role.
func (parser *Parser) getRule(tokenType token.TokenType) parseRule {
	return parser.rules[tokenType]
}

// expression is the entry point for parsing expressions. It begins at
// the assignment rule, which encompasses all lower-precedence rules.
func (parser *Parser) expression() (ast.Expression, error) {
	return parser.parsePrecedence(PREC_ASSIGNMENT)
}

// parsePrecedence parses expressions at or above the provided precedence
// level. It consumes a token, applies its prefix rule, and keeps applying
// infix rules while the next token's precedence is at least the requested
// level.
func (parser *Parser) parsePrecedence(precedence int) (ast.Expression, error) {
	tok := parser.peek()
	rule := parser.getRule(tok.TokenType)
	if rule.prefix == nil {
		return nil, CreateSyntaxError(tok.Line, tok.Column, "Unrecognised expression.")
	}
	parser.advance()

	left, err := rule.prefix(parser)
	if err != nil {
		return nil, err
	}

	for {
		next := parser.peek()
		nextRule := parser.getRule(next.TokenType)
		if nextRule.infix == nil || nextRule.precedence < precedence {
			break
		}
		parser.advance()
		left, err = nextRule.infix(parser, left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// literal handles number, string, bool and null literal tokens. The lexer
// already decoded the value into the token's Literal field.
func (parser *Parser) literal() (ast.Expression, error) {
	tok := parser.previous()
	var value any
	switch tok.TokenType {
	case token.TRUE:
		value = true
	case token.FALSE:
		value = false
	case token.NULL:
		value = nil
	default:
		value = tok.Literal
	}
	return ast.Expr(parser.arena, &ast.Literal{Token: tok, Value: value}), nil
}

// interpolatedString reassembles the STRING_CONTENT / INTERP_START /
// INTERP_END token triples emitted by the lexer into an InterpString whose
// parts alternate between string segments and embedded expressions.
func (parser *Parser) interpolatedString() (ast.Expression, error) {
	first := parser.previous()
	parts := []ast.Expression{
		ast.Expr[ast.Expression](parser.arena, &ast.Literal{Token: first, Value: first.Literal}),
	}

	for parser.isMatch(token.INTERP_START) {
		inner, err := parser.expression()
		if err != nil {
			return nil, err
		}
		parts = append(parts, inner)
		if _, err := parser.consume(token.INTERP_END, "Expected '}' after interpolated expression"); err != nil {
			return nil, err
		}
		segment, err := parser.consume(token.STRING_CONTENT, "Expected string segment after interpolation")
		if err != nil {
			return nil, err
		}
		parts = append(parts, ast.Expr[ast.Expression](parser.arena, &ast.Literal{Token: segment, Value: segment.Literal}))
	}

	return ast.Expr(parser.arena, &ast.InterpString{Token: first, Parts: parts}), nil
}

// variable handles identifiers, struct initialisers `Name{ .f = v }` and
// enum variant construction `Name::Variant(args)`.
func (parser *Parser) variable() (ast.Expression, error) {
	name := parser.previous()

	if parser.checkType(token.SCOPE) {
		parser.advance()
		variant, err := parser.consume(token.IDENTIFIER, "Expected variant name after '::'")
		if err != nil {
			return nil, err
		}
		arguments := []ast.Expression{}
		if parser.isMatch(token.LPA) {
			arguments, err = parser.argumentList()
			if err != nil {
				return nil, err
			}
		}
		return ast.Expr(parser.arena, &ast.VariantInit{
			EnumName:  name,
			Variant:   variant,
			Arguments: arguments,
		}), nil
	}

	// `Name{` begins a struct initialiser only when the brace is followed
	// by a `.field` designator; this keeps `if x { ... }` parsing as a
	// block. Zero-field structs are initialised with `new Name{}`.
	if parser.checkType(token.LCUR) && parser.peekNext().TokenType == token.DOT {
		return parser.structInit(name, false)
	}

	return ast.Expr(parser.arena, &ast.Variable{Name: name}), nil
}

// structInit parses `{ .field = value, ... }` after the struct name.
func (parser *Parser) structInit(name token.Token, onHeap bool) (ast.Expression, error) {
	if _, err := parser.consume(token.LCUR, "Expected '{' in struct initialiser"); err != nil {
		return nil, err
	}
	fields := []ast.FieldInit{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		if _, err := parser.consume(token.DOT, "Expected '.' before field name"); err != nil {
			return nil, err
		}
		fieldName, err := parser.consume(token.IDENTIFIER, "Expected field name in struct initialiser")
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.ASSIGN, "Expected '=' after field name"); err != nil {
			return nil, err
		}
		value, err := parser.expression()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.FieldInit{Name: fieldName, Value: value})
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RCUR, "Expected '}' after struct initialiser"); err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.StructInit{Name: name, Fields: fields, OnHeap: onHeap}), nil
}

// grouping handles parenthesized expressions.
func (parser *Parser) grouping() (ast.Expression, error) {
	groupToken := parser.previous()
	inner, err := parser.expression()
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.RPA, fmt.Sprintf("expression is missing '%s'", token.RPA)); err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Grouping{Token: groupToken, Expression: inner}), nil
}

// arrayLiteral parses `[a, b, c]`.
func (parser *Parser) arrayLiteral() (ast.Expression, error) {
	openToken := parser.previous()
	elements := []ast.Expression{}
	for !parser.checkType(token.RSQR) && !parser.isFinished() {
		element, err := parser.expression()
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RSQR, "Expected ']' after array elements"); err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.ArrayInit{Token: openToken, Elements: elements}), nil
}

// newExpression parses `new Type` and `new Name{ .f = v }`.
func (parser *Parser) newExpression() (ast.Expression, error) {
	newToken := parser.previous()

	// `new Name{...}` heap-allocates a struct
	if parser.checkType(token.IDENTIFIER) {
		next := parser.peekNext().TokenType
		if next == token.LCUR {
			name := parser.advance()
			return parser.structInit(name, true)
		}
	}

	target, err := parser.typeReference()
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.New{Token: newToken, Target: target}), nil
}

// lambda parses `fn(params) [ret] => expr` and `fn(params) [ret] { body }`.
func (parser *Parser) lambda() (ast.Expression, error) {
	fnToken := parser.previous()
	parameters, err := parser.parameterList()
	if err != nil {
		return nil, err
	}

	var returnType ast.TypeRef
	if !parser.checkType(token.FAT_ARROW) && !parser.checkType(token.LCUR) {
		returnType, err = parser.typeReference()
		if err != nil {
			return nil, err
		}
	}

	var body ast.Statement
	if parser.isMatch(token.FAT_ARROW) {
		value, err := parser.expression()
		if err != nil {
			return nil, err
		}
		body = ast.Stmt[ast.Statement](parser.arena, &ast.ReturnStmt{Token: fnToken, Value: value})
	} else {
		if _, err := parser.consume(token.LCUR, "Expected '=>' or '{' in lambda"); err != nil {
			return nil, err
		}
		body, err = parser.block()
		if err != nil {
			return nil, err
		}
	}

	return ast.Expr(parser.arena, &ast.Lambda{
		Token:      fnToken,
		Parameters: parameters,
		ReturnType: returnType,
		Body:       body,
	}), nil
}

// unary parses unary prefix expressions: !, -, ~, * (deref) and & (address).
func (parser *Parser) unary() (ast.Expression, error) {
	operator := parser.previous()
	right, err := parser.parsePrecedence(PREC_UNARY)
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Unary{Operator: operator, Right: right}), nil
}

// binary parses left-associative binary operators. The right-hand operand is
// parsed one precedence level higher than the operator's own, which is what
// makes the operator left-associative.
func (parser *Parser) binary(left ast.Expression) (ast.Expression, error) {
	operator := parser.previous()
	rule := parser.getRule(operator.TokenType)
	right, err := parser.parsePrecedence(rule.precedence + 1)
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Binary{
		Left:     left,
		Operator: operator,
		Right:    right,
	}), nil
}

// logical parses short-circuiting && and ||.
func (parser *Parser) logical(left ast.Expression) (ast.Expression, error) {
	operator := parser.previous()
	rule := parser.getRule(operator.TokenType)
	right, err := parser.parsePrecedence(rule.precedence + 1)
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Logical{
		Left:     left,
		Operator: operator,
		Right:    right,
	}), nil
}

// rangeExpression parses `a..b` and `a..=b`. Range operators are
// right-associative, so the right side is parsed at the same precedence.
func (parser *Parser) rangeExpression(left ast.Expression) (ast.Expression, error) {
	operator := parser.previous()
	right, err := parser.parsePrecedence(PREC_RANGE)
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Range{
		Token:     operator,
		Start:     left,
		End:       right,
		Inclusive: operator.TokenType == token.RANGE_INCL,
	}), nil
}

// cast parses `expr as Type`.
func (parser *Parser) cast(left ast.Expression) (ast.Expression, error) {
	asToken := parser.previous()
	target, err := parser.typeReference()
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Cast{Token: asToken, Value: left, Target: target}), nil
}

// typeTest parses `expr is Type`.
func (parser *Parser) typeTest(left ast.Expression) (ast.Expression, error) {
	isToken := parser.previous()
	target, err := parser.typeReference()
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.TypeTest{Token: isToken, Value: left, Target: target}), nil
}

// assignment parses `target = value` and the compound forms += -= *= /=.
// Compound assignments desugar into a plain assignment whose value is the
// matching binary operation on the target.
//
// Steps:
//  1. The left-hand side has already been parsed; validate that it is an
//     lvalue: a variable, field access, index access, or pointer deref.
//  2. Recursively parse the right-hand side at assignment precedence, making
//     assignment right-associative (`a = b = c`).
func (parser *Parser) assignment(left ast.Expression) (ast.Expression, error) {
	operator := parser.previous()

	switch left.(type) {
	case *ast.Variable, *ast.Field, *ast.Index:
	case *ast.Unary:
		if left.(*ast.Unary).Operator.TokenType != token.MULT {
			return nil, CreateSyntaxError(operator.Line, operator.Column, "Invalid assignment")
		}
	default:
		return nil, CreateSyntaxError(operator.Line, operator.Column, "Invalid assignment")
	}

	value, err := parser.parsePrecedence(PREC_ASSIGNMENT)
	if err != nil {
		return nil, err
	}

	if operator.TokenType != token.ASSIGN {
		binaryOp := map[token.TokenType]token.TokenType{
			token.ADD_ASSIGN:  token.ADD,
			token.SUB_ASSIGN:  token.SUB,
			token.MULT_ASSIGN: token.MULT,
			token.DIV_ASSIGN:  token.DIV,
		}[operator.TokenType]
		opToken := operator
		opToken.TokenType = binaryOp
		value = ast.Expr[ast.Expression](parser.arena, &ast.Binary{
			Left:     left,
			Operator: opToken,
			Right:    value,
		})
	}

	return ast.Expr(parser.arena, &ast.Assign{
		Operator: operator,
		Target:   left,
		Value:    value,
	}), nil
}

// ternary parses `cond ? then : else`.
func (parser *Parser) ternary(condition ast.Expression) (ast.Expression, error) {
	questionToken := parser.previous()
	then, err := parser.parsePrecedence(PREC_ASSIGNMENT)
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.COLON, "Expected ':' in ternary expression"); err != nil {
		return nil, err
	}
	elseExpr, err := parser.parsePrecedence(PREC_ASSIGNMENT)
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Ternary{
		Token:     questionToken,
		Condition: condition,
		Then:      then,
		Else:      elseExpr,
	}), nil
}

// call parses `callee(args...)`.
func (parser *Parser) call(callee ast.Expression) (ast.Expression, error) {
	openToken := parser.previous()
	arguments, err := parser.argumentList()
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.Call{
		Token:     openToken,
		Callee:    callee,
		Arguments: arguments,
	}), nil
}

// argumentList parses comma-separated call arguments up to and including
// the closing ')'.
func (parser *Parser) argumentList() ([]ast.Expression, error) {
	arguments := []ast.Expression{}
	for !parser.checkType(token.RPA) && !parser.isFinished() {
		argument, err := parser.expression()
		if err != nil {
			return nil, err
		}
		arguments = append(arguments, argument)
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RPA, "Expected ')' after arguments"); err != nil {
		return nil, err
	}
	return arguments, nil
}

// indexOrSlice parses `recv[index]` and `recv[start..end]`. When the inner
// expression is a range the node becomes a Slice.
func (parser *Parser) indexOrSlice(receiver ast.Expression) (ast.Expression, error) {
	openToken := parser.previous()
	inner, err := parser.expression()
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.RSQR, "Expected ']' after index"); err != nil {
		return nil, err
	}

	if rangeExpr, isRange := inner.(*ast.Range); isRange {
		return ast.Expr(parser.arena, &ast.Slice{
			Token:    openToken,
			Receiver: receiver,
			Start:    rangeExpr.Start,
			End:      rangeExpr.End,
		}), nil
	}
	return ast.Expr(parser.arena, &ast.Index{
		Token:    openToken,
		Receiver: receiver,
		Value:    inner,
	}), nil
}

// fieldOrMethod parses `recv.name` and `recv.name(args...)`.
func (parser *Parser) fieldOrMethod(receiver ast.Expression) (ast.Expression, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected field or method name after '.'")
	if err != nil {
		return nil, err
	}
	if parser.isMatch(token.LPA) {
		arguments, err := parser.argumentList()
		if err != nil {
			return nil, err
		}
		return ast.Expr(parser.arena, &ast.MethodCall{
			Receiver:  receiver,
			Name:      name,
			Arguments: arguments,
		}), nil
	}
	return ast.Expr(parser.arena, &ast.Field{Receiver: receiver, Name: name}), nil
}

// optionalField parses `recv?.name`.
func (parser *Parser) optionalField(receiver ast.Expression) (ast.Expression, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected field name after '?.'")
	if err != nil {
		return nil, err
	}
	return ast.Expr(parser.arena, &ast.OptField{Receiver: receiver, Name: name}), nil
}
