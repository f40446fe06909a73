// Recursive descent parser
// https://en.wikipedia.org/wiki/Recursive_descent_parser
//
//	A Recursive descent parser is a top-down parser because it starts from the top
//
// grammar rule and works its way down in to the nested sub-expressions before reaching
// the leaves of the syntax tree (terminal rules). Declarations and statements are
// parsed by recursive descent; expressions use Pratt parsing (see expressions.go).
package parser

import (
	"fmt"

	"cot/ast"
	"cot/token"
)

// statementStarters are the token types parsing resynchronizes on after a
// syntax error.
var statementStarters = map[token.TokenType]bool{
	token.FUNC:     true,
	token.STRUCT:   true,
	token.ENUM:     true,
	token.IMPL:     true,
	token.TRAIT:    true,
	token.UNION:    true,
	token.TYPE:     true,
	token.TEST:     true,
	token.IMPORT:   true,
	token.COMPTIME: true,
	token.VAR:      true,
	token.CONST:    true,
	token.RETURN:   true,
	token.IF:       true,
	token.WHILE:    true,
	token.FOR:      true,
	token.SWITCH:   true,
	token.LOOP:     true,
	token.DEFER:    true,
	token.TRY:      true,
	token.THROW:    true,
}

type Parser struct {
	tokens   []token.Token
	position int
	arena    *ast.Arena
	rules    map[token.TokenType]parseRule
}

// NOTE: The parsers position is always one unit ahead of the
// current token

// Make initializes and returns a new Parser instance over the given token
// stream. The parser owns the AST arena; nodes stay valid until the arena is
// discarded together with the parser's output.
func Make(tokens []token.Token) *Parser {
	parser := &Parser{
		tokens:   tokens,
		position: 0,
		arena:    ast.NewArena(),
	}
	parser.rules = buildRules()
	return parser
}

// Arena returns the arena owning every node the parser has allocated.
func (parser *Parser) Arena() *ast.Arena {
	return parser.arena
}

// Peeks the token at the parser's current position,
// without advancing the parser's position.
func (parser *Parser) peek() token.Token {
	return parser.tokens[parser.position]
}

// peekNext returns the token one past the current position without advancing.
func (parser *Parser) peekNext() token.Token {
	if parser.position+1 >= len(parser.tokens) {
		return parser.tokens[len(parser.tokens)-1]
	}
	return parser.tokens[parser.position+1]
}

// Retrieves the token at the parser's previous position
// (position -1)
func (parser *Parser) previous() token.Token {
	return parser.tokens[parser.position-1]
}

// Increments the parser's position by one unit and
// consumes the current token
//
// Returns:
//   - token.Token: The token at the previous position
func (parser *Parser) advance() token.Token {
	if !parser.isFinished() {
		parser.position++
	}
	return parser.previous()
}

// Determines if the parser has finished scanning all the tokens.
func (parser *Parser) isFinished() bool {
	return parser.peek().TokenType == token.EOF
}

// Determines if the provided tokenType matches the TokenType
// at the parser's current position
func (parser *Parser) checkType(tokenType token.TokenType) bool {
	if parser.isFinished() {
		return false
	}
	return parser.peek().TokenType == tokenType
}

// Determines if the TokenType at the current
// position matches any of the provided tokenTypes. If a match is
// found the parser increments its position and consumes the
// current token
func (parser *Parser) isMatch(tokenTypes ...token.TokenType) bool {
	for _, tokenType := range tokenTypes {
		if parser.checkType(tokenType) {
			parser.advance()
			return true
		}
	}
	return false
}

// Consumes the current token by advancing the parsers current position by
// one unit if the `tokenType` matches the token type of the parsers current
// position.
//
//	Returns:
//	- A SyntaxError if the provided `tokenType` does not match the `TokenType`
//		at the parsers current position
func (parser *Parser) consume(tokenType token.TokenType, errorMessage string) (token.Token, error) {
	if parser.checkType(tokenType) {
		return parser.advance(), nil
	}
	currentToken := parser.peek()
	return token.Token{}, CreateSyntaxError(currentToken.Line, currentToken.Column, errorMessage)
}

// synchronize discards tokens after a syntax error until the next plausible
// statement boundary, so one mistake produces one diagnostic.
func (parser *Parser) synchronize() {
	for !parser.isFinished() {
		if parser.previous().TokenType == token.SEMICOLON {
			return
		}
		if statementStarters[parser.peek().TokenType] {
			return
		}
		// a close-delimiter ends whatever construct went wrong; consume it
		// so the next iteration starts on a fresh statement
		if parser.checkType(token.RCUR) {
			parser.advance()
			continue
		}
		parser.advance()
	}
}

// Parse parses the entire token stream into a slice of Statement nodes,
// continuing until the end of input. Errors during parsing are collected
// but parsing continues to find additional errors where possible.
//
// Returns:
//   - []ast.Statement: the successfully parsed statements.
//   - []error: all errors that occurred during parsing.
func (parser *Parser) Parse() ([]ast.Statement, []error) {
	statements := []ast.Statement{}
	errors := []error{}

	for !parser.isFinished() {
		statement, err := parser.declaration()
		if err != nil {
			errors = append(errors, err)
			if parser.position > 0 && parser.previous().TokenType != token.SEMICOLON {
				parser.advance()
			}
			parser.synchronize()
			continue
		}
		statements = append(statements, statement)
	}

	return statements, errors
}

// declaration parses a top-level or nested declaration: functions, type
// declarations, impl blocks, imports and comptime blocks, falling back to
// statement for everything else.
func (parser *Parser) declaration() (ast.Statement, error) {
	isPublic := parser.isMatch(token.PUB)

	switch {
	case parser.checkType(token.FUNC) && parser.peekNext().TokenType != token.LPA:
		// `fn(` at statement start begins a lambda expression instead
		parser.advance()
		return parser.functionDeclaration(isPublic)
	case parser.isMatch(token.STRUCT):
		return parser.structDeclaration(isPublic)
	case parser.isMatch(token.ENUM):
		return parser.enumDeclaration(isPublic)
	case parser.isMatch(token.TRAIT):
		return parser.traitDeclaration(isPublic)
	case parser.isMatch(token.UNION):
		return parser.unionDeclaration(isPublic)
	case parser.isMatch(token.TYPE):
		return parser.typeAliasDeclaration(isPublic)
	case parser.isMatch(token.IMPL):
		return parser.implBlock()
	case parser.isMatch(token.TEST):
		return parser.testDeclaration()
	case parser.isMatch(token.IMPORT):
		return parser.importDeclaration()
	case parser.isMatch(token.COMPTIME):
		return parser.comptimeBlock()
	}

	if isPublic {
		tok := parser.peek()
		return nil, CreateSyntaxError(tok.Line, tok.Column, "'pub' must be followed by a declaration")
	}
	return parser.statement()
}

// functionDeclaration parses `fn name(params) ret { body }`. The return
// type is optional and defaults to void.
func (parser *Parser) functionDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected function name")
	if err != nil {
		return nil, err
	}

	parameters, err := parser.parameterList()
	if err != nil {
		return nil, err
	}

	var returnType ast.TypeRef
	if !parser.checkType(token.LCUR) {
		returnType, err = parser.typeReference()
		if err != nil {
			return nil, err
		}
	}

	if _, err := parser.consume(token.LCUR, "Expected '{' before function body"); err != nil {
		return nil, err
	}
	body, err := parser.block()
	if err != nil {
		return nil, err
	}

	return ast.Stmt(parser.arena, &ast.FunctionDecl{
		Name:       name,
		Parameters: parameters,
		ReturnType: returnType,
		Body:       body,
		IsPublic:   isPublic,
	}), nil
}

// parameterList parses `(name: Type, ...)`.
func (parser *Parser) parameterList() ([]ast.Parameter, error) {
	if _, err := parser.consume(token.LPA, "Expected '(' after function name"); err != nil {
		return nil, err
	}
	parameters := []ast.Parameter{}
	for !parser.checkType(token.RPA) {
		name, err := parser.consume(token.IDENTIFIER, "Expected parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.COLON, "Expected ':' after parameter name"); err != nil {
			return nil, err
		}
		paramType, err := parser.typeReference()
		if err != nil {
			return nil, err
		}
		parameters = append(parameters, ast.Parameter{Name: name, Type: paramType})
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RPA, "Expected ')' after parameters"); err != nil {
		return nil, err
	}
	return parameters, nil
}

// structDeclaration parses `struct Name { field: Type, ... }`.
func (parser *Parser) structDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected struct name")
	if err != nil {
		return nil, err
	}
	fields, err := parser.fieldList("struct")
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.StructDecl{Name: name, Fields: fields, IsPublic: isPublic}), nil
}

// fieldList parses `{ name: Type, ... }` shared by struct and union
// declarations.
func (parser *Parser) fieldList(owner string) ([]ast.StructField, error) {
	if _, err := parser.consume(token.LCUR, fmt.Sprintf("Expected '{' after %s name", owner)); err != nil {
		return nil, err
	}
	fields := []ast.StructField{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		fieldName, err := parser.consume(token.IDENTIFIER, "Expected field name")
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.COLON, "Expected ':' after field name"); err != nil {
			return nil, err
		}
		fieldType, err := parser.typeReference()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.StructField{Name: fieldName, Type: fieldType})
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RCUR, fmt.Sprintf("Expected '}' after %s fields", owner)); err != nil {
		return nil, err
	}
	return fields, nil
}

// enumDeclaration parses `enum Name { Variant, Variant(T1, T2),
// Variant{ field: T } }`.
func (parser *Parser) enumDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected enum name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LCUR, "Expected '{' after enum name"); err != nil {
		return nil, err
	}

	variants := []ast.EnumVariant{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		variantName, err := parser.consume(token.IDENTIFIER, "Expected variant name")
		if err != nil {
			return nil, err
		}
		variant := ast.EnumVariant{Name: variantName}

		if parser.isMatch(token.LPA) {
			// tuple payload: Name(T1, T2)
			for !parser.checkType(token.RPA) {
				payloadType, err := parser.typeReference()
				if err != nil {
					return nil, err
				}
				variant.Payload = append(variant.Payload, payloadType)
				if !parser.isMatch(token.COMMA) {
					break
				}
			}
			if _, err := parser.consume(token.RPA, "Expected ')' after variant payload"); err != nil {
				return nil, err
			}
		} else if parser.checkType(token.LCUR) {
			// struct-like payload: Name{ field: T }
			fields, err := parser.fieldList("variant")
			if err != nil {
				return nil, err
			}
			variant.Fields = fields
		}

		variants = append(variants, variant)
		if !parser.isMatch(token.COMMA) {
			break
		}
	}
	if _, err := parser.consume(token.RCUR, "Expected '}' after enum variants"); err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.EnumDecl{Name: name, Variants: variants, IsPublic: isPublic}), nil
}

// implBlock parses `impl Type { fns }` and `impl Trait for Type { fns }`.
func (parser *Parser) implBlock() (ast.Statement, error) {
	implToken := parser.previous()
	first, err := parser.consume(token.IDENTIFIER, "Expected type or trait name after 'impl'")
	if err != nil {
		return nil, err
	}

	var trait, target token.Token
	if parser.isMatch(token.FOR) {
		trait = first
		target, err = parser.consume(token.IDENTIFIER, "Expected type name after 'for'")
		if err != nil {
			return nil, err
		}
	} else {
		target = first
	}

	if _, err := parser.consume(token.LCUR, "Expected '{' after impl target"); err != nil {
		return nil, err
	}
	methods := []*ast.FunctionDecl{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		if _, err := parser.consume(token.FUNC, "Expected method declaration inside impl block"); err != nil {
			return nil, err
		}
		method, err := parser.functionDeclaration(false)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method.(*ast.FunctionDecl))
	}
	if _, err := parser.consume(token.RCUR, "Expected '}' after impl block"); err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.ImplBlock{
		Token:   implToken,
		Trait:   trait,
		Target:  target,
		Methods: methods,
	}), nil
}

// traitDeclaration parses `trait Name { fn sig(params) ret ... }`.
func (parser *Parser) traitDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected trait name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LCUR, "Expected '{' after trait name"); err != nil {
		return nil, err
	}
	methods := []ast.TraitMethod{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		if _, err := parser.consume(token.FUNC, "Expected method signature inside trait"); err != nil {
			return nil, err
		}
		methodName, err := parser.consume(token.IDENTIFIER, "Expected method name")
		if err != nil {
			return nil, err
		}
		parameters, err := parser.parameterList()
		if err != nil {
			return nil, err
		}
		var returnType ast.TypeRef
		if !parser.checkType(token.FUNC) && !parser.checkType(token.RCUR) {
			returnType, err = parser.typeReference()
			if err != nil {
				return nil, err
			}
		}
		methods = append(methods, ast.TraitMethod{
			Name:       methodName,
			Parameters: parameters,
			ReturnType: returnType,
		})
	}
	if _, err := parser.consume(token.RCUR, "Expected '}' after trait body"); err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.TraitDecl{Name: name, Methods: methods, IsPublic: isPublic}), nil
}

// unionDeclaration parses `union Name { field: Type, ... }`.
func (parser *Parser) unionDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected union name")
	if err != nil {
		return nil, err
	}
	fields, err := parser.fieldList("union")
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.UnionDecl{Name: name, Fields: fields, IsPublic: isPublic}), nil
}

// typeAliasDeclaration parses `type Name = Target`.
func (parser *Parser) typeAliasDeclaration(isPublic bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected type alias name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.ASSIGN, "Expected '=' after type alias name"); err != nil {
		return nil, err
	}
	target, err := parser.typeReference()
	if err != nil {
		return nil, err
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.TypeAliasDecl{Name: name, Target: target, IsPublic: isPublic}), nil
}

// testDeclaration parses `test "name" { body }`.
func (parser *Parser) testDeclaration() (ast.Statement, error) {
	testToken := parser.previous()
	name, err := parser.consume(token.STRING, "Expected test name string")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LCUR, "Expected '{' after test name"); err != nil {
		return nil, err
	}
	body, err := parser.block()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.TestDecl{Token: testToken, Name: name, Body: body}), nil
}

// importDeclaration parses `import "path"` with an optional `as alias`.
func (parser *Parser) importDeclaration() (ast.Statement, error) {
	importToken := parser.previous()
	path, err := parser.consume(token.STRING, "Expected import path string")
	if err != nil {
		return nil, err
	}
	var alias token.Token
	if parser.isMatch(token.AS) {
		alias, err = parser.consume(token.IDENTIFIER, "Expected import alias")
		if err != nil {
			return nil, err
		}
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.ImportDecl{Token: importToken, Path: path, Alias: alias}), nil
}

// comptimeBlock parses a top-level `comptime { }` block.
func (parser *Parser) comptimeBlock() (ast.Statement, error) {
	comptimeToken := parser.previous()
	if _, err := parser.consume(token.LCUR, "Expected '{' after 'comptime'"); err != nil {
		return nil, err
	}
	body, err := parser.block()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.ComptimeBlock{Token: comptimeToken, Body: body}), nil
}

// statement parses a single statement.
func (parser *Parser) statement() (ast.Statement, error) {
	switch {
	case parser.isMatch(token.VAR):
		return parser.variableDeclaration(false)
	case parser.isMatch(token.CONST):
		return parser.variableDeclaration(true)
	case parser.isMatch(token.RETURN):
		return parser.returnStatement()
	case parser.isMatch(token.IF):
		return parser.ifStatement()
	case parser.isMatch(token.WHILE):
		return parser.whileStatement()
	case parser.isMatch(token.FOR):
		return parser.forStatement()
	case parser.isMatch(token.SWITCH):
		return parser.switchStatement()
	case parser.isMatch(token.LOOP):
		return parser.loopStatement()
	case parser.isMatch(token.DEFER):
		return parser.deferStatement()
	case parser.isMatch(token.TRY):
		return parser.tryStatement()
	case parser.isMatch(token.THROW):
		return parser.throwStatement()
	case parser.isMatch(token.BREAK):
		tok := parser.previous()
		parser.isMatch(token.SEMICOLON)
		return ast.Stmt(parser.arena, &ast.BreakStmt{Token: tok}), nil
	case parser.isMatch(token.CONTINUE):
		tok := parser.previous()
		parser.isMatch(token.SEMICOLON)
		return ast.Stmt(parser.arena, &ast.ContinueStmt{Token: tok}), nil
	case parser.isMatch(token.LCUR):
		blockToken := parser.previous()
		statements, err := parser.block()
		if err != nil {
			return nil, err
		}
		statements.Token = blockToken
		return statements, nil
	}

	return parser.expressionStatement()
}

// variableDeclaration parses `var name [: Type] = expr` and
// `const name [: Type] = expr`. A const without an initializer is a syntax
// error; a var may omit the initializer only when a type is given.
func (parser *Parser) variableDeclaration(isConst bool) (ast.Statement, error) {
	name, err := parser.consume(token.IDENTIFIER, "Expected variable name")
	if err != nil {
		return nil, err
	}

	var varType ast.TypeRef
	if parser.isMatch(token.COLON) {
		varType, err = parser.typeReference()
		if err != nil {
			return nil, err
		}
	}

	var initializer ast.Expression
	if parser.isMatch(token.ASSIGN) {
		initializer, err = parser.expression()
		if err != nil {
			return nil, err
		}
	}

	if initializer == nil {
		if isConst {
			return nil, CreateSyntaxError(name.Line, name.Column, fmt.Sprintf("const '%s' must be initialised", name.Lexeme))
		}
		if varType == nil {
			return nil, CreateSyntaxError(name.Line, name.Column, fmt.Sprintf("variable '%s' needs a type or an initialiser", name.Lexeme))
		}
	}

	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.VarStmt{
		Name:        name,
		Type:        varType,
		Initializer: initializer,
		IsConst:     isConst,
	}), nil
}

// returnStatement parses `return [expr]`.
func (parser *Parser) returnStatement() (ast.Statement, error) {
	returnToken := parser.previous()
	var value ast.Expression
	if !parser.checkType(token.RCUR) && !parser.checkType(token.SEMICOLON) && !parser.isFinished() {
		var err error
		value, err = parser.expression()
		if err != nil {
			return nil, err
		}
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.ReturnStmt{Token: returnToken, Value: value}), nil
}

// ifStatement parses an if-statement with an optional else branch; `else if`
// chains nest as IfStmt in the Else slot.
func (parser *Parser) ifStatement() (ast.Statement, error) {
	ifToken := parser.previous()

	condition, err := parser.expression()
	if err != nil {
		return nil, err
	}

	then, err := parser.statement()
	if err != nil {
		return nil, err
	}

	var elseStmt ast.Statement
	if parser.isMatch(token.ELSE) {
		elseStmt, err = parser.statement()
		if err != nil {
			return nil, err
		}
	}

	return ast.Stmt(parser.arena, &ast.IfStmt{
		Token:     ifToken,
		Condition: condition,
		Then:      then,
		Else:      elseStmt,
	}), nil
}

// whileStatement parses `while cond { body }`.
func (parser *Parser) whileStatement() (ast.Statement, error) {
	whileToken := parser.previous()
	condition, err := parser.expression()
	if err != nil {
		return nil, err
	}
	body, err := parser.statement()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.WhileStmt{
		Token:     whileToken,
		Condition: condition,
		Body:      body,
	}), nil
}

// forStatement parses `for x in iterable { body }` where iterable is a
// range or a collection; the checker tells the two forms apart.
func (parser *Parser) forStatement() (ast.Statement, error) {
	forToken := parser.previous()
	variable, err := parser.consume(token.IDENTIFIER, "Expected loop variable name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.IN, "Expected 'in' after loop variable"); err != nil {
		return nil, err
	}
	iterable, err := parser.expression()
	if err != nil {
		return nil, err
	}
	body, err := parser.statement()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.ForStmt{
		Token:    forToken,
		Variable: variable,
		Iterable: iterable,
		Body:     body,
	}), nil
}

// switchStatement parses `switch subject { pattern => body, ... }`.
func (parser *Parser) switchStatement() (ast.Statement, error) {
	switchToken := parser.previous()
	subject, err := parser.expression()
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LCUR, "Expected '{' after switch subject"); err != nil {
		return nil, err
	}

	arms := []ast.SwitchArm{}
	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		pattern, err := parser.switchPattern()
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.FAT_ARROW, "Expected '=>' after switch pattern"); err != nil {
			return nil, err
		}
		body, err := parser.statement()
		if err != nil {
			return nil, err
		}
		arms = append(arms, ast.SwitchArm{Pattern: pattern, Body: body})
		parser.isMatch(token.COMMA)
	}
	if _, err := parser.consume(token.RCUR, "Expected '}' after switch arms"); err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.SwitchStmt{
		Token:   switchToken,
		Subject: subject,
		Arms:    arms,
	}), nil
}

// switchPattern parses one arm pattern: a literal, an enum variant with
// optional payload bindings, or the wildcard `_`.
func (parser *Parser) switchPattern() (ast.Pattern, error) {
	tok := parser.peek()

	switch tok.TokenType {
	case token.INT, token.FLOAT, token.STRING, token.TRUE, token.FALSE:
		parser.advance()
		value := tok.Literal
		if tok.TokenType == token.TRUE {
			value = true
		} else if tok.TokenType == token.FALSE {
			value = false
		}
		return ast.LiteralPattern{Value: ast.Literal{Token: tok, Value: value}}, nil

	case token.IDENTIFIER:
		if tok.Lexeme == "_" {
			parser.advance()
			return ast.WildcardPattern{Token: tok}, nil
		}
		parser.advance()
		variantPattern := ast.VariantPattern{EnumName: tok}
		if parser.isMatch(token.SCOPE) {
			variant, err := parser.consume(token.IDENTIFIER, "Expected variant name after '::'")
			if err != nil {
				return nil, err
			}
			variantPattern.Variant = variant
		} else {
			// bare variant name; enum inferred from the subject
			variantPattern.Variant = tok
			variantPattern.EnumName = token.Token{}
		}
		if parser.isMatch(token.LPA) {
			for !parser.checkType(token.RPA) {
				binding, err := parser.consume(token.IDENTIFIER, "Expected binding name in variant pattern")
				if err != nil {
					return nil, err
				}
				variantPattern.Bindings = append(variantPattern.Bindings, binding)
				if !parser.isMatch(token.COMMA) {
					break
				}
			}
			if _, err := parser.consume(token.RPA, "Expected ')' after variant bindings"); err != nil {
				return nil, err
			}
		}
		return variantPattern, nil
	}

	return nil, CreateSyntaxError(tok.Line, tok.Column, "Unrecognised switch pattern")
}

// loopStatement parses an infinite `loop { body }`.
func (parser *Parser) loopStatement() (ast.Statement, error) {
	loopToken := parser.previous()
	body, err := parser.statement()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.LoopStmt{Token: loopToken, Body: body}), nil
}

// deferStatement parses `defer expr`.
func (parser *Parser) deferStatement() (ast.Statement, error) {
	deferToken := parser.previous()
	expression, err := parser.expression()
	if err != nil {
		return nil, err
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.DeferStmt{Token: deferToken, Expression: expression}), nil
}

// tryStatement parses `try { } catch (e) { }`.
func (parser *Parser) tryStatement() (ast.Statement, error) {
	tryToken := parser.previous()
	if _, err := parser.consume(token.LCUR, "Expected '{' after 'try'"); err != nil {
		return nil, err
	}
	body, err := parser.block()
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.CATCH, "Expected 'catch' after try block"); err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LPA, "Expected '(' after 'catch'"); err != nil {
		return nil, err
	}
	errName, err := parser.consume(token.IDENTIFIER, "Expected error binding name")
	if err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.RPA, "Expected ')' after error binding"); err != nil {
		return nil, err
	}
	if _, err := parser.consume(token.LCUR, "Expected '{' after catch clause"); err != nil {
		return nil, err
	}
	catch, err := parser.block()
	if err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.TryStmt{
		Token:   tryToken,
		Body:    body,
		ErrName: errName,
		Catch:   catch,
	}), nil
}

// throwStatement parses `throw expr`.
func (parser *Parser) throwStatement() (ast.Statement, error) {
	throwToken := parser.previous()
	value, err := parser.expression()
	if err != nil {
		return nil, err
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.ThrowStmt{Token: throwToken, Value: value}), nil
}

// expressionStatement parses a statement consisting of a single expression.
func (parser *Parser) expressionStatement() (ast.Statement, error) {
	expression, err := parser.expression()
	if err != nil {
		return nil, err
	}
	parser.isMatch(token.SEMICOLON)
	return ast.Stmt(parser.arena, &ast.ExpressionStmt{Expression: expression}), nil
}

// block parses the statements of a block whose '{' has already been
// consumed, up to and including the matching '}'.
func (parser *Parser) block() (*ast.BlockStmt, error) {
	blockToken := parser.previous()
	statements := []ast.Statement{}

	for !parser.checkType(token.RCUR) && !parser.isFinished() {
		statement, err := parser.declaration()
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}

	if _, err := parser.consume(token.RCUR, fmt.Sprintf("Expected '%s' after block.", token.RCUR)); err != nil {
		return nil, err
	}
	return ast.Stmt(parser.arena, &ast.BlockStmt{Token: blockToken, Statements: statements}), nil
}

// Print prints the AST as prettified JSON to standard output.
func (parser *Parser) Print(statements []ast.Statement) {
	_, err := PrintASTJSON(statements)
	if err != nil {
		fmt.Println("error producing AST JSON:", err)
	}
}

// PrintToFile writes the AST for the provided statements to a .json file at the given path.
func (parser *Parser) PrintToFile(statements []ast.Statement, path string) error {
	return WriteASTJSONToFile(statements, path)
}
