package parser

import (
	"cot/ast"
	"cot/token"
)

// typeReference parses a syntactic type reference:
//
//	named       i64, Foo
//	pointer     *T
//	optional    ?T
//	array       [4]T
//	slice       []T
//	function    fn(T1, T2) R
//	generic     List<*Item>, Map<string, i64>
func (parser *Parser) typeReference() (ast.TypeRef, error) {
	switch {
	case parser.isMatch(token.MULT):
		star := parser.previous()
		element, err := parser.typeReference()
		if err != nil {
			return nil, err
		}
		return ast.Type(parser.arena, &ast.PointerType{Token: star, Element: element}), nil

	case parser.isMatch(token.QUESTION):
		question := parser.previous()
		element, err := parser.typeReference()
		if err != nil {
			return nil, err
		}
		return ast.Type(parser.arena, &ast.OptionalType{Token: question, Element: element}), nil

	case parser.isMatch(token.LSQR):
		open := parser.previous()
		if parser.isMatch(token.RSQR) {
			element, err := parser.typeReference()
			if err != nil {
				return nil, err
			}
			return ast.Type(parser.arena, &ast.SliceType{Token: open, Element: element}), nil
		}
		length, err := parser.expression()
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.RSQR, "Expected ']' after array length"); err != nil {
			return nil, err
		}
		element, err := parser.typeReference()
		if err != nil {
			return nil, err
		}
		return ast.Type(parser.arena, &ast.ArrayType{Token: open, Length: length, Element: element}), nil

	case parser.isMatch(token.FUNC):
		fnToken := parser.previous()
		if _, err := parser.consume(token.LPA, "Expected '(' in function type"); err != nil {
			return nil, err
		}
		parameters := []ast.TypeRef{}
		for !parser.checkType(token.RPA) && !parser.isFinished() {
			parameter, err := parser.typeReference()
			if err != nil {
				return nil, err
			}
			parameters = append(parameters, parameter)
			if !parser.isMatch(token.COMMA) {
				break
			}
		}
		if _, err := parser.consume(token.RPA, "Expected ')' in function type"); err != nil {
			return nil, err
		}
		var returnType ast.TypeRef
		if parser.checkType(token.IDENTIFIER) || parser.checkType(token.MULT) ||
			parser.checkType(token.QUESTION) || parser.checkType(token.LSQR) || parser.checkType(token.FUNC) {
			var err error
			returnType, err = parser.typeReference()
			if err != nil {
				return nil, err
			}
		}
		return ast.Type(parser.arena, &ast.FuncType{Token: fnToken, Parameters: parameters, Return: returnType}), nil

	case parser.isMatch(token.IDENTIFIER):
		name := parser.previous()
		if parser.isMatch(token.LESS) {
			start := parser.position - 1
			arguments := []ast.TypeRef{}
			var err error
			for {
				var argument ast.TypeRef
				if argument, err = parser.typeReference(); err != nil {
					break
				}
				arguments = append(arguments, argument)
				if !parser.isMatch(token.COMMA) {
					break
				}
			}
			if err == nil {
				err = parser.closeGenericArgs()
			}
			if err == nil {
				return ast.Type(parser.arena, &ast.GenericType{Name: name, Arguments: arguments}), nil
			}
			// the '<' does not open a generic argument list, as in
			// `x as i64 < y`; leave it to the expression parser
			parser.position = start
		}
		return ast.Type(parser.arena, &ast.NamedType{Name: name}), nil
	}

	tok := parser.peek()
	return nil, CreateSyntaxError(tok.Line, tok.Column, "Expected a type")
}

// closeGenericArgs consumes the '>' ending a generic argument list. A
// nested instantiation like Map<string, List<i64>> lexes its final '>>' as
// a single shift token, so when SHR is current it is split in place: one
// '>' is consumed here and a LARGER token is left for the outer list.
func (parser *Parser) closeGenericArgs() error {
	if parser.isMatch(token.LARGER) {
		return nil
	}
	if parser.checkType(token.SHR) {
		shift := parser.peek()
		parser.tokens[parser.position] = token.CreateToken(token.LARGER, shift.Line, shift.Column+1)
		return nil
	}
	tok := parser.peek()
	return CreateSyntaxError(tok.Line, tok.Column, "Expected '>' after generic arguments")
}
