package compiler

import (
	"cot/checker"
	"cot/diag"
	"cot/ir"
	"cot/lexer"
	"cot/lower"
	"cot/parser"
	"cot/types"
)

// Pipeline bundles the artifacts of one compilation so the driver commands
// can stop after any stage.
type Pipeline struct {
	Bag      *diag.Bag
	Registry *types.Registry
	Module   *ir.Module
	Image    *Image
}

// recordFrontendErrors copies lexer and parser errors into the bag in the
// shared diagnostic format.
func recordFrontendErrors(bag *diag.Bag, lexErrors []error, parseErrors []error) {
	for _, err := range lexErrors {
		bag.Add(diag.Lexical, 0, 0, "%v", err)
	}
	for _, err := range parseErrors {
		if syntaxErr, ok := err.(parser.SyntaxError); ok {
			bag.Add(diag.Syntax, syntaxErr.Line, syntaxErr.Column, "%s", syntaxErr.Message)
			continue
		}
		bag.Add(diag.Syntax, 0, 0, "%v", err)
	}
}

// Compile runs the full pipeline over one source buffer: tokens, AST,
// checked AST, SSA IR, bytecode image. Each downstream stage is skipped as
// soon as any upstream stage reports errors; the bag then carries every
// diagnostic found so far.
func Compile(path, source string) *Pipeline {
	p := &Pipeline{
		Bag:      diag.NewBag(path),
		Registry: types.NewRegistry(),
	}

	scanner := lexer.New(source)
	tokens := scanner.Scan()

	syntax := parser.Make(tokens)
	statements, parseErrors := syntax.Parse()
	recordFrontendErrors(p.Bag, scanner.Errors(), parseErrors)
	if p.Bag.HasErrors() {
		return p
	}

	chk := checker.New(p.Registry, p.Bag)
	chk.Check(statements)
	if p.Bag.HasErrors() {
		return p
	}

	p.Module = lower.Lower(statements, chk, p.Registry, p.Bag)
	if p.Bag.HasErrors() {
		return p
	}

	image, err := Emit(p.Module)
	if err != nil {
		p.Bag.Add(diag.Internal, 0, 0, "%v", err)
		return p
	}
	p.Image = image
	return p
}
