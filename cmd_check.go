package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"cot/compiler"
	"cot/lexer"
	"cot/parser"
)

// checkCmd runs the pipeline for diagnostics only, producing no bytecode
// file.
type checkCmd struct {
	dumpAST bool
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "Type-check a Cot source file without emitting bytecode" }
func (*checkCmd) Usage() string {
	return `cot check [-dump-ast] <file>
`
}

func (cmd *checkCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.dumpAST, "dump-ast", false, "Print the parsed AST as JSON.")
}

func (cmd *checkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	if cmd.dumpAST {
		scanner := lexer.New(string(data))
		p := parser.Make(scanner.Scan())
		statements, parseErrors := p.Parse()
		if len(parseErrors) == 0 {
			p.Print(statements)
		}
	}

	result := compiler.Compile(args[0], string(data))
	if result.Bag.HasErrors() {
		result.Bag.Render(os.Stderr)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: ok\n", args[0])
	return subcommands.ExitSuccess
}
