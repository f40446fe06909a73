package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"cot/compiler"
	"cot/ir"
	"cot/lexer"
	"cot/parser"
)

// replCmd is an interactive playground: each line is wrapped in a main
// function, run through the whole pipeline, and the chosen artifact is
// printed. It exists for poking at the compiler, not for executing code.
type replCmd struct {
	showTokens bool
	showAST    bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Interactively inspect how expressions compile" }
func (*replCmd) Usage() string {
	return `cot repl [-tokens] [-ast]
`
}

func (cmd *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.showTokens, "tokens", false, "Print the token stream for each line.")
	f.BoolVar(&cmd.showAST, "ast", false, "Print the AST for each line instead of the IR.")
}

func (cmd *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	fmt.Println("Welcome to the Cot compiler playground. Lines compile inside fn main() i64 { ... }; type exit to leave.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || line == "exit" {
			return subcommands.ExitSuccess
		}
		if line == "" {
			continue
		}

		if cmd.showTokens {
			scanner := lexer.New(line)
			for _, tok := range scanner.Scan() {
				fmt.Println(tok)
			}
			for _, lexErr := range scanner.Errors() {
				fmt.Println(lexErr)
			}
			continue
		}

		source := "fn main() i64 {\n" + line + "\nreturn 0\n}"
		if cmd.showAST {
			scanner := lexer.New(source)
			p := parser.Make(scanner.Scan())
			statements, parseErrors := p.Parse()
			if len(parseErrors) > 0 {
				for _, parseErr := range parseErrors {
					fmt.Println(parseErr)
				}
				continue
			}
			p.Print(statements)
			continue
		}

		result := compiler.Compile("<repl>", source)
		if result.Bag.HasErrors() {
			result.Bag.Render(os.Stdout)
			continue
		}
		fmt.Print(ir.Print(result.Module))
	}
}
