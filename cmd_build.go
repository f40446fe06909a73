package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"cot/compiler"
	"cot/ir"
)

// buildCmd compiles a source file into a .cbo bytecode image.
type buildCmd struct {
	output string
	dumpIR bool
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "Compile a Cot source file to bytecode" }
func (*buildCmd) Usage() string {
	return `cot build [-o out.cbo] [-dump-ir] <file>
`
}

func (cmd *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.output, "o", "", "Output path for the bytecode image. Defaults to the source name with a .cbo extension.")
	f.BoolVar(&cmd.dumpIR, "dump-ir", false, "Print the SSA IR module to stdout after lowering.")
}

func (cmd *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}
	sourcePath := args[0]

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	result := compiler.Compile(sourcePath, string(data))
	if result.Bag.HasErrors() {
		result.Bag.Render(os.Stderr)
		return subcommands.ExitFailure
	}

	if cmd.dumpIR {
		fmt.Print(ir.Print(result.Module))
	}

	output := cmd.output
	if output == "" {
		output = strings.TrimSuffix(sourcePath, ".cot")
	}
	if err := result.Image.DumpBytecode(output); err != nil {
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
