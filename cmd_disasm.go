package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"cot/compiler"
)

// disasmCmd compiles a source file and prints the disassembled bytecode.
type disasmCmd struct {
	save    bool
	hexDump bool
}

func (*disasmCmd) Name() string     { return "disasm" }
func (*disasmCmd) Synopsis() string { return "Disassemble the bytecode compiled from a source file" }
func (*disasmCmd) Usage() string {
	return `cot disasm [-save] [-hex] <file>
`
}

func (cmd *disasmCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.save, "save", false, "Also write the disassembly to a .dcbo file next to the source.")
	f.BoolVar(&cmd.hexDump, "hex", false, "Print the raw image bytes as hexadecimal.")
}

func (cmd *disasmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	if cmd.hexDump {
		fmt.Printf("%x\n", result.Image.Bytes())
		return subcommands.ExitSuccess
	}

	fileName := strings.TrimSuffix(sourcePath, ".cot")
	text, err := result.Image.Disassemble(cmd.save, fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Bytecode disassemble error:\n\t%s\n", err.Error())
		return subcommands.ExitFailure
	}
	fmt.Print(text)
	return subcommands.ExitSuccess
}
