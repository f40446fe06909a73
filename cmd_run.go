package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/subcommands"

	"cot/compiler"
)

// runCmd compiles a source file and hands the image to an external Cot VM
// binary when one is available on PATH. The VM is a separate collaborator;
// without one the command reports the image summary instead of executing.
type runCmd struct {
	vmPath string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Compile a Cot source file and execute it on the VM" }
func (*runCmd) Usage() string {
	return `cot run [-vm path] <file> [args...]
`
}

func (cmd *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.vmPath, "vm", "cotvm", "Path to the VM binary that executes the image.")
}

func (cmd *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	vm, err := exec.LookPath(cmd.vmPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no VM binary %q on PATH; compiled %d routines, %d bytes of code\n",
			cmd.vmPath, len(result.Image.Routines), len(result.Image.Code))
		return subcommands.ExitFailure
	}

	tmp, err := os.CreateTemp("", "cot-*.cbo")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(result.Image.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	tmp.Close()

	execution := exec.CommandContext(ctx, vm, append([]string{tmp.Name()}, args[1:]...)...)
	execution.Stdin = os.Stdin
	execution.Stdout = os.Stdout
	execution.Stderr = os.Stderr
	if err := execution.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return subcommands.ExitStatus(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
