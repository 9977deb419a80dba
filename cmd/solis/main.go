// Command solis is the command-line driver for the Solis virtual machine:
// run a script file, or drop into an interactive REPL.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/progalt/solis/pkg/corelib"
	"github.com/progalt/solis/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("solis version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("solis - a dynamically typed, class-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  solis                 start the interactive REPL")
	fmt.Println("  solis [file]          run a .solis source file")
	fmt.Println("  solis run [file]      run a .solis source file")
	fmt.Println("  solis repl            start the interactive REPL")
	fmt.Println("  solis version         show version")
	fmt.Println("  solis help            show this help")
}

// newVM constructs a VM with corelib's OS/Digest classes wired in,
// matching cmd/solis's role as the "embedder" the interpreter core itself
// deliberately stays agnostic of.
func newVM() *vm.VM {
	v := vm.New()
	corelib.Register(v)
	return v
}

// runFile loads and executes a script with a fresh VM. Per the CLI's exit
// code contract, only a failure to read the file itself sets exit status 1;
// a compile or runtime error inside the script is reported but leaves the
// process exit code at 0.
func runFile(filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		printError(fmt.Sprintf("reading file: %v", err))
		os.Exit(1)
	}

	v := newVM()
	if _, err := v.Interpret(string(data), filename); err != nil {
		printError(err.Error())
	}
}

func printError(msg string) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprintln(os.Stderr, "error:")
	fmt.Fprintln(os.Stderr, msg)
}

// runREPL drives an interactive session against one persistent VM, matching
// the colon-command surface §6 names: `:load <path>` compiles and runs a
// file against the session's VM, `:r` reloads whichever file `:load` last
// named, `:help` prints the command list, and `:quit` exits. Anything else
// typed is compiled and run as a line of source.
func runREPL() {
	fmt.Printf("solis REPL v%s\n", version)
	fmt.Println("Type :help for REPL commands, :quit or Ctrl-D to quit.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	v := newVM()
	moduleName := "<repl>"
	var lastFile string

	for {
		input, err := line.Prompt("solis> ")
		if err != nil {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case trimmed == ":quit":
			return
		case trimmed == ":help":
			printREPLHelp()
		case strings.HasPrefix(trimmed, ":load"):
			path := strings.TrimSpace(strings.TrimPrefix(trimmed, ":load"))
			if path == "" {
				fmt.Println("usage: :load <path>")
				continue
			}
			lastFile = path
			runREPLFile(v, path)
		case trimmed == ":r":
			if lastFile == "" {
				fmt.Println("no file loaded yet; use :load <path> first")
				continue
			}
			runREPLFile(v, lastFile)
		default:
			result, err := v.Interpret(input, moduleName)
			if err != nil {
				printError(err.Error())
				continue
			}
			if !result.IsNull() {
				color.New(color.FgGreen).Printf("=> %s\n", result.String())
			}
		}
	}
}

func runREPLFile(v *vm.VM, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		printError(fmt.Sprintf("reading file: %v", err))
		return
	}
	if _, err := v.Interpret(string(data), path); err != nil {
		printError(err.Error())
	}
}

func printREPLHelp() {
	fmt.Println("-- REPL commands --")
	fmt.Println("  :load <path>   load and execute a file against this session")
	fmt.Println("  :r             reload and re-execute the last :load'ed file")
	fmt.Println("  :help          show this help")
	fmt.Println("  :quit          quit the REPL")
	fmt.Println()
	fmt.Println("Anything else is compiled and run as a line of source.")
}
