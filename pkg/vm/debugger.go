// Package vm - debugger support: an interactive, breakpoint-driven
// inspector a host can attach to a VM to step through a script's bytecode.
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/progalt/solis/pkg/chunk"
)

// Debugger provides interactive debugging capabilities for a VM: single
// stepping, breakpoints keyed by bytecode offset, and stack/global/call-
// stack inspection.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a debugger for vm. It starts disabled; the VM's
// dispatch loop only consults ShouldPause once EnableDebugger has been
// called.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{vm: vm, breakpoints: make(map[int]bool)}
}

// EnableDebugger attaches (creating if necessary) and enables vm's
// debugger.
func (vm *VM) EnableDebugger() *Debugger {
	if vm.debugger == nil {
		vm.debugger = NewDebugger(vm)
	}
	vm.debugger.Enable()
	return vm.debugger
}

// GetDebugger returns the VM's debugger, or nil if EnableDebugger was never
// called.
func (vm *VM) GetDebugger() *Debugger { return vm.debugger }

func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode enables or disables pausing after every instruction.
func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

func (d *Debugger) AddBreakpoint(ip int)    { d.breakpoints[ip] = true }
func (d *Debugger) RemoveBreakpoint(ip int) { delete(d.breakpoints, ip) }
func (d *Debugger) ClearBreakpoints()       { d.breakpoints = make(map[int]bool) }

// ShouldPause reports whether the dispatch loop should stop before
// executing the instruction at the current frame's ip.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	if d.vm.frameCount == 0 {
		return false
	}
	return d.breakpoints[d.vm.currentFrame().ip]
}

func (d *Debugger) currentChunk() (*chunk.Chunk, bool) {
	if d.vm.frameCount == 0 {
		return nil, false
	}
	c, ok := d.vm.currentFrame().closure.Function.Chunk.(*chunk.Chunk)
	return c, ok
}

// ShowCurrentInstruction prints the instruction about to execute in the
// active frame.
func (d *Debugger) ShowCurrentInstruction() {
	c, ok := d.currentChunk()
	if !ok {
		fmt.Println("no current instruction")
		return
	}
	ip := d.vm.currentFrame().ip
	if ip >= len(c.Code) {
		fmt.Println("no current instruction")
		return
	}
	line, _ := c.DisassembleInstruction(ip)
	fmt.Println(line)
}

// ShowStack displays the VM's value stack, top first.
func (d *Debugger) ShowStack() {
	fmt.Println("stack (top to bottom):")
	if d.vm.stackTop == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := d.vm.stackTop - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, d.vm.stack[i].String())
	}
}

// ShowLocals displays the active frame's local slots.
func (d *Debugger) ShowLocals() {
	fmt.Println("locals:")
	if d.vm.frameCount == 0 {
		fmt.Println("  (no active frame)")
		return
	}
	frame := d.vm.currentFrame()
	if frame.slots >= d.vm.stackTop {
		fmt.Println("  (none set)")
		return
	}
	for i := frame.slots; i < d.vm.stackTop; i++ {
		fmt.Printf("  [%d] %s\n", i-frame.slots, d.vm.stack[i].String())
	}
}

// ShowGlobals displays every module-level global.
func (d *Debugger) ShowGlobals() {
	fmt.Println("globals:")
	if d.vm.module == nil || len(d.vm.module.GlobalMap) == 0 {
		fmt.Println("  (none)")
		return
	}
	for name, slot := range d.vm.module.GlobalMap {
		fmt.Printf("  %s = %s\n", name, d.vm.module.Globals[slot].String())
	}
}

// ShowCallStack displays the active call frames, innermost first.
func (d *Debugger) ShowCallStack() {
	fmt.Println("call stack (innermost first):")
	if d.vm.frameCount == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := d.vm.frameCount - 1; i >= 0; i-- {
		f := &d.vm.frames[i]
		name := "<script>"
		if f.closure.Function.Name != nil {
			name = f.closure.Function.Name.Chars
		}
		fmt.Printf("  %s [ip %d]\n", name, f.ip)
	}
}

// InteractivePrompt reads commands from stdin until one resumes execution
// ("continue"/"step"/"next") or aborts it ("quit"), returning whether
// execution should continue.
func (d *Debugger) InteractivePrompt() (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("\n=== paused ===")
	d.ShowCurrentInstruction()

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.ShowStack()
		case "locals", "l":
			d.ShowLocals()
		case "globals", "g":
			d.ShowGlobals()
		case "callstack", "cs":
			d.ShowCallStack()
		case "instruction", "i":
			d.ShowCurrentInstruction()
		case "breakpoint", "b":
			if len(parts) < 2 {
				fmt.Println("usage: breakpoint <offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid offset")
				continue
			}
			d.AddBreakpoint(ip)
			fmt.Printf("breakpoint set at %d\n", ip)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("usage: delete <offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid offset")
				continue
			}
			d.RemoveBreakpoint(ip)
			fmt.Printf("breakpoint removed at %d\n", ip)
		case "list", "ls":
			d.listInstructions()
		case "quit", "q":
			return false
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println("commands:")
	fmt.Println("  help, h, ?           show this help")
	fmt.Println("  continue, c          resume execution")
	fmt.Println("  step, s, next, n     execute one instruction")
	fmt.Println("  stack, st            show the value stack")
	fmt.Println("  locals, l            show the active frame's locals")
	fmt.Println("  globals, g           show module globals")
	fmt.Println("  callstack, cs        show the call stack")
	fmt.Println("  instruction, i       show the current instruction")
	fmt.Println("  breakpoint <n>, b    set a breakpoint at offset n")
	fmt.Println("  delete <n>, d        remove a breakpoint at offset n")
	fmt.Println("  list, ls             list every instruction in the active chunk")
	fmt.Println("  quit, q              abort execution")
}

func (d *Debugger) listInstructions() {
	c, ok := d.currentChunk()
	if !ok {
		fmt.Println("no active chunk")
		return
	}
	curIP := -1
	if d.vm.frameCount > 0 {
		curIP = d.vm.currentFrame().ip
	}
	offset := 0
	for offset < len(c.Code) {
		marker := "  "
		if offset == curIP {
			marker = "->"
		} else if d.breakpoints[offset] {
			marker = "* "
		}
		line, next := c.DisassembleInstruction(offset)
		fmt.Printf("%s %s\n", marker, line)
		offset = next
	}
}
