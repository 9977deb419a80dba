// Package vm - the embedding API a host program links against to extend a
// VM with native classes, functions, and globals without pkg/value ever
// importing pkg/vm back (see value.NativeContext).
package vm

import (
	"fmt"

	"github.com/progalt/solis/pkg/chunk"
	"github.com/progalt/solis/pkg/value"
)

// RaiseError records a runtime error and unwinds the dispatch loop the next
// time it checks vm.raised (every opcode, and right after a native call
// returns). It implements value.NativeContext so a host callback can call
// ctx.RaiseError the same way the VM's own opcodes do.
func (vm *VM) RaiseError(format string, args ...interface{}) {
	if vm.raised != nil {
		return // first error wins; don't clobber it mid-unwind
	}
	vm.raised = vm.buildRuntimeError(fmt.Sprintf(format, args...))
}

// takeError converts a pending raised error into the error Interpret/Call
// returns, clearing it so the VM is usable again afterward.
func (vm *VM) takeError() error {
	err := vm.raised
	vm.raised = nil
	if err == nil {
		return nil
	}
	return err
}

// buildRuntimeError snapshots the current call-frame stack into a
// RuntimeError, attaching the offending source line when the module kept
// the original text around.
func (vm *VM) buildRuntimeError(message string) *RuntimeError {
	stack := make([]StackFrame, vm.frameCount)
	for i := 0; i < vm.frameCount; i++ {
		f := &vm.frames[i]
		name := "<script>"
		if f.closure.Function.Name != nil {
			name = f.closure.Function.Name.Chars
		}
		line := 0
		if c, ok := f.closure.Function.Chunk.(*chunk.Chunk); ok && f.ip > 0 {
			line = c.LineAt(f.ip - 1)
		}
		stack[i] = StackFrame{Name: name, IP: f.ip, SourceLine: line}
	}
	if vm.moduleName != "" {
		message = vm.moduleName + ": " + message
	}
	re := newRuntimeError(message, stack)
	if vm.frameCount > 0 {
		if line := stack[vm.frameCount-1].SourceLine; line > 0 && line-1 < len(vm.sourceLines) {
			re.SourceLine = vm.sourceLines[line-1]
		}
	}
	return re
}

// --- value.NativeContext ---
//
// A native call's argument window is vm.stack[vm.apiStack : vm.apiStack+1+argCount]:
// slot 0 is the receiver (or the native function itself for a bare call),
// the rest are the arguments. SetReturnValue overwrites slot 0, which
// callNative then lifts back onto the stack in the caller's place.

func (vm *VM) apiArgCount() int {
	return vm.stackTop - vm.apiStack - 1
}

// Argument returns the i'th argument (0-based) passed to the native call
// currently in flight.
func (vm *VM) Argument(i int) value.Value {
	return vm.stack[vm.apiStack+1+i]
}

// ArgCount returns how many arguments the in-flight native call received.
func (vm *VM) ArgCount() int { return vm.apiArgCount() }

// Self returns the receiver of the in-flight native call: the instance for
// a bound method, the class for a static method, or the native function
// itself for a free function.
func (vm *VM) Self() value.Value { return vm.stack[vm.apiStack] }

// SetReturnValue sets the in-flight native call's result by overwriting
// slot 0. A native that never calls this does not return null: slot 0 is
// left as it was, so the call evaluates to its receiver (or to the native
// function itself for a free function).
func (vm *VM) SetReturnValue(v value.Value) { vm.stack[vm.apiStack] = v }

// --- stack access ---

// Push and Pop let a host manipulate the VM's value stack directly, e.g. to
// prepare arguments before CallFunction.
func (vm *VM) Push(v value.Value) { vm.push(v) }
func (vm *VM) Pop() value.Value   { return vm.pop() }
func (vm *VM) Peek(distance int) value.Value { return vm.peek(distance) }

// --- globals ---

// PushGlobal defines (or overwrites) a module-level global by name, growing
// the globals array if this is a name the current module hasn't seen yet.
// Intended for a host to seed globals before the first Interpret call; the
// module is created lazily if none exists yet.
func (vm *VM) PushGlobal(name string, v value.Value) {
	if vm.module == nil {
		vm.module = value.NewModule(vm.moduleName)
		vm.registerObject(vm.module, 64)
	}
	slot, ok := vm.module.GlobalMap[name]
	if !ok {
		slot = len(vm.module.GlobalMap)
		vm.module.GlobalMap[name] = slot
	}
	if slot >= len(vm.module.Globals) {
		grown := make([]value.Value, slot+1)
		copy(grown, vm.module.Globals)
		vm.module.Globals = grown
	}
	vm.module.Globals[slot] = v
}

// PushGlobalCFunction defines a global bound to a native Go function, the
// shape a host uses to expose a free function (pkg/corelib instead hangs
// its natives off the OS and Digest classes as static methods).
func (vm *VM) PushGlobalCFunction(name string, arity int, fn value.NativeFn) {
	native := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	native.Kind = value.ObjNative
	vm.registerObject(native, 48)
	vm.PushGlobal(name, value.ObjValue(native))
}

// GetGlobal looks up a module-level global by name.
func (vm *VM) GetGlobal(name string) (value.Value, bool) {
	if vm.module == nil {
		return value.NullValue(), false
	}
	slot, ok := vm.module.GlobalMap[name]
	if !ok {
		return value.NullValue(), false
	}
	return vm.module.Globals[slot], true
}

// GlobalExists reports whether name is already bound as a module-level
// global, letting a host avoid clobbering a script-declared name.
func (vm *VM) GlobalExists(name string) bool {
	if vm.module == nil {
		return false
	}
	_, ok := vm.module.GlobalMap[name]
	return ok
}

// --- class sculpting ---
//
// These functions are how the spec's out-of-scope "core" script (or
// pkg/corelib, or a test's minimal stand-in for it) gives the VM's
// otherwise-empty built-in class slots their operators and methods, and how
// any embedder registers its own classes.

// CreateClass allocates and registers a brand-new class, separate from the
// five built-in slots New already created.
func (vm *VM) CreateClass(name string) *value.ObjClass {
	c := value.NewClass(vm.Intern(name))
	vm.registerObject(c, 96)
	return c
}

// CreateClassInstance constructs an instance of class without going
// through the script-visible CALL/constructor path, for a host that wants
// to hand a script a ready-made object (e.g. a singleton OS instance).
func (vm *VM) CreateClassInstance(class *value.ObjClass) *value.ObjInstance {
	inst := value.NewInstance(class)
	vm.registerObject(inst, 64)
	return inst
}

// AddClassField declares a field name with its default value, the same
// shape a `var name = default` class-body statement produces.
func (vm *VM) AddClassField(class *value.ObjClass, name string, def value.Value) {
	class.Fields.Set(vm.Intern(name), def)
}

// AddClassNativeMethod binds an instance method to a native Go function.
func (vm *VM) AddClassNativeMethod(class *value.ObjClass, name string, arity int, fn value.NativeFn) {
	native := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	native.Kind = value.ObjNative
	vm.registerObject(native, 48)
	class.Methods.Set(vm.Intern(name), value.ObjValue(native))
}

// AddClassNativeStaticMethod binds a static (class-level) method to a
// native Go function.
func (vm *VM) AddClassNativeStaticMethod(class *value.ObjClass, name string, arity int, fn value.NativeFn) {
	native := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	native.Kind = value.ObjNative
	vm.registerObject(native, 48)
	class.Statics.Set(vm.Intern(name), value.ObjValue(native))
}

// AddClassNativeOperator binds one of the nine overloadable operator slots
// (tag is "+", "-", "*", "/", "//", "**", "..", "[]", "[]=") to a native Go
// function, which is how the core script teaches Number.+ or List.[] their
// meaning.
func (vm *VM) AddClassNativeOperator(class *value.ObjClass, tag string, arity int, fn value.NativeFn) bool {
	op, ok := value.ParseOperator(tag)
	if !ok {
		return false
	}
	native := &value.ObjNative{Name: "operator" + tag, Arity: arity, Fn: fn}
	native.Kind = value.ObjNative
	vm.registerObject(native, 48)
	class.Operators[op] = value.ObjValue(native)
	return true
}

// --- instance inspection ---

// SetInstanceField and GetInstanceField let a host read and write an
// instance's fields directly, bypassing SET_FIELD's already-declared-name
// restriction (a host is trusted; a script is not).
func (vm *VM) SetInstanceField(inst *value.ObjInstance, name string, v value.Value) {
	inst.Fields.Set(vm.Intern(name), v)
}

func (vm *VM) GetInstanceField(inst *value.ObjInstance, name string) (value.Value, bool) {
	return inst.Fields.Get(vm.Intern(name))
}

// SetStaticField and GetStaticField do the same for a class's static
// table.
func (vm *VM) SetStaticField(class *value.ObjClass, name string, v value.Value) {
	class.Statics.Set(vm.Intern(name), v)
}

func (vm *VM) GetStaticField(class *value.ObjClass, name string) (value.Value, bool) {
	return class.Statics.Get(vm.Intern(name))
}

// --- scripted invocation ---

// CallFunction invokes a script-visible callable (Closure, NativeFunction,
// Class, or BoundMethod) from host code, reusing the same calling
// convention and dispatch loop a CALL opcode would. args are pushed in
// order; CallFunction arranges the conventional call-site stack layout
// itself.
func (vm *VM) CallFunction(callee value.Value, args ...value.Value) (value.Value, error) {
	entryDepth := vm.frameCount
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if !vm.callValue(callee, len(args)) {
		return value.NullValue(), vm.takeError()
	}
	// callValue for a native function or a class with no script body runs
	// to completion inline and leaves frameCount unchanged; a Closure
	// instead pushes a new frame that the dispatch loop has to drive.
	if vm.frameCount > entryDepth {
		if err := vm.run(entryDepth); err != nil {
			return value.NullValue(), err
		}
	}
	return vm.pop(), nil
}

// CallInstanceMethod looks up name on inst and calls it with args, the
// host-side equivalent of an INVOKE opcode.
func (vm *VM) CallInstanceMethod(inst *value.ObjInstance, name string, args ...value.Value) (value.Value, error) {
	methodName := vm.Intern(name)
	m, ok := inst.Class.Methods.Get(methodName)
	if !ok {
		return value.NullValue(), fmt.Errorf("'%s' has no method '%s'", inst.Class.Name.Chars, name)
	}
	bound := vm.bindMethod(value.ObjValue(inst), m)
	return vm.CallFunction(bound, args...)
}

