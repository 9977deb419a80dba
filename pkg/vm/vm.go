// Package vm implements the Solis bytecode virtual machine: the call-frame
// stack, the dispatch loop, operator/method invocation, and upvalue
// management described in the spec's "Virtual machine" component. It also
// hosts the mark-sweep garbage collector (gc.go) and the embedding API
// (api.go) that a host program links against.
package vm

import (
	"github.com/progalt/solis/pkg/chunk"
	"github.com/progalt/solis/pkg/compiler"
	"github.com/progalt/solis/pkg/value"
)

const (
	// stackSize is fixed, not grow-on-demand: open upvalues hold raw
	// *Value pointers into this array, which a reallocating append would
	// invalidate. The spec's own sizing note ("64 x 256 entries is
	// sufficient") is exactly this capacity.
	stackSize           = 64 * 256
	initialFrameCount   = 64
	maxFrameCount       = 1024 // stack-overflow backstop; frames otherwise grow on demand
	defaultGrowthFactor = 2.0
	defaultFirstGC      = 1 << 20 // nominal bytes allocated before the first collection
)

// CallFrame is the per-call activation record: a closure, the instruction
// pointer into its chunk, and the base index into the value stack for this
// call's locals (slots[0] is the receiver or the closure itself).
type CallFrame struct {
	closure *value.ObjClosure
	ip      int
	slots   int
}

// Option configures a VM at construction time; see WithSandbox,
// WithStressGC, WithGrowthFactor. This is the whole "configuration layer"
// an embeddable core needs (no config files, see SPEC_FULL.md AMBIENT
// STACK).
type Option func(*VM)

// WithSandbox constructs a VM that must not have OS/FFI classes registered
// against it (§6 sandboxing flag). The core itself never registers those
// classes; this only flips a flag a host embedder can consult before
// deciding whether to wire in pkg/corelib or an FFI loader.
func WithSandbox(sandboxed bool) Option {
	return func(vm *VM) { vm.sandboxed = sandboxed }
}

// WithStressGC forces a collection on every allocating reallocate call,
// used to shake out GC-soundness bugs (spec §4.4, §8 scenario 6).
func WithStressGC(stress bool) Option {
	return func(vm *VM) { vm.stressGC = stress }
}

// WithGrowthFactor overrides the default nextGC growth factor of 2.
func WithGrowthFactor(f float64) Option {
	return func(vm *VM) { vm.growthFactor = f }
}

// WithFirstGCThreshold overrides how many nominal bytes may be allocated
// before the first collection runs.
func WithFirstGCThreshold(bytes int64) Option {
	return func(vm *VM) { vm.nextGC = bytes }
}

// VM owns one script's entire runtime state. Two VMs in the same process
// share nothing (§5): each has its own stack, heap, and intern table.
type VM struct {
	stack    [stackSize]value.Value
	stackTop int

	frames     []CallFrame
	frameCount int

	module *value.ObjModule

	objects value.Object // head of the intrusive allocation list
	strings *value.Table // weak string-intern table; not a GC root

	openUpvalues *value.ObjUpvalue

	// compileRoots pins the chain of ObjFunctions a single-pass compile
	// is currently building (the in-progress script plus any enclosing
	// function/method it's nested under) so a GC cycle triggered mid-
	// compile can trace into their not-yet-linked chunk constants.
	compileRoots []*value.ObjFunction

	allocatedBytes int64
	nextGC         int64
	growthFactor   float64
	stressGC       bool
	grayStack      []value.Object

	numberClass *value.ObjClass
	stringClass *value.ObjClass
	boolClass   *value.ObjClass
	nullClass   *value.ObjClass
	listClass   *value.ObjClass

	sandboxed bool

	// apiStack is the base of the argument window a native callback sees,
	// or -1 when no native call is in flight. A native that tries to
	// re-enter the dispatch loop while this is already set gets a
	// reentrancy failure rather than clobbering it (§4.3 state machine).
	apiStack int

	moduleName  string
	sourceLines []string
	raised      *RuntimeError // set by RaiseError; the dispatch loop unwinds once it sees this

	debugger *Debugger // nil unless EnableDebugger was called
}

// New constructs a VM with its built-in class slots (Number, String, Bool,
// List, Null) pre-created but empty — the operators and methods that give
// them behavior are wired in by whoever plays the role of the spec's
// out-of-scope "core" script, through the embedding API in api.go. See
// DESIGN.md for why the interpreter core stops exactly at this boundary.
func New(opts ...Option) *VM {
	vm := &VM{
		frames:       make([]CallFrame, initialFrameCount),
		strings:      value.NewTable(),
		growthFactor: defaultGrowthFactor,
		nextGC:       defaultFirstGC,
		apiStack:     -1,
	}
	vm.numberClass = vm.newBuiltinClass("Number")
	vm.stringClass = vm.newBuiltinClass("String")
	vm.boolClass = vm.newBuiltinClass("Bool")
	vm.listClass = vm.newBuiltinClass("List")
	vm.nullClass = vm.newBuiltinClass("Null")
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

func (vm *VM) newBuiltinClass(name string) *value.ObjClass {
	c := value.NewClass(vm.Intern(name))
	vm.registerObject(c, 96)
	return c
}

// Sandboxed reports whether the VM was constructed with WithSandbox(true).
func (vm *VM) Sandboxed() bool { return vm.sandboxed }

// NumberClass, StringClass, BoolClass, ListClass, and NullClass expose the
// VM's built-in class slots so a host ("core" script stand-in) can hang
// operators and methods off them through the embedding API.
func (vm *VM) NumberClass() *value.ObjClass { return vm.numberClass }
func (vm *VM) StringClass() *value.ObjClass { return vm.stringClass }
func (vm *VM) BoolClass() *value.ObjClass   { return vm.boolClass }
func (vm *VM) ListClass() *value.ObjClass   { return vm.listClass }
func (vm *VM) NullClass() *value.ObjClass   { return vm.nullClass }

// Intern returns the canonical ObjString for s, allocating and interning
// one if this is the first time s has been seen. It implements
// compiler.StringInterner so the single-pass compiler and the VM always
// share one intern table.
func (vm *VM) Intern(s string) *value.ObjString {
	h := value.HashString(s)
	if existing := vm.strings.FindString(s, h); existing != nil {
		return existing
	}
	str := value.NewString(s)
	str.Class = vm.stringClass
	// Root it on the value stack before linking it into the allocation
	// list, since linking can itself trigger a collection (§4.4 Safety).
	vm.push(value.ObjValue(str))
	vm.registerObject(str, int64(len(s))+40)
	vm.strings.Set(str, value.NullValue())
	vm.pop()
	return str
}

// PinCompileRoot adds fn to the compile-root stack markRoots scans, for
// the duration of a single-pass compiler's work on that function body.
func (vm *VM) PinCompileRoot(fn *value.ObjFunction) {
	vm.compileRoots = append(vm.compileRoots, fn)
}

// UnpinCompileRoot pops the most recently pinned compile root, once the
// compiler has finished that function body and folded it into an
// enclosing chunk's constant pool (itself pinned, or about to be run).
func (vm *VM) UnpinCompileRoot() {
	vm.compileRoots = vm.compileRoots[:len(vm.compileRoots)-1]
}

// registerObject links obj into the intrusive allocation list and runs it
// through the allocator hook that may trigger a GC cycle.
func (vm *VM) registerObject(obj value.Object, nominalSize int64) {
	obj.Header().Next = vm.objects
	vm.objects = obj
	vm.reallocate(0, nominalSize)
}

// Interpret compiles source under moduleName and runs it to completion,
// returning the value left on the stack (null for a script with no
// trailing expression) or an error: *CompileError or *RuntimeError.
//
// A module created by an earlier Interpret call on the same VM is reused
// rather than replaced: its existing globals are passed back in as
// seedGlobals so a REPL's second Interpret call continues numbering after
// them instead of colliding with slot 0, matching "a Module (and its
// globals) lives for the VM's lifetime".
func (vm *VM) Interpret(source, moduleName string) (value.Value, error) {
	vm.moduleName = moduleName
	vm.sourceLines = splitLines(source)

	var seedGlobals map[string]int
	if vm.module != nil {
		seedGlobals = vm.module.GlobalMap
	}

	res, errs := compiler.Compile(source, moduleName, vm, seedGlobals)
	if len(errs) > 0 {
		return value.NullValue(), wrapCompileErrors(errs)
	}

	mod := vm.module
	if mod == nil {
		mod = value.NewModule(moduleName)
		vm.registerObject(mod, 64)
		vm.module = mod
	}
	mod.GlobalMap = res.GlobalMap
	if res.NumGlobals > len(mod.Globals) {
		grown := make([]value.Value, res.NumGlobals)
		copy(grown, mod.Globals)
		mod.Globals = grown
	}

	closure := vm.newClosure(res.Function)
	mod.Closure = closure

	vm.push(value.ObjValue(closure))
	if !vm.call(closure, 0) {
		return value.NullValue(), vm.takeError()
	}
	if err := vm.run(0); err != nil {
		return value.NullValue(), err
	}
	result := value.NullValue()
	if vm.stackTop > 0 {
		result = vm.stack[vm.stackTop-1]
	}
	return result, nil
}

func splitLines(source string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			lines = append(lines, source[start:i])
			start = i + 1
		}
	}
	lines = append(lines, source[start:])
	return lines
}

func (vm *VM) newClosure(fn *value.ObjFunction) *value.ObjClosure {
	c := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
	c.Kind = value.ObjClosure
	vm.registerObject(c, 48+int64(fn.UpvalueCount)*8)
	return c
}

// --- stack primitives ---

func (vm *VM) push(v value.Value) {
	if vm.stackTop >= len(vm.stack) {
		vm.RaiseError("stack overflow")
		return
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// currentFrame returns the active call frame, i.e. the one the dispatch
// loop is executing.
func (vm *VM) currentFrame() *CallFrame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) currentChunk() *chunk.Chunk {
	return vm.currentFrame().closure.Function.Chunk.(*chunk.Chunk)
}

// --- calling protocol (§4.3) ---

func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if !callee.IsObj() {
		vm.RaiseError("can only call functions, classes, and bound methods")
		return false
	}
	switch obj := callee.AsObj().(type) {
	case *value.ObjClosure:
		return vm.call(obj, argCount)
	case *value.ObjNative:
		return vm.callNative(obj, argCount)
	case *value.ObjClass:
		return vm.callClass(obj, argCount)
	case *value.ObjBoundMethod:
		vm.stack[vm.stackTop-argCount-1] = obj.Receiver
		return vm.callValue(obj.Method, argCount)
	default:
		vm.RaiseError("can only call functions, classes, and bound methods")
		return false
	}
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.RaiseError("expected %d arguments but got %d", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == maxFrameCount {
		vm.RaiseError("stack overflow")
		return false
	}
	if vm.frameCount == len(vm.frames) {
		vm.frames = append(vm.frames, CallFrame{})
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) callNative(native *value.ObjNative, argCount int) bool {
	if native.Arity >= 0 && argCount != native.Arity {
		vm.RaiseError("expected %d arguments but got %d", native.Arity, argCount)
		return false
	}
	if vm.apiStack != -1 {
		vm.RaiseError("native reentrancy: a host callback tried to invoke another call while its argument window was still live")
		return false
	}
	base := vm.stackTop - argCount - 1
	vm.apiStack = base
	native.Fn(vm)
	hadError := vm.raised != nil
	result := vm.stack[vm.apiStack]
	vm.apiStack = -1
	vm.stackTop = base + 1
	vm.stack[vm.stackTop-1] = result
	return !hadError
}

func (vm *VM) callClass(class *value.ObjClass, argCount int) bool {
	base := vm.stackTop - argCount - 1
	inst := value.NewInstance(class)
	vm.stack[base] = value.ObjValue(inst)
	vm.registerObject(inst, 64)
	if !class.Initializer.IsNull() {
		return vm.callValue(class.Initializer, argCount)
	}
	if argCount != 0 {
		vm.RaiseError("expected 0 arguments but got %d", argCount)
		return false
	}
	return true
}

// invoke is the fused GET_FIELD+CALL used for x.m(...) call sites: it
// looks up m on the receiver without materializing an intermediate
// BoundMethod.
func (vm *VM) invoke(name *value.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if inst, ok := asInstance(receiver); ok {
		if field, ok := inst.Fields.Get(name); ok {
			vm.stack[vm.stackTop-argCount-1] = field
			return vm.callValue(field, argCount)
		}
		return vm.invokeFromClass(inst.Class, name, argCount)
	}
	if class, ok := asClass(receiver); ok {
		if m, ok := class.Statics.Get(name); ok {
			return vm.callValue(m, argCount)
		}
		if m, ok := class.Methods.Get(name); ok {
			return vm.callValue(m, argCount)
		}
		vm.RaiseError("undefined static member '%s' on class '%s'", name.Chars, class.Name.Chars)
		return false
	}
	class := vm.classOf(receiver)
	if class == nil {
		vm.RaiseError("value has no class to invoke '%s' on", name.Chars)
		return false
	}
	return vm.invokeFromClass(class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) bool {
	if m, ok := class.Methods.Get(name); ok {
		return vm.callValue(m, argCount)
	}
	if m, ok := class.Statics.Get(name); ok {
		return vm.callValue(m, argCount)
	}
	vm.RaiseError("'%s' has no method '%s'", class.Name.Chars, name.Chars)
	return false
}

func asInstance(v value.Value) (*value.ObjInstance, bool) {
	if !v.IsObjType(value.ObjInstance) {
		return nil, false
	}
	return v.AsObj().(*value.ObjInstance), true
}

func asClass(v value.Value) (*value.ObjClass, bool) {
	if !v.IsObjType(value.ObjClass) {
		return nil, false
	}
	return v.AsObj().(*value.ObjClass), true
}

// classOf returns the class the spec's "every Value carries a class
// indirectly" invariant assigns v: the VM's cached built-in class for
// primitives and heap types that always share one, or the object's own
// back-pointer for instances and anything a host attached a class to.
func (vm *VM) classOf(v value.Value) *value.ObjClass {
	switch v.Type() {
	case value.Null:
		return vm.nullClass
	case value.Bool:
		return vm.boolClass
	case value.Number:
		return vm.numberClass
	case value.Obj:
		switch o := v.AsObj().(type) {
		case *value.ObjInstance:
			return o.Class
		case *value.ObjString:
			return vm.stringClass
		case *value.ObjList:
			return vm.listClass
		default:
			return o.Header().Class
		}
	}
	return nil
}

// getField implements GET_FIELD's resolution order (§4.3): instance
// fields, then methods (bound), then statics on an Instance receiver;
// statics then methods (bound to the class) on a bare Class receiver.
func (vm *VM) getField(name *value.ObjString) bool {
	receiver := vm.pop()
	if inst, ok := asInstance(receiver); ok {
		if v, ok := inst.Fields.Get(name); ok {
			vm.push(v)
			return true
		}
		if m, ok := inst.Class.Methods.Get(name); ok {
			vm.push(vm.bindMethod(receiver, m))
			return true
		}
		if v, ok := inst.Class.Statics.Get(name); ok {
			vm.push(v)
			return true
		}
		vm.RaiseError("undefined field '%s'", name.Chars)
		return false
	}
	if class, ok := asClass(receiver); ok {
		if v, ok := class.Statics.Get(name); ok {
			vm.push(v)
			return true
		}
		if m, ok := class.Methods.Get(name); ok {
			vm.push(vm.bindMethod(receiver, m))
			return true
		}
		vm.RaiseError("undefined static member '%s' on class '%s'", name.Chars, class.Name.Chars)
		return false
	}
	class := vm.classOf(receiver)
	if class != nil {
		if m, ok := class.Methods.Get(name); ok {
			vm.push(vm.bindMethod(receiver, m))
			return true
		}
		if v, ok := class.Statics.Get(name); ok {
			vm.push(v)
			return true
		}
	}
	vm.RaiseError("undefined field '%s'", name.Chars)
	return false
}

func (vm *VM) bindMethod(receiver value.Value, method value.Value) value.Value {
	bm := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	bm.Kind = value.ObjBoundMethod
	vm.registerObject(bm, 48)
	return value.ObjValue(bm)
}

// setField implements SET_FIELD: writes are only accepted into a name that
// already exists, preserving the field-shape invariant established by the
// class body (§3, §4.3).
func (vm *VM) setField(name *value.ObjString) bool {
	val := vm.peek(0)
	receiver := vm.peek(1)
	if inst, ok := asInstance(receiver); ok {
		if inst.Fields.Has(name) {
			inst.Fields.Set(name, val)
		} else if inst.Class.Statics.Has(name) {
			inst.Class.Statics.Set(name, val)
		} else {
			vm.RaiseError("cannot set undeclared field '%s'", name.Chars)
			return false
		}
	} else if class, ok := asClass(receiver); ok {
		if class.Statics.Has(name) {
			class.Statics.Set(name, val)
		} else {
			vm.RaiseError("cannot set undeclared static member '%s'", name.Chars)
			return false
		}
	} else {
		vm.RaiseError("only instances and classes have settable fields")
		return false
	}
	vm.pop() // value
	vm.pop() // receiver
	vm.push(val)
	return true
}

// dispatchOperator implements the "operator-dispatched" opcodes: find the
// receiver below argCount operands, look up the class's operator slot,
// and call it with the same stack layout an ordinary call would use.
func (vm *VM) dispatchOperator(op value.Operator, argCount int) bool {
	receiver := vm.peek(argCount)
	class := vm.classOf(receiver)
	if class == nil {
		vm.RaiseError("value has no class for operator %s", op)
		return false
	}
	callee := class.Operator(op)
	if callee.IsNull() {
		vm.RaiseError("object does not contain operator %s", op)
		return false
	}
	return vm.callValue(callee, argCount)
}

// isType implements the IS opcode: the built-in type names "number",
// "bool", "null" and "string" test the receiver's value kind directly; any
// other name falls back to the receiver's class's own (possibly inherited)
// name.
func (vm *VM) isType(receiver value.Value, typeName string) bool {
	switch typeName {
	case "number":
		return receiver.IsNumber()
	case "bool":
		return receiver.IsBool()
	case "null":
		return receiver.IsNull()
	case "string":
		return receiver.IsObjType(value.ObjString)
	}
	class := vm.classOf(receiver)
	return class != nil && class.IsNamed(typeName)
}

// --- upvalues ---

func (vm *VM) captureUpvalue(localSlot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > localSlot {
		prev = cur
		cur = cur.OpenNext
	}
	if cur != nil && cur.Slot == localSlot {
		return cur
	}
	created := &value.ObjUpvalue{Location: &vm.stack[localSlot], Slot: localSlot}
	created.Kind = value.ObjUpvalue
	vm.registerObject(created, 40)
	created.OpenNext = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.OpenNext = created
	}
	return created
}

// closeUpvalues closes every open upvalue pointing at slot lastSlot or
// higher, in descending-address order (§3 invariant).
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= lastSlot {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.OpenNext
	}
}

// --- the dispatch loop ---

// run drives the interpreter from the current frame down to exitDepth:
// the frame-count depth at which it stops, rather than always 0. Interpret
// calls run(0) to execute a whole script; CallFunction calls run at the
// depth it was entered at, so a host-initiated call returns control once
// its own frame (and anything it calls) has unwound, without disturbing an
// enclosing Interpret call that is itself mid-dispatch (native reentrancy).
func (vm *VM) run(exitDepth int) error {
	frame := vm.currentFrame()
	c := vm.currentChunk()

	readByte := func() byte {
		b := c.Code[frame.ip]
		frame.ip++
		return b
	}
	readUint16 := func() uint16 {
		v := c.ReadUint16(frame.ip)
		frame.ip += 2
		return v
	}
	readConstant := func() value.Value { return c.Constants[readByte()] }
	readConstantLong := func() value.Value { return c.Constants[readUint16()] }
	readString := func(idx uint16) *value.ObjString { return c.Constants[idx].AsObj().(*value.ObjString) }

	for {
		if vm.debugger != nil && vm.debugger.ShouldPause() {
			if !vm.debugger.InteractivePrompt() {
				vm.RaiseError("execution aborted from debugger")
				return vm.takeError()
			}
		}

		op := chunk.Opcode(readByte())

		switch {
		case op == chunk.OpConstant:
			vm.push(readConstant())
		case op == chunk.OpConstantLong:
			vm.push(readConstantLong())
		case op == chunk.OpNil:
			vm.push(value.NullValue())
		case op == chunk.OpTrue:
			vm.push(value.BoolValue(true))
		case op == chunk.OpFalse:
			vm.push(value.BoolValue(false))

		case op == chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.RaiseError("operand to unary '-' must be a number")
				break
			}
			vm.push(value.NumberValue(-vm.pop().AsNumber()))
		case op == chunk.OpNot:
			vm.push(value.BoolValue(vm.pop().Falsey()))

		case op == chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))
		case op == chunk.OpGreater:
			if !vm.numericCompareOk() {
				break
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.BoolValue(a > b))
		case op == chunk.OpLess:
			if !vm.numericCompareOk() {
				break
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(value.BoolValue(a < b))

		case op == chunk.OpAdd:
			if vm.dispatchOperator(value.OpAdd, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpSubtract:
			if vm.dispatchOperator(value.OpSub, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpMultiply:
			if vm.dispatchOperator(value.OpMul, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpDivide:
			if vm.dispatchOperator(value.OpDiv, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpFloorDivide:
			if vm.dispatchOperator(value.OpFloorDiv, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpPower:
			if vm.dispatchOperator(value.OpPow, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpDotDot:
			if vm.dispatchOperator(value.OpRange, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpSubscriptGet:
			if vm.dispatchOperator(value.OpSubscriptGet, 1) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpSubscriptSet:
			if vm.dispatchOperator(value.OpSubscriptSet, 2) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}

		case op == chunk.OpPop:
			vm.pop()

		case op == chunk.OpGetLocal:
			slot := int(readUint16())
			vm.push(vm.stack[frame.slots+slot])
		case op == chunk.OpSetLocal:
			slot := int(readUint16())
			vm.stack[frame.slots+slot] = vm.peek(0)

		case op == chunk.OpGetGlobal:
			slot := int(readUint16())
			vm.push(vm.module.Globals[slot])
		case op == chunk.OpSetGlobal:
			slot := int(readUint16())
			vm.module.Globals[slot] = vm.peek(0)
		case op == chunk.OpDefineGlobal:
			nameIdx := readUint16()
			name := readString(nameIdx)
			slot := vm.module.GlobalMap[name.Chars]
			vm.module.Globals[slot] = vm.pop()

		case op == chunk.OpGetUpvalue:
			slot := int(readUint16())
			vm.push(*frame.closure.Upvalues[slot].Location)
		case op == chunk.OpSetUpvalue:
			slot := int(readUint16())
			*frame.closure.Upvalues[slot].Location = vm.peek(0)
		case op == chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case op == chunk.OpJump:
			offset := readUint16()
			frame.ip += int(offset)
		case op == chunk.OpJumpIfFalse:
			offset := readUint16()
			if vm.peek(0).Falsey() {
				frame.ip += int(offset)
			}
		case op == chunk.OpLoop:
			offset := readUint16()
			frame.ip -= int(offset)

		case op == chunk.OpCreateList:
			l := value.NewList()
			vm.registerObject(l, 48)
			vm.push(value.ObjValue(l))
		case op == chunk.OpAppendList:
			elem := vm.pop()
			l := vm.peek(0).AsObj().(*value.ObjList)
			l.Elements = append(l.Elements, elem)

		case op == chunk.OpClosure:
			fn := readConstant().AsObj().(*value.ObjFunction)
			closure := vm.newClosure(fn)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.push(value.ObjValue(closure))

		case op.IsCall():
			argCount := chunk.CallArity(op)
			if vm.callValue(vm.peek(argCount), argCount) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}

		case op == chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			// Dropping the frame always means: discard its slots (the
			// closure itself plus locals/args) and leave the result in
			// their place. At exitDepth — 0 for a top-level Interpret
			// call, or wherever a host's CallFunction started — there is
			// no caller frame to resume, so the loop returns here instead
			// of chasing currentFrame/currentChunk.
			vm.stackTop = frame.slots
			vm.push(result)
			if vm.frameCount == exitDepth {
				return nil
			}
			frame = vm.currentFrame()
			c = vm.currentChunk()

		case op == chunk.OpClass:
			nameIdx := readUint16()
			name := readString(nameIdx)
			class := value.NewClass(name)
			vm.registerObject(class, 96)
			vm.push(value.ObjValue(class))
		case op == chunk.OpInherit:
			super, ok := asClass(vm.peek(0))
			if !ok {
				vm.RaiseError("superclass must be a class")
				break
			}
			sub := vm.peek(1).AsObj().(*value.ObjClass)
			super.Methods.CopyInto(sub.Methods)
			super.Fields.CopyInto(sub.Fields)
			sub.Operators = super.Operators
			sub.Initializer = super.Initializer
			sub.Super = super
			vm.pop() // superclass, leaving the subclass on top for its body
		case op == chunk.OpDefineField:
			nameIdx := readUint16()
			name := readString(nameIdx)
			val := vm.pop()
			class := vm.peek(0).AsObj().(*value.ObjClass)
			class.Fields.Set(name, val)
		case op == chunk.OpDefineMethod:
			nameIdx := readUint16()
			name := readString(nameIdx)
			method := vm.pop()
			class := vm.peek(0).AsObj().(*value.ObjClass)
			class.Methods.Set(name, method)
		case op == chunk.OpDefineStatic:
			nameIdx := readUint16()
			name := readString(nameIdx)
			val := vm.pop()
			class := vm.peek(0).AsObj().(*value.ObjClass)
			class.Statics.Set(name, val)
		case op == chunk.OpDefineConstructor:
			nameIdx := readUint16()
			_ = readString(nameIdx)
			ctor := vm.pop()
			class := vm.peek(0).AsObj().(*value.ObjClass)
			class.Initializer = ctor

		case op == chunk.OpGetField:
			nameIdx := readUint16()
			name := readString(nameIdx)
			vm.getField(name)
		case op == chunk.OpSetField:
			nameIdx := readUint16()
			name := readString(nameIdx)
			vm.setField(name)
		case op == chunk.OpInvoke:
			nameIdx := readUint16()
			name := readString(nameIdx)
			argCount := int(readByte())
			if vm.invoke(name, argCount) {
				frame = vm.currentFrame()
				c = vm.currentChunk()
			}
		case op == chunk.OpIs:
			nameIdx := readUint16()
			name := readString(nameIdx)
			receiver := vm.pop()
			vm.push(value.BoolValue(vm.isType(receiver, name.Chars)))

		default:
			vm.RaiseError("unknown opcode %d", op)
		}

		if vm.raised != nil {
			return vm.takeError()
		}
	}
}

func (vm *VM) numericCompareOk() bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.RaiseError("operands must be numbers")
		return false
	}
	return true
}
