package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progalt/solis/pkg/value"
	"github.com/progalt/solis/pkg/vm"
)

// newArithmeticVM wires a minimal stand-in for the spec's out-of-scope
// "core" script: just enough Number/String/Range behaviour to exercise the
// VM's own dispatch, not a full reimplementation of the core library.
func newArithmeticVM(t *testing.T, opts ...vm.Option) *vm.VM {
	t.Helper()
	v := vm.New(opts...)

	rangeClass := v.CreateClass("Range")
	v.AddClassField(rangeClass, "from", value.NumberValue(0))
	v.AddClassField(rangeClass, "to", value.NumberValue(0))
	v.AddClassNativeMethod(rangeClass, "iterate", 1, func(ctx value.NativeContext) {
		inst := ctx.Self().AsObj().(*value.ObjInstance)
		from, _ := v.GetInstanceField(inst, "from")
		to, _ := v.GetInstanceField(inst, "to")
		cur := ctx.Argument(0)
		var next float64
		if cur.IsNull() {
			next = from.AsNumber()
		} else {
			next = cur.AsNumber() + 1
		}
		if next > to.AsNumber() {
			ctx.SetReturnValue(value.NullValue())
			return
		}
		ctx.SetReturnValue(value.NumberValue(next))
	})
	v.AddClassNativeMethod(rangeClass, "iteratorValue", 1, func(ctx value.NativeContext) {
		ctx.SetReturnValue(ctx.Argument(0))
	})

	nc := v.NumberClass()
	binaryNumberOp := func(op func(a, b float64) float64) value.NativeFn {
		return func(ctx value.NativeContext) {
			a := ctx.Self().AsNumber()
			b := ctx.Argument(0)
			if !b.IsNumber() {
				ctx.RaiseError("operand must be a number")
				return
			}
			ctx.SetReturnValue(value.NumberValue(op(a, b.AsNumber())))
		}
	}
	v.AddClassNativeOperator(nc, "+", 1, func(ctx value.NativeContext) {
		a := ctx.Self().AsNumber()
		b := ctx.Argument(0)
		if b.IsNumber() {
			ctx.SetReturnValue(value.NumberValue(a + b.AsNumber()))
			return
		}
		ctx.RaiseError("operand must be a number")
	})
	v.AddClassNativeOperator(nc, "-", 1, binaryNumberOp(func(a, b float64) float64 { return a - b }))
	v.AddClassNativeOperator(nc, "*", 1, binaryNumberOp(func(a, b float64) float64 { return a * b }))
	v.AddClassNativeOperator(nc, "/", 1, binaryNumberOp(func(a, b float64) float64 { return a / b }))
	v.AddClassNativeOperator(nc, "..", 1, func(ctx value.NativeContext) {
		from := ctx.Self()
		to := ctx.Argument(0)
		if !to.IsNumber() {
			ctx.RaiseError("range endpoint must be a number")
			return
		}
		inst := v.CreateClassInstance(rangeClass)
		v.SetInstanceField(inst, "from", from)
		v.SetInstanceField(inst, "to", to)
		ctx.SetReturnValue(value.ObjValue(inst))
	})

	sc := v.StringClass()
	v.AddClassNativeOperator(sc, "+", 1, func(ctx value.NativeContext) {
		a := ctx.Self()
		b := ctx.Argument(0)
		if !b.IsObjType(value.ObjString) {
			ctx.RaiseError("can only concatenate a string with a string")
			return
		}
		concat := a.AsString().Chars + b.AsString().Chars
		ctx.SetReturnValue(value.ObjValue(v.Intern(concat)))
	})

	return v
}

func TestInterpretArithmeticAndGlobals(t *testing.T) {
	v := newArithmeticVM(t)
	result, err := v.Interpret("var x = 2 + 3 * 4\nx\n", "<test>")
	require.NoError(t, err)
	assert.True(t, result.IsNumber())
	assert.Equal(t, float64(14), result.AsNumber())

	got, ok := v.GetGlobal("x")
	require.True(t, ok)
	assert.Equal(t, float64(14), got.AsNumber())
}

func TestInterpretStringConcatAndInterning(t *testing.T) {
	v := newArithmeticVM(t)
	result, err := v.Interpret(`"hello, " + "world"`, "<test>")
	require.NoError(t, err)
	require.True(t, result.IsObjType(value.ObjString))
	assert.Equal(t, "hello, world", result.AsString().Chars)

	// Interning the same contents twice must return one ObjString, since
	// Intern is the single source of truth for both the compiler and the
	// VM's runtime string construction.
	a := v.Intern("shared")
	b := v.Intern("shared")
	assert.Same(t, a, b)
}

func TestInterpretClosureCapturesUpvalueAcrossCalls(t *testing.T) {
	v := newArithmeticVM(t)
	src := "function makeCounter()\n" +
		"  var n = 0\n" +
		"  function step()\n" +
		"    n = n + 1\n" +
		"    return n\n" +
		"  end\n" +
		"  return step\n" +
		"end\n" +
		"var counter = makeCounter()\n" +
		"var a = counter()\n" +
		"var b = counter()\n" +
		"var c = counter()\n" +
		"c\n"
	result, err := v.Interpret(src, "<test>")
	require.NoError(t, err)
	assert.Equal(t, float64(3), result.AsNumber())

	a, _ := v.GetGlobal("a")
	b, _ := v.GetGlobal("b")
	assert.Equal(t, float64(1), a.AsNumber())
	assert.Equal(t, float64(2), b.AsNumber())

	// A second, independent counter must not share the first's upvalue cell.
	_, err = v.Interpret("var other = makeCounter()\nvar d = other()\nd\n", "<test>")
	require.NoError(t, err)
	d, _ := v.GetGlobal("d")
	assert.Equal(t, float64(1), d.AsNumber())
}

func TestInterpretClassInheritanceAndIs(t *testing.T) {
	v := newArithmeticVM(t)
	src := "class Animal\n" +
		"  var name = \"\"\n" +
		"  function Animal(n)\n" +
		"    self.name = n\n" +
		"  end\n" +
		"  function speak()\n" +
		"    return self.name + \" makes a sound\"\n" +
		"  end\n" +
		"end\n" +
		"class Dog inherits Animal\n" +
		"  function speak()\n" +
		"    return self.name + \" barks\"\n" +
		"  end\n" +
		"end\n" +
		"var a = Animal(\"cat\")\n" +
		"var d = Dog(\"rex\")\n" +
		"var isAnimal = d is Animal\n" +
		"var isDog = a is Dog\n" +
		"d.speak()\n"
	result, err := v.Interpret(src, "<test>")
	require.NoError(t, err)
	require.True(t, result.IsObjType(value.ObjString))
	assert.Equal(t, "rex barks", result.AsString().Chars)

	isAnimal, _ := v.GetGlobal("isAnimal")
	isDog, _ := v.GetGlobal("isDog")
	assert.True(t, isAnimal.AsBool())
	assert.False(t, isDog.AsBool())

	aVal, _ := v.GetGlobal("a")
	inst := aVal.AsObj().(*value.ObjInstance)
	got, err := v.CallInstanceMethod(inst, "speak")
	require.NoError(t, err)
	assert.Equal(t, "cat makes a sound", got.AsString().Chars)
}

func TestInterpretForLoopOverRange(t *testing.T) {
	v := newArithmeticVM(t)
	src := "var total = 0\n" +
		"for i in 1..5 do\n" +
		"  total = total + i\n" +
		"end\n" +
		"total\n"
	result, err := v.Interpret(src, "<test>")
	require.NoError(t, err)
	assert.Equal(t, float64(15), result.AsNumber())
}

func TestInterpretForLoopBreak(t *testing.T) {
	v := newArithmeticVM(t)
	src := "var total = 0\n" +
		"for i in 1..10 do\n" +
		"  if i is Number and i > 3 then break end\n" +
		"  total = total + i\n" +
		"end\n" +
		"total\n"
	result, err := v.Interpret(src, "<test>")
	require.NoError(t, err)
	assert.Equal(t, float64(6), result.AsNumber())
}

// TestGCUnderStressPreservesReachableState forces a collection on every
// allocation (WithStressGC) while building strings and instances, then
// checks every root the script still references survived.
func TestGCUnderStressPreservesReachableState(t *testing.T) {
	v := newArithmeticVM(t, vm.WithStressGC(true))
	src := "class Box\n" +
		"  var value = null\n" +
		"  function Box(v)\n" +
		"    self.value = v\n" +
		"  end\n" +
		"end\n" +
		"var boxes = Box(\"a\")\n" +
		"var label = \"prefix-\" + \"suffix\"\n" +
		"function build(n)\n" +
		"  var s = \"\"\n" +
		"  for i in 1..n do\n" +
		"    s = s + \"x\"\n" +
		"  end\n" +
		"  return s\n" +
		"end\n" +
		"var built = build(50)\n" +
		"built\n"
	result, err := v.Interpret(src, "<test>")
	require.NoError(t, err)
	require.True(t, result.IsObjType(value.ObjString))
	assert.Equal(t, 50, len(result.AsString().Chars))

	label, ok := v.GetGlobal("label")
	require.True(t, ok)
	assert.Equal(t, "prefix-suffix", label.AsString().Chars)

	boxesVal, ok := v.GetGlobal("boxes")
	require.True(t, ok)
	inst := boxesVal.AsObj().(*value.ObjInstance)
	boxed, ok := v.GetInstanceField(inst, "value")
	require.True(t, ok)
	assert.Equal(t, "a", boxed.AsString().Chars)
}

func TestInterpretRuntimeErrorReportsMessage(t *testing.T) {
	v := newArithmeticVM(t)
	_, err := v.Interpret("var x = 1 + \"nope\"\n", "<test>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand must be a number")
}

func TestInterpretCompileErrorDoesNotPanic(t *testing.T) {
	v := newArithmeticVM(t)
	_, err := v.Interpret("var x = \n", "<test>")
	require.Error(t, err)
}

func TestSandboxedVMReportsSandboxed(t *testing.T) {
	v := vm.New(vm.WithSandbox(true))
	assert.True(t, v.Sandboxed())
}
