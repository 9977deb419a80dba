package compiler

import (
	"testing"

	"github.com/progalt/solis/pkg/chunk"
	"github.com/progalt/solis/pkg/value"
)

// testInterner is a minimal stand-in for the VM's real intern table.
type testInterner struct {
	table *value.Table
}

func newTestInterner() *testInterner {
	return &testInterner{table: value.NewTable()}
}

func (ti *testInterner) Intern(s string) *value.ObjString {
	h := value.HashString(s)
	if existing := ti.table.FindString(s, h); existing != nil {
		return existing
	}
	str := value.NewString(s)
	ti.table.Set(str, value.NullValue())
	return str
}

func (ti *testInterner) PinCompileRoot(fn *value.ObjFunction) {}
func (ti *testInterner) UnpinCompileRoot()                    {}

func mustCompile(t *testing.T, src string) *Result {
	t.Helper()
	res, errs := Compile(src, "<test>", newTestInterner(), nil)
	if len(errs) > 0 {
		t.Fatalf("unexpected compile errors for %q: %v", src, errs)
	}
	return res
}

func disasm(res *Result) string {
	c := res.Function.Chunk.(*chunk.Chunk)
	return c.Disassemble("<test>")
}

func TestCompileArithmeticEmitsOperatorOpcodes(t *testing.T) {
	res := mustCompile(t, "var x = 1 + 2 * 3\n")
	d := disasm(res)
	for _, op := range []string{"ADD", "MULTIPLY", "DEFINE_GLOBAL"} {
		if !contains(d, op) {
			t.Errorf("expected %s in disassembly:\n%s", op, d)
		}
	}
	if res.NumGlobals != 1 {
		t.Errorf("expected 1 global, got %d", res.NumGlobals)
	}
}

func TestCompileRangePrecedence(t *testing.T) {
	// `1..2+3` should parse as `1..(2+3)`: ADD emitted before DOTDOT.
	res := mustCompile(t, "var r = 1..2+3\n")
	d := disasm(res)
	addIdx := indexOf(d, "ADD")
	dotIdx := indexOf(d, "DOTDOT")
	if addIdx == -1 || dotIdx == -1 || addIdx > dotIdx {
		t.Errorf("expected ADD before DOTDOT:\n%s", d)
	}
}

func TestCompilePowerIsRightAssociative(t *testing.T) {
	// `2**3**2` should parse as `2**(3**2)`: all three operands are pushed
	// before either POWER runs, so both POWER instructions follow the last
	// CONSTANT. Left-associative parsing would put a POWER between the
	// second and third constants.
	res := mustCompile(t, "var x = 2**3**2\n")
	d := disasm(res)
	if count(d, "POWER") != 2 {
		t.Errorf("expected 2 POWER instructions:\n%s", d)
	}
	if first := indexOf(d, "POWER"); first != -1 && contains(d[first:], "CONSTANT") {
		t.Errorf("expected both POWER instructions after all operands:\n%s", d)
	}
}

func TestCompileUnboundVariableIsError(t *testing.T) {
	_, errs := Compile("var x = y\n", "<test>", newTestInterner(), nil)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for unbound variable")
	}
}

func TestCompileRecursiveFunctionResolvesOwnName(t *testing.T) {
	src := "function fact(n)\n  if n is Number then return n end\n  return n * fact(n - 1)\nend\n"
	res := mustCompile(t, src)
	d := disasm(res)
	if !contains(d, "CLOSURE") {
		t.Errorf("expected CLOSURE in disassembly:\n%s", d)
	}
}

func TestCompileClassWithConstructorAndMethod(t *testing.T) {
	src := "class Point\n" +
		"  var x = 0\n" +
		"  var y = 0\n" +
		"  function Point(px, py)\n" +
		"    self.x = px\n" +
		"    self.y = py\n" +
		"  end\n" +
		"  function length()\n" +
		"    return self.x\n" +
		"  end\n" +
		"end\n"
	res := mustCompile(t, src)
	d := disasm(res)
	for _, op := range []string{"CLASS", "DEFINE_FIELD", "DEFINE_CONSTRUCTOR", "DEFINE_METHOD"} {
		if !contains(d, op) {
			t.Errorf("expected %s in disassembly:\n%s", op, d)
		}
	}
}

func TestCompileDuplicateConstructorIsError(t *testing.T) {
	src := "class A\n" +
		"  function A() end\n" +
		"  function A() end\n" +
		"end\n"
	_, errs := Compile(src, "<test>", newTestInterner(), nil)
	if len(errs) == 0 {
		t.Fatal("expected an error for a second constructor")
	}
}

func TestCompileForLoopDesugarsToInvoke(t *testing.T) {
	res := mustCompile(t, "for i in 1..5 do\n  var y = i\nend\n")
	d := disasm(res)
	if !contains(d, "INVOKE") {
		t.Errorf("expected INVOKE (iterate/iteratorValue) in disassembly:\n%s", d)
	}
	if !contains(d, "LOOP") {
		t.Errorf("expected LOOP in disassembly:\n%s", d)
	}
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, errs := Compile("break\n", "<test>", newTestInterner(), nil)
	if len(errs) == 0 {
		t.Fatal("expected an error for break outside a loop")
	}
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	src := "function makeCounter()\n" +
		"  var n = 0\n" +
		"  function step()\n" +
		"    n = n + 1\n" +
		"    return n\n" +
		"  end\n" +
		"  return step\n" +
		"end\n"
	res := mustCompile(t, src)
	d := disasm(res)
	if !contains(d, "CLOSURE") {
		t.Errorf("expected CLOSURE in disassembly:\n%s", d)
	}
}

func contains(s, sub string) bool { return indexOf(s, sub) != -1 }

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func count(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
			i += len(sub) - 1
		}
	}
	return n
}
