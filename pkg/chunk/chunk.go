package chunk

import (
	"fmt"
	"strings"

	"github.com/progalt/solis/pkg/value"
)

// Chunk is a byte buffer of opcodes together with a constant pool and a
// per-byte line table. Lines is kept parallel to Code (one entry per byte,
// not run-length-encoded) trading a little memory for a trivial, always-
// correct LineAt; §6 only requires the two be "run-length equivalent", and
// a flat array satisfies that the simplest way.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

func New() *Chunk {
	return &Chunk{}
}

// ConstantValues exposes the constant pool so value.ObjFunction can mark
// it during GC without pkg/value importing pkg/chunk.
func (c *Chunk) ConstantValues() []value.Value { return c.Constants }

// Write appends a single byte, tagging it with the source line it came
// from.
func (c *Chunk) Write(b byte, line int) int {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Opcode, line int) int {
	return c.Write(byte(op), line)
}

// WriteUint16 appends a 16-bit big-endian operand, matching §6's operand
// width for constant/global/local/jump indices.
func (c *Chunk) WriteUint16(v uint16, line int) int {
	start := c.Write(byte(v>>8), line)
	c.Write(byte(v), line)
	return start
}

// ReadUint16 decodes the big-endian operand starting at offset.
func (c *Chunk) ReadUint16(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}

// PatchUint16 overwrites a previously-written placeholder, used for
// back-patched jump offsets.
func (c *Chunk) PatchUint16(offset int, v uint16) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}

// AddConstant appends v to the constant pool and returns its index. The
// compiler is responsible for deduplicating identical constants if it
// wants to (the spec doesn't require pool-level deduplication, only string
// interning at the value level).
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// LineAt returns the source line the byte at offset was emitted from.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return -1
	}
	return c.Lines[offset]
}

// Disassemble renders the whole chunk for debugging/tracing, one
// instruction per line (e.g. `CONSTANT              3 'greet'`).
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		var line string
		line, offset = c.DisassembleInstruction(offset)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next one.
func (c *Chunk) DisassembleInstruction(offset int) (string, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", c.Lines[offset])
	}

	op := Opcode(c.Code[offset])
	switch {
	case op == OpConstant:
		idx := c.Code[offset+1]
		fmt.Fprintf(&sb, "%-18s %4d '%v'", op, idx, c.constAt(int(idx)))
		return sb.String(), offset + 2
	case op == OpConstantLong:
		idx := c.ReadUint16(offset + 1)
		fmt.Fprintf(&sb, "%-18s %4d '%v'", op, idx, c.constAt(int(idx)))
		return sb.String(), offset + 3
	case isUint16Operand(op):
		operand := c.ReadUint16(offset + 1)
		fmt.Fprintf(&sb, "%-18s %4d", op, operand)
		return sb.String(), offset + 3
	case op == OpInvoke:
		idx := c.ReadUint16(offset + 1)
		argCount := c.Code[offset+3]
		fmt.Fprintf(&sb, "%-18s %4d (%d args) '%v'", op, idx, argCount, c.constAt(int(idx)))
		return sb.String(), offset + 4
	case op == OpIs:
		idx := c.ReadUint16(offset + 1)
		fmt.Fprintf(&sb, "%-18s %4d '%v'", op, idx, c.constAt(int(idx)))
		return sb.String(), offset + 3
	case op == OpClosure:
		idx := c.Code[offset+1]
		fmt.Fprintf(&sb, "%-18s %4d '%v'", op, idx, c.constAt(int(idx)))
		next := offset + 2
		fn, ok := c.constAt(int(idx)).AsObj().(*value.ObjFunction)
		if ok {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[next]
				index := c.Code[next+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				fmt.Fprintf(&sb, "\n%04d      |                     %s %d", next, kind, index)
				next += 2
			}
		}
		return sb.String(), next
	case op.IsCall():
		fmt.Fprintf(&sb, "%-18s (%d args)", op, CallArity(op))
		return sb.String(), offset + 1
	default:
		fmt.Fprintf(&sb, "%-18s", op)
		return sb.String(), offset + 1
	}
}

func (c *Chunk) constAt(i int) value.Value {
	if i < 0 || i >= len(c.Constants) {
		return value.NullValue()
	}
	return c.Constants[i]
}

func isUint16Operand(op Opcode) bool {
	switch op {
	case OpGetLocal, OpSetLocal, OpGetGlobal, OpSetGlobal, OpDefineGlobal,
		OpGetUpvalue, OpSetUpvalue, OpJump, OpJumpIfFalse, OpLoop,
		OpClass, OpDefineField, OpDefineMethod, OpDefineStatic, OpDefineConstructor,
		OpGetField, OpSetField:
		return true
	default:
		return false
	}
}
