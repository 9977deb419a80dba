// Package chunk implements the mutable byte buffer, constant pool, and
// line table a compiled Function carries: the spec's "Chunk" component.
// Bytecode is in-memory only (the teacher's on-disk `.sg` format is
// deliberately not carried forward — see DESIGN.md).
package chunk

// Opcode is a single byte from the closed instruction set. Operand widths
// are fixed per opcode: constants/globals/locals/jumps are 16-bit
// big-endian except the 1-byte constant index of CONSTANT and CLOSURE;
// CALL's arity is folded into
// the opcode itself so no second byte is needed for the common case.
type Opcode byte

const (
	// Constants/singletons.
	OpConstant Opcode = iota
	OpConstantLong
	OpNil
	OpTrue
	OpFalse

	// Unary.
	OpNegate
	OpNot

	// Equality/compare — handled directly by the VM, never class-dispatched.
	OpEqual
	OpGreater
	OpLess

	// Arithmetic/subscript/range — operator-dispatched through the
	// receiver's class.
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpFloorDivide
	OpPower
	OpDotDot
	OpSubscriptGet
	OpSubscriptSet

	// Stack/locals/globals.
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpSetGlobal
	OpDefineGlobal

	// Upvalues.
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue

	// Control flow.
	OpJump
	OpJumpIfFalse
	OpLoop

	// Lists.
	OpCreateList
	OpAppendList

	// Functions.
	OpClosure
	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCall5
	OpCall6
	OpCall7
	OpCall8
	OpCall9
	OpCall10
	OpCall11
	OpCall12
	OpCall13
	OpCall14
	OpCall15
	OpCall16
	OpReturn

	// Classes.
	OpClass
	OpInherit
	OpDefineField
	OpDefineMethod
	OpDefineStatic
	OpDefineConstructor
	OpGetField
	OpSetField
	OpInvoke
	OpIs
)

var opcodeNames = [...]string{
	OpConstant:          "CONSTANT",
	OpConstantLong:       "CONSTANT_LONG",
	OpNil:                "NIL",
	OpTrue:               "TRUE",
	OpFalse:              "FALSE",
	OpNegate:             "NEGATE",
	OpNot:                "NOT",
	OpEqual:              "EQUAL",
	OpGreater:            "GREATER",
	OpLess:               "LESS",
	OpAdd:                "ADD",
	OpSubtract:           "SUBTRACT",
	OpMultiply:           "MULTIPLY",
	OpDivide:             "DIVIDE",
	OpFloorDivide:        "FLOOR_DIVIDE",
	OpPower:              "POWER",
	OpDotDot:             "DOTDOT",
	OpSubscriptGet:       "SUBSCRIPT_GET",
	OpSubscriptSet:       "SUBSCRIPT_SET",
	OpPop:                "POP",
	OpGetLocal:           "GET_LOCAL",
	OpSetLocal:           "SET_LOCAL",
	OpGetGlobal:          "GET_GLOBAL",
	OpSetGlobal:          "SET_GLOBAL",
	OpDefineGlobal:       "DEFINE_GLOBAL",
	OpGetUpvalue:         "GET_UPVALUE",
	OpSetUpvalue:         "SET_UPVALUE",
	OpCloseUpvalue:       "CLOSE_UPVALUE",
	OpJump:               "JUMP",
	OpJumpIfFalse:        "JUMP_IF_FALSE",
	OpLoop:               "LOOP",
	OpCreateList:         "CREATE_LIST",
	OpAppendList:         "APPEND_LIST",
	OpClosure:            "CLOSURE",
	OpCall0:              "CALL_0",
	OpCall1:              "CALL_1",
	OpCall2:              "CALL_2",
	OpCall3:              "CALL_3",
	OpCall4:              "CALL_4",
	OpCall5:              "CALL_5",
	OpCall6:              "CALL_6",
	OpCall7:              "CALL_7",
	OpCall8:              "CALL_8",
	OpCall9:              "CALL_9",
	OpCall10:             "CALL_10",
	OpCall11:             "CALL_11",
	OpCall12:             "CALL_12",
	OpCall13:             "CALL_13",
	OpCall14:             "CALL_14",
	OpCall15:             "CALL_15",
	OpCall16:             "CALL_16",
	OpReturn:             "RETURN",
	OpClass:              "CLASS",
	OpInherit:            "INHERIT",
	OpDefineField:        "DEFINE_FIELD",
	OpDefineMethod:       "DEFINE_METHOD",
	OpDefineStatic:       "DEFINE_STATIC",
	OpDefineConstructor:  "DEFINE_CONSTRUCTOR",
	OpGetField:           "GET_FIELD",
	OpSetField:           "SET_FIELD",
	OpInvoke:             "INVOKE",
	OpIs:                 "IS",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// MaxCallArity is the highest argument count with its own dedicated CALL_n
// opcode; calls with more arguments are out of scope (a call with that many
// arguments would need a different encoding the spec doesn't define).
const MaxCallArity = 16

// CallOpcode returns the CALL_n opcode for argCount, which must be between
// 0 and MaxCallArity inclusive.
func CallOpcode(argCount int) Opcode {
	return OpCall0 + Opcode(argCount)
}

// CallArity returns the argument count encoded by a CALL_n opcode.
func CallArity(op Opcode) int {
	return int(op - OpCall0)
}

func (op Opcode) IsCall() bool {
	return op >= OpCall0 && op <= OpCall16
}
