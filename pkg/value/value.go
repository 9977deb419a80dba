// Package value implements Solis's runtime value representation: the
// tagged-union Value token described in the data model, the heap-object
// header and concrete object variants it points at, and the open-addressed
// string table used both for interning and for class/instance field storage.
package value

import "fmt"

// Type tags the four semantic kinds a Value can hold (object-reference
// covers the twelve concrete heap-object variants in object.go).
type Type uint8

const (
	Null Type = iota
	Bool
	Number
	Obj
)

// Value is a fixed-size, copy-by-value token. Solis targets portability and
// auditability over raw throughput, so rather than NaN-box a float64 (the
// encoding the spec prefers but explicitly leaves optional) this is a small
// tagged union: a type tag plus one of a bool, a float64, or an object
// reference, whichever the tag names. Copying a Value never touches the
// heap.
type Value struct {
	typ Type
	b   bool
	n   float64
	o   Object
}

// NullValue is the canonical null token; null has no payload so every
// NullValue() is interchangeable with every other.
func NullValue() Value { return Value{typ: Null} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{typ: Bool, b: b} }

// NumberValue wraps an IEEE-754 double.
func NumberValue(n float64) Value { return Value{typ: Number, n: n} }

// ObjValue wraps a heap object reference. o must not be nil; callers that
// don't yet have an object should use NullValue instead.
func ObjValue(o Object) Value { return Value{typ: Obj, o: o} }

func (v Value) Type() Type     { return v.typ }
func (v Value) IsNull() bool   { return v.typ == Null }
func (v Value) IsBool() bool   { return v.typ == Bool }
func (v Value) IsNumber() bool { return v.typ == Number }
func (v Value) IsObj() bool    { return v.typ == Obj }

func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Object     { return v.o }

// AsString asserts the object payload is a String; callers must have
// checked IsObjType(ObjString) first (or equivalent).
func (v Value) AsString() *ObjString { return v.o.(*ObjString) }

func (v Value) IsObjType(t ObjType) bool { return v.typ == Obj && v.o.Header().Kind == t }

// Falsey implements the spec's falsiness rule: only null and false are
// false, everything else (including 0 and "") is truthy.
func (v Value) Falsey() bool {
	switch v.typ {
	case Null:
		return true
	case Bool:
		return !v.b
	default:
		return false
	}
}

// Equal implements value equality: numbers by IEEE equality, strings by
// contents (interning means pointer equality already implies this, but
// hosts can construct uninterned ObjStrings via the embedding API, so the
// comparison is defensive), everything else by object identity.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case Obj:
		if sa, ok := a.o.(*ObjString); ok {
			if sb, ok := b.o.(*ObjString); ok {
				return sa == sb || sa.Chars == sb.Chars
			}
			return false
		}
		return a.o == b.o
	default:
		return false
	}
}

// String renders a Value for diagnostics and the REPL's default echo; it is
// not used by the language's own string-conversion operator.
func (v Value) String() string {
	switch v.typ {
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.n)
	case Obj:
		return v.o.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
