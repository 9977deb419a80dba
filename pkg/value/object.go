package value

import "strings"

// ObjType is the closed set of heap-object tags from the data model's
// common header.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjNative
	ObjEnum
	ObjUserdata
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjList
	ObjModule
)

func (t ObjType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjNative:
		return "native function"
	case ObjEnum:
		return "enum"
	case ObjUserdata:
		return "userdata"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	case ObjList:
		return "list"
	case ObjModule:
		return "module"
	default:
		return "<unknown object type>"
	}
}

// Object is satisfied by every concrete heap-object variant. Header gives
// the GC and the VM's dynamic-dispatch path uniform access to the common
// header fields without a type switch; MarkChildren lets the collector
// blacken an object's outgoing references without knowing its concrete
// type.
type Object interface {
	Header() *Obj
	MarkChildren(mark func(Value))
	String() string
}

// Obj is the common header every concrete object embeds first. Next links
// it into the VM's intrusive allocation list; Class is the back-pointer
// used for dynamic dispatch of operators and methods (built-in primitive
// classes are attached by the VM at startup since numbers/bools/null have
// no heap object of their own to carry one).
type Obj struct {
	Kind   ObjType
	Marked bool
	Next   Object
	Class  *ObjClass
}

func (o *Obj) Header() *Obj { return o }

// ObjString is immutable bytes plus a precomputed FNV-1a hash. Two Strings
// with equal contents share storage once interned (see Table.FindString,
// used by the VM's string intern table).
type ObjString struct {
	Obj
	Chars string
	Hash  uint32
}

// NewString allocates an uninterned ObjString. Callers that need interning
// (sharing storage for equal contents) go through a Table via FindString
// before calling this, rather than constructing directly.
func NewString(s string) *ObjString {
	str := &ObjString{Chars: s, Hash: HashString(s)}
	str.Kind = ObjString
	return str
}

func (s *ObjString) String() string                    { return s.Chars }
func (s *ObjString) MarkChildren(mark func(Value))      {}

// HashString computes the FNV-1a hash the intern table and ObjString both
// rely on.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ObjFunction is immutable after compilation: a chunk of bytecode, an
// arity, an upvalue count, and an optional display name (nil for the
// top-level script).
type ObjFunction struct {
	Obj
	Arity        int
	UpvalueCount int
	Name         *ObjString
	Chunk        interface{} // *chunk.Chunk; held as interface{} to avoid an import cycle
}

func NewFunction() *ObjFunction {
	f := &ObjFunction{}
	f.Kind = ObjFunction
	return f
}

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<function " + f.Name.Chars + ">"
}

// chunkConstants is implemented by *chunk.Chunk. Declared here, rather
// than imported, so ObjFunction can mark its constant pool without
// pkg/value importing pkg/chunk.
type chunkConstants interface {
	ConstantValues() []Value
}

func (f *ObjFunction) MarkChildren(mark func(Value)) {
	if f.Name != nil {
		mark(ObjValue(f.Name))
	}
	if cc, ok := f.Chunk.(chunkConstants); ok {
		for _, v := range cc.ConstantValues() {
			mark(v)
		}
	}
}

// ObjUpvalue is a cell that starts out pointing at a stack slot (open) and,
// when that slot is about to go out of scope, copies the value into Closed
// and redirects to itself. OpenNext chains the per-VM open-upvalue list,
// kept separate from the intrusive allocation-list Next so the two
// traversals (GC sweep vs. close-upvalue) don't interfere.
type ObjUpvalue struct {
	Obj
	Location *Value
	Closed   Value
	OpenNext *ObjUpvalue
	// Slot is the stack index Location currently points at while open. Go
	// gives no ordered comparison between arbitrary pointers, so the VM
	// keeps the open-upvalue list sorted by this integer instead of by
	// comparing *Value addresses directly.
	Slot int
}

func (u *ObjUpvalue) String() string { return "<upvalue>" }

func (u *ObjUpvalue) MarkChildren(mark func(Value)) {
	mark(*u.Location)
}

// Close copies the pointed-at value into the cell itself and redirects
// Location at it, severing the dependency on the stack slot.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosure pairs a Function with exactly function.UpvalueCount upvalue
// references.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) String() string { return c.Function.String() }

func (c *ObjClosure) MarkChildren(mark func(Value)) {
	mark(ObjValue(c.Function))
	for _, uv := range c.Upvalues {
		if uv != nil {
			mark(ObjValue(uv))
		}
	}
}

// NativeFn is a host callback. It receives a NativeContext bound to the
// current call rather than a *vm.VM directly, so this package (which the
// vm package imports) never needs to import vm back.
type NativeFn func(ctx NativeContext)

// NativeContext is the slice of the embedding API a native callback needs;
// vm.VM implements it.
type NativeContext interface {
	Argument(i int) Value
	ArgCount() int
	Self() Value
	SetReturnValue(Value)
	RaiseError(format string, args ...interface{})
}

// ObjNative is a host callback plus a declared arity. Arity -1 means
// variadic (accepts any argument count); native classes use this sparingly.
type ObjNative struct {
	Obj
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) String() string               { return "<native function " + n.Name + ">" }
func (n *ObjNative) MarkChildren(mark func(Value)) {}

// Operator indexes the fixed-size overload array every Class carries. The
// set is exactly the nine overloadable operators; == != and unary ! are
// handled directly by the VM and never consult this table.
type Operator int

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpPow
	OpRange
	OpSubscriptGet
	OpSubscriptSet
	NumOperators
)

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpFloorDiv:
		return "//"
	case OpPow:
		return "**"
	case OpRange:
		return ".."
	case OpSubscriptGet:
		return "[]"
	case OpSubscriptSet:
		return "[]="
	default:
		return "<unknown operator>"
	}
}

// ParseOperator maps an operator tag, as written in source or passed to
// AddClassNativeOperator, to its slot index.
func ParseOperator(tag string) (Operator, bool) {
	switch tag {
	case "+":
		return OpAdd, true
	case "-":
		return OpSub, true
	case "*":
		return OpMul, true
	case "/":
		return OpDiv, true
	case "//":
		return OpFloorDiv, true
	case "**":
		return OpPow, true
	case "..":
		return OpRange, true
	case "[]":
		return OpSubscriptGet, true
	case "[]=":
		return OpSubscriptSet, true
	default:
		return 0, false
	}
}

// ObjClass is a name, three string-keyed tables (instance field defaults,
// methods, static members), an optional constructor, and the fixed-size
// operator-overload array.
type ObjClass struct {
	Obj
	Name        *ObjString
	Fields      *Table
	Methods     *Table
	Statics     *Table
	Initializer Value // Closure, NativeFunction, or Null if the class has no constructor
	Operators   [NumOperators]Value
	Super       *ObjClass // last class INHERIT copied from; nil for a root class
}

func NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{
		Name:        name,
		Fields:      NewTable(),
		Methods:     NewTable(),
		Statics:     NewTable(),
		Initializer: NullValue(),
	}
	c.Kind = ObjClass
	for i := range c.Operators {
		c.Operators[i] = NullValue()
	}
	return c
}

func (c *ObjClass) String() string { return "<class " + c.Name.Chars + ">" }

func (c *ObjClass) MarkChildren(mark func(Value)) {
	mark(ObjValue(c.Name))
	c.Fields.ForEach(func(_ *ObjString, v Value) { mark(v) })
	c.Methods.ForEach(func(_ *ObjString, v Value) { mark(v) })
	c.Statics.ForEach(func(_ *ObjString, v Value) { mark(v) })
	mark(c.Initializer)
	for _, op := range c.Operators {
		mark(op)
	}
}

// Operator returns the callable bound to op, or the zero Value (Null) if
// unbound.
func (c *ObjClass) Operator(op Operator) Value { return c.Operators[op] }

// IsNamed reports whether this class (or, transitively, a class it
// inherited from) carries the given name, matching the `is` opcode's
// fallback rule of comparing against Class.Name.
func (c *ObjClass) IsNamed(name string) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur.Name.Chars == name {
			return true
		}
	}
	return false
}

// ObjInstance is a Class reference and a per-instance field table,
// initialized by copying the class's field-default table at construction.
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields *Table
}

func NewInstance(class *ObjClass) *ObjInstance {
	inst := &ObjInstance{Class: class, Fields: NewTable()}
	inst.Kind = ObjInstance
	class.Fields.ForEach(func(k *ObjString, v Value) { inst.Fields.Set(k, v) })
	return inst
}

func (i *ObjInstance) String() string {
	return "<" + i.Class.Name.Chars + " instance>"
}

func (i *ObjInstance) MarkChildren(mark func(Value)) {
	mark(ObjValue(i.Class))
	i.Fields.ForEach(func(_ *ObjString, v Value) { mark(v) })
}

// ObjBoundMethod carries a receiver alongside a callable (Closure or
// NativeFunction) looked up through an instance but not yet invoked.
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   Value
}

func (b *ObjBoundMethod) String() string { return "<bound method>" }

func (b *ObjBoundMethod) MarkChildren(mark func(Value)) {
	mark(b.Receiver)
	mark(b.Method)
}

// ObjList is a growable sequence of Values.
type ObjList struct {
	Obj
	Elements []Value
}

func NewList() *ObjList {
	l := &ObjList{}
	l.Kind = ObjList
	return l
}

func (l *ObjList) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range l.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (l *ObjList) MarkChildren(mark func(Value)) {
	for _, e := range l.Elements {
		mark(e)
	}
}

// ObjEnum is a string-keyed table of integer-valued members plus a count.
type ObjEnum struct {
	Obj
	Name    *ObjString
	Members *Table
	Count   int
}

func NewEnum(name *ObjString) *ObjEnum {
	e := &ObjEnum{Name: name, Members: NewTable()}
	e.Kind = ObjEnum
	return e
}

func (e *ObjEnum) String() string { return "<enum " + e.Name.Chars + ">" }

func (e *ObjEnum) MarkChildren(mark func(Value)) {
	mark(ObjValue(e.Name))
	e.Members.ForEach(func(_ *ObjString, v Value) { mark(v) })
}

// ObjUserdata is an opaque host pointer plus an optional cleanup callback,
// run when the VM frees the object during sweep.
type ObjUserdata struct {
	Obj
	Data    interface{}
	Cleanup func(interface{})
}

func (u *ObjUserdata) String() string               { return "<userdata>" }
func (u *ObjUserdata) MarkChildren(mark func(Value)) {}

// ObjModule is the Closure of the top-level script plus its globals,
// keyed and indexed identically between GlobalMap and Globals.
type ObjModule struct {
	Obj
	Name      string
	Closure   *ObjClosure
	GlobalMap map[string]int
	Globals   []Value
}

func NewModule(name string) *ObjModule {
	m := &ObjModule{Name: name, GlobalMap: make(map[string]int)}
	m.Kind = ObjModule
	return m
}

func (m *ObjModule) String() string { return "<module " + m.Name + ">" }

func (m *ObjModule) MarkChildren(mark func(Value)) {
	if m.Closure != nil {
		mark(ObjValue(m.Closure))
	}
	for _, g := range m.Globals {
		mark(g)
	}
}
