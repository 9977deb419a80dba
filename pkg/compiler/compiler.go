// Package compiler implements Solis's single-pass compiler: a scanner-fed
// Pratt parser that resolves locals/upvalues/globals at emit time and
// writes opcodes directly into a chunk.Chunk, with no intermediate AST.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/progalt/solis/pkg/chunk"
	"github.com/progalt/solis/pkg/scanner"
	"github.com/progalt/solis/pkg/value"
)

// StringInterner is the slice of VM behavior the compiler needs: every
// string constant the compiler emits (identifiers used as field/method/
// global names, and string literals) is interned through this so compile-
// time constants and runtime-allocated strings of the same content share
// one object, preserving the "at most one String per byte sequence"
// invariant across both.
type StringInterner interface {
	Intern(s string) *value.ObjString

	// PinCompileRoot and UnpinCompileRoot bracket one function body's
	// compilation so a GC cycle triggered mid-compile (stress mode, or a
	// deep nesting of Intern calls) can trace into the in-progress
	// chunk's constant pool before it's linked into any frame.
	PinCompileRoot(fn *value.ObjFunction)
	UnpinCompileRoot()
}

// Result is what a successful compile produces: the top-level script
// function (ready to wrap in a Closure and push as frame 0) plus the
// module's global layout.
type Result struct {
	Function   *value.ObjFunction
	GlobalMap  map[string]int
	NumGlobals int
}

type funcType int

const (
	funcScript funcType = iota
	funcFunction
	funcMethod
	funcConstructor
)

type local struct {
	name       string
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type loopState struct {
	enclosing        *loopState
	loopStart        int
	scopeDepthAtLoop int
	breakJumps       []int
}

type classState struct {
	enclosing      *classState
	name           string
	hasConstructor bool
}

// Parser is the state shared by every nested Compiler for one module
// compile: the token cursor, error accumulation, and the module's global
// variable layout (globals are resolved module-wide, unlike locals/
// upvalues which are per-function).
type Parser struct {
	sc       *scanner.Scanner
	previous scanner.Token
	current  scanner.Token

	hadError  bool
	panicMode bool
	errs      []error

	moduleName string
	interner   StringInterner

	globalMap  map[string]int
	nextGlobal int
}

func (p *Parser) addGlobal(name string) int {
	if idx, ok := p.globalMap[name]; ok {
		return idx
	}
	idx := p.nextGlobal
	p.globalMap[name] = idx
	p.nextGlobal++
	return idx
}

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.sc.NextToken()
		if p.current.Type != scanner.ERROR {
			break
		}
		p.errorAt(p.current, p.current.Lexeme)
	}
}

func (p *Parser) check(t scanner.TokenType) bool { return p.current.Type == t }

func (p *Parser) match(t scanner.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t scanner.TokenType, msg string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAt(p.current, msg)
}

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *Parser) errorAtPrevious(msg string) { p.errorAt(p.previous, msg) }

func (p *Parser) errorAt(tok scanner.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	where := ""
	switch tok.Type {
	case scanner.EOF:
		where = " at end"
	case scanner.ERROR:
		// lexeme is already the message
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	p.errs = append(p.errs, errors.Errorf("%s:%d: error%s: %s", p.moduleName, tok.Line, where, msg))
}

// synchronize skips tokens until a statement boundary so one error doesn't
// cascade into a pile of follow-on errors (§7: "panic mode to suppress
// cascades until a statement boundary").
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != scanner.EOF {
		if p.previous.Type == scanner.LINE {
			return
		}
		switch p.current.Type {
		case scanner.CLASS, scanner.FUNCTION, scanner.VAR, scanner.ENUM,
			scanner.IF, scanner.WHILE, scanner.FOR, scanner.RETURN,
			scanner.BREAK, scanner.END:
			return
		}
		p.advance()
	}
}

// Compiler is the per-function compilation state: its chunk, its locals
// and upvalues, and a link to the enclosing function compiler (nil at the
// top level) used for upvalue-capture recursion.
type Compiler struct {
	parser    *Parser
	enclosing *Compiler
	typ       funcType
	function  *value.ObjFunction
	chunk     *chunk.Chunk

	locals     []local
	scopeDepth int
	upvalues   []upvalueRef

	loop  *loopState
	class *classState
}

func newCompiler(p *Parser, enclosing *Compiler, typ funcType) *Compiler {
	fn := value.NewFunction()
	ch := chunk.New()
	fn.Chunk = ch
	c := &Compiler{
		parser:    p,
		enclosing: enclosing,
		typ:       typ,
		function:  fn,
		chunk:     ch,
	}
	p.interner.PinCompileRoot(fn)
	if enclosing != nil {
		c.class = enclosing.class
		c.loop = nil // loops never cross a function boundary
	}
	slot0 := ""
	if typ == funcMethod || typ == funcConstructor {
		slot0 = "self"
	}
	c.locals = append(c.locals, local{name: slot0, depth: 0})
	return c
}

// Compile compiles a whole module (one source file) into its top-level
// script function. seedGlobals pre-populates the module's name->slot table
// (e.g. with globals a host already pushed via the embedding API, or with
// a REPL's globals from an earlier Compile call against the same module)
// so new declarations continue numbering after it rather than colliding
// with slot 0; pass nil for a fresh module.
func Compile(source, moduleName string, interner StringInterner, seedGlobals map[string]int) (*Result, []error) {
	globalMap := make(map[string]int, len(seedGlobals))
	nextGlobal := 0
	for name, idx := range seedGlobals {
		globalMap[name] = idx
		if idx >= nextGlobal {
			nextGlobal = idx + 1
		}
	}
	p := &Parser{
		sc:         scanner.New(source),
		moduleName: moduleName,
		interner:   interner,
		globalMap:  globalMap,
		nextGlobal: nextGlobal,
	}
	c := newCompiler(p, nil, funcScript)

	p.advance()
	c.skipLines()
	for !p.check(scanner.EOF) {
		c.declaration()
		c.skipLines()
	}

	fn := c.endCompiler()
	if p.hadError {
		return nil, p.errs
	}
	return &Result{Function: fn, GlobalMap: p.globalMap, NumGlobals: p.nextGlobal}, nil
}

func (c *Compiler) check(t scanner.TokenType) bool  { return c.parser.check(t) }
func (c *Compiler) match(t scanner.TokenType) bool  { return c.parser.match(t) }
func (c *Compiler) consume(t scanner.TokenType, m string) { c.parser.consume(t, m) }
func (c *Compiler) skipLines() {
	for c.parser.check(scanner.LINE) {
		c.parser.advance()
	}
}

// consumeStatementEnd eats the LINE run terminating a statement. It's
// lenient about a missing terminator right before a block closer (`end`,
// `else`) or EOF, since the spec's own examples write single-line bodies
// like `function get() return self.v end`.
func (c *Compiler) consumeStatementEnd() {
	if c.parser.check(scanner.LINE) {
		c.skipLines()
		return
	}
	if !c.check(scanner.END) && !c.check(scanner.ELSE) && !c.check(scanner.EOF) {
		c.parser.errorAtCurrent("expect newline after statement")
	}
}

func (c *Compiler) currentLine() int {
	if c.parser.previous.Line != 0 {
		return c.parser.previous.Line
	}
	return c.parser.current.Line
}

func (c *Compiler) emitOp(op chunk.Opcode) int       { return c.chunk.WriteOp(op, c.currentLine()) }
func (c *Compiler) emitRawByte(b byte) int            { return c.chunk.Write(b, c.currentLine()) }
func (c *Compiler) emitUint16Raw(v uint16) int         { return c.chunk.WriteUint16(v, c.currentLine()) }

func (c *Compiler) emitUint16Operand(op chunk.Opcode, operand uint16) {
	c.emitOp(op)
	c.emitUint16Raw(operand)
}

func (c *Compiler) emitInvoke(nameConst int, argCount int) {
	c.emitOp(chunk.OpInvoke)
	c.emitUint16Raw(uint16(nameConst))
	c.emitRawByte(byte(argCount))
}

func (c *Compiler) makeConstant(v value.Value) int {
	idx := c.chunk.AddConstant(v)
	if idx > 0xFFFF {
		c.parser.errorAtPrevious("too many constants in one chunk")
		return 0
	}
	return idx
}

func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(value.ObjValue(c.parser.interner.Intern(name)))
}

// emitConstantIndex pushes the constant already living at idx, choosing
// the 1-byte CONSTANT form or the 2-byte CONSTANT_LONG form per §6.
func (c *Compiler) emitConstantIndex(idx int) {
	if idx <= 0xFF {
		c.emitOp(chunk.OpConstant)
		c.emitRawByte(byte(idx))
	} else {
		c.emitOp(chunk.OpConstantLong)
		c.emitUint16Raw(uint16(idx))
	}
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitConstantIndex(c.makeConstant(v))
}

func (c *Compiler) emitJump(op chunk.Opcode) int {
	c.emitOp(op)
	return c.emitUint16Raw(0xFFFF)
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk.Code) - offset - 2
	if jump > 0xFFFF {
		c.parser.errorAtPrevious("jump target too far away (exceeds 65535 bytes)")
		return
	}
	c.chunk.PatchUint16(offset, uint16(jump))
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunk.Code) - loopStart + 2
	if offset > 0xFFFF {
		c.parser.errorAtPrevious("loop body too large (exceeds 65535 bytes)")
		offset = 0
	}
	c.emitUint16Raw(uint16(offset))
}

func (c *Compiler) endCompiler() *value.ObjFunction {
	if c.typ == funcConstructor {
		c.emitUint16Operand(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
	c.parser.interner.UnpinCompileRoot()
	return c.function
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= 256 {
		c.parser.errorAtPrevious("too many local variables in one function")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.parser.errorAtPrevious("'" + name + "' is already declared in this scope")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// declareNamedBinding handles the common "declare a name, decide local vs.
// global" path shared by var/function/class/enum declarations and
// parameters. For a local it just reserves the stack slot (uninitialized);
// for a global it reserves the module-wide index *before* the caller
// compiles whatever initializer follows, which is what lets recursive
// functions and self-referencing classes resolve their own name.
func (c *Compiler) declareNamedBinding(name string) (nameConst int, isLocal bool) {
	c.declareVariable(name)
	if c.scopeDepth > 0 {
		return 0, true
	}
	c.parser.addGlobal(name)
	return c.identifierConstant(name), false
}

func (c *Compiler) defineBinding(nameConst int, isLocal bool) {
	if isLocal {
		c.markInitialized()
		return
	}
	c.emitUint16Operand(chunk.OpDefineGlobal, uint16(nameConst))
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.parser.errorAtPrevious("can't read local variable '" + name + "' in its own initializer")
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if i, ok := c.enclosing.resolveLocal(name); ok {
		c.enclosing.locals[i].isCaptured = true
		return c.addUpvalue(byte(i), true), true
	}
	if i, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(byte(i), false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= 256 {
		c.parser.errorAtPrevious("too many captured variables in one function")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

func namedVariable(c *Compiler, name string, canAssign bool) {
	var getOp, setOp chunk.Opcode
	var arg int
	if i, ok := c.resolveLocal(name); ok {
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, i
	} else if i, ok := c.resolveUpvalue(name); ok {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, i
	} else if i, ok := c.parser.globalMap[name]; ok {
		getOp, setOp, arg = chunk.OpGetGlobal, chunk.OpSetGlobal, i
	} else {
		c.parser.errorAtPrevious("use of unbound variable '" + name + "'")
		return
	}
	if canAssign && c.parser.match(scanner.EQUAL) {
		c.expression()
		c.emitUint16Operand(setOp, uint16(arg))
	} else {
		c.emitUint16Operand(getOp, uint16(arg))
	}
}

// --- expressions ---

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.parser.advance()
	prefix := getRule(c.parser.previous.Type).prefix
	if prefix == nil {
		c.parser.errorAtPrevious("expect expression")
		return
	}
	canAssign := p <= precAssignment
	prefix(c, canAssign)

	for p <= getRule(c.parser.current.Type).precedence {
		c.parser.advance()
		infix := getRule(c.parser.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.parser.match(scanner.EQUAL) {
		c.parser.errorAtPrevious("invalid assignment target")
	}
}

func number(c *Compiler, _ bool) {
	n, err := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	if err != nil {
		c.parser.errorAtPrevious("invalid number literal '" + c.parser.previous.Lexeme + "'")
		return
	}
	c.emitConstant(value.NumberValue(n))
}

func stringLiteral(c *Compiler, _ bool) {
	s := c.parser.interner.Intern(c.parser.previous.Lexeme)
	c.emitConstant(value.ObjValue(s))
}

func literal(c *Compiler, _ bool) {
	switch c.parser.previous.Type {
	case scanner.TRUE:
		c.emitOp(chunk.OpTrue)
	case scanner.FALSE:
		c.emitOp(chunk.OpFalse)
	case scanner.NULL:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(scanner.RPAREN, "expect ')' after expression")
}

func unary(c *Compiler, _ bool) {
	op := c.parser.previous.Type
	c.parsePrecedence(precUnary)
	switch op {
	case scanner.MINUS:
		c.emitOp(chunk.OpNegate)
	case scanner.BANG:
		c.emitOp(chunk.OpNot)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.parser.previous.Type
	rule := getRule(op)
	if op == scanner.STARSTAR {
		c.parsePrecedence(rule.precedence) // right-associative
	} else {
		c.parsePrecedence(rule.precedence + 1)
	}
	switch op {
	case scanner.PLUS:
		c.emitOp(chunk.OpAdd)
	case scanner.MINUS:
		c.emitOp(chunk.OpSubtract)
	case scanner.STAR:
		c.emitOp(chunk.OpMultiply)
	case scanner.SLASH:
		c.emitOp(chunk.OpDivide)
	case scanner.SLASHSLASH:
		c.emitOp(chunk.OpFloorDivide)
	case scanner.STARSTAR:
		c.emitOp(chunk.OpPower)
	case scanner.DOTDOT:
		c.emitOp(chunk.OpDotDot)
	case scanner.EQUALEQUAL:
		c.emitOp(chunk.OpEqual)
	case scanner.BANGEQUAL:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case scanner.GREATER:
		c.emitOp(chunk.OpGreater)
	case scanner.GREATEREQUAL:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case scanner.LESS:
		c.emitOp(chunk.OpLess)
	case scanner.LESSEQUAL:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	namedVariable(c, c.parser.previous.Lexeme, canAssign)
}

// self resolves like any other variable: slot 0 is named "self" only in
// method/constructor compilers, so a plain function (or a closure nested
// inside one) fails ordinary variable resolution and reports "unbound",
// while a closure nested inside a method legitimately captures it as an
// upvalue.
func self(c *Compiler, _ bool) {
	namedVariable(c, "self", false)
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.check(scanner.RPAREN) {
		for {
			c.expression()
			count++
			if count > chunk.MaxCallArity {
				c.parser.errorAtPrevious(fmt.Sprintf("can't have more than %d arguments", chunk.MaxCallArity))
			}
			if !c.match(scanner.COMMA) {
				break
			}
		}
	}
	c.consume(scanner.RPAREN, "expect ')' after arguments")
	return count
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOp(chunk.CallOpcode(argCount))
}

func dot(c *Compiler, canAssign bool) {
	c.consume(scanner.IDENTIFIER, "expect property name after '.'")
	name := c.parser.previous.Lexeme
	nameConst := c.identifierConstant(name)

	switch {
	case canAssign && c.match(scanner.EQUAL):
		c.expression()
		c.emitUint16Operand(chunk.OpSetField, uint16(nameConst))
	case c.match(scanner.LPAREN):
		argCount := c.argumentList()
		c.emitInvoke(nameConst, argCount)
	default:
		c.emitUint16Operand(chunk.OpGetField, uint16(nameConst))
	}
}

func subscript(c *Compiler, canAssign bool) {
	c.expression()
	c.consume(scanner.RBRACKET, "expect ']' after index")
	if canAssign && c.match(scanner.EQUAL) {
		c.expression()
		c.emitOp(chunk.OpSubscriptSet)
	} else {
		c.emitOp(chunk.OpSubscriptGet)
	}
}

func listLiteral(c *Compiler, _ bool) {
	c.emitOp(chunk.OpCreateList)
	if !c.check(scanner.RBRACKET) {
		for {
			c.expression()
			c.emitOp(chunk.OpAppendList)
			if !c.match(scanner.COMMA) {
				break
			}
		}
	}
	c.consume(scanner.RBRACKET, "expect ']' after list elements")
}

func isExpr(c *Compiler, _ bool) {
	c.consume(scanner.IDENTIFIER, "expect type name after 'is'")
	nameConst := c.identifierConstant(c.parser.previous.Lexeme)
	c.emitUint16Operand(chunk.OpIs, uint16(nameConst))
}

// --- statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(scanner.VAR):
		c.varDeclaration()
	case c.match(scanner.FUNCTION):
		c.funDeclaration()
	case c.match(scanner.CLASS):
		c.classDeclaration()
	case c.match(scanner.ENUM):
		c.enumDeclaration()
	default:
		c.statement()
	}
	if c.parser.panicMode {
		c.parser.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	c.consume(scanner.IDENTIFIER, "expect variable name")
	name := c.parser.previous.Lexeme
	nameConst, isLocal := c.declareNamedBinding(name)
	if c.match(scanner.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consumeStatementEnd()
	c.defineBinding(nameConst, isLocal)
}

func (c *Compiler) funDeclaration() {
	c.consume(scanner.IDENTIFIER, "expect function name")
	name := c.parser.previous.Lexeme
	nameConst, isLocal := c.declareNamedBinding(name)
	if isLocal {
		c.markInitialized()
	}
	c.compileFunctionBody(funcFunction, name)
	c.defineBinding(nameConst, isLocal)
}

// compileFunctionBody parses `(params) BODY end` and emits the resulting
// closure (with its upvalue capture byte-pairs) into the *enclosing*
// chunk; c here is the enclosing compiler.
func (c *Compiler) compileFunctionBody(typ funcType, name string) {
	sub := newCompiler(c.parser, c, typ)
	sub.function.Name = c.parser.interner.Intern(name)
	sub.beginScope()

	sub.consume(scanner.LPAREN, "expect '(' after function name")
	if !sub.check(scanner.RPAREN) {
		for {
			sub.function.Arity++
			if sub.function.Arity > 255 {
				sub.parser.errorAtCurrent("can't have more than 255 parameters")
			}
			sub.consume(scanner.IDENTIFIER, "expect parameter name")
			sub.declareVariable(sub.parser.previous.Lexeme)
			sub.markInitialized()
			if !sub.match(scanner.COMMA) {
				break
			}
		}
	}
	sub.consume(scanner.RPAREN, "expect ')' after parameters")
	sub.skipLines()

	for !sub.check(scanner.END) && !sub.check(scanner.EOF) {
		sub.declaration()
		sub.skipLines()
	}
	sub.consume(scanner.END, "expect 'end' after function body")

	fn := sub.endCompiler()
	idx := c.makeConstant(value.ObjValue(fn))
	c.emitOp(chunk.OpClosure)
	c.emitRawByte(byte(idx))
	for _, uv := range sub.upvalues {
		if uv.isLocal {
			c.emitRawByte(1)
		} else {
			c.emitRawByte(0)
		}
		c.emitRawByte(uv.index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(scanner.IDENTIFIER, "expect class name")
	className := c.parser.previous.Lexeme
	nameConst := c.identifierConstant(className)

	c.declareVariable(className)
	isLocal := c.scopeDepth > 0
	if isLocal {
		c.markInitialized()
	} else {
		c.parser.addGlobal(className)
	}

	c.emitUint16Operand(chunk.OpClass, uint16(nameConst))

	prevClass := c.class
	c.class = &classState{enclosing: prevClass, name: className}

	if c.match(scanner.INHERITS) {
		c.consume(scanner.IDENTIFIER, "expect superclass name")
		superName := c.parser.previous.Lexeme
		if superName == className {
			c.parser.errorAtPrevious("a class can't inherit from itself")
		}
		namedVariable(c, superName, false)
		c.emitOp(chunk.OpInherit)
	}

	c.skipLines()
	for !c.check(scanner.END) && !c.check(scanner.EOF) {
		c.classMember()
		c.skipLines()
	}
	c.consume(scanner.END, "expect 'end' after class body")

	c.class = prevClass

	if !isLocal {
		c.emitUint16Operand(chunk.OpDefineGlobal, uint16(nameConst))
	}
}

func (c *Compiler) classMember() {
	switch {
	case c.match(scanner.STATIC):
		if c.match(scanner.FUNCTION) {
			c.consume(scanner.IDENTIFIER, "expect method name")
			name := c.parser.previous.Lexeme
			nameConst := c.identifierConstant(name)
			c.compileFunctionBody(funcFunction, name)
			c.emitUint16Operand(chunk.OpDefineStatic, uint16(nameConst))
		} else {
			c.consume(scanner.VAR, "expect 'var' or 'function' after 'static'")
			c.consume(scanner.IDENTIFIER, "expect static field name")
			name := c.parser.previous.Lexeme
			nameConst := c.identifierConstant(name)
			if c.match(scanner.EQUAL) {
				c.expression()
			} else {
				c.emitOp(chunk.OpNil)
			}
			c.emitUint16Operand(chunk.OpDefineStatic, uint16(nameConst))
			c.consumeStatementEnd()
		}
	case c.match(scanner.VAR):
		c.consume(scanner.IDENTIFIER, "expect field name")
		name := c.parser.previous.Lexeme
		nameConst := c.identifierConstant(name)
		if c.match(scanner.EQUAL) {
			c.expression()
		} else {
			c.emitOp(chunk.OpNil)
		}
		c.emitUint16Operand(chunk.OpDefineField, uint16(nameConst))
		c.consumeStatementEnd()
	case c.match(scanner.FUNCTION):
		c.consume(scanner.IDENTIFIER, "expect method name")
		name := c.parser.previous.Lexeme
		nameConst := c.identifierConstant(name)
		if name == c.class.name {
			if c.class.hasConstructor {
				c.parser.errorAtPrevious("a class can't have more than one constructor")
			}
			c.class.hasConstructor = true
			c.compileFunctionBody(funcConstructor, name)
			c.emitUint16Operand(chunk.OpDefineConstructor, uint16(nameConst))
		} else {
			c.compileFunctionBody(funcMethod, name)
			c.emitUint16Operand(chunk.OpDefineMethod, uint16(nameConst))
		}
	default:
		c.parser.errorAtCurrent("expect field or method declaration in class body")
		c.parser.advance()
	}
}

func (c *Compiler) enumDeclaration() {
	c.consume(scanner.IDENTIFIER, "expect enum name")
	name := c.parser.previous.Lexeme
	enumObj := value.NewEnum(c.parser.interner.Intern(name))

	c.skipLines()
	for !c.check(scanner.END) && !c.check(scanner.EOF) {
		c.consume(scanner.IDENTIFIER, "expect enum member name")
		memberName := c.parser.previous.Lexeme
		enumObj.Members.Set(c.parser.interner.Intern(memberName), value.NumberValue(float64(enumObj.Count)))
		enumObj.Count++
		c.match(scanner.COMMA)
		c.skipLines()
	}
	c.consume(scanner.END, "expect 'end' after enum body")

	c.emitConstant(value.ObjValue(enumObj))
	nameConst, isLocal := c.declareNamedBinding(name)
	c.defineBinding(nameConst, isLocal)
}

func (c *Compiler) statement() {
	switch {
	case c.match(scanner.IF):
		c.ifStatement()
	case c.match(scanner.WHILE):
		c.whileStatement()
	case c.match(scanner.FOR):
		c.forStatement()
	case c.match(scanner.DO):
		c.beginScope()
		c.block()
		c.endScope()
		c.consume(scanner.END, "expect 'end' after block")
	case c.match(scanner.BREAK):
		c.breakStatement()
	case c.match(scanner.RETURN):
		c.returnStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	c.skipLines()
	for !c.check(scanner.END) && !c.check(scanner.EOF) && !c.check(scanner.ELSE) {
		c.declaration()
		c.skipLines()
	}
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consumeStatementEnd()
	if c.typ == funcScript && c.scopeDepth == 0 && c.check(scanner.EOF) {
		// A script's final top-level expression is its result: return it
		// rather than popping it, so Interpret can hand it back.
		c.emitOp(chunk.OpReturn)
		return
	}
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.expression()
	c.consume(scanner.THEN, "expect 'then' after condition")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.beginScope()
	c.block()
	c.endScope()

	if c.match(scanner.ELSE) {
		elseJump := c.emitJump(chunk.OpJump)
		c.patchJump(thenJump)
		c.emitOp(chunk.OpPop)
		c.beginScope()
		c.block()
		c.endScope()
		c.patchJump(elseJump)
	} else {
		c.patchJump(thenJump)
		c.emitOp(chunk.OpPop)
	}
	c.consume(scanner.END, "expect 'end' after if statement")
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	prevLoop := c.loop
	c.loop = &loopState{enclosing: prevLoop, loopStart: loopStart, scopeDepthAtLoop: c.scopeDepth}

	c.expression()
	c.consume(scanner.DO, "expect 'do' after while condition")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.beginScope()
	c.block()
	c.endScope()
	c.consume(scanner.END, "expect 'end' after while body")

	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)

	for _, j := range c.loop.breakJumps {
		c.patchJump(j)
	}
	c.loop = prevLoop
}

// forStatement lowers `for x in S do BODY end` per §4.2's desugaring,
// using two hidden locals whose names can't collide with user identifiers.
func (c *Compiler) forStatement() {
	c.consume(scanner.IDENTIFIER, "expect loop variable name")
	varName := c.parser.previous.Lexeme
	c.consume(scanner.IN, "expect 'in' after loop variable")

	c.beginScope()

	c.expression() // hidden seq = S
	c.addLocal("@seq")
	c.markInitialized()
	seqSlot := len(c.locals) - 1

	c.emitOp(chunk.OpNil) // hidden iter = null
	c.addLocal("@iter")
	c.markInitialized()
	iterSlot := len(c.locals) - 1

	c.consume(scanner.DO, "expect 'do' after for-in expression")

	loopStart := len(c.chunk.Code)
	prevLoop := c.loop
	c.loop = &loopState{enclosing: prevLoop, loopStart: loopStart, scopeDepthAtLoop: c.scopeDepth}

	iterateConst := c.identifierConstant("iterate")
	c.emitUint16Operand(chunk.OpGetLocal, uint16(seqSlot))
	c.emitUint16Operand(chunk.OpGetLocal, uint16(iterSlot))
	c.emitInvoke(iterateConst, 1)
	c.emitUint16Operand(chunk.OpSetLocal, uint16(iterSlot))
	c.emitOp(chunk.OpPop)

	c.emitUint16Operand(chunk.OpGetLocal, uint16(iterSlot))
	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)

	c.beginScope()
	ivConst := c.identifierConstant("iteratorValue")
	c.emitUint16Operand(chunk.OpGetLocal, uint16(seqSlot))
	c.emitUint16Operand(chunk.OpGetLocal, uint16(iterSlot))
	c.emitInvoke(ivConst, 1)
	c.addLocal(varName)
	c.markInitialized()

	c.block()
	c.consume(scanner.END, "expect 'end' after for body")
	c.endScope()

	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)

	for _, j := range c.loop.breakJumps {
		c.patchJump(j)
	}
	c.loop = prevLoop

	c.endScope()
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.parser.errorAtPrevious("can't use 'break' outside of a loop")
		c.consumeStatementEnd()
		return
	}
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth > c.loop.scopeDepthAtLoop; i-- {
		if c.locals[i].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
	}
	jump := c.emitJump(chunk.OpJump)
	c.loop.breakJumps = append(c.loop.breakJumps, jump)
	c.consumeStatementEnd()
}

func (c *Compiler) returnStatement() {
	if c.typ == funcScript {
		c.parser.errorAtPrevious("can't return from top-level code")
	}
	if c.check(scanner.LINE) || c.check(scanner.EOF) || c.check(scanner.END) {
		if c.typ == funcConstructor {
			c.emitUint16Operand(chunk.OpGetLocal, 0)
		} else {
			c.emitOp(chunk.OpNil)
		}
	} else {
		if c.typ == funcConstructor {
			c.parser.errorAtPrevious("can't return a value from a constructor")
		}
		c.expression()
	}
	c.emitOp(chunk.OpReturn)
	c.consumeStatementEnd()
}
