package compiler

import "github.com/progalt/solis/pkg/scanner"

// Precedence mirrors the Pratt table from the spec. parsePrecedence(p)
// keeps consuming infix operators whose own precedence is >= p. DOTDOT
// (range) isn't named in the spec's precedence list; it's slotted between
// COMPARISON and TERM, looser than arithmetic but tighter than equality,
// which is where range literals read most naturally (`a < b..c` parses as
// `a < (b..c)`, `1..2+3` parses as `1..(2+3)`).
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precRange
	precTerm
	precFactor
	precPower
	precUnary
	precCall
	precSubscript
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[scanner.TokenType]parseRule

func init() {
	rules = map[scanner.TokenType]parseRule{
		scanner.LPAREN:       {prefix: grouping, infix: call, precedence: precCall},
		scanner.LBRACKET:     {prefix: listLiteral, infix: subscript, precedence: precSubscript},
		scanner.DOT:          {infix: dot, precedence: precCall},
		scanner.MINUS:        {prefix: unary, infix: binary, precedence: precTerm},
		scanner.PLUS:         {infix: binary, precedence: precTerm},
		scanner.SLASH:        {infix: binary, precedence: precFactor},
		scanner.SLASHSLASH:   {infix: binary, precedence: precFactor},
		scanner.STAR:         {infix: binary, precedence: precFactor},
		scanner.STARSTAR:     {infix: binary, precedence: precPower},
		scanner.DOTDOT:       {infix: binary, precedence: precRange},
		scanner.BANG:         {prefix: unary},
		scanner.BANGEQUAL:    {infix: binary, precedence: precEquality},
		scanner.EQUALEQUAL:   {infix: binary, precedence: precEquality},
		scanner.GREATER:      {infix: binary, precedence: precComparison},
		scanner.GREATEREQUAL: {infix: binary, precedence: precComparison},
		scanner.LESS:         {infix: binary, precedence: precComparison},
		scanner.LESSEQUAL:    {infix: binary, precedence: precComparison},
		scanner.IDENTIFIER:   {prefix: variable},
		scanner.SELF:         {prefix: self},
		scanner.STRING:       {prefix: stringLiteral},
		scanner.NUMBER:       {prefix: number},
		scanner.AND:          {infix: and_, precedence: precAnd},
		scanner.OR:           {infix: or_, precedence: precOr},
		scanner.IS:           {infix: isExpr, precedence: precComparison},
		scanner.TRUE:         {prefix: literal},
		scanner.FALSE:        {prefix: literal},
		scanner.NULL:         {prefix: literal},
	}
}

func getRule(t scanner.TokenType) parseRule {
	return rules[t]
}
