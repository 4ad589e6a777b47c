package payroll

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const maxFormulaDepth = 128

// Node is one element of a parsed formula: a Literal, a Variable or a BinaryOp.
type Node interface {
	node()
}

// Literal is a numeric constant such as 0.12 in "BASIC * 0.12".
type Literal struct {
	Value decimal.Decimal
}

// Variable names a component code or a previously computed value, looked
// up in the evaluation scope.
type Variable struct {
	Name string
}

// BinaryOp applies Op, one of + - * /, to its operands.
type BinaryOp struct {
	Op    byte
	Left  Node
	Right Node
}

func (Literal) node()  {}
func (Variable) node() {}
func (BinaryOp) node() {}

// Expression is a parsed formula ready for repeated evaluation.
type Expression struct {
	source string
	root   Node
}

func (e *Expression) String() string {
	return e.source
}

func (e *Expression) Root() Node {
	return e.root
}

// Variables returns the distinct identifiers referenced by the expression in
// ascending order.
func (e *Expression) Variables() []string {
	seen := map[string]struct{}{}
	collectVariables(e.root, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Expression) Eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	return evalNode(e.root, bindings, e.source)
}

// EvaluateFormula parses and evaluates expression against bindings.
func EvaluateFormula(expression string, bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := ParseFormula(expression)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Eval(bindings)
}

func collectVariables(n Node, seen map[string]struct{}) {
	switch n := n.(type) {
	case Variable:
		seen[n.Name] = struct{}{}
	case BinaryOp:
		collectVariables(n.Left, seen)
		collectVariables(n.Right, seen)
	}
}

func evalNode(n Node, bindings map[string]decimal.Decimal, source string) (decimal.Decimal, error) {
	switch n := n.(type) {
	case Literal:
		return n.Value, nil
	case Variable:
		value, ok := bindings[n.Name]
		if !ok {
			return decimal.Zero, &UnknownVariableError{Name: n.Name}
		}
		return value, nil
	case BinaryOp:
		left, err := evalNode(n.Left, bindings, source)
		if err != nil {
			return decimal.Zero, err
		}
		right, err := evalNode(n.Right, bindings, source)
		if err != nil {
			return decimal.Zero, err
		}
		switch n.Op {
		case '+':
			return left.Add(right), nil
		case '-':
			return left.Sub(right), nil
		case '*':
			return left.Mul(right), nil
		case '/':
			if right.IsZero() {
				return decimal.Zero, &DivisionByZeroError{Expression: source}
			}
			return left.Div(right), nil
		}
		return decimal.Zero, fmt.Errorf("unsupported operator %q", n.Op)
	}
	return decimal.Zero, fmt.Errorf("unsupported formula node %T", n)
}

// ParseFormula parses expr ::= term (('+'|'-') term)*, term ::= unary
// (('*'|'/') unary)*, unary ::= ('-'|'+') unary | primary, primary ::=
// number | identifier | '(' expr ')'.
func ParseFormula(expression string) (*Expression, error) {
	p := &formulaParser{src: expression}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.fail("empty expression")
	}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.fail(fmt.Sprintf("unexpected %q", p.src[p.pos]))
	}
	return &Expression{source: expression, root: root}, nil
}

type formulaParser struct {
	src string
	pos int
}

func (p *formulaParser) fail(message string) error {
	return &FormulaSyntaxError{Expression: p.src, Position: p.pos, Message: message}
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *formulaParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *formulaParser) parseExpr(depth int) (Node, error) {
	if depth > maxFormulaDepth {
		return nil, p.fail("expression nested too deeply")
	}
	left, err := p.parseTerm(depth)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm(depth)
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *formulaParser) parseTerm(depth int) (Node, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *formulaParser) parseUnary(depth int) (Node, error) {
	if depth > maxFormulaDepth {
		return nil, p.fail("expression nested too deeply")
	}
	c, ok := p.peek()
	if ok && (c == '-' || c == '+') {
		p.pos++
		operand, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		if c == '+' {
			return operand, nil
		}
		return BinaryOp{Op: '-', Left: Literal{Value: decimal.Zero}, Right: operand}, nil
	}
	return p.parsePrimary(depth)
}

func (p *formulaParser) parsePrimary(depth int) (Node, error) {
	c, ok := p.peek()
	if !ok {
		return nil, p.fail("unexpected end of expression")
	}
	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseExpr(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing, ok := p.peek(); !ok || closing != ')' {
			return nil, p.fail("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case isDigit(c) || c == '.':
		return p.parseNumber()
	case isIdentStart(c):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		return Variable{Name: p.src[start:p.pos]}, nil
	}
	return nil, p.fail(fmt.Sprintf("unexpected %q", c))
}

func (p *formulaParser) parseNumber() (Node, error) {
	start := p.pos
	digits := 0
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
		digits++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		p.pos = start
		return nil, p.fail("malformed number")
	}
	if p.pos < len(p.src) && isIdentStart(p.src[p.pos]) {
		return nil, p.fail("malformed number")
	}
	value, err := decimal.NewFromString(p.src[start:p.pos])
	if err != nil {
		p.pos = start
		return nil, p.fail("malformed number")
	}
	return Literal{Value: value}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
