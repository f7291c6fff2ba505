package dax

import (
	"fmt"
	"strings"
	"unicode"
)

// Expression tree for formula text. Parsing before emission guarantees
// balanced parentheses and correct operator precedence, which the regex
// based strategies cannot promise for mixed boolean and arithmetic input.

type exprKind int

const (
	kindNumber exprKind = iota
	kindString
	kindIdent
	kindMeasureRef
	kindColumnRef
	kindCall
	kindUnary
	kindBinary
)

// Expr is one node of a parsed formula.
type Expr struct {
	kind exprKind
	// text holds the literal, identifier, function name or operator
	text string
	// table qualifies a column reference
	table string
	args  []*Expr
}

// operator precedence, loosest first: OR, AND, comparisons, additive,
// multiplicative
func precedence(op string) int {
	switch op {
	case "||":
		return 1
	case "&&":
		return 2
	case "=", "<>", "<", ">", "<=", ">=":
		return 3
	case "+", "-":
		return 4
	case "*", "/":
		return 5
	default:
		return 6
	}
}

// Render emits the expression with balanced parentheses. resolveIdent maps
// bare identifiers to their emitted form, letting callers rewrite measure
// references without re-parsing.
func (e *Expr) Render(resolveIdent func(string) string) string {
	switch e.kind {
	case kindNumber, kindString:
		return e.text
	case kindMeasureRef:
		return "[" + e.text + "]"
	case kindColumnRef:
		return fmt.Sprintf("%s[%s]", e.table, e.text)
	case kindIdent:
		if resolveIdent != nil {
			return resolveIdent(e.text)
		}
		return e.text
	case kindCall:
		rendered := make([]string, len(e.args))
		for i, arg := range e.args {
			rendered[i] = arg.Render(resolveIdent)
		}
		return fmt.Sprintf("%s(%s)", e.text, strings.Join(rendered, ", "))
	case kindUnary:
		operand := e.args[0].Render(resolveIdent)
		if e.args[0].kind == kindBinary {
			operand = "(" + operand + ")"
		}
		if e.text == "NOT" {
			return "NOT " + operand
		}
		return e.text + operand
	default:
		left := e.args[0].Render(resolveIdent)
		if child := e.args[0]; child.kind == kindBinary && precedence(child.text) < precedence(e.text) {
			left = "(" + left + ")"
		}
		right := e.args[1].Render(resolveIdent)
		if child := e.args[1]; child.kind == kindBinary && precedence(child.text) <= precedence(e.text) {
			right = "(" + right + ")"
		}
		return fmt.Sprintf("%s %s %s", left, e.text, right)
	}
}

// Identifiers returns every bare identifier in the tree, in order of first
// appearance. Function names and column references are excluded.
func (e *Expr) Identifiers() []string {
	var (
		out  []string
		seen = make(map[string]struct{})
		walk func(*Expr)
	)
	walk = func(n *Expr) {
		if n.kind == kindIdent {
			if _, dup := seen[n.text]; !dup {
				seen[n.text] = struct{}{}
				out = append(out, n.text)
			}
		}
		for _, arg := range n.args {
			walk(arg)
		}
	}
	walk(e)

	return out
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokBracket
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input []rune
	pos   int
}

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case c == '[':
		start := l.pos + 1
		for l.pos < len(l.input) && l.input[l.pos] != ']' {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("%w: unterminated bracket reference", ErrUnbalancedExpression)
		}
		text := string(l.input[start:l.pos])
		l.pos++
		return token{kind: tokBracket, text: text}, nil
	case c == '"' || c == '\'':
		quote := c
		start := l.pos
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("%w: unterminated string literal", ErrUnbalancedExpression)
		}
		l.pos++
		text := string(l.input[start:l.pos])
		// normalize single quotes to the tabular string form
		if quote == '\'' {
			text = `"` + strings.Trim(text, "'") + `"`
		}
		return token{kind: tokString, text: text}, nil
	case unicode.IsDigit(c):
		start := l.pos
		for l.pos < len(l.input) && (unicode.IsDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: string(l.input[start:l.pos])}, nil
	case unicode.IsLetter(c) || c == '_':
		start := l.pos
		for l.pos < len(l.input) && (unicode.IsLetter(l.input[l.pos]) || unicode.IsDigit(l.input[l.pos]) || l.input[l.pos] == '_' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.input[start:l.pos])}, nil
	default:
		ops := []string{"<=", ">=", "<>", "!=", "&&", "||", "=", "<", ">", "+", "-", "*", "/"}
		rest := string(l.input[l.pos:])
		for _, op := range ops {
			if strings.HasPrefix(rest, op) {
				l.pos += len(op)
				if op == "!=" {
					op = "<>"
				}
				return token{kind: tokOp, text: op}, nil
			}
		}
		return token{}, fmt.Errorf("%w: unexpected character %q", ErrUnbalancedExpression, string(c))
	}
}

type parser struct {
	tokens []token
	pos    int
}

// ParseExpression parses formula text into an expression tree. The grammar
// covers the boolean and arithmetic forms measure formulas use: AND/OR bind
// looser than comparisons, comparisons looser than arithmetic.
func ParseExpression(input string) (*Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrUnbalancedExpression)
	}

	lex := &lexer{input: []rune(input)}
	var tokens []token
	for {
		tok, err := lex.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			break
		}
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current().kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input at %q", ErrUnbalancedExpression, p.current().text)
	}

	return expr, nil
}

func (p *parser) current() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchKeywordOrOp("OR", "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{kind: kindBinary, text: "||", args: []*Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchKeywordOrOp("AND", "&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expr{kind: kindBinary, text: "&&", args: []*Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseNot() (*Expr, error) {
	if tok := p.current(); tok.kind == tokIdent && strings.EqualFold(tok.text, "NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Expr{kind: kindUnary, text: "NOT", args: []*Expr{operand}}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (*Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.kind == tokOp {
		switch tok.text {
		case "=", "<>", "<", ">", "<=", ">=":
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &Expr{kind: kindBinary, text: tok.text, args: []*Expr{left, right}}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (*Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		if tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Expr{kind: kindBinary, text: tok.text, args: []*Expr{left, right}}
	}
}

func (p *parser) parseMultiplicative() (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.current()
		if tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Expr{kind: kindBinary, text: tok.text, args: []*Expr{left, right}}
	}
}

func (p *parser) parseUnary() (*Expr, error) {
	if tok := p.current(); tok.kind == tokOp && tok.text == "-" {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{kind: kindUnary, text: "-", args: []*Expr{operand}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Expr, error) {
	tok := p.current()

	switch tok.kind {
	case tokNumber:
		p.advance()
		return &Expr{kind: kindNumber, text: tok.text}, nil
	case tokString:
		p.advance()
		return &Expr{kind: kindString, text: tok.text}, nil
	case tokBracket:
		p.advance()
		return &Expr{kind: kindMeasureRef, text: tok.text}, nil
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrUnbalancedExpression)
		}
		p.advance()
		return inner, nil
	case tokIdent:
		p.advance()
		// function call
		if p.current().kind == tokLParen {
			p.advance()
			call := &Expr{kind: kindCall, text: tok.text}
			if p.current().kind != tokRParen {
				for {
					arg, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					call.args = append(call.args, arg)
					if p.current().kind != tokComma {
						break
					}
					p.advance()
				}
			}
			if p.current().kind != tokRParen {
				return nil, fmt.Errorf("%w: missing closing parenthesis in call to %s", ErrUnbalancedExpression, tok.text)
			}
			p.advance()
			return call, nil
		}
		// qualified column reference
		if p.current().kind == tokBracket {
			bracket := p.advance()
			return &Expr{kind: kindColumnRef, text: bracket.text, table: tok.text}, nil
		}
		return &Expr{kind: kindIdent, text: tok.text}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %q", ErrUnbalancedExpression, tok.text)
	}
}

func (p *parser) matchKeywordOrOp(keyword, op string) bool {
	tok := p.current()
	if tok.kind == tokOp && tok.text == op {
		p.advance()
		return true
	}
	if tok.kind == tokIdent && strings.EqualFold(tok.text, keyword) {
		p.advance()
		return true
	}
	return false
}
