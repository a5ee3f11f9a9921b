package lang

import (
	"fmt"
	"strconv"
)

// Parse tokenizes and parses a program, returning its top level
// statements in order.
func Parse(input string) ([]Node, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var prog []Node
	p.skipNewlines()
	for !p.at(EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog = append(prog, stmt)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
	return prog, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token  { return p.tokens[p.pos] }
func (p *parser) next() Token  { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) at(t Type) bool { return p.tokens[p.pos].Type == t }

func (p *parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.Type == Keyword && t.Value == kw
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		t := p.peek()
		return fmt.Errorf("line %d: expected %q, got %s %q", t.Line, kw, t.Type, t.Value)
	}
	p.next()
	return nil
}

func (p *parser) skipNewlines() {
	for p.at(Newline) {
		p.next()
	}
}

func (p *parser) endOfStatement() error {
	t := p.peek()
	if t.Type == Newline || t.Type == EOF {
		return nil
	}
	if t.Type == Keyword && (t.Value == "end" || t.Value == "else" || t.Value == "elseif") {
		return nil
	}
	return fmt.Errorf("line %d: unexpected %s %q after expression", t.Line, t.Type, t.Value)
}

func (p *parser) parseStatement() (Node, error) {
	switch {
	case p.atKeyword("function"):
		return p.parseFunction()
	case p.atKeyword("struct"):
		return p.parseStruct(false)
	case p.atKeyword("mutable"):
		p.next()
		if err := p.expectKeyword("struct"); err != nil {
			return nil, err
		}
		p.pos-- // parseStruct re-consumes the struct keyword
		return p.parseStruct(true)
	case p.atKeyword("if"):
		return p.parseIf()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("begin"):
		return p.parseBegin()
	case p.atKeyword("return"):
		t := p.next()
		if p.at(Newline) || p.at(EOF) || p.atKeyword("end") {
			return &Return{X: &NothingLit{Line: t.Line}, Line: t.Line}, nil
		}
		x, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		return &Return{X: x, Line: t.Line}, nil
	}
	return p.parseExprOrAssign()
}

// parseExprOrAssign handles `x = v`, `x.f = v`, and the short function
// form `f(a, b) = body`, falling back to a bare expression.
func (p *parser) parseExprOrAssign() (Node, error) {
	lhs, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.Type != Op || t.Value != "=" {
		return lhs, nil
	}
	p.next()
	rhs, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	switch target := lhs.(type) {
	case *Var:
		return &Assign{Name: target.Name, Val: rhs, Line: t.Line}, nil
	case *Field:
		return &FieldAssign{X: target.X, Name: target.Name, Val: rhs, Line: t.Line}, nil
	case *Call:
		fn, ok := target.Fn.(*Var)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid function signature", t.Line)
		}
		params := make([]string, len(target.Args))
		for i, a := range target.Args {
			v, ok := a.(*Var)
			if !ok {
				return nil, fmt.Errorf("line %d: invalid parameter in definition of %q", t.Line, fn.Name)
			}
			params[i] = v.Name
		}
		return &FuncDef{Name: fn.Name, Params: params, Body: []Node{rhs}, Line: t.Line}, nil
	}
	return nil, fmt.Errorf("line %d: invalid assignment target", t.Line)
}

func (p *parser) parseFunction() (Node, error) {
	t := p.next() // function
	name := p.peek()
	if name.Type != Ident {
		return nil, fmt.Errorf("line %d: expected function name, got %s", name.Line, name.Type)
	}
	p.next()
	if !p.at(LParen) {
		return nil, fmt.Errorf("line %d: expected '(' after function name", p.peek().Line)
	}
	p.next()
	var params []string
	for !p.at(RParen) {
		pt := p.peek()
		if pt.Type != Ident {
			return nil, fmt.Errorf("line %d: expected parameter name, got %s", pt.Line, pt.Type)
		}
		params = append(params, pt.Value)
		p.next()
		if p.at(Comma) {
			p.next()
		} else if !p.at(RParen) {
			return nil, fmt.Errorf("line %d: expected ',' or ')' in parameter list", p.peek().Line)
		}
	}
	p.next() // )
	body, err := p.parseBody("end")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &FuncDef{Name: name.Value, Params: params, Body: body, Line: t.Line}, nil
}

func (p *parser) parseStruct(mutable bool) (Node, error) {
	t := p.next() // struct
	name := p.peek()
	if name.Type != Ident {
		return nil, fmt.Errorf("line %d: expected struct name, got %s", name.Line, name.Type)
	}
	p.next()
	var fields []StructField
	p.skipNewlines()
	for !p.atKeyword("end") {
		ft := p.peek()
		if ft.Type != Ident {
			return nil, fmt.Errorf("line %d: expected field name, got %s", ft.Line, ft.Type)
		}
		p.next()
		f := StructField{Name: ft.Value}
		if op := p.peek(); op.Type == Op && op.Value == "::" {
			p.next()
			tt := p.peek()
			if tt.Type != Ident {
				return nil, fmt.Errorf("line %d: expected type name after '::'", tt.Line)
			}
			f.Type = tt.Value
			p.next()
		}
		fields = append(fields, f)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
	p.next() // end
	return &StructDef{Name: name.Value, Mutable: mutable, Fields: fields, Line: t.Line}, nil
}

func (p *parser) parseIf() (Node, error) {
	t := p.next() // if or elseif
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBody("end", "else", "elseif")
	if err != nil {
		return nil, err
	}
	stmt := &If{Cond: cond, Then: then, Line: t.Line}
	switch {
	case p.atKeyword("elseif"):
		nested, err := p.parseIf() // consumes through the shared end
		if err != nil {
			return nil, err
		}
		stmt.Else = []Node{nested}
		return stmt, nil
	case p.atKeyword("else"):
		p.next()
		els, err := p.parseBody("end")
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseWhile() (Node, error) {
	t := p.next()
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody("end")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body, Line: t.Line}, nil
}

func (p *parser) parseBegin() (Node, error) {
	t := p.next()
	body, err := p.parseBody("end")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &Block{Body: body, Line: t.Line}, nil
}

// parseBody reads statements until one of the stop keywords, which is
// left unconsumed.
func (p *parser) parseBody(stops ...string) ([]Node, error) {
	var body []Node
	p.skipNewlines()
	for {
		if p.at(EOF) {
			return nil, fmt.Errorf("line %d: unexpected end of input, missing 'end'", p.peek().Line)
		}
		for _, s := range stops {
			if p.atKeyword(s) {
				return body, nil
			}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
}

// binaryPrec maps operators to binding power. Zero means not a binary
// operator.
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "<": 3, ">": 3, "<=": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "%": 5,
	"^": 6,
}

func (p *parser) parseExpr(minPrec int) (Node, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Type != Op {
			return lhs, nil
		}
		prec := binaryPrec[t.Value]
		if prec == 0 || prec < minPrec {
			return lhs, nil
		}
		p.next()
		// ^ is right associative, all others left
		nextMin := prec + 1
		if t.Value == "^" {
			nextMin = prec
		}
		rhs, err := p.parseExpr(nextMin)
		if err != nil {
			return nil, err
		}
		lhs = &BinOp{Op: t.Value, L: lhs, R: rhs, Line: t.Line}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	if t.Type == Op && (t.Value == "-" || t.Value == "!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnOp{Op: t.Value, X: x, Line: t.Line}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.Type == LParen:
			p.next()
			var args []Node
			for !p.at(RParen) {
				a, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(Comma) {
					p.next()
				} else if !p.at(RParen) {
					return nil, fmt.Errorf("line %d: expected ',' or ')' in call", p.peek().Line)
				}
			}
			p.next()
			x = &Call{Fn: x, Args: args, Line: t.Line}
		case t.Type == Op && t.Value == ".":
			p.next()
			name := p.peek()
			if name.Type != Ident {
				return nil, fmt.Errorf("line %d: expected field name after '.'", name.Line)
			}
			p.next()
			x = &Field{X: x, Name: name.Value, Line: t.Line}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.Type {
	case Int:
		p.next()
		v, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid integer literal %q", t.Line, t.Value)
		}
		return &IntLit{Val: v, Line: t.Line}, nil
	case Float:
		p.next()
		v, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid float literal %q", t.Line, t.Value)
		}
		return &FloatLit{Val: v, Line: t.Line}, nil
	case Str:
		p.next()
		return &StrLit{Val: t.Value, Line: t.Line}, nil
	case Ident:
		p.next()
		return &Var{Name: t.Value, Line: t.Line}, nil
	case Keyword:
		switch t.Value {
		case "true":
			p.next()
			return &BoolLit{Val: true, Line: t.Line}, nil
		case "false":
			p.next()
			return &BoolLit{Val: false, Line: t.Line}, nil
		case "nothing":
			p.next()
			return &NothingLit{Line: t.Line}, nil
		case "begin":
			return p.parseBegin()
		case "if":
			return p.parseIf()
		}
	case LParen:
		p.next()
		x, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if !p.at(RParen) {
			return nil, fmt.Errorf("line %d: expected ')'", p.peek().Line)
		}
		p.next()
		return x, nil
	}
	return nil, fmt.Errorf("line %d: unexpected %s %q", t.Line, t.Type, t.Value)
}
