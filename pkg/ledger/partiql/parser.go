package partiql

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError describes a statement that could not be parsed.
type ParseError struct {
	Statement string
	Offset    int
	Message   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}

// Parsed is a parsed statement and the number of positional parameters it
// expects.
type Parsed struct {
	Statement  Statement
	ParamCount int
}

// Parse parses a single statement. Parameters are numbered in the order
// their `?` markers appear.
func Parse(statement string) (*Parsed, error) {
	tokens, err := lex(statement)
	if err != nil {
		return nil, &ParseError{Statement: statement, Message: err.Error()}
	}

	p := &parser{input: statement, tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s after statement", p.peek())
	}
	return &Parsed{Statement: stmt, ParamCount: p.params}, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
	params int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{
		Statement: p.input,
		Offset:    p.peek().pos,
		Message:   fmt.Sprintf(format, args...),
	}
}

func (p *parser) expectKeyword(kw string) error {
	if !p.peek().is(kw) {
		return p.errorf("expected %s, found %s", kw, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.peek().kind != kind {
		return token{}, p.errorf("expected %s, found %s", what, p.peek())
	}
	return p.next(), nil
}

// acceptKeyword consumes kw if it is next.
func (p *parser) acceptKeyword(kw string) bool {
	if p.peek().is(kw) {
		p.next()
		return true
	}
	return false
}

func (p *parser) identifier(what string) (string, error) {
	t := p.peek()
	if t.kind != tokIdent || isKeyword(t.text) {
		return "", p.errorf("expected %s, found %s", what, t)
	}
	p.next()
	return t.text, nil
}

func (p *parser) parseStatement() (Statement, error) {
	t := p.peek()
	switch {
	case t.is("SELECT"):
		return p.parseSelect()
	case t.is("INSERT"):
		return p.parseInsert()
	case t.is("UPDATE"):
		return p.parseUpdate()
	case t.is("FROM"):
		return p.parseNestedInsert()
	case t.is("CREATE"):
		return p.parseCreate()
	default:
		return nil, p.errorf("unsupported statement starting with %s", t)
	}
}

func (p *parser) parseSelect() (*Select, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	sel := &Select{}
	if p.peek().kind == tokStar {
		p.next()
		sel.AllFields = true
	} else {
		for {
			item, err := p.parseSelectItem()
			if err != nil {
				return nil, err
			}
			sel.Items = append(sel.Items, item)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	src, err := p.parseSource()
	if err != nil {
		return nil, err
	}
	sel.Source = src

	if p.acceptKeyword("WHERE") {
		if sel.Where, err = p.parseConditions(); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	first, err := p.identifier("field name")
	if err != nil {
		return SelectItem{}, err
	}

	item := SelectItem{Path: []string{first}}
	for p.peek().kind == tokDot {
		p.next()
		if p.peek().kind == tokStar {
			p.next()
			item.Star = true
			break
		}
		seg, err := p.expect(tokIdent, "field name")
		if err != nil {
			return SelectItem{}, err
		}
		item.Path = append(item.Path, seg.text)
	}

	if p.acceptKeyword("AS") {
		if item.Alias, err = p.identifier("alias"); err != nil {
			return SelectItem{}, err
		}
	}
	return item, nil
}

func (p *parser) parseSource() (Source, error) {
	var src Source

	name, err := p.identifier("table name")
	if err != nil {
		return src, err
	}

	if strings.EqualFold(name, "history") && p.peek().kind == tokLParen {
		p.next()
		src.History = true
		if src.Table, err = p.identifier("table name"); err != nil {
			return src, err
		}
		for p.peek().kind == tokComma {
			p.next()
			arg, err := p.parseOperand()
			if err != nil {
				return src, err
			}
			src.HistoryArgs = append(src.HistoryArgs, arg)
		}
		if len(src.HistoryArgs) > 2 {
			return src, p.errorf("history accepts at most a start and an end time")
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return src, err
		}
	} else {
		src.Table = name
	}

	if src.Alias, err = p.parseAlias(); err != nil {
		return src, err
	}

	if p.acceptKeyword("BY") {
		if src.ByVar, err = p.identifier("id variable"); err != nil {
			return src, err
		}
	}
	return src, nil
}

// parseAlias accepts `AS alias` or a bare alias.
func (p *parser) parseAlias() (string, error) {
	if p.acceptKeyword("AS") {
		return p.identifier("alias")
	}
	t := p.peek()
	if t.kind == tokIdent && !isKeyword(t.text) {
		p.next()
		return t.text, nil
	}
	return "", nil
}

func (p *parser) parsePath() ([]string, error) {
	first, err := p.identifier("field path")
	if err != nil {
		return nil, err
	}
	path := []string{first}
	for p.peek().kind == tokDot {
		p.next()
		seg, err := p.expect(tokIdent, "field name")
		if err != nil {
			return nil, err
		}
		path = append(path, seg.text)
	}
	return path, nil
}

func (p *parser) parseConditions() ([]Condition, error) {
	var conds []Condition
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Path: path, Value: val})

		if !p.acceptKeyword("AND") {
			return conds, nil
		}
	}
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.peek()
	switch {
	case t.kind == tokParam:
		p.next()
		op := Operand{IsParam: true, Param: p.params}
		p.params++
		return op, nil
	case t.kind == tokString:
		p.next()
		return Operand{Literal: t.text}, nil
	case t.kind == tokNumber:
		p.next()
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return Operand{Literal: i}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Operand{}, p.errorf("invalid number %q", t.text)
		}
		return Operand{Literal: f}, nil
	case t.is("TRUE"):
		p.next()
		return Operand{Literal: true}, nil
	case t.is("FALSE"):
		p.next()
		return Operand{Literal: false}, nil
	case t.is("NULL"):
		p.next()
		return Operand{Literal: nil}, nil
	default:
		return Operand{}, p.errorf("expected value or ?, found %s", t)
	}
}

func (p *parser) parseInsert() (*Insert, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	p.acceptKeyword("VALUE")

	val, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &Insert{Table: table, Value: val}, nil
}

func (p *parser) parseUpdate() (*Update, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}

	upd := &Update{}
	var err error
	if upd.Table, err = p.identifier("table name"); err != nil {
		return nil, err
	}
	if upd.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, Assignment{Path: path, Value: val})
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}

	if p.acceptKeyword("WHERE") {
		if upd.Where, err = p.parseConditions(); err != nil {
			return nil, err
		}
	}
	return upd, nil
}

func (p *parser) parseNestedInsert() (*NestedInsert, error) {
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}

	ins := &NestedInsert{}
	var err error
	if ins.Table, err = p.identifier("table name"); err != nil {
		return nil, err
	}
	if ins.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	if p.acceptKeyword("WHERE") {
		if ins.Where, err = p.parseConditions(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	if ins.Target, err = p.parsePath(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUE"); err != nil {
		return nil, err
	}
	if ins.Value, err = p.parseOperand(); err != nil {
		return nil, err
	}
	return ins, nil
}

func (p *parser) parseCreate() (Statement, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}

	switch {
	case p.acceptKeyword("TABLE"):
		table, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		return &CreateTable{Table: table}, nil
	case p.acceptKeyword("INDEX"):
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		table, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		attr, err := p.identifier("attribute name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return &CreateIndex{Table: table, Attribute: attr}, nil
	default:
		return nil, p.errorf("expected TABLE or INDEX, found %s", p.peek())
	}
}
