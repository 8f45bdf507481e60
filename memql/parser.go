package memql

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

// topLevel lists the resolvable record attributes. metadata.<key> resolves
// dynamically (open schema); anything else fails at bind time.
var topLevel = map[string]struct{}{
	"id":         {},
	"content":    {},
	"tags":       {},
	"importance": {},
	"source":     {},
	"created_at": {},
	"updated_at": {},
	"version":    {},
}

// Parse turns a MemQL statement into its AST. Syntax errors carry the byte
// position of the offending token; unresolvable field references fail here
// too, before any storage or index access happens.
func Parse(query string) (Statement, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	var stmt Statement
	switch {
	case p.peek().is(kwSelect):
		stmt, err = p.parseSelect()
	case p.peek().is(kwCreate):
		stmt, err = p.parseCreate()
	case p.peek().is(kwUpdate):
		stmt, err = p.parseUpdate()
	case p.peek().is(kwDelete):
		stmt, err = p.parseDelete()
	default:
		return nil, syntaxErr("expected SELECT, CREATE, UPDATE or DELETE", p.peek().pos, p.peek().text)
	}
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokEOF {
		return nil, syntaxErr("unexpected trailing input", p.peek().pos, p.peek().text)
	}
	return stmt, nil
}

// ParseSelect parses a statement and requires it to be read-only.
func ParseSelect(query string) (*Select, error) {
	stmt, err := Parse(query)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*Select)
	if !ok {
		return nil, goerr.Wrap(record.ErrSyntax, "statement is not read-only", goerr.Value("statement", stmt.String()))
	}
	return sel, nil
}

type parser struct {
	tokens []token
	i      int
}

func (p *parser) peek() token {
	return p.tokens[p.i]
}

func (p *parser) next() token {
	t := p.tokens[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expectKeyword(kw string) error {
	t := p.next()
	if !t.is(kw) {
		return syntaxErr("expected "+kw, t.pos, t.text)
	}
	return nil
}

func (p *parser) parseSelect() (*Select, error) {
	p.next() // SELECT
	sel := &Select{Limit: -1}

	if p.peek().is(kwSimilar) {
		p.next()
		if err := p.expectKeyword(kwTo); err != nil {
			return nil, err
		}
		t := p.next()
		if t.kind != tokString {
			return nil, syntaxErr("SIMILAR TO expects a quoted text", t.pos, t.text)
		}
		sel.Similar = &Similar{Text: t.text}
	}

	if p.peek().is(kwWhere) {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		sel.Where = expr
	}

	if p.peek().is(kwOrder) {
		p.next()
		if err := p.expectKeyword(kwBy); err != nil {
			return nil, err
		}
		t := p.next()
		if t.kind != tokIdent {
			return nil, syntaxErr("ORDER BY expects a field name", t.pos, t.text)
		}
		if err := checkOrderField(t, sel.Similar != nil); err != nil {
			return nil, err
		}
		order := &Order{Field: t.text}
		if p.peek().is(kwDesc) {
			p.next()
			order.Desc = true
		} else if p.peek().is(kwAsc) {
			p.next()
		}
		sel.Order = order
	}

	if p.peek().is(kwLimit) {
		p.next()
		t := p.next()
		if t.kind != tokNumber {
			return nil, syntaxErr("LIMIT expects a number", t.pos, t.text)
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return nil, syntaxErr("LIMIT expects a non-negative integer", t.pos, t.text)
		}
		sel.Limit = n
	}

	return sel, nil
}

func (p *parser) parseCreate() (*Create, error) {
	p.next() // CREATE
	if err := p.expectKeyword(kwMem); err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokLParen {
		return nil, syntaxErr("expected (", t.pos, t.text)
	}

	assigns, err := p.parseAssigns(tokRParen)
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokRParen {
		return nil, syntaxErr("expected )", t.pos, t.text)
	}
	if len(assigns) == 0 {
		return nil, syntaxErr("CREATE MEM requires at least one field", p.peek().pos, p.peek().text)
	}
	return &Create{Fields: assigns}, nil
}

func (p *parser) parseUpdate() (*Update, error) {
	p.next() // UPDATE
	if err := p.expectKeyword(kwSet); err != nil {
		return nil, err
	}

	assigns, err := p.parseAssigns(tokEOF)
	if err != nil {
		return nil, err
	}
	if len(assigns) == 0 {
		return nil, syntaxErr("UPDATE SET requires at least one assignment", p.peek().pos, p.peek().text)
	}

	upd := &Update{Set: assigns}
	if p.peek().is(kwWhere) {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		upd.Where = expr
	}
	return upd, nil
}

func (p *parser) parseDelete() (*Delete, error) {
	p.next() // DELETE
	if p.peek().kind == tokStar {
		p.next()
		return &Delete{All: true}, nil
	}
	if err := p.expectKeyword(kwWhere); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return &Delete{Where: expr}, nil
}

// parseAssigns reads `name=value, name=value, ...` and stops before the
// terminator kind or the WHERE keyword.
func (p *parser) parseAssigns(stop tokenKind) ([]Assign, error) {
	var assigns []Assign
	for {
		t := p.peek()
		if t.kind == stop || t.kind == tokEOF || t.is(kwWhere) {
			return assigns, nil
		}
		if t.kind != tokIdent {
			return nil, syntaxErr("expected field name", t.pos, t.text)
		}
		name := p.next()
		if err := checkAssignField(name); err != nil {
			return nil, err
		}
		if eq := p.next(); eq.kind != tokEq {
			return nil, syntaxErr("expected =", eq.pos, eq.text)
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		lname := strings.ToLower(name.text)
		if strings.HasPrefix(lname, "metadata.") {
			// Preserve the metadata key's casing.
			lname = "metadata." + name.text[len("metadata."):]
		}
		assigns = append(assigns, Assign{Name: lname, Value: val})

		if p.peek().kind == tokComma {
			p.next()
			continue
		}
	}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is(kwOr) {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().is(kwAnd) {
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, syntaxErr("expected )", t.pos, t.text)
		}
		return expr, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (Expr, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, syntaxErr("expected field name", t.pos, t.text)
	}
	field, err := bindField(t)
	if err != nil {
		return nil, err
	}

	opTok := p.next()
	var op opKind
	switch {
	case opTok.kind == tokEq:
		op = OpEq
	case opTok.kind == tokNeq:
		op = OpNeq
	case opTok.kind == tokLt:
		op = OpLt
	case opTok.kind == tokLte:
		op = OpLte
	case opTok.kind == tokGt:
		op = OpGt
	case opTok.kind == tokGte:
		op = OpGte
	case opTok.is(kwContains):
		op = OpContains
	default:
		return nil, syntaxErr("expected comparison operator", opTok.pos, opTok.text)
	}

	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Compare{Field: field, Op: op, Value: val, pos: t.pos}, nil
}

func (p *parser) parseValue() (Value, error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return Value{Kind: ValString, Str: t.text}, nil
	case t.kind == tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Value{}, syntaxErr("invalid number", t.pos, t.text)
		}
		return Value{Kind: ValNumber, Num: n}, nil
	case t.is(kwTrue):
		return Value{Kind: ValBool, Bool: true}, nil
	case t.is(kwFalse):
		return Value{Kind: ValBool, Bool: false}, nil
	default:
		return Value{}, syntaxErr("expected a value", t.pos, t.text)
	}
}

// bindField resolves a field reference against the record schema. Unknown
// names are rejected here rather than silently evaluating to false.
func bindField(t token) (Field, error) {
	name := strings.ToLower(t.text)
	if key, ok := strings.CutPrefix(name, "metadata."); ok {
		if key == "" {
			return Field{}, unknownFieldErr(t)
		}
		// Preserve the caller's key casing, metadata keys are case-sensitive.
		return Field{Name: "metadata", Key: t.text[len("metadata."):]}, nil
	}
	if strings.Contains(name, ".") {
		return Field{}, unknownFieldErr(t)
	}
	if _, ok := topLevel[name]; !ok {
		return Field{}, unknownFieldErr(t)
	}
	return Field{Name: name}, nil
}

func checkOrderField(t token, similar bool) error {
	name := strings.ToLower(t.text)
	if name == "score" {
		if !similar {
			return goerr.Wrap(record.ErrUnknownField, "score is only orderable with SIMILAR TO",
				goerr.Value("pos", t.pos), goerr.Value("field", t.text))
		}
		return nil
	}
	_, err := bindField(t)
	return err
}

// checkAssignField validates CREATE/UPDATE assignment targets.
func checkAssignField(t token) error {
	name := strings.ToLower(t.text)
	switch name {
	case "content", "tags", "importance", "source":
		return nil
	}
	if strings.HasPrefix(name, "metadata.") && len(name) > len("metadata.") {
		return nil
	}
	return unknownFieldErr(t)
}

func unknownFieldErr(t token) error {
	return goerr.Wrap(record.ErrUnknownField, "cannot resolve field",
		goerr.Value("pos", t.pos), goerr.Value("field", t.text))
}
