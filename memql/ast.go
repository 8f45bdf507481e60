package memql

import (
	"fmt"
	"strconv"
	"strings"
)

// Statement is a parsed MemQL statement. Only Select statements are
// read-only; the engine routes the mutating kinds through its Exec entry
// point and rejects them on the query path.
type Statement interface {
	ReadOnly() bool
	String() string
}

// Select is `SELECT [SIMILAR TO <text>] [WHERE <cond>]
// [ORDER BY <field> [ASC|DESC]] [LIMIT <n>]`.
type Select struct {
	Similar *Similar
	Where   Expr
	Order   *Order
	Limit   int // -1 when absent
}

type Similar struct {
	Text string
}

type Order struct {
	Field string
	Desc  bool
}

// Create is `CREATE MEM(content="...", tags="a,b", importance=0.8, ...)`.
type Create struct {
	Fields []Assign
}

// Update is `UPDATE SET <assigns> [WHERE <cond>]`.
type Update struct {
	Set   []Assign
	Where Expr
}

// Delete is `DELETE WHERE <cond>` or `DELETE *`.
type Delete struct {
	Where Expr
	All   bool
}

type Assign struct {
	Name  string
	Value Value
}

func (*Select) ReadOnly() bool { return true }
func (*Create) ReadOnly() bool { return false }
func (*Update) ReadOnly() bool { return false }
func (*Delete) ReadOnly() bool { return false }

// Expr is a boolean condition over record fields.
type Expr interface {
	exprString() string
}

type opKind string

const (
	OpEq       opKind = "=="
	OpNeq      opKind = "!="
	OpLt       opKind = "<"
	OpLte      opKind = "<="
	OpGt       opKind = ">"
	OpGte      opKind = ">="
	OpContains opKind = "CONTAINS"
)

// Compare is a single `<field> <op> <value>` predicate.
type Compare struct {
	Field Field
	Op    opKind
	Value Value
	pos   int
}

// Logical joins two sub-expressions with AND or OR.
type Logical struct {
	Op    string // "AND" or "OR"
	Left  Expr
	Right Expr
}

// Field references either a top-level record attribute or a metadata key
// (Name == "metadata" with Key set).
type Field struct {
	Name string
	Key  string
}

func (f Field) String() string {
	if f.Key != "" {
		return f.Name + "." + f.Key
	}
	return f.Name
}

type valueKind int

const (
	ValString valueKind = iota
	ValNumber
	ValBool
)

type Value struct {
	Kind valueKind
	Str  string
	Num  float64
	Bool bool
}

func (v Value) String() string {
	switch v.Kind {
	case ValNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValBool:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Str)
	}
}

func (c *Compare) exprString() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value)
}

func (l *Logical) exprString() string {
	return fmt.Sprintf("(%s %s %s)", l.Left.exprString(), l.Op, l.Right.exprString())
}

// String renders a canonical form of the statement. Parsing the rendered
// form yields a statement with identical execution semantics.
func (s *Select) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT")
	if s.Similar != nil {
		fmt.Fprintf(&sb, " SIMILAR TO %s", strconv.Quote(s.Similar.Text))
	}
	if s.Where != nil {
		fmt.Fprintf(&sb, " WHERE %s", s.Where.exprString())
	}
	if s.Order != nil {
		dir := "ASC"
		if s.Order.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", s.Order.Field, dir)
	}
	if s.Limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", s.Limit)
	}
	return sb.String()
}

func (c *Create) String() string {
	parts := make([]string, len(c.Fields))
	for i, a := range c.Fields {
		parts[i] = fmt.Sprintf("%s=%s", a.Name, a.Value)
	}
	return fmt.Sprintf("CREATE MEM(%s)", strings.Join(parts, ", "))
}

func (u *Update) String() string {
	parts := make([]string, len(u.Set))
	for i, a := range u.Set {
		parts[i] = fmt.Sprintf("%s=%s", a.Name, a.Value)
	}
	out := "UPDATE SET " + strings.Join(parts, ", ")
	if u.Where != nil {
		out += " WHERE " + u.Where.exprString()
	}
	return out
}

func (d *Delete) String() string {
	if d.All {
		return "DELETE *"
	}
	return "DELETE WHERE " + d.Where.exprString()
}
