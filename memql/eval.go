package memql

import (
	"strings"
	"time"

	"github.com/4thel00z/memcore/record"
)

// Eval evaluates a condition against a record. Missing or uncomparable
// values make the containing comparison false, never an error: queries run
// against an open metadata schema and must not throw mid-scan.
func Eval(expr Expr, rec record.Record) bool {
	switch e := expr.(type) {
	case *Logical:
		if e.Op == "AND" {
			return Eval(e.Left, rec) && Eval(e.Right, rec)
		}
		return Eval(e.Left, rec) || Eval(e.Right, rec)
	case *Compare:
		return evalCompare(e, rec)
	default:
		return false
	}
}

func evalCompare(c *Compare, rec record.Record) bool {
	switch c.Field.Name {
	case "tags":
		return evalTags(c, rec)
	case "metadata":
		v, ok := rec.Metadata[c.Field.Key]
		if !ok {
			return false
		}
		return compareAny(v, c.Op, c.Value)
	case "id":
		return compareString(rec.ID, c.Op, c.Value)
	case "content":
		return compareString(rec.Content, c.Op, c.Value)
	case "source":
		return compareString(rec.Source, c.Op, c.Value)
	case "importance":
		return compareNumber(rec.Importance, c.Op, c.Value)
	case "version":
		return compareNumber(float64(rec.Version), c.Op, c.Value)
	case "created_at":
		return compareTime(rec.CreatedAt, c.Op, c.Value)
	case "updated_at":
		return compareTime(rec.UpdatedAt, c.Op, c.Value)
	default:
		return false
	}
}

func evalTags(c *Compare, rec record.Record) bool {
	if c.Value.Kind != ValString {
		return false
	}
	switch c.Op {
	case OpContains, OpEq:
		return rec.HasTag(c.Value.Str)
	case OpNeq:
		return !rec.HasTag(c.Value.Str)
	default:
		return false
	}
}

func compareString(have string, op opKind, want Value) bool {
	if want.Kind != ValString {
		return false
	}
	switch op {
	case OpEq:
		return have == want.Str
	case OpNeq:
		return have != want.Str
	case OpLt:
		return have < want.Str
	case OpLte:
		return have <= want.Str
	case OpGt:
		return have > want.Str
	case OpGte:
		return have >= want.Str
	case OpContains:
		return strings.Contains(have, want.Str)
	default:
		return false
	}
}

func compareNumber(have float64, op opKind, want Value) bool {
	if want.Kind != ValNumber {
		return false
	}
	switch op {
	case OpEq:
		return have == want.Num
	case OpNeq:
		return have != want.Num
	case OpLt:
		return have < want.Num
	case OpLte:
		return have <= want.Num
	case OpGt:
		return have > want.Num
	case OpGte:
		return have >= want.Num
	default:
		return false
	}
}

// compareTime accepts either an RFC 3339 string or a unix-seconds number on
// the right-hand side.
func compareTime(have time.Time, op opKind, want Value) bool {
	var target time.Time
	switch want.Kind {
	case ValString:
		t, err := time.Parse(time.RFC3339, want.Str)
		if err != nil {
			return false
		}
		target = t
	case ValNumber:
		sec := int64(want.Num)
		nsec := int64((want.Num - float64(sec)) * 1e9)
		target = time.Unix(sec, nsec)
	default:
		return false
	}

	switch op {
	case OpEq:
		return have.Equal(target)
	case OpNeq:
		return !have.Equal(target)
	case OpLt:
		return have.Before(target)
	case OpLte:
		return !have.After(target)
	case OpGt:
		return have.After(target)
	case OpGte:
		return !have.Before(target)
	default:
		return false
	}
}

func compareAny(have any, op opKind, want Value) bool {
	switch v := have.(type) {
	case string:
		return compareString(v, op, want)
	case bool:
		if want.Kind != ValBool {
			return false
		}
		switch op {
		case OpEq:
			return v == want.Bool
		case OpNeq:
			return v != want.Bool
		}
		return false
	case float64:
		return compareNumber(v, op, want)
	case float32:
		return compareNumber(float64(v), op, want)
	case int:
		return compareNumber(float64(v), op, want)
	case int64:
		return compareNumber(float64(v), op, want)
	case []any:
		if op != OpContains {
			return false
		}
		for _, item := range v {
			if compareAny(item, OpEq, want) {
				return true
			}
		}
		return false
	case []string:
		if op != OpContains || want.Kind != ValString {
			return false
		}
		for _, item := range v {
			if item == want.Str {
				return true
			}
		}
		return false
	default:
		return false
	}
}
