package memql

import (
	"errors"
	"testing"

	"github.com/4thel00z/memcore/record"
)

func TestParseRoundTrip(t *testing.T) {
	// Parsing the canonical rendering must yield the same rendering again.
	cases := []struct {
		in   string
		want string
	}{
		{`SELECT`, `SELECT`},
		{`select where tags contains "work"`, `SELECT WHERE tags CONTAINS "work"`},
		{`SELECT WHERE importance >= 0.5 AND source == "cli"`,
			`SELECT WHERE (importance >= 0.5 AND source == "cli")`},
		{`SELECT SIMILAR TO "gopher" LIMIT 5`, `SELECT SIMILAR TO "gopher" LIMIT 5`},
		{`SELECT SIMILAR TO "gopher" ORDER BY score DESC LIMIT 2`,
			`SELECT SIMILAR TO "gopher" ORDER BY score DESC LIMIT 2`},
		{`SELECT WHERE (importance > 0.1 OR importance < 0.9) AND tags CONTAINS "x"`,
			`SELECT WHERE ((importance > 0.1 OR importance < 0.9) AND tags CONTAINS "x")`},
		{`SELECT WHERE metadata.Project == "memcore"`,
			`SELECT WHERE metadata.Project == "memcore"`},
		{`SELECT ORDER BY created_at`, `SELECT ORDER BY created_at ASC`},
		{`CREATE MEM(content="note", tags="a,b", importance=0.8)`,
			`CREATE MEM(content="note", tags="a,b", importance=0.8)`},
		{`UPDATE SET importance=1 WHERE id == "r1"`,
			`UPDATE SET importance=1 WHERE id == "r1"`},
		{`DELETE WHERE tags CONTAINS "junk"`, `DELETE WHERE tags CONTAINS "junk"`},
		{`DELETE *`, `DELETE *`},
	}
	for _, tc := range cases {
		stmt, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if got := stmt.String(); got != tc.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tc.in, got, tc.want)
		}

		again, err := Parse(stmt.String())
		if err != nil {
			t.Errorf("re-Parse(%q): %v", stmt.String(), err)
			continue
		}
		if again.String() != stmt.String() {
			t.Errorf("round trip drifted: %q vs %q", again.String(), stmt.String())
		}
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	cases := []string{
		``,
		`FROB`,
		`SELECT WHERE`,
		`SELECT WHERE importance >`,
		`SELECT WHERE importance 0.5`,
		`SELECT SIMILAR "x"`,
		`SELECT SIMILAR TO 42`,
		`SELECT LIMIT -1`,
		`SELECT LIMIT many`,
		`SELECT WHERE (importance > 0.5`,
		`SELECT WHERE content == "unterminated`,
		`CREATE MEM()`,
		`CREATE MEM(content="x"`,
		`UPDATE SET`,
		`DELETE`,
		`SELECT trailing`,
	}
	for _, in := range cases {
		if _, err := Parse(in); !errors.Is(err, record.ErrSyntax) {
			t.Errorf("Parse(%q) = %v, want ErrSyntax", in, err)
		}
	}
}

func TestParseUnknownField(t *testing.T) {
	cases := []string{
		`SELECT WHERE embedding == "x"`,
		`SELECT WHERE nope == 1`,
		`SELECT WHERE metadata. == 1`,
		`SELECT ORDER BY nope`,
		`CREATE MEM(id="forced")`,
		`UPDATE SET version=3`,
	}
	for _, in := range cases {
		if _, err := Parse(in); !errors.Is(err, record.ErrUnknownField) {
			t.Errorf("Parse(%q) = %v, want ErrUnknownField", in, err)
		}
	}
}

func TestOrderByScoreRequiresSimilar(t *testing.T) {
	if _, err := Parse(`SELECT ORDER BY score DESC`); !errors.Is(err, record.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := Parse(`SELECT SIMILAR TO "x" ORDER BY score DESC`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSelectRejectsMutations(t *testing.T) {
	for _, in := range []string{
		`CREATE MEM(content="x")`,
		`UPDATE SET importance=1`,
		`DELETE *`,
	} {
		if _, err := ParseSelect(in); !errors.Is(err, record.ErrSyntax) {
			t.Errorf("ParseSelect(%q) = %v, want ErrSyntax", in, err)
		}
	}

	sel, err := ParseSelect(`SELECT WHERE importance > 0.5`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Limit != -1 {
		t.Errorf("limit = %d, want -1 (absent)", sel.Limit)
	}
}

func TestParseMetadataKeyCasing(t *testing.T) {
	stmt, err := Parse(`SELECT WHERE METADATA.CamelKey == "v"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel := stmt.(*Select)
	cmp := sel.Where.(*Compare)
	if cmp.Field.Name != "metadata" || cmp.Field.Key != "CamelKey" {
		t.Errorf("field = %+v, want metadata.CamelKey with casing preserved", cmp.Field)
	}
}

func TestParseStringEscapes(t *testing.T) {
	stmt, err := Parse(`SELECT WHERE content == "say \"hi\""`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cmp := stmt.(*Select).Where.(*Compare)
	if cmp.Value.Str != `say "hi"` {
		t.Errorf("value = %q", cmp.Value.Str)
	}

	stmt, err = Parse(`SELECT WHERE content == 'single'`)
	if err != nil {
		t.Fatalf("parse single quotes: %v", err)
	}
	if stmt.(*Select).Where.(*Compare).Value.Str != "single" {
		t.Error("single-quoted literal mangled")
	}
}
