package memql

import (
	"context"
	"testing"
	"time"

	"github.com/4thel00z/memcore/embedding"
	"github.com/4thel00z/memcore/index"
	"github.com/4thel00z/memcore/record"
)

type memCatalog struct {
	recs map[string]record.Record
}

func (c *memCatalog) List(_ context.Context) ([]record.Record, error) {
	out := make([]record.Record, 0, len(c.recs))
	for _, rec := range c.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (c *memCatalog) Get(_ context.Context, id string) (record.Record, error) {
	rec, ok := c.recs[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	return rec, nil
}

func execFixture(t *testing.T) *Executor {
	t.Helper()

	gw := embedding.NewLocalGateway(8)
	ix := index.New(8)
	catalog := &memCatalog{recs: make(map[string]record.Record)}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		id         string
		content    string
		tags       []string
		importance float64
	}{
		{"a", "grocery list for the week", []string{"errand"}, 0.2},
		{"b", "design notes on the query planner", []string{"work", "design"}, 0.9},
		{"c", "query planner follow-ups", []string{"work"}, 0.6},
		{"d", "birthday gift ideas", []string{"errand"}, 0.4},
	}
	for i, s := range seed {
		vec, err := gw.Embed(context.Background(), s.content)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		catalog.recs[s.id] = record.Record{
			ID:         s.id,
			Content:    s.content,
			Tags:       s.tags,
			Importance: s.importance,
			Embedding:  vec,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:  base.Add(time.Duration(i) * time.Hour),
			Version:    1,
		}
		if err := ix.Upsert(s.id, vec); err != nil {
			t.Fatalf("index: %v", err)
		}
	}
	return NewExecutor(catalog, ix, gw)
}

func runSelect(t *testing.T, ex *Executor, query string) []Match {
	t.Helper()
	sel, err := ParseSelect(query)
	if err != nil {
		t.Fatalf("parse %q: %v", query, err)
	}
	matches, err := ex.Execute(context.Background(), sel)
	if err != nil {
		t.Fatalf("execute %q: %v", query, err)
	}
	return matches
}

func matchIDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Record.ID
	}
	return ids
}

func TestExecuteDefaultOrderIsCreatedAt(t *testing.T) {
	ex := execFixture(t)
	ids := matchIDs(runSelect(t, ex, `SELECT`))
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestExecuteWhereAndOrder(t *testing.T) {
	ex := execFixture(t)
	ids := matchIDs(runSelect(t, ex,
		`SELECT WHERE tags CONTAINS "work" ORDER BY importance DESC`))
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("ids = %v, want [b c]", ids)
	}
}

func TestExecuteOrderTiesBreakByID(t *testing.T) {
	ex := execFixture(t)
	// All four records share version 1; ties must come back in id order,
	// for both directions.
	ids := matchIDs(runSelect(t, ex, `SELECT ORDER BY version ASC`))
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("asc order = %v, want %v", ids, want)
		}
	}
	ids = matchIDs(runSelect(t, ex, `SELECT ORDER BY version DESC`))
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("desc tie order = %v, want %v", ids, want)
		}
	}
}

func TestExecuteLimit(t *testing.T) {
	ex := execFixture(t)
	matches := runSelect(t, ex, `SELECT ORDER BY importance DESC LIMIT 2`)
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	if matches[0].Record.ID != "b" || matches[1].Record.ID != "c" {
		t.Errorf("ids = %v", matchIDs(matches))
	}

	if got := runSelect(t, ex, `SELECT LIMIT 0`); len(got) != 0 {
		t.Errorf("LIMIT 0 returned %d matches", len(got))
	}
}

func TestExecuteSimilar(t *testing.T) {
	ex := execFixture(t)
	matches := runSelect(t, ex, `SELECT SIMILAR TO "design notes on the query planner" LIMIT 2`)
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	// Identical text embeds to the identical vector, so b is the top hit
	// with score 1.
	if matches[0].Record.ID != "b" {
		t.Errorf("top = %s, want b", matches[0].Record.ID)
	}
	if !matches[0].Scored || matches[0].Score < 0.999 {
		t.Errorf("top score = %v, want ~1", matches[0].Score)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("scores not descending")
	}
}

func TestExecuteSimilarWithWhere(t *testing.T) {
	ex := execFixture(t)
	matches := runSelect(t, ex,
		`SELECT SIMILAR TO "query planner" WHERE tags CONTAINS "work"`)
	for _, m := range matches {
		if !m.Record.HasTag("work") {
			t.Errorf("record %s leaked through the filter", m.Record.ID)
		}
	}
	if len(matches) != 2 {
		t.Errorf("len = %d, want 2", len(matches))
	}
}

func TestExecuteSimilarExplicitOrderOverridesScore(t *testing.T) {
	ex := execFixture(t)
	matches := runSelect(t, ex,
		`SELECT SIMILAR TO "query planner" ORDER BY importance ASC`)
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Record.Importance > matches[i].Record.Importance {
			t.Fatalf("not ordered by importance: %v", matchIDs(matches))
		}
	}
}

func TestExecuteNoMatches(t *testing.T) {
	ex := execFixture(t)
	matches := runSelect(t, ex, `SELECT WHERE tags CONTAINS "nothing"`)
	if len(matches) != 0 {
		t.Errorf("matches = %v, want none", matchIDs(matches))
	}
}

func TestExecuteSimilarWithoutGateway(t *testing.T) {
	catalog := &memCatalog{recs: map[string]record.Record{}}
	ex := NewExecutor(catalog, index.New(0), nil)

	sel, err := ParseSelect(`SELECT SIMILAR TO "x"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ex.Execute(context.Background(), sel); err == nil {
		t.Fatal("expected error without a gateway")
	}
}

func TestCreateDraftConversion(t *testing.T) {
	stmt, err := Parse(`CREATE MEM(content="note", tags="a, b c", importance=0.8, source="cli", metadata.project="memcore")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	draft, err := stmt.(*Create).Draft()
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Content != "note" || draft.Importance != 0.8 || draft.Source != "cli" {
		t.Errorf("draft = %+v", draft)
	}
	if len(draft.Tags) != 3 || draft.Tags[0] != "a" || draft.Tags[2] != "c" {
		t.Errorf("tags = %v, want [a b c]", draft.Tags)
	}
	if draft.Metadata["project"] != "memcore" {
		t.Errorf("metadata = %v", draft.Metadata)
	}
}

func TestCreateDraftTypeError(t *testing.T) {
	stmt, err := Parse(`CREATE MEM(importance="high")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := stmt.(*Create).Draft(); err == nil {
		t.Fatal("expected type error for string importance")
	}
}

func TestUpdatePatchConversion(t *testing.T) {
	stmt, err := Parse(`UPDATE SET content="new", importance=1, metadata.reviewed=true WHERE id == "r1"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	patch, err := stmt.(*Update).Patch()
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patch.Content == nil || *patch.Content != "new" {
		t.Errorf("content = %v", patch.Content)
	}
	if patch.Importance == nil || *patch.Importance != 1 {
		t.Errorf("importance = %v", patch.Importance)
	}
	if patch.Metadata["reviewed"] != true {
		t.Errorf("metadata = %v", patch.Metadata)
	}
	if patch.Tags != nil || patch.Source != nil {
		t.Error("untouched fields must stay nil")
	}
}
