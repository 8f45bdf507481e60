package memql

import (
	"strconv"
	"testing"
	"time"

	"github.com/4thel00z/memcore/record"
)

func testRecord() record.Record {
	return record.Record{
		ID:         "r1",
		Content:    "gophers love channels",
		Tags:       []string{"go", "concurrency"},
		Importance: 0.7,
		Source:     "cli",
		Metadata: map[string]any{
			"project": "memcore",
			"stars":   42.0,
			"public":  true,
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Version:   3,
	}
}

func TestEval(t *testing.T) {
	rec := testRecord()
	cases := []struct {
		query string
		want  bool
	}{
		{`tags CONTAINS "go"`, true},
		{`tags CONTAINS "rust"`, false},
		{`tags == "go"`, true},
		{`tags != "rust"`, true},
		{`content CONTAINS "channels"`, true},
		{`content == "gophers love channels"`, true},
		{`importance > 0.5`, true},
		{`importance >= 0.7`, true},
		{`importance < 0.7`, false},
		{`version == 3`, true},
		{`id == "r1"`, true},
		{`source != "api"`, true},
		{`metadata.project == "memcore"`, true},
		{`metadata.stars > 40`, true},
		{`metadata.stars <= 41`, false},
		{`metadata.public == true`, true},
		{`metadata.public == false`, false},
		{`metadata.absent == "x"`, false},
		{`created_at < "2026-03-02T00:00:00Z"`, true},
		{`updated_at > "2026-03-02T00:00:00Z"`, true},
		{`created_at == "2026-03-01T12:00:00Z"`, true},
		{`importance > 0.5 AND tags CONTAINS "go"`, true},
		{`importance > 0.9 AND tags CONTAINS "go"`, false},
		{`importance > 0.9 OR tags CONTAINS "go"`, true},
		{`(importance > 0.9 OR source == "cli") AND version >= 3`, true},
		// Type mismatches are false, not errors.
		{`importance == "high"`, false},
		{`content > 5`, false},
		{`metadata.project > 10`, false},
	}
	for _, tc := range cases {
		stmt, err := Parse("SELECT WHERE " + tc.query)
		if err != nil {
			t.Errorf("parse %q: %v", tc.query, err)
			continue
		}
		got := Eval(stmt.(*Select).Where, rec)
		if got != tc.want {
			t.Errorf("Eval(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestEvalTimeUnixSeconds(t *testing.T) {
	rec := testRecord()
	unix := rec.CreatedAt.Unix()

	stmt, err := Parse("SELECT WHERE created_at <= " + strconv.FormatInt(unix, 10))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !Eval(stmt.(*Select).Where, rec) {
		t.Error("unix-seconds comparison failed")
	}
}
