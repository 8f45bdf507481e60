package record

import "time"

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// HistoryEntry is an immutable snapshot appended on every mutating operation.
// For updates the state is the record as it was immediately before the
// update; for creates it is the initial state; for deletes it is the final
// state (a tombstone entry, history itself is never purged).
type HistoryEntry struct {
	RecordID string    `json:"record_id"`
	Version  int       `json:"version"`
	Op       Op        `json:"op"`
	At       time.Time `json:"at"`
	State    Record    `json:"state"`
}
