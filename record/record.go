package record

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Record is the unit of storage. Instances handed out by the store are
// snapshots; mutating them has no effect on stored state.
type Record struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Importance float64        `json:"importance"`
	Source     string         `json:"source,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Version    int            `json:"version"`
	Deleted    bool           `json:"deleted,omitempty"`
}

// Draft carries caller-supplied fields for a record that does not exist yet.
type Draft struct {
	Content    string
	Tags       []string
	Metadata   map[string]any
	Importance float64
	Source     string
	Embedding  []float32
}

// New validates and normalizes a draft into a fully-formed record. The id,
// version and timestamps are assigned by the store on create.
func New(d Draft) (Record, error) {
	if d.Content == "" {
		return Record{}, goerr.Wrap(ErrValidation, "content must not be empty")
	}
	return Record{
		Content:    d.Content,
		Tags:       normalizeTags(d.Tags),
		Metadata:   copyMetadata(d.Metadata),
		Importance: ClampImportance(d.Importance),
		Source:     d.Source,
		Embedding:  append([]float32(nil), d.Embedding...),
	}, nil
}

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

// ClampImportance bounds an importance value to [0, 1]. Clamping happens at
// write time only, stored values are always valid.
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HasTag reports whether the record carries the given tag.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stored state cannot be aliased by callers.
func (r Record) Clone() Record {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.Embedding = append([]float32(nil), r.Embedding...)
	out.Metadata = copyMetadata(r.Metadata)
	return out
}

// Patch is a partial update. Nil pointer and nil slice/map fields are left
// unchanged; non-nil fields replace the stored value wholesale.
type Patch struct {
	Content    *string
	Tags       []string
	Metadata   map[string]any
	Importance *float64
	Source     *string
	Embedding  []float32
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Content == nil && p.Tags == nil && p.Metadata == nil &&
		p.Importance == nil && p.Source == nil && p.Embedding == nil
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
