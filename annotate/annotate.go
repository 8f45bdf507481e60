// Package annotate layers optional LLM features over stored records:
// corpus summaries and tag suggestions. Nothing here is on the write path;
// a store works fully without a provider.
package annotate

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

var ErrNoProvider = goerr.New("no annotation provider configured")

type Summary struct {
	Title     string   `json:"title"`
	Overview  string   `json:"overview"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"tags"`
}

type TagSuggestion struct {
	Tags       []string `json:"tags"`
	Category   string   `json:"category"`
	Confidence float32  `json:"confidence"`
}

type Service struct {
	provider Provider
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// Summarize condenses a set of records into one structured summary.
func (s *Service) Summarize(ctx context.Context, recs []record.Record) (*Summary, error) {
	if s.provider == nil {
		return nil, goerr.Wrap(ErrNoProvider, "summarize")
	}
	if len(recs) == 0 {
		return &Summary{Title: "Empty", Overview: "No records found"}, nil
	}

	var sb strings.Builder
	sb.WriteString("Summarize the following memory records:\n\n")
	for _, rec := range recs {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", rec.ID, rec.Content)
	}

	var summary Summary
	if err := s.provider.GenerateObject(ctx, sb.String(), &summary); err != nil {
		return nil, goerr.Wrap(err, "generate summary")
	}
	return &summary, nil
}

// SuggestTags proposes tags for a single record. The suggestions are not
// applied; the caller decides what to keep.
func (s *Service) SuggestTags(ctx context.Context, rec record.Record) (*TagSuggestion, error) {
	if s.provider == nil {
		return nil, goerr.Wrap(ErrNoProvider, "suggest tags")
	}

	prompt := fmt.Sprintf("Generate tags for this content:\n\n%s", rec.Content)

	var suggestion TagSuggestion
	if err := s.provider.GenerateObject(ctx, prompt, &suggestion); err != nil {
		return nil, goerr.Wrap(err, "generate tags")
	}
	return &suggestion, nil
}
