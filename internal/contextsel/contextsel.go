// Package contextsel picks the notes handed to the assistant and renders
// them as a markdown context block. Prompt wording and the model call live
// outside this service.
package contextsel

import (
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

type Mode string

const (
	ModeAll      Mode = "all"
	ModeSelected Mode = "selected"
	ModeNew      Mode = "new"
	ModeRelated  Mode = "related"
)

// Request describes which notes to select and how to render them.
type Request struct {
	Mode        Mode     `json:"mode"`
	SelectedIDs []string `json:"selectedIds,omitempty"`
	// Since bounds ModeNew: only notes updated strictly after it are
	// selected. Nil selects every note.
	Since *time.Time `json:"since,omitempty"`
	// Threshold is required for ModeRelated.
	Threshold *float64 `json:"threshold,omitempty"`
	// GroupByTags applies to ModeAll only.
	GroupByTags bool `json:"groupByTags,omitempty"`
}

// Validate checks the fields each mode depends on.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeAll, ModeNew:
	case ModeSelected:
		if len(r.SelectedIDs) == 0 {
			return fmt.Errorf("%w: selected mode needs selectedIds", apperrors.ErrInvalidInput)
		}
	case ModeRelated:
		if r.Threshold == nil {
			return fmt.Errorf("%w: related mode needs a threshold", apperrors.ErrInvalidThreshold)
		}
		return relationship.ValidateThreshold(*r.Threshold)
	default:
		return fmt.Errorf("%w: unknown context mode %q", apperrors.ErrInvalidInput, r.Mode)
	}
	return nil
}

// RelatedFunc returns the seeds plus their direct neighbours at or above
// threshold.
type RelatedFunc func(seeds []string, threshold float64) ([]string, error)

// Select filters ns according to req, preserving the order of ns. related
// is only called in ModeRelated with at least one seed. An empty selection
// is reported as ErrNoteNotFound.
func Select(ns []notes.Note, req Request, related RelatedFunc) ([]notes.Note, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var keep func(n notes.Note) bool
	switch req.Mode {
	case ModeAll:
		keep = func(notes.Note) bool { return true }
	case ModeSelected:
		keep = inSet(req.SelectedIDs)
	case ModeNew:
		keep = func(n notes.Note) bool { return req.Since == nil || n.UpdatedAt.After(*req.Since) }
	case ModeRelated:
		if len(req.SelectedIDs) == 0 {
			keep = func(notes.Note) bool { return true }
			break
		}
		ids, err := related(req.SelectedIDs, *req.Threshold)
		if err != nil {
			return nil, err
		}
		keep = inSet(ids)
	}
	out := make([]notes.Note, 0, len(ns))
	for _, n := range ns {
		if keep(n) {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no notes match the %s selection", apperrors.ErrNoteNotFound, req.Mode)
	}
	return out, nil
}

func inSet(ids []string) func(notes.Note) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(n notes.Note) bool {
		_, ok := set[n.ID]
		return ok
	}
}

// Format renders ns as markdown. Ungrouped output is one "# title" block per
// note separated by blank lines. Grouped output has one "## Tag: name"
// section per tag in order of first use, listing every note carrying it,
// followed by an "## Untagged Notes" section when needed.
func Format(ns []notes.Note, groupByTags bool) string {
	var b strings.Builder
	if !groupByTags {
		for i, n := range ns {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "# %s\n%s", n.Title, n.Content)
		}
		return b.String()
	}

	var order []notes.Tag
	members := make(map[string][]notes.Note)
	var untagged []notes.Note
	for _, n := range ns {
		if len(n.Tags) == 0 {
			untagged = append(untagged, n)
			continue
		}
		seen := make(map[string]struct{}, len(n.Tags))
		for _, t := range n.Tags {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			if _, known := members[t.ID]; !known {
				order = append(order, t)
			}
			members[t.ID] = append(members[t.ID], n)
		}
	}
	for _, t := range order {
		fmt.Fprintf(&b, "## Tag: %s\n\n", t.Name)
		for _, n := range members[t.ID] {
			writeSection(&b, n)
		}
	}
	if len(untagged) > 0 {
		b.WriteString("## Untagged Notes\n\n")
		for _, n := range untagged {
			writeSection(&b, n)
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, n notes.Note) {
	fmt.Fprintf(b, "### %s\n%s\n\n", n.Title, n.Content)
}
