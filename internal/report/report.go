// Package report holds diff report rows and renders them as terminal or
// Markdown tables, plain lines, or text-safe JSON.
package report

import (
	"fmt"
	"strings"

	"github.com/roach88/telephone/internal/diff"
	"github.com/roach88/telephone/internal/payload"
)

// Row compares two consecutive hops of one run.
//
// Left and Right name the hops as "source -> target". A malformed row has
// no Diff; Reason says why and Payload holds the offending bytes.
type Row struct {
	RunID     string
	Left      string
	Right     string
	LeftEdge  int64
	RightEdge int64

	Malformed bool
	Reason    string
	Payload   []byte

	Diff diff.Result
}

// Distance returns the deep distance, or false for a malformed row.
func (r Row) Distance() (float64, bool) {
	if r.Malformed {
		return 0, false
	}
	return r.Diff.Distance, true
}

// DistanceText renders the distance column.
func (r Row) DistanceText() string {
	if d, ok := r.Distance(); ok {
		return fmt.Sprintf("%.4f", d)
	}
	return MalformedMarker
}

// MalformedMarker stands in for the distance of a pair that could not be
// decoded.
const MalformedMarker = "malformed"

// Skipped is a path the reconstructor refused to analyze.
type Skipped struct {
	RunID  string
	Reason string
}

// Report is the result of one analysis, rows in chain order.
type Report struct {
	Format  payload.Format
	Rows    []Row
	Skipped []Skipped
}

// Runs returns how many distinct runs contributed rows.
func (r Report) Runs() int {
	seen := make(map[string]bool)
	for _, row := range r.Rows {
		seen[row.RunID] = true
	}
	return len(seen)
}

// MaxDistance returns the largest distance among well-formed rows.
func (r Report) MaxDistance() float64 {
	var m float64
	for _, row := range r.Rows {
		if d, ok := row.Distance(); ok && d > m {
			m = d
		}
	}
	return m
}

// MalformedRows counts rows that could not be diffed.
func (r Report) MalformedRows() int {
	n := 0
	for _, row := range r.Rows {
		if row.Malformed {
			n++
		}
	}
	return n
}

// Detail selects how much of each diff is rendered.
type Detail string

const (
	// DetailSummary renders change counts per kind.
	DetailSummary Detail = "summary"

	// DetailFull renders every change.
	DetailFull Detail = "full"
)

// ParseDetail validates a user-supplied detail level.
func ParseDetail(s string) (Detail, error) {
	switch Detail(strings.ToLower(strings.TrimSpace(s))) {
	case DetailSummary:
		return DetailSummary, nil
	case DetailFull:
		return DetailFull, nil
	default:
		return "", fmt.Errorf("unknown detail %q: must be summary or full", s)
	}
}

// diffText renders the diff column for one row.
func diffText(row Row, detail Detail) string {
	if row.Malformed {
		return TextSafe(row.Reason)
	}
	if detail != DetailFull || row.Diff.Identical() {
		return row.Diff.SummaryText()
	}
	lines := make([]string, len(row.Diff.Changes))
	for i, ch := range row.Diff.Changes {
		lines[i] = changeText(ch)
	}
	return strings.Join(lines, "\n")
}

func changeText(ch diff.Change) string {
	switch ch.Kind {
	case diff.DictionaryItemAdded, diff.IterableItemAdded:
		return fmt.Sprintf("+ %s %s", ch.Path, valueText(ch.New))
	case diff.DictionaryItemRemoved, diff.IterableItemRemoved:
		return fmt.Sprintf("- %s %s", ch.Path, valueText(ch.Old))
	case diff.TypeChanges:
		return fmt.Sprintf("~ %s %s(%s) -> %s(%s)", ch.Path,
			payload.Kind(ch.Old), valueText(ch.Old), payload.Kind(ch.New), valueText(ch.New))
	default:
		return fmt.Sprintf("~ %s %s -> %s", ch.Path, valueText(ch.Old), valueText(ch.New))
	}
}

func valueText(v payload.Value) string {
	if v == nil {
		return ""
	}
	b, err := payload.MarshalValue(v)
	if err != nil {
		return "?"
	}
	return TextSafe(string(b))
}
