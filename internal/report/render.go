package report

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Options control table rendering.
type Options struct {
	Detail   Detail
	Markdown bool
	MaxWidth int // diff column width; 0 means 80
}

// Table renders the report with go-pretty. The run id appears on the first
// row of each run, and runs are separated by a rule.
func (r Report) Table(opts Options) string {
	w := table.NewWriter()
	if !opts.Markdown {
		w.SetStyle(table.StyleLight)
	}
	width := opts.MaxWidth
	if width == 0 {
		width = 80
	}

	w.AppendHeader(table.Row{"Run", "From", "To", "Distance", "Diff"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: width},
	})

	prev := ""
	for i, row := range r.Rows {
		run := ""
		if row.RunID != prev {
			if i > 0 && !opts.Markdown {
				w.AppendSeparator()
			}
			run = row.RunID
			prev = row.RunID
		}
		w.AppendRow(table.Row{run, row.Left, row.Right, row.DistanceText(), diffText(row, opts.Detail)})
	}
	if len(r.Rows) == 0 {
		w.AppendRow(table.Row{"", "", "", "", "no consecutive hops to compare"})
	}

	if opts.Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Lines renders one tab-separated line per row, for logs and snapshots.
func (r Report) Lines(detail Detail) string {
	var b strings.Builder
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\n", row.RunID, row.Left, row.Right, row.DistanceText(),
			strings.ReplaceAll(diffText(row, detail), "\n", "; "))
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "skipped\t%s\t%s\n", s.RunID, s.Reason)
	}
	return b.String()
}

// TextSafe returns s unchanged when it is valid UTF-8 and a "base64:"
// prefixed encoding otherwise.
func TextSafe(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return "base64:" + base64.StdEncoding.EncodeToString([]byte(s))
}
