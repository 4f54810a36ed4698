package report

import (
	"github.com/roach88/telephone/internal/diff"
	"github.com/roach88/telephone/internal/payload"
)

// JSONRow is the machine-readable form of a Row. Every string is text-safe.
type JSONRow struct {
	RunID    string                  `json:"run_id"`
	From     string                  `json:"from"`
	To       string                  `json:"to"`
	FromEdge int64                   `json:"from_edge"`
	ToEdge   int64                   `json:"to_edge"`
	Distance any                     `json:"distance"` // number, or MalformedMarker
	Summary  map[diff.ChangeKind]int `json:"summary,omitempty"`
	Diff     map[string]any          `json:"diff,omitempty"`
	Reason   string                  `json:"reason,omitempty"`
	Payload  string                  `json:"payload,omitempty"`
}

// JSONSkipped is the machine-readable form of Skipped.
type JSONSkipped struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

// JSONReport is the machine-readable form of a Report.
type JSONReport struct {
	Format      string        `json:"format"`
	Runs        int           `json:"runs"`
	MaxDistance float64       `json:"max_distance"`
	Malformed   int           `json:"malformed"`
	Rows        []JSONRow     `json:"rows"`
	Skipped     []JSONSkipped `json:"skipped,omitempty"`
}

// JSON converts the report for encoding. Full detail includes the nested
// diff map; summary detail only the counts per kind.
func (r Report) JSON(detail Detail) JSONReport {
	out := JSONReport{
		Format:      r.Format.String(),
		Runs:        r.Runs(),
		MaxDistance: r.MaxDistance(),
		Malformed:   r.MalformedRows(),
		Rows:        make([]JSONRow, 0, len(r.Rows)),
	}
	for _, row := range r.Rows {
		jr := JSONRow{
			RunID:    TextSafe(row.RunID),
			From:     TextSafe(row.Left),
			To:       TextSafe(row.Right),
			FromEdge: row.LeftEdge,
			ToEdge:   row.RightEdge,
		}
		if row.Malformed {
			jr.Distance = MalformedMarker
			jr.Reason = TextSafe(row.Reason)
			jr.Payload = TextSafe(string(row.Payload))
		} else {
			jr.Distance = row.Diff.Distance
			jr.Summary = row.Diff.Summary()
			if detail == DetailFull {
				jr.Diff = textSafeResult(row.Diff).Tree()
			}
		}
		out.Rows = append(out.Rows, jr)
	}
	for _, s := range r.Skipped {
		out.Skipped = append(out.Skipped, JSONSkipped{RunID: TextSafe(s.RunID), Reason: TextSafe(s.Reason)})
	}
	return out
}

func textSafeResult(res diff.Result) diff.Result {
	changes := make([]diff.Change, len(res.Changes))
	for i, ch := range res.Changes {
		changes[i] = diff.Change{
			Kind: ch.Kind,
			Path: TextSafe(ch.Path),
			Old:  textSafeValue(ch.Old),
			New:  textSafeValue(ch.New),
		}
	}
	return diff.Result{Changes: changes, Distance: res.Distance}
}

func textSafeValue(v payload.Value) payload.Value {
	switch val := v.(type) {
	case payload.String:
		return payload.String(TextSafe(string(val)))
	case payload.Array:
		out := make(payload.Array, len(val))
		for i, elem := range val {
			out[i] = textSafeValue(elem)
		}
		return out
	case payload.Object:
		out := make(payload.Object, len(val))
		for k, elem := range val {
			out[TextSafe(k)] = textSafeValue(elem)
		}
		return out
	default:
		return v
	}
}
