// Package diff computes order-insensitive structural differences between
// decoded payloads and a scalar "deep distance" in [0, 1].
//
// Changes are categorized the way deep-diff tools report them
// (values_changed, type_changes, dictionary_item_added, ...), keyed by a
// path such as root['entry'][0]['resource'].
package diff

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/telephone/internal/payload"
)

// ChangeKind categorizes one reported difference.
type ChangeKind string

const (
	ValuesChanged         ChangeKind = "values_changed"
	TypeChanges           ChangeKind = "type_changes"
	DictionaryItemAdded   ChangeKind = "dictionary_item_added"
	DictionaryItemRemoved ChangeKind = "dictionary_item_removed"
	IterableItemAdded     ChangeKind = "iterable_item_added"
	IterableItemRemoved   ChangeKind = "iterable_item_removed"
)

// Kinds lists every change kind in report order.
var Kinds = []ChangeKind{
	ValuesChanged,
	TypeChanges,
	DictionaryItemAdded,
	DictionaryItemRemoved,
	IterableItemAdded,
	IterableItemRemoved,
}

// PairCutoff is the largest distance at which two unmatched sequence items
// are still reported as one modified item instead of a removal plus an
// addition.
const PairCutoff = 0.3

// Change is a single difference between the two documents.
type Change struct {
	Kind ChangeKind    `json:"kind"`
	Path string        `json:"path"`
	Old  payload.Value `json:"old,omitempty"`
	New  payload.Value `json:"new,omitempty"`
}

// Result holds every change and the deep distance.
type Result struct {
	Changes  []Change `json:"changes"`
	Distance float64  `json:"distance"`
}

// Identical reports whether the documents matched ignoring sequence order.
func (r Result) Identical() bool {
	return len(r.Changes) == 0
}

// Compare diffs a against b. Sequences are compared as multisets.
//
// Distance is cost / (size(a) + size(b)) capped at 1, where size counts tree
// nodes, a changed value or type costs 2 and an added or removed item costs
// the size of its subtree. The distance is 0 exactly when nothing changed.
func Compare(a, b payload.Value) Result {
	c := &comparer{}
	cost := c.compare("root", a, b)

	res := Result{Changes: c.changes}
	if res.Changes == nil {
		res.Changes = []Change{}
	}
	if cost > 0 {
		total := payload.Size(a) + payload.Size(b)
		res.Distance = math.Min(1, float64(cost)/float64(total))
	}
	return res
}

type comparer struct {
	changes []Change
}

func (c *comparer) add(kind ChangeKind, path string, before, after payload.Value) {
	c.changes = append(c.changes, Change{Kind: kind, Path: path, Old: before, New: after})
}

func (c *comparer) compare(path string, a, b payload.Value) int {
	if payload.Kind(a) != payload.Kind(b) {
		c.add(TypeChanges, path, a, b)
		return 2
	}

	switch av := a.(type) {
	case payload.Object:
		return c.compareObjects(path, av, b.(payload.Object))
	case payload.Array:
		return c.compareArrays(path, av, b.(payload.Array))
	default:
		if scalarEqual(a, b) {
			return 0
		}
		c.add(ValuesChanged, path, a, b)
		return 2
	}
}

func scalarEqual(a, b payload.Value) bool {
	switch av := a.(type) {
	case payload.Null:
		return true
	case payload.String:
		return norm.NFC.String(string(av)) == norm.NFC.String(string(b.(payload.String)))
	case payload.Number:
		bn := b.(payload.Number)
		ar, aok := av.Rat()
		br, bok := bn.Rat()
		if aok && bok {
			return ar.Cmp(br) == 0
		}
		return av == bn
	case payload.Bool:
		return av == b.(payload.Bool)
	default:
		return false
	}
}

// nfcKeys re-keys obj by the NFC form of each key, the form Hash uses.
// On collision the first key in sorted order wins.
func nfcKeys(obj payload.Object) payload.Object {
	out := make(payload.Object, len(obj))
	for _, k := range obj.SortedKeys() {
		nk := norm.NFC.String(k)
		if _, ok := out[nk]; !ok {
			out[nk] = obj[k]
		}
	}
	return out
}

func (c *comparer) compareObjects(path string, a, b payload.Object) int {
	a, b = nfcKeys(a), nfcKeys(b)
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	cost := 0
	for _, k := range keys {
		child := path + "[" + quoteKey(k) + "]"
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && inB:
			cost += c.compare(child, av, bv)
		case inA:
			c.add(DictionaryItemRemoved, child, av, nil)
			cost += payload.Size(av)
		default:
			c.add(DictionaryItemAdded, child, nil, bv)
			cost += payload.Size(bv)
		}
	}
	return cost
}

// compareArrays matches equal items first, then pairs the closest leftovers
// below PairCutoff. Everything else is reported as removed or added.
func (c *comparer) compareArrays(path string, a, b payload.Array) int {
	bByHash := map[string][]int{}
	for j, elem := range b {
		h := payload.Hash(elem)
		bByHash[h] = append(bByHash[h], j)
	}

	var leftA []int
	matchedB := make([]bool, len(b))
	for i, elem := range a {
		h := payload.Hash(elem)
		if js := bByHash[h]; len(js) > 0 {
			matchedB[js[0]] = true
			bByHash[h] = js[1:]
			continue
		}
		leftA = append(leftA, i)
	}
	var leftB []int
	for j, ok := range matchedB {
		if !ok {
			leftB = append(leftB, j)
		}
	}

	type candidate struct {
		i, j     int
		distance float64
	}
	var candidates []candidate
	for _, i := range leftA {
		for _, j := range leftB {
			if payload.Kind(a[i]) != payload.Kind(b[j]) {
				continue
			}
			trial := &comparer{}
			cost := trial.compare("", a[i], b[j])
			d := float64(cost) / float64(payload.Size(a[i])+payload.Size(b[j]))
			if d < PairCutoff {
				candidates = append(candidates, candidate{i: i, j: j, distance: d})
			}
		}
	}
	slices.SortStableFunc(candidates, func(x, y candidate) int {
		switch {
		case x.distance < y.distance:
			return -1
		case x.distance > y.distance:
			return 1
		case x.i != y.i:
			return x.i - y.i
		}
		return x.j - y.j
	})

	pairedA := map[int]int{}
	pairedB := map[int]bool{}
	for _, cand := range candidates {
		if _, ok := pairedA[cand.i]; ok || pairedB[cand.j] {
			continue
		}
		pairedA[cand.i] = cand.j
		pairedB[cand.j] = true
	}

	cost := 0
	for _, i := range leftA {
		if j, ok := pairedA[i]; ok {
			cost += c.compare(fmt.Sprintf("%s[%d]", path, j), a[i], b[j])
			continue
		}
		c.add(IterableItemRemoved, fmt.Sprintf("%s[%d]", path, i), a[i], nil)
		cost += payload.Size(a[i])
	}
	for _, j := range leftB {
		if pairedB[j] {
			continue
		}
		c.add(IterableItemAdded, fmt.Sprintf("%s[%d]", path, j), nil, b[j])
		cost += payload.Size(b[j])
	}
	return cost
}

func quoteKey(k string) string {
	return "'" + strings.ReplaceAll(k, "'", `\'`) + "'"
}

// Summary counts changes per kind. Kinds without changes are omitted.
func (r Result) Summary() map[ChangeKind]int {
	out := map[ChangeKind]int{}
	for _, ch := range r.Changes {
		out[ch.Kind]++
	}
	return out
}

// SummaryText renders Summary in Kinds order, e.g. "values_changed=2".
func (r Result) SummaryText() string {
	if r.Identical() {
		return "identical"
	}
	counts := r.Summary()
	parts := make([]string, 0, len(counts))
	for _, k := range Kinds {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return strings.Join(parts, " ")
}

// Tree renders the changes as a nested diff map keyed by kind then path.
// Added and removed dictionary keys are listed as paths; everything else
// carries its values.
func (r Result) Tree() map[string]any {
	tree := map[string]any{}
	for _, ch := range r.Changes {
		kind := string(ch.Kind)
		switch ch.Kind {
		case DictionaryItemAdded, DictionaryItemRemoved:
			paths, _ := tree[kind].([]string)
			tree[kind] = append(paths, ch.Path)
		case IterableItemAdded:
			entry(tree, kind)[ch.Path] = ch.New
		case IterableItemRemoved:
			entry(tree, kind)[ch.Path] = ch.Old
		case ValuesChanged:
			entry(tree, kind)[ch.Path] = map[string]any{"old_value": ch.Old, "new_value": ch.New}
		case TypeChanges:
			entry(tree, kind)[ch.Path] = map[string]any{
				"old_type":  payload.Kind(ch.Old),
				"new_type":  payload.Kind(ch.New),
				"old_value": ch.Old,
				"new_value": ch.New,
			}
		}
	}
	return tree
}

func entry(tree map[string]any, kind string) map[string]any {
	m, ok := tree[kind].(map[string]any)
	if !ok {
		m = map[string]any{}
		tree[kind] = m
	}
	return m
}
