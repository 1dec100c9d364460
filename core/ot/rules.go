package ot

import (
	"strconv"

	"github.com/formweave/formweave/core/operation"
)

func (e *DefaultEngine) transformInsertInsert(a, b operation.Operation) Result {
	if !a.Path.Equal(b.Path) {
		return Result{Op: a}
	}

	out := a.Clone()
	switch {
	case a.Position > b.Position:
		out.Position += b.ContentLength()
		return Result{Op: out, Transformed: true}
	case a.Position < b.Position:
		return Result{Op: a}
	case b.Before(a):
		// tie at the same slot: the later operation yields and lands after
		// the earlier one's content
		out.Position += b.ContentLength()
		return Result{Op: out, Transformed: true}
	default:
		return Result{Op: a}
	}
}

func (e *DefaultEngine) transformInsertDelete(a, b operation.Operation) Result {
	if !a.Path.Equal(b.Path) {
		return Result{Op: a}
	}

	deleteEnd := b.Position + b.Length
	out := a.Clone()
	switch {
	case a.Position >= deleteEnd:
		out.Position -= b.Length
		return Result{Op: out, Transformed: true}
	case a.Position > b.Position:
		out.Position = b.Position
		return Result{Op: out, Transformed: true}
	default:
		return Result{Op: a}
	}
}

func (e *DefaultEngine) transformDeleteInsert(a, b operation.Operation) Result {
	if !a.Path.Equal(b.Path) {
		return Result{Op: a}
	}

	insertLen := b.ContentLength()
	out := a.Clone()
	switch {
	case b.Position <= a.Position:
		out.Position += insertLen
		return Result{Op: out, Transformed: true}
	case b.Position < a.Position+a.Length:
		// insert landed inside the range to delete; absorb it
		out.Length += insertLen
		return Result{Op: out, Transformed: true}
	default:
		return Result{Op: a}
	}
}

func (e *DefaultEngine) transformDeleteDelete(a, b operation.Operation) Result {
	if !a.Path.Equal(b.Path) {
		return Result{Op: a}
	}

	aEnd := a.Position + a.Length
	bEnd := b.Position + b.Length

	if aEnd <= b.Position {
		return Result{Op: a}
	}

	if a.Position >= bEnd {
		out := a.Clone()
		out.Position -= b.Length
		return Result{Op: out, Transformed: true}
	}

	// Overlapping ranges: the earlier delete wins and covers the overlap;
	// the later one degenerates to a no-op over the already-deleted region.
	if a.Before(b) {
		return Result{Op: a}
	}

	out := a.Clone()
	out.Position = b.Position
	out.Length = 0
	out.Removed = nil
	return Result{Op: out, Transformed: true}
}

func (e *DefaultEngine) transformUpdateUpdate(a, b operation.Operation) Result {
	if !a.Path.Equal(b.Path) || a.Property != b.Property {
		return Result{Op: a}
	}

	conflict := Conflict{
		Kind:        ConflictConcurrentEdit,
		OpA:         a,
		OpB:         b,
		Resolution:  ResolutionAutomatic,
		Description: "concurrent update of " + a.Path.String() + "." + a.Property,
	}

	out := a.Clone()
	if a.Before(b) {
		// winner: re-assert its value over the loser's already-applied write
		out.OldValue = b.NewValue
	} else {
		// loser: becomes a no-op write of the winner's value so both
		// application orders converge
		out.OldValue = b.NewValue
		out.NewValue = b.NewValue
	}
	return Result{Op: out, Transformed: true, Conflicts: []Conflict{conflict}}
}

func (e *DefaultEngine) transformUpdateDelete(a, b operation.Operation) Result {
	if !e.deleteCoversUpdateTarget(a, b) {
		return Result{Op: a}
	}

	out := a.Clone()
	out.NewValue = TargetDeletedMarker

	conflict := Conflict{
		Kind:        ConflictDeletedReference,
		OpA:         a,
		OpB:         b,
		Resolution:  ResolutionManualRequired,
		Description: "update targets deleted element at " + a.Path.String(),
	}
	return Result{Op: out, Transformed: true, Conflicts: []Conflict{conflict}}
}

func (e *DefaultEngine) deleteCoversUpdateTarget(update, del operation.Operation) bool {
	if !del.Path.IsAncestorOf(update.Path) {
		return false
	}
	index, ok := childIndex(del.Path, update.Path)
	if !ok {
		return false
	}
	return index >= del.Position && index < del.Position+del.Length
}

// childIndex extracts the collection index segment of child directly under
// parent, when it is numeric.
func childIndex(parent, child operation.Path) (int, bool) {
	segment := child[len(parent)]
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return index, true
}

// transformOrdering handles every pair involving a Move or Reorder. The
// index-remapping algebra for these is underdetermined, so collisions are
// surfaced for manual resolution instead of guessed at.
func (e *DefaultEngine) transformOrdering(a, b operation.Operation) Result {
	if !e.orderingRangesCollide(a, b) {
		return Result{Op: a}
	}

	conflict := Conflict{
		Kind:        ConflictConcurrentEdit,
		OpA:         a,
		OpB:         b,
		Resolution:  ResolutionManualRequired,
		Description: "concurrent " + a.Type.String() + " and " + b.Type.String() + " reorder the same elements",
	}
	return Result{Op: a, Transformed: false, Conflicts: []Conflict{conflict}}
}

func (e *DefaultEngine) orderingRangesCollide(a, b operation.Operation) bool {
	spansA := touchedSpans(a)
	spansB := touchedSpans(b)

	for path, ranges := range spansA {
		for _, ra := range ranges {
			for _, rb := range spansB[path] {
				if ra.overlaps(rb) {
					return true
				}
			}
		}
	}
	return false
}

type span struct {
	start, end int // half-open
}

func (s span) overlaps(other span) bool {
	return s.start < other.end && other.start < s.end
}

func touchedSpans(op operation.Operation) map[string][]span {
	spans := make(map[string][]span)
	switch op.Type {
	case operation.OpInsert:
		spans[op.Path.String()] = []span{{op.Position, op.Position + 1}}
	case operation.OpDelete:
		spans[op.Path.String()] = []span{{op.Position, op.Position + op.Length}}
	case operation.OpUpdate:
		parent, index := updateElement(op)
		if parent != "" {
			spans[parent] = []span{{index, index + 1}}
		}
	case operation.OpMove:
		from := op.FromPath.String()
		to := op.ToPath.String()
		spans[from] = append(spans[from], span{op.FromPosition, op.FromPosition + 1})
		spans[to] = append(spans[to], span{op.ToPosition, op.ToPosition + 1})
	case operation.OpReorder:
		spans[op.Path.String()] = reorderSpans(op)
	}
	return spans
}

func updateElement(op operation.Operation) (string, int) {
	if len(op.Path) < 2 {
		return "", 0
	}
	index, err := strconv.Atoi(op.Path[len(op.Path)-1])
	if err != nil {
		return "", 0
	}
	parent := operation.Path(op.Path[:len(op.Path)-1])
	return parent.String(), index
}

func reorderSpans(op operation.Operation) []span {
	spans := make([]span, 0, len(op.Indices)+len(op.NewIndices))
	for _, idx := range op.Indices {
		spans = append(spans, span{idx, idx + 1})
	}
	for _, idx := range op.NewIndices {
		spans = append(spans, span{idx, idx + 1})
	}
	return spans
}
