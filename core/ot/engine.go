package ot

import (
	"errors"

	"github.com/formweave/formweave/core/operation"
)

var (
	ErrCompositionFailed = errors.New("composition failed")
	ErrIncompatiblePaths = errors.New("incompatible operation paths")
	ErrIncompatibleTypes = errors.New("incompatible operation types")
)

// Result carries a transformed operation together with any conflicts the
// transformation surfaced.
type Result struct {
	Op          operation.Operation
	Transformed bool
	Conflicts   []Conflict
}

// HasManualConflicts reports whether any conflict requires manual resolution.
func (r Result) HasManualConflicts() bool {
	for _, c := range r.Conflicts {
		if c.Resolution == ResolutionManualRequired {
			return true
		}
	}
	return false
}

type Engine interface {
	Transform(a, b operation.Operation) (Result, error)
	TransformList(a, b []operation.Operation) ([]Result, error)
	Invert(op operation.Operation) (operation.Operation, error)
	CanApplyInParallel(a, b operation.Operation) bool
	Compose(a, b operation.Operation) (operation.Operation, error)
}

// DefaultEngine is a stateless, pure transform engine. One instance can be
// shared freely; it holds no document state.
type DefaultEngine struct{}

func NewEngine() *DefaultEngine {
	return &DefaultEngine{}
}

// Transform rewrites a so that it is valid to apply to a document that has
// already had b applied, preserving a's intent.
func (e *DefaultEngine) Transform(a, b operation.Operation) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, err
	}
	if err := b.Validate(); err != nil {
		return Result{}, err
	}

	if e.sameEdit(a, b) {
		return Result{Op: a, Transformed: false}, nil
	}

	if !e.pathsIntersect(a, b) {
		return Result{Op: a, Transformed: false}, nil
	}

	result := e.transformByType(a, b)
	return e.checkStructure(result, a, b), nil
}

// sameEdit detects the self-transform case: the same author at the same
// instant is the same edit already accounted for.
func (e *DefaultEngine) sameEdit(a, b operation.Operation) bool {
	return a.AuthorID == b.AuthorID && a.Timestamp.Equal(b.Timestamp)
}

func (e *DefaultEngine) pathsIntersect(a, b operation.Operation) bool {
	for _, pa := range a.Paths() {
		for _, pb := range b.Paths() {
			if pa.Intersects(pb) {
				return true
			}
		}
	}
	return false
}

func (e *DefaultEngine) transformByType(a, b operation.Operation) Result {
	if a.Type == operation.OpMove || a.Type == operation.OpReorder ||
		b.Type == operation.OpMove || b.Type == operation.OpReorder {
		return e.transformOrdering(a, b)
	}

	switch {
	case a.Type == operation.OpInsert && b.Type == operation.OpInsert:
		return e.transformInsertInsert(a, b)
	case a.Type == operation.OpInsert && b.Type == operation.OpDelete:
		return e.transformInsertDelete(a, b)
	case a.Type == operation.OpDelete && b.Type == operation.OpInsert:
		return e.transformDeleteInsert(a, b)
	case a.Type == operation.OpDelete && b.Type == operation.OpDelete:
		return e.transformDeleteDelete(a, b)
	case a.Type == operation.OpUpdate && b.Type == operation.OpUpdate:
		return e.transformUpdateUpdate(a, b)
	case a.Type == operation.OpUpdate && b.Type == operation.OpDelete:
		return e.transformUpdateDelete(a, b)
	default:
		return Result{Op: a, Transformed: false}
	}
}

// addressableCollections is the set of top-level collections an operation
// path may address.
var addressableCollections = map[string]bool{
	"questions": true,
	"pages":     true,
	"blocks":    true,
	"variables": true,
	"settings":  true,
	"metadata":  true,
	"title":     true,
}

// checkStructure flags transforms whose result addresses something the
// document cannot contain, rather than letting them reach the document:
// a path rooted outside the known collections, or an out-of-range target.
func (e *DefaultEngine) checkStructure(r Result, a, b operation.Operation) Result {
	if r.Op.Position >= 0 && r.Op.Length >= 0 && e.pathsAddressable(r.Op) {
		return r
	}
	r.Conflicts = append(r.Conflicts, Conflict{
		Kind:        ConflictInvalidPath,
		OpA:         a,
		OpB:         b,
		Resolution:  ResolutionManualRequired,
		Description: "operation addresses an invalid target at " + r.Op.Path.String(),
	})
	return r
}

func (e *DefaultEngine) pathsAddressable(op operation.Operation) bool {
	for _, p := range op.Paths() {
		if p.IsEmpty() || !addressableCollections[p.Head()] {
			return false
		}
	}
	return true
}

// TransformList reconciles each operation in a against the full sequence b,
// accumulating every conflict encountered along the way.
func (e *DefaultEngine) TransformList(a, b []operation.Operation) ([]Result, error) {
	results := make([]Result, 0, len(a))
	for _, op := range a {
		result, err := e.transformAgainstAll(op, b)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *DefaultEngine) transformAgainstAll(op operation.Operation, against []operation.Operation) (Result, error) {
	current := Result{Op: op}
	for _, other := range against {
		step, err := e.Transform(current.Op, other)
		if err != nil {
			return Result{}, err
		}
		current.Op = step.Op
		current.Transformed = current.Transformed || step.Transformed
		current.Conflicts = append(current.Conflicts, step.Conflicts...)
	}
	return current, nil
}

func (e *DefaultEngine) Invert(op operation.Operation) (operation.Operation, error) {
	if err := op.Validate(); err != nil {
		return operation.Operation{}, err
	}
	return op.Invert(), nil
}

// CanApplyInParallel reports whether two concurrent operations can be
// applied on both sides without human intervention.
func (e *DefaultEngine) CanApplyInParallel(a, b operation.Operation) bool {
	forward, err := e.Transform(a, b)
	if err != nil {
		return false
	}
	backward, err := e.Transform(b, a)
	if err != nil {
		return false
	}
	return !forward.HasManualConflicts() && !backward.HasManualConflicts()
}
