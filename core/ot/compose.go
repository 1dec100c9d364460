package ot

import "github.com/formweave/formweave/core/operation"

// Compose collapses two sequential operations by the same author into one,
// for operation-log compaction. Only adjacent same-collection inserts and
// contiguous deletes compose; everything else fails.
func (e *DefaultEngine) Compose(a, b operation.Operation) (operation.Operation, error) {
	if err := a.Validate(); err != nil {
		return operation.Operation{}, err
	}
	if err := b.Validate(); err != nil {
		return operation.Operation{}, err
	}
	if !a.Path.Equal(b.Path) {
		return operation.Operation{}, ErrIncompatiblePaths
	}
	if a.Type != b.Type {
		return operation.Operation{}, ErrIncompatibleTypes
	}

	switch a.Type {
	case operation.OpInsert:
		return e.composeInserts(a, b)
	case operation.OpDelete:
		return e.composeDeletes(a, b)
	default:
		return operation.Operation{}, ErrCompositionFailed
	}
}

func (e *DefaultEngine) composeInserts(a, b operation.Operation) (operation.Operation, error) {
	if b.Position != a.Position+a.ContentLength() {
		return operation.Operation{}, ErrCompositionFailed
	}

	out := a.Clone()
	out.Content = appendContent(a.Content, b.Content)
	return out, nil
}

func (e *DefaultEngine) composeDeletes(a, b operation.Operation) (operation.Operation, error) {
	if b.Position != a.Position {
		return operation.Operation{}, ErrCompositionFailed
	}

	out := a.Clone()
	out.Length = a.Length + b.Length
	out.Removed = appendContent(a.Removed, b.Removed)
	return out, nil
}

func appendContent(a, b any) []any {
	result := make([]any, 0, 2)
	result = appendItems(result, a)
	return appendItems(result, b)
}

func appendItems(dst []any, v any) []any {
	if v == nil {
		return dst
	}
	if items, ok := v.([]any); ok {
		return append(dst, items...)
	}
	return append(dst, v)
}
