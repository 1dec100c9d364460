package operation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidOperation = errors.New("invalid operation")

type OpType int

const (
	OpInsert OpType = iota
	OpDelete
	OpUpdate
	OpMove
	OpReorder
)

var opTypeNames = map[OpType]string{
	OpInsert:  "insert",
	OpDelete:  "delete",
	OpUpdate:  "update",
	OpMove:    "move",
	OpReorder: "reorder",
}

func (t OpType) String() string {
	if name, ok := opTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// TargetKind names the kind of tree element an operation addresses.
type TargetKind string

const (
	KindQuestion TargetKind = "question"
	KindPage     TargetKind = "page"
	KindVariable TargetKind = "variable"
	KindSetting  TargetKind = "setting"
	KindBlock    TargetKind = "block"
)

// Operation is a tagged variant over path-addressed tree edits. Only the
// fields relevant to Type are populated. Operations are immutable once
// created; transformation always works on a Clone.
type Operation struct {
	ID        string
	Type      OpType
	AuthorID  string
	Timestamp time.Time
	Path      Path

	// Insert / Delete
	Position int
	Length   int
	Content  any
	Removed  any
	Kind     TargetKind

	// Update
	Property string
	OldValue any
	NewValue any

	// Move
	FromPath     Path
	ToPath       Path
	FromPosition int
	ToPosition   int

	// Reorder
	Indices    []int
	NewIndices []int
}

func NewInsert(path Path, position int, content any, kind TargetKind, authorID string) (Operation, error) {
	op := Operation{
		ID:        uuid.NewString(),
		Type:      OpInsert,
		AuthorID:  authorID,
		Timestamp: time.Now(),
		Path:      path.Clone(),
		Position:  position,
		Content:   content,
		Kind:      kind,
	}
	return op, op.Validate()
}

func NewDelete(path Path, position, length int, removed any, kind TargetKind, authorID string) (Operation, error) {
	op := Operation{
		ID:        uuid.NewString(),
		Type:      OpDelete,
		AuthorID:  authorID,
		Timestamp: time.Now(),
		Path:      path.Clone(),
		Position:  position,
		Length:    length,
		Removed:   removed,
		Kind:      kind,
	}
	return op, op.Validate()
}

func NewUpdate(path Path, property string, oldValue, newValue any, authorID string) (Operation, error) {
	op := Operation{
		ID:        uuid.NewString(),
		Type:      OpUpdate,
		AuthorID:  authorID,
		Timestamp: time.Now(),
		Path:      path.Clone(),
		Property:  property,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
	return op, op.Validate()
}

func NewMove(fromPath, toPath Path, fromPosition, toPosition int, authorID string) (Operation, error) {
	op := Operation{
		ID:           uuid.NewString(),
		Type:         OpMove,
		AuthorID:     authorID,
		Timestamp:    time.Now(),
		Path:         fromPath.Clone(),
		FromPath:     fromPath.Clone(),
		ToPath:       toPath.Clone(),
		FromPosition: fromPosition,
		ToPosition:   toPosition,
	}
	return op, op.Validate()
}

func NewReorder(path Path, indices, newIndices []int, authorID string) (Operation, error) {
	op := Operation{
		ID:         uuid.NewString(),
		Type:       OpReorder,
		AuthorID:   authorID,
		Timestamp:  time.Now(),
		Path:       path.Clone(),
		Indices:    cloneInts(indices),
		NewIndices: cloneInts(newIndices),
	}
	return op, op.Validate()
}

// Validate rejects malformed operations at the boundary, before any
// transformation sees them.
func (o Operation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOperation)
	}
	switch o.Type {
	case OpInsert:
		return o.validateInsert()
	case OpDelete:
		return o.validateDelete()
	case OpUpdate:
		return o.validateUpdate()
	case OpMove:
		return o.validateMove()
	case OpReorder:
		return o.validateReorder()
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidOperation, int(o.Type))
	}
}

func (o Operation) validateInsert() error {
	if o.Path.IsEmpty() {
		return fmt.Errorf("%w: insert requires a path", ErrInvalidOperation)
	}
	if o.Position < 0 {
		return fmt.Errorf("%w: insert position must be >= 0", ErrInvalidOperation)
	}
	return nil
}

func (o Operation) validateDelete() error {
	if o.Path.IsEmpty() {
		return fmt.Errorf("%w: delete requires a path", ErrInvalidOperation)
	}
	if o.Position < 0 {
		return fmt.Errorf("%w: delete position must be >= 0", ErrInvalidOperation)
	}
	if o.Length < 1 {
		return fmt.Errorf("%w: delete length must be >= 1", ErrInvalidOperation)
	}
	return nil
}

func (o Operation) validateUpdate() error {
	if o.Path.IsEmpty() {
		return fmt.Errorf("%w: update requires a path", ErrInvalidOperation)
	}
	if o.Property == "" {
		return fmt.Errorf("%w: update requires a property", ErrInvalidOperation)
	}
	return nil
}

func (o Operation) validateMove() error {
	if o.FromPath.IsEmpty() || o.ToPath.IsEmpty() {
		return fmt.Errorf("%w: move requires from and to paths", ErrInvalidOperation)
	}
	if o.FromPosition < 0 || o.ToPosition < 0 {
		return fmt.Errorf("%w: move positions must be >= 0", ErrInvalidOperation)
	}
	return nil
}

func (o Operation) validateReorder() error {
	if o.Path.IsEmpty() {
		return fmt.Errorf("%w: reorder requires a path", ErrInvalidOperation)
	}
	if len(o.Indices) != len(o.NewIndices) {
		return fmt.Errorf("%w: reorder index lists must have equal length", ErrInvalidOperation)
	}
	seen := make(map[int]bool, len(o.NewIndices))
	for _, idx := range o.NewIndices {
		if idx < 0 || seen[idx] {
			return fmt.Errorf("%w: reorder destinations must be distinct and >= 0", ErrInvalidOperation)
		}
		seen[idx] = true
	}
	return nil
}

func (o Operation) Clone() Operation {
	clone := o
	clone.Path = o.Path.Clone()
	clone.FromPath = o.FromPath.Clone()
	clone.ToPath = o.ToPath.Clone()
	clone.Indices = cloneInts(o.Indices)
	clone.NewIndices = cloneInts(o.NewIndices)
	return clone
}

// ContentLength is the number of elements an insert contributes, used for
// positional shifts during transformation.
func (o Operation) ContentLength() int {
	if items, ok := o.Content.([]any); ok {
		return len(items)
	}
	return 1
}

// Paths returns every tree path the operation touches. Move operations
// touch both endpoints.
func (o Operation) Paths() []Path {
	if o.Type == OpMove {
		return []Path{o.FromPath, o.ToPath}
	}
	return []Path{o.Path}
}

// Before defines the total precedence order used for tie-breaking:
// timestamp first, then operation id.
func (o Operation) Before(other Operation) bool {
	if !o.Timestamp.Equal(other.Timestamp) {
		return o.Timestamp.Before(other.Timestamp)
	}
	return o.ID < other.ID
}

// Invert produces the operation that undoes o.
func (o Operation) Invert() Operation {
	inv := o.Clone()
	inv.ID = uuid.NewString()
	inv.Timestamp = time.Now()

	switch o.Type {
	case OpInsert:
		inv.Type = OpDelete
		inv.Length = o.ContentLength()
		inv.Removed = o.Content
		inv.Content = nil
	case OpDelete:
		inv.Type = OpInsert
		inv.Content = o.Removed
		inv.Removed = nil
		inv.Length = 0
	case OpUpdate:
		inv.OldValue, inv.NewValue = o.NewValue, o.OldValue
	case OpMove:
		inv.Path = o.ToPath.Clone()
		inv.FromPath, inv.ToPath = o.ToPath.Clone(), o.FromPath.Clone()
		inv.FromPosition, inv.ToPosition = o.ToPosition, o.FromPosition
	case OpReorder:
		inv.Indices = cloneInts(o.NewIndices)
		inv.NewIndices = cloneInts(o.Indices)
	}
	return inv
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	result := make([]int, len(s))
	copy(result, s)
	return result
}
