package ot

import "github.com/formweave/formweave/core/operation"

type ConflictKind int

const (
	ConflictConcurrentEdit ConflictKind = iota
	ConflictDeletedReference
	ConflictInvalidPath
)

var conflictKindNames = map[ConflictKind]string{
	ConflictConcurrentEdit:   "concurrent_edit",
	ConflictDeletedReference: "deleted_reference",
	ConflictInvalidPath:      "invalid_path",
}

func (k ConflictKind) String() string {
	if name, ok := conflictKindNames[k]; ok {
		return name
	}
	return "unknown"
}

type Resolution int

const (
	ResolutionAutomatic Resolution = iota
	ResolutionManualRequired
)

var resolutionNames = map[Resolution]string{
	ResolutionAutomatic:      "automatic",
	ResolutionManualRequired: "manual_required",
}

func (r Resolution) String() string {
	if name, ok := resolutionNames[r]; ok {
		return name
	}
	return "unknown"
}

// Conflict records a detected collision between two concurrent operations.
// Conflicts are first-class transform results, not errors.
type Conflict struct {
	Kind        ConflictKind
	OpA         operation.Operation
	OpB         operation.Operation
	Resolution  Resolution
	Description string
}

// TargetDeletedMarker is the sentinel value written by an update whose
// target element was concurrently deleted.
const TargetDeletedMarker = "__target_deleted__"
