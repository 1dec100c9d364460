package history

import (
	"time"

	"github.com/formweave/formweave/core/operation"
	"github.com/formweave/formweave/core/questionnaire"
)

// Version is an immutable point-in-time snapshot of a questionnaire on a
// branch, together with the operations that produced it from its parent.
// Sequence numbers are branch-local and strictly increasing from 1.
type Version struct {
	ID         string
	DocumentID string
	Branch     string
	Sequence   int64
	ParentID   string
	AuthorID   string
	Message    string
	CreatedAt  time.Time
	Snapshot   *questionnaire.Questionnaire
	Operations []operation.Operation
}

func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Snapshot = v.Snapshot.Clone()
	clone.Operations = cloneOperations(v.Operations)
	return &clone
}

// Branch is a named line of development within a document's history. Exactly
// one branch per document is the default at any time. Deleting a branch is a
// soft delete; its versions remain reachable by id.
type Branch struct {
	Name               string
	DocumentID         string
	CreatedFromVersion string
	CreatedAt          time.Time
	IsDefault          bool
	Deleted            bool
}

func (b *Branch) Clone() *Branch {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

func cloneOperations(ops []operation.Operation) []operation.Operation {
	if ops == nil {
		return nil
	}
	result := make([]operation.Operation, len(ops))
	for i, op := range ops {
		result[i] = op.Clone()
	}
	return result
}
