package history

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/formweave/formweave/core/operation"
	"github.com/formweave/formweave/core/questionnaire"
)

// Diff is the net change between two versions: the operations that rewrite
// the from-snapshot into the to-snapshot, plus a coarse summary. Diffs work
// across branches; only the snapshots matter.
type Diff struct {
	FromVersionID string
	ToVersionID   string
	Operations    []operation.Operation
	Summary       questionnaire.DiffSummary
}

func (d *Diff) Clone() *Diff {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Operations = cloneOperations(d.Operations)
	return &clone
}

// diffCache memoizes computed diffs keyed by the ordered version id pair.
// Versions are immutable, so entries never go stale.
type diffCache struct {
	entries *lru.Cache[string, *Diff]
}

func newDiffCache(size int) (*diffCache, error) {
	entries, err := lru.New[string, *Diff](size)
	if err != nil {
		return nil, err
	}
	return &diffCache{entries: entries}, nil
}

func (c *diffCache) get(fromID, toID string) (*Diff, bool) {
	diff, ok := c.entries.Get(diffKey(fromID, toID))
	if !ok {
		return nil, false
	}
	return diff.Clone(), true
}

func (c *diffCache) add(diff *Diff) {
	c.entries.Add(diffKey(diff.FromVersionID, diff.ToVersionID), diff.Clone())
}

func diffKey(fromID, toID string) string {
	return fromID + "|" + toID
}

func (s *DefaultStore) GenerateDiff(fromVersionID, toVersionID string) (*Diff, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	if cached, ok := s.diffs.get(fromVersionID, toVersionID); ok {
		s.recordDiffHit()
		return cached, nil
	}
	s.recordDiffMiss()

	from, err := s.GetVersion(fromVersionID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetVersion(toVersionID)
	if err != nil {
		return nil, err
	}
	if from.DocumentID != to.DocumentID {
		return nil, fmt.Errorf("%w: versions belong to different documents", ErrUnknownVersion)
	}

	ops, summary := questionnaire.Compare(from.Snapshot, to.Snapshot)
	diff := &Diff{
		FromVersionID: fromVersionID,
		ToVersionID:   toVersionID,
		Operations:    ops,
		Summary:       summary,
	}
	s.diffs.add(diff)
	return diff, nil
}

// commonAncestor walks both parent chains and returns the nearest version
// present in both, or nil when the histories do not meet.
func (s *DefaultStore) commonAncestor(aID, bID string) *Version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for id := aID; id != ""; {
		version, ok := s.byVersion[id]
		if !ok {
			break
		}
		seen[id] = true
		id = version.ParentID
	}

	for id := bID; id != ""; {
		version, ok := s.byVersion[id]
		if !ok {
			return nil
		}
		if seen[id] {
			return version.Clone()
		}
		id = version.ParentID
	}
	return nil
}

// operationsSince collects the operations recorded on the path from
// ancestor (exclusive) down to head (inclusive), in application order.
func (s *DefaultStore) operationsSince(headID, ancestorID string) []operation.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*Version
	for id := headID; id != "" && id != ancestorID; {
		version, ok := s.byVersion[id]
		if !ok {
			break
		}
		chain = append(chain, version)
		id = version.ParentID
	}

	var ops []operation.Operation
	for i := len(chain) - 1; i >= 0; i-- {
		ops = append(ops, cloneOperations(chain[i].Operations)...)
	}
	return ops
}
