package history

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/formweave/formweave/core/operation"
	"github.com/formweave/formweave/core/ot"
)

var (
	ErrConflictUnresolved = errors.New("merge has unresolved conflicts")
	ErrNothingToMerge     = errors.New("nothing to merge")
)

// ConflictError reports the manual conflicts that blocked a merge. It
// unwraps to ErrConflictUnresolved so callers can match with errors.Is and
// still reach the conflict list with errors.As.
type ConflictError struct {
	Conflicts []ot.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge blocked by %d unresolved conflict(s)", len(e.Conflicts))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflictUnresolved
}

// ConflictResolver decides a manual conflict during a merge. It returns the
// operation to apply in place of the conflicted one, or ok=false to leave
// the conflict unresolved and abort the merge.
type ConflictResolver func(conflict ot.Conflict) (operation.Operation, bool)

// MergeRequest is an advisory preview of a branch merge: the diff from the
// target head to the source head plus the conflicts the merge would surface,
// computed without touching either branch.
type MergeRequest struct {
	ID          string
	DocumentID  string
	FromBranch  string
	ToBranch    string
	AuthorID    string
	Title       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Diff        *Diff
	Conflicts   []ot.Conflict
	CanAutomate bool
}

// IsExpired reports whether the preview has gone stale and should be
// recomputed before acting on it.
func (r *MergeRequest) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

const defaultRequestTTL = 24 * time.Hour

// MergerConfig wires a Merger's collaborators. RequestTTL bounds how long a
// merge-request preview stays valid; zero means the 24h default.
type MergerConfig struct {
	Store      *DefaultStore
	Engine     ot.Engine
	Logger     *slog.Logger
	RequestTTL time.Duration
}

// Merger merges one branch into another by transforming the source branch's
// operations against the target's and replaying them onto the target head.
type Merger struct {
	store      *DefaultStore
	engine     ot.Engine
	logger     *slog.Logger
	requestTTL time.Duration
}

func NewMerger(cfg MergerConfig) *Merger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := cfg.Engine
	if engine == nil {
		engine = ot.NewEngine()
	}
	ttl := cfg.RequestTTL
	if ttl <= 0 {
		ttl = defaultRequestTTL
	}
	return &Merger{
		store:      cfg.Store,
		engine:     engine,
		logger:     logger,
		requestTTL: ttl,
	}
}

// CreateMergeRequest previews a merge without performing it.
func (m *Merger) CreateMergeRequest(documentID, fromBranch, toBranch, authorID, title string) (*MergeRequest, error) {
	plan, err := m.plan(documentID, fromBranch, toBranch)
	if err != nil {
		return nil, err
	}

	var conflicts []ot.Conflict
	for _, result := range plan.results {
		conflicts = append(conflicts, result.Conflicts...)
	}

	diff, err := m.store.GenerateDiff(plan.targetHead.ID, plan.sourceHead.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &MergeRequest{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		FromBranch:  fromBranch,
		ToBranch:    toBranch,
		AuthorID:    authorID,
		Title:       title,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.requestTTL),
		Diff:        diff,
		Conflicts:   conflicts,
		CanAutomate: !hasManualConflicts(plan.results),
	}, nil
}

// MergeBranch merges fromBranch into toBranch and records the result as a
// new version on toBranch. Manual conflicts abort the merge unless the
// resolver settles every one of them.
func (m *Merger) MergeBranch(documentID, fromBranch, toBranch, authorID string, resolver ConflictResolver) (*Version, error) {
	plan, err := m.plan(documentID, fromBranch, toBranch)
	if err != nil {
		return nil, err
	}

	ops, err := m.resolveResults(plan.results, resolver)
	if err != nil {
		return nil, err
	}

	merged := plan.targetHead.Snapshot.Clone()
	applied := make([]operation.Operation, 0, len(ops))
	for _, op := range ops {
		if err := merged.Apply(op); err != nil {
			// a transformed op can still miss a target the other branch
			// removed; skip it rather than abort the whole merge
			m.logger.Warn("merge skipped inapplicable operation",
				"document", documentID,
				"operation", op.ID,
				"type", op.Type.String(),
				"error", err,
			)
			continue
		}
		applied = append(applied, op)
	}

	return m.store.CreateVersion(CreateVersionRequest{
		DocumentID: documentID,
		Branch:     toBranch,
		AuthorID:   authorID,
		Message:    fmt.Sprintf("Merged %s into %s", fromBranch, toBranch),
		Snapshot:   merged,
		Operations: applied,
	})
}

type mergePlan struct {
	sourceHead *Version
	targetHead *Version
	results    []ot.Result
}

func (m *Merger) plan(documentID, fromBranch, toBranch string) (*mergePlan, error) {
	sourceHead, err := m.store.GetLatestVersion(documentID, fromBranch)
	if err != nil {
		return nil, err
	}
	targetHead, err := m.store.GetLatestVersion(documentID, toBranch)
	if err != nil {
		return nil, err
	}
	if sourceHead.ID == targetHead.ID {
		return nil, fmt.Errorf("%w: %s and %s share a head", ErrNothingToMerge, fromBranch, toBranch)
	}

	var ancestorID string
	if ancestor := m.store.commonAncestor(sourceHead.ID, targetHead.ID); ancestor != nil {
		ancestorID = ancestor.ID
	}

	sourceOps := m.store.operationsSince(sourceHead.ID, ancestorID)
	targetOps := m.store.operationsSince(targetHead.ID, ancestorID)

	results, err := m.engine.TransformList(sourceOps, targetOps)
	if err != nil {
		return nil, err
	}

	return &mergePlan{sourceHead: sourceHead, targetHead: targetHead, results: results}, nil
}

func (m *Merger) resolveResults(results []ot.Result, resolver ConflictResolver) ([]operation.Operation, error) {
	ops := make([]operation.Operation, 0, len(results))
	var unresolved []ot.Conflict

	for _, result := range results {
		op := result.Op
		for _, conflict := range result.Conflicts {
			if conflict.Resolution != ot.ResolutionManualRequired {
				continue
			}
			if resolver == nil {
				unresolved = append(unresolved, conflict)
				continue
			}
			resolved, ok := resolver(conflict)
			if !ok {
				unresolved = append(unresolved, conflict)
				continue
			}
			op = resolved
		}
		ops = append(ops, op)
	}

	if len(unresolved) > 0 {
		return nil, &ConflictError{Conflicts: unresolved}
	}
	return ops, nil
}

func hasManualConflicts(results []ot.Result) bool {
	for _, result := range results {
		if result.HasManualConflicts() {
			return true
		}
	}
	return false
}
