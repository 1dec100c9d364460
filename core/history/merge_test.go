package history

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formweave/formweave/core/operation"
	"github.com/formweave/formweave/core/ot"
	"github.com/formweave/formweave/core/questionnaire"
)

func TestNewMerger_Defaults(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	merger := NewMerger(MergerConfig{Store: store})
	assert.NotNil(t, merger)
}

func TestMerger_MergeBranch_NonConflicting(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	// draft appends a question at the end
	draftSnapshot := testSnapshot("draft work")
	draftSnapshot.Questions = append(draftSnapshot.Questions, &questionnaire.Question{ID: "q-3", Prompt: "Q3"})
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		Branch:     "draft",
		AuthorID:   "user-b",
		Snapshot:   draftSnapshot,
		Operations: []operation.Operation{historyOp("op-draft", 200, 2, "Q3")},
	})
	require.NoError(t, err)

	// main flips a setting concurrently
	mainSnapshot := testSnapshot("main work")
	mainSnapshot.Settings["showProgressBar"] = false
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		AuthorID:   "user-a",
		Snapshot:   mainSnapshot,
		Operations: []operation.Operation{settingsOp("op-main", 201, "showProgressBar", true, false)},
	})
	require.NoError(t, err)

	merged, err := merger.MergeBranch("doc-1", "draft", DefaultBranch, "user-a", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBranch, merged.Branch)
	assert.Equal(t, "Merged draft into main", merged.Message)

	require.Len(t, merged.Snapshot.Questions, 3)
	assert.Equal(t, "Q3", merged.Snapshot.Questions[2].Prompt)
	assert.Equal(t, false, merged.Snapshot.Settings["showProgressBar"])

	head, err := store.GetLatestVersion("doc-1", DefaultBranch)
	require.NoError(t, err)
	assert.Equal(t, merged.ID, head.ID)
}

func TestMerger_MergeBranch_ManualConflictWithoutResolver(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	// draft rewrites the prompt of the question main deletes
	draftSnapshot := testSnapshot("draft work")
	draftSnapshot.Questions[0].Prompt = "Rewritten"
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		Branch:     "draft",
		AuthorID:   "user-b",
		Snapshot:   draftSnapshot,
		Operations: []operation.Operation{promptOp("op-draft", 200, 0, "Rewritten")},
	})
	require.NoError(t, err)

	mainSnapshot := testSnapshot("main work")
	mainSnapshot.Questions = mainSnapshot.Questions[1:]
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		AuthorID:   "user-a",
		Snapshot:   mainSnapshot,
		Operations: []operation.Operation{deleteQuestionOp("op-main", 199, 0)},
	})
	require.NoError(t, err)

	_, err = merger.MergeBranch("doc-1", "draft", DefaultBranch, "user-a", nil)
	assert.ErrorIs(t, err, ErrConflictUnresolved)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, ot.ConflictDeletedReference, conflictErr.Conflicts[0].Kind)
}

func TestMerger_MergeBranch_ResolverSettlesConflict(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	draftSnapshot := testSnapshot("draft work")
	draftSnapshot.Questions[0].Prompt = "Rewritten"
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		Branch:     "draft",
		AuthorID:   "user-b",
		Snapshot:   draftSnapshot,
		Operations: []operation.Operation{promptOp("op-draft", 200, 0, "Rewritten")},
	})
	require.NoError(t, err)

	mainSnapshot := testSnapshot("main work")
	mainSnapshot.Questions = mainSnapshot.Questions[1:]
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		AuthorID:   "user-a",
		Snapshot:   mainSnapshot,
		Operations: []operation.Operation{deleteQuestionOp("op-main", 199, 0)},
	})
	require.NoError(t, err)

	// resolver drops the orphaned update by replacing it with a no-op write
	resolver := func(conflict ot.Conflict) (operation.Operation, bool) {
		resolved := conflict.OpA.Clone()
		resolved.Path = operation.NewPath("settings", "resolvedConflicts")
		resolved.Property = "resolvedConflicts"
		resolved.NewValue = 1
		return resolved, true
	}

	merged, err := merger.MergeBranch("doc-1", "draft", DefaultBranch, "user-a", resolver)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Snapshot.Settings["resolvedConflicts"])
}

func TestMerger_MergeBranch_NothingToMerge(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	_, err = merger.MergeBranch("doc-1", "draft", DefaultBranch, "user-a", nil)
	assert.ErrorIs(t, err, ErrNothingToMerge)
}

func TestMerger_MergeBranch_UnknownBranch(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := merger.MergeBranch("doc-1", "missing", DefaultBranch, "user-a", nil)
	assert.ErrorIs(t, err, ErrUnknownBranch)
}

func TestMerger_CreateMergeRequest_PreviewsConflicts(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	draftSnapshot := testSnapshot("draft work")
	draftSnapshot.Questions[0].Prompt = "Rewritten"
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		Branch:     "draft",
		AuthorID:   "user-b",
		Snapshot:   draftSnapshot,
		Operations: []operation.Operation{promptOp("op-draft", 200, 0, "Rewritten")},
	})
	require.NoError(t, err)

	mainSnapshot := testSnapshot("main work")
	mainSnapshot.Questions = mainSnapshot.Questions[1:]
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		AuthorID:   "user-a",
		Snapshot:   mainSnapshot,
		Operations: []operation.Operation{deleteQuestionOp("op-main", 199, 0)},
	})
	require.NoError(t, err)

	request, err := merger.CreateMergeRequest("doc-1", "draft", DefaultBranch, "user-b", "Draft changes")
	require.NoError(t, err)
	assert.False(t, request.CanAutomate)
	require.NotEmpty(t, request.Conflicts)
	assert.Equal(t, ot.ConflictDeletedReference, request.Conflicts[0].Kind)

	// the preview carries the target-head to source-head diff
	require.NotNil(t, request.Diff)
	assert.Equal(t, 1, request.Diff.Summary.QuestionsAdded)
	assert.NotEmpty(t, request.Diff.Operations)

	// previewing must not have touched either branch
	head, err := store.GetLatestVersion("doc-1", DefaultBranch)
	require.NoError(t, err)
	assert.Equal(t, "main work", head.Snapshot.Title)
}

func TestMerger_CreateMergeRequest_Expiry(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	merger := NewMerger(MergerConfig{Store: store, RequestTTL: time.Hour})

	fork := mustCreateVersion(t, store, "doc-1", "", "base")
	_, err := store.CreateBranch("doc-1", "draft", fork.ID)
	require.NoError(t, err)

	draftSnapshot := testSnapshot("draft work")
	draftSnapshot.Questions = append(draftSnapshot.Questions, &questionnaire.Question{ID: "q-3", Prompt: "Q3"})
	_, err = store.CreateVersion(CreateVersionRequest{
		DocumentID: "doc-1",
		Branch:     "draft",
		AuthorID:   "user-b",
		Snapshot:   draftSnapshot,
		Operations: []operation.Operation{historyOp("op-draft", 200, 2, "Q3")},
	})
	require.NoError(t, err)

	request, err := merger.CreateMergeRequest("doc-1", "draft", DefaultBranch, "user-b", "Draft changes")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, request.ExpiresAt.Sub(request.CreatedAt))
	assert.False(t, request.IsExpired())

	request.ExpiresAt = request.CreatedAt.Add(-time.Minute)
	assert.True(t, request.IsExpired())
}

func settingsOp(id string, ts int64, key string, oldValue, newValue any) operation.Operation {
	return operation.Operation{
		ID:        id,
		Type:      operation.OpUpdate,
		AuthorID:  "user-a",
		Timestamp: time.Unix(ts, 0),
		Path:      operation.NewPath("settings", key),
		Property:  key,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
}

func promptOp(id string, ts int64, index int, prompt string) operation.Operation {
	return operation.Operation{
		ID:        id,
		Type:      operation.OpUpdate,
		AuthorID:  "user-b",
		Timestamp: time.Unix(ts, 0),
		Path:      operation.NewPath("questions", strconv.Itoa(index)),
		Property:  "prompt",
		NewValue:  prompt,
	}
}

func deleteQuestionOp(id string, ts int64, position int) operation.Operation {
	return operation.Operation{
		ID:        id,
		Type:      operation.OpDelete,
		AuthorID:  "user-a",
		Timestamp: time.Unix(ts, 0),
		Path:      operation.NewPath("questions"),
		Position:  position,
		Length:    1,
		Kind:      operation.KindQuestion,
	}
}
