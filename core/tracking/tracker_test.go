package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formweave/formweave/core/operation"
)

func TestNewTracker_Defaults(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})
	assert.NotNil(t, tracker)
}

func TestTracker_RecordChange_SettingsUpdateIsMinor(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", settingsUpdateOp("showProgressBar"))
	assert.Equal(t, CategorySettings, record.Category)
	assert.Equal(t, ImpactMinor, record.Impact)
}

func TestTracker_RecordChange_QuestionDeleteIsBreaking(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionDeleteOp())
	assert.Equal(t, CategoryStructure, record.Category)
	assert.Equal(t, ImpactBreaking, record.Impact)
}

func TestTracker_RecordChange_QuestionInsertIsMajorStructure(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	assert.Equal(t, CategoryStructure, record.Category)
	assert.Equal(t, ImpactMajor, record.Impact)
}

func TestTracker_RecordChange_PromptUpdateIsMajorContent(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	op := operation.Operation{
		ID:        "op-1",
		Type:      operation.OpUpdate,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("questions", "0"),
		Property:  "prompt",
		NewValue:  "New prompt",
	}
	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", op)
	assert.Equal(t, CategoryContent, record.Category)
	assert.Equal(t, ImpactMajor, record.Impact)
}

func TestTracker_RecordChange_FlowLogicUpdateIsMajor(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	op := operation.Operation{
		ID:        "op-1",
		Type:      operation.OpUpdate,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("pages", "0"),
		Property:  "skipLogic",
		NewValue:  "q2 > 3",
	}
	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", op)
	assert.Equal(t, CategoryContent, record.Category)
	assert.Equal(t, ImpactMajor, record.Impact)
}

func TestTracker_RecordChange_VariableChangeIsMajorSettings(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	op := operation.Operation{
		ID:        "op-1",
		Type:      operation.OpUpdate,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("variables", "0"),
		Property:  "value",
		NewValue:  42,
	}
	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", op)
	assert.Equal(t, CategorySettings, record.Category)
	assert.Equal(t, ImpactMajor, record.Impact)
}

func TestTracker_RecordChange_VariableInsertIsSettings(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	op := operation.Operation{
		ID:        "op-1",
		Type:      operation.OpInsert,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("variables"),
		Position:  0,
		Content:   map[string]any{"id": "v-9", "name": "threshold"},
		Kind:      operation.KindVariable,
	}
	record := tracker.RecordChange("doc-1", "sess-1", "user-a", "", op)
	assert.Equal(t, CategorySettings, record.Category)
	assert.Equal(t, ImpactMajor, record.Impact)
}

func TestTracker_RecordChange_CarriesSessionAndVersion(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	record := tracker.RecordChange("doc-1", "sess-7", "user-a", "ver-42", questionInsertOp())
	assert.Equal(t, "sess-7", record.SessionID)
	assert.Equal(t, "ver-42", record.VersionID)

	stored := tracker.GetChanges("doc-1", ChangeFilter{})
	require.Len(t, stored, 1)
	assert.Equal(t, "sess-7", stored[0].SessionID)
	assert.Equal(t, "ver-42", stored[0].VersionID)
}

func TestTracker_RecordChange_MirrorsActivityFeed(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())

	activities := tracker.GetActivities("doc-1", ActivityFilter{})
	require.Len(t, activities, 1)
	assert.Equal(t, ActivityEdit, activities[0].Type)
	assert.Equal(t, "user-a", activities[0].UserID)
}

func TestTracker_GetChanges_NewestFirst(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	tracker.RecordChange("doc-1", "sess-1", "user-b", "", questionDeleteOp())

	changes := tracker.GetChanges("doc-1", ChangeFilter{})
	require.Len(t, changes, 2)
	assert.Equal(t, "user-b", changes[0].UserID)
	assert.Equal(t, "user-a", changes[1].UserID)
}

func TestTracker_GetChanges_Filters(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	tracker.RecordChange("doc-1", "sess-1", "user-b", "", settingsUpdateOp("title"))
	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionDeleteOp())

	byUser := tracker.GetChanges("doc-1", ChangeFilter{UserID: "user-a"})
	assert.Len(t, byUser, 2)

	byCategory := tracker.GetChanges("doc-1", ChangeFilter{Category: CategorySettings})
	require.Len(t, byCategory, 1)
	assert.Equal(t, "user-b", byCategory[0].UserID)

	byImpact := tracker.GetChanges("doc-1", ChangeFilter{Impact: ImpactBreaking})
	assert.Len(t, byImpact, 1)

	limited := tracker.GetChanges("doc-1", ChangeFilter{Limit: 1, Offset: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "user-b", limited[0].UserID)
}

func TestTracker_BoundedChangeLog(t *testing.T) {
	tracker := NewTracker(TrackerConfig{MaxChanges: 3})

	for i := 0; i < 5; i++ {
		tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	}

	changes := tracker.GetChanges("doc-1", ChangeFilter{})
	assert.Len(t, changes, 3)
}

func TestTracker_BoundedActivityFeed(t *testing.T) {
	tracker := NewTracker(TrackerConfig{MaxActivities: 2})

	tracker.RecordComment("doc-1", "user-a", "first")
	tracker.RecordComment("doc-1", "user-a", "second")
	tracker.RecordComment("doc-1", "user-a", "third")

	activities := tracker.GetActivities("doc-1", ActivityFilter{})
	require.Len(t, activities, 2)
	assert.Equal(t, "third", activities[0].Preview)
}

func TestTracker_ActivityRecorders(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordComment("doc-1", "user-a", "Looks good to me")
	tracker.RecordVersion("doc-1", "user-a", "Initial version")
	tracker.RecordMerge("doc-1", "user-a", "draft", "main")
	tracker.RecordSessionJoin("doc-1", "user-b")
	tracker.RecordSessionLeave("doc-1", "user-b")

	activities := tracker.GetActivities("doc-1", ActivityFilter{})
	require.Len(t, activities, 5)
	assert.Equal(t, ActivitySessionLeave, activities[0].Type)

	merges := tracker.GetActivities("doc-1", ActivityFilter{Type: ActivityMerge})
	require.Len(t, merges, 1)
	assert.Equal(t, "merged draft into main", merges[0].Summary)

	byUser := tracker.GetActivities("doc-1", ActivityFilter{UserID: "user-b"})
	assert.Len(t, byUser, 2)
}

func TestTracker_GetActivities_TimeRange(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordComment("doc-1", "user-a", "hello")
	tracker.RecordSessionJoin("doc-1", "user-b")

	past := time.Now().Add(-time.Hour)
	assert.Empty(t, tracker.GetActivities("doc-1", ActivityFilter{Until: past}))
	assert.Empty(t, tracker.GetActivities("doc-1", ActivityFilter{Since: time.Now().Add(time.Hour)}))

	window := tracker.GetActivities("doc-1", ActivityFilter{Since: past, Until: time.Now().Add(time.Hour)})
	assert.Len(t, window, 2)
}

func TestTracker_CommentPreviewTruncated(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	item := tracker.RecordComment("doc-1", "user-a", string(long))
	assert.Len(t, item.Preview, previewLength+3)
}

func TestTracker_GetChangeStatistics(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionDeleteOp())
	tracker.RecordChange("doc-1", "sess-1", "user-b", "", settingsUpdateOp("title"))

	stats := tracker.GetChangeStatistics("doc-1", time.Time{}, time.Time{})
	assert.Equal(t, 3, stats.TotalChanges)
	assert.Equal(t, 2, stats.ByCategory[CategoryStructure])
	assert.Equal(t, 1, stats.ByCategory[CategorySettings])
	assert.Equal(t, 1, stats.ByImpact[ImpactBreaking])
	assert.Equal(t, 2, stats.ByUser["user-a"])

	require.Len(t, stats.MostActiveUsers, 2)
	assert.Equal(t, "user-a", stats.MostActiveUsers[0].UserID)
	assert.Equal(t, 2, stats.MostActiveUsers[0].Changes)

	today := time.Now().Format("2006-01-02")
	assert.Equal(t, 3, stats.ByDay[today])

	// a period that ends before any change was recorded matches nothing
	empty := tracker.GetChangeStatistics("doc-1", time.Time{}, time.Now().Add(-time.Hour))
	assert.Equal(t, 0, empty.TotalChanges)
}

func TestTracker_GenerateAuditLog(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "ver-1", questionDeleteOp())
	tracker.RecordComment("doc-1", "user-b", "why was this removed?")

	since := time.Now().Add(-time.Hour)
	until := time.Now().Add(time.Hour)
	log := tracker.GenerateAuditLog("doc-1", since, until)

	assert.Equal(t, "doc-1", log.DocumentID)
	assert.Equal(t, since, log.PeriodStart)
	assert.Equal(t, until, log.PeriodEnd)
	assert.False(t, log.GeneratedAt.IsZero())

	require.Len(t, log.Changes, 1)
	assert.Equal(t, CategoryStructure, log.Changes[0].Category)
	assert.Equal(t, ImpactBreaking, log.Changes[0].Impact)
	assert.Equal(t, "ver-1", log.Changes[0].VersionID)

	// change mirroring plus the comment means two activity entries
	assert.Len(t, log.Activities, 2)
	assert.Equal(t, []string{"user-a", "user-b"}, log.Participants)
}

func TestTracker_GenerateAuditLog_PeriodBounds(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())

	log := tracker.GenerateAuditLog("doc-1", time.Time{}, time.Now().Add(-time.Hour))
	assert.Empty(t, log.Changes)
	assert.Empty(t, log.Activities)
	assert.Empty(t, log.Participants)
}

func TestTracker_DocumentsAreIsolated(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})

	tracker.RecordChange("doc-1", "sess-1", "user-a", "", questionInsertOp())
	assert.Empty(t, tracker.GetChanges("doc-2", ChangeFilter{}))
}

func settingsUpdateOp(key string) operation.Operation {
	return operation.Operation{
		ID:        "op-settings",
		Type:      operation.OpUpdate,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("settings", key),
		Property:  key,
		NewValue:  false,
	}
}

func questionInsertOp() operation.Operation {
	return operation.Operation{
		ID:        "op-insert",
		Type:      operation.OpInsert,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("questions"),
		Position:  0,
		Content:   "New question",
		Kind:      operation.KindQuestion,
	}
}

func questionDeleteOp() operation.Operation {
	return operation.Operation{
		ID:        "op-delete",
		Type:      operation.OpDelete,
		AuthorID:  "user-a",
		Timestamp: time.Now(),
		Path:      operation.NewPath("questions"),
		Position:  0,
		Length:    1,
		Kind:      operation.KindQuestion,
	}
}
