package tracking

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formweave/formweave/core/operation"
)

const (
	defaultMaxChanges    = 1000
	defaultMaxActivities = 500
	previewLength        = 80
)

// ChangeFilter narrows GetChanges results. Zero values match everything; a
// zero Limit means no limit.
type ChangeFilter struct {
	UserID   string
	Category ChangeCategory
	Impact   ChangeImpact
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// ActivityFilter narrows GetActivities results.
type ActivityFilter struct {
	UserID string
	Type   ActivityType
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// ChangeStatistics aggregates a document's change log.
type ChangeStatistics struct {
	TotalChanges    int
	ByCategory      map[ChangeCategory]int
	ByImpact        map[ChangeImpact]int
	ByUser          map[string]int
	ByDay           map[string]int
	MostActiveUsers []UserActivity
}

// UserActivity is one row of the most-active ranking.
type UserActivity struct {
	UserID  string
	Changes int
}

// AuditLog is a self-contained export of a document's history over a
// period, ready for serialization: the matching changes and activities plus
// who took part. A zero period bound leaves that side open.
type AuditLog struct {
	DocumentID   string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	GeneratedAt  time.Time
	Changes      []*ChangeRecord
	Activities   []*ActivityItem
	Participants []string
}

type Tracker interface {
	RecordChange(documentID, sessionID, userID, versionID string, op operation.Operation) *ChangeRecord
	RecordComment(documentID, userID, comment string) *ActivityItem
	RecordVersion(documentID, userID, message string) *ActivityItem
	RecordMerge(documentID, userID, fromBranch, toBranch string) *ActivityItem
	RecordSessionJoin(documentID, userID string) *ActivityItem
	RecordSessionLeave(documentID, userID string) *ActivityItem

	GetChanges(documentID string, filter ChangeFilter) []*ChangeRecord
	GetActivities(documentID string, filter ActivityFilter) []*ActivityItem
	GetChangeStatistics(documentID string, since, until time.Time) ChangeStatistics
	GenerateAuditLog(documentID string, since, until time.Time) *AuditLog
}

// TrackerConfig bounds the per-document logs. Zero values select defaults.
type TrackerConfig struct {
	MaxChanges    int
	MaxActivities int
	Logger        *slog.Logger
}

// DefaultTracker keeps bounded in-memory change and activity logs per
// document, newest first. When a log overflows, the oldest entries fall off;
// an Archive can keep the full history cold.
type DefaultTracker struct {
	mu         sync.RWMutex
	changes    map[string][]*ChangeRecord
	activities map[string][]*ActivityItem

	maxChanges    int
	maxActivities int
	logger        *slog.Logger
}

func NewTracker(cfg TrackerConfig) *DefaultTracker {
	maxChanges := cfg.MaxChanges
	if maxChanges <= 0 {
		maxChanges = defaultMaxChanges
	}
	maxActivities := cfg.MaxActivities
	if maxActivities <= 0 {
		maxActivities = defaultMaxActivities
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DefaultTracker{
		changes:       make(map[string][]*ChangeRecord),
		activities:    make(map[string][]*ActivityItem),
		maxChanges:    maxChanges,
		maxActivities: maxActivities,
		logger:        logger,
	}
}

// RecordChange derives a categorized change record from an applied operation
// and mirrors it into the activity feed. sessionID and versionID tie the
// record to the editing session and the version the operation landed in;
// either may be empty when unknown.
func (t *DefaultTracker) RecordChange(documentID, sessionID, userID, versionID string, op operation.Operation) *ChangeRecord {
	record := &ChangeRecord{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		SessionID:   sessionID,
		UserID:      userID,
		VersionID:   versionID,
		OpID:        op.ID,
		OpType:      op.Type,
		Path:        op.Path.String(),
		Property:    op.Property,
		Description: describeOperation(op),
		Category:    categorize(op),
		Impact:      gradeImpact(op),
		Timestamp:   time.Now(),
	}

	t.mu.Lock()
	t.changes[documentID] = t.prependChange(documentID, record)
	t.mu.Unlock()

	t.recordActivity(documentID, userID, ActivityEdit, record.Description, preview(record.Description))
	return record.Clone()
}

func (t *DefaultTracker) RecordComment(documentID, userID, comment string) *ActivityItem {
	return t.recordActivity(documentID, userID, ActivityComment, "commented", preview(comment))
}

func (t *DefaultTracker) RecordVersion(documentID, userID, message string) *ActivityItem {
	return t.recordActivity(documentID, userID, ActivityVersion, "saved a version", preview(message))
}

func (t *DefaultTracker) RecordMerge(documentID, userID, fromBranch, toBranch string) *ActivityItem {
	summary := fmt.Sprintf("merged %s into %s", fromBranch, toBranch)
	return t.recordActivity(documentID, userID, ActivityMerge, summary, "")
}

func (t *DefaultTracker) RecordSessionJoin(documentID, userID string) *ActivityItem {
	return t.recordActivity(documentID, userID, ActivitySessionJoin, "joined the session", "")
}

func (t *DefaultTracker) RecordSessionLeave(documentID, userID string) *ActivityItem {
	return t.recordActivity(documentID, userID, ActivitySessionLeave, "left the session", "")
}

func (t *DefaultTracker) recordActivity(documentID, userID string, activityType ActivityType, summary, preview string) *ActivityItem {
	item := &ActivityItem{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Type:       activityType,
		Summary:    summary,
		Preview:    preview,
		Timestamp:  time.Now(),
	}

	t.mu.Lock()
	t.activities[documentID] = t.prependActivity(documentID, item)
	t.mu.Unlock()

	return item.Clone()
}

func (t *DefaultTracker) prependChange(documentID string, record *ChangeRecord) []*ChangeRecord {
	log := append([]*ChangeRecord{record}, t.changes[documentID]...)
	if len(log) > t.maxChanges {
		t.logger.Debug("change log trimmed",
			"document", documentID,
			"dropped", len(log)-t.maxChanges,
		)
		log = log[:t.maxChanges]
	}
	return log
}

func (t *DefaultTracker) prependActivity(documentID string, item *ActivityItem) []*ActivityItem {
	feed := append([]*ActivityItem{item}, t.activities[documentID]...)
	if len(feed) > t.maxActivities {
		t.logger.Debug("activity feed trimmed",
			"document", documentID,
			"dropped", len(feed)-t.maxActivities,
		)
		feed = feed[:t.maxActivities]
	}
	return feed
}

// GetChanges returns matching change records newest first.
func (t *DefaultTracker) GetChanges(documentID string, filter ChangeFilter) []*ChangeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*ChangeRecord
	skipped := 0
	for _, record := range t.changes[documentID] {
		if !matchesChange(record, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, record.Clone())
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

func matchesChange(record *ChangeRecord, filter ChangeFilter) bool {
	if filter.UserID != "" && record.UserID != filter.UserID {
		return false
	}
	if filter.Category != "" && record.Category != filter.Category {
		return false
	}
	if filter.Impact != "" && record.Impact != filter.Impact {
		return false
	}
	if !filter.Since.IsZero() && record.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && record.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// GetActivities returns matching activity items newest first.
func (t *DefaultTracker) GetActivities(documentID string, filter ActivityFilter) []*ActivityItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*ActivityItem
	skipped := 0
	for _, item := range t.activities[documentID] {
		if !matchesActivity(item, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, item.Clone())
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

func matchesActivity(item *ActivityItem, filter ActivityFilter) bool {
	if filter.UserID != "" && item.UserID != filter.UserID {
		return false
	}
	if filter.Type != "" && item.Type != filter.Type {
		return false
	}
	if !filter.Since.IsZero() && item.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && item.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// GetChangeStatistics aggregates the changes recorded between since and
// until; a zero bound leaves that side open.
func (t *DefaultTracker) GetChangeStatistics(documentID string, since, until time.Time) ChangeStatistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := ChangeStatistics{
		ByCategory: make(map[ChangeCategory]int),
		ByImpact:   make(map[ChangeImpact]int),
		ByUser:     make(map[string]int),
		ByDay:      make(map[string]int),
	}

	period := ChangeFilter{Since: since, Until: until}
	for _, record := range t.changes[documentID] {
		if !matchesChange(record, period) {
			continue
		}
		stats.TotalChanges++
		stats.ByCategory[record.Category]++
		stats.ByImpact[record.Impact]++
		stats.ByUser[record.UserID]++
		stats.ByDay[record.Timestamp.Format("2006-01-02")]++
	}

	stats.MostActiveUsers = rankUsers(stats.ByUser)
	return stats
}

func rankUsers(byUser map[string]int) []UserActivity {
	ranking := make([]UserActivity, 0, len(byUser))
	for userID, changes := range byUser {
		ranking = append(ranking, UserActivity{UserID: userID, Changes: changes})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Changes != ranking[j].Changes {
			return ranking[i].Changes > ranking[j].Changes
		}
		return ranking[i].UserID < ranking[j].UserID
	})
	return ranking
}

// GenerateAuditLog assembles the document's changes and activities between
// since and until into an export object, newest first. A zero bound leaves
// that side of the period open.
func (t *DefaultTracker) GenerateAuditLog(documentID string, since, until time.Time) *AuditLog {
	changes := t.GetChanges(documentID, ChangeFilter{Since: since, Until: until})
	activities := t.GetActivities(documentID, ActivityFilter{Since: since, Until: until})

	seen := make(map[string]bool)
	var participants []string
	for _, record := range changes {
		if !seen[record.UserID] {
			seen[record.UserID] = true
			participants = append(participants, record.UserID)
		}
	}
	for _, item := range activities {
		if !seen[item.UserID] {
			seen[item.UserID] = true
			participants = append(participants, item.UserID)
		}
	}
	sort.Strings(participants)

	return &AuditLog{
		DocumentID:   documentID,
		PeriodStart:  since,
		PeriodEnd:    until,
		GeneratedAt:  time.Now(),
		Changes:      changes,
		Activities:   activities,
		Participants: participants,
	}
}

func describeOperation(op operation.Operation) string {
	target := op.Path.String()
	switch op.Type {
	case operation.OpInsert:
		return fmt.Sprintf("added %s to %s at position %d", string(op.Kind), target, op.Position)
	case operation.OpDelete:
		return fmt.Sprintf("removed %d element(s) from %s at position %d", op.Length, target, op.Position)
	case operation.OpUpdate:
		return fmt.Sprintf("changed %s of %s", op.Property, target)
	case operation.OpMove:
		return fmt.Sprintf("moved element from %s[%d] to %s[%d]", op.FromPath, op.FromPosition, op.ToPath, op.ToPosition)
	case operation.OpReorder:
		return fmt.Sprintf("reordered %d element(s) in %s", len(op.Indices), target)
	default:
		return "modified " + target
	}
}

// categorize maps an operation to its change category by the collection it
// touches: structural edits to element collections, content edits within
// elements, settings and variables, and everything else as metadata.
func categorize(op operation.Operation) ChangeCategory {
	switch op.Path.Head() {
	case "questions", "pages", "blocks":
		if op.Type == operation.OpUpdate {
			return CategoryContent
		}
		return CategoryStructure
	case "settings", "variables":
		return CategorySettings
	default:
		return CategoryMetadata
	}
}

func isFlowProperty(property string) bool {
	switch property {
	case "condition", "skipLogic", "branching", "visibleIf", "displayLogic":
		return true
	default:
		return false
	}
}

// gradeImpact grades disruption: deleting questions or pages breaks
// collected-data continuity; any touch to questions or variables, and any
// flow-logic edit, is major; everything else is minor.
func gradeImpact(op operation.Operation) ChangeImpact {
	head := op.Path.Head()
	if op.Type == operation.OpDelete && (head == "questions" || head == "pages") {
		return ImpactBreaking
	}
	if head == "questions" || head == "variables" || isFlowProperty(op.Property) {
		return ImpactMajor
	}
	return ImpactMinor
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= previewLength {
		return text
	}
	return text[:previewLength] + "..."
}
