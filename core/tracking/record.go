package tracking

import (
	"time"

	"github.com/formweave/formweave/core/operation"
)

// ChangeCategory classifies what part of a questionnaire a change touched.
type ChangeCategory string

const (
	CategoryStructure ChangeCategory = "structure"
	CategoryContent   ChangeCategory = "content"
	CategorySettings  ChangeCategory = "settings"
	CategoryMetadata  ChangeCategory = "metadata"
)

// ChangeImpact grades how disruptive a change is for respondents and for
// collected data.
type ChangeImpact string

const (
	ImpactMinor    ChangeImpact = "minor"
	ImpactMajor    ChangeImpact = "major"
	ImpactBreaking ChangeImpact = "breaking"
)

// ChangeRecord is one entry in a document's change log. SessionID ties the
// change to the editing session that produced it; VersionID to the version
// it landed in.
type ChangeRecord struct {
	ID          string
	DocumentID  string
	SessionID   string
	UserID      string
	VersionID   string
	OpID        string
	OpType      operation.OpType
	Path        string
	Property    string
	Description string
	Category    ChangeCategory
	Impact      ChangeImpact
	Timestamp   time.Time
}

func (r *ChangeRecord) Clone() *ChangeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ActivityType names the kinds of events in a document's activity feed. The
// feed is broader than the change log: it also covers collaboration events
// that never touch the document tree.
type ActivityType string

const (
	ActivityEdit         ActivityType = "edit"
	ActivityComment      ActivityType = "comment"
	ActivityVersion      ActivityType = "version"
	ActivityMerge        ActivityType = "merge"
	ActivitySessionJoin  ActivityType = "session_join"
	ActivitySessionLeave ActivityType = "session_leave"
)

// ActivityItem is one entry in a document's activity feed.
type ActivityItem struct {
	ID         string
	DocumentID string
	UserID     string
	Type       ActivityType
	Summary    string
	Preview    string
	Timestamp  time.Time
}

func (a *ActivityItem) Clone() *ActivityItem {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
