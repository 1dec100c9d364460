package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/formweave/formweave/core/operation"
)

var ErrArchiveClosed = errors.New("archive is closed")

const archiveSchema = `
CREATE TABLE IF NOT EXISTS change_records (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	session_id TEXT,
	user_id TEXT NOT NULL,
	version_id TEXT,
	op_id TEXT,
	op_type TEXT NOT NULL,
	path TEXT NOT NULL,
	property TEXT,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	impact TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	archived_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changes_document ON change_records(document_id);
CREATE INDEX IF NOT EXISTS idx_changes_user ON change_records(user_id);
CREATE INDEX IF NOT EXISTS idx_changes_category ON change_records(category);
CREATE INDEX IF NOT EXISTS idx_changes_timestamp ON change_records(timestamp);
`

// Archive is the cold store behind the in-memory change log. Records that
// fall off the tracker's bounded log survive here for audit queries.
type Archive struct {
	db     *sql.DB
	closed bool
}

func NewArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// ArchiveChanges persists a batch of change records in one transaction.
func (a *Archive) ArchiveChanges(records []*ChangeRecord) error {
	if a.closed {
		return ErrArchiveClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO change_records
		(id, document_id, session_id, user_id, version_id, op_id, op_type,
		 path, property, description, category, impact, timestamp, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, record := range records {
		_, err := stmt.Exec(
			record.ID, record.DocumentID, record.SessionID, record.UserID,
			record.VersionID, record.OpID,
			record.OpType.String(), record.Path, record.Property,
			record.Description, string(record.Category), string(record.Impact),
			record.Timestamp, now,
		)
		if err != nil {
			return fmt.Errorf("failed to archive record %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

// ArchiveAuditLog snapshots a tracker's current change log for a document
// into the cold store.
func (a *Archive) ArchiveAuditLog(tracker Tracker, documentID string) (int, error) {
	records := tracker.GetChanges(documentID, ChangeFilter{})
	if err := a.ArchiveChanges(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// QueryChanges reads archived records for a document, newest first.
func (a *Archive) QueryChanges(documentID string, limit int) ([]*ChangeRecord, error) {
	if a.closed {
		return nil, ErrArchiveClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.Query(`
		SELECT id, document_id, session_id, user_id, version_id, op_id,
		       op_type, path, property, description, category, impact, timestamp
		FROM change_records
		WHERE document_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var records []*ChangeRecord
	for rows.Next() {
		record := &ChangeRecord{}
		var opType, category, impact string
		err := rows.Scan(
			&record.ID, &record.DocumentID, &record.SessionID, &record.UserID,
			&record.VersionID, &record.OpID,
			&opType, &record.Path, &record.Property,
			&record.Description, &category, &impact, &record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archived record: %w", err)
		}
		record.OpType = parseOpType(opType)
		record.Category = ChangeCategory(category)
		record.Impact = ChangeImpact(impact)
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountByDocument reports how many records each document has in the archive.
func (a *Archive) CountByDocument() (map[string]int64, error) {
	if a.closed {
		return nil, ErrArchiveClosed
	}

	rows, err := a.db.Query(`
		SELECT document_id, COUNT(*) FROM change_records GROUP BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count archive: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var documentID string
		var count int64
		if err := rows.Scan(&documentID, &count); err != nil {
			return nil, err
		}
		counts[documentID] = count
	}
	return counts, rows.Err()
}

func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func parseOpType(name string) operation.OpType {
	for t := operation.OpInsert; t <= operation.OpReorder; t++ {
		if t.String() == name {
			return t
		}
	}
	return operation.OpInsert
}
