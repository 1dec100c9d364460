package history

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/formweave/formweave/core/operation"
	"github.com/formweave/formweave/core/questionnaire"
)

const DefaultBranch = "main"

var (
	ErrUnknownDocument      = errors.New("unknown document")
	ErrUnknownBranch        = errors.New("unknown branch")
	ErrUnknownVersion       = errors.New("unknown version")
	ErrBranchExists         = errors.New("branch already exists")
	ErrBranchDeleted        = errors.New("branch is deleted")
	ErrReferentialIntegrity = errors.New("version is referenced by other history")
	ErrStoreClosed          = errors.New("history store is closed")
)

const (
	defaultSnapshotCacheCounters = 1e5
	defaultSnapshotCacheCost     = 1e7
	defaultSnapshotCacheBuffer   = 64
	defaultDiffCacheSize         = 512
)

// StoreStats is a point-in-time census of the store's contents.
type StoreStats struct {
	Documents         int64
	Versions          int64
	Branches          int64
	SnapshotCacheHits int64
	DiffCacheHits     int64
	DiffCacheMisses   int64
}

type Store interface {
	CreateVersion(req CreateVersionRequest) (*Version, error)
	GetVersion(versionID string) (*Version, error)
	GetVersions(documentID, branch string, limit, offset int) ([]*Version, error)
	GetLatestVersion(documentID, branch string) (*Version, error)
	RestoreToVersion(documentID, versionID, authorID string) (*Version, error)
	DeleteVersion(versionID string) (bool, error)

	CreateBranch(documentID, name, fromVersionID string) (*Branch, error)
	GetBranch(documentID, name string) (*Branch, error)
	GetBranches(documentID string) ([]*Branch, error)
	SetDefaultBranch(documentID, name string) error
	DeleteBranch(documentID, name string) error

	GenerateDiff(fromVersionID, toVersionID string) (*Diff, error)

	Stats() StoreStats
	Close()
}

// StoreConfig configures a DefaultStore. Zero values select the defaults.
type StoreConfig struct {
	SnapshotCacheCounters int64
	SnapshotCacheMaxCost  int64
	DiffCacheSize         int
	Logger                *slog.Logger
}

// DefaultStore is an in-memory version and branch store. Snapshot reads go
// through a ristretto cache; diffs are memoized in an LRU keyed by the
// version id pair.
type DefaultStore struct {
	mu        sync.RWMutex
	documents map[string]*documentHistory
	byVersion map[string]*Version

	snapshots *ristretto.Cache
	diffs     *diffCache
	logger    *slog.Logger

	statsMu sync.RWMutex
	stats   StoreStats

	closed   bool
	closedMu sync.RWMutex
}

// documentHistory keeps one document's branches and version chains. The
// order slices hold version ids in creation order per branch, oldest first.
type documentHistory struct {
	versions map[string]*Version
	branches map[string]*Branch
	order    map[string][]string
	heads    map[string]string
	sequence map[string]int64
}

func NewStore(cfg StoreConfig) (*DefaultStore, error) {
	counters := cfg.SnapshotCacheCounters
	if counters <= 0 {
		counters = defaultSnapshotCacheCounters
	}
	maxCost := cfg.SnapshotCacheMaxCost
	if maxCost <= 0 {
		maxCost = defaultSnapshotCacheCost
	}
	diffSize := cfg.DiffCacheSize
	if diffSize <= 0 {
		diffSize = defaultDiffCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	snapshots, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: defaultSnapshotCacheBuffer,
	})
	if err != nil {
		return nil, err
	}

	diffs, err := newDiffCache(diffSize)
	if err != nil {
		snapshots.Close()
		return nil, err
	}

	return &DefaultStore{
		documents: make(map[string]*documentHistory),
		byVersion: make(map[string]*Version),
		snapshots: snapshots,
		diffs:     diffs,
		logger:    logger,
	}, nil
}

// CreateVersionRequest carries everything needed to record a new version.
// Branch defaults to the document's default branch; an unseen document or
// branch name is created implicitly.
type CreateVersionRequest struct {
	DocumentID string
	Branch     string
	AuthorID   string
	Message    string
	Snapshot   *questionnaire.Questionnaire
	Operations []operation.Operation
}

func (s *DefaultStore) CreateVersion(req CreateVersionRequest) (*Version, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: missing document id", ErrUnknownDocument)
	}
	if req.Snapshot == nil {
		return nil, errors.New("create version requires a snapshot")
	}

	branchName := req.Branch
	if branchName == "" {
		branchName = DefaultBranch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ensureDocument(req.DocumentID)
	branch, ok := doc.branches[branchName]
	if !ok {
		branch = s.createBranchLocked(doc, req.DocumentID, branchName, "")
	}
	if branch.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrBranchDeleted, branchName)
	}

	doc.sequence[branchName]++
	version := &Version{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		Branch:     branchName,
		Sequence:   doc.sequence[branchName],
		ParentID:   doc.heads[branchName],
		AuthorID:   req.AuthorID,
		Message:    req.Message,
		CreatedAt:  time.Now(),
		Snapshot:   req.Snapshot.Clone(),
		Operations: cloneOperations(req.Operations),
	}

	doc.versions[version.ID] = version
	doc.order[branchName] = append(doc.order[branchName], version.ID)
	doc.heads[branchName] = version.ID
	s.byVersion[version.ID] = version

	s.cacheSnapshot(version)
	s.recordVersionCreated()

	s.logger.Debug("version created",
		"document", req.DocumentID,
		"branch", branchName,
		"version", version.ID,
		"sequence", version.Sequence,
	)
	return version.Clone(), nil
}

func (s *DefaultStore) GetVersion(versionID string) (*Version, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	version, ok := s.byVersion[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, versionID)
	}
	return version.Clone(), nil
}

// GetVersions lists a branch's versions newest first. A zero limit means no
// limit; offset skips from the newest end.
func (s *DefaultStore) GetVersions(documentID, branch string, limit, offset int) ([]*Version, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, order, err := s.branchOrderLocked(documentID, branch)
	if err != nil {
		return nil, err
	}

	result := make([]*Version, 0, len(order))
	for i := len(order) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, doc.versions[order[i]].Clone())
	}
	return result, nil
}

func (s *DefaultStore) GetLatestVersion(documentID, branch string) (*Version, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestLocked(documentID, branch)
}

// latestLocked resolves the branch head. A freshly forked branch with no
// commits of its own resolves to its fork point.
func (s *DefaultStore) latestLocked(documentID, branch string) (*Version, error) {
	doc, _, err := s.branchOrderLocked(documentID, branch)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = DefaultBranch
	}
	head, ok := doc.heads[branch]
	if !ok {
		return nil, fmt.Errorf("%w: branch %s has no versions", ErrUnknownVersion, branch)
	}
	return doc.versions[head].Clone(), nil
}

// RestoreToVersion rolls a document back by recording a new head version
// whose snapshot equals the restored version's. History is never rewritten.
func (s *DefaultStore) RestoreToVersion(documentID, versionID, authorID string) (*Version, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	snapshot, target, err := s.snapshotForRestore(documentID, versionID)
	if err != nil {
		return nil, err
	}

	return s.CreateVersion(CreateVersionRequest{
		DocumentID: documentID,
		Branch:     target.Branch,
		AuthorID:   authorID,
		Message:    fmt.Sprintf("Restored to version %d", target.Sequence),
		Snapshot:   snapshot,
	})
}

func (s *DefaultStore) snapshotForRestore(documentID, versionID string) (*questionnaire.Questionnaire, *Version, error) {
	if cached, found := s.snapshots.Get(snapshotKey(versionID)); found {
		if snapshot, ok := cached.(*questionnaire.Questionnaire); ok {
			s.recordSnapshotHit()
			version, err := s.GetVersion(versionID)
			if err != nil {
				return nil, nil, err
			}
			if version.DocumentID != documentID {
				return nil, nil, fmt.Errorf("%w: %s does not belong to %s", ErrUnknownVersion, versionID, documentID)
			}
			return snapshot.Clone(), version, nil
		}
	}

	version, err := s.GetVersion(versionID)
	if err != nil {
		return nil, nil, err
	}
	if version.DocumentID != documentID {
		return nil, nil, fmt.Errorf("%w: %s does not belong to %s", ErrUnknownVersion, versionID, documentID)
	}
	s.cacheSnapshot(version)
	return version.Snapshot.Clone(), version, nil
}

// DeleteVersion removes a version that nothing else depends on. It reports
// false without error, and mutates nothing, when the version is referenced:
// the parent of another version, a branch creation point, or any branch's
// head.
func (s *DefaultStore) DeleteVersion(versionID string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, ok := s.byVersion[versionID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownVersion, versionID)
	}

	doc := s.documents[version.DocumentID]
	if s.isReferencedLocked(doc, versionID) {
		return false, nil
	}

	delete(doc.versions, versionID)
	delete(s.byVersion, versionID)
	doc.order[version.Branch] = removeID(doc.order[version.Branch], versionID)
	s.snapshots.Del(snapshotKey(versionID))
	s.recordVersionDeleted()
	return true, nil
}

func (s *DefaultStore) isReferencedLocked(doc *documentHistory, versionID string) bool {
	for _, other := range doc.versions {
		if other.ParentID == versionID {
			return true
		}
	}
	for _, branch := range doc.branches {
		if branch.CreatedFromVersion == versionID {
			return true
		}
	}
	for _, head := range doc.heads {
		if head == versionID {
			return true
		}
	}
	return false
}

func (s *DefaultStore) CreateBranch(documentID, name, fromVersionID string) (*Branch, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownBranch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ensureDocument(documentID)
	if existing, ok := doc.branches[name]; ok && !existing.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	if fromVersionID != "" {
		from, ok := doc.versions[fromVersionID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, fromVersionID)
		}
		branch := s.createBranchLocked(doc, documentID, name, fromVersionID)
		// the new branch starts at the fork point
		doc.heads[name] = from.ID
		doc.order[name] = []string{}
		return branch.Clone(), nil
	}

	return s.createBranchLocked(doc, documentID, name, "").Clone(), nil
}

func (s *DefaultStore) createBranchLocked(doc *documentHistory, documentID, name, fromVersionID string) *Branch {
	branch := &Branch{
		Name:               name,
		DocumentID:         documentID,
		CreatedFromVersion: fromVersionID,
		CreatedAt:          time.Now(),
		IsDefault:          name == DefaultBranch && !s.hasDefaultLocked(doc),
	}
	doc.branches[name] = branch
	s.recordBranchCreated()
	return branch
}

func (s *DefaultStore) hasDefaultLocked(doc *documentHistory) bool {
	for _, branch := range doc.branches {
		if branch.IsDefault {
			return true
		}
	}
	return false
}

func (s *DefaultStore) GetBranch(documentID, name string) (*Branch, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	branch, ok := doc.branches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	return branch.Clone(), nil
}

func (s *DefaultStore) GetBranches(documentID string) ([]*Branch, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}

	result := make([]*Branch, 0, len(doc.branches))
	for _, branch := range doc.branches {
		if !branch.Deleted {
			result = append(result, branch.Clone())
		}
	}
	return result, nil
}

// SetDefaultBranch moves the default flag; exactly one branch per document
// holds it.
func (s *DefaultStore) SetDefaultBranch(documentID, name string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	target, ok := doc.branches[name]
	if !ok || target.Deleted {
		return fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}

	for _, branch := range doc.branches {
		branch.IsDefault = false
	}
	target.IsDefault = true
	return nil
}

// DeleteBranch soft-deletes a branch. The default branch cannot be deleted.
func (s *DefaultStore) DeleteBranch(documentID, name string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	branch, ok := doc.branches[name]
	if !ok || branch.Deleted {
		return fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	if branch.IsDefault {
		return fmt.Errorf("%w: cannot delete the default branch %s", ErrReferentialIntegrity, name)
	}

	branch.Deleted = true
	s.recordBranchDeleted()
	return nil
}

func (s *DefaultStore) Stats() StoreStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *DefaultStore) Close() {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.snapshots.Close()
}

func (s *DefaultStore) checkClosed() error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *DefaultStore) ensureDocument(documentID string) *documentHistory {
	doc, ok := s.documents[documentID]
	if !ok {
		doc = &documentHistory{
			versions: make(map[string]*Version),
			branches: make(map[string]*Branch),
			order:    make(map[string][]string),
			heads:    make(map[string]string),
			sequence: make(map[string]int64),
		}
		s.documents[documentID] = doc
		s.recordDocumentCreated()
	}
	return doc
}

func (s *DefaultStore) branchOrderLocked(documentID, branch string) (*documentHistory, []string, error) {
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	if branch == "" {
		branch = DefaultBranch
	}
	if _, ok := doc.branches[branch]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownBranch, branch)
	}
	return doc, doc.order[branch], nil
}

func (s *DefaultStore) cacheSnapshot(version *Version) {
	cost := int64(len(version.Snapshot.Questions)+len(version.Snapshot.Pages)+len(version.Snapshot.Variables)+1) * 64
	s.snapshots.Set(snapshotKey(version.ID), version.Snapshot.Clone(), cost)
}

func snapshotKey(versionID string) string {
	return "snapshot:" + versionID
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (s *DefaultStore) recordDocumentCreated() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Documents++
}

func (s *DefaultStore) recordVersionCreated() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Versions++
}

func (s *DefaultStore) recordVersionDeleted() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Versions--
}

func (s *DefaultStore) recordBranchCreated() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Branches++
}

func (s *DefaultStore) recordBranchDeleted() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Branches--
}

func (s *DefaultStore) recordSnapshotHit() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.SnapshotCacheHits++
}

func (s *DefaultStore) recordDiffHit() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.DiffCacheHits++
}

func (s *DefaultStore) recordDiffMiss() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.DiffCacheMisses++
}
