package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

type configEntry struct {
	levels []LevelConfig
	by     int64
}

type memoryApprovalRepo struct {
	mu          sync.Mutex
	docs        map[int64]SalesDocument
	actions     []ActionRecord
	configs     map[string]configEntry
	nextID      int64
	afterRead   func()
	lockedReads int
	failSwap    error
}

func newMemoryApprovalRepo() *memoryApprovalRepo {
	return &memoryApprovalRepo{
		docs:    make(map[int64]SalesDocument),
		configs: make(map[string]configEntry),
	}
}

type memoryApprovalTx struct {
	repo     *memoryApprovalRepo
	inserts  []SalesDocument
	swaps    []memorySwap
	appended []ActionRecord
}

type memorySwap struct {
	next     SalesDocument
	expected StateStamp
}

func (r *memoryApprovalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryApprovalTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (r *memoryApprovalRepo) GetDocument(ctx context.Context, id int64) (SalesDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return SalesDocument{}, ErrNotFound
	}
	return doc, nil
}

func (r *memoryApprovalRepo) ListPending(ctx context.Context, filter PendingFilter) ([]SalesDocument, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []SalesDocument
	for _, doc := range r.docs {
		if doc.TenantID != filter.TenantID || doc.DocumentType != filter.DocumentType || doc.Status != StatusSubmitted {
			continue
		}
		if filter.Levels != nil && !containsLevel(filter.Levels, doc.CurrentLevel) {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DocumentDate.Equal(matched[j].DocumentDate) {
			return matched[i].DocumentDate.Before(matched[j].DocumentDate)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if filter.Offset >= total {
		return []SalesDocument{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func containsLevel(levels []int, level int) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func (r *memoryApprovalRepo) ListActions(ctx context.Context, documentID int64) ([]ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := []ActionRecord{}
	for _, rec := range r.actions {
		if rec.DocumentID == documentID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *memoryApprovalRepo) GetLevels(ctx context.Context, tenantID int64, docType DocumentType) ([]LevelConfig, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.configs[configKey(tenantID, docType)]
	if !ok {
		return []LevelConfig{}, false, nil
	}
	return append([]LevelConfig{}, entry.levels...), true, nil
}

func (r *memoryApprovalRepo) ReplaceLevels(ctx context.Context, tenantID int64, docType DocumentType, levels []LevelConfig, actorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[configKey(tenantID, docType)] = configEntry{levels: append([]LevelConfig{}, levels...), by: actorID}
	return nil
}

func (r *memoryApprovalRepo) seed(doc SalesDocument) SalesDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID
	if doc.Version == 0 {
		doc.Version = 1
	}
	r.docs[doc.ID] = doc
	return doc
}

func (r *memoryApprovalRepo) actionCount(documentID int64) int {
	records, _ := r.ListActions(context.Background(), documentID)
	return len(records)
}

func (tx *memoryApprovalTx) GetDocumentForUpdate(ctx context.Context, id int64) (SalesDocument, error) {
	tx.repo.mu.Lock()
	tx.repo.lockedReads++
	tx.repo.mu.Unlock()
	doc, err := tx.repo.GetDocument(ctx, id)
	if err == nil && tx.repo.afterRead != nil {
		tx.repo.afterRead()
	}
	return doc, err
}

func (tx *memoryApprovalTx) InsertDocument(ctx context.Context, doc SalesDocument) (int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, existing := range tx.repo.docs {
		if existing.TenantID == doc.TenantID && existing.DocumentType == doc.DocumentType && existing.Number == doc.Number {
			return 0, ErrDuplicateNumber
		}
	}
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.inserts = append(tx.inserts, doc)
	return doc.ID, nil
}

func (tx *memoryApprovalTx) SwapDocumentState(ctx context.Context, next SalesDocument, expected StateStamp) error {
	if tx.repo.failSwap != nil {
		return tx.repo.failSwap
	}
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if !stampMatches(tx.repo.docs[next.ID], expected) {
		return ErrConcurrentModification
	}
	tx.swaps = append(tx.swaps, memorySwap{next: next, expected: expected})
	return nil
}

func (tx *memoryApprovalTx) AppendAction(ctx context.Context, record ActionRecord) error {
	tx.appended = append(tx.appended, record)
	return nil
}

// commit re-checks every swap the way a serializable database would.
func (tx *memoryApprovalTx) commit() error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, s := range tx.swaps {
		if !stampMatches(tx.repo.docs[s.next.ID], s.expected) {
			return ErrConcurrentModification
		}
	}
	for _, doc := range tx.inserts {
		tx.repo.docs[doc.ID] = doc
	}
	for _, s := range tx.swaps {
		tx.repo.docs[s.next.ID] = s.next
	}
	tx.repo.actions = append(tx.repo.actions, tx.appended...)
	return nil
}

func stampMatches(doc SalesDocument, expected StateStamp) bool {
	return doc.Status == expected.Status && doc.CurrentLevel == expected.CurrentLevel && doc.Version == expected.Version
}

type staticSnapshots map[string]ConfigSnapshot

func (s staticSnapshots) Snapshot(ctx context.Context, tenantID int64, docType DocumentType) (ConfigSnapshot, error) {
	return s[configKey(tenantID, docType)], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	records []ActionRecord
}

func (a *recordingAudit) RecordApproval(ctx context.Context, doc SalesDocument, record ActionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveAction(docType DocumentType, action Action, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[string(action)+":"+outcome]++
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
