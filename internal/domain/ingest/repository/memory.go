package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process IngestRepository used for dry runs and
// tests.
type MemoryRepository struct {
	mu             sync.Mutex
	now            func() time.Time
	batches        map[uuid.UUID]*UploadBatch
	qualifications []*QualificationRecord
	factors        []*ValuationFactor
	audits         []*AuditEntry
	brokers        map[uuid.UUID]uuid.UUID // user -> broker
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:     time.Now,
		batches: make(map[uuid.UUID]*UploadBatch),
		brokers: make(map[uuid.UUID]uuid.UUID),
	}
}

// WithClock overrides the clock used for timestamps.
func (m *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	m.now = now
	return m
}

// AddBroker binds a user to a broker.
func (m *MemoryRepository) AddBroker(userID, brokerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brokers[userID] = brokerID
}

func (m *MemoryRepository) CreateBatch(_ context.Context, batch *UploadBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	batch.Status = BatchProcessing
	batch.ProcessedCount, batch.FailedCount = 0, 0
	batch.CreatedAt = m.now()

	stored := *batch
	m.batches[batch.ID] = &stored
	return nil
}

func (m *MemoryRepository) FinishBatch(_ context.Context, id uuid.UUID, status BatchStatus, processed, failed int) (*UploadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if b.Status.Terminal() {
		out := *b
		return &out, ErrBatchFinalized
	}

	now := m.now()
	b.Status = status
	b.ProcessedCount = processed
	b.FailedCount = failed
	b.FinishedAt = &now

	out := *b
	return &out, nil
}

func (m *MemoryRepository) GetBatch(_ context.Context, id uuid.UUID) (*UploadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) ListStaleBatches(_ context.Context, startedBefore time.Time) ([]*UploadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*UploadBatch
	for _, b := range m.batches {
		if b.Status == BatchProcessing && b.CreatedAt.Before(startedBefore) {
			out := *b
			stale = append(stale, &out)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	return stale, nil
}

func (m *MemoryRepository) CreateQualification(_ context.Context, rec *QualificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = m.now()
	stored := *rec
	m.qualifications = append(m.qualifications, &stored)
	return nil
}

func (m *MemoryRepository) CreateFactor(_ context.Context, factor *ValuationFactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}
	factor.CreatedAt = m.now()
	stored := *factor
	m.factors = append(m.factors, &stored)
	return nil
}

func (m *MemoryRepository) ListQualificationsByBatch(_ context.Context, batchID uuid.UUID) ([]*QualificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*QualificationRecord
	for _, rec := range m.qualifications {
		if rec.BatchID != nil && *rec.BatchID == batchID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListFactorsByBatch(_ context.Context, batchID uuid.UUID) ([]*ValuationFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ValuationFactor
	for _, f := range m.factors {
		if f.BatchID != nil && *f.BatchID == batchID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepository) RecordAudit(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = m.now()
	stored := *entry
	m.audits = append(m.audits, &stored)
	return nil
}

func (m *MemoryRepository) GetBrokerIDByUserID(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	brokerID, ok := m.brokers[userID]
	if !ok {
		return uuid.Nil, ErrBrokerNotFound
	}
	return brokerID, nil
}

// Qualifications returns copies of every stored qualification record.
func (m *MemoryRepository) Qualifications() []QualificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]QualificationRecord, len(m.qualifications))
	for i, rec := range m.qualifications {
		out[i] = *rec
	}
	return out
}

// Factors returns copies of every stored valuation factor.
func (m *MemoryRepository) Factors() []ValuationFactor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ValuationFactor, len(m.factors))
	for i, f := range m.factors {
		out[i] = *f
	}
	return out
}

// AuditEntries returns copies of every audit entry.
func (m *MemoryRepository) AuditEntries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEntry, len(m.audits))
	for i, e := range m.audits {
		out[i] = *e
	}
	return out
}
