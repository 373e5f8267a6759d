// Package repository persists upload batches, the records they produce and
// the audit trail written after each batch.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
)

var (
	ErrBatchFinalized = errors.New("batch already finalized")
	ErrBrokerNotFound = errors.New("broker not found for user")
)

// RecordKind identifies what an upload batch carries.
type RecordKind string

const (
	KindFactors           RecordKind = "factors"
	KindAmounts           RecordKind = "amounts"
	KindQualifications    RecordKind = "qualifications"
	KindPDFQualifications RecordKind = "pdf_qualifications"
)

func (k RecordKind) Valid() bool {
	switch k {
	case KindFactors, KindAmounts, KindQualifications, KindPDFQualifications:
		return true
	}
	return false
}

// NeedsBroker reports whether records of this kind belong to a broker.
func (k RecordKind) NeedsBroker() bool {
	return k != KindFactors
}

// BatchStatus is the lifecycle state of an UploadBatch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchError      BatchStatus = "error"
)

func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchError
}

// Origin tells how a qualification record entered the system.
type Origin string

const (
	OriginManual Origin = "manual"
	OriginCSV    Origin = "csv"
	OriginPDF    Origin = "pdf"
	OriginSystem Origin = "system"
)

// DefaultSequence is the event sequence assigned when an upload omits it.
const DefaultSequence = 10001

// UploadBatch is the ledger entry for one file upload. It is created in
// processing state and moves exactly once to completed or error.
type UploadBatch struct {
	ID             uuid.UUID   `json:"id"`
	Kind           RecordKind  `json:"kind"`
	SourceName     string      `json:"source_name"`
	SourceURL      *string     `json:"source_url,omitempty"`
	UploadedBy     uuid.UUID   `json:"uploaded_by"`
	BrokerID       *uuid.UUID  `json:"broker_id,omitempty"`
	Status         BatchStatus `json:"status"`
	ProcessedCount int         `json:"processed_count"`
	FailedCount    int         `json:"failed_count"`
	CreatedAt      time.Time   `json:"created_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

// QualificationRecord is a tax-qualification/amount row owned by a broker.
type QualificationRecord struct {
	ID            uuid.UUID         `json:"id"`
	BrokerID      uuid.UUID         `json:"broker_id"`
	BatchID       *uuid.UUID        `json:"batch_id,omitempty"`
	Date          time.Time         `json:"date"`
	Market        normalizer.Market `json:"market"`
	Year          int               `json:"year"`
	UpdatedFactor decimal.Decimal   `json:"updated_factor"`
	Description   string            `json:"description"`
	Instrument    string            `json:"instrument,omitempty"`
	Sequence      int               `json:"sequence"`
	Origin        Origin            `json:"origin"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ValuationFactor is a named integer factor valid over a date range.
type ValuationFactor struct {
	ID        uuid.UUID  `json:"id"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	Name      string     `json:"name"`
	Value     int64      `json:"value"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuditEntry records who ran which batch and how it ended.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  uuid.UUID `json:"entity_id"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchLedger stores upload batches.
type BatchLedger interface {
	CreateBatch(ctx context.Context, batch *UploadBatch) error
	// FinishBatch moves a processing batch to a terminal status. A batch that
	// is already terminal is returned unchanged together with ErrBatchFinalized.
	FinishBatch(ctx context.Context, id uuid.UUID, status BatchStatus, processed, failed int) (*UploadBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*UploadBatch, error)
	ListStaleBatches(ctx context.Context, startedBefore time.Time) ([]*UploadBatch, error)
}

// RecordStore stores the domain records produced by batches.
type RecordStore interface {
	CreateQualification(ctx context.Context, rec *QualificationRecord) error
	CreateFactor(ctx context.Context, factor *ValuationFactor) error
	ListQualificationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*QualificationRecord, error)
	ListFactorsByBatch(ctx context.Context, batchID uuid.UUID) ([]*ValuationFactor, error)
}

type AuditLog interface {
	RecordAudit(ctx context.Context, entry *AuditEntry) error
}

type BrokerDirectory interface {
	GetBrokerIDByUserID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// IngestRepository is everything the ingestion service persists.
type IngestRepository interface {
	BatchLedger
	RecordStore
	AuditLog
	BrokerDirectory
}
