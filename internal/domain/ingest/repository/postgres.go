package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresIngestRepository implements IngestRepository using PostgreSQL
type PostgresIngestRepository struct {
	db DBTX
}

// NewPostgresIngestRepository creates a new PostgreSQL ingestion repository
func NewPostgresIngestRepository(db DBTX) *PostgresIngestRepository {
	return &PostgresIngestRepository{db: db}
}

const batchColumns = `id, kind, source_name, source_url, uploaded_by, broker_id, status,
	processed_count, failed_count, created_at, finished_at`

// CreateBatch inserts a batch in processing state
func (r *PostgresIngestRepository) CreateBatch(ctx context.Context, batch *UploadBatch) error {
	query := `
		INSERT INTO upload_batches (id, kind, source_name, source_url, uploaded_by, broker_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	batch.Status = BatchProcessing
	batch.ProcessedCount, batch.FailedCount = 0, 0

	err := r.db.QueryRow(ctx, query,
		batch.ID,
		batch.Kind,
		batch.SourceName,
		batch.SourceURL,
		batch.UploadedBy,
		batch.BrokerID,
		batch.Status,
	).Scan(&batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload batch: %w", err)
	}
	return nil
}

// FinishBatch finalizes a processing batch
func (r *PostgresIngestRepository) FinishBatch(ctx context.Context, id uuid.UUID, status BatchStatus, processed, failed int) (*UploadBatch, error) {
	query := `
		UPDATE upload_batches
		SET status = $2, processed_count = $3, failed_count = $4, finished_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING ` + batchColumns

	batch, err := scanBatch(r.db.QueryRow(ctx, query, id, status, processed, failed))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetBatch(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrBatchFinalized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish upload batch: %w", err)
	}
	return batch, nil
}

// GetBatch retrieves a batch by ID
func (r *PostgresIngestRepository) GetBatch(ctx context.Context, id uuid.UUID) (*UploadBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM upload_batches WHERE id = $1`

	batch, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload batch: %w", err)
	}
	return batch, nil
}

// ListStaleBatches returns batches still processing that started before the cutoff
func (r *PostgresIngestRepository) ListStaleBatches(ctx context.Context, startedBefore time.Time) ([]*UploadBatch, error) {
	query := `SELECT ` + batchColumns + `
		FROM upload_batches
		WHERE status = 'processing' AND created_at < $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, startedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}
	defer rows.Close()

	var batches []*UploadBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func scanBatch(row pgx.Row) (*UploadBatch, error) {
	b := &UploadBatch{}
	err := row.Scan(
		&b.ID,
		&b.Kind,
		&b.SourceName,
		&b.SourceURL,
		&b.UploadedBy,
		&b.BrokerID,
		&b.Status,
		&b.ProcessedCount,
		&b.FailedCount,
		&b.CreatedAt,
		&b.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateQualification inserts a qualification record
func (r *PostgresIngestRepository) CreateQualification(ctx context.Context, rec *QualificationRecord) error {
	query := `
		INSERT INTO qualification_records
			(id, broker_id, batch_id, record_date, market, year, updated_factor, description, instrument, sequence, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.BrokerID,
		rec.BatchID,
		rec.Date,
		rec.Market,
		rec.Year,
		rec.UpdatedFactor,
		rec.Description,
		rec.Instrument,
		rec.Sequence,
		rec.Origin,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create qualification record: %w", err)
	}
	return nil
}

// CreateFactor inserts a valuation factor
func (r *PostgresIngestRepository) CreateFactor(ctx context.Context, factor *ValuationFactor) error {
	query := `
		INSERT INTO valuation_factors (id, batch_id, name, value, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, query,
		factor.ID,
		factor.BatchID,
		factor.Name,
		factor.Value,
		factor.StartDate,
		factor.EndDate,
	).Scan(&factor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create valuation factor: %w", err)
	}
	return nil
}

// ListQualificationsByBatch returns the records a batch wrote, oldest first
func (r *PostgresIngestRepository) ListQualificationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*QualificationRecord, error) {
	query := `
		SELECT id, broker_id, batch_id, record_date, market, year, updated_factor,
			description, instrument, sequence, origin, created_at
		FROM qualification_records
		WHERE batch_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list qualification records: %w", err)
	}
	defer rows.Close()

	var records []*QualificationRecord
	for rows.Next() {
		rec := &QualificationRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.BrokerID,
			&rec.BatchID,
			&rec.Date,
			&rec.Market,
			&rec.Year,
			&rec.UpdatedFactor,
			&rec.Description,
			&rec.Instrument,
			&rec.Sequence,
			&rec.Origin,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan qualification record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListFactorsByBatch returns the factors a batch wrote, oldest first
func (r *PostgresIngestRepository) ListFactorsByBatch(ctx context.Context, batchID uuid.UUID) ([]*ValuationFactor, error) {
	query := `
		SELECT id, batch_id, name, value, start_date, end_date, created_at
		FROM valuation_factors
		WHERE batch_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuation factors: %w", err)
	}
	defer rows.Close()

	var factors []*ValuationFactor
	for rows.Next() {
		f := &ValuationFactor{}
		if err := rows.Scan(&f.ID, &f.BatchID, &f.Name, &f.Value, &f.StartDate, &f.EndDate, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan valuation factor: %w", err)
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// RecordAudit appends an audit entry
func (r *PostgresIngestRepository) RecordAudit(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit_entries (id, user_id, action, entity, entity_id, result)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if _, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		entry.Result,
	); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// GetBrokerIDByUserID resolves the broker a user acts for
func (r *PostgresIngestRepository) GetBrokerIDByUserID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var brokerID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM brokers WHERE user_id = $1`, userID).Scan(&brokerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrBrokerNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve broker: %w", err)
	}
	return brokerID, nil
}
