// Package service is the batch ingestion controller: it opens a ledger entry,
// runs rows or confirmed PDF candidates through the mapper, persists each
// record and finalizes the batch with its counters.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/sniffer"
	"github.com/FACorreiaa/nuam-ingest/pkg/lock"
	"github.com/FACorreiaa/nuam-ingest/pkg/metrics"
	"github.com/FACorreiaa/nuam-ingest/pkg/storage"
)

var (
	ErrForbidden        = errors.New("not allowed to upload this kind of file")
	ErrUnsupportedKind  = errors.New("unsupported upload kind")
	ErrUploadInProgress = errors.New("another upload is in progress for this owner")
	ErrPreviewNotFound  = errors.New("preview not found or expired")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrUnreadableFile   = errors.New("unreadable file")
	ErrBatchAbandoned   = errors.New("batch aborted by a storage failure and left in processing")
	ErrFinalizeFailed   = errors.New("batch could not be finalized and was left in processing")
)

// PageReader turns PDF bytes into page texts.
type PageReader interface {
	ReadPages(data []byte) ([]parser.Page, error)
}

// Locker serializes uploads per owner.
type Locker interface {
	TryLock(ctx context.Context, key string) (*lock.Lease, error)
	Unlock(ctx context.Context, lease *lock.Lease) error
}

// Archiver keeps a copy of the uploaded file.
type Archiver interface {
	Upload(ctx context.Context, ownerID uuid.UUID, filename string, contentType string, r io.Reader, size int64) (*storage.FileInfo, error)
	Delete(ctx context.Context, path string) error
}

// SideEffect is the outcome of work done after a batch is finalized. A failed
// side effect never changes the batch outcome.
type SideEffect struct {
	Name string
	Err  error
}

func (e SideEffect) MarshalJSON() ([]byte, error) {
	out := struct {
		Name  string `json:"name"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}{Name: e.Name, OK: e.Err == nil}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

// RowFailure describes one rejected row or candidate. Row is the 1-based CSV
// row (header = 1) or, for PDF batches, the candidate index.
type RowFailure struct {
	Row   int      `json:"row"`
	Raw   []string `json:"raw,omitempty"`
	Error string   `json:"error"`
}

// BatchResult is the end-of-batch summary.
type BatchResult struct {
	Batch       *repository.UploadBatch `json:"batch"`
	Processed   int                     `json:"processed"`
	Failed      int                     `json:"failed"`
	RowErrors   []RowFailure            `json:"row_errors,omitempty"`
	SideEffects []SideEffect            `json:"side_effects,omitempty"`
}

// Summary is the user-facing message for the batch.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("%d procesados, %d fallidos", r.Processed, r.Failed)
}

// CSVUpload is one tabular file (CSV or XLSX) submitted for a record kind.
type CSVUpload struct {
	Kind       repository.RecordKind
	SourceName string
	Data       []byte
	// IncludeRowErrors copies row-level failures into the result.
	IncludeRowErrors bool
}

// BatchStart opens a ledger entry.
type BatchStart struct {
	Kind       repository.RecordKind
	SourceName string
	SourceURL  *string
	UploadedBy uuid.UUID
	BrokerID   *uuid.UUID
}

// IngestService orchestrates CSV batches and the two-phase PDF flow.
type IngestService struct {
	repo      repository.IngestRepository
	mapper    *mapper.Mapper
	extractor *extractor.Extractor
	pdf       PageReader
	previews  *PreviewStore
	locker    Locker   // Optional: nil disables per-owner serialization
	archive   Archiver // Optional: nil skips archiving
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	logger    *slog.Logger
}

// NewIngestService creates a new ingestion service
func NewIngestService(
	repo repository.IngestRepository,
	m *mapper.Mapper,
	ex *extractor.Extractor,
	pdf PageReader,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		repo:      repo,
		mapper:    m,
		extractor: ex,
		pdf:       pdf,
		previews:  NewPreviewStore(DefaultPreviewTTL),
		tracer:    otel.Tracer("github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"),
		now:       time.Now,
		logger:    logger,
	}
}

func (s *IngestService) WithPreviewStore(store *PreviewStore) *IngestService {
	s.previews = store
	return s
}

func (s *IngestService) WithLocker(l Locker) *IngestService {
	s.locker = l
	return s
}

func (s *IngestService) WithArchive(a Archiver) *IngestService {
	s.archive = a
	return s
}

func (s *IngestService) WithMetrics(m *metrics.Metrics) *IngestService {
	s.metrics = m
	return s
}

// WithClock overrides the clock used for confirmation dates and durations.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// StartBatch creates the ledger entry in processing state.
func (s *IngestService) StartBatch(ctx context.Context, in BatchStart) (*repository.UploadBatch, error) {
	batch := &repository.UploadBatch{
		Kind:       in.Kind,
		SourceName: in.SourceName,
		SourceURL:  in.SourceURL,
		UploadedBy: in.UploadedBy,
		BrokerID:   in.BrokerID,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to open batch: %w", err)
	}

	s.logger.Info("batch opened",
		slog.String("batch_id", batch.ID.String()),
		slog.String("kind", string(batch.Kind)),
		slog.String("source", batch.SourceName),
	)
	return batch, nil
}

// ProcessCSV runs a whole CSV upload as one batch. When the batch was opened
// the result is returned even alongside a batch-level error, so callers can
// report its id.
func (s *IngestService) ProcessCSV(ctx context.Context, p auth.Principal, up CSVUpload) (result *BatchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "IngestService.ProcessCSV", trace.WithAttributes(
		attribute.String("ingest.kind", string(up.Kind)),
		attribute.String("ingest.source", up.SourceName),
	))
	defer func() { endSpan(span, result, err) }()

	if !up.Kind.Valid() || up.Kind == repository.KindPDFQualifications {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, up.Kind)
	}

	brokerID, err := s.resolveOwner(ctx, p, up.Kind)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, ownerKey(p, brokerID))
	if err != nil {
		return nil, err
	}
	defer release()

	result = &BatchResult{}
	stored, archived := s.archiveUpload(ctx, p, up)
	if archived != nil {
		result.SideEffects = append(result.SideEffects, *archived)
	}
	var sourceURL *string
	if stored != nil {
		sourceURL = &stored.URL
	}

	start := s.now()
	batch, err := s.StartBatch(ctx, BatchStart{
		Kind:       up.Kind,
		SourceName: up.SourceName,
		SourceURL:  sourceURL,
		UploadedBy: p.ID,
		BrokerID:   brokerID,
	})
	if err != nil {
		if stored != nil {
			s.discardArchive(ctx, stored)
		}
		return nil, err
	}
	result.Batch = batch

	file, err := parser.OpenTable(up.Data)
	if err != nil {
		if ferr := s.abort(ctx, p, result, start, err); ferr != nil {
			return result, ferr
		}
		return result, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}

	s.logger.Info("reading upload",
		slog.String("batch_id", batch.ID.String()),
		slog.String("header_fingerprint", sniffer.Fingerprint(file.HeaderNames())),
		slog.Int("columns", len(file.HeaderNames())),
	)

	binding, err := s.mapper.Bind(up.Kind, file.HeaderNames())
	if err != nil {
		var missing *mapper.MissingColumnError
		if errors.As(err, &missing) {
			missing.Found = file.RawHeaderNames()
		}
		if ferr := s.abort(ctx, p, result, start, err); ferr != nil {
			return result, ferr
		}
		return result, err
	}

	mctx := mapper.Context{BatchID: batch.ID}
	if brokerID != nil {
		mctx.BrokerID = *brokerID
	}

	for row := range file.Rows(parser.RowOptions{DecimalColumn: binding.Column(mapper.FieldAmount)}) {
		rec, err := binding.MapRow(row, mctx)
		if err != nil {
			s.rowFailed(result, batch, row.Number, row.Raw, err, up.IncludeRowErrors)
			continue
		}
		if err := s.persist(ctx, rec); err != nil {
			s.logger.Error("batch aborted during row loop",
				slog.String("batch_id", batch.ID.String()),
				slog.Int("row", row.Number),
				slog.Any("error", err),
			)
			return result, fmt.Errorf("%w: row %d: %w", ErrBatchAbandoned, row.Number, err)
		}
		result.Processed++
	}

	if err := s.finish(ctx, p, result, repository.BatchCompleted, start); err != nil {
		return result, err
	}
	return result, nil
}

// ExtractPDF reads the PDF, extracts and deduplicates candidates across all
// pages and parks them in the preview store. It writes nothing.
func (s *IngestService) ExtractPDF(ctx context.Context, p auth.Principal, sourceName string, data []byte) (*Preview, error) {
	ctx, span := s.tracer.Start(ctx, "IngestService.ExtractPDF", trace.WithAttributes(
		attribute.String("ingest.source", sourceName),
	))
	defer span.End()

	brokerID, err := s.resolveOwner(ctx, p, repository.KindPDFQualifications)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pages, err := s.pdf.ReadPages(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}

	preview := s.Extract(pages)
	preview.Owner = p.ID
	preview.BrokerID = *brokerID
	preview.SourceName = sourceName
	s.previews.Put(preview)

	span.SetAttributes(
		attribute.Int("ingest.pages", len(pages)),
		attribute.Int("ingest.candidates", len(preview.Candidates)),
	)
	s.logger.Info("pdf preview ready",
		slog.String("preview_id", preview.ID.String()),
		slog.String("source", sourceName),
		slog.Int("pages", len(pages)),
		slog.Int("candidates", len(preview.Candidates)),
		slog.Int("factors", len(preview.Factors)),
	)
	return preview, nil
}

// Extract builds an unowned preview from already-read pages.
func (s *IngestService) Extract(pages []parser.Page) *Preview {
	preview := &Preview{
		ID:         uuid.New(),
		Pages:      len(pages),
		Candidates: []extractor.Candidate{},
		Factors:    []extractor.FactorCandidate{},
		CreatedAt:  s.now(),
	}
	for c := range s.extractor.ExtractDocument(pages) {
		preview.Candidates = append(preview.Candidates, c)
		s.metrics.CandidateExtracted(string(c.Pattern))
	}
	for f := range s.extractor.ExtractFactors(pages) {
		preview.Factors = append(preview.Factors, f)
	}
	return preview
}

// ConfirmPreview commits the selected candidates of a stored preview. The
// preview is consumed even when the batch fails.
func (s *IngestService) ConfirmPreview(ctx context.Context, p auth.Principal, previewID uuid.UUID, conf Confirmation) (*BatchResult, error) {
	preview, ok := s.previews.Get(previewID)
	if !ok || preview.Owner != p.ID {
		return nil, ErrPreviewNotFound
	}
	if err := conf.validate(preview); err != nil {
		return nil, err
	}

	brokerID, err := s.resolveOwner(ctx, p, repository.KindPDFQualifications)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx, ownerKey(p, brokerID))
	if err != nil {
		return nil, err
	}
	defer release()

	if _, ok := s.previews.Take(previewID); !ok {
		return nil, ErrPreviewNotFound
	}
	return s.confirm(ctx, p, *brokerID, preview, conf)
}

// ConfirmAndPersist commits selected candidates of a preview that did not go
// through the preview store, such as one built by Extract.
func (s *IngestService) ConfirmAndPersist(ctx context.Context, p auth.Principal, preview *Preview, conf Confirmation) (*BatchResult, error) {
	if err := conf.validate(preview); err != nil {
		return nil, err
	}
	brokerID, err := s.resolveOwner(ctx, p, repository.KindPDFQualifications)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx, ownerKey(p, brokerID))
	if err != nil {
		return nil, err
	}
	defer release()

	return s.confirm(ctx, p, *brokerID, preview, conf)
}

func (s *IngestService) confirm(ctx context.Context, p auth.Principal, brokerID uuid.UUID, preview *Preview, conf Confirmation) (result *BatchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "IngestService.ConfirmAndPersist", trace.WithAttributes(
		attribute.String("ingest.preview_id", preview.ID.String()),
	))
	defer func() { endSpan(span, result, err) }()

	start := s.now()
	batch, err := s.StartBatch(ctx, BatchStart{
		Kind:       repository.KindPDFQualifications,
		SourceName: preview.SourceName,
		UploadedBy: p.ID,
		BrokerID:   &brokerID,
	})
	if err != nil {
		return nil, err
	}
	result = &BatchResult{Batch: batch}

	qctx := mapper.Context{BrokerID: brokerID, BatchID: batch.ID, Origin: repository.OriginPDF}
	for _, sel := range conf.Selections {
		if !sel.Included {
			continue
		}
		c := preview.Candidates[sel.Index]
		fields := sel.apply(candidateFields(c))

		rec, err := s.mapper.MapFields(repository.KindPDFQualifications, fields, qctx)
		if err != nil {
			s.rowFailed(result, batch, sel.Index, fieldValues(fields), err, true)
			continue
		}
		if err := s.persist(ctx, rec); err != nil {
			return result, fmt.Errorf("%w: candidate %d: %w", ErrBatchAbandoned, sel.Index, err)
		}
		result.Processed++
	}

	fctx := mapper.Context{BatchID: batch.ID}
	today := s.now().Format(time.DateOnly)
	for _, sel := range conf.FactorSelections {
		if !sel.Included {
			continue
		}
		f := preview.Factors[sel.Index]
		fields := sel.apply(map[string]string{
			mapper.FieldName:      f.Name,
			mapper.FieldValue:     fmt.Sprintf("%d", f.Value),
			mapper.FieldStartDate: today,
		})

		rec, err := s.mapper.MapFields(repository.KindFactors, fields, fctx)
		if err != nil {
			s.rowFailed(result, batch, sel.Index, fieldValues(fields), err, true)
			continue
		}
		if err := s.persist(ctx, rec); err != nil {
			return result, fmt.Errorf("%w: factor %d: %w", ErrBatchAbandoned, sel.Index, err)
		}
		result.Processed++
	}

	if err := s.finish(ctx, p, result, repository.BatchCompleted, start); err != nil {
		return result, err
	}
	return result, nil
}

// GetBatch returns a batch visible to p.
func (s *IngestService) GetBatch(ctx context.Context, p auth.Principal, id uuid.UUID) (*repository.UploadBatch, error) {
	batch, err := s.repo.GetBatch(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	if !s.canSee(ctx, p, batch) {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// BatchRecords is a batch with the records it wrote.
type BatchRecords struct {
	Batch          *repository.UploadBatch
	Qualifications []*repository.QualificationRecord
	Factors        []*repository.ValuationFactor
}

func (s *IngestService) GetBatchRecords(ctx context.Context, p auth.Principal, id uuid.UUID) (*BatchRecords, error) {
	batch, err := s.GetBatch(ctx, p, id)
	if err != nil {
		return nil, err
	}
	quals, err := s.repo.ListQualificationsByBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list qualifications: %w", err)
	}
	factors, err := s.repo.ListFactorsByBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list factors: %w", err)
	}
	return &BatchRecords{Batch: batch, Qualifications: quals, Factors: factors}, nil
}

// StaleBatches lists batches still processing after olderThan and publishes
// the count as a gauge. It never mutates them.
func (s *IngestService) StaleBatches(ctx context.Context, olderThan time.Duration) ([]*repository.UploadBatch, error) {
	batches, err := s.repo.ListStaleBatches(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}
	s.metrics.SetStaleBatches(len(batches))
	return batches, nil
}

func (s *IngestService) canSee(ctx context.Context, p auth.Principal, batch *repository.UploadBatch) bool {
	if p.Role == auth.RoleAdmin || batch.UploadedBy == p.ID {
		return true
	}
	if batch.BrokerID == nil {
		return false
	}
	brokerID, err := s.repo.GetBrokerIDByUserID(ctx, p.ID)
	return err == nil && brokerID == *batch.BrokerID
}

// resolveOwner applies the role gate and returns the broker that will own the
// records, or nil for kinds that are not broker-owned.
func (s *IngestService) resolveOwner(ctx context.Context, p auth.Principal, kind repository.RecordKind) (*uuid.UUID, error) {
	if p.ID == uuid.Nil || !p.HasRole(auth.RoleAdmin, auth.RoleBroker) {
		return nil, ErrForbidden
	}
	if !kind.NeedsBroker() {
		return nil, nil
	}

	brokerID, err := s.repo.GetBrokerIDByUserID(ctx, p.ID)
	if errors.Is(err, repository.ErrBrokerNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broker: %w", err)
	}
	return &brokerID, nil
}

func ownerKey(p auth.Principal, brokerID *uuid.UUID) string {
	if brokerID != nil {
		return "upload:broker:" + brokerID.String()
	}
	return "upload:user:" + p.ID.String()
}

func (s *IngestService) acquire(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lease, err := s.locker.TryLock(ctx, key)
	if errors.Is(err, lock.ErrHeld) {
		s.metrics.LockConflict()
		return nil, ErrUploadInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire upload lock: %w", err)
	}
	return func() {
		// the request context may already be done
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lease); err != nil {
			s.logger.Warn("failed to release upload lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

func (s *IngestService) archiveUpload(ctx context.Context, p auth.Principal, up CSVUpload) (*storage.FileInfo, *SideEffect) {
	if s.archive == nil {
		return nil, nil
	}
	info, err := s.archive.Upload(ctx, p.ID, up.SourceName, "text/csv", bytes.NewReader(up.Data), int64(len(up.Data)))
	if err != nil {
		s.logger.Warn("failed to archive upload", slog.String("source", up.SourceName), slog.Any("error", err))
		return nil, &SideEffect{Name: "archive", Err: err}
	}
	return info, &SideEffect{Name: "archive"}
}

// discardArchive removes an archived upload that no batch refers to.
func (s *IngestService) discardArchive(ctx context.Context, info *storage.FileInfo) {
	if err := s.archive.Delete(ctx, info.Path); err != nil {
		s.logger.Warn("failed to remove orphaned upload",
			slog.String("path", info.Path),
			slog.Any("error", err),
		)
	}
}

func (s *IngestService) persist(ctx context.Context, rec mapper.Record) error {
	switch {
	case rec.Factor != nil:
		return s.repo.CreateFactor(ctx, rec.Factor)
	case rec.Qualification != nil:
		return s.repo.CreateQualification(ctx, rec.Qualification)
	}
	return fmt.Errorf("empty %s record", rec.Kind)
}

func (s *IngestService) rowFailed(result *BatchResult, batch *repository.UploadBatch, row int, raw []string, err error, keep bool) {
	result.Failed++
	s.logger.Warn("row rejected",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("row", row),
		slog.Any("raw", raw),
		slog.Any("error", err),
	)
	if keep {
		result.RowErrors = append(result.RowErrors, RowFailure{Row: row, Raw: raw, Error: err.Error()})
	}
}

// abort finalizes a batch that failed before its row loop. It returns an
// error only when the batch could not be finalized.
func (s *IngestService) abort(ctx context.Context, p auth.Principal, result *BatchResult, start time.Time, cause error) error {
	s.logger.Warn("batch rejected before processing rows",
		slog.String("batch_id", result.Batch.ID.String()),
		slog.Any("error", cause),
	)
	result.Processed, result.Failed = 0, 0
	return s.finish(ctx, p, result, repository.BatchError, start)
}

// finish moves the batch to its terminal status exactly once and records the
// audit entry. A storage failure leaves the batch in processing, skips the
// audit and is returned wrapped in ErrFinalizeFailed.
func (s *IngestService) finish(ctx context.Context, p auth.Principal, result *BatchResult, status repository.BatchStatus, start time.Time) error {
	batch, err := s.repo.FinishBatch(ctx, result.Batch.ID, status, result.Processed, result.Failed)
	switch {
	case errors.Is(err, repository.ErrBatchFinalized):
		s.logger.Info("batch already finalized", slog.String("batch_id", result.Batch.ID.String()))
		if batch != nil {
			result.Batch = batch
		}
		return nil
	case err != nil:
		s.logger.Error("failed to finalize batch",
			slog.String("batch_id", result.Batch.ID.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}
	result.Batch = batch

	s.logger.Info("batch finalized",
		slog.String("batch_id", batch.ID.String()),
		slog.String("status", string(batch.Status)),
		slog.Int("processed", batch.ProcessedCount),
		slog.Int("failed", batch.FailedCount),
	)
	s.metrics.BatchFinished(string(batch.Kind), string(batch.Status), batch.ProcessedCount, batch.FailedCount, s.now().Sub(start))
	result.SideEffects = append(result.SideEffects, s.audit(ctx, p, batch, result))
	return nil
}

var auditActions = map[repository.RecordKind]string{
	repository.KindFactors:           "CARGA_FACTORES",
	repository.KindAmounts:           "CARGA_MONTOS",
	repository.KindQualifications:    "CARGA_CALIFICACIONES",
	repository.KindPDFQualifications: "CARGA_PDF",
}

func (s *IngestService) audit(ctx context.Context, p auth.Principal, batch *repository.UploadBatch, result *BatchResult) SideEffect {
	outcome := result.Summary()
	if batch.Status == repository.BatchError {
		outcome += " (error)"
	}
	err := s.repo.RecordAudit(ctx, &repository.AuditEntry{
		UserID:   p.ID,
		Action:   auditActions[batch.Kind],
		Entity:   "upload_batch",
		EntityID: batch.ID,
		Result:   outcome,
	})
	if err != nil {
		s.logger.Warn("failed to record audit entry",
			slog.String("batch_id", batch.ID.String()),
			slog.Any("error", err),
		)
	}
	return SideEffect{Name: "audit", Err: err}
}

func endSpan(span trace.Span, result *BatchResult, err error) {
	if result != nil && result.Batch != nil {
		span.SetAttributes(
			attribute.String("ingest.batch_id", result.Batch.ID.String()),
			attribute.Int("ingest.processed", result.Processed),
			attribute.Int("ingest.failed", result.Failed),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
