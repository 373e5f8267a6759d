package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/pkg/lock"
	"github.com/FACorreiaa/nuam-ingest/pkg/storage"
)

var errStorageDown = errors.New("storage unavailable")

// flakyRepo fails selected writes of an otherwise working memory repository.
type flakyRepo struct {
	*repository.MemoryRepository
	failQualificationsAfter int // -1 never fails
	created                 int
	auditErr                error
	finishErr               error
	createBatchErr          error
}

func (f *flakyRepo) CreateBatch(ctx context.Context, batch *repository.UploadBatch) error {
	if f.createBatchErr != nil {
		return f.createBatchErr
	}
	return f.MemoryRepository.CreateBatch(ctx, batch)
}

func (f *flakyRepo) FinishBatch(ctx context.Context, id uuid.UUID, status repository.BatchStatus, processed, failed int) (*repository.UploadBatch, error) {
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	return f.MemoryRepository.FinishBatch(ctx, id, status, processed, failed)
}

func (f *flakyRepo) CreateQualification(ctx context.Context, rec *repository.QualificationRecord) error {
	if f.failQualificationsAfter >= 0 && f.created >= f.failQualificationsAfter {
		return errStorageDown
	}
	f.created++
	return f.MemoryRepository.CreateQualification(ctx, rec)
}

func (f *flakyRepo) RecordAudit(ctx context.Context, entry *repository.AuditEntry) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	return f.MemoryRepository.RecordAudit(ctx, entry)
}

type fakePages struct {
	pages []parser.Page
	err   error
}

func (f fakePages) ReadPages([]byte) ([]parser.Page, error) {
	return f.pages, f.err
}

type fakeArchive struct {
	err     error
	calls   int
	deleted []string
}

func (f *fakeArchive) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeArchive) Upload(_ context.Context, ownerID uuid.UUID, filename string, contentType string, r io.Reader, size int64) (*storage.FileInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(r)
	return &storage.FileInfo{
		Name:        filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		Path:        ownerID.String() + "/" + filename,
		URL:         "s3://uploads/" + ownerID.String() + "/" + filename,
	}, nil
}

type fixture struct {
	mem      *repository.MemoryRepository
	repo     *flakyRepo
	svc      *IngestService
	broker   auth.Principal
	brokerID uuid.UUID
	admin    auth.Principal
	now      time.Time
}

func newFixture(t *testing.T, pages ...parser.Page) *fixture {
	t.Helper()

	now := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	mem := repository.NewMemoryRepository().WithClock(func() time.Time { return now })
	repo := &flakyRepo{MemoryRepository: mem, failQualificationsAfter: -1}

	f := &fixture{
		mem:      mem,
		repo:     repo,
		broker:   auth.Principal{ID: uuid.New(), Role: auth.RoleBroker},
		brokerID: uuid.New(),
		admin:    auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin},
		now:      now,
	}
	mem.AddBroker(f.broker.ID, f.brokerID)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewIngestService(
		repo,
		mapper.New(nil, mapper.Options{EnforceYearMatch: true}),
		extractor.New(extractor.Options{}),
		fakePages{pages: pages},
		logger,
	).WithClock(func() time.Time { return now }).
		WithLocker(lock.NewMemoryLocker(time.Minute))
	return f
}

func TestProcessCSV_SplitDecimalAmount(t *testing.T) {
	f := newFixture(t)
	data := "fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1.500,50,Prueba\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind:       repository.KindAmounts,
		SourceName: "montos.csv",
		Data:       []byte(data),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "1 procesados, 0 fallidos", res.Summary())
	assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
	assert.Equal(t, 1, res.Batch.ProcessedCount)
	require.NotNil(t, res.Batch.BrokerID)
	assert.Equal(t, f.brokerID, *res.Batch.BrokerID)

	recs := f.mem.Qualifications()
	require.Len(t, recs, 1)
	assert.True(t, decimal.RequireFromString("1500.50").Equal(recs[0].UpdatedFactor))
	assert.Equal(t, f.brokerID, recs[0].BrokerID)
	assert.Equal(t, repository.OriginCSV, recs[0].Origin)
	require.NotNil(t, recs[0].BatchID)
	assert.Equal(t, res.Batch.ID, *recs[0].BatchID)

	audits := f.mem.AuditEntries()
	require.Len(t, audits, 1)
	assert.Equal(t, "CARGA_MONTOS", audits[0].Action)
	assert.Equal(t, "1 procesados, 0 fallidos", audits[0].Result)
	assert.Equal(t, res.Batch.ID, audits[0].EntityID)
}

func TestProcessCSV_FractionWithLeadingZero(t *testing.T) {
	f := newFixture(t)
	data := "fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,0.125,Prueba\n2024-03-02,Acciones,2024,1.500,Miles\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte(data),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	recs := f.mem.Qualifications()
	require.Len(t, recs, 2)
	assert.True(t, decimal.RequireFromString("0.125").Equal(recs[0].UpdatedFactor), "got %s", recs[0].UpdatedFactor)
	assert.True(t, decimal.NewFromInt(1500).Equal(recs[1].UpdatedFactor), "got %s", recs[1].UpdatedFactor)
}

func TestProcessCSV_PartialFailureIsolation(t *testing.T) {
	data := strings.Join([]string{
		"fecha;mercado;ano;monto;descripcion",
		"2024-03-01;Acciones;2024;100,50;ok",
		"2024-02-30;Acciones;2024;100;bad date",
		"2024-03-02;Bonos;2024;1.000,00;ok",
		"2024-03-03;Bonos;2024;abc;bad amount",
		"2024-03-04;CFI;2024;7;ok",
	}, "\n")

	tests := []struct {
		name          string
		includeErrors bool
		wantRowErrors []int
	}{
		{name: "summary only", includeErrors: false},
		{name: "with row errors", includeErrors: true, wantRowErrors: []int{3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
				Kind:             repository.KindQualifications,
				SourceName:       "calificaciones.csv",
				Data:             []byte(data),
				IncludeRowErrors: tt.includeErrors,
			})

			require.NoError(t, err)
			assert.Equal(t, 3, res.Processed)
			assert.Equal(t, 2, res.Failed)
			assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
			assert.Len(t, f.mem.Qualifications(), 3)

			var rows []int
			for _, re := range res.RowErrors {
				rows = append(rows, re.Row)
			}
			assert.Equal(t, tt.wantRowErrors, rows)
		})
	}
}

func TestProcessCSV_MissingHeaderAbortsBeforeRows(t *testing.T) {
	f := newFixture(t)
	data := "fecha,mercado,monto,descripcion\n2024-03-01,Acciones,100,x\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind:       repository.KindAmounts,
		SourceName: "montos.csv",
		Data:       []byte(data),
	})

	require.ErrorIs(t, err, mapper.ErrMissingColumn)
	var mce *mapper.MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{mapper.FieldYear}, mce.Columns)
	assert.Equal(t, []string{"fecha", "mercado", "monto", "descripcion"}, mce.Found)

	require.NotNil(t, res)
	assert.Equal(t, repository.BatchError, res.Batch.Status)
	assert.Equal(t, 0, res.Batch.ProcessedCount)
	assert.Equal(t, 0, res.Batch.FailedCount)
	assert.Empty(t, f.mem.Qualifications())

	audits := f.mem.AuditEntries()
	require.Len(t, audits, 1)
	assert.Equal(t, "0 procesados, 0 fallidos (error)", audits[0].Result)
}

func TestProcessCSV_EmptyFileIsBatchError(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
		Kind:       repository.KindFactors,
		SourceName: "factores.csv",
		Data:       []byte("   \n"),
	})

	require.ErrorIs(t, err, ErrUnreadableFile)
	require.NotNil(t, res)
	assert.Equal(t, repository.BatchError, res.Batch.Status)
}

func TestProcessCSV_AllRowsFailedStillCompleted(t *testing.T) {
	f := newFixture(t)
	data := "fecha,mercado,ano,monto,descripcion\nnope,Acciones,2024,1,x\n2024-01-01,Acciones,2023,1,x\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte(data),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
}

func TestProcessCSV_StorageFailureLeavesBatchProcessing(t *testing.T) {
	f := newFixture(t)
	f.repo.failQualificationsAfter = 1
	data := "fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,a\n2024-03-02,Acciones,2024,2,b\n2024-03-03,Acciones,2024,3,c\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte(data),
	})

	require.ErrorIs(t, err, ErrBatchAbandoned)
	require.ErrorIs(t, err, errStorageDown)
	require.NotNil(t, res)

	stored, err := f.mem.GetBatch(context.Background(), res.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchProcessing, stored.Status)
	assert.Nil(t, stored.FinishedAt)
	assert.Len(t, f.mem.Qualifications(), 1)
	assert.Empty(t, f.mem.AuditEntries())
}

func TestProcessCSV_FinalizeFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	valid := "fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,a\n"

	tests := []struct {
		name      string
		data      string
		processed int
	}{
		{"after row loop", valid, 1},
		{"while rejecting missing headers", "fecha,mercado\n2024-03-01,Acciones\n", 0},
		{"while rejecting unreadable file", "   \n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.finishErr = errStorageDown

			res, err := f.svc.ProcessCSV(ctx, f.broker, CSVUpload{
				Kind: repository.KindAmounts,
				Data: []byte(tt.data),
			})

			require.ErrorIs(t, err, ErrFinalizeFailed)
			require.ErrorIs(t, err, errStorageDown)
			require.NotNil(t, res)
			assert.Equal(t, tt.processed, res.Processed)
			assert.Empty(t, res.SideEffects)

			stored, err := f.mem.GetBatch(ctx, res.Batch.ID)
			require.NoError(t, err)
			assert.Equal(t, repository.BatchProcessing, stored.Status)
			assert.Empty(t, f.mem.AuditEntries())
		})
	}
}

func TestProcessCSV_AuditFailureIsSideEffect(t *testing.T) {
	f := newFixture(t)
	f.repo.auditErr = errors.New("audit table locked")
	data := "nombre_factor,valor_factor,fecha_inicio\nF1,120,2024-01-01\n"

	res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
		Kind: repository.KindFactors,
		Data: []byte(data),
	})

	require.NoError(t, err)
	assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
	assert.Nil(t, res.Batch.BrokerID)
	require.Len(t, res.SideEffects, 1)
	assert.Equal(t, "audit", res.SideEffects[0].Name)
	assert.EqualError(t, res.SideEffects[0].Err, "audit table locked")

	factors := f.mem.Factors()
	require.Len(t, factors, 1)
	assert.Equal(t, int64(120), factors[0].Value)
	assert.Equal(t, factors[0].StartDate, factors[0].EndDate)
}

func TestProcessCSV_Authorization(t *testing.T) {
	f := newFixture(t)
	data := []byte("fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,x\n")

	tests := []struct {
		name string
		p    auth.Principal
		kind repository.RecordKind
		want error
	}{
		{"admin without broker binding", f.admin, repository.KindAmounts, ErrForbidden},
		{"unknown role", auth.Principal{ID: uuid.New(), Role: "guest"}, repository.KindFactors, ErrForbidden},
		{"anonymous", auth.Principal{}, repository.KindFactors, ErrForbidden},
		{"pdf kind over csv", f.broker, repository.KindPDFQualifications, ErrUnsupportedKind},
		{"unknown kind", f.broker, "bogus", ErrUnsupportedKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.ProcessCSV(context.Background(), tt.p, CSVUpload{Kind: tt.kind, Data: data})

			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
	stale, err := f.mem.ListStaleBatches(context.Background(), f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestProcessCSV_UploadInProgress(t *testing.T) {
	f := newFixture(t)
	locker := lock.NewMemoryLocker(time.Minute)
	f.svc.WithLocker(locker)

	lease, err := locker.TryLock(context.Background(), "upload:broker:"+f.brokerID.String())
	require.NoError(t, err)

	_, err = f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte("fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,x\n"),
	})
	require.ErrorIs(t, err, ErrUploadInProgress)

	require.NoError(t, locker.Unlock(context.Background(), lease))
	res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte("fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,x\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestProcessCSV_Archive(t *testing.T) {
	t.Run("stored url recorded on batch", func(t *testing.T) {
		f := newFixture(t)
		archive := &fakeArchive{}
		f.svc.WithArchive(archive)

		res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
			Kind:       repository.KindFactors,
			SourceName: "factores.csv",
			Data:       []byte("name,value,start_date\nF1,1,2024-01-01\n"),
		})

		require.NoError(t, err)
		require.NotNil(t, res.Batch.SourceURL)
		assert.Equal(t, "s3://uploads/"+f.admin.ID.String()+"/factores.csv", *res.Batch.SourceURL)
		assert.Equal(t, 1, archive.calls)
		assert.Empty(t, archive.deleted)
	})

	t.Run("upload without a batch is removed", func(t *testing.T) {
		f := newFixture(t)
		f.repo.createBatchErr = errStorageDown
		archive := &fakeArchive{}
		f.svc.WithArchive(archive)

		res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
			Kind:       repository.KindFactors,
			SourceName: "factores.csv",
			Data:       []byte("name,value,start_date\nF1,1,2024-01-01\n"),
		})

		require.ErrorIs(t, err, errStorageDown)
		assert.Nil(t, res)
		assert.Equal(t, 1, archive.calls)
		assert.Equal(t, []string{f.admin.ID.String() + "/factores.csv"}, archive.deleted)
	})

	t.Run("archive failure does not block the batch", func(t *testing.T) {
		f := newFixture(t)
		f.svc.WithArchive(&fakeArchive{err: errors.New("bucket missing")})

		res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
			Kind: repository.KindFactors,
			Data: []byte("name,value,start_date\nF1,1,2024-01-01\n"),
		})

		require.NoError(t, err)
		assert.Nil(t, res.Batch.SourceURL)
		assert.Equal(t, 1, res.Processed)
		require.NotEmpty(t, res.SideEffects)
		assert.Equal(t, "archive", res.SideEffects[0].Name)
		assert.Error(t, res.SideEffects[0].Err)
	})
}

func TestExtractPDF_PreviewWritesNothing(t *testing.T) {
	f := newFixture(t,
		parser.Page{Number: 1, Text: "Fecha: 2024-01-10 Mercado: Bonos Año: 2024 Factor: 250,75"},
		parser.Page{Number: 3, Text: "| 2024-01-10 | Bonos | 2024 | 250,75 |\nFactor: F9 Valor: 40"},
	)

	preview, err := f.svc.ExtractPDF(context.Background(), f.broker, "informe.pdf", []byte("%PDF"))

	require.NoError(t, err)
	require.Len(t, preview.Candidates, 1)
	c := preview.Candidates[0]
	assert.Equal(t, normalizer.MarketBonds, c.Market)
	assert.True(t, decimal.RequireFromString("250.75").Equal(c.Amount))
	assert.Equal(t, 2024, c.Year)
	require.Len(t, preview.Factors, 1)
	assert.Equal(t, "F9", preview.Factors[0].Name)

	assert.Equal(t, f.broker.ID, preview.Owner)
	assert.Equal(t, f.brokerID, preview.BrokerID)
	assert.Equal(t, f.now.Add(DefaultPreviewTTL), preview.ExpiresAt)

	stale, err := f.mem.ListStaleBatches(context.Background(), f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Empty(t, f.mem.Qualifications())
	assert.Empty(t, f.mem.AuditEntries())
}

func TestExtractPDF_UnreadableFile(t *testing.T) {
	f := newFixture(t)
	f.svc.pdf = fakePages{err: parser.ErrUnreadablePDF}

	_, err := f.svc.ExtractPDF(context.Background(), f.broker, "roto.pdf", []byte("nope"))

	assert.ErrorIs(t, err, ErrUnreadableFile)
	assert.ErrorIs(t, err, parser.ErrUnreadablePDF)
}

func TestConfirmPreview(t *testing.T) {
	pages := []parser.Page{
		{Number: 1, Text: "Fecha: 2024-01-10 Mercado: Bonos Año: 2024 Factor: 250,75\nFecha: 2024-01-11 Mercado: Monedas Año: 2024 Factor: 99"},
		{Number: 2, Text: "Fecha: 2024-01-12 Mercado: Derivados Año: 2024 Factor: 10\nFactor F2: 35"},
	}
	ctx := context.Background()

	t.Run("persists included candidates with edits", func(t *testing.T) {
		f := newFixture(t, pages...)
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)
		require.Len(t, preview.Candidates, 3)

		edited := "1.250,00"
		res, err := f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{
			Selections: []Selection{
				{Index: 0, Included: true},
				{Index: 1, Included: false},
				{Index: 2, Included: true, Amount: &edited},
			},
			FactorSelections: []FactorSelection{{Index: 0, Included: true}},
		})

		require.NoError(t, err)
		assert.Equal(t, 3, res.Processed)
		assert.Equal(t, 0, res.Failed)
		assert.Equal(t, repository.KindPDFQualifications, res.Batch.Kind)
		assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
		assert.Equal(t, "informe.pdf", res.Batch.SourceName)

		recs := f.mem.Qualifications()
		require.Len(t, recs, 2)
		assert.Equal(t, normalizer.MarketBonds, recs[0].Market)
		assert.Equal(t, repository.OriginPDF, recs[0].Origin)
		assert.Equal(t, "Extraído de PDF pág 1", recs[0].Description)
		assert.Equal(t, f.brokerID, recs[0].BrokerID)
		assert.True(t, decimal.NewFromInt(1250).Equal(recs[1].UpdatedFactor))

		factors := f.mem.Factors()
		require.Len(t, factors, 1)
		assert.Equal(t, "F2", factors[0].Name)
		assert.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), factors[0].StartDate)
		assert.Equal(t, factors[0].StartDate, factors[0].EndDate)

		audits := f.mem.AuditEntries()
		require.Len(t, audits, 1)
		assert.Equal(t, "CARGA_PDF", audits[0].Action)

		_, err = f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{})
		assert.ErrorIs(t, err, ErrPreviewNotFound)
	})

	t.Run("failed re-normalization is counted, batch completes", func(t *testing.T) {
		f := newFixture(t, pages...)
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)

		bad := "abc"
		wrongYear := "2023"
		res, err := f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{
			Selections: []Selection{
				{Index: 0, Included: true, Amount: &bad},
				{Index: 1, Included: true, Year: &wrongYear},
			},
		})

		require.NoError(t, err)
		assert.Equal(t, 0, res.Processed)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
		require.Len(t, res.RowErrors, 2)
		assert.Equal(t, 0, res.RowErrors[0].Row)
	})

	t.Run("other principal cannot confirm", func(t *testing.T) {
		f := newFixture(t, pages...)
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)

		other := auth.Principal{ID: uuid.New(), Role: auth.RoleBroker}
		f.mem.AddBroker(other.ID, uuid.New())

		_, err = f.svc.ConfirmPreview(ctx, other, preview.ID, IncludeAll(preview))
		assert.ErrorIs(t, err, ErrPreviewNotFound)

		_, ok := f.svc.previews.Get(preview.ID)
		assert.True(t, ok)
	})

	t.Run("out of range selection opens no batch", func(t *testing.T) {
		f := newFixture(t, pages...)
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)

		_, err = f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{
			Selections: []Selection{{Index: 7, Included: true}},
		})
		assert.ErrorIs(t, err, ErrInvalidSelection)

		_, err = f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{
			Selections: []Selection{{Index: 0, Included: true}, {Index: 0, Included: false}},
		})
		assert.ErrorIs(t, err, ErrInvalidSelection)

		stale, err := f.mem.ListStaleBatches(ctx, f.now.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)
	})

	t.Run("finalize failure is returned", func(t *testing.T) {
		f := newFixture(t, pages...)
		f.repo.finishErr = errStorageDown
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)

		res, err := f.svc.ConfirmPreview(ctx, f.broker, preview.ID, IncludeAll(preview))

		require.ErrorIs(t, err, ErrFinalizeFailed)
		require.NotNil(t, res)
		assert.Equal(t, len(preview.Candidates)+len(preview.Factors), res.Processed)
		stored, err := f.mem.GetBatch(ctx, res.Batch.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.BatchProcessing, stored.Status)
		assert.Empty(t, f.mem.AuditEntries())
	})

	t.Run("nothing included still completes", func(t *testing.T) {
		f := newFixture(t, pages...)
		preview, err := f.svc.ExtractPDF(ctx, f.broker, "informe.pdf", nil)
		require.NoError(t, err)

		res, err := f.svc.ConfirmPreview(ctx, f.broker, preview.ID, Confirmation{})

		require.NoError(t, err)
		assert.Equal(t, 0, res.Processed)
		assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
	})
}

func TestConfirmAndPersist_WithoutStore(t *testing.T) {
	f := newFixture(t)
	preview := f.svc.Extract([]parser.Page{{Number: 1, Text: "Fecha: 10/01/2024 Mercado: Acciones Año: 2024 Factor: 1.234,5"}})

	res, err := f.svc.ConfirmAndPersist(context.Background(), f.broker, preview, IncludeAll(preview))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	recs := f.mem.Qualifications()
	require.Len(t, recs, 1)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(recs[0].UpdatedFactor))
}

func TestGetBatch_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.ProcessCSV(ctx, f.broker, CSVUpload{
		Kind: repository.KindAmounts,
		Data: []byte("fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1,x\n"),
	})
	require.NoError(t, err)

	colleague := auth.Principal{ID: uuid.New(), Role: auth.RoleBroker}
	f.mem.AddBroker(colleague.ID, f.brokerID)
	stranger := auth.Principal{ID: uuid.New(), Role: auth.RoleBroker}

	for _, p := range []auth.Principal{f.broker, f.admin, colleague} {
		got, err := f.svc.GetBatch(ctx, p, res.Batch.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Batch.ID, got.ID)
	}

	_, err = f.svc.GetBatch(ctx, stranger, res.Batch.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = f.svc.GetBatch(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrBatchNotFound)

	records, err := f.svc.GetBatchRecords(ctx, f.admin, res.Batch.ID)
	require.NoError(t, err)
	assert.Len(t, records.Qualifications, 1)
	assert.Empty(t, records.Factors)
}

func TestStaleBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open, err := f.svc.StartBatch(ctx, BatchStart{Kind: repository.KindAmounts, SourceName: "x.csv", UploadedBy: f.broker.ID})
	require.NoError(t, err)

	f.svc.WithClock(func() time.Time { return f.now.Add(2 * time.Hour) })
	stale, err := f.svc.StaleBatches(ctx, time.Hour)

	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, open.ID, stale[0].ID)
	assert.Equal(t, repository.BatchProcessing, stale[0].Status)
}

func TestSideEffect_MarshalJSON(t *testing.T) {
	ok, err := SideEffect{Name: "audit"}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"audit","ok":true}`, string(ok))

	failed, err := SideEffect{Name: "archive", Err: errors.New("boom")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"archive","ok":false,"error":"boom"}`, string(failed))
}
