package mapper

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
)

func rowsOf(t *testing.T, csv string, decimalColumn func(*Binding) string, b *Binding) []parser.Row {
	t.Helper()
	f, err := parser.OpenCSV([]byte(csv))
	require.NoError(t, err)
	opts := parser.RowOptions{}
	if decimalColumn != nil {
		opts.DecimalColumn = decimalColumn(b)
	}
	return slices.Collect(f.Rows(opts))
}

func bind(t *testing.T, m *Mapper, kind repository.RecordKind, csv string) *Binding {
	t.Helper()
	f, err := parser.OpenCSV([]byte(csv))
	require.NoError(t, err)
	b, err := m.Bind(kind, f.Config.Headers)
	require.NoError(t, err)
	return b
}

func amountColumn(b *Binding) string { return b.Column(FieldAmount) }

func TestBind_MissingColumns(t *testing.T) {
	m := New(nil, Options{})

	_, err := m.Bind(repository.KindAmounts, []string{"fecha", "mercado", "monto"})

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Equal(t, []string{FieldYear, FieldDescription}, missing.Columns)
	assert.Equal(t, repository.KindAmounts, missing.Kind)
}

func TestBind_UnknownKind(t *testing.T) {
	_, err := New(nil, Options{}).Bind("trades", []string{"a"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestBinding_MapRow_Qualifications(t *testing.T) {
	m := New(nil, Options{EnforceYearMatch: true})
	brokerID := uuid.New()
	batchID := uuid.New()
	ctx := Context{BrokerID: brokerID, BatchID: batchID}

	t.Run("split decimal comma row", func(t *testing.T) {
		csv := "fecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,1.500,50,Prueba\n"
		b := bind(t, m, repository.KindAmounts, csv)
		rows := rowsOf(t, csv, amountColumn, b)
		require.Len(t, rows, 1)

		rec, err := b.MapRow(rows[0], ctx)

		require.NoError(t, err)
		require.NotNil(t, rec.Qualification)
		q := rec.Qualification
		assert.Equal(t, repository.KindAmounts, rec.Kind)
		assert.True(t, decimal.RequireFromString("1500.50").Equal(q.UpdatedFactor))
		assert.Equal(t, normalizer.MarketStocks, q.Market)
		assert.Equal(t, 2024, q.Year)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.Date)
		assert.Equal(t, "Prueba", q.Description)
		assert.Equal(t, brokerID, q.BrokerID)
		require.NotNil(t, q.BatchID)
		assert.Equal(t, batchID, *q.BatchID)
		assert.Equal(t, repository.OriginCSV, q.Origin)
		assert.Equal(t, repository.DefaultSequence, q.Sequence)
	})

	t.Run("english headers with optional columns", func(t *testing.T) {
		csv := "date;market;year;factor;description;instrument;sequence\n01/03/2024;CFI;2024;0,1234567;x;CFI-A;20001\n"
		b := bind(t, m, repository.KindQualifications, csv)
		rows := rowsOf(t, csv, nil, b)

		rec, err := b.MapRow(rows[0], ctx)

		require.NoError(t, err)
		q := rec.Qualification
		assert.Equal(t, normalizer.MarketCFI, q.Market)
		assert.Equal(t, "0.1235", q.UpdatedFactor.String())
		assert.Equal(t, "CFI-A", q.Instrument)
		assert.Equal(t, 20001, q.Sequence)
	})

	t.Run("row failures carry the row number", func(t *testing.T) {
		csv := strings.Join([]string{
			"fecha;mercado;ano;monto;descripcion",
			"2024-03-01;Acciones;2024;100;ok",
			"2024-13-01;Acciones;2024;100;bad date",
			"2024-03-01;Acciones;2023;100;year mismatch",
			"2024-03-01;Acciones;2024;-5;negative",
			"2024-03-01;;2024;5;no market",
			"2024-03-01;Bonos;2024;;no amount",
		}, "\n")
		b := bind(t, m, repository.KindAmounts, csv)
		rows := rowsOf(t, csv, nil, b)
		require.Len(t, rows, 6)

		_, err := b.MapRow(rows[0], ctx)
		require.NoError(t, err)

		wants := []struct {
			row int
			err error
		}{
			{3, normalizer.ErrInvalidDate},
			{4, ErrYearMismatch},
			{5, normalizer.ErrNegativeAmount},
			{6, normalizer.ErrEmptyMarket},
			{7, ErrRequiredValue},
		}
		for i, want := range wants {
			_, err := b.MapRow(rows[i+1], ctx)
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, want.row, rowErr.Row)
			assert.ErrorIs(t, err, want.err)
		}
	})

	t.Run("year mismatch allowed when not enforced", func(t *testing.T) {
		lenient := New(nil, Options{})
		csv := "fecha;mercado;ano;monto;descripcion\n2024-03-01;Acciones;2023;100;x\n"
		b := bind(t, lenient, repository.KindAmounts, csv)
		rows := rowsOf(t, csv, nil, b)

		rec, err := b.MapRow(rows[0], ctx)

		require.NoError(t, err)
		assert.Equal(t, 2023, rec.Qualification.Year)
	})

	t.Run("unsplittable row is a row error", func(t *testing.T) {
		csv := "fecha;mercado;ano;monto;descripcion\n2024-03-01;Acciones;2024;100;x;extra;more\n"
		b := bind(t, m, repository.KindAmounts, csv)
		rows := rowsOf(t, csv, nil, b)

		_, err := b.MapRow(rows[0], ctx)

		assert.ErrorIs(t, err, parser.ErrTooManyFields)
	})
}

func TestBinding_MapRow_Factors(t *testing.T) {
	m := New(nil, Options{})
	csv := strings.Join([]string{
		"nombre_factor,valor_factor,fecha_inicio,fecha_fin",
		"Factor A,10,2024-01-01,",
		"Factor B,1.000,2024-01-01,2024-06-30",
		"Factor C,10.5,2024-01-01,",
		"Factor D,3,2024-06-30,2024-01-01",
		",3,2024-01-01,",
	}, "\n")
	b := bind(t, m, repository.KindFactors, csv)
	rows := rowsOf(t, csv, nil, b)
	require.Len(t, rows, 5)

	rec, err := b.MapRow(rows[0], Context{})
	require.NoError(t, err)
	require.NotNil(t, rec.Factor)
	assert.Equal(t, "Factor A", rec.Factor.Name)
	assert.Equal(t, int64(10), rec.Factor.Value)
	assert.Equal(t, rec.Factor.StartDate, rec.Factor.EndDate)
	assert.Nil(t, rec.Factor.BatchID)

	rec, err = b.MapRow(rows[1], Context{})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.Factor.Value)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), rec.Factor.EndDate)

	_, err = b.MapRow(rows[2], Context{})
	assert.ErrorIs(t, err, ErrNotInteger)

	_, err = b.MapRow(rows[3], Context{})
	assert.ErrorIs(t, err, ErrDateRange)

	_, err = b.MapRow(rows[4], Context{})
	assert.ErrorIs(t, err, ErrRequiredValue)
}

func TestMapper_MapFields(t *testing.T) {
	m := New(nil, Options{EnforceYearMatch: true})
	brokerID := uuid.New()

	rec, err := m.MapFields(repository.KindPDFQualifications, map[string]string{
		FieldDate:        "2024-01-10",
		FieldMarket:      "bonds",
		FieldYear:        "2024",
		FieldAmount:      " 1250.7500 ",
		FieldDescription: "Extraído de PDF pág 1",
	}, Context{BrokerID: brokerID})

	require.NoError(t, err)
	q := rec.Qualification
	assert.Equal(t, repository.OriginPDF, q.Origin)
	assert.Equal(t, normalizer.MarketBonds, q.Market)
	assert.True(t, decimal.RequireFromString("1250.75").Equal(q.UpdatedFactor))
	assert.Equal(t, brokerID, q.BrokerID)
}

func TestReadProfiles(t *testing.T) {
	yamlDoc := `
amounts:
  aliases:
    amount: ["Importe"]
factors:
  required: [name, value]
`
	profiles, err := ReadProfiles(strings.NewReader(yamlDoc), DefaultProfiles())
	require.NoError(t, err)

	m := New(profiles, Options{})
	b, err := m.Bind(repository.KindAmounts, []string{"fecha", "mercado", "ano", "importe", "descripcion"})
	require.NoError(t, err)
	assert.Equal(t, "importe", b.Column(FieldAmount))

	_, err = m.Bind(repository.KindFactors, []string{"nombre", "valor"})
	assert.NoError(t, err)

	// defaults stay untouched
	_, err = New(nil, Options{}).Bind(repository.KindAmounts, []string{"fecha", "mercado", "ano", "importe", "descripcion"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadProfiles_UnknownKind(t *testing.T) {
	_, err := ReadProfiles(strings.NewReader("trades:\n  required: [a]\n"), DefaultProfiles())
	assert.Error(t, err)
}
