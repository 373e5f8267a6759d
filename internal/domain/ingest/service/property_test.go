package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/fixtures"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
)

// Every row of a generated file is either persisted or reported, and the
// ledger counts agree with the records written.
func TestProcessCSV_GeneratedBatches(t *testing.T) {
	cases := []struct {
		rows, bad int
		delimiter rune
	}{
		{1, 0, ','},
		{25, 0, ';'},
		{40, 7, ','},
		{40, 7, ';'},
		{12, 12, ','},
	}
	for seed, tc := range cases {
		t.Run(fmt.Sprintf("%d rows %d bad %q", tc.rows, tc.bad, tc.delimiter), func(t *testing.T) {
			f := newFixture(t)
			file := fixtures.New(int64(seed+1)).QualificationsCSV(tc.rows, tc.bad, tc.delimiter)

			res, err := f.svc.ProcessCSV(context.Background(), f.broker, CSVUpload{
				Kind:             repository.KindQualifications,
				SourceName:       "generado.csv",
				Data:             file.Data,
				IncludeRowErrors: true,
			})
			require.NoError(t, err)

			assert.Equal(t, tc.rows, res.Processed+res.Failed)
			assert.Equal(t, file.Valid(), res.Processed)
			assert.Len(t, f.mem.Qualifications(), res.Processed)
			assert.Equal(t, repository.BatchCompleted, res.Batch.Status)

			var failedRows []int
			for _, rf := range res.RowErrors {
				failedRows = append(failedRows, rf.Row)
			}
			assert.ElementsMatch(t, file.Invalid, failedRows)
		})
	}
}

func TestProcessCSV_GeneratedFactors(t *testing.T) {
	f := newFixture(t)
	file := fixtures.New(99).FactorsCSV(15)

	res, err := f.svc.ProcessCSV(context.Background(), f.admin, CSVUpload{
		Kind:       repository.KindFactors,
		SourceName: "factores.csv",
		Data:       file.Data,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Processed)
	assert.Len(t, f.mem.Factors(), 15)
}
