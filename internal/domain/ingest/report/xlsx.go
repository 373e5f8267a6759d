package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/nuam-ingest/pkg/money"
)

const (
	SheetSummary        = "Resumen"
	SheetQualifications = "Calificaciones"
	SheetFactors        = "Factores"
)

var (
	qualificationHeader = []any{"fecha", "mercado", "ano", "monto", "descripcion", "instrumento", "secuencia", "origen", "mercado_nombre"}
	factorHeader        = []any{"nombre", "valor", "fecha_inicio", "fecha_fin"}
)

// WriteXLSX writes a workbook with a summary sheet and one data sheet.
func (e *Exporter) WriteXLSX(w io.Writer, records *service.BatchRecords) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountFmt := "#,##0.0000"
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}

	var total decimal.Decimal
	if records.Batch.Kind == repository.KindFactors {
		err = writeFactorSheet(f, bold, records.Factors)
	} else {
		total, err = writeQualificationSheet(f, bold, amountStyle, records.Qualifications)
	}
	if err != nil {
		return err
	}

	if err := e.writeSummary(f, bold, records, total); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel export: %w", err)
	}
	return nil
}

func (e *Exporter) writeSummary(f *excelize.File, bold int, records *service.BatchRecords, total decimal.Decimal) error {
	b := records.Batch
	finished := ""
	if b.FinishedAt != nil {
		finished = b.FinishedAt.Format(time.RFC3339)
	}
	rows := [][]any{
		{"lote", b.ID.String()},
		{"tipo", string(b.Kind)},
		{"archivo", b.SourceName},
		{"estado", string(b.Status)},
		{"procesados", b.ProcessedCount},
		{"fallidos", b.FailedCount},
		{"creado", b.CreatedAt.Format(time.RFC3339)},
		{"finalizado", finished},
	}
	if b.Kind != repository.KindFactors {
		rows = append(rows, []any{"total", money.NewFromDecimal(total, e.currency).Display()})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	return f.SetCellStyle(SheetSummary, "A1", last, bold)
}

func writeQualificationSheet(f *excelize.File, bold, amountStyle int, recs []*repository.QualificationRecord) (decimal.Decimal, error) {
	if _, err := f.NewSheet(SheetQualifications); err != nil {
		return decimal.Zero, err
	}
	if err := writeHeader(f, SheetQualifications, bold, qualificationHeader); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i, r := range recs {
		total = total.Add(r.UpdatedFactor)
		row := []any{
			normalizer.FormatDate(r.Date),
			string(r.Market),
			r.Year,
			r.UpdatedFactor.InexactFloat64(),
			r.Description,
			r.Instrument,
			r.Sequence,
			string(r.Origin),
			r.Market.Label(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetQualifications, cell, &row); err != nil {
			return decimal.Zero, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if len(recs) > 0 {
		last, _ := excelize.CoordinatesToCellName(4, len(recs)+1)
		if err := f.SetCellStyle(SheetQualifications, "D2", last, amountStyle); err != nil {
			return decimal.Zero, err
		}
	}
	return total, nil
}

func writeFactorSheet(f *excelize.File, bold int, factors []*repository.ValuationFactor) error {
	if _, err := f.NewSheet(SheetFactors); err != nil {
		return err
	}
	if err := writeHeader(f, SheetFactors, bold, factorHeader); err != nil {
		return err
	}
	for i, v := range factors {
		row := []any{v.Name, v.Value, normalizer.FormatDate(v.StartDate), normalizer.FormatDate(v.EndDate)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetFactors, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, style int, header []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}
