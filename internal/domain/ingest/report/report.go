// Package report exports the records a batch wrote, in the same column
// layout the upload profiles accept, so an export can be corrected and
// uploaded again.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
)

var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx". Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names the download for a batch.
func (f Format) Filename(b *repository.UploadBatch) string {
	return fmt.Sprintf("lote_%s_%s.%s", b.Kind, b.ID.String()[:8], f)
}

// QualificationLine is one exported qualification record.
type QualificationLine struct {
	Date        string `csv:"fecha"`
	Market      string `csv:"mercado"`
	Year        int    `csv:"ano"`
	Amount      string `csv:"monto"`
	Description string `csv:"descripcion"`
	Instrument  string `csv:"instrumento"`
	Sequence    int    `csv:"secuencia"`
	Origin      string `csv:"origen"`
}

// FactorLine is one exported valuation factor.
type FactorLine struct {
	Name      string `csv:"nombre"`
	Value     int64  `csv:"valor"`
	StartDate string `csv:"fecha_inicio"`
	EndDate   string `csv:"fecha_fin"`
}

func qualificationLines(recs []*repository.QualificationRecord) []*QualificationLine {
	lines := make([]*QualificationLine, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, &QualificationLine{
			Date:        normalizer.FormatDate(r.Date),
			Market:      string(r.Market),
			Year:        r.Year,
			Amount:      normalizer.FormatAmount(r.UpdatedFactor),
			Description: r.Description,
			Instrument:  r.Instrument,
			Sequence:    r.Sequence,
			Origin:      string(r.Origin),
		})
	}
	return lines
}

func factorLines(factors []*repository.ValuationFactor) []*FactorLine {
	lines := make([]*FactorLine, 0, len(factors))
	for _, f := range factors {
		lines = append(lines, &FactorLine{
			Name:      f.Name,
			Value:     f.Value,
			StartDate: normalizer.FormatDate(f.StartDate),
			EndDate:   normalizer.FormatDate(f.EndDate),
		})
	}
	return lines
}

// Exporter renders batch records. Currency only affects the XLSX summary.
type Exporter struct {
	currency string
}

func NewExporter(currency string) *Exporter {
	return &Exporter{currency: currency}
}

func (e *Exporter) Write(w io.Writer, format Format, records *service.BatchRecords) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return e.WriteXLSX(w, records)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteCSV writes factors for a factor batch and qualifications otherwise.
func WriteCSV(w io.Writer, records *service.BatchRecords) error {
	var err error
	if records.Batch.Kind == repository.KindFactors {
		err = gocsv.Marshal(factorLines(records.Factors), w)
	} else {
		err = gocsv.Marshal(qualificationLines(records.Qualifications), w)
	}
	if err != nil {
		return fmt.Errorf("failed to write CSV export: %w", err)
	}
	return nil
}
