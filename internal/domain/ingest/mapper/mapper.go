// Package mapper converts header-keyed rows into typed records. Each record
// kind has its own column profile and converter.
package mapper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrUnknownKind   = errors.New("unknown record kind")
	ErrRequiredValue = errors.New("required value is empty")
	ErrYearMismatch  = errors.New("year does not match date")
	ErrDateRange     = errors.New("end date is before start date")
	ErrNotInteger    = errors.New("value is not an integer")
)

// MissingColumnError lists the required columns absent from a header row.
type MissingColumnError struct {
	Kind    repository.RecordKind
	Columns []string
	// Found holds the header cells of the upload, as written, when the
	// caller knows them.
	Found []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s upload: missing required column(s): %s", e.Kind, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// RowError is a row that could not become a record. Row is 1-based with the
// header counted as row 1.
type RowError struct {
	Row int
	Raw []string
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Context carries the ownership applied to every record of a batch.
type Context struct {
	BrokerID uuid.UUID
	BatchID  uuid.UUID
	// Origin overrides the default origin of the record kind.
	Origin repository.Origin
}

// Record is exactly one of Factor or Qualification, as given by Kind.
type Record struct {
	Kind          repository.RecordKind
	Factor        *repository.ValuationFactor
	Qualification *repository.QualificationRecord
}

type Options struct {
	// EnforceYearMatch rejects rows whose year differs from the date's year.
	EnforceYearMatch bool
}

type Mapper struct {
	profiles Profiles
	opts     Options
}

func New(profiles Profiles, opts Options) *Mapper {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Mapper{profiles: profiles, opts: opts}
}

type convertFunc func(m *Mapper, fields map[string]string, ctx Context) (Record, error)

var converters = map[repository.RecordKind]convertFunc{
	repository.KindFactors:           convertFactor,
	repository.KindAmounts:           convertQualification(repository.KindAmounts, repository.OriginCSV),
	repository.KindQualifications:    convertQualification(repository.KindQualifications, repository.OriginCSV),
	repository.KindPDFQualifications: convertQualification(repository.KindPDFQualifications, repository.OriginPDF),
}

// Binding is a record kind resolved against one file's header row.
type Binding struct {
	mapper  *Mapper
	kind    repository.RecordKind
	columns map[string]string // canonical field -> header
	convert convertFunc
}

// Bind checks the header row once for the columns kind requires.
func (m *Mapper) Bind(kind repository.RecordKind, headers []string) (*Binding, error) {
	profile, ok := m.profiles[kind]
	convert, hasConverter := converters[kind]
	if !ok || !hasConverter {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	columns := make(map[string]string)
	resolve := func(field string) bool {
		for _, alias := range profile.Aliases[field] {
			if present[alias] {
				columns[field] = alias
				return true
			}
		}
		return false
	}

	var missing []string
	for _, field := range profile.Required {
		if !resolve(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Kind: kind, Columns: missing}
	}
	for _, field := range profile.Optional {
		resolve(field)
	}

	return &Binding{mapper: m, kind: kind, columns: columns, convert: convert}, nil
}

// Column returns the header bound to a canonical field, or "".
func (b *Binding) Column(field string) string {
	return b.columns[field]
}

func (b *Binding) Kind() repository.RecordKind {
	return b.kind
}

// MapRow converts one parsed row.
func (b *Binding) MapRow(row parser.Row, ctx Context) (Record, error) {
	if row.Err != nil {
		return Record{}, &RowError{Row: row.Number, Raw: row.Raw, Err: row.Err}
	}

	fields := make(map[string]string, len(b.columns))
	for field, header := range b.columns {
		fields[field] = strings.TrimSpace(row.Fields[header])
	}

	rec, err := b.convert(b.mapper, fields, ctx)
	if err != nil {
		return Record{}, &RowError{Row: row.Number, Raw: row.Raw, Err: err}
	}
	return rec, nil
}

// MapFields converts values already keyed by canonical field name, as
// submitted when confirming extracted candidates.
func (m *Mapper) MapFields(kind repository.RecordKind, fields map[string]string, ctx Context) (Record, error) {
	convert, ok := converters[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	trimmed := make(map[string]string, len(fields))
	for k, v := range fields {
		trimmed[k] = strings.TrimSpace(v)
	}
	return convert(m, trimmed, ctx)
}

func convertQualification(kind repository.RecordKind, origin repository.Origin) convertFunc {
	return func(m *Mapper, fields map[string]string, ctx Context) (Record, error) {
		rawDate, err := required(fields, FieldDate)
		if err != nil {
			return Record{}, err
		}
		date, err := normalizer.NormalizeDate(rawDate)
		if err != nil {
			return Record{}, fieldErr(FieldDate, rawDate, err)
		}

		market, err := normalizer.ParseMarket(fields[FieldMarket])
		if err != nil {
			return Record{}, fieldErr(FieldMarket, fields[FieldMarket], err)
		}

		rawYear, err := required(fields, FieldYear)
		if err != nil {
			return Record{}, err
		}
		year, err := normalizer.NormalizeYear(rawYear)
		if err != nil {
			return Record{}, fieldErr(FieldYear, rawYear, err)
		}
		if m.opts.EnforceYearMatch && year != date.Year() {
			return Record{}, fieldErr(FieldYear, rawYear, ErrYearMismatch)
		}

		rawAmount, err := required(fields, FieldAmount)
		if err != nil {
			return Record{}, err
		}
		amount, err := normalizer.NormalizeNonNegativeAmount(rawAmount)
		if err != nil {
			return Record{}, fieldErr(FieldAmount, rawAmount, err)
		}

		sequence := repository.DefaultSequence
		if raw := fields[FieldSequence]; raw != "" {
			if sequence, err = strconv.Atoi(raw); err != nil || sequence < 0 {
				return Record{}, fieldErr(FieldSequence, raw, ErrNotInteger)
			}
		}

		rec := &repository.QualificationRecord{
			BrokerID:      ctx.BrokerID,
			BatchID:       batchRef(ctx.BatchID),
			Date:          date,
			Market:        market,
			Year:          year,
			UpdatedFactor: normalizer.RoundFactor(amount),
			Description:   fields[FieldDescription],
			Instrument:    fields[FieldInstrument],
			Sequence:      sequence,
			Origin:        origin,
		}
		if ctx.Origin != "" {
			rec.Origin = ctx.Origin
		}
		return Record{Kind: kind, Qualification: rec}, nil
	}
}

func convertFactor(_ *Mapper, fields map[string]string, ctx Context) (Record, error) {
	name, err := required(fields, FieldName)
	if err != nil {
		return Record{}, err
	}

	rawValue, err := required(fields, FieldValue)
	if err != nil {
		return Record{}, err
	}
	value, err := normalizer.NormalizeAmount(rawValue)
	if err != nil {
		return Record{}, fieldErr(FieldValue, rawValue, err)
	}
	if !value.IsInteger() {
		return Record{}, fieldErr(FieldValue, rawValue, ErrNotInteger)
	}

	rawStart, err := required(fields, FieldStartDate)
	if err != nil {
		return Record{}, err
	}
	start, err := normalizer.NormalizeDate(rawStart)
	if err != nil {
		return Record{}, fieldErr(FieldStartDate, rawStart, err)
	}

	end := start
	if rawEnd := fields[FieldEndDate]; rawEnd != "" {
		if end, err = normalizer.NormalizeDate(rawEnd); err != nil {
			return Record{}, fieldErr(FieldEndDate, rawEnd, err)
		}
		if end.Before(start) {
			return Record{}, fieldErr(FieldEndDate, rawEnd, ErrDateRange)
		}
	}

	return Record{
		Kind: repository.KindFactors,
		Factor: &repository.ValuationFactor{
			BatchID:   batchRef(ctx.BatchID),
			Name:      name,
			Value:     value.IntPart(),
			StartDate: start,
			EndDate:   end,
		},
	}, nil
}

func required(fields map[string]string, field string) (string, error) {
	v := fields[field]
	if v == "" {
		return "", fieldErr(field, v, ErrRequiredValue)
	}
	return v, nil
}

func fieldErr(field, raw string, err error) error {
	return &normalizer.NormalizationError{Field: field, Raw: raw, Err: err}
}

func batchRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
