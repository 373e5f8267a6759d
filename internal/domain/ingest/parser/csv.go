// Package parser reads uploaded files into rows (CSV) or page texts (PDF).
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/sniffer"
)

var ErrTooManyFields = errors.New("row has more fields than the header")

// Row is one data row keyed by normalized header name.
type Row struct {
	Number int // 1-based; the header is row 1
	Fields map[string]string
	Raw    []string
	Err    error // set when the row could not be split into fields
}

// CSVFile is a decoded upload with its detected dialect.
type CSVFile struct {
	Config *sniffer.FileConfig
	data   []byte
}

// RowOptions tunes how records are lifted into rows.
type RowOptions struct {
	// DecimalColumn names the amount header whose unquoted decimal comma may
	// have been split into an extra field. Empty disables the repair.
	DecimalColumn string
}

// OpenCSV decodes data to UTF-8 and detects its dialect.
func OpenCSV(data []byte) (*CSVFile, error) {
	data = DecodeText(data)
	cfg, err := sniffer.DetectConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}
	return &CSVFile{Config: cfg, data: data}, nil
}

// Rows yields the data rows in file order. The sequence can be ranged over
// more than once.
func (f *CSVFile) Rows(opts RowOptions) iter.Seq[Row] {
	headers := f.Config.Headers
	decimalIdx := -1
	if opts.DecimalColumn != "" && f.Config.Delimiter == ',' {
		for i, h := range headers {
			if h == opts.DecimalColumn {
				decimalIdx = i
				break
			}
		}
	}

	return func(yield func(Row) bool) {
		reader := csv.NewReader(bytes.NewReader(f.data))
		reader.Comma = f.Config.Delimiter
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		rowNum := 0
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			rowNum++
			if rowNum == 1 {
				continue
			}

			row := Row{Number: rowNum, Raw: record}
			if err != nil {
				row.Err = err
			} else {
				row.Fields, row.Err = fieldsFor(headers, record, decimalIdx)
			}
			if !yield(row) {
				return
			}
		}
	}
}

func fieldsFor(headers, record []string, decimalIdx int) (map[string]string, error) {
	if len(record) == len(headers)+1 && decimalIdx >= 0 && isDecimalFragment(record, decimalIdx) {
		merged := make([]string, 0, len(headers))
		merged = append(merged, record[:decimalIdx]...)
		merged = append(merged, record[decimalIdx]+","+record[decimalIdx+1])
		merged = append(merged, record[decimalIdx+2:]...)
		record = merged
	}
	if len(record) > len(headers) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrTooManyFields, len(record), len(headers))
	}

	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(record) {
			fields[h] = record[i]
		} else {
			fields[h] = ""
		}
	}
	return fields, nil
}

// isDecimalFragment reports whether record[idx+1] looks like the cents of
// an amount split at its decimal comma, as in "1.500,50" written unquoted.
func isDecimalFragment(record []string, idx int) bool {
	if idx+1 >= len(record) {
		return false
	}
	whole, frag := record[idx], record[idx+1]
	if whole == "" || !isDigits(whole[len(whole)-1:]) {
		return false
	}
	return len(frag) >= 1 && len(frag) <= 2 && isDigits(frag)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// DecodeText strips a UTF-8 BOM and converts Latin-1 input to UTF-8.
func DecodeText(data []byte) []byte {
	data = sniffer.StripBOM(data)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}
