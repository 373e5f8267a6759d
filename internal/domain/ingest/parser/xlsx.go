package parser

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/sniffer"
)

var ErrNoSheet = errors.New("workbook has no readable sheet")

// Table is a header-driven upload, either a CSV file or a worksheet.
type Table interface {
	HeaderNames() []string
	// RawHeaderNames returns the header cells as written in the upload.
	RawHeaderNames() []string
	Rows(opts RowOptions) iter.Seq[Row]
}

var zipMagic = []byte("PK\x03\x04")

// IsXLSX reports whether data is a zip container, as every .xlsx is.
func IsXLSX(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// OpenTable opens data as a workbook or as CSV depending on its content.
func OpenTable(data []byte) (Table, error) {
	if IsXLSX(data) {
		return OpenXLSX(data)
	}
	return OpenCSV(data)
}

func (f *CSVFile) HeaderNames() []string {
	return f.Config.Headers
}

func (f *CSVFile) RawHeaderNames() []string {
	return f.Config.RawHeaders
}

// plainNumber is how a numeric cell renders under the General format.
var plainNumber = regexp.MustCompile(`^-?\d+\.\d+$`)

// XLSXSheet is the active worksheet of an uploaded workbook.
type XLSXSheet struct {
	Name       string
	RawHeaders []string
	headers    []string
	headerRow  int
	rows       [][]string
}

// OpenXLSX reads the active sheet. The first non-blank row is the header.
// Numeric cells are rewritten with a decimal comma so the amount normalizer
// never mistakes "1500.125" for a thousands-grouped value.
func OpenXLSX(data []byte) (*XLSXSheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		ShortDatePattern: "yyyy-mm-dd",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	if name == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoSheet
		}
		name = sheets[0]
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}

	headerIdx := -1
	for i, row := range rows {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, sniffer.ErrEmptyFile
	}

	sheet := &XLSXSheet{Name: name, headerRow: headerIdx + 1, rows: rows}
	for _, h := range rows[headerIdx] {
		sheet.RawHeaders = append(sheet.RawHeaders, strings.TrimSpace(h))
		sheet.headers = append(sheet.headers, sniffer.NormalizeHeader(h))
	}

	for i := headerIdx + 1; i < len(rows); i++ {
		for j, v := range rows[i] {
			if !plainNumber.MatchString(v) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				continue
			}
			typ, err := f.GetCellType(name, cell)
			if err != nil || typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString {
				continue
			}
			rows[i][j] = strings.Replace(v, ".", ",", 1)
		}
	}
	return sheet, nil
}

func (s *XLSXSheet) HeaderNames() []string {
	return s.headers
}

func (s *XLSXSheet) RawHeaderNames() []string {
	return s.RawHeaders
}

// Rows yields non-blank rows below the header. Number is the worksheet row.
// DecimalColumn is ignored; cells never split.
func (s *XLSXSheet) Rows(RowOptions) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for i := s.headerRow; i < len(s.rows); i++ {
			record := s.rows[i]
			if blank(record) {
				continue
			}
			record = trimTrailingBlank(record)

			row := Row{Number: i + 1, Raw: record}
			row.Fields, row.Err = fieldsFor(s.headers, record, -1)
			if !yield(row) {
				return
			}
		}
	}
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
