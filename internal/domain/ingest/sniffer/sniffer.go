// Package sniffer detects the dialect of uploaded CSV files: byte order mark,
// delimiter and header names.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
)

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find header row")
)

// FileConfig holds the detected configuration for a CSV file.
type FileConfig struct {
	Delimiter  rune
	RawHeaders []string // header cells as written, BOM removed
	Headers    []string // lower-cased, accent-folded, snake_cased
}

// DetectConfig inspects the first line of data for the delimiter and header
// names. The first non-blank line is always the header row.
func DetectConfig(data []byte) (*FileConfig, error) {
	data = StripBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	headerLine := firstLine(data)
	if headerLine == "" {
		return nil, ErrNoHeadersFound
	}
	delimiter := DetectDelimiter(headerLine)

	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	raw, err := reader.Read()
	if err != nil {
		return nil, err
	}

	headers := make([]string, len(raw))
	for i, h := range raw {
		raw[i] = strings.TrimSpace(h)
		headers[i] = NormalizeHeader(h)
	}

	return &FileConfig{
		Delimiter:  delimiter,
		RawHeaders: raw,
		Headers:    headers,
	}, nil
}

// DetectDelimiter returns ';' when the header line contains one, a tab for
// tab-only lines, and ',' otherwise.
func DetectDelimiter(line string) rune {
	switch {
	case strings.ContainsRune(line, ';'):
		return ';'
	case strings.ContainsRune(line, '\t') && !strings.ContainsRune(line, ','):
		return '\t'
	default:
		return ','
	}
}

// NormalizeHeader folds a header cell to its lookup form:
// " Fecha Inicio" becomes "fecha_inicio".
func NormalizeHeader(h string) string {
	h = normalizer.Fold(strings.TrimPrefix(h, "\uFEFF"))
	return strings.Join(strings.Fields(h), "_")
}

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func firstLine(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(strings.TrimRight(line, "\r")); line != "" {
			return line
		}
	}
	return ""
}

// Fingerprint identifies a header layout: uploads whose normalized headers
// match share it whatever their delimiter or casing.
func Fingerprint(headers []string) string {
	hash := sha256.Sum256([]byte(strings.Join(headers, "|")))
	return hex.EncodeToString(hash[:8])
}
