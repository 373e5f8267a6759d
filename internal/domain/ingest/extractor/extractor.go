// Package extractor finds candidate qualification tuples and valuation
// factors in plain text lifted from PDF pages.
package extractor

import (
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
)

// DefaultMinProximityAmount is the exclusive lower bound for amounts found
// by the proximity pattern.
var DefaultMinProximityAmount = decimal.NewFromInt(100)

// Candidate is a (date, market, year, amount) tuple awaiting confirmation.
type Candidate struct {
	Index       int               `json:"index"`
	Page        int               `json:"page"`
	Pattern     Pattern           `json:"pattern"`
	RawDate     string            `json:"raw_date"`
	RawMarket   string            `json:"raw_market"`
	RawYear     string            `json:"raw_year"`
	RawAmount   string            `json:"raw_amount"`
	Date        time.Time         `json:"date"`
	Market      normalizer.Market `json:"market"`
	Year        int               `json:"year"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Key         string            `json:"key"`
	Included    bool              `json:"included"`
}

// FactorCandidate is a named factor value found in PDF text.
type FactorCandidate struct {
	Index    int    `json:"index"`
	Page     int    `json:"page"`
	Name     string `json:"name"`
	Value    int64  `json:"value"`
	Included bool   `json:"included"`
}

// DedupKey identifies candidates that describe the same tuple.
func DedupKey(date time.Time, market normalizer.Market, year int, amount decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%d|%s", normalizer.FormatDate(date), market, year, amount.Round(2).StringFixed(2))
}

type Options struct {
	// MinProximityAmount filters proximity matches; amounts must be greater.
	MinProximityAmount decimal.Decimal
}

type Extractor struct {
	minProximity decimal.Decimal
}

func New(opts Options) *Extractor {
	min := opts.MinProximityAmount
	if min.IsZero() {
		min = DefaultMinProximityAmount
	}
	return &Extractor{minProximity: min}
}

// ExtractCandidates applies every pattern to one page, tightest first, and
// yields every match that normalizes. Duplicates are left for Dedupe.
func (e *Extractor) ExtractCandidates(pageText string, page int) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, m := range labeledPattern.FindAllStringSubmatch(pageText, -1) {
			c, ok := e.candidate(page, PatternLabeled, m[1], m[2], m[3], m[4])
			if ok && !yield(c) {
				return
			}
		}

		for _, m := range tablePattern.FindAllStringSubmatch(pageText, -1) {
			c, ok := e.candidate(page, PatternTable, m[1], m[2], m[3], m[4])
			if ok && !yield(c) {
				return
			}
		}

		for _, m := range proximityPattern.FindAllStringSubmatch(pageText, -1) {
			c, ok := e.candidate(page, PatternProximity, m[1], strings.TrimSpace(m[2]), "", m[3])
			if !ok || !c.Amount.GreaterThan(e.minProximity) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// ExtractDocument runs ExtractCandidates over pages in order and removes
// duplicates document-wide. Indexes are assigned after deduplication.
func (e *Extractor) ExtractDocument(pages []parser.Page) iter.Seq[Candidate] {
	all := func(yield func(Candidate) bool) {
		for _, p := range pages {
			for c := range e.ExtractCandidates(p.Text, p.Number) {
				if !yield(c) {
					return
				}
			}
		}
	}
	return Dedupe(all)
}

// Dedupe keeps the first candidate per key and numbers the survivors from 0.
func Dedupe(seq iter.Seq[Candidate]) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		seen := make(map[string]bool)
		index := 0
		for c := range seq {
			if seen[c.Key] {
				continue
			}
			seen[c.Key] = true
			c.Index = index
			index++
			if !yield(c) {
				return
			}
		}
	}
}

// ExtractFactors yields "Factor: X Valor: N" and "Factor X: N" matches across
// pages, first occurrence of each (name, value) pair only.
func (e *Extractor) ExtractFactors(pages []parser.Page) iter.Seq[FactorCandidate] {
	return func(yield func(FactorCandidate) bool) {
		seen := make(map[string]bool)
		index := 0
		for _, p := range pages {
			for _, re := range []*regexp.Regexp{factorValuePattern, factorColonPattern} {
				for _, m := range re.FindAllStringSubmatch(p.Text, -1) {
					value, err := strconv.ParseInt(m[2], 10, 64)
					if err != nil {
						continue
					}
					key := m[1] + "|" + m[2]
					if seen[key] {
						continue
					}
					seen[key] = true

					fc := FactorCandidate{Index: index, Page: p.Number, Name: m[1], Value: value, Included: true}
					index++
					if !yield(fc) {
						return
					}
				}
			}
		}
	}
}

func (e *Extractor) candidate(page int, pattern Pattern, rawDate, rawMarket, rawYear, rawAmount string) (Candidate, bool) {
	date, err := normalizer.NormalizeDate(rawDate)
	if err != nil {
		return Candidate{}, false
	}

	year := date.Year()
	if rawYear != "" {
		if year, err = normalizer.NormalizeYear(rawYear); err != nil {
			return Candidate{}, false
		}
	}

	amount, err := normalizer.NormalizeNonNegativeAmount(rawAmount)
	if err != nil {
		return Candidate{}, false
	}

	market := normalizer.NormalizeMarketToken(rawMarket)
	return Candidate{
		Page:        page,
		Pattern:     pattern,
		RawDate:     rawDate,
		RawMarket:   rawMarket,
		RawYear:     rawYear,
		RawAmount:   rawAmount,
		Date:        date,
		Market:      market,
		Year:        year,
		Amount:      amount,
		Description: describe(pattern, page),
		Key:         DedupKey(date, market, year, amount),
		Included:    true,
	}, true
}

func describe(pattern Pattern, page int) string {
	switch pattern {
	case PatternLabeled:
		return fmt.Sprintf("Extraído de PDF pág %d", page)
	case PatternTable:
		return fmt.Sprintf("Monto extraído de PDF pág %d", page)
	default:
		return fmt.Sprintf("Detectado en PDF pág %d", page)
	}
}
