package service

import (
	"fmt"
	"strconv"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/normalizer"
)

// Confirmation is what the review screen sends back. Only entries with
// Included set are persisted; candidates without an entry are skipped.
type Confirmation struct {
	Selections       []Selection       `json:"selections"`
	FactorSelections []FactorSelection `json:"factor_selections"`
}

// Selection toggles one candidate and optionally replaces its displayed
// values. Edited values are normalized again before persisting.
type Selection struct {
	Index       int     `json:"index"`
	Included    bool    `json:"included"`
	Date        *string `json:"date,omitempty"`
	Market      *string `json:"market,omitempty"`
	Year        *string `json:"year,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	Description *string `json:"description,omitempty"`
}

type FactorSelection struct {
	Index    int     `json:"index"`
	Included bool    `json:"included"`
	Name     *string `json:"name,omitempty"`
	Value    *string `json:"value,omitempty"`
}

// IncludeAll selects every candidate and factor of p unchanged.
func IncludeAll(p *Preview) Confirmation {
	var conf Confirmation
	for _, c := range p.Candidates {
		conf.Selections = append(conf.Selections, Selection{Index: c.Index, Included: c.Included})
	}
	for _, f := range p.Factors {
		conf.FactorSelections = append(conf.FactorSelections, FactorSelection{Index: f.Index, Included: f.Included})
	}
	return conf
}

func (c Confirmation) validate(p *Preview) error {
	seen := make(map[int]bool, len(c.Selections))
	for _, sel := range c.Selections {
		if sel.Index < 0 || sel.Index >= len(p.Candidates) {
			return fmt.Errorf("%w: candidate index %d out of range", ErrInvalidSelection, sel.Index)
		}
		if seen[sel.Index] {
			return fmt.Errorf("%w: candidate index %d repeated", ErrInvalidSelection, sel.Index)
		}
		seen[sel.Index] = true
	}

	seen = make(map[int]bool, len(c.FactorSelections))
	for _, sel := range c.FactorSelections {
		if sel.Index < 0 || sel.Index >= len(p.Factors) {
			return fmt.Errorf("%w: factor index %d out of range", ErrInvalidSelection, sel.Index)
		}
		if seen[sel.Index] {
			return fmt.Errorf("%w: factor index %d repeated", ErrInvalidSelection, sel.Index)
		}
		seen[sel.Index] = true
	}
	return nil
}

func (s Selection) apply(fields map[string]string) map[string]string {
	set := func(field string, v *string) {
		if v != nil {
			fields[field] = *v
		}
	}
	set(mapper.FieldDate, s.Date)
	set(mapper.FieldMarket, s.Market)
	set(mapper.FieldYear, s.Year)
	set(mapper.FieldAmount, s.Amount)
	set(mapper.FieldDescription, s.Description)
	return fields
}

func (s FactorSelection) apply(fields map[string]string) map[string]string {
	if s.Name != nil {
		fields[mapper.FieldName] = *s.Name
	}
	if s.Value != nil {
		fields[mapper.FieldValue] = *s.Value
	}
	return fields
}

// candidateFields renders a candidate the way the review screen shows it.
func candidateFields(c extractor.Candidate) map[string]string {
	return map[string]string{
		mapper.FieldDate:        normalizer.FormatDate(c.Date),
		mapper.FieldMarket:      string(c.Market),
		mapper.FieldYear:        strconv.Itoa(c.Year),
		mapper.FieldAmount:      normalizer.FormatAmount(c.Amount),
		mapper.FieldDescription: c.Description,
	}
}

var fieldOrder = []string{
	mapper.FieldDate, mapper.FieldMarket, mapper.FieldYear, mapper.FieldAmount, mapper.FieldDescription,
	mapper.FieldName, mapper.FieldValue, mapper.FieldStartDate,
}

func fieldValues(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fieldOrder {
		if v, ok := fields[f]; ok {
			out = append(out, f+"="+v)
		}
	}
	return out
}
