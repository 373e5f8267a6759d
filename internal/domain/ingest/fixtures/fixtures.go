// Package fixtures generates realistic upload files for ingestion tests.
package fixtures

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator builds upload files from a seeded faker so failures reproduce.
type Generator struct {
	faker *gofakeit.Faker
	year  int
}

// New creates a generator. Seed 0 picks a random seed.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), year: 2024}
}

// WithYear sets the tax year rows are dated in.
func (g *Generator) WithYear(year int) *Generator {
	g.year = year
	return g
}

// File is a generated upload and what a correct ingestion must report.
type File struct {
	Data    []byte
	Rows    int
	Invalid []int // 1-based file rows (header = 1) built to fail
}

func (f File) Valid() int {
	return f.Rows - len(f.Invalid)
}

// ============================================================================
// Qualification rows
// ============================================================================

var qualificationHeader = []string{"Fecha", "Mercado", "Año", "Monto", "Descripción"}

var marketNames = []string{
	"Acciones", "acciones", "CFI", "Fondos Mutuos", "Bonos",
	"Derivados", "Monedas", "stocks", "bonds", "FM",
}

var descriptions = []string{
	"Dividendo", "Cupón semestral", "Reparto de capital",
	"Amortización", "Rescate de cuotas", "Ajuste por inflación",
}

// QualificationRow returns one row that must normalize cleanly.
func (g *Generator) QualificationRow() []string {
	date := g.faker.DateRange(
		time.Date(g.year, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(g.year, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	return []string{
		g.dateToken(date),
		g.faker.RandomString(marketNames),
		strconv.Itoa(g.year),
		g.AmountToken(),
		g.faker.RandomString(descriptions),
	}
}

// BadQualificationRow returns a row that must fail exactly one field.
func (g *Generator) BadQualificationRow() []string {
	row := g.QualificationRow()
	switch g.faker.Number(0, 3) {
	case 0:
		row[0] = fmt.Sprintf("%d-02-30", g.year)
	case 1:
		row[1] = ""
	case 2:
		row[2] = strconv.Itoa(g.year - 1)
	default:
		row[3] = g.faker.LetterN(6)
	}
	return row
}

func (g *Generator) dateToken(t time.Time) string {
	if g.faker.Bool() {
		return t.Format(time.DateOnly)
	}
	return t.Format("02/01/2006")
}

// AmountToken renders a positive amount with up to two decimals in one of
// the notations brokers send: plain, "1234.56", "1.234,56" or "1,234.56".
func (g *Generator) AmountToken() string {
	whole := g.faker.Number(100, 9_999_999)
	cents := g.faker.Number(0, 99)

	switch g.faker.Number(0, 3) {
	case 0:
		return strconv.Itoa(whole)
	case 1:
		return fmt.Sprintf("%d.%02d", whole, cents)
	case 2:
		return group(whole, ".") + fmt.Sprintf(",%02d", cents)
	default:
		return group(whole, ",") + fmt.Sprintf(".%02d", cents)
	}
}

func group(n int, sep string) string {
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QualificationsCSV builds n data rows, bad of them invalid, at positions
// chosen by the faker.
func (g *Generator) QualificationsCSV(n, bad int, delimiter rune) File {
	if bad > n {
		bad = n
	}
	badAt := make(map[int]bool, bad)
	for len(badAt) < bad {
		badAt[g.faker.Number(0, n-1)] = true
	}

	file := File{Rows: n}
	rows := make([][]string, 0, n+1)
	rows = append(rows, qualificationHeader)
	for i := 0; i < n; i++ {
		if badAt[i] {
			rows = append(rows, g.BadQualificationRow())
			file.Invalid = append(file.Invalid, i+2)
			continue
		}
		rows = append(rows, g.QualificationRow())
	}
	file.Data = encode(rows, delimiter)
	return file
}

// ============================================================================
// Factor rows
// ============================================================================

// FactorsCSV builds n valid factor rows with unique names.
func (g *Generator) FactorsCSV(n int) File {
	rows := [][]string{{"nombre_factor", "valor_factor", "fecha_inicio", "fecha_fin"}}
	for i := 0; i < n; i++ {
		start := g.faker.DateRange(
			time.Date(g.year, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(g.year, 6, 30, 0, 0, 0, 0, time.UTC),
		)
		rows = append(rows, []string{
			fmt.Sprintf("F%d-%s", i+1, strings.ToUpper(g.faker.LetterN(3))),
			strconv.Itoa(g.faker.Number(1, 1000)),
			start.Format(time.DateOnly),
			start.AddDate(0, g.faker.Number(1, 6), 0).Format(time.DateOnly),
		})
	}
	return File{Data: encode(rows, ','), Rows: n}
}

func encode(rows [][]string, delimiter rune) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delimiter
	w.WriteAll(rows)
	return buf.Bytes()
}
