package extractor

import "regexp"

// Pattern names the heuristic that produced a candidate.
type Pattern string

const (
	PatternLabeled   Pattern = "labeled"
	PatternTable     Pattern = "table"
	PatternProximity Pattern = "proximity"
)

const (
	dateToken   = `(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/(?:\d{4}|\d{2}))`
	amountToken = `(\d(?:[\d.,]*\d)?)`
	cellSep     = `[ ]*[|;\t][ ]*`
)

var (
	// Fecha: 2024-01-10 Mercado: Bonos Año: 2024 Factor: 250,75
	labeledPattern = regexp.MustCompile(`(?i)fecha:\s*` + dateToken +
		`\s*mercado:\s*(\pL+)\s*a(?:ñ|n)o:\s*(\d{4})\s*factor:\s*` + amountToken)

	// | 2024-01-10 | Acciones | 2024 | 1.250,75 |
	tablePattern = regexp.MustCompile(`(?m)(?:^|[|;\t])[ ]*` + dateToken +
		cellSep + `(\pL[\pL ]*?)` + cellSep + `(\d{4})` + cellSep + amountToken + `[ ]*(?:[|;\t]|$)`)

	// a date followed within 50 characters by a thousands-grouped number
	proximityPattern = regexp.MustCompile(dateToken +
		`((?:[^\n]{0,49}?[^\d.,\n])?)` +
		`(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?)(?:[^\d.,]|$)`)

	// Factor: F1 Valor: 120
	factorValuePattern = regexp.MustCompile(`(?i)factor:\s*(\w+)\s*valor:\s*(\d+)`)
	// Factor F1: 120
	factorColonPattern = regexp.MustCompile(`(?i)factor\s+(\w+):\s*(\d+)`)
)
