package normalizer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Market is the single market enumeration shared by CSV, form and PDF
// ingestion paths.
type Market string

const (
	MarketStocks      Market = "stocks"
	MarketCFI         Market = "cfi"
	MarketMutualFunds Market = "mutual_funds"
	MarketBonds       Market = "bonds"
	MarketDerivatives Market = "derivatives"
	MarketCurrencies  Market = "currencies"
	MarketOther       Market = "other"
)

var marketLabels = map[Market]string{
	MarketStocks:      "Acciones",
	MarketCFI:         "CFI",
	MarketMutualFunds: "Fondos Mutuos",
	MarketBonds:       "Bonos",
	MarketDerivatives: "Derivados",
	MarketCurrencies:  "Monedas",
	MarketOther:       "Otro",
}

// Label returns the display name used on broker-facing screens and reports.
func (m Market) Label() string {
	if label, ok := marketLabels[m]; ok {
		return label
	}
	return marketLabels[MarketOther]
}

func (m Market) Valid() bool {
	_, ok := marketLabels[m]
	return ok
}

type keyword struct {
	word   string
	market Market
}

// pdfKeywords are matched as substrings of the accent-folded token, in
// priority order.
var pdfKeywords = []keyword{
	{"accion", MarketStocks},
	{"bono", MarketBonds},
	{"derivad", MarketDerivatives},
	{"moneda", MarketCurrencies},
}

// formKeywords extend pdfKeywords with the markets only offered on upload
// forms and CSV templates.
var formKeywords = append(append([]keyword{}, pdfKeywords...),
	keyword{"cfi", MarketCFI},
	keyword{"fondo", MarketMutualFunds},
	keyword{"mutuo", MarketMutualFunds},
	keyword{"stock", MarketStocks},
	keyword{"bond", MarketBonds},
	keyword{"derivative", MarketDerivatives},
	keyword{"currenc", MarketCurrencies},
)

var marketAliases = map[string]Market{
	"stocks":        MarketStocks,
	"acciones":      MarketStocks,
	"cfi":           MarketCFI,
	"mutual_funds":  MarketMutualFunds,
	"mutual funds":  MarketMutualFunds,
	"fondos_mutuos": MarketMutualFunds,
	"fondos mutuos": MarketMutualFunds,
	"fm":            MarketMutualFunds,
	"bonds":         MarketBonds,
	"bonos":         MarketBonds,
	"derivatives":   MarketDerivatives,
	"derivados":     MarketDerivatives,
	"currencies":    MarketCurrencies,
	"monedas":       MarketCurrencies,
	"other":         MarketOther,
	"otro":          MarketOther,
}

// fuzzyNames are the spellings typos are ranked against.
var fuzzyNames = func() []string {
	names := make([]string, 0, len(marketAliases))
	for name := range marketAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

var (
	pdfMatcher  = newKeywordMatcher(pdfKeywords)
	formMatcher = newKeywordMatcher(formKeywords)
)

type keywordMatcher struct {
	matcher *ahocorasick.Matcher
	markets []Market
}

func newKeywordMatcher(keywords []keyword) *keywordMatcher {
	patterns := make([][]byte, len(keywords))
	markets := make([]Market, len(keywords))
	for i, k := range keywords {
		patterns[i] = []byte(k.word)
		markets[i] = k.market
	}
	return &keywordMatcher{matcher: ahocorasick.NewMatcher(patterns), markets: markets}
}

// match returns the market of the highest priority keyword found in s.
func (k *keywordMatcher) match(s string) (Market, bool) {
	hits := k.matcher.Match([]byte(s))
	if len(hits) == 0 {
		return "", false
	}
	best := hits[0]
	for _, idx := range hits[1:] {
		if idx < best {
			best = idx
		}
	}
	return k.markets[best], true
}

// NormalizeMarketToken classifies a market token lifted from PDF text.
// Unrecognised or empty tokens become MarketOther.
func NormalizeMarketToken(token string) Market {
	folded := Fold(token)
	if folded == "" {
		return MarketOther
	}
	if m, ok := pdfMatcher.match(folded); ok {
		return m
	}
	return MarketOther
}

// ParseMarket resolves a market value typed on a form or CSV cell. Codes and
// known names resolve directly, then keywords, then close misspellings.
// Anything else that is non-empty is MarketOther.
func ParseMarket(raw string) (Market, error) {
	folded := Fold(raw)
	if folded == "" {
		return "", ErrEmptyMarket
	}
	if m, ok := marketAliases[folded]; ok {
		return m, nil
	}
	if m, ok := formMatcher.match(folded); ok {
		return m, nil
	}
	if m, ok := closestMarket(folded); ok {
		return m, nil
	}
	return MarketOther, nil
}

// closestMarket ranks aliases that contain folded as a subsequence, then
// falls back to a small edit distance for typos.
func closestMarket(folded string) (Market, bool) {
	if len(folded) >= 3 {
		ranks := fuzzy.RankFindNormalizedFold(folded, fuzzyNames)
		if len(ranks) > 0 {
			sort.Sort(ranks)
			return marketAliases[ranks[0].Target], true
		}
	}

	if len(folded) < 5 {
		return "", false
	}
	best, bestDist := "", 3
	for _, name := range fuzzyNames {
		if d := fuzzy.LevenshteinDistance(folded, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	if best == "" {
		return "", false
	}
	return marketAliases[best], true
}

// Fold lower-cases s, strips accents and collapses surrounding whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
