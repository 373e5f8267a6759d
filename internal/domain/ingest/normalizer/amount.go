// Package normalizer turns raw numeric, date and market tokens found in broker
// uploads into canonical values.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount format")
	ErrNegativeAmount = errors.New("negative amount not allowed")
	ErrInvalidDate    = errors.New("invalid date format")
	ErrInvalidYear    = errors.New("invalid year")
	ErrEmptyMarket    = errors.New("empty market")
)

// NormalizationError reports the raw token that failed to normalize.
type NormalizationError struct {
	Field string
	Raw   string
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Raw, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// amountScale is the number of fractional digits kept on stored factors.
const amountScale = 4

// NormalizeAmount parses a locale-ambiguous amount such as "1.234,56",
// "$1,234.56", "250,75" or "12.3".
//
// Currency symbols and whitespace are stripped. When both separators appear
// the right-most one is the decimal point. A lone comma is a decimal point.
// Dots alone are thousands separators when they group by three behind a
// non-zero leading group, except that a final two-digit group after several
// dots is the fractional part.
func NormalizeAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '$' || r == '€' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	negative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "-")
	if cleaned == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	for _, r := range cleaned {
		if !isDigit(r) && r != ',' && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	canonical, err := canonicalNumber(cleaned)
	if err != nil {
		return decimal.Zero, err
	}

	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// NormalizeNonNegativeAmount is NormalizeAmount for fields that must not be
// negative.
func NormalizeNonNegativeAmount(raw string) (decimal.Decimal, error) {
	d, err := NormalizeAmount(raw)
	if err != nil {
		return d, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// FormatAmount renders d so that NormalizeAmount reads it back unchanged.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountScale)
}

// RoundFactor rounds to the precision stored for updated factors.
func RoundFactor(d decimal.Decimal) decimal.Decimal {
	return d.Round(amountScale)
}

func canonicalNumber(s string) (string, error) {
	if strings.HasPrefix(s, ",") || strings.HasPrefix(s, ".") ||
		strings.HasSuffix(s, ",") || strings.HasSuffix(s, ".") {
		return "", ErrInvalidAmount
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		sep, thousands := lastComma, "."
		if lastDot > lastComma {
			sep, thousands = lastDot, ","
		}
		intPart, frac := s[:sep], s[sep+1:]
		digits, ok := ungroup(intPart, thousands)
		if !ok || strings.ContainsAny(frac, ",.") {
			return "", ErrInvalidAmount
		}
		return digits + "." + frac, nil

	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			return strings.Replace(s, ",", ".", 1), nil
		}
		digits, ok := ungroup(s, ",")
		if !ok {
			return "", ErrInvalidAmount
		}
		return digits, nil

	case lastDot >= 0:
		groups := strings.Split(s, ".")
		last := groups[len(groups)-1]
		if len(groups) == 2 {
			if len(last) == 3 && isLeadingGroup(groups[0]) {
				return groups[0] + last, nil
			}
			return s, nil
		}
		if len(last) == 2 {
			digits, ok := ungroup(strings.Join(groups[:len(groups)-1], "."), ".")
			if !ok {
				return "", ErrInvalidAmount
			}
			return digits + "." + last, nil
		}
		digits, ok := ungroup(s, ".")
		if !ok {
			return "", ErrInvalidAmount
		}
		return digits, nil
	}

	return s, nil
}

// ungroup removes thousands separators, requiring a 1-3 digit leading group
// followed by groups of exactly three digits.
func ungroup(s, sep string) (string, bool) {
	if !strings.Contains(s, sep) {
		return s, s != ""
	}
	groups := strings.Split(s, sep)
	if !isLeadingGroup(groups[0]) {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	return strings.Join(groups, ""), true
}

// isLeadingGroup reports whether g can open a thousands-grouped number.
// A leading zero never starts a group, so "0.125" stays a fraction.
func isLeadingGroup(g string) bool {
	return len(g) >= 1 && len(g) <= 3 && g[0] != '0'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
