package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

var (
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
)

// NormalizeDate accepts ISO dates (YYYY-MM-DD) and day-first slash dates
// (DD/MM/YYYY, DD/MM/YY). Two-digit years are read as 20YY.
func NormalizeDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if isoDatePattern.MatchString(raw) {
		t, err := time.ParseInLocation(isoLayout, raw, time.UTC)
		if err != nil {
			return time.Time{}, ErrInvalidDate
		}
		return t, nil
	}

	m := slashDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, ErrInvalidDate
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date rolls 31/02 over into March
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders a normalized date in ISO form.
func FormatDate(t time.Time) string {
	return t.Format(isoLayout)
}

// NormalizeYear parses a four digit calendar year.
func NormalizeYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 4 {
		return 0, ErrInvalidYear
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 {
		return 0, ErrInvalidYear
	}
	return year, nil
}
