package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reDMY      = regexp.MustCompile(`^(\d{1,2})\s*[/.\-]\s*(\d{1,2})\s*[/.\-]\s*(\d{4})$`)
	reISO      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reDayMonth = regexp.MustCompile(`^(\d{1,2})\s*(?:°|º)?\s+([[:alpha:]]+)\.?\s+(\d{4})$`)
	reMonthDay = regexp.MustCompile(`^([[:alpha:]]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
)

const nameQuotes = "\"'`“”‘’«»"

var monthNames = map[string]time.Month{
	"gennaio": time.January, "febbraio": time.February, "marzo": time.March,
	"aprile": time.April, "maggio": time.May, "giugno": time.June,
	"luglio": time.July, "agosto": time.August, "settembre": time.September,
	"ottobre": time.October, "novembre": time.November, "dicembre": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	"gen": time.January, "mag": time.May, "giu": time.June, "lug": time.July,
	"ago": time.August, "set": time.September, "ott": time.October, "dic": time.December,
}

// CleanText drops invalid UTF-8 and control characters other than
// whitespace.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeName cleans s with CleanText, trims whitespace and surrounding
// quotes and collapses internal whitespace. Case is preserved.
func NormalizeName(s string) string {
	s = strings.TrimSpace(CleanText(s))
	for {
		trimmed := strings.TrimSpace(strings.Trim(s, nameQuotes))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return reSpaces.ReplaceAllString(s, " ")
}

// NameKey is the case-insensitive identity of an entity name.
func NameKey(s string) string {
	return strings.ToUpper(NormalizeName(s))
}

// NormalizeDate converts common Italian and English date spellings into
// yyyy-mm-dd. The second result is false when s is not a recognizable date.
func NormalizeDate(s string) (string, bool) {
	s = strings.ToLower(NormalizeName(s))
	if s == "" {
		return "", false
	}

	var day, month, year int
	switch {
	case reDMY.MatchString(s):
		m := reDMY.FindStringSubmatch(s)
		day, month, year = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case reISO.MatchString(s):
		m := reISO.FindStringSubmatch(s)
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case reDayMonth.MatchString(s):
		m := reDayMonth.FindStringSubmatch(s)
		mon, ok := monthNames[m[2]]
		if !ok {
			return "", false
		}
		day, month, year = atoi(m[1]), int(mon), atoi(m[3])
	case reMonthDay.MatchString(s):
		m := reMonthDay.FindStringSubmatch(s)
		mon, ok := monthNames[m[1]]
		if !ok {
			return "", false
		}
		day, month, year = atoi(m[2]), int(mon), atoi(m[3])
	default:
		return "", false
	}

	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
