package catalog

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reInvalidLabel    = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	reInvalidRelation = regexp.MustCompile(`[^A-Z0-9_]+`)
	reUnderscores     = regexp.MustCompile(`_+`)
	reValidLabel      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	reValidRelation   = regexp.MustCompile(`^[A-Z0-9_]+$`)
)

// foldAccents turns "città" into "citta" so accented type names survive
// sanitization.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeTypeKey is the lookup key for type names: lower case, accents
// folded, underscores, hyphens and whitespace removed.
func normalizeTypeKey(s string) string {
	s = strings.ToLower(foldAccents(strings.TrimSpace(s)))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLabel reduces s to [A-Za-z0-9_] with an upper-case first letter.
// It returns "" when nothing usable remains.
func SanitizeLabel(s string) string {
	s = foldAccents(strings.TrimSpace(s))
	s = reInvalidLabel.ReplaceAllString(s, "_")
	s = reUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return ""
	}
	// Labels must not start with a digit.
	if s[0] >= '0' && s[0] <= '9' {
		s = "T_" + s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// SanitizeRelationType reduces s to [A-Z0-9_]+, falling back to
// DefaultRelation.
func SanitizeRelationType(s string) string {
	s = strings.ToUpper(foldAccents(strings.TrimSpace(s)))
	s = reInvalidRelation.ReplaceAllString(s, "_")
	s = reUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return DefaultRelation
	}
	return s
}

// ValidLabel reports whether s can be used verbatim as a node label.
func ValidLabel(s string) bool {
	return reValidLabel.MatchString(s)
}

// ValidRelationType reports whether s can be used verbatim as a
// relationship type.
func ValidRelationType(s string) bool {
	return reValidRelation.MatchString(s)
}

// IsGenericLabel reports whether label carries no type information.
func IsGenericLabel(label string) bool {
	return label == "" || label == GenericLabel || label == AnchorLabel
}
