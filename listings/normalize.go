package listings

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// unit and currency tokens stripped before numeric parsing, longest first so
// that "/m²" is removed before "m²".
var numericTokens = []string{
	"kv. m", "kv.m", "/kvm", "kvm", "/m²", "/m2", "m²", "m2", "€",
}

// ParseNumeric extracts a float from a display string such as "150 000 €" or
// "1 500,50 €/m²". It tolerates both Lithuanian and English separator
// conventions: when both "." and "," appear, the rightmost one is the decimal
// separator; a lone separator followed by one or two digits is decimal,
// otherwise it groups thousands. Returns nil when no number can be read.
func ParseNumeric(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	for _, tok := range numericTokens {
		for {
			i := strings.Index(lower, tok)
			if i < 0 {
				break
			}
			s = s[:i] + s[i+len(tok):]
			lower = lower[:i] + lower[i+len(tok):]
		}
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || s == "-" {
		return nil
	}

	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case comma >= 0:
		s = resolveSeparator(s, ',')
	case dot >= 0:
		s = resolveSeparator(s, '.')
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// resolveSeparator decides whether the single separator kind in s is decimal
// or a thousands grouper. One occurrence trailed by one or two digits reads
// as decimal; everything else is grouping and gets removed.
func resolveSeparator(s string, sep byte) string {
	first := strings.IndexByte(s, sep)
	last := strings.LastIndexByte(s, sep)
	if first == last {
		frac := len(s) - last - 1
		if frac >= 1 && frac <= 2 {
			if sep == ',' {
				return s[:last] + "." + s[last+1:]
			}
			return s
		}
	}
	return strings.ReplaceAll(s, string(sep), "")
}

// NormalizeKey lowercases and trims a text value for case-insensitive
// matching. Lowercasing uses Lithuanian casing rules so that dotted capital
// letters fold the way the source site writes them. The Caser is created per
// call because cases.Caser is not safe for concurrent use.
func NormalizeKey(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return cases.Lower(language.Lithuanian).String(s)
}
