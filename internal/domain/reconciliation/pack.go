// Package reconciliation holds the pure part of marketplace stock
// reconciliation: pack-size detection, multi-pack collapse and primary-row
// correction planning. Nothing here performs I/O.
package reconciliation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// packPattern matches "<integer> pack" with an optional hyphen or space.
// The edges are checked by findPackCount with Unicode word characters, which
// RE2's ASCII-only \b cannot express.
var packPattern = regexp.MustCompile(`(?i)(\d+)\s*[- ]?pack`)

// ParsePackSize returns the pack multiplier named in a display text.
// ok is false when no pack size is present; that is "unknown", not 1.
// Full-width digits and compatibility characters are folded with NFKC first.
func ParsePackSize(text string) (size int, ok bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}
	digits, ok := findPackCount(strings.ToLower(norm.NFKC.String(text)))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// findPackCount returns the digits of the first "<n> pack" whose number is
// not the tail of a longer one and whose "pack" ends a word. Non-ASCII
// letters are word characters, so "5-packår" holds no pack size.
func findPackCount(s string) (string, bool) {
	for from := 0; from < len(s); {
		loc := packPattern.FindStringSubmatchIndex(s[from:])
		if loc == nil {
			return "", false
		}
		start, end := from+loc[0], from+loc[1]
		prev, _ := utf8.DecodeLastRuneInString(s[:start])
		next, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !unicode.IsDigit(prev)) && (end == len(s) || !isWordRune(next)) {
			return s[from+loc[2] : from+loc[3]], true
		}
		from = start + 1
	}
	return "", false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
