package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SyncKey derives the identifier shared by a local session and its remote copy.
//
// The key is date + "_" + time_in. Locale clocks often carry a narrow
// no-break space before AM/PM, so the input is NFKC-folded first. Slashes
// become dashes (legacy MM/DD/YYYY dates) and other characters that are
// unsafe in document paths are dropped.
func SyncKey(date, timeIn string) string {
	raw := norm.NFKC.String(strings.TrimSpace(date) + "_" + strings.TrimSpace(timeIn))

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('-')
		case unicode.IsControl(r):
		case strings.ContainsRune("#?[]*~`%", r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
