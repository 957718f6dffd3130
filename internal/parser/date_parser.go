package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRegex    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	legacyDateRegex = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	monthRegex      = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
)

// NormalizeDate converts a stored session date to YYYY-MM-DD.
// Supported formats:
// - yyyy-mm-dd (e.g., "2024-01-10")
// - mm/dd/yyyy, with or without zero padding (e.g., "1/10/2024")
func NormalizeDate(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty date")
	}

	var year, month, day int
	if m := isoDateRegex.FindStringSubmatch(input); m != nil {
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
	} else if m := legacyDateRegex.FindStringSubmatch(input); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	} else {
		return "", fmt.Errorf("invalid date format %q. Use: yyyy-mm-dd or mm/dd/yyyy", input)
	}

	if month < 1 || month > 12 {
		return "", fmt.Errorf("month must be between 1 and 12")
	}
	if day < 1 || day > 31 {
		return "", fmt.Errorf("day must be between 1 and 31")
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Check if date is valid (handles leap years, etc.)
	if date.Day() != day || date.Month() != time.Month(month) {
		return "", fmt.Errorf("invalid date %q", input)
	}

	return date.Format("2006-01-02"), nil
}

// IsLegacyDate reports whether s uses the mm/dd/yyyy form
func IsLegacyDate(s string) bool {
	return legacyDateRegex.MatchString(strings.TrimSpace(s))
}

// MonthFilter restricts listings to one calendar month
type MonthFilter struct {
	Year  int
	Month time.Month
}

// ParseMonthFilter parses a yyyy-mm month filter. Empty input yields nil.
func ParseMonthFilter(input string) (*MonthFilter, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	m := monthRegex.FindStringSubmatch(input)
	if m == nil {
		return nil, fmt.Errorf("invalid month %q. Use: yyyy-mm", input)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month must be between 1 and 12")
	}

	return &MonthFilter{Year: year, Month: time.Month(month)}, nil
}

// String renders the filter back as yyyy-mm
func (f MonthFilter) String() string {
	return fmt.Sprintf("%04d-%02d", f.Year, int(f.Month))
}

// LikePatterns returns SQL LIKE patterns matching the month in both the
// normalized and the legacy date forms.
func (f MonthFilter) LikePatterns() []string {
	return []string{
		fmt.Sprintf("%04d-%02d-%%", f.Year, int(f.Month)),
		fmt.Sprintf("%02d/%%/%04d", int(f.Month), f.Year),
		fmt.Sprintf("%d/%%/%04d", int(f.Month), f.Year),
	}
}

// FormatClock renders the display-only time-in/time-out string, e.g. "09:00 AM"
func FormatClock(t time.Time) string {
	return t.Format("03:04 PM")
}

// FormatDate renders a session date, e.g. "2024-01-10"
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatElapsed renders a live timer value as HH:MM:SS
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatHours renders a duration in hours the way the dashboard shows it
func FormatHours(hours float64) string {
	return fmt.Sprintf("%.1fh", hours)
}
