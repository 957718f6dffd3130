package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-01-10", "2024-01-10"},
		{"2024-1-5", "2024-01-05"},
		{"01/10/2024", "2024-01-10"},
		{"1/5/2024", "2024-01-05"},
		{" 12/31/2025 ", "2025-12-31"},
		{"2/29/2024", "2024-02-29"},
	}
	for _, tc := range cases {
		got, err := NormalizeDate(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "13/01/2024", "2/30/2024", "2023-02-29", "10.01.2024"} {
		_, err := NormalizeDate(in)
		assert.Error(t, err, in)
	}
}

func TestIsLegacyDate(t *testing.T) {
	assert.True(t, IsLegacyDate("1/10/2024"))
	assert.False(t, IsLegacyDate("2024-01-10"))
}

func TestParseMonthFilter(t *testing.T) {
	f, err := ParseMonthFilter("2024-01")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, 2024, f.Year)
	assert.Equal(t, time.January, f.Month)
	assert.Equal(t, "2024-01", f.String())
	assert.Equal(t, []string{"2024-01-%", "01/%/2024", "1/%/2024"}, f.LikePatterns())

	none, err := ParseMonthFilter("")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ParseMonthFilter("2024-13")
	assert.Error(t, err)
	_, err = ParseMonthFilter("01/2024")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:00 AM", FormatClock(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "01:30 PM", FormatClock(time.Date(2024, 1, 10, 13, 30, 0, 0, time.UTC)))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatElapsed(-time.Second))
	assert.Equal(t, "01:50:00", FormatElapsed(110*time.Minute))
	assert.Equal(t, "27:03:09", FormatElapsed(27*time.Hour+3*time.Minute+9*time.Second+400*time.Millisecond))
}
