package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
)

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.True(t, d.Equal(date(2025, time.March, 10)))
	assert.Equal(t, "2025-03-10", d.String())

	_, err = generic.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	plus5 := time.FixedZone("UTC+5", 5*60*60)
	// 02:00 at UTC+5 is still the previous day in UTC
	d := generic.DateOf(time.Date(2025, time.March, 10, 2, 0, 0, 0, plus5))

	assert.True(t, d.Equal(date(2025, time.March, 9)))
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to generic.TimePoint
		want     int
	}{
		{"same day", date(2025, 3, 3), date(2025, 3, 3), 0},
		{"same month", date(2025, 3, 1), date(2025, 3, 31), 0},
		{"month boundary", date(2025, 3, 31), date(2025, 4, 1), 1},
		{"across year", date(2024, 11, 15), date(2025, 2, 1), 3},
		{"backwards", date(2025, 5, 1), date(2025, 3, 1), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.MonthsBetween(tt.from, tt.to))
		})
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd generic.TimePoint
		want                       bool
	}{
		{"disjoint", date(2025, 3, 10), date(2025, 3, 14), date(2025, 3, 17), date(2025, 3, 21), false},
		{"touching end", date(2025, 3, 10), date(2025, 3, 14), date(2025, 3, 14), date(2025, 3, 18), true},
		{"contained", date(2025, 3, 10), date(2025, 3, 20), date(2025, 3, 12), date(2025, 3, 13), true},
		{"single day", date(2025, 3, 10), date(2025, 3, 10), date(2025, 3, 10), date(2025, 3, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, generic.Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestFixedClock(t *testing.T) {
	clock := generic.NewFixedClock(time.Date(2025, time.March, 3, 23, 30, 0, 0, time.UTC))
	assert.True(t, generic.Today(clock).Equal(date(2025, 3, 3)))

	clock.AdvanceDays(2)
	assert.True(t, generic.Today(clock).Equal(date(2025, 3, 5)))

	clock.Set(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2026, generic.Today(clock).Year())
}

func TestDays(t *testing.T) {
	half, err := generic.ParseDays("1.5")
	require.NoError(t, err)
	assert.True(t, generic.Days(1.5).Equal(half))
	_, err = generic.ParseDays("not a number")
	assert.Error(t, err)
	assert.True(t, generic.MinDays(generic.Days(3), generic.DaysFromInt(5)).Equal(generic.Days(3)))
	assert.True(t, generic.MinDays(generic.Days(8), generic.DaysFromInt(5)).Equal(generic.Days(5)))
}
