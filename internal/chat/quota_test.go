package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyQuota_ConsumeUpToLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDailyQuota(3, now)

	assert.True(t, q.consume(now))
	assert.True(t, q.consume(now))
	assert.True(t, q.consume(now))
	assert.False(t, q.consume(now))
	assert.Equal(t, 3, q.used)
}

func TestDailyQuota_RefusedConsumeNotCharged(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDailyQuota(1, now)

	q.consume(now)
	q.consume(now)
	q.consume(now)

	assert.Equal(t, 1, q.used)
}

func TestDailyQuota_ResetsAtMidnightUTC(t *testing.T) {
	// 23:59 on the 10th, reset must land one minute later, not 24h later.
	evening := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	q := newDailyQuota(1, evening)

	assert.True(t, q.consume(evening))
	assert.False(t, q.consume(evening))

	pastMidnight := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	assert.True(t, q.consume(pastMidnight))
}

func TestDailyQuota_NoResetWithinSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	q := newDailyQuota(1, morning)

	assert.True(t, q.consume(morning))

	evening := time.Date(2026, 3, 10, 23, 55, 0, 0, time.UTC)
	assert.False(t, q.consume(evening))
}

func TestDailyQuota_ResetAcrossMonthBoundary(t *testing.T) {
	endOfMonth := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	q := newDailyQuota(1, endOfMonth)
	q.consume(endOfMonth)

	nextMonth := time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)
	assert.True(t, q.consume(nextMonth))
}

func TestDailyQuota_ResetAcrossYearBoundary(t *testing.T) {
	newYearsEve := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)
	q := newDailyQuota(1, newYearsEve)
	q.consume(newYearsEve)

	newYear := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	assert.True(t, q.consume(newYear))
}

func TestDailyQuota_SameDayOfDifferentMonth(t *testing.T) {
	// Same day-of-month a month later is still a different calendar date.
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDailyQuota(1, march)
	q.consume(march)

	april := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	assert.True(t, q.consume(april))
}

func TestDailyQuota_NonUTCTimesCompareOnUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 02:00 local on the 11th is 21:00 UTC on the 10th.
	local := time.Date(2026, 3, 11, 2, 0, 0, 0, loc)
	q := newDailyQuota(1, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	q.consume(local)

	assert.Equal(t, 1, q.used, "local date change must not trigger a reset")
	assert.False(t, q.consume(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)))
}

func TestDailyQuota_Refund(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDailyQuota(2, now)

	q.consume(now)
	q.refund()

	assert.Equal(t, 0, q.used)
	q.refund()
	assert.Equal(t, 0, q.used)
}

func TestDailyQuota_Remaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDailyQuota(5, now)

	q.consume(now)
	q.consume(now)

	assert.Equal(t, 3, q.remaining(now))

	tomorrow := now.AddDate(0, 0, 1)
	assert.Equal(t, 5, q.remaining(tomorrow))
	assert.Equal(t, 0, q.used)
}
