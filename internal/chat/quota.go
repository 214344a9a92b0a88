package chat

import "time"

// dailyQuota counts requests per UTC calendar day. Callers must hold the
// owning UserState's mutex.
type dailyQuota struct {
	limit int
	used  int
	day   time.Time
}

func newDailyQuota(limit int, now time.Time) dailyQuota {
	return dailyQuota{limit: limit, day: now.UTC()}
}

// rollover resets the counter when the UTC calendar date has changed. The
// comparison is on year, month and day, never on elapsed seconds, so the
// reset lands exactly at midnight UTC.
func (q *dailyQuota) rollover(now time.Time) {
	y1, m1, d1 := q.day.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		q.used = 0
		q.day = now.UTC()
	}
}

// remaining reports how many requests are left today.
func (q *dailyQuota) remaining(now time.Time) int {
	q.rollover(now)
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

// consume charges one request against today's quota. Returns false without
// charging when the quota is exhausted.
func (q *dailyQuota) consume(now time.Time) bool {
	q.rollover(now)
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// refund returns a previously consumed request.
func (q *dailyQuota) refund() {
	if q.used > 0 {
		q.used--
	}
}
