package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserState is the in-memory budget and conversation state for one user.
//
// Two locks guard it: mu protects the fields and is never held across an
// upstream model call, so limit reads stay fast; callMu serializes whole chat
// requests so at most one model call is in flight per user.
type UserState struct {
	mu     sync.Mutex
	callMu sync.Mutex

	bucket tokenBucket
	quota  dailyQuota

	history       []Message
	historyLoaded bool
}

// Registry owns all per-user state. There is no global lock around chat
// requests; the registry lock is only held long enough to find or create an
// entry.
type Registry struct {
	mu     sync.Mutex
	states map[uuid.UUID]*UserState

	bucketCapacity float64
	refillRate     float64
	dailyQuota     int

	now func() time.Time
}

// NewRegistry creates a Registry. now is the clock used to initialize new
// state; pass time.Now outside of tests.
func NewRegistry(bucketCapacity, refillRate float64, dailyQuota int, now func() time.Time) *Registry {
	return &Registry{
		states:         make(map[uuid.UUID]*UserState),
		bucketCapacity: bucketCapacity,
		refillRate:     refillRate,
		dailyQuota:     dailyQuota,
		now:            now,
	}
}

// Get returns the state for userID, creating it with a full bucket and a
// fresh quota on first sight.
func (r *Registry) Get(userID uuid.UUID) *UserState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[userID]
	if !ok {
		now := r.now()
		state = &UserState{
			bucket: newTokenBucket(r.bucketCapacity, r.refillRate, now),
			quota:  newDailyQuota(r.dailyQuota, now),
		}
		r.states[userID] = state
	}
	return state
}

// LimitsSnapshot is a point-in-time view of a user's budgets.
type LimitsSnapshot struct {
	TokensAvailable float64   `json:"tokens_available"`
	BucketCapacity  float64   `json:"bucket_capacity"`
	RefillRate      float64   `json:"refill_rate"`
	QuotaUsed       int       `json:"quota_used"`
	QuotaLimit      int       `json:"quota_limit"`
	QuotaResetsAt   time.Time `json:"quota_resets_at"`
}

// Limits returns the current budgets for userID, refilling the bucket first
// so the numbers are current.
func (r *Registry) Limits(userID uuid.UUID) LimitsSnapshot {
	state := r.Get(userID)
	now := r.now()

	state.mu.Lock()
	defer state.mu.Unlock()

	state.bucket.refill(now)
	state.quota.rollover(now)

	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	return LimitsSnapshot{
		TokensAvailable: state.bucket.tokens,
		BucketCapacity:  state.bucket.capacity,
		RefillRate:      state.bucket.refillRate,
		QuotaUsed:       state.quota.used,
		QuotaLimit:      state.quota.limit,
		QuotaResetsAt:   midnight,
	}
}
