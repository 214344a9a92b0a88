package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/codementor-labs/codementor/internal/nats"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memoryStore struct {
	mu    sync.Mutex
	data  map[uuid.UUID][]Message
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[uuid.UUID][]Message)}
}

func (s *memoryStore) Load(_ context.Context, userID uuid.UUID) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.data[userID]...), nil
}

func (s *memoryStore) Save(_ context.Context, userID uuid.UUID, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = append([]Message(nil), messages...)
	s.saves++
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []inats.AuditEvent
}

func (s *recordingSink) PublishAuditEvent(_ context.Context, event inats.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type controllerOpts struct {
	capacity float64
	refill   float64
	quota    int
	cfg      ControllerConfig
	sink     eventPublisher
	store    *memoryStore
}

func newTestChatController(clock *fakeClock, opts controllerOpts, providers ...Provider) (*Controller, *memoryStore) {
	if opts.capacity == 0 {
		opts.capacity = 10_000
	}
	if opts.quota == 0 {
		opts.quota = 125
	}
	if opts.cfg.MaxCodeLines == 0 {
		opts.cfg.MaxCodeLines = 150
	}
	if opts.cfg.HistoryMaxMessages == 0 {
		opts.cfg.HistoryMaxMessages = 100
	}
	if opts.cfg.HistoryRetainedBudget == 0 {
		opts.cfg.HistoryRetainedBudget = 100_000
	}
	if opts.store == nil {
		opts.store = newMemoryStore()
	}

	est := NewEstimator()
	trimmer := NewTrimmer(est)
	orch := NewOrchestrator(providers, trimmer, est, 100, 10, 0)
	orch.sleep = func(time.Duration) {}

	registry := NewRegistry(opts.capacity, opts.refill, opts.quota, clock.Now)
	return NewController(registry, orch, trimmer, opts.store, opts.sink, opts.cfg, clock.Now), opts.store
}

func replyProvider(name string, total int) *fakeProvider {
	return &fakeProvider{
		name:  name,
		limit: 1_000_000,
		reply: &Reply{
			Content: "here is an answer",
			Usage:   Usage{PromptTokens: total - 1, CompletionTokens: 1, TotalTokens: total},
		},
	}
}

var testTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestController_Reply(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 120)
	c, store := newTestChatController(clock, controllerOpts{}, provider)
	userID := uuid.New()

	result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "what is a slice?"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeReply, result.Outcome)
	assert.Equal(t, "here is an answer", result.Reply)
	assert.Equal(t, "gemini", result.Provider)
	assert.Equal(t, 120, result.Usage.TotalTokens)

	// The real cost is billed against the bucket.
	limits := c.Limits(userID)
	assert.InDelta(t, 10_000-120, limits.TokensAvailable, 0.001)
	assert.Equal(t, 1, limits.QuotaUsed)

	// Provider saw system message, then the user turn.
	require.Len(t, provider.prompts, 1)
	require.Len(t, provider.prompts[0], 2)
	assert.Equal(t, RoleSystem, provider.prompts[0][0].Role)
	assert.Equal(t, "what is a slice?", provider.prompts[0][1].Content)

	// History was persisted with the reply appended.
	require.Len(t, store.data[userID], 3)
	assert.Equal(t, RoleModel, store.data[userID][2].Role)
}

func TestController_CodeFormattedAsFencedBlock(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 10)
	c, _ := newTestChatController(clock, controllerOpts{}, provider)

	_, err := c.Chat(context.Background(), uuid.New(), ChatRequest{
		Message:  "why does this not compile?",
		Code:     "func main() {\n\tfmt.Println(x)\n}",
		Language: "go",
	})

	require.NoError(t, err)
	prompt := provider.prompts[0][1].Content
	assert.Contains(t, prompt, "why does this not compile?")
	assert.Contains(t, prompt, "```go\nfunc main() {")
}

func TestController_OversizedCodeRefusedBeforeAccounting(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 10)
	sink := &recordingSink{}
	c, store := newTestChatController(clock, controllerOpts{sink: sink}, provider)
	userID := uuid.New()

	code := strings.Repeat("x := 1\n", 151)
	result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "help", Code: code})

	require.NoError(t, err)
	assert.Equal(t, OutcomeOversizedInput, result.Outcome)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 0, store.saves)

	// Counters never moved.
	limits := c.Limits(userID)
	assert.Equal(t, 10_000.0, limits.TokensAvailable)
	assert.Equal(t, 0, limits.QuotaUsed)

	assert.Equal(t, []string{inats.EventOversizedInput}, sink.types())
}

func TestController_ExactlyMaxCodeLinesAccepted(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 10)
	c, _ := newTestChatController(clock, controllerOpts{}, provider)

	code := strings.TrimRight(strings.Repeat("x := 1\n", 150), "\n")
	result, err := c.Chat(context.Background(), uuid.New(), ChatRequest{Message: "help", Code: code})

	require.NoError(t, err)
	assert.Equal(t, OutcomeReply, result.Outcome)
}

func TestController_RateLimitedWhenBucketEmpty(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 1)
	c, _ := newTestChatController(clock, controllerOpts{capacity: 6, refill: 0}, provider)
	userID := uuid.New()

	for i := 0; i < 6; i++ {
		result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
		require.NoError(t, err)
		require.Equal(t, OutcomeReply, result.Outcome, "request %d", i+1)
	}

	result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRateLimited, result.Outcome)
	assert.Equal(t, 6, provider.calls, "refused request never reaches a provider")
}

func TestController_RefillReadmitsAfterWait(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 1)
	c, _ := newTestChatController(clock, controllerOpts{capacity: 2, refill: 1.0}, provider)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
		require.Equal(t, OutcomeReply, result.Outcome)
	}
	result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.Equal(t, OutcomeRateLimited, result.Outcome)

	clock.Advance(1500 * time.Millisecond)

	result, _ = c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	assert.Equal(t, OutcomeReply, result.Outcome)
}

func TestController_QuotaExceeded(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 1)
	c, _ := newTestChatController(clock, controllerOpts{quota: 2}, provider)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
		require.Equal(t, OutcomeReply, result.Outcome)
	}

	before := c.Limits(userID).TokensAvailable
	result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuotaExceeded, result.Outcome)

	// The refusal did not touch the bucket either.
	assert.Equal(t, before, c.Limits(userID).TokensAvailable)
	assert.Equal(t, 2, provider.calls)
}

func TestController_QuotaResetsAtMidnightUTC(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	provider := replyProvider("gemini", 1)
	c, _ := newTestChatController(clock, controllerOpts{quota: 1}, provider)
	userID := uuid.New()

	result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.Equal(t, OutcomeReply, result.Outcome)

	result, _ = c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.Equal(t, OutcomeQuotaExceeded, result.Outcome)

	clock.Advance(2 * time.Hour) // crosses midnight UTC

	result, _ = c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	assert.Equal(t, OutcomeReply, result.Outcome)
	assert.Equal(t, 1, c.Limits(userID).QuotaUsed)
}

func TestController_AllProvidersFailedLeavesStateUntouched(t *testing.T) {
	clock := newFakeClock(testTime)
	okProvider := replyProvider("gemini", 10)
	sink := &recordingSink{}
	store := newMemoryStore()

	// Seed some history and spent budget with one good request, then make
	// every provider fail.
	c, _ := newTestChatController(clock, controllerOpts{sink: sink, store: store}, okProvider)
	userID := uuid.New()
	result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.Equal(t, OutcomeReply, result.Outcome)

	okProvider.err = errors.New("everything is on fire")

	beforeLimits := c.Limits(userID)
	beforeHistory, err := c.History(context.Background(), userID)
	require.NoError(t, err)
	savesBefore := store.saves

	result, err = c.Chat(context.Background(), userID, ChatRequest{Message: "are you there?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllProvidersFailed, result.Outcome)

	afterLimits := c.Limits(userID)
	afterHistory, err := c.History(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, beforeLimits, afterLimits)
	assert.Equal(t, beforeHistory, afterHistory)
	assert.Equal(t, savesBefore, store.saves)

	types := sink.types()
	assert.Contains(t, types, inats.EventProviderFailed)
	assert.Equal(t, inats.EventProvidersExhausted, types[len(types)-1])
}

func TestController_FailoverBillsOnlyTheWinner(t *testing.T) {
	clock := newFakeClock(testTime)
	primary := &fakeProvider{name: "gemini", limit: 1_000_000, err: errors.New("overloaded")}
	secondary := replyProvider("openai", 50)
	c, _ := newTestChatController(clock, controllerOpts{}, primary, secondary)
	userID := uuid.New()

	result, err := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeReply, result.Outcome)
	assert.Equal(t, "openai", result.Provider)
	assert.InDelta(t, 10_000-50, c.Limits(userID).TokensAvailable, 0.001)
}

func TestController_HistoryRetrimmedWhenTooLong(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 1)
	c, _ := newTestChatController(clock, controllerOpts{
		cfg: ControllerConfig{HistoryMaxMessages: 4, HistoryRetainedBudget: 30},
	}, provider)
	userID := uuid.New()

	for i := 0; i < 4; i++ {
		result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "another question about interfaces"})
		require.Equal(t, OutcomeReply, result.Outcome)
	}

	history, err := c.History(context.Background(), userID)
	require.NoError(t, err)

	assert.Less(t, len(history), 9)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, RoleModel, history[len(history)-1].Role)
}

func TestController_HistorySurvivesRestart(t *testing.T) {
	clock := newFakeClock(testTime)
	store := newMemoryStore()
	provider := replyProvider("gemini", 10)
	c1, _ := newTestChatController(clock, controllerOpts{store: store}, provider)
	userID := uuid.New()

	result, _ := c1.Chat(context.Background(), userID, ChatRequest{Message: "remember me"})
	require.Equal(t, OutcomeReply, result.Outcome)

	// Fresh controller, same store: history comes back from persistence.
	c2, _ := newTestChatController(clock, controllerOpts{store: store}, provider)
	history, err := c2.History(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, history, 3)
	assert.Equal(t, "remember me", history[1].Content)
}

func TestController_ClearHistoryKeepsCounters(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := replyProvider("gemini", 10)
	c, store := newTestChatController(clock, controllerOpts{}, provider)
	userID := uuid.New()

	result, _ := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
	require.Equal(t, OutcomeReply, result.Outcome)
	spent := c.Limits(userID)

	require.NoError(t, c.ClearHistory(context.Background(), userID))

	history, err := c.History(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, RoleSystem, history[0].Role)

	_, exists := store.data[userID]
	assert.False(t, exists)
	assert.Equal(t, spent, c.Limits(userID))
}

func TestController_FreshUserStartsWithSystemMessage(t *testing.T) {
	clock := newFakeClock(testTime)
	c, _ := newTestChatController(clock, controllerOpts{}, replyProvider("gemini", 1))

	history, err := c.History(context.Background(), uuid.New())

	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.NotEmpty(t, history[0].Content)
}

func TestController_EmitsCompletionEvent(t *testing.T) {
	clock := newFakeClock(testTime)
	sink := &recordingSink{}
	c, _ := newTestChatController(clock, controllerOpts{sink: sink}, replyProvider("gemini", 10))

	_, err := c.Chat(context.Background(), uuid.New(), ChatRequest{Message: "hi"})

	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, inats.EventChatCompleted, sink.events[0].EventType)
	assert.Equal(t, "gemini", sink.events[0].Provider)
}

// slowProvider flags overlapping Generate calls.
type slowProvider struct {
	inFlight int32
	overlap  int32
}

func (p *slowProvider) Name() string      { return "slow" }
func (p *slowProvider) ContextLimit() int { return 1_000_000 }

func (p *slowProvider) CountTokens(_ context.Context, text string) (int, error) {
	return len(text), nil
}

func (p *slowProvider) Generate(context.Context, []Message, int) (*Reply, error) {
	if atomic.AddInt32(&p.inFlight, 1) > 1 {
		atomic.AddInt32(&p.overlap, 1)
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&p.inFlight, -1)
	return &Reply{Content: "ok", Usage: Usage{TotalTokens: 1}}, nil
}

func TestController_OneCallInFlightPerUser(t *testing.T) {
	clock := newFakeClock(testTime)
	provider := &slowProvider{}
	c, _ := newTestChatController(clock, controllerOpts{}, provider)
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Chat(context.Background(), userID, ChatRequest{Message: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&provider.overlap))
}
