package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable Provider for tests.
type fakeProvider struct {
	name    string
	limit   int
	reply   *Reply
	err     error
	calls   int
	prompts [][]Message
}

func (p *fakeProvider) Name() string      { return p.name }
func (p *fakeProvider) ContextLimit() int { return p.limit }

func (p *fakeProvider) CountTokens(_ context.Context, text string) (int, error) {
	return len(text), nil // 1 token per char keeps budgets simple
}

func (p *fakeProvider) Generate(_ context.Context, messages []Message, _ int) (*Reply, error) {
	p.calls++
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return nil, p.err
	}
	return p.reply, nil
}

func newTestOrchestrator(providers ...Provider) (*Orchestrator, *int) {
	est := NewEstimator()
	o := NewOrchestrator(providers, NewTrimmer(est), est, 100, 10, 500*time.Millisecond)
	sleeps := 0
	o.sleep = func(time.Duration) { sleeps++ }
	return o, &sleeps
}

func TestOrchestrator_FirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", limit: 10_000, reply: &Reply{Content: "hello"}}
	secondary := &fakeProvider{name: "secondary", limit: 10_000, reply: &Reply{Content: "nope"}}
	o, sleeps := newTestOrchestrator(primary, secondary)

	reply, provider, err := o.Dispatch(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Content)
	assert.Equal(t, "primary", provider)
	assert.Equal(t, 0, secondary.calls)
	assert.Equal(t, 0, *sleeps)
}

func TestOrchestrator_FallsOverAfterFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", limit: 10_000, err: errors.New("upstream 503")}
	secondary := &fakeProvider{name: "secondary", limit: 10_000, reply: &Reply{Content: "backup"}}
	o, sleeps := newTestOrchestrator(primary, secondary)

	var failed []string
	reply, provider, err := o.Dispatch(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		func(p string, _ error) { failed = append(failed, p) })

	require.NoError(t, err)
	assert.Equal(t, "backup", reply.Content)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, []string{"primary"}, failed)
	assert.Equal(t, 1, *sleeps, "one backoff pause between the two attempts")
}

func TestOrchestrator_AllProvidersFailed(t *testing.T) {
	a := &fakeProvider{name: "a", limit: 10_000, err: errors.New("down")}
	b := &fakeProvider{name: "b", limit: 10_000, err: errors.New("also down")}
	o, _ := newTestOrchestrator(a, b)

	var failed []string
	reply, _, err := o.Dispatch(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		func(p string, _ error) { failed = append(failed, p) })

	assert.Nil(t, reply)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, []string{"a", "b"}, failed)
}

func TestOrchestrator_TrimsToEachProvidersBudget(t *testing.T) {
	// Limit 130, reserved 100, margin 10: only 20 tokens of prompt fit.
	// With 1 token per char, the 30-char history message must be dropped.
	tight := &fakeProvider{name: "tight", limit: 130, reply: &Reply{Content: "ok"}}
	o, _ := newTestOrchestrator(tight)

	history := []Message{
		{Role: RoleUser, Content: "012345678901234567890123456789"},
		{Role: RoleUser, Content: "short"},
	}
	_, _, err := o.Dispatch(context.Background(), history, nil)

	require.NoError(t, err)
	require.Len(t, tight.prompts, 1)
	require.Len(t, tight.prompts[0], 1)
	assert.Equal(t, "short", tight.prompts[0][0].Content)
}

func TestOrchestrator_CalibratesEstimatorFromUsage(t *testing.T) {
	p := &fakeProvider{name: "p", limit: 10_000, reply: &Reply{
		Content: "ok",
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	est := NewEstimator()
	o := NewOrchestrator([]Provider{p}, NewTrimmer(est), est, 100, 10, 0)
	o.sleep = func(time.Duration) {}

	// 20 chars over 10 prompt tokens: observed ratio 2.0.
	_, _, err := o.Dispatch(context.Background(), []Message{{Role: RoleUser, Content: "01234567890123456789"}}, nil)

	require.NoError(t, err)
	assert.InDelta(t, 3.4, est.charsPerToken, 0.001)
}
