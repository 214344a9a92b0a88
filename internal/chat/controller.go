package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codementor-labs/codementor/internal/metrics"
	inats "github.com/codementor-labs/codementor/internal/nats"
)

// eventPublisher is the slice of the NATS publisher the controller uses.
type eventPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// ControllerConfig carries the admission knobs.
type ControllerConfig struct {
	MaxCodeLines          int
	HistoryMaxMessages    int
	HistoryRetainedBudget int
	SystemPrompt          string
}

// ChatRequest is one user submission.
type ChatRequest struct {
	Message  string
	Code     string
	Language string
}

// Controller is the single entry point for chat requests. It owns the
// admission decision (rate limit, daily quota, input size), hands admitted
// requests to the orchestrator, and settles token accounting afterwards.
//
// Every refusal is a Result value, not an error; the error return is reserved
// for infrastructure failures such as the history store being unreachable.
type Controller struct {
	registry *Registry
	orch     *Orchestrator
	trimmer  *Trimmer
	store    HistoryStore
	events   eventPublisher

	cfg ControllerConfig
	now func() time.Time
}

// NewController wires the admission controller. events may be nil when no
// audit trail is configured.
func NewController(registry *Registry, orch *Orchestrator, trimmer *Trimmer, store HistoryStore, events eventPublisher, cfg ControllerConfig, now func() time.Time) *Controller {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}
	return &Controller{
		registry: registry,
		orch:     orch,
		trimmer:  trimmer,
		store:    store,
		events:   events,
		cfg:      cfg,
		now:      now,
	}
}

// Chat resolves one request to an outcome. Refused requests leave the user's
// counters untouched; a request that reaches the providers but fails on all
// of them has its reservation rolled back, so the state afterwards matches
// the state before.
func (c *Controller) Chat(ctx context.Context, userID uuid.UUID, req ChatRequest) (Result, error) {
	// Size check runs before any accounting: an oversized paste costs nothing.
	if lines := CountCodeLines(req.Code); lines > c.cfg.MaxCodeLines {
		metrics.ChatRequestsTotal.WithLabelValues(string(OutcomeOversizedInput)).Inc()
		c.emit(ctx, userID, inats.EventOversizedInput, "info", "",
			fmt.Sprintf("code snippet of %d lines exceeds the %d line limit", lines, c.cfg.MaxCodeLines))
		return Result{Outcome: OutcomeOversizedInput}, nil
	}

	content := BuildUserContent(req.Message, req.Code, req.Language)

	state := c.registry.Get(userID)

	// One model call in flight per user, enforced for the whole request.
	state.callMu.Lock()
	defer state.callMu.Unlock()

	if err := c.ensureHistory(ctx, userID, state); err != nil {
		return Result{}, err
	}

	now := c.now()

	state.mu.Lock()
	if !state.bucket.reserve(now) {
		state.mu.Unlock()
		metrics.ChatRequestsTotal.WithLabelValues(string(OutcomeRateLimited)).Inc()
		c.emit(ctx, userID, inats.EventRateLimited, "info", "", "token bucket empty")
		return Result{Outcome: OutcomeRateLimited}, nil
	}
	if !state.quota.consume(now) {
		state.bucket.restore()
		state.mu.Unlock()
		metrics.ChatRequestsTotal.WithLabelValues(string(OutcomeQuotaExceeded)).Inc()
		c.emit(ctx, userID, inats.EventQuotaExceeded, "info", "", "daily request quota exhausted")
		return Result{Outcome: OutcomeQuotaExceeded}, nil
	}

	conversation := make([]Message, 0, len(state.history)+1)
	conversation = append(conversation, state.history...)
	conversation = append(conversation, Message{Role: RoleUser, Content: content})
	state.mu.Unlock()

	// The state lock is released here: the upstream call can take many
	// seconds and limit reads must not block behind it.
	reply, provider, err := c.orch.Dispatch(ctx, conversation, func(p string, perr error) {
		c.emit(ctx, userID, inats.EventProviderFailed, "warn", p, perr.Error())
	})

	state.mu.Lock()
	if err != nil {
		// Roll back the admission reservation and the quota charge: a
		// request nobody answered is not billed.
		state.bucket.restore()
		state.quota.refund()
		state.mu.Unlock()
		metrics.ChatRequestsTotal.WithLabelValues(string(OutcomeAllProvidersFailed)).Inc()
		c.emit(ctx, userID, inats.EventProvidersExhausted, "error", "", "every provider failed")
		return Result{Outcome: OutcomeAllProvidersFailed}, nil
	}

	cost := reply.Usage.TotalTokens
	if cost < 1 {
		cost = 1
	}
	state.bucket.settle(cost)

	state.history = append(state.history,
		Message{Role: RoleUser, Content: content},
		Message{Role: RoleModel, Content: reply.Content},
	)
	if len(state.history) > c.cfg.HistoryMaxMessages {
		state.history = c.trimmer.Fit(ctx, nil, state.history, c.cfg.HistoryRetainedBudget)
	}
	snapshot := append([]Message(nil), state.history...)
	state.mu.Unlock()

	metrics.ChatRequestsTotal.WithLabelValues(string(OutcomeReply)).Inc()
	metrics.TokensConsumedTotal.WithLabelValues(provider, "prompt").Add(float64(reply.Usage.PromptTokens))
	metrics.TokensConsumedTotal.WithLabelValues(provider, "completion").Add(float64(reply.Usage.CompletionTokens))

	// Persistence is write-behind: a storage hiccup loses durability, not
	// the reply.
	if err := c.store.Save(ctx, userID, snapshot); err != nil {
		slog.Error("saving conversation history", "error", err, "user", userID)
	}

	c.emit(ctx, userID, inats.EventChatCompleted, "info", provider,
		fmt.Sprintf("reply of %d tokens", reply.Usage.CompletionTokens))

	return Result{
		Outcome:  OutcomeReply,
		Reply:    reply.Content,
		Provider: provider,
		Usage:    reply.Usage,
	}, nil
}

// History returns the user's conversation, including the system message.
func (c *Controller) History(ctx context.Context, userID uuid.UUID) ([]Message, error) {
	state := c.registry.Get(userID)

	state.callMu.Lock()
	defer state.callMu.Unlock()

	if err := c.ensureHistory(ctx, userID, state); err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return append([]Message(nil), state.history...), nil
}

// ClearHistory wipes the user's conversation, keeping budget counters intact.
func (c *Controller) ClearHistory(ctx context.Context, userID uuid.UUID) error {
	state := c.registry.Get(userID)

	state.callMu.Lock()
	defer state.callMu.Unlock()

	if err := c.store.Delete(ctx, userID); err != nil {
		return err
	}

	state.mu.Lock()
	state.history = []Message{{Role: RoleSystem, Content: c.cfg.SystemPrompt}}
	state.historyLoaded = true
	state.mu.Unlock()
	return nil
}

// Limits reports the user's current budgets.
func (c *Controller) Limits(userID uuid.UUID) LimitsSnapshot {
	return c.registry.Limits(userID)
}

// ensureHistory lazily loads persisted history into memory. The system
// message always sits at position 0. Callers must hold callMu.
func (c *Controller) ensureHistory(ctx context.Context, userID uuid.UUID, state *UserState) error {
	state.mu.Lock()
	loaded := state.historyLoaded
	state.mu.Unlock()
	if loaded {
		return nil
	}

	msgs, err := c.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading conversation history: %w", err)
	}
	if len(msgs) == 0 || msgs[0].Role != RoleSystem {
		msgs = append([]Message{{Role: RoleSystem, Content: c.cfg.SystemPrompt}}, msgs...)
	}

	state.mu.Lock()
	state.history = msgs
	state.historyLoaded = true
	state.mu.Unlock()
	return nil
}

func (c *Controller) emit(ctx context.Context, userID uuid.UUID, eventType, severity, provider, detail string) {
	if c.events == nil {
		return
	}
	event := inats.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Provider:  provider,
		Detail:    detail,
		Timestamp: c.now().UTC(),
	}
	if err := c.events.PublishAuditEvent(ctx, event); err != nil {
		slog.Debug("publishing audit event", "error", err, "event_type", eventType)
	}
}
