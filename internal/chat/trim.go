package chat

import (
	"context"
	"log/slog"

	"github.com/codementor-labs/codementor/internal/metrics"
)

// tokenCounter is the narrow counting surface the trimmer needs from a
// provider.
type tokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Trimmer fits a conversation into a token budget. It keeps the system
// message (always at position 0 when present) and the largest contiguous
// suffix of the remaining messages that fits. Older messages are dropped
// first; the middle of a conversation is never cut out.
type Trimmer struct {
	estimator *Estimator
}

func NewTrimmer(estimator *Estimator) *Trimmer {
	return &Trimmer{estimator: estimator}
}

// Fit returns messages trimmed to budget tokens, counting with counter and
// falling back to estimation when counting fails. When at least one
// non-system message exists, the result always contains the newest one, even
// if it alone exceeds the budget. Fit is idempotent: trimming an
// already-fitting conversation returns it unchanged.
func (t *Trimmer) Fit(ctx context.Context, counter tokenCounter, messages []Message, budget int) []Message {
	if len(messages) == 0 {
		return messages
	}

	var system *Message
	rest := messages
	if messages[0].Role == RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	remaining := budget
	if system != nil {
		remaining -= t.count(ctx, counter, system.Content)
	}

	// Walk newest to oldest, accepting messages while they fit.
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := t.count(ctx, counter, rest[i].Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		keepFrom = i
	}

	// A conversation with messages in it never trims to nothing.
	if keepFrom == len(rest) && len(rest) > 0 {
		keepFrom = len(rest) - 1
	}

	if keepFrom == 0 {
		return messages
	}

	metrics.HistoryTrimsTotal.Inc()
	slog.Debug("trimmed conversation history", "dropped", keepFrom, "kept", len(rest)-keepFrom)

	out := make([]Message, 0, 1+len(rest)-keepFrom)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest[keepFrom:]...)
	return out
}

func (t *Trimmer) count(ctx context.Context, counter tokenCounter, text string) int {
	if counter != nil {
		if n, err := counter.CountTokens(ctx, text); err == nil {
			return n
		}
	}
	return t.estimator.Estimate(text)
}
