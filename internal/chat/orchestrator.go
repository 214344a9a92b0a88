package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/codementor-labs/codementor/internal/metrics"
)

// Orchestrator tries providers in priority order until one produces a reply.
type Orchestrator struct {
	providers []Provider
	trimmer   *Trimmer
	estimator *Estimator

	reservedResponse int
	safetyMargin     int
	backoff          time.Duration

	sleep func(time.Duration)
}

// NewOrchestrator creates an Orchestrator over the given providers, tried in
// slice order.
func NewOrchestrator(providers []Provider, trimmer *Trimmer, estimator *Estimator, reservedResponse, safetyMargin int, backoff time.Duration) *Orchestrator {
	return &Orchestrator{
		providers:        providers,
		trimmer:          trimmer,
		estimator:        estimator,
		reservedResponse: reservedResponse,
		safetyMargin:     safetyMargin,
		backoff:          backoff,
		sleep:            time.Sleep,
	}
}

// Dispatch sends the conversation to each provider in turn, trimming it to
// that provider's budget first, and returns the first reply. A fixed backoff
// separates consecutive attempts. onFail, if non-nil, is invoked for every
// provider that errors. When every provider fails, the error is
// ErrAllProvidersFailed.
func (o *Orchestrator) Dispatch(ctx context.Context, messages []Message, onFail func(provider string, err error)) (*Reply, string, error) {
	for i, p := range o.providers {
		if i > 0 {
			o.sleep(o.backoff)
		}

		budget := p.ContextLimit() - o.reservedResponse - o.safetyMargin
		trimmed := o.trimmer.Fit(ctx, p, messages, budget)

		start := time.Now()
		reply, err := p.Generate(ctx, trimmed, o.reservedResponse)
		metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "error").Inc()
			slog.Warn("provider call failed", "provider", p.Name(), "error", err)
			if onFail != nil {
				onFail(p.Name(), err)
			}
			continue
		}

		metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "ok").Inc()
		o.calibrate(trimmed, reply.Usage)
		return reply, p.Name(), nil
	}

	return nil, "", ErrAllProvidersFailed
}

// calibrate feeds the real prompt token count back into the estimator so
// char-based estimates track the provider's tokenizer.
func (o *Orchestrator) calibrate(prompt []Message, usage Usage) {
	if usage.PromptTokens <= 0 {
		return
	}
	chars := 0
	for _, m := range prompt {
		chars += len(m.Content)
	}
	o.estimator.Calibrate(chars, usage.PromptTokens)
}
