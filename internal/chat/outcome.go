package chat

// Outcome classifies how the admission controller resolved a request.
type Outcome string

const (
	OutcomeReply              Outcome = "reply"
	OutcomeRateLimited        Outcome = "rate_limited"
	OutcomeQuotaExceeded      Outcome = "quota_exceeded"
	OutcomeOversizedInput     Outcome = "oversized_input"
	OutcomeAllProvidersFailed Outcome = "all_providers_failed"
)

// Result is the controller's answer for one chat request. Reply, Provider and
// Usage are only set when Outcome is OutcomeReply.
type Result struct {
	Outcome  Outcome
	Reply    string
	Provider string
	Usage    Usage
}
