package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds audit events until the persister consumes them.
const StreamEvents = "CODEMENTOR_EVENTS"

// Subject constants.
const (
	SubjectAuditEvent = "codementor.events.audit"
)

// Audit event types emitted by the chat core.
const (
	EventChatCompleted      = "chat_completed"
	EventRateLimited        = "rate_limited"
	EventQuotaExceeded      = "quota_exceeded"
	EventOversizedInput     = "oversized_input"
	EventProviderFailed     = "provider_failed"
	EventProvidersExhausted = "providers_exhausted"
	EventUserPromoted       = "user_promoted"
	EventUserDemoted        = "user_demoted"
)

// AuditEvent is published for compliance/audit logging.
type AuditEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"` // info, warn, error
	Provider  string    `json:"provider,omitempty"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}
