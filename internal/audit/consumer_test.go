package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/codementor-labs/codementor/internal/nats"
)

func TestAuditEventDeserialization(t *testing.T) {
	userID := uuid.New()

	event := inats.AuditEvent{
		UserID:    userID,
		EventType: inats.EventChatCompleted,
		Severity:  "info",
		Provider:  "gemini",
		Detail:    "reply served in 2 attempts",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded inats.AuditEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, userID, decoded.UserID)
	assert.Equal(t, inats.EventChatCompleted, decoded.EventType)
	assert.Equal(t, "info", decoded.Severity)
	assert.Equal(t, "gemini", decoded.Provider)
	assert.Equal(t, "reply served in 2 attempts", decoded.Detail)
}

func TestConvertEventToLog(t *testing.T) {
	event := inats.AuditEvent{
		UserID:    uuid.New(),
		EventType: inats.EventProviderFailed,
		Severity:  "warn",
		Provider:  "openai",
		Detail:    "upstream timeout",
		Timestamp: time.Now().UTC(),
	}

	log := convertEventToLog(event)

	assert.Equal(t, event.UserID, log.UserID)
	assert.Equal(t, inats.EventProviderFailed, log.EventType)
	assert.Equal(t, "warn", log.Severity)
	assert.Equal(t, "openai", log.Provider)
	assert.NotEqual(t, uuid.Nil, log.ID)

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "upstream timeout", details["message"])
}

func TestConvertEventToLog_EmptyDetail(t *testing.T) {
	log := convertEventToLog(inats.AuditEvent{
		UserID:    uuid.New(),
		EventType: inats.EventRateLimited,
		Severity:  "info",
		Timestamp: time.Now().UTC(),
	})

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "", details["message"])
}
