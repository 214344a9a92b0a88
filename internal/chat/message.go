package chat

import (
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleModel:
		return true
	}
	return false
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemPrompt is prepended to every conversation as the instruction message.
const SystemPrompt = "You are a concise coding instructor. Explain concepts clearly, " +
	"point out mistakes directly, and prefer short runnable examples over long prose."

// BuildUserContent combines free text and an optional fenced code block into
// one message body.
func BuildUserContent(text, code, language string) string {
	text = strings.TrimSpace(text)
	if code == "" {
		return text
	}

	var b strings.Builder
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "```%s\n%s\n```", language, strings.TrimRight(code, "\n"))
	return b.String()
}

// CountCodeLines counts the lines of a code snippet. Empty code is zero lines.
func CountCodeLines(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(code, "\n"), "\n") + 1
}
