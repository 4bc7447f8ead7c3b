package engine

import (
	"strings"

	"chatd/pkg/types"
)

// BuildPrompt flattens prior history plus the new user turn into the single
// text prompt handed to the backend. The trailing assistant tag cues the
// model to respond.
func BuildPrompt(history []types.ChatMessage, prompt string) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString(types.RoleUser)
	b.WriteString(": ")
	b.WriteString(prompt)
	b.WriteString("\n")
	b.WriteString(types.RoleAssistant)
	b.WriteString(": ")
	return b.String()
}
