package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signal-ai/backend/internal/chat/session"
)

const personaPrompt = `You are Signal, an analyst assistant for a customer feedback intelligence platform.
You answer questions about customer feedback using only the context provided below.
Cite concrete feedback where possible, be direct about negative signals, and say so plainly
when the context does not contain an answer. Keep responses concise and actionable.`

// contextDoc is one retrieved context entry before prompt serialization.
// Citable entries become response sources; synthetic entries (statistics)
// only shape the prompt.
type contextDoc struct {
	ID        string
	Type      string
	Content   string
	Relevance float64
	Metadata  map[string]string
	Citable   bool
}

// buildUserPrompt serializes the retrieved context, recent history and the
// question into a single user message. Each context entry becomes a
// [TYPE] block with its content and a metadata JSON line; history is
// replayed oldest first.
func buildUserPrompt(docs []contextDoc, history []session.Turn, question string) string {
	var b strings.Builder

	if len(docs) > 0 {
		b.WriteString("Context:\n\n")
		for _, doc := range docs {
			fmt.Fprintf(&b, "[%s]\n%s\n", strings.ToUpper(doc.Type), doc.Content)
			if len(doc.Metadata) > 0 {
				if meta, err := json.Marshal(doc.Metadata); err == nil {
					fmt.Fprintf(&b, "metadata: %s\n", meta)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
