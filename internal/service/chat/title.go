package chat

import (
	"strings"

	"loom/internal/domain/models"
)

const titleMaxRunes = 80

// DeriveTitle turns the first user message into a conversation title:
// whitespace collapsed, capped at 80 runes with a trailing ellipsis.
// Content with no visible text keeps the placeholder title.
func DeriveTitle(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if collapsed == "" {
		return models.DefaultConversationTitle
	}

	runes := []rune(collapsed)
	if len(runes) <= titleMaxRunes {
		return collapsed
	}
	return string(runes[:titleMaxRunes-1]) + "…"
}
