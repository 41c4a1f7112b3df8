package openai

import "github.com/rtvoicechat/core/core/llms"

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

// toMessages flattens the turn history into a chat request. The system
// prompt is always first and survives trimming; when maxHistoryTurns is
// positive only the most recent turns are kept.
func toMessages(systemPrompt string, turns []llms.Turn, prompt string, maxHistoryTurns int) []message {
	messages := []message{}
	if systemPrompt != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: systemPrompt,
		})
	}

	if maxHistoryTurns > 0 && len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}

	for _, turn := range turns {
		if turn.User != "" {
			messages = append(messages, message{
				Role:    messageRoleUser,
				Content: turn.User,
			})
		}
		if turn.Assistant != "" {
			messages = append(messages, message{
				Role:    messageRoleAssistant,
				Content: turn.Assistant,
			})
		}
	}

	if prompt != "" {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: prompt,
		})
	}
	return messages
}
