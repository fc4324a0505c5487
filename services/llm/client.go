package llm

import "context"

// Chat roles accepted by Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat-completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the completion backend used to rewrite composed answers.
type LLMClient interface {
	// Chat sends the conversation and returns the first choice's content.
	// A non-2xx response or an empty choice list is an error.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Ping verifies the endpoint and credentials without generating text.
	Ping(ctx context.Context) error
}
