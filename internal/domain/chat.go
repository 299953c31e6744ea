package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// OpenAI-compatible completion client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single text completion.
type GenerateOptions struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}
