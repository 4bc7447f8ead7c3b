package types

import "time"

// Message roles. Only these two appear in a session's history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	// Role of the author, "user" or "assistant".
	// example: user
	Role string `json:"role" example:"user"`
	// Text content of the message.
	// example: Hello
	Content string `json:"content" example:"Hello"`
	// When the message was produced.
	Timestamp time.Time `json:"timestamp"`
}

// ModelConfig is the full parameter set that identifies one loadable engine.
// Two configs are interchangeable exactly when every field is equal; the
// Equal method is the single place that comparison is defined.
type ModelConfig struct {
	// Unique configuration name.
	// example: tinyllama-q4
	Name string `json:"name" yaml:"name" toml:"name" example:"tinyllama-q4"`
	// Absolute path to the model weights on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Context window size in tokens.
	// example: 4096
	ContextWindow int `json:"context_window,omitempty" yaml:"context_window" toml:"context_window" example:"4096"`
	// Maximum number of new tokens to generate per exchange.
	// example: 2048
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens" toml:"max_tokens" example:"2048"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature" toml:"temperature" example:"0.7"`
	// Whether sampling is enabled; false means greedy decoding.
	// example: true
	DoSample bool `json:"do_sample,omitempty" yaml:"do_sample" toml:"do_sample" example:"true"`
	// Nucleus sampling probability.
	// example: 0.95
	TopP float64 `json:"top_p,omitempty" yaml:"top_p" toml:"top_p" example:"0.95"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" yaml:"top_k" toml:"top_k" example:"40"`
	// Weight data type hint (e.g., float16).
	// example: float16
	DType string `json:"dtype,omitempty" yaml:"dtype" toml:"dtype" example:"float16"`
	// Whether remote code in model repos is trusted.
	// example: false
	TrustRemoteCode bool `json:"trust_remote_code,omitempty" yaml:"trust_remote_code" toml:"trust_remote_code" example:"false"`
}

// Equal reports structural equality over the full parameter set. Comparing
// by name alone is not enough to decide whether a reload can be skipped.
func (c ModelConfig) Equal(other ModelConfig) bool {
	return c == other
}
