package chat

import "fireside/engine"

// Config controls a session's behavior. Zero fields fall back to the
// DefaultConfig values where a fallback makes sense.
type Config struct {
	// SystemPrompt seeds the conversation. Empty means no system message.
	SystemPrompt string

	// Tools the model may call. Registering at least one tool enables
	// grammar-constrained tool calling.
	Tools []Tool

	// ContextSize is the native context capacity in tokens.
	ContextSize int

	// AllowThinking leaves the model's reasoning blocks enabled.
	AllowThinking bool

	// Sampler is the decoding configuration used by every Ask until
	// replaced via SetSamplerConfig.
	Sampler engine.SamplerConfig

	// StopWords terminate generation when they appear in the aggregated
	// response; the response is trimmed at the first occurrence.
	StopWords []string

	// Format selects the tool-call wire syntax. Nil means Qwen3.
	Format ToolFormat

	// Template renders the prompt. Nil means the built-in ChatML layout.
	Template TemplateRenderer

	// KeepRecentTurns is how many of the latest user turns survive a
	// context shift. Zero means 2.
	KeepRecentTurns int
}

// DefaultConfig returns the settings used for absent Config fields.
func DefaultConfig() Config {
	return Config{
		ContextSize:     4096,
		AllowThinking:   true,
		Sampler:         engine.DefaultSamplerConfig(),
		Format:          Qwen3Format{},
		KeepRecentTurns: 2,
	}
}
