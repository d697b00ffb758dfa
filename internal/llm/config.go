// Package llm wraps the text-generation provider behind a small client interface.
package llm

import "time"

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for short rewrites such as title diversification
	TierLite ModelTier = "lite"
	// TierStandard is for full post generation
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form posts
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration
type Config struct {
	Provider    Provider             `yaml:"provider"`
	Models      map[ModelTier]string `yaml:"models"`
	Temperature float32              `yaml:"temperature"`
	MaxTokens   int32                `yaml:"max_tokens"`
	CallTimeout time.Duration        `yaml:"call_timeout"`
}

// DefaultConfig returns the Gemini configuration used for post generation
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: 0.9,
		MaxTokens:   2048,
		CallTimeout: 60 * time.Second,
	}
}

// GetModel returns the model name for a tier, falling back to standard then lite
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok && model != "" {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok && model != "" {
		return model
	}
	if model, ok := c.Models[TierLite]; ok && model != "" {
		return model
	}
	return ""
}

// WithModel returns a copy of c with model set for tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := *c
	next.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		next.Models[k] = v
	}
	next.Models[tier] = model
	return &next
}
