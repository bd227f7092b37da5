package internal

import "github.com/starford/othala/internal/embed"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	embedder embed.Provider
	mcpMode  bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithEmbedder overrides the embedding provider. Without it the configured
// fastembed model is loaded.
func WithEmbedder(p embed.Provider) Option {
	return func(a *application) {
		a.embedder = p
	}
}

// WithMCPMode switches Run to serve MCP over stdio instead of HTTP.
func WithMCPMode(enabled bool) Option {
	return func(a *application) {
		a.mcpMode = enabled
	}
}
