// Package llm talks to the chat/vision model providers used for image
// descriptions and summaries.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/streed/snap-notes/internal/config"
)

// Generator produces text from a prompt and optional PNG images.
type Generator interface {
	Generate(ctx context.Context, prompt string, images ...[]byte) (string, error)
	Name() string
}

// Options selects and configures one provider.
type Options struct {
	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New builds the Generator for opts.Provider.
func New(opts Options) (Generator, error) {
	switch opts.Provider {
	case config.ProviderOllama, "":
		return NewOllama(opts), nil
	case config.ProviderOpenAI:
		return NewOpenAI(opts), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", opts.Provider)
}

// VLMOptions maps the vlm config section.
func VLMOptions(c config.VLMConfig) Options {
	return Options{
		Provider: c.Provider,
		Endpoint: c.Endpoint,
		Model:    c.Model,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout.Std(),
	}
}

// SummaryOptions maps the summary config section.
func SummaryOptions(c config.SummaryConfig, timeout time.Duration) Options {
	return Options{
		Provider: c.Provider,
		Endpoint: c.Endpoint,
		Model:    c.Model,
		APIKey:   c.APIKey,
		Timeout:  timeout,
	}
}
