package extract

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/llm"
	"github.com/streed/snap-notes/internal/models"
)

// DefaultVLMPrompt asks for a plain description suitable for search.
const DefaultVLMPrompt = "Describe this screenshot in a few sentences. Mention the application, the visible content and any notable text or numbers."

// VLM asks a vision model for a description of the capture.
type VLM struct {
	gen    llm.Generator
	prompt string
}

func NewVLM(gen llm.Generator, prompt string) *VLM {
	if prompt == "" {
		prompt = DefaultVLMPrompt
	}
	return &VLM{gen: gen, prompt: prompt}
}

func (v *VLM) Kind() models.AdapterKind { return models.KindVLM }

func (v *VLM) Extract(ctx context.Context, capture models.Capture) (Output, error) {
	text, err := v.gen.Generate(ctx, v.prompt, capture.Image())
	if err != nil {
		return Output{}, pkgerrors.Wrapf(err, "%s", v.gen.Name())
	}
	if text == "" {
		return Output{}, pkgerrors.Wrapf(interrors.ErrLowConfidence, "%s returned an empty description", v.gen.Name())
	}
	return Output{Text: text}, nil
}
