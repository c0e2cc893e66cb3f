package llm

import "context"

// Request carries a single generation call.
type Request struct {
	// System is the persona/instruction prompt, may be empty.
	System string
	// Prompt is the user-facing task prompt.
	Prompt string
	// Temperature overrides the provider default when non-nil.
	Temperature *float32
}

// Client generates text completions.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Placeholder is used when no provider is configured. It returns a fixed
// notice so the pipeline stays exercisable in dev without credentials.
type Placeholder struct{}

func (Placeholder) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "LLM provider not configured; returning placeholder output.", nil
}
