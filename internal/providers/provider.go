// Package providers implements the model backends the runner drives:
// a deterministic dummy for pipeline smoke runs, a local Ollama client,
// and hosted OpenAI and Anthropic clients.
package providers

import (
	"context"
	"fmt"
	"time"

	"triagebench/internal/dataset"
)

// Usage carries token counts when the backend reports them. Pointers
// distinguish "not reported" from zero.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// Result is one generation attempt. Actual is nil when no parseable
// object came back; Status is "ok" or "error".
type Result struct {
	Actual        map[string]any
	LatencyMS     float64
	RawText       string
	Usage         *Usage
	Status        string
	ErrorType     string
	ErrorMsg      string
	PromptChars   int
	ResponseChars int
}

// Options configure a provider. Zero values fall back to the defaults
// the CLI advertises.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	NumPredict  int
	NumCtx      int
	JSONMode    bool
	Seed        int64
}

// Provider generates a candidate output for one case.
type Provider interface {
	Generate(ctx context.Context, c dataset.Case, model string) (*Result, error)
}

// New builds a provider by name.
func New(name string, opts Options) (Provider, error) {
	switch name {
	case "dummy":
		return NewDummy(opts.Seed), nil
	case "ollama":
		return NewOllama(opts), nil
	case "openai":
		return NewOpenAI(opts)
	case "anthropic":
		return NewAnthropic(opts)
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}

// Names lists the providers New accepts, for CLI help text.
func Names() []string {
	return []string{"dummy", "ollama", "openai", "anthropic"}
}

func intPtr(v int) *int { return &v }

func sumUsage(u *Usage) *Usage {
	if u == nil {
		return nil
	}
	if u.TotalTokens == nil && u.PromptTokens != nil && u.CompletionTokens != nil {
		u.TotalTokens = intPtr(*u.PromptTokens + *u.CompletionTokens)
	}
	return u
}
