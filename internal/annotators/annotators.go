// Package annotators builds annotators from their YAML configuration.
package annotators

import (
	"fmt"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/annotators/exact"
	"github.com/giantswarm/llm-gauge/internal/annotators/llmjudge"
	"github.com/giantswarm/llm-gauge/internal/annotators/regex"
	"github.com/giantswarm/llm-gauge/internal/llm"
)

// Annotator types.
const (
	TypeExact    = "exact"
	TypeRegex    = "regex"
	TypeLLMJudge = "llm_judge"
)

// Config describes one annotator of a test.
type Config struct {
	// Key names the annotator in records and measurements.
	Key  string `yaml:"key"`
	Type string `yaml:"type"`

	// exact
	NormalizeWhitespace bool `yaml:"normalize_whitespace"`
	IgnoreCase          bool `yaml:"ignore_case"`

	// regex
	Pattern string `yaml:"pattern"`

	// llm_judge
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Factory builds an annotator from its configuration.
type Factory func(cfg Config) (annotator.Annotator, error)

// UnsupportedTypeError is returned for an unknown annotator type.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return "unsupported annotator type: " + e.Type
}

// NewFactory returns a Factory. judge is the client used by llm_judge
// annotators; it may be nil when no test uses one.
func NewFactory(judge llm.Client) Factory {
	return func(cfg Config) (annotator.Annotator, error) {
		switch cfg.Type {
		case TypeExact, "":
			return annotator.Bind[exact.Request, exact.Response](&exact.Annotator{
				NormalizeWhitespace: cfg.NormalizeWhitespace,
				IgnoreCase:          cfg.IgnoreCase,
			}), nil
		case TypeRegex:
			a, err := regex.New(cfg.Pattern)
			if err != nil {
				return nil, fmt.Errorf("annotator %q: %w", cfg.Key, err)
			}
			return annotator.Bind[regex.Request, regex.Response](a), nil
		case TypeLLMJudge:
			if judge == nil {
				return nil, fmt.Errorf("annotator %q: no judge client configured", cfg.Key)
			}
			a := llmjudge.New(judge, llmjudge.WithModel(cfg.Model), llmjudge.WithSystemPrompt(cfg.SystemPrompt))
			return annotator.Bind[llmjudge.Request, llmjudge.Response](a), nil
		default:
			return nil, &UnsupportedTypeError{Type: cfg.Type}
		}
	}
}
