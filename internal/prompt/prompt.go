// Package prompt defines the inputs sent to a system under test.
package prompt

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the concrete type of a Prompt.
type Kind string

const (
	KindText Kind = "text"
	KindChat Kind = "chat"
)

// Prompt is either a TextPrompt or a ChatPrompt.
// The interface is sealed: SUTs translate each kind with a dedicated method.
type Prompt interface {
	Kind() Kind
	isPrompt()
}

// Options are generation settings a SUT should honor when it can.
type Options struct {
	MaxTokens      int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP           *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	NumCompletions int      `json:"num_completions" yaml:"num_completions"`
	StopSequences  []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
}

// DefaultOptions returns the options used when a test does not set any.
func DefaultOptions() Options {
	return Options{
		MaxTokens:      100,
		NumCompletions: 1,
	}
}

// TextPrompt is a single block of text.
type TextPrompt struct {
	Text    string  `json:"text"`
	Options Options `json:"options"`
}

func (TextPrompt) Kind() Kind { return KindText }
func (TextPrompt) isPrompt()  {}

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleSUT    Role = "sut"
)

// ChatMessage is one turn of a ChatPrompt.
type ChatMessage struct {
	Text string `json:"text"`
	Role Role   `json:"role"`
}

// ChatPrompt is a multi-turn conversation. The SUT answers the last turn.
type ChatPrompt struct {
	Messages []ChatMessage `json:"messages"`
	Options  Options       `json:"options"`
}

func (ChatPrompt) Kind() Kind { return KindChat }
func (ChatPrompt) isPrompt()  {}

// WithContext pairs a Prompt with data used later for scoring.
// Context is never sent to the SUT.
type WithContext struct {
	Prompt   Prompt `json:"prompt"`
	SourceID string `json:"source_id,omitempty"`
	Context  any    `json:"context,omitempty"`
}

type wireWithContext struct {
	Kind     Kind            `json:"kind"`
	Prompt   json.RawMessage `json:"prompt"`
	SourceID string          `json:"source_id,omitempty"`
	Context  any             `json:"context,omitempty"`
}

// MarshalJSON tags the prompt with its kind so records can be read back.
func (p WithContext) MarshalJSON() ([]byte, error) {
	if p.Prompt == nil {
		return nil, fmt.Errorf("prompt is nil")
	}
	raw, err := json.Marshal(p.Prompt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireWithContext{
		Kind:     p.Prompt.Kind(),
		Prompt:   raw,
		SourceID: p.SourceID,
		Context:  p.Context,
	})
}

// UnmarshalJSON restores the concrete prompt type from its kind tag.
func (p *WithContext) UnmarshalJSON(data []byte) error {
	var w wireWithContext
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindText:
		var tp TextPrompt
		if err := json.Unmarshal(w.Prompt, &tp); err != nil {
			return fmt.Errorf("decoding text prompt: %w", err)
		}
		p.Prompt = tp
	case KindChat:
		var cp ChatPrompt
		if err := json.Unmarshal(w.Prompt, &cp); err != nil {
			return fmt.Errorf("decoding chat prompt: %w", err)
		}
		p.Prompt = cp
	default:
		return fmt.Errorf("unknown prompt kind %q", w.Kind)
	}
	p.SourceID = w.SourceID
	p.Context = w.Context
	return nil
}

// Text returns the text a reader would consider "the prompt": the text of a
// TextPrompt or the last message of a ChatPrompt.
func Text(p Prompt) string {
	switch v := p.(type) {
	case TextPrompt:
		return v.Text
	case ChatPrompt:
		if len(v.Messages) == 0 {
			return ""
		}
		return v.Messages[len(v.Messages)-1].Text
	default:
		return ""
	}
}

// AnswerContext is implemented by prompt contexts that carry an expected answer.
type AnswerContext interface {
	ExpectedAnswer() string
}

// ExpectedAnswer extracts the expected answer from a prompt context. It
// understands plain strings, AnswerContext values and contexts decoded from
// JSON with an "expected_answer" field.
func ExpectedAnswer(context any) (string, bool) {
	switch v := context.(type) {
	case string:
		return v, true
	case AnswerContext:
		return v.ExpectedAnswer(), true
	case map[string]any:
		s, ok := v["expected_answer"].(string)
		return s, ok
	default:
		return "", false
	}
}
