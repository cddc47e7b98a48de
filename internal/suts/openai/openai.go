// Package openai provides a SUT backed by any OpenAI-compatible chat API,
// such as vLLM served by KServe.
package openai

import (
	"context"
	"fmt"

	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Response holds every returned choice.
type Response struct {
	Choices []string `json:"choices"`
}

// SUT sends prompts to a chat completion endpoint.
type SUT struct {
	uid         string
	model       string
	endpoint    string
	temperature *float64
	client      llm.Client
}

// Option configures a SUT.
type Option func(*SUT)

// WithTemperature sets the temperature of prompts that do not set one.
// It is part of every request, so it is part of every cache key.
func WithTemperature(t float64) Option {
	return func(s *SUT) {
		s.temperature = &t
	}
}

// New returns a SUT that talks to model through client. endpoint is only
// recorded; the client is expected to already point at it.
func New(uid, model, endpoint string, client llm.Client, opts ...Option) *SUT {
	s := &SUT{uid: uid, model: model, endpoint: endpoint, client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SUT) UID() string { return s.uid }

func (s *SUT) InitializationRecord() identity.InitializationRecord {
	args := map[string]any{"uid": s.uid, "model": s.model, "endpoint": s.endpoint}
	if s.temperature != nil {
		args["temperature"] = *s.temperature
	}
	return identity.InitializationRecord{Type: "openai", Args: args}
}

func (s *SUT) Capabilities() sut.Capabilities {
	return sut.NewCapabilities(sut.AcceptsTextPrompt, sut.AcceptsChatPrompt, sut.ProducesMultipleCompletions)
}

func (s *SUT) TranslateTextPrompt(p prompt.TextPrompt) (llm.ChatRequest, error) {
	req := s.request(p.Options)
	req.UserMessage = p.Text
	return req, nil
}

func (s *SUT) TranslateChatPrompt(p prompt.ChatPrompt) (llm.ChatRequest, error) {
	if len(p.Messages) == 0 {
		return llm.ChatRequest{}, fmt.Errorf("chat prompt has no messages")
	}
	req := s.request(p.Options)
	for _, m := range p.Messages {
		role, err := roleFor(m.Role)
		if err != nil {
			return llm.ChatRequest{}, err
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: m.Text})
	}
	return req, nil
}

func (s *SUT) Evaluate(ctx context.Context, req llm.ChatRequest) (Response, error) {
	resp, err := s.client.ChatCompletion(ctx, req)
	if err != nil {
		return Response{}, err
	}
	choices := resp.Choices
	if len(choices) == 0 {
		choices = []string{resp.Content}
	}
	return Response{Choices: choices}, nil
}

func (s *SUT) TranslateResponse(_ llm.ChatRequest, resp Response) (sut.Response, error) {
	completions := make([]sut.Completion, len(resp.Choices))
	for i, c := range resp.Choices {
		completions[i] = sut.Completion{Text: c}
	}
	return sut.Response{Completions: completions}, nil
}

func (s *SUT) request(opts prompt.Options) llm.ChatRequest {
	temperature := opts.Temperature
	if temperature == nil {
		temperature = s.temperature
	}
	return llm.ChatRequest{
		Model:       s.model,
		Temperature: temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		N:           opts.NumCompletions,
		Stop:        opts.StopSequences,
	}
}

func roleFor(r prompt.Role) (string, error) {
	switch r {
	case prompt.RoleSystem:
		return llm.RoleSystem, nil
	case prompt.RoleUser:
		return llm.RoleUser, nil
	case prompt.RoleSUT:
		return llm.RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown chat role %q", r)
	}
}
