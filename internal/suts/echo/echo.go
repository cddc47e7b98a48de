// Package echo provides a SUT that answers every prompt with the prompt text.
package echo

import (
	"context"
	"strings"

	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Request is the text to echo and how many times.
type Request struct {
	Text           string `json:"text"`
	NumCompletions int    `json:"num_completions"`
}

// Response holds the echoed completions.
type Response struct {
	Texts []string `json:"texts"`
}

// SUT echoes prompts back. Chat prompts are echoed as their last message.
type SUT struct {
	uid string
}

// New returns an echo SUT with the given UID.
func New(uid string) *SUT {
	return &SUT{uid: uid}
}

func (s *SUT) UID() string { return s.uid }

func (s *SUT) InitializationRecord() identity.InitializationRecord {
	return identity.InitializationRecord{Type: "echo", Args: map[string]any{"uid": s.uid}}
}

func (s *SUT) Capabilities() sut.Capabilities {
	return sut.NewCapabilities(sut.AcceptsTextPrompt, sut.AcceptsChatPrompt, sut.ProducesMultipleCompletions)
}

func (s *SUT) TranslateTextPrompt(p prompt.TextPrompt) (Request, error) {
	return Request{Text: p.Text, NumCompletions: p.Options.NumCompletions}, nil
}

func (s *SUT) TranslateChatPrompt(p prompt.ChatPrompt) (Request, error) {
	return Request{Text: prompt.Text(p), NumCompletions: p.Options.NumCompletions}, nil
}

func (s *SUT) Evaluate(_ context.Context, req Request) (Response, error) {
	n := max(req.NumCompletions, 1)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = req.Text
	}
	return Response{Texts: texts}, nil
}

func (s *SUT) TranslateResponse(_ Request, resp Response) (sut.Response, error) {
	completions := make([]sut.Completion, len(resp.Texts))
	for i, t := range resp.Texts {
		completions[i] = sut.Completion{Text: strings.Clone(t)}
	}
	return sut.Response{Completions: completions}, nil
}
