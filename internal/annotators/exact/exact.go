// Package exact grades a completion by comparing it with the expected answer.
package exact

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Request is what gets compared.
type Request struct {
	Output   string `json:"output"`
	Expected string `json:"expected"`
}

// Response carries the comparison outcome.
type Response struct {
	Match bool `json:"match"`
}

// Annotator compares the completion with the expected answer in the prompt context.
type Annotator struct {
	NormalizeWhitespace bool
	IgnoreCase          bool
}

var _ annotator.CompletionAnnotator[Request, Response] = (*Annotator)(nil)

func (a *Annotator) TranslateRequest(p prompt.WithContext, c sut.Completion) (Request, error) {
	expected, ok := prompt.ExpectedAnswer(p.Context)
	if !ok {
		return Request{}, fmt.Errorf("prompt context %T has no expected answer", p.Context)
	}
	return Request{Output: a.normalize(c.Text), Expected: a.normalize(expected)}, nil
}

func (a *Annotator) Annotate(_ context.Context, req Request) (Response, error) {
	return Response{Match: req.Output == req.Expected}, nil
}

func (a *Annotator) TranslateResponse(req Request, resp Response) (any, error) {
	if resp.Match {
		return annotator.Verdict{Correct: true, Score: 1, Reason: "output matches expected"}, nil
	}
	return annotator.Verdict{
		Reason: fmt.Sprintf("output does not match expected: got %q, want %q", truncate(req.Output, 100), truncate(req.Expected, 100)),
	}, nil
}

func (a *Annotator) normalize(s string) string {
	if a.NormalizeWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	if a.IgnoreCase {
		s = strings.ToLower(s)
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
