// Package regex grades a completion by matching it against a pattern.
package regex

import (
	"context"
	"fmt"
	"regexp"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Request is the completion to match and the pattern to match it with.
type Request struct {
	Output  string `json:"output"`
	Pattern string `json:"pattern"`
}

// Response carries the match outcome.
type Response struct {
	Match bool `json:"match"`
}

// Annotator matches completions against a fixed pattern.
type Annotator struct {
	re *regexp.Regexp
}

var _ annotator.CompletionAnnotator[Request, Response] = (*Annotator)(nil)

// New compiles pattern.
func New(pattern string) (*Annotator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return &Annotator{re: re}, nil
}

func (a *Annotator) TranslateRequest(_ prompt.WithContext, c sut.Completion) (Request, error) {
	return Request{Output: c.Text, Pattern: a.re.String()}, nil
}

func (a *Annotator) Annotate(_ context.Context, req Request) (Response, error) {
	return Response{Match: a.re.MatchString(req.Output)}, nil
}

func (a *Annotator) TranslateResponse(req Request, resp Response) (any, error) {
	if resp.Match {
		return annotator.Verdict{Correct: true, Score: 1, Reason: fmt.Sprintf("output matches pattern %q", req.Pattern)}, nil
	}
	return annotator.Verdict{Reason: fmt.Sprintf("output does not match pattern %q", req.Pattern)}, nil
}
