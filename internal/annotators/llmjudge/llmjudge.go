// Package llmjudge grades completions by asking an LLM whether they answer
// the question correctly.
package llmjudge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// DefaultModel is the default model used for LLM-as-judge grading.
const DefaultModel = "claude-sonnet-4-5-20250514"

// Request is the judge call. It is the cache key for the annotation.
type Request struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	Content      string `json:"content"`
}

// Response is the judge's raw output.
type Response struct {
	Text string `json:"text"`
}

// Annotator asks a judge model to grade each completion.
type Annotator struct {
	client       llm.Client
	model        string
	systemPrompt string
}

var _ annotator.CompletionAnnotator[Request, Response] = (*Annotator)(nil)

// Option configures an Annotator.
type Option func(*Annotator)

// WithModel sets the judge model.
func WithModel(model string) Option {
	return func(a *Annotator) {
		if model != "" {
			a.model = model
		}
	}
}

// WithSystemPrompt replaces EvaluationPrompt.
func WithSystemPrompt(p string) Option {
	return func(a *Annotator) {
		if p != "" {
			a.systemPrompt = p
		}
	}
}

// New creates a judge backed by client.
func New(client llm.Client, opts ...Option) *Annotator {
	a := &Annotator{
		client:       client,
		model:        DefaultModel,
		systemPrompt: EvaluationPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Annotator) TranslateRequest(p prompt.WithContext, c sut.Completion) (Request, error) {
	expected, ok := prompt.ExpectedAnswer(p.Context)
	if !ok {
		return Request{}, fmt.Errorf("prompt context %T has no expected answer", p.Context)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	if p.SourceID != "" {
		fmt.Fprintf(&b, "NO. %s\n", p.SourceID)
	}
	fmt.Fprintf(&b, "QUESTION: %s\n", prompt.Text(p.Prompt))
	fmt.Fprintf(&b, "EXPECTED ANSWER: %s\n", expected)
	fmt.Fprintf(&b, "ACTUAL ANSWER: %s\n", c.Text)

	return Request{
		Model:        a.model,
		SystemPrompt: a.systemPrompt,
		Content:      b.String(),
	}, nil
}

func (a *Annotator) Annotate(ctx context.Context, req Request) (Response, error) {
	// Try streaming first.
	stream, err := a.client.ChatCompletionStream(ctx, a.chatRequest(req))
	if err == nil {
		result, streamErr := llm.CollectStream(stream)
		if streamErr == nil {
			return Response{Text: result}, nil
		}
		slog.Warn("streaming evaluation failed, falling back to non-streaming", "error", streamErr)
	} else {
		slog.Debug("streaming not available, using non-streaming", "error", err)
	}

	resp, err := a.client.ChatCompletion(ctx, a.chatRequest(req))
	if err != nil {
		return Response{}, fmt.Errorf("evaluation failed: %w", err)
	}
	return Response{Text: resp.Content}, nil
}

func (a *Annotator) chatRequest(req Request) llm.ChatRequest {
	return llm.ChatRequest{
		Model:         req.Model,
		SystemMessage: req.SystemPrompt,
		UserMessage:   req.Content,
		Temperature:   llm.Float64Ptr(0),
	}
}

// TranslateResponse parses the judge output. Unparseable output is graded
// incorrect rather than failing the run.
func (a *Annotator) TranslateResponse(_ Request, resp Response) (any, error) {
	correct, total, ok := parseScore(resp.Text)
	if !ok {
		slog.Warn("could not parse judge output", "output", resp.Text)
		return annotator.Verdict{Reason: "could not parse score from output: " + resp.Text}, nil
	}
	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total)
	}
	return annotator.Verdict{
		Correct: total > 0 && correct == total,
		Score:   score,
		Reason:  strings.TrimSpace(resp.Text),
	}, nil
}

var scorePattern = regexp.MustCompile(`(\d+)\s+out\s+of\s+(\d+)`)

func parseScore(text string) (correct, total int, ok bool) {
	matches := scorePattern.FindStringSubmatch(text)
	if matches == nil {
		return 0, 0, false
	}
	correct, _ = strconv.Atoi(matches[1])
	total, _ = strconv.Atoi(matches[2])
	return correct, total, true
}
