package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/record"
	"github.com/giantswarm/llm-gauge/internal/sut"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

// boundAnnotator is an annotator with its key and cache.
type boundAnnotator struct {
	key       string
	annotator annotator.Annotator
	cache     cache.Cache
}

// itemProcessor runs single test items. It is safe for concurrent use as
// long as the SUT, annotators and test are.
type itemProcessor struct {
	test        testsuite.Test
	sut         sut.SUT
	sutCache    cache.Cache
	annotators  []boundAnnotator
	callTimeout time.Duration
}

// process answers and annotates every prompt of item in order, then
// measures it. index identifies the item in errors.
func (p *itemProcessor) process(ctx context.Context, index int, item testsuite.TestItem) (record.TestItemRecord, error) {
	interactions := make([]testsuite.InteractionAnnotations, 0, len(item.Prompts))

	for pi, pwc := range item.Prompts {
		sutErr := func(stage string, err error) error {
			return &CallError{Component: ComponentSUT, Identity: p.sut.UID(), Item: index, Prompt: pi, Stage: stage, Err: err}
		}

		req, err := p.sut.TranslatePrompt(pwc.Prompt)
		if err != nil {
			return record.TestItemRecord{}, sutErr("translate prompt", err)
		}
		raw, err := p.withTimeout(ctx, func(ctx context.Context) (any, error) {
			return p.sut.Evaluate(ctx, p.sutCache, req)
		})
		if err != nil {
			return record.TestItemRecord{}, sutErr("evaluate", err)
		}
		resp, err := p.sut.TranslateResponse(req, raw)
		if err != nil {
			return record.TestItemRecord{}, sutErr("translate response", err)
		}

		completions := make([]testsuite.CompletionAnnotations, 0, len(resp.Completions))
		for _, completion := range resp.Completions {
			annotations := make(map[string]annotator.Annotation, len(p.annotators))
			for _, a := range p.annotators {
				ann, stage, err := p.annotate(ctx, a, pwc, completion)
				if err != nil {
					return record.TestItemRecord{}, &CallError{
						Component: ComponentAnnotator, Identity: a.key, Item: index, Prompt: pi, Stage: stage, Err: err,
					}
				}
				annotations[a.key] = ann
			}
			completions = append(completions, testsuite.CompletionAnnotations{
				Completion:  completion,
				Annotations: annotations,
			})
		}

		interactions = append(interactions, testsuite.InteractionAnnotations{
			Prompt:   pwc,
			Response: testsuite.ResponseAnnotations{Completions: completions},
		})
	}

	measurements, err := p.test.MeasureQuality(testsuite.TestItemAnnotations{
		TestItem:     item,
		Interactions: interactions,
	})
	if err != nil {
		return record.TestItemRecord{}, &CallError{
			Component: ComponentTest, Identity: p.test.UID(), Item: index, Prompt: -1, Stage: "measure quality", Err: err,
		}
	}

	slog.Debug("processed test item", "item", index, "prompts", len(item.Prompts), "measurements", len(measurements))
	return record.TestItemRecord{
		TestItem:     item,
		Interactions: interactions,
		Measurements: measurements,
	}, nil
}

func (p *itemProcessor) annotate(ctx context.Context, a boundAnnotator, pwc prompt.WithContext, c sut.Completion) (annotator.Annotation, string, error) {
	req, err := a.annotator.TranslateRequest(pwc, c)
	if err != nil {
		return annotator.Annotation{}, "translate request", err
	}
	raw, err := p.withTimeout(ctx, func(ctx context.Context) (any, error) {
		return a.annotator.Annotate(ctx, a.cache, req)
	})
	if err != nil {
		return annotator.Annotation{}, "annotate", err
	}
	ann, err := a.annotator.TranslateResponse(req, raw)
	if err != nil {
		return annotator.Annotation{}, "translate response", err
	}
	return ann, "", nil
}

// withTimeout bounds one external call by the configured call timeout.
func (p *itemProcessor) withTimeout(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if p.callTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return fn(ctx)
}
