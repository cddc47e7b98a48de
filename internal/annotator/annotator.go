// Package annotator defines post-hoc scorers applied to SUT completions.
package annotator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Annotation is the JSON-encoded output of one annotator for one completion.
type Annotation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewAnnotation encodes v as an Annotation.
func NewAnnotation(v any) (Annotation, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Annotation{}, fmt.Errorf("encoding annotation %T: %w", v, err)
	}
	return Annotation{Type: fmt.Sprintf("%T", v), Data: data}, nil
}

// Decode unmarshals the annotation data into out.
func (a Annotation) Decode(out any) error {
	if err := json.Unmarshal(a.Data, out); err != nil {
		return fmt.Errorf("decoding %s annotation: %w", a.Type, err)
	}
	return nil
}

// Verdict is the annotation produced by annotators that grade a completion
// as correct or not.
type Verdict struct {
	Correct bool    `json:"correct"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}

// CompletionAnnotator is implemented by concrete annotators. Req and Resp
// must be JSON-encodable so calls can be cached.
type CompletionAnnotator[Req, Resp any] interface {
	TranslateRequest(p prompt.WithContext, c sut.Completion) (Req, error)
	Annotate(ctx context.Context, req Req) (Resp, error)
	// TranslateResponse returns the value stored in the Annotation.
	TranslateResponse(req Req, resp Resp) (any, error)
}

// Annotator is the type-erased form the runner drives.
type Annotator interface {
	TranslateRequest(p prompt.WithContext, c sut.Completion) (any, error)
	// Annotate resolves req through c, calling the annotator on a miss.
	Annotate(ctx context.Context, c cache.Cache, req any) (any, error)
	TranslateResponse(req, resp any) (Annotation, error)
}

// Bind wraps a CompletionAnnotator so the runner can drive it without
// knowing its wire types.
func Bind[Req, Resp any](a CompletionAnnotator[Req, Resp]) Annotator {
	return &bound[Req, Resp]{impl: a}
}

type bound[Req, Resp any] struct {
	impl CompletionAnnotator[Req, Resp]
}

func (b *bound[Req, Resp]) TranslateRequest(p prompt.WithContext, c sut.Completion) (any, error) {
	return b.impl.TranslateRequest(p, c)
}

func (b *bound[Req, Resp]) Annotate(ctx context.Context, c cache.Cache, req any) (any, error) {
	r, ok := req.(Req)
	if !ok {
		return nil, fmt.Errorf("annotator %T: request has type %T", b.impl, req)
	}
	return cache.GetOrCall(ctx, c, r, b.impl.Annotate)
}

func (b *bound[Req, Resp]) TranslateResponse(req, resp any) (Annotation, error) {
	r, ok := req.(Req)
	if !ok {
		return Annotation{}, fmt.Errorf("annotator %T: request has type %T", b.impl, req)
	}
	s, ok := resp.(Resp)
	if !ok {
		return Annotation{}, fmt.Errorf("annotator %T: response has type %T", b.impl, resp)
	}
	v, err := b.impl.TranslateResponse(r, s)
	if err != nil {
		return Annotation{}, err
	}
	return NewAnnotation(v)
}
