// Package sut defines the contract a system under test must satisfy.
package sut

import (
	"context"
	"fmt"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
)

// Completion is one candidate answer from a SUT.
type Completion struct {
	Text string `json:"text"`
}

// Response is the normalized form of a SUT's answer to one prompt.
type Response struct {
	Completions []Completion `json:"completions"`
}

// PromptResponseSUT is implemented by concrete SUTs. Req and Resp are the
// SUT's own wire types; they must be JSON-encodable so they can be cached.
type PromptResponseSUT[Req, Resp any] interface {
	identity.Identified
	Capabilities() Capabilities
	TranslateTextPrompt(p prompt.TextPrompt) (Req, error)
	TranslateChatPrompt(p prompt.ChatPrompt) (Req, error)
	Evaluate(ctx context.Context, req Req) (Resp, error)
	TranslateResponse(req Req, resp Resp) (Response, error)
}

// SUT is the view of a PromptResponseSUT the runner works with. Requests and
// responses are opaque values the runner only forwards.
type SUT interface {
	identity.Identified
	Capabilities() Capabilities
	// TranslatePrompt picks the text or chat translator by prompt kind.
	TranslatePrompt(p prompt.Prompt) (any, error)
	// Evaluate resolves req through c, calling the SUT on a miss.
	Evaluate(ctx context.Context, c cache.Cache, req any) (any, error)
	TranslateResponse(req, resp any) (Response, error)
}

// Bind wraps a PromptResponseSUT so the runner can drive it without knowing
// its wire types.
func Bind[Req, Resp any](s PromptResponseSUT[Req, Resp]) SUT {
	return &bound[Req, Resp]{impl: s}
}

type bound[Req, Resp any] struct {
	impl PromptResponseSUT[Req, Resp]
}

func (b *bound[Req, Resp]) UID() string { return b.impl.UID() }

func (b *bound[Req, Resp]) InitializationRecord() identity.InitializationRecord {
	return b.impl.InitializationRecord()
}

func (b *bound[Req, Resp]) Capabilities() Capabilities { return b.impl.Capabilities() }

func (b *bound[Req, Resp]) TranslatePrompt(p prompt.Prompt) (any, error) {
	switch v := p.(type) {
	case prompt.TextPrompt:
		return b.impl.TranslateTextPrompt(v)
	case prompt.ChatPrompt:
		return b.impl.TranslateChatPrompt(v)
	default:
		return nil, fmt.Errorf("unsupported prompt type %T", p)
	}
}

func (b *bound[Req, Resp]) Evaluate(ctx context.Context, c cache.Cache, req any) (any, error) {
	r, ok := req.(Req)
	if !ok {
		return nil, fmt.Errorf("SUT %s: request has type %T", b.impl.UID(), req)
	}
	return cache.GetOrCall(ctx, c, r, b.impl.Evaluate)
}

func (b *bound[Req, Resp]) TranslateResponse(req, resp any) (Response, error) {
	r, ok := req.(Req)
	if !ok {
		return Response{}, fmt.Errorf("SUT %s: request has type %T", b.impl.UID(), req)
	}
	s, ok := resp.(Resp)
	if !ok {
		return Response{}, fmt.Errorf("SUT %s: response has type %T", b.impl.UID(), resp)
	}
	return b.impl.TranslateResponse(r, s)
}
