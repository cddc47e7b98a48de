package sut

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
)

type fakeRequest struct {
	Text string `json:"text"`
	Chat bool   `json:"chat"`
}

type fakeResponse struct {
	Text string `json:"text"`
}

type fakeSUT struct {
	caps  Capabilities
	calls int
	err   error
}

func (f *fakeSUT) UID() string { return "fake" }

func (f *fakeSUT) InitializationRecord() identity.InitializationRecord {
	return identity.InitializationRecord{Type: "fake"}
}

func (f *fakeSUT) Capabilities() Capabilities { return f.caps }

func (f *fakeSUT) TranslateTextPrompt(p prompt.TextPrompt) (fakeRequest, error) {
	return fakeRequest{Text: p.Text}, nil
}

func (f *fakeSUT) TranslateChatPrompt(p prompt.ChatPrompt) (fakeRequest, error) {
	return fakeRequest{Text: prompt.Text(p), Chat: true}, nil
}

func (f *fakeSUT) Evaluate(_ context.Context, req fakeRequest) (fakeResponse, error) {
	f.calls++
	if f.err != nil {
		return fakeResponse{}, f.err
	}
	return fakeResponse{Text: req.Text}, nil
}

func (f *fakeSUT) TranslateResponse(_ fakeRequest, resp fakeResponse) (Response, error) {
	return Response{Completions: []Completion{{Text: resp.Text}}}, nil
}

func TestBindDispatchesByPromptKind(t *testing.T) {
	s := Bind[fakeRequest, fakeResponse](&fakeSUT{})

	req, err := s.TranslatePrompt(prompt.TextPrompt{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, fakeRequest{Text: "hi"}, req)

	req, err = s.TranslatePrompt(prompt.ChatPrompt{Messages: []prompt.ChatMessage{
		{Text: "first", Role: prompt.RoleUser},
		{Text: "second", Role: prompt.RoleUser},
	}})
	require.NoError(t, err)
	assert.Equal(t, fakeRequest{Text: "second", Chat: true}, req)
}

func TestBindEvaluateUsesCache(t *testing.T) {
	impl := &fakeSUT{}
	s := Bind[fakeRequest, fakeResponse](impl)
	c, err := cache.NewBolt(t.TempDir(), s.UID())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := s.Evaluate(ctx, c, fakeRequest{Text: "x"})
		require.NoError(t, err)
		out, err := s.TranslateResponse(fakeRequest{Text: "x"}, resp)
		require.NoError(t, err)
		assert.Equal(t, []Completion{{Text: "x"}}, out.Completions)
	}
	assert.Equal(t, 1, impl.calls)
}

func TestBindEvaluateRejectsForeignRequest(t *testing.T) {
	s := Bind[fakeRequest, fakeResponse](&fakeSUT{})
	_, err := s.Evaluate(context.Background(), cache.NewNoCache(), "not a request")
	assert.Error(t, err)

	_, err = s.TranslateResponse(fakeRequest{}, 42)
	assert.Error(t, err)
}

func TestBindEvaluatePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := Bind[fakeRequest, fakeResponse](&fakeSUT{err: boom})
	_, err := s.Evaluate(context.Background(), cache.NewNoCache(), fakeRequest{Text: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestCheckCapabilities(t *testing.T) {
	s := Bind[fakeRequest, fakeResponse](&fakeSUT{caps: NewCapabilities(AcceptsTextPrompt)})

	assert.NoError(t, CheckCapabilities(s, []Capability{AcceptsTextPrompt}))
	assert.NoError(t, CheckCapabilities(s, nil))

	err := CheckCapabilities(s, []Capability{AcceptsTextPrompt, AcceptsChatPrompt, AcceptsChatPrompt})
	var missing *MissingCapabilitiesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "fake", missing.SUTUID)
	assert.Equal(t, []Capability{AcceptsChatPrompt}, missing.Missing)
	assert.Equal(t, []Capability{AcceptsTextPrompt}, missing.Declared)
	assert.EqualError(t, err, "SUT fake is missing required capabilities: accepts_chat_prompt (it declares accepts_text_prompt)")

	none := Bind[fakeRequest, fakeResponse](&fakeSUT{caps: NewCapabilities()})
	assert.ErrorContains(t, CheckCapabilities(none, []Capability{AcceptsTextPrompt}), "(it declares none)")
}

func TestCapabilitiesList(t *testing.T) {
	caps := NewCapabilities(AcceptsChatPrompt, AcceptsTextPrompt)
	assert.Equal(t, []Capability{AcceptsChatPrompt, AcceptsTextPrompt}, caps.List())
	assert.True(t, caps.Has(AcceptsTextPrompt))
	assert.False(t, caps.Has(ProducesMultipleCompletions))
}
