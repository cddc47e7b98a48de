package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
	"github.com/giantswarm/llm-gauge/internal/testutil"
)

func TestTranslateTextPromptCarriesOptions(t *testing.T) {
	temp := 0.2
	s := New("vllm-llama", "llama-3", "http://localhost:8000/v1", &testutil.MockLLMClient{})

	req, err := s.TranslateTextPrompt(prompt.TextPrompt{
		Text:    "What is a pod?",
		Options: prompt.Options{MaxTokens: 50, Temperature: &temp, NumCompletions: 2, StopSequences: []string{"\n\n"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "llama-3", req.Model)
	assert.Equal(t, "What is a pod?", req.UserMessage)
	assert.Equal(t, 50, req.MaxTokens)
	assert.Equal(t, 2, req.N)
	assert.Equal(t, &temp, req.Temperature)
	assert.Equal(t, []string{"\n\n"}, req.Stop)
}

func TestTranslateChatPromptMapsRoles(t *testing.T) {
	s := New("vllm", "m", "", &testutil.MockLLMClient{})

	req, err := s.TranslateChatPrompt(prompt.ChatPrompt{Messages: []prompt.ChatMessage{
		{Text: "be brief", Role: prompt.RoleSystem},
		{Text: "hi", Role: prompt.RoleUser},
		{Text: "hello", Role: prompt.RoleSUT},
		{Text: "what is etcd?", Role: prompt.RoleUser},
	}})
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "what is etcd?"},
	}, req.Messages)

	_, err = s.TranslateChatPrompt(prompt.ChatPrompt{})
	assert.Error(t, err)

	_, err = s.TranslateChatPrompt(prompt.ChatPrompt{Messages: []prompt.ChatMessage{{Text: "x", Role: "narrator"}}})
	assert.Error(t, err)
}

func TestEvaluateReturnsAllChoices(t *testing.T) {
	client := &testutil.MockLLMClient{Responses: map[string]string{"What is a pod?": "A group of containers."}}
	s := sut.Bind[llm.ChatRequest, Response](New("vllm", "m", "", client))

	req, err := s.TranslatePrompt(prompt.TextPrompt{Text: "What is a pod?", Options: prompt.Options{NumCompletions: 2}})
	require.NoError(t, err)
	raw, err := s.Evaluate(context.Background(), cache.NewNoCache(), req)
	require.NoError(t, err)
	resp, err := s.TranslateResponse(req, raw)
	require.NoError(t, err)

	assert.Equal(t, []sut.Completion{{Text: "A group of containers."}, {Text: "A group of containers."}}, resp.Completions)
	assert.Equal(t, 1, client.Calls())
}

func TestEvaluatePropagatesClientError(t *testing.T) {
	s := New("vllm", "m", "", &testutil.MockLLMClient{Err: assert.AnError})
	_, err := s.Evaluate(context.Background(), llm.ChatRequest{UserMessage: "x"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestInitializationRecordOmitsSecrets(t *testing.T) {
	rec := New("vllm", "m", "http://svc/v1", &testutil.MockLLMClient{}).InitializationRecord()
	assert.Equal(t, "openai", rec.Type)
	assert.Equal(t, "http://svc/v1", rec.Args["endpoint"])
	assert.NotContains(t, rec.Args, "api_key")
}

func TestWithTemperatureIsPartOfRequest(t *testing.T) {
	s := New("vllm", "m", "", &testutil.MockLLMClient{}, WithTemperature(0.2))

	req, err := s.TranslateTextPrompt(prompt.TextPrompt{Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)

	own := 0.7
	req, err = s.TranslateTextPrompt(prompt.TextPrompt{Text: "hi", Options: prompt.Options{Temperature: &own}})
	require.NoError(t, err)
	assert.Equal(t, &own, req.Temperature)

	warm, err := New("vllm", "m", "", &testutil.MockLLMClient{}, WithTemperature(0.9)).TranslateTextPrompt(prompt.TextPrompt{Text: "hi"})
	require.NoError(t, err)
	cold, err := s.TranslateTextPrompt(prompt.TextPrompt{Text: "hi"})
	require.NoError(t, err)
	warmKey, err := cache.Key(warm)
	require.NoError(t, err)
	coldKey, err := cache.Key(cold)
	require.NoError(t, err)
	assert.NotEqual(t, warmKey, coldKey)

	rec := s.InitializationRecord()
	assert.Equal(t, 0.2, rec.Args["temperature"])
	assert.NotContains(t, New("vllm", "m", "", &testutil.MockLLMClient{}).InitializationRecord().Args, "temperature")
}
