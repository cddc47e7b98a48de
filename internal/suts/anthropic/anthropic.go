// Package anthropic provides a SUT backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5-20250514"

// Message is one non-system turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a Messages API call.
type Request struct {
	Model         string    `json:"model"`
	System        string    `json:"system,omitempty"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Response is the concatenated text of the reply.
type Response struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Option configures a SUT.
type Option func(*config)

type config struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	temperature *float64
}

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithBaseURL points the SUT at a different API host.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithTemperature sets the temperature of prompts that do not set one.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = &t
	}
}

// SUT sends prompts to Claude. It produces one completion per prompt.
type SUT struct {
	uid         string
	model       string
	baseURL     string
	temperature *float64
	client      anthropic.Client
}

// New creates an Anthropic SUT.
func New(uid, model string, opts ...Option) *SUT {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if model == "" {
		model = DefaultModel
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &SUT{
		uid:         uid,
		model:       model,
		baseURL:     cfg.baseURL,
		temperature: cfg.temperature,
		client:      anthropic.NewClient(clientOpts...),
	}
}

func (s *SUT) UID() string { return s.uid }

func (s *SUT) InitializationRecord() identity.InitializationRecord {
	args := map[string]any{"uid": s.uid, "model": s.model}
	if s.baseURL != "" {
		args["base_url"] = s.baseURL
	}
	if s.temperature != nil {
		args["temperature"] = *s.temperature
	}
	return identity.InitializationRecord{Type: "anthropic", Args: args}
}

func (s *SUT) Capabilities() sut.Capabilities {
	return sut.NewCapabilities(sut.AcceptsTextPrompt, sut.AcceptsChatPrompt)
}

func (s *SUT) TranslateTextPrompt(p prompt.TextPrompt) (Request, error) {
	req := s.request(p.Options)
	req.Messages = []Message{{Role: "user", Content: p.Text}}
	return req, nil
}

func (s *SUT) TranslateChatPrompt(p prompt.ChatPrompt) (Request, error) {
	req := s.request(p.Options)
	var system []string
	for _, m := range p.Messages {
		switch m.Role {
		case prompt.RoleSystem:
			system = append(system, m.Text)
		case prompt.RoleUser:
			req.Messages = append(req.Messages, Message{Role: "user", Content: m.Text})
		case prompt.RoleSUT:
			req.Messages = append(req.Messages, Message{Role: "assistant", Content: m.Text})
		default:
			return Request{}, fmt.Errorf("unknown chat role %q", m.Role)
		}
	}
	if len(req.Messages) == 0 {
		return Request{}, fmt.Errorf("chat prompt has no user or assistant messages")
	}
	req.System = strings.Join(system, "\n\n")
	return req, nil
}

func (s *SUT) Evaluate(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(req.Model),
		MaxTokens:     int64(req.MaxTokens),
		StopSequences: req.StopSequences,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return Response{Text: b.String(), StopReason: string(resp.StopReason)}, nil
}

func (s *SUT) TranslateResponse(_ Request, resp Response) (sut.Response, error) {
	return sut.Response{Completions: []sut.Completion{{Text: resp.Text}}}, nil
}

func (s *SUT) request(opts prompt.Options) Request {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = prompt.DefaultOptions().MaxTokens
	}
	temperature := opts.Temperature
	if temperature == nil {
		temperature = s.temperature
	}
	return Request{
		Model:         s.model,
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		TopP:          opts.TopP,
		StopSequences: opts.StopSequences,
	}
}
