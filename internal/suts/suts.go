// Package suts builds systems under test from their configuration.
package suts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/sut"
	"github.com/giantswarm/llm-gauge/internal/suts/anthropic"
	"github.com/giantswarm/llm-gauge/internal/suts/echo"
	"github.com/giantswarm/llm-gauge/internal/suts/openai"
)

// SUT types.
const (
	TypeEcho      = "echo"
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
)

// Config describes a SUT. It can be read from a YAML file or assembled from flags.
type Config struct {
	Type string `yaml:"type"`
	// UID defaults to "<type>/<model>".
	UID      string `yaml:"uid"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	// APIKey falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY.
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`

	// Deployment, when set, serves the model on KServe for the run.
	Deployment *kserve.Deployment `yaml:"deployment"`
}

// UnsupportedTypeError is returned for an unknown SUT type.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return "unsupported SUT type: " + e.Type
}

// LoadConfig reads a SUT configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read SUT config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse SUT config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvedUID returns the UID the SUT will be recorded under.
func (c Config) ResolvedUID() string {
	if c.UID != "" {
		return c.UID
	}
	if c.Model == "" {
		return c.Type
	}
	return c.Type + "/" + c.Model
}

// New builds the SUT described by cfg.
func New(cfg Config) (sut.SUT, error) {
	uid := cfg.ResolvedUID()
	switch cfg.Type {
	case TypeEcho:
		return sut.Bind[echo.Request, echo.Response](echo.New(uid)), nil
	case TypeOpenAI:
		client := NewLLMClient(cfg.Endpoint, cfg.APIKey, llm.WithModel(cfg.Model))
		var opts []openai.Option
		if cfg.Temperature != nil {
			opts = append(opts, openai.WithTemperature(*cfg.Temperature))
		}
		return sut.Bind[llm.ChatRequest, openai.Response](openai.New(uid, cfg.Model, cfg.Endpoint, client, opts...)), nil
	case TypeAnthropic:
		var opts []anthropic.Option
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key != "" {
			opts = append(opts, anthropic.WithAPIKey(key))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
		}
		if cfg.Temperature != nil {
			opts = append(opts, anthropic.WithTemperature(*cfg.Temperature))
		}
		return sut.Bind[anthropic.Request, anthropic.Response](anthropic.New(uid, cfg.Model, opts...)), nil
	default:
		return nil, &UnsupportedTypeError{Type: cfg.Type}
	}
}

// NewLLMClient creates an OpenAI-compatible client, falling back to the
// OPENAI_API_KEY environment variable when no explicit key is provided.
func NewLLMClient(endpoint, apiKey string, extra ...llm.Option) *llm.OpenAIClient {
	var opts []llm.Option
	if endpoint != "" {
		opts = append(opts, llm.WithBaseURL(endpoint))
	}
	if apiKey != "" {
		opts = append(opts, llm.WithAPIKey(apiKey))
	} else if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		opts = append(opts, llm.WithAPIKey(envKey))
	}
	return llm.NewOpenAIClient(append(opts, extra...)...)
}
