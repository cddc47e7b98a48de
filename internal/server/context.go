package server

import (
	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/runner"
)

// ServerContext holds shared dependencies for MCP tool handlers.
type ServerContext struct {
	// KServeManager is nil when no cluster is reachable.
	KServeManager *kserve.Manager
	// Judge serves llm_judge annotators.
	Judge     llm.Client
	Namespace string

	OutputDir string
	DataDir   string
	TestsDir  string // external tests directory (optional)

	// RunOptions apply to every run_test call before per-call overrides.
	RunOptions []runner.Option
}
