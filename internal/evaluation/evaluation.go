// Package evaluation wires a test, a SUT and the runner together for one
// run: it loads the test, brings up the SUT endpoint when it lives on
// KServe, runs and saves the record.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/llm-gauge/internal/annotators"
	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/record"
	"github.com/giantswarm/llm-gauge/internal/runner"
	"github.com/giantswarm/llm-gauge/internal/suts"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

// ErrNoKServe is returned when a run needs KServe but no manager is configured.
var ErrNoKServe = errors.New("KServe manager is not configured")

// Request describes one run.
type Request struct {
	// Test is the name of an embedded or external test.
	Test     string
	TestsDir string

	SUT suts.Config
	// DiscoverEndpoint names an existing InferenceService whose endpoint
	// replaces SUT.Endpoint.
	DiscoverEndpoint string

	DataDir   string
	OutputDir string

	// Judge serves llm_judge annotators. It may be nil.
	Judge llm.Client

	Options  []runner.Option
	Progress runner.ProgressFunc
}

// Outcome is the saved result of a run.
type Outcome struct {
	Record *record.TestRecord
	// Path is where the record was written.
	Path string
}

// Execute performs the run described by req. manager may be nil when the
// SUT does not live on KServe.
func Execute(ctx context.Context, req Request, manager *kserve.Manager) (*Outcome, error) {
	test, err := testsuite.Load(req.Test, req.TestsDir, annotators.NewFactory(req.Judge))
	if err != nil {
		return nil, fmt.Errorf("failed to load test: %w", err)
	}

	cfg := req.SUT
	release, err := resolveEndpoint(ctx, &cfg, req.DiscoverEndpoint, manager)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to tear down SUT model", "sut", cfg.ResolvedUID(), "error", err)
		}
	}()

	s, err := suts.New(cfg)
	if err != nil {
		return nil, err
	}

	r := runner.NewRunner(req.DataDir, req.Options...)
	if req.Progress != nil {
		r.SetProgressFunc(req.Progress)
	}
	rec, err := r.Run(ctx, test, s)
	if err != nil {
		return nil, err
	}

	path, err := rec.Save(req.OutputDir)
	if err != nil {
		return nil, err
	}
	slog.Info("saved test record", "run_id", rec.RunID, "path", path)
	return &Outcome{Record: rec, Path: path}, nil
}

// resolveEndpoint points cfg at its KServe endpoint, deploying the model
// first when cfg asks for it. The returned function undoes the deployment.
func resolveEndpoint(ctx context.Context, cfg *suts.Config, discover string, manager *kserve.Manager) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch {
	case cfg.Deployment != nil:
		if manager == nil {
			return nil, ErrNoKServe
		}
		if cfg.Model == "" {
			cfg.Model = cfg.Deployment.ServedModelName
		}
		status, release, err := manager.Provision(ctx, *cfg.Deployment, cfg.ResolvedUID())
		if err != nil {
			return nil, fmt.Errorf("failed to deploy SUT model: %w", err)
		}
		applyEndpoint(cfg, status.Endpoint, status.ServedModel)
		return release, nil
	case discover != "":
		if manager == nil {
			return nil, ErrNoKServe
		}
		endpoint, model, err := manager.Discover(ctx, discover)
		if err != nil {
			return nil, fmt.Errorf("failed to discover SUT endpoint: %w", err)
		}
		applyEndpoint(cfg, endpoint, model)
		return noop, nil
	default:
		return noop, nil
	}
}

func applyEndpoint(cfg *suts.Config, endpoint, model string) {
	slog.Info("using KServe endpoint for SUT", "endpoint", endpoint, "model", model)
	cfg.Endpoint = endpoint
	if cfg.Model == "" {
		cfg.Model = model
	}
}
