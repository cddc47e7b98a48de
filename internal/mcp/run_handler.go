package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/evaluation"
	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/runner"
	"github.com/giantswarm/llm-gauge/internal/server"
	"github.com/giantswarm/llm-gauge/internal/suts"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

type runSummary struct {
	RunID        string                 `json:"run_id"`
	RunTimestamp time.Time              `json:"run_timestamp"`
	TestUID      string                 `json:"test_uid"`
	SUTUID       string                 `json:"sut_uid"`
	Items        int                    `json:"items"`
	Results      []testsuite.Result     `json:"results"`
	CacheStats   map[string]cache.Stats `json:"cache_stats,omitempty"`
	RecordFile   string                 `json:"record_file,omitempty"`
}

func handleRunTest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	testName, ok := args["test"].(string)
	if !ok || testName == "" {
		return mcp.NewToolResultError("test is required"), nil
	}

	cfg := suts.Config{Type: suts.TypeOpenAI}
	if v, ok := args["sut_type"].(string); ok && v != "" {
		cfg.Type = v
	}
	cfg.UID, _ = args["sut_uid"].(string)
	cfg.Model, _ = args["model"].(string)
	cfg.Endpoint, _ = args["endpoint"].(string)
	if t, ok := args["temperature"].(float64); ok {
		cfg.Temperature = &t
	}

	if uri, ok := args["model_uri"].(string); ok && uri != "" {
		d := kserve.Deployment{StorageURI: uri, ServedModelName: cfg.Model}
		d.Name, _ = args["deployment_name"].(string)
		if d.Name == "" {
			d.Name = cfg.Model
		}
		if gpus, ok := args["gpu_count"].(float64); ok && gpus > 0 {
			d.GPUCount = int(gpus)
		}
		d.Keep, _ = args["keep"].(bool)
		cfg.Deployment = &d
	}

	opts := append([]runner.Option{runner.WithProgressBar(false)}, sc.RunOptions...)
	if n, ok := args["max_test_items"].(float64); ok {
		opts = append(opts, runner.WithMaxTestItems(int(n)))
	}
	if n, ok := args["workers"].(float64); ok {
		opts = append(opts, runner.WithWorkers(int(n)))
	}
	if caching, ok := args["caching"].(bool); ok {
		opts = append(opts, runner.WithCaching(caching))
	}

	discover, _ := args["discover"].(string)

	out, err := evaluation.Execute(ctx, evaluation.Request{
		Test:             testName,
		TestsDir:         sc.TestsDir,
		SUT:              cfg,
		DiscoverEndpoint: discover,
		DataDir:          sc.DataDir,
		OutputDir:        sc.OutputDir,
		Judge:            sc.Judge,
		Options:          opts,
	}, sc.KServeManager)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("test run failed: %v", err)), nil
	}

	rec := out.Record
	return jsonResult(runSummary{
		RunID:        rec.RunID,
		RunTimestamp: rec.RunTimestamp,
		TestUID:      rec.TestUID,
		SUTUID:       rec.SUTUID,
		Items:        len(rec.TestItemRecords),
		Results:      rec.Results,
		CacheStats:   rec.CacheStats,
		RecordFile:   out.Path,
	}, "summary")
}
