package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/llm-gauge/internal/server"
	"github.com/giantswarm/llm-gauge/internal/suts"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

func registerTestTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTool := mcp.NewTool("list_tests",
		mcp.WithDescription("List the available tests with their metadata and annotators"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListTests(ctx, request, sc)
	})

	runTool := mcp.NewTool("run_test",
		mcp.WithDescription("Run a test against a system under test and save the record. "+
			"The SUT endpoint can be given directly, discovered from an existing KServe InferenceService, "+
			"or served on KServe for the duration of the run when model_uri is set."),
		mcp.WithString("test",
			mcp.Required(),
			mcp.Description("Name of the test to run (e.g. 'demo-qa')"),
		),
		mcp.WithString("sut_type",
			mcp.Description("SUT type: openai, anthropic or echo (default: openai)"),
			mcp.Enum(suts.TypeOpenAI, suts.TypeAnthropic, suts.TypeEcho),
		),
		mcp.WithString("sut_uid",
			mcp.Description("UID to record the SUT under (default: <sut_type>/<model>)"),
		),
		mcp.WithString("model",
			mcp.Description("Model name sent to the SUT endpoint"),
		),
		mcp.WithString("endpoint",
			mcp.Description("OpenAI-compatible base URL of the SUT"),
		),
		mcp.WithNumber("temperature",
			mcp.Description("Default sampling temperature for prompts that do not set one"),
		),
		mcp.WithString("discover",
			mcp.Description("Name of a ready InferenceService whose endpoint serves the SUT"),
		),
		mcp.WithString("model_uri",
			mcp.Description("Deploy this model on KServe for the run (e.g. 'hf://mistralai/Mistral-7B-Instruct-v0.3')"),
		),
		mcp.WithString("deployment_name",
			mcp.Description("InferenceService name for model_uri (default: the model name)"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("GPUs for the deployed model (default: 1)"),
		),
		mcp.WithBoolean("keep",
			mcp.Description("Leave the deployed model running after the run"),
		),
		mcp.WithNumber("max_test_items",
			mcp.Description("Run a deterministic sample of at most this many test items"),
		),
		mcp.WithNumber("workers",
			mcp.Description("Number of test items processed concurrently (default: 1)"),
		),
		mcp.WithBoolean("caching",
			mcp.Description("Reuse cached SUT and annotator responses (default: true)"),
		),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunTest(ctx, request, sc)
	})

	getResultsTool := mcp.NewTool("get_results",
		mcp.WithDescription("Retrieve saved test records: a summary of every run, or one full record"),
		mcp.WithString("run_id",
			mcp.Description("Run ID to retrieve (optional, lists all runs if omitted)"),
		),
	)
	s.AddTool(getResultsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResults(ctx, request, sc)
	})

	return nil
}

type testInfo struct {
	Name        string   `json:"name"`
	UID         string   `json:"uid,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Type        string   `json:"type,omitempty"`
	Annotators  []string `json:"annotators"`
	Error       string   `json:"error,omitempty"`
}

func handleListTests(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := testsuite.List(sc.TestsDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tests: %v", err)), nil
	}

	tests := make([]testInfo, 0, len(names))
	for _, name := range names {
		def, _, err := testsuite.LoadDefinition(name, sc.TestsDir)
		if err != nil {
			tests = append(tests, testInfo{Name: name, Error: err.Error()})
			continue
		}
		info := testInfo{
			Name:        name,
			UID:         def.UID,
			Title:       def.Name,
			Description: def.Description,
			Version:     def.Version,
			Type:        def.Type,
			Annotators:  make([]string, 0, len(def.Annotators)),
		}
		for _, a := range def.Annotators {
			info.Annotators = append(info.Annotators, a.Key)
		}
		tests = append(tests, info)
	}

	return jsonResult(tests, "tests")
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
