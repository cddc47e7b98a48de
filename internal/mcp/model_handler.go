package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/server"
)

const errNoManager = "KServe manager is not configured (not running in-cluster or KServe not available)"

func registerModelTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	deployTool := mcp.NewTool("deploy_model",
		mcp.WithDescription("Serve a SUT model as a KServe InferenceService and wait until it is ready. "+
			"The returned endpoint can be passed to run_test, or the service found again with run_test's discover parameter."),
		mcp.WithString("model_name",
			mcp.Required(),
			mcp.Description("Name for the InferenceService resource"),
		),
		mcp.WithString("model_uri",
			mcp.Required(),
			mcp.Description("Model storage URI (e.g. 'hf://mistralai/Mistral-7B-Instruct-v0.3')"),
		),
		mcp.WithString("served_model_name",
			mcp.Description("Model name clients must request (vLLM --served-model-name)"),
		),
		mcp.WithString("runtime",
			mcp.Description("KServe ServingRuntime (default: kserve-vllm)"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("Number of GPUs to request (default: 1)"),
		),
		mcp.WithArray("runtime_args",
			mcp.Description("Optional runtime arguments for the serving runtime (e.g. ['--max-model-len=4096'])"),
			mcp.WithStringItems(),
		),
		mcp.WithString("ready_timeout",
			mcp.Description("How long to wait for the service to become ready, e.g. '15m' (default: 10m)"),
		),
		mcp.WithString("sut_uid",
			mcp.Description("SUT UID recorded on the resource"),
		),
	)
	s.AddTool(deployTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeployModel(ctx, request, sc)
	})

	teardownTool := mcp.NewTool("teardown_model",
		mcp.WithDescription("Delete a KServe InferenceService to stop serving a model"),
		mcp.WithString("model_name",
			mcp.Required(),
			mcp.Description("Name of the InferenceService to delete"),
		),
	)
	s.AddTool(teardownTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTeardownModel(ctx, request, sc)
	})

	listTool := mcp.NewTool("list_models",
		mcp.WithDescription("List InferenceService resources managed by llm-gauge"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListModels(ctx, request, sc)
	})

	return nil
}

func handleDeployModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.KServeManager == nil {
		return mcp.NewToolResultError(errNoManager), nil
	}

	d, sutUID, err := deploymentFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := sc.KServeManager.Deploy(ctx, d, sutUID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to deploy model: %v", err)), nil
	}
	return jsonResult(status, "status")
}

func deploymentFromArgs(args map[string]any) (kserve.Deployment, string, error) {
	var d kserve.Deployment

	d.Name, _ = args["model_name"].(string)
	if d.Name == "" {
		return d, "", fmt.Errorf("model_name is required")
	}
	d.StorageURI, _ = args["model_uri"].(string)
	if d.StorageURI == "" {
		return d, "", fmt.Errorf("model_uri is required")
	}
	d.ServedModelName, _ = args["served_model_name"].(string)
	d.Runtime, _ = args["runtime"].(string)

	if gpuCount, ok := args["gpu_count"].(float64); ok && gpuCount > 0 {
		d.GPUCount = int(gpuCount)
	}
	if rawArgs, ok := args["runtime_args"].([]any); ok && len(rawArgs) > 0 {
		runtimeArgs := make([]string, 0, len(rawArgs))
		for _, arg := range rawArgs {
			argStr, ok := arg.(string)
			if !ok {
				return d, "", fmt.Errorf("runtime_args must be an array of strings")
			}
			argStr = strings.TrimSpace(argStr)
			if argStr == "" {
				return d, "", fmt.Errorf("runtime_args entries must be non-empty strings")
			}
			runtimeArgs = append(runtimeArgs, argStr)
		}
		d.RuntimeArgs = runtimeArgs
	}
	if raw, ok := args["ready_timeout"].(string); ok && raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return d, "", fmt.Errorf("invalid ready_timeout: %w", err)
		}
		d.ReadyTimeout = timeout
	}

	sutUID, _ := args["sut_uid"].(string)
	return d, sutUID, nil
}

func handleTeardownModel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.KServeManager == nil {
		return mcp.NewToolResultError(errNoManager), nil
	}

	modelName, ok := request.GetArguments()["model_name"].(string)
	if !ok || modelName == "" {
		return mcp.NewToolResultError("model_name is required"), nil
	}

	if err := sc.KServeManager.Teardown(ctx, modelName); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to teardown model: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("InferenceService %q deleted", modelName)), nil
}

func handleListModels(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.KServeManager == nil {
		return mcp.NewToolResultError(errNoManager), nil
	}

	statuses, err := sc.KServeManager.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list models: %v", err)), nil
	}
	return jsonResult(statuses, "statuses")
}
