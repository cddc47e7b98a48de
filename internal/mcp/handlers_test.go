package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/server"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func newTestManager(t *testing.T) *kserve.Manager {
	t.Helper()
	isvc := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "serving.kserve.io/v1beta1",
		"kind":       "InferenceService",
		"metadata": map[string]any{
			"name":      "mistral",
			"namespace": "models",
			"labels": map[string]any{
				"app.kubernetes.io/managed-by": "llm-gauge",
			},
			"annotations": map[string]any{
				"llm-gauge.giantswarm.io/sut-uid":      "openai/mistral",
				"llm-gauge.giantswarm.io/served-model": "mistral",
			},
		},
		"status": map[string]any{
			"conditions": []any{map[string]any{"type": "Ready", "status": "True"}},
			"url":        "http://mistral.models.example.com",
		},
	}}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			{Group: "serving.kserve.io", Version: "v1beta1", Resource: "inferenceservices"}: "InferenceServiceList",
		},
		isvc,
	)
	return kserve.NewManagerWithClient(client, "models")
}

func TestRegisterTools(t *testing.T) {
	s := mcpserver.NewMCPServer("llm-gauge", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTools(s, &server.ServerContext{}))

	var names []string
	for name := range s.ListTools() {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"list_tests", "run_test", "get_results",
		"deploy_model", "teardown_model", "list_models",
	}, names)
}

func TestHandleListTests(t *testing.T) {
	result, err := handleListTests(context.Background(), mcp.CallToolRequest{}, &server.ServerContext{})
	require.NoError(t, err)

	var tests []testInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &tests))

	byName := make(map[string]testInfo)
	for _, ti := range tests {
		byName[ti.Name] = ti
	}
	require.Contains(t, byName, "demo-qa")
	assert.Equal(t, "Demo QA", byName["demo-qa"].Title)
	assert.Equal(t, "demo-qa", byName["demo-qa"].UID)
	assert.Equal(t, []string{"exact"}, byName["demo-qa"].Annotators)

	require.Contains(t, byName, "kubernetes-basics")
	assert.Equal(t, []string{"judge", "mentions_kubectl"}, byName["kubernetes-basics"].Annotators)
}

func TestHandleRunTestMissingRequired(t *testing.T) {
	result, err := handleRunTest(context.Background(), callRequest(map[string]any{}), &server.ServerContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "test is required")
}

func TestHandleRunTestUnknownTest(t *testing.T) {
	result, err := handleRunTest(context.Background(), callRequest(map[string]any{
		"test":     "nonexistent-test",
		"sut_type": "echo",
	}), &server.ServerContext{DataDir: t.TempDir(), OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "failed to load test")
}

func TestHandleRunTestNeedsJudge(t *testing.T) {
	result, err := handleRunTest(context.Background(), callRequest(map[string]any{
		"test":     "kubernetes-basics",
		"sut_type": "echo",
	}), &server.ServerContext{DataDir: t.TempDir(), OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no judge client configured")
}

func TestHandleRunTestDeployWithoutManager(t *testing.T) {
	result, err := handleRunTest(context.Background(), callRequest(map[string]any{
		"test":      "demo-qa",
		"model":     "mistral",
		"model_uri": "hf://mistralai/Mistral-7B-Instruct-v0.3",
	}), &server.ServerContext{DataDir: t.TempDir(), OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "KServe manager is not configured")
}

func TestRunTestThenGetResults(t *testing.T) {
	sc := &server.ServerContext{DataDir: t.TempDir(), OutputDir: t.TempDir()}

	result, err := handleRunTest(context.Background(), callRequest(map[string]any{
		"test":           "demo-qa",
		"sut_type":       "echo",
		"max_test_items": float64(3),
		"workers":        float64(2),
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &summary))
	assert.Equal(t, "demo-qa", summary.TestUID)
	assert.Equal(t, "echo", summary.SUTUID)
	assert.Equal(t, 3, summary.Items)
	assert.NotEmpty(t, summary.Results)
	assert.FileExists(t, summary.RecordFile)

	result, err = handleGetResults(context.Background(), callRequest(map[string]any{}), sc)
	require.NoError(t, err)
	var runs []runSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)

	result, err = handleGetResults(context.Background(), callRequest(map[string]any{"run_id": summary.RunID}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"test_item_records"`)
}

func TestHandleGetResultsEmptyDir(t *testing.T) {
	sc := &server.ServerContext{OutputDir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(sc.OutputDir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sc.OutputDir, "broken.json"), []byte("{"), 0o644))

	result, err := handleGetResults(context.Background(), callRequest(map[string]any{}), sc)
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleGetResultsNonexistentDir(t *testing.T) {
	sc := &server.ServerContext{OutputDir: "/nonexistent/directory"}

	result, err := handleGetResults(context.Background(), callRequest(map[string]any{}), sc)
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleGetResultsRejectsTraversal(t *testing.T) {
	sc := &server.ServerContext{OutputDir: t.TempDir()}

	for _, runID := range []string{"../secrets", "..", "a/b"} {
		result, err := handleGetResults(context.Background(), callRequest(map[string]any{"run_id": runID}), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError, runID)
		assert.Contains(t, resultText(t, result), "invalid run_id")
	}

	result, err := handleGetResults(context.Background(), callRequest(map[string]any{"run_id": "missing"}), sc)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `run "missing" not found`)
}

func TestResolveRunPath(t *testing.T) {
	base := t.TempDir()

	path, err := resolveRunPath(base, "demo-qa_20260101-000000_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "demo-qa_20260101-000000_abcd1234.json"), path)

	path, err = resolveRunPath(base, "run.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run.json"), path)

	_, err = resolveRunPath(base, "  ")
	assert.Error(t, err)
}

func TestModelToolsWithoutManager(t *testing.T) {
	sc := &server.ServerContext{}
	handlers := map[string]func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error){
		"deploy_model":   handleDeployModel,
		"teardown_model": handleTeardownModel,
		"list_models":    handleListModels,
	}

	for name, handle := range handlers {
		t.Run(name, func(t *testing.T) {
			result, err := handle(context.Background(), callRequest(map[string]any{
				"model_name": "test",
				"model_uri":  "hf://org/model",
			}), sc)
			require.NoError(t, err)
			assert.Contains(t, resultText(t, result), "KServe manager is not configured")
		})
	}
}

func TestHandleListModels(t *testing.T) {
	sc := &server.ServerContext{KServeManager: newTestManager(t)}

	result, err := handleListModels(context.Background(), mcp.CallToolRequest{}, sc)
	require.NoError(t, err)

	var statuses []kserve.Status
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "mistral", statuses[0].Name)
	assert.True(t, statuses[0].Ready)
	assert.Equal(t, "openai/mistral", statuses[0].SUTUID)
}

func TestHandleTeardownModel(t *testing.T) {
	sc := &server.ServerContext{KServeManager: newTestManager(t)}

	result, err := handleTeardownModel(context.Background(), callRequest(map[string]any{"model_name": "mistral"}), sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = handleListModels(context.Background(), mcp.CallToolRequest{}, sc)
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestDeploymentFromArgs(t *testing.T) {
	d, sutUID, err := deploymentFromArgs(map[string]any{
		"model_name":        "mistral",
		"model_uri":         "hf://mistralai/Mistral-7B-Instruct-v0.3",
		"served_model_name": "mistral",
		"gpu_count":         float64(2),
		"runtime_args":      []any{" --max-model-len=4096 "},
		"ready_timeout":     "15m",
		"sut_uid":           "openai/mistral",
	})
	require.NoError(t, err)
	assert.Equal(t, "mistral", d.Name)
	assert.Equal(t, 2, d.GPUCount)
	assert.Equal(t, []string{"--max-model-len=4096"}, d.RuntimeArgs)
	assert.Equal(t, "15m0s", d.ReadyTimeout.String())
	assert.Equal(t, "openai/mistral", sutUID)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing name", map[string]any{"model_uri": "hf://org/m"}, "model_name is required"},
		{"missing uri", map[string]any{"model_name": "m"}, "model_uri is required"},
		{"non-string runtime arg", map[string]any{"model_name": "m", "model_uri": "hf://org/m", "runtime_args": []any{1}}, "array of strings"},
		{"empty runtime arg", map[string]any{"model_name": "m", "model_uri": "hf://org/m", "runtime_args": []any{" "}}, "non-empty"},
		{"bad timeout", map[string]any{"model_name": "m", "model_uri": "hf://org/m", "ready_timeout": "soon"}, "invalid ready_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := deploymentFromArgs(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
