package evaluation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/record"
	"github.com/giantswarm/llm-gauge/internal/runner"
	"github.com/giantswarm/llm-gauge/internal/suts"
)

func TestExecuteEchoSavesRecord(t *testing.T) {
	outDir := t.TempDir()

	out, err := Execute(context.Background(), Request{
		Test:      "demo-qa",
		SUT:       suts.Config{Type: suts.TypeEcho},
		DataDir:   t.TempDir(),
		OutputDir: outDir,
		Options:   []runner.Option{runner.WithMaxTestItems(2)},
	}, nil)
	require.NoError(t, err)

	assert.Len(t, out.Record.TestItemRecords, 2)
	assert.True(t, strings.HasPrefix(out.Path, outDir))

	loaded, err := record.Load(out.Path)
	require.NoError(t, err)
	assert.Equal(t, out.Record.RunID, loaded.RunID)
	assert.Equal(t, "echo", loaded.SUTUID)
}

func TestExecuteUnknownTest(t *testing.T) {
	_, err := Execute(context.Background(), Request{Test: "no-such-test", SUT: suts.Config{Type: suts.TypeEcho}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load test")
}

func TestExecuteNeedsKServeForDeployments(t *testing.T) {
	_, err := Execute(context.Background(), Request{
		Test: "demo-qa",
		SUT: suts.Config{
			Type:       suts.TypeOpenAI,
			Deployment: &kserve.Deployment{Name: "m", StorageURI: "hf://org/m"},
		},
		DataDir:   t.TempDir(),
		OutputDir: t.TempDir(),
	}, nil)
	assert.ErrorIs(t, err, ErrNoKServe)

	_, err = Execute(context.Background(), Request{
		Test:             "demo-qa",
		SUT:              suts.Config{Type: suts.TypeOpenAI},
		DiscoverEndpoint: "m",
	}, nil)
	assert.ErrorIs(t, err, ErrNoKServe)
}

func TestExecuteDiscoversKServeEndpoint(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		models = append(models, body.Model)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"mistral",
"choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	isvc := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "serving.kserve.io/v1beta1",
		"kind":       "InferenceService",
		"metadata": map[string]any{
			"name":        "mistral",
			"namespace":   "models",
			"annotations": map[string]any{"llm-gauge.giantswarm.io/served-model": "mistral"},
		},
		"status": map[string]any{
			"conditions": []any{map[string]any{"type": "Ready", "status": "True"}},
			"url":        srv.URL,
		},
	}}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			{Group: "serving.kserve.io", Version: "v1beta1", Resource: "inferenceservices"}: "InferenceServiceList",
		},
		isvc,
	)
	manager := kserve.NewManagerWithClient(client, "models")

	out, err := Execute(context.Background(), Request{
		Test:             "demo-qa",
		SUT:              suts.Config{Type: suts.TypeOpenAI, APIKey: "unused"},
		DiscoverEndpoint: "mistral",
		DataDir:          t.TempDir(),
		OutputDir:        t.TempDir(),
		Options:          []runner.Option{runner.WithMaxTestItems(1)},
	}, manager)
	require.NoError(t, err)

	assert.Equal(t, "openai/mistral", out.Record.SUTUID)
	assert.Equal(t, srv.URL+"/v1", out.Record.SUTInitialization.Args["endpoint"])
	assert.Equal(t, []string{"mistral"}, models)
}
