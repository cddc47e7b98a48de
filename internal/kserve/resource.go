package kserve

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

const (
	apiVersion = "serving.kserve.io/v1beta1"
	kind       = "InferenceService"
	managedBy  = "llm-gauge"

	labelManagedBy = "app.kubernetes.io/managed-by"
	labelName      = "app.kubernetes.io/name"

	annotationSUTUID      = "llm-gauge.giantswarm.io/sut-uid"
	annotationServedModel = "llm-gauge.giantswarm.io/served-model"

	gpuResource = corev1.ResourceName("nvidia.com/gpu")
)

// inferenceService is the subset of the serving.kserve.io/v1beta1 schema
// this package reads and writes. The KServe SDK is not imported because its
// transitive dependencies pin other Kubernetes versions.
type inferenceService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   inferenceServiceSpec   `json:"spec,omitempty"`
	Status inferenceServiceStatus `json:"status,omitempty"`
}

type inferenceServiceSpec struct {
	Predictor predictorSpec `json:"predictor"`
}

type predictorSpec struct {
	Model *modelSpec `json:"model,omitempty"`
}

type modelSpec struct {
	ModelFormat modelFormat                 `json:"modelFormat"`
	Runtime     *string                     `json:"runtime,omitempty"`
	StorageURI  *string                     `json:"storageUri,omitempty"`
	Resources   corev1.ResourceRequirements `json:"resources,omitempty"`
	Args        []string                    `json:"args,omitempty"`
}

type modelFormat struct {
	Name    string  `json:"name"`
	Version *string `json:"version,omitempty"`
}

type inferenceServiceStatus struct {
	Conditions []condition `json:"conditions,omitempty"`
	URL        string      `json:"url,omitempty"`
}

// condition follows the Knative condition schema.
type condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s inferenceServiceStatus) ready() (bool, *condition) {
	for i := range s.Conditions {
		if s.Conditions[i].Type == "Ready" {
			return s.Conditions[i].Status == "True", &s.Conditions[i]
		}
	}
	return false, nil
}

// newInferenceService renders d as an InferenceService serving sutUID.
func newInferenceService(d Deployment, namespace, sutUID string) *inferenceService {
	storageURI := d.StorageURI
	model := &modelSpec{
		ModelFormat: modelFormat{Name: "vLLM"},
		StorageURI:  &storageURI,
		Args:        d.RuntimeArgs,
	}
	if d.Runtime != "" {
		rt := d.Runtime
		model.Runtime = &rt
	}
	if d.ServedModelName != "" {
		model.Args = append(append([]string{}, model.Args...), "--served-model-name="+d.ServedModelName)
	}
	if d.GPUCount > 0 {
		qty := resource.MustParse(strconv.Itoa(d.GPUCount))
		model.Resources = corev1.ResourceRequirements{
			Requests: corev1.ResourceList{gpuResource: qty},
			Limits:   corev1.ResourceList{gpuResource: qty},
		}
	}

	annotations := map[string]string{}
	if sutUID != "" {
		annotations[annotationSUTUID] = sutUID
	}
	if d.ServedModelName != "" {
		annotations[annotationServedModel] = d.ServedModelName
	}

	name := resourceName(d.Name)
	return &inferenceService{
		TypeMeta: metav1.TypeMeta{APIVersion: apiVersion, Kind: kind},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				labelManagedBy: managedBy,
				labelName:      name,
			},
			Annotations: annotations,
		},
		Spec: inferenceServiceSpec{Predictor: predictorSpec{Model: model}},
	}
}

func toUnstructured(isvc *inferenceService) (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(isvc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert InferenceService to unstructured: %w", err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

func fromUnstructured(obj *unstructured.Unstructured) (*inferenceService, error) {
	isvc := &inferenceService{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, isvc); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to InferenceService: %w", err)
	}
	return isvc, nil
}

// resourceName turns a deployment name into a DNS label: lower case,
// starting with a letter, at most 63 characters.
func resourceName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		case r == '_', r == '.', r == '/', r == '@', r == ':':
			return '-'
		default:
			return -1
		}
	}, name)

	if mapped != "" && (mapped[0] < 'a' || mapped[0] > 'z') {
		mapped = "m-" + mapped
	}
	if len(mapped) > 63 {
		mapped = mapped[:63]
	}
	return strings.TrimRight(mapped, "-")
}

// ServiceURL returns the cluster-local URL of an InferenceService.
func ServiceURL(name, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local", resourceName(name), namespace)
}

// openAIBaseURL returns the OpenAI-compatible base URL under a service URL.
// The vLLM runtime serves it at /v1, the Hugging Face runtime at /openai/v1.
func openAIBaseURL(serviceURL, servingRuntime string) string {
	u := strings.TrimRight(serviceURL, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	if servingRuntime == "kserve-huggingfaceserver" {
		return u + "/openai/v1"
	}
	return u + "/v1"
}

func (isvc *inferenceService) servingRuntime() string {
	if isvc.Spec.Predictor.Model == nil || isvc.Spec.Predictor.Model.Runtime == nil {
		return ""
	}
	return *isvc.Spec.Predictor.Model.Runtime
}
