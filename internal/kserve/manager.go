package kserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var isvcGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// ErrNotReady is returned when an endpoint is requested for a service that
// is not serving yet.
var ErrNotReady = errors.New("InferenceService is not ready")

// Manager deploys, discovers and removes SUT models in one namespace.
type Manager struct {
	client    dynamic.Interface
	namespace string
}

// NewManager creates a manager from a kubeconfig, or from the in-cluster
// service account when inCluster is set.
func NewManager(namespace, kubeconfig string, inCluster bool) (*Manager, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			rules.ExplicitPath = kubeconfig
		}
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewManagerWithClient(client, namespace), nil
}

// NewManagerWithClient creates a manager around an existing dynamic client.
func NewManagerWithClient(client dynamic.Interface, namespace string) *Manager {
	return &Manager{client: client, namespace: namespace}
}

func (m *Manager) resource() dynamic.ResourceInterface {
	return m.client.Resource(isvcGVR).Namespace(m.namespace)
}

// CheckAvailable verifies that the InferenceService CRD is installed.
func (m *Manager) CheckAvailable(ctx context.Context) error {
	if _, err := m.resource().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("KServe InferenceService CRD is not available in the cluster: %w", err)
	}
	return nil
}

// Deploy creates an InferenceService for d and waits until it serves.
// sutUID is recorded on the resource so list output can name the SUT.
func (m *Manager) Deploy(ctx context.Context, d Deployment, sutUID string) (*Status, error) {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	isvc := newInferenceService(d, m.namespace, sutUID)
	obj, err := toUnstructured(isvc)
	if err != nil {
		return nil, err
	}

	slog.Info("deploying SUT model",
		"name", isvc.Name,
		"sut", sutUID,
		"storage_uri", d.StorageURI,
		"gpu_count", d.GPUCount,
	)

	if _, err := m.resource().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("failed to create InferenceService %s: %w", isvc.Name, err)
	}

	ready, err := m.waitForReady(ctx, isvc.Name, d.ReadyTimeout)
	if err != nil {
		return nil, fmt.Errorf("InferenceService %s not ready: %w", isvc.Name, err)
	}
	status := m.status(ready)
	return &status, nil
}

// Provision returns a ready deployment for d, reusing an existing one with
// the same name. The release function tears down what Provision created
// unless d.Keep is set; it never removes a reused service.
func (m *Manager) Provision(ctx context.Context, d Deployment, sutUID string) (*Status, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	existing, err := m.Get(ctx, d.Name)
	switch {
	case err == nil && existing.Ready:
		slog.Info("reusing deployed SUT model", "name", existing.Name, "endpoint", existing.Endpoint)
		return existing, noop, nil
	case err == nil:
		return nil, nil, fmt.Errorf("InferenceService %s exists but is not ready: %s", existing.Name, existing.Message)
	case !apierrors.IsNotFound(err):
		return nil, nil, err
	}

	status, err := m.Deploy(ctx, d, sutUID)
	if err != nil {
		// Do not leave a half-started service behind.
		if terr := m.Teardown(context.WithoutCancel(ctx), d.Name); terr != nil {
			slog.Warn("failed to clean up InferenceService", "name", d.Name, "error", terr)
		}
		return nil, nil, err
	}
	if d.Keep {
		return status, noop, nil
	}
	return status, func(ctx context.Context) error { return m.Teardown(ctx, d.Name) }, nil
}

// Teardown deletes an InferenceService. Deleting a missing one is not an error.
func (m *Manager) Teardown(ctx context.Context, name string) error {
	name = resourceName(name)
	slog.Info("tearing down SUT model", "name", name)

	grace := int64(30)
	propagation := metav1.DeletePropagationForeground
	err := m.resource().Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
		PropagationPolicy:  &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete InferenceService %s: %w", name, err)
	}
	return nil
}

// List returns every InferenceService this tool manages.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	list, err := m.resource().List(ctx, metav1.ListOptions{
		LabelSelector: labelManagedBy + "=" + managedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list InferenceServices: %w", err)
	}

	statuses := make([]Status, 0, len(list.Items))
	for i := range list.Items {
		isvc, err := fromUnstructured(&list.Items[i])
		if err != nil {
			slog.Warn("skipping unreadable InferenceService", "name", list.Items[i].GetName(), "error", err)
			continue
		}
		statuses = append(statuses, m.status(isvc))
	}
	return statuses, nil
}

// Get returns the status of one InferenceService.
func (m *Manager) Get(ctx context.Context, name string) (*Status, error) {
	name = resourceName(name)
	obj, err := m.resource().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get InferenceService %s: %w", name, err)
	}
	isvc, err := fromUnstructured(obj)
	if err != nil {
		return nil, err
	}
	status := m.status(isvc)
	return &status, nil
}

// Discover returns the OpenAI-compatible endpoint and served model name of
// an existing, ready InferenceService.
func (m *Manager) Discover(ctx context.Context, name string) (endpoint, model string, err error) {
	status, err := m.Get(ctx, name)
	if err != nil {
		return "", "", err
	}
	if !status.Ready {
		return "", "", fmt.Errorf("%s: %w", status.Name, ErrNotReady)
	}
	return status.Endpoint, status.ServedModel, nil
}

func (m *Manager) status(isvc *inferenceService) Status {
	status := Status{
		Name:        isvc.Name,
		ServedModel: isvc.Annotations[annotationServedModel],
		SUTUID:      isvc.Annotations[annotationSUTUID],
		CreatedAt:   isvc.CreationTimestamp.Format(time.RFC3339),
	}

	ready, cond := isvc.Status.ready()
	switch {
	case ready:
		status.Ready = true
		url := isvc.Status.URL
		if url == "" {
			url = ServiceURL(isvc.Name, m.namespace)
		}
		status.Endpoint = openAIBaseURL(url, isvc.servingRuntime())
	case cond != nil && cond.Message != "":
		status.Message = cond.Message
	default:
		status.Message = "pending"
	}
	return status
}

func (m *Manager) waitForReady(ctx context.Context, name string, timeout time.Duration) (*inferenceService, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watcher, err := m.resource().Watch(ctx, metav1.ListOptions{FieldSelector: "metadata.name=" + name})
	if err != nil {
		return nil, fmt.Errorf("failed to watch InferenceService: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for InferenceService %s to become ready", name)
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return nil, fmt.Errorf("watch channel closed for InferenceService %s", name)
			}
			if event.Type != watch.Added && event.Type != watch.Modified {
				continue
			}
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			isvc, err := fromUnstructured(obj)
			if err != nil {
				slog.Warn("failed to convert watch event", "error", err)
				continue
			}
			ready, cond := isvc.Status.ready()
			if ready {
				slog.Info("SUT model ready", "name", name)
				return isvc, nil
			}
			if cond != nil {
				slog.Debug("SUT model not ready yet", "name", name, "reason", cond.Reason, "message", cond.Message)
			}
		}
	}
}
