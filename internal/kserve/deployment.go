// Package kserve deploys SUT models as KServe InferenceServices and finds
// the OpenAI-compatible endpoints they serve on.
package kserve

import (
	"errors"
	"time"
)

const (
	defaultRuntime      = "kserve-vllm"
	defaultReadyTimeout = 10 * time.Minute
)

// Deployment describes a model to serve for the duration of a run.
type Deployment struct {
	// Name of the InferenceService. It is normalized into a DNS label.
	Name string `yaml:"name" json:"name"`

	// StorageURI is where the weights live, e.g. "hf://mistralai/Mistral-7B-Instruct-v0.3".
	StorageURI string `yaml:"storage_uri" json:"storage_uri"`

	// Runtime is the KServe ServingRuntime.
	Runtime string `yaml:"runtime" json:"runtime,omitempty"`

	GPUCount int `yaml:"gpu_count" json:"gpu_count,omitempty"`

	// ServedModelName is the model name requests must use. vLLM defaults it
	// to the storage path when unset.
	ServedModelName string `yaml:"served_model_name" json:"served_model_name,omitempty"`

	// RuntimeArgs are passed to the serving runtime as-is.
	RuntimeArgs []string `yaml:"runtime_args" json:"runtime_args,omitempty"`

	ReadyTimeout time.Duration `yaml:"ready_timeout" json:"ready_timeout,omitempty"`

	// Keep leaves the InferenceService running after the run.
	Keep bool `yaml:"keep" json:"keep,omitempty"`
}

// WithDefaults fills in the runtime, GPU count and ready timeout.
func (d Deployment) WithDefaults() Deployment {
	if d.Runtime == "" {
		d.Runtime = defaultRuntime
	}
	if d.GPUCount == 0 {
		d.GPUCount = 1
	}
	if d.ReadyTimeout <= 0 {
		d.ReadyTimeout = defaultReadyTimeout
	}
	return d
}

// Validate checks the fields a deployment cannot do without.
func (d Deployment) Validate() error {
	var errs []error
	if resourceName(d.Name) == "" {
		errs = append(errs, errors.New("deployment name is required"))
	}
	if d.StorageURI == "" {
		errs = append(errs, errors.New("deployment storage_uri is required"))
	}
	if d.GPUCount < 0 {
		errs = append(errs, errors.New("deployment gpu_count must not be negative"))
	}
	return errors.Join(errs...)
}

// Status is the observed state of a deployed SUT model.
type Status struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	// Endpoint is the OpenAI-compatible base URL, set once the service is ready.
	Endpoint    string `json:"endpoint,omitempty"`
	ServedModel string `json:"served_model,omitempty"`
	SUTUID      string `json:"sut_uid,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	Message     string `json:"message,omitempty"`
}
