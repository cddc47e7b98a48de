package runner

import (
	"errors"
	"fmt"
)

// ErrInvalidMaxTestItems is returned when the requested item count is not positive.
var ErrInvalidMaxTestItems = errors.New("max test items must be a positive integer")

// PreflightError is returned when a test or SUT cannot be run at all.
// No external call has been made when it is returned.
type PreflightError struct {
	Err error
}

func (e *PreflightError) Error() string {
	return "pre-flight check failed: " + e.Err.Error()
}

func (e *PreflightError) Unwrap() error { return e.Err }

// ConfigError is returned for invalid run options.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid run configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Component names the part of a run an error came from.
type Component string

const (
	ComponentSUT       Component = "sut"
	ComponentAnnotator Component = "annotator"
	ComponentTest      Component = "test"
)

// CallError attributes a failure to one component and one test item.
type CallError struct {
	Component Component
	// Identity is the SUT UID, annotator key or test UID.
	Identity string
	// Item is the index of the test item in the (sampled) run order.
	Item int
	// Prompt is the index of the prompt within the item, or -1.
	Prompt int
	// Stage is the step that failed, e.g. "translate request" or "evaluate".
	Stage string
	Err   error
}

func (e *CallError) Error() string {
	where := fmt.Sprintf("item %d", e.Item)
	if e.Prompt >= 0 {
		where += fmt.Sprintf(" prompt %d", e.Prompt)
	}
	return fmt.Sprintf("%s %q failed to %s on %s: %v", e.Component, e.Identity, e.Stage, where, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
