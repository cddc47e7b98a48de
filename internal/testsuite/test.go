// Package testsuite defines what a test is and ships the tests that are
// configured from YAML definitions.
package testsuite

import (
	"context"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/dependency"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// Test builds test items, measures each annotated item and aggregates the
// measurements into results.
type Test interface {
	identity.Identified

	// RequiredCapabilities lists what a SUT must declare to run this test.
	RequiredCapabilities() []sut.Capability

	// Dependencies maps dependency names to where they come from.
	Dependencies() map[string]dependency.Source

	// Annotators maps annotator keys to the annotators applied to every completion.
	Annotators() map[string]annotator.Annotator

	// MakeTestItems returns the items to evaluate, in order.
	MakeTestItems(ctx context.Context, deps dependency.Helper) ([]TestItem, error)

	// MeasureQuality derives measurements from one fully annotated item.
	MeasureQuality(item TestItemAnnotations) ([]Measurement, error)

	// AggregateMeasurements reduces all measured items into results.
	AggregateMeasurements(items []MeasuredTestItem) ([]Result, error)
}

// UnsupportedTestTypeError is returned when a definition names an unknown test type.
type UnsupportedTestTypeError struct {
	Type string
}

func (e *UnsupportedTestTypeError) Error() string {
	return "unsupported test type: " + e.Type
}
