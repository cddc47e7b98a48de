package testsuite

import (
	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

// TestItem is the unit of evaluation: one or more prompts answered in order.
// Items are compared by value and never modified after construction.
type TestItem struct {
	Prompts []prompt.WithContext `json:"prompts"`
}

// Measurement is a numeric observation about one TestItem.
type Measurement struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Result is a run-level summary computed from all measurements.
type Result struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// CompletionAnnotations pairs a completion with the annotations made on it,
// keyed by annotator key.
type CompletionAnnotations struct {
	Completion  sut.Completion                  `json:"completion"`
	Annotations map[string]annotator.Annotation `json:"annotations"`
}

// ResponseAnnotations holds the annotated completions of one SUT response.
type ResponseAnnotations struct {
	Completions []CompletionAnnotations `json:"completions"`
}

// InteractionAnnotations records one prompt and what came back for it.
type InteractionAnnotations struct {
	Prompt   prompt.WithContext  `json:"prompt"`
	Response ResponseAnnotations `json:"response"`
}

// TestItemAnnotations is a TestItem after every prompt was answered and annotated.
// Interactions follow the order of TestItem.Prompts.
type TestItemAnnotations struct {
	TestItem     TestItem                 `json:"test_item"`
	Interactions []InteractionAnnotations `json:"interactions"`
}

// MeasuredTestItem is what a test aggregates over.
type MeasuredTestItem struct {
	TestItem     TestItem      `json:"test_item"`
	Measurements []Measurement `json:"measurements"`
}

// MeasurementValue returns the first measurement called name.
func (m MeasuredTestItem) MeasurementValue(name string) (float64, bool) {
	for _, ms := range m.Measurements {
		if ms.Name == name {
			return ms.Value, true
		}
	}
	return 0, false
}
