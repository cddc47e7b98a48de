// Package record holds the auditable output of a test run.
package record

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

// TestItemRecord is everything that happened for one test item.
type TestItemRecord struct {
	TestItem     testsuite.TestItem                 `json:"test_item"`
	Interactions []testsuite.InteractionAnnotations `json:"interactions"`
	Measurements []testsuite.Measurement            `json:"measurements"`
}

// TestRecord is the full record of one test run.
type TestRecord struct {
	RunID              string                        `json:"run_id"`
	RunTimestamp       time.Time                     `json:"run_timestamp"`
	TestUID            string                        `json:"test_uid"`
	TestInitialization identity.InitializationRecord `json:"test_initialization"`
	DependencyVersions map[string]string             `json:"dependency_versions"`
	SUTUID             string                        `json:"sut_uid"`
	SUTInitialization  identity.InitializationRecord `json:"sut_initialization"`
	TestItemRecords    []TestItemRecord              `json:"test_item_records"`
	Results            []testsuite.Result            `json:"results"`
	// CacheStats maps "sut" and every annotator key to cache usage.
	CacheStats map[string]cache.Stats `json:"cache_stats,omitempty"`
}

// Save writes the record as indented JSON to dir/<run id>.json and returns the path.
func (r *TestRecord) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	path := filepath.Join(dir, r.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	return path, nil
}

// Load reads a record written by Save.
func Load(path string) (*TestRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var r TestRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return &r, nil
}

// Summary renders the results of a run for humans.
func (r *TestRecord) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:   %s\n", r.RunID)
	fmt.Fprintf(&b, "Test:  %s\n", r.TestUID)
	fmt.Fprintf(&b, "SUT:   %s\n", r.SUTUID)
	fmt.Fprintf(&b, "Items: %d\n", len(r.TestItemRecords))
	if len(r.DependencyVersions) > 0 {
		b.WriteString("Dependencies:\n")
		for _, name := range slices.Sorted(maps.Keys(r.DependencyVersions)) {
			fmt.Fprintf(&b, "  %s: %s\n", name, r.DependencyVersions[name])
		}
	}
	b.WriteString("Results:\n")
	for _, res := range r.Results {
		fmt.Fprintf(&b, "  %s: %s\n", res.Name, formatValue(res.Value))
	}
	return b.String()
}

// Transcript renders every interaction of the run in question/answer form.
func (r *TestRecord) Transcript() string {
	var b strings.Builder
	for i, item := range r.TestItemRecords {
		for _, interaction := range item.Interactions {
			p := interaction.Prompt
			fmt.Fprintf(&b, "---\n")
			id := p.SourceID
			if id == "" {
				id = fmt.Sprintf("%d", i+1)
			}
			fmt.Fprintf(&b, "NO. %s\n", id)
			fmt.Fprintf(&b, "QUESTION: %s\n", prompt.Text(p.Prompt))
			if expected, ok := prompt.ExpectedAnswer(p.Context); ok {
				fmt.Fprintf(&b, "EXPECTED ANSWER: %s\n", expected)
			}
			for _, c := range interaction.Response.Completions {
				fmt.Fprintf(&b, "ACTUAL ANSWER: %s\n", c.Completion.Text)
			}
		}
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4g", x)
	case string:
		return x
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
