package testsuite

import (
	"bufio"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/annotators"
)

//go:embed all:testdata
var embeddedSuites embed.FS

// Question is one row of a question file.
type Question struct {
	ID             string
	Section        string
	QuestionText   string
	ExpectedAnswer string
}

// Load loads a test by name, searching first in the external directory
// (if provided), then in the embedded tests. factory builds the
// annotators the definition lists.
func Load(name, externalDir string, factory annotators.Factory) (Test, error) {
	def, fsys, err := LoadDefinition(name, externalDir)
	if err != nil {
		return nil, err
	}
	return newTest(*def, fsys, factory)
}

// LoadDefinition reads and validates a test definition without building
// its annotators. The returned fs.FS holds the definition's files.
func LoadDefinition(name, externalDir string) (*Definition, fs.FS, error) {
	fsys, err := suiteFS(name, externalDir)
	if err != nil {
		return nil, nil, err
	}

	configData, err := fs.ReadFile(fsys, "config.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config.yaml for test %q: %w", name, err)
	}

	var def Definition
	if err := yaml.Unmarshal(configData, &def); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config.yaml for test %q: %w", name, err)
	}
	def.applyDefaults(name)
	if err := def.validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config.yaml for test %q: %w", name, err)
	}
	return &def, fsys, nil
}

func suiteFS(name, externalDir string) (fs.FS, error) {
	// Try external directory first.
	if externalDir != "" {
		dir := filepath.Join(externalDir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), nil
		}
	}

	// Fall back to embedded tests.
	// Use path.Join (not filepath.Join) because embed.FS always uses forward slashes.
	subFS, err := fs.Sub(embeddedSuites, path.Join("testdata", name))
	if err != nil {
		return nil, fmt.Errorf("test %q not found: %w", name, err)
	}
	if _, err := fs.Stat(subFS, "config.yaml"); err != nil {
		return nil, fmt.Errorf("test %q not found: %w", name, err)
	}
	return subFS, nil
}

func newTest(def Definition, fsys fs.FS, factory annotators.Factory) (Test, error) {
	switch def.Type {
	case "qa":
		anns := make(map[string]annotator.Annotator, len(def.Annotators))
		for _, cfg := range def.Annotators {
			if factory == nil {
				return nil, fmt.Errorf("test %q configures annotators but no annotator factory was given", def.UID)
			}
			a, err := factory(cfg)
			if err != nil {
				return nil, err
			}
			anns[cfg.Key] = a
		}
		return NewQATest(def, fsys, anns), nil
	default:
		return nil, &UnsupportedTestTypeError{Type: def.Type}
	}
}

// List returns the names of all available tests.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	// List embedded tests.
	entries, err := fs.ReadDir(embeddedSuites, "testdata")
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	// List external tests.
	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read test directory %s: %w", externalDir, err)
		}
		for _, e := range entries {
			if e.IsDir() && !seen[e.Name()] {
				names = append(names, e.Name())
			}
		}
	}

	slices.Sort(names)
	return names, nil
}

func loadQuestionsFromFS(fsys fs.FS, filename string) ([]Question, error) {
	f, err := fsys.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable field counts.

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	// Validate required columns.
	for _, required := range []string{"ID", "Section", "Question", "ExpectedAnswer"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column: %s", required)
		}
	}

	// Determine the minimum number of columns required by checking the max column index.
	minCols := 0
	for _, idx := range colIndex {
		if idx >= minCols {
			minCols = idx + 1
		}
	}

	var questions []Question
	for lineNum := 2; ; lineNum++ { // lineNum starts at 2 (1-indexed, after header).
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", lineNum, err)
		}
		if len(record) < minCols {
			return nil, fmt.Errorf("CSV row %d has %d columns, expected at least %d", lineNum, len(record), minCols)
		}

		questions = append(questions, Question{
			ID:             record[colIndex["ID"]],
			Section:        record[colIndex["Section"]],
			QuestionText:   record[colIndex["Question"]],
			ExpectedAnswer: record[colIndex["ExpectedAnswer"]],
		})
	}

	return questions, nil
}

// loadQuestionLines pairs line i of the questions file with line i of the
// answers file. Pairs where either side is blank are skipped.
func loadQuestionLines(questionsFile, answersFile string) ([]Question, error) {
	questions, err := readLines(questionsFile)
	if err != nil {
		return nil, err
	}
	answers, err := readLines(answersFile)
	if err != nil {
		return nil, err
	}
	if len(answers) < len(questions) {
		return nil, fmt.Errorf("%s has %d lines but %s has only %d", filepath.Base(questionsFile), len(questions), filepath.Base(answersFile), len(answers))
	}

	var out []Question
	for i, q := range questions {
		q, a := strings.TrimSpace(q), strings.TrimSpace(answers[i])
		if q == "" || a == "" {
			continue
		}
		out = append(out, Question{
			ID:             fmt.Sprintf("%d", i+1),
			QuestionText:   q,
			ExpectedAnswer: a,
		})
	}
	return out, nil
}

func readLines(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return lines, nil
}
