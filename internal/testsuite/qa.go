package testsuite

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/giantswarm/llm-gauge/internal/aggregate"
	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/dependency"
	"github.com/giantswarm/llm-gauge/internal/identity"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
)

const (
	questionsDependency = "questions"

	// MeasurementExpectedAnswer is 1 when the completion equals the expected answer.
	MeasurementExpectedAnswer = "gave_expected_answer"
)

// QAContext is the context attached to every QA prompt.
type QAContext struct {
	Answer  string `json:"expected_answer"`
	Section string `json:"section,omitempty"`
}

// ExpectedAnswer implements prompt.AnswerContext.
func (c QAContext) ExpectedAnswer() string { return c.Answer }

// QATest asks one question per test item and compares each completion with
// the expected answer, both literally and through its annotators.
type QATest struct {
	def        Definition
	fsys       fs.FS
	annotators map[string]annotator.Annotator
}

var _ Test = (*QATest)(nil)

// NewQATest creates a QA test from a definition whose files live in fsys.
func NewQATest(def Definition, fsys fs.FS, annotators map[string]annotator.Annotator) *QATest {
	return &QATest{def: def, fsys: fsys, annotators: annotators}
}

func (t *QATest) UID() string { return t.def.UID }

func (t *QATest) InitializationRecord() identity.InitializationRecord {
	q := t.def.Questions
	args := map[string]any{
		"name":    t.def.Name,
		"version": t.def.Version,
		"format":  q.Format,
	}
	if q.URL != "" {
		args["url"] = q.URL
	} else {
		args["file"] = q.File
	}
	if q.Unpack != "" {
		args["unpack"] = q.Unpack
	}
	if t.def.Prompt.SystemMessage != "" {
		args["system_message"] = t.def.Prompt.SystemMessage
	}
	if len(t.def.Annotators) > 0 {
		keys := make([]string, len(t.def.Annotators))
		for i, a := range t.def.Annotators {
			keys[i] = a.Key + ":" + a.Type
		}
		args["annotators"] = keys
	}
	return identity.InitializationRecord{Type: "qa", Args: args}
}

func (t *QATest) RequiredCapabilities() []sut.Capability {
	caps := []sut.Capability{sut.AcceptsTextPrompt}
	if t.def.Prompt.SystemMessage != "" {
		caps = []sut.Capability{sut.AcceptsChatPrompt}
	}
	if t.def.Prompt.NumCompletions > 1 {
		caps = append(caps, sut.ProducesMultipleCompletions)
	}
	return caps
}

func (t *QATest) Dependencies() map[string]dependency.Source {
	return map[string]dependency.Source{questionsDependency: t.def.source(t.fsys)}
}

func (t *QATest) Annotators() map[string]annotator.Annotator {
	return t.annotators
}

func (t *QATest) MakeTestItems(ctx context.Context, deps dependency.Helper) ([]TestItem, error) {
	path, err := deps.LocalPath(ctx, questionsDependency)
	if err != nil {
		return nil, err
	}

	var questions []Question
	q := t.def.Questions
	switch {
	case q.Format == FormatLines:
		questions, err = loadQuestionLines(filepath.Join(path, q.QuestionsFile), filepath.Join(path, q.AnswersFile))
	case q.Unpack != "":
		questions, err = loadQuestionsFromFS(os.DirFS(path), q.CSVFile)
	default:
		questions, err = loadQuestionsFromFS(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for %s: %w", t.def.UID, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("test %s has no questions", t.def.UID)
	}

	items := make([]TestItem, 0, len(questions))
	for _, question := range questions {
		items = append(items, TestItem{Prompts: []prompt.WithContext{{
			Prompt:   t.buildPrompt(question.QuestionText),
			SourceID: question.ID,
			Context:  QAContext{Answer: question.ExpectedAnswer, Section: question.Section},
		}}})
	}
	return items, nil
}

func (t *QATest) buildPrompt(text string) prompt.Prompt {
	opts := prompt.DefaultOptions()
	cfg := t.def.Prompt
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if cfg.NumCompletions > 0 {
		opts.NumCompletions = cfg.NumCompletions
	}
	opts.Temperature = cfg.Temperature
	opts.TopP = cfg.TopP

	if cfg.SystemMessage == "" {
		return prompt.TextPrompt{Text: text, Options: opts}
	}
	return prompt.ChatPrompt{
		Messages: []prompt.ChatMessage{
			{Text: cfg.SystemMessage, Role: prompt.RoleSystem},
			{Text: text, Role: prompt.RoleUser},
		},
		Options: opts,
	}
}

// MeasureQuality reports the share of completions equal to the expected
// answer and, per annotator, the share graded correct.
func (t *QATest) MeasureQuality(item TestItemAnnotations) ([]Measurement, error) {
	if len(item.Interactions) != 1 {
		return nil, fmt.Errorf("expected 1 interaction, got %d", len(item.Interactions))
	}
	interaction := item.Interactions[0]
	completions := interaction.Response.Completions
	if len(completions) == 0 {
		return nil, fmt.Errorf("response has no completions")
	}

	expected, ok := prompt.ExpectedAnswer(interaction.Prompt.Context)
	if !ok {
		return nil, fmt.Errorf("prompt context %T has no expected answer", interaction.Prompt.Context)
	}

	matched := 0
	for _, c := range completions {
		if strings.TrimSpace(c.Completion.Text) == strings.TrimSpace(expected) {
			matched++
		}
	}
	measurements := []Measurement{{
		Name:  MeasurementExpectedAnswer,
		Value: float64(matched) / float64(len(completions)),
	}}

	for _, key := range t.annotatorKeys() {
		correct := 0
		for _, c := range completions {
			ann, ok := c.Annotations[key]
			if !ok {
				return nil, fmt.Errorf("completion has no %q annotation", key)
			}
			var v annotator.Verdict
			if err := ann.Decode(&v); err != nil {
				return nil, err
			}
			if v.Correct {
				correct++
			}
		}
		measurements = append(measurements, Measurement{
			Name:  correctMeasurement(key),
			Value: float64(correct) / float64(len(completions)),
		})
	}
	return measurements, nil
}

// AggregateMeasurements averages every measurement into a "<name>_rate"
// result and summarizes its spread across items in a "<name>_stats" result.
func (t *QATest) AggregateMeasurements(items []MeasuredTestItem) ([]Result, error) {
	names := []string{MeasurementExpectedAnswer}
	for _, key := range t.annotatorKeys() {
		names = append(names, correctMeasurement(key))
	}

	results := make([]Result, 0, 2*len(names))
	for _, name := range names {
		mean, err := aggregate.MeanOfMeasurement(name, items)
		if err != nil {
			return nil, err
		}
		stats, err := aggregate.StatsOfMeasurement(name, items)
		if err != nil {
			return nil, err
		}
		results = append(results,
			Result{Name: name + "_rate", Value: mean},
			Result{Name: name + "_stats", Value: stats},
		)
	}
	return results, nil
}

func (t *QATest) annotatorKeys() []string {
	return slices.Sorted(maps.Keys(t.annotators))
}

func correctMeasurement(key string) string {
	return key + "_correct"
}
