package testsuite

import (
	"fmt"
	"io/fs"

	"github.com/giantswarm/llm-gauge/internal/annotators"
	"github.com/giantswarm/llm-gauge/internal/dependency"
)

// Question file formats.
const (
	// FormatCSV is a CSV file with ID, Section, Question and ExpectedAnswer columns.
	FormatCSV = "csv"
	// FormatLines is a pair of files with one question (or answer) per line.
	FormatLines = "lines"
)

// Definition is the content of a test's config.yaml.
type Definition struct {
	// UID defaults to the name of the directory holding config.yaml.
	UID         string              `yaml:"uid"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Version     string              `yaml:"version"`
	Type        string              `yaml:"type"` // e.g. "qa" (default)
	Questions   QuestionSource      `yaml:"questions"`
	Prompt      PromptConfig        `yaml:"prompt"`
	Annotators  []annotators.Config `yaml:"annotators"`
}

// QuestionSource describes the dependency holding the questions.
type QuestionSource struct {
	Format string `yaml:"format"`
	// File is relative to the test directory. Exactly one of File and URL is set.
	File string `yaml:"file"`
	URL  string `yaml:"url"`
	// Unpack is "tar", "zip" or "gzip" for archived questions.
	Unpack string `yaml:"unpack"`
	// Inside an unpacked archive: the CSV file, or the questions and answers files.
	CSVFile       string `yaml:"csv_file"`
	QuestionsFile string `yaml:"questions_file"`
	AnswersFile   string `yaml:"answers_file"`
}

// PromptConfig controls how questions are turned into prompts. With a
// system message every question becomes a chat prompt.
type PromptConfig struct {
	SystemMessage  string   `yaml:"system_message"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	TopP           *float64 `yaml:"top_p"`
	NumCompletions int      `yaml:"num_completions"`
}

func (d *Definition) applyDefaults(dirName string) {
	if d.UID == "" {
		d.UID = dirName
	}
	if d.Type == "" {
		d.Type = "qa"
	}
	if d.Questions.Format == "" {
		d.Questions.Format = FormatCSV
	}
	if d.Questions.File == "" && d.Questions.URL == "" {
		d.Questions.File = "questions.csv"
	}
	if d.Questions.CSVFile == "" {
		d.Questions.CSVFile = "questions.csv"
	}
	if d.Questions.QuestionsFile == "" {
		d.Questions.QuestionsFile = "questions.txt"
	}
	if d.Questions.AnswersFile == "" {
		d.Questions.AnswersFile = "answers.txt"
	}
}

func (d *Definition) validate() error {
	q := d.Questions
	if q.File != "" && q.URL != "" {
		return fmt.Errorf("questions: only one of file and url may be set")
	}
	switch q.Format {
	case FormatCSV:
	case FormatLines:
		if q.Unpack == "" {
			return fmt.Errorf("questions: format %q needs an unpacked archive", FormatLines)
		}
	default:
		return fmt.Errorf("questions: unknown format %q", q.Format)
	}
	if _, err := unpackerFor(q.Unpack); err != nil {
		return err
	}

	seen := make(map[string]bool, len(d.Annotators))
	for _, a := range d.Annotators {
		if a.Key == "" {
			return fmt.Errorf("annotators: every annotator needs a key")
		}
		if seen[a.Key] {
			return fmt.Errorf("annotators: duplicate key %q", a.Key)
		}
		seen[a.Key] = true
	}
	return nil
}

// source returns the questions dependency. Files are read from fsys.
func (d *Definition) source(fsys fs.FS) dependency.Source {
	u, _ := unpackerFor(d.Questions.Unpack)
	if g, ok := u.(dependency.GzipUnpacker); ok {
		g.Name = d.Questions.CSVFile
		u = g
	}
	if d.Questions.URL != "" {
		return dependency.WebData{URL: d.Questions.URL, Unpack: u}
	}
	return dependency.FSData{FS: fsys, Path: d.Questions.File, Unpack: u}
}

func unpackerFor(name string) (dependency.Unpacker, error) {
	switch name {
	case "":
		return nil, nil
	case "tar":
		return dependency.TarUnpacker{}, nil
	case "zip":
		return dependency.ZipUnpacker{}, nil
	case "gzip":
		return dependency.GzipUnpacker{}, nil
	default:
		return nil, fmt.Errorf("questions: unknown unpacker %q", name)
	}
}
