package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/model"
)

//go:embed templates/*.tmpl
var builtinFS embed.FS

// MaxTranscriptRunes caps the transcript text sent in a summary prompt.
const MaxTranscriptRunes = 12000

var instructionTagRegex = regexp.MustCompile(`(?i)</?\s*(transcript|system-instructions)\b[^>]*>`)

// RubricVariant selects the scoring template.
type RubricVariant string

const (
	// RubricStrict deducts heavily for any doubt.
	RubricStrict RubricVariant = "strict"
	// RubricStandard is the default rubric.
	RubricStandard RubricVariant = "standard"
	// RubricLenient focuses on correctness only.
	RubricLenient RubricVariant = "lenient"
)

var validVariants = map[RubricVariant]bool{
	RubricStrict:   true,
	RubricStandard: true,
	RubricLenient:  true,
}

// IsValidVariant checks if a rubric variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[RubricVariant(v)]
}

// Prompt names, also used as llm.PromptSpec.Name.
const (
	NameClassify  = "classify"
	NameSummarize = "summarize"
	NameGenerate  = "generate"
	NameScore     = "score"
)

var temperatures = map[string]float32{
	NameClassify:  0.2,
	NameSummarize: 0.3,
	NameGenerate:  0.7,
	NameScore:     0.1,
}

// Set is a parsed group of prompt templates.
type Set struct {
	templates map[string]*template.Template
}

var (
	builtinOnce sync.Once
	builtinSet  *Set
	builtinErr  error
)

// Builtin returns the templates compiled into the binary.
func Builtin() (*Set, error) {
	builtinOnce.Do(func() {
		sub, err := fs.Sub(builtinFS, "templates")
		if err != nil {
			builtinErr = err
			return
		}
		builtinSet, builtinErr = Load(sub)
	})
	return builtinSet, builtinErr
}

// Load parses every prompt template from fsys. Each file defines a "system"
// and a "user" template.
func Load(fsys fs.FS) (*Set, error) {
	funcs := template.FuncMap{
		"join": strings.Join,
		"add":  func(a, b int) int { return a + b },
	}
	files := []string{NameClassify, NameSummarize, NameGenerate}
	for v := range validVariants {
		files = append(files, scoreTemplate(v))
	}

	set := &Set{templates: make(map[string]*template.Template, len(files))}
	for _, name := range files {
		file := name + ".tmpl"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		for _, part := range []string{"system", "user"} {
			if tmpl.Lookup(part) == nil {
				return nil, fmt.Errorf("prompt template %s: missing %q block", file, part)
			}
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

func scoreTemplate(v RubricVariant) string {
	return NameScore + "_" + string(v)
}

func (s *Set) render(tmplName, specName string, data any) (llm.PromptSpec, error) {
	if s == nil || s.templates == nil {
		return llm.PromptSpec{}, errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := s.templates[tmplName]
	if !ok {
		return llm.PromptSpec{}, fmt.Errorf("unknown prompt template %q", tmplName)
	}
	var system, user bytes.Buffer
	if err := tmpl.ExecuteTemplate(&system, "system", data); err != nil {
		return llm.PromptSpec{}, fmt.Errorf("render %s system prompt: %w", tmplName, err)
	}
	if err := tmpl.ExecuteTemplate(&user, "user", data); err != nil {
		return llm.PromptSpec{}, fmt.Errorf("render %s user prompt: %w", tmplName, err)
	}
	return llm.PromptSpec{
		Name:        specName,
		System:      strings.TrimSpace(system.String()),
		User:        strings.TrimSpace(user.String()),
		Temperature: temperatures[specName],
	}, nil
}

// LectureLine is one row of the classification prompt.
type LectureLine struct {
	Order int
	ID    string
	Title string
}

// ClassifyData holds template data for the classification prompt.
type ClassifyData struct {
	Lectures []LectureLine
	MinParts int
	MaxParts int
	Language string
}

// Classify builds the part classification prompt.
func (s *Set) Classify(data ClassifyData) (llm.PromptSpec, error) {
	return s.render(NameClassify, NameClassify, data)
}

// SummarizeData holds template data for the summary prompt.
type SummarizeData struct {
	PartName     string
	Titles       []string
	Transcript   string
	MaxSentences int
	Language     string
}

// Summarize builds the study note prompt. The transcript is sanitized and
// truncated to MaxTranscriptRunes.
func (s *Set) Summarize(data SummarizeData) (llm.PromptSpec, error) {
	data.Transcript = SanitizeTranscript(data.Transcript, MaxTranscriptRunes)
	if data.MaxSentences <= 0 {
		data.MaxSentences = 5
	}
	return s.render(NameSummarize, NameSummarize, data)
}

// TypeOption describes one allowed question type.
type TypeOption struct {
	Code int
	Name string
}

// GenerateData holds template data for the generation prompt.
type GenerateData struct {
	PartName   string
	Summary    string
	Count      int
	Difficulty int
	Types      []TypeOption
	Purpose    string
	Language   string
	Avoid      []string
}

// TypeOptions converts question types for GenerateData.
func TypeOptions(types []model.QuestionType) []TypeOption {
	out := make([]TypeOption, 0, len(types))
	for _, t := range types {
		out = append(out, TypeOption{Code: int(t), Name: t.String()})
	}
	return out
}

// Generate builds the question generation prompt.
func (s *Set) Generate(data GenerateData) (llm.PromptSpec, error) {
	return s.render(NameGenerate, NameGenerate, data)
}

// ScoreData holds template data for the scoring prompt.
type ScoreData struct {
	PartName    string
	TypeName    string
	Text        string
	Options     []string
	Answer      int
	Explanation string
	Difficulty  int
	Purpose     string
	Summary     string
}

// Score builds the validity scoring prompt for the given rubric variant.
func (s *Set) Score(variant RubricVariant, data ScoreData) (llm.PromptSpec, error) {
	if !validVariants[variant] {
		return llm.PromptSpec{}, errors.New("invalid rubric variant: " + string(variant))
	}
	return s.render(scoreTemplate(variant), NameScore, data)
}

// SanitizeTranscript strips tags that could be read as prompt structure and
// truncates to limit runes.
func SanitizeTranscript(text string, limit int) string {
	text = instructionTagRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if text == "" {
		return "[No transcript available]"
	}

	if limit > 0 && utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		text = string(runes[:limit]) + "\n\n[Transcript truncated due to length]"
	}

	return text
}
