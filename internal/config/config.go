// Package config holds the typed defaults of every quizen setting and renders
// them as a commented TOML sample. Keys match the command-line flag names so
// the same file is read by the commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/model"
)

// FileName is the base name viper searches for.
const FileName = "quizen"

// Config is the full set of settings.
type Config struct {
	DB         string `toml:"db" comment:"SQLite database holding run checkpoints and events"`
	LogLevel   string `toml:"log-level" comment:"debug, info, warn or error"`
	LogFormat  string `toml:"log-format" comment:"text or json"`
	LLMURL     string `toml:"llm-url" comment:"OpenAI-compatible API base URL; leave empty to run without an LLM"`
	LLMKey     string `toml:"llm-key" comment:"API key for the LLM endpoint"`
	LLMModel   string `toml:"llm-model"`
	LLMTimeout string `toml:"llm-timeout" comment:"per-request timeout"`

	Total              int    `toml:"total" comment:"questions in the bank"`
	Difficulty         int    `toml:"difficulty" comment:"1..5"`
	TrueFalse          bool   `toml:"true-false" comment:"allow TRUE_FALSE questions"`
	GroupSize          int    `toml:"group-size" comment:"target lectures per PART"`
	ScoreThreshold     int    `toml:"score-threshold" comment:"questions scoring below need review"`
	SupplementalRounds int    `toml:"supplemental-rounds"`
	Concurrency        int    `toml:"concurrency" comment:"parallel LLM requests"`
	Rubric             string `toml:"rubric" comment:"strict, standard or lenient"`
	Purpose            string `toml:"purpose"`
	Lang               string `toml:"lang" comment:"question and label language (en, ko)"`
	Template           string `toml:"template" comment:"template spreadsheet id, or a directory of CSV tabs with sheet-dir"`
	Folder             string `toml:"folder" comment:"destination Drive folder or directory"`
	CopyName           string `toml:"copy-name" comment:"empty means \"quizen <date> <run>\""`
	SheetName          string `toml:"sheet-name"`
	Meta               bool   `toml:"meta" comment:"write the PART mapping tab"`
	MetaSheetName      string `toml:"meta-sheet-name"`
	SheetDir           string `toml:"sheet-dir" comment:"export to local CSV workbooks under this directory instead of Google Sheets"`
	GoogleCredentials  string `toml:"google-credentials" comment:"service account JSON for Drive and Sheets"`
	Addr               string `toml:"addr" comment:"listen address of quizen serve"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	opts := model.DefaultRunOptions()
	return Config{
		DB:                 "quizen.db",
		LogLevel:           "info",
		LogFormat:          "text",
		LLMURL:             "http://localhost:11434/v1",
		LLMKey:             "ollama",
		LLMModel:           "llama3.2",
		LLMTimeout:         llm.DefaultTimeout.String(),
		Total:              opts.TotalQuestions,
		Difficulty:         opts.Difficulty,
		TrueFalse:          opts.IncludeTrueFalse,
		GroupSize:          opts.TargetGroupSize,
		ScoreThreshold:     opts.ScoreThreshold,
		SupplementalRounds: opts.MaxSupplementalRounds,
		Concurrency:        opts.Concurrency,
		Rubric:             opts.RubricVariant,
		Purpose:            opts.Purpose,
		Lang:               opts.Language,
		SheetName:          opts.SheetName,
		Meta:               opts.WriteMeta,
		MetaSheetName:      opts.MetaSheetName,
		Addr:               ":8080",
	}
}

// RunOptions projects the run settings.
func (c Config) RunOptions() model.RunOptions {
	return model.RunOptions{
		TotalQuestions:        c.Total,
		Difficulty:            c.Difficulty,
		IncludeTrueFalse:      c.TrueFalse,
		TargetGroupSize:       c.GroupSize,
		ScoreThreshold:        c.ScoreThreshold,
		MaxSupplementalRounds: c.SupplementalRounds,
		Concurrency:           c.Concurrency,
		RubricVariant:         c.Rubric,
		Purpose:               c.Purpose,
		Language:              c.Lang,
		TemplateID:            c.Template,
		DestinationFolder:     c.Folder,
		CopyName:              c.CopyName,
		SheetName:             c.SheetName,
		WriteMeta:             c.Meta,
		MetaSheetName:         c.MetaSheetName,
	}
}

// Timeout parses LLMTimeout, falling back to the client default.
func (c Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.LLMTimeout)
	if err != nil || d <= 0 {
		return llm.DefaultTimeout
	}
	return d
}

// Sample renders the defaults as a commented TOML document.
func Sample() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# quizen configuration\n")
	buf.WriteString("# Every key can also be set with a flag or a QUIZEN_ environment variable.\n\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(Default()); err != nil {
		return nil, fmt.Errorf("encode sample config: %w", err)
	}
	return buf.Bytes(), nil
}

// CreateSample writes the sample to path. An existing file is left alone
// unless force is set.
func CreateSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check %s: %w", path, err)
		}
	}
	data, err := Sample()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Load decodes a TOML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
