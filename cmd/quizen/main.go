package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizen/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quizen",
		Short:        "Turn lecture subtitles into a validated question bank",
		SilenceUsage: true,
	}
	root.AddCommand(
		runCmd(),
		resumeCmd(),
		inspectCmd(),
		runsCmd(),
		serveCmd(),
		operatorCmd(),
		configCmd(),
	)
	return root
}

// addCommonFlags registers the flags every command reads.
func addCommonFlags(f *pflag.FlagSet) {
	def := config.Default()
	f.String("db", def.DB, "SQLite database path")
	f.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	f.String("log-format", def.LogFormat, "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(config.FileName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizen")
	v.AddConfigPath("/etc/quizen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// configFrom reads every setting the command registered.
func configFrom(v *viper.Viper) config.Config {
	return config.Config{
		DB:                 v.GetString("db"),
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
		LLMURL:             v.GetString("llm-url"),
		LLMKey:             v.GetString("llm-key"),
		LLMModel:           v.GetString("llm-model"),
		LLMTimeout:         v.GetString("llm-timeout"),
		Total:              v.GetInt("total"),
		Difficulty:         v.GetInt("difficulty"),
		TrueFalse:          v.GetBool("true-false"),
		GroupSize:          v.GetInt("group-size"),
		ScoreThreshold:     v.GetInt("score-threshold"),
		SupplementalRounds: v.GetInt("supplemental-rounds"),
		Concurrency:        v.GetInt("concurrency"),
		Rubric:             v.GetString("rubric"),
		Purpose:            v.GetString("purpose"),
		Lang:               v.GetString("lang"),
		Template:           v.GetString("template"),
		Folder:             v.GetString("folder"),
		CopyName:           v.GetString("copy-name"),
		SheetName:          v.GetString("sheet-name"),
		Meta:               v.GetBool("meta"),
		MetaSheetName:      v.GetString("meta-sheet-name"),
		SheetDir:           v.GetString("sheet-dir"),
		GoogleCredentials:  v.GetString("google-credentials"),
		Addr:               v.GetString("addr"),
	}
}

// lockRun takes the per-run file lock next to the database so two processes
// never drive the same run.
func lockRun(dbPath, runID string) (*flock.Flock, error) {
	dir := filepath.Dir(dbPath)
	if dbPath == ":memory:" || dir == "" {
		dir = os.TempDir()
	}
	lock := flock.New(filepath.Join(dir, ".quizen-"+runID+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("run %s is being processed by another quizen process", runID)
	}
	return lock, nil
}
