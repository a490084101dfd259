// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/readaloud/readaloud/speech"
	"github.com/readaloud/readaloud/speech/backends"
	"github.com/readaloud/readaloud/speech/backends/espeak"
	"github.com/readaloud/readaloud/speech/backends/gtts"
	"github.com/readaloud/readaloud/speech/cache"
	"github.com/readaloud/readaloud/speech/extract"
	"github.com/readaloud/readaloud/speech/language"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	langFlag   string
	modeFlag   string
	outputFlag string
	noCache    bool

	keyword   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).Render
	subtle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE]",
		Short: "Turn text, documents and images into speech",
		Long: fmt.Sprintf("\nTurn text, documents and images into %s. Reads plain text, PDF,\nWord and PowerPoint documents, or images via OCR, and synthesizes audio\nonline or offline with a local artifact cache.", keyword("speech")),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOptions()
		},
		RunE: execute,
	}
)

// source provides readable input bytes plus their declared name.
type source struct {
	reader   io.ReadCloser
	filename string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(arg string) (*source, error) {
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}
	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	return &source{reader: r, filename: filepath.Base(arg)}, nil
}

func validateOptions() error {
	langFlag = viper.GetString("language")
	modeFlag = viper.GetString("mode")
	if modeFlag != "" && !speech.Mode(modeFlag).Valid() {
		return fmt.Errorf("mode must be %q or %q, got %q", speech.ModeOnline, speech.ModeOffline, modeFlag)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	var src *source
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes && len(args) == 0 {
		src = &source{reader: os.Stdin}
	} else if len(args) == 1 {
		s, err := sourceFromArg(args[0])
		if err != nil {
			return err
		}
		src = s
	} else {
		return errors.New("missing input: pass a file or pipe text on stdin")
	}
	defer src.reader.Close() //nolint:errcheck

	data, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read input: %w", err)
	}

	cfg, err := speech.LoadConfigFromViper()
	if err != nil {
		return err
	}

	pipeline, store, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close() //nolint:errcheck
	}

	in := speech.Input{Data: data, Filename: src.filename}
	if src.filename == "" {
		// Piped input is treated as plain text.
		in = speech.Input{Text: string(data)}
	}

	result, err := pipeline.Process(context.Background(), in, langFlag, speech.Mode(modeFlag))
	if err != nil {
		return err
	}

	ref := result.AudioRef
	if outputFlag != "" {
		if err := copyArtifact(result.AudioRef, outputFlag); err != nil {
			return err
		}
		ref = outputFlag
	}

	status := ""
	if result.Cached {
		status = subtle(" (cached)")
	}
	if result.Degraded {
		status += subtle(" (degraded to offline)")
	}
	fmt.Printf("%s %s [%s, %s]%s\n", keyword("audio:"), ref, result.Language, result.Backend, status)
	return nil
}

// buildPipeline wires the concrete components behind the orchestrator.
func buildPipeline(cfg speech.Config) (*speech.Pipeline, *cache.Store, error) {
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = defaultCacheDir()
	}

	var store speech.Store
	var diskStore *cache.Store
	if !noCache {
		s, err := cache.Open(cfg.Cache)
		if err != nil {
			// Cache trouble degrades to uncached synthesis, never a
			// startup failure.
			log.Warn("audio cache unavailable", "dir", cfg.Cache.Dir, "err", err)
		} else {
			store = s
			diskStore = s
		}
	}

	selector := backends.NewSelector(gtts.New(cfg.Online), espeak.New(cfg.Offline))
	pipeline, err := speech.NewPipeline(cfg,
		extract.NewDispatcher(cfg),
		language.New(),
		store,
		selector,
	)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, diskStore, nil
}

func copyArtifact(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("unable to read artifact: %w", err)
	}
	if err := os.WriteFile(to, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write output: %w", err)
	}
	return nil
}

func defaultCacheDir() string {
	scope := gap.NewScope(gap.User, "readaloud")
	dir, err := scope.CacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "readaloud-cache")
	}
	return filepath.Join(dir, "audio")
}

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	// Log to file, if set
	logFile := os.Getenv("READALOUD_LOGFILE")
	if logFile == "" {
		logFile = viper.GetString("log_file")
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("error setting up logging: %w", err)
		}
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
		return f.Close, nil
	}
	log.SetOutput(os.Stderr)
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	return func() error { return nil }, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&langFlag, "language", "l", "", "language tag (detected when empty)")
	rootCmd.Flags().StringVarP(&modeFlag, "mode", "m", "", fmt.Sprintf("synthesis mode: %s or %s", speech.ModeOnline, speech.ModeOffline))
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "write the audio artifact to this path")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the audio artifact cache")

	_ = viper.BindPFlag("language", rootCmd.Flags().Lookup("language"))
	_ = viper.BindPFlag("mode", rootCmd.Flags().Lookup("mode"))

	viper.SetDefault("debug", false)
	viper.SetDefault("speech.default_mode", string(speech.ModeOnline))

	rootCmd.AddCommand(configCmd, manCmd, purgeCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
