package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# enable verbose logging
debug: false
# append logs to this file instead of stderr
# log_file: "/tmp/readaloud.log"

# Speech pipeline configuration
speech:
  # longest input accepted for synthesis, in characters
  max_text_length: 5000
  # language used when detection fails or confidence is low
  default_language: "en"
  # minimum detection confidence before falling back
  confidence_threshold: 0.6
  # synthesis mode when none is requested: online or offline
  default_mode: "online"

  cache:
    # directory for synthesized audio artifacts (default: user cache dir)
    # dir: "/var/cache/readaloud"
    # total artifact budget in bytes before LRU eviction
    max_bytes: 268435456
    # artifacts older than this are purged
    max_age: "336h"
    # how often the background janitor runs
    cleanup_interval: "1h"
    # zstd level for the index snapshot, 0 disables compression
    compression_level: 3

  online:
    endpoint: "https://translate.google.com/translate_tts"
    timeout: "10s"
    max_retries: 3
    # throttle for the synthesis endpoint
    requests_per_minute: 50
    # request slowed-down speech
    slow: false

  offline:
    binary: "espeak-ng"
    words_per_minute: 155
    timeout: "30s"

  ocr:
    binary: "tesseract"
    # languages passed to tesseract for image inputs
    languages: "eng+urd"
    timeout: "30s"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
