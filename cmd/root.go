package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/icco/oscmidi/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "oscmidi",
	Short: "An OSC to MIDI bridge with a timed note scheduler",
	Long: `oscmidi listens for OSC control messages and turns them into precisely timed
MIDI note-on and note-off events.

Notes are scheduled against a shared sync point, so a remote sequencer can send
a whole bar ahead of time and cancel or replace individual notes before they sound.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "oscmidi",
	}), nil
}

// loadConfig falls back to the defaults when the file is unusable.
func loadConfig(logger *log.Logger) config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && configPath == config.DefaultPath {
			logger.Debug("no configuration file, using defaults", "path", configPath)
		} else {
			logger.Warn("using default configuration", "err", err)
		}
	}
	return cfg
}
