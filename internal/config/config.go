// Package config loads the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration is read from unless overridden.
const DefaultPath = "./oscmidi.yaml"

// Output modes.
const (
	OutputPort    = "port"
	OutputVirtual = "virtual"
	OutputSynth   = "synth"
	OutputLog     = "log"
)

// Config is the on-disk configuration.
type Config struct {
	ListenAddress   string `yaml:"listen_address"`
	Output          string `yaml:"output"`
	MIDIPort        *int   `yaml:"midi_port,omitempty"`
	VirtualName     string `yaml:"virtual_name"`
	Record          string `yaml:"record,omitempty"`
	QueueSize       int    `yaml:"queue_size"`
	ReleaseOnCancel bool   `yaml:"release_on_cancel"`
	EncodeChannel   bool   `yaml:"encode_channel"`
}

// Default returns the built-in configuration.
func Default() Config {
	port := 0
	return Config{
		ListenAddress:   "127.0.0.1:10009",
		Output:          OutputPort,
		MIDIPort:        &port,
		VirtualName:     "oscmidi",
		QueueSize:       100,
		ReleaseOnCancel: true,
	}
}

// Load reads path on top of the defaults. On error the defaults are
// returned together with the error so callers can choose to continue.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed opening path %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed parsing configuration %s: %w", path, err)
	}

	if cfg.VirtualName == "" {
		cfg.VirtualName = "oscmidi"
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 100
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("listen_address %q: %w", c.ListenAddress, err))
	}
	switch c.Output {
	case OutputPort, OutputVirtual, OutputSynth, OutputLog:
	default:
		errs = append(errs, fmt.Errorf("output %q: must be one of port, virtual, synth, log", c.Output))
	}
	if c.MIDIPort != nil && *c.MIDIPort < 0 {
		errs = append(errs, fmt.Errorf("midi_port %d: must not be negative", *c.MIDIPort))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size %d: must be positive", c.QueueSize))
	}
	return errors.Join(errs...)
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("error encoding configuration: %w", err)
	}
	return string(out), nil
}
