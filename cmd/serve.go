package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/icco/oscmidi/internal/audio"
	"github.com/icco/oscmidi/internal/bridge"
	"github.com/icco/oscmidi/internal/config"
	"github.com/icco/oscmidi/internal/relay"
	"github.com/icco/oscmidi/internal/remote"
	"github.com/icco/oscmidi/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveFlags struct {
	listen        string
	output        string
	port          int
	virtualName   string
	record        string
	tui           bool
	logFile       string
	encodeChannel bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OSC to MIDI bridge",
	Long: `Listen for OSC messages and forward scheduled notes to a MIDI output.

Outputs:
  port     an existing MIDI output port (see "oscmidi ports")
  virtual  a new virtual MIDI port other applications can connect to
  synth    the built-in synthesizer on the default audio device
  log      print every MIDI message instead of sending it

Example:
  oscmidi serve --output virtual --virtual-name "Live Set"
  oscmidi serve --output synth --tui --log-file oscmidi.log
`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.listen, "listen", "l", "", "OSC listen address (overrides listen_address)")
	f.StringVarP(&serveFlags.output, "output", "o", "", "Output mode: port, virtual, synth or log")
	f.IntVarP(&serveFlags.port, "port", "p", -1, "MIDI output port index (overrides midi_port)")
	f.StringVarP(&serveFlags.virtualName, "virtual-name", "n", "", "Name for the virtual MIDI port")
	f.StringVar(&serveFlags.record, "record", "", "Also record every message to this .mid file")
	f.BoolVar(&serveFlags.tui, "tui", false, "Show a live monitor of the output")
	f.StringVar(&serveFlags.logFile, "log-file", "", "Write logs to this file (needed to see logs with --tui)")
	f.BoolVar(&serveFlags.encodeChannel, "encode-channel", false, "Put the channel in the status byte")
	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddress = serveFlags.listen
	}
	if flags.Changed("output") {
		cfg.Output = serveFlags.output
	}
	if flags.Changed("port") {
		port := serveFlags.port
		cfg.MIDIPort = &port
	}
	if flags.Changed("virtual-name") {
		cfg.VirtualName = serveFlags.virtualName
	}
	if flags.Changed("record") {
		cfg.Record = serveFlags.record
	}
	if flags.Changed("encode-channel") {
		cfg.EncodeChannel = serveFlags.encodeChannel
	}
	return cfg
}

func serveLogger() (*log.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}
	if serveFlags.logFile != "" {
		f, err := os.OpenFile(serveFlags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed opening log file: %w", err)
		}
		w = f
		closeLog = func() { _ = f.Close() }
	}
	logger, err := newLogger(w)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	if serveFlags.tui && serveFlags.logFile == "" {
		// stderr would tear the alt screen.
		logger.SetLevel(log.FatalLevel)
	}
	return logger, closeLog, nil
}

func openSink(cfg config.Config, logger *log.Logger) (relay.Sink, string, error) {
	switch cfg.Output {
	case config.OutputPort:
		p, err := relay.OpenPort(cfg.MIDIPort)
		if err != nil {
			return nil, "", err
		}
		return p, p.String(), nil
	case config.OutputVirtual:
		p, err := relay.OpenVirtual(cfg.VirtualName)
		if err != nil {
			return nil, "", err
		}
		return p, p.String(), nil
	case config.OutputSynth:
		s, err := audio.NewSynth()
		if err != nil {
			return nil, "", err
		}
		return s, "built-in synth", nil
	case config.OutputLog:
		return relay.LogSink{Logger: logger.WithPrefix("midi")}, "log", nil
	}
	return nil, "", fmt.Errorf("unknown output %q", cfg.Output)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := serveLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg := applyServeFlags(cmd, loadConfig(logger))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sink, desc, err := openSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed opening output: %w", err)
	}
	sinks := relay.MultiSink{sink}
	if cfg.Record != "" {
		sinks = append(sinks, relay.NewRecorder(cfg.Record))
	}

	var program *tea.Program
	if serveFlags.tui {
		program = tea.NewProgram(tui.NewMonitor(cfg.ListenAddress, desc), tea.WithAltScreen())
		sinks = append(sinks, tui.NewFeed(program))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.Options{
		Sink:            sinks,
		QueueSize:       cfg.QueueSize,
		ReleaseOnCancel: cfg.ReleaseOnCancel,
		EncodeChannel:   cfg.EncodeChannel,
		Logger:          logger,
	})

	// The bridge outlives ctx so that Shutdown can still silence notes.
	bridgeErr := make(chan error, 1)
	go func() {
		err := b.Run(context.Background())
		if err != nil {
			stop()
		}
		bridgeErr <- err
	}()

	server := remote.NewServer(remote.NewRouter(b, logger), logger)
	logger.Info("bridge started", "listen", cfg.ListenAddress, "output", desc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.ListenAddress)
	})
	if program != nil {
		g.Go(func() error {
			defer stop()
			_, err := program.Run()
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			program.Quit()
			return nil
		})
	}
	serveErr := g.Wait()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := b.Shutdown(shutdownCtx)

	var runErr error
	select {
	case runErr = <-bridgeErr:
	case <-shutdownCtx.Done():
		runErr = fmt.Errorf("bridge did not stop: %w", shutdownCtx.Err())
	}

	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	return errors.Join(serveErr, shutdownErr, runErr)
}
