package cmd

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/icco/oscmidi/internal/config"
	"github.com/icco/oscmidi/internal/remote"
	"github.com/spf13/cobra"
)

var (
	sendTarget   string
	sendOffset   time.Duration
	sendDuration time.Duration
	sendVelocity int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send OSC control messages to a running bridge",
	Long: `Send a single OSC message to a running bridge. Useful for checking wiring.

Example:
  oscmidi send sync
  oscmidi send play 0 60 --offset 500ms --duration 250ms --velocity 100
  oscmidi send cancel 0 60 --offset 500ms
`,
}

var sendPlayCmd = &cobra.Command{
	Use:   "play <channel> <note>",
	Short: "Schedule a note relative to the sync point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, note, err := channelNote(args)
		if err != nil {
			return err
		}
		msg := osc.NewMessage(remote.AddressPlay)
		msg.Append(sendOffset.Nanoseconds())
		msg.Append(sendDuration.Nanoseconds())
		msg.Append(channel)
		msg.Append(note)
		msg.Append(int32(sendVelocity))
		return send(msg)
	},
}

var sendCancelCmd = &cobra.Command{
	Use:   "cancel <channel> <note>",
	Short: "Invalidate scheduled notes for a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, note, err := channelNote(args)
		if err != nil {
			return err
		}
		msg := osc.NewMessage(remote.AddressCancel)
		msg.Append(sendOffset.Nanoseconds())
		msg.Append(channel)
		msg.Append(note)
		return send(msg)
	},
}

var sendSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Move the sync point to now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(osc.NewMessage(remote.AddressSync))
	},
}

func init() {
	sendCmd.PersistentFlags().StringVarP(&sendTarget, "to", "t", config.Default().ListenAddress, "Address of the bridge")
	sendCmd.PersistentFlags().DurationVar(&sendOffset, "offset", 0, "Offset from the sync point")
	sendPlayCmd.Flags().DurationVar(&sendDuration, "duration", 500*time.Millisecond, "Note length")
	sendPlayCmd.Flags().IntVar(&sendVelocity, "velocity", 100, "Note velocity (0-127)")

	sendCmd.AddCommand(sendPlayCmd, sendCancelCmd, sendSyncCmd)
	rootCmd.AddCommand(sendCmd)
}

func channelNote(args []string) (int32, int32, error) {
	channel, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel %q: %w", args[0], err)
	}
	note, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid note %q: %w", args[1], err)
	}
	return int32(channel), int32(note), nil
}

func send(msg *osc.Message) error {
	host, portStr, err := net.SplitHostPort(sendTarget)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", sendTarget, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if err := osc.NewClient(host, port).Send(msg); err != nil {
		return fmt.Errorf("failed sending %s: %w", msg.Address, err)
	}
	return nil
}
