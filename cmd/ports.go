package cmd

import (
	"fmt"

	"github.com/icco/oscmidi/internal/relay"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the available MIDI output ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports := relay.OutPorts()
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No MIDI output ports found.")
			return nil
		}
		for i, name := range ports {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
