package cmd

import (
	"fmt"

	"github.com/icco/oscmidi/internal/config"
	"github.com/spf13/cobra"
)

var configDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if !configDefaults {
			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg = loadConfig(logger)
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configDefaults, "defaults", false, "Print the built-in defaults instead of the loaded file")
	rootCmd.AddCommand(configCmd)
}
