package main

import (
	"github.com/openmined/treesync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newClientCmd())
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client <host> <root>",
		Short: "Mirror a server's tree into a local directory, created if missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetUint16("port")

			cmd.SilenceUsage = true
			return run(cmd.Context(), config.NewClient(args[0], port, args[1]))
		},
	}
	cmd.Flags().Uint16P("port", "p", config.DefaultPort, "Server port")
	return cmd
}
