package main

import (
	"github.com/openmined/treesync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newServerCmd())
}

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server <root>",
		Short: "Serve an existing directory to clients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetUint16("port")
			bind, _ := cmd.Flags().GetString("bind")

			cfg := config.NewServer(port, args[0])
			cfg.Server.Bind = bind

			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().Uint16P("port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().String("bind", "", "Address to listen on (default all interfaces)")
	return cmd
}
