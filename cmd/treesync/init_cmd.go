package main

import (
	"fmt"

	"github.com/openmined/treesync/internal/config"
	"github.com/openmined/treesync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitConfigCmd())
}

func newInitConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "init-config <server|client>",
		Short:     "Write a template config file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"server", "client"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			switch args[0] {
			case "server":
				cfg = config.ServerTemplate()
			case "client":
				cfg = config.ClientTemplate()
			default:
				return fmt.Errorf("unknown role %q, want server or client", args[0])
			}

			out, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if utils.FileExists(out) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", out)
			}

			if err := cfg.Save(out); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", args[0], out)
			return err
		},
	}
	cmd.Flags().StringP("output", "o", "config.json", "Where to write the config")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	return cmd
}
