package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/openmined/treesync/internal/config"
	"github.com/openmined/treesync/internal/notifier"
	"github.com/openmined/treesync/internal/server"
	"github.com/openmined/treesync/internal/version"
	"github.com/openmined/treesync/internal/watchstate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	red  = color.New(color.FgHiRed, color.Bold).SprintFunc()
	cyan = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "treesync <config.json>",
	Short: "Keep directory trees in sync between a server and its clients",
	Long: `TreeSync mirrors a directory tree from a server to any number of clients
and relays changes made on any side to every other side.

Start from a config file, or use the server and client commands directly.`,
	Version:       version.Detailed(),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}
		return setupLogging(viper.GetString("log-level"), viper.GetString("log-file"))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return run(cmd.Context(), cfg)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.String("notifier", string(notifier.BackendNotify), "Filesystem notifier backend (notify|fsnotify)")
	flags.Duration("debounce", watchstate.DefaultDebounceWindow, "How long paths written for a peer stay suppressed")
	flags.Int("queue-size", server.DefaultQueueSize, "Outbound frames queued per peer before dropping")
	flags.Bool("reconnect", false, "Client: keep reconnecting after the connection drops")
	flags.String("log-level", "info", "Log level (debug|info|warn|error)")
	flags.String("log-file", "", "Also write logs to this file, rotated")
}

func bindFlags(cmd *cobra.Command) error {
	for _, name := range []string{"notifier", "debounce", "queue-size", "reconnect", "log-level", "log-file"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	viper.SetEnvPrefix("TREESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return nil
}

func showHeader(role string) {
	fmt.Println(cyan(version.ShortWithApp()), role)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLogging()

	if err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}
