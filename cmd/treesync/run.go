package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/openmined/treesync/internal/client"
	"github.com/openmined/treesync/internal/config"
	"github.com/openmined/treesync/internal/lister"
	"github.com/openmined/treesync/internal/notifier"
	"github.com/openmined/treesync/internal/server"
	"github.com/openmined/treesync/internal/utils"
	"github.com/openmined/treesync/internal/watchstate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.json>",
		Short: "Run as server or client from a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Server != nil {
		return runServer(ctx, cfg.Server)
	}
	return runClient(ctx, cfg.Client)
}

func runServer(ctx context.Context, sc *config.ServerConfig) error {
	root, err := utils.ResolveDir(sc.Location)
	if err != nil {
		return fmt.Errorf("server root: %w", err)
	}

	lock, err := utils.LockDir(root)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	state, closeNotifier, err := openState(root)
	if err != nil {
		return err
	}
	defer closeNotifier()

	srv := server.New(&server.Config{
		Addr:      net.JoinHostPort(sc.Bind, strconv.Itoa(int(sc.Port))),
		QueueSize: viper.GetInt("queue-size"),
	}, state)
	if err := srv.Listen(); err != nil {
		return err
	}

	showHeader("server")
	defer slog.Info("Bye!")
	return srv.Start(ctx)
}

func runClient(ctx context.Context, cc *config.ClientConfig) error {
	if err := client.ValidateHost(cc.Host); err != nil {
		return err
	}

	if err := utils.EnsureDir(cc.Location); err != nil {
		return fmt.Errorf("client root: %w", err)
	}
	root, err := utils.ResolveDir(cc.Location)
	if err != nil {
		return fmt.Errorf("client root: %w", err)
	}

	lock, err := utils.LockDir(root)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	state, closeNotifier, err := openState(root)
	if err != nil {
		return err
	}
	defer closeNotifier()

	c, err := client.New(&client.Config{
		Host:      cc.Host,
		Port:      cc.Port,
		Reconnect: cc.Reconnect || viper.GetBool("reconnect"),
	}, state)
	if err != nil {
		return err
	}

	showHeader("client")
	defer slog.Info("Bye!")
	return c.Start(ctx)
}

// openState starts the notifier and indexes root.
func openState(root string) (*watchstate.WatchState, func(), error) {
	backend := notifier.Backend(viper.GetString("notifier"))
	n, err := notifier.New(backend, root)
	if err != nil {
		return nil, nil, fmt.Errorf("start %s notifier: %w", backend, err)
	}

	state, err := watchstate.New(root, n, lister.NewWalker(),
		watchstate.WithDebounceWindow(viper.GetDuration("debounce")),
	)
	if err != nil {
		n.Close()
		return nil, nil, fmt.Errorf("index %s: %w", root, err)
	}

	return state, func() { n.Close() }, nil
}
